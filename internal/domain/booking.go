package domain

import "time"

const (
	MinDurationMinutes     = 10
	MaxDurationMinutes     = 180
	DefaultDurationMinutes = 60
)

type SpotPreference string

const (
	SpotNone         SpotPreference = ""
	SpotNearExit     SpotPreference = "exit"
	SpotEVCharging   SpotPreference = "ev"
	SpotNearElevator SpotPreference = "elevator"
)

type Location string

const (
	LocationCity    Location = "city"
	LocationMall    Location = "mall"
	LocationAirport Location = "airport"
)

// DurationPreset is one row of the ordered preset table used for snapping and pricing.
type DurationPreset struct {
	Minutes    int     `json:"minutes"`
	Label      string  `json:"label"`
	Multiplier float64 `json:"multiplier"`
}

// DurationPresets is ordered by duration; tie-breaks depend on this order.
var DurationPresets = []DurationPreset{
	{Minutes: 10, Label: "10 minutes", Multiplier: 0.2},
	{Minutes: 30, Label: "30 minutes", Multiplier: 0.5},
	{Minutes: 60, Label: "1 hour", Multiplier: 1.0},
	{Minutes: 120, Label: "2 hours", Multiplier: 2.0},
	{Minutes: 180, Label: "3 hours", Multiplier: 3.0},
}

type SpotOption struct {
	ID          SpotPreference `json:"id"`
	Name        string         `json:"name"`
	Slot        string         `json:"slot"`
	Description string         `json:"description"`
	Features    []string       `json:"features"`
}

var SpotOptions = []SpotOption{
	{
		ID:          SpotNearExit,
		Name:        "Near Exit",
		Slot:        "P1",
		Description: "Quick access to street level, perfect for short stays",
		Features:    []string{"Direct exit access", "2-minute walk to street", "Well-lit pathway"},
	},
	{
		ID:          SpotEVCharging,
		Name:        "EV Charging Zone",
		Slot:        "P2",
		Description: "Dedicated area with EV charging stations",
		Features:    []string{"Multiple charging points", "24/7 charging access", "Technical support"},
	},
	{
		ID:          SpotNearElevator,
		Name:        "Near Elevator",
		Slot:        "P3",
		Description: "Convenient for carrying shopping or luggage",
		Features:    []string{"Multiple elevators", "Shopping cart access", "Luggage friendly"},
	},
}

var locationNames = map[Location]string{
	LocationCity:    "City Center Parking",
	LocationMall:    "Mall Parking Complex",
	LocationAirport: "Airport Parking",
}

var locationRecommendations = map[Location]string{
	LocationCity:    "P8",
	LocationMall:    "P20",
	LocationAirport: "P3",
}

func (l Location) Valid() bool {
	_, ok := locationNames[l]
	return ok
}

func (l Location) Name() string {
	return locationNames[l]
}

// RecommendedSlot returns the slot suggested for the location, "" for unknown locations.
func (l Location) RecommendedSlot() string {
	return locationRecommendations[l]
}

func (p SpotPreference) Valid() bool {
	if p == SpotNone {
		return true
	}
	_, ok := p.Option()
	return ok
}

func (p SpotPreference) Option() (SpotOption, bool) {
	for _, opt := range SpotOptions {
		if opt.ID == p {
			return opt, true
		}
	}
	return SpotOption{}, false
}

// ClampDuration bounds minutes into [MinDurationMinutes, MaxDurationMinutes].
func ClampDuration(minutes int) int {
	if minutes < MinDurationMinutes {
		return MinDurationMinutes
	}
	if minutes > MaxDurationMinutes {
		return MaxDurationMinutes
	}
	return minutes
}

// NearestPreset returns the preset closest to minutes. On equal distance the
// earlier table entry wins (45 -> 30, 90 -> 60).
func NearestPreset(minutes int) DurationPreset {
	closest := DurationPresets[0]
	for _, p := range DurationPresets[1:] {
		if absInt(p.Minutes-minutes) < absInt(closest.Minutes-minutes) {
			closest = p
		}
	}
	return closest
}

// LookupPreset is the exact-match lookup used for pricing.
func LookupPreset(minutes int) (DurationPreset, bool) {
	for _, p := range DurationPresets {
		if p.Minutes == minutes {
			return p, true
		}
	}
	return DurationPreset{}, false
}

// SnapDuration clamps then snaps to the nearest preset.
func SnapDuration(minutes int) DurationPreset {
	return NearestPreset(ClampDuration(minutes))
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// BookingIntent is the in-progress set of booking choices. It is a value:
// every With*/Apply call returns a modified copy.
type BookingIntent struct {
	DurationMinutes int            `json:"duration_minutes"`
	SpotPreference  SpotPreference `json:"spot_preference"`
	ValetRequested  bool           `json:"valet_requested"`
	PromoCode       string         `json:"promo_code,omitempty"`
	DiscountApplied bool           `json:"discount_applied"`
	Location        Location       `json:"location"`
}

func NewBookingIntent() BookingIntent {
	return BookingIntent{
		DurationMinutes: DefaultDurationMinutes,
		SpotPreference:  SpotNone,
		Location:        LocationCity,
	}
}

// IntentPatch is a partial update; nil fields are left untouched.
type IntentPatch struct {
	DurationMinutes *int            `json:"duration_minutes,omitempty"`
	SpotPreference  *SpotPreference `json:"spot_preference,omitempty"`
	ValetRequested  *bool           `json:"valet_requested,omitempty"`
}

func (p IntentPatch) IsEmpty() bool {
	return p.DurationMinutes == nil && p.SpotPreference == nil && p.ValetRequested == nil
}

func (i BookingIntent) Apply(p IntentPatch) BookingIntent {
	next := i
	if p.DurationMinutes != nil {
		next.DurationMinutes = ClampDuration(*p.DurationMinutes)
	}
	if p.SpotPreference != nil {
		next.SpotPreference = *p.SpotPreference
	}
	if p.ValetRequested != nil {
		next.ValetRequested = *p.ValetRequested
	}
	return next
}

// WithCustomDuration handles free-form minute input from the duration field.
func (i BookingIntent) WithCustomDuration(minutes int) BookingIntent {
	next := i
	next.DurationMinutes = SnapDuration(minutes).Minutes
	return next
}

func (i BookingIntent) WithLocation(l Location) BookingIntent {
	next := i
	next.Location = l
	return next
}

func (i BookingIntent) WithPromo(code string, applied bool) BookingIntent {
	next := i
	next.PromoCode = code
	next.DiscountApplied = applied
	return next
}

// BookingSession is the server-side owner of one intent.
type BookingSession struct {
	ID          string        `json:"id"`
	Intent      BookingIntent `json:"intent"`
	Transcript  string        `json:"transcript,omitempty"`
	Feedback    string        `json:"feedback,omitempty"`
	Version     int64         `json:"version"`
	CheckingOut bool          `json:"checking_out,omitempty"` // set while a checkout owns the session
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// IntentUpdate is pushed to subscribers whenever a session changes.
type IntentUpdate struct {
	SessionID string        `json:"session_id"`
	Intent    BookingIntent `json:"intent"`
	Quote     *Quote        `json:"quote,omitempty"`
	Feedback  string        `json:"feedback,omitempty"`
	Version   int64         `json:"version"`
	Discarded bool          `json:"discarded,omitempty"`
}

type Quote struct {
	BasePricePerHour   int     `json:"base_price_per_hour"`
	DurationMinutes    int     `json:"duration_minutes"`
	DurationLabel      string  `json:"duration_label,omitempty"`
	DurationMultiplier float64 `json:"duration_multiplier"`
	ValetSurcharge     int     `json:"valet_surcharge"`
	DiscountRate       float64 `json:"discount_rate"`
	Total              int     `json:"total"`
}

type CommandResult struct {
	Patch      IntentPatch `json:"patch"`
	Feedback   string      `json:"feedback"`
	Understood bool        `json:"understood"`
}

type PromoResult struct {
	Accepted     bool    `json:"accepted"`
	DiscountRate float64 `json:"discount_rate"`
	Message      string  `json:"message"`
}

// DTOs

type StartSessionDTO struct {
	Location string `json:"location,omitempty"`
}

type CommandDTO struct {
	Utterance string `json:"utterance"`
}

// SelectionDTO carries manual field selections. Preset and custom duration
// are mutually exclusive; custom wins when both are set.
type SelectionDTO struct {
	PresetMinutes  *int    `json:"preset_minutes,omitempty"`
	CustomMinutes  *int    `json:"custom_minutes,omitempty"`
	SpotPreference *string `json:"spot_preference,omitempty"`
	ValetRequested *bool   `json:"valet_requested,omitempty"`
	Location       *string `json:"location,omitempty"`
}

type PromoDTO struct {
	Code string `json:"code" binding:"required"`
}

type SessionResponseDTO struct {
	Session        *BookingSession `json:"session"`
	Quote          *Quote          `json:"quote,omitempty"`
	Recommendation string          `json:"recommendation,omitempty"`
}

type CommandResponseDTO struct {
	Result  CommandResult   `json:"result"`
	Session *BookingSession `json:"session"`
	Quote   *Quote          `json:"quote,omitempty"`
}
