package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smart_parkai/internal/domain"
)

func TestInterpret(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		minutes  *int
		spot     *domain.SpotPreference
		valet    *bool
		feedback string
	}{
		{
			name:     "minutes and exit",
			text:     "30 minutes near exit",
			minutes:  intPtr(30),
			spot:     spotPtr(domain.SpotNearExit),
			feedback: "Set duration to 30 minutes; Selected Near Exit",
		},
		{
			name:     "hours and ev charging",
			text:     "2 hours with EV charging",
			minutes:  intPtr(120),
			spot:     spotPtr(domain.SpotEVCharging),
			feedback: "Set duration to 2 hours; Selected EV Charging Zone",
		},
		{
			name:     "exit wins over charging",
			text:     "charging spot near the exit",
			spot:     spotPtr(domain.SpotNearExit),
			feedback: "Selected Near Exit",
		},
		{
			name: "quick selects exit",
			text: "something quick",
			spot: spotPtr(domain.SpotNearExit),
		},
		{
			name: "lift selects elevator",
			text: "by the lift",
			spot: spotPtr(domain.SpotNearElevator),
		},
		{
			name: "elevator contains ev and matches ev charging first",
			text: "near the elevator",
			spot: spotPtr(domain.SpotEVCharging),
		},
		{
			name:     "valet requested",
			text:     "I want valet",
			valet:    boolPtr(true),
			feedback: "Valet service added",
		},
		{
			name:     "valet declined",
			text:     "no valet thanks",
			valet:    boolPtr(false),
			feedback: "Valet service removed",
		},
		{
			name:    "fractional hours snap to nearest preset",
			text:    "1.5 hours",
			minutes: intPtr(60),
		},
		{
			name:    "tie snaps to earlier preset",
			text:    "45 minutes",
			minutes: intPtr(30),
		},
		{
			name:    "below minimum clamps",
			text:    "5 minutes",
			minutes: intPtr(10),
		},
		{
			name:    "above maximum clamps",
			text:    "500 minutes",
			minutes: intPtr(180),
		},
		{
			name:    "overflowing digits clamp",
			text:    "99999999999999999999999 minutes",
			minutes: intPtr(180),
		},
		{
			name:    "hours override minutes",
			text:    "30 minutes or maybe 3 hours",
			minutes: intPtr(180),
		},
		{
			name:    "upper case input",
			text:    "ONE HOUR OR 60 MINUTES",
			minutes: intPtr(60),
		},
		{
			name:     "all three rules",
			text:     "1 hour near exit with valet",
			minutes:  intPtr(60),
			spot:     spotPtr(domain.SpotNearExit),
			valet:    boolPtr(true),
			feedback: "Set duration to 1 hour; Selected Near Exit; Valet service added",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Interpret(TextUtterance(tt.text))
			require.True(t, res.Understood)
			assert.Equal(t, tt.minutes, res.Patch.DurationMinutes)
			assert.Equal(t, tt.spot, res.Patch.SpotPreference)
			assert.Equal(t, tt.valet, res.Patch.ValetRequested)
			if tt.feedback != "" {
				assert.Equal(t, tt.feedback, res.Feedback)
			}
		})
	}
}

func TestInterpretNotUnderstood(t *testing.T) {
	for _, text := range []string{"asdf qwerty", "", "   \t ", "0 minutes", "a few minutes"} {
		res := Interpret(TextUtterance(text))
		assert.False(t, res.Understood, "text=%q", text)
		assert.True(t, res.Patch.IsEmpty(), "text=%q", text)
		assert.Equal(t, CommandHint, res.Feedback)
	}

	res := Interpret(nil)
	assert.False(t, res.Understood)
	assert.Equal(t, CommandHint, res.Feedback)
}

func TestInterpretDoesNotTouchIntent(t *testing.T) {
	intent := domain.NewBookingIntent()
	res := Interpret(TextUtterance("asdf qwerty"))
	assert.Equal(t, intent, intent.Apply(res.Patch))
}

func intPtr(v int) *int { return &v }

func boolPtr(v bool) *bool { return &v }

func spotPtr(v domain.SpotPreference) *domain.SpotPreference { return &v }
