package service

import (
	"errors"
	"fmt"
	"math"

	"smart_parkai/internal/domain"
)

const (
	BasePricePerHour = 200
	ValetSurcharge   = 100
)

var ErrInvalidDuration = errors.New("duration outside the bookable range")

// ComputeQuote prices an intent. It does not clamp: callers that skipped the
// intake path get ErrInvalidDuration instead of a silently corrected price.
func ComputeQuote(intent domain.BookingIntent) (domain.Quote, error) {
	if intent.DurationMinutes < domain.MinDurationMinutes || intent.DurationMinutes > domain.MaxDurationMinutes {
		return domain.Quote{}, fmt.Errorf("%w: %d minutes (allowed %d-%d)", ErrInvalidDuration,
			intent.DurationMinutes, domain.MinDurationMinutes, domain.MaxDurationMinutes)
	}

	// Durations are snapped upstream; an unsnapped in-range value is priced at x1.0.
	multiplier := 1.0
	label := ""
	if preset, ok := domain.LookupPreset(intent.DurationMinutes); ok {
		multiplier = preset.Multiplier
		label = preset.Label
	}

	surcharge := 0
	if intent.ValetRequested {
		surcharge = ValetSurcharge
	}
	discount := 0.0
	if intent.DiscountApplied {
		discount = discountRateFor(intent.PromoCode)
	}

	price := float64(BasePricePerHour) * multiplier
	price += float64(surcharge)
	price *= 1 - discount

	return domain.Quote{
		BasePricePerHour:   BasePricePerHour,
		DurationMinutes:    intent.DurationMinutes,
		DurationLabel:      label,
		DurationMultiplier: multiplier,
		ValetSurcharge:     surcharge,
		DiscountRate:       discount,
		Total:              int(math.Round(price)),
	}, nil
}
