package service

import (
	"errors"
	"strings"

	"smart_parkai/internal/domain"
)

var ErrPromoRejected = errors.New("promo code rejected")

const (
	DefaultDiscountRate = 0.10
	promoAcceptedMsg    = "Promo code applied successfully! 10% discount added."
	promoRejectedMsg    = `Invalid promo code. Try "FIRST10" for 10% off.`
)

// promoTable is keyed by lower-cased code.
var promoTable = map[string]float64{
	"first10": DefaultDiscountRate,
}

// ValidatePromo matches code case-insensitively against the accepted codes.
func ValidatePromo(code string) domain.PromoResult {
	rate, ok := promoTable[strings.ToLower(code)]
	if !ok {
		return domain.PromoResult{Message: promoRejectedMsg}
	}
	return domain.PromoResult{
		Accepted:     true,
		DiscountRate: rate,
		Message:      promoAcceptedMsg,
	}
}

// discountRateFor falls back to the default rate for intents flagged as
// discounted without a known code.
func discountRateFor(code string) float64 {
	if rate, ok := promoTable[strings.ToLower(code)]; ok {
		return rate
	}
	return DefaultDiscountRate
}
