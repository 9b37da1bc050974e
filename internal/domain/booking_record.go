package domain

import (
	"time"

	"gopkg.in/guregu/null.v4"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

// BookingRecord is the immutable snapshot handed to the payment collaborator.
type BookingRecord struct {
	ID              string        `json:"id"`
	SessionID       string        `json:"session_id"`
	SpotID          string        `json:"spot_id"`
	SpotName        string        `json:"spot_name"`
	SlotLabel       string        `json:"slot_label"`
	Location        Location      `json:"location"`
	DurationMinutes int           `json:"duration_minutes"`
	Price           int           `json:"price"`
	Currency        string        `json:"currency"`
	HasValet        bool          `json:"has_valet"`
	PromoCode       null.String   `json:"promo_code"`
	StartTime       time.Time     `json:"start_time"`
	EndTime         time.Time     `json:"end_time"`
	PaymentStatus   PaymentStatus `json:"payment_status"`
	PaymentIntentID null.String   `json:"payment_intent_id"`
	PaidAt          null.Time     `json:"paid_at"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

type BookingRecordFilterDTO struct {
	Status   *string `form:"status"`
	Location *string `form:"location"`
	Limit    int     `form:"limit"`
}

type CheckoutResponseDTO struct {
	Record       *BookingRecord `json:"booking"`
	ClientSecret string         `json:"client_secret,omitempty"`
}

// PaymentIntent is the gateway-neutral view of a created or fetched intent.
type PaymentIntent struct {
	ID           string            `json:"payment_intent_id"`
	ClientSecret string            `json:"client_secret,omitempty"`
	Status       string            `json:"status"`
	Amount       int64             `json:"amount"`
	Currency     string            `json:"currency"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

type InitializePaymentDTO struct {
	Amount      float64 `json:"amount" binding:"required,gt=0"`
	Currency    string  `json:"currency,omitempty"`
	OrderID     string  `json:"orderId" binding:"required"`
	Description string  `json:"description,omitempty"`
}

type PaymentEventType string

const (
	PaymentEventSucceeded PaymentEventType = "payment_intent.succeeded"
	PaymentEventFailed    PaymentEventType = "payment_intent.payment_failed"
)

type PaymentEvent struct {
	ID              string           `json:"id"`
	Type            PaymentEventType `json:"type"`
	PaymentIntentID string           `json:"payment_intent_id,omitempty"`
	OccurredAt      time.Time        `json:"occurred_at"`
}

// TranscriptMessage is the body of a queued speech transcript.
type TranscriptMessage struct {
	SessionID  string `json:"session_id"`
	Transcript string `json:"transcript"`
}
