package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"

	"smart_parkai/internal/domain"
	"smart_parkai/internal/logger"
	"smart_parkai/internal/repository"
)

var ErrPaymentsDisabled = errors.New("payments are not configured")
var ErrInvalidWebhook = errors.New("invalid webhook payload")

// PaymentGateway is the part of the card processor the booking flow needs.
type PaymentGateway interface {
	CreatePaymentIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (*domain.PaymentIntent, error)
	GetPaymentIntent(ctx context.Context, id string) (*domain.PaymentIntent, error)
	ParseWebhook(payload []byte, signature string) (*domain.PaymentEvent, error)
}

type stripeGateway struct {
	api           *client.API
	webhookSecret string
}

func NewStripeGateway(secretKey, webhookSecret string) PaymentGateway {
	return &stripeGateway{api: client.New(secretKey, nil), webhookSecret: webhookSecret}
}

func (g *stripeGateway) CreatePaymentIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (*domain.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	if desc, ok := metadata["description"]; ok && desc != "" {
		params.Description = stripe.String(desc)
	}

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripeGateway.CreatePaymentIntent: %w", err)
	}
	return toPaymentIntent(pi), nil
}

func (g *stripeGateway) GetPaymentIntent(ctx context.Context, id string) (*domain.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := g.api.PaymentIntents.Get(id, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == 404 {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("stripeGateway.GetPaymentIntent: %w", err)
	}
	out := toPaymentIntent(pi)
	out.ClientSecret = ""
	return out, nil
}

func (g *stripeGateway) ParseWebhook(payload []byte, signature string) (*domain.PaymentEvent, error) {
	event, err := webhook.ConstructEvent(payload, signature, g.webhookSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWebhook, err)
	}

	out := &domain.PaymentEvent{
		ID:         event.ID,
		Type:       domain.PaymentEventType(event.Type),
		OccurredAt: time.Unix(event.Created, 0).UTC(),
	}
	if strings.HasPrefix(string(event.Type), "payment_intent.") && event.Data != nil {
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidWebhook, err)
		}
		out.PaymentIntentID = pi.ID
	}
	return out, nil
}

func toPaymentIntent(pi *stripe.PaymentIntent) *domain.PaymentIntent {
	return &domain.PaymentIntent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
		Amount:       pi.Amount,
		Currency:     string(pi.Currency),
		Metadata:     pi.Metadata,
	}
}

// PaymentService exposes the gateway to HTTP and settles booking records from webhooks.
type PaymentService struct {
	gateway  PaymentGateway
	records  repository.BookingRecordRepository
	currency string
	log      *zap.Logger
}

func NewPaymentService(gateway PaymentGateway, records repository.BookingRecordRepository, currency string, log *zap.Logger) *PaymentService {
	if currency == "" {
		currency = "inr"
	}
	return &PaymentService{gateway: gateway, records: records, currency: currency, log: logger.OrNop(log)}
}

func (s *PaymentService) Enabled() bool {
	return s.gateway != nil
}

// InitializePayment creates an intent for an arbitrary order. When orderId
// names a stored booking the intent is attached to it, provided the booking is
// still pending and has no intent yet.
func (s *PaymentService) InitializePayment(ctx context.Context, dto domain.InitializePaymentDTO) (*domain.PaymentIntent, error) {
	if s.gateway == nil {
		return nil, ErrPaymentsDisabled
	}
	currency := strings.ToLower(dto.Currency)
	if currency == "" {
		currency = s.currency
	}
	description := dto.Description
	if description == "" {
		description = "Parking booking"
	}

	if s.records != nil && dto.OrderID != "" {
		rec, err := s.records.FindByID(ctx, dto.OrderID)
		switch {
		case err == nil:
			if rec.PaymentIntentID.Valid || rec.PaymentStatus != domain.PaymentPending {
				return nil, fmt.Errorf("%w: booking %s already has a payment intent or is settled", repository.ErrDuplicateEntry, rec.ID)
			}
		case errors.Is(err, repository.ErrNotFound):
		default:
			return nil, fmt.Errorf("PaymentService.InitializePayment: %w", err)
		}
	}

	pi, err := s.gateway.CreatePaymentIntent(ctx, int64(math.Round(dto.Amount*100)), currency, map[string]string{
		"orderId":     dto.OrderID,
		"description": description,
	})
	if err != nil {
		return nil, err
	}

	if s.records != nil {
		err := s.records.AttachPaymentIntent(ctx, dto.OrderID, pi.ID)
		switch {
		case err == nil:
			s.log.Info("payment intent attached to booking", zap.String("booking_id", dto.OrderID), zap.String("payment_intent_id", pi.ID))
		case errors.Is(err, repository.ErrNotFound):
		case errors.Is(err, repository.ErrDuplicateEntry):
			s.log.Warn("booking was billed concurrently", zap.String("booking_id", dto.OrderID), zap.String("payment_intent_id", pi.ID))
			return nil, err
		default:
			s.log.Warn("failed to attach payment intent", zap.String("booking_id", dto.OrderID), zap.Error(err))
		}
	}
	return pi, nil
}

func (s *PaymentService) GetPaymentDetails(ctx context.Context, id string) (*domain.PaymentIntent, error) {
	if s.gateway == nil {
		return nil, ErrPaymentsDisabled
	}
	return s.gateway.GetPaymentIntent(ctx, id)
}

// HandleWebhook verifies a gateway event and settles the matching booking.
// Events for unknown intents or of other types are acknowledged and ignored.
func (s *PaymentService) HandleWebhook(ctx context.Context, payload []byte, signature string) (*domain.PaymentEvent, error) {
	if s.gateway == nil {
		return nil, ErrPaymentsDisabled
	}
	event, err := s.gateway.ParseWebhook(payload, signature)
	if err != nil {
		return nil, err
	}

	var status domain.PaymentStatus
	switch event.Type {
	case domain.PaymentEventSucceeded:
		status = domain.PaymentPaid
	case domain.PaymentEventFailed:
		status = domain.PaymentFailed
	default:
		s.log.Debug("ignoring payment event", zap.String("event_id", event.ID), zap.String("type", string(event.Type)))
		return event, nil
	}

	record, err := s.records.UpdatePaymentStatusByIntent(ctx, event.PaymentIntentID, status, event.OccurredAt)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.log.Warn("payment event for unknown booking", zap.String("payment_intent_id", event.PaymentIntentID))
			return event, nil
		}
		return nil, fmt.Errorf("PaymentService.HandleWebhook: %w", err)
	}
	s.log.Info("booking payment settled",
		zap.String("booking_id", record.ID),
		zap.String("payment_intent_id", event.PaymentIntentID),
		zap.String("status", string(status)))
	return event, nil
}
