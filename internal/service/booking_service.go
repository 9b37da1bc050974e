package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/guregu/null.v4"

	"smart_parkai/internal/domain"
	"smart_parkai/internal/logger"
	"smart_parkai/internal/repository"
)

var ErrPreferenceRequired = errors.New("please select your parking preference")
var ErrInvalidSelection = errors.New("invalid booking selection")
var ErrCheckoutInProgress = errors.New("booking session is already being checked out")

// IntentNotifier receives every session change; the WebSocket hub implements it.
type IntentNotifier interface {
	PublishIntentUpdate(update domain.IntentUpdate)
}

// SpotSignaler tells on-site hardware that a slot has been booked.
type SpotSignaler interface {
	SignalReservation(ctx context.Context, record *domain.BookingRecord) error
}

type BookingService struct {
	store    SessionStore
	records  repository.BookingRecordRepository
	payments PaymentGateway
	signaler SpotSignaler
	notifier IntentNotifier
	log      *zap.Logger

	currency string
	lead     time.Duration
	now      func() time.Time
}

type BookingServiceOptions struct {
	Payments PaymentGateway
	Signaler SpotSignaler
	Notifier IntentNotifier
	Logger   *zap.Logger
	Currency string
	// Lead is the gap between checkout and the booked start time.
	Lead time.Duration
	Now  func() time.Time
}

func NewBookingService(store SessionStore, records repository.BookingRecordRepository, opts BookingServiceOptions) *BookingService {
	s := &BookingService{
		store:    store,
		records:  records,
		payments: opts.Payments,
		signaler: opts.Signaler,
		notifier: opts.Notifier,
		log:      logger.OrNop(opts.Logger),
		currency: opts.Currency,
		lead:     opts.Lead,
		now:      opts.Now,
	}
	if s.currency == "" {
		s.currency = "inr"
	}
	if s.lead == 0 {
		s.lead = time.Hour
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func (s *BookingService) StartSession(ctx context.Context, dto domain.StartSessionDTO) (*domain.BookingSession, error) {
	intent := domain.NewBookingIntent()
	if dto.Location != "" {
		loc := domain.Location(dto.Location)
		if !loc.Valid() {
			return nil, fmt.Errorf("%w: unknown location %q", ErrInvalidSelection, dto.Location)
		}
		intent = intent.WithLocation(loc)
	}

	now := s.now().UTC()
	session := &domain.BookingSession{
		ID:        uuid.New().String(),
		Intent:    intent,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create booking session: %w", err)
	}
	s.log.Info("booking session started", zap.String("session_id", session.ID), zap.String("location", string(intent.Location)))
	s.publish(session, "")
	return session, nil
}

func (s *BookingService) GetSession(ctx context.Context, id string) (*domain.BookingSession, error) {
	return s.store.Get(ctx, id)
}

// ApplyCommand interprets an utterance and merges the resulting patch. An
// utterance that is not understood only updates the transcript and feedback.
func (s *BookingService) ApplyCommand(ctx context.Context, id string, u Utterance) (domain.CommandResult, *domain.BookingSession, error) {
	result := Interpret(u)
	transcript := ""
	if u != nil {
		transcript = u.Transcript()
	}

	session, err := s.mutate(ctx, id, func(sess *domain.BookingSession) error {
		sess.Transcript = transcript
		sess.Feedback = result.Feedback
		if result.Understood {
			sess.Intent = sess.Intent.Apply(result.Patch)
		}
		s.touch(sess)
		return nil
	})
	if err != nil {
		return result, nil, err
	}

	if result.Understood {
		s.log.Debug("voice command applied", zap.String("session_id", id), zap.String("transcript", transcript), zap.String("feedback", result.Feedback))
	} else {
		s.log.Debug("voice command not understood", zap.String("session_id", id), zap.String("transcript", transcript))
	}
	s.publish(session, result.Feedback)
	return result, session, nil
}

func (s *BookingService) UpdateSelection(ctx context.Context, id string, dto domain.SelectionDTO) (*domain.BookingSession, error) {
	var spot *domain.SpotPreference
	if dto.SpotPreference != nil {
		p := domain.SpotPreference(*dto.SpotPreference)
		if !p.Valid() {
			return nil, fmt.Errorf("%w: unknown spot preference %q", ErrInvalidSelection, *dto.SpotPreference)
		}
		spot = &p
	}
	var loc *domain.Location
	if dto.Location != nil {
		l := domain.Location(*dto.Location)
		if !l.Valid() {
			return nil, fmt.Errorf("%w: unknown location %q", ErrInvalidSelection, *dto.Location)
		}
		loc = &l
	}
	if dto.PresetMinutes != nil && dto.CustomMinutes == nil {
		if _, ok := domain.LookupPreset(*dto.PresetMinutes); !ok {
			return nil, fmt.Errorf("%w: %d is not a preset duration", ErrInvalidSelection, *dto.PresetMinutes)
		}
	}

	session, err := s.mutate(ctx, id, func(sess *domain.BookingSession) error {
		intent := sess.Intent
		switch {
		case dto.CustomMinutes != nil:
			intent = intent.WithCustomDuration(*dto.CustomMinutes)
		case dto.PresetMinutes != nil:
			intent = intent.Apply(domain.IntentPatch{DurationMinutes: dto.PresetMinutes})
		}
		intent = intent.Apply(domain.IntentPatch{SpotPreference: spot, ValetRequested: dto.ValetRequested})
		if loc != nil {
			intent = intent.WithLocation(*loc)
		}
		sess.Intent = intent
		sess.Feedback = ""
		s.touch(sess)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(session, "")
	return session, nil
}

// ApplyPromo leaves the session untouched when the code is rejected.
func (s *BookingService) ApplyPromo(ctx context.Context, id string, code string) (domain.PromoResult, *domain.BookingSession, error) {
	result := ValidatePromo(code)
	if !result.Accepted {
		session, err := s.store.Get(ctx, id)
		if err != nil {
			return result, nil, err
		}
		return result, session, fmt.Errorf("%w: %q", ErrPromoRejected, code)
	}

	session, err := s.mutate(ctx, id, func(sess *domain.BookingSession) error {
		sess.Intent = sess.Intent.WithPromo(code, true)
		sess.Feedback = result.Message
		s.touch(sess)
		return nil
	})
	if err != nil {
		return result, nil, err
	}
	s.publish(session, result.Message)
	return result, session, nil
}

func (s *BookingService) Quote(ctx context.Context, id string) (domain.Quote, error) {
	session, err := s.store.Get(ctx, id)
	if err != nil {
		return domain.Quote{}, err
	}
	return ComputeQuote(session.Intent)
}

// Checkout freezes the session into a BookingRecord, opens a payment intent
// for it and discards the session. The session is claimed before any side
// effect so a second checkout gets ErrCheckoutInProgress; the claim is
// released again if the booking cannot be created.
func (s *BookingService) Checkout(ctx context.Context, id string) (*domain.CheckoutResponseDTO, error) {
	session, err := s.store.Update(ctx, id, func(sess *domain.BookingSession) error {
		if sess.CheckingOut {
			return ErrCheckoutInProgress
		}
		if _, ok := sess.Intent.SpotPreference.Option(); !ok {
			return ErrPreferenceRequired
		}
		if _, err := ComputeQuote(sess.Intent); err != nil {
			return err
		}
		sess.CheckingOut = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	resp, err := s.book(ctx, session)
	if err != nil {
		s.release(ctx, id)
		return nil, err
	}
	created := resp.Record

	if s.signaler != nil {
		if err := s.signaler.SignalReservation(ctx, created); err != nil {
			s.log.Warn("spot reservation signal failed", zap.String("booking_id", created.ID), zap.Error(err))
		}
	}

	if err := s.store.Delete(ctx, id); err != nil {
		s.log.Warn("failed to discard checked out session", zap.String("session_id", id), zap.Error(err))
	}
	if s.notifier != nil {
		s.notifier.PublishIntentUpdate(domain.IntentUpdate{SessionID: id, Intent: session.Intent, Version: session.Version, Discarded: true})
	}

	s.log.Info("booking created",
		zap.String("booking_id", created.ID),
		zap.String("session_id", id),
		zap.String("slot", created.SlotLabel),
		zap.Int("duration_minutes", created.DurationMinutes),
		zap.Int("price", created.Price))
	return resp, nil
}

// book opens the payment intent and persists the record for a claimed session.
func (s *BookingService) book(ctx context.Context, session *domain.BookingSession) (*domain.CheckoutResponseDTO, error) {
	intent := session.Intent
	opt, _ := intent.SpotPreference.Option()
	quote, err := ComputeQuote(intent)
	if err != nil {
		return nil, err
	}

	start := s.now().UTC().Add(s.lead)
	record := &domain.BookingRecord{
		ID:              uuid.New().String(),
		SessionID:       session.ID,
		SpotID:          string(opt.ID),
		SpotName:        opt.Name,
		SlotLabel:       opt.Slot,
		Location:        intent.Location,
		DurationMinutes: intent.DurationMinutes,
		Price:           quote.Total,
		Currency:        s.currency,
		HasValet:        intent.ValetRequested,
		StartTime:       start,
		EndTime:         start.Add(time.Duration(intent.DurationMinutes) * time.Minute),
		PaymentStatus:   domain.PaymentPending,
	}
	if intent.DiscountApplied {
		record.PromoCode = null.StringFrom(intent.PromoCode)
	}

	var clientSecret string
	if s.payments != nil {
		pi, err := s.payments.CreatePaymentIntent(ctx, int64(quote.Total)*100, s.currency, map[string]string{
			"orderId":     record.ID,
			"description": fmt.Sprintf("Parking %s (%s) for %d minutes", opt.Name, opt.Slot, intent.DurationMinutes),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialise payment: %w", err)
		}
		record.PaymentIntentID = null.StringFrom(pi.ID)
		clientSecret = pi.ClientSecret
	}

	created, err := s.records.Create(ctx, record)
	if err != nil {
		return nil, fmt.Errorf("failed to save booking: %w", err)
	}
	return &domain.CheckoutResponseDTO{Record: created, ClientSecret: clientSecret}, nil
}

func (s *BookingService) release(ctx context.Context, id string) {
	_, err := s.store.Update(ctx, id, func(sess *domain.BookingSession) error {
		sess.CheckingOut = false
		return nil
	})
	if err != nil {
		s.log.Warn("failed to release booking session", zap.String("session_id", id), zap.Error(err))
	}
}

func (s *BookingService) DiscardSession(ctx context.Context, id string) error {
	session, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if session.CheckingOut {
		return ErrCheckoutInProgress
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	if s.notifier != nil {
		s.notifier.PublishIntentUpdate(domain.IntentUpdate{SessionID: id, Intent: session.Intent, Version: session.Version, Discarded: true})
	}
	return nil
}

func (s *BookingService) GetBooking(ctx context.Context, id string) (*domain.BookingRecord, error) {
	return s.records.FindByID(ctx, id)
}

func (s *BookingService) FindBookings(ctx context.Context, filter domain.BookingRecordFilterDTO) ([]domain.BookingRecord, error) {
	return s.records.Find(ctx, filter)
}

// View bundles a session with its current quote and location recommendation.
func (s *BookingService) View(session *domain.BookingSession) domain.SessionResponseDTO {
	view := domain.SessionResponseDTO{Session: session}
	if session == nil {
		return view
	}
	if q, err := ComputeQuote(session.Intent); err == nil {
		view.Quote = &q
	}
	if slot := session.Intent.Location.RecommendedSlot(); slot != "" {
		view.Recommendation = "AI recommends " + slot
	}
	return view
}

// mutate rejects changes to a session that a checkout has claimed.
func (s *BookingService) mutate(ctx context.Context, id string, fn func(*domain.BookingSession) error) (*domain.BookingSession, error) {
	return s.store.Update(ctx, id, func(sess *domain.BookingSession) error {
		if sess.CheckingOut {
			return ErrCheckoutInProgress
		}
		return fn(sess)
	})
}

func (s *BookingService) touch(sess *domain.BookingSession) {
	sess.Version++
	sess.UpdatedAt = s.now().UTC()
}

func (s *BookingService) publish(session *domain.BookingSession, feedback string) {
	if s.notifier == nil || session == nil {
		return
	}
	update := domain.IntentUpdate{
		SessionID: session.ID,
		Intent:    session.Intent,
		Feedback:  feedback,
		Version:   session.Version,
	}
	if q, err := ComputeQuote(session.Intent); err == nil {
		update.Quote = &q
	}
	s.notifier.PublishIntentUpdate(update)
}
