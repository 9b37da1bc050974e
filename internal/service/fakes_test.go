package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"smart_parkai/internal/domain"
	"smart_parkai/internal/repository"
)

type fakeRecordRepo struct {
	mu        sync.Mutex
	records   map[string]*domain.BookingRecord
	createErr error
}

func newFakeRecordRepo() *fakeRecordRepo {
	return &fakeRecordRepo{records: make(map[string]*domain.BookingRecord)}
}

func (r *fakeRecordRepo) Create(_ context.Context, rec *domain.BookingRecord) (*domain.BookingRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return nil, r.createErr
	}
	if _, ok := r.records[rec.ID]; ok {
		return nil, repository.ErrDuplicateEntry
	}
	cp := *rec
	r.records[rec.ID] = &cp
	return &cp, nil
}

func (r *fakeRecordRepo) FindByID(_ context.Context, id string) (*domain.BookingRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (r *fakeRecordRepo) Find(_ context.Context, _ domain.BookingRecordFilterDTO) ([]domain.BookingRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []domain.BookingRecord{}
	for _, rec := range r.records {
		out = append(out, *rec)
	}
	return out, nil
}

func (r *fakeRecordRepo) AttachPaymentIntent(_ context.Context, id string, piID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return repository.ErrNotFound
	}
	if rec.PaymentIntentID.Valid || rec.PaymentStatus != domain.PaymentPending {
		return repository.ErrDuplicateEntry
	}
	rec.PaymentIntentID.SetValid(piID)
	return nil
}

func (r *fakeRecordRepo) UpdatePaymentStatusByIntent(_ context.Context, piID string, status domain.PaymentStatus, at time.Time) (*domain.BookingRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if rec.PaymentIntentID.Valid && rec.PaymentIntentID.String == piID {
			rec.PaymentStatus = status
			if status == domain.PaymentPaid {
				rec.PaidAt.SetValid(at)
			}
			cp := *rec
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

type fakeGateway struct {
	mu      sync.Mutex
	created []int64
	meta    []map[string]string
	err     error
	event   *domain.PaymentEvent

	// entered is signalled and hold awaited before an intent is created.
	entered chan struct{}
	hold    chan struct{}
}

func (g *fakeGateway) CreatePaymentIntent(_ context.Context, amount int64, currency string, metadata map[string]string) (*domain.PaymentIntent, error) {
	if g.entered != nil {
		g.entered <- struct{}{}
	}
	if g.hold != nil {
		<-g.hold
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	g.created = append(g.created, amount)
	g.meta = append(g.meta, metadata)
	id := fmt.Sprintf("pi_%d", len(g.created))
	return &domain.PaymentIntent{ID: id, ClientSecret: id + "_secret", Status: "requires_payment_method", Amount: amount, Currency: currency, Metadata: metadata}, nil
}

func (g *fakeGateway) GetPaymentIntent(_ context.Context, id string) (*domain.PaymentIntent, error) {
	if id == "pi_missing" {
		return nil, repository.ErrNotFound
	}
	return &domain.PaymentIntent{ID: id, Status: "succeeded"}, nil
}

func (g *fakeGateway) ParseWebhook(payload []byte, signature string) (*domain.PaymentEvent, error) {
	if signature != "valid" {
		return nil, fmt.Errorf("%w: bad signature", ErrInvalidWebhook)
	}
	return g.event, nil
}

type fakeSignaler struct {
	mu       sync.Mutex
	reserved []string
	err      error
}

func (s *fakeSignaler) SignalReservation(_ context.Context, rec *domain.BookingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reserved = append(s.reserved, rec.SlotLabel)
	return s.err
}

type fakeNotifier struct {
	mu      sync.Mutex
	updates []domain.IntentUpdate
}

func (n *fakeNotifier) PublishIntentUpdate(u domain.IntentUpdate) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.updates = append(n.updates, u)
}

func (n *fakeNotifier) last() domain.IntentUpdate {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.updates[len(n.updates)-1]
}

type fakeUserRepo struct {
	mu     sync.Mutex
	users  map[string]domain.User
	nextID int
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]domain.User)}
}

func (r *fakeUserRepo) Create(_ context.Context, user *domain.User) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.Username]; ok {
		return nil, repository.ErrDuplicateEntry
	}
	r.nextID++
	u := *user
	u.ID = r.nextID
	r.users[u.Username] = u
	return &u, nil
}

func (r *fakeUserRepo) FindByUsername(_ context.Context, username string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[username]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (r *fakeUserRepo) FindByID(_ context.Context, id int) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.ID == id {
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}
