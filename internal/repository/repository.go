package repository

import (
	"context"
	"errors"
	"time"

	"smart_parkai/internal/domain"
)

var ErrNotFound = errors.New("record not found")
var ErrDuplicateEntry = errors.New("record already exists")

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) (*domain.User, error)
	FindByUsername(ctx context.Context, username string) (*domain.User, error)
	FindByID(ctx context.Context, id int) (*domain.User, error)
}

type BookingRecordRepository interface {
	Create(ctx context.Context, record *domain.BookingRecord) (*domain.BookingRecord, error)
	FindByID(ctx context.Context, id string) (*domain.BookingRecord, error)
	Find(ctx context.Context, filter domain.BookingRecordFilterDTO) ([]domain.BookingRecord, error)
	// AttachPaymentIntent only touches a pending record without an intent; any
	// other existing record yields ErrDuplicateEntry.
	AttachPaymentIntent(ctx context.Context, id string, paymentIntentID string) error
	// UpdatePaymentStatusByIntent returns ErrNotFound when no record carries the intent id.
	UpdatePaymentStatusByIntent(ctx context.Context, paymentIntentID string, status domain.PaymentStatus, at time.Time) (*domain.BookingRecord, error)
}
