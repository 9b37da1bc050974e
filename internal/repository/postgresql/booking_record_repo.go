package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"smart_parkai/internal/domain"
	"smart_parkai/internal/repository"
)

const (
	defaultRecordLimit = 100
	maxRecordLimit     = 500
)

type pgBookingRecordRepository struct {
	db *sql.DB
}

func NewPgBookingRecordRepository(db *sql.DB) repository.BookingRecordRepository {
	return &pgBookingRecordRepository{db: db}
}

const bookingRecordColumns = `id, session_id, spot_id, spot_name, slot_label, location, duration_minutes,
	price, currency, has_valet, promo_code, start_time, end_time, payment_status,
	payment_intent_id, paid_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBookingRecord(row rowScanner) (*domain.BookingRecord, error) {
	rec := &domain.BookingRecord{}
	err := row.Scan(
		&rec.ID, &rec.SessionID, &rec.SpotID, &rec.SpotName, &rec.SlotLabel, &rec.Location, &rec.DurationMinutes,
		&rec.Price, &rec.Currency, &rec.HasValet, &rec.PromoCode, &rec.StartTime, &rec.EndTime, &rec.PaymentStatus,
		&rec.PaymentIntentID, &rec.PaidAt, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.StartTime = rec.StartTime.In(time.UTC)
	rec.EndTime = rec.EndTime.In(time.UTC)
	if rec.PaidAt.Valid {
		rec.PaidAt.Time = rec.PaidAt.Time.In(time.UTC)
	}
	rec.CreatedAt = rec.CreatedAt.In(time.UTC)
	rec.UpdatedAt = rec.UpdatedAt.In(time.UTC)
	return rec, nil
}

func (r *pgBookingRecordRepository) Create(ctx context.Context, rec *domain.BookingRecord) (*domain.BookingRecord, error) {
	query := `INSERT INTO booking_records
	           (id, session_id, spot_id, spot_name, slot_label, location, duration_minutes, price, currency,
	            has_valet, promo_code, start_time, end_time, payment_status, payment_intent_id, created_at, updated_at)
	           VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	           RETURNING created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		rec.ID, rec.SessionID, rec.SpotID, rec.SpotName, rec.SlotLabel, string(rec.Location), rec.DurationMinutes,
		rec.Price, rec.Currency, rec.HasValet, rec.PromoCode, rec.StartTime, rec.EndTime, string(rec.PaymentStatus),
		rec.PaymentIntentID,
	).Scan(&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "") {
			return nil, fmt.Errorf("%w: booking '%s'", repository.ErrDuplicateEntry, rec.ID)
		}
		return nil, fmt.Errorf("BookingRecordRepository.Create: %w", err)
	}
	rec.CreatedAt = rec.CreatedAt.In(time.UTC)
	rec.UpdatedAt = rec.UpdatedAt.In(time.UTC)
	return rec, nil
}

func (r *pgBookingRecordRepository) FindByID(ctx context.Context, id string) (*domain.BookingRecord, error) {
	query := `SELECT ` + bookingRecordColumns + ` FROM booking_records WHERE id = $1`
	rec, err := scanBookingRecord(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("BookingRecordRepository.FindByID: %w", err)
	}
	return rec, nil
}

func (r *pgBookingRecordRepository) Find(ctx context.Context, filter domain.BookingRecordFilterDTO) ([]domain.BookingRecord, error) {
	var conditions []string
	var args []interface{}
	argID := 1

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("payment_status = $%d", argID))
		args = append(args, *filter.Status)
		argID++
	}
	if filter.Location != nil {
		conditions = append(conditions, fmt.Sprintf("location = $%d", argID))
		args = append(args, *filter.Location)
		argID++
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultRecordLimit
	}
	if limit > maxRecordLimit {
		limit = maxRecordLimit
	}

	query := `SELECT ` + bookingRecordColumns + ` FROM booking_records`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", argID)
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("BookingRecordRepository.Find: %w", err)
	}
	defer rows.Close()

	records := []domain.BookingRecord{}
	for rows.Next() {
		rec, err := scanBookingRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("BookingRecordRepository.Find (scanning row): %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("BookingRecordRepository.Find (rows error): %w", err)
	}
	return records, nil
}

func (r *pgBookingRecordRepository) AttachPaymentIntent(ctx context.Context, id string, paymentIntentID string) error {
	query := `UPDATE booking_records SET payment_intent_id = $1, updated_at = CURRENT_TIMESTAMP
	           WHERE id = $2 AND payment_status = 'pending' AND payment_intent_id IS NULL`
	res, err := r.db.ExecContext(ctx, query, paymentIntentID, id)
	if err != nil {
		if isUniqueViolation(err, "booking_records_payment_intent_key") {
			return fmt.Errorf("%w: payment intent '%s'", repository.ErrDuplicateEntry, paymentIntentID)
		}
		return fmt.Errorf("BookingRecordRepository.AttachPaymentIntent: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("BookingRecordRepository.AttachPaymentIntent (rows affected): %w", err)
	}
	if n > 0 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM booking_records WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("BookingRecordRepository.AttachPaymentIntent (exists): %w", err)
	}
	if exists {
		return fmt.Errorf("%w: booking '%s' already has a payment intent or is settled", repository.ErrDuplicateEntry, id)
	}
	return repository.ErrNotFound
}

// UpdatePaymentStatusByIntent only sets paid_at when the new status is paid.
func (r *pgBookingRecordRepository) UpdatePaymentStatusByIntent(ctx context.Context, paymentIntentID string, status domain.PaymentStatus, at time.Time) (*domain.BookingRecord, error) {
	query := `UPDATE booking_records
	           SET payment_status = $1,
	               paid_at = CASE WHEN $1 = 'paid' THEN $2::timestamptz ELSE paid_at END,
	               updated_at = CURRENT_TIMESTAMP
	           WHERE payment_intent_id = $3
	           RETURNING ` + bookingRecordColumns

	rec, err := scanBookingRecord(r.db.QueryRowContext(ctx, query, string(status), at, paymentIntentID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("BookingRecordRepository.UpdatePaymentStatusByIntent: %w", err)
	}
	return rec, nil
}
