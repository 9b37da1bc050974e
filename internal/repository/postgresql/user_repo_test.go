package postgresql

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smart_parkai/internal/domain"
	"smart_parkai/internal/repository"
)

func TestUserCreate(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPgUserRepository(db)
	now := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`INSERT INTO users`).
		WithArgs("gatekeeper", "hash", domain.RoleOperator).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(7, now, now))

	user, err := repo.Create(context.Background(), &domain.User{Username: "gatekeeper", Password: "hash", Role: domain.RoleOperator})
	require.NoError(t, err)
	assert.Equal(t, 7, user.ID)
	assert.Equal(t, now, user.CreatedAt)

	mock.ExpectQuery(`INSERT INTO users`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_username_key"})
	_, err = repo.Create(context.Background(), &domain.User{Username: "gatekeeper"})
	assert.ErrorIs(t, err, repository.ErrDuplicateEntry)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserFind(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPgUserRepository(db)
	now := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	cols := []string{"id", "username", "password_hash", "role", "created_at", "updated_at"}

	mock.ExpectQuery(`SELECT (.+) FROM users WHERE username = \$1`).
		WithArgs("gatekeeper").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(7, "gatekeeper", "hash", "admin", now, now))
	user, err := repo.FindByUsername(context.Background(), "gatekeeper")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, user.Role)
	assert.Equal(t, "hash", user.Password)

	mock.ExpectQuery(`SELECT (.+) FROM users WHERE id = \$1`).
		WithArgs(8).
		WillReturnError(sql.ErrNoRows)
	_, err = repo.FindByID(context.Background(), 8)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
