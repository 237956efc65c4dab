package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/beridzemate00/codereview/internal/core/domain"
	"github.com/beridzemate00/codereview/internal/repository"
)

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock
}

func assertExpectations(t *testing.T, mock pgxmock.PgxPoolIface) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAccountRepository_Create(t *testing.T) {
	mock := newMockPool(t)
	repo := NewAccountRepository(mock)

	createdAt := time.Now().UTC()
	account := domain.Account{
		ID:           "account-1",
		Email:        "a@x.com",
		Name:         "a",
		Role:         domain.RoleUser,
		PasswordHash: "argon2id$digest",
		CreatedAt:    createdAt,
	}

	mock.ExpectExec(`INSERT INTO auth\.accounts`).
		WithArgs(account.ID, account.Email, account.Name, "user", account.PasswordHash, createdAt, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := repo.Create(context.Background(), account); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	assertExpectations(t, mock)
}

func TestAccountRepository_CreateDuplicateEmail(t *testing.T) {
	mock := newMockPool(t)
	repo := NewAccountRepository(mock)

	mock.ExpectExec(`INSERT INTO auth\.accounts`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation})

	err := repo.Create(context.Background(), domain.Account{ID: "account-2", Email: "a@x.com", Role: domain.RoleUser})
	if !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	assertExpectations(t, mock)
}

func TestAccountRepository_GetByEmail(t *testing.T) {
	mock := newMockPool(t)
	repo := NewAccountRepository(mock)

	createdAt := time.Now().UTC()
	changedAt := createdAt.Add(time.Hour)

	rows := pgxmock.NewRows(accountColumns).
		AddRow("account-1", "a@x.com", "Alice", "admin", "argon2id$digest", createdAt, &changedAt)

	mock.ExpectQuery(`SELECT .* FROM auth\.accounts WHERE email = \$1 LIMIT 1`).
		WithArgs("a@x.com").
		WillReturnRows(rows)

	account, err := repo.GetByEmail(context.Background(), "a@x.com")
	if err != nil {
		t.Fatalf("GetByEmail returned error: %v", err)
	}
	if account.ID != "account-1" || account.Role != domain.RoleAdmin || account.Name != "Alice" {
		t.Fatalf("unexpected account: %+v", account)
	}
	if account.PasswordChangedAt == nil || !account.PasswordChangedAt.Equal(changedAt) {
		t.Fatalf("unexpected password_changed_at: %v", account.PasswordChangedAt)
	}

	assertExpectations(t, mock)
}

func TestAccountRepository_GetByIDNotFound(t *testing.T) {
	mock := newMockPool(t)
	repo := NewAccountRepository(mock)

	mock.ExpectQuery(`SELECT .* FROM auth\.accounts WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	if _, err := repo.GetByID(context.Background(), "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	assertExpectations(t, mock)
}

func TestAccountRepository_UpdatePassword(t *testing.T) {
	mock := newMockPool(t)
	repo := NewAccountRepository(mock)

	changedAt := time.Now().UTC()

	mock.ExpectExec(`UPDATE auth\.accounts SET password_hash = \$1, password_changed_at = \$2 WHERE id = \$3`).
		WithArgs("new-digest", changedAt, "account-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE auth\.accounts`).
		WithArgs("new-digest", changedAt, "gone").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	if err := repo.UpdatePassword(context.Background(), "account-1", "new-digest", changedAt); err != nil {
		t.Fatalf("UpdatePassword returned error: %v", err)
	}
	if err := repo.UpdatePassword(context.Background(), "gone", "new-digest", changedAt); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing account, got %v", err)
	}

	assertExpectations(t, mock)
}
