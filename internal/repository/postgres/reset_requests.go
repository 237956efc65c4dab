package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/beridzemate00/codereview/internal/core/domain"
	"github.com/beridzemate00/codereview/internal/repository"
)

var resetRequestColumns = []string{
	"id",
	"email",
	"fingerprint",
	"expires_at",
	"consumed",
	"consumed_at",
	"reserved_by",
	"reserved_until",
	"created_at",
}

// ResetRequestRepository implements port.ResetRequestRepository using PostgreSQL.
type ResetRequestRepository struct {
	db      pgTxBeginner
	builder squirrel.StatementBuilderType
}

// NewResetRequestRepository constructs a repository over a pool (or pgxmock pool).
func NewResetRequestRepository(db pgTxBeginner) *ResetRequestRepository {
	return &ResetRequestRepository{
		db:      db,
		builder: newBuilder(),
	}
}

// Replace deletes every request for req.Email and inserts req in one
// transaction. A transaction-scoped advisory lock keyed on the email
// serializes concurrent writers; the partial unique index on live rows
// rejects anything that slips past it.
func (r *ResetRequestRepository) Replace(ctx context.Context, req domain.ResetRequest) error {
	deleteSQL, deleteArgs, err := r.builder.Delete(resetRequestsTable).
		Where(squirrel.Eq{"email": req.Email}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete reset requests sql: %w", err)
	}

	insertSQL, insertArgs, err := r.builder.Insert(resetRequestsTable).
		Columns(resetRequestColumns...).
		Values(
			req.ID,
			req.Email,
			req.Fingerprint,
			req.ExpiresAt,
			false,
			nil,
			nil,
			nil,
			req.CreatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert reset request sql: %w", err)
	}

	err = withTx(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", req.Email); err != nil {
			return fmt.Errorf("lock reset requests: %w", err)
		}
		if _, err := tx.Exec(ctx, deleteSQL, deleteArgs...); err != nil {
			return fmt.Errorf("delete reset requests: %w", err)
		}
		if _, err := tx.Exec(ctx, insertSQL, insertArgs...); err != nil {
			if isUniqueViolation(err) {
				return repository.ErrConflict
			}
			return fmt.Errorf("insert reset request: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("replace reset request: %w", err)
	}

	return nil
}

// FindByFingerprint returns the request stored under fingerprint regardless of state.
func (r *ResetRequestRepository) FindByFingerprint(ctx context.Context, fingerprint string) (*domain.ResetRequest, error) {
	stmt, args, err := r.builder.
		Select(resetRequestColumns...).
		From(resetRequestsTable).
		Where(squirrel.Eq{"fingerprint": fingerprint}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select reset request sql: %w", err)
	}

	var (
		req        domain.ResetRequest
		reservedBy *string
	)

	if err := r.db.QueryRow(ctx, stmt, args...).Scan(
		&req.ID,
		&req.Email,
		&req.Fingerprint,
		&req.ExpiresAt,
		&req.Consumed,
		&req.ConsumedAt,
		&reservedBy,
		&req.ReservedUntil,
		&req.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan reset request: %w", err)
	}

	if reservedBy != nil {
		req.ReservedBy = *reservedBy
	}

	return &req, nil
}

// Reserve is a conditional update: it only succeeds for a live request
// whose previous reservation, if any, has lapsed.
func (r *ResetRequestRepository) Reserve(ctx context.Context, id, holder string, now, until time.Time) (bool, error) {
	stmt, args, err := r.builder.Update(resetRequestsTable).
		Set("reserved_by", holder).
		Set("reserved_until", until).
		Where(squirrel.Eq{"id": id}).
		Where(squirrel.Eq{"consumed": false}).
		Where(squirrel.Gt{"expires_at": now}).
		Where(squirrel.Or{
			squirrel.Eq{"reserved_until": nil},
			squirrel.LtOrEq{"reserved_until": now},
		}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build reserve reset request sql: %w", err)
	}

	ct, err := r.db.Exec(ctx, stmt, args...)
	if err != nil {
		return false, fmt.Errorf("reserve reset request: %w", err)
	}

	return ct.RowsAffected() == 1, nil
}

// Release drops a reservation still held by holder on an unconsumed request.
func (r *ResetRequestRepository) Release(ctx context.Context, id, holder string) error {
	stmt, args, err := r.builder.Update(resetRequestsTable).
		Set("reserved_by", nil).
		Set("reserved_until", nil).
		Where(squirrel.Eq{"id": id}).
		Where(squirrel.Eq{"reserved_by": holder}).
		Where(squirrel.Eq{"consumed": false}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build release reset request sql: %w", err)
	}

	if _, err := r.db.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("release reset request: %w", err)
	}

	return nil
}

// Consume marks the request used by holder. The row keeps reserved_by, so a
// consumed request only ever matches its own holder again and a repeated call
// is a no-op. The first consumption time is preserved.
func (r *ResetRequestRepository) Consume(ctx context.Context, id, holder string, at time.Time) error {
	stmt, args, err := r.builder.Update(resetRequestsTable).
		Set("consumed", true).
		Set("consumed_at", squirrel.Expr("COALESCE(consumed_at, ?)", at)).
		Set("reserved_until", nil).
		Where(squirrel.Eq{"id": id}).
		Where(squirrel.Eq{"reserved_by": holder}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build consume reset request sql: %w", err)
	}

	ct, err := r.db.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("consume reset request: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrConflict
	}

	return nil
}

// DeleteExpired removes requests that expired before the given instant.
func (r *ResetRequestRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	stmt, args, err := r.builder.Delete(resetRequestsTable).
		Where(squirrel.Lt{"expires_at": before}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete expired reset requests sql: %w", err)
	}

	ct, err := r.db.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("delete expired reset requests: %w", err)
	}

	return ct.RowsAffected(), nil
}
