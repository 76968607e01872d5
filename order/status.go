package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// StatusService records status transitions. Invariant checks and the status
// insert happen inside one transaction holding the order's row lock, so
// concurrent attempts to advance the same order serialize instead of both
// passing the progression check against a stale current status.
type StatusService struct {
	pool *pgxpool.Pool
}

func NewStatusService(pool *pgxpool.Pool) *StatusService {
	return &StatusService{pool: pool}
}

// Transition appends the next status to the order's audit trail. It enforces
// the single-instance rule (a status type at most once per order) and the
// progression rule (next must be a legal successor of the latest status).
// Violations abort with a ValidationError and no partial writes. Recording
// CONFIRMED also starts the escrow window by stamping expires_at.
func (s *StatusService) Transition(ctx context.Context, orderID string, next StatusType) (Status, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("order: begin transition: %w", err)
	}
	defer tx.Rollback(ctx)

	rec, err := s.TransitionTx(ctx, tx, orderID, next)
	if err != nil {
		return Status{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Status{}, fmt.Errorf("order: commit transition: %w", err)
	}
	return rec, nil
}

// TransitionTx records the transition inside the caller's transaction, so a
// caller can commit the status row together with its own writes. The caller
// owns commit and rollback.
func (s *StatusService) TransitionTx(ctx context.Context, tx pgx.Tx, orderID string, next StatusType) (Status, error) {
	if !KnownStatus(next) {
		return Status{}, Invalid("unknown status %s", next)
	}

	// The order row lock is the serialization point for this order's
	// status history.
	var exists bool
	if err := tx.QueryRow(ctx, `SELECT true FROM orders WHERE id=$1 FOR UPDATE`, orderID).Scan(&exists); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Status{}, Invalid("order %s does not exist", orderID)
		}
		return Status{}, fmt.Errorf("order: lock order: %w", err)
	}

	current, err := latestStatusTx(ctx, tx, orderID)
	if err != nil {
		return Status{}, err
	}

	var duplicate bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM statuses WHERE order_id=$1 AND status=$2)`, orderID, next).Scan(&duplicate); err != nil {
		return Status{}, fmt.Errorf("order: check duplicate status: %w", err)
	}
	if duplicate {
		return Status{}, Invalid("duplicate status %s for order %s", next, orderID)
	}

	if current == "" {
		if next != StatusSubmitted {
			return Status{}, Invalid("order %s has no status yet; only %s may be recorded first", orderID, StatusSubmitted)
		}
	} else if !CanTransition(current, next) {
		return Status{}, Invalid("illegal status progression %s -> %s", current, next)
	}

	var rec Status
	err = tx.QueryRow(ctx, `
        INSERT INTO statuses (order_id, status)
        VALUES ($1, $2)
        RETURNING id, order_id, status, created_at
    `, orderID, next).Scan(&rec.ID, &rec.OrderID, &rec.Status, &rec.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Status{}, Invalid("duplicate status %s for order %s", next, orderID)
		}
		return Status{}, fmt.Errorf("order: insert status: %w", err)
	}

	if next == StatusConfirmed {
		if _, err := tx.Exec(ctx, `
            UPDATE orders
            SET expires_at = now() + (time_duration_seconds * interval '1 second')
            WHERE id = $1
        `, orderID); err != nil {
			return Status{}, fmt.Errorf("order: stamp expiry: %w", err)
		}
	}

	return rec, nil
}

// LatestStatus returns the order's current status as derived from the audit
// trail. The trail stays authoritative; nothing caches a "current" column.
func (s *StatusService) LatestStatus(ctx context.Context, orderID string) (StatusType, error) {
	var status StatusType
	err := s.pool.QueryRow(ctx, `
        SELECT status FROM statuses
        WHERE order_id = $1
        ORDER BY created_at DESC, id DESC
        LIMIT 1
    `, orderID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", Invalid("order %s has no status history", orderID)
		}
		return "", fmt.Errorf("order: latest status: %w", err)
	}
	return status, nil
}

func latestStatusTx(ctx context.Context, tx pgx.Tx, orderID string) (StatusType, error) {
	var status StatusType
	err := tx.QueryRow(ctx, `
        SELECT status FROM statuses
        WHERE order_id = $1
        ORDER BY created_at DESC, id DESC
        LIMIT 1
    `, orderID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("order: latest status: %w", err)
	}
	return status, nil
}
