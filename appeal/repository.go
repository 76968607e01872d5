package appeal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"escrowflow/order"
)

// ErrNotFound is returned when no appeal matches.
var ErrNotFound = errors.New("appeal: not found")

// Transitioner records a status transition inside a caller-owned transaction.
// *order.StatusService satisfies it.
type Transitioner interface {
	TransitionTx(ctx context.Context, tx pgx.Tx, orderID string, next order.StatusType) (order.Status, error)
}

type PGRepository struct {
	pool     *pgxpool.Pool
	statuses Transitioner
}

func NewRepository(pool *pgxpool.Pool, statuses Transitioner) *PGRepository {
	return &PGRepository{pool: pool, statuses: statuses}
}

// CreateWithTransition records the appealed status and the open appeal row in
// one transaction. Neither write survives without the other: a refused
// transition leaves no appeal row, and an appeal conflict rolls the status
// back. A partial unique index on (order_id) WHERE resolved_at IS NULL
// enforces at most one open appeal per order; a violation surfaces as a
// validation error.
func (r *PGRepository) CreateWithTransition(ctx context.Context, orderID, ownerID string, typ Type, next order.StatusType, reasons []string) (Appeal, order.Status, error) {
	const query = `
		INSERT INTO appeals (order_id, owner_id, type, reasons)
		VALUES ($1, $2, $3, $4)
		RETURNING id, order_id, owner_id, type, reasons, resolved_at, created_at
	`

	if reasons == nil {
		reasons = []string{}
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Appeal{}, order.Status{}, fmt.Errorf("appeal: begin create: %w", err)
	}
	defer tx.Rollback(ctx)

	status, err := r.statuses.TransitionTx(ctx, tx, orderID, next)
	if err != nil {
		return Appeal{}, order.Status{}, err
	}

	var a Appeal
	err = tx.QueryRow(ctx, query, orderID, ownerID, typ, reasons).
		Scan(&a.ID, &a.OrderID, &a.OwnerID, &a.Type, &a.Reasons, &a.ResolvedAt, &a.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Appeal{}, order.Status{}, order.Invalid("order %s already has an open appeal", orderID)
		}
		return Appeal{}, order.Status{}, fmt.Errorf("appeal: create: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Appeal{}, order.Status{}, fmt.Errorf("appeal: commit create: %w", err)
	}
	return a, status, nil
}

// GetByOrder returns the most recent appeal for an order, open or resolved.
func (r *PGRepository) GetByOrder(ctx context.Context, orderID string) (Appeal, error) {
	const query = `
		SELECT id, order_id, owner_id, type, reasons, resolved_at, created_at
		FROM appeals
		WHERE order_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`

	var a Appeal
	err := r.pool.QueryRow(ctx, query, orderID).
		Scan(&a.ID, &a.OrderID, &a.OwnerID, &a.Type, &a.Reasons, &a.ResolvedAt, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Appeal{}, ErrNotFound
		}
		return Appeal{}, fmt.Errorf("appeal: get by order: %w", err)
	}
	return a, nil
}

// ResolveOpen stamps the order's open appeal, if any. The WHERE clause makes
// it idempotent: a second call matches no rows and never re-stamps.
func (r *PGRepository) ResolveOpen(ctx context.Context, orderID string, now time.Time) (bool, error) {
	const query = `
		UPDATE appeals
		SET resolved_at = $2
		WHERE order_id = $1 AND resolved_at IS NULL
	`

	tag, err := r.pool.Exec(ctx, query, orderID, now)
	if err != nil {
		return false, fmt.Errorf("appeal: resolve: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
