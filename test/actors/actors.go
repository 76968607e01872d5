package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"escrowflow/order"
)

// tolerate swallows the rejections the status machine hands out under
// contention. Anything else is a real failure.
func tolerate(err error) error {
	if err == nil {
		return nil
	}
	var verr *order.ValidationError
	if errors.As(err, &verr) {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// Confirmer races to move the order to CONFIRMED. At most one racer wins;
// the rest are rejected by the duplicate-status guard.
func Confirmer(ctx context.Context, statuses *order.StatusService, orderID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		if _, err := statuses.Transition(ctx, orderID, order.StatusConfirmed); tolerate(err) != nil {
			return fmt.Errorf("confirmer: %w", err)
		}
		time.Sleep(time.Duration(10+rand.Intn(20)) * time.Millisecond)
	}
}

// Payer walks the payment leg: PAID_PENDING then PAID, in whatever order the
// race allows.
func Payer(ctx context.Context, statuses *order.StatusService, orderID string, stop <-chan struct{}) error {
	steps := []order.StatusType{order.StatusPaidPending, order.StatusPaid}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		next := steps[rand.Intn(len(steps))]
		if _, err := statuses.Transition(ctx, orderID, next); tolerate(err) != nil {
			return fmt.Errorf("payer: %w", err)
		}
		time.Sleep(time.Duration(15+rand.Intn(30)) * time.Millisecond)
	}
}

// Canceler keeps trying to cancel. It only ever succeeds from the statuses
// that allow cancellation.
func Canceler(ctx context.Context, statuses *order.StatusService, orderID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		if _, err := statuses.Transition(ctx, orderID, order.StatusCanceled); tolerate(err) != nil {
			return fmt.Errorf("canceler: %w", err)
		}
		time.Sleep(time.Duration(40+rand.Intn(60)) * time.Millisecond)
	}
}

// Appealer raises appeals and files the appeal row when the transition won.
func Appealer(ctx context.Context, pool *pgxpool.Pool, statuses *order.StatusService, orderID, ownerID string, stop <-chan struct{}) error {
	kinds := []struct {
		status order.StatusType
		typ    string
	}{
		{order.StatusCancelAppealed, "CANCEL"},
		{order.StatusReleaseAppealed, "RELEASE"},
		{order.StatusRefundAppealed, "REFUND"},
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		k := kinds[rand.Intn(len(kinds))]
		_, err := statuses.Transition(ctx, orderID, k.status)
		if tolerate(err) != nil {
			return fmt.Errorf("appealer: %w", err)
		}
		if err == nil {
			// the appeal row rides on the partial unique index
			_, _ = pool.Exec(ctx, `INSERT INTO appeals (order_id, owner_id, type) VALUES ($1, $2, $3)`, orderID, ownerID, k.typ)
		}
		time.Sleep(time.Duration(50+rand.Intn(80)) * time.Millisecond)
	}
}

// Settler plays the arbiter's settlement: random RELEASED or REFUNDED
// attempts, plus resolving whatever appeal is open when one lands.
func Settler(ctx context.Context, pool *pgxpool.Pool, statuses *order.StatusService, orderID string, stop <-chan struct{}) error {
	outcomes := []order.StatusType{order.StatusReleased, order.StatusRefunded}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		next := outcomes[rand.Intn(len(outcomes))]
		_, err := statuses.Transition(ctx, orderID, next)
		if tolerate(err) != nil {
			return fmt.Errorf("settler: %w", err)
		}
		if err == nil {
			_, _ = pool.Exec(ctx, `UPDATE appeals SET resolved_at = NOW() WHERE order_id = $1 AND resolved_at IS NULL`, orderID)
		}
		time.Sleep(time.Duration(60+rand.Intn(90)) * time.Millisecond)
	}
}

// Reader hammers the read side while writers contend.
func Reader(ctx context.Context, statuses *order.StatusService, orderID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		if _, err := statuses.LatestStatus(ctx, orderID); tolerate(err) != nil {
			return fmt.Errorf("reader: %w", err)
		}
		time.Sleep(time.Duration(5+rand.Intn(15)) * time.Millisecond)
	}
}
