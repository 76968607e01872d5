package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"escrowflow/ad"
)

// ErrNotFound is returned when no order row exists for the identifier.
var ErrNotFound = errors.New("order: not found")

type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// CreateParams enumerates the fields frozen onto a new order.
type CreateParams struct {
	AdID             string
	CreatorID        string
	TradeType        ad.TradeType
	Price            string
	CryptoAmount     string
	TimeDuration     time.Duration
	PaymentMethodIDs []string
}

// Create inserts the order, its SUBMITTED status, and its payment method
// links in one transaction. An order is born with a status history.
func (r *PGRepository) Create(ctx context.Context, params CreateParams) (Order, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Order{}, fmt.Errorf("order: begin create: %w", err)
	}
	defer tx.Rollback(ctx)

	const insertSQL = `
        INSERT INTO orders (ad_id, creator_id, trade_type, price, crypto_amount, time_duration_seconds)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id, ad_id, creator_id, trade_type, price, crypto_amount, time_duration_seconds, expires_at, created_at
    `

	var (
		o       Order
		seconds int64
	)
	err = tx.QueryRow(ctx, insertSQL,
		params.AdID,
		params.CreatorID,
		params.TradeType,
		params.Price,
		params.CryptoAmount,
		int64(params.TimeDuration/time.Second),
	).Scan(&o.ID, &o.AdID, &o.CreatorID, &o.TradeType, &o.Price, &o.CryptoAmount, &seconds, &o.ExpiresAt, &o.CreatedAt)
	if err != nil {
		return Order{}, fmt.Errorf("order: insert: %w", err)
	}
	o.TimeDuration = time.Duration(seconds) * time.Second

	if _, err := tx.Exec(ctx, `INSERT INTO statuses (order_id, status) VALUES ($1, $2)`, o.ID, StatusSubmitted); err != nil {
		return Order{}, fmt.Errorf("order: insert submitted status: %w", err)
	}

	for _, methodID := range params.PaymentMethodIDs {
		if _, err := tx.Exec(ctx, `INSERT INTO order_payment_methods (order_id, payment_method_id) VALUES ($1, $2)`, o.ID, methodID); err != nil {
			return Order{}, fmt.Errorf("order: link payment method: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Order{}, fmt.Errorf("order: commit create: %w", err)
	}

	return o, nil
}

func (r *PGRepository) Get(ctx context.Context, id string) (Order, error) {
	const query = `
        SELECT id, ad_id, creator_id, trade_type, price, crypto_amount, arbiter_id, time_duration_seconds, expires_at, created_at
        FROM orders
        WHERE id = $1
    `

	var (
		o       Order
		seconds int64
	)
	err := r.pool.QueryRow(ctx, query, id).
		Scan(&o.ID, &o.AdID, &o.CreatorID, &o.TradeType, &o.Price, &o.CryptoAmount, &o.ArbiterID, &seconds, &o.ExpiresAt, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrNotFound
		}
		return Order{}, fmt.Errorf("order: get: %w", err)
	}
	o.TimeDuration = time.Duration(seconds) * time.Second
	return o, nil
}

// Roles resolves the wallet hashes, addresses and pubkeys of every party to
// the order. The arbiter fields stay empty while no arbiter is bound.
func (r *PGRepository) Roles(ctx context.Context, orderID string) (TradeRoles, error) {
	const query = `
        SELECT o.trade_type,
               creator.wallet_hash, creator.address, creator.public_key,
               owner.wallet_hash, owner.address, owner.public_key,
               arbiter.wallet_hash, arbiter.address, arbiter.public_key
        FROM orders o
        JOIN peers creator ON creator.id = o.creator_id
        JOIN ads a ON a.id = o.ad_id
        JOIN peers owner ON owner.id = a.owner_id
        LEFT JOIN peers arbiter ON arbiter.id = o.arbiter_id
        WHERE o.id = $1
    `

	var (
		tradeType                                    ad.TradeType
		creatorWallet, creatorAddress, creatorPubkey string
		ownerWallet, ownerAddress, ownerPubkey       string
		arbiterWallet, arbiterAddress, arbiterPubkey *string
	)
	err := r.pool.QueryRow(ctx, query, orderID).Scan(
		&tradeType,
		&creatorWallet, &creatorAddress, &creatorPubkey,
		&ownerWallet, &ownerAddress, &ownerPubkey,
		&arbiterWallet, &arbiterAddress, &arbiterPubkey,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TradeRoles{}, ErrNotFound
		}
		return TradeRoles{}, fmt.Errorf("order: resolve roles: %w", err)
	}

	roles := TradeRoles{CreatorWallet: creatorWallet}
	if tradeType == ad.TradeTypeSell {
		roles.SellerWallet, roles.SellerAddress, roles.SellerPubkey = ownerWallet, ownerAddress, ownerPubkey
		roles.BuyerWallet, roles.BuyerAddress, roles.BuyerPubkey = creatorWallet, creatorAddress, creatorPubkey
	} else {
		roles.SellerWallet, roles.SellerAddress, roles.SellerPubkey = creatorWallet, creatorAddress, creatorPubkey
		roles.BuyerWallet, roles.BuyerAddress, roles.BuyerPubkey = ownerWallet, ownerAddress, ownerPubkey
	}
	if arbiterWallet != nil {
		roles.ArbiterWallet = *arbiterWallet
	}
	if arbiterAddress != nil {
		roles.ArbiterAddress = *arbiterAddress
	}
	if arbiterPubkey != nil {
		roles.ArbiterPubkey = *arbiterPubkey
	}
	return roles, nil
}

// ListStatuses returns the order's full audit trail, oldest first.
func (r *PGRepository) ListStatuses(ctx context.Context, orderID string) ([]Status, error) {
	const query = `
        SELECT id, order_id, status, created_at
        FROM statuses
        WHERE order_id = $1
        ORDER BY created_at ASC, id ASC
    `

	rows, err := r.pool.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("order: list statuses: %w", err)
	}
	defer rows.Close()

	out := make([]Status, 0, 8)
	for rows.Next() {
		var s Status
		if err := rows.Scan(&s.ID, &s.OrderID, &s.Status, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("order: scan status: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("order: iterate statuses: %w", err)
	}
	return out, nil
}
