package ad

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when no ad exists for the identifier.
var ErrNotFound = errors.New("ad: not found")

type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// CreateParams enumerates the fields persisted for a new ad.
type CreateParams struct {
	OwnerID        string
	TradeType      TradeType
	Price          string
	CryptoCurrency string
	FiatCurrency   string
}

func (r *PGRepository) Create(ctx context.Context, params CreateParams) (Ad, error) {
	const query = `
		INSERT INTO ads (owner_id, trade_type, price, crypto_currency, fiat_currency)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, owner_id, trade_type, price, crypto_currency, fiat_currency, created_at
	`

	var a Ad
	err := r.pool.QueryRow(ctx, query, params.OwnerID, params.TradeType, params.Price, params.CryptoCurrency, params.FiatCurrency).
		Scan(&a.ID, &a.OwnerID, &a.TradeType, &a.Price, &a.CryptoCurrency, &a.FiatCurrency, &a.CreatedAt)
	if err != nil {
		return Ad{}, fmt.Errorf("ad: create: %w", err)
	}
	return a, nil
}

func (r *PGRepository) GetByID(ctx context.Context, id string) (Ad, error) {
	const query = `
		SELECT id, owner_id, trade_type, price, crypto_currency, fiat_currency, created_at
		FROM ads
		WHERE id = $1
	`

	var a Ad
	err := r.pool.QueryRow(ctx, query, id).
		Scan(&a.ID, &a.OwnerID, &a.TradeType, &a.Price, &a.CryptoCurrency, &a.FiatCurrency, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Ad{}, ErrNotFound
		}
		return Ad{}, fmt.Errorf("ad: get: %w", err)
	}
	return a, nil
}

func (r *PGRepository) List(ctx context.Context, limit int) ([]Ad, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	const query = `
		SELECT id, owner_id, trade_type, price, crypto_currency, fiat_currency, created_at
		FROM ads
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("ad: list: %w", err)
	}
	defer rows.Close()

	out := make([]Ad, 0, limit)
	for rows.Next() {
		var a Ad
		if err := rows.Scan(&a.ID, &a.OwnerID, &a.TradeType, &a.Price, &a.CryptoCurrency, &a.FiatCurrency, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("ad: scan: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ad: iterate: %w", err)
	}
	return out, nil
}
