package peer

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound is returned when no peer row exists for the identifier.
	ErrNotFound = errors.New("peer: not found")
	// ErrDuplicateWallet signals a registration race on the same wallet hash.
	ErrDuplicateWallet = errors.New("peer: wallet hash already registered")
)

type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// CreateParams enumerates the fields persisted for a new peer.
type CreateParams struct {
	WalletHash string
	PublicKey  string
	Address    string
	SecretHash string
	IsArbiter  bool
}

func (r *PGRepository) Create(ctx context.Context, params CreateParams) (Peer, error) {
	const query = `
		INSERT INTO peers (wallet_hash, public_key, address, secret_hash, is_arbiter)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, wallet_hash, public_key, address, secret_hash, is_arbiter, created_at
	`

	var p Peer
	err := r.pool.QueryRow(ctx, query, params.WalletHash, params.PublicKey, params.Address, params.SecretHash, params.IsArbiter).
		Scan(&p.ID, &p.WalletHash, &p.PublicKey, &p.Address, &p.SecretHash, &p.IsArbiter, &p.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Peer{}, ErrDuplicateWallet
		}
		return Peer{}, fmt.Errorf("peer: create: %w", err)
	}
	return p, nil
}

func (r *PGRepository) GetByWallet(ctx context.Context, walletHash string) (Peer, error) {
	const query = `
		SELECT id, wallet_hash, public_key, address, secret_hash, is_arbiter, created_at
		FROM peers
		WHERE wallet_hash = $1
	`

	var p Peer
	err := r.pool.QueryRow(ctx, query, walletHash).
		Scan(&p.ID, &p.WalletHash, &p.PublicKey, &p.Address, &p.SecretHash, &p.IsArbiter, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Peer{}, ErrNotFound
		}
		return Peer{}, fmt.Errorf("peer: get by wallet: %w", err)
	}
	return p, nil
}

func (r *PGRepository) GetByID(ctx context.Context, id string) (Peer, error) {
	const query = `
		SELECT id, wallet_hash, public_key, address, secret_hash, is_arbiter, created_at
		FROM peers
		WHERE id = $1
	`

	var p Peer
	err := r.pool.QueryRow(ctx, query, id).
		Scan(&p.ID, &p.WalletHash, &p.PublicKey, &p.Address, &p.SecretHash, &p.IsArbiter, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Peer{}, ErrNotFound
		}
		return Peer{}, fmt.Errorf("peer: get by id: %w", err)
	}
	return p, nil
}

// OwnsPaymentMethods reports whether every listed payment method belongs to
// the peer with the given wallet hash.
func (r *PGRepository) OwnsPaymentMethods(ctx context.Context, walletHash string, methodIDs []string) (bool, error) {
	if len(methodIDs) == 0 {
		return false, nil
	}

	const query = `
		SELECT COUNT(*)
		FROM payment_methods pm
		JOIN peers p ON p.id = pm.owner_id
		WHERE pm.id = ANY($1) AND p.wallet_hash = $2
	`

	var owned int
	if err := r.pool.QueryRow(ctx, query, methodIDs, walletHash).Scan(&owned); err != nil {
		return false, fmt.Errorf("peer: verify payment methods: %w", err)
	}
	return owned == len(methodIDs), nil
}
