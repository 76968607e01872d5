package contract

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"escrowflow/order"
	"escrowflow/verify"
)

var (
	// ErrNotFound is returned when no contract row exists.
	ErrNotFound = errors.New("contract: not found")
	// ErrTransactionNotFound is returned when no transaction record exists
	// for a contract/action pair awaiting verification.
	ErrTransactionNotFound = errors.New("contract: transaction not found")
)

type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) Get(ctx context.Context, id string) (Contract, error) {
	const query = `SELECT id, order_id, address, created_at FROM contracts WHERE id = $1`

	var c Contract
	err := r.pool.QueryRow(ctx, query, id).Scan(&c.ID, &c.OrderID, &c.Address, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Contract{}, ErrNotFound
		}
		return Contract{}, fmt.Errorf("contract: get: %w", err)
	}
	return c, nil
}

func (r *PGRepository) GetByOrder(ctx context.Context, orderID string) (Contract, error) {
	const query = `SELECT id, order_id, address, created_at FROM contracts WHERE order_id = $1`

	var c Contract
	err := r.pool.QueryRow(ctx, query, orderID).Scan(&c.ID, &c.OrderID, &c.Address, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Contract{}, ErrNotFound
		}
		return Contract{}, fmt.Errorf("contract: get by order: %w", err)
	}
	return c, nil
}

// BindArbiter applies the regeneration decision atomically with the read
// that made it: the contract row stays locked from the moment its address is
// inspected until the address is nulled and the arbiter persisted, so two
// concurrent requests cannot both trigger a derivation for one order.
// The order's arbiter is updated regardless of whether regeneration occurred.
func (r *PGRepository) BindArbiter(ctx context.Context, orderID, arbiterID string) (Contract, bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Contract{}, false, fmt.Errorf("contract: begin bind: %w", err)
	}
	defer tx.Rollback(ctx)

	var boundArbiter *string
	if err := tx.QueryRow(ctx, `SELECT arbiter_id FROM orders WHERE id=$1 FOR UPDATE`, orderID).Scan(&boundArbiter); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Contract{}, false, order.Invalid("order %s does not exist", orderID)
		}
		return Contract{}, false, fmt.Errorf("contract: lock order: %w", err)
	}

	var (
		c          Contract
		regenerate bool
	)
	err = tx.QueryRow(ctx, `SELECT id, order_id, address, created_at FROM contracts WHERE order_id=$1 FOR UPDATE`, orderID).
		Scan(&c.ID, &c.OrderID, &c.Address, &c.CreatedAt)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		if err := tx.QueryRow(ctx, `INSERT INTO contracts (order_id) VALUES ($1) RETURNING id, order_id, address, created_at`, orderID).
			Scan(&c.ID, &c.OrderID, &c.Address, &c.CreatedAt); err != nil {
			return Contract{}, false, fmt.Errorf("contract: create: %w", err)
		}
		regenerate = true
	case err != nil:
		return Contract{}, false, fmt.Errorf("contract: lock contract: %w", err)
	default:
		if needsRegeneration(c.Address, boundArbiter, arbiterID) {
			if _, err := tx.Exec(ctx, `UPDATE contracts SET address=NULL WHERE id=$1`, c.ID); err != nil {
				return Contract{}, false, fmt.Errorf("contract: null address: %w", err)
			}
			c.Address = nil
			regenerate = true
		}
	}

	if _, err := tx.Exec(ctx, `UPDATE orders SET arbiter_id=$1 WHERE id=$2`, arbiterID, orderID); err != nil {
		return Contract{}, false, fmt.Errorf("contract: bind arbiter: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Contract{}, false, fmt.Errorf("contract: commit bind: %w", err)
	}

	return c, regenerate, nil
}

// needsRegeneration reports whether the escrow address must be rederived:
// never derived yet, no arbiter previously bound, or the arbiter changed.
func needsRegeneration(address, boundArbiter *string, arbiterID string) bool {
	return address == nil || boundArbiter == nil || *boundArbiter != arbiterID
}

// SetAddress stores a freshly derived escrow address.
func (r *PGRepository) SetAddress(ctx context.Context, contractID, address string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE contracts SET address=$1 WHERE id=$2`, address, contractID)
	if err != nil {
		return fmt.Errorf("contract: set address: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordFunding inserts the seller's FUND transaction record. The contract
// must exist and have a derived address first.
func (r *PGRepository) RecordFunding(ctx context.Context, orderID, txid string) error {
	c, err := r.GetByOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return order.Invalid("order contract does not exist")
		}
		return err
	}
	if c.Address == nil {
		return order.Invalid("order contract does not exist")
	}

	const query = `
		INSERT INTO transactions (contract_id, action, txid, valid, verifying)
		VALUES ($1, $2, $3, false, false)
	`
	if _, err := r.pool.Exec(ctx, query, c.ID, verify.ActionFund, txid); err != nil {
		return fmt.Errorf("contract: record funding: %w", err)
	}
	return nil
}

// CreatePending registers a transaction awaiting async verification.
func (r *PGRepository) CreatePending(ctx context.Context, contractID string, action verify.Action) (Transaction, error) {
	const query = `
		INSERT INTO transactions (contract_id, action, valid, verifying)
		VALUES ($1, $2, false, true)
		RETURNING id, contract_id, action, COALESCE(txid, ''), valid, verifying, created_at
	`

	var t Transaction
	err := r.pool.QueryRow(ctx, query, contractID, action).
		Scan(&t.ID, &t.ContractID, &t.Action, &t.TxID, &t.Valid, &t.Verifying, &t.CreatedAt)
	if err != nil {
		return Transaction{}, fmt.Errorf("contract: create pending transaction: %w", err)
	}
	return t, nil
}

// LatestForAction returns the most recent transaction recorded for the
// contract/action pair.
func (r *PGRepository) LatestForAction(ctx context.Context, contractID string, action verify.Action) (Transaction, error) {
	const query = `
		SELECT id, contract_id, action, COALESCE(txid, ''), valid, verifying, created_at
		FROM transactions
		WHERE contract_id = $1 AND action = $2
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`

	var t Transaction
	err := r.pool.QueryRow(ctx, query, contractID, action).
		Scan(&t.ID, &t.ContractID, &t.Action, &t.TxID, &t.Valid, &t.Verifying, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, ErrTransactionNotFound
		}
		return Transaction{}, fmt.Errorf("contract: latest transaction: %w", err)
	}
	return t, nil
}

// MarkVerified stamps a transaction valid and attaches its verified outputs
// in one transaction.
func (r *PGRepository) MarkVerified(ctx context.Context, transactionID, txid string, outputs []verify.Recipient) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("contract: begin mark verified: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE transactions
		SET txid=$1, valid=true, verifying=false
		WHERE id=$2
	`, txid, transactionID)
	if err != nil {
		return fmt.Errorf("contract: mark verified: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}

	for _, out := range outputs {
		if _, err := tx.Exec(ctx, `
			INSERT INTO recipients (transaction_id, address, value)
			VALUES ($1, $2, $3)
		`, transactionID, out.Address, out.Value); err != nil {
			return fmt.Errorf("contract: insert recipient: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("contract: commit mark verified: %w", err)
	}
	return nil
}

// MarkInvalid records a failed verification. The txid is kept when the
// runner managed to identify the transaction.
func (r *PGRepository) MarkInvalid(ctx context.Context, transactionID, txid string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE transactions
		SET txid=NULLIF($1, ''), valid=false, verifying=false
		WHERE id=$2
	`, txid, transactionID)
	if err != nil {
		return fmt.Errorf("contract: mark invalid: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

// Recipients returns the verified outputs attached to a transaction.
func (r *PGRepository) Recipients(ctx context.Context, transactionID string) ([]Recipient, error) {
	const query = `
		SELECT id, transaction_id, address, value
		FROM recipients
		WHERE transaction_id = $1
		ORDER BY id ASC
	`

	rows, err := r.pool.Query(ctx, query, transactionID)
	if err != nil {
		return nil, fmt.Errorf("contract: list recipients: %w", err)
	}
	defer rows.Close()

	out := make([]Recipient, 0, 4)
	for rows.Next() {
		var rec Recipient
		if err := rows.Scan(&rec.ID, &rec.TransactionID, &rec.Address, &rec.Value); err != nil {
			return nil, fmt.Errorf("contract: scan recipient: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("contract: iterate recipients: %w", err)
	}
	return out, nil
}
