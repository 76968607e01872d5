package contract

import (
	"context"

	"escrowflow/order"
	"escrowflow/peer"
)

// Store is the persistence surface Generator needs.
type Store interface {
	BindArbiter(ctx context.Context, orderID, arbiterID string) (Contract, bool, error)
}

// RoleSource resolves the trade parties of an order.
type RoleSource interface {
	Roles(ctx context.Context, orderID string) (order.TradeRoles, error)
}

// DeriveRequest carries everything the escrow script needs to compute an
// address deterministically.
type DeriveRequest struct {
	OrderID       string
	ContractID    string
	ArbiterPubkey string
	BuyerPubkey   string
	SellerPubkey  string
	Timestamp     int64
}

// DeriveFunc schedules an asynchronous address derivation.
type DeriveFunc func(ctx context.Context, req DeriveRequest)

// Generator decides whether an order needs a fresh escrow address and, when
// it does, hands the derivation off to the queue. Binding the same arbiter
// to an already derived contract is a no-op apart from re-stamping the
// order's arbiter.
type Generator struct {
	store  Store
	roles  RoleSource
	derive DeriveFunc
}

func NewGenerator(store Store, roles RoleSource, derive DeriveFunc) *Generator {
	return &Generator{store: store, roles: roles, derive: derive}
}

// Result reports the contract state after a generate call. Address is nil
// while a derivation is still pending.
type Result struct {
	Contract Contract
	Pending  bool
}

// Generate binds arbiter to the order's contract, creating or invalidating
// the contract as needed, and enqueues a derivation when the address must be
// recomputed.
func (g *Generator) Generate(ctx context.Context, orderID string, arbiter peer.Peer) (Result, error) {
	if !arbiter.IsArbiter {
		return Result{}, order.Invalid("peer %s is not an arbiter", arbiter.ID)
	}

	roles, err := g.roles.Roles(ctx, orderID)
	if err != nil {
		return Result{}, err
	}
	if arbiter.WalletHash == roles.BuyerWallet || arbiter.WalletHash == roles.SellerWallet {
		return Result{}, order.Invalid("arbiter may not be a party to the trade")
	}
	if arbiter.PublicKey == "" || roles.BuyerPubkey == "" || roles.SellerPubkey == "" {
		return Result{}, order.Invalid("contract parameters are incomplete")
	}

	c, regenerate, err := g.store.BindArbiter(ctx, orderID, arbiter.ID)
	if err != nil {
		return Result{}, err
	}

	if regenerate {
		g.derive(ctx, DeriveRequest{
			OrderID:       orderID,
			ContractID:    c.ID,
			ArbiterPubkey: arbiter.PublicKey,
			BuyerPubkey:   roles.BuyerPubkey,
			SellerPubkey:  roles.SellerPubkey,
			Timestamp:     c.CreatedAt.Unix(),
		})
	}

	return Result{Contract: c, Pending: regenerate}, nil
}
