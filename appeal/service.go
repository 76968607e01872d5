package appeal

import (
	"context"

	"escrowflow/order"
	"escrowflow/peer"
)

// Store is the persistence surface Service needs. CreateWithTransition
// commits the appealed status and the appeal row as one unit.
type Store interface {
	CreateWithTransition(ctx context.Context, orderID, ownerID string, typ Type, next order.StatusType, reasons []string) (Appeal, order.Status, error)
	GetByOrder(ctx context.Context, orderID string) (Appeal, error)
}

// RoleSource resolves the trade parties of an order.
type RoleSource interface {
	Roles(ctx context.Context, orderID string) (order.TradeRoles, error)
}

// PeerDirectory resolves callers by wallet hash.
type PeerDirectory interface {
	GetByWallet(ctx context.Context, walletHash string) (peer.Peer, error)
}

// Service raises appeals. Resolution happens on settlement, not here.
type Service struct {
	store Store
	roles RoleSource
	peers PeerDirectory
}

func NewService(store Store, roles RoleSource, peers PeerDirectory) *Service {
	return &Service{store: store, roles: roles, peers: peers}
}

// Raise files an appeal on behalf of a trade party and moves the order into
// the matching appealed status. The status transition and the appeal row
// commit together, so a refused transition leaves no appeal row and a
// duplicate open appeal leaves the status trail untouched.
func (s *Service) Raise(ctx context.Context, callerWallet, orderID string, typ Type, reasons []string) (Appeal, error) {
	next, ok := typ.AppealedStatus()
	if !ok {
		return Appeal{}, order.Invalid("unknown appeal type %s", typ)
	}

	roles, err := s.roles.Roles(ctx, orderID)
	if err != nil {
		return Appeal{}, err
	}
	if callerWallet != roles.BuyerWallet && callerWallet != roles.SellerWallet {
		return Appeal{}, order.Invalid("only a trade party may appeal order %s", orderID)
	}

	caller, err := s.peers.GetByWallet(ctx, callerWallet)
	if err != nil {
		return Appeal{}, err
	}

	a, _, err := s.store.CreateWithTransition(ctx, orderID, caller.ID, typ, next, reasons)
	return a, err
}

// Get returns the latest appeal for an order.
func (s *Service) Get(ctx context.Context, orderID string) (Appeal, error) {
	return s.store.GetByOrder(ctx, orderID)
}
