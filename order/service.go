package order

import (
	"context"
	"errors"
	"time"

	"escrowflow/ad"
	"escrowflow/peer"
)

// Store defines the order data access the service requires.
type Store interface {
	Create(ctx context.Context, params CreateParams) (Order, error)
	Get(ctx context.Context, id string) (Order, error)
	Roles(ctx context.Context, orderID string) (TradeRoles, error)
	ListStatuses(ctx context.Context, orderID string) ([]Status, error)
}

// StatusRecorder abstracts the status state machine for testability.
type StatusRecorder interface {
	Transition(ctx context.Context, orderID string, next StatusType) (Status, error)
}

// FundingRecorder records the seller's funding transaction intent against
// the order's escrow contract.
type FundingRecorder interface {
	RecordFunding(ctx context.Context, orderID, txid string) error
}

// PeerDirectory resolves callers and their payment methods.
type PeerDirectory interface {
	GetByWallet(ctx context.Context, walletHash string) (peer.Peer, error)
	OwnsPaymentMethods(ctx context.Context, walletHash string, methodIDs []string) (bool, error)
}

// AdSource looks up the ad an order is placed against.
type AdSource interface {
	GetByID(ctx context.Context, id string) (ad.Ad, error)
}

// Service applies peer actions to orders. Every action is gated by a
// permission predicate comparing the caller's wallet hash against the wallet
// of the role the action requires.
type Service struct {
	store    Store
	statuses StatusRecorder
	funding  FundingRecorder
	peers    PeerDirectory
	ads      AdSource
}

func NewService(store Store, statuses StatusRecorder, funding FundingRecorder, peers PeerDirectory, ads AdSource) *Service {
	return &Service{
		store:    store,
		statuses: statuses,
		funding:  funding,
		peers:    peers,
		ads:      ads,
	}
}

// CreateRequest carries the fields a peer supplies when ordering against an ad.
type CreateRequest struct {
	AdID             string
	CryptoAmount     string
	TimeDuration     time.Duration
	PaymentMethodIDs []string
}

// Create places a new order. Ad owners cannot order against their own ads
// and arbiters cannot trade at all.
func (s *Service) Create(ctx context.Context, callerWallet string, req CreateRequest) (Order, error) {
	caller, err := s.peers.GetByWallet(ctx, callerWallet)
	if err != nil {
		if errors.Is(err, peer.ErrNotFound) {
			return Order{}, Invalid("unknown caller wallet")
		}
		return Order{}, err
	}
	if caller.IsArbiter {
		return Order{}, Invalid("arbiters may not create orders")
	}

	adRow, err := s.ads.GetByID(ctx, req.AdID)
	if err != nil {
		if errors.Is(err, ad.ErrNotFound) {
			return Order{}, Invalid("ad %s does not exist", req.AdID)
		}
		return Order{}, err
	}
	if adRow.OwnerID == caller.ID {
		return Order{}, Invalid("ad owner may not create an order for their own ad")
	}

	if len(req.PaymentMethodIDs) > 0 {
		owned, err := s.peers.OwnsPaymentMethods(ctx, callerWallet, req.PaymentMethodIDs)
		if err != nil {
			return Order{}, err
		}
		if !owned {
			return Order{}, Invalid("payment method not owned by caller")
		}
	}

	return s.store.Create(ctx, CreateParams{
		AdID:             adRow.ID,
		CreatorID:        caller.ID,
		TradeType:        adRow.TradeType,
		Price:            adRow.Price.String(),
		CryptoAmount:     req.CryptoAmount,
		TimeDuration:     req.TimeDuration,
		PaymentMethodIDs: req.PaymentMethodIDs,
	})
}

// Confirm records the seller's funding transaction and advances the order to
// CONFIRMED. Only the seller may confirm, and only SELL-side trades confirm
// through this path; BUY-side orders are confirmed when escrow verifies.
func (s *Service) Confirm(ctx context.Context, callerWallet, orderID, txid string) (Status, error) {
	ord, err := s.store.Get(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Status{}, Invalid("order %s does not exist", orderID)
		}
		return Status{}, err
	}
	if ord.TradeType != ad.TradeTypeSell {
		return Status{}, Invalid("order trade type is not %s", ad.TradeTypeSell)
	}

	roles, err := s.store.Roles(ctx, orderID)
	if err != nil {
		return Status{}, err
	}
	if callerWallet != roles.SellerWallet {
		return Status{}, Invalid("caller must be seller")
	}

	if txid == "" {
		return Status{}, Invalid("txid is required")
	}
	if err := s.funding.RecordFunding(ctx, orderID, txid); err != nil {
		return Status{}, err
	}

	return s.statuses.Transition(ctx, orderID, StatusConfirmed)
}

// BuyerConfirmPayment marks the fiat side as sent. Only the buyer may do this.
func (s *Service) BuyerConfirmPayment(ctx context.Context, callerWallet, orderID string) (Status, error) {
	roles, err := s.store.Roles(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Status{}, Invalid("order %s does not exist", orderID)
		}
		return Status{}, err
	}
	if callerWallet != roles.BuyerWallet {
		return Status{}, Invalid("caller must be buyer")
	}

	return s.statuses.Transition(ctx, orderID, StatusPaidPending)
}

// SellerConfirmPayment acknowledges fiat receipt. Only the seller may do this.
func (s *Service) SellerConfirmPayment(ctx context.Context, callerWallet, orderID string) (Status, error) {
	roles, err := s.store.Roles(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Status{}, Invalid("order %s does not exist", orderID)
		}
		return Status{}, err
	}
	if callerWallet != roles.SellerWallet {
		return Status{}, Invalid("caller must be seller")
	}

	return s.statuses.Transition(ctx, orderID, StatusPaid)
}

// History returns the order's full status trail, oldest first. Any peer may
// read it; the trail itself is the order detail view's source of truth.
func (s *Service) History(ctx context.Context, orderID string) ([]Status, error) {
	if _, err := s.store.Get(ctx, orderID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, Invalid("order %s does not exist", orderID)
		}
		return nil, err
	}
	return s.store.ListStatuses(ctx, orderID)
}

// Cancel voids the order. Only the order creator may cancel, and the
// progression rule decides whether the current status still allows it.
func (s *Service) Cancel(ctx context.Context, callerWallet, orderID string) (Status, error) {
	roles, err := s.store.Roles(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Status{}, Invalid("order %s does not exist", orderID)
		}
		return Status{}, err
	}
	if callerWallet != roles.CreatorWallet {
		return Status{}, Invalid("caller must be order creator")
	}

	return s.statuses.Transition(ctx, orderID, StatusCanceled)
}
