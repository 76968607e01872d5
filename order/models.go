package order

import (
	"time"

	"github.com/shopspring/decimal"

	"escrowflow/ad"
)

// Order represents one trade instance against an ad. The trade terms are
// frozen onto the order at creation time; the ad row may change afterwards.
// Orders are never hard-deleted; their lifecycle lives in the status history.
type Order struct {
	ID           string
	AdID         string
	CreatorID    string
	TradeType    ad.TradeType
	Price        decimal.Decimal
	CryptoAmount decimal.Decimal
	ArbiterID    *string
	TimeDuration time.Duration
	ExpiresAt    *time.Time
	CreatedAt    time.Time
}

// Status is one immutable entry in an order's audit trail. The most recent
// entry determines the order's current status.
type Status struct {
	ID        int64
	OrderID   string
	Status    StatusType
	CreatedAt time.Time
}

// TradeRoles resolves who is who for an order. For a SELL ad the seller is
// the ad owner and the buyer is the order creator; for a BUY ad the sides
// are reversed.
type TradeRoles struct {
	BuyerWallet   string
	SellerWallet  string
	CreatorWallet string
	BuyerAddress  string
	SellerAddress string
	BuyerPubkey   string
	SellerPubkey  string

	ArbiterWallet  string
	ArbiterAddress string
	ArbiterPubkey  string
}
