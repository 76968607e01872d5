package contract

import (
	"time"

	"escrowflow/verify"
)

// Contract is the escrow contract bound one-to-one to an order. Address is
// nil until derivation completes, and is nulled again whenever the arbiter
// changes; a nulled address must never be reused by callers.
type Contract struct {
	ID        string
	OrderID   string
	Address   *string
	CreatedAt time.Time
}

// Transaction records an on-chain action against a contract. Verifying is
// true while the async verification pipeline still owns the record.
type Transaction struct {
	ID         string
	ContractID string
	Action     verify.Action
	TxID       string
	Valid      bool
	Verifying  bool
	CreatedAt  time.Time
}

// Recipient is one output of a verified transaction, value in coin units.
type Recipient struct {
	ID            int64
	TransactionID string
	Address       string
	Value         string
}
