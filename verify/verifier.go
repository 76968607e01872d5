package verify

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Action identifies what an on-chain transaction is supposed to do for an
// escrow contract.
type Action string

const (
	ActionFund    Action = "FUND"
	ActionEscrow  Action = "ESCROW"
	ActionRelease Action = "RELEASE"
	ActionRefund  Action = "REFUND"
)

// TxPayload mirrors the JSON the escrow script runner emits for a raw
// transaction lookup. Valid and Error report the runner's own verdict before
// any protocol rules are applied.
type TxPayload struct {
	Valid   bool      `json:"valid"`
	Error   string    `json:"error"`
	Details TxDetails `json:"details"`
}

type TxDetails struct {
	TxID    string    `json:"txid"`
	Inputs  []TxPoint `json:"inputs"`
	Outputs []TxPoint `json:"outputs"`
}

// TxPoint is one transaction input or output. Value is a raw satoshi amount.
type TxPoint struct {
	Address string `json:"address"`
	Value   string `json:"value"`
}

// Params carries the order context a transaction is checked against. The
// role fields are on-chain addresses.
type Params struct {
	ContractAddress string
	CryptoAmount    decimal.Decimal
	Arbiter         string
	Servicer        string
	Buyer           string
	Seller          string
}

// Recipient is one verified transaction output, value in coin units.
type Recipient struct {
	Address string `json:"address"`
	Value   string `json:"value"`
}

// Verdict is the outcome of verifying one transaction.
type Verdict struct {
	Valid   bool
	Err     string
	Outputs []Recipient
}

// Transaction checks a raw transaction against the protocol rules for the
// given action. It is pure: everything it needs arrives through its
// arguments, and the fee schedule is read per call.
func Transaction(action Action, p Params, fees Fees, tx TxPayload) Verdict {
	if !tx.Valid {
		return Verdict{Err: tx.Error}
	}
	if len(tx.Details.Inputs) == 0 || len(tx.Details.Outputs) == 0 {
		return Verdict{Err: "transaction inputs or outputs are empty"}
	}

	switch action {
	case ActionEscrow:
		return verifyEscrow(p, fees, tx)
	case ActionRelease, ActionRefund:
		return verifyTransfer(action, p, fees, tx)
	default:
		return Verdict{Err: fmt.Sprintf("unsupported action %q", action)}
	}
}

// verifyEscrow requires exactly one output paying the contract address the
// traded amount plus the trading fee. The scan stops at the contract output;
// mismatches elsewhere are not this check's business.
func verifyEscrow(p Params, fees Fees, tx TxPayload) Verdict {
	expected := fees.ExpectedEscrowValue(p.CryptoAmount)

	for _, out := range tx.Details.Outputs {
		if out.Address != p.ContractAddress {
			continue
		}
		value, err := coinValue(out.Value)
		if err != nil {
			return Verdict{Err: fmt.Sprintf("malformed output value %q", out.Value)}
		}
		if !value.Equal(expected) {
			return Verdict{Err: fmt.Sprintf("escrow output value %s does not match expected value %s", value, expected)}
		}
		return Verdict{
			Valid:   true,
			Outputs: []Recipient{{Address: out.Address, Value: value.String()}},
		}
	}

	return Verdict{Err: "contract address not found in tx outputs"}
}

// verifyTransfer validates a RELEASE or REFUND. Funds must originate from
// the contract, and the outputs must pay the arbiter and servicer their
// exact fees plus the buyer (release) or seller (refund) the traded amount.
// The scan short-circuits on the first value mismatch.
func verifyTransfer(action Action, p Params, fees Fees, tx TxPayload) Verdict {
	fromContract := false
	for _, in := range tx.Details.Inputs {
		if in.Address == p.ContractAddress {
			fromContract = true
			break
		}
	}
	if !fromContract {
		return Verdict{Err: "contract address not found in tx inputs"}
	}

	arbitrationFee := fees.ArbitrationFee()
	serviceFee := fees.ServiceFee()
	expected := fees.ExpectedTransferValue(p.CryptoAmount)

	var arbiterFound, servicerFound, buyerFound, sellerFound bool
	outputs := make([]Recipient, 0, len(tx.Details.Outputs))

	for _, out := range tx.Details.Outputs {
		value, err := coinValue(out.Value)
		if err != nil {
			return Verdict{Err: fmt.Sprintf("malformed output value %q", out.Value), Outputs: outputs}
		}
		outputs = append(outputs, Recipient{Address: out.Address, Value: value.String()})

		if out.Address == p.Arbiter {
			if !value.Equal(arbitrationFee) {
				return Verdict{Err: "incorrect arbiter output value", Outputs: outputs}
			}
			arbiterFound = true
		}
		if out.Address == p.Servicer {
			if !value.Equal(serviceFee) {
				return Verdict{Err: "incorrect servicer output value", Outputs: outputs}
			}
			servicerFound = true
		}
		if action == ActionRelease && out.Address == p.Buyer {
			if !value.Equal(expected) {
				return Verdict{Err: "incorrect buyer output value", Outputs: outputs}
			}
			buyerFound = true
		}
		if action == ActionRefund && out.Address == p.Seller {
			if !value.Equal(expected) {
				return Verdict{Err: "incorrect seller output value", Outputs: outputs}
			}
			sellerFound = true
		}
	}

	if role := missingRole(action, arbiterFound, servicerFound, buyerFound, sellerFound); role != "" {
		return Verdict{Err: fmt.Sprintf("missing or incorrect %s output", role), Outputs: outputs}
	}

	return Verdict{Valid: true, Outputs: outputs}
}

func missingRole(action Action, arbiter, servicer, buyer, seller bool) string {
	switch {
	case !arbiter:
		return "arbiter"
	case !servicer:
		return "servicer"
	case action == ActionRelease && !buyer:
		return "buyer"
	case action == ActionRefund && !seller:
		return "seller"
	}
	return ""
}
