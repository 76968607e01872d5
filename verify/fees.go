package verify

import "github.com/shopspring/decimal"

// coinPlaces is the native precision of the traded coin. All value
// comparisons happen after quantizing to this many decimal places.
const coinPlaces = 8

// Fees carries the platform fee schedule in satoshis. It is injected into
// every verification call rather than read from process-wide state, so a fee
// change only affects transactions verified after the change.
type Fees struct {
	TradingFeeSats     int64
	ArbitrationFeeSats int64
	ServiceFeeSats     int64
}

// TradingFee returns the order funding fee in coin units.
func (f Fees) TradingFee() decimal.Decimal {
	return decimal.New(f.TradingFeeSats, -coinPlaces)
}

// ArbitrationFee returns the arbiter payout in coin units.
func (f Fees) ArbitrationFee() decimal.Decimal {
	return decimal.New(f.ArbitrationFeeSats, -coinPlaces)
}

// ServiceFee returns the platform payout in coin units.
func (f Fees) ServiceFee() decimal.Decimal {
	return decimal.New(f.ServiceFeeSats, -coinPlaces)
}

// ExpectedEscrowValue is the amount a funding transaction must lock into the
// escrow contract: the traded amount plus the trading fee.
func (f Fees) ExpectedEscrowValue(cryptoAmount decimal.Decimal) decimal.Decimal {
	return cryptoAmount.Add(f.TradingFee())
}

// ExpectedTransferValue is the amount the buyer (release) or seller (refund)
// must receive. Fees are paid as separate outputs, not deducted from it.
func (f Fees) ExpectedTransferValue(cryptoAmount decimal.Decimal) decimal.Decimal {
	return cryptoAmount.Round(coinPlaces)
}

// coinValue converts a raw satoshi output value into coin units, quantized
// before the division so malformed sub-satoshi inputs fail comparisons
// instead of drifting.
func coinValue(raw string) (decimal.Decimal, error) {
	sats, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return sats.Round(coinPlaces).Shift(-coinPlaces), nil
}
