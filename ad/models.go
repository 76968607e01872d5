package ad

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeType says which side of the trade the ad owner takes.
type TradeType string

const (
	TradeTypeSell TradeType = "SELL"
	TradeTypeBuy  TradeType = "BUY"
)

// Ad is a standing offer to buy or sell crypto at a price, owned by a peer.
type Ad struct {
	ID             string
	OwnerID        string
	TradeType      TradeType
	Price          decimal.Decimal
	CryptoCurrency string
	FiatCurrency   string
	CreatedAt      time.Time
}
