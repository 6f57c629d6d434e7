package strategy

import (
	"time"

	"github.com/shopspring/decimal"
)

type Action string

const (
	Hold Action = "HOLD"
	Buy  Action = "BUY"
	Sell Action = "SELL"
)

// MarketSnapshot is everything a strategy sees in one cycle. HasPosition is
// true when a BUY was found in recent trade history; LastBuyPrice is only
// meaningful then.
type MarketSnapshot struct {
	Timestamp    time.Time
	Instrument   string
	Price        decimal.Decimal
	HasPosition  bool
	LastBuyPrice decimal.Decimal
}

type TradeIntent struct {
	Action Action
	Qty    decimal.Decimal
	Price  decimal.Decimal
	Reason string
}

type Strategy interface {
	Decide(snapshot MarketSnapshot) TradeIntent
}
