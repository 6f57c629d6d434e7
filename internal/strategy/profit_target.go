package strategy

import "github.com/shopspring/decimal"

var one = decimal.NewFromInt(1)

// ProfitTarget buys once when flat and sells when the price has risen
// ProfitPct above the last buy.
type ProfitTarget struct {
	Quantity    decimal.Decimal
	ProfitPct   decimal.Decimal
	EpsilonUp   decimal.Decimal
	EpsilonDown decimal.Decimal
	PriceTick   decimal.Decimal // zero disables rounding; buys round up, sells down
}

func NewProfitTarget(quantity, profitPct decimal.Decimal) ProfitTarget {
	return ProfitTarget{
		Quantity:    quantity,
		ProfitPct:   profitPct,
		EpsilonUp:   decimal.RequireFromString("0.0001"),
		EpsilonDown: decimal.RequireFromString("0.0001"),
	}
}

func (p ProfitTarget) Decide(snapshot MarketSnapshot) TradeIntent {
	if !snapshot.Price.IsPositive() {
		return TradeIntent{Action: Hold, Reason: "no_price"}
	}

	if !snapshot.HasPosition {
		price := snapshot.Price.Mul(one.Add(p.EpsilonUp))
		return TradeIntent{
			Action: Buy,
			Qty:    p.Quantity,
			Price:  ceilToTick(price, p.PriceTick),
			Reason: "no_position",
		}
	}

	target := p.Target(snapshot.LastBuyPrice)
	if snapshot.Price.GreaterThanOrEqual(target) {
		price := snapshot.Price.Mul(one.Sub(p.EpsilonDown))
		return TradeIntent{
			Action: Sell,
			Qty:    p.Quantity,
			Price:  floorToTick(price, p.PriceTick),
			Reason: "target_reached",
		}
	}

	return TradeIntent{Action: Hold, Reason: "below_target"}
}

// Target is the price at which a position bought at lastBuy is sold.
func (p ProfitTarget) Target(lastBuy decimal.Decimal) decimal.Decimal {
	return lastBuy.Mul(one.Add(p.ProfitPct))
}

func floorToTick(price, tick decimal.Decimal) decimal.Decimal {
	if !tick.IsPositive() {
		return price
	}
	return price.Div(tick).Floor().Mul(tick)
}

func ceilToTick(price, tick decimal.Decimal) decimal.Decimal {
	if !tick.IsPositive() {
		return price
	}
	return price.Div(tick).Ceil().Mul(tick)
}
