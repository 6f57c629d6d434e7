package risk

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"cdcbot/internal/strategy"
)

var (
	ErrKillSwitch          = errors.New("kill_switch_enabled")
	ErrInvalidQuantity     = errors.New("invalid_quantity")
	ErrInvalidPrice        = errors.New("invalid_price")
	ErrOpenOrderExists     = errors.New("open_order_exists")
	ErrCooldownActive      = errors.New("cooldown_active")
	ErrMaxNotionalExceeded = errors.New("max_notional_exceeded")
)

type RiskContext struct {
	Now               time.Time
	OpenOrderCount    int
	LastTradeTime     time.Time
	MaxNotional       decimal.Decimal // zero disables the check
	Cooldown          time.Duration
	KillSwitch        bool
	BlockOnOpenOrders bool
}

type ApprovedIntent struct {
	Intent strategy.TradeIntent
	Reason string
}

type Gate struct {
	logger *zap.Logger
}

func NewGate(logger *zap.Logger) Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return Gate{logger: logger.Named("risk")}
}

// Evaluate approves HOLD unconditionally. BUY and SELL must pass every check
// in order; the first failure is returned as one of the package errors.
func (g Gate) Evaluate(intent strategy.TradeIntent, ctx RiskContext) (ApprovedIntent, error) {
	if intent.Action == strategy.Hold {
		return ApprovedIntent{Intent: intent, Reason: "hold"}, nil
	}
	logger := g.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	notional := intent.Price.Mul(intent.Qty)
	logger.Info("risk evaluation",
		zap.String("intent", string(intent.Action)),
		zap.Stringer("qty", intent.Qty),
		zap.Stringer("price", intent.Price),
		zap.Stringer("notional", notional),
	)

	reject := func(err error, fields ...zap.Field) (ApprovedIntent, error) {
		logger.Info("risk rejected", append([]zap.Field{zap.String("reason", err.Error())}, fields...)...)
		return ApprovedIntent{}, err
	}

	if ctx.KillSwitch {
		return reject(ErrKillSwitch)
	}
	if !intent.Qty.IsPositive() {
		return reject(ErrInvalidQuantity, zap.Stringer("qty", intent.Qty))
	}
	if !intent.Price.IsPositive() {
		return reject(ErrInvalidPrice, zap.Stringer("price", intent.Price))
	}
	if ctx.BlockOnOpenOrders && ctx.OpenOrderCount > 0 {
		return reject(ErrOpenOrderExists, zap.Int("count", ctx.OpenOrderCount))
	}
	if ctx.Cooldown > 0 && !ctx.LastTradeTime.IsZero() {
		if elapsed := ctx.Now.Sub(ctx.LastTradeTime); elapsed < ctx.Cooldown {
			return reject(ErrCooldownActive, zap.Duration("remaining", ctx.Cooldown-elapsed))
		}
	}
	if ctx.MaxNotional.IsPositive() && notional.GreaterThan(ctx.MaxNotional) {
		return reject(ErrMaxNotionalExceeded, zap.Stringer("notional", notional), zap.Stringer("max", ctx.MaxNotional))
	}

	logger.Info("risk approved",
		zap.String("intent", string(intent.Action)),
		zap.Stringer("qty", intent.Qty),
		zap.String("reason", intent.Reason),
	)
	return ApprovedIntent{Intent: intent, Reason: "approved"}, nil
}
