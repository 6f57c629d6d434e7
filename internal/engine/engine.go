package engine

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"cdcbot/internal/broker"
	"cdcbot/internal/config"
	"cdcbot/internal/exchange"
	"cdcbot/internal/risk"
	"cdcbot/internal/state"
	"cdcbot/internal/strategy"
)

// Exchange is the part of broker.Client a strategy cycle needs.
type Exchange interface {
	Price(ctx context.Context, instrument string) (decimal.Decimal, error)
	RecentTrades(ctx context.Context, instrument string, limit int) ([]broker.Fill, error)
	PlaceLimitOrder(ctx context.Context, req broker.OrderRequest) (broker.OrderRef, error)
	OpenOrders(ctx context.Context, instrument string) ([]broker.OrderRef, error)
}

type nopSink struct{}

func (nopSink) RunID() string   { return "" }
func (nopSink) Append(Decision) {}

type Engine struct {
	cfg       config.Config
	strategy  strategy.Strategy
	gate      risk.Gate
	exchange  Exchange
	state     *state.Store
	decisions DecisionSink
	logger    *zap.Logger
	runID     string
	now       func() time.Time
}

func New(cfg config.Config, strategy strategy.Strategy, gate risk.Gate, ex Exchange, stateStore *state.Store, decisions DecisionSink, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if decisions == nil {
		decisions = nopSink{}
	}
	return &Engine{
		cfg:       cfg,
		strategy:  strategy,
		gate:      gate,
		exchange:  ex,
		state:     stateStore,
		decisions: decisions,
		logger:    logger.Named("engine"),
		runID:     decisions.RunID(),
		now:       time.Now,
	}
}

// Run executes a cycle right away and then once per interval until ctx is
// done. An in-flight cycle always completes before Run returns.
func (e *Engine) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.Cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.Cycle(ctx)
		}
	}
}

// Cycle performs one fetch, decide, gate and place pass. Every outcome,
// including fetch failures, is returned and recorded.
func (e *Engine) Cycle(ctx context.Context) (decision Decision) {
	instrument := e.cfg.Instrument
	decision = Decision{
		RunID:      e.runID,
		Timestamp:  e.now().UTC(),
		Instrument: instrument,
	}
	defer func() { e.record(decision) }()

	price, err := e.exchange.Price(ctx, instrument)
	if err != nil {
		decision.Result = ResultPriceUnavailable
		decision.RejectReason = err.Error()
		return decision
	}
	decision.Price = price
	e.state.SetPrice(price)

	fills, err := e.exchange.RecentTrades(ctx, instrument, e.cfg.TradesLimit)
	if err != nil {
		decision.Result = ResultTradesUnavailable
		decision.RejectReason = err.Error()
		return decision
	}
	lastBuy, hasPosition := broker.LastBuy(fills)
	e.state.SetPosition(hasPosition, lastBuy.Price)
	if hasPosition {
		decision.LastBuyPrice = decimal.NewNullDecimal(lastBuy.Price)
	}

	intent := e.strategy.Decide(strategy.MarketSnapshot{
		Timestamp:    decision.Timestamp,
		Instrument:   instrument,
		Price:        price,
		HasPosition:  hasPosition,
		LastBuyPrice: lastBuy.Price,
	})
	decision.Intent = intent.Action
	decision.Qty = intent.Qty
	decision.OrderPrice = intent.Price
	decision.Reason = intent.Reason

	if e.cfg.BlockOnOpenOrders && intent.Action != strategy.Hold {
		e.refreshOpenOrders(ctx)
	}
	snapshot := e.state.Snapshot()
	approved, err := e.gate.Evaluate(intent, risk.RiskContext{
		Now:               e.now().UTC(),
		OpenOrderCount:    len(snapshot.OpenOrders),
		LastTradeTime:     snapshot.LastTradeTime,
		MaxNotional:       e.cfg.MaxNotional,
		Cooldown:          e.cfg.Cooldown,
		KillSwitch:        e.cfg.KillSwitch,
		BlockOnOpenOrders: e.cfg.BlockOnOpenOrders,
	})
	if err != nil {
		decision.Result = ResultRejected
		decision.RejectReason = err.Error()
		return decision
	}
	decision.ApprovalReason = approved.Reason

	if intent.Action == strategy.Hold {
		decision.Result = ResultHold
		return decision
	}
	if e.cfg.Mode == config.ModeDryRun {
		decision.Result = ResultDryRun
		return decision
	}

	side := exchange.Buy
	if intent.Action == strategy.Sell {
		side = exchange.Sell
	}
	ref, err := e.exchange.PlaceLimitOrder(ctx, broker.OrderRequest{
		Instrument: instrument,
		Side:       side,
		Price:      approved.Intent.Price,
		Qty:        approved.Intent.Qty,
	})
	if err != nil {
		decision.Result = ResultOrderFailed
		decision.RejectReason = err.Error()
		return decision
	}

	decision.Result = ResultOrderSubmitted
	decision.OrderID = ref.ID
	decision.ClientOrderID = ref.ClientOrderID
	e.state.SetLastTradeTime(e.now().UTC())
	e.state.AddOpenOrder(state.OpenOrder{
		ClientOrderID: ref.ClientOrderID,
		OrderID:       ref.ID,
		Side:          string(ref.Side),
		Price:         ref.Price,
		Qty:           ref.Qty,
		Status:        ref.Status,
	})
	return decision
}

// refreshOpenOrders replaces the tracked open orders with the exchange's
// view. On failure the tracked set is kept, so the guard stays closed.
func (e *Engine) refreshOpenOrders(ctx context.Context) {
	orders, err := e.exchange.OpenOrders(ctx, e.cfg.Instrument)
	if err != nil {
		e.logger.Warn("refresh open orders failed", zap.String("instrument", e.cfg.Instrument), zap.Error(err))
		return
	}
	e.state.SetOpenOrders(openOrdersFromRefs(orders))
}

func (e *Engine) record(decision Decision) {
	e.decisions.Append(decision)
	reason := decision.RejectReason
	if reason == "" {
		reason = decision.Reason
	}
	e.state.RecordCycle(state.Cycle{Time: decision.Timestamp, Result: decision.Result, Reason: reason})

	fields := []zap.Field{
		zap.String("instrument", decision.Instrument),
		zap.String("result", decision.Result),
		zap.Stringer("price", decision.Price),
	}
	if decision.LastBuyPrice.Valid {
		fields = append(fields, zap.Stringer("last_buy", decision.LastBuyPrice.Decimal))
	}
	if decision.Intent != "" {
		fields = append(fields,
			zap.String("intent", string(decision.Intent)),
			zap.Stringer("order_price", decision.OrderPrice),
			zap.Stringer("qty", decision.Qty),
		)
	}
	if decision.OrderID != "" {
		fields = append(fields, zap.String("order_id", decision.OrderID), zap.String("client_order_id", decision.ClientOrderID))
	}

	switch decision.Result {
	case ResultPriceUnavailable, ResultTradesUnavailable, ResultOrderFailed:
		e.logger.Warn("cycle aborted", append(fields, zap.String("error", decision.RejectReason))...)
	case ResultRejected:
		e.logger.Info("cycle rejected", append(fields, zap.String("reject", decision.RejectReason))...)
	default:
		e.logger.Info("cycle complete", append(fields, zap.String("reason", decision.Reason))...)
	}
}
