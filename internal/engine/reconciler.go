package engine

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"cdcbot/internal/broker"
	"cdcbot/internal/state"
)

type AccountSource interface {
	OpenOrders(ctx context.Context, instrument string) ([]broker.OrderRef, error)
	Balances(ctx context.Context, currency string) ([]broker.Balance, error)
}

// ReconcileLoop refreshes open orders and balances immediately and then on
// every tick. Failures are logged and the previous values kept.
func ReconcileLoop(ctx context.Context, source AccountSource, store *state.Store, instrument string, interval time.Duration, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("reconcile")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	reconcileOnce(ctx, source, store, instrument, logger)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reconcileOnce(ctx, source, store, instrument, logger)
		}
	}
}

func reconcileOnce(ctx context.Context, source AccountSource, store *state.Store, instrument string, logger *zap.Logger) {
	ok := true
	orders, err := source.OpenOrders(ctx, instrument)
	if err != nil {
		ok = false
		logger.Warn("reconcile open orders failed", zap.Error(err))
	} else {
		store.SetOpenOrders(openOrdersFromRefs(orders))
	}

	balances, err := source.Balances(ctx, "")
	if err != nil {
		ok = false
		logger.Warn("reconcile balances failed", zap.Error(err))
	} else {
		wanted := instrumentCurrencies(instrument)
		kept := make([]state.Balance, 0, len(balances))
		for _, b := range balances {
			if len(wanted) > 0 && !wanted[b.Currency] {
				continue
			}
			kept = append(kept, state.Balance{
				Currency:  b.Currency,
				Balance:   b.Balance,
				Available: b.Available,
				InOrders:  b.InOrders,
			})
			logger.Info("balance", zap.String("currency", b.Currency), zap.Stringer("available", b.Available), zap.Stringer("in_orders", b.InOrders))
		}
		store.SetBalances(kept)
	}

	if ok {
		store.SetLastReconcile(time.Now().UTC())
	}
}

func openOrdersFromRefs(orders []broker.OrderRef) map[string]state.OpenOrder {
	openOrders := make(map[string]state.OpenOrder, len(orders))
	for _, order := range orders {
		openOrders[order.ID] = state.OpenOrder{
			ClientOrderID: order.ClientOrderID,
			OrderID:       order.ID,
			Side:          string(order.Side),
			Price:         order.Price,
			Qty:           order.Qty,
			Status:        order.Status,
		}
	}
	return openOrders
}

// instrumentCurrencies splits BASE_QUOTE into its two currencies. Other
// instrument shapes yield nil, which keeps every balance.
func instrumentCurrencies(instrument string) map[string]bool {
	base, quote, ok := strings.Cut(instrument, "_")
	if !ok || base == "" || quote == "" {
		return nil
	}
	return map[string]bool{base: true, quote: true}
}
