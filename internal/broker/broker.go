package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"cdcbot/internal/exchange"
)

var ErrNoPrice = errors.New("ticker has no last trade price")

type OrderRequest struct {
	Instrument    string
	Side          exchange.Side
	Price         decimal.Decimal
	Qty           decimal.Decimal
	ClientOrderID string
}

type OrderRef struct {
	ID            string
	ClientOrderID string
	Instrument    string
	Side          exchange.Side
	Price         decimal.Decimal
	Qty           decimal.Decimal
	Status        string
}

type Fill struct {
	TradeID string
	OrderID string
	Side    exchange.Side
	Price   decimal.Decimal
	Qty     decimal.Decimal
	Fee     decimal.Decimal
	Time    time.Time
}

type Balance struct {
	Currency  string
	Balance   decimal.Decimal
	Available decimal.Decimal
	InOrders  decimal.Decimal
}

type Client struct {
	client *exchange.Client
	logger *zap.Logger
}

func New(client *exchange.Client, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{client: client, logger: logger.Named("broker")}
}

// Price returns the last traded price of instrument.
func (c *Client) Price(ctx context.Context, instrument string) (decimal.Decimal, error) {
	ticker, err := c.client.Ticker(ctx, instrument)
	if err != nil {
		c.logger.Error("fetch price failed", zap.String("instrument", instrument), zap.Error(err))
		return decimal.Zero, err
	}
	if !ticker.Last.IsPositive() {
		c.logger.Error("fetch price failed", zap.String("instrument", instrument), zap.Error(ErrNoPrice))
		return decimal.Zero, fmt.Errorf("%s: %w", instrument, ErrNoPrice)
	}
	c.logger.Info("price fetched", zap.String("instrument", instrument), zap.Stringer("price", ticker.Last))
	return ticker.Last, nil
}

// RecentTrades returns up to limit executed trades. An empty slice with a
// nil error means the account has no trades in that window.
func (c *Client) RecentTrades(ctx context.Context, instrument string, limit int) ([]Fill, error) {
	trades, err := c.client.Trades(ctx, instrument, limit)
	if err != nil {
		c.logger.Error("fetch trades failed", zap.String("instrument", instrument), zap.Int("limit", limit), zap.Error(err))
		return nil, err
	}
	fills := make([]Fill, 0, len(trades))
	for _, t := range trades {
		fills = append(fills, Fill{
			TradeID: t.TradeID.String(),
			OrderID: t.OrderID.String(),
			Side:    t.Side,
			Price:   t.TradedPrice,
			Qty:     t.TradedQuantity,
			Fee:     t.Fees,
			Time:    t.CreateTime.Time(),
		})
	}
	c.logger.Info("trades fetched", zap.String("instrument", instrument), zap.Int("count", len(fills)))
	return fills, nil
}

// LastBuy picks the most recent BUY fill. On equal timestamps the one
// listed first wins, matching the exchange's newest-first ordering.
func LastBuy(fills []Fill) (Fill, bool) {
	var last Fill
	found := false
	for _, f := range fills {
		if f.Side != exchange.Buy {
			continue
		}
		if !found || f.Time.After(last.Time) {
			last = f
			found = true
		}
	}
	return last, found
}

func (c *Client) PlaceLimitOrder(ctx context.Context, req OrderRequest) (OrderRef, error) {
	if req.ClientOrderID == "" {
		req.ClientOrderID = uuid.NewString()
	}
	res, err := c.client.CreateOrder(ctx, exchange.OrderRequest{
		InstrumentName: req.Instrument,
		Side:           req.Side,
		Type:           exchange.Limit,
		Price:          req.Price,
		Quantity:       req.Qty,
		ClientOID:      req.ClientOrderID,
	})
	if err != nil {
		c.logger.Error("place order failed",
			zap.String("side", string(req.Side)),
			zap.String("instrument", req.Instrument),
			zap.Stringer("price", req.Price),
			zap.Stringer("qty", req.Qty),
			zap.String("client_order_id", req.ClientOrderID),
			zap.Error(err),
		)
		return OrderRef{}, err
	}

	clientOrderID := res.ClientOID
	if clientOrderID == "" {
		clientOrderID = req.ClientOrderID
	}
	c.logger.Info("place order success",
		zap.String("order_id", res.OrderID.String()),
		zap.String("client_order_id", clientOrderID),
		zap.String("side", string(req.Side)),
		zap.String("instrument", req.Instrument),
		zap.Stringer("price", req.Price),
		zap.Stringer("qty", req.Qty),
	)
	return OrderRef{
		ID:            res.OrderID.String(),
		ClientOrderID: clientOrderID,
		Instrument:    req.Instrument,
		Side:          req.Side,
		Price:         req.Price,
		Qty:           req.Qty,
		Status:        "NEW",
	}, nil
}

func (c *Client) CancelOrder(ctx context.Context, instrument, orderID string) error {
	if err := c.client.CancelOrder(ctx, instrument, exchange.OrderID(orderID)); err != nil {
		c.logger.Error("cancel order failed", zap.String("instrument", instrument), zap.String("order_id", orderID), zap.Error(err))
		return err
	}
	c.logger.Info("cancel order requested", zap.String("instrument", instrument), zap.String("order_id", orderID))
	return nil
}

func (c *Client) OpenOrders(ctx context.Context, instrument string) ([]OrderRef, error) {
	orders, err := c.client.OpenOrders(ctx, instrument)
	if err != nil {
		c.logger.Error("fetch open orders failed", zap.String("instrument", instrument), zap.Error(err))
		return nil, err
	}
	c.logger.Info("open orders fetched", zap.String("instrument", instrument), zap.Int("count", len(orders)))
	refs := make([]OrderRef, 0, len(orders))
	for _, order := range orders {
		refs = append(refs, OrderRef{
			ID:            order.OrderID.String(),
			ClientOrderID: order.ClientOID,
			Instrument:    order.InstrumentName,
			Side:          order.Side,
			Price:         order.EffectivePrice(),
			Qty:           order.Quantity,
			Status:        order.Status,
		})
	}
	return refs, nil
}

func (c *Client) Balances(ctx context.Context, currency string) ([]Balance, error) {
	accounts, err := c.client.AccountSummary(ctx, currency)
	if err != nil {
		c.logger.Error("fetch account summary failed", zap.String("currency", currency), zap.Error(err))
		return nil, err
	}
	balances := make([]Balance, 0, len(accounts))
	for _, a := range accounts {
		balances = append(balances, Balance{
			Currency:  a.Currency,
			Balance:   a.Balance,
			Available: a.Available,
			InOrders:  a.Order,
		})
	}
	c.logger.Info("account summary fetched", zap.Int("currencies", len(balances)))
	return balances, nil
}
