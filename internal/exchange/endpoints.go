package exchange

import (
	"context"
	"errors"
	"fmt"

	"cdcbot/internal/signer"
)

var ErrTickerNotFound = errors.New("ticker not found")

// AccountSummary returns balances, optionally filtered to one currency.
func (c *Client) AccountSummary(ctx context.Context, currency string) ([]Account, error) {
	params := signer.Params{}
	if currency != "" {
		params["currency"] = currency
	}
	var result accountSummaryResult
	if err := c.CallPrivate(ctx, MethodAccountSummary, params, &result); err != nil {
		return nil, err
	}
	if result.Accounts == nil {
		return []Account{}, nil
	}
	return result.Accounts, nil
}

func (c *Client) OpenOrders(ctx context.Context, instrument string) ([]Order, error) {
	params := signer.Params{}
	if instrument != "" {
		params["instrument_name"] = instrument
	}
	var result openOrdersResult
	if err := c.CallPrivate(ctx, MethodOpenOrders, params, &result); err != nil {
		return nil, err
	}
	orders := result.orders()
	if orders == nil {
		return []Order{}, nil
	}
	return orders, nil
}

// Trades returns up to limit of the most recent executed trades. A zero
// limit leaves the page size to the exchange.
func (c *Client) Trades(ctx context.Context, instrument string, limit int) ([]Trade, error) {
	params := signer.Params{}
	if instrument != "" {
		params["instrument_name"] = instrument
	}
	if limit > 0 {
		params["limit"] = limit
	}
	var result tradesResult
	if err := c.CallPrivate(ctx, MethodTrades, params, &result); err != nil {
		return nil, err
	}
	trades := result.trades()
	if trades == nil {
		return []Trade{}, nil
	}
	return trades, nil
}

func (c *Client) CreateOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	if req.Type == "" {
		req.Type = Limit
	}
	params := signer.Params{
		"instrument_name": req.InstrumentName,
		"side":            string(req.Side),
		"type":            string(req.Type),
		"price":           req.Price.String(),
		"quantity":        req.Quantity.String(),
	}
	if req.ClientOID != "" {
		params["client_oid"] = req.ClientOID
	}
	var result OrderResult
	if err := c.CallPrivate(ctx, MethodCreateOrder, params, &result); err != nil {
		return OrderResult{}, err
	}
	if result.OrderID == "" {
		return OrderResult{}, fmt.Errorf("%s: response carried no order_id", MethodCreateOrder)
	}
	return result, nil
}

func (c *Client) CancelOrder(ctx context.Context, instrument string, orderID OrderID) error {
	params := signer.Params{
		"instrument_name": instrument,
		"order_id":        orderID.String(),
	}
	return c.CallPrivate(ctx, MethodCancelOrder, params, nil)
}

func (c *Client) Ticker(ctx context.Context, instrument string) (Ticker, error) {
	params := signer.Params{"instrument_name": instrument}
	var result tickersResult
	if err := c.CallPublic(ctx, MethodTickers, params, &result); err != nil {
		return Ticker{}, err
	}
	for _, t := range result.Data {
		if t.Instrument == instrument {
			return t, nil
		}
	}
	if len(result.Data) == 1 && result.Data[0].Instrument == "" {
		return result.Data[0], nil
	}
	return Ticker{}, fmt.Errorf("%s %s: %w", MethodTickers, instrument, ErrTickerNotFound)
}
