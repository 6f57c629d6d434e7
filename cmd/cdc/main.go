package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/logrusorgru/aurora"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"cdcbot/internal/broker"
	"cdcbot/internal/config"
	"cdcbot/internal/exchange"
	"cdcbot/internal/logging"
)

const usage = `usage: cdc [flags] <command> [args]

commands:
  summary [currency]       account balances
  open-orders              open orders for -instrument
  trades                   recent trades for -instrument
  ticker                   ticker for -instrument
  buy <price> <quantity>   place a LIMIT buy
  sell <price> <quantity>  place a LIMIT sell
  cancel <order-id>        cancel an order`

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if len(cfg.Args) == 0 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	logger := zap.NewNop()
	if cfg.LogFile != "" {
		if logger, err = logging.New(cfg.LogLevel, cfg.LogFile); err != nil {
			log.Fatalf("logger error: %v", err)
		}
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	ex := exchange.New(exchange.Config{
		BaseURL:   cfg.BaseURL,
		APIKey:    cfg.APIKey,
		SecretKey: cfg.APISecret,
		UserAgent: cfg.UserAgent,
		Timeout:   cfg.RequestTimeout,
	}, logger)
	cli := &commands{cfg: cfg, exchange: ex, broker: broker.New(ex, logger), out: os.Stdout}

	if err := cli.run(ctx, cfg.Args[0], cfg.Args[1:]); err != nil {
		printError(os.Stderr, err)
		os.Exit(1)
	}
}

type commands struct {
	cfg      config.Config
	exchange *exchange.Client
	broker   *broker.Client
	out      io.Writer
}

var errUsage = errors.New(usage)

func (c *commands) run(ctx context.Context, name string, args []string) error {
	switch name {
	case "summary":
		currency := ""
		if len(args) > 0 {
			currency = args[0]
		}
		return c.summary(ctx, currency)
	case "open-orders":
		return c.openOrders(ctx)
	case "trades":
		return c.trades(ctx)
	case "ticker":
		return c.ticker(ctx)
	case "buy", "sell":
		side := exchange.Buy
		if name == "sell" {
			side = exchange.Sell
		}
		price, qty, err := parseOrderArgs(args)
		if err != nil {
			return err
		}
		return c.place(ctx, side, price, qty)
	case "cancel":
		if len(args) != 1 {
			return errUsage
		}
		return c.cancel(ctx, args[0])
	default:
		return fmt.Errorf("unknown command %q\n%w", name, errUsage)
	}
}

func (c *commands) summary(ctx context.Context, currency string) error {
	balances, err := c.broker.Balances(ctx, currency)
	if err != nil {
		return err
	}
	if len(balances) == 0 {
		fmt.Fprintln(c.out, aurora.Cyan("no balances"))
		return nil
	}
	for _, b := range balances {
		fmt.Fprintf(c.out, "%-8s balance %s available %s in orders %s\n",
			aurora.Bold(b.Currency), b.Balance, aurora.Green(b.Available), aurora.Yellow(b.InOrders))
	}
	return nil
}

func (c *commands) openOrders(ctx context.Context) error {
	orders, err := c.broker.OpenOrders(ctx, c.cfg.Instrument)
	if err != nil {
		return err
	}
	if len(orders) == 0 {
		fmt.Fprintln(c.out, aurora.Cyan("no open orders"))
		return nil
	}
	for _, o := range orders {
		fmt.Fprintf(c.out, "%s %s %s @ %s qty %s [%s]\n",
			o.ID, sideLabel(o.Side), o.Instrument, o.Price, o.Qty, o.Status)
	}
	return nil
}

func (c *commands) trades(ctx context.Context) error {
	fills, err := c.broker.RecentTrades(ctx, c.cfg.Instrument, c.cfg.TradesLimit)
	if err != nil {
		return err
	}
	if len(fills) == 0 {
		fmt.Fprintln(c.out, aurora.Cyan("no trades"))
		return nil
	}
	for _, f := range fills {
		fmt.Fprintf(c.out, "%s %s %s @ %s qty %s fee %s\n",
			f.Time.Format("2006-01-02 15:04:05"), f.TradeID, sideLabel(f.Side), f.Price, f.Qty, f.Fee)
	}
	if last, ok := broker.LastBuy(fills); ok {
		fmt.Fprintf(c.out, "last buy %s\n", aurora.Bold(aurora.Blue(last.Price)))
	}
	return nil
}

func (c *commands) ticker(ctx context.Context) error {
	t, err := c.exchange.Ticker(ctx, c.cfg.Instrument)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s last %s bid %s ask %s high %s low %s volume %s\n",
		aurora.Bold(c.cfg.Instrument), aurora.Bold(aurora.Blue(t.Last)), t.Bid, t.Ask, t.High, t.Low, t.Volume)
	return nil
}

func (c *commands) place(ctx context.Context, side exchange.Side, price, qty decimal.Decimal) error {
	ref, err := c.broker.PlaceLimitOrder(ctx, broker.OrderRequest{
		Instrument: c.cfg.Instrument,
		Side:       side,
		Price:      price,
		Qty:        qty,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s %s %s @ %s order %s client %s\n",
		aurora.Green("placed"), sideLabel(side), qty, price, aurora.Bold(ref.ID), ref.ClientOrderID)
	return nil
}

func (c *commands) cancel(ctx context.Context, orderID string) error {
	if err := c.broker.CancelOrder(ctx, c.cfg.Instrument, orderID); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s order %s\n", aurora.Yellow("cancel requested"), aurora.Bold(orderID))
	return nil
}

func parseOrderArgs(args []string) (decimal.Decimal, decimal.Decimal, error) {
	if len(args) != 2 {
		return decimal.Zero, decimal.Zero, errUsage
	}
	price, err := decimal.NewFromString(args[0])
	if err != nil || !price.IsPositive() {
		return decimal.Zero, decimal.Zero, fmt.Errorf("invalid price %q", args[0])
	}
	qty, err := decimal.NewFromString(args[1])
	if err != nil || !qty.IsPositive() {
		return decimal.Zero, decimal.Zero, fmt.Errorf("invalid quantity %q", args[1])
	}
	return price, qty, nil
}

func sideLabel(side exchange.Side) aurora.Value {
	if side == exchange.Sell {
		return aurora.Bold(aurora.Red(side))
	}
	return aurora.Bold(aurora.Green(side))
}

func printError(w io.Writer, err error) {
	var apiErr *exchange.APIError
	var statusErr *exchange.HTTPStatusError
	var transportErr *exchange.TransportError
	switch {
	case errors.As(err, &apiErr):
		fmt.Fprintf(w, "%s %s\n%s\n", aurora.Red("api error:"), apiErr, apiErr.Payload)
	case errors.As(err, &statusErr):
		fmt.Fprintf(w, "%s %s\n", aurora.Red("http error:"), statusErr)
	case errors.As(err, &transportErr):
		fmt.Fprintf(w, "%s %s\n", aurora.Red("transport error:"), transportErr)
	default:
		fmt.Fprintf(w, "%s %s\n", aurora.Red("error:"), err)
	}
}
