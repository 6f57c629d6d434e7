package engine

import (
	"bufio"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"cdcbot/internal/strategy"
)

const (
	ResultPriceUnavailable  = "price_unavailable"
	ResultTradesUnavailable = "trades_unavailable"
	ResultHold              = "hold"
	ResultRejected          = "rejected"
	ResultDryRun            = "dry_run"
	ResultOrderFailed       = "order_failed"
	ResultOrderSubmitted    = "order_submitted"
)

type Decision struct {
	RunID          string              `json:"run_id"`
	Timestamp      time.Time           `json:"timestamp"`
	Instrument     string              `json:"instrument"`
	Price          decimal.Decimal     `json:"price"`
	LastBuyPrice   decimal.NullDecimal `json:"last_buy_price"`
	Intent         strategy.Action     `json:"intent,omitempty"`
	Qty            decimal.Decimal     `json:"qty"`
	OrderPrice     decimal.Decimal     `json:"order_price"`
	Reason         string              `json:"reason,omitempty"`
	Result         string              `json:"result"`
	ApprovalReason string              `json:"approval_reason,omitempty"`
	RejectReason   string              `json:"reject_reason,omitempty"`
	OrderID        string              `json:"order_id,omitempty"`
	ClientOrderID  string              `json:"client_order_id,omitempty"`
}

type DecisionSink interface {
	RunID() string
	Append(decision Decision)
}

// DecisionLogger appends one JSON line per decision. A logger created with
// an empty path only carries the run id.
type DecisionLogger struct {
	runID  string
	file   *os.File
	writer *bufio.Writer
	logger *zap.Logger
	mu     sync.Mutex
}

func NewDecisionLogger(path string, runID string, logger *zap.Logger) (*DecisionLogger, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &DecisionLogger{runID: runID, logger: logger.Named("decisions")}
	if path == "" {
		return d, nil
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	d.file = file
	d.writer = bufio.NewWriter(file)
	return d, nil
}

func (d *DecisionLogger) RunID() string {
	return d.runID
}

func (d *DecisionLogger) Append(decision Decision) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.writer == nil {
		return
	}
	payload, err := json.Marshal(decision)
	if err != nil {
		d.logger.Error("failed to marshal decision", zap.Error(err))
		return
	}
	if _, err := d.writer.Write(append(payload, '\n')); err != nil {
		d.logger.Error("failed to write decision", zap.Error(err))
		return
	}
	if err := d.writer.Flush(); err != nil {
		d.logger.Error("failed to flush decision log", zap.Error(err))
	}
}

func (d *DecisionLogger) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.file == nil {
		return nil
	}
	if err := d.writer.Flush(); err != nil {
		_ = d.file.Close()
		return err
	}
	return d.file.Close()
}
