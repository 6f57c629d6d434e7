package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"cdcbot/internal/signer"
)

const (
	DefaultBaseURL   = "https://api.crypto.com/exchange/v1"
	DefaultUserAgent = "cdcbot/1.0"
	defaultTimeout   = 10 * time.Second
)

type Config struct {
	BaseURL   string
	APIKey    string
	SecretKey string
	UserAgent string
	Timeout   time.Duration
}

// Client talks to the exchange REST API. Every call is signed right before
// it is sent, with a nonce that is never handed out twice.
type Client struct {
	baseURL   string
	userAgent string
	signer    *signer.Signer
	http      *http.Client
	logger    *zap.Logger
	nonces    *nonceSource
	requestID atomic.Int64
}

func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		userAgent: cfg.UserAgent,
		signer:    signer.New(cfg.APIKey, cfg.SecretKey),
		http:      &http.Client{Timeout: cfg.Timeout},
		logger:    logger.Named("exchange"),
		nonces:    newNonceSource(time.Now),
	}
}

// CallPrivate signs and sends a private method call and decodes the result
// into out when out is non-nil.
func (c *Client) CallPrivate(ctx context.Context, method string, params signer.Params, out any) error {
	return c.call(ctx, method, params, true, out)
}

// CallPublic sends a public method call. The envelope carries no api_key or
// sig.
func (c *Client) CallPublic(ctx context.Context, method string, params signer.Params, out any) error {
	return c.call(ctx, method, params, false, out)
}

func (c *Client) call(ctx context.Context, method string, params signer.Params, private bool, out any) error {
	if params == nil {
		params = signer.Params{}
	}
	req := Request{
		ID:     c.requestID.Add(1),
		Method: method,
		Params: params,
		Nonce:  c.nonces.Next(),
	}
	if private {
		sig, err := c.signer.Sign(method, params, req.Nonce)
		if err != nil {
			return fmt.Errorf("%s: sign request: %w", method, err)
		}
		req.APIKey = c.signer.APIKey()
		req.Sig = sig
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("%s: marshal request: %w", method, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: create request: %w", method, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)

	started := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.logger.Warn("request failed", zap.String("method", method), zap.Int64("id", req.ID), zap.Error(err))
		return &TransportError{Method: method, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Warn("read response failed", zap.String("method", method), zap.Error(err))
		return &TransportError{Method: method, Err: err}
	}

	c.logger.Debug("response received",
		zap.String("method", method),
		zap.Int64("id", req.ID),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(started)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Error bodies often still carry the envelope; surface its code when
		// it does so callers get the exchange's reason.
		var envelope Response
		if json.Unmarshal(respBody, &envelope) == nil && envelope.Code != 0 {
			c.logger.Warn("api error", zap.String("method", method), zap.Int("status", resp.StatusCode), zap.Int("code", envelope.Code), zap.String("message", envelope.Message))
		}
		return &HTTPStatusError{Method: method, StatusCode: resp.StatusCode, Body: respBody}
	}

	var envelope Response
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("%s: decode response: %w", method, err)
	}
	if envelope.Code != 0 {
		c.logger.Warn("api error", zap.String("method", method), zap.Int("code", envelope.Code), zap.String("message", envelope.Message))
		return &APIError{Method: method, Code: envelope.Code, Message: envelope.Message, Payload: json.RawMessage(respBody)}
	}

	if out == nil || len(envelope.Result) == 0 || bytes.Equal(envelope.Result, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return fmt.Errorf("%s: decode result: %w", method, err)
	}
	return nil
}

// nonceSource hands out millisecond timestamps, bumping by one whenever the
// clock has not moved past the previous value.
type nonceSource struct {
	mu   sync.Mutex
	now  func() time.Time
	last int64
}

func newNonceSource(now func() time.Time) *nonceSource {
	return &nonceSource{now: now}
}

func (n *nonceSource) Next() int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	next := n.now().UnixMilli()
	if next <= n.last {
		next = n.last + 1
	}
	n.last = next
	return next
}
