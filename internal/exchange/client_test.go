package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"cdcbot/internal/signer"
)

const (
	testAPIKey = "api-key"
	testSecret = "api-secret"
)

type capturedRequest struct {
	Path      string
	UserAgent string
	Type      string
	Envelope  map[string]json.RawMessage
	Request   Request
}

type fakeExchange struct {
	server   *httptest.Server
	mu       sync.Mutex
	requests []capturedRequest
	replies  map[string]func(w http.ResponseWriter)
}

func newFakeExchange(t *testing.T) *fakeExchange {
	t.Helper()
	f := &fakeExchange{replies: map[string]func(w http.ResponseWriter){}}
	r := mux.NewRouter()
	r.HandleFunc("/{family:private|public}/{name}", f.handle).Methods(http.MethodPost)
	f.server = httptest.NewServer(r)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeExchange) handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	captured := capturedRequest{
		Path:      r.URL.Path,
		UserAgent: r.Header.Get("User-Agent"),
		Type:      r.Header.Get("Content-Type"),
	}
	if err := json.Unmarshal(body, &captured.Envelope); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := json.Unmarshal(body, &captured.Request); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.requests = append(f.requests, captured)
	reply, ok := f.replies[captured.Request.Method]
	f.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"id": captured.Request.ID, "method": captured.Request.Method, "code": 0, "result": map[string]any{}})
		return
	}
	reply(w)
}

func (f *fakeExchange) reply(method string, status int, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies[method] = func(w http.ResponseWriter) {
		writeJSON(w, status, payload)
	}
}

func (f *fakeExchange) result(method string, result any) {
	f.reply(method, http.StatusOK, map[string]any{"id": 1, "method": method, "code": 0, "result": result})
}

func (f *fakeExchange) captured() []capturedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]capturedRequest, len(f.requests))
	copy(out, f.requests)
	return out
}

func (f *fakeExchange) client(t *testing.T) *Client {
	return New(Config{
		BaseURL:   f.server.URL,
		APIKey:    testAPIKey,
		SecretKey: testSecret,
		UserAgent: "test-agent",
		Timeout:   2 * time.Second,
	}, zaptest.NewLogger(t))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func TestCallPrivateSendsSignedEnvelope(t *testing.T) {
	fake := newFakeExchange(t)
	client := fake.client(t)
	client.nonces = newNonceSource(func() time.Time { return time.UnixMilli(1700000000000) })

	err := client.CallPrivate(context.Background(), MethodOpenOrders, signer.Params{"instrument_name": "BTC_USDT"}, nil)
	require.NoError(t, err)

	reqs := fake.captured()
	require.Len(t, reqs, 1)
	got := reqs[0]
	assert.Equal(t, "/private/get-open-orders", got.Path)
	assert.Equal(t, "test-agent", got.UserAgent)
	assert.Equal(t, "application/json", got.Type)
	assert.Equal(t, int64(1), got.Request.ID)
	assert.Equal(t, MethodOpenOrders, got.Request.Method)
	assert.Equal(t, testAPIKey, got.Request.APIKey)
	assert.Equal(t, int64(1700000000000), got.Request.Nonce)
	assert.Equal(t, "BTC_USDT", got.Request.Params["instrument_name"])

	want, err := signer.Sign(testAPIKey, testSecret, MethodOpenOrders, signer.Params{"instrument_name": "BTC_USDT"}, 1700000000000)
	require.NoError(t, err)
	assert.Equal(t, want, got.Request.Sig)
}

func TestCallPublicOmitsCredentials(t *testing.T) {
	fake := newFakeExchange(t)
	client := fake.client(t)

	require.NoError(t, client.CallPublic(context.Background(), MethodTickers, signer.Params{"instrument_name": "BTC_USDT"}, nil))

	reqs := fake.captured()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/public/get-tickers", reqs[0].Path)
	assert.NotContains(t, reqs[0].Envelope, "api_key")
	assert.NotContains(t, reqs[0].Envelope, "sig")
	assert.Contains(t, reqs[0].Envelope, "nonce")
}

func TestEveryRequestGetsFreshNonceAndSignature(t *testing.T) {
	fake := newFakeExchange(t)
	client := fake.client(t)
	frozen := time.UnixMilli(1700000000000)
	client.nonces = newNonceSource(func() time.Time { return frozen })

	params := signer.Params{"instrument_name": "BTC_USDT"}
	for i := 0; i < 3; i++ {
		require.NoError(t, client.CallPrivate(context.Background(), MethodOpenOrders, params, nil))
	}

	reqs := fake.captured()
	require.Len(t, reqs, 3)
	seenSigs := map[string]bool{}
	for i, r := range reqs {
		assert.Equal(t, int64(1700000000000+i), r.Request.Nonce)
		assert.Equal(t, int64(i+1), r.Request.ID)
		assert.False(t, seenSigs[r.Request.Sig], "signature reused")
		seenSigs[r.Request.Sig] = true
	}
}

func TestNonceSourceFollowsClock(t *testing.T) {
	now := time.UnixMilli(1000)
	src := newNonceSource(func() time.Time { return now })
	assert.Equal(t, int64(1000), src.Next())
	assert.Equal(t, int64(1001), src.Next())
	now = time.UnixMilli(5000)
	assert.Equal(t, int64(5000), src.Next())
}

func TestHTTPStatusError(t *testing.T) {
	fake := newFakeExchange(t)
	fake.reply(MethodTrades, http.StatusBadGateway, map[string]any{"oops": true})
	client := fake.client(t)

	trades, err := client.Trades(context.Background(), "BTC_USDT", 50)
	assert.Nil(t, trades)
	var statusErr *HTTPStatusError
	require.True(t, errors.As(err, &statusErr), "got %v", err)
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
}

func TestAPIErrorCarriesPayload(t *testing.T) {
	fake := newFakeExchange(t)
	fake.reply(MethodCreateOrder, http.StatusOK, map[string]any{"id": 1, "method": MethodCreateOrder, "code": 10004, "message": "BAD_REQUEST"})
	client := fake.client(t)

	_, err := client.CreateOrder(context.Background(), OrderRequest{
		InstrumentName: "BTC_USDT",
		Side:           Buy,
		Price:          decimal.RequireFromString("100.01"),
		Quantity:       decimal.RequireFromString("0.0001"),
	})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr), "got %v", err)
	assert.Equal(t, 10004, apiErr.Code)
	assert.Equal(t, "BAD_REQUEST", apiErr.Message)
	assert.Contains(t, string(apiErr.Payload), "BAD_REQUEST")
}

func TestTransportError(t *testing.T) {
	fake := newFakeExchange(t)
	client := fake.client(t)
	fake.server.Close()

	_, err := client.Ticker(context.Background(), "BTC_USDT")
	var transportErr *TransportError
	require.True(t, errors.As(err, &transportErr), "got %v", err)
	assert.Equal(t, MethodTickers, transportErr.Method)
}

func TestMalformedEnvelopeIsAnError(t *testing.T) {
	fake := newFakeExchange(t)
	fake.mu.Lock()
	fake.replies[MethodTrades] = func(w http.ResponseWriter) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("not json"))
	}
	fake.mu.Unlock()
	client := fake.client(t)

	_, err := client.Trades(context.Background(), "BTC_USDT", 10)
	require.Error(t, err)
}

func TestEmptyTradeListIsNotAnError(t *testing.T) {
	fake := newFakeExchange(t)
	fake.result(MethodTrades, map[string]any{"data": []any{}})
	client := fake.client(t)

	trades, err := client.Trades(context.Background(), "BTC_USDT", 50)
	require.NoError(t, err)
	assert.NotNil(t, trades)
	assert.Empty(t, trades)

	reqs := fake.captured()
	require.Len(t, reqs, 1)
	assert.EqualValues(t, 50, reqs[0].Request.Params["limit"])
}

func TestTradesDecodesBothListShapes(t *testing.T) {
	fake := newFakeExchange(t)
	fake.result(MethodTrades, map[string]any{"trade_list": []map[string]any{
		{"trade_id": 12, "order_id": 34, "side": "BUY", "traded_price": 100.5, "traded_quantity": "0.1", "create_time": 1700000000000},
	}})
	client := fake.client(t)

	trades, err := client.Trades(context.Background(), "BTC_USDT", 0)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, OrderID("12"), trades[0].TradeID)
	assert.Equal(t, OrderID("34"), trades[0].OrderID)
	assert.Equal(t, Buy, trades[0].Side)
	assert.True(t, trades[0].TradedPrice.Equal(decimal.RequireFromString("100.5")))
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), trades[0].CreateTime.Time())

	fake.result(MethodTrades, map[string]any{"data": []map[string]any{
		{"trade_id": "99", "order_id": "77", "side": "SELL", "traded_price": "101", "traded_quantity": "0.2", "create_time": "1700000001000"},
	}})
	trades, err = client.Trades(context.Background(), "BTC_USDT", 0)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, Sell, trades[0].Side)
	assert.Equal(t, Millis(1700000001000), trades[0].CreateTime)
}

func TestCreateOrderSendsDecimalStrings(t *testing.T) {
	fake := newFakeExchange(t)
	fake.result(MethodCreateOrder, map[string]any{"order_id": "1138", "client_oid": "abc"})
	client := fake.client(t)

	res, err := client.CreateOrder(context.Background(), OrderRequest{
		InstrumentName: "BTC_USDT",
		Side:           Sell,
		Price:          decimal.RequireFromString("100.9899"),
		Quantity:       decimal.RequireFromString("0.0001"),
		ClientOID:      "abc",
	})
	require.NoError(t, err)
	assert.Equal(t, OrderID("1138"), res.OrderID)

	reqs := fake.captured()
	require.Len(t, reqs, 1)
	params := reqs[0].Request.Params
	assert.Equal(t, "100.9899", params["price"])
	assert.Equal(t, "0.0001", params["quantity"])
	assert.Equal(t, "LIMIT", params["type"])
	assert.Equal(t, "SELL", params["side"])
	assert.Equal(t, "abc", params["client_oid"])

	// The signature must verify against exactly what was sent on the wire.
	want, err := signer.Sign(testAPIKey, testSecret, MethodCreateOrder, params, reqs[0].Request.Nonce)
	require.NoError(t, err)
	assert.Equal(t, want, reqs[0].Request.Sig)
}

func TestCreateOrderWithoutOrderID(t *testing.T) {
	fake := newFakeExchange(t)
	fake.result(MethodCreateOrder, map[string]any{})
	client := fake.client(t)

	_, err := client.CreateOrder(context.Background(), OrderRequest{InstrumentName: "BTC_USDT", Side: Buy, Price: decimal.NewFromInt(1), Quantity: decimal.NewFromInt(1)})
	require.Error(t, err)
}

func TestCancelOrder(t *testing.T) {
	fake := newFakeExchange(t)
	client := fake.client(t)

	require.NoError(t, client.CancelOrder(context.Background(), "BTC_USDT", OrderID("55")))
	reqs := fake.captured()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/private/cancel-order", reqs[0].Path)
	assert.Equal(t, "55", reqs[0].Request.Params["order_id"])
}

func TestOpenOrdersAndAccountSummary(t *testing.T) {
	fake := newFakeExchange(t)
	fake.result(MethodOpenOrders, map[string]any{"order_list": []map[string]any{
		{"order_id": 1, "side": "BUY", "price": 60000, "quantity": 0.0001, "status": "ACTIVE", "instrument_name": "BTC_USDT"},
	}})
	fake.result(MethodAccountSummary, map[string]any{"accounts": []map[string]any{
		{"currency": "USDT", "balance": 100, "available": 90, "order": 10, "stake": 0},
	}})
	client := fake.client(t)

	orders, err := client.OpenOrders(context.Background(), "BTC_USDT")
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.True(t, orders[0].EffectivePrice().Equal(decimal.NewFromInt(60000)))

	accounts, err := client.AccountSummary(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "USDT", accounts[0].Currency)
	assert.True(t, accounts[0].Available.Equal(decimal.NewFromInt(90)))
}

func TestTickerSelectsInstrument(t *testing.T) {
	fake := newFakeExchange(t)
	fake.result(MethodTickers, map[string]any{"data": []map[string]any{
		{"i": "ETH_USDT", "a": "3000"},
		{"i": "BTC_USDT", "a": "60000.5", "b": "60000", "k": "60001"},
	}})
	client := fake.client(t)

	ticker, err := client.Ticker(context.Background(), "BTC_USDT")
	require.NoError(t, err)
	assert.True(t, ticker.Last.Equal(decimal.RequireFromString("60000.5")))

	_, err = client.Ticker(context.Background(), "SOL_USDT")
	assert.ErrorIs(t, err, ErrTickerNotFound)
}
