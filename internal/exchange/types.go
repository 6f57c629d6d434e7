package exchange

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"cdcbot/internal/signer"
)

const (
	MethodAccountSummary = "private/get-account-summary"
	MethodOpenOrders     = "private/get-open-orders"
	MethodTrades         = "private/get-trades"
	MethodCreateOrder    = "private/create-order"
	MethodCancelOrder    = "private/cancel-order"
	MethodTickers        = "public/get-tickers"
)

type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

type OrderType string

const (
	Limit OrderType = "LIMIT"
)

// Request is the JSON envelope posted for every call. APIKey and Sig are
// left empty on public calls.
type Request struct {
	ID     int64         `json:"id"`
	Method string        `json:"method"`
	APIKey string        `json:"api_key,omitempty"`
	Params signer.Params `json:"params"`
	Nonce  int64         `json:"nonce"`
	Sig    string        `json:"sig,omitempty"`
}

type Response struct {
	ID      int64           `json:"id"`
	Method  string          `json:"method"`
	Code    int             `json:"code"`
	Message string          `json:"message,omitempty"`
	Result  json.RawMessage `json:"result"`
}

// OrderID accepts both the string and the numeric id encodings the exchange
// has used.
type OrderID string

func (id *OrderID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = OrderID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = OrderID(n.String())
	return nil
}

func (id OrderID) String() string {
	return string(id)
}

// Millis is a millisecond epoch timestamp.
type Millis int64

func (m Millis) Time() time.Time {
	return time.UnixMilli(int64(m)).UTC()
}

func (m *Millis) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*m = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		data = []byte(s)
	}
	v, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return err
	}
	*m = Millis(v)
	return nil
}

type Account struct {
	Currency  string          `json:"currency"`
	Balance   decimal.Decimal `json:"balance"`
	Available decimal.Decimal `json:"available"`
	Order     decimal.Decimal `json:"order"`
	Stake     decimal.Decimal `json:"stake"`
}

type accountSummaryResult struct {
	Accounts []Account `json:"accounts"`
}

type Order struct {
	OrderID        OrderID         `json:"order_id"`
	ClientOID      string          `json:"client_oid"`
	InstrumentName string          `json:"instrument_name"`
	Side           Side            `json:"side"`
	Type           OrderType       `json:"order_type"`
	Status         string          `json:"status"`
	Price          decimal.Decimal `json:"price"`
	LimitPrice     decimal.Decimal `json:"limit_price"`
	Quantity       decimal.Decimal `json:"quantity"`
	CumulativeQty  decimal.Decimal `json:"cumulative_quantity"`
	CreateTime     Millis          `json:"create_time"`
}

// EffectivePrice returns limit_price when present and falls back to the
// legacy price field.
func (o Order) EffectivePrice() decimal.Decimal {
	if !o.LimitPrice.IsZero() {
		return o.LimitPrice
	}
	return o.Price
}

type openOrdersResult struct {
	Data      []Order `json:"data"`
	OrderList []Order `json:"order_list"`
}

func (r openOrdersResult) orders() []Order {
	if len(r.Data) > 0 {
		return r.Data
	}
	return r.OrderList
}

type Trade struct {
	TradeID        OrderID         `json:"trade_id"`
	OrderID        OrderID         `json:"order_id"`
	ClientOID      string          `json:"client_oid"`
	InstrumentName string          `json:"instrument_name"`
	Side           Side            `json:"side"`
	TradedPrice    decimal.Decimal `json:"traded_price"`
	TradedQuantity decimal.Decimal `json:"traded_quantity"`
	Fees           decimal.Decimal `json:"fees"`
	CreateTime     Millis          `json:"create_time"`
}

type tradesResult struct {
	Data      []Trade `json:"data"`
	TradeList []Trade `json:"trade_list"`
}

func (r tradesResult) trades() []Trade {
	if len(r.Data) > 0 {
		return r.Data
	}
	return r.TradeList
}

type Ticker struct {
	Instrument string          `json:"i"`
	High       decimal.Decimal `json:"h"`
	Low        decimal.Decimal `json:"l"`
	Last       decimal.Decimal `json:"a"`
	Bid        decimal.Decimal `json:"b"`
	Ask        decimal.Decimal `json:"k"`
	Volume     decimal.Decimal `json:"v"`
	Timestamp  Millis          `json:"t"`
}

type tickersResult struct {
	Data []Ticker `json:"data"`
}

type OrderRequest struct {
	InstrumentName string
	Side           Side
	Type           OrderType
	Price          decimal.Decimal
	Quantity       decimal.Decimal
	ClientOID      string
}

type OrderResult struct {
	OrderID   OrderID `json:"order_id"`
	ClientOID string  `json:"client_oid"`
}
