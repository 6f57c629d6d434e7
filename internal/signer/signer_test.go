package signer

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

const (
	testKey    = "token"
	testSecret = "secret"
	testMethod = "private/create-order"
)

func TestSignKnownAnswer(t *testing.T) {
	sig, err := Sign(testKey, testSecret, "private/get-open-orders", Params{"instrument_name": "BTC_USDT"}, 1587846358253)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	want := "bb9d44707a4668b9e00f0a53359e1be930da320f912fcf1220f012075d4ccf08"
	if sig != want {
		t.Fatalf("expected %s, got %s", want, sig)
	}
}

func TestSignIsDeterministic(t *testing.T) {
	params := Params{"instrument_name": "BTC_USDT", "price": "100.01", "quantity": decimal.RequireFromString("0.5")}
	first, err := Sign(testKey, testSecret, testMethod, params, 42)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	second, err := Sign(testKey, testSecret, testMethod, params, 42)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if first != second {
		t.Fatalf("expected identical signatures, got %s and %s", first, second)
	}
}

func TestSignIgnoresParamInsertionOrder(t *testing.T) {
	a := Params{}
	a["b"] = 1
	a["a"] = 2
	b := Params{}
	b["a"] = 2
	b["b"] = 1

	sigA, err := Sign(testKey, testSecret, testMethod, a, 7)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	sigB, err := Sign(testKey, testSecret, testMethod, b, 7)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if sigA != sigB {
		t.Fatalf("expected order-independent signature")
	}

	payload, err := Payload(testKey, testMethod, a, 7)
	if err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload != testMethod+"7"+testKey+"21" {
		t.Fatalf("unexpected payload %q", payload)
	}
}

func TestSignEmptyParamsUsesPrefixOnly(t *testing.T) {
	payload, err := Payload("key", "public/get-tickers", nil, 1000)
	if err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload != "public/get-tickers1000key" {
		t.Fatalf("unexpected payload %q", payload)
	}

	withNil, err := Sign("key", testSecret, "public/get-tickers", nil, 1000)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	withEmpty, err := Sign("key", testSecret, "public/get-tickers", Params{}, 1000)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	want := "1e50cbfc73cc32509fff9810971e929ff347d2b3a68dd9573168e599669ac417"
	if withNil != want || withEmpty != want {
		t.Fatalf("expected %s, got %s and %s", want, withNil, withEmpty)
	}
}

func TestSignChangesWithEveryInput(t *testing.T) {
	base := Params{"instrument_name": "BTC_USDT", "side": "BUY", "price": "100.01"}
	baseSig, err := Sign(testKey, testSecret, testMethod, base, 1000)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	cases := []struct {
		name   string
		method string
		params Params
		nonce  int64
	}{
		{name: "nonce", method: testMethod, params: base, nonce: 1001},
		{name: "method", method: "private/cancel-order", params: base, nonce: 1000},
		{name: "price", method: testMethod, params: Params{"instrument_name": "BTC_USDT", "side": "BUY", "price": "100.02"}, nonce: 1000},
		{name: "side", method: testMethod, params: Params{"instrument_name": "BTC_USDT", "side": "SELL", "price": "100.01"}, nonce: 1000},
		{name: "value embeds method", method: testMethod, params: Params{"instrument_name": testMethod, "side": "BUY", "price": "100.01"}, nonce: 1000},
		{name: "value embeds nonce", method: testMethod, params: Params{"instrument_name": "BTC_USDT1000", "side": "BUY", "price": "100.01"}, nonce: 1000},
		{name: "extra param", method: testMethod, params: Params{"instrument_name": "BTC_USDT", "side": "BUY", "price": "100.01", "type": "LIMIT"}, nonce: 1000},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sig, err := Sign(testKey, testSecret, tc.method, tc.params, tc.nonce)
			if err != nil {
				t.Fatalf("sign: %v", err)
			}
			if sig == baseSig {
				t.Fatalf("expected signature to change")
			}
		})
	}
}

func TestSignerUsesCredentials(t *testing.T) {
	s := New(testKey, testSecret)
	if s.APIKey() != testKey {
		t.Fatalf("unexpected api key %q", s.APIKey())
	}
	got, err := s.Sign("private/get-open-orders", Params{"instrument_name": "BTC_USDT"}, 1587846358253)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	want, _ := Sign(testKey, testSecret, "private/get-open-orders", Params{"instrument_name": "BTC_USDT"}, 1587846358253)
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
	other, _ := Sign(testKey, "other-secret", "private/get-open-orders", Params{"instrument_name": "BTC_USDT"}, 1587846358253)
	if got == other {
		t.Fatalf("expected secret to affect signature")
	}
}

func TestParamString(t *testing.T) {
	cases := []struct {
		value any
		want  string
	}{
		{value: "BTC_USDT", want: "BTC_USDT"},
		{value: 60000, want: "60000"},
		{value: int64(-5), want: "-5"},
		{value: uint32(7), want: "7"},
		{value: 60000.0, want: "60000"},
		{value: 0.0001, want: "0.0001"},
		{value: 100.01, want: "100.01"},
		{value: float32(0.5), want: "0.5"},
		{value: decimal.RequireFromString("100.9899"), want: "100.9899"},
		{value: decimal.RequireFromString("1.500"), want: "1.5"},
		{value: true, want: "true"},
		{value: nil, want: "null"},
	}
	for _, tc := range cases {
		got, err := ParamString(tc.value)
		if err != nil {
			t.Fatalf("ParamString(%v): %v", tc.value, err)
		}
		if got != tc.want {
			t.Fatalf("ParamString(%v) = %q, want %q", tc.value, got, tc.want)
		}
	}
}

func TestParamStringRejectsNested(t *testing.T) {
	if _, err := ParamString(map[string]any{"a": 1}); !errors.Is(err, ErrUnsupportedParam) {
		t.Fatalf("expected ErrUnsupportedParam, got %v", err)
	}
	if _, err := Sign(testKey, testSecret, testMethod, Params{"list": []int{1}}, 1); !errors.Is(err, ErrUnsupportedParam) {
		t.Fatalf("expected sign to reject nested value, got %v", err)
	}
}
