package signer

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrUnsupportedParam = errors.New("unsupported param value")

// Params holds request parameters. Values must be scalars.
type Params map[string]any

// Signer holds the credentials used to sign private requests.
type Signer struct {
	apiKey    string
	secretKey string
}

func New(apiKey, secretKey string) *Signer {
	return &Signer{apiKey: apiKey, secretKey: secretKey}
}

func (s *Signer) APIKey() string {
	return s.apiKey
}

func (s *Signer) Sign(method string, params Params, nonce int64) (string, error) {
	return Sign(s.apiKey, s.secretKey, method, params, nonce)
}

// Sign returns the lowercase hex HMAC-SHA256 of Payload keyed by secretKey.
func Sign(apiKey, secretKey, method string, params Params, nonce int64) (string, error) {
	payload, err := Payload(apiKey, method, params, nonce)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, []byte(secretKey))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Payload builds method + nonce + apiKey followed by the param values in
// ascending key order. Keys themselves are not part of the payload.
func Payload(apiKey, method string, params Params, nonce int64) (string, error) {
	var b strings.Builder
	b.WriteString(method)
	b.WriteString(strconv.FormatInt(nonce, 10))
	b.WriteString(apiKey)

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		value, err := ParamString(params[k])
		if err != nil {
			return "", fmt.Errorf("param %q: %w", k, err)
		}
		b.WriteString(value)
	}
	return b.String(), nil
}

// ParamString renders a scalar param value the way it is signed.
func ParamString(value any) (string, error) {
	switch v := value.(type) {
	case nil:
		return "null", nil
	case string:
		return v, nil
	case decimal.Decimal:
		return v.String(), nil
	case *decimal.Decimal:
		if v == nil {
			return "null", nil
		}
		return v.String(), nil
	case bool:
		return strconv.FormatBool(v), nil
	case int:
		return strconv.FormatInt(int64(v), 10), nil
	case int8:
		return strconv.FormatInt(int64(v), 10), nil
	case int16:
		return strconv.FormatInt(int64(v), 10), nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case uint:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint8:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint16:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint64:
		return strconv.FormatUint(v, 10), nil
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case fmt.Stringer:
		return v.String(), nil
	default:
		return "", fmt.Errorf("%w: %T", ErrUnsupportedParam, value)
	}
}
