package state

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type OpenOrder struct {
	ClientOrderID string          `json:"client_order_id,omitempty"`
	OrderID       string          `json:"order_id"`
	Side          string          `json:"side"`
	Price         decimal.Decimal `json:"price"`
	Qty           decimal.Decimal `json:"qty"`
	Status        string          `json:"status"`
}

type Balance struct {
	Currency  string          `json:"currency"`
	Balance   decimal.Decimal `json:"balance"`
	Available decimal.Decimal `json:"available"`
	InOrders  decimal.Decimal `json:"in_orders"`
}

// Cycle summarises the most recent engine iteration.
type Cycle struct {
	Time   time.Time `json:"time"`
	Result string    `json:"result"`
	Reason string    `json:"reason,omitempty"`
}

type Snapshot struct {
	Instrument    string               `json:"instrument"`
	Cycles        int64                `json:"cycles"`
	LastCycle     Cycle                `json:"last_cycle"`
	LastPrice     decimal.Decimal      `json:"last_price"`
	HasPosition   bool                 `json:"has_position"`
	LastBuyPrice  decimal.Decimal      `json:"last_buy_price"`
	LastTradeTime time.Time            `json:"last_trade_time"`
	OpenOrders    map[string]OpenOrder `json:"open_orders"`
	Balances      []Balance            `json:"balances"`
	LastReconcile time.Time            `json:"last_reconcile"`
}

// Store is shared between the engine, the reconcile loop and the status
// server. Snapshot always returns a deep copy.
type Store struct {
	mu       sync.RWMutex
	snapshot Snapshot
}

func NewStore(instrument string) *Store {
	return &Store{
		snapshot: Snapshot{
			Instrument: instrument,
			OpenOrders: map[string]OpenOrder{},
			Balances:   []Balance{},
		},
	}
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.snapshot
	out.OpenOrders = make(map[string]OpenOrder, len(s.snapshot.OpenOrders))
	for k, v := range s.snapshot.OpenOrders {
		out.OpenOrders[k] = v
	}
	out.Balances = append([]Balance{}, s.snapshot.Balances...)
	return out
}

func (s *Store) RecordCycle(c Cycle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.Cycles++
	s.snapshot.LastCycle = c
}

func (s *Store) SetPrice(price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.LastPrice = price
}

// SetPosition records the outcome of position detection. A flat position
// clears the last buy price.
func (s *Store) SetPosition(hasPosition bool, lastBuy decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.HasPosition = hasPosition
	if !hasPosition {
		lastBuy = decimal.Zero
	}
	s.snapshot.LastBuyPrice = lastBuy
}

func (s *Store) SetLastTradeTime(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.LastTradeTime = t
}

func (s *Store) SetOpenOrders(orders map[string]OpenOrder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if orders == nil {
		orders = map[string]OpenOrder{}
	}
	s.snapshot.OpenOrders = orders
}

// AddOpenOrder tracks an order placed by this process until the next
// reconcile replaces the set.
func (s *Store) AddOpenOrder(order OpenOrder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.OpenOrders[order.OrderID] = order
}

func (s *Store) SetBalances(balances []Balance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.Balances = append([]Balance{}, balances...)
}

func (s *Store) SetLastReconcile(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.LastReconcile = t
}
