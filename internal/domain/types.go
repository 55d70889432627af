// Package domain defines the value types shared by the trading engine's
// components: quotes, instruments, holdings, orders, and signals.
package domain

import "time"

// ---------------------------------------------------------------------------
// Enumerations
// ---------------------------------------------------------------------------

// Action is the side of an order.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

// OrderType selects market or limit execution.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// Signal is the outcome of evaluating one strategy against one symbol's
// price series.
type Signal int

const (
	SignalNone Signal = iota
	SignalBuy
	SignalSell
)

// String returns the signal name.
func (s Signal) String() string {
	switch s {
	case SignalBuy:
		return "BUY"
	case SignalSell:
		return "SELL"
	default:
		return "NONE"
	}
}

// Action converts a non-NONE signal to the order side it implies.
func (s Signal) Action() Action {
	if s == SignalSell {
		return ActionSell
	}
	return ActionBuy
}

// Order parameters fixed by the broker integration. Every order placed by
// the engine is an intraday NSE order of the regular variety.
const (
	DefaultExchange = "NSE"
	DefaultProduct  = "MIS"
	DefaultVariety  = "regular"
)

// ---------------------------------------------------------------------------
// Value types
// ---------------------------------------------------------------------------

// Quote is the latest market snapshot for one symbol. It is replaced in
// place on every polling tick; no history is retained.
type Quote struct {
	Symbol     string
	LastPrice  float64
	ChangePct  float64
	Volume     int64
	ObservedAt time.Time
}

// Instrument is immutable reference data from the broker's instrument dump.
type Instrument struct {
	Symbol         string
	Name           string
	Exchange       string
	InstrumentType string
}

// Holding is one position held in an account, as reported by the broker.
type Holding struct {
	Symbol    string
	Quantity  int64
	LastPrice float64
}

// OrderRequest describes one order to be placed through a registered
// account. Tag carries caller context (the originating strategy name for
// automated orders) and appears in the transaction log entry.
type OrderRequest struct {
	AccountID  string
	Symbol     string
	Action     Action
	Quantity   int64
	OrderType  OrderType
	LimitPrice float64 // LIMIT orders only
	Tag        string
}
