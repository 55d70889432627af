// Package portfolio computes the combined market value of holdings across
// every registered account.
package portfolio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"stratagem/internal/account"
)

// Valuator sums last price times quantity over all registered accounts.
// A failed sweep keeps the previous value; Value never goes backwards to
// zero because one broker call failed.
type Valuator struct {
	mu    sync.Mutex
	value decimal.Decimal

	subsMu sync.Mutex
	subs   map[int]chan decimal.Decimal
	nextID int

	registry *account.Registry
	log      *slog.Logger
}

// NewValuator creates a Valuator over the given account registry.
func NewValuator(registry *account.Registry, logger *slog.Logger) *Valuator {
	return &Valuator{
		subs:     make(map[int]chan decimal.Decimal),
		registry: registry,
		log:      logger,
	}
}

// Revalue performs one full sweep over every account's holdings and
// returns the new total. Any error aborts the sweep; the previous value is
// retained and returned.
func (v *Valuator) Revalue(ctx context.Context) decimal.Decimal {
	total, err := v.sweep(ctx)
	if err != nil {
		v.log.Warn("portfolio revaluation failed, keeping previous value", "error", err)
		return v.Value()
	}

	v.mu.Lock()
	v.value = total
	v.mu.Unlock()

	v.broadcast(total)
	return total
}

// Value returns the most recently computed portfolio value.
func (v *Valuator) Value() decimal.Decimal {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.value
}

func (v *Valuator) sweep(ctx context.Context) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, acct := range v.registry.List() {
		holdings, err := acct.Buy.Holdings(ctx)
		if err != nil {
			return decimal.Zero, fmt.Errorf("holdings for %s: %w", acct.ID, err)
		}
		for _, h := range holdings {
			value := decimal.NewFromFloat(h.LastPrice).Mul(decimal.NewFromInt(h.Quantity))
			total = total.Add(value)
		}
	}
	return total, nil
}

// ---------------------------------------------------------------------------
// Subscriptions
// ---------------------------------------------------------------------------

// Subscribe returns a channel receiving each new portfolio value and an id
// for Unsubscribe. Slow subscribers miss values rather than block the
// valuator.
func (v *Valuator) Subscribe(bufSize int) (int, <-chan decimal.Decimal) {
	v.subsMu.Lock()
	defer v.subsMu.Unlock()

	v.nextID++
	ch := make(chan decimal.Decimal, bufSize)
	v.subs[v.nextID] = ch
	return v.nextID, ch
}

// Unsubscribe removes a subscription and closes its channel.
func (v *Valuator) Unsubscribe(id int) {
	v.subsMu.Lock()
	defer v.subsMu.Unlock()

	if ch, ok := v.subs[id]; ok {
		delete(v.subs, id)
		close(ch)
	}
}

func (v *Valuator) broadcast(value decimal.Decimal) {
	v.subsMu.Lock()
	defer v.subsMu.Unlock()

	for _, ch := range v.subs {
		select {
		case ch <- value:
		default:
		}
	}
}
