package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"stratagem/internal/account"
	"stratagem/internal/catalog"
	"stratagem/internal/domain"
	"stratagem/internal/history"
	"stratagem/internal/store"
	"stratagem/internal/txlog"
	"stratagem/internal/util"
)

// OrderPlacer submits an order and returns the broker-assigned id.
type OrderPlacer interface {
	Place(ctx context.Context, req domain.OrderRequest) (string, error)
}

// Engine owns the strategy collection and runs the evaluation loop.
// Mutations persist immediately; the loop evaluates enabled strategies
// against their bound symbols while the venue is open and forwards
// non-empty signals to the order placer.
type Engine struct {
	mu     sync.Mutex
	defs   map[int64]*Definition
	order  []int64
	nextID int64

	history   history.Provider
	seriesLen int
	catalog   *catalog.Catalog
	store     store.StrategyStore
	txlog     *txlog.Log
	placer    OrderPlacer
	selection *account.SelectionContext
	calendar  *util.TradingCalendar
	interval  time.Duration
	backoff   time.Duration
	log       *slog.Logger
}

// NewEngine creates a strategy engine wired with the given collaborators.
// A nil catalog disables symbol validation on Bind.
func NewEngine(
	provider history.Provider,
	seriesLen int,
	cat *catalog.Catalog,
	st store.StrategyStore,
	tl *txlog.Log,
	placer OrderPlacer,
	selection *account.SelectionContext,
	calendar *util.TradingCalendar,
	interval, backoff time.Duration,
	logger *slog.Logger,
) *Engine {
	if seriesLen <= 0 {
		seriesLen = history.DefaultLength
	}
	return &Engine{
		defs:      make(map[int64]*Definition),
		history:   provider,
		seriesLen: seriesLen,
		catalog:   cat,
		store:     st,
		txlog:     tl,
		placer:    placer,
		selection: selection,
		calendar:  calendar,
		interval:  interval,
		backoff:   backoff,
		log:       logger,
	}
}

// ---------------------------------------------------------------------------
// Collection operations
// ---------------------------------------------------------------------------

// Add validates the definition, assigns it the next sequential id, and
// persists the collection.
func (e *Engine) Add(def Definition) (int64, error) {
	if err := def.Validate(); err != nil {
		return 0, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextID++
	def.ID = e.nextID
	def.Instruments = append([]string(nil), def.Instruments...)
	e.defs[def.ID] = &def
	e.order = append(e.order, def.ID)

	if err := e.persistLocked(); err != nil {
		delete(e.defs, def.ID)
		e.order = e.order[:len(e.order)-1]
		e.nextID--
		return 0, fmt.Errorf("persisting strategies: %w", err)
	}
	e.txlog.Append("Added strategy: %s", def.Name)
	return def.ID, nil
}

// Update replaces the name, kind, parameters, and enabled state of an
// existing strategy. Bindings are kept; Bind and Unbind manage those.
func (e *Engine) Update(id int64, def Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	cur, ok := e.defs[id]
	if !ok {
		return ErrNotFound
	}
	prev := *cur
	cur.Name = def.Name
	cur.Kind = def.Kind
	cur.MA = def.MA
	cur.RSI = def.RSI
	cur.MACD = def.MACD
	cur.Enabled = def.Enabled

	if err := e.persistLocked(); err != nil {
		*cur = prev
		return fmt.Errorf("persisting strategies: %w", err)
	}
	e.txlog.Append("Updated strategy: %s", cur.Name)
	return nil
}

// Remove deletes a strategy and all of its bindings.
func (e *Engine) Remove(id int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	def, ok := e.defs[id]
	if !ok {
		return ErrNotFound
	}
	delete(e.defs, id)
	pos := -1
	for i, oid := range e.order {
		if oid == id {
			pos = i
			break
		}
	}
	e.order = append(e.order[:pos], e.order[pos+1:]...)

	if err := e.persistLocked(); err != nil {
		e.defs[id] = def
		e.order = append(e.order[:pos], append([]int64{id}, e.order[pos:]...)...)
		return fmt.Errorf("persisting strategies: %w", err)
	}
	e.txlog.Append("Deleted strategy: %s", def.Name)
	return nil
}

// SetEnabled toggles whether a strategy participates in evaluation.
func (e *Engine) SetEnabled(id int64, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	def, ok := e.defs[id]
	if !ok {
		return ErrNotFound
	}
	prev := def.Enabled
	def.Enabled = enabled

	if err := e.persistLocked(); err != nil {
		def.Enabled = prev
		return fmt.Errorf("persisting strategies: %w", err)
	}
	if enabled {
		e.txlog.Append("Enabled strategy: %s", def.Name)
	} else {
		e.txlog.Append("Disabled strategy: %s", def.Name)
	}
	return nil
}

// Bind attaches a symbol to a strategy. Binding a symbol that is already
// bound is a no-op. The same symbol may be bound to several strategies.
func (e *Engine) Bind(id int64, symbol string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	def, ok := e.defs[id]
	if !ok {
		return ErrNotFound
	}
	for _, s := range def.Instruments {
		if s == symbol {
			return nil
		}
	}
	if e.catalog != nil && !e.catalog.Has(symbol) {
		return fmt.Errorf("symbol %q not in instrument catalog", symbol)
	}
	def.Instruments = append(def.Instruments, symbol)

	if err := e.persistLocked(); err != nil {
		def.Instruments = def.Instruments[:len(def.Instruments)-1]
		return fmt.Errorf("persisting strategies: %w", err)
	}
	e.txlog.Append("Bound %s to strategy: %s", symbol, def.Name)
	return nil
}

// Unbind detaches a symbol from one strategy only. Unbinding a symbol that
// is not bound is a no-op.
func (e *Engine) Unbind(id int64, symbol string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	def, ok := e.defs[id]
	if !ok {
		return ErrNotFound
	}
	pos := -1
	for i, s := range def.Instruments {
		if s == symbol {
			pos = i
			break
		}
	}
	if pos < 0 {
		return nil
	}
	prev := append([]string(nil), def.Instruments...)
	def.Instruments = append(def.Instruments[:pos], def.Instruments[pos+1:]...)

	if err := e.persistLocked(); err != nil {
		def.Instruments = prev
		return fmt.Errorf("persisting strategies: %w", err)
	}
	e.txlog.Append("Unbound %s from strategy: %s", symbol, def.Name)
	return nil
}

// Get returns a copy of one strategy definition.
func (e *Engine) Get(id int64) (Definition, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	def, ok := e.defs[id]
	if !ok {
		return Definition{}, ErrNotFound
	}
	return def.clone(), nil
}

// List returns copies of all definitions in creation order.
func (e *Engine) List() []Definition {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Definition, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, e.defs[id].clone())
	}
	return out
}

// BoundTo returns copies of the strategies a symbol is bound to, in
// creation order.
func (e *Engine) BoundTo(symbol string) []Definition {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []Definition
	for _, id := range e.order {
		def := e.defs[id]
		for _, s := range def.Instruments {
			if s == symbol {
				out = append(out, def.clone())
				break
			}
		}
	}
	return out
}

// Restore loads the persisted strategy collection, replacing in-memory
// state. Records are trusted as previously validated.
func (e *Engine) Restore() error {
	records, err := e.store.LoadStrategies()
	if err != nil {
		return fmt.Errorf("loading strategies: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.defs = make(map[int64]*Definition, len(records))
	e.order = e.order[:0]
	e.nextID = 0
	for _, r := range records {
		def := &Definition{
			ID:          r.ID,
			Name:        r.Name,
			Kind:        Kind(r.Kind),
			Enabled:     r.Enabled,
			Instruments: append([]string(nil), r.Instruments...),
		}
		if err := decodeParams(def, r.Params); err != nil {
			return fmt.Errorf("decoding params for strategy %d: %w", r.ID, err)
		}
		e.defs[r.ID] = def
		e.order = append(e.order, r.ID)
		if r.ID > e.nextID {
			e.nextID = r.ID
		}
	}
	e.log.Info("restored strategies", "count", len(records))
	return nil
}

func (e *Engine) persistLocked() error {
	records := make([]store.StrategyRecord, 0, len(e.order))
	for _, id := range e.order {
		def := e.defs[id]
		params, err := encodeParams(def)
		if err != nil {
			return err
		}
		records = append(records, store.StrategyRecord{
			ID:          def.ID,
			Name:        def.Name,
			Kind:        string(def.Kind),
			Enabled:     def.Enabled,
			Params:      params,
			Instruments: append([]string(nil), def.Instruments...),
		})
	}
	return e.store.SaveStrategies(records)
}

// ---------------------------------------------------------------------------
// Evaluation loop
// ---------------------------------------------------------------------------

// Run evaluates strategies on the configured interval until the context is
// cancelled. Ticks outside venue hours are skipped. A tick that panics is
// logged and followed by a backoff; the loop never exits on error.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if e.calendar != nil && !e.calendar.IsOpen(now) {
				continue
			}
			if !e.safeTick(ctx) {
				select {
				case <-ctx.Done():
					return
				case <-time.After(e.backoff):
				}
			}
		}
	}
}

// safeTick runs one tick, converting a panic into a logged failure.
func (e *Engine) safeTick(ctx context.Context) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("evaluation tick panicked", "panic", r)
			e.txlog.Append("Error in evaluation tick: %v", r)
			ok = false
		}
	}()
	e.tick(ctx)
	return true
}

// tick evaluates every enabled (strategy, symbol) pair once. Per-pair
// failures are logged and treated as no signal.
func (e *Engine) tick(ctx context.Context) {
	e.mu.Lock()
	enabled := make([]Definition, 0, len(e.order))
	for _, id := range e.order {
		if def := e.defs[id]; def.Enabled {
			enabled = append(enabled, def.clone())
		}
	}
	e.mu.Unlock()

	for _, def := range enabled {
		for _, symbol := range def.Instruments {
			series, err := e.history.Series(ctx, symbol, e.seriesLen)
			if err != nil {
				e.log.Error("history fetch failed", "strategy", def.Name, "symbol", symbol, "error", err)
				e.txlog.Append("Error in strategy %s for %s: %v", def.Name, symbol, err)
				continue
			}
			sig := def.Evaluate(series)
			if sig == domain.SignalNone {
				continue
			}
			e.dispatch(ctx, def, symbol, sig)
		}
	}
}

// dispatch forwards one signal to the order placer against the currently
// selected account. Signals with no account selected are logged and
// dropped.
func (e *Engine) dispatch(ctx context.Context, def Definition, symbol string, sig domain.Signal) {
	accountID, ok := e.selection.Selected()
	if !ok {
		e.txlog.Append("No account selected, dropped %s signal for %s from strategy %s", sig, symbol, def.Name)
		return
	}

	req := domain.OrderRequest{
		AccountID: accountID,
		Symbol:    symbol,
		Action:    sig.Action(),
		Quantity:  1,
		OrderType: domain.OrderTypeMarket,
		Tag:       def.Name,
	}
	if _, err := e.placer.Place(ctx, req); err != nil {
		e.log.Error("signal order rejected", "strategy", def.Name, "symbol", symbol, "signal", sig.String(), "error", err)
	}
}
