package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"stratagem/internal/account"
	"stratagem/internal/domain"
	"stratagem/internal/store"
	"stratagem/internal/txlog"
)

// ---------------------------------------------------------------------------
// Test doubles
// ---------------------------------------------------------------------------

type scriptedHistory struct {
	mu     sync.Mutex
	series map[string][]float64
	errs   map[string]error
}

func (h *scriptedHistory) Series(_ context.Context, symbol string, length int) ([]float64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.errs[symbol]; err != nil {
		return nil, err
	}
	s, ok := h.series[symbol]
	if !ok {
		return nil, fmt.Errorf("no series for %s", symbol)
	}
	if len(s) > length {
		s = s[len(s)-length:]
	}
	return append([]float64(nil), s...), nil
}

type recordingPlacer struct {
	mu   sync.Mutex
	reqs []domain.OrderRequest
	err  error
}

func (p *recordingPlacer) Place(_ context.Context, req domain.OrderRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.reqs = append(p.reqs, req)
	return fmt.Sprintf("ord-%d", len(p.reqs)), nil
}

func (p *recordingPlacer) requests() []domain.OrderRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.OrderRequest(nil), p.reqs...)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type testRig struct {
	engine    *Engine
	history   *scriptedHistory
	placer    *recordingPlacer
	selection *account.SelectionContext
	store     *store.SQLiteStore
	txlog     *txlog.Log
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()
	dir := t.TempDir()

	st, err := store.NewSQLiteStore(filepath.Join(dir, "engine.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	tl, err := txlog.Open(filepath.Join(dir, "tx.log"), quietLogger())
	if err != nil {
		t.Fatalf("txlog.Open: %v", err)
	}
	t.Cleanup(func() { tl.Close() })

	hist := &scriptedHistory{series: make(map[string][]float64), errs: make(map[string]error)}
	placer := &recordingPlacer{}
	sel := account.NewSelectionContext()
	sel.Select("acct-1")

	eng := NewEngine(hist, 100, nil, st, tl, placer, sel, nil, time.Hour, time.Millisecond, quietLogger())
	return &testRig{engine: eng, history: hist, placer: placer, selection: sel, store: st, txlog: tl}
}

func constantSeries(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// ---------------------------------------------------------------------------
// Indicators
// ---------------------------------------------------------------------------

func TestSMA(t *testing.T) {
	got := SMA([]float64{1, 2, 3, 4, 5}, 3)
	if !math.IsNaN(got[0]) || !math.IsNaN(got[1]) {
		t.Errorf("expected NaN before the window fills, got %v", got[:2])
	}
	want := []float64{2, 3, 4}
	for i, w := range want {
		if got[i+2] != w {
			t.Errorf("SMA[%d] = %v, want %v", i+2, got[i+2], w)
		}
	}
}

func TestRSIMonotonicDecreasing(t *testing.T) {
	series := make([]float64, 30)
	for i := range series {
		series[i] = 100 - float64(i)
	}
	rsi := RSI(series, 14)
	last := rsi[len(rsi)-1]
	if last != 0 {
		t.Errorf("RSI of strictly decreasing series = %v, want 0", last)
	}
}

func TestMACDConstantSeries(t *testing.T) {
	macd, signal := MACD(constantSeries(60, 100), 12, 26, 9)
	last := len(macd) - 1
	if macd[last] != 0 || signal[last] != 0 {
		t.Errorf("MACD on constant series = (%v, %v), want (0, 0)", macd[last], signal[last])
	}
}

// ---------------------------------------------------------------------------
// Signal evaluation
// ---------------------------------------------------------------------------

func TestMACrossConstantSeriesYieldsNone(t *testing.T) {
	def := Definition{Name: "ma", Kind: KindMACrossover, MA: MAParams{Short: 20, Long: 50}}
	if sig := def.Evaluate(constantSeries(80, 100)); sig != domain.SignalNone {
		t.Errorf("constant series signal = %v, want NONE", sig)
	}
}

func TestMACrossShortSeriesYieldsNone(t *testing.T) {
	def := Definition{Name: "ma", Kind: KindMACrossover, MA: MAParams{Short: 20, Long: 50}}
	if sig := def.Evaluate(constantSeries(40, 100)); sig != domain.SignalNone {
		t.Errorf("short series signal = %v, want NONE", sig)
	}
}

func TestMACrossUpwardOnLastObservation(t *testing.T) {
	// Flat at 100, then a spike on the final close. Before the spike both
	// averages sit at 100; after it the short average leads.
	series := constantSeries(70, 100)
	series[len(series)-1] = 200

	def := Definition{Name: "ma", Kind: KindMACrossover, MA: MAParams{Short: 20, Long: 50}}
	if sig := def.Evaluate(series); sig != domain.SignalBuy {
		t.Errorf("signal = %v, want BUY", sig)
	}
}

func TestMACrossDownwardOnLastObservation(t *testing.T) {
	series := constantSeries(70, 100)
	series[len(series)-1] = 50

	def := Definition{Name: "ma", Kind: KindMACrossover, MA: MAParams{Short: 20, Long: 50}}
	if sig := def.Evaluate(series); sig != domain.SignalSell {
		t.Errorf("signal = %v, want SELL", sig)
	}
}

func TestRSIDecreasingSeriesYieldsBuy(t *testing.T) {
	series := make([]float64, 40)
	for i := range series {
		series[i] = 200 - float64(i)
	}
	def := Definition{Name: "rsi", Kind: KindRSI, RSI: DefaultRSIParams()}
	if sig := def.Evaluate(series); sig != domain.SignalBuy {
		t.Errorf("signal = %v, want BUY", sig)
	}
}

func TestRSIIncreasingSeriesYieldsSell(t *testing.T) {
	series := make([]float64, 40)
	for i := range series {
		series[i] = 100 + float64(i)
	}
	def := Definition{Name: "rsi", Kind: KindRSI, RSI: DefaultRSIParams()}
	if sig := def.Evaluate(series); sig != domain.SignalSell {
		t.Errorf("signal = %v, want SELL", sig)
	}
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

func TestValidation(t *testing.T) {
	cases := []struct {
		name string
		def  Definition
		ok   bool
	}{
		{"valid ma", Definition{Name: "a", Kind: KindMACrossover, MA: DefaultMAParams()}, true},
		{"short >= long", Definition{Name: "a", Kind: KindMACrossover, MA: MAParams{Short: 50, Long: 20}}, false},
		{"zero period", Definition{Name: "a", Kind: KindRSI, RSI: RSIParams{Period: 0, Overbought: 70, Oversold: 30}}, false},
		{"oversold >= overbought", Definition{Name: "a", Kind: KindRSI, RSI: RSIParams{Period: 14, Overbought: 30, Oversold: 70}}, false},
		{"valid macd", Definition{Name: "a", Kind: KindMACD, MACD: DefaultMACDParams()}, true},
		{"fast >= slow", Definition{Name: "a", Kind: KindMACD, MACD: MACDParams{Fast: 26, Slow: 12, Signal: 9}}, false},
		{"empty name", Definition{Name: "", Kind: KindRSI, RSI: DefaultRSIParams()}, false},
		{"unknown kind", Definition{Name: "a", Kind: "bollinger"}, false},
	}
	for _, tc := range cases {
		err := tc.def.Validate()
		if tc.ok && err != nil {
			t.Errorf("%s: unexpected error %v", tc.name, err)
		}
		if !tc.ok && err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}

// ---------------------------------------------------------------------------
// Engine collection operations
// ---------------------------------------------------------------------------

func TestAddAssignsSequentialIDs(t *testing.T) {
	rig := newTestRig(t)

	id1, err := rig.engine.Add(Definition{Name: "first", Kind: KindRSI, RSI: DefaultRSIParams()})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	id2, err := rig.engine.Add(Definition{Name: "second", Kind: KindMACD, MACD: DefaultMACDParams()})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if id1 != 1 || id2 != 2 {
		t.Errorf("ids = %d, %d, want 1, 2", id1, id2)
	}
}

func TestUnknownIDErrors(t *testing.T) {
	rig := newTestRig(t)

	if err := rig.engine.Remove(99); !errors.Is(err, ErrNotFound) {
		t.Errorf("Remove(99) = %v, want ErrNotFound", err)
	}
	if err := rig.engine.SetEnabled(99, true); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetEnabled(99) = %v, want ErrNotFound", err)
	}
	if err := rig.engine.Bind(99, "INFY"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Bind(99) = %v, want ErrNotFound", err)
	}
}

func TestBindUnbindIndependence(t *testing.T) {
	rig := newTestRig(t)

	id1, _ := rig.engine.Add(Definition{Name: "a", Kind: KindRSI, RSI: DefaultRSIParams()})
	id2, _ := rig.engine.Add(Definition{Name: "b", Kind: KindRSI, RSI: DefaultRSIParams()})

	for _, id := range []int64{id1, id2} {
		if err := rig.engine.Bind(id, "INFY"); err != nil {
			t.Fatalf("Bind: %v", err)
		}
	}
	// Duplicate bind is a no-op.
	if err := rig.engine.Bind(id1, "INFY"); err != nil {
		t.Fatalf("duplicate Bind: %v", err)
	}
	if def, _ := rig.engine.Get(id1); len(def.Instruments) != 1 {
		t.Errorf("duplicate bind grew instruments: %v", def.Instruments)
	}

	if err := rig.engine.Unbind(id1, "INFY"); err != nil {
		t.Fatalf("Unbind: %v", err)
	}
	if def, _ := rig.engine.Get(id1); len(def.Instruments) != 0 {
		t.Errorf("unbind left instruments on a: %v", def.Instruments)
	}
	if got := rig.engine.BoundTo("INFY"); len(got) != 1 || got[0].ID != id2 {
		t.Errorf("BoundTo after unbind = %+v, want only strategy b", got)
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	rig := newTestRig(t)

	id, err := rig.engine.Add(Definition{
		Name:    "swing",
		Kind:    KindMACrossover,
		MA:      MAParams{Short: 10, Long: 30},
		Enabled: true,
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := rig.engine.Bind(id, "INFY"); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if _, err := rig.engine.Add(Definition{Name: "osc", Kind: KindRSI, RSI: DefaultRSIParams()}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	fresh := NewEngine(rig.history, 100, nil, rig.store, rig.txlog, rig.placer, rig.selection, nil, time.Hour, time.Millisecond, quietLogger())
	if err := fresh.Restore(); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	defs := fresh.List()
	if len(defs) != 2 {
		t.Fatalf("restored %d strategies, want 2", len(defs))
	}
	got := defs[0]
	if got.ID != id || got.Name != "swing" || got.Kind != KindMACrossover || !got.Enabled {
		t.Errorf("restored definition = %+v", got)
	}
	if got.MA != (MAParams{Short: 10, Long: 30}) {
		t.Errorf("restored params = %+v", got.MA)
	}
	if !reflect.DeepEqual(got.Instruments, []string{"INFY"}) {
		t.Errorf("restored instruments = %v", got.Instruments)
	}

	// New ids continue after the highest restored id.
	id3, err := fresh.Add(Definition{Name: "third", Kind: KindMACD, MACD: DefaultMACDParams()})
	if err != nil {
		t.Fatalf("Add after restore: %v", err)
	}
	if id3 != 3 {
		t.Errorf("id after restore = %d, want 3", id3)
	}
}

// ---------------------------------------------------------------------------
// Evaluation loop
// ---------------------------------------------------------------------------

func buySeries() []float64 {
	s := constantSeries(100, 100)
	s[len(s)-1] = 200
	return s
}

func TestTickDispatchesExactlyOneOrder(t *testing.T) {
	rig := newTestRig(t)
	rig.history.series["XYZ"] = buySeries()

	id, _ := rig.engine.Add(Definition{
		Name:    "cross",
		Kind:    KindMACrossover,
		MA:      MAParams{Short: 20, Long: 50},
		Enabled: true,
	})
	if err := rig.engine.Bind(id, "XYZ"); err != nil {
		t.Fatalf("Bind: %v", err)
	}

	rig.engine.tick(context.Background())

	reqs := rig.placer.requests()
	if len(reqs) != 1 {
		t.Fatalf("dispatched %d orders, want 1", len(reqs))
	}
	req := reqs[0]
	if req.Action != domain.ActionBuy || req.Quantity != 1 || req.OrderType != domain.OrderTypeMarket {
		t.Errorf("order = %+v, want BUY qty 1 MARKET", req)
	}
	if req.AccountID != "acct-1" || req.Symbol != "XYZ" || req.Tag != "cross" {
		t.Errorf("order routing = %+v", req)
	}
}

func TestToggleTwiceRestoresParticipation(t *testing.T) {
	rig := newTestRig(t)
	rig.history.series["XYZ"] = buySeries()

	id, _ := rig.engine.Add(Definition{
		Name:    "cross",
		Kind:    KindMACrossover,
		MA:      MAParams{Short: 20, Long: 50},
		Enabled: true,
	})
	rig.engine.Bind(id, "XYZ")

	if err := rig.engine.SetEnabled(id, false); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}
	rig.engine.tick(context.Background())
	if got := len(rig.placer.requests()); got != 0 {
		t.Fatalf("disabled strategy dispatched %d orders", got)
	}

	if err := rig.engine.SetEnabled(id, true); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}
	rig.engine.tick(context.Background())
	if got := len(rig.placer.requests()); got != 1 {
		t.Errorf("re-enabled strategy dispatched %d orders, want 1", got)
	}
}

func TestRemovedStrategyNeverEvaluated(t *testing.T) {
	rig := newTestRig(t)
	rig.history.series["XYZ"] = buySeries()

	id, _ := rig.engine.Add(Definition{
		Name:    "cross",
		Kind:    KindMACrossover,
		MA:      MAParams{Short: 20, Long: 50},
		Enabled: true,
	})
	rig.engine.Bind(id, "XYZ")

	if err := rig.engine.Remove(id); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if got := rig.engine.BoundTo("XYZ"); len(got) != 0 {
		t.Errorf("removed strategy still bound: %+v", got)
	}

	rig.engine.tick(context.Background())
	if got := len(rig.placer.requests()); got != 0 {
		t.Errorf("removed strategy dispatched %d orders", got)
	}
}

func TestNoSelectionDropsSignal(t *testing.T) {
	rig := newTestRig(t)
	rig.history.series["XYZ"] = buySeries()
	rig.selection.Clear()

	id, _ := rig.engine.Add(Definition{
		Name:    "cross",
		Kind:    KindMACrossover,
		MA:      MAParams{Short: 20, Long: 50},
		Enabled: true,
	})
	rig.engine.Bind(id, "XYZ")

	rig.engine.tick(context.Background())

	if got := len(rig.placer.requests()); got != 0 {
		t.Fatalf("dispatched %d orders with no selection", got)
	}
	entries := rig.txlog.Entries()
	last := entries[len(entries)-1].Message
	if last != "No account selected, dropped BUY signal for XYZ from strategy cross" {
		t.Errorf("drop log entry = %q", last)
	}
}

func TestHistoryErrorSkipsPairOnly(t *testing.T) {
	rig := newTestRig(t)
	rig.history.errs["BAD"] = errors.New("feed down")
	rig.history.series["XYZ"] = buySeries()

	id, _ := rig.engine.Add(Definition{
		Name:    "cross",
		Kind:    KindMACrossover,
		MA:      MAParams{Short: 20, Long: 50},
		Enabled: true,
	})
	rig.engine.Bind(id, "BAD")
	rig.engine.Bind(id, "XYZ")

	rig.engine.tick(context.Background())

	if got := len(rig.placer.requests()); got != 1 {
		t.Errorf("dispatched %d orders, want 1 despite the failing pair", got)
	}
	entries := rig.txlog.Entries()
	last := entries[len(entries)-1].Message
	if last != "Error in strategy cross for BAD: feed down" {
		t.Errorf("failure log entry = %q", last)
	}
}

// panickyHistory blows up on every fetch.
type panickyHistory struct{}

func (panickyHistory) Series(context.Context, string, int) ([]float64, error) {
	panic("series out of range")
}

func TestTickPanicReachesTransactionLog(t *testing.T) {
	rig := newTestRig(t)
	id, _ := rig.engine.Add(Definition{
		Name:    "cross",
		Kind:    KindMACrossover,
		MA:      MAParams{Short: 20, Long: 50},
		Enabled: true,
	})
	rig.engine.Bind(id, "XYZ")
	rig.engine.history = panickyHistory{}

	if rig.engine.safeTick(context.Background()) {
		t.Fatal("safeTick should report failure after a panic")
	}
	entries := rig.txlog.Entries()
	last := entries[len(entries)-1].Message
	if last != "Error in evaluation tick: series out of range" {
		t.Errorf("panic log entry = %q", last)
	}
}
