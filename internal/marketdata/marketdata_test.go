package marketdata

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"stratagem/internal/account"
	"stratagem/internal/broker"
	"stratagem/internal/domain"
	"stratagem/internal/portfolio"
	"stratagem/internal/store"
	"stratagem/internal/txlog"
	"stratagem/internal/wishlist"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fixture struct {
	registry *account.Registry
	lists    *wishlist.Set
	valuator *portfolio.Valuator
	provider *Provider
	poller   *Poller
}

func newFixture(t *testing.T) *fixture {
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

	dialer := broker.DialerFunc(func(c broker.Credentials) broker.Session {
		return broker.NewSimulatorSession("User " + c.ID)
	})
	registry := account.NewRegistry(dialer, st, tl, quietLogger())
	lists := wishlist.NewSet(nil, st, tl, quietLogger())
	valuator := portfolio.NewValuator(registry, quietLogger())
	provider := NewProvider(registry, 60000)
	poller := NewPoller(provider, lists, valuator, time.Second, time.Millisecond, quietLogger())

	return &fixture{registry: registry, lists: lists, valuator: valuator, provider: provider, poller: poller}
}

func (f *fixture) register(t *testing.T, id string) *broker.SimulatorSession {
	t.Helper()
	acct, err := f.registry.Register(context.Background(), broker.Credentials{ID: id, APIKey: "k", APISecret: "s", AccessToken: "t"})
	if err != nil {
		t.Fatalf("Register(%s): %v", id, err)
	}
	return acct.Buy.(*broker.SimulatorSession)
}

func TestFetchWithoutAccounts(t *testing.T) {
	f := newFixture(t)
	_, err := f.provider.Fetch(context.Background(), "INFY")
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Errorf("Fetch error = %v, want ErrProviderUnavailable", err)
	}
}

func TestFetchUsesFirstAccount(t *testing.T) {
	f := newFixture(t)
	first := f.register(t, "acct-a")
	second := f.register(t, "acct-b")

	first.SetQuote(domain.Quote{Symbol: "INFY", LastPrice: 1500})
	second.SetQuote(domain.Quote{Symbol: "INFY", LastPrice: 9999})

	q, err := f.provider.Fetch(context.Background(), "INFY")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if q.LastPrice != 1500 {
		t.Errorf("quote came from the wrong account: price %v", q.LastPrice)
	}
}

func TestFetchBrokerErrorWrapped(t *testing.T) {
	f := newFixture(t)
	sim := f.register(t, "acct-a")
	sim.FailQuotes(errors.New("session expired"))

	q, err := f.provider.Fetch(context.Background(), "INFY")
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Errorf("Fetch error = %v, want ErrProviderUnavailable", err)
	}
	if q != (domain.Quote{}) {
		t.Errorf("failed fetch returned non-zero quote: %+v", q)
	}
}

func TestTickPublishesInWishlistOrder(t *testing.T) {
	f := newFixture(t)
	sim := f.register(t, "acct-a")

	for _, sym := range []string{"INFY", "TCS", "SBIN"} {
		sim.SetQuote(domain.Quote{Symbol: sym, LastPrice: 100})
	}
	f.lists.Add(2, "TCS")
	f.lists.Add(0, "INFY")
	f.lists.Add(0, "SBIN")

	id, ch := f.poller.Subscribe(16)
	defer f.poller.Unsubscribe(id)

	f.poller.tick(context.Background())

	want := []Update{
		{WishlistIndex: 0, Symbol: "INFY"},
		{WishlistIndex: 0, Symbol: "SBIN"},
		{WishlistIndex: 2, Symbol: "TCS"},
	}
	for i, w := range want {
		select {
		case got := <-ch:
			if got.WishlistIndex != w.WishlistIndex || got.Symbol != w.Symbol {
				t.Errorf("update[%d] = (%d, %s), want (%d, %s)", i, got.WishlistIndex, got.Symbol, w.WishlistIndex, w.Symbol)
			}
		default:
			t.Fatalf("missing update %d", i)
		}
	}
}

func TestTickSkipsFailingSymbol(t *testing.T) {
	f := newFixture(t)
	sim := f.register(t, "acct-a")
	sim.FailQuotes(errors.New("throttled"))

	f.lists.Add(0, "INFY")
	f.lists.Add(0, "TCS")

	id, ch := f.poller.Subscribe(16)
	defer f.poller.Unsubscribe(id)

	f.poller.tick(context.Background())

	select {
	case u := <-ch:
		t.Errorf("unexpected update published: %+v", u)
	default:
	}
}

// End-to-end sweep: a polled tick publishes the quote sourced from the
// registered account and leaves the valuator holding the account's
// holdings value.
func TestTickQuotesAndRevalues(t *testing.T) {
	f := newFixture(t)
	sim := f.register(t, "acct-a")
	sim.SetQuote(domain.Quote{Symbol: "ABC", LastPrice: 42.5})
	sim.SetHoldings([]domain.Holding{{Symbol: "ABC", Quantity: 4, LastPrice: 42.5}})

	f.lists.Add(0, "ABC")

	id, ch := f.poller.Subscribe(1)
	defer f.poller.Unsubscribe(id)

	f.poller.tick(context.Background())

	select {
	case u := <-ch:
		if u.Quote.LastPrice != 42.5 {
			t.Errorf("published price = %v, want 42.5", u.Quote.LastPrice)
		}
	default:
		t.Fatal("no update published")
	}

	want := decimal.RequireFromString("170")
	if got := f.valuator.Value(); !got.Equal(want) {
		t.Errorf("portfolio value = %s, want %s", got, want)
	}
}
