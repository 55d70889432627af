package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stratagem/internal/account"
	"stratagem/internal/broker"
	"stratagem/internal/catalog"
	"stratagem/internal/config"
	"stratagem/internal/engine"
	"stratagem/internal/history"
	"stratagem/internal/marketdata"
	"stratagem/internal/portfolio"
	"stratagem/internal/store"
	"stratagem/internal/strategy"
	"stratagem/internal/txlog"
	"stratagem/internal/util"
	"stratagem/internal/wishlist"
)

func main() {
	cfgPath := "config/stratagem.yaml"
	if p := os.Getenv("STRATAGEM_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if errors.Is(err, os.ErrNotExist) {
		cfg = config.Default()
	} else if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level)
	util.SetDefault(logger)

	st, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer st.Close()

	tl, err := txlog.Open(cfg.Storage.TxLogPath, logger)
	if err != nil {
		log.Fatalf("failed to open transaction log: %v", err)
	}
	defer tl.Close()

	calendar, err := util.NewTradingCalendar(cfg.Venue.MarketOpen, cfg.Venue.MarketClose, cfg.Venue.Timezone)
	if err != nil {
		log.Fatalf("bad venue configuration: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// The instrument catalog validates wishlist and strategy symbols. When
	// the bulk fetch fails the engine still runs, without validation.
	cat, err := catalog.Fetch(ctx, cfg.Kite.InstrumentsURL)
	if err != nil {
		logger.Warn("instrument catalog unavailable, symbol validation disabled", "error", err)
		cat = nil
	} else {
		logger.Info("instrument catalog loaded", "instruments", cat.Len())
	}

	dialer := broker.DialerFunc(func(c broker.Credentials) broker.Session {
		return broker.NewKiteSession(c.APIKey, c.AccessToken, cfg.Kite.BaseURL)
	})
	if os.Getenv("STRATAGEM_BROKER") == "alpaca" {
		dialer = broker.DialerFunc(func(c broker.Credentials) broker.Session {
			return broker.NewAlpacaSession(c.APIKey, c.APISecret, cfg.Alpaca.BaseURL)
		})
	}

	registry := account.NewRegistry(dialer, st, tl, logger)
	if err := registry.Restore(); err != nil {
		log.Fatalf("failed to restore accounts: %v", err)
	}

	lists := wishlist.NewSet(cat, st, tl, logger)
	if err := lists.Restore(); err != nil {
		log.Fatalf("failed to restore wishlists: %v", err)
	}

	valuator := portfolio.NewValuator(registry, logger)
	provider := marketdata.NewProvider(registry, cfg.Kite.QuoteRatePerMin)
	poller := marketdata.NewPoller(
		provider,
		lists,
		valuator,
		time.Duration(cfg.Polling.QuoteIntervalSecs)*time.Second,
		time.Duration(cfg.Polling.QuoteBackoffSecs)*time.Second,
		logger,
	)

	selection := account.NewSelectionContext()
	if acct, ok := registry.First(); ok {
		selection.Select(acct.ID)
	}

	dispatcher := engine.NewDispatcher(registry, tl, logger)

	var bars history.Provider = history.NewSynthetic()
	if cfg.Storage.DataDir != "" {
		bars = history.NewParquetProvider(cfg.Storage.DataDir)
		logger.Info("using historical bars", "dir", cfg.Storage.DataDir)
	}

	strategies := strategy.NewEngine(
		bars,
		cfg.Polling.SeriesLength,
		cat,
		st,
		tl,
		dispatcher,
		selection,
		calendar,
		time.Duration(cfg.Polling.EvalIntervalSecs)*time.Second,
		time.Duration(cfg.Polling.EvalBackoffSecs)*time.Second,
		logger,
	)
	if err := strategies.Restore(); err != nil {
		log.Fatalf("failed to restore strategies: %v", err)
	}

	// Mirror transaction-log entries to the console.
	subID, entries := tl.Subscribe(64)
	defer tl.Unsubscribe(subID)
	go func() {
		for e := range entries {
			fmt.Printf("[%s] %s\n", e.Timestamp.Format("2006-01-02 15:04:05"), e.Message)
		}
	}()

	quoteSubID, quotes := poller.Subscribe(256)
	defer poller.Unsubscribe(quoteSubID)
	go func() {
		for u := range quotes {
			logger.Debug("quote", "wishlist", u.WishlistIndex+1, "symbol", u.Symbol, "last", u.Quote.LastPrice, "change_pct", u.Quote.ChangePct)
		}
	}()

	valueSubID, values := valuator.Subscribe(16)
	defer valuator.Unsubscribe(valueSubID)
	go func() {
		for v := range values {
			logger.Info("portfolio value", "total", v.StringFixed(2))
		}
	}()

	logger.Info("engine starting",
		"accounts", len(registry.List()),
		"strategies", len(strategies.List()),
		"market", calendar.Status(time.Now()),
	)

	go poller.Run(ctx)
	go strategies.Run(ctx)

	<-ctx.Done()
	logger.Info("engine stopped")
}
