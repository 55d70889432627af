package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"

	"stratagem/internal/domain"
)

// Compile-time interface check.
var _ Session = (*AlpacaSession)(nil)

// AlpacaSession adapts the official Alpaca SDK to the Session interface for
// accounts trading US exchanges. Alpaca has no rotating access token; the
// API secret plays that role, so SetAccessToken rebuilds both clients with
// the new secret.
type AlpacaSession struct {
	apiKey  string
	baseURL string
	trading *alpaca.Client
	md      *marketdata.Client
}

// NewAlpacaSession creates a session from Alpaca API credentials. An empty
// baseURL selects the SDK default (paper trading requires the paper URL).
func NewAlpacaSession(apiKey, apiSecret, baseURL string) *AlpacaSession {
	s := &AlpacaSession{apiKey: apiKey, baseURL: baseURL}
	s.rebuild(apiSecret)
	return s
}

// SetAccessToken replaces the API secret and rebuilds the SDK clients.
func (s *AlpacaSession) SetAccessToken(token string) {
	s.rebuild(token)
}

func (s *AlpacaSession) rebuild(secret string) {
	s.trading = alpaca.NewClient(alpaca.ClientOpts{
		APIKey:    s.apiKey,
		APISecret: secret,
		BaseURL:   s.baseURL,
	})
	s.md = marketdata.NewClient(marketdata.ClientOpts{
		APIKey:    s.apiKey,
		APISecret: secret,
	})
}

// Quote returns the latest snapshot for a symbol, deriving the day change
// from the previous daily close.
func (s *AlpacaSession) Quote(_ context.Context, symbol string) (domain.Quote, error) {
	snap, err := s.md.GetSnapshot(symbol, marketdata.GetSnapshotRequest{})
	if err != nil {
		return domain.Quote{}, fmt.Errorf("alpaca snapshot %s: %w", symbol, err)
	}
	if snap == nil || snap.LatestTrade == nil {
		return domain.Quote{}, fmt.Errorf("alpaca snapshot %s: no trade data", symbol)
	}

	q := domain.Quote{
		Symbol:     symbol,
		LastPrice:  snap.LatestTrade.Price,
		ObservedAt: time.Now(),
	}
	if snap.DailyBar != nil {
		q.Volume = int64(snap.DailyBar.Volume)
	}
	if snap.PrevDailyBar != nil && snap.PrevDailyBar.Close > 0 {
		q.ChangePct = (q.LastPrice - snap.PrevDailyBar.Close) / snap.PrevDailyBar.Close * 100
	}
	return q, nil
}

// Holdings returns the account's open positions.
func (s *AlpacaSession) Holdings(_ context.Context) ([]domain.Holding, error) {
	positions, err := s.trading.GetPositions()
	if err != nil {
		return nil, fmt.Errorf("alpaca positions: %w", err)
	}

	holdings := make([]domain.Holding, 0, len(positions))
	for _, p := range positions {
		h := domain.Holding{
			Symbol:   p.Symbol,
			Quantity: p.Qty.IntPart(),
		}
		if p.CurrentPrice != nil {
			h.LastPrice = p.CurrentPrice.InexactFloat64()
		}
		holdings = append(holdings, h)
	}
	return holdings, nil
}

// PlaceOrder submits a day order through the trading API.
func (s *AlpacaSession) PlaceOrder(_ context.Context, p OrderParams) (string, error) {
	qty := decimal.NewFromInt(p.Quantity)
	req := alpaca.PlaceOrderRequest{
		Symbol:      p.Symbol,
		Qty:         &qty,
		TimeInForce: alpaca.Day,
	}
	if p.Action == domain.ActionSell {
		req.Side = alpaca.Sell
	} else {
		req.Side = alpaca.Buy
	}
	if p.OrderType == domain.OrderTypeLimit {
		req.Type = alpaca.Limit
		limit := decimal.NewFromFloat(p.LimitPrice)
		req.LimitPrice = &limit
	} else {
		req.Type = alpaca.Market
	}

	order, err := s.trading.PlaceOrder(req)
	if err != nil {
		return "", fmt.Errorf("alpaca order %s %s: %w", p.Action, p.Symbol, err)
	}
	return order.ID, nil
}

// Profile returns the Alpaca account number, validating the credentials.
func (s *AlpacaSession) Profile(_ context.Context) (string, error) {
	acct, err := s.trading.GetAccount()
	if err != nil {
		return "", fmt.Errorf("alpaca account: %w", err)
	}
	return acct.AccountNumber, nil
}
