package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"stratagem/internal/domain"
)

// DefaultKiteBaseURL is the production Kite Connect endpoint.
const DefaultKiteBaseURL = "https://api.kite.trade"

// Compile-time interface check.
var _ Session = (*KiteSession)(nil)

// KiteSession talks to the Kite Connect v3 REST API. Each call carries the
// api_key:access_token authorization header; a per-request timeout bounds
// worst-case tick latency.
type KiteSession struct {
	apiKey  string
	baseURL string
	client  *http.Client

	mu          sync.Mutex
	accessToken string
}

// NewKiteSession creates a session for the given credentials. An empty
// baseURL selects the production endpoint.
func NewKiteSession(apiKey, accessToken, baseURL string) *KiteSession {
	if baseURL == "" {
		baseURL = DefaultKiteBaseURL
	}
	return &KiteSession{
		apiKey:      apiKey,
		accessToken: accessToken,
		baseURL:     strings.TrimRight(baseURL, "/"),
		client:      &http.Client{Timeout: 10 * time.Second},
	}
}

// SetAccessToken replaces the session's access token.
func (s *KiteSession) SetAccessToken(token string) {
	s.mu.Lock()
	s.accessToken = token
	s.mu.Unlock()
}

// ---------------------------------------------------------------------------
// Wire types
// ---------------------------------------------------------------------------

type kiteEnvelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type kiteQuote struct {
	LastPrice float64 `json:"last_price"`
	NetChange float64 `json:"net_change"`
	Volume    int64   `json:"volume"`
	OHLC      struct {
		Close float64 `json:"close"`
	} `json:"ohlc"`
}

type kiteHolding struct {
	TradingSymbol string  `json:"tradingsymbol"`
	Quantity      int64   `json:"quantity"`
	LastPrice     float64 `json:"last_price"`
}

type kiteOrderResponse struct {
	OrderID string `json:"order_id"`
}

type kiteProfile struct {
	UserName string `json:"user_name"`
}

// ---------------------------------------------------------------------------
// Session implementation
// ---------------------------------------------------------------------------

// Quote fetches the latest snapshot for an NSE symbol.
func (s *KiteSession) Quote(ctx context.Context, symbol string) (domain.Quote, error) {
	key := domain.DefaultExchange + ":" + symbol
	data, err := s.do(ctx, http.MethodGet, "/quote?i="+url.QueryEscape(key), nil)
	if err != nil {
		return domain.Quote{}, err
	}

	var quotes map[string]kiteQuote
	if err := json.Unmarshal(data, &quotes); err != nil {
		return domain.Quote{}, fmt.Errorf("decoding quote for %s: %w", symbol, err)
	}
	q, ok := quotes[key]
	if !ok {
		return domain.Quote{}, fmt.Errorf("no quote returned for %s", key)
	}

	changePct := 0.0
	if q.OHLC.Close > 0 {
		changePct = q.NetChange / q.OHLC.Close * 100
	}
	return domain.Quote{
		Symbol:     symbol,
		LastPrice:  q.LastPrice,
		ChangePct:  changePct,
		Volume:     q.Volume,
		ObservedAt: time.Now(),
	}, nil
}

// Holdings returns the account's portfolio holdings.
func (s *KiteSession) Holdings(ctx context.Context) ([]domain.Holding, error) {
	data, err := s.do(ctx, http.MethodGet, "/portfolio/holdings", nil)
	if err != nil {
		return nil, err
	}

	var raw []kiteHolding
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding holdings: %w", err)
	}
	holdings := make([]domain.Holding, 0, len(raw))
	for _, h := range raw {
		holdings = append(holdings, domain.Holding{
			Symbol:    h.TradingSymbol,
			Quantity:  h.Quantity,
			LastPrice: h.LastPrice,
		})
	}
	return holdings, nil
}

// PlaceOrder submits an order and returns the broker-assigned order ID.
func (s *KiteSession) PlaceOrder(ctx context.Context, p OrderParams) (string, error) {
	form := url.Values{}
	form.Set("exchange", p.Exchange)
	form.Set("tradingsymbol", p.Symbol)
	form.Set("transaction_type", string(p.Action))
	form.Set("quantity", strconv.FormatInt(p.Quantity, 10))
	form.Set("order_type", string(p.OrderType))
	form.Set("product", p.Product)
	if p.OrderType == domain.OrderTypeLimit {
		form.Set("price", strconv.FormatFloat(p.LimitPrice, 'f', 2, 64))
	}

	data, err := s.do(ctx, http.MethodPost, "/orders/"+p.Variety, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}

	var resp kiteOrderResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("decoding order response: %w", err)
	}
	return resp.OrderID, nil
}

// Profile returns the account's user name, validating the credentials.
func (s *KiteSession) Profile(ctx context.Context) (string, error) {
	data, err := s.do(ctx, http.MethodGet, "/user/profile", nil)
	if err != nil {
		return "", err
	}

	var p kiteProfile
	if err := json.Unmarshal(data, &p); err != nil {
		return "", fmt.Errorf("decoding profile: %w", err)
	}
	return p.UserName, nil
}

// do performs one authenticated API call and returns the data payload of
// the response envelope.
func (s *KiteSession) do(ctx context.Context, method, path string, body *strings.Reader) (json.RawMessage, error) {
	var req *http.Request
	var err error
	if body != nil {
		req, err = http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, s.baseURL+path, nil)
	}
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	token := s.accessToken
	s.mu.Unlock()

	req.Header.Set("X-Kite-Version", "3")
	req.Header.Set("Authorization", "token "+s.apiKey+":"+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("kite %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var env kiteEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("kite %s %s: decoding response: %w", method, path, err)
	}
	if resp.StatusCode != http.StatusOK || env.Status != "success" {
		msg := env.Message
		if msg == "" {
			msg = resp.Status
		}
		return nil, fmt.Errorf("kite %s %s: %s", method, path, msg)
	}
	return env.Data, nil
}
