package broker

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"stratagem/internal/domain"
)

// Compile-time interface check.
var _ Session = (*SimulatorSession)(nil)

// SimulatorSession is an in-memory Session for paper trading and tests. It
// serves canned quotes and holdings, records placed orders, and can be
// scripted to fail.
type SimulatorSession struct {
	mu          sync.Mutex
	accessToken string
	profileName string
	quotes      map[string]domain.Quote
	holdings    []domain.Holding
	orders      []OrderParams

	quoteErr    error
	holdingsErr error
	orderErr    error
	profileErr  error
}

// NewSimulatorSession creates an empty simulator session reporting the
// given profile name.
func NewSimulatorSession(profileName string) *SimulatorSession {
	return &SimulatorSession{
		profileName: profileName,
		quotes:      make(map[string]domain.Quote),
	}
}

// ---------------------------------------------------------------------------
// Scripting helpers
// ---------------------------------------------------------------------------

// SetQuote sets the canned quote returned for a symbol.
func (s *SimulatorSession) SetQuote(q domain.Quote) {
	s.mu.Lock()
	s.quotes[q.Symbol] = q
	s.mu.Unlock()
}

// SetHoldings sets the canned holdings list.
func (s *SimulatorSession) SetHoldings(h []domain.Holding) {
	s.mu.Lock()
	s.holdings = append([]domain.Holding(nil), h...)
	s.mu.Unlock()
}

// FailQuotes makes subsequent Quote calls return err (nil clears).
func (s *SimulatorSession) FailQuotes(err error) {
	s.mu.Lock()
	s.quoteErr = err
	s.mu.Unlock()
}

// FailHoldings makes subsequent Holdings calls return err (nil clears).
func (s *SimulatorSession) FailHoldings(err error) {
	s.mu.Lock()
	s.holdingsErr = err
	s.mu.Unlock()
}

// FailOrders makes subsequent PlaceOrder calls return err (nil clears).
func (s *SimulatorSession) FailOrders(err error) {
	s.mu.Lock()
	s.orderErr = err
	s.mu.Unlock()
}

// FailProfile makes subsequent Profile calls return err (nil clears).
func (s *SimulatorSession) FailProfile(err error) {
	s.mu.Lock()
	s.profileErr = err
	s.mu.Unlock()
}

// Orders returns a copy of every order placed through this session.
func (s *SimulatorSession) Orders() []OrderParams {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]OrderParams(nil), s.orders...)
}

// AccessToken returns the current token, for assertions in tests.
func (s *SimulatorSession) AccessToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accessToken
}

// ---------------------------------------------------------------------------
// Session implementation
// ---------------------------------------------------------------------------

// Quote returns the canned quote for symbol, or a zero quote if none set.
func (s *SimulatorSession) Quote(_ context.Context, symbol string) (domain.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.quoteErr != nil {
		return domain.Quote{}, s.quoteErr
	}
	return s.quotes[symbol], nil
}

// Holdings returns the canned holdings.
func (s *SimulatorSession) Holdings(_ context.Context) ([]domain.Holding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.holdingsErr != nil {
		return nil, s.holdingsErr
	}
	return append([]domain.Holding(nil), s.holdings...), nil
}

// PlaceOrder records the order and returns a generated order ID.
func (s *SimulatorSession) PlaceOrder(_ context.Context, p OrderParams) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.orderErr != nil {
		return "", s.orderErr
	}
	s.orders = append(s.orders, p)
	return uuid.NewString(), nil
}

// SetAccessToken records the new token.
func (s *SimulatorSession) SetAccessToken(token string) {
	s.mu.Lock()
	s.accessToken = token
	s.mu.Unlock()
}

// Profile returns the configured profile name.
func (s *SimulatorSession) Profile(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.profileErr != nil {
		return "", s.profileErr
	}
	return s.profileName, nil
}
