// Package broker defines the Session interface for authenticated broker
// connections and provides Kite Connect, Alpaca, and simulator
// implementations.
package broker

import (
	"context"

	"stratagem/internal/domain"
)

// Credentials identifies one broker account.
type Credentials struct {
	ID          string
	APIKey      string
	APISecret   string
	AccessToken string
}

// OrderParams carries everything the broker needs to place one order.
type OrderParams struct {
	Exchange   string
	Symbol     string
	Action     domain.Action
	Quantity   int64
	OrderType  domain.OrderType
	Product    string
	Variety    string
	LimitPrice float64 // LIMIT orders only
}

// Session is an authenticated handle to a broker API, scoped to one account
// and one side (buy or sell). Implementations are not assumed safe for
// concurrent calls; callers serialize access per session.
type Session interface {
	// Quote returns the latest price snapshot for a symbol.
	Quote(ctx context.Context, symbol string) (domain.Quote, error)

	// Holdings returns the account's current holdings.
	Holdings(ctx context.Context) ([]domain.Holding, error)

	// PlaceOrder submits an order and returns the broker-assigned order ID.
	PlaceOrder(ctx context.Context, p OrderParams) (string, error)

	// SetAccessToken replaces the session's access token.
	SetAccessToken(token string)

	// Profile performs a lightweight authenticated call and returns the
	// broker-side account name. Used to validate credentials at
	// registration time.
	Profile(ctx context.Context) (string, error)
}

// Dialer builds a session from credentials. The account registry dials two
// sessions per account, one per order side.
type Dialer interface {
	Dial(creds Credentials) Session
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(creds Credentials) Session

// Dial calls f.
func (f DialerFunc) Dial(creds Credentials) Session { return f(creds) }
