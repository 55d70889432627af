// Package marketdata fetches live quotes and drives the polling loop that
// keeps wishlist prices fresh.
package marketdata

import (
	"context"
	"errors"
	"fmt"

	"stratagem/internal/account"
	"stratagem/internal/domain"
	"stratagem/internal/util"
)

// ErrProviderUnavailable wraps any failure to obtain a quote. Callers treat
// it as "no data" rather than an abort.
var ErrProviderUnavailable = errors.New("market data unavailable")

// Provider serves quotes from a single consistent source: the first
// registered account's buy session. All quote traffic shares one rate
// limiter.
type Provider struct {
	registry *account.Registry
	limiter  *util.RateLimiter
}

// NewProvider creates a Provider over the registry, limited to ratePerMin
// quote calls per minute.
func NewProvider(registry *account.Registry, ratePerMin int) *Provider {
	return &Provider{
		registry: registry,
		limiter:  util.NewRateLimiter(ratePerMin),
	}
}

// Fetch returns the latest quote for symbol. On any failure it returns a
// zero Quote and an error wrapping ErrProviderUnavailable.
func (p *Provider) Fetch(ctx context.Context, symbol string) (domain.Quote, error) {
	acct, ok := p.registry.First()
	if !ok {
		return domain.Quote{}, fmt.Errorf("%w: no account registered", ErrProviderUnavailable)
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return domain.Quote{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	q, err := acct.Buy.Quote(ctx, symbol)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	return q, nil
}
