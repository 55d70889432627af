// Package history supplies close-price series to the strategy engine.
package history

import "context"

// DefaultLength is the series length strategies request when the caller
// does not say otherwise.
const DefaultLength = 100

// Provider returns a close-price series for a symbol, oldest observation
// first. Implementations must return exactly length values or an error.
type Provider interface {
	Series(ctx context.Context, symbol string, length int) ([]float64, error)
}
