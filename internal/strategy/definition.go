// Package strategy implements the strategy engine: typed strategy
// definitions, technical indicators, and the periodic evaluation loop that
// turns signals into orders.
package strategy

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind identifies a strategy family.
type Kind string

const (
	KindMACrossover Kind = "ma-crossover"
	KindRSI         Kind = "rsi"
	KindMACD        Kind = "macd"
)

// ErrNotFound is returned when a strategy id does not resolve.
var ErrNotFound = errors.New("strategy not found")

// MAParams parameterizes a moving-average crossover strategy.
type MAParams struct {
	Short int `json:"short"`
	Long  int `json:"long"`
}

// RSIParams parameterizes a relative-strength-index strategy.
type RSIParams struct {
	Period     int     `json:"period"`
	Overbought float64 `json:"overbought"`
	Oversold   float64 `json:"oversold"`
}

// MACDParams parameterizes a MACD crossover strategy.
type MACDParams struct {
	Fast   int `json:"fast"`
	Slow   int `json:"slow"`
	Signal int `json:"signal"`
}

// DefaultMAParams returns the standard 20/50 crossover windows.
func DefaultMAParams() MAParams { return MAParams{Short: 20, Long: 50} }

// DefaultRSIParams returns the standard 14-period RSI with 70/30 bands.
func DefaultRSIParams() RSIParams {
	return RSIParams{Period: 14, Overbought: 70, Oversold: 30}
}

// DefaultMACDParams returns the standard 12/26/9 MACD configuration.
func DefaultMACDParams() MACDParams {
	return MACDParams{Fast: 12, Slow: 26, Signal: 9}
}

// Definition is one configured strategy. Only the parameter block matching
// Kind is meaningful. Instruments lists the symbols the strategy is bound
// to, in binding order.
type Definition struct {
	ID          int64
	Name        string
	Kind        Kind
	MA          MAParams
	RSI         RSIParams
	MACD        MACDParams
	Enabled     bool
	Instruments []string
}

// Validate checks the definition's parameters for its kind.
func (d *Definition) Validate() error {
	if d.Name == "" {
		return errors.New("strategy name must not be empty")
	}
	switch d.Kind {
	case KindMACrossover:
		if d.MA.Short <= 0 || d.MA.Long <= 0 {
			return errors.New("moving average periods must be positive")
		}
		if d.MA.Short >= d.MA.Long {
			return fmt.Errorf("short period %d must be less than long period %d", d.MA.Short, d.MA.Long)
		}
	case KindRSI:
		if d.RSI.Period <= 0 {
			return errors.New("rsi period must be positive")
		}
		if d.RSI.Oversold >= d.RSI.Overbought {
			return fmt.Errorf("oversold %v must be less than overbought %v", d.RSI.Oversold, d.RSI.Overbought)
		}
	case KindMACD:
		if d.MACD.Fast <= 0 || d.MACD.Slow <= 0 || d.MACD.Signal <= 0 {
			return errors.New("macd periods must be positive")
		}
		if d.MACD.Fast >= d.MACD.Slow {
			return fmt.Errorf("fast period %d must be less than slow period %d", d.MACD.Fast, d.MACD.Slow)
		}
	default:
		return fmt.Errorf("unknown strategy kind %q", d.Kind)
	}
	return nil
}

// minSeriesLength is the shortest close series the definition can produce a
// signal from. Shorter series always evaluate to no signal.
func (d *Definition) minSeriesLength() int {
	switch d.Kind {
	case KindMACrossover:
		return d.MA.Long + 1
	case KindRSI:
		return d.RSI.Period + 1
	case KindMACD:
		return d.MACD.Slow + d.MACD.Signal
	}
	return 0
}

// encodeParams serializes the kind-specific parameter block for storage.
func encodeParams(d *Definition) ([]byte, error) {
	switch d.Kind {
	case KindMACrossover:
		return json.Marshal(d.MA)
	case KindRSI:
		return json.Marshal(d.RSI)
	case KindMACD:
		return json.Marshal(d.MACD)
	}
	return nil, fmt.Errorf("unknown strategy kind %q", d.Kind)
}

// decodeParams restores the kind-specific parameter block from storage.
func decodeParams(d *Definition, data []byte) error {
	switch d.Kind {
	case KindMACrossover:
		return json.Unmarshal(data, &d.MA)
	case KindRSI:
		return json.Unmarshal(data, &d.RSI)
	case KindMACD:
		return json.Unmarshal(data, &d.MACD)
	}
	return fmt.Errorf("unknown strategy kind %q", d.Kind)
}

// clone returns a deep copy so callers cannot mutate engine state through
// returned definitions.
func (d *Definition) clone() Definition {
	out := *d
	out.Instruments = append([]string(nil), d.Instruments...)
	return out
}
