package strategy

import (
	"math"

	"stratagem/internal/domain"
)

// Evaluate computes the definition's signal for a close series ordered
// oldest first. Series too short for the strategy's windows yield no
// signal. Crossover strategies signal only when the cross happens on the
// last observation.
func (d *Definition) Evaluate(series []float64) domain.Signal {
	if len(series) < d.minSeriesLength() {
		return domain.SignalNone
	}
	switch d.Kind {
	case KindMACrossover:
		return evalMACross(series, d.MA)
	case KindRSI:
		return evalRSI(series, d.RSI)
	case KindMACD:
		return evalMACD(series, d.MACD)
	}
	return domain.SignalNone
}

func evalMACross(series []float64, p MAParams) domain.Signal {
	short := SMA(series, p.Short)
	long := SMA(series, p.Long)
	return crossSignal(short, long)
}

func evalRSI(series []float64, p RSIParams) domain.Signal {
	rsi := RSI(series, p.Period)
	last := rsi[len(rsi)-1]
	if math.IsNaN(last) {
		return domain.SignalNone
	}
	if last < p.Oversold {
		return domain.SignalBuy
	}
	if last > p.Overbought {
		return domain.SignalSell
	}
	return domain.SignalNone
}

func evalMACD(series []float64, p MACDParams) domain.Signal {
	macd, signal := MACD(series, p.Fast, p.Slow, p.Signal)
	return crossSignal(macd, signal)
}

// crossSignal detects a crossing of line a over line b on the last two
// observations: buy when a moves from at-or-below to above b, sell on the
// opposite move.
func crossSignal(a, b []float64) domain.Signal {
	n := len(a)
	if n < 2 {
		return domain.SignalNone
	}
	prevA, prevB := a[n-2], b[n-2]
	curA, curB := a[n-1], b[n-1]
	if math.IsNaN(prevA) || math.IsNaN(prevB) || math.IsNaN(curA) || math.IsNaN(curB) {
		return domain.SignalNone
	}
	if prevA <= prevB && curA > curB {
		return domain.SignalBuy
	}
	if prevA >= prevB && curA < curB {
		return domain.SignalSell
	}
	return domain.SignalNone
}
