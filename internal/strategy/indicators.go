package strategy

import "math"

// Indicator functions operate on close series ordered oldest first. Output
// slices are aligned to the input; positions where the indicator is not yet
// defined hold NaN.

// SMA computes the simple moving average over the given window.
func SMA(series []float64, period int) []float64 {
	out := nanSlice(len(series))
	if period <= 0 || len(series) < period {
		return out
	}

	var sum float64
	for i, v := range series {
		sum += v
		if i >= period {
			sum -= series[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// EMA computes the exponential moving average, seeded with the simple
// average of the first window. Leading NaN values in the input are skipped,
// so EMA can run over the output of another indicator.
func EMA(series []float64, period int) []float64 {
	out := nanSlice(len(series))
	if period <= 0 {
		return out
	}

	start := 0
	for start < len(series) && math.IsNaN(series[start]) {
		start++
	}
	if len(series)-start < period {
		return out
	}

	var sum float64
	for i := start; i < start+period; i++ {
		sum += series[i]
	}
	prev := sum / float64(period)
	out[start+period-1] = prev

	k := 2.0 / float64(period+1)
	for i := start + period; i < len(series); i++ {
		prev += (series[i] - prev) * k
		out[i] = prev
	}
	return out
}

// RSI computes the relative strength index using Wilder's smoothing.
func RSI(series []float64, period int) []float64 {
	out := nanSlice(len(series))
	if period <= 0 || len(series) < period+1 {
		return out
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		delta := series[i] - series[i-1]
		if delta > 0 {
			avgGain += delta
		} else {
			avgLoss -= delta
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[period] = rsiValue(avgGain, avgLoss)

	for i := period + 1; i < len(series); i++ {
		delta := series[i] - series[i-1]
		var gain, loss float64
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// MACD computes the MACD line (fast EMA minus slow EMA) and its signal
// line (an EMA of the MACD line).
func MACD(series []float64, fast, slow, signal int) (macd, signalLine []float64) {
	emaFast := EMA(series, fast)
	emaSlow := EMA(series, slow)

	macd = nanSlice(len(series))
	for i := range series {
		if !math.IsNaN(emaFast[i]) && !math.IsNaN(emaSlow[i]) {
			macd[i] = emaFast[i] - emaSlow[i]
		}
	}
	signalLine = EMA(macd, signal)
	return macd, signalLine
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
