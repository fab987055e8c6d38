// Package indicator holds pure technical-indicator math over price/volume
// slices. Every function is safe for concurrent use and returns a documented
// neutral value instead of NaN/Inf when history is too short.
package indicator

import "math"

// SMA returns the mean of the last period values, 0 when len(values) < period.
func SMA(values []float64, period int) float64 {
	n := len(values)
	if period <= 0 || n < period {
		return 0
	}
	sum := 0.0
	for _, v := range values[n-period:] {
		sum += v
	}
	return finite(sum / float64(period))
}

// SMASeries is aligned with values; warmup slots hold 0. Nil when too short.
func SMASeries(values []float64, period int) []float64 {
	n := len(values)
	if period <= 0 || n < period {
		return nil
	}
	out := make([]float64, n)
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += values[i]
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			out[i] = finite(sum / float64(period))
		}
	}
	return out
}

// EMA seeds with the SMA of the first window, then smooths with 2/(period+1)
// through the end of the series. 0 when len(values) < period.
func EMA(values []float64, period int) float64 {
	series := EMASeries(values, period)
	if len(series) == 0 {
		return 0
	}
	return series[len(series)-1]
}

// EMASeries is aligned with values; slots before period-1 hold 0.
func EMASeries(values []float64, period int) []float64 {
	n := len(values)
	if period <= 0 || n < period {
		return nil
	}
	out := make([]float64, n)
	seed := 0.0
	for i := 0; i < period; i++ {
		seed += values[i]
	}
	out[period-1] = finite(seed / float64(period))
	k := 2.0 / float64(period+1)
	for i := period; i < n; i++ {
		out[i] = finite((values[i]-out[i-1])*k + out[i-1])
	}
	return out
}

// MACDResult is the latest MACD line, its signal EMA and their difference.
type MACDResult struct {
	MACD      float64 `json:"macd"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}

// MACD needs slow+signal-1 values; shorter input returns the zero result.
func MACD(values []float64, fast, slow, signal int) MACDResult {
	if fast <= 0 || slow <= 0 || signal <= 0 || fast >= slow {
		return MACDResult{}
	}
	if len(values) < slow+signal-1 {
		return MACDResult{}
	}
	fastSeries := EMASeries(values, fast)
	slowSeries := EMASeries(values, slow)
	line := make([]float64, 0, len(values)-slow+1)
	for i := slow - 1; i < len(values); i++ {
		line = append(line, fastSeries[i]-slowSeries[i])
	}
	m := line[len(line)-1]
	sig := EMA(line, signal)
	return MACDResult{
		MACD:      finite(m),
		Signal:    finite(sig),
		Histogram: finite(m - sig),
	}
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func last(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return values[len(values)-1]
}

// lastValid mirrors the talib output convention: trailing NaN/Inf are skipped.
func lastValid(series []float64) (float64, bool) {
	for i := len(series) - 1; i >= 0; i-- {
		if !math.IsNaN(series[i]) && !math.IsInf(series[i], 0) {
			return series[i], true
		}
	}
	return 0, false
}

func sameLength(slices ...[]float64) int {
	if len(slices) == 0 {
		return 0
	}
	n := len(slices[0])
	for _, s := range slices[1:] {
		if len(s) < n {
			n = len(s)
		}
	}
	return n
}
