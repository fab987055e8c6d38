package indicator

import (
	talib "github.com/markcheno/go-talib"
)

const (
	neutralRSI        = 50.0
	neutralStochastic = 50.0
	neutralWilliamsR  = -50.0
	neutralMFI        = 50.0
)

// RSI uses Wilder smoothing across the whole series. It returns 50 with
// fewer than period+1 values and 100 when the average loss is exactly zero.
func RSI(values []float64, period int) float64 {
	series := RSISeries(values, period)
	if len(series) == 0 {
		return neutralRSI
	}
	return series[len(series)-1]
}

// RSISeries is aligned with values; slots without a full window hold 50.
func RSISeries(values []float64, period int) []float64 {
	n := len(values)
	if n == 0 {
		return nil
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = neutralRSI
	}
	if period <= 0 || n < period+1 {
		return out
	}
	var gain, loss float64
	for i := 1; i <= period; i++ {
		d := values[i] - values[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)
	out[period] = rsiFrom(avgGain, avgLoss)
	p := float64(period)
	for i := period + 1; i < n; i++ {
		d := values[i] - values[i-1]
		up, down := 0.0, 0.0
		if d > 0 {
			up = d
		} else {
			down = -d
		}
		avgGain = (avgGain*(p-1) + up) / p
		avgLoss = (avgLoss*(p-1) + down) / p
		out[i] = rsiFrom(avgGain, avgLoss)
	}
	return out
}

func rsiFrom(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return finite(100 - 100/(1+rs))
}

// StochasticResult holds fast %K and its SMA %D.
type StochasticResult struct {
	K float64 `json:"k"`
	D float64 `json:"d"`
}

// Stochastic returns K=D=50 until kPeriod+dPeriod bars are available.
func Stochastic(bars []Bar, kPeriod, dPeriod int) StochasticResult {
	if kPeriod <= 0 || dPeriod <= 0 || len(bars) < kPeriod+dPeriod {
		return StochasticResult{K: neutralStochastic, D: neutralStochastic}
	}
	highs, lows, closes, _ := columns(bars)
	k, d := talib.StochF(highs, lows, closes, kPeriod, dPeriod, talib.SMA)
	kv, okK := lastValid(k)
	dv, okD := lastValid(d)
	if !okK || !okD {
		return StochasticResult{K: neutralStochastic, D: neutralStochastic}
	}
	return StochasticResult{K: kv, D: dv}
}

// WilliamsR returns -50 until period+1 bars are available.
func WilliamsR(bars []Bar, period int) float64 {
	if period <= 0 || len(bars) < period+1 {
		return neutralWilliamsR
	}
	highs, lows, closes, _ := columns(bars)
	v, ok := lastValid(talib.WillR(highs, lows, closes, period))
	if !ok {
		return neutralWilliamsR
	}
	return v
}

// MFI returns 50 until period+2 bars are available.
func MFI(bars []Bar, period int) float64 {
	if period <= 0 || len(bars) < period+2 {
		return neutralMFI
	}
	highs, lows, closes, volumes := columns(bars)
	v, ok := lastValid(talib.Mfi(highs, lows, closes, volumes, period))
	if !ok {
		return neutralMFI
	}
	return v
}

// CCI returns 0 until period+1 bars are available.
func CCI(bars []Bar, period int) float64 {
	if period <= 0 || len(bars) < period+1 {
		return 0
	}
	highs, lows, closes, _ := columns(bars)
	v, _ := lastValid(talib.Cci(highs, lows, closes, period))
	return v
}

// OBV is the cumulative on-balance volume at the last sample, 0 when empty.
func OBV(closes, volumes []float64) float64 {
	n := sameLength(closes, volumes)
	if n < 2 {
		return 0
	}
	v, _ := lastValid(talib.Obv(closes[:n], volumes[:n]))
	return v
}

// Momentum is the percentage change over period samples, 0 when too short.
func Momentum(values []float64, period int) float64 {
	n := len(values)
	if period <= 0 || n <= period {
		return 0
	}
	base := values[n-1-period]
	if base == 0 {
		return 0
	}
	return finite((values[n-1] - base) / base * 100)
}

// AverageVolume averages the last period volumes, or all of them when fewer exist.
func AverageVolume(volumes []float64, period int) float64 {
	n := len(volumes)
	if n == 0 || period <= 0 {
		return 0
	}
	if n < period {
		period = n
	}
	sum := 0.0
	for _, v := range volumes[n-period:] {
		sum += v
	}
	return finite(sum / float64(period))
}

// BaselineVolume averages up to period volumes preceding the latest one, so a
// spike is compared against the window before it. 0 with fewer than 2 samples.
func BaselineVolume(volumes []float64, period int) float64 {
	if len(volumes) < 2 {
		return 0
	}
	return AverageVolume(volumes[:len(volumes)-1], period)
}
