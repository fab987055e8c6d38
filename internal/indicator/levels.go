package indicator

import (
	"math"
)

// VWAP is Σ(price·volume)/Σvolume over the supplied samples, 0 when there is
// no volume.
func VWAP(prices, volumes []float64) float64 {
	n := sameLength(prices, volumes)
	if n == 0 {
		return 0
	}
	var pv, vol float64
	for i := 0; i < n; i++ {
		pv += prices[i] * volumes[i]
		vol += volumes[i]
	}
	if vol <= 0 {
		return 0
	}
	return finite(pv / vol)
}

// VWAPBars uses the typical price (h+l+c)/3 of each bar.
func VWAPBars(bars []Bar) float64 {
	if len(bars) == 0 {
		return 0
	}
	typical := make([]float64, len(bars))
	volumes := make([]float64, len(bars))
	for i, b := range bars {
		typical[i] = b.Typical()
		volumes[i] = b.Volume
	}
	return VWAP(typical, volumes)
}

const minExtremaSamples = 10

// Levels is a support/resistance pair.
type Levels struct {
	Support    float64 `json:"support"`
	Resistance float64 `json:"resistance"`
}

// SupportResistance averages the local minima and maxima of the last lookback
// values. With fewer than 10 samples it uses the window's min and max.
func SupportResistance(values []float64, lookback int) Levels {
	if len(values) == 0 {
		return Levels{}
	}
	window := values
	if lookback > 0 && len(values) > lookback {
		window = values[len(values)-lookback:]
	}
	lo, hi := minMax(window)
	if len(window) < minExtremaSamples {
		return Levels{Support: lo, Resistance: hi}
	}
	var mins, maxs []float64
	for i := 1; i < len(window)-1; i++ {
		prev, cur, next := window[i-1], window[i], window[i+1]
		if cur < prev && cur < next {
			mins = append(mins, cur)
		}
		if cur > prev && cur > next {
			maxs = append(maxs, cur)
		}
	}
	out := Levels{Support: lo, Resistance: hi}
	if len(mins) > 0 {
		out.Support = SMA(mins, len(mins))
	}
	if len(maxs) > 0 {
		out.Resistance = SMA(maxs, len(maxs))
	}
	return out
}

// Pivots are the classic floor-trader levels from one bar's high, low, close.
type Pivots struct {
	P  float64 `json:"p"`
	R1 float64 `json:"r1"`
	R2 float64 `json:"r2"`
	R3 float64 `json:"r3"`
	S1 float64 `json:"s1"`
	S2 float64 `json:"s2"`
	S3 float64 `json:"s3"`
}

// PivotPoints returns the zero value when any input is not positive.
func PivotPoints(high, low, closePrice float64) Pivots {
	if high <= 0 || low <= 0 || closePrice <= 0 {
		return Pivots{}
	}
	p := (high + low + closePrice) / 3
	rng := high - low
	return Pivots{
		P:  p,
		R1: 2*p - low,
		S1: 2*p - high,
		R2: p + rng,
		S2: p - rng,
		R3: high + 2*(p-low),
		S3: low - 2*(high-p),
	}
}

// FibRatios are the retracement ratios reported by Fibonacci.
var FibRatios = []float64{0, 0.236, 0.382, 0.5, 0.618, 0.786, 1}

type FibLevel struct {
	Ratio float64 `json:"ratio"`
	Price float64 `json:"price"`
}

// Fibonacci returns retracement levels measured down from high, nil when
// high <= low.
func Fibonacci(high, low float64) []FibLevel {
	if high <= low {
		return nil
	}
	rng := high - low
	out := make([]FibLevel, 0, len(FibRatios))
	for _, r := range FibRatios {
		out = append(out, FibLevel{Ratio: r, Price: high - rng*r})
	}
	return out
}

type GapType string

const (
	GapNone GapType = "none"
	GapUp   GapType = "gap_up"
	GapDown GapType = "gap_down"
)

// GapThresholdPct is the minimum absolute open-vs-prior-close move.
const GapThresholdPct = 1.0

type Gap struct {
	Type    GapType `json:"type"`
	Percent float64 `json:"percent"`
}

// ClassifyGap reports none with a zero percent when prevClose is not positive.
func ClassifyGap(open, prevClose float64) Gap {
	if prevClose <= 0 || open <= 0 {
		return Gap{Type: GapNone}
	}
	pct := finite((open - prevClose) / prevClose * 100)
	switch {
	case pct >= GapThresholdPct:
		return Gap{Type: GapUp, Percent: pct}
	case pct <= -GapThresholdPct:
		return Gap{Type: GapDown, Percent: pct}
	default:
		return Gap{Type: GapNone, Percent: pct}
	}
}

func minMax(values []float64) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if len(values) == 0 {
		return 0, 0
	}
	return lo, hi
}
