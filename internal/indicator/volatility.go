package indicator

import (
	"math"
)

// Bands describes an envelope around a middle line. PercentB is where the
// latest price sits inside the envelope (0 at the lower band, 1 at the upper).
type Bands struct {
	Upper     float64 `json:"upper"`
	Middle    float64 `json:"middle"`
	Lower     float64 `json:"lower"`
	Width     float64 `json:"width"`
	PercentB  float64 `json:"percent_b"`
	Bandwidth float64 `json:"bandwidth"`
}

func (b Bands) Zero() bool {
	return b.Upper == 0 && b.Middle == 0 && b.Lower == 0
}

// Inside reports whether b lies strictly within outer on both sides.
func (b Bands) Inside(outer Bands) bool {
	if b.Zero() || outer.Zero() {
		return false
	}
	return b.Upper < outer.Upper && b.Lower > outer.Lower
}

func neutralBands() Bands {
	return Bands{PercentB: 0.5}
}

// Bollinger uses the SMA and population standard deviation of the last
// period values. Short input yields zero bands with PercentB 0.5.
func Bollinger(values []float64, period int, mult float64) Bands {
	n := len(values)
	if period <= 0 || n < period {
		return neutralBands()
	}
	mean, std := meanStd(values[n-period:])
	b := Bands{
		Middle: mean,
		Upper:  mean + mult*std,
		Lower:  mean - mult*std,
	}
	return b.finish(last(values))
}

// Keltner centers on EMA(period) and offsets by mult*ATR(atrPeriod) over closes.
func Keltner(values []float64, period, atrPeriod int, mult float64) Bands {
	n := len(values)
	if period <= 0 || atrPeriod <= 0 || n < period || n < atrPeriod+1 {
		return neutralBands()
	}
	mid := EMA(values, period)
	atr := ATR(values, atrPeriod)
	b := Bands{
		Middle: mid,
		Upper:  mid + mult*atr,
		Lower:  mid - mult*atr,
	}
	return b.finish(last(values))
}

func (b Bands) finish(price float64) Bands {
	b.Width = b.Upper - b.Lower
	if b.Width > 0 {
		b.PercentB = finite((price - b.Lower) / b.Width)
	} else {
		b.PercentB = 0.5
	}
	if b.Middle != 0 {
		b.Bandwidth = finite(b.Width / b.Middle)
	}
	return b
}

// ATR over a close-only series: mean absolute change of the last period steps.
func ATR(values []float64, period int) float64 {
	n := len(values)
	if period <= 0 || n < period+1 {
		return 0
	}
	sum := 0.0
	for i := n - period; i < n; i++ {
		sum += math.Abs(values[i] - values[i-1])
	}
	return finite(sum / float64(period))
}

// ATRBars is the plain mean true range of the last period bars.
func ATRBars(bars []Bar, period int) float64 {
	n := len(bars)
	if period <= 0 || n < period+1 {
		return 0
	}
	sum := 0.0
	for i := n - period; i < n; i++ {
		prevClose := bars[i-1].Close
		tr := bars[i].High - bars[i].Low
		tr = math.Max(tr, math.Abs(bars[i].High-prevClose))
		tr = math.Max(tr, math.Abs(bars[i].Low-prevClose))
		sum += tr
	}
	return finite(sum / float64(period))
}

func meanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	variance := 0.0
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(values))
	return finite(mean), finite(math.Sqrt(variance))
}
