package indicator

// Bar is the OHLCV shape the bar-based indicators read.
type Bar struct {
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

func (b Bar) Typical() float64 {
	return (b.High + b.Low + b.Close) / 3
}

func columns(bars []Bar) (highs, lows, closes, volumes []float64) {
	highs = make([]float64, len(bars))
	lows = make([]float64, len(bars))
	closes = make([]float64, len(bars))
	volumes = make([]float64, len(bars))
	for i, b := range bars {
		highs[i] = b.High
		lows[i] = b.Low
		closes[i] = b.Close
		volumes[i] = b.Volume
	}
	return
}
