package market

import (
	"time"

	"botarena/internal/indicator"
)

// Bar is one OHLCV candle of a timeframe.
type Bar struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

func (b Bar) Indicator() indicator.Bar {
	return indicator.Bar{Open: b.Open, High: b.High, Low: b.Low, Close: b.Close, Volume: b.Volume}
}

func IndicatorBars(bars []Bar) []indicator.Bar {
	out := make([]indicator.Bar, len(bars))
	for i, b := range bars {
		out[i] = b.Indicator()
	}
	return out
}

// Quote is the latest trade price of a symbol.
type Quote struct {
	Symbol string    `json:"symbol"`
	Price  float64   `json:"price"`
	Bid    float64   `json:"bid,omitempty"`
	Ask    float64   `json:"ask,omitempty"`
	Time   time.Time `json:"time"`
}
