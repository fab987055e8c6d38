package market

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"
)

const overnightMinSigma = 0.01

// SimProvider is a deterministic random-walk market used for offline runs
// and tests. Each symbol starts at a price derived from its name.
type SimProvider struct {
	mu         sync.Mutex
	rng        *rand.Rand
	basePrice  float64
	volatility float64
	prices     map[string]float64
	nowFn      func() time.Time
}

func NewSimProvider(seed int64, basePrice, volatility float64) *SimProvider {
	if basePrice <= 0 {
		basePrice = 100
	}
	if volatility <= 0 {
		volatility = 0.002
	}
	return &SimProvider{
		rng:        rand.New(rand.NewSource(seed)),
		basePrice:  basePrice,
		volatility: volatility,
		prices:     make(map[string]float64),
		nowFn:      time.Now,
	}
}

func (s *SimProvider) startPrice(symbol string) float64 {
	return s.basePrice * (0.5 + float64(hashKey(symbol)%100)/100)
}

func (s *SimProvider) step(price float64) float64 {
	next := price * (1 + s.volatility*s.rng.NormFloat64())
	return math.Max(next, 0.01)
}

// gapStep moves from a bar's open back to the previous bar's close. Daily and
// longer bars get a wider overnight move so opening gaps occur.
func (s *SimProvider) gapStep(open float64, tf time.Duration) float64 {
	if tf < 24*time.Hour {
		return s.step(open)
	}
	sigma := math.Max(3*s.volatility, overnightMinSigma)
	return math.Max(open*(1+sigma*s.rng.NormFloat64()), 0.01)
}

func (s *SimProvider) volume() float64 {
	return math.Round(1000 * (0.5 + s.rng.Float64()))
}

func (s *SimProvider) Quote(ctx context.Context, symbol string) (*Quote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	symbol = normalizeSymbol(symbol)
	if symbol == "" {
		return nil, fmt.Errorf("sim quote: empty symbol")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.prices[symbol]
	if !ok {
		p = s.startPrice(symbol)
	}
	p = s.step(p)
	s.prices[symbol] = p
	return &Quote{Symbol: symbol, Price: p, Time: s.nowFn()}, nil
}

// Bars walks backwards from the current price so the last bar's close is the
// latest quote. A bar's open and the previous bar's close are separate steps.
func (s *SimProvider) Bars(ctx context.Context, symbol, timeframe string, limit int) ([]Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tf, ok := ParseTimeframe(timeframe)
	if !ok {
		return nil, fmt.Errorf("sim bars: invalid timeframe %q", timeframe)
	}
	if limit <= 0 {
		return nil, nil
	}
	symbol = normalizeSymbol(symbol)
	s.mu.Lock()
	defer s.mu.Unlock()
	closePrice, ok := s.prices[symbol]
	if !ok {
		closePrice = s.startPrice(symbol)
		s.prices[symbol] = closePrice
	}
	end := s.nowFn().Truncate(tf)
	bars := make([]Bar, limit)
	for i := limit - 1; i >= 0; i-- {
		open := s.step(closePrice)
		hi := math.Max(open, closePrice) * (1 + s.volatility*s.rng.Float64())
		lo := math.Min(open, closePrice) * (1 - s.volatility*s.rng.Float64())
		bars[i] = Bar{
			Time:   end.Add(-time.Duration(limit-1-i) * tf),
			Open:   open,
			High:   hi,
			Low:    lo,
			Close:  closePrice,
			Volume: s.volume(),
		}
		closePrice = s.gapStep(open, tf)
	}
	return bars, nil
}
