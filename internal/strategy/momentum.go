package strategy

import (
	"fmt"

	"botarena/internal/indicator"
)

type momentumParams struct {
	exitParams `mapstructure:",squash"`

	FastPeriod int  `mapstructure:"fast_period"`
	SlowPeriod int  `mapstructure:"slow_period"`
	AllowShort bool `mapstructure:"allow_short"`
}

func (p momentumParams) validate() error {
	if err := p.exitParams.validate(); err != nil {
		return err
	}
	if p.FastPeriod <= 0 || p.SlowPeriod <= 0 {
		return invalid("momentum periods must be > 0")
	}
	if p.FastPeriod >= p.SlowPeriod {
		return invalid("fast_period must be < slow_period")
	}
	if p.MinHistory < p.SlowPeriod+1 {
		return invalid("min_history must be >= slow_period+1")
	}
	return nil
}

// Momentum trades fast/slow SMA crossovers on the latest sample.
type Momentum struct {
	base
	cfg momentumParams
}

func newMomentum(p Params, _ Deps) (Strategy, error) {
	var cfg momentumParams
	if err := decodeParams(p, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Momentum{base: newBase(KindMomentum, RegimePolling, p, cfg.MinHistory), cfg: cfg}, nil
}

type crossState struct {
	fastPrev, slowPrev float64
	fastNow, slowNow   float64
}

func (c crossState) up() bool   { return c.fastPrev <= c.slowPrev && c.fastNow > c.slowNow }
func (c crossState) down() bool { return c.fastPrev >= c.slowPrev && c.fastNow < c.slowNow }

func (m *Momentum) cross(prices []float64) (crossState, bool) {
	n := len(prices)
	if n < m.cfg.SlowPeriod+1 {
		return crossState{}, false
	}
	prev := prices[:n-1]
	c := crossState{
		fastPrev: indicator.SMA(prev, m.cfg.FastPeriod),
		slowPrev: indicator.SMA(prev, m.cfg.SlowPeriod),
		fastNow:  indicator.SMA(prices, m.cfg.FastPeriod),
		slowNow:  indicator.SMA(prices, m.cfg.SlowPeriod),
	}
	if c.slowNow <= 0 || c.slowPrev <= 0 {
		return crossState{}, false
	}
	return c, true
}

func (m *Momentum) CheckEntry(in Input) EntrySignal {
	if !m.enoughHistory(in) {
		return hold("insufficient history")
	}
	c, ok := m.cross(in.Prices)
	if !ok {
		return hold("moving averages unavailable")
	}
	price := in.price()
	spread := (c.fastNow - c.slowNow) / c.slowNow * 100
	ind := map[string]float64{
		"sma_fast": c.fastNow,
		"sma_slow": c.slowNow,
		"spread":   spread,
	}
	var action Action
	switch {
	case c.up():
		action = ActionBuy
	case c.down() && m.cfg.AllowShort:
		action = ActionSellShort
	default:
		sig := hold("no crossover")
		sig.Indicators = ind
		return sig
	}
	side, _ := action.Opens()
	aligned := (side == SideLong && price > c.fastNow) || (side == SideShort && price < c.fastNow)
	direction := "above"
	if side == SideShort {
		direction = "below"
	}
	return EntrySignal{
		ShouldEnter: true,
		Action:      action,
		Reason: fmt.Sprintf("SMA%d crossover %s SMA%d (%.4f vs %.4f)",
			m.cfg.FastPeriod, direction, m.cfg.SlowPeriod, c.fastNow, c.slowNow),
		Confidence: NewConfidence().Strength(spread).Volume(in.VolumeRatio()).Aligned(aligned).Value(),
		Targets:    m.cfg.targets(side, price),
		Indicators: ind,
	}
}

func (m *Momentum) CheckExit(in Input, pos Position) ExitSignal {
	price := in.price()
	if sig, ok := m.cfg.exitOnTargets(pos, price); ok {
		return sig
	}
	c, ok := m.cross(in.Prices)
	if !ok {
		return stay("moving averages unavailable")
	}
	if pos.Side == SideLong && c.fastNow < c.slowNow {
		return ExitSignal{ShouldExit: true, Reason: "bearish crossover against long", Confidence: 70}
	}
	if pos.Side == SideShort && c.fastNow > c.slowNow {
		return ExitSignal{ShouldExit: true, Reason: "bullish crossover against short", Confidence: 70}
	}
	return stay("trend intact")
}

func (m *Momentum) Analyze(in Input) Decision { return analyze(m, in) }
