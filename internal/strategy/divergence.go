package strategy

import (
	"fmt"
	"math"

	"botarena/internal/indicator"
)

type divergenceParams struct {
	exitParams `mapstructure:",squash"`

	Lookback            int     `mapstructure:"lookback"`
	RSIPeriod           int     `mapstructure:"rsi_period"`
	MinStrength         float64 `mapstructure:"min_strength"` // RSI points
	RequireConfirmation bool    `mapstructure:"require_confirmation"`
	AllowShort          bool    `mapstructure:"allow_short"`
}

func (p divergenceParams) validate() error {
	if err := p.exitParams.validate(); err != nil {
		return err
	}
	if p.Lookback < 4 {
		return invalid("lookback must be >= 4")
	}
	if p.RSIPeriod < 2 {
		return invalid("rsi_period must be >= 2")
	}
	if p.MinStrength < 0 {
		return invalid("min_strength must be >= 0")
	}
	if p.MinHistory < p.Lookback+p.RSIPeriod {
		return invalid("min_history must be >= lookback+rsi_period")
	}
	return nil
}

// Divergence compares price and RSI extremes across the two halves of a
// lookback window and trades when they disagree.
type Divergence struct {
	base
	cfg divergenceParams
}

func newDivergence(p Params, _ Deps) (Strategy, error) {
	var cfg divergenceParams
	if err := decodeParams(p, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Divergence{base: newBase(KindDivergence, RegimePolling, p, cfg.MinHistory), cfg: cfg}, nil
}

type divergenceKind int

const (
	noDivergence divergenceKind = iota
	bullishDivergence
	bearishDivergence
)

type divergenceReading struct {
	kind     divergenceKind
	pricePct float64 // price move between the halves' extremes
	rsiDelta float64 // RSI move between the same extremes
}

func (d *Divergence) read(prices []float64) divergenceReading {
	if len(prices) < d.cfg.Lookback+d.cfg.RSIPeriod {
		return divergenceReading{}
	}
	rsi := indicator.RSISeries(prices, d.cfg.RSIPeriod)
	start := len(prices) - d.cfg.Lookback
	half := d.cfg.Lookback / 2
	p1, p2 := prices[start:start+half], prices[start+half:]
	r1, r2 := rsi[start:start+half], rsi[start+half:]

	lo1, lo2 := argMin(p1), argMin(p2)
	if p1[lo1] > 0 {
		pricePct := (p2[lo2] - p1[lo1]) / p1[lo1] * 100
		rsiDelta := r2[lo2] - r1[lo1]
		if pricePct < 0 && rsiDelta >= d.cfg.MinStrength {
			return divergenceReading{kind: bullishDivergence, pricePct: pricePct, rsiDelta: rsiDelta}
		}
	}
	hi1, hi2 := argMax(p1), argMax(p2)
	if p1[hi1] > 0 {
		pricePct := (p2[hi2] - p1[hi1]) / p1[hi1] * 100
		rsiDelta := r2[hi2] - r1[hi1]
		if pricePct > 0 && -rsiDelta >= d.cfg.MinStrength {
			return divergenceReading{kind: bearishDivergence, pricePct: pricePct, rsiDelta: rsiDelta}
		}
	}
	return divergenceReading{}
}

func (d *Divergence) CheckEntry(in Input) EntrySignal {
	if !d.enoughHistory(in) {
		return hold("insufficient history")
	}
	r := d.read(in.Prices)
	ind := map[string]float64{
		"price_change_pct": r.pricePct,
		"rsi_delta":        r.rsiDelta,
		"rsi":              indicator.RSI(in.Prices, d.cfg.RSIPeriod),
	}
	n := len(in.Prices)
	prev := in.Prices[n-2]
	price := in.price()
	var action Action
	var label string
	var confirmed bool
	switch r.kind {
	case bullishDivergence:
		action, label, confirmed = ActionBuy, "bullish", price > prev
	case bearishDivergence:
		if !d.cfg.AllowShort {
			sig := hold("bearish divergence, shorting disabled")
			sig.Indicators = ind
			return sig
		}
		action, label, confirmed = ActionSellShort, "bearish", price < prev
	default:
		sig := hold("no divergence")
		sig.Indicators = ind
		return sig
	}
	if d.cfg.RequireConfirmation && !confirmed {
		sig := hold(label + " divergence awaiting price confirmation")
		sig.Indicators = ind
		return sig
	}
	side, _ := action.Opens()
	return EntrySignal{
		ShouldEnter: true,
		Action:      action,
		Reason:      fmt.Sprintf("%s divergence: price %.2f%% vs RSI %+.1f", label, r.pricePct, r.rsiDelta),
		Confidence:  NewConfidence().Strength(math.Abs(r.pricePct)).Volume(in.VolumeRatio()).Aligned(confirmed).Value(),
		Targets:     d.cfg.targets(side, price),
		Indicators:  ind,
	}
}

func (d *Divergence) CheckExit(in Input, pos Position) ExitSignal {
	if sig, ok := d.cfg.exitOnTargets(pos, in.price()); ok {
		return sig
	}
	r := d.read(in.Prices)
	if pos.Side == SideLong && r.kind == bearishDivergence {
		return ExitSignal{ShouldExit: true, Reason: "bearish divergence against long", Confidence: 70}
	}
	if pos.Side == SideShort && r.kind == bullishDivergence {
		return ExitSignal{ShouldExit: true, Reason: "bullish divergence against short", Confidence: 70}
	}
	return stay("no opposing divergence")
}

func (d *Divergence) Analyze(in Input) Decision { return analyze(d, in) }

func argMin(values []float64) int {
	idx := 0
	for i, v := range values {
		if v < values[idx] {
			idx = i
		}
	}
	return idx
}

func argMax(values []float64) int {
	idx := 0
	for i, v := range values {
		if v > values[idx] {
			idx = i
		}
	}
	return idx
}
