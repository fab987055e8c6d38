package strategy

import (
	"fmt"

	"botarena/internal/indicator"
)

type meanReversionParams struct {
	exitParams `mapstructure:",squash"`

	Reference    string  `mapstructure:"reference"` // vwap | support
	Lookback     int     `mapstructure:"lookback"`
	DeviationPct float64 `mapstructure:"deviation_pct"`
	VolumeRatio  float64 `mapstructure:"volume_ratio"`
}

func (p meanReversionParams) validate() error {
	if err := p.exitParams.validate(); err != nil {
		return err
	}
	if p.Reference != "vwap" && p.Reference != "support" {
		return invalid("reference must be vwap or support, got %q", p.Reference)
	}
	if p.Lookback < 2 {
		return invalid("lookback must be >= 2")
	}
	if p.DeviationPct <= 0 {
		return invalid("deviation_pct must be > 0")
	}
	if p.VolumeRatio < 0 {
		return invalid("volume_ratio must be >= 0")
	}
	return nil
}

// MeanReversion buys stretched moves below a VWAP or support reference and
// exits when price reverts to it.
type MeanReversion struct {
	base
	cfg meanReversionParams
}

func newMeanReversion(p Params, _ Deps) (Strategy, error) {
	var cfg meanReversionParams
	if err := decodeParams(p, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &MeanReversion{base: newBase(KindMeanReversion, RegimePolling, p, cfg.MinHistory), cfg: cfg}, nil
}

func (m *MeanReversion) reference(in Input) float64 {
	prices := tail(in.Prices, m.cfg.Lookback)
	if m.cfg.Reference == "support" {
		return indicator.SupportResistance(prices, m.cfg.Lookback).Support
	}
	return indicator.VWAP(prices, tail(in.Volumes, m.cfg.Lookback))
}

func (m *MeanReversion) CheckEntry(in Input) EntrySignal {
	if !m.enoughHistory(in) {
		return hold("insufficient history")
	}
	price := in.price()
	ref := m.reference(in)
	if ref <= 0 || price <= 0 {
		return hold("reference unavailable")
	}
	deviation := (ref - price) / ref * 100
	ratio := in.VolumeRatio()
	rsi := indicator.RSI(in.Prices, 14)
	ind := map[string]float64{
		"reference":    ref,
		"deviation":    deviation,
		"volume_ratio": ratio,
		"rsi":          rsi,
	}
	if deviation < m.cfg.DeviationPct {
		sig := hold(fmt.Sprintf("deviation %.2f%% below threshold", deviation))
		sig.Indicators = ind
		return sig
	}
	if ratio < m.cfg.VolumeRatio {
		sig := hold(fmt.Sprintf("volume ratio %.2f below %.2f", ratio, m.cfg.VolumeRatio))
		sig.Indicators = ind
		return sig
	}
	t := m.cfg.targets(SideLong, price)
	if m.cfg.ProfitTargetPct == 0 || t.ProfitTarget > ref {
		t.ProfitTarget = ref
	}
	return EntrySignal{
		ShouldEnter: true,
		Action:      ActionBuy,
		Reason:      fmt.Sprintf("price %.2f%% below %s %.4f on %.1fx volume", deviation, m.cfg.Reference, ref, ratio),
		Confidence:  NewConfidence().Strength(deviation).Volume(ratio).Aligned(rsi < 30).Value(),
		Targets:     t,
		Indicators:  ind,
	}
}

func (m *MeanReversion) CheckExit(in Input, pos Position) ExitSignal {
	price := in.price()
	if sig, ok := m.cfg.exitOnTargets(pos, price); ok {
		return sig
	}
	ref := m.reference(in)
	if ref > 0 && pos.Side == SideLong && price >= ref {
		return ExitSignal{ShouldExit: true, Reason: fmt.Sprintf("reverted to %s %.4f", m.cfg.Reference, ref), Confidence: 75}
	}
	return stay("waiting for reversion")
}

func (m *MeanReversion) Analyze(in Input) Decision { return analyze(m, in) }

func tail(values []float64, n int) []float64 {
	if n <= 0 || len(values) <= n {
		return values
	}
	return values[len(values)-n:]
}
