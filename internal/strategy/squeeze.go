package strategy

import (
	"fmt"

	"botarena/internal/indicator"
	"botarena/internal/strategy/daystate"
)

type squeezeParams struct {
	exitParams `mapstructure:",squash"`

	BBPeriod        int     `mapstructure:"bb_period"`
	BBMult          float64 `mapstructure:"bb_mult"`
	KCPeriod        int     `mapstructure:"kc_period"`
	KCATRPeriod     int     `mapstructure:"kc_atr_period"`
	KCMult          float64 `mapstructure:"kc_mult"`
	MinSqueezeTicks int     `mapstructure:"min_squeeze_ticks"`
	MomentumPeriod  int     `mapstructure:"momentum_period"`
	AllowShort      bool    `mapstructure:"allow_short"`
}

func (p squeezeParams) validate() error {
	if err := p.exitParams.validate(); err != nil {
		return err
	}
	if p.BBPeriod < 2 || p.KCPeriod < 2 || p.KCATRPeriod < 1 || p.MomentumPeriod < 1 {
		return invalid("squeeze periods out of range")
	}
	if p.BBMult <= 0 || p.KCMult <= 0 {
		return invalid("band multipliers must be > 0")
	}
	if p.MinSqueezeTicks < 1 {
		return invalid("min_squeeze_ticks must be >= 1")
	}
	need := max(p.BBPeriod, p.KCPeriod, p.KCATRPeriod+1, p.MomentumPeriod+1)
	if p.MinHistory < need {
		return invalid("min_history must be >= %d", need)
	}
	return nil
}

// SqueezeBreakout waits for Bollinger bands to sit inside Keltner channels
// for several ticks, then trades the release in the momentum direction.
type SqueezeBreakout struct {
	base
	cfg      squeezeParams
	counters *daystate.Store[int]
}

func newSqueezeBreakout(p Params, deps Deps) (Strategy, error) {
	var cfg squeezeParams
	if err := decodeParams(p, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &SqueezeBreakout{
		base:     newBase(KindSqueezeBreakout, RegimePolling, p, cfg.MinHistory),
		cfg:      cfg,
		counters: daystate.New[int](deps.Clock.Day, nil),
	}, nil
}

// SqueezeTicks is the current consecutive squeeze count for (bot, symbol).
func (s *SqueezeBreakout) SqueezeTicks(in Input) int {
	return s.counters.Get(in.BotID, in.Symbol, in.Now)
}

func (s *SqueezeBreakout) CheckEntry(in Input) EntrySignal {
	if !s.enoughHistory(in) {
		return hold("insufficient history")
	}
	bb := indicator.Bollinger(in.Prices, s.cfg.BBPeriod, s.cfg.BBMult)
	kc := indicator.Keltner(in.Prices, s.cfg.KCPeriod, s.cfg.KCATRPeriod, s.cfg.KCMult)
	squeezed := bb.Inside(kc)

	var released int
	s.counters.Update(in.BotID, in.Symbol, in.Now, func(n *int) {
		if squeezed {
			*n++
			return
		}
		released = *n
		*n = 0
	})
	ind := map[string]float64{
		"bb_upper":  bb.Upper,
		"bb_lower":  bb.Lower,
		"kc_upper":  kc.Upper,
		"kc_lower":  kc.Lower,
		"bandwidth": bb.Bandwidth,
	}
	if squeezed {
		sig := hold("squeeze building")
		sig.Indicators = ind
		return sig
	}
	if released < s.cfg.MinSqueezeTicks {
		sig := hold(fmt.Sprintf("no qualifying squeeze (%d ticks)", released))
		sig.Indicators = ind
		return sig
	}
	mom := indicator.Momentum(in.Prices, s.cfg.MomentumPeriod)
	ind["momentum"] = mom
	var action Action
	switch {
	case mom > 0:
		action = ActionBuy
	case mom < 0 && s.cfg.AllowShort:
		action = ActionSellShort
	default:
		sig := hold("squeeze released without usable momentum")
		sig.Indicators = ind
		return sig
	}
	side, _ := action.Opens()
	price := in.price()
	var breakout bool
	if side == SideLong {
		breakout = price > bb.Upper
	} else {
		breakout = price < bb.Lower
	}
	return EntrySignal{
		ShouldEnter: true,
		Action:      action,
		Reason:      fmt.Sprintf("squeeze released after %d ticks, momentum %.2f%%", released, mom),
		Confidence:  NewConfidence().Strength(mom).Volume(in.VolumeRatio()).Aligned(breakout).Value(),
		Targets:     s.cfg.targets(side, price),
		Indicators:  ind,
	}
}

func (s *SqueezeBreakout) CheckExit(in Input, pos Position) ExitSignal {
	if sig, ok := s.cfg.exitOnTargets(pos, in.price()); ok {
		return sig
	}
	mom := indicator.Momentum(in.Prices, s.cfg.MomentumPeriod)
	if pos.Side == SideLong && mom < 0 {
		return ExitSignal{ShouldExit: true, Reason: fmt.Sprintf("momentum turned negative %.2f%%", mom), Confidence: 65}
	}
	if pos.Side == SideShort && mom > 0 {
		return ExitSignal{ShouldExit: true, Reason: fmt.Sprintf("momentum turned positive %.2f%%", mom), Confidence: 65}
	}
	return stay("momentum intact")
}

func (s *SqueezeBreakout) Analyze(in Input) Decision { return analyze(s, in) }
