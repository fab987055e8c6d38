package strategy

import (
	"fmt"
	"time"

	"botarena/internal/strategy/daystate"
)

type openingRangeParams struct {
	exitParams `mapstructure:",squash"`

	RangeMinutes           float64 `mapstructure:"range_minutes"`
	MinRangePct            float64 `mapstructure:"min_range_pct"`
	MaxRangePct            float64 `mapstructure:"max_range_pct"`
	VolumeRatio            float64 `mapstructure:"volume_ratio"`
	ExitBeforeCloseMinutes float64 `mapstructure:"exit_before_close_minutes"`
	TargetMultiple         float64 `mapstructure:"target_multiple"`
	AllowShort             bool    `mapstructure:"allow_short"`
}

func (p openingRangeParams) validate() error {
	if err := p.exitParams.validate(); err != nil {
		return err
	}
	if p.RangeMinutes <= 0 {
		return invalid("range_minutes must be > 0")
	}
	if p.MinRangePct < 0 || p.MaxRangePct <= p.MinRangePct {
		return invalid("range pct bounds must satisfy 0 <= min < max")
	}
	if p.VolumeRatio < 0 || p.ExitBeforeCloseMinutes < 0 || p.TargetMultiple <= 0 {
		return invalid("volume_ratio, exit_before_close_minutes and target_multiple out of range")
	}
	return nil
}

// RangeState is the per-(bot, symbol, day) opening range.
type RangeState struct {
	High       float64
	Low        float64
	Samples    int
	TradeTaken bool
}

func (r RangeState) width() float64 { return r.High - r.Low }

// OpeningRange records the high/low of the first minutes after the open and
// trades the first confirmed break, at most once per symbol per day.
type OpeningRange struct {
	base
	cfg   openingRangeParams
	clock Clock
	state *daystate.Store[RangeState]
}

func newOpeningRange(p Params, deps Deps) (Strategy, error) {
	var cfg openingRangeParams
	if err := decodeParams(p, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &OpeningRange{
		base:  newBase(KindOpeningRange, RegimePolling, p, cfg.MinHistory),
		cfg:   cfg,
		clock: deps.Clock,
		state: daystate.New[RangeState](deps.Clock.Day, nil),
	}, nil
}

// Range returns the day's range for the input's (bot, symbol).
func (o *OpeningRange) Range(in Input) RangeState {
	return o.state.Get(in.BotID, in.Symbol, in.Now)
}

// DayResets reports how many day rollovers the range store has performed.
func (o *OpeningRange) DayResets() int {
	return o.state.Resets()
}

func (o *OpeningRange) CheckEntry(in Input) EntrySignal {
	if !o.enoughHistory(in) {
		return hold("insufficient history")
	}
	price := in.price()
	if price <= 0 {
		return hold("no price")
	}
	if !o.clock.InSession(in.Now) {
		return hold("outside session")
	}
	since := o.clock.MinutesSinceOpen(in.Now)
	if since < o.cfg.RangeMinutes {
		o.state.Update(in.BotID, in.Symbol, in.Now, func(st *RangeState) {
			if st.Samples == 0 || price > st.High {
				st.High = price
			}
			if st.Samples == 0 || price < st.Low {
				st.Low = price
			}
			st.Samples++
		})
		return hold("building opening range")
	}
	if o.clock.MinutesToClose(in.Now) <= o.cfg.ExitBeforeCloseMinutes {
		return hold("too close to session close")
	}

	st := o.state.Get(in.BotID, in.Symbol, in.Now)
	return o.breakout(in, price, &st)
}

// RecordEntry marks the day's trade as taken for (botID, symbol).
func (o *OpeningRange) RecordEntry(botID, symbol string, at time.Time) {
	o.state.Update(botID, symbol, at, func(st *RangeState) { st.TradeTaken = true })
}

func (o *OpeningRange) breakout(in Input, price float64, st *RangeState) EntrySignal {
	if st.Samples == 0 {
		return hold("no opening range recorded")
	}
	if st.TradeTaken {
		return hold("already traded today")
	}
	w := st.width()
	rangePct := w / price * 100
	ind := map[string]float64{
		"range_high": st.High,
		"range_low":  st.Low,
		"range_pct":  rangePct,
	}
	if rangePct < o.cfg.MinRangePct || rangePct > o.cfg.MaxRangePct {
		sig := hold(fmt.Sprintf("range %.2f%% outside [%.2f, %.2f]", rangePct, o.cfg.MinRangePct, o.cfg.MaxRangePct))
		sig.Indicators = ind
		return sig
	}
	ratio := in.VolumeRatio()
	var action Action
	var t Targets
	var breakPct float64
	switch {
	case price > st.High:
		action = ActionBuy
		breakPct = (price - st.High) / st.High * 100
		t = Targets{Entry: price, ProfitTarget: price + w*o.cfg.TargetMultiple, StopLoss: st.Low}
	case price < st.Low && o.cfg.AllowShort:
		action = ActionSellShort
		breakPct = (st.Low - price) / st.Low * 100
		t = Targets{Entry: price, ProfitTarget: price - w*o.cfg.TargetMultiple, StopLoss: st.High}
	default:
		sig := hold("inside opening range")
		sig.Indicators = ind
		return sig
	}
	if ratio < o.cfg.VolumeRatio {
		sig := hold(fmt.Sprintf("breakout without volume (%.2fx)", ratio))
		sig.Indicators = ind
		return sig
	}
	if o.cfg.ProfitTargetPct > 0 || o.cfg.StopLossPct > 0 {
		side, _ := action.Opens()
		pct := o.cfg.targets(side, price)
		if o.cfg.ProfitTargetPct > 0 {
			t.ProfitTarget = pct.ProfitTarget
		}
		if o.cfg.StopLossPct > 0 {
			t.StopLoss = pct.StopLoss
		}
	}
	early := o.clock.MinutesSinceOpen(in.Now) <= o.cfg.RangeMinutes*3
	return EntrySignal{
		ShouldEnter: true,
		Action:      action,
		Reason:      fmt.Sprintf("opening range break %.4f-%.4f at %.4f", st.Low, st.High, price),
		Confidence:  NewConfidence().Strength(breakPct).Volume(ratio).Aligned(early).Value(),
		Targets:     t,
		Indicators:  ind,
	}
}

func (o *OpeningRange) CheckExit(in Input, pos Position) ExitSignal {
	if o.clock.MinutesToClose(in.Now) <= o.cfg.ExitBeforeCloseMinutes {
		return ExitSignal{ShouldExit: true, Reason: "session close approaching", Confidence: 95}
	}
	if sig, ok := TargetExit(pos.Side, pos.Targets, in.price()); ok {
		return sig
	}
	return stay("holding breakout")
}

func (o *OpeningRange) Analyze(in Input) Decision { return analyze(o, in) }
