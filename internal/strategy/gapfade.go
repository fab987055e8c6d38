package strategy

import (
	"fmt"
	"math"
	"time"

	"botarena/internal/indicator"
	"botarena/internal/strategy/daystate"
)

type gapFadeParams struct {
	exitParams `mapstructure:",squash"`

	WindowStartMinutes float64 `mapstructure:"window_start_minutes"`
	WindowEndMinutes   float64 `mapstructure:"window_end_minutes"`
	MinGapPct          float64 `mapstructure:"min_gap_pct"`
	MaxGapPct          float64 `mapstructure:"max_gap_pct"`
	PartialFillPct     float64 `mapstructure:"partial_fill_pct"`
	StopExtensionPct   float64 `mapstructure:"stop_extension_pct"` // of the gap size, beyond the open
	MaxHoldMinutes     float64 `mapstructure:"max_hold_minutes"`
}

func (p gapFadeParams) validate() error {
	if err := p.exitParams.validate(); err != nil {
		return err
	}
	if p.WindowStartMinutes < 0 || p.WindowEndMinutes <= p.WindowStartMinutes {
		return invalid("gap window must satisfy 0 <= start < end")
	}
	if p.MinGapPct <= 0 || p.MaxGapPct <= p.MinGapPct {
		return invalid("gap pct bounds must satisfy 0 < min < max")
	}
	if p.PartialFillPct <= 0 || p.PartialFillPct > 100 {
		return invalid("partial_fill_pct must be in (0,100]")
	}
	if p.StopExtensionPct <= 0 || p.MaxHoldMinutes <= 0 {
		return invalid("stop_extension_pct and max_hold_minutes must be > 0")
	}
	return nil
}

// GapState is the per-(bot, symbol, day) gap bookkeeping.
type GapState struct {
	Traded  bool
	Gap     indicator.Gap
	MaxFill float64 // highest fraction of the gap closed while holding
}

// GapFade fades opening gaps back toward the previous close.
type GapFade struct {
	base
	cfg   gapFadeParams
	clock Clock
	state *daystate.Store[GapState]
}

func newGapFade(p Params, deps Deps) (Strategy, error) {
	var cfg gapFadeParams
	if err := decodeParams(p, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &GapFade{
		base:  newBase(KindGapFade, RegimePolling, p, cfg.MinHistory),
		cfg:   cfg,
		clock: deps.Clock,
		state: daystate.New[GapState](deps.Clock.Day, nil),
	}, nil
}

func (g *GapFade) State(in Input) GapState {
	return g.state.Get(in.BotID, in.Symbol, in.Now)
}

func (g *GapFade) CheckEntry(in Input) EntrySignal {
	if !g.enoughHistory(in) {
		return hold("insufficient history")
	}
	if in.Session == nil || in.Session.Open <= 0 || in.Session.PrevClose <= 0 {
		return hold("no session data")
	}
	price := in.price()
	if price <= 0 {
		return hold("no price")
	}
	since := g.clock.MinutesSinceOpen(in.Now)
	if !g.clock.InSession(in.Now) || since < g.cfg.WindowStartMinutes || since > g.cfg.WindowEndMinutes {
		return hold("outside gap window")
	}
	open, prevClose := in.Session.Open, in.Session.PrevClose
	gap := indicator.ClassifyGap(open, prevClose)
	size := math.Abs(gap.Percent)
	ind := map[string]float64{
		"gap_pct":    gap.Percent,
		"open":       open,
		"prev_close": prevClose,
	}
	if gap.Type == indicator.GapNone || size < g.cfg.MinGapPct || size > g.cfg.MaxGapPct {
		sig := hold(fmt.Sprintf("gap %.2f%% outside [%.2f, %.2f]", gap.Percent, g.cfg.MinGapPct, g.cfg.MaxGapPct))
		sig.Indicators = ind
		return sig
	}

	var sig EntrySignal
	g.state.Update(in.BotID, in.Symbol, in.Now, func(st *GapState) {
		st.Gap = gap
		if st.Traded {
			sig = hold("gap already faded today")
			return
		}
		sig = g.fade(in, gap, price, ind)
	})
	return sig
}

// RecordEntry marks the day's fade as taken for (botID, symbol).
func (g *GapFade) RecordEntry(botID, symbol string, at time.Time) {
	g.state.Update(botID, symbol, at, func(st *GapState) { st.Traded = true })
}

func (g *GapFade) fade(in Input, gap indicator.Gap, price float64, ind map[string]float64) EntrySignal {
	open, prevClose := in.Session.Open, in.Session.PrevClose
	gapSize := math.Abs(open - prevClose)
	ext := gapSize * g.cfg.StopExtensionPct / 100
	var action Action
	var t Targets
	switch gap.Type {
	case indicator.GapUp:
		if price <= prevClose {
			return hold("gap already filled")
		}
		action = ActionSellShort
		t = Targets{Entry: price, ProfitTarget: prevClose, StopLoss: open + ext}
	case indicator.GapDown:
		if price >= prevClose {
			return hold("gap already filled")
		}
		action = ActionBuy
		t = Targets{Entry: price, ProfitTarget: prevClose, StopLoss: open - ext}
	default:
		return hold("no gap")
	}
	fill := fillFraction(open, prevClose, price)
	ind["fill"] = fill
	fading := fill > 0
	return EntrySignal{
		ShouldEnter: true,
		Action:      action,
		Reason:      fmt.Sprintf("fading %s of %.2f%% toward previous close %.4f", gap.Type, gap.Percent, prevClose),
		Confidence:  NewConfidence().Strength(gap.Percent).Volume(in.VolumeRatio()).Aligned(fading).Value(),
		Targets:     t,
		Indicators:  ind,
	}
}

func (g *GapFade) CheckExit(in Input, pos Position) ExitSignal {
	price := in.price()
	if in.Session != nil && in.Session.Open > 0 && in.Session.PrevClose > 0 {
		fill := fillFraction(in.Session.Open, in.Session.PrevClose, price)
		g.state.Update(in.BotID, in.Symbol, in.Now, func(st *GapState) {
			if fill > st.MaxFill {
				st.MaxFill = fill
			}
		})
		if fill >= 1 {
			return ExitSignal{ShouldExit: true, Reason: "gap fully filled", Confidence: 90}
		}
		if g.clock.MinutesSinceOpen(in.Now) > g.cfg.WindowEndMinutes && fill*100 >= g.cfg.PartialFillPct {
			return ExitSignal{ShouldExit: true, Reason: fmt.Sprintf("partial fill %.0f%% after window", fill*100), Confidence: 75}
		}
	}
	if StopLossHit(pos.Side, price, pos.Targets.StopLoss) {
		return ExitSignal{ShouldExit: true, Reason: fmt.Sprintf("gap extension stop at %.4f", price), Confidence: 90}
	}
	if !pos.OpenedAt.IsZero() && in.Now.Sub(pos.OpenedAt).Minutes() >= g.cfg.MaxHoldMinutes {
		return ExitSignal{ShouldExit: true, Reason: "max hold time reached", Confidence: 80}
	}
	if sig, ok := g.cfg.exitOnTargets(pos, price); ok {
		return sig
	}
	return stay("gap fade in progress")
}

func (g *GapFade) Analyze(in Input) Decision { return analyze(g, in) }

// fillFraction is how much of the open-to-prevClose gap price has retraced.
func fillFraction(open, prevClose, price float64) float64 {
	gap := open - prevClose
	if gap == 0 {
		return 0
	}
	return (open - price) / gap
}
