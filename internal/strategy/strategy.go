// Package strategy defines the pluggable trading strategy contract and the
// built-in rule-based and AI-driven kinds.
package strategy

import (
	"time"
)

type Kind string

const (
	KindMomentum        Kind = "momentum"
	KindMeanReversion   Kind = "mean_reversion"
	KindSqueezeBreakout Kind = "squeeze_breakout"
	KindDivergence      Kind = "divergence"
	KindOpeningRange    Kind = "opening_range"
	KindGapFade         Kind = "gap_fade"
	KindNewsAI          Kind = "news_ai"
)

// Regime selects how a bot is driven: a periodic tick or incoming events.
type Regime string

const (
	RegimePolling  Regime = "polling"
	RegimeReactive Regime = "reactive"
)

type Action string

const (
	ActionBuy        Action = "BUY"
	ActionSell       Action = "SELL"
	ActionSellShort  Action = "SELL_SHORT"
	ActionBuyToCover Action = "BUY_TO_COVER"
	ActionHold       Action = "HOLD"
)

type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Opens reports the side an opening action creates.
func (a Action) Opens() (Side, bool) {
	switch a {
	case ActionBuy:
		return SideLong, true
	case ActionSellShort:
		return SideShort, true
	default:
		return "", false
	}
}

// CloseAction is the order action that flattens a position on side.
func CloseAction(side Side) Action {
	if side == SideShort {
		return ActionBuyToCover
	}
	return ActionSell
}

type Targets struct {
	Entry        float64 `json:"entry"`
	ProfitTarget float64 `json:"profit_target"`
	StopLoss     float64 `json:"stop_loss"`
}

// Session carries the daily reference prices gap-aware kinds need.
type Session struct {
	Open      float64 `json:"open"`
	PrevClose float64 `json:"prev_close"`
}

// Input is the view of one symbol handed to a strategy on a tick.
type Input struct {
	BotID        string
	Symbol       string
	Now          time.Time
	Prices       []float64
	Volumes      []float64
	CurrentPrice float64
	AvgVolume    float64
	Session      *Session
	// Position is set when the bot holds Symbol; Analyze then runs the exit check.
	Position *Position
}

// VolumeRatio is the latest volume over AvgVolume, 0 when unknown. The runtime
// fills AvgVolume from the samples before the latest one.
func (in Input) VolumeRatio() float64 {
	if in.AvgVolume <= 0 || len(in.Volumes) == 0 {
		return 0
	}
	return in.Volumes[len(in.Volumes)-1] / in.AvgVolume
}

func (in Input) price() float64 {
	if in.CurrentPrice > 0 {
		return in.CurrentPrice
	}
	if n := len(in.Prices); n > 0 {
		return in.Prices[n-1]
	}
	return 0
}

type Position struct {
	Symbol     string    `json:"symbol"`
	Side       Side      `json:"side"`
	Qty        float64   `json:"qty"`
	EntryPrice float64   `json:"entry_price"`
	OpenedAt   time.Time `json:"opened_at"`
	Targets    Targets   `json:"targets"`
}

type EntrySignal struct {
	ShouldEnter bool
	Action      Action
	Reason      string
	Confidence  float64
	Targets     Targets
	Indicators  map[string]float64
}

type ExitSignal struct {
	ShouldExit bool
	Reason     string
	Confidence float64
}

// Decision is the transient outcome of one evaluation.
type Decision struct {
	Action     Action             `json:"action"`
	Reason     string             `json:"reason"`
	Confidence float64            `json:"confidence"`
	Targets    Targets            `json:"targets"`
	Indicators map[string]float64 `json:"indicators,omitempty"`
}

// Strategy is implemented by every kind. Implementations keep their mutable
// state keyed by (bot, symbol, day) so one instance may serve many symbols.
type Strategy interface {
	Kind() Kind
	Regime() Regime
	MinHistory() int
	Params() Params
	CheckEntry(in Input) EntrySignal
	CheckExit(in Input, pos Position) ExitSignal
	Analyze(in Input) Decision
}

// EntryRecorder is implemented by kinds that allow a limited number of
// entries per day. CheckEntry never consumes the allowance; the runtime calls
// RecordEntry once the entry order has been filled.
type EntryRecorder interface {
	RecordEntry(botID, symbol string, at time.Time)
}

func hold(reason string) EntrySignal {
	return EntrySignal{Action: ActionHold, Reason: reason}
}

func stay(reason string) ExitSignal {
	return ExitSignal{Reason: reason}
}

// analyze is shared by every kind: exit check when a position is held,
// entry check otherwise.
func analyze(s Strategy, in Input) Decision {
	if in.Position != nil {
		sig := s.CheckExit(in, *in.Position)
		if !sig.ShouldExit {
			return Decision{Action: ActionHold, Reason: sig.Reason, Confidence: sig.Confidence}
		}
		return Decision{
			Action:     CloseAction(in.Position.Side),
			Reason:     sig.Reason,
			Confidence: sig.Confidence,
			Targets:    in.Position.Targets,
		}
	}
	sig := s.CheckEntry(in)
	if !sig.ShouldEnter {
		return Decision{Action: ActionHold, Reason: sig.Reason, Indicators: sig.Indicators}
	}
	return Decision{
		Action:     sig.Action,
		Reason:     sig.Reason,
		Confidence: sig.Confidence,
		Targets:    sig.Targets,
		Indicators: sig.Indicators,
	}
}
