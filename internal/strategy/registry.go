package strategy

import (
	"fmt"
	"sort"
	"strings"
)

// Deps are the shared services a strategy instance may use.
type Deps struct {
	Clock Clock
}

func (d Deps) withDefaults() Deps {
	if d.Clock.loc == nil {
		d.Clock = DefaultClock()
	}
	return d
}

type factory struct {
	regime   Regime
	defaults Params
	build    func(p Params, deps Deps) (Strategy, error)
}

var factories = map[Kind]factory{
	KindMomentum: {
		regime: RegimePolling,
		defaults: Params{
			"fast_period": 5, "slow_period": 15, "allow_short": false,
			"profit_target_pct": 2.0, "stop_loss_pct": 1.0, "min_history": 20,
		},
		build: newMomentum,
	},
	KindMeanReversion: {
		regime: RegimePolling,
		defaults: Params{
			"reference": "vwap", "lookback": 20, "deviation_pct": 2.0, "volume_ratio": 1.5,
			"profit_target_pct": 0.0, "stop_loss_pct": 2.0, "min_history": 20,
		},
		build: newMeanReversion,
	},
	KindSqueezeBreakout: {
		regime: RegimePolling,
		defaults: Params{
			"bb_period": 20, "bb_mult": 2.0, "kc_period": 20, "kc_atr_period": 10, "kc_mult": 1.5,
			"min_squeeze_ticks": 3, "momentum_period": 10, "allow_short": true,
			"profit_target_pct": 3.0, "stop_loss_pct": 1.5, "min_history": 21,
		},
		build: newSqueezeBreakout,
	},
	KindDivergence: {
		regime: RegimePolling,
		defaults: Params{
			"lookback": 20, "rsi_period": 14, "min_strength": 5.0, "require_confirmation": true,
			"allow_short": false, "profit_target_pct": 3.0, "stop_loss_pct": 2.0, "min_history": 34,
		},
		build: newDivergence,
	},
	KindOpeningRange: {
		regime: RegimePolling,
		defaults: Params{
			"range_minutes": 30, "min_range_pct": 0.3, "max_range_pct": 3.0, "volume_ratio": 1.5,
			"exit_before_close_minutes": 15, "target_multiple": 1.0, "allow_short": true,
			"profit_target_pct": 0.0, "stop_loss_pct": 0.0, "min_history": 1,
		},
		build: newOpeningRange,
	},
	KindGapFade: {
		regime: RegimePolling,
		defaults: Params{
			"window_start_minutes": 5, "window_end_minutes": 60, "min_gap_pct": 1.0, "max_gap_pct": 5.0,
			"partial_fill_pct": 50.0, "stop_extension_pct": 50.0, "max_hold_minutes": 120,
			"profit_target_pct": 0.0, "stop_loss_pct": 0.0, "min_history": 1,
		},
		build: newGapFade,
	},
	KindNewsAI: {
		regime: RegimeReactive,
		defaults: Params{
			"min_confidence": 60.0, "default_qty": 10.0,
			"profit_target_pct": 3.0, "stop_loss_pct": 2.0, "min_history": 1,
		},
		build: newNewsAI,
	},
}

// Kinds lists the registered kinds sorted by name.
func Kinds() []Kind {
	out := make([]Kind, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func ParseKind(raw string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := factories[k]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, raw)
	}
	return k, nil
}

func RegimeOf(kind Kind) (Regime, error) {
	f, ok := factories[kind]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return f.regime, nil
}

// DefaultParams returns a copy of the built-in defaults of kind.
func DefaultParams(kind Kind) (Params, error) {
	f, ok := factories[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return f.defaults.Clone(), nil
}

// Resolve merges defaults with the given layers (preset file, caller
// overrides) and validates the result.
func Resolve(kind Kind, layers ...map[string]any) (Params, error) {
	defaults, err := DefaultParams(kind)
	if err != nil {
		return nil, err
	}
	all := append([]map[string]any{defaults}, layers...)
	merged := MergeParams(all...)
	if _, err := New(kind, merged, Deps{}); err != nil {
		return nil, err
	}
	return merged, nil
}

// New builds a strategy from already-effective params.
func New(kind Kind, params Params, deps Deps) (Strategy, error) {
	f, ok := factories[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if params == nil {
		params = f.defaults.Clone()
	}
	return f.build(params.Clone(), deps.withDefaults())
}

// base carries the parts every kind reports the same way.
type base struct {
	kind       Kind
	regime     Regime
	minHistory int
	params     Params
}

func newBase(kind Kind, regime Regime, params Params, minHistory int) base {
	return base{kind: kind, regime: regime, minHistory: minHistory, params: params}
}

func (b *base) Kind() Kind { return b.kind }

func (b *base) Regime() Regime { return b.regime }

func (b *base) MinHistory() int { return b.minHistory }

func (b *base) Params() Params { return b.params.Clone() }

func (b *base) enoughHistory(in Input) bool {
	return len(in.Prices) >= b.minHistory
}
