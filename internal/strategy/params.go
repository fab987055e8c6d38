package strategy

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"
)

var (
	ErrUnknownKind   = errors.New("unknown strategy kind")
	ErrInvalidParams = errors.New("invalid strategy params")
)

// Params is the effective, flat parameter map of one bot's strategy.
type Params map[string]any

func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Keys returns the parameter names sorted.
func (p Params) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MergeParams overlays layers left to right; later layers win. Keys are
// normalized to lower case and nil values are ignored.
func MergeParams(layers ...map[string]any) Params {
	out := make(Params)
	for _, layer := range layers {
		for k, v := range layer {
			key := strings.ToLower(strings.TrimSpace(k))
			if key == "" || v == nil {
				continue
			}
			out[key] = v
		}
	}
	return out
}

func decodeParams(raw Params, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(map[string]any(raw)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidParams, fmt.Sprintf(format, args...))
}

// exitParams are shared by every polling kind.
type exitParams struct {
	ProfitTargetPct float64 `mapstructure:"profit_target_pct"`
	StopLossPct     float64 `mapstructure:"stop_loss_pct"`
	MinHistory      int     `mapstructure:"min_history"`
}

func (e exitParams) validate() error {
	if e.ProfitTargetPct < 0 || e.ProfitTargetPct > 100 {
		return invalid("profit_target_pct must be in [0,100]")
	}
	if e.StopLossPct < 0 || e.StopLossPct > 100 {
		return invalid("stop_loss_pct must be in [0,100]")
	}
	if e.MinHistory <= 0 {
		return invalid("min_history must be > 0")
	}
	return nil
}

// targets derives percent-based profit and stop levels around entry.
func (e exitParams) targets(side Side, entry float64) Targets {
	t := Targets{Entry: entry}
	if entry <= 0 {
		return t
	}
	switch side {
	case SideShort:
		if e.ProfitTargetPct > 0 {
			t.ProfitTarget = entry * (1 - e.ProfitTargetPct/100)
		}
		if e.StopLossPct > 0 {
			t.StopLoss = entry * (1 + e.StopLossPct/100)
		}
	default:
		if e.ProfitTargetPct > 0 {
			t.ProfitTarget = entry * (1 + e.ProfitTargetPct/100)
		}
		if e.StopLossPct > 0 {
			t.StopLoss = entry * (1 - e.StopLossPct/100)
		}
	}
	return t
}

// exitOnTargets checks the position's stored targets, falling back to the
// percent targets when the position carries none.
func (e exitParams) exitOnTargets(pos Position, price float64) (ExitSignal, bool) {
	t := pos.Targets
	if t.ProfitTarget == 0 && t.StopLoss == 0 {
		t = e.targets(pos.Side, pos.EntryPrice)
	}
	return TargetExit(pos.Side, t, price)
}
