package ai

import (
	"fmt"
	"strings"

	"botarena/internal/pkg/jsonutil"
	"botarena/internal/strategy"

	"github.com/tidwall/gjson"
)

// NormalizeAction maps evaluator vocabularies onto engine actions; wait is hold.
func NormalizeAction(a string) strategy.Action {
	switch strings.ToLower(strings.TrimSpace(a)) {
	case "buy", "open_long", "long":
		return strategy.ActionBuy
	case "sell", "close_long":
		return strategy.ActionSell
	case "sell_short", "open_short", "short":
		return strategy.ActionSellShort
	case "buy_to_cover", "close_short", "cover":
		return strategy.ActionBuyToCover
	case "hold", "wait", "":
		return strategy.ActionHold
	default:
		return ""
	}
}

// ParseDecision extracts the first JSON object from raw model output and reads
// it with gjson. A hold verdict parses to nil.
func ParseDecision(raw string) (*Decision, error) {
	obj, ok := jsonutil.ExtractObject(raw)
	if !ok {
		return nil, fmt.Errorf("no json object in evaluator output")
	}
	if !gjson.Valid(obj) {
		return nil, fmt.Errorf("evaluator output is not valid json")
	}
	parsed := gjson.Parse(obj)
	if d := parsed.Get("decision"); d.IsObject() {
		parsed = d
	}
	rawAction := parsed.Get("action").String()
	action := NormalizeAction(rawAction)
	if action == "" {
		return nil, fmt.Errorf("unknown action %q", rawAction)
	}
	if action == strategy.ActionHold {
		return nil, nil
	}
	d := &Decision{
		Symbol:     strings.ToUpper(strings.TrimSpace(parsed.Get("symbol").String())),
		Action:     action,
		Confidence: parsed.Get("confidence").Float(),
		Qty:        parsed.Get("qty").Float(),
		Reasoning:  strings.TrimSpace(firstString(parsed, "reasoning", "reason")),
		Targets: strategy.Targets{
			ProfitTarget: firstFloat(parsed, "targets.profit_target", "take_profit", "profit_target"),
			StopLoss:     firstFloat(parsed, "targets.stop_loss", "stop_loss"),
		},
	}
	if err := Validate(d, 0); err != nil {
		return nil, err
	}
	return d, nil
}

// Validate checks ranges and, when price > 0, that targets bracket the price.
func Validate(d *Decision, price float64) error {
	if d == nil {
		return nil
	}
	if d.Confidence < 0 || d.Confidence > 100 {
		return fmt.Errorf("confidence must be in [0,100], got %v", d.Confidence)
	}
	if d.Qty < 0 {
		return fmt.Errorf("qty must be >= 0")
	}
	if _, opens := d.Action.Opens(); price <= 0 || !opens {
		return nil
	}
	tp, sl := d.Targets.ProfitTarget, d.Targets.StopLoss
	switch d.Action {
	case strategy.ActionBuy:
		if (sl > 0 && sl >= price) || (tp > 0 && tp <= price) {
			return fmt.Errorf("long requires stop < price < target")
		}
	case strategy.ActionSellShort:
		if (tp > 0 && tp >= price) || (sl > 0 && sl <= price) {
			return fmt.Errorf("short requires target < price < stop")
		}
	}
	return nil
}

func firstString(r gjson.Result, paths ...string) string {
	for _, p := range paths {
		if v := r.Get(p); v.Exists() {
			return v.String()
		}
	}
	return ""
}

func firstFloat(r gjson.Result, paths ...string) float64 {
	for _, p := range paths {
		if v := r.Get(p); v.Exists() {
			return v.Float()
		}
	}
	return 0
}
