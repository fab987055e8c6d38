package strategy

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// StopLossHit reports whether price breached stop for side.
func StopLossHit(side Side, price, stop float64) bool {
	if stop <= 0 || price <= 0 {
		return false
	}
	p, s := decimal.NewFromFloat(price), decimal.NewFromFloat(stop)
	switch side {
	case SideLong:
		return p.LessThanOrEqual(s)
	case SideShort:
		return p.GreaterThanOrEqual(s)
	default:
		return false
	}
}

// ProfitTargetHit reports whether price reached target for side.
func ProfitTargetHit(side Side, price, target float64) bool {
	if target <= 0 || price <= 0 {
		return false
	}
	p, t := decimal.NewFromFloat(price), decimal.NewFromFloat(target)
	switch side {
	case SideLong:
		return p.GreaterThanOrEqual(t)
	case SideShort:
		return p.LessThanOrEqual(t)
	default:
		return false
	}
}

// TargetExit turns a target hit into an exit signal. The stop is checked first.
func TargetExit(side Side, t Targets, price float64) (ExitSignal, bool) {
	if StopLossHit(side, price, t.StopLoss) {
		return ExitSignal{
			ShouldExit: true,
			Reason:     fmt.Sprintf("stop loss hit at %.4f (stop %.4f)", price, t.StopLoss),
			Confidence: 90,
		}, true
	}
	if ProfitTargetHit(side, price, t.ProfitTarget) {
		return ExitSignal{
			ShouldExit: true,
			Reason:     fmt.Sprintf("profit target hit at %.4f (target %.4f)", price, t.ProfitTarget),
			Confidence: 90,
		}, true
	}
	return ExitSignal{}, false
}
