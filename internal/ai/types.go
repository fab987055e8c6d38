// Package ai turns news events into trade decisions for reactive bots.
package ai

import (
	"context"
	"strings"

	"botarena/internal/events"
	"botarena/internal/strategy"
)

// Decision is a single evaluator verdict. Zero targets mean the bot applies
// its configured fallback percentages.
type Decision struct {
	Symbol     string           `json:"symbol"`
	Action     strategy.Action  `json:"action"`
	Confidence float64          `json:"confidence"`
	Qty        float64          `json:"qty,omitempty"`
	Targets    strategy.Targets `json:"targets"`
	Reasoning  string           `json:"reasoning,omitempty"`
}

// Holding summarizes an open position for the evaluator.
type Holding struct {
	Symbol     string        `json:"symbol"`
	Side       strategy.Side `json:"side"`
	Qty        float64       `json:"qty"`
	EntryPrice float64       `json:"entry_price"`
}

type BotContext struct {
	BotID     string             `json:"bot_id"`
	Watchlist []string           `json:"watchlist"`
	Cash      float64            `json:"cash"`
	Positions []Holding          `json:"positions"`
	Prices    map[string]float64 `json:"prices,omitempty"`
}

func (b BotContext) Holding(symbol string) (Holding, bool) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	for _, h := range b.Positions {
		if strings.ToUpper(h.Symbol) == symbol {
			return h, true
		}
	}
	return Holding{}, false
}

// Evaluator returns nil when the event warrants no action.
type Evaluator interface {
	Evaluate(ctx context.Context, ev events.NewsEvent, bc BotContext) (*Decision, error)
}
