package ai

import (
	"context"
	"fmt"
	"strings"

	"botarena/internal/events"
	"botarena/internal/strategy"
)

var (
	defaultBullish = []string{"beats", "surge", "record", "upgrade", "approval", "raises guidance", "partnership", "buyback"}
	defaultBearish = []string{"misses", "plunge", "downgrade", "lawsuit", "recall", "cuts guidance", "investigation", "bankruptcy"}
)

// KeywordEvaluator scores headlines by counting bullish and bearish phrases.
// It needs no network and gives deterministic verdicts.
type KeywordEvaluator struct {
	Bullish []string
	Bearish []string
}

var _ Evaluator = (*KeywordEvaluator)(nil)

func NewKeywordEvaluator() *KeywordEvaluator {
	return &KeywordEvaluator{Bullish: defaultBullish, Bearish: defaultBearish}
}

func (k *KeywordEvaluator) Evaluate(_ context.Context, ev events.NewsEvent, bc BotContext) (*Decision, error) {
	text := strings.ToLower(ev.Headline + " " + ev.Summary)
	bull := countHits(text, k.Bullish)
	bear := countHits(text, k.Bearish)
	if bull == bear {
		return nil, nil
	}
	symbol := ""
	for _, s := range ev.Symbols {
		for _, w := range bc.Watchlist {
			if strings.EqualFold(strings.TrimSpace(s), w) {
				symbol = strings.ToUpper(w)
				break
			}
		}
		if symbol != "" {
			break
		}
	}
	if symbol == "" {
		return nil, nil
	}
	net := bull - bear
	if net < 0 {
		net = -net
	}
	confidence := 50 + 15*float64(net)
	if confidence > 95 {
		confidence = 95
	}

	held, holding := bc.Holding(symbol)
	var action strategy.Action
	switch {
	case bull > bear && holding && held.Side == strategy.SideShort:
		action = strategy.ActionBuyToCover
	case bull > bear && !holding:
		action = strategy.ActionBuy
	case bear > bull && holding && held.Side == strategy.SideLong:
		action = strategy.ActionSell
	case bear > bull && !holding:
		action = strategy.ActionSellShort
	default:
		return nil, nil
	}
	return &Decision{
		Symbol:     symbol,
		Action:     action,
		Confidence: confidence,
		Reasoning:  fmt.Sprintf("keywords bullish=%d bearish=%d", bull, bear),
	}, nil
}

func countHits(text string, words []string) int {
	n := 0
	for _, w := range words {
		if w != "" && strings.Contains(text, w) {
			n++
		}
	}
	return n
}
