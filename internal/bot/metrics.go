package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"botarena/internal/store"

	"github.com/shopspring/decimal"
)

// Metrics are derived from the trade log. TotalTrades counts closing fills
// (round trips); TotalProfit sums realized P&L net of commissions.
type Metrics struct {
	TotalTrades   int     `json:"total_trades"`
	Wins          int     `json:"wins"`
	Losses        int     `json:"losses"`
	TotalProfit   float64 `json:"total_profit"`
	CurrentEquity float64 `json:"current_equity"`
	SkippedTicks  int64   `json:"skipped_ticks"`
	DroppedEvents int64   `json:"dropped_events"`
}

type metricsCache struct {
	mu    sync.Mutex
	valid bool
	value Metrics
}

var ErrLiquidation = errors.New("liquidation incomplete")

func errLiquidation(botID, msg string) error {
	return fmt.Errorf("bot %s: %w: %s", botID, ErrLiquidation, msg)
}

// ComputeMetrics folds a trade log into metrics starting from capital.
func ComputeMetrics(trades []store.TradeRecord, capital float64) Metrics {
	total := decimal.Zero
	var m Metrics
	for _, t := range trades {
		pnl := decimal.NewFromFloat(t.RealizedPnL)
		total = total.Add(pnl)
		if t.Opening {
			continue
		}
		m.TotalTrades++
		switch {
		case pnl.IsPositive():
			m.Wins++
		case pnl.IsNegative():
			m.Losses++
		}
	}
	m.TotalProfit = total.InexactFloat64()
	m.CurrentEquity = decimal.NewFromFloat(capital).Add(total).InexactFloat64()
	return m
}

func (b *Bot) appendTrade(ctx context.Context, rec store.TradeRecord) {
	if b.deps.Trades != nil {
		if err := b.deps.Trades.AppendTrade(ctx, rec); err != nil {
			b.log.Errorf("Bot[%s]: trade log append failed: %v", b.id, err)
		}
	}
	b.metrics.mu.Lock()
	b.metrics.valid = false
	b.metrics.mu.Unlock()
}

// Metrics recomputes from the full trade log only after a trade was appended.
func (b *Bot) Metrics(ctx context.Context) (Metrics, error) {
	b.metrics.mu.Lock()
	defer b.metrics.mu.Unlock()
	if !b.metrics.valid {
		var trades []store.TradeRecord
		if b.deps.Trades != nil {
			var err error
			trades, err = b.deps.Trades.Trades(ctx, b.id)
			if err != nil {
				return Metrics{CurrentEquity: b.capital}, fmt.Errorf("bot %s trades: %w", b.id, err)
			}
		}
		b.metrics.value = ComputeMetrics(trades, b.capital)
		b.metrics.valid = true
	}
	m := b.metrics.value
	c := b.counters()
	m.SkippedTicks = c.skipped
	m.DroppedEvents = c.dropped
	return m, nil
}
