package experiment

import (
	"context"
	"sort"
	"time"

	"botarena/internal/bot"
	"botarena/internal/store"
	"botarena/internal/strategy"
)

// Rank orders results by total profit, then by bot index, and numbers them from 1.
func Rank(results []Result) []Result {
	out := append([]Result(nil), results...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].TotalProfit != out[j].TotalProfit {
			return out[i].TotalProfit > out[j].TotalProfit
		}
		return out[i].BotIndex < out[j].BotIndex
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

func (m *Manager) rank(ctx context.Context, bots []*bot.Bot) []Result {
	rows := make([]Result, 0, len(bots))
	for _, b := range bots {
		metrics, err := b.Metrics(ctx)
		if err != nil {
			m.log.Warnf("Experiment[%s]: metrics of bot %s: %v", b.ExperimentID(), b.ID(), err)
		}
		rows = append(rows, Result{
			BotID:    b.ID(),
			BotIndex: b.Index(),
			Kind:     b.Kind(),
			Status:   b.Status(),
			Metrics:  metrics,
		})
	}
	return Rank(rows)
}

func toResultRecords(expID string, results []Result, at time.Time) []store.ResultRecord {
	out := make([]store.ResultRecord, 0, len(results))
	for _, r := range results {
		out = append(out, store.ResultRecord{
			ExperimentID:  expID,
			Rank:          r.Rank,
			BotID:         r.BotID,
			BotIndex:      r.BotIndex,
			Kind:          string(r.Kind),
			TotalTrades:   r.TotalTrades,
			Wins:          r.Wins,
			Losses:        r.Losses,
			TotalProfit:   r.TotalProfit,
			CurrentEquity: r.CurrentEquity,
			SkippedTicks:  r.SkippedTicks,
			DroppedEvents: r.DroppedEvents,
			ArchivedAt:    at,
		})
	}
	return out
}

func fromResultRecords(rows []store.ResultRecord) []Result {
	out := make([]Result, 0, len(rows))
	for _, r := range rows {
		out = append(out, Result{
			Rank:     r.Rank,
			BotID:    r.BotID,
			BotIndex: r.BotIndex,
			Kind:     strategy.Kind(r.Kind),
			Status:   bot.StatusStopped,
			Metrics: bot.Metrics{
				TotalTrades:   r.TotalTrades,
				Wins:          r.Wins,
				Losses:        r.Losses,
				TotalProfit:   r.TotalProfit,
				CurrentEquity: r.CurrentEquity,
				SkippedTicks:  r.SkippedTicks,
				DroppedEvents: r.DroppedEvents,
			},
		})
	}
	return out
}
