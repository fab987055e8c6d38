package gormstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"botarena/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *GormStore {
	t.Helper()
	s, err := NewGormStore(filepath.Join(t.TempDir(), "arena.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestExperimentAndBotRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	created := time.Date(2024, 3, 11, 14, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveExperiment(ctx, store.ExperimentRecord{
		ID: "exp-1", OwnerID: "alice", Watchlist: []string{"AAPL", "MSFT"}, BotCount: 2,
		Status: "created", Capital: 200000, Duration: 30 * time.Minute, CreatedAt: created,
	}))
	started := created.Add(time.Minute)
	require.NoError(t, s.SaveExperiment(ctx, store.ExperimentRecord{
		ID: "exp-1", OwnerID: "alice", Watchlist: []string{"AAPL", "MSFT"}, BotCount: 2,
		Status: "running", Capital: 200000, Duration: 30 * time.Minute, CreatedAt: created, StartedAt: &started,
	}))
	got, err := s.GetExperiment(ctx, "exp-1")
	require.NoError(t, err)
	assert.Equal(t, "running", got.Status)
	assert.Equal(t, []string{"AAPL", "MSFT"}, got.Watchlist)
	assert.Equal(t, 30*time.Minute, got.Duration)
	require.NotNil(t, got.StartedAt)
	assert.True(t, got.StartedAt.Equal(started))

	require.NoError(t, s.SaveBot(ctx, store.BotRecord{ID: "b2", ExperimentID: "exp-1", Index: 1, Kind: "gap_fade", Status: "idle"}))
	require.NoError(t, s.SaveBot(ctx, store.BotRecord{ID: "b1", ExperimentID: "exp-1", Index: 0, Kind: "momentum", Status: "idle",
		Params: map[string]any{"fast_period": 5.0}}))
	bots, err := s.ListBots(ctx, "exp-1")
	require.NoError(t, err)
	require.Len(t, bots, 2)
	assert.Equal(t, "b1", bots[0].ID)
	assert.Equal(t, 5.0, bots[0].Params["fast_period"])
}

func TestTradeLogOrderAndCascadeDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 11, 14, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveExperiment(ctx, store.ExperimentRecord{ID: "exp", CreatedAt: base}))
	require.NoError(t, s.SaveBot(ctx, store.BotRecord{ID: "b", ExperimentID: "exp"}))
	require.NoError(t, s.AppendTrade(ctx, store.TradeRecord{ID: "t2", BotID: "b", ExperimentID: "exp", RealizedPnL: 5, ExecutedAt: base.Add(time.Minute)}))
	require.NoError(t, s.AppendTrade(ctx, store.TradeRecord{ID: "t1", BotID: "b", ExperimentID: "exp", Opening: true, ExecutedAt: base}))

	trades, err := s.Trades(ctx, "b")
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, "t1", trades[0].ID)
	assert.True(t, trades[0].Opening)
	assert.Equal(t, 5.0, trades[1].RealizedPnL)

	require.NoError(t, s.DeleteExperiment(ctx, "exp"))
	_, err = s.GetExperiment(ctx, "exp")
	assert.ErrorIs(t, err, store.ErrNotFound)
	trades, err = s.Trades(ctx, "b")
	require.NoError(t, err)
	assert.Empty(t, trades)
	bots, err := s.ListBots(ctx, "exp")
	require.NoError(t, err)
	assert.Empty(t, bots)
}
