// Package store holds the persistence contracts for experiments, bots and the trade log.
package store

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("record not found")

type ExperimentRecord struct {
	ID        string
	OwnerID   string
	Watchlist []string
	BotCount  int
	Status    string
	Capital   float64
	Duration  time.Duration
	CreatedAt time.Time
	StartedAt *time.Time
	EndedAt   *time.Time
}

type BotRecord struct {
	ID           string
	ExperimentID string
	Index        int
	Kind         string
	Params       map[string]any
	Watchlist    []string
	Status       string
	StartedAt    *time.Time
	StoppedAt    *time.Time
	StopReason   string
}

// TradeRecord is one row of a bot's trade log; metrics are derived from these rows.
type TradeRecord struct {
	ID           string
	BotID        string
	ExperimentID string
	Symbol       string
	Action       string
	Side         string
	Qty          float64
	Price        float64
	OrderID      string
	RealizedPnL  float64
	Opening      bool
	Reason       string
	ExecutedAt   time.Time
}

// ResultRecord is one ranked line of a finished experiment.
type ResultRecord struct {
	ExperimentID  string
	Rank          int
	BotID         string
	BotIndex      int
	Kind          string
	TotalTrades   int
	Wins          int
	Losses        int
	TotalProfit   float64
	CurrentEquity float64
	SkippedTicks  int64
	DroppedEvents int64
	ArchivedAt    time.Time
}

// ExperimentRepository persists experiment and bot lifecycle state.
type ExperimentRepository interface {
	SaveExperiment(ctx context.Context, rec ExperimentRecord) error
	GetExperiment(ctx context.Context, id string) (ExperimentRecord, error)
	// DeleteExperiment removes the experiment with its bots and their trades.
	DeleteExperiment(ctx context.Context, id string) error
	SaveBot(ctx context.Context, rec BotRecord) error
	ListBots(ctx context.Context, experimentID string) ([]BotRecord, error)
}

// TradeLog is append-only per bot. Trades returns rows in execution order.
type TradeLog interface {
	AppendTrade(ctx context.Context, rec TradeRecord) error
	Trades(ctx context.Context, botID string) ([]TradeRecord, error)
}

// ResultArchive keeps final rankings after bots are gone.
type ResultArchive interface {
	Archive(ctx context.Context, rows []ResultRecord) error
	Results(ctx context.Context, experimentID string) ([]ResultRecord, error)
}

// Store is the entry point the app wires into the experiment manager.
type Store interface {
	ExperimentRepository
	TradeLog
	Close() error
}
