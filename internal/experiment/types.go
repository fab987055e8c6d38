package experiment

import (
	"errors"
	"time"

	"botarena/internal/bot"
	"botarena/internal/strategy"
)

type Status string

const (
	StatusCreated Status = "created"
	StatusRunning Status = "running"
	StatusStopped Status = "stopped"
)

var (
	ErrNotFound       = errors.New("experiment not found")
	ErrAlreadyStarted = errors.New("experiment already started")
	ErrNotRunning     = errors.New("experiment is not running")
	ErrInvalidSpec    = errors.New("invalid experiment spec")
)

// StrategySpec selects the kind of one bot. Watchlist, when set, replaces
// the experiment watchlist for that bot.
type StrategySpec struct {
	Kind      string         `json:"kind"`
	Overrides map[string]any `json:"overrides,omitempty"`
	Watchlist []string       `json:"watchlist,omitempty"`
}

// Spec describes an experiment to create. BotCount may be left zero to
// mean one bot per strategy entry. Capital is the experiment budget split
// evenly between bots; zero means the configured per-bot default.
type Spec struct {
	BotCount   int            `json:"bot_count"`
	Strategies []StrategySpec `json:"strategies"`
	Watchlist  []string       `json:"watchlist"`
	Duration   time.Duration  `json:"duration"`
	Capital    float64        `json:"capital"`
}

type Info struct {
	ID        string        `json:"id"`
	OwnerID   string        `json:"owner_id"`
	Status    Status        `json:"status"`
	Watchlist []string      `json:"watchlist"`
	BotCount  int           `json:"bot_count"`
	Capital   float64       `json:"capital"`
	Duration  time.Duration `json:"duration"`
	CreatedAt time.Time     `json:"created_at"`
	StartedAt *time.Time    `json:"started_at,omitempty"`
	EndedAt   *time.Time    `json:"ended_at,omitempty"`
	Bots      []bot.Info    `json:"bots"`
}

// Result is one line of the ranking: realized profit descending, creation
// index ascending on ties.
type Result struct {
	Rank     int           `json:"rank"`
	BotID    string        `json:"bot_id"`
	BotIndex int           `json:"bot_index"`
	Kind     strategy.Kind `json:"kind"`
	Status   bot.Status    `json:"status"`

	bot.Metrics
}
