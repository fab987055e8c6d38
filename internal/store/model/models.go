package model

import (
	"gorm.io/datatypes"
)

type ExperimentModel struct {
	ID            string         `gorm:"column:id;primaryKey"`
	OwnerID       string         `gorm:"column:owner_id;index"`
	WatchlistJSON datatypes.JSON `gorm:"column:watchlist_json;type:TEXT"`
	BotCount      int            `gorm:"column:bot_count"`
	Status        string         `gorm:"column:status"`
	Capital       float64        `gorm:"column:capital"`
	DurationMs    int64          `gorm:"column:duration_ms"`
	CreatedAtUnix int64          `gorm:"column:created_at"`
	StartedAtUnix *int64         `gorm:"column:started_at"`
	EndedAtUnix   *int64         `gorm:"column:ended_at"`
}

func (ExperimentModel) TableName() string { return "experiments" }

type BotModel struct {
	ID            string         `gorm:"column:id;primaryKey"`
	ExperimentID  string         `gorm:"column:experiment_id;index"`
	Index         int            `gorm:"column:bot_index"`
	Kind          string         `gorm:"column:kind"`
	ParamsJSON    datatypes.JSON `gorm:"column:params_json;type:TEXT"`
	WatchlistJSON datatypes.JSON `gorm:"column:watchlist_json;type:TEXT"`
	Status        string         `gorm:"column:status"`
	StartedAtUnix *int64         `gorm:"column:started_at"`
	StoppedAtUnix *int64         `gorm:"column:stopped_at"`
	StopReason    string         `gorm:"column:stop_reason"`
}

func (BotModel) TableName() string { return "bots" }

type TradeModel struct {
	Seq            int64   `gorm:"column:seq;primaryKey;autoIncrement"`
	ID             string  `gorm:"column:id;uniqueIndex"`
	BotID          string  `gorm:"column:bot_id;index:idx_trades_bot,priority:1"`
	ExperimentID   string  `gorm:"column:experiment_id;index"`
	Symbol         string  `gorm:"column:symbol"`
	Action         string  `gorm:"column:action"`
	Side           string  `gorm:"column:side"`
	Qty            float64 `gorm:"column:qty"`
	Price          float64 `gorm:"column:price"`
	OrderID        string  `gorm:"column:order_id"`
	RealizedPnL    float64 `gorm:"column:realized_pnl"`
	Opening        bool    `gorm:"column:opening"`
	Reason         string  `gorm:"column:reason"`
	ExecutedAtUnix int64   `gorm:"column:executed_at;index:idx_trades_bot,priority:2"`
}

func (TradeModel) TableName() string { return "trades" }
