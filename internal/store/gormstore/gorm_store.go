// Package gormstore persists experiments, bots and trade logs with gorm on SQLite.
package gormstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"botarena/internal/store"
	storemodel "botarena/internal/store/model"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type (
	experimentModel = storemodel.ExperimentModel
	botModel        = storemodel.BotModel
	tradeModel      = storemodel.TradeModel
)

// GormStore implements store.Store using Gorm + SQLite.
type GormStore struct {
	db *gorm.DB
}

var _ store.Store = (*GormStore)(nil)

func NewGormStore(path string) (*GormStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("gorm store: path cannot be empty")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&experimentModel{}, &botModel{}, &tradeModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: a little read parallelism for HTTP handlers while bots append trades.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &GormStore{db: db}, nil
}

func (s *GormStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SQLDB exposes the underlying *sql.DB for shared connections.
func (s *GormStore) SQLDB() (*sql.DB, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store not initialized")
	}
	return s.db.DB()
}

// --------------------- Experiments -------------------------

func (s *GormStore) SaveExperiment(ctx context.Context, rec store.ExperimentRecord) error {
	m := experimentModel{
		ID:            rec.ID,
		OwnerID:       rec.OwnerID,
		WatchlistJSON: toJSON(rec.Watchlist),
		BotCount:      rec.BotCount,
		Status:        rec.Status,
		Capital:       rec.Capital,
		DurationMs:    rec.Duration.Milliseconds(),
		CreatedAtUnix: rec.CreatedAt.UnixMilli(),
		StartedAtUnix: unixPtr(rec.StartedAt),
		EndedAtUnix:   unixPtr(rec.EndedAt),
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(&m).Error
}

func (s *GormStore) GetExperiment(ctx context.Context, id string) (store.ExperimentRecord, error) {
	var m experimentModel
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.ExperimentRecord{}, fmt.Errorf("experiment %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return store.ExperimentRecord{}, err
	}
	rec := store.ExperimentRecord{
		ID:        m.ID,
		OwnerID:   m.OwnerID,
		BotCount:  m.BotCount,
		Status:    m.Status,
		Capital:   m.Capital,
		Duration:  time.Duration(m.DurationMs) * time.Millisecond,
		CreatedAt: time.UnixMilli(m.CreatedAtUnix),
		StartedAt: timePtr(m.StartedAtUnix),
		EndedAt:   timePtr(m.EndedAtUnix),
	}
	_ = json.Unmarshal(m.WatchlistJSON, &rec.Watchlist)
	return rec, nil
}

func (s *GormStore) DeleteExperiment(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("experiment_id = ?", id).Delete(&tradeModel{}).Error; err != nil {
			return err
		}
		if err := tx.Where("experiment_id = ?", id).Delete(&botModel{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&experimentModel{}).Error
	})
}

// --------------------- Bots -------------------------

func (s *GormStore) SaveBot(ctx context.Context, rec store.BotRecord) error {
	m := botModel{
		ID:            rec.ID,
		ExperimentID:  rec.ExperimentID,
		Index:         rec.Index,
		Kind:          rec.Kind,
		ParamsJSON:    toJSON(rec.Params),
		WatchlistJSON: toJSON(rec.Watchlist),
		Status:        rec.Status,
		StartedAtUnix: unixPtr(rec.StartedAt),
		StoppedAtUnix: unixPtr(rec.StoppedAt),
		StopReason:    rec.StopReason,
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(&m).Error
}

func (s *GormStore) ListBots(ctx context.Context, experimentID string) ([]store.BotRecord, error) {
	var rows []botModel
	if err := s.db.WithContext(ctx).
		Where("experiment_id = ?", experimentID).
		Order("bot_index ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]store.BotRecord, 0, len(rows))
	for _, m := range rows {
		rec := store.BotRecord{
			ID:           m.ID,
			ExperimentID: m.ExperimentID,
			Index:        m.Index,
			Kind:         m.Kind,
			Status:       m.Status,
			StartedAt:    timePtr(m.StartedAtUnix),
			StoppedAt:    timePtr(m.StoppedAtUnix),
			StopReason:   m.StopReason,
		}
		_ = json.Unmarshal(m.ParamsJSON, &rec.Params)
		_ = json.Unmarshal(m.WatchlistJSON, &rec.Watchlist)
		out = append(out, rec)
	}
	return out, nil
}

// --------------------- Trade log -------------------------

func (s *GormStore) AppendTrade(ctx context.Context, rec store.TradeRecord) error {
	m := tradeModel{
		ID:             rec.ID,
		BotID:          rec.BotID,
		ExperimentID:   rec.ExperimentID,
		Symbol:         rec.Symbol,
		Action:         rec.Action,
		Side:           rec.Side,
		Qty:            rec.Qty,
		Price:          rec.Price,
		OrderID:        rec.OrderID,
		RealizedPnL:    rec.RealizedPnL,
		Opening:        rec.Opening,
		Reason:         rec.Reason,
		ExecutedAtUnix: rec.ExecutedAt.UnixMilli(),
	}
	return s.db.WithContext(ctx).Create(&m).Error
}

func (s *GormStore) Trades(ctx context.Context, botID string) ([]store.TradeRecord, error) {
	var rows []tradeModel
	if err := s.db.WithContext(ctx).
		Where("bot_id = ?", botID).
		Order("executed_at ASC, seq ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]store.TradeRecord, 0, len(rows))
	for _, m := range rows {
		out = append(out, store.TradeRecord{
			ID:           m.ID,
			BotID:        m.BotID,
			ExperimentID: m.ExperimentID,
			Symbol:       m.Symbol,
			Action:       m.Action,
			Side:         m.Side,
			Qty:          m.Qty,
			Price:        m.Price,
			OrderID:      m.OrderID,
			RealizedPnL:  m.RealizedPnL,
			Opening:      m.Opening,
			Reason:       m.Reason,
			ExecutedAt:   time.UnixMilli(m.ExecutedAtUnix),
		})
	}
	return out, nil
}

func toJSON(v any) datatypes.JSON {
	b, err := json.Marshal(v)
	if err != nil || string(b) == "null" {
		return nil
	}
	return datatypes.JSON(b)
}

func unixPtr(t *time.Time) *int64 {
	if t == nil || t.IsZero() {
		return nil
	}
	v := t.UnixMilli()
	return &v
}

func timePtr(v *int64) *time.Time {
	if v == nil {
		return nil
	}
	t := time.UnixMilli(*v)
	return &t
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
