// Package memstore is an in-memory store.Store for tests and ephemeral runs.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"botarena/internal/store"
)

type Store struct {
	mu          sync.RWMutex
	experiments map[string]store.ExperimentRecord
	bots        map[string]store.BotRecord
	trades      map[string][]store.TradeRecord
	results     map[string][]store.ResultRecord
}

var (
	_ store.Store         = (*Store)(nil)
	_ store.ResultArchive = (*Store)(nil)
)

func New() *Store {
	return &Store{
		experiments: make(map[string]store.ExperimentRecord),
		bots:        make(map[string]store.BotRecord),
		trades:      make(map[string][]store.TradeRecord),
		results:     make(map[string][]store.ResultRecord),
	}
}

func (s *Store) Close() error { return nil }

func (s *Store) SaveExperiment(_ context.Context, rec store.ExperimentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.Watchlist = append([]string(nil), rec.Watchlist...)
	s.experiments[rec.ID] = rec
	return nil
}

func (s *Store) GetExperiment(_ context.Context, id string) (store.ExperimentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.experiments[id]
	if !ok {
		return store.ExperimentRecord{}, fmt.Errorf("experiment %s: %w", id, store.ErrNotFound)
	}
	return rec, nil
}

func (s *Store) DeleteExperiment(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for botID, b := range s.bots {
		if b.ExperimentID == id {
			delete(s.bots, botID)
			delete(s.trades, botID)
		}
	}
	delete(s.experiments, id)
	return nil
}

func (s *Store) SaveBot(_ context.Context, rec store.BotRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bots[rec.ID] = rec
	return nil
}

func (s *Store) ListBots(_ context.Context, experimentID string) ([]store.BotRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []store.BotRecord
	for _, b := range s.bots {
		if b.ExperimentID == experimentID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

func (s *Store) AppendTrade(_ context.Context, rec store.TradeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades[rec.BotID] = append(s.trades[rec.BotID], rec)
	return nil
}

func (s *Store) Trades(_ context.Context, botID string) ([]store.TradeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.trades[botID]
	out := make([]store.TradeRecord, len(rows))
	copy(out, rows)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ExecutedAt.Before(out[j].ExecutedAt) })
	return out, nil
}

func (s *Store) Archive(_ context.Context, rows []store.ResultRecord) error {
	if len(rows) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]store.ResultRecord, len(rows))
	copy(cp, rows)
	s.results[rows[0].ExperimentID] = cp
	return nil
}

func (s *Store) Results(_ context.Context, experimentID string) ([]store.ResultRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.results[experimentID]
	out := make([]store.ResultRecord, len(rows))
	copy(out, rows)
	return out, nil
}
