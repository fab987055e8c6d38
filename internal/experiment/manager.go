// Package experiment owns groups of bots that share a watchlist, a capital
// budget and a lifecycle, and ranks them when the run ends.
package experiment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"botarena/internal/bot"
	"botarena/internal/ledger"
	"botarena/internal/logger"
	"botarena/internal/market"
	"botarena/internal/store"
	"botarena/internal/strategy"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ParamResolver layers preset and caller overrides over the kind defaults.
type ParamResolver interface {
	Resolve(kind strategy.Kind, overrides map[string]any) (strategy.Params, error)
}

type Deps struct {
	Params  ParamResolver
	Store   store.Store
	Results store.ResultArchive
	Funder  ledger.Funder
	Tracker *market.Tracker
	// Bot is the template every bot is built with; Series and Scheduler are shared.
	Bot bot.Deps

	CapitalPerBot   float64
	DefaultDuration time.Duration
	NowFn           func() time.Time
}

type Manager struct {
	deps Deps
	log  *logger.Scoped

	mu          sync.RWMutex
	experiments map[string]*experiment
	bots        map[string]*bot.Bot
}

type experiment struct {
	id        string
	ownerID   string
	watchlist []string
	capital   float64
	duration  time.Duration
	createdAt time.Time
	bots      []*bot.Bot

	// lifecycle serializes Start, Stop and Delete of one experiment.
	lifecycle sync.Mutex
	mu        sync.Mutex
	status    Status
	startedAt time.Time
	endedAt   time.Time
	timer     *time.Timer
	results   []Result
}

func (e *experiment) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

func NewManager(deps Deps) (*Manager, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("experiment manager: store is required")
	}
	if deps.Params == nil {
		return nil, fmt.Errorf("experiment manager: param resolver is required")
	}
	if deps.Tracker == nil {
		deps.Tracker = market.NewTracker()
	}
	if deps.Bot.Series == nil {
		deps.Bot.Series = market.NewSeriesStore(market.DefaultSeriesCapacity)
	}
	if deps.CapitalPerBot <= 0 {
		deps.CapitalPerBot = bot.DefaultCapital
	}
	if deps.NowFn == nil {
		deps.NowFn = time.Now
	}
	if deps.Bot.NowFn == nil {
		deps.Bot.NowFn = deps.NowFn
	}
	return &Manager{
		deps:        deps,
		log:         logger.With("component", "experiment"),
		experiments: make(map[string]*experiment),
		bots:        make(map[string]*bot.Bot),
	}, nil
}

func (m *Manager) Tracker() *market.Tracker { return m.deps.Tracker }

// Create validates the spec and builds idle bots. Nothing is persisted when
// validation fails.
func (m *Manager) Create(ctx context.Context, ownerID string, spec Spec) (Info, error) {
	specs, err := m.expand(spec)
	if err != nil {
		return Info{}, err
	}
	perBot := m.deps.CapitalPerBot
	if spec.Capital > 0 {
		perBot = spec.Capital / float64(len(specs))
	}
	total := perBot * float64(len(specs))
	duration := spec.Duration
	if duration <= 0 {
		duration = m.deps.DefaultDuration
	}

	e := &experiment{
		id:        uuid.NewString(),
		ownerID:   strings.TrimSpace(ownerID),
		capital:   total,
		duration:  duration,
		createdAt: m.deps.NowFn(),
		status:    StatusCreated,
	}
	lists := make([][]string, 0, len(specs))
	for i, s := range specs {
		b, err := bot.New(bot.Config{
			ID:           uuid.NewString(),
			ExperimentID: e.id,
			Index:        i,
			Strategy:     s.strat,
			Watchlist:    s.watchlist,
			Capital:      perBot,
		}, m.deps.Bot)
		if err != nil {
			return Info{}, fmt.Errorf("%w: bot %d: %v", ErrInvalidSpec, i, err)
		}
		e.bots = append(e.bots, b)
		lists = append(lists, b.Watchlist())
	}
	e.watchlist = market.Union(lists...)

	if err := m.persist(ctx, e); err != nil {
		return Info{}, fmt.Errorf("create experiment: %w", err)
	}
	m.mu.Lock()
	m.experiments[e.id] = e
	for _, b := range e.bots {
		m.bots[b.ID()] = b
	}
	m.mu.Unlock()
	m.log.Infof("Experiment[%s]: created owner=%s bots=%d watchlist=%v", e.id, e.ownerID, len(e.bots), e.watchlist)
	return m.info(ctx, e), nil
}

type botSpec struct {
	strat     strategy.Strategy
	watchlist []string
}

func (m *Manager) expand(spec Spec) ([]botSpec, error) {
	if len(spec.Strategies) == 0 {
		return nil, fmt.Errorf("%w: no strategies", ErrInvalidSpec)
	}
	count := spec.BotCount
	if count == 0 {
		count = len(spec.Strategies)
	}
	if count != len(spec.Strategies) {
		return nil, fmt.Errorf("%w: bot_count %d does not match %d strategies", ErrInvalidSpec, count, len(spec.Strategies))
	}
	if spec.Capital < 0 || math.IsNaN(spec.Capital) || math.IsInf(spec.Capital, 0) {
		return nil, fmt.Errorf("%w: capital must be >= 0", ErrInvalidSpec)
	}
	if spec.Duration < 0 {
		return nil, fmt.Errorf("%w: duration must be >= 0", ErrInvalidSpec)
	}
	shared := market.NormalizeSymbols(spec.Watchlist)
	out := make([]botSpec, 0, count)
	for i, s := range spec.Strategies {
		kind, err := strategy.ParseKind(s.Kind)
		if err != nil {
			return nil, fmt.Errorf("%w: strategy %d: %v", ErrInvalidSpec, i, err)
		}
		params, err := m.deps.Params.Resolve(kind, s.Overrides)
		if err != nil {
			return nil, fmt.Errorf("%w: strategy %d: %v", ErrInvalidSpec, i, err)
		}
		strat, err := strategy.New(kind, params, strategy.Deps{Clock: m.deps.Bot.Clock})
		if err != nil {
			return nil, fmt.Errorf("%w: strategy %d: %v", ErrInvalidSpec, i, err)
		}
		watch := shared
		if len(s.Watchlist) > 0 {
			watch = market.NormalizeSymbols(s.Watchlist)
		}
		if len(watch) == 0 {
			return nil, fmt.Errorf("%w: strategy %d has an empty watchlist", ErrInvalidSpec, i)
		}
		out = append(out, botSpec{strat: strat, watchlist: watch})
	}
	return out, nil
}

// Start funds every bot, tracks the union watchlist and starts the bots
// concurrently. A bot that cannot start is stopped; its siblings keep running.
func (m *Manager) Start(ctx context.Context, id string) (Info, error) {
	e, err := m.lookup(id)
	if err != nil {
		return Info{}, err
	}
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()
	if e.Status() != StatusCreated {
		return Info{}, fmt.Errorf("start %s: %w", id, ErrAlreadyStarted)
	}

	m.deps.Tracker.Track(e.watchlist...)
	var g errgroup.Group
	for _, b := range e.bots {
		g.Go(func() error {
			if m.deps.Funder != nil {
				if err := m.deps.Funder.Fund(ctx, b.ID(), b.Capital()); err != nil {
					m.log.Warnf("Experiment[%s]: fund bot %s failed: %v", id, b.ID(), err)
					_ = b.Stop(ctx, "funding failed: "+err.Error())
					return nil
				}
			}
			if err := b.Start(context.WithoutCancel(ctx)); err != nil {
				m.log.Warnf("Experiment[%s]: bot %s failed to start: %v", id, b.ID(), err)
			}
			return nil
		})
	}
	_ = g.Wait()

	e.mu.Lock()
	e.status = StatusRunning
	e.startedAt = m.deps.NowFn()
	if e.duration > 0 {
		e.timer = time.AfterFunc(e.duration, func() { m.expire(id) })
	}
	e.mu.Unlock()

	if err := m.persist(ctx, e); err != nil {
		m.log.Warnf("Experiment[%s]: persist after start: %v", id, err)
	}
	m.log.Infof("Experiment[%s]: started, tracking %v", id, e.watchlist)
	return m.info(ctx, e), nil
}

func (m *Manager) expire(id string) {
	ctx := context.Background()
	if _, err := m.stop(ctx, id, "duration elapsed"); err != nil && !errors.Is(err, ErrNotRunning) && !errors.Is(err, ErrNotFound) {
		m.log.Warnf("Experiment[%s]: auto stop: %v", id, err)
	}
}

// Stop stops every bot concurrently, which liquidates their positions, and
// returns the ranked results. The ranking is archived when an archive is set.
func (m *Manager) Stop(ctx context.Context, id string) ([]Result, error) {
	return m.stop(ctx, id, "experiment stopped")
}

func (m *Manager) stop(ctx context.Context, id, reason string) ([]Result, error) {
	e, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()
	if e.Status() != StatusRunning {
		return nil, fmt.Errorf("stop %s: %w", id, ErrNotRunning)
	}
	e.mu.Lock()
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.mu.Unlock()

	stopCtx := context.WithoutCancel(ctx)
	var g errgroup.Group
	for _, b := range e.bots {
		g.Go(func() error {
			if err := b.Stop(stopCtx, reason); err != nil {
				m.log.Warnf("Experiment[%s]: stop bot %s: %v", id, b.ID(), err)
			}
			return nil
		})
	}
	_ = g.Wait()
	m.untrack(e)

	results := m.rank(ctx, e.bots)
	now := m.deps.NowFn()
	e.mu.Lock()
	e.status = StatusStopped
	e.endedAt = now
	e.results = results
	e.mu.Unlock()

	if err := m.persist(ctx, e); err != nil {
		m.log.Warnf("Experiment[%s]: persist after stop: %v", id, err)
	}
	if m.deps.Results != nil {
		if err := m.deps.Results.Archive(ctx, toResultRecords(id, results, now)); err != nil {
			m.log.Warnf("Experiment[%s]: archive results: %v", id, err)
		}
	}
	m.log.Infof("Experiment[%s]: stopped (%s), %d bots ranked", id, reason, len(results))
	return results, nil
}

// untrack releases symbols no other running experiment still watches.
func (m *Manager) untrack(done *experiment) {
	m.mu.RLock()
	var others [][]string
	for _, e := range m.experiments {
		if e != done && e.Status() == StatusRunning {
			others = append(others, e.watchlist)
		}
	}
	m.mu.RUnlock()
	keep := make(map[string]bool)
	for _, sym := range market.Union(others...) {
		keep[sym] = true
	}
	var release []string
	for _, sym := range done.watchlist {
		if !keep[sym] {
			release = append(release, sym)
		}
	}
	m.deps.Tracker.Untrack(release...)
}

// Delete stops a running experiment, then purges its bots, trade history,
// ledger accounts and series.
func (m *Manager) Delete(ctx context.Context, id string) error {
	e, err := m.lookup(id)
	if err != nil {
		return err
	}
	if e.Status() == StatusRunning {
		if _, err := m.Stop(ctx, id); err != nil && !errors.Is(err, ErrNotRunning) {
			return err
		}
	}
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()
	for _, b := range e.bots {
		// idle bots are marked stopped so nothing can start them later
		_ = b.Stop(ctx, "experiment deleted")
	}
	if err := m.deps.Store.DeleteExperiment(ctx, id); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("delete experiment %s: %w", id, err)
	}
	for _, b := range e.bots {
		if m.deps.Funder != nil {
			if err := m.deps.Funder.Close(ctx, b.ID()); err != nil {
				m.log.Debugf("Experiment[%s]: close account %s: %v", id, b.ID(), err)
			}
		}
		m.deps.Bot.Series.Drop(b.ID())
	}
	m.mu.Lock()
	delete(m.experiments, id)
	for _, b := range e.bots {
		delete(m.bots, b.ID())
	}
	m.mu.Unlock()
	m.log.Infof("Experiment[%s]: deleted", id)
	return nil
}

func (m *Manager) Get(ctx context.Context, id string) (Info, error) {
	e, err := m.lookup(id)
	if err != nil {
		return Info{}, err
	}
	return m.info(ctx, e), nil
}

func (m *Manager) GetBot(ctx context.Context, botID string) (bot.Info, error) {
	m.mu.RLock()
	b, ok := m.bots[botID]
	m.mu.RUnlock()
	if !ok {
		return bot.Info{}, fmt.Errorf("bot %s: %w", botID, ErrNotFound)
	}
	return b.Info(ctx), nil
}

// Results returns the final ranking of a stopped experiment, a live ranking
// of a running one, or the archived ranking of an experiment this process
// no longer holds.
func (m *Manager) Results(ctx context.Context, id string) ([]Result, error) {
	e, err := m.lookup(id)
	if err != nil {
		if !errors.Is(err, ErrNotFound) || m.deps.Results == nil {
			return nil, err
		}
		rows, aerr := m.deps.Results.Results(ctx, id)
		if aerr != nil || len(rows) == 0 {
			return nil, err
		}
		return fromResultRecords(rows), nil
	}
	e.mu.Lock()
	final := e.results
	e.mu.Unlock()
	if final != nil {
		return append([]Result(nil), final...), nil
	}
	return m.rank(ctx, e.bots), nil
}

// Shutdown stops every running experiment. Used when the process exits.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.RLock()
	var running []string
	for id, e := range m.experiments {
		if e.Status() == StatusRunning {
			running = append(running, id)
		}
	}
	m.mu.RUnlock()
	for _, id := range running {
		if _, err := m.stop(ctx, id, "shutdown"); err != nil && !errors.Is(err, ErrNotRunning) {
			m.log.Warnf("Experiment[%s]: shutdown: %v", id, err)
		}
	}
}

func (m *Manager) lookup(id string) (*experiment, error) {
	m.mu.RLock()
	e, ok := m.experiments[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("experiment %s: %w", id, ErrNotFound)
	}
	return e, nil
}

func (m *Manager) info(ctx context.Context, e *experiment) Info {
	bots := make([]bot.Info, 0, len(e.bots))
	for _, b := range e.bots {
		bots = append(bots, b.Info(ctx))
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	info := Info{
		ID:        e.id,
		OwnerID:   e.ownerID,
		Status:    e.status,
		Watchlist: append([]string(nil), e.watchlist...),
		BotCount:  len(e.bots),
		Capital:   e.capital,
		Duration:  e.duration,
		CreatedAt: e.createdAt,
		Bots:      bots,
	}
	if !e.startedAt.IsZero() {
		t := e.startedAt
		info.StartedAt = &t
	}
	if !e.endedAt.IsZero() {
		t := e.endedAt
		info.EndedAt = &t
	}
	return info
}

// persist writes the experiment row and one row per bot.
func (m *Manager) persist(ctx context.Context, e *experiment) error {
	info := m.info(ctx, e)
	rec := store.ExperimentRecord{
		ID:        info.ID,
		OwnerID:   info.OwnerID,
		Watchlist: info.Watchlist,
		BotCount:  info.BotCount,
		Status:    string(info.Status),
		Capital:   info.Capital,
		Duration:  info.Duration,
		CreatedAt: info.CreatedAt,
		StartedAt: info.StartedAt,
		EndedAt:   info.EndedAt,
	}
	if err := m.deps.Store.SaveExperiment(ctx, rec); err != nil {
		return err
	}
	for _, b := range info.Bots {
		if err := m.deps.Store.SaveBot(ctx, store.BotRecord{
			ID:           b.ID,
			ExperimentID: b.ExperimentID,
			Index:        b.Index,
			Kind:         string(b.Kind),
			Params:       b.Params,
			Watchlist:    b.Watchlist,
			Status:       string(b.Status),
			StartedAt:    b.StartedAt,
			StoppedAt:    b.StoppedAt,
			StopReason:   b.StopReason,
		}); err != nil {
			return err
		}
	}
	return nil
}
