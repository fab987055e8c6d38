package scheduler

import (
	"context"
	"fmt"
	"time"

	"botarena/internal/events"
	"botarena/internal/strategy"
)

// Binding describes how one bot wants to be driven. Tick is required for the
// polling regime and OnEvent for the reactive one.
type Binding struct {
	BotID     string
	Regime    strategy.Regime
	Interval  time.Duration
	Watchlist []string
	Tick      Task
	OnEvent   func(ctx context.Context, ev events.NewsEvent)
}

// Handle is returned by Service.Schedule. Stop is synchronous.
type Handle interface {
	Stop()
	Skipped() int64
	Dropped() int64
}

type Service struct {
	hub             *Hub
	defaultInterval time.Duration
}

func NewService(hub *Hub, defaultInterval time.Duration) *Service {
	if defaultInterval <= 0 {
		defaultInterval = 30 * time.Second
	}
	return &Service{hub: hub, defaultInterval: defaultInterval}
}

func (s *Service) Hub() *Hub { return s.hub }

// Schedule binds the bot to exactly one regime.
func (s *Service) Schedule(ctx context.Context, b Binding) (Handle, error) {
	switch b.Regime {
	case strategy.RegimePolling:
		if b.Tick == nil {
			return nil, fmt.Errorf("schedule %s: polling bot without tick", b.BotID)
		}
		interval := b.Interval
		if interval <= 0 {
			interval = s.defaultInterval
		}
		job := NewPeriodic(b.BotID, interval, b.Tick)
		job.RunImmediately = true
		if err := job.Start(context.WithoutCancel(ctx)); err != nil {
			return nil, err
		}
		return periodicHandle{job}, nil
	case strategy.RegimeReactive:
		if b.OnEvent == nil {
			return nil, fmt.Errorf("schedule %s: reactive bot without event handler", b.BotID)
		}
		if s.hub == nil {
			return nil, fmt.Errorf("schedule %s: no event hub", b.BotID)
		}
		reg, err := s.hub.Register(ctx, Subscriber{BotID: b.BotID, Watchlist: b.Watchlist, Handle: b.OnEvent})
		if err != nil {
			return nil, err
		}
		return reactiveHandle{reg}, nil
	default:
		return nil, fmt.Errorf("schedule %s: unknown regime %q", b.BotID, b.Regime)
	}
}

type periodicHandle struct{ job *Periodic }

func (h periodicHandle) Stop()          { h.job.Stop() }
func (h periodicHandle) Skipped() int64 { return h.job.Skipped() }
func (h periodicHandle) Dropped() int64 { return 0 }

type reactiveHandle struct{ reg *Registration }

func (h reactiveHandle) Stop()          { h.reg.Stop() }
func (h reactiveHandle) Skipped() int64 { return 0 }
func (h reactiveHandle) Dropped() int64 { return h.reg.Dropped() }
