// Package scheduler drives bots: a periodic job per polling bot and a shared
// event hub for reactive bots.
package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"botarena/internal/logger"
)

// Task is one tick. ctx is cancelled when the job stops.
type Task func(ctx context.Context)

// Periodic fires task every Interval, anchored at the start time. A tick that
// is still running when the next one is due causes that one to be skipped.
type Periodic struct {
	Name           string
	Interval       time.Duration
	RunImmediately bool

	task  Task
	nowFn func() time.Time

	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	ticks    sync.WaitGroup
	inFlight atomic.Bool
	runs     atomic.Int64
	skipped  atomic.Int64
}

func NewPeriodic(name string, interval time.Duration, task Task) *Periodic {
	return &Periodic{
		Name:     name,
		Interval: interval,
		task:     task,
		nowFn:    time.Now,
	}
}

func (p *Periodic) Start(parent context.Context) error {
	if p.task == nil {
		return fmt.Errorf("periodic %s: task is nil", p.Name)
	}
	if p.Interval <= 0 {
		return fmt.Errorf("periodic %s: invalid interval=%s", p.Name, p.Interval)
	}
	if parent == nil {
		parent = context.Background()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return fmt.Errorf("periodic %s: already started", p.Name)
	}
	ctx, cancel := context.WithCancel(parent)
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.loop(ctx, p.done)
	return nil
}

// Stop ends the loop and waits for an in-flight tick to return.
func (p *Periodic) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	p.ticks.Wait()
}

func (p *Periodic) Runs() int64    { return p.runs.Load() }
func (p *Periodic) Skipped() int64 { return p.skipped.Load() }

func (p *Periodic) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	anchor := p.nowFn()
	logger.Debugf("Scheduler[%s]: started interval=%s run_immediately=%v", p.Name, p.Interval, p.RunImmediately)
	if p.RunImmediately {
		p.fire(ctx)
	}
	for {
		next := nextFixedTimeAfter(anchor, p.Interval, p.nowFn())
		timer := time.NewTimer(next.Sub(p.nowFn()))
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Debugf("Scheduler[%s]: ctx done, exit", p.Name)
			return
		case <-timer.C:
		}
		p.fire(ctx)
	}
}

// fire launches the task unless the previous tick is still running.
func (p *Periodic) fire(ctx context.Context) bool {
	if !p.inFlight.CompareAndSwap(false, true) {
		n := p.skipped.Add(1)
		logger.Warnf("Scheduler[%s]: previous tick still running, skipped (total=%d)", p.Name, n)
		return false
	}
	p.ticks.Add(1)
	go func() {
		defer p.ticks.Done()
		defer p.inFlight.Store(false)
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("Scheduler[%s]: tick panic: %v\n%s", p.Name, r, debug.Stack())
			}
		}()
		p.runs.Add(1)
		p.task(ctx)
	}()
	return true
}

func nextFixedTimeAfter(anchor time.Time, interval time.Duration, now time.Time) time.Time {
	if interval <= 0 {
		return now
	}
	delta := now.Sub(anchor)
	if delta < 0 {
		return anchor
	}
	k := delta / interval
	return anchor.Add((k + 1) * interval)
}
