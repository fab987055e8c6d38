package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"

	"botarena/internal/events"
	"botarena/internal/logger"

	"golang.org/x/time/rate"
)

// Limits are expressed per minute to match configuration.
type Limits struct {
	GlobalPerMinute    float64
	GlobalBurst        int
	PerSourcePerMinute float64
	PerSourceBurst     int
	QueueSize          int
}

func (l Limits) withDefaults() Limits {
	if l.GlobalPerMinute <= 0 {
		l.GlobalPerMinute = 120
	}
	if l.GlobalBurst <= 0 {
		l.GlobalBurst = 20
	}
	if l.PerSourcePerMinute <= 0 {
		l.PerSourcePerMinute = 10
	}
	if l.PerSourceBurst <= 0 {
		l.PerSourceBurst = 3
	}
	if l.QueueSize <= 0 {
		l.QueueSize = 16
	}
	return l
}

func perMinute(n float64) rate.Limit { return rate.Limit(n / 60) }

// Subscriber is a reactive bot as seen by the hub.
type Subscriber struct {
	BotID     string
	Watchlist []string
	Handle    func(ctx context.Context, ev events.NewsEvent)
}

type subscription struct {
	botID   string
	watch   map[string]struct{}
	handle  func(ctx context.Context, ev events.NewsEvent)
	queue   chan events.NewsEvent
	cancel  context.CancelFunc
	done    chan struct{}
	dropped atomic.Int64

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func (s *subscription) wants(ev events.NewsEvent) bool {
	for _, sym := range ev.Symbols {
		if _, ok := s.watch[strings.ToUpper(strings.TrimSpace(sym))]; ok {
			return true
		}
	}
	return false
}

func (s *subscription) sourceLimiter(source string, l Limits) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	lim, ok := s.limiters[source]
	if !ok {
		lim = rate.NewLimiter(perMinute(l.PerSourcePerMinute), l.PerSourceBurst)
		s.limiters[source] = lim
	}
	return lim
}

// Hub shares one feed subscription among all reactive bots. It subscribes when
// the first bot registers and unsubscribes after the last one leaves.
type Hub struct {
	feed   events.Feed
	topic  string
	limits Limits
	global *rate.Limiter

	mu          sync.Mutex
	subs        map[string]*subscription
	unsubscribe func()
	delivered   atomic.Int64
}

func NewHub(feed events.Feed, topic string, limits Limits) *Hub {
	limits = limits.withDefaults()
	return &Hub{
		feed:   feed,
		topic:  topic,
		limits: limits,
		global: rate.NewLimiter(perMinute(limits.GlobalPerMinute), limits.GlobalBurst),
		subs:   make(map[string]*subscription),
	}
}

// Registration is the caller's view of one registered bot.
type Registration struct {
	hub *Hub
	sub *subscription
}

func (r *Registration) Stop()          { r.hub.Unregister(r.sub.botID) }
func (r *Registration) Dropped() int64 { return r.sub.dropped.Load() }

func (h *Hub) Register(ctx context.Context, sub Subscriber) (*Registration, error) {
	if sub.BotID == "" || sub.Handle == nil {
		return nil, fmt.Errorf("hub: bot id and handler are required")
	}
	if h.feed == nil {
		return nil, fmt.Errorf("hub: no event feed configured")
	}
	watch := make(map[string]struct{}, len(sub.Watchlist))
	for _, s := range sub.Watchlist {
		watch[strings.ToUpper(strings.TrimSpace(s))] = struct{}{}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.subs[sub.BotID]; exists {
		return nil, fmt.Errorf("hub: bot %s already registered", sub.BotID)
	}
	if len(h.subs) == 0 {
		unsub, err := h.feed.Subscribe(context.WithoutCancel(ctx), h.topic, h.dispatch)
		if err != nil {
			return nil, fmt.Errorf("hub: subscribe %s: %w", h.topic, err)
		}
		h.unsubscribe = unsub
		logger.Infof("Scheduler: hub subscribed to topic=%s", h.topic)
	}
	wctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s := &subscription{
		botID:    sub.BotID,
		watch:    watch,
		handle:   sub.Handle,
		queue:    make(chan events.NewsEvent, h.limits.QueueSize),
		cancel:   cancel,
		done:     make(chan struct{}),
		limiters: make(map[string]*rate.Limiter),
	}
	h.subs[sub.BotID] = s
	go h.work(wctx, s)
	return &Registration{hub: h, sub: s}, nil
}

// Unregister returns once the bot's worker has exited; no handler call for
// botID starts after it returns.
func (h *Hub) Unregister(botID string) {
	h.mu.Lock()
	s, ok := h.subs[botID]
	if ok {
		delete(h.subs, botID)
	}
	var unsub func()
	if ok && len(h.subs) == 0 && h.unsubscribe != nil {
		unsub = h.unsubscribe
		h.unsubscribe = nil
	}
	h.mu.Unlock()
	if !ok {
		return
	}
	if unsub != nil {
		unsub()
		logger.Infof("Scheduler: hub unsubscribed from topic=%s", h.topic)
	}
	s.cancel()
	<-s.done
}

func (h *Hub) Dropped(botID string) int64 {
	h.mu.Lock()
	s := h.subs[botID]
	h.mu.Unlock()
	if s == nil {
		return 0
	}
	return s.dropped.Load()
}

func (h *Hub) Subscribed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.unsubscribe != nil
}

// dispatch runs on the feed goroutine and never blocks on a bot. The global
// limiter admits events, so one event costs one token however many bots
// watch its symbols; a rejected event counts as dropped for each of them.
func (h *Hub) dispatch(_ context.Context, ev events.NewsEvent) {
	h.mu.Lock()
	targets := make([]*subscription, 0, len(h.subs))
	for _, s := range h.subs {
		if s.wants(ev) {
			targets = append(targets, s)
		}
	}
	h.mu.Unlock()
	if len(targets) == 0 {
		return
	}
	if !h.global.Allow() {
		for _, s := range targets {
			s.dropped.Add(1)
		}
		logger.Debugf("Scheduler: global rate limit, event %s dropped for %d bots", ev.ID, len(targets))
		return
	}

	source := ev.SourceKey()
	for _, s := range targets {
		if !s.sourceLimiter(source, h.limits).Allow() {
			s.dropped.Add(1)
			logger.Debugf("Scheduler: source %s rate limited for bot %s", source, s.botID)
			continue
		}
		select {
		case s.queue <- ev:
			h.delivered.Add(1)
		default:
			n := s.dropped.Add(1)
			logger.Warnf("Scheduler: bot %s queue full, event %s dropped (total=%d)", s.botID, ev.ID, n)
		}
	}
}

func (h *Hub) work(ctx context.Context, s *subscription) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.queue:
			if ctx.Err() != nil {
				return
			}
			h.handle(ctx, s, ev)
		}
	}
}

func (h *Hub) handle(ctx context.Context, s *subscription, ev events.NewsEvent) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("Scheduler: bot %s event handler panic: %v\n%s", s.botID, r, debug.Stack())
		}
	}()
	s.handle(ctx, ev)
}
