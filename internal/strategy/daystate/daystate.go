// Package daystate keeps mutable per-(bot, symbol) strategy state that lives
// for one session-local calendar day.
package daystate

import (
	"sync"
	"time"
)

// DayFunc maps an instant to the calendar day that owns it, e.g. "2024-03-11".
type DayFunc func(time.Time) string

type key struct {
	bot    string
	symbol string
}

type entry[T any] struct {
	day   string
	state T
}

// Store holds one T per (bot, symbol). The first access on a new day replaces
// the entry with a fresh value from init, so each key resets exactly once per day.
type Store[T any] struct {
	mu      sync.Mutex
	dayFn   DayFunc
	init    func() T
	entries map[key]*entry[T]
	resets  int
}

func New[T any](dayFn DayFunc, init func() T) *Store[T] {
	if dayFn == nil {
		dayFn = func(t time.Time) string { return t.Format(time.DateOnly) }
	}
	if init == nil {
		init = func() T {
			var zero T
			return zero
		}
	}
	return &Store[T]{
		dayFn:   dayFn,
		init:    init,
		entries: make(map[key]*entry[T]),
	}
}

// Update runs fn against the state for (bot, symbol) on the day of now, under
// the store lock.
func (s *Store[T]) Update(bot, symbol string, now time.Time, fn func(state *T)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.current(bot, symbol, now)
	if fn != nil {
		fn(&e.state)
	}
}

// Get returns a copy of the state for (bot, symbol) on the day of now.
func (s *Store[T]) Get(bot, symbol string, now time.Time) T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current(bot, symbol, now).state
}

func (s *Store[T]) current(bot, symbol string, now time.Time) *entry[T] {
	k := key{bot: bot, symbol: symbol}
	day := s.dayFn(now)
	e, ok := s.entries[k]
	if !ok {
		e = &entry[T]{day: day, state: s.init()}
		s.entries[k] = e
		return e
	}
	if e.day != day {
		e.day = day
		e.state = s.init()
		s.resets++
	}
	return e
}

// Drop forgets every entry of bot.
func (s *Store[T]) Drop(bot string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.entries {
		if k.bot == bot {
			delete(s.entries, k)
		}
	}
}

// Resets counts day rollovers across all keys.
func (s *Store[T]) Resets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resets
}

func (s *Store[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
