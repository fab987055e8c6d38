package market

import (
	"sort"
	"strings"
	"sync"
)

// Tracker keeps the union of symbols watched by running experiments.
// Symbols are reference counted so overlapping watchlists untrack cleanly.
type Tracker struct {
	mu   sync.RWMutex
	refs map[string]int
}

func NewTracker() *Tracker {
	return &Tracker{refs: make(map[string]int)}
}

func (t *Tracker) Track(symbols ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range NormalizeSymbols(symbols) {
		t.refs[s]++
	}
}

func (t *Tracker) Untrack(symbols ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range NormalizeSymbols(symbols) {
		if t.refs[s] <= 1 {
			delete(t.refs, s)
			continue
		}
		t.refs[s]--
	}
}

func (t *Tracker) IsTracked(symbol string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.refs[normalizeSymbol(symbol)] > 0
}

// Symbols returns the tracked set sorted.
func (t *Tracker) Symbols() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.refs))
	for s := range t.refs {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func normalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// NormalizeSymbols upper-cases, trims, de-duplicates and sorts symbols.
func NormalizeSymbols(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, raw := range symbols {
		s := normalizeSymbol(raw)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Union merges watchlists into one normalized set.
func Union(lists ...[]string) []string {
	var all []string
	for _, l := range lists {
		all = append(all, l...)
	}
	return NormalizeSymbols(all)
}
