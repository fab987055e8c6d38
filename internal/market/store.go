package market

import (
	"hash/fnv"
	"sync"
	"time"
)

// Sample is one observation of a symbol on a bot tick.
type Sample struct {
	Time   time.Time `json:"time"`
	Price  float64   `json:"price"`
	Volume float64   `json:"volume"`
}

const DefaultSeriesCapacity = 100

// Series is a bounded FIFO of samples. It has a single writer (the owning
// bot's tick) but may be read concurrently.
type Series struct {
	mu       sync.RWMutex
	capacity int
	samples  []Sample
}

func NewSeries(capacity int) *Series {
	if capacity <= 0 {
		capacity = DefaultSeriesCapacity
	}
	return &Series{capacity: capacity, samples: make([]Sample, 0, capacity)}
}

// Append adds samples, replacing the last one when timestamps match,
// and evicts the oldest samples past capacity.
func (s *Series) Append(samples ...Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sm := range samples {
		n := len(s.samples)
		if n > 0 && s.samples[n-1].Time.Equal(sm.Time) {
			s.samples[n-1] = sm
			continue
		}
		s.samples = append(s.samples, sm)
	}
	if over := len(s.samples) - s.capacity; over > 0 {
		s.samples = append(s.samples[:0], s.samples[over:]...)
	}
}

func (s *Series) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.samples)
}

func (s *Series) Capacity() int { return s.capacity }

// Prices and Volumes return copies in time order.
func (s *Series) Prices() []float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]float64, len(s.samples))
	for i, sm := range s.samples {
		out[i] = sm.Price
	}
	return out
}

func (s *Series) Volumes() []float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]float64, len(s.samples))
	for i, sm := range s.samples {
		out[i] = sm.Volume
	}
	return out
}

func (s *Series) Last() (Sample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.samples) == 0 {
		return Sample{}, false
	}
	return s.samples[len(s.samples)-1], true
}

// SeriesStore holds one Series per (owner, symbol), sharded to keep bots
// from contending on a single lock.
type SeriesStore struct {
	capacity int
	shards   []seriesShard
}

type seriesShard struct {
	mu   sync.RWMutex
	data map[string]*Series
}

const defaultShardCount = 32

func NewSeriesStore(capacity int) *SeriesStore {
	return newSeriesStore(capacity, defaultShardCount)
}

func newSeriesStore(capacity, shards int) *SeriesStore {
	if shards <= 0 {
		shards = 1
	}
	out := &SeriesStore{capacity: capacity, shards: make([]seriesShard, shards)}
	for i := range out.shards {
		out.shards[i] = seriesShard{data: make(map[string]*Series)}
	}
	return out
}

func seriesKey(owner, symbol string) string { return owner + "|" + symbol }

func (s *SeriesStore) shardFor(key string) *seriesShard {
	return &s.shards[hashKey(key)%uint32(len(s.shards))]
}

// Series returns the series for (owner, symbol), creating it on first use.
func (s *SeriesStore) Series(owner, symbol string) *Series {
	k := seriesKey(owner, symbol)
	sh := s.shardFor(k)
	sh.mu.RLock()
	ser, ok := sh.data[k]
	sh.mu.RUnlock()
	if ok {
		return ser
	}
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if ser, ok = sh.data[k]; ok {
		return ser
	}
	ser = NewSeries(s.capacity)
	sh.data[k] = ser
	return ser
}

// Lookup is Series without the create.
func (s *SeriesStore) Lookup(owner, symbol string) (*Series, bool) {
	k := seriesKey(owner, symbol)
	sh := s.shardFor(k)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	ser, ok := sh.data[k]
	return ser, ok
}

// Drop removes every series of owner.
func (s *SeriesStore) Drop(owner string) {
	prefix := owner + "|"
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for k := range sh.data {
			if len(k) > len(prefix) && k[:len(prefix)] == prefix {
				delete(sh.data, k)
			}
		}
		sh.mu.Unlock()
	}
}

func hashKey(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32()
}
