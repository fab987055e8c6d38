package daystate

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type rangeState struct {
	High   float64
	Traded bool
}

func TestStoreResetsOncePerDay(t *testing.T) {
	s := New[rangeState](nil, nil)
	day1 := time.Date(2024, 3, 11, 14, 0, 0, 0, time.UTC)

	s.Update("b1", "AAPL", day1, func(st *rangeState) {
		st.High = 101
		st.Traded = true
	})
	got := s.Get("b1", "AAPL", day1.Add(time.Hour))
	assert.True(t, got.Traded)
	assert.Equal(t, 0, s.Resets())

	day2 := day1.Add(24 * time.Hour)
	for i := 0; i < 5; i++ {
		st := s.Get("b1", "AAPL", day2.Add(time.Duration(i)*time.Minute))
		assert.False(t, st.Traded)
	}
	assert.Equal(t, 1, s.Resets())
}

func TestStoreKeysAreIndependent(t *testing.T) {
	s := New[int](nil, func() int { return 7 })
	now := time.Date(2024, 3, 11, 14, 0, 0, 0, time.UTC)
	s.Update("b1", "AAPL", now, func(v *int) { *v = 1 })
	assert.Equal(t, 7, s.Get("b2", "AAPL", now))
	assert.Equal(t, 7, s.Get("b1", "MSFT", now))
	assert.Equal(t, 1, s.Get("b1", "AAPL", now))

	s.Drop("b1")
	assert.Equal(t, 1, s.Len())
}

func TestStoreConcurrentRolloverResetsOnce(t *testing.T) {
	s := New[int](nil, nil)
	day1 := time.Date(2024, 3, 11, 14, 0, 0, 0, time.UTC)
	s.Update("b1", "AAPL", day1, func(v *int) { *v = 3 })

	day2 := day1.Add(24 * time.Hour)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Update("b1", "AAPL", day2, func(v *int) { *v++ })
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, s.Resets())
	assert.Equal(t, 16, s.Get("b1", "AAPL", day2))
}
