package testutil

import (
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeterministicClock_StartsAtEpoch(t *testing.T) {
	clock := NewDeterministicClock()
	assert.Equal(t, int64(0), clock.Readings())
	assert.Equal(t, DefaultEpochMs, clock.NowMs())
	assert.Equal(t, int64(1), clock.Readings())
}

func TestDeterministicClock_AdvancesOneSecond(t *testing.T) {
	clock := NewDeterministicClock()

	first := clock.NowMs()
	assert.Equal(t, first+1000, clock.NowMs())
	assert.Equal(t, first+2000, clock.NowMs())
}

func TestDeterministicClock_Reset(t *testing.T) {
	clock := NewDeterministicClock()
	clock.NowMs()
	clock.NowMs()

	clock.Reset()
	assert.Equal(t, int64(0), clock.Readings())
	assert.Equal(t, DefaultEpochMs, clock.NowMs())
}

func TestDeterministicClock_ThreadSafe(t *testing.T) {
	clock := NewDeterministicClock()
	const numGoroutines = 50
	const callsPerGoroutine = 20

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		all []int64
	)
	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < callsPerGoroutine; j++ {
				now := clock.NowMs()
				mu.Lock()
				all = append(all, now)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, all, numGoroutines*callsPerGoroutine)
	sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })
	for i, now := range all {
		assert.Equal(t, DefaultEpochMs+int64(i)*1000, now, "reading %d", i)
	}
}
