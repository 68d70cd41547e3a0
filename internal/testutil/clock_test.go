package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestDeterministicClock_StartsAtStart(t *testing.T) {
	clock := NewDeterministicClock(epoch, time.Second)
	assert.Equal(t, int64(0), clock.Calls())
	assert.Equal(t, epoch, clock.Now())
	assert.Equal(t, int64(1), clock.Calls())
}

func TestDeterministicClock_Advances(t *testing.T) {
	clock := NewDeterministicClock(epoch, time.Minute)

	assert.Equal(t, epoch, clock.Now())
	assert.Equal(t, epoch.Add(time.Minute), clock.Now())
	assert.Equal(t, epoch.Add(2*time.Minute), clock.Now())
}

func TestDeterministicClock_Frozen(t *testing.T) {
	clock := NewDeterministicClock(epoch, 0)
	for range 3 {
		assert.Equal(t, epoch, clock.Now())
	}
}

func TestDeterministicClock_Reset(t *testing.T) {
	clock := NewDeterministicClock(epoch, time.Second)
	clock.Now()
	clock.Now()

	clock.Reset()
	assert.Equal(t, int64(0), clock.Calls())
	assert.Equal(t, epoch, clock.Now())
}

func TestDeterministicClock_ThreadSafe(t *testing.T) {
	clock := NewDeterministicClock(epoch, time.Second)
	const goroutines = 50
	const calls = 100

	var mu sync.Mutex
	seen := make(map[time.Time]bool)
	var wg sync.WaitGroup
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range calls {
				now := clock.Now()
				mu.Lock()
				seen[now] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, seen, goroutines*calls)
	assert.True(t, seen[epoch.Add(time.Duration(goroutines*calls-1)*time.Second)])
}

func TestSequentialRunIDs(t *testing.T) {
	gen := NewSequentialRunIDs("backfill")
	assert.Equal(t, "backfill-1", gen.Generate())
	assert.Equal(t, "backfill-2", gen.Generate())

	assert.Equal(t, "run-1", NewSequentialRunIDs("").Generate())
}

func TestSequentialRunIDs_ThreadSafe(t *testing.T) {
	gen := NewSequentialRunIDs("")
	ids := make(chan string, 1000)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				ids <- gen.Generate()
			}
		}()
	}
	wg.Wait()
	close(ids)

	unique := make(map[string]bool)
	for id := range ids {
		unique[id] = true
	}
	assert.Len(t, unique, 1000)
}
