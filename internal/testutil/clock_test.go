package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeterministicClock_Defaults(t *testing.T) {
	clock := NewDeterministicClock(time.Time{}, 0)
	assert.Equal(t, int64(0), clock.Ticks())

	assert.Equal(t, DefaultEpoch, clock.Next())
	assert.Equal(t, DefaultEpoch.Add(time.Minute), clock.Next())
	assert.Equal(t, int64(2), clock.Ticks())
}

func TestDeterministicClock_Step(t *testing.T) {
	start := time.Date(2023, time.March, 5, 12, 0, 0, 0, time.UTC)
	clock := NewDeterministicClock(start, time.Hour)

	assert.Equal(t, start, clock.Next())
	assert.Equal(t, start.Add(time.Hour), clock.Next())
	assert.Equal(t, start.Add(2*time.Hour), clock.Next())
}

func TestDeterministicClock_Reset(t *testing.T) {
	clock := NewDeterministicClock(time.Time{}, time.Second)

	clock.Next()
	clock.Next()
	clock.Next()
	assert.Equal(t, int64(3), clock.Ticks())

	clock.Reset()
	assert.Equal(t, int64(0), clock.Ticks())
	assert.Equal(t, DefaultEpoch, clock.Next())
}

func TestDeterministicClock_ThreadSafe(t *testing.T) {
	clock := NewDeterministicClock(time.Time{}, time.Second)
	const numGoroutines = 100
	const callsPerGoroutine = 100

	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	results := make([][]time.Time, numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		results[i] = make([]time.Time, callsPerGoroutine)
		go func(idx int) {
			defer wg.Done()
			for j := 0; j < callsPerGoroutine; j++ {
				results[idx][j] = clock.Next()
			}
		}(i)
	}

	wg.Wait()

	seen := make(map[time.Time]bool)
	for i := 0; i < numGoroutines; i++ {
		for j := 0; j < callsPerGoroutine; j++ {
			ts := results[i][j]
			require.False(t, seen[ts], "duplicate timestamp %s", ts)
			seen[ts] = true
		}
	}
	assert.Len(t, seen, numGoroutines*callsPerGoroutine)
}

func TestDeterministicClock_Deterministic(t *testing.T) {
	clock1 := NewDeterministicClock(time.Time{}, 0)
	clock2 := NewDeterministicClock(time.Time{}, 0)

	for i := 0; i < 100; i++ {
		assert.Equal(t, clock1.Next(), clock2.Next())
	}
}
