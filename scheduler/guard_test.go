package scheduler

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutionGuard_FirstCallAlwaysExecutes(t *testing.T) {
	guard := NewExecutionGuard()

	assert.True(t, guard.ShouldExecute("tle_update", 5*time.Minute))
	assert.True(t, guard.ShouldExecute("prediction_update", 10*time.Minute))
}

func TestExecutionGuard_BlocksWithinInterval(t *testing.T) {
	guard := NewExecutionGuard()

	current := at(2026, time.March, 10, 12, 0)
	guard.now = func() time.Time { return current }

	require.True(t, guard.ShouldExecute("tle_update", 5*time.Minute))

	current = current.Add(4 * time.Minute)
	assert.False(t, guard.ShouldExecute("tle_update", 5*time.Minute))

	current = current.Add(time.Minute)
	assert.True(t, guard.ShouldExecute("tle_update", 5*time.Minute))
}

func TestExecutionGuard_BlockedCallKeepsLastRun(t *testing.T) {
	guard := NewExecutionGuard()

	current := at(2026, time.March, 10, 12, 0)
	guard.now = func() time.Time { return current }

	first := current
	require.True(t, guard.ShouldExecute("tle_update", 5*time.Minute))

	current = current.Add(time.Minute)
	require.False(t, guard.ShouldExecute("tle_update", 5*time.Minute))

	last, seen := guard.LastRun("tle_update")
	require.True(t, seen)
	assert.Equal(t, first, last)
}

func TestExecutionGuard_Clear(t *testing.T) {
	guard := NewExecutionGuard()

	require.True(t, guard.ShouldExecute("tle_update", time.Hour))
	require.False(t, guard.ShouldExecute("tle_update", time.Hour))

	guard.Clear()

	_, seen := guard.LastRun("tle_update")
	assert.False(t, seen)
	assert.True(t, guard.ShouldExecute("tle_update", time.Hour))
}

func TestExecutionGuard_ConcurrentCallsExecuteOnce(t *testing.T) {
	guard := NewExecutionGuard()

	const callers = 32
	var granted int64
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if guard.ShouldExecute("tle_update", time.Hour) {
				atomic.AddInt64(&granted, 1)
			}
		}()
	}

	close(start)
	wg.Wait()

	assert.Equal(t, int64(1), granted)
}
