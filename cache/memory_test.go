package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/satwatch/satwatch-service/types"
)

type nopLogger struct{}

func (nopLogger) Error(string, ...zap.Field)                    {}
func (nopLogger) Warn(string, ...zap.Field)                     {}
func (nopLogger) Info(string, ...zap.Field)                     {}
func (nopLogger) Debug(string, ...zap.Field)                    {}
func (nopLogger) Log(zapcore.Level, string, ...zap.Field)       {}
func (nopLogger) ErrorWithErrStack(string, error, ...zap.Field) {}

func newTestCache(maxEntries int, defaultTTL time.Duration) *MemoryCache {
	return NewMemoryCache(nopLogger{}, "test", &types.CacheInstanceConfig{
		MaxEntries: maxEntries,
		DefaultTTL: defaultTTL,
	})
}

func TestMemoryCache_SetGet(t *testing.T) {
	cache := newTestCache(10, time.Hour)

	require.NoError(t, cache.Set("starlink-1007", "tle-data"))

	value, found := cache.Get("starlink-1007")
	require.True(t, found)
	assert.Equal(t, "tle-data", value)

	_, found = cache.Get("starlink-9999")
	assert.False(t, found)
}

func TestMemoryCache_EmptyKeyRejected(t *testing.T) {
	cache := newTestCache(10, time.Hour)

	err := cache.Set("", "value")
	assert.True(t, types.IsError(err, types.ErrCacheKeyEmpty))
}

func TestMemoryCache_TTLExpiry(t *testing.T) {
	cache := newTestCache(10, time.Hour)

	require.NoError(t, cache.SetWithTTL("passes", "data", 20*time.Millisecond))

	_, found := cache.Get("passes")
	require.True(t, found)

	time.Sleep(30 * time.Millisecond)

	_, found = cache.Get("passes")
	assert.False(t, found)

	// The lazy expiry on Get removed the entry.
	assert.Equal(t, 0, cache.Size())
}

func TestMemoryCache_ZeroTTLExpiresImmediately(t *testing.T) {
	cache := newTestCache(10, time.Hour)

	require.NoError(t, cache.SetWithTTL("stale", "data", 0))

	_, found := cache.Get("stale")
	assert.False(t, found)
}

func TestMemoryCache_ExpiredEntryOccupiesSlotUntilTouched(t *testing.T) {
	cache := newTestCache(10, time.Hour)

	require.NoError(t, cache.SetWithTTL("stale", "data", time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	// Untouched, the dead entry still counts.
	assert.Equal(t, 1, cache.Size())

	cache.Get("stale")
	assert.Equal(t, 0, cache.Size())
}

func TestMemoryCache_FIFOEviction(t *testing.T) {
	cache := newTestCache(3, time.Hour)

	require.NoError(t, cache.Set("first", 1))
	time.Sleep(time.Millisecond)
	require.NoError(t, cache.Set("second", 2))
	time.Sleep(time.Millisecond)
	require.NoError(t, cache.Set("third", 3))
	time.Sleep(time.Millisecond)

	// Inserting a fourth entry evicts the oldest one.
	require.NoError(t, cache.Set("fourth", 4))

	_, found := cache.Get("first")
	assert.False(t, found)

	for _, key := range []string{"second", "third", "fourth"} {
		_, found := cache.Get(key)
		assert.True(t, found, key)
	}

	_, _, evictions := cache.Stats()
	assert.Equal(t, uint64(1), evictions)
}

func TestMemoryCache_OverwriteDoesNotEvict(t *testing.T) {
	cache := newTestCache(2, time.Hour)

	require.NoError(t, cache.Set("a", 1))
	require.NoError(t, cache.Set("b", 2))
	require.NoError(t, cache.Set("a", 10))

	assert.Equal(t, 2, cache.Size())

	value, found := cache.Get("a")
	require.True(t, found)
	assert.Equal(t, 10, value)

	_, found = cache.Get("b")
	assert.True(t, found)
}

func TestMemoryCache_DeleteAndClear(t *testing.T) {
	cache := newTestCache(10, time.Hour)

	require.NoError(t, cache.Set("a", 1))
	require.NoError(t, cache.Set("b", 2))

	require.NoError(t, cache.Delete("a"))
	_, found := cache.Get("a")
	assert.False(t, found)

	// Deleting an absent key is a no-op.
	require.NoError(t, cache.Delete("a"))

	require.NoError(t, cache.Clear())
	assert.Equal(t, 0, cache.Size())
}

func TestMemoryCache_HitMissCounters(t *testing.T) {
	cache := newTestCache(10, time.Hour)

	require.NoError(t, cache.Set("a", 1))

	cache.Get("a")
	cache.Get("a")
	cache.Get("missing")

	hits, misses, _ := cache.Stats()
	assert.Equal(t, uint64(2), hits)
	assert.Equal(t, uint64(1), misses)
}

func TestMemoryCache_ConcurrentAccess(t *testing.T) {
	cache := newTestCache(128, time.Hour)

	const workers = 16
	const opsPerWorker = 200

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < opsPerWorker; i++ {
				key := fmt.Sprintf("key-%d", i%64)
				switch i % 4 {
				case 0:
					_ = cache.Set(key, w*opsPerWorker+i)
				case 1:
					cache.Get(key)
				case 2:
					_ = cache.SetWithTTL(key, i, time.Minute)
				default:
					_ = cache.Delete(key)
				}
			}
		}(w)
	}
	wg.Wait()

	assert.LessOrEqual(t, cache.Size(), 128)
}

func TestMemoryCache_CleanupRoutineSweepsExpired(t *testing.T) {
	cache := NewMemoryCache(nopLogger{}, "test", &types.CacheInstanceConfig{
		MaxEntries:      10,
		DefaultTTL:      time.Hour,
		CleanupInterval: 10 * time.Millisecond,
	})

	require.NoError(t, cache.Start())
	defer func() { _ = cache.Stop() }()

	require.NoError(t, cache.SetWithTTL("stale", "data", time.Millisecond))
	require.NoError(t, cache.Set("fresh", "data"))

	assert.Eventually(t, func() bool {
		return cache.Size() == 1
	}, time.Second, 5*time.Millisecond)

	_, found := cache.Get("fresh")
	assert.True(t, found)
}

func TestMemoryCache_Lifecycle(t *testing.T) {
	cache := newTestCache(10, time.Hour)

	assert.False(t, cache.IsRunning())
	require.Error(t, cache.Stop())

	require.NoError(t, cache.Start())
	assert.True(t, cache.IsRunning())
	require.Error(t, cache.Start())

	require.NoError(t, cache.Stop())
	assert.False(t, cache.IsRunning())
}
