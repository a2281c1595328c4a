package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satwatch/satwatch-service/types"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()

	manager, err := NewManager(context.Background(), nopLogger{}, nil, &types.CachesConfig{
		Backend: "memory",
		TLE: &types.CacheInstanceConfig{
			MaxEntries: 100,
			DefaultTTL: 6 * time.Hour,
		},
		Predictions: &types.CacheInstanceConfig{
			MaxEntries: 100,
			DefaultTTL: 15 * time.Minute,
		},
	})
	require.NoError(t, err)
	return manager
}

func TestManager_ProvidesAllLogicalCaches(t *testing.T) {
	manager := newTestManager(t)

	for _, name := range []string{
		types.CacheTLE,
		types.CachePredictions,
		types.CacheProcessed,
		types.CacheAPI,
	} {
		cache, err := manager.Cache(name)
		require.NoError(t, err, name)
		require.NotNil(t, cache, name)
	}

	_, err := manager.Cache("sessions")
	assert.True(t, types.IsError(err, types.ErrCacheNotFound))
}

func TestManager_CachesAreIsolated(t *testing.T) {
	manager := newTestManager(t)

	tle, err := manager.Cache(types.CacheTLE)
	require.NoError(t, err)
	predictions, err := manager.Cache(types.CachePredictions)
	require.NoError(t, err)

	require.NoError(t, tle.Set("starlink-1007", "tle"))

	_, found := predictions.Get("starlink-1007")
	assert.False(t, found)

	require.NoError(t, predictions.Clear())
	_, found = tle.Get("starlink-1007")
	assert.True(t, found)
}

func TestManager_UnknownBackend(t *testing.T) {
	_, err := NewManager(context.Background(), nopLogger{}, nil, &types.CachesConfig{
		Backend: "memcached",
	})
	require.Error(t, err)
	assert.True(t, types.IsError(err, types.ErrCacheBackendUnknown))
}

func TestManager_Lifecycle(t *testing.T) {
	manager := newTestManager(t)

	require.NoError(t, manager.Start())
	assert.True(t, manager.IsRunning())

	err := manager.Start()
	assert.True(t, types.IsError(err, types.ErrServerAlreadyRunning))

	require.NoError(t, manager.Stop())
	assert.False(t, manager.IsRunning())
}
