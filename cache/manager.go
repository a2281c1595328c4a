package cache

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/satwatch/satwatch-service/types"
	"github.com/satwatch/satwatch-service/utils"
)

var cacheNames = []string{
	types.CacheTLE,
	types.CachePredictions,
	types.CacheProcessed,
	types.CacheAPI,
}

// Manager owns the four logical cache instances (tle, predictions,
// processed, api) and exposes them by name. All instances share one
// backend: bounded in-process maps or a redis database.
type Manager struct {
	ctx     context.Context
	logger  types.Logger
	metrics types.MetricsManager
	config  *types.CachesConfig

	caches     map[string]types.Cache
	lifecycles []types.LifecycleManager
	closers    []func() error

	state atomic.Value
}

func NewManager(ctx context.Context, logger types.Logger, metrics types.MetricsManager, config *types.CachesConfig) (*Manager, error) {
	if config == nil {
		return nil, types.Errorf(types.ErrCacheBackendUnknown, "caches config missing")
	}

	manager := &Manager{
		ctx:     ctx,
		logger:  logger,
		metrics: metrics,
		config:  config,
		caches:  make(map[string]types.Cache, len(cacheNames)),
	}

	manager.state.Store(StateStopped)

	switch config.Backend {
	case "memory":
		for _, name := range cacheNames {
			instance := NewMemoryCache(logger, name, config.Instance(name))
			manager.lifecycles = append(manager.lifecycles, instance)
			manager.caches[name] = manager.instrument(name, instance)
		}
	case "redis":
		redisConfig := DefaultRedisConfig()
		if config.Config != nil {
			if err := utils.UnmarshalConfig(config.Config, redisConfig); err != nil {
				return nil, types.WrapError(err, "failed to unmarshal redis cache config")
			}
		}

		for _, name := range cacheNames {
			instance, err := NewRedisCache(ctx, logger, name, redisConfig, config.Instance(name))
			if err != nil {
				return nil, types.WrapError(err, "failed to create redis cache "+name)
			}
			manager.closers = append(manager.closers, instance.Close)
			manager.caches[name] = manager.instrument(name, instance)
		}
	default:
		return nil, types.Errorf(types.ErrCacheBackendUnknown, "backend: %s", config.Backend)
	}

	return manager, nil
}

// Cache returns the named logical cache.
func (cm *Manager) Cache(name string) (types.Cache, error) {
	cache, exists := cm.caches[name]
	if !exists {
		return nil, types.Errorf(types.ErrCacheNotFound, "cache: %s", name)
	}
	return cache, nil
}

func (cm *Manager) Start() error {
	if !cm.transitionState(StateStopped, StateStarting) {
		cm.logger.Warn("Cache manager is already running")
		return types.ErrServerAlreadyRunning
	}

	defer func() {
		if cm.getState() == StateStarting {
			cm.setState(StateRunning)
		}
	}()

	for _, lifecycle := range cm.lifecycles {
		if err := lifecycle.Start(); err != nil {
			return err
		}
	}

	cm.logger.Info("Cache manager started",
		zap.String("backend", cm.config.Backend),
		zap.Int("caches", len(cm.caches)))

	return nil
}

func (cm *Manager) Stop() error {
	if !cm.transitionState(StateRunning, StateStopping) {
		cm.logger.Warn("Cache manager is not running")
		return types.ErrServerNotRunning
	}

	defer func() {
		cm.setState(StateStopped)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	g, _ := errgroup.WithContext(ctx)

	for _, lifecycle := range cm.lifecycles {
		lifecycle := lifecycle
		g.Go(lifecycle.Stop)
	}

	for _, closer := range cm.closers {
		closer := closer
		g.Go(closer)
	}

	if err := g.Wait(); err != nil {
		cm.logger.Error("Error during cache manager shutdown", zap.Error(err))
		return err
	}

	cm.logger.Info("Cache manager stopped gracefully")
	return nil
}

func (cm *Manager) IsRunning() bool {
	return cm.getState() == StateRunning
}

func (cm *Manager) instrument(name string, inner types.Cache) types.Cache {
	if cm.metrics == nil {
		return inner
	}
	return &instrumentedCache{name: name, inner: inner, metrics: cm.metrics}
}

func (cm *Manager) getState() State {
	return cm.state.Load().(State)
}

func (cm *Manager) setState(newState State) bool {
	currentState := cm.getState()
	return cm.state.CompareAndSwap(currentState, newState)
}

func (cm *Manager) transitionState(from, to State) bool {
	return cm.state.CompareAndSwap(from, to)
}

// instrumentedCache counts operations per cache instance.
type instrumentedCache struct {
	name    string
	inner   types.Cache
	metrics types.MetricsManager
}

func (ic *instrumentedCache) Get(key string) (interface{}, bool) {
	value, found := ic.inner.Get(key)

	result := "hit"
	if !found {
		result = "miss"
	}
	ic.metrics.Counter("cache_operations_total",
		map[string]string{"cache": ic.name, "operation": "get", "result": result}).Inc()

	return value, found
}

func (ic *instrumentedCache) Set(key string, value interface{}) error {
	err := ic.inner.Set(key, value)
	ic.recordWrite("set", err)
	return err
}

func (ic *instrumentedCache) SetWithTTL(key string, value interface{}, ttl time.Duration) error {
	err := ic.inner.SetWithTTL(key, value, ttl)
	ic.recordWrite("set", err)
	return err
}

func (ic *instrumentedCache) Delete(key string) error {
	err := ic.inner.Delete(key)
	ic.recordWrite("delete", err)
	return err
}

func (ic *instrumentedCache) Clear() error {
	err := ic.inner.Clear()
	ic.recordWrite("clear", err)
	return err
}

func (ic *instrumentedCache) Size() int {
	size := ic.inner.Size()
	ic.metrics.Gauge("cache_entries",
		map[string]string{"cache": ic.name}).Set(float64(size))
	return size
}

func (ic *instrumentedCache) recordWrite(operation string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	ic.metrics.Counter("cache_operations_total",
		map[string]string{"cache": ic.name, "operation": operation, "result": result}).Inc()
}
