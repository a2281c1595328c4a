package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/satwatch/satwatch-service/types"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

const (
	MaxTTL     = 24 * time.Hour
	DefaultTTL = 1 * time.Hour
)

// MemoryCache is a bounded in-memory cache with per-entry TTL. Expiry is
// lazy: an expired entry occupies its slot until a Get touches it or the
// optional cleanup routine sweeps it. When full, the entry with the
// oldest CreatedAt is evicted to make room.
type MemoryCache struct {
	name   string
	config *types.CacheInstanceConfig
	logger types.Logger

	mu   sync.RWMutex
	data map[string]*types.CacheEntry

	hits      uint64
	misses    uint64
	evictions uint64

	state       atomic.Value
	stopCleanup chan struct{}
	cleanupDone chan struct{}
	entryPool   sync.Pool
}

func NewMemoryCache(logger types.Logger, name string, config *types.CacheInstanceConfig) *MemoryCache {
	if config == nil {
		config = &types.CacheInstanceConfig{}
	}
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = DefaultTTL
	}

	cache := &MemoryCache{
		name:   name,
		config: config,
		logger: logger,
		data:   make(map[string]*types.CacheEntry),
		entryPool: sync.Pool{
			New: func() interface{} {
				return &types.CacheEntry{}
			},
		},
	}

	cache.state.Store(StateStopped)

	return cache
}

func (m *MemoryCache) Get(key string) (interface{}, bool) {
	now := time.Now()

	m.mu.RLock()
	entry, exists := m.data[key]
	if !exists {
		m.mu.RUnlock()
		atomic.AddUint64(&m.misses, 1)
		return nil, false
	}

	if entry.Expired(now) {
		m.mu.RUnlock()
		m.mu.Lock()
		// Re-check under the write lock; a concurrent Set may have
		// replaced the entry in the meantime.
		if entry, exists := m.data[key]; exists && entry.Expired(now) {
			delete(m.data, key)
			m.returnEntryToPool(entry)
		}
		m.mu.Unlock()

		atomic.AddUint64(&m.misses, 1)
		return nil, false
	}

	value := entry.Value
	m.mu.RUnlock()

	atomic.AddUint64(&m.hits, 1)

	return value, true
}

// Set stores the value under the instance's default TTL.
func (m *MemoryCache) Set(key string, value interface{}) error {
	return m.SetWithTTL(key, value, m.config.DefaultTTL)
}

// SetWithTTL stores the value under an explicit TTL. A non-positive TTL
// stores an entry that is already expired, so the next Get on the key is
// a miss.
func (m *MemoryCache) SetWithTTL(key string, value interface{}, ttl time.Duration) error {
	if key == "" {
		m.logger.Error("Attempted to set cache entry with empty key",
			zap.String("cache", m.name))
		return types.ErrCacheKeyEmpty
	}

	if ttl < 0 {
		ttl = 0
	}
	if ttl > MaxTTL {
		ttl = MaxTTL
	}

	now := time.Now()
	entry := m.entryPool.Get().(*types.CacheEntry)
	entry.Key = key
	entry.Value = value
	entry.TTL = ttl
	entry.CreatedAt = now
	entry.ExpiresAt = now.Add(ttl)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.config.MaxEntries > 0 {
		if _, exists := m.data[key]; !exists && len(m.data) >= m.config.MaxEntries {
			m.evictOldestUnsafe()
		}
	}

	if oldEntry, exists := m.data[key]; exists {
		m.returnEntryToPool(oldEntry)
	}

	m.data[key] = entry
	return nil
}

func (m *MemoryCache) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry, exists := m.data[key]; exists {
		delete(m.data, key)
		m.returnEntryToPool(entry)
	}

	return nil
}

func (m *MemoryCache) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, entry := range m.data {
		delete(m.data, key)
		m.returnEntryToPool(entry)
	}

	return nil
}

func (m *MemoryCache) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

// Stats returns the cumulative hit, miss and eviction counts.
func (m *MemoryCache) Stats() (hits, misses, evictions uint64) {
	return atomic.LoadUint64(&m.hits), atomic.LoadUint64(&m.misses), atomic.LoadUint64(&m.evictions)
}

func (m *MemoryCache) Start() error {
	if !m.transitionState(StateStopped, StateStarting) {
		m.logger.Warn("Memory cache is already running", zap.String("cache", m.name))
		return types.ErrServerAlreadyRunning
	}

	defer func() {
		if m.getState() == StateStarting {
			m.setState(StateRunning)
		}
	}()

	m.stopCleanup = make(chan struct{})
	m.cleanupDone = make(chan struct{})

	if m.config.CleanupInterval > 0 {
		go m.startCleanupRoutine()
	} else {
		close(m.cleanupDone)
	}

	m.logger.Debug("Memory cache started",
		zap.String("cache", m.name),
		zap.Int("max_entries", m.config.MaxEntries),
		zap.Duration("default_ttl", m.config.DefaultTTL))

	return nil
}

func (m *MemoryCache) Stop() error {
	if !m.transitionState(StateRunning, StateStopping) {
		m.logger.Warn("Memory cache is not running", zap.String("cache", m.name))
		return types.ErrServerNotRunning
	}

	defer func() {
		m.setState(StateStopped)
	}()

	close(m.stopCleanup)

	select {
	case <-m.cleanupDone:
	case <-time.After(5 * time.Second):
		m.logger.Warn("Cleanup routine stop timeout", zap.String("cache", m.name))
	}

	if err := m.Clear(); err != nil {
		return err
	}

	m.logger.Debug("Memory cache stopped", zap.String("cache", m.name))
	return nil
}

func (m *MemoryCache) IsRunning() bool {
	return m.getState() == StateRunning
}

func (m *MemoryCache) startCleanupRoutine() {
	defer close(m.cleanupDone)

	ticker := time.NewTicker(m.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCleanup:
			return
		case <-ticker.C:
			m.cleanup()
		}
	}
}

func (m *MemoryCache) cleanup() {
	now := time.Now()

	m.mu.Lock()
	expired := make([]string, 0, 16)
	for key, entry := range m.data {
		if entry.Expired(now) {
			expired = append(expired, key)
		}
	}

	for _, key := range expired {
		if entry := m.data[key]; entry != nil {
			delete(m.data, key)
			m.returnEntryToPool(entry)
		}
	}
	m.mu.Unlock()

	if len(expired) > 0 {
		m.logger.Debug("Cleanup completed",
			zap.String("cache", m.name),
			zap.Int("expired_entries", len(expired)))
	}
}

func (m *MemoryCache) evictOldestUnsafe() {
	var oldestKey string
	var oldestTime time.Time

	for key, entry := range m.data {
		if oldestKey == "" || entry.CreatedAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.CreatedAt
		}
	}

	if oldestKey != "" {
		if entry := m.data[oldestKey]; entry != nil {
			m.returnEntryToPool(entry)
		}
		delete(m.data, oldestKey)
		atomic.AddUint64(&m.evictions, 1)
	}
}

func (m *MemoryCache) returnEntryToPool(entry *types.CacheEntry) {
	if entry == nil {
		return
	}

	entry.Key = ""
	entry.Value = nil
	entry.TTL = 0
	entry.CreatedAt = time.Time{}
	entry.ExpiresAt = time.Time{}

	m.entryPool.Put(entry)
}

func (m *MemoryCache) getState() State {
	return m.state.Load().(State)
}

func (m *MemoryCache) setState(newState State) bool {
	currentState := m.getState()
	return m.state.CompareAndSwap(currentState, newState)
}

func (m *MemoryCache) transitionState(from, to State) bool {
	return m.state.CompareAndSwap(from, to)
}
