package types

import (
	"time"
)

// Names of the logical caches owned by the service. Each holds its own
// keyspace; they never share entries.
const (
	CacheTLE         = "tle"
	CachePredictions = "predictions"
	CacheProcessed   = "processed"
	CacheAPI         = "api"
)

// Cache is the accessor contract shared by every logical cache. A miss is
// a (nil, false) return, never an error. Get, Set, Delete and Clear are
// each atomic with respect to concurrent callers; no cross-call
// transaction is implied.
type Cache interface {
	Get(key string) (interface{}, bool)
	Set(key string, value interface{}) error
	SetWithTTL(key string, value interface{}, ttl time.Duration) error
	Delete(key string) error
	Clear() error
	Size() int
}

// CacheRegistry owns the logical cache instances and their shared
// lifecycle.
type CacheRegistry interface {
	LifecycleManager
	Cache(name string) (Cache, error)
}

type CacheEntry struct {
	Key       string        `json:"key"`
	Value     interface{}   `json:"value"`
	TTL       time.Duration `json:"ttl"`
	CreatedAt time.Time     `json:"created_at"`
	ExpiresAt time.Time     `json:"expires_at"`
}

// Expired reports whether the entry is past its TTL at the given instant.
// Entries stored with a zero TTL expire immediately.
func (e *CacheEntry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}
