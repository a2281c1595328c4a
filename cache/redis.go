package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/satwatch/satwatch-service/types"
	"github.com/satwatch/satwatch-service/utils"
)

type RedisConfig struct {
	Host               string        `yaml:"host" json:"host"`
	Port               int           `yaml:"port" json:"port"`
	Password           string        `yaml:"password" json:"password"`
	DB                 int           `yaml:"db" json:"db"`
	PoolSize           int           `yaml:"pool_size" json:"pool_size"`
	MinIdleConnections int           `yaml:"min_idle_connections" json:"min_idle_connections"`
	DialTimeout        time.Duration `yaml:"dial_timeout" json:"dial_timeout"`
	ReadTimeout        time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout       time.Duration `yaml:"write_timeout" json:"write_timeout"`
	KeyPrefix          string        `yaml:"key_prefix" json:"key_prefix"`
}

// RedisCache keeps one logical cache instance in a shared redis database,
// namespaced by prefix and instance name. Entries travel as a JSON
// envelope so the application-level TTL survives the round trip.
type RedisCache struct {
	ctx        context.Context
	name       string
	logger     types.Logger
	config     *RedisConfig
	client     *redis.Client
	defaultTTL time.Duration
}

func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Host:               "localhost",
		Port:               6379,
		DB:                 0,
		PoolSize:           10,
		MinIdleConnections: 2,
		DialTimeout:        5 * time.Second,
		ReadTimeout:        3 * time.Second,
		WriteTimeout:       3 * time.Second,
		KeyPrefix:          "satwatch",
	}
}

func NewRedisCache(ctx context.Context, logger types.Logger, name string, redisConfig *RedisConfig, instance *types.CacheInstanceConfig) (*RedisCache, error) {
	if redisConfig == nil {
		redisConfig = DefaultRedisConfig()
	}

	defaultTTL := DefaultTTL
	if instance != nil && instance.DefaultTTL > 0 {
		defaultTTL = instance.DefaultTTL
	}

	cache := &RedisCache{
		ctx:        ctx,
		name:       name,
		logger:     logger,
		config:     redisConfig,
		defaultTTL: defaultTTL,
		client: redis.NewClient(&redis.Options{
			Addr:         fmt.Sprintf("%s:%d", redisConfig.Host, redisConfig.Port),
			Password:     redisConfig.Password,
			DB:           redisConfig.DB,
			PoolSize:     redisConfig.PoolSize,
			MinIdleConns: redisConfig.MinIdleConnections,
			DialTimeout:  redisConfig.DialTimeout,
			ReadTimeout:  redisConfig.ReadTimeout,
			WriteTimeout: redisConfig.WriteTimeout,
		}),
	}

	pingCtx, cancel := context.WithTimeout(ctx, redisConfig.DialTimeout)
	defer cancel()

	if err := cache.client.Ping(pingCtx).Err(); err != nil {
		return nil, types.WrapError(types.ErrCacheConnectionFailed, err.Error())
	}

	return cache, nil
}

func (r *RedisCache) Get(key string) (interface{}, bool) {
	if key == "" {
		return nil, false
	}

	fullKey := r.buildFullKey(key)

	result, err := r.client.Get(r.ctx, fullKey).Result()
	if err != nil {
		if err != redis.Nil {
			r.logger.Error("Failed to get cache entry",
				zap.String("cache", r.name), zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}

	var entry types.CacheEntry
	if err := utils.Unmarshal([]byte(result), &entry); err != nil {
		r.logger.Error("Failed to unmarshal cache entry",
			zap.String("cache", r.name), zap.String("key", key), zap.Error(err))
		r.client.Del(r.ctx, fullKey)
		return nil, false
	}

	if entry.Expired(time.Now()) {
		r.client.Del(r.ctx, fullKey)
		return nil, false
	}

	return entry.Value, true
}

func (r *RedisCache) Set(key string, value interface{}) error {
	return r.SetWithTTL(key, value, r.defaultTTL)
}

func (r *RedisCache) SetWithTTL(key string, value interface{}, ttl time.Duration) error {
	if key == "" {
		return types.ErrCacheKeyEmpty
	}

	if ttl < 0 {
		ttl = 0
	}
	if ttl > MaxTTL {
		ttl = MaxTTL
	}

	now := time.Now()
	entry := &types.CacheEntry{
		Key:       key,
		Value:     value,
		TTL:       ttl,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	data, err := utils.Marshal(entry)
	if err != nil {
		return types.WrapError(err, "failed to marshal cache entry")
	}

	// Redis cannot expire a key in zero time; keep the envelope around
	// for a second and let the envelope's own ExpiresAt declare it dead.
	redisTTL := ttl
	if redisTTL <= 0 {
		redisTTL = time.Second
	}

	if err := r.client.Set(r.ctx, r.buildFullKey(key), data, redisTTL).Err(); err != nil {
		r.logger.Error("Failed to set cache entry",
			zap.String("cache", r.name), zap.String("key", key), zap.Error(err))
		return types.WrapError(err, "failed to set cache entry")
	}

	return nil
}

func (r *RedisCache) Delete(key string) error {
	if key == "" {
		return nil
	}

	if err := r.client.Del(r.ctx, r.buildFullKey(key)).Err(); err != nil {
		return types.WrapError(err, "failed to delete cache key")
	}

	return nil
}

func (r *RedisCache) Clear() error {
	pattern := r.buildFullKey("*")

	iter := r.client.Scan(r.ctx, 0, pattern, 100).Iterator()
	for iter.Next(r.ctx) {
		if err := r.client.Del(r.ctx, iter.Val()).Err(); err != nil {
			return types.WrapError(err, "failed to clear cache")
		}
	}

	return types.WrapError(iter.Err(), "failed to scan cache keys")
}

func (r *RedisCache) Size() int {
	pattern := r.buildFullKey("*")

	count := 0
	iter := r.client.Scan(r.ctx, 0, pattern, 100).Iterator()
	for iter.Next(r.ctx) {
		count++
	}

	if err := iter.Err(); err != nil {
		r.logger.Error("Failed to scan cache keys",
			zap.String("cache", r.name), zap.Error(err))
		return 0
	}

	return count
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}

func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisCache) buildFullKey(key string) string {
	return r.config.KeyPrefix + ":" + r.name + ":" + key
}
