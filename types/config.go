package types

import (
	"time"
)

type ConfigManager interface {
	Load() error
	GetConfig() *ServiceConfig
	GetValue(path string, defaultValue interface{}) interface{}
	GetAs(path string, target interface{}) error
}

type ServiceConfig struct {
	Name          string               `yaml:"name" json:"name" validate:"required"`
	Version       string               `yaml:"version" json:"version" validate:"required"`
	Server        *ServerConfig        `yaml:"server" json:"server"`
	Logger        *LoggerConfig        `yaml:"logger" json:"logger"`
	Caches        *CachesConfig        `yaml:"caches" json:"caches"`
	Schedule      *ScheduleConfig      `yaml:"schedule" json:"schedule"`
	DataSources   *DataSourcesConfig   `yaml:"data_sources" json:"data_sources"`
	Observer      *ObserverConfig      `yaml:"observer" json:"observer"`
	Notifications *NotificationsConfig `yaml:"notifications" json:"notifications"`
	Export        *ExportConfig        `yaml:"export" json:"export"`
	Metrics       *MetricsConfig       `yaml:"metrics" json:"metrics"`
	Health        *HealthConfig        `yaml:"health" json:"health"`
	Client        *ClientConfig        `yaml:"client" json:"client"`
	Middlewares   *MiddlewaresConfig   `yaml:"middlewares" json:"middlewares"`
}

type ServerConfig struct {
	HTTP *HTTPConfig `yaml:"http" json:"http"`
}

type HTTPConfig struct {
	Enabled         bool   `yaml:"enabled" json:"enabled"`
	Host            string `yaml:"host" json:"host"`
	Port            int    `yaml:"port" json:"port" validate:"min=1,max=65535"`
	ReadTimeout     int    `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    int    `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout     int    `yaml:"idle_timeout" json:"idle_timeout"`
	ShutdownTimeout int    `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

type LoggerConfig struct {
	Type   string      `yaml:"type" json:"type"`
	Level  string      `yaml:"level" json:"level"`
	Config interface{} `yaml:"config" json:"config"`
}

// CachesConfig describes the shared backend plus the four logical cache
// instances. Backend is "memory" or "redis"; Config carries the
// backend-specific block (see cache.MemoryConfig / cache.RedisConfig).
type CachesConfig struct {
	Backend     string               `yaml:"backend" json:"backend" validate:"required,oneof=memory redis"`
	Config      interface{}          `yaml:"config" json:"config"`
	TLE         *CacheInstanceConfig `yaml:"tle" json:"tle"`
	Predictions *CacheInstanceConfig `yaml:"predictions" json:"predictions"`
	Processed   *CacheInstanceConfig `yaml:"processed" json:"processed"`
	API         *CacheInstanceConfig `yaml:"api" json:"api"`
}

type CacheInstanceConfig struct {
	MaxEntries      int           `yaml:"max_entries" json:"max_entries" validate:"min=0"`
	DefaultTTL      time.Duration `yaml:"default_ttl" json:"default_ttl" validate:"min=0"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" json:"cleanup_interval" validate:"min=0"`
}

func (c *CachesConfig) Instance(name string) *CacheInstanceConfig {
	switch name {
	case CacheTLE:
		return c.TLE
	case CachePredictions:
		return c.Predictions
	case CacheProcessed:
		return c.Processed
	case CacheAPI:
		return c.API
	}
	return nil
}

type ScheduleConfig struct {
	Enabled               bool          `yaml:"enabled" json:"enabled"`
	Tick                  time.Duration `yaml:"tick" json:"tick"`
	Timezone              string        `yaml:"timezone" json:"timezone"`
	TLEUpdateCron         string        `yaml:"tle_update_cron" json:"tle_update_cron"`
	PredictionUpdateCron  string        `yaml:"prediction_update_cron" json:"prediction_update_cron"`
	NotificationCheckCron string        `yaml:"notification_check_cron" json:"notification_check_cron"`
}

type DataSourcesConfig struct {
	CelestrakURL  string   `yaml:"celestrak_url" json:"celestrak_url" validate:"required,url"`
	BackupURLs    []string `yaml:"backup_urls" json:"backup_urls" validate:"dive,url"`
	MaxSatellites int      `yaml:"max_satellites" json:"max_satellites" validate:"min=0"`
}

type ObserverConfig struct {
	Latitude  float64 `yaml:"latitude" json:"latitude" validate:"min=-90,max=90"`
	Longitude float64 `yaml:"longitude" json:"longitude" validate:"min=-180,max=180"`
	Altitude  float64 `yaml:"altitude" json:"altitude"`
	Timezone  string  `yaml:"timezone" json:"timezone"`
}

type NotificationsConfig struct {
	MinElevation     float64       `yaml:"min_elevation" json:"min_elevation"`
	AdvanceNotice    time.Duration `yaml:"advance_notice" json:"advance_notice"`
	ExcludedPatterns []string      `yaml:"excluded_patterns" json:"excluded_patterns"`
}

type ExportConfig struct {
	DefaultFormat      string `yaml:"default_format" json:"default_format" validate:"oneof=json csv"`
	CompressLargeFiles bool   `yaml:"compress_large_files" json:"compress_large_files"`
	CompressThreshold  int    `yaml:"compress_threshold" json:"compress_threshold" validate:"min=0"`
}

type MetricsConfig struct {
	Enabled bool        `yaml:"enabled" json:"enabled"`
	Type    string      `yaml:"type" json:"type"`
	Config  interface{} `yaml:"config" json:"config"`
	Path    string      `yaml:"path" json:"path"`
}

type HealthConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
}

type ClientConfig struct {
	Timeout        time.Duration         `yaml:"timeout" json:"timeout"`
	Retries        int                   `yaml:"retries" json:"retries" validate:"min=0"`
	CircuitBreaker *CircuitBreakerConfig `yaml:"circuit_breaker" json:"circuit_breaker"`
}

type CircuitBreakerConfig struct {
	Enabled          bool          `yaml:"enabled" json:"enabled"`
	FailureThreshold int           `yaml:"failure_threshold" json:"failure_threshold"`
	RecoveryTimeout  time.Duration `yaml:"recovery_timeout" json:"recovery_timeout"`
}

type MiddlewaresConfig struct {
	Enabled     bool                  `yaml:"enabled" json:"enabled"`
	Recovery    *MiddlewareItemConfig `yaml:"recovery" json:"recovery"`
	Logging     *MiddlewareItemConfig `yaml:"logging" json:"logging"`
	Metadata    *MiddlewareItemConfig `yaml:"metadata" json:"metadata"`
	Cache       *MiddlewareItemConfig `yaml:"cache" json:"cache"`
	Compression *MiddlewareItemConfig `yaml:"compression" json:"compression"`
	CORS        *MiddlewareItemConfig `yaml:"cors" json:"cors"`
}

type MiddlewareItemConfig struct {
	Enabled bool                   `yaml:"enabled" json:"enabled"`
	Weight  int                    `yaml:"weight" json:"weight" validate:"min=0"`
	Params  map[string]interface{} `yaml:"params" json:"params"`
}
