package config

import (
	"context"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/satwatch/satwatch-service/types"
)

type Loader struct {
	validator *validator.Validate
}

func NewLoader() *Loader {
	return &Loader{
		validator: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (l *Loader) LoadFromFile(ctx context.Context, configPath string) (*types.ServiceConfig, map[string]interface{}, error) {
	if configPath == "" {
		return nil, nil, types.ErrConfigNotFound
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, nil, types.Errorf(types.ErrConfigInvalidPath, "file not found: %s", configPath)
	}

	data, err := l.readFileWithTimeout(ctx, configPath)
	if err != nil {
		return nil, nil, types.WrapError(err, "failed to read config file")
	}

	config := l.Defaults()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, nil, types.WrapError(err, "failed to parse YAML config")
	}

	if err := l.validator.Struct(config); err != nil {
		return nil, nil, types.WrapError(err, "config validation failed")
	}

	rawData := make(map[string]interface{})
	if err := yaml.Unmarshal(data, &rawData); err != nil {
		return nil, nil, types.WrapError(err, "failed to parse raw config")
	}

	return config, rawData, nil
}

func (l *Loader) readFileWithTimeout(ctx context.Context, filepath string) ([]byte, error) {
	type result struct {
		data []byte
		err  error
	}

	resultChan := make(chan result, 1)

	go func() {
		data, err := os.ReadFile(filepath)
		resultChan <- result{data: data, err: err}
	}()

	select {
	case res := <-resultChan:
		return res.data, res.err
	case <-ctx.Done():
		return nil, types.WrapError(ctx.Err(), "file read timeout")
	}
}

// Defaults returns a config that runs the tracker out of the box: the
// Celestrak Starlink group as the TLE source and an observer in Moscow.
// A config file overrides field by field on top of this.
func (l *Loader) Defaults() *types.ServiceConfig {
	return &types.ServiceConfig{
		Name:    "satwatch-service",
		Version: "1.0.0",
		Server: &types.ServerConfig{
			HTTP: &types.HTTPConfig{
				Enabled:         true,
				Host:            "0.0.0.0",
				Port:            8080,
				ReadTimeout:     30,
				WriteTimeout:    30,
				IdleTimeout:     120,
				ShutdownTimeout: 10,
			},
		},
		Logger: &types.LoggerConfig{
			Type:  "zap",
			Level: "info",
		},
		Caches: &types.CachesConfig{
			Backend: "memory",
			TLE: &types.CacheInstanceConfig{
				MaxEntries:      1000,
				DefaultTTL:      6 * time.Hour,
				CleanupInterval: 10 * time.Minute,
			},
			Predictions: &types.CacheInstanceConfig{
				MaxEntries:      5000,
				DefaultTTL:      15 * time.Minute,
				CleanupInterval: 5 * time.Minute,
			},
			Processed: &types.CacheInstanceConfig{
				MaxEntries:      1000,
				DefaultTTL:      time.Hour,
				CleanupInterval: 10 * time.Minute,
			},
			API: &types.CacheInstanceConfig{
				MaxEntries:      10000,
				DefaultTTL:      5 * time.Minute,
				CleanupInterval: time.Minute,
			},
		},
		Schedule: &types.ScheduleConfig{
			Enabled:               true,
			Tick:                  time.Second,
			Timezone:              "UTC",
			TLEUpdateCron:         "0 0 */6 * *",
			PredictionUpdateCron:  "*/30 * * * *",
			NotificationCheckCron: "*/15 * * * *",
		},
		DataSources: &types.DataSourcesConfig{
			CelestrakURL: "https://celestrak.org/NORAD/elements/gp.php?GROUP=starlink&FORMAT=tle",
			BackupURLs: []string{
				"https://celestrak.com/NORAD/elements/starlink.txt",
			},
			MaxSatellites: 0,
		},
		Observer: &types.ObserverConfig{
			Latitude:  55.7558,
			Longitude: 37.6173,
			Altitude:  150,
			Timezone:  "Europe/Moscow",
		},
		Notifications: &types.NotificationsConfig{
			MinElevation:  25,
			AdvanceNotice: 10 * time.Minute,
		},
		Export: &types.ExportConfig{
			DefaultFormat:      "json",
			CompressLargeFiles: true,
			CompressThreshold:  1000,
		},
		Metrics: &types.MetricsConfig{
			Enabled: true,
			Type:    "prometheus",
			Path:    "/metrics",
		},
		Health: &types.HealthConfig{
			Enabled: true,
		},
		Client: &types.ClientConfig{
			Timeout: 30 * time.Second,
			Retries: 3,
			CircuitBreaker: &types.CircuitBreakerConfig{
				Enabled:          true,
				FailureThreshold: 5,
				RecoveryTimeout:  time.Minute,
			},
		},
		Middlewares: &types.MiddlewaresConfig{
			Enabled: true,
			Recovery: &types.MiddlewareItemConfig{
				Enabled: true,
				Weight:  10,
				Params: map[string]interface{}{
					"stack_trace": true,
				},
			},
			Logging: &types.MiddlewareItemConfig{
				Enabled: true,
				Weight:  20,
				Params: map[string]interface{}{
					"log_level": "info",
				},
			},
			CORS: &types.MiddlewareItemConfig{
				Enabled: true,
				Weight:  30,
				Params: map[string]interface{}{
					"allowed_origins": []string{"*"},
					"allowed_methods": []string{"GET", "OPTIONS"},
					"allowed_headers": []string{"Content-Type", "X-Request-ID"},
					"max_age":         86400,
				},
			},
			Metadata: &types.MiddlewareItemConfig{
				Enabled: true,
				Weight:  40,
				Params: map[string]interface{}{
					"generate_request_id": true,
				},
			},
			Cache: &types.MiddlewareItemConfig{
				Enabled: true,
				Weight:  50,
				Params: map[string]interface{}{
					"default_ttl": "5m",
				},
			},
			Compression: &types.MiddlewareItemConfig{
				Enabled: true,
				Weight:  60,
				Params: map[string]interface{}{
					"level": 4,
				},
			},
		},
	}
}
