package types

import (
	"errors"
	"fmt"
)

var (
	ErrConfigNotFound       = errors.New("config not found")
	ErrConfigInvalidPath    = errors.New("config invalid path")
	ErrConfigParseFailed    = errors.New("config parse failed")
	ErrConfigLoadFailed     = errors.New("config load failed")
	ErrConfigValidateFailed = errors.New("config validate failed")
)

var (
	ErrServerNotRunning     = errors.New("server not running")
	ErrServerAlreadyRunning = errors.New("server already running")
	ErrServerStartFailed    = errors.New("server start failed")
	ErrHandlerIsNil         = errors.New("handler is nil")
	ErrRouteNotFound        = errors.New("route not found")
)

var (
	ErrCacheNotFound         = errors.New("cache not found")
	ErrCacheKeyEmpty         = errors.New("cache key empty")
	ErrCacheConnectionFailed = errors.New("cache connection failed")
	ErrCacheBackendUnknown   = errors.New("cache backend unknown")
)

var (
	ErrSchedulerAlreadyRunning = errors.New("scheduler already running")
	ErrSchedulerNotRunning     = errors.New("scheduler not running")
	ErrSchedulerStopTimeout    = errors.New("scheduler stop timeout")
	ErrCronExpressionInvalid   = errors.New("cron expression invalid")
	ErrJobNameEmpty            = errors.New("job name is empty")
	ErrJobIsNil                = errors.New("job is nil")
	ErrJobExists               = errors.New("job exists")
)

var (
	ErrTLESourceUnavailable   = errors.New("tle source unavailable")
	ErrTLEMalformed           = errors.New("tle data malformed")
	ErrPredictorNotConfigured = errors.New("predictor not configured")
	ErrExportFormatUnknown    = errors.New("export format unknown")
	ErrNoSatelliteData        = errors.New("no satellite data")
)

var (
	ErrClientRequestFailed = errors.New("client request failed")
	ErrClientTimeout       = errors.New("client timeout")
	ErrCircuitBreakerOpen  = errors.New("circuit breaker open")
)

var (
	ErrMetricsTypeUnknown = errors.New("metrics type unknown")
	ErrMetricsIsDisabled  = errors.New("metrics manager is disabled")
)

var (
	ErrLoggerConfigInvalid = errors.New("logger config invalid")
	ErrLogFileIsEmpty      = errors.New("log file is empty")
	ErrLogFileWrongFormat  = errors.New("log file wrong format")
	ErrLoggerTypeUnknown   = errors.New("logger type unknown")
)

var (
	ErrServiceIsNotRunning  = errors.New("service is not running")
	ErrComponentStartFailed = errors.New("component start failed")
)

func Errorf(baseErr error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", baseErr, fmt.Sprintf(format, args...))
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

func NewErrorf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}

func IsError(err, target error) bool {
	return errors.Is(err, target)
}
