package health

import (
	"context"
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

func newTestManager() *Manager {
	return NewManager(nopLogger{}, types.ServiceInfo{Name: "satwatch", Version: "test"})
}

func staticChecker(status types.HealthStatus, message string) types.HealthChecker {
	return func(ctx context.Context) types.HealthCheck {
		return types.HealthCheck{Status: status, Message: message}
	}
}

func TestManager_AllHealthy(t *testing.T) {
	hm := newTestManager()
	require.NoError(t, hm.Start())

	hm.RegisterChecker("scheduler", staticChecker(types.StatusHealthy, ""))
	hm.RegisterChecker("cache", staticChecker(types.StatusHealthy, ""))

	report := hm.Check(context.Background())
	assert.Equal(t, types.StatusHealthy, report.Status)
	assert.Len(t, report.Checks, 2)
	assert.Equal(t, "satwatch", report.Service.Name)
	assert.Equal(t, "scheduler", report.Checks["scheduler"].Name)
}

func TestManager_UnhealthyCheckerDominates(t *testing.T) {
	hm := newTestManager()
	require.NoError(t, hm.Start())

	hm.RegisterChecker("scheduler", staticChecker(types.StatusHealthy, ""))
	hm.RegisterChecker("redis", staticChecker(types.StatusUnhealthy, "connection refused"))

	report := hm.Check(context.Background())
	assert.Equal(t, types.StatusUnhealthy, report.Status)
	assert.Equal(t, "connection refused", report.Checks["redis"].Message)
}

func TestManager_SlowCheckerReportedUnknown(t *testing.T) {
	hm := newTestManager()
	hm.checkTimeout = 20 * time.Millisecond
	require.NoError(t, hm.Start())

	hm.RegisterChecker("slow", func(ctx context.Context) types.HealthCheck {
		<-ctx.Done()
		return types.HealthCheck{Status: types.StatusHealthy}
	})

	report := hm.Check(context.Background())
	assert.Equal(t, types.StatusUnknown, report.Status)
	assert.Equal(t, "check timed out", report.Checks["slow"].Message)
}

func TestManager_NoCheckersIsHealthy(t *testing.T) {
	hm := newTestManager()
	require.NoError(t, hm.Start())

	report := hm.Check(context.Background())
	assert.Equal(t, types.StatusHealthy, report.Status)
	assert.Empty(t, report.Checks)
}
