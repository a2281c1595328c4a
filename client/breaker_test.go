package client

import (
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

func newTestBreaker(threshold int, recovery time.Duration) *CircuitBreaker {
	return NewCircuitBreaker(&types.CircuitBreakerConfig{
		Enabled:          true,
		FailureThreshold: threshold,
		RecoveryTimeout:  recovery,
	}, nopLogger{}, "celestrak")
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := newTestBreaker(3, time.Minute)

	for i := 0; i < 2; i++ {
		require.True(t, cb.CanExecute())
		cb.RecordFailure()
	}
	assert.Equal(t, "closed", cb.State())

	cb.RecordFailure()
	assert.Equal(t, "open", cb.State())
	assert.False(t, cb.CanExecute())
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := newTestBreaker(3, time.Minute)

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()

	cb.RecordFailure()
	cb.RecordFailure()
	assert.Equal(t, "closed", cb.State())
}

func TestCircuitBreaker_ProbeAfterRecoveryTimeout(t *testing.T) {
	// Recovery is measured in whole seconds; a zero timeout lets the
	// probe through on the next call.
	cb := newTestBreaker(1, 0)

	cb.RecordFailure()
	require.Equal(t, "open", cb.State())

	// First call after the window transitions to half-open.
	require.True(t, cb.CanExecute())
	assert.Equal(t, "half-open", cb.State())

	cb.RecordSuccess()
	assert.Equal(t, "closed", cb.State())
}

func TestCircuitBreaker_FailedProbeReopens(t *testing.T) {
	cb := newTestBreaker(1, 0)

	cb.RecordFailure()
	require.True(t, cb.CanExecute())
	require.Equal(t, "half-open", cb.State())

	cb.RecordFailure()
	assert.Equal(t, "open", cb.State())
}

func TestCircuitBreaker_DisabledAlwaysExecutes(t *testing.T) {
	cb := NewCircuitBreaker(&types.CircuitBreakerConfig{Enabled: false}, nopLogger{}, "celestrak")

	for i := 0; i < 10; i++ {
		cb.RecordFailure()
	}

	assert.True(t, cb.CanExecute())
	assert.Equal(t, "disabled", cb.State())
}
