package client

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/satwatch/satwatch-service/types"
)

type BreakerState int32

const (
	StateBreakerClosed BreakerState = iota
	StateBreakerOpen
	StateBreakerHalfOpen
)

// CircuitBreaker shields a flaky upstream. After FailureThreshold
// consecutive failures the breaker opens and rejects calls outright;
// once RecoveryTimeout has passed a single probe is let through, and its
// outcome decides between closing again and re-opening.
type CircuitBreaker struct {
	config   *types.CircuitBreakerConfig
	logger   types.Logger
	name     string
	state    atomic.Value
	failures atomic.Int32
	lastFail atomic.Int64
	mutex    sync.Mutex
}

func NewCircuitBreaker(config *types.CircuitBreakerConfig, logger types.Logger, name string) *CircuitBreaker {
	if config == nil {
		config = &types.CircuitBreakerConfig{Enabled: false}
	}

	cb := &CircuitBreaker{
		config: config,
		logger: logger,
		name:   name,
	}

	cb.state.Store(StateBreakerClosed)

	return cb
}

func (cb *CircuitBreaker) CanExecute() bool {
	if !cb.config.Enabled {
		return true
	}

	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	switch cb.getStateUnsafe() {
	case StateBreakerOpen:
		if time.Since(time.Unix(cb.lastFail.Load(), 0)) > cb.config.RecoveryTimeout {
			cb.transitionTo(StateBreakerHalfOpen)
			return true
		}
		return false
	default:
		return true
	}
}

func (cb *CircuitBreaker) RecordSuccess() {
	if !cb.config.Enabled {
		return
	}

	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	switch cb.getStateUnsafe() {
	case StateBreakerClosed:
		cb.failures.Store(0)
	case StateBreakerHalfOpen:
		cb.failures.Store(0)
		cb.transitionTo(StateBreakerClosed)
		cb.logger.Info("Circuit breaker recovered",
			zap.String("upstream", cb.name))
	}
}

func (cb *CircuitBreaker) RecordFailure() {
	if !cb.config.Enabled {
		return
	}

	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.lastFail.Store(time.Now().Unix())

	switch cb.getStateUnsafe() {
	case StateBreakerClosed:
		failures := cb.failures.Add(1)
		if failures >= int32(cb.config.FailureThreshold) {
			cb.transitionTo(StateBreakerOpen)
			cb.logger.Warn("Circuit breaker opened",
				zap.String("upstream", cb.name),
				zap.Int32("failures", failures))
		}
	case StateBreakerHalfOpen:
		cb.transitionTo(StateBreakerOpen)
		cb.logger.Warn("Circuit breaker probe failed, re-opening",
			zap.String("upstream", cb.name))
	}
}

func (cb *CircuitBreaker) State() string {
	if !cb.config.Enabled {
		return "disabled"
	}

	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	switch cb.getStateUnsafe() {
	case StateBreakerOpen:
		return "open"
	case StateBreakerHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

func (cb *CircuitBreaker) Reset() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.failures.Store(0)
	cb.transitionTo(StateBreakerClosed)
}

func (cb *CircuitBreaker) getStateUnsafe() BreakerState {
	return cb.state.Load().(BreakerState)
}

func (cb *CircuitBreaker) transitionTo(state BreakerState) {
	cb.state.Store(state)
}
