package metrics

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/satwatch/satwatch-service/types"
)

// New builds the metrics manager the config asks for. A disabled config
// yields a no-op manager so call sites never have to branch.
func New(ctx context.Context, logger types.Logger, config *types.MetricsConfig) (types.MetricsManager, error) {
	if config == nil || !config.Enabled {
		return NewNoop(), nil
	}

	var manager types.MetricsManager
	var err error

	switch config.Type {
	case "memory":
		manager = NewMemoryMetrics(logger)
	case "prometheus", "":
		manager, err = NewPrometheusMetrics(ctx, logger, config)
	default:
		return nil, types.Errorf(types.ErrMetricsTypeUnknown, "type: %s", config.Type)
	}

	if err != nil {
		return nil, err
	}

	logger.Info("Metrics manager initialized", zap.String("type", config.Type))
	return manager, nil
}

// NewNoop returns a manager that accepts every call and records nothing.
func NewNoop() types.MetricsManager {
	return &noopMetrics{}
}

type noopMetrics struct{}

func (n *noopMetrics) Start() error    { return nil }
func (n *noopMetrics) Stop() error     { return nil }
func (n *noopMetrics) IsRunning() bool { return true }

func (n *noopMetrics) Counter(string, map[string]string) types.Counter {
	return &noopCounter{}
}

func (n *noopMetrics) Gauge(string, map[string]string) types.Gauge {
	return &noopGauge{}
}

func (n *noopMetrics) Histogram(string, []float64, map[string]string) types.Histogram {
	return &noopHistogram{}
}

func (n *noopMetrics) Gather() ([]byte, error) {
	return nil, nil
}

type noopCounter struct{}

func (c *noopCounter) Inc()          {}
func (c *noopCounter) Add(_ float64) {}

type noopGauge struct{}

func (g *noopGauge) Set(_ float64) {}
func (g *noopGauge) Inc()          {}
func (g *noopGauge) Dec()          {}

type noopHistogram struct{}

func (h *noopHistogram) Observe(_ float64)           {}
func (h *noopHistogram) ObserveDuration(_ time.Time) {}
