package health

import (
	"context"
	"fmt"

	"github.com/satwatch/satwatch-service/types"
)

// LifecycleChecker reports a component healthy while it is running.
func LifecycleChecker(component types.LifecycleManager) types.HealthChecker {
	return func(ctx context.Context) types.HealthCheck {
		if component.IsRunning() {
			return types.HealthCheck{Status: types.StatusHealthy}
		}
		return types.HealthCheck{
			Status:  types.StatusUnhealthy,
			Message: "not running",
		}
	}
}

// CacheChecker verifies the named logical cache is reachable through the
// registry.
func CacheChecker(registry types.CacheRegistry, name string) types.HealthChecker {
	return func(ctx context.Context) types.HealthCheck {
		cache, err := registry.Cache(name)
		if err != nil {
			return types.HealthCheck{
				Status:  types.StatusUnhealthy,
				Message: err.Error(),
			}
		}
		return types.HealthCheck{
			Status:  types.StatusHealthy,
			Message: fmt.Sprintf("%d entries", cache.Size()),
		}
	}
}

// SchedulerChecker reports unhealthy when the scheduler has stopped or a
// job's most recent run failed.
func SchedulerChecker(scheduler types.SchedulerManager) types.HealthChecker {
	return func(ctx context.Context) types.HealthCheck {
		if !scheduler.IsRunning() {
			return types.HealthCheck{
				Status:  types.StatusUnhealthy,
				Message: "scheduler stopped",
			}
		}

		for _, job := range scheduler.Jobs() {
			if job.LastError != "" {
				return types.HealthCheck{
					Status:  types.StatusUnhealthy,
					Message: fmt.Sprintf("job %s: %s", job.Name, job.LastError),
				}
			}
		}

		return types.HealthCheck{Status: types.StatusHealthy}
	}
}
