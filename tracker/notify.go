package tracker

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/satwatch/satwatch-service/types"
)

// NotificationChecker scans upcoming passes for ones worth alerting on
// and hands them to the Notifier. Filtering happens here; delivery is the
// Notifier's concern.
type NotificationChecker struct {
	logger   types.Logger
	tracker  *Tracker
	notifier types.Notifier
	config   *types.NotificationsConfig
	now      func() time.Time
}

func NewNotificationChecker(logger types.Logger, tracker *Tracker, notifier types.Notifier, config *types.NotificationsConfig) *NotificationChecker {
	if config == nil {
		config = &types.NotificationsConfig{}
	}

	return &NotificationChecker{
		logger:   logger,
		tracker:  tracker,
		notifier: notifier,
		config:   config,
		now:      time.Now,
	}
}

// CheckUpcomingPasses predicts passes for the configured observer and
// notifies for each pass that clears the filters and starts within the
// advance-notice window. A failed delivery is logged and does not stop
// the remaining notifications.
func (n *NotificationChecker) CheckUpcomingPasses(ctx context.Context) error {
	if n.notifier == nil {
		n.logger.Debug("No notifier configured, skipping notification check")
		return nil
	}

	query := n.tracker.ObserverQuery()
	if n.config.MinElevation > 0 {
		query.MinElevation = n.config.MinElevation
	}

	passes, err := n.tracker.PredictPasses(ctx, query)
	if err != nil {
		return types.WrapError(err, "notification check")
	}

	now := n.now()
	notified := 0

	for _, pass := range passes {
		if !n.shouldNotify(pass, now) {
			continue
		}

		if err := n.notifier.NotifyUpcomingPass(ctx, pass); err != nil {
			n.logger.Warn("Failed to deliver pass notification",
				zap.String("satellite", pass.Satellite),
				zap.Error(err))
			continue
		}
		notified++
	}

	n.logger.Info("Notification check completed",
		zap.Int("passes", len(passes)),
		zap.Int("notified", notified))

	return nil
}

func (n *NotificationChecker) shouldNotify(pass types.Pass, now time.Time) bool {
	if pass.Altitude < n.config.MinElevation {
		return false
	}

	// Only passes starting within the advance-notice window are
	// actionable; anything further out gets picked up by a later check.
	if n.config.AdvanceNotice > 0 {
		if pass.Time.Before(now) || pass.Time.After(now.Add(n.config.AdvanceNotice)) {
			return false
		}
	}

	for _, pattern := range n.config.ExcludedPatterns {
		if pattern != "" && strings.Contains(pass.Satellite, pattern) {
			return false
		}
	}

	return true
}
