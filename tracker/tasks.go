package tracker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/satwatch/satwatch-service/types"
)

const (
	JobTLEUpdate         = "tle_update"
	JobPredictionUpdate  = "prediction_update"
	JobNotificationCheck = "notification_check"

	// Re-fire floors keep a misconfigured cron from hammering the
	// upstream or the notifier.
	tleUpdateMinInterval         = 5 * time.Minute
	predictionUpdateMinInterval  = 10 * time.Minute
	notificationCheckMinInterval = 5 * time.Minute

	taskTimeout = 5 * time.Minute
)

// RegisterJobs builds the scheduler bindings for the three background
// tasks: forced TLE refresh, prediction cache warming for the configured
// observer, and the notification check.
func RegisterJobs(logger types.Logger, tracker *Tracker, checker *NotificationChecker, schedule *types.ScheduleConfig) []types.JobBinding {
	return []types.JobBinding{
		{
			Name:        JobTLEUpdate,
			Cron:        schedule.TLEUpdateCron,
			MinInterval: tleUpdateMinInterval,
			Task: func() error {
				ctx, cancel := context.WithTimeout(context.Background(), taskTimeout)
				defer cancel()

				satellites, err := tracker.UpdateTLEData(ctx, true)
				if err != nil {
					return err
				}
				logger.Info("TLE update task completed",
					zap.Int("satellites", len(satellites)))
				return nil
			},
		},
		{
			Name:        JobPredictionUpdate,
			Cron:        schedule.PredictionUpdateCron,
			MinInterval: predictionUpdateMinInterval,
			Task: func() error {
				ctx, cancel := context.WithTimeout(context.Background(), taskTimeout)
				defer cancel()

				passes, err := tracker.PredictPasses(ctx, tracker.ObserverQuery())
				if err != nil {
					return err
				}
				logger.Info("Prediction update task completed",
					zap.Int("passes", len(passes)))
				return nil
			},
		},
		{
			Name:        JobNotificationCheck,
			Cron:        schedule.NotificationCheckCron,
			MinInterval: notificationCheckMinInterval,
			Task: func() error {
				ctx, cancel := context.WithTimeout(context.Background(), taskTimeout)
				defer cancel()

				return checker.CheckUpcomingPasses(ctx)
			},
		},
	}
}
