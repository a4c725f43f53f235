// ABOUTME: Periodic housekeeping jobs on a cron scheduler
// ABOUTME: WAL checkpoints and sweeping of expired confirmation tokens
package runtime

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Job is a named periodic task
type Job struct {
	Name string
	// Spec is a cron spec such as "@every 5m"
	Spec string
	Run  func(ctx context.Context) error
}

// cronLogger adapts slog to cron.Logger
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}

// StartMaintenance schedules jobs and returns a stop function that waits
// for running jobs to finish
func StartMaintenance(ctx context.Context, jobs ...Job) (stop func(), err error) {
	logger := cronLogger{logger: slog.Default().With("component", "maintenance")}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	for _, job := range jobs {
		job := job
		if _, err := c.AddFunc(job.Spec, func() {
			if err := job.Run(ctx); err != nil {
				logger.Error(err, "maintenance job failed", "job", job.Name)
				return
			}
			logger.Info("maintenance job finished", "job", job.Name)
		}); err != nil {
			return nil, err
		}
	}

	c.Start()
	return func() { <-c.Stop().Done() }, nil
}

// CheckpointJob truncates the WAL every interval
func CheckpointJob(spec string, checkpoint func(ctx context.Context) error) Job {
	return Job{Name: "wal_checkpoint", Spec: spec, Run: checkpoint}
}

// SweepJob removes expired entries from a cache-backed store
func SweepJob(spec string, sweep func()) Job {
	return Job{Name: "token_sweep", Spec: spec, Run: func(context.Context) error {
		sweep()
		return nil
	}}
}
