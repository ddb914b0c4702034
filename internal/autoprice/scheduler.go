package autoprice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Domenick1991/agrirent/config"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
)

const cronWorkflowID = "agrirent-autoprice-cron"

// WorkflowStarter is the part of client.Client the scheduler needs.
type WorkflowStarter interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
}

func Dial(cfg config.TemporalConfig) (client.Client, error) {
	c, err := client.Dial(client.Options{
		HostPort:  cfg.Address,
		Namespace: cfg.Namespace,
	})
	if err != nil {
		return nil, fmt.Errorf("dial temporal %s: %w", cfg.Address, err)
	}
	return c, nil
}

// NewWorker registers the workflow and its activity on the task queue.
func NewWorker(c client.Client, cfg config.TemporalConfig, activities *Activities) worker.Worker {
	w := worker.New(c, cfg.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize: 1,
	})
	w.RegisterWorkflowWithOptions(AutoPriceWorkflow, workflow.RegisterOptions{Name: WorkflowName})
	w.RegisterActivity(activities)
	return w
}

// StartCron makes sure the cron workflow exists. A run that is already
// scheduled is left alone.
func StartCron(ctx context.Context, starter WorkflowStarter, cfg config.TemporalConfig, logger *slog.Logger) error {
	run, err := starter.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:                                       cronWorkflowID,
		TaskQueue:                                cfg.TaskQueue,
		CronSchedule:                             cfg.CronSchedule,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}, WorkflowName)
	if err != nil {
		var started *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &started) {
			logger.Info("auto price cron already scheduled", slog.String("workflow_id", cronWorkflowID))
			return nil
		}
		return fmt.Errorf("start auto price cron: %w", err)
	}

	logger.Info("auto price cron scheduled",
		slog.String("workflow_id", run.GetID()),
		slog.String("run_id", run.GetRunID()),
		slog.String("schedule", cfg.CronSchedule))
	return nil
}

// RunTicker is the fallback scheduler used without Temporal. It blocks until
// ctx is done.
func RunTicker(ctx context.Context, interval time.Duration, activities *Activities, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result, err := activities.RecomputeAutoPrices(ctx)
			if err != nil {
				logger.Error("auto price pass failed", slog.Any("error", err))
				continue
			}
			logger.Info("auto price pass finished", slog.Int("updated", result.Updated))
		}
	}
}
