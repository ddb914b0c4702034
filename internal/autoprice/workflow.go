package autoprice

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const WorkflowName = "AutoPriceWorkflow"

func AutoPriceWorkflow(ctx workflow.Context) (Result, error) {
	logger := workflow.GetLogger(ctx)

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    5 * time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    3,
		},
	})

	var a *Activities
	var result Result
	if err := workflow.ExecuteActivity(ctx, a.RecomputeAutoPrices).Get(ctx, &result); err != nil {
		logger.Error("auto price pass failed", "error", err)
		return Result{}, err
	}

	logger.Info("auto price pass finished", "updated", result.Updated)
	return result, nil
}
