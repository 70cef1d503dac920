package temporal

import (
	"fmt"
	"time"

	temporalsdk "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

var a *Activities // for type-safe activity invocation

// AnalyzeBlockWorkflow fetches a block, builds and drains its conflict graph
// and optionally publishes the result.
//
// The workflow performs these steps:
// 1. Fetch the block from Solana RPC (FetchBlock activity)
// 2. Build the graph and schedule (BuildGraph activity)
// 3. Publish the graph to NATS when requested (PublishGraph activity)
func AnalyzeBlockWorkflow(ctx workflow.Context, input AnalyzeBlockInput) (*AnalyzeBlockResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("AnalyzeBlockWorkflow started", "slot", input.Slot)

	result := &AnalyzeBlockResult{Slot: input.Slot}

	activityOptions := workflow.ActivityOptions{
		StartToCloseTimeout: 300 * time.Second,
		RetryPolicy: &temporalsdk.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, activityOptions)

	// Step 1: Fetch the block
	var fetchResult *FetchBlockResult
	err := workflow.ExecuteActivity(ctx, a.FetchBlock, FetchBlockInput{Slot: input.Slot}).Get(ctx, &fetchResult)
	if err != nil {
		errMsg := fmt.Sprintf("failed to fetch block: %v", err)
		result.Error = &errMsg
		return result, fmt.Errorf("failed to fetch block: %w", err)
	}
	result.Slot = fetchResult.Block.Slot

	// Step 2: Build the graph. Building is deterministic so a retry only
	// helps with worker crashes.
	buildInput := BuildGraphInput{
		Block:        fetchResult.Block,
		Verbose:      input.Verbose,
		Priority:     input.Priority,
		ExcludeJQ:    input.ExcludeJQ,
		IncludeVotes: input.IncludeVotes,
	}
	var buildResult *BuildGraphResult
	err = workflow.ExecuteActivity(ctx, a.BuildGraph, buildInput).Get(ctx, &buildResult)
	if err != nil {
		errMsg := fmt.Sprintf("failed to build graph: %v", err)
		result.Error = &errMsg
		return result, fmt.Errorf("failed to build graph: %w", err)
	}
	result.Stats = buildResult.Result.Stats

	logger.Info("built graph",
		"slot", result.Slot,
		"included", result.Stats.Included,
		"edges", result.Stats.Edges,
		"waves", result.Stats.Waves,
	)

	if !input.Publish {
		return result, nil
	}

	// Step 3: Publish
	var publishResult *PublishGraphResult
	err = workflow.ExecuteActivity(ctx, a.PublishGraph, PublishGraphInput{Result: buildResult.Result}).Get(ctx, &publishResult)
	if err != nil {
		errMsg := fmt.Sprintf("failed to publish graph: %v", err)
		result.Error = &errMsg
		return result, fmt.Errorf("failed to publish graph: %w", err)
	}
	result.Published = true
	result.Subject = publishResult.Subject

	logger.Info("AnalyzeBlockWorkflow completed successfully",
		"slot", result.Slot,
		"subject", result.Subject,
	)

	return result, nil
}
