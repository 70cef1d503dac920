package temporal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.temporal.io/sdk/client"
)

// Client is a production implementation of Scheduler that talks to Temporal.
type Client struct {
	client    client.Client
	taskQueue string
	logger    *slog.Logger
}

// NewClient creates a new Temporal client.
func NewClient(host, namespace, taskQueue string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("connecting to temporal",
		"host", host,
		"namespace", namespace,
		"task_queue", taskQueue,
	)

	c, err := client.Dial(client.Options{
		HostPort:  host,
		Namespace: namespace,
		Logger:    newTemporalLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Temporal: %w", err)
	}

	logger.Info("connected to temporal successfully")

	return &Client{
		client:    c,
		taskQueue: taskQueue,
		logger:    logger,
	}, nil
}

// StartAnalyzeBlock starts an AnalyzeBlockWorkflow and returns its IDs.
// Analyses of a fixed slot share a workflow ID so a duplicate start is rejected
// while one is running.
func (c *Client) StartAnalyzeBlock(ctx context.Context, input AnalyzeBlockInput) (string, string, error) {
	opts := client.StartWorkflowOptions{
		ID:        workflowID(input.Slot),
		TaskQueue: c.taskQueue,
	}

	run, err := c.client.ExecuteWorkflow(ctx, opts, AnalyzeBlockWorkflow, input)
	if err != nil {
		c.logger.Error("failed to start workflow",
			"slot", input.Slot,
			"error", err,
		)
		return "", "", fmt.Errorf("failed to start workflow: %w", err)
	}

	c.logger.Info("started analyze block workflow",
		"slot", input.Slot,
		"workflow_id", run.GetID(),
		"run_id", run.GetRunID(),
	)

	return run.GetID(), run.GetRunID(), nil
}

// AwaitAnalyzeBlock blocks until the workflow run finishes.
func (c *Client) AwaitAnalyzeBlock(ctx context.Context, workflowID, runID string) (*AnalyzeBlockResult, error) {
	var result AnalyzeBlockResult
	if err := c.client.GetWorkflow(ctx, workflowID, runID).Get(ctx, &result); err != nil {
		return nil, fmt.Errorf("workflow %s failed: %w", workflowID, err)
	}
	return &result, nil
}

// UpsertWatchSchedule creates or updates a schedule that analyzes the latest
// block on the given interval.
func (c *Client) UpsertWatchSchedule(ctx context.Context, name string, interval time.Duration, input AnalyzeBlockInput) error {
	id := scheduleID(name)
	input.Slot = 0

	c.logger.Debug("upserting watch schedule",
		"schedule_id", id,
		"interval", interval,
	)

	handle := c.client.ScheduleClient().GetHandle(ctx, id)
	if _, err := handle.Describe(ctx); err != nil {
		c.logger.Debug("schedule not found, creating new one",
			"schedule_id", id,
			"error", err,
		)
		return c.createWatchSchedule(ctx, id, interval, input)
	}

	err := handle.Update(ctx, client.ScheduleUpdateOptions{
		DoUpdate: func(in client.ScheduleUpdateInput) (*client.ScheduleUpdate, error) {
			in.Description.Schedule.Spec.Intervals = []client.ScheduleIntervalSpec{
				{Every: interval},
			}
			in.Description.Schedule.Action = c.watchAction(id, input)
			return &client.ScheduleUpdate{
				Schedule: &in.Description.Schedule,
			}, nil
		},
	})
	if err != nil {
		c.logger.Error("failed to update schedule",
			"schedule_id", id,
			"error", err,
		)
		return fmt.Errorf("failed to update schedule %q: %w", id, err)
	}

	c.logger.Info("watch schedule updated", "schedule_id", id, "interval", interval)
	return nil
}

func (c *Client) createWatchSchedule(ctx context.Context, id string, interval time.Duration, input AnalyzeBlockInput) error {
	_, err := c.client.ScheduleClient().Create(ctx, client.ScheduleOptions{
		ID: id,
		Spec: client.ScheduleSpec{
			Intervals: []client.ScheduleIntervalSpec{{Every: interval}},
		},
		Action: c.watchAction(id, input),
		Memo: map[string]interface{}{
			"verbose":    input.Verbose,
			"priority":   input.Priority,
			"publish":    input.Publish,
			"created_by": "blockgraph",
		},
	})
	if err != nil {
		c.logger.Error("failed to create schedule",
			"schedule_id", id,
			"error", err,
		)
		return fmt.Errorf("failed to create schedule %q: %w", id, err)
	}

	c.logger.Info("watch schedule created", "schedule_id", id, "interval", interval)
	return nil
}

func (c *Client) watchAction(id string, input AnalyzeBlockInput) *client.ScheduleWorkflowAction {
	return &client.ScheduleWorkflowAction{
		ID:        id + "-run",
		Workflow:  "AnalyzeBlockWorkflow",
		TaskQueue: c.taskQueue,
		Args:      []interface{}{input},
	}
}

// DeleteWatchSchedule deletes a watch schedule.
func (c *Client) DeleteWatchSchedule(ctx context.Context, name string) error {
	id := scheduleID(name)

	handle := c.client.ScheduleClient().GetHandle(ctx, id)
	if err := handle.Delete(ctx); err != nil {
		c.logger.Error("failed to delete schedule",
			"schedule_id", id,
			"error", err,
		)
		return fmt.Errorf("failed to delete schedule %q: %w", id, err)
	}

	c.logger.Info("watch schedule deleted", "schedule_id", id)
	return nil
}

// SDKClient returns the underlying Temporal SDK client for direct workflow operations.
func (c *Client) SDKClient() client.Client {
	return c.client
}

// TaskQueue returns the configured task queue for this client.
func (c *Client) TaskQueue() string {
	return c.taskQueue
}

// Close closes the Temporal client connection.
func (c *Client) Close() {
	c.logger.Info("closing temporal client")
	c.client.Close()
}

// temporalLogger adapts slog.Logger to Temporal's logger interface.
type temporalLogger struct {
	logger *slog.Logger
}

func newTemporalLogger(logger *slog.Logger) *temporalLogger {
	return &temporalLogger{logger: logger}
}

func (l *temporalLogger) Debug(msg string, keyvals ...interface{}) {
	l.logger.Debug(msg, keyvals...)
}

func (l *temporalLogger) Info(msg string, keyvals ...interface{}) {
	l.logger.Info(msg, keyvals...)
}

func (l *temporalLogger) Warn(msg string, keyvals ...interface{}) {
	l.logger.Warn(msg, keyvals...)
}

func (l *temporalLogger) Error(msg string, keyvals ...interface{}) {
	l.logger.Error(msg, keyvals...)
}
