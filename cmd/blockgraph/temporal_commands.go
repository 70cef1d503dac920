package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/blockgraph/service/analyzer"
	"github.com/brojonat/blockgraph/service/temporal"
	"github.com/urfave/cli/v2"
)

// awaiter is implemented by schedulers that can wait for a started run.
type awaiter interface {
	AwaitAnalyzeBlock(ctx context.Context, workflowID, runID string) (*temporal.AnalyzeBlockResult, error)
}

// newScheduler connects to Temporal. Tests replace it with a mock.
var newScheduler = func(c *cli.Context, logger *slog.Logger) (temporal.Scheduler, func(), error) {
	client, err := temporal.NewClient(
		c.String("temporal-host"),
		c.String("temporal-namespace"),
		c.String("task-queue"),
		logger,
	)
	if err != nil {
		return nil, nil, err
	}
	return client, client.Close, nil
}

// analysisFlags are shared by analyze and watch.
func analysisFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "Keep every dependency edge, not only the resolving ones",
		},
		&cli.StringFlag{
			Name:  "priority",
			Usage: "Order within a wave (index or fee)",
			Value: string(analyzer.PriorityIndex),
		},
		&cli.StringSliceFlag{
			Name:  "exclude-jq",
			Usage: "jq expression over the transaction summary; truthy results are excluded (repeatable)",
		},
		&cli.BoolFlag{
			Name:  "include-votes",
			Usage: "Keep vote transactions in the graph",
		},
		&cli.BoolFlag{
			Name:  "publish",
			Usage: "Publish the result to NATS JetStream",
			Value: true,
		},
	}
}

func analysisInput(c *cli.Context) (temporal.AnalyzeBlockInput, error) {
	priority, err := analyzer.ParsePriority(c.String("priority"))
	if err != nil {
		return temporal.AnalyzeBlockInput{}, err
	}
	return temporal.AnalyzeBlockInput{
		Slot:         c.Uint64("slot"),
		Verbose:      c.Bool("verbose"),
		Priority:     string(priority),
		ExcludeJQ:    c.StringSlice("exclude-jq"),
		IncludeVotes: c.Bool("include-votes"),
		Publish:      c.Bool("publish"),
	}, nil
}

// analyzeCommand starts an AnalyzeBlockWorkflow.
func analyzeCommand() *cli.Command {
	flags := append([]cli.Flag{
		&cli.Uint64Flag{
			Name:  "slot",
			Usage: "Slot to analyze (0 = latest)",
		},
		&cli.BoolFlag{
			Name:  "wait",
			Usage: "Wait for the workflow to finish and print its result",
		},
	}, analysisFlags()...)

	return &cli.Command{
		Name:  "analyze",
		Usage: "Analyze a block on the Temporal worker",
		Description: `Start an AnalyzeBlockWorkflow. The worker fetches the block, builds the
conflict graph and publishes it to NATS unless --publish=false.

Example:
  blockgraph temporal analyze --slot 250000000 --wait`,
		Flags: flags,
		Action: func(c *cli.Context) error {
			logger := commandLogger(c)

			input, err := analysisInput(c)
			if err != nil {
				return err
			}

			scheduler, closeFn, err := newScheduler(c, logger)
			if err != nil {
				return err
			}
			defer closeFn()

			workflowID, runID, err := scheduler.StartAnalyzeBlock(c.Context, input)
			if err != nil {
				return err
			}

			if !c.Bool("wait") {
				if c.Bool("json") {
					return json.NewEncoder(c.App.Writer).Encode(map[string]string{
						"workflow_id": workflowID,
						"run_id":      runID,
					})
				}
				fmt.Fprintf(c.App.Writer, "Started workflow %s (run %s)\n", workflowID, runID)
				return nil
			}

			w, ok := scheduler.(awaiter)
			if !ok {
				return fmt.Errorf("scheduler cannot wait for workflow results")
			}
			result, err := w.AwaitAnalyzeBlock(c.Context, workflowID, runID)
			if err != nil {
				return err
			}
			return printAnalyzeResult(c, result)
		},
	}
}

func printAnalyzeResult(c *cli.Context, result *temporal.AnalyzeBlockResult) error {
	if c.Bool("json") {
		return json.NewEncoder(c.App.Writer).Encode(result)
	}

	s := result.Stats
	fmt.Fprintf(c.App.Writer, "Slot:         %d\n", result.Slot)
	fmt.Fprintf(c.App.Writer, "Transactions: %d (%d included, %d excluded)\n", s.Transactions, s.Included, s.Excluded)
	fmt.Fprintf(c.App.Writer, "Edges:        %d (%d resolving)\n", s.Edges, s.ResolvingEdges)
	fmt.Fprintf(c.App.Writer, "Waves:        %d (max width %d)\n", s.Waves, s.MaxWaveWidth)
	if result.Published {
		fmt.Fprintf(c.App.Writer, "Published:    %s\n", result.Subject)
	}
	return nil
}

// watchCommand creates or updates a schedule that analyzes the latest block.
func watchCommand() *cli.Command {
	flags := append([]cli.Flag{
		&cli.StringFlag{
			Name:  "name",
			Usage: "Schedule name",
			Value: "latest",
		},
		&cli.DurationFlag{
			Name:    "interval",
			Usage:   "How often to analyze the latest block",
			EnvVars: []string{"WATCH_INTERVAL"},
			Value:   30 * time.Second,
		},
	}, analysisFlags()...)

	return &cli.Command{
		Name:  "watch",
		Usage: "Analyze the latest block on a Temporal schedule",
		Description: `Create or update a Temporal schedule that runs AnalyzeBlockWorkflow for the
latest block on every interval.

Example:
  blockgraph temporal watch --interval 1m --priority fee`,
		Flags: flags,
		Action: func(c *cli.Context) error {
			logger := commandLogger(c)

			interval := c.Duration("interval")
			if interval < time.Second {
				return fmt.Errorf("interval must be at least 1s, got %s", interval)
			}

			input, err := analysisInput(c)
			if err != nil {
				return err
			}

			scheduler, closeFn, err := newScheduler(c, logger)
			if err != nil {
				return err
			}
			defer closeFn()

			name := c.String("name")
			if err := scheduler.UpsertWatchSchedule(c.Context, name, interval, input); err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "Watching latest block every %s (schedule %q)\n", interval, name)
			return nil
		},
	}
}

// unwatchCommand deletes a watch schedule.
func unwatchCommand() *cli.Command {
	return &cli.Command{
		Name:  "unwatch",
		Usage: "Delete a watch schedule",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "name",
				Usage: "Schedule name",
				Value: "latest",
			},
		},
		Action: func(c *cli.Context) error {
			logger := commandLogger(c)

			scheduler, closeFn, err := newScheduler(c, logger)
			if err != nil {
				return err
			}
			defer closeFn()

			name := c.String("name")
			if err := scheduler.DeleteWatchSchedule(c.Context, name); err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "Deleted schedule %q\n", name)
			return nil
		},
	}
}
