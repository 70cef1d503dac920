package main

import (
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "blockgraph",
		Usage: "Solana block transaction conflict-graph scheduler",
		Description: `Builds the read/write conflict graph of the transactions in a Solana block,
drains it in waves of mutually independent transactions and exports the
result as a Graphia JSON document.

Run locally with "graph", or hand the work to a Temporal worker with "analyze".`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			graphCommand(),
			// Temporal commands
			{
				Name:  "temporal",
				Usage: "Run analyses on the Temporal worker",
				Subcommands: []*cli.Command{
					analyzeCommand(),
					watchCommand(),
					unwatchCommand(),
				},
			},
			// NATS graph streaming commands
			{
				Name:  "nats",
				Usage: "NATS graph streaming commands",
				Subcommands: []*cli.Command{
					subscribeCommand(),
				},
			},
			versionCommand(),
		},
		// Global flags available to all commands
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "rpc-url",
				Usage:   "Solana RPC URL (comma-separated list picks one at random)",
				EnvVars: []string{"SOLANA_RPC_URL"},
				Value:   "https://api.mainnet-beta.solana.com",
			},
			&cli.StringFlag{
				Name:    "commitment",
				Usage:   "Commitment level (finalized or confirmed)",
				EnvVars: []string{"SOLANA_COMMITMENT"},
				Value:   "finalized",
			},
			&cli.IntFlag{
				Name:    "rpc-max-attempts",
				Usage:   "Attempts per block fetch",
				EnvVars: []string{"RPC_MAX_ATTEMPTS"},
				Value:   3,
			},
			&cli.DurationFlag{
				Name:    "rpc-timeout",
				Usage:   "Timeout per RPC attempt",
				EnvVars: []string{"RPC_TIMEOUT"},
				Value:   30 * time.Second,
			},
			&cli.StringFlag{
				Name:    "nats-url",
				Usage:   "NATS server URL",
				EnvVars: []string{"NATS_URL"},
				Value:   "nats://localhost:4222",
			},
			&cli.StringFlag{
				Name:    "temporal-host",
				Usage:   "Temporal server address",
				EnvVars: []string{"TEMPORAL_HOST"},
				Value:   "localhost:7233",
			},
			&cli.StringFlag{
				Name:    "temporal-namespace",
				Usage:   "Temporal namespace",
				EnvVars: []string{"TEMPORAL_NAMESPACE"},
				Value:   "default",
			},
			&cli.StringFlag{
				Name:    "task-queue",
				Usage:   "Temporal task queue",
				EnvVars: []string{"TEMPORAL_TASK_QUEUE"},
				Value:   "blockgraph-analysis",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"LOG_LEVEL"},
				Value:   "info",
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output in JSON format",
			},
		},
	}
}

// versionCommand prints build information.
func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print version information",
		Action: func(c *cli.Context) error {
			fmt.Fprintf(c.App.Writer, "blockgraph %s (commit: %s, built: %s)\n", version, commit, date)
			return nil
		},
	}
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(w io.Writer, levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	return slog.New(slog.NewJSONHandler(w, opts))
}

// commandLogger builds the logger for a command from the global flags.
func commandLogger(c *cli.Context) *slog.Logger {
	return setupLogger(c.App.ErrWriter, c.String("log-level"))
}

// splitList splits a comma-separated flag value, dropping empty entries.
func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
