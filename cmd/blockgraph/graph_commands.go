package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/brojonat/blockgraph/service/analyzer"
	"github.com/brojonat/blockgraph/service/filter"
	"github.com/brojonat/blockgraph/service/graphia"
	"github.com/brojonat/blockgraph/service/metrics"
	natspkg "github.com/brojonat/blockgraph/service/nats"
	"github.com/brojonat/blockgraph/service/solana"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/urfave/cli/v2"
)

// graphCommand fetches one block and writes its conflict graph.
func graphCommand() *cli.Command {
	return &cli.Command{
		Name:  "graph",
		Usage: "Build the conflict graph of a block and write it as Graphia JSON",
		Description: `Fetch a block, insert its transactions into the conflict graph in block order,
drain it wave by wave and write the resulting document.

Vote transactions are skipped. Without --verbose only the edges that freed their
target are written; with it every dependency edge is.

Examples:
  blockgraph graph --slot 250000000 --output graph.json
  blockgraph graph --output - --priority fee --summary --exclude-jq '.failed'`,
		Flags: []cli.Flag{
			&cli.Uint64Flag{
				Name:  "slot",
				Usage: "Slot to analyze (0 = latest)",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output file (- for stdout)",
				Value:   "graph.json",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Write every dependency edge, not only the resolving ones",
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
			},
			&cli.BoolFlag{
				Name:  "summary",
				Usage: "Print a per-wave summary table",
			},
			&cli.StringFlag{
				Name:    "pushgateway",
				Usage:   "Prometheus Pushgateway URL to push run metrics to",
				EnvVars: []string{"PUSHGATEWAY_URL"},
			},
		},
		Action: func(c *cli.Context) error {
			logger := commandLogger(c)
			registry := prometheus.NewRegistry()
			m := metrics.NewMetrics(registry)

			fetcher, err := newBlockClient(c, m, logger)
			if err != nil {
				return err
			}

			priority, err := analyzer.ParsePriority(c.String("priority"))
			if err != nil {
				return err
			}

			f, err := filter.New(filter.Options{
				IncludeVotes: c.Bool("include-votes"),
				ExcludeJQ:    c.StringSlice("exclude-jq"),
			}, logger)
			if err != nil {
				return err
			}

			ctx := c.Context
			res, err := analyzer.New(fetcher, f, m, logger).Analyze(ctx, analyzer.Request{
				Slot:     c.Uint64("slot"),
				Verbose:  c.Bool("verbose"),
				Priority: priority,
			})
			if err != nil {
				return err
			}

			output := c.String("output")
			summaryOut := c.App.Writer
			if output == "-" {
				if err := graphia.Write(c.App.Writer, res.Document); err != nil {
					return err
				}
				summaryOut = c.App.ErrWriter
			} else {
				if err := graphia.WriteFile(output, res.Document); err != nil {
					return err
				}
				logger.Info("wrote graph", "path", output, "slot", res.Slot)
			}

			if c.Bool("summary") {
				renderSummary(summaryOut, res)
			}

			if c.Bool("publish") {
				if err := publishResult(ctx, c.String("nats-url"), res, m, logger); err != nil {
					return err
				}
			}

			if url := c.String("pushgateway"); url != "" {
				if err := pushMetrics(url, registry); err != nil {
					// Metrics are best effort; the graph is already written.
					logger.Warn("failed to push metrics", "url", url, "error", err)
				}
			}

			return nil
		},
	}
}

// newBlockClient builds the Solana block client from the global flags.
func newBlockClient(c *cli.Context, m *metrics.Metrics, logger *slog.Logger) (*solana.Client, error) {
	endpoint, err := solana.SelectRandomEndpoint(splitList(c.String("rpc-url")))
	if err != nil {
		return nil, err
	}

	commitment := rpc.CommitmentType(c.String("commitment"))
	switch commitment {
	case rpc.CommitmentFinalized, rpc.CommitmentConfirmed:
	default:
		return nil, fmt.Errorf("invalid commitment %q (must be finalized or confirmed)", commitment)
	}

	label := solana.EndpointLabel(endpoint)
	logger.Debug("using solana endpoint", "endpoint", label, "commitment", commitment)

	return solana.NewClient(
		solana.NewRPCClient(endpoint),
		label,
		m,
		logger,
		solana.WithCommitment(commitment),
		solana.WithMaxAttempts(c.Int("rpc-max-attempts")),
		solana.WithTimeout(c.Duration("rpc-timeout")),
	), nil
}

// renderSummary prints one row per wave plus a totals footer.
func renderSummary(w io.Writer, res *analyzer.Result) {
	s := res.Stats
	fmt.Fprintf(w, "slot %d: %d transactions, %d included, %d excluded, %d edges (%d resolving), %d waves\n",
		res.Slot, s.Transactions, s.Included, s.Excluded, s.Edges, s.ResolvingEdges, s.Waves)

	table := tablewriter.NewWriter(w)
	table.SetBorder(false)
	table.SetHeader([]string{"Depth", "Transactions", "Fee", "Compute"})

	var txns int
	var fee, compute uint64
	for _, wave := range res.Waves {
		table.Append([]string{
			strconv.Itoa(wave.Depth),
			strconv.Itoa(wave.Transactions),
			strconv.FormatUint(wave.Fee, 10),
			strconv.FormatUint(wave.Compute, 10),
		})
		txns += wave.Transactions
		fee += wave.Fee
		compute += wave.Compute
	}
	table.SetFooter([]string{
		"Total",
		strconv.Itoa(txns),
		strconv.FormatUint(fee, 10),
		strconv.FormatUint(compute, 10),
	})
	table.Render()
}

func publishResult(ctx context.Context, natsURL string, res *analyzer.Result, m *metrics.Metrics, logger *slog.Logger) error {
	publisher, err := natspkg.NewPublisher(natsURL, m, logger)
	if err != nil {
		return err
	}
	defer publisher.Close()

	if err := publisher.PublishGraph(ctx, natspkg.FromResult(res)); err != nil {
		return err
	}
	logger.Info("published graph", "subject", natspkg.Subject(res.Slot))
	return nil
}

// pushMetrics replaces the metrics of the previous run in the blockgraph job.
func pushMetrics(url string, registry *prometheus.Registry) error {
	return push.New(url, "blockgraph").
		Gatherer(registry).
		Push()
}
