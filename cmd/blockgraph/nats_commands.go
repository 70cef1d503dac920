package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	natspkg "github.com/brojonat/blockgraph/service/nats"
	"github.com/urfave/cli/v2"
)

// subscribeCommand streams published graph events.
func subscribeCommand() *cli.Command {
	return &cli.Command{
		Name:  "subscribe",
		Usage: "Subscribe to published graph events",
		Description: `Stream graph events published to NATS JetStream.

Without --slot, new events for every slot are printed as they arrive.
With --slot, the last event published for that slot is printed.
Events are published to the subject: graphs.{slot}

Example:
  blockgraph nats subscribe --json`,
		Flags: []cli.Flag{
			&cli.Uint64Flag{
				Name:  "slot",
				Usage: "Only events for this slot (0 = all new events)",
			},
			&cli.BoolFlag{
				Name:  "document",
				Usage: "Include the graph document in JSON output",
			},
		},
		Action: func(c *cli.Context) error {
			logger := commandLogger(c)
			natsURL := c.String("nats-url")
			slot := c.Uint64("slot")
			jsonOutput := c.Bool("json")

			sub, err := natspkg.NewSubscriber(natsURL, logger)
			if err != nil {
				return err
			}
			defer sub.Close()

			// Setup signal handling for graceful shutdown
			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			if !jsonOutput {
				fmt.Fprintf(c.App.Writer, "📡 Subscribing to: %s\n", natspkg.ConsumerConfig(slot).FilterSubject)
				fmt.Fprintf(c.App.Writer, "   NATS: %s\n", natsURL)
				fmt.Fprintf(c.App.Writer, "\nWaiting for graphs... (Ctrl-C to exit)\n\n")
			}

			count := 0
			err = sub.Subscribe(ctx, slot, func(event *natspkg.GraphEvent) error {
				count++
				if jsonOutput {
					if !c.Bool("document") {
						event.Document = nil
					}
					return json.NewEncoder(c.App.Writer).Encode(event)
				}
				printGraphEvent(c, count, event)
				return nil
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}

			if !jsonOutput {
				fmt.Fprintf(c.App.Writer, "\nReceived %d graph(s)\n", count)
			}
			return nil
		},
	}
}

func printGraphEvent(c *cli.Context, n int, event *natspkg.GraphEvent) {
	s := event.Stats
	fmt.Fprintf(c.App.Writer, "✅ Graph received (#%d)\n", n)
	fmt.Fprintf(c.App.Writer, "   Slot: %d\n", event.Slot)
	fmt.Fprintf(c.App.Writer, "   Blockhash: %s\n", event.Blockhash)
	fmt.Fprintf(c.App.Writer, "   Transactions: %d included, %d excluded\n", s.Included, s.Excluded)
	fmt.Fprintf(c.App.Writer, "   Edges: %d (%d resolving)\n", s.Edges, s.ResolvingEdges)
	fmt.Fprintf(c.App.Writer, "   Waves: %d (max width %d)\n", s.Waves, s.MaxWaveWidth)
	fmt.Fprintf(c.App.Writer, "   Published: %s\n\n", event.PublishedAt.Format(time.RFC3339))
}
