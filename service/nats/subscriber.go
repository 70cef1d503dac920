package nats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Subscriber streams graph events from the GRAPHS stream.
type Subscriber struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	logger *slog.Logger
}

// NewSubscriber connects to NATS for consuming graph events.
func NewSubscriber(natsURL string, logger *slog.Logger) (*Subscriber, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("blockgraph-subscriber"),
		nats.Timeout(10*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	return &Subscriber{nc: nc, js: js, logger: logger}, nil
}

// ConsumerConfig returns the ephemeral consumer for slot. Slot 0 follows new
// graphs of every slot; a specific slot replays its latest graph first.
func ConsumerConfig(slot uint64) jetstream.ConsumerConfig {
	cfg := jetstream.ConsumerConfig{
		FilterSubject: StreamSubjects,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverNewPolicy,
	}
	if slot != 0 {
		cfg.FilterSubject = Subject(slot)
		cfg.DeliverPolicy = jetstream.DeliverLastPerSubjectPolicy
	}
	return cfg
}

// Subscribe calls handle for every graph event until ctx is done or handle
// returns an error. Malformed messages are logged and acknowledged.
func (s *Subscriber) Subscribe(ctx context.Context, slot uint64, handle func(*GraphEvent) error) error {
	cons, err := s.js.CreateOrUpdateConsumer(ctx, StreamName, ConsumerConfig(slot))
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	msgChan := make(chan jetstream.Msg, 10)
	cc, err := cons.Consume(func(msg jetstream.Msg) {
		select {
		case msgChan <- msg:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}
	defer cc.Stop()

	for {
		select {
		case msg := <-msgChan:
			event, err := DecodeGraphEvent(msg.Data())
			if err != nil {
				s.logger.Warn("skipping malformed graph event",
					"subject", msg.Subject(),
					"error", err,
				)
				_ = msg.Ack()
				continue
			}
			if err := handle(event); err != nil {
				_ = msg.Nak()
				return err
			}
			_ = msg.Ack()

		case <-ctx.Done():
			return nil
		}
	}
}

// Close closes the connection to NATS.
func (s *Subscriber) Close() error {
	if s.nc != nil {
		s.nc.Close()
	}
	return nil
}
