package nats

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/brojonat/blockgraph/service/analyzer"
	"github.com/brojonat/blockgraph/service/graphia"
)

// GraphEvent is a block's conflict graph published to NATS.
// This is published to the subject "graphs.{slot}" in JetStream.
type GraphEvent struct {
	Slot      uint64 `json:"slot"`
	Blockhash string `json:"blockhash"`

	Stats    analyzer.Stats         `json:"stats"`
	Waves    []analyzer.WaveSummary `json:"waves"`
	Document *graphia.Document      `json:"document"`

	// Metadata
	PublishedAt time.Time `json:"published_at"`
}

// FromResult converts an analysis result to a GraphEvent for publishing.
func FromResult(res *analyzer.Result) *GraphEvent {
	return &GraphEvent{
		Slot:        res.Slot,
		Blockhash:   res.Blockhash,
		Stats:       res.Stats,
		Waves:       res.Waves,
		Document:    res.Document,
		PublishedAt: time.Now().UTC(),
	}
}

// Subject returns the subject a block's graph is published on.
func Subject(slot uint64) string {
	return fmt.Sprintf("%s.%d", SubjectPrefix, slot)
}

// DecodeGraphEvent parses a message payload.
func DecodeGraphEvent(data []byte) (*GraphEvent, error) {
	var event GraphEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal graph event: %w", err)
	}
	return &event, nil
}
