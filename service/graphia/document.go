// Package graphia renders a drained schedule as a Graphia JSON document.
package graphia

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/brojonat/blockgraph/service/priograph"
)

// Document is the top-level Graphia input object.
type Document struct {
	Graph Graph `json:"graph"`
}

// Graph holds the node and edge lists. Directed is always true.
type Graph struct {
	Directed bool   `json:"directed"`
	Edges    []Edge `json:"edges"`
	Nodes    []Node `json:"nodes"`
}

// Edge is a kept observation. ID is the observation counter, not a dense index.
type Edge struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
}

// Node is one scheduled transaction, identified by its block index.
type Node struct {
	ID       string       `json:"id"`
	Metadata NodeMetadata `json:"metadata"`
}

type NodeMetadata struct {
	Signature     string `json:"signature"`
	NumSignatures int    `json:"num_signatures"`
	Fee           uint64 `json:"fee"`
	Compute       uint64 `json:"compute"`
	Depth         int    `json:"depth"`
}

// NodeInfo supplies the transaction metadata for a node. Depth is filled in
// from the schedule and ignored here.
type NodeInfo func(id priograph.TxID) NodeMetadata

// Build converts a drained schedule into a document. Nodes are listed wave by
// wave in pop order; edges are the schedule's kept observations.
func Build(s *priograph.Schedule, verbose bool, info NodeInfo) *Document {
	kept := s.Kept(verbose)
	doc := &Document{Graph: Graph{
		Directed: true,
		Edges:    make([]Edge, 0, len(kept)),
		Nodes:    make([]Node, 0, s.Len()),
	}}

	for _, wave := range s.Waves {
		for _, id := range wave.Nodes {
			md := info(id)
			md.Depth = wave.Depth
			doc.Graph.Nodes = append(doc.Graph.Nodes, Node{
				ID:       formatID(id),
				Metadata: md,
			})
		}
	}

	for _, o := range kept {
		doc.Graph.Edges = append(doc.Graph.Edges, Edge{
			ID:     strconv.Itoa(o.ID),
			Source: formatID(o.Source),
			Target: formatID(o.Target),
		})
	}

	return doc
}

// Write encodes doc as a single JSON object.
func Write(w io.Writer, doc *Document) error {
	if err := json.NewEncoder(w).Encode(doc); err != nil {
		return fmt.Errorf("failed to encode graph document: %w", err)
	}
	return nil
}

// WriteFile creates or truncates path and writes doc to it.
func WriteFile(path string, doc *Document) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to open output file: %w", err)
	}
	if err := Write(f, doc); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close output file: %w", err)
	}
	return nil
}

// Read decodes a document written by Write.
func Read(r io.Reader) (*Document, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode graph document: %w", err)
	}
	return &doc, nil
}

func formatID(id priograph.TxID) string {
	return strconv.Itoa(int(id))
}
