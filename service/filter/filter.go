// Package filter decides which block transactions enter the conflict graph.
package filter

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/brojonat/blockgraph/service/solana"
	"github.com/itchyny/gojq"
)

// Exclusion reasons, used as metric labels.
const (
	ReasonVote = "vote"
	ReasonJQ   = "jq"
)

// Summary is the JSON view of a transaction that jq expressions run against.
type Summary struct {
	Index         int      `json:"index"`
	Signature     string   `json:"signature"`
	NumSignatures int      `json:"num_signatures"`
	Fee           uint64   `json:"fee"`
	Compute       uint64   `json:"compute"`
	Writable      []string `json:"writable"`
	Readonly      []string `json:"readonly"`
	Failed        bool     `json:"failed"`
}

// Summarize builds the jq input for txn.
func Summarize(txn *solana.BlockTransaction) Summary {
	s := Summary{
		Index:         txn.Index,
		Signature:     txn.Signature(),
		NumSignatures: len(txn.Signatures),
		Fee:           txn.Fee,
		Compute:       txn.ComputeUnits,
		Writable:      make([]string, len(txn.WriteAccounts)),
		Readonly:      make([]string, len(txn.ReadAccounts)),
		Failed:        txn.Err != nil,
	}
	for i, k := range txn.WriteAccounts {
		s.Writable[i] = k.String()
	}
	for i, k := range txn.ReadAccounts {
		s.Readonly[i] = k.String()
	}
	return s
}

type expression struct {
	source string
	code   *gojq.Code
}

// Filter excludes vote transactions and anything matched by a jq expression.
type Filter struct {
	includeVotes bool
	exprs        []expression
	logger       *slog.Logger
}

// Options configures a Filter.
type Options struct {
	IncludeVotes bool     // keep vote transactions in the graph
	ExcludeJQ    []string // a truthy result excludes the transaction
}

// New compiles the jq expressions in opts.
func New(opts Options, logger *slog.Logger) (*Filter, error) {
	f := &Filter{
		includeVotes: opts.IncludeVotes,
		exprs:        make([]expression, 0, len(opts.ExcludeJQ)),
		logger:       logger,
	}
	for _, src := range opts.ExcludeJQ {
		query, err := gojq.Parse(src)
		if err != nil {
			return nil, fmt.Errorf("failed to parse jq filter %q: %w", src, err)
		}
		code, err := gojq.Compile(query)
		if err != nil {
			return nil, fmt.Errorf("failed to compile jq filter %q: %w", src, err)
		}
		f.exprs = append(f.exprs, expression{source: src, code: code})
	}
	return f, nil
}

// Exclude reports whether txn stays out of the graph and why.
func (f *Filter) Exclude(txn *solana.BlockTransaction) (string, bool) {
	if !f.includeVotes && txn.IsVote() {
		return ReasonVote, true
	}
	if len(f.exprs) == 0 {
		return "", false
	}

	input, err := jqInput(Summarize(txn))
	if err != nil {
		f.logger.Debug("failed to build jq input", "index", txn.Index, "error", err)
		return "", false
	}

	for _, expr := range f.exprs {
		iter := expr.code.Run(input)
		v, ok := iter.Next()
		if !ok {
			continue
		}
		if err, isErr := v.(error); isErr {
			// A failing expression never excludes.
			f.logger.Debug("jq filter error",
				"filter", expr.source,
				"index", txn.Index,
				"error", err,
			)
			continue
		}
		if isTruthy(v) {
			return ReasonJQ, true
		}
	}
	return "", false
}

// jqInput round-trips through JSON since gojq only accepts the types
// encoding/json produces.
func jqInput(s Summary) (interface{}, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// isTruthy checks if a jq result value is truthy.
func isTruthy(v interface{}) bool {
	if v == nil {
		return false
	}
	if b, ok := v.(bool); ok {
		return b
	}
	// Everything else (numbers, strings, objects, arrays) is truthy
	return true
}
