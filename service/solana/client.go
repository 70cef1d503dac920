package solana

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/brojonat/blockgraph/service/metrics"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// RPCClient is an interface for the Solana RPC operations we need.
// This allows us to mock the RPC layer in tests without hitting real Solana nodes.
type RPCClient interface {
	GetBlockWithOpts(
		ctx context.Context,
		slot uint64,
		opts *rpc.GetBlockOpts,
	) (*rpc.GetBlockResult, error)

	GetSlot(ctx context.Context, commitment rpc.CommitmentType) (uint64, error)
}

// Client fetches and decodes blocks.
// It wraps the RPC client with domain-specific operations.
type Client struct {
	rpc         RPCClient
	logger      *slog.Logger
	metrics     *metrics.Metrics
	endpoint    string // RPC endpoint identifier for metrics (e.g., "mainnet", rpc host)
	commitment  rpc.CommitmentType
	maxAttempts int
	timeout     time.Duration // per attempt; zero means no limit
	sleep       func(context.Context, time.Duration) error
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithCommitment sets the commitment level used for block and slot queries.
func WithCommitment(commitment rpc.CommitmentType) ClientOption {
	return func(c *Client) {
		if commitment != "" {
			c.commitment = commitment
		}
	}
}

// WithMaxAttempts sets how many times a block fetch is tried before giving up.
func WithMaxAttempts(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithTimeout bounds each RPC attempt. An attempt that runs out of time is
// retried like any other transient error.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = d
	}
}

// NewClient creates a new Solana client.
// The endpoint parameter is used for metrics labeling (e.g., "mainnet", or RPC hostname).
// If metrics is nil, no metrics will be recorded.
func NewClient(rpcClient RPCClient, endpoint string, m *metrics.Metrics, logger *slog.Logger, opts ...ClientOption) *Client {
	c := &Client{
		rpc:         rpcClient,
		logger:      logger,
		metrics:     m,
		endpoint:    endpoint,
		commitment:  rpc.CommitmentFinalized,
		maxAttempts: 3,
		sleep:       sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetBlock fetches the block at slot with full transaction details and
// decodes every transaction. Rate limits and transient errors are retried
// with exponential backoff; a skipped or missing slot is returned as is.
func (c *Client) GetBlock(ctx context.Context, slot uint64) (*Block, error) {
	rewards := false
	maxVersion := rpc.MaxSupportedTransactionVersion0
	opts := &rpc.GetBlockOpts{
		Encoding:                       solana.EncodingBase64,
		TransactionDetails:             rpc.TransactionDetailsFull,
		Rewards:                        &rewards,
		Commitment:                     c.commitment,
		MaxSupportedTransactionVersion: &maxVersion,
	}

	var result *rpc.GetBlockResult
	var err error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		attemptCtx, cancel := c.attemptContext(ctx)
		start := time.Now()
		result, err = c.rpc.GetBlockWithOpts(attemptCtx, slot, opts)
		duration := time.Since(start).Seconds()
		timedOut := attemptCtx.Err() != nil && ctx.Err() == nil
		cancel()

		status := "success"
		if err != nil {
			status = "error"
		}
		if c.metrics != nil {
			c.metrics.RecordRPCCall("GetBlock", status, c.endpoint, duration)
		}

		if err == nil {
			break
		}
		if (!timedOut && !isRetryable(err)) || attempt == c.maxAttempts-1 {
			break
		}

		// Handle rate limiting (429 Too Many Requests) with longer backoff
		var backoff time.Duration
		if strings.Contains(err.Error(), "429") {
			backoff = time.Duration(2<<uint(attempt)) * time.Second // 2s, 4s, 8s
			c.logger.WarnContext(ctx, "rate limited, sleeping before retry",
				"slot", slot,
				"attempt", attempt+1,
				"backoff_seconds", backoff.Seconds(),
			)
			if c.metrics != nil {
				c.metrics.RecordRateLimitHit(c.endpoint)
				c.metrics.RecordRPCRetry("GetBlock", "rate_limit")
			}
		} else {
			backoff = time.Duration(1<<uint(attempt)) * time.Second // 1s, 2s, 4s
			c.logger.WarnContext(ctx, "failed to get block on attempt",
				"slot", slot,
				"attempt", attempt+1,
				"error", err,
				"backoff_seconds", backoff.Seconds(),
			)
			if c.metrics != nil {
				c.metrics.RecordRPCRetry("GetBlock", "timeout_or_error")
			}
		}

		if sleepErr := c.sleep(ctx, backoff); sleepErr != nil {
			return nil, fmt.Errorf("failed to get block %d: %w", slot, sleepErr)
		}
	}

	if err != nil {
		c.logger.ErrorContext(ctx, "failed to get block",
			"slot", slot,
			"error", err,
		)
		return nil, fmt.Errorf("failed to get block %d: %w", slot, err)
	}

	block, err := blockFromResult(slot, result)
	if err != nil {
		return nil, fmt.Errorf("failed to decode block: %w", err)
	}

	c.logger.DebugContext(ctx, "fetched block",
		"slot", slot,
		"blockhash", block.Blockhash,
		"transactions", len(block.Transactions),
	)

	return block, nil
}

// GetLatestSlot returns the most recent slot at the client's commitment.
func (c *Client) GetLatestSlot(ctx context.Context) (uint64, error) {
	ctx, cancel := c.attemptContext(ctx)
	defer cancel()

	start := time.Now()
	slot, err := c.rpc.GetSlot(ctx, c.commitment)
	duration := time.Since(start).Seconds()

	status := "success"
	if err != nil {
		status = "error"
	}
	if c.metrics != nil {
		c.metrics.RecordRPCCall("GetSlot", status, c.endpoint, duration)
	}

	if err != nil {
		return 0, fmt.Errorf("failed to get slot: %w", err)
	}
	return slot, nil
}

// isRetryable reports whether a block fetch error is worth another attempt.
// Skipped slots and pruned ledger ranges never become available.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	msg := err.Error()
	for _, permanent := range []string{
		"was skipped",
		"not available for slot",
		"Block not available",
		"cleaned up",
	} {
		if strings.Contains(msg, permanent) {
			return false
		}
	}
	return true
}

func (c *Client) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
