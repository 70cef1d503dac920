package solana

import (
	"context"
	"fmt"
	"math/rand"
	"net/url"

	"github.com/gagliardetto/solana-go/rpc"
)

// realRPCClient adapts the actual solana-go RPC client to our RPCClient interface.
// This adapter allows us to control the interface and makes testing easier.
type realRPCClient struct {
	client *rpc.Client
}

// NewRPCClient creates a new RPCClient that wraps the solana-go RPC client.
// For premium RPC endpoints that require API keys, include the key in the URL:
// - Helius: https://mainnet.helius-rpc.com/?api-key=YOUR-KEY
// - QuickNode: https://YOUR-ENDPOINT.quiknode.pro/YOUR-KEY/
func NewRPCClient(rpcURL string) RPCClient {
	return &realRPCClient{
		client: rpc.New(rpcURL),
	}
}

func (r *realRPCClient) GetBlockWithOpts(
	ctx context.Context,
	slot uint64,
	opts *rpc.GetBlockOpts,
) (*rpc.GetBlockResult, error) {
	return r.client.GetBlockWithOpts(ctx, slot, opts)
}

func (r *realRPCClient) GetSlot(ctx context.Context, commitment rpc.CommitmentType) (uint64, error) {
	return r.client.GetSlot(ctx, commitment)
}

// SelectRandomEndpoint picks one endpoint from the configured list so that
// load is spread across providers.
func SelectRandomEndpoint(endpoints []string) (string, error) {
	if len(endpoints) == 0 {
		return "", fmt.Errorf("no RPC endpoints configured")
	}
	return endpoints[rand.Intn(len(endpoints))], nil
}

// EndpointLabel reduces an RPC URL to its host so API keys in paths or query
// strings never end up in metric labels or logs.
func EndpointLabel(rpcURL string) string {
	u, err := url.Parse(rpcURL)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return u.Host
}
