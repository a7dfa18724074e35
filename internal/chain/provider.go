/*

This file contains the RPC connection layer shared by every process. A ring of
providers gives the brain cheap rotation over its fork endpoints; the single
node connection carries subscriptions over the local IPC socket.

*/

package chain

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/ethclient/gethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/hernan-erasmo/overlord/internal/logger"
)

var chainLogger = logger.GetForComponent("chain")

// ErrEmptyRing is returned when a ring is constructed with no endpoints.
var ErrEmptyRing = errors.New("provider ring needs at least one endpoint")

// Provider bundles the raw RPC handle with its typed wrappers. The raw handle
// is needed for fork-only methods (anvil_*) and gethclient for mempool access.
type Provider struct {
	Endpoint string
	RPC      *rpc.Client
	Eth      *ethclient.Client
	Geth     *gethclient.Client
}

// Dial connects to one endpoint (ipc path, ws:// or http://).
func Dial(ctx context.Context, endpoint string) (*Provider, error) {
	rpcClient, err := rpc.DialContext(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	return &Provider{
		Endpoint: endpoint,
		RPC:      rpcClient,
		Eth:      ethclient.NewClient(rpcClient),
		Geth:     gethclient.New(rpcClient),
	}, nil
}

// Close releases the underlying connection.
func (p *Provider) Close() {
	p.RPC.Close()
}

// Ring rotates over a fixed set of providers. Next is lock-free so the hot
// path never serializes on provider selection.
type Ring struct {
	providers []*Provider
	idx       atomic.Uint32
}

// DialRing connects every endpoint up front so a dead endpoint fails startup
// instead of a trace.
func DialRing(ctx context.Context, endpoints []string) (*Ring, error) {
	if len(endpoints) == 0 {
		return nil, ErrEmptyRing
	}
	ring := &Ring{providers: make([]*Provider, 0, len(endpoints))}
	for _, endpoint := range endpoints {
		provider, err := Dial(ctx, endpoint)
		if err != nil {
			ring.Close()
			return nil, err
		}
		chainLogger.Info().Str("endpoint", endpoint).Msg("Connected provider")
		ring.providers = append(ring.providers, provider)
	}
	return ring, nil
}

// Next returns the next provider in rotation.
func (r *Ring) Next() *Provider {
	n := r.idx.Add(1)
	return r.providers[int(n-1)%len(r.providers)]
}

// Size returns the number of providers in the ring.
func (r *Ring) Size() int {
	return len(r.providers)
}

// At returns the provider at a fixed slot, for callers that pin work to one
// endpoint.
func (r *Ring) At(i int) *Provider {
	return r.providers[i%len(r.providers)]
}

// Close releases every connection in the ring.
func (r *Ring) Close() {
	for _, p := range r.providers {
		p.Close()
	}
}
