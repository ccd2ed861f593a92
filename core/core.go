// Package core wires every subsystem of the chain core into one running
// instance, the way server.go assembles the daemon's wallet, database,
// and switch into a single struct with Start/Stop lifecycle methods.
// Everything this package depends on beyond its own subsystems — the
// store, the chain event indexer, the RPC transport, the VRF prover, the
// mixnet transport used for aggregation — is an external collaborator
// supplied by the embedder, per spec §1's non-goals.
package core

import (
	"context"
	"crypto/ecdsa"
	"fmt"

	"github.com/hoprnet/hopr-chain-core/actionqueue"
	"github.com/hoprnet/hopr-chain-core/aggregation"
	"github.com/hoprnet/hopr-chain-core/chainevents"
	"github.com/hoprnet/hopr-chain-core/channelactions"
	"github.com/hoprnet/hopr-chain-core/config"
	"github.com/hoprnet/hopr-chain-core/payload"
	"github.com/hoprnet/hopr-chain-core/redemption"
	"github.com/hoprnet/hopr-chain-core/store"
	"github.com/hoprnet/hopr-chain-core/types"
)

// Config collects every subsystem's configuration plus the identifying
// material (chain key, self address) core needs to wire them together.
type Config struct {
	Self             types.Address
	ChainKey         *ecdsa.PrivateKey
	PayloadGenerator config.PayloadGeneratorConfig
	ActionQueue      config.ActionQueueConfig
	AggregationStrat config.AggregationStrategyConfig
	AggregationProto config.AggregationProtocolConfig
}

// Validate runs every embedded config's Validate method.
func (c Config) Validate() error {
	if c.ChainKey == nil {
		return fmt.Errorf("core: chain_key is required")
	}
	if err := c.PayloadGenerator.Validate(); err != nil {
		return err
	}
	if err := c.ActionQueue.Validate(); err != nil {
		return err
	}
	if err := c.AggregationStrat.Validate(); err != nil {
		return err
	}
	return c.AggregationProto.Validate()
}

// Core is the fully wired chain core: the action queue, redemption
// engine, aggregation strategy and channel lifecycle facade, all sharing
// one store and one action queue.
type Core struct {
	cfg Config

	Store     store.Store
	Queue     *actionqueue.Queue
	Redeem    *redemption.Engine
	Aggr      *aggregation.Strategy
	Responder *aggregation.Responder
	Channel   *channelactions.Facade
}

// New wires a Core from cfg and its external collaborators:
//   - st is the persistence layer (spec §6.1).
//   - events is the chain indexer's event stream (spec §6.2).
//   - sender is the RPC transport used to price, sign and broadcast
//     transactions (ActionSender); when nil, a default signer-only
//     ActionSender cannot be constructed here since nonce/fee/broadcast
//     are chain-RPC concerns out of this package's scope, so callers
//     must supply one.
//   - prover supplies VRF proofs at redemption time (deriving the VRF
//     secret itself is out of scope, spec §1).
//   - transport drives the wire side of the two-party aggregation
//     protocol (spec §4.5); it is itself a thin wrapper over the
//     mixnet session with each channel's counterparty.
func New(cfg Config, st store.Store, events chainevents.Subscriber, sender actionqueue.ActionSender, prover redemption.VRFProver, transport aggregation.Transport) (*Core, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	generator, err := payload.NewGenerator(cfg.PayloadGenerator)
	if err != nil {
		return nil, err
	}

	queue, err := actionqueue.New(cfg.ActionQueue, cfg.Self, generator, sender, events)
	if err != nil {
		return nil, err
	}

	redeemEngine := redemption.New(st, queue, prover)
	protocol := aggregation.NewProtocol(transport, st, cfg.AggregationProto.Heartbeat, cfg.AggregationProto.MaxHeartbeats)
	strategy := aggregation.New(cfg.AggregationStrat, st, protocol, redeemEngine)
	responder := aggregation.NewResponder(cfg.Self, cfg.ChainKey, st)
	facade := channelactions.New(cfg.Self, st, queue, redeemEngine)

	return &Core{
		cfg:       cfg,
		Store:     st,
		Queue:     queue,
		Redeem:    redeemEngine,
		Aggr:      strategy,
		Responder: responder,
		Channel:   facade,
	}, nil
}

// Start launches the action queue's processing loops and recovers any
// tickets left BeingAggregated by a prior crashed process.
func (c *Core) Start(ctx context.Context) error {
	c.Queue.Start(ctx)
	if err := c.Aggr.RecoverStaleMarks(ctx); err != nil {
		c.Queue.Stop()
		return fmt.Errorf("core: recover stale aggregation marks: %w", err)
	}
	return nil
}

// Stop halts the action queue and releases the store.
func (c *Core) Stop() error {
	c.Queue.Stop()
	return c.Store.Close()
}

// Signer builds the payload.Signer for cfg's chain key, for callers that
// assemble their own ActionSender and need a consistent signer.
func (cfg Config) Signer() payload.Signer {
	return payload.NewSigner(cfg.ChainKey, cfg.PayloadGenerator.ChainID)
}
