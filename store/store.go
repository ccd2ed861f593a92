// Package store defines the Database Contract (spec §6.1) consumed by
// the chain core. The core treats the underlying key-value engine as an
// external collaborator (spec §1's non-goals) and only ever programs
// against this interface; store/boltstore provides the concrete
// bbolt-backed implementation used in production and in tests.
package store

import (
	"context"

	"github.com/hoprnet/hopr-chain-core/types"
)

// Snapshot is the indexer-side progress marker persisted alongside a
// channel update by update_channel_and_snapshot, so that core state and
// indexer state advance atomically.
type Snapshot struct {
	BlockNumber      uint64
	TransactionIndex uint64
	LogIndex         uint64
}

// Store is the narrow persistence contract the chain core requires. All
// methods are safe for concurrent use; write methods that mutate ticket
// status must be called from within a Tx obtained via BeginTransaction
// for the mutation to be atomic with any co-occurring reads.
type Store interface {
	// GetChannel returns the channel identified by channelID, or
	// (nil, nil) if no such channel is known.
	GetChannel(ctx context.Context, channelID types.Hash) (*types.ChannelEntry, error)

	// GetChannelFrom returns the incoming channel whose source is
	// counterparty, or (nil, nil) if none exists.
	GetChannelFrom(ctx context.Context, counterparty types.Address) (*types.ChannelEntry, error)

	// GetIncomingChannels returns every channel whose destination is the
	// local node.
	GetIncomingChannels(ctx context.Context) ([]types.ChannelEntry, error)

	// GetAcknowledgedTickets returns acknowledged tickets ordered by
	// (channel_epoch, index). If channelID is the zero hash, tickets for
	// every channel are returned.
	GetAcknowledgedTickets(ctx context.Context, channelID types.Hash) ([]types.AcknowledgedTicket, error)

	// GetAcknowledgedTicketsRange returns acknowledged tickets for
	// (channelID, epoch) with index in [fromIdx, toIdx], ordered by
	// index.
	GetAcknowledgedTicketsRange(ctx context.Context, channelID types.Hash, epoch uint32, fromIdx, toIdx uint64) ([]types.AcknowledgedTicket, error)

	// UpdateAcknowledgedTicket atomically replaces the row keyed by
	// (channel_id, epoch, index) with ticket.
	UpdateAcknowledgedTicket(ctx context.Context, ticket *types.AcknowledgedTicket) error

	// PrepareAggregatableTickets atomically selects every Untouched
	// ticket for (channelID, epoch) with index in [fromIdx, toIdx],
	// flips each to BeingAggregated, and returns the selected rows. This
	// is the sole atomic "mark" operation the aggregation strategy uses
	// to exclude the redemption engine from the same tickets.
	PrepareAggregatableTickets(ctx context.Context, channelID types.Hash, epoch uint32, fromIdx, toIdx uint64) ([]types.AcknowledgedTicket, error)

	// RollbackAggregationInChannel transitions every BeingAggregated
	// ticket of (channelID, epoch) back to Untouched. Idempotent: safe
	// to call when nothing is BeingAggregated.
	RollbackAggregationInChannel(ctx context.Context, channelID types.Hash, epoch uint32) error

	// GetChannelsDomainSeparator returns the 32-byte chain-specific
	// constant mixed into every ticket signature, or nil if it has not
	// yet been observed on-chain.
	GetChannelsDomainSeparator(ctx context.Context) (*types.Hash, error)

	// UpdateChannelAndSnapshot atomically replaces the channel row keyed
	// by id with channel and advances the indexer snapshot.
	UpdateChannelAndSnapshot(ctx context.Context, id types.Hash, channel *types.ChannelEntry, snapshot Snapshot) error

	// BeginTransaction opens a scope in which a sequence of reads and
	// writes is atomic and isolated. fn's returned error aborts the
	// transaction; BeginTransaction returns that error unchanged.
	BeginTransaction(ctx context.Context, fn func(Tx) error) error

	// Close releases any resources held by the store.
	Close() error
}

// Tx is the capability handle passed to a BeginTransaction callback. Its
// methods mirror the subset of Store operations that must participate in
// the surrounding transaction; no method on Tx performs network I/O, in
// keeping with spec §5's rule that no DB transaction is held across a
// suspension that performs network I/O.
type Tx interface {
	GetChannel(channelID types.Hash) (*types.ChannelEntry, error)
	GetAcknowledgedTickets(channelID types.Hash) ([]types.AcknowledgedTicket, error)
	GetAcknowledgedTicketsRange(channelID types.Hash, epoch uint32, fromIdx, toIdx uint64) ([]types.AcknowledgedTicket, error)
	UpdateAcknowledgedTicket(ticket *types.AcknowledgedTicket) error
	PrepareAggregatableTickets(channelID types.Hash, epoch uint32, fromIdx, toIdx uint64) ([]types.AcknowledgedTicket, error)
	RollbackAggregationInChannel(channelID types.Hash, epoch uint32) error
	UpdateChannelAndSnapshot(id types.Hash, channel *types.ChannelEntry, snapshot Snapshot) error
}
