// Package channelactions implements the channel lifecycle facade (spec
// §4.6): mapping open_channel/fund_channel/close_channel intents onto
// actionqueue messages, checking the same invariants locally that
// peer.go and lnwallet/reservation.go check before ever touching the
// network — fail fast on a bad precondition rather than let a doomed
// transaction hit the chain.
package channelactions

import (
	"context"
	"fmt"
	"time"

	"github.com/hoprnet/hopr-chain-core/actionqueue"
	"github.com/hoprnet/hopr-chain-core/corerrors"
	"github.com/hoprnet/hopr-chain-core/redemption"
	"github.com/hoprnet/hopr-chain-core/store"
	"github.com/hoprnet/hopr-chain-core/types"
)

// Redeemer is the subset of redemption.Engine the facade needs for
// close_channel's redeem_before_close option.
type Redeemer interface {
	RedeemTicketsInChannel(ctx context.Context, channelID types.Hash) ([]*redemption.PendingRedemption, error)
}

// Sender is the subset of actionqueue.Queue the facade depends on.
type Sender interface {
	Send(action actionqueue.Action) (<-chan actionqueue.Confirmation, <-chan error)
}

// Facade exposes the node-operator-facing channel lifecycle operations.
type Facade struct {
	self     types.Address
	store    store.Store
	queue    Sender
	redeemer Redeemer
	clock    func() time.Time
}

// New constructs a Facade. self is the local node's on-chain address,
// used to derive channel IDs and distinguish directions.
func New(self types.Address, st store.Store, queue Sender, redeemer Redeemer) *Facade {
	return &Facade{self: self, store: st, queue: queue, redeemer: redeemer, clock: time.Now}
}

// OpenChannel opens a new outgoing channel to dest, funded with amount.
// It refuses if dest is the local node, or if an Open or PendingToClose
// channel to dest already exists — the contract treats funding a
// nonexistent or closed channel as opening it, so the OpenChannelAction
// OpenChannel emits builds the same fund_channel call as FundChannel's
// FundChannelAction.
func (f *Facade) OpenChannel(ctx context.Context, dest types.Address, amount types.Balance) (<-chan actionqueue.Confirmation, <-chan error) {
	if dest == f.self {
		return failedSend(corerrors.Wrap(fmt.Errorf("channelactions: cannot open a channel to self")))
	}

	channelID := types.ChannelID(f.self, dest)
	existing, err := f.store.GetChannel(ctx, channelID)
	if err != nil {
		return failedSend(err)
	}
	if existing != nil && (existing.Status.Kind == types.Open || existing.Status.Kind == types.PendingToClose) {
		return failedSend(corerrors.Wrap(fmt.Errorf("channelactions: channel to %s already %s", dest, existing.Status.Kind)))
	}

	return f.queue.Send(actionqueue.OpenChannelAction{Destination: dest, Amount: amount})
}

// FundChannel increases the balance of an existing Open channel
// identified by its endpoints.
func (f *Facade) FundChannel(ctx context.Context, dest types.Address, amount types.Balance) (<-chan actionqueue.Confirmation, <-chan error) {
	channelID := types.ChannelID(f.self, dest)
	channel, err := f.store.GetChannel(ctx, channelID)
	if err != nil {
		return failedSend(err)
	}
	if channel == nil {
		return failedSend(corerrors.Wrap(corerrors.ErrChannelDoesNotExist))
	}
	if channel.Status.Kind != types.Open {
		return failedSend(corerrors.Wrap(fmt.Errorf("channelactions: channel to %s is %s, not Open", dest, channel.Status.Kind)))
	}

	return f.queue.Send(actionqueue.FundChannelAction{Destination: dest, Amount: amount})
}

// CloseChannel closes the channel with counterparty in the given
// direction. For Outgoing channels this either initiates the closure
// grace period (if currently Open) or finalizes it (if PendingToClose
// and the grace period has expired); for Incoming channels it closes
// immediately. If redeemBeforeClose is set, every Untouched ticket in
// the channel is redeemed and awaited before the close action is sent.
func (f *Facade) CloseChannel(ctx context.Context, counterparty types.Address, direction types.ChannelDirection, redeemBeforeClose bool) (<-chan actionqueue.Confirmation, <-chan error) {
	channel, err := f.resolveChannel(ctx, counterparty, direction)
	if err != nil {
		return failedSend(err)
	}
	if channel == nil {
		return failedSend(corerrors.Wrap(corerrors.ErrChannelDoesNotExist))
	}

	if redeemBeforeClose {
		pending, err := f.redeemer.RedeemTicketsInChannel(ctx, channel.ID())
		if err != nil {
			return failedSend(corerrors.Wrap(fmt.Errorf("channelactions: redeem before close: %w", err)))
		}
		for _, p := range pending {
			select {
			case <-p.Confirm:
			case err := <-p.Err:
				return failedSend(corerrors.Wrap(fmt.Errorf("channelactions: redeem before close: ticket %d: %w", p.Index, err)))
			case <-ctx.Done():
				return failedSend(corerrors.Wrap(ctx.Err()))
			}
		}
	}

	if direction == types.Incoming {
		return f.queue.Send(actionqueue.CloseChannelAction{Counterparty: counterparty, Direction: types.Incoming})
	}

	switch channel.Status.Kind {
	case types.Open:
		return f.queue.Send(actionqueue.CloseChannelAction{Counterparty: counterparty, Direction: types.Outgoing, Finalize: false})
	case types.PendingToClose:
		if !channel.IsGraceExpired(f.clock()) {
			return failedSend(corerrors.Wrap(fmt.Errorf("channelactions: closure grace period for %s has not yet expired", counterparty)))
		}
		return f.queue.Send(actionqueue.CloseChannelAction{Counterparty: counterparty, Direction: types.Outgoing, Finalize: true})
	default:
		return failedSend(corerrors.Wrap(fmt.Errorf("channelactions: channel to %s is %s, cannot close", counterparty, channel.Status.Kind)))
	}
}

func (f *Facade) resolveChannel(ctx context.Context, counterparty types.Address, direction types.ChannelDirection) (*types.ChannelEntry, error) {
	if direction == types.Incoming {
		return f.store.GetChannelFrom(ctx, counterparty)
	}
	return f.store.GetChannel(ctx, types.ChannelID(f.self, counterparty))
}

func failedSend(err error) (<-chan actionqueue.Confirmation, <-chan error) {
	confirmCh := make(chan actionqueue.Confirmation)
	errCh := make(chan error, 1)
	errCh <- err
	return confirmCh, errCh
}
