// Package redemption implements the ticket redemption engine (spec
// §4.3): turning Untouched acknowledged tickets into redeem_ticket
// actions on the action queue, with the same idempotent two-pass
// "count, then claim under lock" discipline channeldb uses for HTLC
// settlement so a ticket is never sent to the chain twice.
package redemption

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/sync/errgroup"

	"github.com/hoprnet/hopr-chain-core/actionqueue"
	"github.com/hoprnet/hopr-chain-core/corerrors"
	"github.com/hoprnet/hopr-chain-core/payload"
	"github.com/hoprnet/hopr-chain-core/store"
	"github.com/hoprnet/hopr-chain-core/types"
)

// VRFProver produces the off-chain VRF proof for a ticket at redemption
// time. Deriving VRF secrets is out of scope (spec §1's non-goals); the
// engine only consumes an already-available prover.
type VRFProver interface {
	Prove(ticket *types.Ticket) (payload.OffChainVRFOutput, error)
}

// Sender is the subset of actionqueue.Queue the engine depends on,
// narrowed for testability.
type Sender interface {
	Send(action actionqueue.Action) (<-chan actionqueue.Confirmation, <-chan error)
}

// PendingRedemption is the awaitable handle a dispatched redeem_ticket
// action returns. The engine never blocks on Confirm/Err itself, so a
// caller redeeming many tickets can fan the waiting step out across all
// of them instead of serializing on-chain confirmation one at a time.
type PendingRedemption struct {
	ChannelID types.Hash
	Epoch     uint32
	Index     uint64
	Confirm   <-chan actionqueue.Confirmation
	Err       <-chan error
}

// Engine redeems winning tickets on request, enforcing that a ticket is
// claimed for redemption (DB-level BeingRedeemed mark) at most once.
type Engine struct {
	store  store.Store
	queue  Sender
	prover VRFProver
}

// New constructs a redemption Engine.
func New(st store.Store, queue Sender, prover VRFProver) *Engine {
	return &Engine{store: st, queue: queue, prover: prover}
}

// RedeemTicket redeems a single ticket identified by its composite key.
// It fails with corerrors.ErrWrongTicketState if the ticket is not
// Untouched (already being aggregated or redeemed) or if epoch is not the
// channel's current epoch, with corerrors.ErrChannelDoesNotExist if no
// such channel is known, and with corerrors.ErrNotAWinningTicket if the
// ticket does not clear the win-probability threshold, leaving the
// ticket's status unchanged in every one of these cases. Once claimed, the ticket is dispatched to the action queue and
// RedeemTicket returns immediately with a PendingRedemption the caller
// can await on its own schedule.
func (e *Engine) RedeemTicket(ctx context.Context, channelID types.Hash, epoch uint32, index uint64) (*PendingRedemption, error) {
	domainSeparator, err := e.store.GetChannelsDomainSeparator(ctx)
	if err != nil {
		return nil, err
	}
	if domainSeparator == nil {
		return nil, corerrors.Wrap(fmt.Errorf("redemption: channels domain separator not yet known"))
	}

	var claimed *types.AcknowledgedTicket
	err = e.store.BeginTransaction(ctx, func(tx store.Tx) error {
		channel, err := tx.GetChannel(channelID)
		if err != nil {
			return err
		}
		if channel == nil {
			return corerrors.Wrap(corerrors.ErrChannelDoesNotExist)
		}
		if channel.ChannelEpoch != epoch {
			return corerrors.Wrap(fmt.Errorf("%w: ticket epoch %d, channel epoch %d", corerrors.ErrWrongTicketState, epoch, channel.ChannelEpoch))
		}

		tickets, err := tx.GetAcknowledgedTicketsRange(channelID, epoch, index, index)
		if err != nil {
			return err
		}
		if len(tickets) == 0 {
			return corerrors.Wrap(fmt.Errorf("redemption: no ticket at index %d", index))
		}
		ack := tickets[0]
		if ack.Status != types.Untouched {
			return corerrors.Wrap(&corerrors.WrongTicketStateError{
				ChannelID: channelID.String(), Epoch: epoch, Index: index, Status: ack.Status.String(),
			})
		}
		if !isWinningTicket(&ack, *domainSeparator) {
			return corerrors.Wrap(corerrors.ErrNotAWinningTicket)
		}

		ack.Status = types.BeingRedeemed
		if err := tx.UpdateAcknowledgedTicket(&ack); err != nil {
			return err
		}
		claimed = &ack
		return nil
	})
	if err != nil {
		return nil, err
	}

	return e.dispatch(claimed, *domainSeparator)
}

// isWinningTicket reports whether ack is a winning ticket: the keccak256
// digest of its signature, the relayed response, and the channels
// domain separator must fall at or below the ticket's encoded
// win-probability threshold.
func isWinningTicket(ack *types.AcknowledgedTicket, domainSeparator types.Hash) bool {
	digest := crypto.Keccak256(ack.Ticket.Signature[:], ack.Response[:], domainSeparator[:])
	return bytes.Compare(digest[:types.EncodedWinProbLength], ack.Ticket.EncodedWinProb[:]) <= 0
}

// RedeemTicketsInChannel redeems every Untouched ticket of a channel, in
// increasing index order. A per-ticket claim failure (wrong state, not a
// winning ticket) is logged and skipped rather than aborting the rest of
// the channel, per spec §8's invariant that every matching Untouched
// ticket ends up dispatched once the call returns.
func (e *Engine) RedeemTicketsInChannel(ctx context.Context, channelID types.Hash) ([]*PendingRedemption, error) {
	tickets, err := e.store.GetAcknowledgedTickets(ctx, channelID)
	if err != nil {
		return nil, err
	}

	var pending []*PendingRedemption
	for _, t := range tickets {
		if t.Status != types.Untouched {
			continue
		}
		epoch, index := t.Ticket.ChannelEpoch, t.Ticket.Index
		p, err := e.RedeemTicket(ctx, channelID, epoch, index)
		if err != nil {
			log.Warnf("redeem ticket %s/%d/%d: %v", channelID, epoch, index, err)
			continue
		}
		pending = append(pending, p)
	}
	return pending, nil
}

// RedeemAllTickets redeems every Untouched ticket across every known
// channel. The redemption loop itself stays sequential per channel (spec
// §5's ordering guarantee), but the read-only pass that discovers which
// channels still exist and are worth visiting runs concurrently, the
// way discovery's gossip validation fans out read-only lookups before
// its sequential apply step. A channel that fails outright is logged and
// skipped so the remaining channels are still attempted.
func (e *Engine) RedeemAllTickets(ctx context.Context) ([]*PendingRedemption, error) {
	tickets, err := e.store.GetAcknowledgedTickets(ctx, types.Hash{})
	if err != nil {
		return nil, err
	}

	byChannel := map[types.Hash]struct{}{}
	for _, t := range tickets {
		byChannel[t.Ticket.ChannelID] = struct{}{}
	}

	live, err := e.liveChannels(ctx, byChannel)
	if err != nil {
		return nil, err
	}

	var pending []*PendingRedemption
	for channelID := range byChannel {
		if !live[channelID] {
			continue
		}
		p, err := e.RedeemTicketsInChannel(ctx, channelID)
		if err != nil {
			log.Warnf("redeem tickets in channel %s: %v", channelID, err)
			continue
		}
		pending = append(pending, p...)
	}
	return pending, nil
}

// liveChannels concurrently looks up every candidate channel ID and
// reports which ones still resolve to a known channel, so
// RedeemAllTickets never attempts to redeem into a channel this store
// has since forgotten about.
func (e *Engine) liveChannels(ctx context.Context, candidates map[types.Hash]struct{}) (map[types.Hash]bool, error) {
	g, gctx := errgroup.WithContext(ctx)
	var mu sync.Mutex
	live := make(map[types.Hash]bool, len(candidates))

	for channelID := range candidates {
		channelID := channelID
		g.Go(func() error {
			channel, err := e.store.GetChannel(gctx, channelID)
			if err != nil {
				return err
			}
			mu.Lock()
			live[channelID] = channel != nil
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return live, nil
}

// dispatch builds the redeem_ticket action for an already-claimed ticket
// and hands it to the action queue. Any failure here is surfaced as-is:
// per spec §7, a ticket that reached BeingRedeemed is never rolled back
// to Untouched, since retrying redemption risks double-spending it
// on-chain. The ticket stays BeingRedeemed and the error is the
// operator's signal to reconcile manually.
func (e *Engine) dispatch(ack *types.AcknowledgedTicket, domainSeparator types.Hash) (*PendingRedemption, error) {
	proof, err := e.prover.Prove(&ack.Ticket)
	if err != nil {
		return nil, corerrors.Wrap(fmt.Errorf("redemption: VRF proof failed, ticket left BeingRedeemed: %w", err))
	}

	redeemable, err := payload.BuildRedeemableTicket(ack, domainSeparator, proof)
	if err != nil {
		return nil, corerrors.Wrap(fmt.Errorf("redemption: build redeemable ticket failed, ticket left BeingRedeemed: %w", err))
	}

	confirmCh, errCh := e.queue.Send(actionqueue.RedeemTicketAction{Ticket: *redeemable})
	return &PendingRedemption{
		ChannelID: ack.Ticket.ChannelID,
		Epoch:     ack.Ticket.ChannelEpoch,
		Index:     ack.Ticket.Index,
		Confirm:   confirmCh,
		Err:       errCh,
	}, nil
}
