// Package aggregation implements the aggregation strategy and two-party
// aggregation protocol (spec §4.4): deciding when a channel's Untouched
// tickets are worth collapsing into one, atomically marking them
// BeingAggregated so the redemption engine leaves them alone, running
// the protocol, and rolling back on failure or timeout. The
// await-with-timeout-then-rollback shape mirrors
// contractcourt.htlcTimeoutResolver.Resolve's wait-or-give-up pattern.
package aggregation

import (
	"context"
	"math/big"
	"time"

	"github.com/hoprnet/hopr-chain-core/config"
	"github.com/hoprnet/hopr-chain-core/corerrors"
	"github.com/hoprnet/hopr-chain-core/redemption"
	"github.com/hoprnet/hopr-chain-core/store"
	"github.com/hoprnet/hopr-chain-core/types"
)

// Protocol runs the two-party aggregation RPC against the channel's
// counterparty and returns the single aggregated ticket it produces.
type Protocol interface {
	Aggregate(ctx context.Context, channel *types.ChannelEntry, tickets []types.AcknowledgedTicket) (*types.AcknowledgedTicket, error)
}

// Redeemer is the subset of redemption.Engine the strategy falls back to
// when a redeem_if_failed aggregation attempt is rolled back, so the
// channel's value is still sent to the chain per ticket instead of
// being stranded Untouched.
type Redeemer interface {
	RedeemTicketsInChannel(ctx context.Context, channelID types.Hash) ([]*redemption.PendingRedemption, error)
}

// Strategy decides when to aggregate a channel's tickets and drives the
// mark-run-commit-or-rollback sequence atomically with respect to the
// redemption engine.
type Strategy struct {
	cfg      config.AggregationStrategyConfig
	store    store.Store
	protocol Protocol
	redeemer Redeemer
	clock    func() time.Time
}

// New constructs a Strategy. redeemer is consulted only when
// StartAggregation is called with redeemIfFailed set.
func New(cfg config.AggregationStrategyConfig, st store.Store, protocol Protocol, redeemer Redeemer) *Strategy {
	return &Strategy{cfg: cfg, store: st, protocol: protocol, redeemer: redeemer, clock: time.Now}
}

// OnAcknowledgedWinningTicket is called whenever a new winning ticket is
// acknowledged for a channel; it evaluates the aggregation criteria (the
// minimum batch size, then either the ticket-count threshold or the
// unrealized-balance ratio) and starts aggregation if they are satisfied. A failed or timed-out attempt
// triggered this way is not retried as a per-ticket redemption: the
// channel is still open and the next winning ticket will re-trigger
// evaluation.
func (s *Strategy) OnAcknowledgedWinningTicket(ctx context.Context, channelID types.Hash) error {
	return s.evaluate(ctx, channelID, false)
}

// OnOwnChannelChanged is called whenever the local node's view of a
// channel changes (funded, balance increased); it evaluates the same
// aggregation criteria as OnAcknowledgedWinningTicket. Unlike the winning-ticket trigger,
// a failed attempt here falls back to per-ticket redemption so the
// channel's value is not left stranded across channel-state changes.
func (s *Strategy) OnOwnChannelChanged(ctx context.Context, channelID types.Hash) error {
	return s.evaluate(ctx, channelID, true)
}

// OnChannelClosureInitiated aggregates a channel's remaining tickets as
// soon as its closure grace period starts, when configured to do so, so
// that as much value as possible survives into one ticket before the
// channel can be finalized out from under the aggregator. If aggregation
// fails, the tickets fall back to per-ticket redemption rather than
// being stranded by the closure.
func (s *Strategy) OnChannelClosureInitiated(ctx context.Context, channelID types.Hash) error {
	if !s.cfg.AggregateOnChannelClose {
		return nil
	}
	return s.StartAggregation(ctx, channelID, true)
}

func (s *Strategy) evaluate(ctx context.Context, channelID types.Hash, redeemIfFailed bool) error {
	channel, err := s.store.GetChannel(ctx, channelID)
	if err != nil {
		return err
	}
	if channel == nil {
		return corerrors.Wrap(corerrors.ErrChannelDoesNotExist)
	}

	tickets, err := s.store.GetAcknowledgedTickets(ctx, channelID)
	if err != nil {
		return err
	}

	for _, t := range tickets {
		if t.Status == types.BeingAggregated {
			return corerrors.Wrap(corerrors.ErrCriteriaNotSatisfied)
		}
	}

	untouched := untouchedTickets(tickets)
	if !s.satisfiesCriteria(channel, untouched) {
		return corerrors.Wrap(corerrors.ErrCriteriaNotSatisfied)
	}

	return s.StartAggregation(ctx, channelID, redeemIfFailed)
}

func (s *Strategy) satisfiesCriteria(channel *types.ChannelEntry, untouched []types.AcknowledgedTicket) bool {
	if uint32(len(untouched)) < s.cfg.MinimumAggregationBatchSize {
		return false
	}
	if s.cfg.AggregationThreshold != nil && uint32(len(untouched)) >= *s.cfg.AggregationThreshold {
		return true
	}
	if s.cfg.UnrealizedBalanceRatio != nil {
		unrealized := sumUnrealized(untouched)
		balance := channel.Balance.Amount()
		if balance.Sign() > 0 {
			ratio, _ := new(big.Float).Quo(
				new(big.Float).SetInt(unrealized),
				new(big.Float).SetInt(balance),
			).Float64()
			if ratio >= float64(*s.cfg.UnrealizedBalanceRatio) {
				return true
			}
		}
	}
	return false
}

// StartAggregation marks every Untouched ticket of channelID's current
// epoch BeingAggregated, runs the protocol, and either commits the
// resulting aggregated ticket or rolls every marked ticket back to
// Untouched. The mark is a single atomic DB operation
// (PrepareAggregatableTickets), so a concurrent redemption attempt on
// the same tickets always loses the race cleanly rather than double
// spending the ticket on-chain. If redeemIfFailed is set, a rollback
// (protocol failure or timeout) is followed by dispatching every
// now-Untouched ticket in the channel to the redemption engine instead
// of leaving the channel's value waiting for the next trigger.
func (s *Strategy) StartAggregation(ctx context.Context, channelID types.Hash, redeemIfFailed bool) error {
	channel, err := s.store.GetChannel(ctx, channelID)
	if err != nil {
		return err
	}
	if channel == nil {
		return corerrors.Wrap(corerrors.ErrChannelDoesNotExist)
	}

	marked, err := s.store.PrepareAggregatableTickets(ctx, channelID, channel.ChannelEpoch, 0, ^uint64(0))
	if err != nil {
		return err
	}
	if len(marked) < 2 {
		if len(marked) > 0 {
			_ = s.store.RollbackAggregationInChannel(ctx, channelID, channel.ChannelEpoch)
		}
		return corerrors.Wrap(corerrors.ErrCriteriaNotSatisfied)
	}

	runCtx, cancel := context.WithTimeout(ctx, s.cfg.AggregationTimeout)
	defer cancel()

	done := make(chan struct {
		ticket *types.AcknowledgedTicket
		err    error
	}, 1)
	go func() {
		aggregated, aggErr := s.protocol.Aggregate(runCtx, channel, marked)
		done <- struct {
			ticket *types.AcknowledgedTicket
			err    error
		}{aggregated, aggErr}
	}()

	select {
	case result := <-done:
		if result.err != nil {
			return s.rollback(ctx, channelID, channel.ChannelEpoch, result.err, redeemIfFailed)
		}
		result.ticket.Status = types.Untouched
		if err := s.store.UpdateAcknowledgedTicket(ctx, result.ticket); err != nil {
			return err
		}
		return s.pruneSuperseded(ctx, channelID, marked, result.ticket)
	case <-runCtx.Done():
		return s.rollback(ctx, channelID, channel.ChannelEpoch, corerrors.ErrTimeout, redeemIfFailed)
	}
}

// pruneSuperseded marks the pre-aggregation tickets that the new
// aggregated ticket now subsumes BeingRedeemed, so neither redemption nor
// a later aggregation picks them up again. The row at the aggregate's own
// index already holds the aggregate and is left as it is; the other rows
// are kept, not deleted.
func (s *Strategy) pruneSuperseded(ctx context.Context, channelID types.Hash, superseded []types.AcknowledgedTicket, winner *types.AcknowledgedTicket) error {
	for i := range superseded {
		if superseded[i].Ticket.Index == winner.Ticket.Index {
			continue
		}
		superseded[i].Status = types.BeingRedeemed
		if err := s.store.UpdateAcknowledgedTicket(ctx, &superseded[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Strategy) rollback(ctx context.Context, channelID types.Hash, epoch uint32, cause error, redeemIfFailed bool) error {
	if err := s.store.RollbackAggregationInChannel(ctx, channelID, epoch); err != nil {
		return err
	}
	if redeemIfFailed && s.redeemer != nil {
		if _, err := s.redeemer.RedeemTicketsInChannel(ctx, channelID); err != nil {
			log.Warnf("redeem-if-failed fallback for channel %s after aggregation failure (%v): %v", channelID, cause, err)
		}
	}
	return corerrors.Wrap(cause)
}

// RecoverStaleMarks rolls back every BeingAggregated ticket across every
// channel back to Untouched, to be called once at startup: a prior
// process may have crashed mid-aggregation, leaving tickets marked but
// with no protocol run in flight to ever resolve them.
func (s *Strategy) RecoverStaleMarks(ctx context.Context) error {
	tickets, err := s.store.GetAcknowledgedTickets(ctx, types.Hash{})
	if err != nil {
		return err
	}
	seen := map[types.Hash]map[uint32]struct{}{}
	for _, t := range tickets {
		if t.Status != types.BeingAggregated {
			continue
		}
		channelID := t.Ticket.ChannelID
		if seen[channelID] == nil {
			seen[channelID] = map[uint32]struct{}{}
		}
		if _, ok := seen[channelID][t.Ticket.ChannelEpoch]; ok {
			continue
		}
		seen[channelID][t.Ticket.ChannelEpoch] = struct{}{}
		if err := s.store.RollbackAggregationInChannel(ctx, channelID, t.Ticket.ChannelEpoch); err != nil {
			return err
		}
	}
	return nil
}

func untouchedTickets(tickets []types.AcknowledgedTicket) []types.AcknowledgedTicket {
	var out []types.AcknowledgedTicket
	for _, t := range tickets {
		if t.Status == types.Untouched {
			out = append(out, t)
		}
	}
	return out
}

// sumUnrealized totals the value still waiting to be aggregated,
// excluding tickets that are already the product of a prior aggregation
// (spec §4.4, §8 scenario 6): once a ticket has been aggregated its
// value is realized as a single ticket pending redemption, not
// unrealized value competing for a new aggregation request.
func sumUnrealized(tickets []types.AcknowledgedTicket) *big.Int {
	sum := big.NewInt(0)
	for _, t := range tickets {
		if t.Ticket.IsAggregated() {
			continue
		}
		sum.Add(sum, t.Ticket.Amount.Amount())
	}
	return sum
}
