package aggregation

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/lightningnetwork/lnd/ticker"

	"github.com/hoprnet/hopr-chain-core/corerrors"
	"github.com/hoprnet/hopr-chain-core/payload"
	"github.com/hoprnet/hopr-chain-core/types"
)

// DomainSeparatorSource supplies the channels domain separator the
// protocol needs to compute and verify ticket signing hashes, the same
// value the redemption engine reads before gating a ticket's claim.
type DomainSeparatorSource interface {
	GetChannelsDomainSeparator(ctx context.Context) (*types.Hash, error)
}

// Transport is the wire-level send/receive surface the protocol needs
// from the underlying mixnet session with the channel counterparty. It
// is intentionally minimal: one request, one response, per aggregation
// attempt.
type Transport interface {
	SendAggregationRequest(ctx context.Context, counterparty types.Address, req AggregationRequest) error
	ReceiveAggregationResponse(ctx context.Context, counterparty types.Address) (AggregationResponse, error)
}

// AggregationRequest is the requester's proposal: the contiguous range
// of tickets it wants the counterparty to fold into one.
type AggregationRequest struct {
	ChannelID types.Hash
	Epoch     uint32
	Tickets   []types.Ticket
}

// AggregationResponse is the counterparty's signed aggregate, or a
// rejection reason.
type AggregationResponse struct {
	Aggregated *types.Ticket
	Rejected   bool
	Reason     string
}

// twoPartyProtocol implements Protocol as the requester side of the
// aggregation RPC: send the batch, wait for a signed aggregate within a
// bounded number of heartbeats, validate it, and produce the
// AcknowledgedTicket the strategy persists.
type twoPartyProtocol struct {
	transport        Transport
	domainSeparators DomainSeparatorSource
	heartbeat        time.Duration
	maxHeartbeats    int
}

// NewProtocol returns a Protocol that drives the two-party aggregation
// RPC over transport, retrying its wait in heartbeat-sized increments
// up to maxHeartbeats times before giving up (the context deadline set
// by Strategy.StartAggregation is still the hard ceiling).
func NewProtocol(transport Transport, domainSeparators DomainSeparatorSource, heartbeat time.Duration, maxHeartbeats int) Protocol {
	return &twoPartyProtocol{transport: transport, domainSeparators: domainSeparators, heartbeat: heartbeat, maxHeartbeats: maxHeartbeats}
}

func (p *twoPartyProtocol) Aggregate(ctx context.Context, channel *types.ChannelEntry, tickets []types.AcknowledgedTicket) (*types.AcknowledgedTicket, error) {
	domainSeparator, err := p.domainSeparators.GetChannelsDomainSeparator(ctx)
	if err != nil {
		return nil, err
	}
	if domainSeparator == nil {
		return nil, corerrors.Wrap(fmt.Errorf("aggregation: channels domain separator not yet known"))
	}

	req := AggregationRequest{
		ChannelID: channel.ID(),
		Epoch:     channel.ChannelEpoch,
		Tickets:   ticketsOf(tickets),
	}

	if err := p.transport.SendAggregationRequest(ctx, channel.Destination, req); err != nil {
		return nil, corerrors.Wrap(fmt.Errorf("aggregation: send request: %w", err))
	}

	hb := ticker.New(p.heartbeat)
	hb.Resume()
	defer hb.Stop()

	attempts := 0
	for {
		respCh := make(chan AggregationResponse, 1)
		errCh := make(chan error, 1)
		go func() {
			resp, err := p.transport.ReceiveAggregationResponse(ctx, channel.Destination)
			if err != nil {
				errCh <- err
				return
			}
			respCh <- resp
		}()

		select {
		case resp := <-respCh:
			return p.validate(channel, *domainSeparator, resp, tickets)
		case err := <-errCh:
			attempts++
			if attempts >= p.maxHeartbeats {
				return nil, corerrors.Wrap(fmt.Errorf("aggregation: receive response: %w", err))
			}
		case <-hb.Ticks():
			attempts++
			if attempts >= p.maxHeartbeats {
				return nil, corerrors.Wrap(corerrors.ErrTimeout)
			}
		case <-ctx.Done():
			return nil, corerrors.Wrap(ctx.Err())
		}
	}
}

func (p *twoPartyProtocol) validate(channel *types.ChannelEntry, domainSeparator types.Hash, resp AggregationResponse, requested []types.AcknowledgedTicket) (*types.AcknowledgedTicket, error) {
	if resp.Rejected || resp.Aggregated == nil {
		return nil, corerrors.Wrap(fmt.Errorf("aggregation: counterparty rejected request: %s", resp.Reason))
	}
	agg := resp.Aggregated
	if err := agg.Validate(); err != nil {
		return nil, corerrors.Wrap(fmt.Errorf("aggregation: invalid aggregate: %w", err))
	}
	if !agg.IsAggregated() {
		return nil, corerrors.Wrap(fmt.Errorf("aggregation: counterparty returned a non-aggregated ticket"))
	}
	if agg.ChannelID != channel.ID() || agg.ChannelEpoch != channel.ChannelEpoch {
		return nil, corerrors.Wrap(fmt.Errorf("aggregation: aggregate channel/epoch does not match the request"))
	}
	if int(agg.IndexOffset) != len(requested) {
		return nil, corerrors.Wrap(fmt.Errorf("aggregation: aggregate covers %d tickets, requested %d", agg.IndexOffset, len(requested)))
	}
	lowestIndex := requested[0].Ticket.Index
	wantAmount := new(big.Int)
	for _, t := range requested {
		if t.Ticket.Index < lowestIndex {
			lowestIndex = t.Ticket.Index
		}
		wantAmount.Add(wantAmount, t.Ticket.Amount.Amount())
	}
	if agg.Index != lowestIndex {
		return nil, corerrors.Wrap(fmt.Errorf("aggregation: aggregate index %d does not match requested range start %d", agg.Index, lowestIndex))
	}
	if agg.Amount.Amount().Cmp(wantAmount) != 0 {
		return nil, corerrors.Wrap(fmt.Errorf("aggregation: aggregate amount %s does not match requested sum %s", agg.Amount.Amount(), wantAmount))
	}
	verified, err := payload.VerifyTicketSignature(agg, domainSeparator, channel.Destination)
	if err != nil {
		return nil, corerrors.Wrap(fmt.Errorf("aggregation: verify aggregate signature: %w", err))
	}
	if !verified {
		return nil, corerrors.Wrap(fmt.Errorf("aggregation: aggregate signature does not verify under the counterparty's chain key"))
	}

	return &types.AcknowledgedTicket{
		Ticket:   *agg,
		Response: requested[0].Response,
		Signer:   requested[0].Signer,
		Status:   types.Untouched,
	}, nil
}

func ticketsOf(tickets []types.AcknowledgedTicket) []types.Ticket {
	out := make([]types.Ticket, len(tickets))
	for i, t := range tickets {
		out[i] = t.Ticket
	}
	return out
}
