package aggregation

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/hoprnet/hopr-chain-core/corerrors"
	"github.com/hoprnet/hopr-chain-core/payload"
	"github.com/hoprnet/hopr-chain-core/types"
)

// Responder serves the counterparty side of the two-party aggregation
// protocol (spec §4.5). Every relay plays both roles: twoPartyProtocol
// requests aggregation of its own outgoing channels' tickets, and
// Responder answers requests from upstream relays for the incoming
// channels whose tickets this node originally signed.
type Responder struct {
	self             types.Address
	key              *ecdsa.PrivateKey
	domainSeparators DomainSeparatorSource
}

// NewResponder constructs a Responder. self and key identify this node
// as the original signer of the tickets it will be asked to aggregate;
// domainSeparators supplies the chain-specific separator both
// validation and re-signing need.
func NewResponder(self types.Address, key *ecdsa.PrivateKey, domainSeparators DomainSeparatorSource) *Responder {
	return &Responder{self: self, key: key, domainSeparators: domainSeparators}
}

// Handle validates an incoming aggregation request and, if it passes,
// builds and signs the replacement aggregate ticket. A validation
// failure is reported as a Rejected response with a reason rather than
// a Go error, matching spec §4.5's Ok/Err reply shape; only an
// infrastructure failure (domain separator not yet known) is returned
// as an error.
func (r *Responder) Handle(ctx context.Context, req AggregationRequest) (AggregationResponse, error) {
	domainSeparator, err := r.domainSeparators.GetChannelsDomainSeparator(ctx)
	if err != nil {
		return AggregationResponse{}, err
	}
	if domainSeparator == nil {
		return AggregationResponse{}, corerrors.Wrap(fmt.Errorf("aggregation: channels domain separator not yet known"))
	}

	if reason := r.validate(req, *domainSeparator); reason != "" {
		return AggregationResponse{Rejected: true, Reason: reason}, nil
	}

	aggregated, err := r.build(req, *domainSeparator)
	if err != nil {
		return AggregationResponse{Rejected: true, Reason: err.Error()}, nil
	}
	return AggregationResponse{Aggregated: aggregated}, nil
}

// validate checks the incoming batch against spec §4.5's responder-side
// rules: a shared channel_id and channel_epoch, strictly increasing
// gapless indices, and each ticket's signature verifying under this
// node's own chain key (the responder is always the original signer of
// the tickets it is asked to fold). It returns a human-readable
// rejection reason, or "" if the batch is valid.
func (r *Responder) validate(req AggregationRequest, domainSeparator types.Hash) string {
	if len(req.Tickets) < 2 {
		return "batch must contain at least two tickets"
	}

	prevIndex := req.Tickets[0].Index
	for i, t := range req.Tickets {
		if t.ChannelID != req.ChannelID {
			return "ticket channel id does not match the request"
		}
		if t.ChannelEpoch != req.Epoch {
			return "ticket channel epoch does not match the request"
		}
		if i > 0 && t.Index != prevIndex+1 {
			return "ticket indices are not strictly increasing with no gaps"
		}
		prevIndex = t.Index

		verified, err := payload.VerifyTicketSignature(&t, domainSeparator, r.self)
		if err != nil || !verified {
			return fmt.Sprintf("ticket %d does not verify under this node's chain key", t.Index)
		}
	}
	return ""
}

// build folds req.Tickets into one freshly signed aggregate, per spec
// §4.5: index is the first ticket's, index_offset spans the contiguous
// range, amount is the sum, and the challenge combines every component
// ticket's challenge the same way a single ticket's challenge commits to
// its own response.
func (r *Responder) build(req AggregationRequest, domainSeparator types.Hash) (*types.Ticket, error) {
	first := req.Tickets[0]
	last := req.Tickets[len(req.Tickets)-1]

	sum := new(big.Int)
	for _, t := range req.Tickets {
		sum.Add(sum, t.Amount.Amount())
	}
	amount, err := types.NewBalance(sum, types.WxHOPR)
	if err != nil {
		return nil, fmt.Errorf("aggregation: aggregate amount: %w", err)
	}

	aggregated := &types.Ticket{
		ChannelID:       req.ChannelID,
		Amount:          amount,
		Index:           first.Index,
		IndexOffset:     uint32(last.Index-first.Index) + 1,
		ChannelEpoch:    req.Epoch,
		EncodedWinProb:  last.EncodedWinProb,
		TicketChallenge: aggregatedChallenge(req.Tickets),
	}
	if err := payload.SignTicket(aggregated, domainSeparator, r.key); err != nil {
		return nil, fmt.Errorf("aggregation: sign aggregate: %w", err)
	}
	return aggregated, nil
}

// aggregatedChallenge combines the component tickets' challenges into
// one commitment for the aggregate, the same keccak256-and-truncate
// construction a single ticket's challenge uses over its response.
func aggregatedChallenge(tickets []types.Ticket) types.Challenge {
	buf := make([]byte, 0, len(tickets)*types.ChallengeLength)
	for _, t := range tickets {
		buf = append(buf, t.TicketChallenge[:]...)
	}
	digest := crypto.Keccak256(buf)
	var out types.Challenge
	copy(out[:], digest[:types.ChallengeLength])
	return out
}
