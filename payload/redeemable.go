package payload

import (
	"fmt"

	"github.com/hoprnet/hopr-chain-core/types"
)

// RedeemableTicket is the wire-ready packing of an AcknowledgedTicket for
// the redeem_ticket intent, per spec §4.1: channel id, 96-bit amount,
// 48-bit index, index_offset, 24-bit epoch, 56-bit win_prob, a compact
// signature split into (r, vs), the response preimage ("porSecret"), and
// the transformed VRF parameters.
type RedeemableTicket struct {
	ChannelID      types.Hash
	Amount         types.Balance // wxHOPR, 96-bit ceiling
	Index          uint64        // 48-bit on wire
	IndexOffset    uint32
	ChannelEpoch   uint32 // 24-bit on wire
	EncodedWinProb [7]byte
	SignatureR     [32]byte
	SignatureVS    [32]byte
	PorSecret      [32]byte
	VRF            OnChainVRFParameters
}

// BuildRedeemableTicket packs an AcknowledgedTicket plus its VRF proof
// into the wire shape redeem_ticket needs, splitting the ticket's
// 64-byte compact signature into the (r, vs) halves the contract
// verifier expects and validating every wire-width constraint up front
// so a malformed ticket never reaches the signer.
func BuildRedeemableTicket(ack *types.AcknowledgedTicket, domainSeparator types.Hash, proof OffChainVRFOutput) (*RedeemableTicket, error) {
	if err := ack.Ticket.Validate(); err != nil {
		return nil, fmt.Errorf("payload: %w", err)
	}

	ticketHash, err := TicketSigningHash(&ack.Ticket, domainSeparator)
	if err != nil {
		return nil, err
	}

	vrfParams, err := TransformVRFParameters(proof, ack.Signer, ticketHash, domainSeparator)
	if err != nil {
		return nil, fmt.Errorf("payload: transform VRF parameters: %w", err)
	}

	rt := &RedeemableTicket{
		ChannelID:      ack.Ticket.ChannelID,
		Amount:         ack.Ticket.Amount,
		Index:          ack.Ticket.Index,
		IndexOffset:    ack.Ticket.IndexOffset,
		ChannelEpoch:   ack.Ticket.ChannelEpoch,
		EncodedWinProb: ack.Ticket.EncodedWinProb,
		PorSecret:      ack.Response,
		VRF:            *vrfParams,
	}
	copy(rt.SignatureR[:], ack.Ticket.Signature[:32])
	copy(rt.SignatureVS[:], ack.Ticket.Signature[32:])

	return rt, nil
}
