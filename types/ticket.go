package types

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/big"
)

// TicketStatus is the lifecycle state of an AcknowledgedTicket.
type TicketStatus uint8

const (
	// Untouched tickets have not yet been claimed by either the
	// aggregation strategy or the redemption engine.
	Untouched TicketStatus = iota
	// BeingAggregated tickets are a member of exactly one in-flight
	// aggregation request.
	BeingAggregated
	// BeingRedeemed tickets have been (or are being) sent to the action
	// queue exactly once.
	BeingRedeemed
)

func (s TicketStatus) String() string {
	switch s {
	case Untouched:
		return "Untouched"
	case BeingAggregated:
		return "BeingAggregated"
	case BeingRedeemed:
		return "BeingRedeemed"
	default:
		return fmt.Sprintf("TicketStatus(%d)", uint8(s))
	}
}

// SignatureLength is the size in bytes of a ticket's compact signature.
const SignatureLength = 64

// EncodedWinProbLength is the size in bytes of a ticket's monotone
// winning-probability encoding.
const EncodedWinProbLength = 7

// Ticket is immutable once signed. index/channel_epoch are stored in
// their full Go widths but only the documented number of low bits are
// meaningful on the wire (48 and 24 bits respectively); Encode truncates
// accordingly and Validate rejects values that don't fit.
type Ticket struct {
	ChannelID       Hash
	Amount          Balance // wxHOPR, 96-bit ceiling enforced by NewBalance
	Index           uint64  // 48-bit on wire
	IndexOffset     uint32  // 1 for unaggregated; >1 for an aggregated range
	ChannelEpoch    uint32  // 24-bit on wire
	EncodedWinProb  [EncodedWinProbLength]byte
	TicketChallenge Challenge
	Signature       [SignatureLength]byte
}

// MaxUint24 is the largest value representable in the 24-bit channel
// epoch field.
const MaxUint24 = 1<<24 - 1

// MaxUint48 is the largest value representable in the 48-bit index
// field.
const MaxUint48 = 1<<48 - 1

// IsAggregated reports whether the ticket covers more than one
// underlying acknowledged ticket (index_offset > 1).
func (t *Ticket) IsAggregated() bool {
	return t.IndexOffset > 1
}

// Fingerprint returns the identity of the ticket for the purposes of
// (channel_id, channel_epoch, index) uniqueness checks.
func (t *Ticket) Fingerprint() (Hash, uint32, uint64) {
	return t.ChannelID, t.ChannelEpoch, t.Index
}

// Validate checks the wire-width constraints on a ticket's numeric
// fields, returning an error describing the first violation found.
func (t *Ticket) Validate() error {
	if t.Index > MaxUint48 {
		return fmt.Errorf("ticket index %d exceeds 48-bit ceiling", t.Index)
	}
	if t.ChannelEpoch > MaxUint24 {
		return fmt.Errorf("ticket channel epoch %d exceeds 24-bit ceiling", t.ChannelEpoch)
	}
	if t.IndexOffset == 0 {
		return fmt.Errorf("ticket index offset must be >= 1")
	}
	if t.Amount.Currency() != WxHOPR {
		return fmt.Errorf("ticket amount must be denominated in wxHOPR, got %s", t.Amount.Currency())
	}
	return nil
}

// Encode serializes the ticket into the storage representation used by
// store/boltstore: channel id, amount, index, index_offset, epoch,
// win-prob, challenge, and signature in that order, all big-endian.
func (t *Ticket) Encode() []byte {
	var buf bytes.Buffer
	buf.Write(t.ChannelID[:])

	amountBytes := t.Amount.Amount().FillBytes(make([]byte, 12)) // 96 bits
	buf.Write(amountBytes)

	var idx [6]byte
	PutUint48(idx[:], t.Index)
	buf.Write(idx[:])

	var offset [4]byte
	binary.BigEndian.PutUint32(offset[:], t.IndexOffset)
	buf.Write(offset[:])

	var epoch [3]byte
	epoch32 := make([]byte, 4)
	binary.BigEndian.PutUint32(epoch32, t.ChannelEpoch)
	copy(epoch[:], epoch32[1:])
	buf.Write(epoch[:])

	buf.Write(t.EncodedWinProb[:])
	buf.Write(t.TicketChallenge[:])
	buf.Write(t.Signature[:])
	return buf.Bytes()
}

// DecodeTicket is the inverse of Ticket.Encode.
func DecodeTicket(b []byte) (*Ticket, error) {
	const fixedLen = HashLength + 12 + 6 + 4 + 3 + EncodedWinProbLength + ChallengeLength + SignatureLength
	if len(b) != fixedLen {
		return nil, fmt.Errorf("ticket encoding has wrong length: got %d, want %d", len(b), fixedLen)
	}
	t := &Ticket{}
	off := 0
	copy(t.ChannelID[:], b[off:off+HashLength])
	off += HashLength

	amount := new(big.Int).SetBytes(b[off : off+12])
	off += 12
	bal, err := NewBalance(amount, WxHOPR)
	if err != nil {
		return nil, fmt.Errorf("decode ticket amount: %w", err)
	}
	t.Amount = bal

	t.Index = Uint48(b[off : off+6])
	off += 6

	t.IndexOffset = binary.BigEndian.Uint32(b[off : off+4])
	off += 4

	epoch32 := make([]byte, 4)
	copy(epoch32[1:], b[off:off+3])
	t.ChannelEpoch = binary.BigEndian.Uint32(epoch32)
	off += 3

	copy(t.EncodedWinProb[:], b[off:off+EncodedWinProbLength])
	off += EncodedWinProbLength

	copy(t.TicketChallenge[:], b[off:off+ChallengeLength])
	off += ChallengeLength

	copy(t.Signature[:], b[off:off+SignatureLength])

	return t, nil
}

// AcknowledgedTicket combines a signed Ticket with the second half-key
// response that proves the relayed packet was forwarded, the address of
// the party that signed the ticket, and the ticket's lifecycle status.
type AcknowledgedTicket struct {
	Ticket       Ticket
	Response     Response
	Signer       Address
	Status       TicketStatus
}

// Key returns the composite key under which this ticket is addressed in
// the store: (channel_id, channel_epoch, index).
func (a *AcknowledgedTicket) Key() (Hash, uint32, uint64) {
	return a.Ticket.Fingerprint()
}

// IsAggregated reports whether the underlying ticket is an aggregated
// ticket.
func (a *AcknowledgedTicket) IsAggregated() bool {
	return a.Ticket.IsAggregated()
}
