package types

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/big"
	"time"
)

// Encode serializes an AcknowledgedTicket as: encoded ticket, response,
// signer address, status byte. Used by store/boltstore.
func (a *AcknowledgedTicket) Encode() []byte {
	var buf bytes.Buffer
	ticketBytes := a.Ticket.Encode()
	var lenPrefix [2]byte
	binary.BigEndian.PutUint16(lenPrefix[:], uint16(len(ticketBytes)))
	buf.Write(lenPrefix[:])
	buf.Write(ticketBytes)
	buf.Write(a.Response[:])
	buf.Write(a.Signer[:])
	buf.WriteByte(byte(a.Status))
	return buf.Bytes()
}

// DecodeAcknowledgedTicket is the inverse of AcknowledgedTicket.Encode.
func DecodeAcknowledgedTicket(b []byte) (*AcknowledgedTicket, error) {
	if len(b) < 2 {
		return nil, fmt.Errorf("acknowledged ticket encoding too short")
	}
	ticketLen := int(binary.BigEndian.Uint16(b[:2]))
	off := 2
	if len(b) < off+ticketLen+ResponseLength+AddressLength+1 {
		return nil, fmt.Errorf("acknowledged ticket encoding has wrong length")
	}
	ticket, err := DecodeTicket(b[off : off+ticketLen])
	if err != nil {
		return nil, fmt.Errorf("decode acknowledged ticket: %w", err)
	}
	off += ticketLen

	a := &AcknowledgedTicket{Ticket: *ticket}
	copy(a.Response[:], b[off:off+ResponseLength])
	off += ResponseLength
	copy(a.Signer[:], b[off:off+AddressLength])
	off += AddressLength
	a.Status = TicketStatus(b[off])

	return a, nil
}

// Encode serializes a ChannelEntry as: source, destination, balance (12
// bytes), ticket index (8), status kind (1), closure deadline unix nanos
// (8), channel epoch (4). Used by store/boltstore.
func (c *ChannelEntry) Encode() []byte {
	var buf bytes.Buffer
	buf.Write(c.Source[:])
	buf.Write(c.Destination[:])
	buf.Write(c.Balance.Amount().FillBytes(make([]byte, 12)))

	var idx [8]byte
	binary.BigEndian.PutUint64(idx[:], c.TicketIndex)
	buf.Write(idx[:])

	buf.WriteByte(byte(c.Status.Kind))

	var deadline [8]byte
	binary.BigEndian.PutUint64(deadline[:], uint64(c.Status.ClosureDeadline.UnixNano()))
	buf.Write(deadline[:])

	var epoch [4]byte
	binary.BigEndian.PutUint32(epoch[:], c.ChannelEpoch)
	buf.Write(epoch[:])

	return buf.Bytes()
}

// DecodeChannelEntry is the inverse of ChannelEntry.Encode.
func DecodeChannelEntry(b []byte) (*ChannelEntry, error) {
	const wantLen = AddressLength*2 + 12 + 8 + 1 + 8 + 4
	if len(b) != wantLen {
		return nil, fmt.Errorf("channel entry encoding has wrong length: got %d, want %d", len(b), wantLen)
	}
	c := &ChannelEntry{}
	off := 0
	copy(c.Source[:], b[off:off+AddressLength])
	off += AddressLength
	copy(c.Destination[:], b[off:off+AddressLength])
	off += AddressLength

	amount := new(big.Int).SetBytes(b[off : off+12])
	off += 12
	bal, err := NewBalance(amount, WxHOPR)
	if err != nil {
		return nil, fmt.Errorf("decode channel balance: %w", err)
	}
	c.Balance = bal

	c.TicketIndex = binary.BigEndian.Uint64(b[off : off+8])
	off += 8

	c.Status.Kind = ChannelStatusKind(b[off])
	off++

	nanos := binary.BigEndian.Uint64(b[off : off+8])
	if nanos != 0 {
		c.Status.ClosureDeadline = time.Unix(0, int64(nanos)).UTC()
	}
	off += 8

	c.ChannelEpoch = binary.BigEndian.Uint32(b[off : off+4])

	return c, nil
}

// TicketKey builds the big-endian (channel_id, epoch, index) composite
// key used to address an acknowledged ticket row.
func TicketKey(channelID Hash, epoch uint32, index uint64) []byte {
	key := make([]byte, HashLength+4+8)
	copy(key[:HashLength], channelID[:])
	binary.BigEndian.PutUint32(key[HashLength:HashLength+4], epoch)
	binary.BigEndian.PutUint64(key[HashLength+4:], index)
	return key
}
