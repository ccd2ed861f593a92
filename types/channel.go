package types

import (
	"fmt"
	"time"

	"golang.org/x/crypto/sha3"
)

// ChannelStatusKind distinguishes the three states a payment channel can
// occupy.
type ChannelStatusKind uint8

const (
	// Closed channels hold no funds and accept no tickets.
	Closed ChannelStatusKind = iota
	// Open channels accept new tickets and can be funded.
	Open
	// PendingToClose channels have had their closure initiated and are
	// waiting out the closure_deadline before FinalizeOutgoingChannelClosure
	// may be called.
	PendingToClose
)

func (k ChannelStatusKind) String() string {
	switch k {
	case Closed:
		return "Closed"
	case Open:
		return "Open"
	case PendingToClose:
		return "PendingToClose"
	default:
		return fmt.Sprintf("ChannelStatusKind(%d)", uint8(k))
	}
}

// ChannelStatus tags a ChannelEntry's status kind with the closure
// deadline that is only meaningful in the PendingToClose state.
type ChannelStatus struct {
	Kind             ChannelStatusKind
	ClosureDeadline  time.Time
}

// ChannelDirection describes which side of a channel a node occupies.
type ChannelDirection uint8

const (
	// Incoming channels pay the local node (it is the destination).
	Incoming ChannelDirection = iota
	// Outgoing channels are funded by the local node (it is the source).
	Outgoing
)

func (d ChannelDirection) String() string {
	if d == Incoming {
		return "Incoming"
	}
	return "Outgoing"
}

// ChannelEntry is the on-chain state of a unidirectional payment channel
// between source and destination.
type ChannelEntry struct {
	Source       Address
	Destination  Address
	Balance      Balance // wxHOPR
	TicketIndex  uint64  // highest on-chain-acknowledged ticket index in this epoch
	Status       ChannelStatus
	ChannelEpoch uint32
}

// ChannelID computes keccak256(source || destination), the canonical
// identifier for a unidirectional channel.
func ChannelID(source, destination Address) Hash {
	h := sha3.NewLegacyKeccak256()
	h.Write(source[:])
	h.Write(destination[:])
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// ID returns this channel's identifier, derived from its endpoints.
func (c *ChannelEntry) ID() Hash {
	return ChannelID(c.Source, c.Destination)
}

// IsGraceExpired reports whether a PendingToClose channel's closure
// deadline has passed as of now. Calling this on a channel not in
// PendingToClose always returns false.
func (c *ChannelEntry) IsGraceExpired(now time.Time) bool {
	if c.Status.Kind != PendingToClose {
		return false
	}
	return now.After(c.Status.ClosureDeadline) || now.Equal(c.Status.ClosureDeadline)
}

// ChainEventType enumerates the significant on-chain events the core
// reacts to, as observed through the indexer.
type ChainEventType interface {
	isChainEventType()
}

type ChannelOpenedEvent struct{ Channel ChannelEntry }
type ChannelBalanceIncreasedEvent struct {
	Channel ChannelEntry
	Amount  Balance
}
type ChannelClosureInitiatedEvent struct{ Channel ChannelEntry }
type ChannelClosedEvent struct{ Channel ChannelEntry }
type TicketRedeemedEvent struct {
	Channel ChannelEntry
	Ticket  *Ticket // nil when the redeemed ticket could not be correlated
}
type NodeSafeRegisteredEvent struct{ SafeAddress Address }
type AnnouncementEvent struct {
	Peer           string
	Address        Address
	Multiaddresses []string
}

func (ChannelOpenedEvent) isChainEventType()           {}
func (ChannelBalanceIncreasedEvent) isChainEventType() {}
func (ChannelClosureInitiatedEvent) isChainEventType() {}
func (ChannelClosedEvent) isChainEventType()           {}
func (TicketRedeemedEvent) isChainEventType()          {}
func (NodeSafeRegisteredEvent) isChainEventType()      {}
func (AnnouncementEvent) isChainEventType()            {}

// SignificantChainEvent is a single event observed by the on-chain
// indexer and delivered to the core's subscribers.
type SignificantChainEvent struct {
	TxHash Hash
	Event  ChainEventType
}
