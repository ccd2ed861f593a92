// Package chainevents defines the chain event stream contract (spec
// §6.2) the core subscribes to, generalized from chainntfs/chainntfs.go's
// ChainNotifier (RegisterConfirmationsNtfn/RegisterSpendNtfn returning a
// buffered-channel "Event" struct) from UTXO spend/confirmation events to
// SignificantChainEvent predicate matching.
package chainevents

import "github.com/hoprnet/hopr-chain-core/types"

// Subscriber is a trusted source of SignificantChainEvents, as observed
// by the on-chain indexer (an external collaborator; this package only
// describes the shape the core consumes).
type Subscriber interface {
	// Subscribe returns a channel of events observed from now on. The
	// channel is closed when the subscription is cancelled via the
	// returned cancel function, or when the indexer itself shuts down.
	Subscribe() (events <-chan types.SignificantChainEvent, cancel func())
}

// Predicate decides whether a SignificantChainEvent satisfies an
// expectation registered by the action queue's Action State Tracker.
type Predicate func(types.SignificantChainEvent) bool

// ForChannelAndKind builds a Predicate that matches any event concerning
// channelID whose underlying event type matches one of kinds (identified
// by example zero values, compared by dynamic type).
func ForChannelAndKind(channelID types.Hash, kinds ...types.ChainEventType) Predicate {
	wanted := make(map[string]struct{}, len(kinds))
	for _, k := range kinds {
		wanted[typeName(k)] = struct{}{}
	}
	return func(evt types.SignificantChainEvent) bool {
		if _, ok := wanted[typeName(evt.Event)]; !ok {
			return false
		}
		return channelOf(evt.Event) == channelID
	}
}

// ForTicketRedemption builds a Predicate that matches a TicketRedeemed
// event for a specific (channel, index).
func ForTicketRedemption(channelID types.Hash, index uint64) Predicate {
	return func(evt types.SignificantChainEvent) bool {
		redeemed, ok := evt.Event.(types.TicketRedeemedEvent)
		if !ok {
			return false
		}
		if redeemed.Channel.ID() != channelID {
			return false
		}
		if redeemed.Ticket == nil {
			return false
		}
		return redeemed.Ticket.Index == index
	}
}

func typeName(e types.ChainEventType) string {
	switch e.(type) {
	case types.ChannelOpenedEvent:
		return "ChannelOpened"
	case types.ChannelBalanceIncreasedEvent:
		return "ChannelBalanceIncreased"
	case types.ChannelClosureInitiatedEvent:
		return "ChannelClosureInitiated"
	case types.ChannelClosedEvent:
		return "ChannelClosed"
	case types.TicketRedeemedEvent:
		return "TicketRedeemed"
	case types.NodeSafeRegisteredEvent:
		return "NodeSafeRegistered"
	case types.AnnouncementEvent:
		return "Announcement"
	default:
		return "unknown"
	}
}

func channelOf(e types.ChainEventType) types.Hash {
	switch evt := e.(type) {
	case types.ChannelOpenedEvent:
		return evt.Channel.ID()
	case types.ChannelBalanceIncreasedEvent:
		return evt.Channel.ID()
	case types.ChannelClosureInitiatedEvent:
		return evt.Channel.ID()
	case types.ChannelClosedEvent:
		return evt.Channel.ID()
	case types.TicketRedeemedEvent:
		return evt.Channel.ID()
	default:
		return types.Hash{}
	}
}
