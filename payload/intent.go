package payload

import (
	"github.com/hoprnet/hopr-chain-core/types"
)

// Intent is the sum type of every high-level action the payload
// generator can translate into a signed transaction (spec §4.1's
// operation table).
type Intent interface {
	isIntent()
}

// Approve authorizes spender to transfer up to amount of the token
// contract's balance on the node's behalf.
type Approve struct {
	Spender types.Address
	Amount  types.Balance
}

// Transfer moves amount of currency to destination. wxHOPR transfers go
// through the token contract; xDai transfers go directly to destination.
type Transfer struct {
	Destination types.Address
	Amount      types.Balance
}

// KeyBinding optionally accompanies an Announce intent, cryptographically
// binding the announced multiaddress to an ed25519 packet-processing key.
type KeyBinding struct {
	Ed25519Signature [64]byte
	Ed25519PubKey    [32]byte
}

// Announce publishes a multiaddress (and optionally a key binding) to
// the announcements contract.
type Announce struct {
	Multiaddress string
	KeyBinding   *KeyBinding
}

// FundChannel increases (or, for a closed/nonexistent channel, opens) the
// channel from the node to dest by amount.
type FundChannel struct {
	Destination types.Address
	Amount      types.Balance
}

// CloseIncomingChannel immediately closes the channel whose source is
// source and whose destination is the node.
type CloseIncomingChannel struct {
	Source types.Address
}

// InitiateOutgoingChannelClosure starts the closure grace period on the
// channel from the node to destination.
type InitiateOutgoingChannelClosure struct {
	Destination types.Address
}

// FinalizeOutgoingChannelClosure completes the closure of the channel
// from the node to destination after its grace period has expired.
type FinalizeOutgoingChannelClosure struct {
	Destination types.Address
}

// RedeemTicket redeems a signed, winning ticket on-chain.
type RedeemTicket struct {
	Ticket RedeemableTicket
}

// RegisterSafeByNode registers safeAddr as the node's Safe in the
// node-safe-registry contract.
type RegisterSafeByNode struct {
	SafeAddress types.Address
}

// DeregisterNodeBySafe removes the node from its Safe's module. Only
// valid when the payload generator is configured in Safe mode.
type DeregisterNodeBySafe struct{}

func (Approve) isIntent()                        {}
func (Transfer) isIntent()                       {}
func (Announce) isIntent()                       {}
func (FundChannel) isIntent()                    {}
func (CloseIncomingChannel) isIntent()            {}
func (InitiateOutgoingChannelClosure) isIntent() {}
func (FinalizeOutgoingChannelClosure) isIntent() {}
func (RedeemTicket) isIntent()                   {}
func (RegisterSafeByNode) isIntent()             {}
func (DeregisterNodeBySafe) isIntent()           {}
