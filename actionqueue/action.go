// Package actionqueue serializes every on-chain action the node issues
// through a single writer, so that nonce assignment, fee bumping, and
// confirmation tracking never race (spec §4.2). It is modeled on
// htlcswitch.Switch's single htlcPlex loop and switch_control.go's
// ControlTower: one goroutine owns the FIFO, state transitions are
// expressed as small idempotent methods guarded by a mutex.
package actionqueue

import (
	"github.com/hoprnet/hopr-chain-core/payload"
	"github.com/hoprnet/hopr-chain-core/types"
)

// Action is the sum type of every unit of work the queue can execute.
// Each variant carries exactly the arguments its corresponding Intent
// needs; translation to a payload.Intent happens inside the loop so
// that payload construction, signing and broadcast all happen under
// the same serialized step.
type Action interface {
	isAction()
	// Intent converts the action into the payload.Intent the generator
	// expects.
	Intent() payload.Intent
	// String names the action for logging.
	String() string
}

// RedeemTicketAction redeems a single signed, winning ticket.
type RedeemTicketAction struct {
	Ticket payload.RedeemableTicket
}

// OpenChannelAction opens (funds from zero) a channel to Destination.
type OpenChannelAction struct {
	Destination types.Address
	Amount      types.Balance
}

// FundChannelAction increases an existing channel's balance.
type FundChannelAction struct {
	Destination types.Address
	Amount      types.Balance
}

// CloseChannelAction closes a channel, in either direction. Incoming
// closes immediately; Outgoing either initiates or finalizes the
// closure grace period depending on Finalize.
type CloseChannelAction struct {
	Counterparty types.Address
	Direction    types.ChannelDirection
	Finalize     bool
}

// AnnounceAction publishes a multiaddress, optionally with a key binding.
type AnnounceAction struct {
	Multiaddress string
	KeyBinding   *payload.KeyBinding
}

// RegisterSafeAction registers the node's Safe address.
type RegisterSafeAction struct {
	SafeAddress types.Address
}

// WithdrawAction transfers funds out of the node's account.
type WithdrawAction struct {
	Destination types.Address
	Amount      types.Balance
}

func (RedeemTicketAction) isAction()  {}
func (OpenChannelAction) isAction()   {}
func (FundChannelAction) isAction()   {}
func (CloseChannelAction) isAction()  {}
func (AnnounceAction) isAction()      {}
func (RegisterSafeAction) isAction()  {}
func (WithdrawAction) isAction()      {}

func (a RedeemTicketAction) Intent() payload.Intent {
	return payload.RedeemTicket{Ticket: a.Ticket}
}
func (a RedeemTicketAction) String() string {
	return "redeem-ticket(" + a.Ticket.ChannelID.String() + ")"
}

func (a OpenChannelAction) Intent() payload.Intent {
	return payload.FundChannel{Destination: a.Destination, Amount: a.Amount}
}
func (a OpenChannelAction) String() string {
	return "open-channel(" + a.Destination.String() + ")"
}

func (a FundChannelAction) Intent() payload.Intent {
	return payload.FundChannel{Destination: a.Destination, Amount: a.Amount}
}
func (a FundChannelAction) String() string {
	return "fund-channel(" + a.Destination.String() + ")"
}

func (a CloseChannelAction) Intent() payload.Intent {
	if a.Direction == types.Incoming {
		return payload.CloseIncomingChannel{Source: a.Counterparty}
	}
	if a.Finalize {
		return payload.FinalizeOutgoingChannelClosure{Destination: a.Counterparty}
	}
	return payload.InitiateOutgoingChannelClosure{Destination: a.Counterparty}
}
func (a CloseChannelAction) String() string {
	return "close-channel(" + a.Counterparty.String() + ")"
}

func (a AnnounceAction) Intent() payload.Intent {
	return payload.Announce{Multiaddress: a.Multiaddress, KeyBinding: a.KeyBinding}
}
func (a AnnounceAction) String() string { return "announce(" + a.Multiaddress + ")" }

func (a RegisterSafeAction) Intent() payload.Intent {
	return payload.RegisterSafeByNode{SafeAddress: a.SafeAddress}
}
func (a RegisterSafeAction) String() string {
	return "register-safe(" + a.SafeAddress.String() + ")"
}

func (a WithdrawAction) Intent() payload.Intent {
	return payload.Transfer{Destination: a.Destination, Amount: a.Amount}
}
func (a WithdrawAction) String() string { return "withdraw(" + a.Destination.String() + ")" }
