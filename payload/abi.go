package payload

import (
	gethabi "github.com/ethereum/go-ethereum/accounts/abi"
)

// abiType panics on an invalid type string; every call site below passes
// a constant, so a panic here can only mean a typo in this file, caught
// immediately by any test that exercises the generator.
func abiType(t string) gethabi.Type {
	typ, err := gethabi.NewType(t, "", nil)
	if err != nil {
		panic("payload: invalid abi type " + t + ": " + err.Error())
	}
	return typ
}

func arg(name, typ string) gethabi.Argument {
	return gethabi.Argument{Name: name, Type: abiType(typ)}
}

// methods holds one gethabi.Method per on-chain call in spec §6.4's
// call set. Each is built by hand (rather than from a generated JSON
// ABI) since spec.md explicitly scopes out the exact Solidity ABI beyond
// this call set; only the method signature and argument encoding need to
// be bit-exact.
var methods = struct {
	approve                             gethabi.Method
	transfer                            gethabi.Method
	announce                            gethabi.Method
	bindKeysAnnounce                    gethabi.Method
	announceSafe                        gethabi.Method
	bindKeysAnnounceSafe                gethabi.Method
	fundChannel                         gethabi.Method
	fundChannelSafe                     gethabi.Method
	closeIncomingChannel                gethabi.Method
	closeIncomingChannelSafe            gethabi.Method
	initiateOutgoingChannelClosure      gethabi.Method
	initiateOutgoingChannelClosureSafe  gethabi.Method
	finalizeOutgoingChannelClosure      gethabi.Method
	finalizeOutgoingChannelClosureSafe  gethabi.Method
	redeemTicket                        gethabi.Method
	redeemTicketSafe                    gethabi.Method
	registerSafeByNode                  gethabi.Method
	deregisterNodeBySafe                gethabi.Method
	execTransactionFromModule           gethabi.Method
}{
	approve: gethabi.NewMethod("approve", "approve", gethabi.Function, "nonpayable", false, false,
		gethabi.Arguments{arg("spender", "address"), arg("amount", "uint256")}, nil),
	transfer: gethabi.NewMethod("transfer", "transfer", gethabi.Function, "nonpayable", false, false,
		gethabi.Arguments{arg("to", "address"), arg("amount", "uint256")}, nil),

	announce: gethabi.NewMethod("announce", "announce", gethabi.Function, "nonpayable", false, false,
		gethabi.Arguments{arg("baseMultiaddr", "bytes")}, nil),
	bindKeysAnnounce: gethabi.NewMethod("bindKeysAnnounce", "bindKeysAnnounce", gethabi.Function, "nonpayable", false, false,
		gethabi.Arguments{arg("ed25519Sig0", "bytes32"), arg("ed25519Sig1", "bytes32"), arg("ed25519PubKey", "bytes32"), arg("baseMultiaddr", "bytes")}, nil),
	announceSafe: gethabi.NewMethod("announceSafe", "announceSafe", gethabi.Function, "nonpayable", false, false,
		gethabi.Arguments{arg("selfAddr", "address"), arg("baseMultiaddr", "bytes")}, nil),
	bindKeysAnnounceSafe: gethabi.NewMethod("bindKeysAnnounceSafe", "bindKeysAnnounceSafe", gethabi.Function, "nonpayable", false, false,
		gethabi.Arguments{arg("selfAddr", "address"), arg("ed25519Sig0", "bytes32"), arg("ed25519Sig1", "bytes32"), arg("ed25519PubKey", "bytes32"), arg("baseMultiaddr", "bytes")}, nil),

	fundChannel: gethabi.NewMethod("fundChannel", "fundChannel", gethabi.Function, "nonpayable", false, false,
		gethabi.Arguments{arg("account", "address"), arg("amount", "uint96")}, nil),
	fundChannelSafe: gethabi.NewMethod("fundChannelSafe", "fundChannelSafe", gethabi.Function, "nonpayable", false, false,
		gethabi.Arguments{arg("selfAddr", "address"), arg("account", "address"), arg("amount", "uint96")}, nil),

	closeIncomingChannel: gethabi.NewMethod("closeIncomingChannel", "closeIncomingChannel", gethabi.Function, "nonpayable", false, false,
		gethabi.Arguments{arg("source", "address")}, nil),
	closeIncomingChannelSafe: gethabi.NewMethod("closeIncomingChannelSafe", "closeIncomingChannelSafe", gethabi.Function, "nonpayable", false, false,
		gethabi.Arguments{arg("selfAddr", "address"), arg("source", "address")}, nil),

	initiateOutgoingChannelClosure: gethabi.NewMethod("initiateOutgoingChannelClosure", "initiateOutgoingChannelClosure", gethabi.Function, "nonpayable", false, false,
		gethabi.Arguments{arg("destination", "address")}, nil),
	initiateOutgoingChannelClosureSafe: gethabi.NewMethod("initiateOutgoingChannelClosureSafe", "initiateOutgoingChannelClosureSafe", gethabi.Function, "nonpayable", false, false,
		gethabi.Arguments{arg("selfAddr", "address"), arg("destination", "address")}, nil),

	finalizeOutgoingChannelClosure: gethabi.NewMethod("finalizeOutgoingChannelClosure", "finalizeOutgoingChannelClosure", gethabi.Function, "nonpayable", false, false,
		gethabi.Arguments{arg("destination", "address")}, nil),
	finalizeOutgoingChannelClosureSafe: gethabi.NewMethod("finalizeOutgoingChannelClosureSafe", "finalizeOutgoingChannelClosureSafe", gethabi.Function, "nonpayable", false, false,
		gethabi.Arguments{arg("selfAddr", "address"), arg("destination", "address")}, nil),

	redeemTicket: gethabi.NewMethod("redeemTicket", "redeemTicket", gethabi.Function, "nonpayable", false, false,
		redeemTicketArgs(false), nil),
	redeemTicketSafe: gethabi.NewMethod("redeemTicketSafe", "redeemTicketSafe", gethabi.Function, "nonpayable", false, false,
		redeemTicketArgs(true), nil),

	registerSafeByNode: gethabi.NewMethod("registerSafeByNode", "registerSafeByNode", gethabi.Function, "nonpayable", false, false,
		gethabi.Arguments{arg("safeAddr", "address")}, nil),
	deregisterNodeBySafe: gethabi.NewMethod("deregisterNodeBySafe", "deregisterNodeBySafe", gethabi.Function, "nonpayable", false, false,
		gethabi.Arguments{arg("nodeAddr", "address")}, nil),

	execTransactionFromModule: gethabi.NewMethod("execTransactionFromModule", "execTransactionFromModule", gethabi.Function, "nonpayable", false, false,
		gethabi.Arguments{arg("to", "address"), arg("value", "uint256"), arg("data", "bytes"), arg("operation", "uint8")}, nil),
}

// redeemTicketTuple is the Go-side mirror of the (redeemable ticket,
// vrfParameters) tuple the contract's redeemTicket(Safe) expects,
// packed as two nested tuples per spec §4.1/§6.4.
type redeemTicketTuple struct {
	Data struct {
		ChannelId    [32]byte
		Amount       [12]byte
		TicketIndex  [6]byte
		IndexOffset  uint32
		ChannelEpoch [3]byte
		WinProb      [7]byte
		Signature    struct {
			R  [32]byte
			Vs [32]byte
		}
		PorSecret [32]byte
	}
	VrfParams struct {
		Vx  [32]byte
		Vy  [32]byte
		S   [32]byte
		H   [32]byte
		SBx [32]byte `abi:"sbx"`
		SBy [32]byte `abi:"sby"`
		HVx [32]byte `abi:"hvx"`
		HVy [32]byte `abi:"hvy"`
	}
}

func redeemTicketArgs(safe bool) gethabi.Arguments {
	redeemableTicketType, err := gethabi.NewType("tuple", "", []gethabi.ArgumentMarshaling{
		{Name: "data", Type: "tuple", Components: []gethabi.ArgumentMarshaling{
			{Name: "channelId", Type: "bytes32"},
			{Name: "amount", Type: "bytes12"},
			{Name: "ticketIndex", Type: "bytes6"},
			{Name: "indexOffset", Type: "uint32"},
			{Name: "channelEpoch", Type: "bytes3"},
			{Name: "winProb", Type: "bytes7"},
			{Name: "signature", Type: "tuple", Components: []gethabi.ArgumentMarshaling{
				{Name: "r", Type: "bytes32"},
				{Name: "vs", Type: "bytes32"},
			}},
			{Name: "porSecret", Type: "bytes32"},
		}},
	})
	if err != nil {
		panic("payload: invalid redeemable ticket abi type: " + err.Error())
	}
	vrfParamsType, err := gethabi.NewType("tuple", "", []gethabi.ArgumentMarshaling{
		{Name: "vx", Type: "bytes32"},
		{Name: "vy", Type: "bytes32"},
		{Name: "s", Type: "bytes32"},
		{Name: "h", Type: "bytes32"},
		{Name: "sbx", Type: "bytes32"},
		{Name: "sby", Type: "bytes32"},
		{Name: "hvx", Type: "bytes32"},
		{Name: "hvy", Type: "bytes32"},
	})
	if err != nil {
		panic("payload: invalid vrf parameters abi type: " + err.Error())
	}

	args := gethabi.Arguments{}
	if safe {
		args = append(args, arg("selfAddr", "address"))
	}
	args = append(args,
		gethabi.Argument{Name: "redeemable", Type: redeemableTicketType},
		gethabi.Argument{Name: "vrfParams", Type: vrfParamsType},
	)
	return args
}
