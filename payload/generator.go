// Package payload translates high-level chain intents (fund a channel,
// redeem a ticket, announce a multiaddress, ...) into signed Ethereum
// transactions, per spec §4.1. It knows nothing about the action queue
// or indexer; it is a pure function of (intent, nonce, fee parameters)
// to a transaction ready for broadcast.
package payload

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/hoprnet/hopr-chain-core/config"
	"github.com/hoprnet/hopr-chain-core/types"
)

// FeeParameters carries the EIP-1559 fee fields a caller must supply per
// transaction; the generator does not estimate fees itself (spec §4.1's
// non-goals exclude a fee oracle).
type FeeParameters struct {
	GasTipCap *big.Int
	GasFeeCap *big.Int
}

// Generator turns an Intent into an unsigned EIP-1559 transaction
// addressed to the correct contract, with correctly packed calldata.
// Implementations never sign; signing is a separate step (sign.go) so
// the action queue can serialize access to the signer independently of
// payload construction.
type Generator interface {
	Build(intent Intent, nonce uint64, fee FeeParameters) (*gethtypes.Transaction, error)
}

// NewGenerator returns the Safe-wrapped generator when cfg.UseSafe is
// true, and the Basic (direct-call) generator otherwise. Basic mode
// exists for local test harnesses against a channels contract deployed
// without a Safe/module layer (SPEC_FULL supplement, grounded in
// payload.rs's dual BasicPayloadGenerator/SafePayloadGenerator split).
func NewGenerator(cfg config.PayloadGeneratorConfig) (Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.UseSafe {
		return &safeGenerator{cfg: cfg}, nil
	}
	return &basicGenerator{cfg: cfg}, nil
}

// basicGenerator packs calldata as direct calls against the target
// contracts, with no Safe/module wrapping. Used for test harnesses
// only (spec §4.1's Non-goals exclude Basic mode from production use).
type basicGenerator struct {
	cfg config.PayloadGeneratorConfig
}

func (g *basicGenerator) Build(intent Intent, nonce uint64, fee FeeParameters) (*gethtypes.Transaction, error) {
	to, data, value, err := basicCall(g.cfg, intent)
	if err != nil {
		return nil, err
	}
	return newDynamicFeeTx(g.cfg.ChainID, nonce, to, value, g.cfg.DefaultGasLimit, fee, data), nil
}

// safeGenerator wraps every call in execTransactionFromModule, addressed
// to the node's Safe module, per spec §4.1's production transaction
// shape.
type safeGenerator struct {
	cfg config.PayloadGeneratorConfig
}

func (g *safeGenerator) Build(intent Intent, nonce uint64, fee FeeParameters) (*gethtypes.Transaction, error) {
	target, innerData, value, err := safeCall(g.cfg, intent)
	if err != nil {
		return nil, err
	}

	// operation 0 is Safe's Call (as opposed to 1, DelegateCall); every
	// intent here is a plain call into a whitelisted target.
	outer, err := methods.execTransactionFromModule.Inputs.Pack(target, value, innerData, uint8(0))
	if err != nil {
		return nil, fmt.Errorf("payload: pack execTransactionFromModule: %w", err)
	}
	data := append(append([]byte{}, methods.execTransactionFromModule.ID...), outer...)

	return newDynamicFeeTx(g.cfg.ChainID, nonce, g.cfg.ModuleAddress, big.NewInt(0), g.cfg.DefaultGasLimit, fee, data), nil
}

func newDynamicFeeTx(chainID uint64, nonce uint64, to types.Address, value *big.Int, gasLimit uint64, fee FeeParameters, data []byte) *gethtypes.Transaction {
	toAddr := common.Address(to)
	return gethtypes.NewTx(&gethtypes.DynamicFeeTx{
		ChainID:   new(big.Int).SetUint64(chainID),
		Nonce:     nonce,
		GasTipCap: fee.GasTipCap,
		GasFeeCap: fee.GasFeeCap,
		Gas:       gasLimit,
		To:        &toAddr,
		Value:     value,
		Data:      data,
	})
}

// basicCall returns the (target, calldata, value) triple for the direct,
// unwrapped call corresponding to intent.
func basicCall(cfg config.PayloadGeneratorConfig, intent Intent) (types.Address, []byte, *big.Int, error) {
	zero := big.NewInt(0)
	switch i := intent.(type) {
	case Approve:
		data, err := pack(methods.approve, common.Address(i.Spender), i.Amount.Amount())
		return cfg.ContractAddresses.Token, data, zero, err
	case Transfer:
		if i.Amount.Currency() == types.XDai {
			return i.Destination, nil, i.Amount.Amount(), nil
		}
		data, err := pack(methods.transfer, common.Address(i.Destination), i.Amount.Amount())
		return cfg.ContractAddresses.Token, data, zero, err
	case Announce:
		data, err := packAnnounce(i, false, types.Address{})
		return cfg.ContractAddresses.Announcements, data, zero, err
	case FundChannel:
		data, err := pack(methods.fundChannel, common.Address(i.Destination), i.Amount.Amount())
		return cfg.ContractAddresses.Channels, data, zero, err
	case CloseIncomingChannel:
		data, err := pack(methods.closeIncomingChannel, common.Address(i.Source))
		return cfg.ContractAddresses.Channels, data, zero, err
	case InitiateOutgoingChannelClosure:
		data, err := pack(methods.initiateOutgoingChannelClosure, common.Address(i.Destination))
		return cfg.ContractAddresses.Channels, data, zero, err
	case FinalizeOutgoingChannelClosure:
		data, err := pack(methods.finalizeOutgoingChannelClosure, common.Address(i.Destination))
		return cfg.ContractAddresses.Channels, data, zero, err
	case RedeemTicket:
		data, err := packRedeemTicket(i.Ticket, false, types.Address{})
		return cfg.ContractAddresses.Channels, data, zero, err
	case RegisterSafeByNode:
		data, err := pack(methods.registerSafeByNode, common.Address(i.SafeAddress))
		return cfg.ContractAddresses.NodeSafeRegistry, data, zero, err
	case DeregisterNodeBySafe:
		return types.Address{}, nil, nil, fmt.Errorf("payload: deregister_node_by_safe requires safe mode")
	default:
		return types.Address{}, nil, nil, fmt.Errorf("payload: unsupported intent %T", intent)
	}
}

// safeCall returns the (target, calldata, value) triple for the inner
// call that execTransactionFromModule wraps.
func safeCall(cfg config.PayloadGeneratorConfig, intent Intent) (types.Address, []byte, *big.Int, error) {
	self := cfg.ModuleAddress
	zero := big.NewInt(0)
	switch i := intent.(type) {
	case Approve:
		data, err := pack(methods.approve, common.Address(i.Spender), i.Amount.Amount())
		return cfg.ContractAddresses.Token, data, zero, err
	case Transfer:
		if i.Amount.Currency() == types.XDai {
			return i.Destination, nil, i.Amount.Amount(), nil
		}
		data, err := pack(methods.transfer, common.Address(i.Destination), i.Amount.Amount())
		return cfg.ContractAddresses.Token, data, zero, err
	case Announce:
		data, err := packAnnounce(i, true, self)
		return cfg.ContractAddresses.Announcements, data, zero, err
	case FundChannel:
		data, err := pack(methods.fundChannelSafe, common.Address(self), common.Address(i.Destination), i.Amount.Amount())
		return cfg.ContractAddresses.Channels, data, zero, err
	case CloseIncomingChannel:
		data, err := pack(methods.closeIncomingChannelSafe, common.Address(self), common.Address(i.Source))
		return cfg.ContractAddresses.Channels, data, zero, err
	case InitiateOutgoingChannelClosure:
		data, err := pack(methods.initiateOutgoingChannelClosureSafe, common.Address(self), common.Address(i.Destination))
		return cfg.ContractAddresses.Channels, data, zero, err
	case FinalizeOutgoingChannelClosure:
		data, err := pack(methods.finalizeOutgoingChannelClosureSafe, common.Address(self), common.Address(i.Destination))
		return cfg.ContractAddresses.Channels, data, zero, err
	case RedeemTicket:
		data, err := packRedeemTicket(i.Ticket, true, self)
		return cfg.ContractAddresses.Channels, data, zero, err
	case RegisterSafeByNode:
		data, err := pack(methods.registerSafeByNode, common.Address(i.SafeAddress))
		return cfg.ContractAddresses.NodeSafeRegistry, data, zero, err
	case DeregisterNodeBySafe:
		data, err := pack(methods.deregisterNodeBySafe, common.Address(self))
		return cfg.ContractAddresses.NodeSafeRegistry, data, zero, err
	default:
		return types.Address{}, nil, nil, fmt.Errorf("payload: unsupported intent %T", intent)
	}
}

func pack(m abi.Method, args ...interface{}) ([]byte, error) {
	packed, err := m.Inputs.Pack(args...)
	if err != nil {
		return nil, fmt.Errorf("payload: pack %s: %w", m.Name, err)
	}
	return append(append([]byte{}, m.ID...), packed...), nil
}

func packAnnounce(i Announce, safe bool, self types.Address) ([]byte, error) {
	maddr := []byte(i.Multiaddress)
	if i.KeyBinding == nil {
		if safe {
			return pack(methods.announceSafe, common.Address(self), maddr)
		}
		return pack(methods.announce, maddr)
	}

	var sig0, sig1, pubKey [32]byte
	copy(sig0[:], i.KeyBinding.Ed25519Signature[:32])
	copy(sig1[:], i.KeyBinding.Ed25519Signature[32:])
	pubKey = i.KeyBinding.Ed25519PubKey

	if safe {
		return pack(methods.bindKeysAnnounceSafe, common.Address(self), sig0, sig1, pubKey, maddr)
	}
	return pack(methods.bindKeysAnnounce, sig0, sig1, pubKey, maddr)
}

func packRedeemTicket(rt RedeemableTicket, safe bool, self types.Address) ([]byte, error) {
	data := redeemTicketTuple{}
	data.Data.ChannelId = rt.ChannelID
	copy(data.Data.Amount[:], rt.Amount.Amount().FillBytes(make([]byte, 12)))
	var idx [6]byte
	types.PutUint48(idx[:], rt.Index)
	data.Data.TicketIndex = idx
	data.Data.IndexOffset = rt.IndexOffset
	data.Data.ChannelEpoch = [3]byte{byte(rt.ChannelEpoch >> 16), byte(rt.ChannelEpoch >> 8), byte(rt.ChannelEpoch)}
	data.Data.WinProb = rt.EncodedWinProb
	data.Data.Signature.R = rt.SignatureR
	data.Data.Signature.Vs = rt.SignatureVS
	data.Data.PorSecret = rt.PorSecret

	data.VrfParams.Vx = rt.VRF.Vx
	data.VrfParams.Vy = rt.VRF.Vy
	data.VrfParams.S = rt.VRF.S
	data.VrfParams.H = rt.VRF.H
	data.VrfParams.SBx = rt.VRF.SBx
	data.VrfParams.SBy = rt.VRF.SBy
	data.VrfParams.HVx = rt.VRF.HVx
	data.VrfParams.HVy = rt.VRF.HVy

	if safe {
		return pack(methods.redeemTicketSafe, common.Address(self), data.Data, data.VrfParams)
	}
	return pack(methods.redeemTicket, data.Data, data.VrfParams)
}
