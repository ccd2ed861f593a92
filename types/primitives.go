// Package types defines the data model shared by every subsystem of the
// chain core: addresses, hashes, tagged balances, half-key/response/
// challenge scalars, tickets, acknowledged tickets and channel entries.
package types

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
)

// AddressLength is the size in bytes of an Address on the target chain.
const AddressLength = 20

// HashLength is the size in bytes of a Hash (keccak256 digest).
const HashLength = 32

// Address is a 20-byte account identifier on the target chain.
type Address [AddressLength]byte

// String renders the address as a 0x-prefixed hex string.
func (a Address) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

// IsZero reports whether the address is the all-zero value.
func (a Address) IsZero() bool {
	return a == Address{}
}

// Equal reports whether two addresses are identical.
func (a Address) Equal(other Address) bool {
	return a == other
}

// AddressFromBytes copies b into a new Address. b must be exactly
// AddressLength bytes long.
func AddressFromBytes(b []byte) (Address, error) {
	var a Address
	if len(b) != AddressLength {
		return a, fmt.Errorf("address must be %d bytes, got %d", AddressLength, len(b))
	}
	copy(a[:], b)
	return a, nil
}

// Hash is a 32-byte keccak256 output used as channel identifier, ticket
// fingerprint, and domain separator.
type Hash [HashLength]byte

// String renders the hash as a 0x-prefixed hex string.
func (h Hash) String() string {
	return "0x" + hex.EncodeToString(h[:])
}

// IsZero reports whether the hash is the all-zero value.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// HashFromBytes copies b into a new Hash. b must be exactly HashLength
// bytes long.
func HashFromBytes(b []byte) (Hash, error) {
	var h Hash
	if len(b) != HashLength {
		return h, fmt.Errorf("hash must be %d bytes, got %d", HashLength, len(b))
	}
	copy(h[:], b)
	return h, nil
}

// Currency tags a Balance with the token it denominates.
type Currency uint8

const (
	// WxHOPR is the wrapped HOPR ERC777/ERC20 token used to pay for
	// tickets.
	WxHOPR Currency = iota
	// XDai is the native gas currency of the target chain.
	XDai
)

func (c Currency) String() string {
	switch c {
	case WxHOPR:
		return "wxHOPR"
	case XDai:
		return "xDai"
	default:
		return "unknown"
	}
}

// ErrUnknownCurrency is returned whenever a Currency value outside the
// known enumeration is used in an operation that requires one.
var ErrUnknownCurrency = errors.New("unknown currency")

// ErrBalanceOverflow is returned when an arithmetic operation on a
// Balance would produce a value that no longer fits the type's ceiling,
// or would go negative.
var ErrBalanceOverflow = errors.New("balance arithmetic overflow")

// wxHOPRCeiling is the maximum value representable by a wxHOPR amount on
// the wire: 96 bits.
var wxHOPRCeiling = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 96), big.NewInt(1))

// Balance is an unsigned amount tagged by currency. Arithmetic fails
// explicitly with ErrBalanceOverflow rather than going below zero or, for
// wxHOPR, past the 96-bit ceiling.
type Balance struct {
	amount   *big.Int
	currency Currency
}

// NewBalance constructs a Balance from a non-negative integer amount and
// currency tag.
func NewBalance(amount *big.Int, currency Currency) (Balance, error) {
	if amount == nil || amount.Sign() < 0 {
		return Balance{}, fmt.Errorf("%w: negative amount", ErrBalanceOverflow)
	}
	if currency == WxHOPR && amount.Cmp(wxHOPRCeiling) > 0 {
		return Balance{}, fmt.Errorf("%w: exceeds 96-bit wxHOPR ceiling", ErrBalanceOverflow)
	}
	return Balance{amount: new(big.Int).Set(amount), currency: currency}, nil
}

// ZeroBalance returns a zero-valued Balance of the given currency.
func ZeroBalance(currency Currency) Balance {
	return Balance{amount: big.NewInt(0), currency: currency}
}

// Amount returns a copy of the underlying integer amount.
func (b Balance) Amount() *big.Int {
	if b.amount == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(b.amount)
}

// Currency returns the currency tag.
func (b Balance) Currency() Currency {
	return b.currency
}

// Add returns a + b. Both must share the same currency.
func (b Balance) Add(other Balance) (Balance, error) {
	if b.currency != other.currency {
		return Balance{}, fmt.Errorf("%w: cannot add %s to %s", ErrUnknownCurrency, other.currency, b.currency)
	}
	return NewBalance(new(big.Int).Add(b.Amount(), other.Amount()), b.currency)
}

// Sub returns a - b, failing rather than going negative.
func (b Balance) Sub(other Balance) (Balance, error) {
	if b.currency != other.currency {
		return Balance{}, fmt.Errorf("%w: cannot subtract %s from %s", ErrUnknownCurrency, other.currency, b.currency)
	}
	result := new(big.Int).Sub(b.Amount(), other.Amount())
	if result.Sign() < 0 {
		return Balance{}, fmt.Errorf("%w: %s - %s is negative", ErrBalanceOverflow, b.amount, other.amount)
	}
	return NewBalance(result, b.currency)
}

// Cmp compares two balances of the same currency, panicking if the
// currencies differ (callers are expected to only compare same-currency
// balances; this mirrors big.Int.Cmp's panic-free numeric-only contract
// but surfaces a currency mismatch loudly since it always indicates a
// caller bug).
func (b Balance) Cmp(other Balance) int {
	if b.currency != other.currency {
		panic("types: Cmp between balances of different currencies")
	}
	return b.Amount().Cmp(other.Amount())
}

// GreaterThanOrEqual reports whether b >= other.
func (b Balance) GreaterThanOrEqual(other Balance) bool {
	return b.Cmp(other) >= 0
}

func (b Balance) String() string {
	return fmt.Sprintf("%s %s", b.Amount().String(), b.currency)
}

// HalfKeyLength is the size in bytes of a HalfKey scalar.
const HalfKeyLength = 32

// HalfKey is an opaque scalar contributed by one party of a two-party
// response derivation.
type HalfKey [HalfKeyLength]byte

// ResponseLength is the size in bytes of a combined Response.
const ResponseLength = 32

// Response is the combination of two HalfKeys, hashing to a Challenge.
type Response [ResponseLength]byte

// ChallengeLength is the size in bytes of a Challenge curve point
// (compressed encoding) as committed to by a Ticket.
const ChallengeLength = 20

// Challenge is the 20-byte commitment a Ticket makes to a Response.
type Challenge [ChallengeLength]byte

// PutUint48 writes the low 48 bits of v into b in big-endian order. b
// must be at least 6 bytes long. Used to encode ticket indices in their
// 48-bit on-wire width.
func PutUint48(b []byte, v uint64) {
	var scratch [8]byte
	binary.BigEndian.PutUint64(scratch[:], v)
	copy(b, scratch[2:])
}

// Uint48 reads 6 big-endian bytes from b into a uint64.
func Uint48(b []byte) uint64 {
	var scratch [8]byte
	copy(scratch[2:], b[:6])
	return binary.BigEndian.Uint64(scratch[:])
}
