package payload

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/hoprnet/hopr-chain-core/types"
)

// TicketSigningHash reproduces the channels contract's getTicketHash: the
// keccak256 digest over the ticket's signable fields tagged with the
// deployment's domain separator, binding a signature to exactly one
// channel, contract deployment, and chain id (spec §4.1, §4.5).
func TicketSigningHash(t *types.Ticket, domainSeparator types.Hash) (types.Hash, error) {
	if err := t.Validate(); err != nil {
		return types.Hash{}, err
	}

	buf := make([]byte, 0, 32+32+12+6+4+3+7+types.ChallengeLength)
	buf = append(buf, domainSeparator[:]...)
	buf = append(buf, t.ChannelID[:]...)

	amountBytes := t.Amount.Amount().FillBytes(make([]byte, 12))
	buf = append(buf, amountBytes...)

	var idx [6]byte
	types.PutUint48(idx[:], t.Index)
	buf = append(buf, idx[:]...)

	var offset [4]byte
	binary.BigEndian.PutUint32(offset[:], t.IndexOffset)
	buf = append(buf, offset[:]...)

	var epoch32 [4]byte
	binary.BigEndian.PutUint32(epoch32[:], t.ChannelEpoch)
	buf = append(buf, epoch32[1:]...)

	buf = append(buf, t.EncodedWinProb[:]...)
	buf = append(buf, t.TicketChallenge[:]...)

	return types.Hash(crypto.Keccak256Hash(buf)), nil
}
