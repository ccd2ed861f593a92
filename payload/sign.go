package payload

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	gethtypes "github.com/ethereum/go-ethereum/core/types"
)

// Signer signs an unsigned transaction with the node's chain key,
// producing the EIP-2718-encoded envelope ready for broadcast. Kept
// separate from Generator so the action queue can hold the private key
// behind a narrower interface than "can build arbitrary calldata".
type Signer interface {
	Sign(tx *gethtypes.Transaction) (*gethtypes.Transaction, error)
}

// ecdsaSigner signs with an in-memory private key using the London
// signer, matching the DynamicFeeTx envelope Generator produces.
type ecdsaSigner struct {
	key     *ecdsa.PrivateKey
	chainID *big.Int
}

// NewSigner returns a Signer backed by an in-memory ECDSA key. Key
// custody beyond this in-process key (HSM, remote signer) is out of
// scope per spec §1's non-goals.
func NewSigner(key *ecdsa.PrivateKey, chainID uint64) Signer {
	return &ecdsaSigner{key: key, chainID: new(big.Int).SetUint64(chainID)}
}

func (s *ecdsaSigner) Sign(tx *gethtypes.Transaction) (*gethtypes.Transaction, error) {
	signer := gethtypes.NewLondonSigner(s.chainID)
	signed, err := gethtypes.SignTx(tx, signer, s.key)
	if err != nil {
		return nil, fmt.Errorf("payload: sign transaction: %w", err)
	}
	return signed, nil
}
