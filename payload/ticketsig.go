package payload

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/hoprnet/hopr-chain-core/types"
)

// SignTicket computes the ticket's signing hash and fills in its
// 64-byte compact signature (r, s) with key, for use by the aggregation
// protocol's responder side when it builds a fresh aggregate (spec
// §4.5). The recovery id is intentionally dropped, matching the wire
// ticket format; VerifyTicketSignature recovers it by trying both.
func SignTicket(t *types.Ticket, domainSeparator types.Hash, key *ecdsa.PrivateKey) error {
	hash, err := TicketSigningHash(t, domainSeparator)
	if err != nil {
		return err
	}
	sig, err := crypto.Sign(hash[:], key)
	if err != nil {
		return fmt.Errorf("payload: sign ticket: %w", err)
	}
	copy(t.Signature[:], sig[:types.SignatureLength])
	return nil
}

// VerifyTicketSignature reports whether t's signature over its signing
// hash recovers to signer. It tries both possible recovery ids since the
// wire ticket format carries only (r, s), not the recovery bit.
func VerifyTicketSignature(t *types.Ticket, domainSeparator types.Hash, signer types.Address) (bool, error) {
	hash, err := TicketSigningHash(t, domainSeparator)
	if err != nil {
		return false, err
	}

	sig := make([]byte, types.SignatureLength+1)
	copy(sig, t.Signature[:])
	for recID := byte(0); recID < 2; recID++ {
		sig[types.SignatureLength] = recID
		pub, err := crypto.SigToPub(hash[:], sig)
		if err != nil {
			continue
		}
		if crypto.PubkeyToAddress(*pub) == common.Address(signer) {
			return true, nil
		}
	}
	return false, nil
}
