package actionqueue

import (
	"context"

	gethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/hoprnet/hopr-chain-core/payload"
)

// ActionSender is the narrow chain-write surface the queue depends on:
// assign a nonce, price a transaction, sign it and broadcast it. An
// implementation typically wraps an ethclient.Client together with a
// payload.Signer; this package stays agnostic of the RPC transport.
type ActionSender interface {
	// PendingNonce returns the next nonce to use, accounting for any
	// transactions the node itself has already broadcast but that are
	// not yet mined.
	PendingNonce(ctx context.Context) (uint64, error)
	// SuggestFees returns the fee parameters to attach to the next
	// transaction.
	SuggestFees(ctx context.Context) (payload.FeeParameters, error)
	// Sign signs an unsigned transaction with the node's chain key.
	Sign(tx *gethtypes.Transaction) (*gethtypes.Transaction, error)
	// Send broadcasts a signed transaction.
	Send(ctx context.Context, tx *gethtypes.Transaction) error
}
