// Package corerrors defines the error taxonomy shared by every subsystem
// of the chain core (spec §7). Each sentinel is wrapped with
// github.com/go-errors/errors so a failed PendingAction can report both
// the error kind (via errors.Is) and a stack trace for operator
// diagnosis.
package corerrors

import (
	goerrors "github.com/go-errors/errors"
)

// Sentinel error kinds. Use errors.Is(err, corerrors.ErrX) to classify a
// returned error; use Wrap to attach a stack trace when returning one of
// these from a leaf function.
var (
	// ErrChannelDoesNotExist is surfaced to the caller; not retried.
	ErrChannelDoesNotExist = goerrors.Errorf("channel does not exist")

	// ErrWrongTicketState means the operation was refused because the
	// ticket is not in the required state (e.g. not Untouched).
	ErrWrongTicketState = goerrors.Errorf("ticket is not in the required state")

	// ErrNotAWinningTicket means the ticket failed the winning-probability
	// check. The ticket remains Untouched; re-evaluation is pointless
	// unless the domain separator changes.
	ErrNotAWinningTicket = goerrors.Errorf("ticket is not a winning ticket")

	// ErrInvalidArguments means the payload generator rejected the
	// intent (self-reference, unsupported currency, over-width amount).
	// The action is never enqueued.
	ErrInvalidArguments = goerrors.Errorf("invalid arguments")

	// ErrInvalidState means the payload generator rejected the intent
	// because of the generator's own configuration (e.g. deregister
	// requested while not in Safe mode).
	ErrInvalidState = goerrors.Errorf("invalid state for requested operation")

	// ErrSigningError means the wallet failed to sign the transaction.
	// The action is never enqueued.
	ErrSigningError = goerrors.Errorf("signing error")

	// ErrTransportError means the RPC/network failed during send. The
	// action is not retried automatically; the caller may re-issue.
	ErrTransportError = goerrors.Errorf("transport error")

	// ErrCriteriaNotSatisfied means the aggregation strategy declined to
	// act. This is informational, not a failure.
	ErrCriteriaNotSatisfied = goerrors.Errorf("criteria not satisfied")

	// ErrRetry means the target queue is full; the caller may back off
	// and retry.
	ErrRetry = goerrors.Errorf("queue is full, retry")

	// ErrTimeout means an expected confirmation was not observed within
	// budget. The caller must reconcile via the indexer on restart.
	ErrTimeout = goerrors.Errorf("timed out waiting for confirmation")
)

// Wrap attaches a stack trace to err (if it doesn't already carry one)
// while preserving errors.Is/As compatibility with the sentinel chain.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	return goerrors.Wrap(err, 1)
}

// WrongTicketStateError decorates ErrWrongTicketState with the offending ticket's
// identity for operator-facing messages, while remaining matchable with
// errors.Is(err, ErrWrongTicketState).
type WrongTicketStateError struct {
	ChannelID string
	Epoch     uint32
	Index     uint64
	Status    string
}

func (e *WrongTicketStateError) Error() string {
	return "ticket " + e.ChannelID + "/" + itoa(e.Epoch) + "/" + itoa64(e.Index) +
		" is in state " + e.Status + ", not Untouched"
}

func (e *WrongTicketStateError) Unwrap() error {
	return ErrWrongTicketState
}

func itoa(v uint32) string {
	return itoa64(uint64(v))
}

func itoa64(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
