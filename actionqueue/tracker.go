package actionqueue

import (
	"sync"
	"time"

	"github.com/hoprnet/hopr-chain-core/chainevents"
	"github.com/hoprnet/hopr-chain-core/types"
)

// expectation is a registered "I expect a chain event matching pred" from
// a single in-flight action. It is resolved exactly once, either by a
// matching event or by the queue giving up after the configured
// confirmation wait.
type expectation struct {
	pred     chainevents.Predicate
	resolve  chan types.SignificantChainEvent
	seenAt   time.Time
}

// bufferedEvent is an event that arrived with no matching expectation yet
// registered. It is replayed against every newly registered expectation
// until it ages out of the grace window, since the indexer can observe a
// confirmation before the action queue has finished registering the
// expectation for the action that caused it (spec §4.2).
type bufferedEvent struct {
	event  types.SignificantChainEvent
	seenAt time.Time
}

// StateTracker matches SignificantChainEvents against expectations
// registered by in-flight actions, generalizing ContractResolver's
// Resolve()-with-timeout pattern (contractcourt/htlc_timeout_resolver.go)
// from a single HTLC to an arbitrary set of concurrently pending
// confirmations.
type StateTracker struct {
	mu           sync.Mutex
	expectations []*expectation
	buffered     []bufferedEvent
	graceWindow  time.Duration
	now          func() time.Time
}

// NewStateTracker returns a StateTracker that buffers unmatched events
// for graceWindow before discarding them.
func NewStateTracker(graceWindow time.Duration) *StateTracker {
	return &StateTracker{
		graceWindow: graceWindow,
		now:         time.Now,
	}
}

// Expect registers a predicate and returns a channel that receives the
// first matching event observed from now on (including events already
// buffered within the grace window). The channel is sent to at most
// once and is never closed; callers must select against their own
// timeout.
func (t *StateTracker) Expect(pred chainevents.Predicate) <-chan types.SignificantChainEvent {
	t.mu.Lock()
	defer t.mu.Unlock()

	ch := make(chan types.SignificantChainEvent, 1)
	now := t.now()

	t.pruneBufferedLocked(now)
	for _, b := range t.buffered {
		if pred(b.event) {
			ch <- b.event
			return ch
		}
	}

	t.expectations = append(t.expectations, &expectation{
		pred:    pred,
		resolve: ch,
		seenAt:  now,
	})
	return ch
}

// Observe delivers evt to the first matching registered expectation, if
// any, removing it from the pending set. If no expectation matches, evt
// is buffered for graceWindow so a late-registering expectation can
// still claim it.
func (t *StateTracker) Observe(evt types.SignificantChainEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.pruneBufferedLocked(now)

	for i, e := range t.expectations {
		if e.pred(evt) {
			e.resolve <- evt
			t.expectations = append(t.expectations[:i], t.expectations[i+1:]...)
			return
		}
	}

	t.buffered = append(t.buffered, bufferedEvent{event: evt, seenAt: now})
}

// Cancel removes a previously registered expectation's channel from the
// pending set without resolving it, used when an action's confirmation
// wait times out.
func (t *StateTracker) Cancel(ch <-chan types.SignificantChainEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, e := range t.expectations {
		if e.resolve == ch {
			t.expectations = append(t.expectations[:i], t.expectations[i+1:]...)
			return
		}
	}
}

// PendingCount reports how many expectations are currently unresolved,
// for tests and metrics.
func (t *StateTracker) PendingCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.expectations)
}

func (t *StateTracker) pruneBufferedLocked(now time.Time) {
	if len(t.buffered) == 0 {
		return
	}
	fresh := t.buffered[:0]
	for _, b := range t.buffered {
		if now.Sub(b.seenAt) <= t.graceWindow {
			fresh = append(fresh, b)
		}
	}
	t.buffered = fresh
}
