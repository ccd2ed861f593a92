package actionqueue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/queue"

	"github.com/hoprnet/hopr-chain-core/chainevents"
	"github.com/hoprnet/hopr-chain-core/config"
	"github.com/hoprnet/hopr-chain-core/corerrors"
	"github.com/hoprnet/hopr-chain-core/payload"
	"github.com/hoprnet/hopr-chain-core/types"
)

// defaultQueueBuffer is the internal ring-buffer chunk size passed to
// queue.ConcurrentQueue, which grows without bound regardless of this
// value; MaxQueueDepth is enforced separately in Send.
const defaultQueueBuffer = 64

// Confirmation is the outcome of a confirmed action: the event that
// satisfied its expectation.
type Confirmation struct {
	Action Action
	Event  types.SignificantChainEvent
}

// pendingAction couples a submitted Action with the channel its result is
// reported on, mirroring htlcswitch's pending-HTLC bookkeeping: the
// single-writer loop owns the only reference capable of resolving it.
type pendingAction struct {
	action Action
	result chan<- actionResult
}

type actionResult struct {
	confirmation *Confirmation
	err          error
}

// Queue is the single-writer FIFO of on-chain actions. All sends are
// serialized through one goroutine (run), which is the only place nonce
// assignment, signing and broadcast occur — the same shape as
// htlcswitch.Switch's central htlcPlex loop.
type Queue struct {
	cfg         config.ActionQueueConfig
	selfAddress types.Address
	generator   payload.Generator
	sender      ActionSender
	tracker     *StateTracker
	events      chainevents.Subscriber

	in   *queue.ConcurrentQueue
	quit chan struct{}
	wg   sync.WaitGroup

	depthMu sync.Mutex
	depth   int
}

// New constructs a Queue. selfAddress is the node's own chain address,
// needed to derive channel ids for actions expressed in terms of a
// counterparty. The returned Queue does not start processing until
// Start is called.
func New(cfg config.ActionQueueConfig, selfAddress types.Address, generator payload.Generator, sender ActionSender, events chainevents.Subscriber) (*Queue, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Queue{
		cfg:         cfg,
		selfAddress: selfAddress,
		generator:   generator,
		sender:      sender,
		tracker:     NewStateTracker(cfg.ExpectationGraceWindow),
		events:      events,
		in:          queue.NewConcurrentQueue(defaultQueueBuffer),
		quit:        make(chan struct{}),
	}, nil
}

// Start launches the event-matching loop and the single action-processing
// loop. Both run until Stop is called.
func (q *Queue) Start(ctx context.Context) {
	q.in.Start()

	evts, cancel := q.events.Subscribe()
	q.wg.Add(2)
	go q.matchLoop(evts, cancel)
	go q.runLoop(ctx)
}

// Stop drains and halts the queue; in-flight actions reported via Send
// return corerrors.ErrTransportError to their callers if they have not
// already resolved.
func (q *Queue) Stop() {
	close(q.quit)
	q.in.Stop()
	q.wg.Wait()
}

// Send enqueues action and blocks until the queue has accepted it (not
// until it is confirmed); confirmation is reported asynchronously via
// the channel returned. A full, bounded queue returns
// corerrors.ErrRetry immediately instead of blocking indefinitely.
func (q *Queue) Send(action Action) (<-chan Confirmation, <-chan error) {
	confirmCh := make(chan Confirmation, 1)
	errCh := make(chan error, 1)
	resultCh := make(chan actionResult, 1)

	if q.cfg.MaxQueueDepth > 0 {
		q.depthMu.Lock()
		full := q.depth >= q.cfg.MaxQueueDepth
		q.depthMu.Unlock()
		if full {
			errCh <- corerrors.Wrap(corerrors.ErrRetry)
			return confirmCh, errCh
		}
	}

	select {
	case q.in.ChanIn() <- pendingAction{action: action, result: resultCh}:
		actionsEnqueued.WithLabelValues(action.String()).Inc()
		q.adjustDepth(1)
	case <-q.quit:
		errCh <- corerrors.Wrap(corerrors.ErrTransportError)
		return confirmCh, errCh
	}

	go func() {
		res := <-resultCh
		q.adjustDepth(-1)
		if res.err != nil {
			errCh <- res.err
			return
		}
		confirmCh <- *res.confirmation
	}()

	return confirmCh, errCh
}

func (q *Queue) adjustDepth(delta int) {
	q.depthMu.Lock()
	q.depth += delta
	queueDepth.Set(float64(q.depth))
	q.depthMu.Unlock()
}

func (q *Queue) matchLoop(evts <-chan types.SignificantChainEvent, cancel func()) {
	defer q.wg.Done()
	defer cancel()
	for {
		select {
		case evt, ok := <-evts:
			if !ok {
				return
			}
			q.tracker.Observe(evt)
		case <-q.quit:
			return
		}
	}
}

func (q *Queue) runLoop(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case item, ok := <-q.in.ChanOut():
			if !ok {
				return
			}
			pa := item.(pendingAction)
			conf, err := q.process(ctx, pa.action)
			pa.result <- actionResult{confirmation: conf, err: err}
		case <-q.quit:
			return
		}
	}
}

func (q *Queue) process(ctx context.Context, action Action) (*Confirmation, error) {
	nonce, err := q.sender.PendingNonce(ctx)
	if err != nil {
		actionsFailed.WithLabelValues(action.String(), "nonce").Inc()
		return nil, corerrors.Wrap(fmt.Errorf("%w: %v", corerrors.ErrTransportError, err))
	}

	fees, err := q.sender.SuggestFees(ctx)
	if err != nil {
		actionsFailed.WithLabelValues(action.String(), "fees").Inc()
		return nil, corerrors.Wrap(fmt.Errorf("%w: %v", corerrors.ErrTransportError, err))
	}

	tx, err := q.generator.Build(action.Intent(), nonce, fees)
	if err != nil {
		actionsFailed.WithLabelValues(action.String(), "build").Inc()
		return nil, corerrors.Wrap(fmt.Errorf("%w: %v", corerrors.ErrInvalidArguments, err))
	}

	signed, err := q.sender.Sign(tx)
	if err != nil {
		actionsFailed.WithLabelValues(action.String(), "sign").Inc()
		return nil, corerrors.Wrap(fmt.Errorf("%w: %v", corerrors.ErrSigningError, err))
	}

	pred := q.expectationFor(action)
	var expect <-chan types.SignificantChainEvent
	if pred != nil {
		expect = q.tracker.Expect(pred)
	}

	if err := q.sender.Send(ctx, signed); err != nil {
		if expect != nil {
			q.tracker.Cancel(expect)
		}
		actionsFailed.WithLabelValues(action.String(), "broadcast").Inc()
		return nil, corerrors.Wrap(fmt.Errorf("%w: %v", corerrors.ErrTransportError, err))
	}

	if expect == nil {
		actionsConfirmed.WithLabelValues(action.String()).Inc()
		return &Confirmation{Action: action}, nil
	}

	timer := time.NewTimer(q.cfg.MaxActionConfirmationWait)
	defer timer.Stop()

	select {
	case evt := <-expect:
		actionsConfirmed.WithLabelValues(action.String()).Inc()
		return &Confirmation{Action: action, Event: evt}, nil
	case <-timer.C:
		q.tracker.Cancel(expect)
		actionsFailed.WithLabelValues(action.String(), "timeout").Inc()
		return nil, corerrors.Wrap(corerrors.ErrTimeout)
	case <-q.quit:
		q.tracker.Cancel(expect)
		return nil, corerrors.Wrap(corerrors.ErrTransportError)
	}
}

// expectationFor builds the predicate that confirms action, or nil for
// actions with no on-chain-event confirmation (e.g. a plain transfer).
func (q *Queue) expectationFor(action Action) chainevents.Predicate {
	switch a := action.(type) {
	case RedeemTicketAction:
		return chainevents.ForTicketRedemption(a.Ticket.ChannelID, a.Ticket.Index)
	case OpenChannelAction:
		return chainevents.ForChannelAndKind(
			types.ChannelID(q.selfAddress, a.Destination),
			types.ChannelOpenedEvent{}, types.ChannelBalanceIncreasedEvent{},
		)
	case FundChannelAction:
		return chainevents.ForChannelAndKind(
			types.ChannelID(q.selfAddress, a.Destination),
			types.ChannelBalanceIncreasedEvent{},
		)
	case CloseChannelAction:
		channelID := types.ChannelID(q.selfAddress, a.Counterparty)
		if a.Direction == types.Incoming {
			channelID = types.ChannelID(a.Counterparty, q.selfAddress)
		}
		kind := types.ChainEventType(types.ChannelClosureInitiatedEvent{})
		if a.Finalize {
			kind = types.ChannelClosedEvent{}
		}
		if a.Direction == types.Incoming {
			kind = types.ChannelClosedEvent{}
		}
		return chainevents.ForChannelAndKind(channelID, kind)
	default:
		return nil
	}
}
