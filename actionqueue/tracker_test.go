package actionqueue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hoprnet/hopr-chain-core/types"
)

func TestStateTrackerMatchesRegisteredExpectation(t *testing.T) {
	tr := NewStateTracker(time.Second)

	evt := types.SignificantChainEvent{Event: types.ChannelOpenedEvent{Channel: types.ChannelEntry{
		Source: types.Address{9}, Destination: types.Address{8},
	}}}
	channelID := evt.Event.(types.ChannelOpenedEvent).Channel.ID()

	unrelated := tr.Expect(func(e types.SignificantChainEvent) bool {
		_, ok := e.Event.(types.NodeSafeRegisteredEvent)
		return ok
	})
	match := tr.Expect(func(e types.SignificantChainEvent) bool {
		opened, ok := e.Event.(types.ChannelOpenedEvent)
		return ok && opened.Channel.ID() == channelID
	})

	tr.Observe(evt)

	select {
	case got := <-match:
		require.Equal(t, evt, got)
	case <-time.After(time.Second):
		t.Fatal("expectation was not resolved")
	}

	require.Equal(t, 1, tr.PendingCount())
	_ = unrelated
}

func TestStateTrackerBuffersEarlyEvents(t *testing.T) {
	tr := NewStateTracker(50 * time.Millisecond)

	evt := types.SignificantChainEvent{Event: types.NodeSafeRegisteredEvent{SafeAddress: types.Address{1}}}
	tr.Observe(evt)

	ch := tr.Expect(func(e types.SignificantChainEvent) bool {
		_, ok := e.Event.(types.NodeSafeRegisteredEvent)
		return ok
	})

	select {
	case got := <-ch:
		require.Equal(t, evt, got)
	default:
		t.Fatal("buffered event should have been replayed immediately")
	}
}

func TestStateTrackerAgesOutBufferedEvents(t *testing.T) {
	tr := NewStateTracker(10 * time.Millisecond)

	evt := types.SignificantChainEvent{Event: types.NodeSafeRegisteredEvent{SafeAddress: types.Address{1}}}
	tr.Observe(evt)

	time.Sleep(30 * time.Millisecond)

	ch := tr.Expect(func(e types.SignificantChainEvent) bool {
		_, ok := e.Event.(types.NodeSafeRegisteredEvent)
		return ok
	})

	select {
	case <-ch:
		t.Fatal("aged-out event should not have been replayed")
	default:
	}
}

func TestStateTrackerCancel(t *testing.T) {
	tr := NewStateTracker(time.Second)
	ch := tr.Expect(func(types.SignificantChainEvent) bool { return true })
	require.Equal(t, 1, tr.PendingCount())

	tr.Cancel(ch)
	require.Equal(t, 0, tr.PendingCount())
}
