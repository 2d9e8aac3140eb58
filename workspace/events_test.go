package workspace

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/sculptflow/testutil/mocks"
	"github.com/BaSui01/sculptflow/types"
)

func drain(sub *Subscription) []Event {
	var out []Event
	for {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

func eventTypes(events []Event) []EventType {
	out := make([]EventType, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}

func TestEventBus_PublishSubscribe(t *testing.T) {
	bus := NewEventBus(zap.NewNop())
	a := bus.Subscribe(4)
	b := bus.Subscribe(4)

	bus.Publish(Event{Type: EventPointsChanged})
	bus.Publish(Event{Type: EventMaskChanged})

	for _, sub := range []*Subscription{a, b} {
		events := drain(sub)
		require.Len(t, events, 2)
		assert.Equal(t, EventPointsChanged, events[0].Type)
		assert.Less(t, events[0].Seq, events[1].Seq)
		assert.False(t, events[0].Timestamp.IsZero())
	}
}

func TestEventBus_DropsWhenFull(t *testing.T) {
	bus := NewEventBus(nil)
	sub := bus.Subscribe(1)

	bus.Publish(Event{Type: EventPointsChanged})
	bus.Publish(Event{Type: EventMaskChanged})

	assert.Len(t, drain(sub), 1)
	assert.Equal(t, uint64(1), bus.Dropped())
}

func TestEventBus_UnsubscribeAndClose(t *testing.T) {
	bus := NewEventBus(nil)
	a := bus.Subscribe(4)
	b := bus.Subscribe(4)

	bus.Unsubscribe(a.ID)
	_, open := <-a.C
	assert.False(t, open)
	bus.Unsubscribe(a.ID)

	bus.Close()
	_, open = <-b.C
	assert.False(t, open)

	late := bus.Subscribe(1)
	_, open = <-late.C
	assert.False(t, open, "subscribing to a closed bus yields a closed channel")
	assert.NotPanics(t, func() { bus.Publish(Event{Type: EventSceneReset}) })
}

func TestWorkspace_EventSequence(t *testing.T) {
	generator := mocks.NewMockGenerator().WithGate()
	ws := newTestWorkspace(t, WithGenerator(generator))
	sub := ws.Events().Subscribe(128)

	loadImage(t, ws, 100, 100)
	id := commitWithMask(t, ws, pos(10, 10))
	require.True(t, ws.GenerateOne(id))
	generator.NextCall(t, waitTimeout).Succeed([]byte("P"))
	waitStatus(t, ws, id, types.StatusReady)
	time.Sleep(10 * time.Millisecond)

	events := drain(sub)
	kinds := eventTypes(events)
	assert.Equal(t, EventSessionLoaded, kinds[0])
	assert.Contains(t, kinds, EventPointsChanged)
	assert.Contains(t, kinds, EventMaskChanged)
	assert.Contains(t, kinds, EventObjectAdded)
	assert.Contains(t, kinds, EventSelectionChanged)

	var statuses []types.ObjectStatus
	for _, ev := range events {
		if ev.Type == EventStatusChanged {
			assert.Equal(t, id, ev.ObjectID)
			statuses = append(statuses, ev.Status)
		}
	}
	assert.Equal(t, []types.ObjectStatus{types.StatusGenerating, types.StatusReady}, statuses)

	for i := 1; i < len(events); i++ {
		assert.Less(t, events[i-1].Seq, events[i].Seq, "events are delivered in order")
	}
}
