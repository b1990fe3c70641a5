package events

import (
	"errors"
	"testing"
	"time"

	"github.com/mezonai/peerchain/block"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBus(t *testing.T) {
	eventBus := NewEventBus()

	id, eventChan := eventBus.Subscribe()
	assert.Equal(t, 1, eventBus.GetTotalSubscriptions())
	assert.True(t, eventBus.HasSubscriber(id))

	b := block.NewGenesis(1)
	eventBus.Publish(NewBlockAppended(b, "peer-1"))

	select {
	case received := <-eventChan:
		require.Equal(t, EventBlockAppended, received.Type())
		appended, ok := received.(*BlockAppended)
		require.True(t, ok)
		assert.Equal(t, b.Hash, appended.Block.Hash)
		assert.Equal(t, "peer-1", appended.Origin)
		assert.False(t, appended.Timestamp().IsZero())
	case <-time.After(1 * time.Second):
		t.Fatal("Timeout waiting for event")
	}

	assert.True(t, eventBus.Unsubscribe(id))
	assert.Equal(t, 0, eventBus.GetTotalSubscriptions())
	assert.False(t, eventBus.Unsubscribe(id))

	_, open := <-eventChan
	assert.False(t, open, "channel is closed on unsubscribe")
}

func TestPublishNeverBlocks(t *testing.T) {
	eventBus := NewEventBus()
	id, ch := eventBus.Subscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*2; i++ {
			eventBus.Publish(NewPeerConnected("p"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}
	assert.Len(t, ch, subscriberBuffer)
	assert.Equal(t, uint64(subscriberBuffer), eventBus.Dropped(id))
}

func TestSubscribeTypesFilters(t *testing.T) {
	eventBus := NewEventBus()
	_, peers := eventBus.SubscribeTypes(EventPeerConnected, EventPeerDisconnected)
	_, all := eventBus.Subscribe()

	eventBus.Publish(NewMessageDropped("p", "bad envelope"))
	eventBus.Publish(NewPeerConnected("p"))

	require.Len(t, peers, 1)
	assert.Equal(t, EventPeerConnected, (<-peers).Type())
	assert.Len(t, all, 2)
}

func TestEventTypes(t *testing.T) {
	tip := block.NewGenesis(1)
	cases := []struct {
		event ChainEvent
		want  EventType
	}{
		{NewChainReplaced(3, 5, tip, "p"), EventChainReplaced},
		{NewPeerConnected("p"), EventPeerConnected},
		{NewPeerDisconnected("p"), EventPeerDisconnected},
		{NewMessageDropped("p", "bad envelope"), EventMessageDropped},
		{NewTransportError("p", errors.New("reset")), EventTransportError},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, c.event.Type())
	}

	var nilBus *EventBus
	nilBus.Publish(NewPeerConnected("p"))
}
