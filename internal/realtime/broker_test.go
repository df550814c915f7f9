package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishFansOut(t *testing.T) {
	t.Parallel()

	b := NewBroker()
	a, cancelA := b.Subscribe()
	c, cancelC := b.Subscribe()
	defer cancelA()
	defer cancelC()
	assert.Equal(t, 2, b.Subscribers())

	b.Publish(Event{Type: CollectionFinished, Kind: "history", Records: 3})

	for _, ch := range []<-chan Event{a, c} {
		evt := <-ch
		assert.Equal(t, int64(1), evt.ID)
		assert.Equal(t, CollectionFinished, evt.Type)
		assert.Equal(t, 3, evt.Records)
		assert.False(t, evt.At.IsZero())
	}
}

func TestSlowSubscriberDropsEvents(t *testing.T) {
	t.Parallel()

	b := NewBroker()
	ch, cancel := b.Subscribe()
	defer cancel()

	for i := 0; i < 100; i++ {
		b.Publish(Event{Type: CollectionStarted})
	}
	assert.Len(t, ch, cap(ch))
}

func TestCancelClosesChannel(t *testing.T) {
	t.Parallel()

	b := NewBroker()
	ch, cancel := b.Subscribe()
	cancel()
	cancel()

	_, ok := <-ch
	require.False(t, ok)
	assert.Equal(t, 0, b.Subscribers())

	b.Publish(Event{Type: CollectionFailed})
}
