package bus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostbridge/sysbridge/internal/events"
)

func TestSubscribePublishDelivers(t *testing.T) {
	b := New()
	sub := b.Subscribe()
	defer sub.Unsubscribe()

	assert.Equal(t, 1, b.ReceiverCount())

	b.Publish(events.NewSystemStats(events.StreamPayload{Uptime: 42}))

	select {
	case e := <-sub.Events():
		require.Equal(t, events.KindSystemStats, e.Kind)
		assert.Equal(t, uint64(42), e.Stats.Uptime)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New()
	sub := b.Subscribe()
	sub.Unsubscribe()

	_, ok := <-sub.Events()
	assert.False(t, ok)
	assert.Equal(t, 0, b.ReceiverCount())
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	b := New()
	sub := b.Subscribe()
	sub.Unsubscribe()
	sub.Unsubscribe()
}

func TestPublishDropsOldestForLaggard(t *testing.T) {
	b := New()
	sub := b.Subscribe()
	defer sub.Unsubscribe()

	for i := 0; i < DefaultCapacity+10; i++ {
		b.Publish(events.NewSystemStats(events.StreamPayload{Uptime: uint64(i)}))
	}

	first := <-sub.Events()
	assert.Greater(t, first.Stats.Uptime, uint64(0), "oldest entries should have been dropped in favor of newer ones")
}

func TestCloseEndsAllSubscribers(t *testing.T) {
	b := New()
	subA := b.Subscribe()
	subB := b.Subscribe()

	b.Close()

	_, okA := <-subA.Events()
	_, okB := <-subB.Events()
	assert.False(t, okA)
	assert.False(t, okB)
	assert.Equal(t, 0, b.ReceiverCount())
}

func TestSubscribeAfterCloseReturnsClosedChannel(t *testing.T) {
	b := New()
	b.Close()

	sub := b.Subscribe()
	_, ok := <-sub.Events()
	assert.False(t, ok)
}
