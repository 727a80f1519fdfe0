package registry

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubscribeReturnsOnlyZeroToOneTransitions(t *testing.T) {
	r := New()

	started := r.Subscribe(map[string]struct{}{"stats.cpu": {}, "stats.memory": {}})
	assert.ElementsMatch(t, []string{"stats.cpu", "stats.memory"}, started)

	started = r.Subscribe(map[string]struct{}{"stats.cpu": {}, "stats.gpu": {}})
	assert.ElementsMatch(t, []string{"stats.gpu"}, started)
}

func TestUnsubscribeReturnsOnlyOneToZeroTransitions(t *testing.T) {
	r := New()
	r.Subscribe(map[string]struct{}{"media": {}})
	r.Subscribe(map[string]struct{}{"media": {}})

	stopped := r.Unsubscribe(map[string]struct{}{"media": {}})
	assert.Empty(t, stopped)
	assert.Equal(t, 1, r.Count("media"))

	stopped = r.Unsubscribe(map[string]struct{}{"media": {}})
	assert.Equal(t, []string{"media"}, stopped)
	assert.Equal(t, 0, r.Count("media"))
}

func TestUnsubscribeClampsAtZero(t *testing.T) {
	r := New()
	stopped := r.Unsubscribe(map[string]struct{}{"processes": {}})
	assert.Empty(t, stopped)
	assert.Equal(t, 0, r.Count("processes"))
}

func TestAnyPositive(t *testing.T) {
	r := New()
	assert.False(t, r.AnyPositive([]string{"stats", "stats.cpu"}))

	r.Subscribe(map[string]struct{}{"stats.cpu": {}})
	assert.True(t, r.AnyPositive([]string{"stats", "stats.cpu"}))
}

func TestSnapshotIsACopy(t *testing.T) {
	r := New()
	r.Subscribe(map[string]struct{}{"stats.cpu": {}})

	snap := r.Snapshot()
	snap["stats.cpu"] = 99

	assert.Equal(t, 1, r.Count("stats.cpu"))
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			r.Subscribe(map[string]struct{}{"stats.cpu": {}})
		}()
		go func() {
			defer wg.Done()
			r.Unsubscribe(map[string]struct{}{"stats.cpu": {}})
		}()
	}
	wg.Wait()
}
