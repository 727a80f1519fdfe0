package loopmgr

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostbridge/sysbridge/internal/config"
	"github.com/hostbridge/sysbridge/internal/events"
	"github.com/hostbridge/sysbridge/internal/registry"
)

type fakeBus struct {
	mu        sync.Mutex
	published []events.Event
	receivers int32
}

func (f *fakeBus) Publish(e events.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, e)
}

func (f *fakeBus) ReceiverCount() int { return int(atomic.LoadInt32(&f.receivers)) }

func (f *fakeBus) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

type fakeConfig struct {
	mu  sync.Mutex
	cfg config.AppConfig
}

func (f *fakeConfig) Get() config.AppConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cfg
}

func (f *fakeConfig) set(cfg config.AppConfig) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cfg = cfg
}

type fakeSys struct{ calls int32 }

func (f *fakeSys) CPU(context.Context) (events.CpuUsage, error) {
	atomic.AddInt32(&f.calls, 1)
	return events.CpuUsage{CurrentLoad: 5}, nil
}
func (f *fakeSys) Memory(context.Context) (events.MemoryUsage, error) {
	return events.MemoryUsage{}, nil
}
func (f *fakeSys) Disks(context.Context) ([]events.DiskUsage, error)  { return nil, nil }
func (f *fakeSys) Network(context.Context) (events.NetworkUsage, error) {
	return events.NetworkUsage{}, nil
}
func (f *fakeSys) Uptime(context.Context) (uint64, error) { return 100, nil }

type fakeGPU struct{}

func (fakeGPU) Get(context.Context) (*events.GpuUsage, string) { return nil, "" }
func (fakeGPU) SetTTL(time.Duration)                           {}

func testConfig() config.AppConfig {
	cfg := config.Defaults()
	cfg.WebSocket.Stats.IntervalMs = 20
	cfg.WebSocket.Media.IntervalMs = 20
	cfg.WebSocket.Processes.IntervalMs = 20
	return cfg
}

func TestEnsureRunningIsIdempotentAndStopIfIdleCancels(t *testing.T) {
	reg := registry.New()
	fb := &fakeBus{receivers: 1}
	fc := &fakeConfig{cfg: testConfig()}
	sys := &fakeSys{}

	m := New(context.Background(), reg, fb, fc, sys, fakeGPU{}, nil, nil, nil)

	reg.Subscribe(map[string]struct{}{"stats.cpu": {}})

	m.EnsureRunning("stats.cpu")
	m.EnsureRunning("stats.cpu") // idempotent: second call must not spawn a second loop

	require.Eventually(t, func() bool { return fb.count() > 0 }, time.Second, 5*time.Millisecond)

	m.slots["stats"].mu.Lock()
	h := m.slots["stats"].h
	m.slots["stats"].mu.Unlock()
	require.NotNil(t, h)

	reg.Unsubscribe(map[string]struct{}{"stats.cpu": {}})
	m.StopIfIdle("stats.cpu")

	require.Eventually(t, func() bool {
		m.slots["stats"].mu.Lock()
		defer m.slots["stats"].mu.Unlock()
		return m.slots["stats"].h == nil
	}, time.Second, 5*time.Millisecond)
}

func TestEnsureRunningSurvivesCallerContextCancellation(t *testing.T) {
	reg := registry.New()
	fb := &fakeBus{receivers: 1}
	fc := &fakeConfig{cfg: testConfig()}
	sys := &fakeSys{}

	m := New(context.Background(), reg, fb, fc, sys, fakeGPU{}, nil, nil, nil)

	reg.Subscribe(map[string]struct{}{"stats.cpu": {}})

	// Simulate a WS connection driving the 0->1 transition, then
	// disconnecting (cancelling its own request-scoped context)
	// immediately after.
	_, connCancel := context.WithCancel(context.Background())
	m.EnsureRunning("stats.cpu")
	connCancel()

	require.Eventually(t, func() bool { return fb.count() > 0 }, time.Second, 5*time.Millisecond)

	countAfterDisconnect := fb.count()
	time.Sleep(40 * time.Millisecond)
	require.Greater(t, fb.count(), countAfterDisconnect, "loop must keep publishing after the originating connection's context is cancelled")

	m.slots["stats"].mu.Lock()
	h := m.slots["stats"].h
	m.slots["stats"].mu.Unlock()
	require.NotNil(t, h, "loop must still be running once the connection that started it disconnects")
}

func TestStopIfIdleNeverCancelsARegainedSubscription(t *testing.T) {
	reg := registry.New()
	fb := &fakeBus{receivers: 1}
	fc := &fakeConfig{cfg: testConfig()}
	sys := &fakeSys{}

	m := New(context.Background(), reg, fb, fc, sys, fakeGPU{}, nil, nil, nil)

	reg.Subscribe(map[string]struct{}{"stats.cpu": {}})
	m.EnsureRunning("stats.cpu")
	require.Eventually(t, func() bool { return fb.count() > 0 }, time.Second, 5*time.Millisecond)

	// Race a StopIfIdle that observed zero demand against a concurrent
	// Subscribe+EnsureRunning for a different topic in the same family:
	// the loop must never end up cancelled while the registry still
	// shows positive demand for that family.
	reg.Unsubscribe(map[string]struct{}{"stats.cpu": {}})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		reg.Subscribe(map[string]struct{}{"stats.memory": {}})
		m.EnsureRunning("stats.memory")
	}()
	go func() {
		defer wg.Done()
		m.StopIfIdle("stats.cpu")
	}()
	wg.Wait()

	require.Eventually(t, func() bool {
		m.slots["stats"].mu.Lock()
		defer m.slots["stats"].mu.Unlock()
		return m.slots["stats"].h != nil
	}, time.Second, 5*time.Millisecond, "stats loop must be running while stats.memory still has demand")
}

func TestStatsLoopSkipsTickWhenMaskAllFalse(t *testing.T) {
	reg := registry.New()
	fb := &fakeBus{receivers: 1}
	fc := &fakeConfig{cfg: testConfig()}
	sys := &fakeSys{}

	m := New(context.Background(), reg, fb, fc, sys, fakeGPU{}, nil, nil, nil)

	// No topic ever subscribed: mask is all-false forever, so the sampler
	// must never be called even though the loop itself is running.
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	go m.runStats(ctx)

	<-ctx.Done()
	assert.Equal(t, int32(0), atomic.LoadInt32(&sys.calls))
	assert.Equal(t, 0, fb.count())
}

func TestStatsLoopPublishesInstantFirstSample(t *testing.T) {
	reg := registry.New()
	fb := &fakeBus{receivers: 1}
	cfg := testConfig()
	cfg.WebSocket.Stats.IntervalMs = 10_000 // long interval: only the instant-first tick should fire
	fc := &fakeConfig{cfg: cfg}
	sys := &fakeSys{}

	m := New(context.Background(), reg, fb, fc, sys, fakeGPU{}, nil, nil, nil)
	reg.Subscribe(map[string]struct{}{"stats.cpu": {}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.runStats(ctx)

	require.Eventually(t, func() bool { return fb.count() == 1 }, time.Second, 2*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, fb.count(), "no second sample should arrive before the 10s interval elapses")
}

func TestMediaLoopPublishesOnlyOnFingerprintChange(t *testing.T) {
	reg := registry.New()
	fb := &fakeBus{receivers: 1}
	fc := &fakeConfig{cfg: testConfig()}

	statuses := []events.MediaStatus{
		{Status: "playing"},
		{Status: "playing"}, // unchanged: must not re-publish
		{Status: "paused"},  // changed: must publish
	}
	idx := 0
	var mu sync.Mutex
	media := mediaFunc(func(context.Context) (events.MediaStatus, error) {
		mu.Lock()
		defer mu.Unlock()
		if idx >= len(statuses) {
			return statuses[len(statuses)-1], nil
		}
		s := statuses[idx]
		idx++
		return s, nil
	})

	m := New(context.Background(), reg, fb, fc, nil, fakeGPU{}, media, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Millisecond)
	defer cancel()
	m.runMedia(ctx)

	assert.Equal(t, 2, fb.count())
}

type mediaFunc func(context.Context) (events.MediaStatus, error)

func (f mediaFunc) Status(ctx context.Context) (events.MediaStatus, error) { return f(ctx) }
