// Package loopmgr implements the Loop Manager: it owns at most one
// worker goroutine per topic family, spawning it on a 0->1 refcount
// transition and tearing it down on 1->0. Each loop is a ticker-plus-select
// goroutine started and stopped purely on subscriber demand, rather than
// a fixed set of workers running from process startup.
package loopmgr

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hostbridge/sysbridge/internal/config"
	"github.com/hostbridge/sysbridge/internal/events"
	"github.com/hostbridge/sysbridge/internal/topics"
)

// Registry is the subset of *registry.Registry the loop manager needs:
// demand checks for the stats mask and for stop_if_idle.
type Registry interface {
	Count(topic string) int
	AnyPositive(topicList []string) bool
}

// Publisher is the subset of *bus.Bus a loop publishes through.
type Publisher interface {
	Publish(events.Event)
	ReceiverCount() int
}

// ConfigProvider is the subset of *config.Manager the loops read each
// iteration, so interval/enable changes apply without a loop restart.
type ConfigProvider interface {
	Get() config.AppConfig
}

// SystemSampler is the live-vitals collaborator, matching
// *syssampler.Sampler's signature.
type SystemSampler interface {
	CPU(ctx context.Context) (events.CpuUsage, error)
	Memory(ctx context.Context) (events.MemoryUsage, error)
	Disks(ctx context.Context) ([]events.DiskUsage, error)
	Network(ctx context.Context) (events.NetworkUsage, error)
	Uptime(ctx context.Context) (uint64, error)
}

// GpuSampler is the cached GPU-sample collaborator, matching *gpu.Cache.
type GpuSampler interface {
	Get(ctx context.Context) (*events.GpuUsage, string)
	SetTTL(ttl time.Duration)
}

// MediaBackend is the media-status collaborator, matching media.Backend.
type MediaBackend interface {
	Status(ctx context.Context) (events.MediaStatus, error)
}

// ProcessBackend is the process-listing collaborator, matching
// *procbackend.Backend.
type ProcessBackend interface {
	List(ctx context.Context) (events.ProcessListPayload, error)
}

// Manager owns one optional handle per family. Every loop it spawns is
// parented on the Manager's own base context (supplied once at
// construction), never on the context of whichever connection happened
// to trigger the 0->1 transition — a loop must outlive the session that
// started it as long as any subscriber still holds demand for it.
type Manager struct {
	ctx context.Context

	registry Registry
	bus      Publisher
	config   ConfigProvider

	sys   SystemSampler
	gpu   GpuSampler
	media MediaBackend
	proc  ProcessBackend

	logger *slog.Logger

	slots map[topics.Family]*slot
}

type slot struct {
	mu sync.Mutex
	h  *handle
}

type handle struct {
	cancel context.CancelFunc
}

// New builds a Manager with one empty slot per family. ctx is the base
// context every family loop is parented on; it should live for the
// process's lifetime (or at least as long as the Manager is used), not
// a single request or connection.
func New(ctx context.Context, reg Registry, b Publisher, cfg ConfigProvider, sys SystemSampler, gpuSampler GpuSampler, mediaBackend MediaBackend, proc ProcessBackend, logger *slog.Logger) *Manager {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		ctx:      ctx,
		registry: reg,
		bus:      b,
		config:   cfg,
		sys:      sys,
		gpu:      gpuSampler,
		media:    mediaBackend,
		proc:     proc,
		logger:   logger.With("component", "loopmgr"),
		slots:    make(map[topics.Family]*slot),
	}
	for _, f := range topics.AllFamilies() {
		m.slots[f] = &slot{}
	}
	return m
}

// EnsureRunning spawns the family's loop if it isn't already running.
// Idempotent under concurrent callers: the family's slot lock serializes
// the check-and-spawn. The spawned loop is parented on the Manager's own
// base context, so it survives the disconnect of whichever session
// happened to drive the 0->1 transition.
func (m *Manager) EnsureRunning(topic string) {
	fam := topics.FamilyOf(topic)
	s := m.slots[fam]
	if s == nil {
		return
	}

	s.mu.Lock()
	if s.h != nil {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(m.ctx)
	h := &handle{cancel: cancel}
	s.h = h
	s.mu.Unlock()

	m.logger.Info("loop starting", "family", fam)
	go func() {
		m.run(ctx, fam)
		s.mu.Lock()
		if s.h == h {
			s.h = nil
		}
		s.mu.Unlock()
		m.logger.Info("loop stopped", "family", fam)
	}()
}

// StopIfIdle cancels the family's loop if no topic in that family still
// has positive demand. The demand check runs again as the last step
// before cancelling, while the slot lock is held, so a 0->1 transition
// that lands concurrently on another topic in the same family (and thus
// blocks behind this lock inside EnsureRunning) is never clobbered by a
// stale "was idle" observation taken before that transition landed: if
// this goroutine wins the race it cancels and nils the handle, and the
// blocked EnsureRunning then sees a clear slot and spawns a fresh loop.
func (m *Manager) StopIfIdle(topic string) {
	fam := topics.FamilyOf(topic)
	s := m.slots[fam]
	if s == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if m.registry.AnyPositive(topics.MembersOf(fam)) {
		return
	}
	h := s.h
	s.h = nil
	if h != nil {
		h.cancel()
	}
}

// Reconcile reacts to a batch of started/stopped topic transitions:
// started topics ensure their family's loop is running, then stopped
// topics let idle families wind down. Ensuring first guarantees a family
// with surviving demand never drops mid-batch.
func (m *Manager) Reconcile(started, stopped []string) {
	for _, t := range started {
		m.EnsureRunning(t)
	}
	for _, t := range stopped {
		m.StopIfIdle(t)
	}
}

func (m *Manager) run(ctx context.Context, fam topics.Family) {
	switch fam {
	case topics.FamilyStats:
		m.runStats(ctx)
	case topics.FamilyMedia:
		m.runMedia(ctx)
	case topics.FamilyProcesses:
		m.runProcesses(ctx)
	}
}

// sleepOrCancel waits for the given duration, returning false if the
// context was cancelled first. Loops are cancellable only at this
// cooperative suspension point.
func sleepOrCancel(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
