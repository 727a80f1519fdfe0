// Package gpu samples GPU utilization through a probe chain and caches
// the result: try NVIDIA via nvidia-smi first, then fall back to the
// sysfs/hwmon backend for whatever other card is present.
package gpu

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hostbridge/sysbridge/internal/events"
)

// Probe samples one GPU backend. It returns apperr.Unsupported when the
// backend isn't usable on this host (binary missing, no matching
// hardware) so the Sampler can fall through to the next probe.
type Probe interface {
	Name() string
	Sample(ctx context.Context) (events.GpuUsage, string, error)
}

// Sampler tries each probe in order and returns the first success.
type Sampler struct {
	probes []Probe
	logger *slog.Logger
}

// New builds the default probe chain for this platform: nvidia-smi
// first, then the OS-specific backend (sysfs/hwmon on Linux, a no-op
// elsewhere pending a native backend).
func New(sysfsRoot, debugfsRoot string, logger *slog.Logger) *Sampler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sampler{
		probes: []Probe{
			newNvidiaProbe(),
			newSysfsProbe(sysfsRoot, debugfsRoot, logger),
		},
		logger: logger.With("component", "gpu_sampler"),
	}
}

// Sample runs the probe chain, returning the first probe's success.
// A nil result (not an error) means no GPU backend is available.
func (s *Sampler) Sample(ctx context.Context) (*events.GpuUsage, string) {
	for _, p := range s.probes {
		usage, name, err := p.Sample(ctx)
		if err != nil {
			s.logger.Debug("gpu probe unavailable", "probe", p.Name(), "error", err)
			continue
		}
		return &usage, name
	}
	return nil, ""
}

// Cache wraps a Sampler with a TTL and stale-on-error behavior: a probe
// failure after a prior success keeps serving the last good reading
// rather than surfacing a gap.
type Cache struct {
	sampler *Sampler
	ttl     time.Duration

	mu      sync.Mutex
	last    *events.GpuUsage
	name    string
	fetched time.Time
}

// NewCache builds a Cache with the given refresh interval.
func NewCache(sampler *Sampler, ttl time.Duration) *Cache {
	return &Cache{sampler: sampler, ttl: ttl}
}

// SetTTL adjusts the cache's freshness window, so a config reload
// carrying a new cache-seconds value takes effect on the next Get
// without rebuilding the cache.
func (c *Cache) SetTTL(ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ttl = ttl
}

// Get returns the cached sample if it's still fresh, otherwise refreshes
// it. A nil return means no GPU has ever been found.
func (c *Cache) Get(ctx context.Context) (*events.GpuUsage, string) {
	c.mu.Lock()
	fresh := c.last != nil && time.Since(c.fetched) < c.ttl
	if fresh {
		defer c.mu.Unlock()
		return c.last, c.name
	}
	c.mu.Unlock()

	usage, name := c.sampler.Sample(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if usage != nil {
		c.last = usage
		c.name = name
		c.fetched = time.Now()
		return c.last, c.name
	}
	// Stale-on-error: keep the last good reading if one exists.
	if c.last != nil {
		return c.last, c.name
	}
	return nil, ""
}
