package gpu

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostbridge/sysbridge/internal/apperr"
	"github.com/hostbridge/sysbridge/internal/events"
)

type fakeProbe struct {
	name  string
	usage events.GpuUsage
	err   error
	calls int
}

func (f *fakeProbe) Name() string { return f.name }

func (f *fakeProbe) Sample(context.Context) (events.GpuUsage, string, error) {
	f.calls++
	if f.err != nil {
		return events.GpuUsage{}, "", f.err
	}
	return f.usage, "Test GPU", nil
}

func TestSamplerFallsThroughUnsupportedProbes(t *testing.T) {
	failing := &fakeProbe{name: "a", err: apperr.New(apperr.Unsupported, "nope")}
	succeeding := &fakeProbe{name: "b", usage: events.GpuUsage{CurrentLoad: 42}}

	s := &Sampler{probes: []Probe{failing, succeeding}}
	usage, name := s.Sample(context.Background())

	require.NotNil(t, usage)
	assert.Equal(t, 42.0, usage.CurrentLoad)
	assert.Equal(t, "Test GPU", name)
	assert.Equal(t, 1, failing.calls)
	assert.Equal(t, 1, succeeding.calls)
}

func TestSamplerReturnsNilWhenNoProbeSucceeds(t *testing.T) {
	s := &Sampler{probes: []Probe{
		&fakeProbe{name: "a", err: apperr.New(apperr.Unsupported, "nope")},
	}}
	usage, name := s.Sample(context.Background())
	assert.Nil(t, usage)
	assert.Empty(t, name)
}

func TestCacheServesStaleReadingOnProbeFailure(t *testing.T) {
	probe := &fakeProbe{name: "a", usage: events.GpuUsage{CurrentLoad: 10}}
	sampler := &Sampler{probes: []Probe{probe}}
	cache := NewCache(sampler, time.Millisecond)

	first, _ := cache.Get(context.Background())
	require.NotNil(t, first)
	assert.Equal(t, 10.0, first.CurrentLoad)

	probe.err = apperr.New(apperr.Unsupported, "now broken")
	time.Sleep(2 * time.Millisecond)

	second, _ := cache.Get(context.Background())
	require.NotNil(t, second)
	assert.Equal(t, 10.0, second.CurrentLoad, "expected stale-on-error to keep the last good reading")
}

func TestCacheRespectsTTL(t *testing.T) {
	probe := &fakeProbe{name: "a", usage: events.GpuUsage{CurrentLoad: 1}}
	sampler := &Sampler{probes: []Probe{probe}}
	cache := NewCache(sampler, time.Hour)

	cache.Get(context.Background())
	cache.Get(context.Background())
	assert.Equal(t, 1, probe.calls, "second Get within TTL should not re-sample")
}

func TestFirstLine(t *testing.T) {
	assert.Equal(t, "a,b,c", firstLine("a,b,c\nd,e,f\n"))
	assert.Equal(t, "single", firstLine("single"))
}

func TestParseFloatOr(t *testing.T) {
	assert.Equal(t, 12.5, parseFloatOr("12.5", -1))
	assert.Equal(t, -1.0, parseFloatOr("not-a-number", -1))
}
