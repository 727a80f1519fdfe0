package wsapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostbridge/sysbridge/internal/events"
)

func statsEvent() events.Event {
	mem := events.MemoryUsage{}
	return events.NewSystemStats(events.StreamPayload{
		Timestamp: 1,
		Uptime:    2,
		CPU:       &events.CpuUsage{},
		Memory:    &mem,
		GPU:       &events.GpuUsage{},
		Disks:     []events.DiskUsage{{}},
		Network:   &events.NetworkUsage{},
		Media:     &events.MediaStatus{Status: "playing"},
	})
}

func TestFilterProjectsOnlySubscribedStatsFields(t *testing.T) {
	f := newFilter([]string{"cpu"})

	out, keep := f.project(statsEvent())
	require.True(t, keep)
	assert.NotNil(t, out.Stats.CPU)
	assert.Nil(t, out.Stats.Memory)
	assert.Nil(t, out.Stats.GPU)
	assert.Nil(t, out.Stats.Disks)
	assert.Nil(t, out.Stats.Network)
	assert.Nil(t, out.Stats.Media)
}

func TestFilterStatsUmbrellaKeepsAllFieldsExceptMedia(t *testing.T) {
	f := newFilter([]string{"stats"})

	out, keep := f.project(statsEvent())
	require.True(t, keep)
	assert.NotNil(t, out.Stats.CPU)
	assert.NotNil(t, out.Stats.Memory)
	assert.NotNil(t, out.Stats.GPU)
	assert.NotNil(t, out.Stats.Disks)
	assert.NotNil(t, out.Stats.Network)
	assert.Nil(t, out.Stats.Media, "stats umbrella must not imply media per the filter's keep rule")
}

func TestFilterSystemAliasKeepsStatsEventWithNoFields(t *testing.T) {
	f := newFilter([]string{"system"})

	out, keep := f.project(statsEvent())
	require.True(t, keep)
	assert.Nil(t, out.Stats.CPU)
	assert.Nil(t, out.Stats.Memory)
}

func TestFilterDropsStatsEventWhenNothingSubscribed(t *testing.T) {
	f := newFilter([]string{"processes"})

	_, keep := f.project(statsEvent())
	assert.False(t, keep)
}

func TestFilterMediaSubFieldRequiresExplicitMediaTopic(t *testing.T) {
	f := newFilter([]string{"media"})

	out, keep := f.project(statsEvent())
	require.True(t, keep)
	assert.NotNil(t, out.Stats.Media)
}

func TestFilterMediaUpdateIgnoresStatsUmbrella(t *testing.T) {
	f := newFilter([]string{"stats"})

	_, keep := f.project(events.NewMediaUpdate(events.MediaStatus{Status: "paused"}))
	assert.False(t, keep, "media_update must not deliver on the bare stats umbrella")
}

func TestFilterMediaUpdateDeliversOnMediaOrStatsMedia(t *testing.T) {
	f := newFilter([]string{"media"})
	_, keep := f.project(events.NewMediaUpdate(events.MediaStatus{Status: "paused"}))
	assert.True(t, keep)

	f = newFilter([]string{"stats.media"})
	_, keep = f.project(events.NewMediaUpdate(events.MediaStatus{Status: "paused"}))
	assert.True(t, keep)
}

func TestFilterProcessListDeliversOnProcessesOrProcessAlias(t *testing.T) {
	payload := events.ProcessListPayload{TotalCount: 1}

	f := newFilter([]string{"processes"})
	_, keep := f.project(events.NewProcessList(payload))
	assert.True(t, keep)

	f = newFilter([]string{"process"})
	_, keep = f.project(events.NewProcessList(payload))
	assert.True(t, keep)

	f = newFilter([]string{"stats"})
	_, keep = f.project(events.NewProcessList(payload))
	assert.False(t, keep)
}

func TestFilterReplaceReportsAddedAndRemoved(t *testing.T) {
	f := newFilter([]string{"cpu"})

	added, removed := f.replace([]string{"memory"})
	assert.Contains(t, added, "memory")
	assert.Contains(t, added, "stats.memory")
	assert.Contains(t, removed, "cpu")
	assert.Contains(t, removed, "stats.cpu")
}

func TestFilterSnapshotIsDetachedCopy(t *testing.T) {
	f := newFilter([]string{"cpu"})
	snap := f.snapshot()
	snap["extra"] = struct{}{}

	assert.False(t, f.has("extra"))
}
