package loopmgr

import (
	"context"
	"time"

	"github.com/hostbridge/sysbridge/internal/events"
	"github.com/hostbridge/sysbridge/internal/topics"
)

// demandMask is the per-tick (need_cpu, need_memory, need_gpu,
// need_disks, need_network) computation.
type demandMask struct {
	cpu, memory, gpu, disks, network bool
}

func (d demandMask) allFalse() bool {
	return !d.cpu && !d.memory && !d.gpu && !d.disks && !d.network
}

func (m *Manager) statsDemandMask(gpuEnabled bool) demandMask {
	any3 := func(alias, canonical string) bool {
		return m.registry.Count(alias) > 0 || m.registry.Count(canonical) > 0 || m.registry.Count(topics.Stats) > 0
	}
	return demandMask{
		cpu:     any3("cpu", topics.StatsCPU),
		memory:  any3("memory", topics.StatsMemory),
		gpu:     gpuEnabled && any3("gpu", topics.StatsGPU),
		disks:   any3("disks", topics.StatsDisks),
		network: any3("network", topics.StatsNetwork) || m.registry.Count("net") > 0,
	}
}

// runStats is the stats family's worker loop. Every iteration re-reads
// (interval_ms, enabled) from the live config snapshot, samples
// immediately on the first iteration (instant-first-delivery), and
// skips refreshing entirely when the demand mask is all-false or no
// session is listening on the bus (zero-demand quiescence).
func (m *Manager) runStats(ctx context.Context) {
	first := true
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		snap := m.config.Get()
		topicCfg := snap.WebSocket.Stats
		if !topicCfg.Enabled {
			return
		}

		if !first {
			if !sleepOrCancel(ctx, time.Duration(topicCfg.IntervalMs)*time.Millisecond) {
				return
			}
		}
		first = false

		if m.bus.ReceiverCount() == 0 {
			continue
		}

		mask := m.statsDemandMask(snap.Stats.GPUEnabled)
		if mask.allFalse() {
			continue
		}

		if m.gpu != nil {
			m.gpu.SetTTL(time.Duration(snap.Stats.DiskCacheSeconds) * time.Second)
		}

		payload := m.buildStatsPayload(ctx, mask)
		m.bus.Publish(events.NewSystemStats(payload))
	}
}

func (m *Manager) buildStatsPayload(ctx context.Context, mask demandMask) events.StreamPayload {
	payload := events.StreamPayload{Timestamp: time.Now().UnixMilli()}

	if up, err := m.sys.Uptime(ctx); err == nil {
		payload.Uptime = up
	}

	if mask.cpu {
		if v, err := m.sys.CPU(ctx); err == nil {
			payload.CPU = &v
		}
	}
	if mask.memory {
		if v, err := m.sys.Memory(ctx); err == nil {
			payload.Memory = &v
		}
	}
	if mask.disks {
		if v, err := m.sys.Disks(ctx); err == nil {
			payload.Disks = v
		}
	}
	if mask.network {
		if v, err := m.sys.Network(ctx); err == nil {
			payload.Network = &v
		}
	}
	if mask.gpu && m.gpu != nil {
		if v, _ := m.gpu.Get(ctx); v != nil {
			payload.GPU = v
		}
	}

	return payload
}
