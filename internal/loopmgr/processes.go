package loopmgr

import (
	"context"
	"time"

	"github.com/hostbridge/sysbridge/internal/events"
)

// runProcesses is the processes family's worker loop: level-triggered,
// publishing the grouped process list every tick regardless of change.
// features.enable_processes skips the tick without stopping the loop.
func (m *Manager) runProcesses(ctx context.Context) {
	first := true
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		snap := m.config.Get()
		topicCfg := snap.WebSocket.Processes
		if !topicCfg.Enabled {
			return
		}

		if !first {
			if !sleepOrCancel(ctx, time.Duration(topicCfg.IntervalMs)*time.Millisecond) {
				return
			}
		}
		first = false

		if !snap.Features.EnableProcesses {
			continue
		}
		if m.proc == nil {
			continue
		}

		payload, err := m.proc.List(ctx)
		if err != nil {
			continue
		}
		payload.Timestamp = time.Now().UnixMilli()

		m.bus.Publish(events.NewProcessList(payload))
	}
}
