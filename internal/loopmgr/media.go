package loopmgr

import (
	"context"
	"time"

	"github.com/hostbridge/sysbridge/internal/events"
)

// runMedia is the media family's worker loop: edge-triggered on a
// (status, title, artist, playing, muted, volume) fingerprint,
// publishing only on change, with the
// first sample always publishing. features.enable_media skips the tick
// without tearing the loop down, so a runtime toggle takes effect on
// the very next iteration.
func (m *Manager) runMedia(ctx context.Context) {
	first := true
	haveFingerprint := false
	var lastFingerprint string

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		snap := m.config.Get()
		topicCfg := snap.WebSocket.Media
		if !topicCfg.Enabled {
			return
		}

		if !first {
			if !sleepOrCancel(ctx, time.Duration(topicCfg.IntervalMs)*time.Millisecond) {
				return
			}
		}
		first = false

		if !snap.Features.EnableMedia {
			continue
		}
		if m.media == nil {
			continue
		}

		status, err := m.media.Status(ctx)
		if err != nil {
			continue
		}

		fp := status.Fingerprint()
		if haveFingerprint && fp == lastFingerprint {
			continue
		}
		lastFingerprint = fp
		haveFingerprint = true

		m.bus.Publish(events.NewMediaUpdate(status))
	}
}
