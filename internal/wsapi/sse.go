package wsapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hostbridge/sysbridge/internal/apperr"
	"github.com/hostbridge/sysbridge/internal/topics"
)

// sseKeepAliveInterval is the cadence for keep-alive frames between
// stats ticks.
const sseKeepAliveInterval = 15 * time.Second

// handleSSE serves GET /api/stream: a fixed subscription to stats,
// field-restricted by the optional ?fields= query parameter, torn down
// exactly once via a scope-guard-style defer bound to stream drop.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if !s.deps.Config.Get().Features.EnableStream {
		featureDenied(w, "stream")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, apperr.New(apperr.Internal, "streaming unsupported by response writer"))
		return
	}

	requested := sseTopics(r.URL.Query().Get("fields"))
	f := newFilter(nil)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sub := s.deps.Bus.Subscribe()
	defer sub.Unsubscribe()

	s.applySubscription(f, requested)
	defer s.clearSubscription(f)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	keepAlive := time.NewTicker(sseKeepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-sub.Events():
			if !ok {
				return
			}
			projected, keep := f.project(e)
			if !keep {
				continue
			}
			data, err := json.Marshal(projected.ToWire())
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// sseTopics maps the comma-separated ?fields= query into the topic list
// applied as this connection's subscription. An empty parameter means
// "all fields", i.e. the bare "stats" umbrella.
func sseTopics(fields string) []string {
	fields = strings.TrimSpace(fields)
	if fields == "" {
		return []string{topics.Stats}
	}
	var out []string
	for _, f := range strings.Split(fields, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		out = append(out, f)
	}
	if len(out) == 0 {
		return []string{topics.Stats}
	}
	return out
}
