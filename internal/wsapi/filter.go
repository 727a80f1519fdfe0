package wsapi

import (
	"sync"

	"github.com/hostbridge/sysbridge/internal/events"
	"github.com/hostbridge/sysbridge/internal/topics"
)

// filter holds one connection's expanded topic set and projects a
// shared, globally-built events.Event down to the narrower shape that
// connection actually asked for. The loop manager samples for the union
// of all demand; this type re-narrows per connection so a client
// subscribed only to "cpu" never sees memory/disks/network/media
// fields even though another client's broader subscription caused the
// loop to populate them.
type filter struct {
	mu sync.RWMutex
	t  map[string]struct{}
}

func newFilter(requested []string) *filter {
	return &filter{t: topics.ExpandAll(requested)}
}

// replace swaps the subscribed topic set and returns the canonical
// names newly requested (for Registry.Subscribe) and no longer wanted
// (for Registry.Unsubscribe), compared against the previous set.
func (f *filter) replace(requested []string) (added, removed map[string]struct{}) {
	next := topics.ExpandAll(requested)

	f.mu.Lock()
	prev := f.t
	f.t = next
	f.mu.Unlock()

	added = make(map[string]struct{})
	for t := range next {
		if _, ok := prev[t]; !ok {
			added[t] = struct{}{}
		}
	}
	removed = make(map[string]struct{})
	for t := range prev {
		if _, ok := next[t]; !ok {
			removed[t] = struct{}{}
		}
	}
	return added, removed
}

func (f *filter) snapshot() map[string]struct{} {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(map[string]struct{}, len(f.t))
	for t := range f.t {
		out[t] = struct{}{}
	}
	return out
}

func (f *filter) has(topic string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.t[topic]
	return ok
}

func (f *filter) hasAny(candidates ...string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, c := range candidates {
		if _, ok := f.t[c]; ok {
			return true
		}
	}
	return false
}

// project reports whether e should be delivered on this connection and,
// for system_stats events, returns a narrowed copy carrying only the
// sub-fields this connection subscribed to.
func (f *filter) project(e events.Event) (events.Event, bool) {
	switch e.Kind {
	case events.KindSystemStats:
		return f.projectStats(e)
	case events.KindMediaUpdate, events.KindMediaFeedback:
		if !f.hasAny(topics.Media, topics.StatsMedia) {
			return events.Event{}, false
		}
		return e, true
	case events.KindProcessList, events.KindProcessFeedback:
		if !f.hasAny(topics.Processes, topics.Process) {
			return events.Event{}, false
		}
		return e, true
	default:
		return e, true
	}
}

func (f *filter) projectStats(e events.Event) (events.Event, bool) {
	if e.Stats == nil {
		return events.Event{}, false
	}
	wantCPU := f.hasAny("cpu", topics.StatsCPU, topics.Stats)
	wantMem := f.hasAny("memory", topics.StatsMemory, topics.Stats)
	wantGPU := f.hasAny("gpu", topics.StatsGPU, topics.Stats)
	wantDisks := f.hasAny("disks", topics.StatsDisks, topics.Stats)
	wantNet := f.hasAny("network", "net", topics.StatsNetwork, topics.Stats)
	wantMedia := f.has(topics.Media) || f.has(topics.StatsMedia)
	wantSystem := f.has(topics.System)

	if !wantCPU && !wantMem && !wantGPU && !wantDisks && !wantNet && !wantMedia && !wantSystem {
		return events.Event{}, false
	}

	narrowed := events.StreamPayload{Timestamp: e.Stats.Timestamp, Uptime: e.Stats.Uptime}
	if wantCPU {
		narrowed.CPU = e.Stats.CPU
	}
	if wantMem {
		narrowed.Memory = e.Stats.Memory
	}
	if wantGPU {
		narrowed.GPU = e.Stats.GPU
	}
	if wantDisks {
		narrowed.Disks = e.Stats.Disks
	}
	if wantNet {
		narrowed.Network = e.Stats.Network
	}
	if wantMedia {
		narrowed.Media = e.Stats.Media
	}

	out := e
	out.Stats = &narrowed
	return out, true
}
