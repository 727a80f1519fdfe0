// Package registry implements a global reference-counted map of topic
// name to subscriber count, locked only around the map mutation itself
// so callers can react to a refcount transition without holding the
// lock across that work.
package registry

import "sync"

// Registry is a process-wide singleton threaded explicitly into every
// session rather than held as module-level state.
type Registry struct {
	mu    sync.Mutex
	count map[string]int
}

// New builds an empty Registry.
func New() *Registry {
	return &Registry{count: make(map[string]int)}
}

// Subscribe increments the refcount for every topic in the set and
// returns the subset whose count transitioned 0->1, so the caller (the
// loop manager) can act on that transition outside this lock.
func (r *Registry) Subscribe(topicsSet map[string]struct{}) []string {
	var started []string
	r.mu.Lock()
	for topic := range topicsSet {
		r.count[topic]++
		if r.count[topic] == 1 {
			started = append(started, topic)
		}
	}
	r.mu.Unlock()
	return started
}

// Unsubscribe decrements the refcount for every topic in the set,
// clamping at zero, and returns the subset whose count transitioned 1->0.
func (r *Registry) Unsubscribe(topicsSet map[string]struct{}) []string {
	var stopped []string
	r.mu.Lock()
	for topic := range topicsSet {
		if r.count[topic] <= 0 {
			continue
		}
		r.count[topic]--
		if r.count[topic] == 0 {
			stopped = append(stopped, topic)
		}
	}
	r.mu.Unlock()
	return stopped
}

// Count returns the current refcount for a single topic (0 if never
// subscribed). Used by loops to compute their demand mask.
func (r *Registry) Count(topic string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count[topic]
}

// AnyPositive reports whether at least one of the given topics currently
// has a positive refcount. Used by stop_if_idle-style idle checks.
func (r *Registry) AnyPositive(topicList []string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range topicList {
		if r.count[t] > 0 {
			return true
		}
	}
	return false
}

// Snapshot returns a copy of the full refcount map, for diagnostics
// (e.g. /api/clients-style introspection) and tests.
func (r *Registry) Snapshot() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int, len(r.count))
	for k, v := range r.count {
		out[k] = v
	}
	return out
}
