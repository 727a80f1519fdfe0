package wsapi

// applySubscription replaces f's topic set with requested, feeding the
// resulting transition lists through the registry and loop manager in
// order: unsubscribe the topics that left the set, subscribe the topics
// that joined it, then let the loop manager react to both transition
// lists. The loop manager parents
// any loop it spawns on its own base context, not on this connection's
// context, so the loop outlives this connection's disconnect.
func (s *Server) applySubscription(f *filter, requested []string) {
	added, removed := f.replace(requested)
	stopped := s.deps.Registry.Unsubscribe(removed)
	started := s.deps.Registry.Subscribe(added)
	s.deps.LoopMgr.Reconcile(started, stopped)
}

// clearSubscription tears down every topic f currently holds, used once
// on session cleanup (WS disconnect, SSE stream drop). The set is taken
// and cleared, so a second call finds nothing left to unsubscribe.
func (s *Server) clearSubscription(f *filter) {
	_, current := f.replace(nil)
	if len(current) == 0 {
		return
	}
	stopped := s.deps.Registry.Unsubscribe(current)
	s.deps.LoopMgr.Reconcile(nil, stopped)
}
