// Package bus implements a single in-process multi-producer/
// multi-consumer fan-out of events.Event: each subscriber gets its own
// buffered channel, and a subscriber whose channel is full has its
// oldest undelivered event dropped rather than blocking the publisher.
package bus

import (
	"sync"

	"github.com/hostbridge/sysbridge/internal/events"
)

// DefaultCapacity is the per-subscriber outgoing queue depth.
const DefaultCapacity = 100

// Bus fans out published events to every live subscriber. It has process
// lifetime; events are fire-and-forget with no durability and no
// per-subscriber buffering beyond the channel's bounded capacity.
type Bus struct {
	mu          sync.Mutex
	subscribers map[*subscriber]struct{}
	closed      bool
}

// New builds an empty Bus.
func New() *Bus {
	return &Bus{subscribers: make(map[*subscriber]struct{})}
}

// Subscription is a session's read-only view onto the bus plus its
// unsubscribe handle.
type Subscription struct {
	bus *Bus
	sub *subscriber
}

// Events returns the channel of events delivered to this subscription.
// It is closed when the bus is closed or the subscription is cancelled.
func (s *Subscription) Events() <-chan events.Event {
	return s.sub.ch
}

// Unsubscribe removes this subscription from the bus. Idempotent.
func (s *Subscription) Unsubscribe() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	if _, ok := s.bus.subscribers[s.sub]; !ok {
		return
	}
	delete(s.bus.subscribers, s.sub)
	s.sub.close()
}

// Subscribe registers a new listener. ReceiverCount reflects it
// immediately on return, so a "skip tick if zero receivers" check sees
// the new subscriber right away.
func (b *Bus) Subscribe() *Subscription {
	sub := &subscriber{ch: make(chan events.Event, DefaultCapacity)}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(sub.ch)
		return &Subscription{bus: b, sub: sub}
	}
	b.subscribers[sub] = struct{}{}
	return &Subscription{bus: b, sub: sub}
}

// Publish fans an event out to every current subscriber. A subscriber
// whose queue is full has its oldest undelivered event dropped to make
// room rather than blocking the publisher.
func (b *Bus) Publish(e events.Event) {
	b.mu.Lock()
	targets := make([]*subscriber, 0, len(b.subscribers))
	for s := range b.subscribers {
		targets = append(targets, s)
	}
	b.mu.Unlock()

	for _, s := range targets {
		s.send(e)
	}
}

// ReceiverCount reports how many subscribers are currently live. Worker
// loops use this to skip sampling entirely when nobody is listening
// (zero-demand quiescence, property 3), independent of topic refcounts.
func (b *Bus) ReceiverCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

// Close terminates every subscriber's channel, ending all session tasks
// reading from it.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for s := range b.subscribers {
		s.close()
	}
	b.subscribers = make(map[*subscriber]struct{})
}

type subscriber struct {
	mu     sync.Mutex
	ch     chan events.Event
	closed bool
}

func (s *subscriber) send(e events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- e:
		return
	default:
	}
	// Queue full: drop the oldest to make room for the new event rather
	// than block the publisher.
	select {
	case <-s.ch:
	default:
	}
	select {
	case s.ch <- e:
	default:
	}
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}
