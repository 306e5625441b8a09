// Package memory implements a Publisher that records page completion events
// in memory, standing in for Pub/Sub in tests and local runs.
package memory

import (
	"context"
	"fmt"
	"sync"
)

// Publisher accumulates published events for later inspection.
type Publisher struct {
	mu     sync.Mutex
	seq    int
	events []Event
}

// Event is one recorded publish call, tagged with its synthetic message ID.
type Event struct {
	ID      string
	Topic   string
	Payload any
}

// New returns an empty Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish records the event and returns its synthetic message ID.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	id := fmt.Sprintf("mem-%d", p.seq)
	p.events = append(p.events, Event{ID: id, Topic: topic, Payload: payload})
	return id, nil
}

// Messages returns a copy of everything published so far, in publish order.
func (p *Publisher) Messages() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Event, len(p.events))
	copy(out, p.events)
	return out
}

// TopicMessages returns the published events for one topic, in publish order.
func (p *Publisher) TopicMessages(topic string) []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Event
	for _, evt := range p.events {
		if evt.Topic == topic {
			out = append(out, evt)
		}
	}
	return out
}
