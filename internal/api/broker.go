package api

import (
	"sync"
)

// Event is one progress notification for a run.
type Event struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// Event types.
const (
	EventRunStarted  = "run.started"
	EventRunProgress = "run.progress"
	EventRunFinished = "run.finished"
	EventRunFailed   = "run.failed"
)

func terminal(evtType string) bool {
	return evtType == EventRunFinished || evtType == EventRunFailed
}

// EventBroker fans run events out to subscribers.
type EventBroker interface {
	Subscribe(runID string) chan Event
	Unsubscribe(runID string, ch chan Event)
	Publish(runID string, evt Event)
}

// Broker is the in-process EventBroker. Slow subscribers drop events.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan Event]struct{} // runId -> set of channels
}

func NewBroker() *Broker {
	return &Broker{subs: map[string]map[chan Event]struct{}{}}
}

func (b *Broker) Subscribe(runID string) chan Event {
	ch := make(chan Event, 8)
	b.mu.Lock()
	if b.subs[runID] == nil {
		b.subs[runID] = map[chan Event]struct{}{}
	}
	b.subs[runID][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) Unsubscribe(runID string, ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m := b.subs[runID]
	if _, ok := m[ch]; !ok {
		return
	}
	delete(m, ch)
	if len(m) == 0 {
		delete(b.subs, runID)
	}
	close(ch)
}

func (b *Broker) Publish(runID string, evt Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[runID] {
		select {
		case ch <- evt:
		default:
		}
	}
}
