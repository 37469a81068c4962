// Package service implements the application services that sit between the
// HTTP layer and the data/adapter layers.
package service

import (
	"context"
	"sync"

	"github.com/locushq/catchment-api/internal/core"
	"github.com/locushq/catchment-api/internal/domain/model"
)

// subscriberBuffer leaves room for the init event plus the terminal event
// with slack for replays, so publishers never block.
const subscriberBuffer = 4

// StatusBroker fans job status events out to per-job subscribers. Publishing
// is non-blocking: a slow subscriber misses intermediate events but always
// observes the terminal event or a closed channel, never a deadlock.
type StatusBroker struct {
	mu   sync.Mutex
	subs map[string]map[chan model.StatusEvent]struct{}

	// last retains terminal events so that subscribers arriving after
	// completion still get exactly one complete event.
	last map[string]model.StatusEvent
}

// NewStatusBroker constructs an empty broker.
func NewStatusBroker() *StatusBroker {
	return &StatusBroker{
		subs: make(map[string]map[chan model.StatusEvent]struct{}),
		last: make(map[string]model.StatusEvent),
	}
}

// Subscribe registers for a job's status events. The returned channel closes
// after a terminal event has been delivered. The unsubscribe func is
// idempotent and safe to call after the close.
func (b *StatusBroker) Subscribe(csvID string) (<-chan model.StatusEvent, func()) {
	ch := make(chan model.StatusEvent, subscriberBuffer)

	b.mu.Lock()
	if event, ok := b.last[csvID]; ok {
		// Already finished; replay and close without registering.
		b.mu.Unlock()
		ch <- event
		close(ch)
		return ch, func() {}
	}

	if b.subs[csvID] == nil {
		b.subs[csvID] = make(map[chan model.StatusEvent]struct{})
	}
	b.subs[csvID][ch] = struct{}{}
	b.mu.Unlock()

	unsub := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subscribers := b.subs[csvID]
		if subscribers == nil {
			return
		}
		if _, ok := subscribers[ch]; !ok {
			return
		}
		delete(subscribers, ch)
		close(ch)
		if len(subscribers) == 0 {
			delete(b.subs, csvID)
		}
	}

	return ch, unsub
}

// Publish delivers an event to every subscriber of the job. Terminal events
// close subscriber channels and are retained for late subscribers.
func (b *StatusBroker) Publish(event model.StatusEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subscribers := b.subs[event.CSVID]
	for ch := range subscribers {
		select {
		case ch <- event:
		default:
		}
	}

	if event.Terminal() {
		b.last[event.CSVID] = event
		for ch := range subscribers {
			close(ch)
		}
		delete(b.subs, event.CSVID)
	}
}

// Forget drops the retained terminal event for a job. Used once all
// interested parties have been served, to keep the map from growing
// unboundedly in long-lived processes.
func (b *StatusBroker) Forget(csvID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.last, csvID)
}

var _ core.StatusSubscriber = (*StatusBroker)(nil)

// BrokerSink adapts the broker to the StatusSink port so the worker can
// publish through the same interface as external sinks.
type BrokerSink struct {
	Broker *StatusBroker
}

// Publish implements core.StatusSink.
func (s BrokerSink) Publish(_ context.Context, event model.StatusEvent, _ string) error {
	s.Broker.Publish(event)
	return nil
}
