package events

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuemby/panelsync/pkg/metrics"
	"github.com/google/uuid"
)

// EventType names an event. Types are dot separated so subscribers can
// filter by prefix, e.g. "live." or "sync.".
type EventType string

const (
	EventSyncStarted   EventType = "sync.started"
	EventSyncCompleted EventType = "sync.completed"
	EventSyncFailed    EventType = "sync.failed"
	EventServerCreated EventType = "server.created"
	EventServerUpdated EventType = "server.updated"
	EventServerDeleted EventType = "server.deleted"
	EventPowerSent     EventType = "power.sent"
	EventLiveUpdated   EventType = "live.updated"
	EventLiveStopped   EventType = "live.stopped"
)

const (
	publishBuffer    = 100
	subscriberBuffer = 50
)

// Event is one notification about the mirror, a sync run or live state
type Event struct {
	ID        string            `json:"id"`
	Type      EventType         `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Message   string            `json:"message,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Data      any               `json:"data,omitempty"`
}

// Subscriber receives events
type Subscriber chan *Event

// Broker fans published events out to subscribers
type Broker struct {
	mu          sync.RWMutex
	subscribers map[Subscriber]string // value is the type prefix filter
	eventCh     chan *Event
	stopCh      chan struct{}
	stopOnce    sync.Once
	dropped     atomic.Uint64
}

func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]string),
		eventCh:     make(chan *Event, publishBuffer),
		stopCh:      make(chan struct{}),
	}
}

// Start runs the distribution loop in the background
func (b *Broker) Start() {
	go func() {
		for {
			select {
			case event := <-b.eventCh:
				b.broadcast(event)
			case <-b.stopCh:
				return
			}
		}
	}()
}

// Stop ends distribution. Later Publish calls return immediately.
func (b *Broker) Stop() {
	b.stopOnce.Do(func() { close(b.stopCh) })
}

// Subscribe receives every event
func (b *Broker) Subscribe() Subscriber {
	return b.SubscribePrefix("")
}

// SubscribePrefix receives events whose type starts with prefix
func (b *Broker) SubscribePrefix(prefix string) Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, subscriberBuffer)
	b.subscribers[sub] = prefix
	return sub
}

// Unsubscribe removes and closes sub. Unknown subscribers are ignored.
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscribers[sub]; ok {
		delete(b.subscribers, sub)
		close(sub)
	}
}

// Publish queues event for delivery, filling in ID and Timestamp when
// unset. A nil broker drops the event, so components can run without one.
func (b *Broker) Publish(event *Event) {
	if b == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.eventCh <- event:
	case <-b.stopCh:
	}
}

// broadcast never blocks: a subscriber with a full buffer misses the event
func (b *Broker) broadcast(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub, prefix := range b.subscribers {
		if !strings.HasPrefix(string(event.Type), prefix) {
			continue
		}
		select {
		case sub <- event:
		default:
			b.dropped.Add(1)
			metrics.EventsDroppedTotal.WithLabelValues(string(event.Type)).Inc()
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Dropped returns how many deliveries were skipped because a subscriber
// buffer was full
func (b *Broker) Dropped() uint64 {
	return b.dropped.Load()
}
