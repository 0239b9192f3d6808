package events

import (
	"context"
	"sync"
	"time"

	"github.com/kritsadaskt/ananta-custom-diamond/internal/diamonds"
)

const (
	EventCatalogSynced = "catalog-synced"
	EventHeartbeat     = "heartbeat"
	eventSource        = "ananta-custom-diamond"
)

// CatalogEvent is broadcast to every open selector after a sync finishes.
type CatalogEvent struct {
	EventType string    `json:"type"`
	RunID     string    `json:"run_id,omitempty"`
	Status    string    `json:"status,omitempty"`
	Inserted  int       `json:"inserted"`
	Updated   int       `json:"updated"`
	Errors    int       `json:"errors"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

// Dispatcher fans catalog events out to in-process subscribers. Slow
// subscribers drop events rather than block the publisher.
type Dispatcher struct {
	mu          sync.RWMutex
	subscribers map[int64]*subscriber
	nextID      int64
	bufferSize  int
	clock       func() time.Time
}

type subscriber struct {
	id     int64
	stream chan CatalogEvent
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		subscribers: make(map[int64]*subscriber),
		bufferSize:  16,
		clock:       time.Now,
	}
}

// Subscribe registers a stream that is removed when ctx ends or cleanup runs.
func (d *Dispatcher) Subscribe(ctx context.Context) (<-chan CatalogEvent, func()) {
	sub := &subscriber{
		stream: make(chan CatalogEvent, d.bufferSize),
	}
	d.register(sub)
	var once sync.Once
	cleanup := func() {
		once.Do(func() { d.unregister(sub.id) })
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return sub.stream, cleanup
}

func (d *Dispatcher) Publish(event CatalogEvent) {
	if event.EventType == "" {
		return
	}
	if event.Source == "" {
		event.Source = eventSource
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = d.clock().UTC()
	}
	d.mu.RLock()
	copies := make([]*subscriber, 0, len(d.subscribers))
	for _, sub := range d.subscribers {
		copies = append(copies, sub)
	}
	d.mu.RUnlock()
	for _, sub := range copies {
		select {
		case sub.stream <- event:
		default:
		}
	}
}

// NotifySync publishes completed runs only; aborted runs changed nothing.
func (d *Dispatcher) NotifySync(_ context.Context, run diamonds.SyncRun) error {
	if run.Status != diamonds.SyncStatusCompleted {
		return nil
	}
	d.Publish(CatalogEvent{
		EventType: EventCatalogSynced,
		RunID:     run.RunID,
		Status:    string(run.Status),
		Inserted:  run.Inserted,
		Updated:   run.Updated,
		Errors:    run.Errors,
		Timestamp: time.Unix(run.FinishedAtSeconds, 0).UTC(),
	})
	return nil
}

// SubscriberCount reports the number of open streams.
func (d *Dispatcher) SubscriberCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers)
}

func (d *Dispatcher) register(sub *subscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	sub.id = d.nextID
	d.subscribers[sub.id] = sub
}

func (d *Dispatcher) unregister(subscriberID int64) {
	d.mu.Lock()
	delete(d.subscribers, subscriberID)
	d.mu.Unlock()
}

var _ diamonds.SyncNotifier = (*Dispatcher)(nil)
