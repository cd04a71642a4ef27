package revisionable

import (
	"context"
	"errors"
	"sync"
)

// EventKind names the lifecycle step that produced revisions.
type EventKind string

const (
	EventSaved   EventKind = "saved"
	EventCreated EventKind = "created"
	EventDeleted EventKind = "deleted"
)

// Topic returns the notification name, e.g. "revision.saved".
func (k EventKind) Topic() string {
	return "revision." + string(k)
}

// Event is emitted after revisions were inserted.
type Event struct {
	Kind    EventKind `json:"kind"`
	Ref     Ref       `json:"ref"`
	Records []Record  `json:"records"`
}

// Topic returns the notification name of the event.
func (e Event) Topic() string {
	return e.Kind.Topic()
}

// Dispatcher delivers events to subscribers.
type Dispatcher interface {
	Dispatch(ctx context.Context, e Event) error
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, e Event) error

func (f DispatcherFunc) Dispatch(ctx context.Context, e Event) error {
	return f(ctx, e)
}

// Bus is an in-process Dispatcher keyed by topic.
type Bus struct {
	mu   sync.RWMutex
	subs map[string][]DispatcherFunc
}

// NewBus returns an empty Bus.
func NewBus() *Bus {
	return &Bus{subs: map[string][]DispatcherFunc{}}
}

// Subscribe registers fn for a topic such as "revision.saved".
func (b *Bus) Subscribe(topic string, fn DispatcherFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[topic] = append(b.subs[topic], fn)
}

// Dispatch calls every subscriber of the event's topic and joins their errors.
func (b *Bus) Dispatch(ctx context.Context, e Event) error {
	b.mu.RLock()
	subs := append([]DispatcherFunc(nil), b.subs[e.Topic()]...)
	b.mu.RUnlock()

	var errs []error
	for _, fn := range subs {
		if err := fn(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Fanout dispatches to several dispatchers in order and joins their errors.
type Fanout []Dispatcher

func (f Fanout) Dispatch(ctx context.Context, e Event) error {
	var errs []error
	for _, d := range f {
		if d == nil {
			continue
		}
		if err := d.Dispatch(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
