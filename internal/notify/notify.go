// Package notify delivers change events to listeners in strict causal order.
//
// The queue is an explicit FIFO with a delivery-in-progress guard. Publishing
// appends the event; if no drain is running, the publisher becomes the
// drainer: it peeks the front event, invokes every listener with it in fixed
// priority order, then pops, repeating while the queue is non-empty. An event
// published by a listener while handling event N lands behind already-queued
// events and is drained by the same loop, so cascades arrive in true
// cause-before-effect order and stack depth stays independent of cascade
// length.
//
// The queue is not safe for concurrent use; every Publish must happen on the
// foreground context, which the snapshot manager guarantees.
package notify

import (
	"context"
	"fmt"
	"sort"

	"github.com/conneroisu/templens/internal/faults"
	"github.com/conneroisu/templens/internal/logging"
	"github.com/conneroisu/templens/internal/types"
)

// Listener receives every change event, synchronously, in priority order.
type Listener interface {
	// Name identifies the listener in logs and fault reports.
	Name() string
	// OnChange handles one change event. A panic is recovered, reported to
	// the fault collector, and does not interrupt delivery to other
	// listeners or later events.
	OnChange(ctx context.Context, event types.ChangeEvent)
}

// Listener priorities. Higher runs earlier. The lifecycle bridge runs first
// so open/closed document state is correct before anything else reacts to
// the same event.
const (
	PriorityBridge  = 100
	PriorityDefault = 0
	PriorityStream  = -100
)

type registration struct {
	listener Listener
	priority int
	order    int
}

// Queue is the reentrancy-safe FIFO event queue.
type Queue struct {
	listeners  []registration
	pending    []types.ChangeEvent
	delivering bool
	faults     *faults.Collector
	logger     logging.Logger
}

// NewQueue creates an empty queue reporting listener faults to collector.
func NewQueue(collector *faults.Collector, logger logging.Logger) *Queue {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Queue{
		faults: collector,
		logger: logger.WithComponent("notify"),
	}
}

// Register adds a listener at the given priority. The listener list is
// sorted once per registration and never reordered at runtime; registration
// happens at composition time, before any event is published. Ties keep
// registration order.
func (q *Queue) Register(listener Listener, priority int) {
	q.listeners = append(q.listeners, registration{
		listener: listener,
		priority: priority,
		order:    len(q.listeners),
	})
	sort.SliceStable(q.listeners, func(i, j int) bool {
		if q.listeners[i].priority != q.listeners[j].priority {
			return q.listeners[i].priority > q.listeners[j].priority
		}
		return q.listeners[i].order < q.listeners[j].order
	})
}

// Publish enqueues an event and, unless a drain is already in progress,
// drains the queue.
func (q *Queue) Publish(ctx context.Context, event types.ChangeEvent) {
	q.pending = append(q.pending, event)
	if q.delivering {
		return
	}
	q.delivering = true
	defer func() { q.delivering = false }()

	for len(q.pending) > 0 {
		// Peek, deliver, then pop: events raised during delivery append
		// behind the front event and stay in arrival order.
		next := q.pending[0]
		for _, reg := range q.listeners {
			q.invoke(ctx, reg.listener, next)
		}
		q.pending = q.pending[1:]
	}
}

func (q *Queue) invoke(ctx context.Context, listener Listener, event types.ChangeEvent) {
	defer func() {
		if r := recover(); r != nil {
			// Contract violations stay fatal.
			if pe, ok := r.(*faults.ProgrammingError); ok {
				panic(pe)
			}
			err, ok := r.(error)
			if !ok {
				err = fmt.Errorf("%v", r)
			}
			q.logger.Error(ctx, err, "listener panicked",
				"listener", listener.Name(), "event", string(event.Type))
			if q.faults != nil {
				q.faults.Report(faults.Fault{
					Kind:     faults.KindListener,
					Err:      err,
					Listener: listener.Name(),
					Project:  event.ProjectPath(),
					Document: event.DocumentPath,
				})
			}
		}
	}()
	listener.OnChange(ctx, event)
}
