// Package audit captures one event per terminal dispatch outcome. Events flow
// through a buffered channel into a worker, which hands them to a sink
// (in-memory for tests and single-node runs, Kafka for shared deployments),
// so the dispatch path never blocks on audit I/O.
package audit

import (
	"context"
	"time"
)

// Sink persists audit events.
type Sink interface {
	Append(ctx context.Context, event Event) error
}

// Publisher enqueues events for asynchronous persistence. When the buffer is
// full the event is dropped rather than stalling a dispatch.
type Publisher struct {
	inbox chan Event
}

func NewPublisher(buffer int) *Publisher {
	if buffer <= 0 {
		buffer = 256
	}
	return &Publisher{inbox: make(chan Event, buffer)}
}

// Emit enqueues an event, stamping the timestamp if unset.
// Returns false if the event was dropped due to backpressure.
func (p *Publisher) Emit(event Event) bool {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case p.inbox <- event:
		return true
	default:
		return false
	}
}

// Inbox exposes the event stream for the worker.
func (p *Publisher) Inbox() <-chan Event {
	return p.inbox
}

// Worker consumes audit events from the publisher and persists them.
type Worker struct {
	sink  Sink
	inbox <-chan Event
}

func NewWorker(sink Sink, inbox <-chan Event) *Worker {
	return &Worker{sink: sink, inbox: inbox}
}

// Run drains the inbox until the context is cancelled. Sink failures stop the
// worker; the caller decides whether to restart.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-w.inbox:
			if err := w.sink.Append(ctx, event); err != nil {
				return err
			}
		}
	}
}
