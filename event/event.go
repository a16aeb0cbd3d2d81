// Copyright (c) Roman Atachiants and contributors. All rights reserved.
// Licensed under the MIT license. See LICENSE file in the project root for details.

// Package event implements an in-process publish/subscribe dispatcher keyed by
// event name. Handlers run synchronously, in registration order, on the goroutine
// that calls Publish.
package event

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/mostlygeek/pubsub/event"

// registry holds an immutable sorted array of event mappings
type registry struct {
	keys []string     // Event names (sorted)
	grps [][]*Handler // Corresponding handlers, in registration order
}

// find performs a binary search for the event name
func (r *registry) find(name string) (int, bool) {
	idx := sort.SearchStrings(r.keys, name)
	return idx, idx < len(r.keys) && r.keys[idx] == name
}

// with returns a copy of the registry where name maps to handlers. An empty
// handler list removes the entry.
func (r *registry) with(name string, handlers []*Handler) *registry {
	idx, found := r.find(name)

	switch {
	case found && len(handlers) == 0:
		next := &registry{
			keys: make([]string, 0, len(r.keys)-1),
			grps: make([][]*Handler, 0, len(r.grps)-1),
		}
		next.keys = append(append(next.keys, r.keys[:idx]...), r.keys[idx+1:]...)
		next.grps = append(append(next.grps, r.grps[:idx]...), r.grps[idx+1:]...)
		return next
	case found:
		next := &registry{
			keys: r.keys,
			grps: make([][]*Handler, len(r.grps)),
		}
		copy(next.grps, r.grps)
		next.grps[idx] = handlers
		return next
	case len(handlers) == 0:
		return r
	}

	// Insert new entry in sorted position
	next := &registry{
		keys: make([]string, len(r.keys)+1),
		grps: make([][]*Handler, len(r.grps)+1),
	}
	copy(next.keys[:idx], r.keys[:idx])
	copy(next.grps[:idx], r.grps[:idx])
	next.keys[idx] = name
	next.grps[idx] = handlers
	copy(next.keys[idx+1:], r.keys[idx:])
	copy(next.grps[idx+1:], r.grps[idx:])
	return next
}

// ------------------------------------- Dispatcher -------------------------------------

// Dispatcher represents an event dispatcher. The zero value is not usable, create
// one with NewDispatcher.
type Dispatcher struct {
	subs    atomic.Pointer[registry] // Atomic pointer to immutable array
	mu      sync.Mutex               // Only for writes (subscribe/unsubscribe/off)
	log     zerolog.Logger
	tracer  trace.Tracer
	metrics *Metrics
	onError func(*HandlerError)
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger used for validation and handler failure reports.
func WithLogger(l zerolog.Logger) Option {
	return func(d *Dispatcher) { d.log = l }
}

// WithTracer sets the tracer used by PublishContext.
func WithTracer(t trace.Tracer) Option {
	return func(d *Dispatcher) { d.tracer = t }
}

// WithMetrics enables prometheus instrumentation.
func WithMetrics(m *Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithErrorHandler installs a hook that receives every isolated handler failure.
// It runs synchronously inside Publish.
func WithErrorHandler(fn func(*HandlerError)) Option {
	return func(d *Dispatcher) { d.onError = fn }
}

// NewDispatcher creates a new dispatcher with an empty registry.
func NewDispatcher(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		log: zerolog.New(os.Stderr).Level(zerolog.WarnLevel).With().
			Timestamp().Str("component", "event").Logger(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(d)
	}

	d.subs.Store(&registry{
		keys: make([]string, 0, 16),
		grps: make([][]*Handler, 0, 16),
	})
	return d
}

// handlers returns the current handler snapshot for an event. The returned slice
// must not be modified.
func (d *Dispatcher) handlers(name string) []*Handler {
	return d.handlersIn(d.subs.Load(), name)
}

// Subscribe appends handler to the list for the named event and returns it so
// it can be passed to Unsubscribe later. The same handler may be subscribed more
// than once; each registration is delivered and removed independently.
func (d *Dispatcher) Subscribe(name string, handler *Handler) (*Handler, error) {
	if err := d.validate("subscribe", eventField(name), handlerField(handler)); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	old := d.subs.Load()
	current := d.handlersIn(old, name)
	next := make([]*Handler, len(current), len(current)+1)
	copy(next, current)
	next = append(next, handler)

	d.subs.Store(old.with(name, next))
	d.metrics.setHandlers(name, len(next))
	return handler, nil
}

// Unsubscribe removes the first registration of handler for the named event.
// Removing a handler that is not registered is a no-op, the handler is returned
// either way.
func (d *Dispatcher) Unsubscribe(name string, handler *Handler) (*Handler, error) {
	if err := d.validate("unsubscribe", eventField(name), handlerField(handler)); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	old := d.subs.Load()
	current := d.handlersIn(old, name)
	for i, h := range current {
		if h != handler {
			continue
		}

		next := make([]*Handler, 0, len(current)-1)
		next = append(next, current[:i]...)
		next = append(next, current[i+1:]...)
		d.subs.Store(old.with(name, next))
		d.metrics.setHandlers(name, len(next))
		break
	}
	return handler, nil
}

// Off removes every handler registered for the named event.
func (d *Dispatcher) Off(name string) error {
	if err := d.validate("off", eventField(name)); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.subs.Store(d.subs.Load().with(name, nil))
	d.metrics.setHandlers(name, 0)
	return nil
}

// Publish delivers data to every handler of the named event. See PublishContext.
func (d *Dispatcher) Publish(name string, data any) error {
	return d.PublishContext(context.Background(), name, data)
}

// PublishContext delivers data to every handler currently registered for the
// named event, in registration order, and returns once all of them ran. An event
// without handlers is a no-op. A failing or panicking handler does not stop
// delivery to the handlers after it and is not reported to the caller; it goes
// to the logger, metrics, the span and the error hook instead.
func (d *Dispatcher) PublishContext(ctx context.Context, name string, data any) error {
	if err := d.validate("publish", eventField(name)); err != nil {
		return err
	}

	handlers := d.handlers(name)
	_, span := d.tracer.Start(ctx, "publish",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("event.name", name),
			attribute.Int("event.handlers", len(handlers)),
		),
	)
	defer span.End()

	d.metrics.published(name)

	failures := 0
	for _, h := range handlers {
		if herr := d.invoke(name, h, data); herr != nil {
			failures++
			d.report(span, herr)
		}
	}

	if failures > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d of %d handlers failed", failures, len(handlers)))
	}
	return nil
}

// invoke calls a single handler, turning errors and panics into *HandlerError.
func (d *Dispatcher) invoke(name string, h *Handler, data any) (herr *HandlerError) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			if rerr, ok := r.(error); ok {
				err = fmt.Errorf("panic: %w", rerr)
			}
			herr = &HandlerError{Event: name, Handler: h.Name(), Err: err, Panicked: true}
		}
	}()

	d.metrics.delivered(name)
	if err := h.fn(data); err != nil {
		return &HandlerError{Event: name, Handler: h.Name(), Err: err}
	}
	return nil
}

func (d *Dispatcher) report(span trace.Span, herr *HandlerError) {
	d.log.Error().
		Err(herr.Err).
		Str("event", herr.Event).
		Str("handler", herr.Handler).
		Bool("panic", herr.Panicked).
		Msg("event handler failed")

	d.metrics.failed(herr.Event)
	span.RecordError(herr, trace.WithAttributes(
		attribute.String("handler", herr.Handler),
		attribute.Bool("panic", herr.Panicked),
	))

	if d.onError != nil {
		d.onError(herr)
	}
}

func (d *Dispatcher) handlersIn(reg *registry, name string) []*Handler {
	if idx, ok := reg.find(name); ok {
		return reg.grps[idx]
	}
	return nil
}

// Count returns the number of registrations for the named event.
func (d *Dispatcher) Count(name string) int {
	return len(d.handlers(name))
}

// Events returns the names of all events with at least one handler, sorted.
func (d *Dispatcher) Events() []string {
	reg := d.subs.Load()
	out := make([]string, len(reg.keys))
	copy(out, reg.keys)
	return out
}
