// Copyright (c) Roman Atachiants and contributors. All rights reserved.
// Licensed under the MIT license. See LICENSE file in the project root for details.

package event

// Binding lets callers attach handlers to one dispatcher with the handler in
// front, the way an object would subscribe itself. It delegates to the
// dispatcher without changing any of its contracts.
type Binding struct {
	d *Dispatcher
}

// Bind returns a Binding for d.
func Bind(d *Dispatcher) Binding {
	return Binding{d: d}
}

// Dispatcher returns the bound dispatcher.
func (b Binding) Dispatcher() *Dispatcher {
	return b.d
}

// Subscribe subscribes handler to the named event. This functions same way as
// Dispatcher.Subscribe.
func (b Binding) Subscribe(handler *Handler, name string) (*Handler, error) {
	return b.d.Subscribe(name, handler)
}

// Unsubscribe removes the first registration of handler. This functions same
// way as Dispatcher.Unsubscribe.
func (b Binding) Unsubscribe(handler *Handler, name string) (*Handler, error) {
	return b.d.Unsubscribe(name, handler)
}

// On wraps fn and subscribes it to the named event, returning the handler to
// unsubscribe with.
func (b Binding) On(name string, fn func(data any)) (*Handler, error) {
	return b.d.Subscribe(name, Func(fn))
}
