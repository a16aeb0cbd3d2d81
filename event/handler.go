package event

import "fmt"

// Handler is a callback registered for an event. Handlers are compared by
// pointer, so keep the *Handler returned by Subscribe to unsubscribe it later.
type Handler struct {
	name string
	fn   func(data any) error
}

// Func wraps fn as a Handler.
func Func(fn func(data any)) *Handler {
	if fn == nil {
		return &Handler{}
	}
	return &Handler{fn: func(data any) error {
		fn(data)
		return nil
	}}
}

// FuncE wraps a handler that can fail. A returned error is reported by the
// dispatcher and does not stop delivery to the other handlers.
func FuncE(fn func(data any) error) *Handler {
	return &Handler{fn: fn}
}

// Typed wraps a handler that expects data of type T. Publishing data of another
// type counts as a handler failure.
func Typed[T any](fn func(T)) *Handler {
	if fn == nil {
		return &Handler{}
	}
	return &Handler{fn: func(data any) error {
		v, ok := data.(T)
		if !ok {
			var want T
			return fmt.Errorf("unexpected data type, want=<%T>, got=<%T>", want, data)
		}
		fn(v)
		return nil
	}}
}

// Named sets the label used for the handler in logs, metrics and traces. It is
// a no-op on a nil handler.
func (h *Handler) Named(name string) *Handler {
	if h == nil {
		return nil
	}
	h.name = name
	return h
}

// Name returns the handler label, or a pointer based one when none was set.
func (h *Handler) Name() string {
	if h == nil {
		return ""
	}
	if h.name != "" {
		return h.name
	}
	return fmt.Sprintf("handler@%p", h)
}

// callable reports whether h can be invoked.
func (h *Handler) callable() bool {
	return h != nil && h.fn != nil
}
