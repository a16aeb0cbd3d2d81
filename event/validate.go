package event

import (
	"errors"
	"fmt"
)

// ErrInvalidArgument is matched by every validation failure.
var ErrInvalidArgument = errors.New("invalid argument")

// FieldError reports a single missing or invalid parameter of an operation.
type FieldError struct {
	Op    string
	Field string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s is missing or invalid", e.Op, e.Field)
}

func (e *FieldError) Unwrap() error { return ErrInvalidArgument }

// IsInvalidArgument reports whether err was caused by a validation failure.
func IsInvalidArgument(err error) bool {
	return errors.Is(err, ErrInvalidArgument)
}

// HandlerError is a failure isolated while delivering an event to one handler.
type HandlerError struct {
	Event    string
	Handler  string
	Err      error
	Panicked bool
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("event %q: handler %s: %v", e.Event, e.Handler, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

// check is one required parameter of an operation
type check struct {
	field string
	ok    bool
}

func eventField(name string) check {
	return check{field: "event", ok: name != ""}
}

func handlerField(h *Handler) check {
	return check{field: "handler", ok: h.callable()}
}

// validate runs exactly the checks an operation declares. Each failing check is
// logged and returned as its own *FieldError.
func (d *Dispatcher) validate(op string, checks ...check) error {
	var errs []error
	for _, c := range checks {
		if c.ok {
			continue
		}

		d.log.Warn().Str("op", op).Str("field", c.field).Msgf("%s: %s is required", op, c.field)
		d.metrics.rejected(op)
		errs = append(errs, &FieldError{Op: op, Field: c.field})
	}
	return errors.Join(errs...)
}
