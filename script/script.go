// Package script replays YAML scenarios against an event.Dispatcher. A scenario
// declares named handlers and a list of steps; every handler invocation is
// recorded so the run can be checked and printed.
package script

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/mostlygeek/pubsub/event"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"gopkg.in/yaml.v3"
)

const (
	ActionRecord = "record"
	ActionFail   = "fail"
	ActionPanic  = "panic"
)

// HandlerSpec describes what a named handler does when invoked.
type HandlerSpec struct {
	Action  string `yaml:"action"`
	Path    string `yaml:"path"`    // gjson path applied to the JSON form of the data
	Message string `yaml:"message"` // error or panic message
}

// set default values for HandlerSpec
func (h *HandlerSpec) UnmarshalYAML(unmarshal func(interface{}) error) error {
	type rawHandlerSpec HandlerSpec
	defaults := rawHandlerSpec{
		Action:  ActionRecord,
		Message: "handler failed",
	}

	if err := unmarshal(&defaults); err != nil {
		return err
	}

	*h = HandlerSpec(defaults)
	return nil
}

// Target names an event and, for subscribe/unsubscribe, a handler.
type Target struct {
	Event   string `yaml:"event"`
	Handler string `yaml:"handler"`
}

type Publish struct {
	Event string `yaml:"event"`
	Data  any    `yaml:"data"`
}

// Expect checks the handlers called since the previous expect step, in order.
// Rejected, when set, is the number of operations refused by validation so far.
type Expect struct {
	Calls    []string `yaml:"calls"`
	Rejected *int     `yaml:"rejected"`
}

// Step is one operation. Exactly one field must be set.
type Step struct {
	Subscribe   *Target  `yaml:"subscribe"`
	Unsubscribe *Target  `yaml:"unsubscribe"`
	Publish     *Publish `yaml:"publish"`
	Off         *Target  `yaml:"off"`
	Expect      *Expect  `yaml:"expect"`
}

func (s Step) kind() (string, error) {
	var kinds []string
	if s.Subscribe != nil {
		kinds = append(kinds, "subscribe")
	}
	if s.Unsubscribe != nil {
		kinds = append(kinds, "unsubscribe")
	}
	if s.Publish != nil {
		kinds = append(kinds, "publish")
	}
	if s.Off != nil {
		kinds = append(kinds, "off")
	}
	if s.Expect != nil {
		kinds = append(kinds, "expect")
	}

	if len(kinds) != 1 {
		return "", fmt.Errorf("step must have exactly one operation, found %d", len(kinds))
	}
	return kinds[0], nil
}

type Script struct {
	Handlers map[string]HandlerSpec `yaml:"handlers"`
	Steps    []Step                 `yaml:"steps"`
}

func Load(path string) (Script, error) {
	file, err := os.Open(path)
	if err != nil {
		return Script{}, err
	}
	defer file.Close()
	return LoadFromReader(file)
}

func LoadFromReader(r io.Reader) (Script, error) {
	var s Script
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		if errors.Is(err, io.EOF) {
			return Script{}, fmt.Errorf("script is empty")
		}
		return Script{}, fmt.Errorf("failed to parse script: %w", err)
	}

	for name, h := range s.Handlers {
		switch h.Action {
		case "":
			// "name:" with no body decodes to the zero value
			h.Action, h.Message = ActionRecord, "handler failed"
			s.Handlers[name] = h
		case ActionRecord, ActionFail, ActionPanic:
		default:
			return Script{}, fmt.Errorf("handler %s: unknown action %q", name, h.Action)
		}
	}

	for i, step := range s.Steps {
		if _, err := step.kind(); err != nil {
			return Script{}, fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	return s, nil
}

// Call is one handler invocation observed during a run.
type Call struct {
	Seq     int
	Step    int
	Event   string
	Handler string
	Value   any // data, or the gjson path result when the handler has a path
}

// JSON renders the call as a single JSON object.
func (c Call) JSON() ([]byte, error) {
	out := []byte(`{}`)
	var err error
	for _, kv := range []struct {
		path  string
		value any
	}{
		{"seq", c.Seq},
		{"step", c.Step},
		{"event", c.Event},
		{"handler", c.Handler},
		{"value", c.Value},
	} {
		if out, err = sjson.SetBytes(out, kv.path, kv.value); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Result summarizes a run.
type Result struct {
	Calls    []Call
	Rejected int // operations refused with event.ErrInvalidArgument
	Failures int // handler errors and panics isolated by the dispatcher
}

// Runner executes scripts. Handlers are created once per name, so referring to
// the same name twice subscribes the same handler twice.
type Runner struct {
	d        *event.Dispatcher
	out      io.Writer
	handlers map[string]*event.Handler

	step    int
	current string // event of the publish being executed
	result  Result
	mark    int // index into result.Calls of the last expect
}

// NewRunner creates a runner for d. When out is not nil each call is written to
// it as a JSON line.
func NewRunner(d *event.Dispatcher, out io.Writer) *Runner {
	return &Runner{d: d, out: out}
}

// ErrorHook returns a function to pass to event.WithErrorHandler so the runner
// can count isolated handler failures.
func (r *Runner) ErrorHook() func(*event.HandlerError) {
	return func(*event.HandlerError) { r.result.Failures++ }
}

// Run executes every step of s. Validation failures are counted, not returned;
// a failed expect stops the run.
func (r *Runner) Run(s Script) (Result, error) {
	r.handlers = make(map[string]*event.Handler, len(s.Handlers))
	for name, spec := range s.Handlers {
		r.handlers[name] = r.newHandler(name, spec)
	}

	for i, step := range s.Steps {
		r.step = i + 1
		if err := r.exec(step); err != nil {
			return r.result, fmt.Errorf("step %d: %w", r.step, err)
		}
	}
	return r.result, nil
}

func (r *Runner) exec(step Step) error {
	kind, err := step.kind()
	if err != nil {
		return err
	}

	switch kind {
	case "subscribe":
		_, err = r.d.Subscribe(step.Subscribe.Event, r.handlers[step.Subscribe.Handler])
	case "unsubscribe":
		_, err = r.d.Unsubscribe(step.Unsubscribe.Event, r.handlers[step.Unsubscribe.Handler])
	case "publish":
		r.current = step.Publish.Event
		err = r.d.Publish(step.Publish.Event, step.Publish.Data)
	case "off":
		err = r.d.Off(step.Off.Event)
	case "expect":
		return r.expect(step.Expect)
	}

	if event.IsInvalidArgument(err) {
		r.result.Rejected++
		return nil
	}
	return err
}

func (r *Runner) expect(e *Expect) error {
	var got []string
	for _, c := range r.result.Calls[r.mark:] {
		got = append(got, c.Handler)
	}
	r.mark = len(r.result.Calls)

	want := e.Calls
	if len(want) == 0 {
		want = nil
	}
	if !slices.Equal(got, want) {
		return fmt.Errorf("expected calls [%s], got [%s]", strings.Join(want, ", "), strings.Join(got, ", "))
	}

	if e.Rejected != nil && *e.Rejected != r.result.Rejected {
		return fmt.Errorf("expected %d rejected operations, got %d", *e.Rejected, r.result.Rejected)
	}
	return nil
}

// newHandler builds the handler for spec. Every invocation is recorded before
// the action runs, failing handlers included.
func (r *Runner) newHandler(name string, spec HandlerSpec) *event.Handler {
	return event.FuncE(func(data any) error {
		value := data
		if spec.Path != "" {
			raw, err := json.Marshal(data)
			if err != nil {
				return fmt.Errorf("data is not JSON encodable: %w", err)
			}
			value = gjson.GetBytes(raw, spec.Path).Value()
		}
		if err := r.record(name, value); err != nil {
			return err
		}

		switch spec.Action {
		case ActionFail:
			return errors.New(spec.Message)
		case ActionPanic:
			panic(spec.Message)
		}
		return nil
	}).Named(name)
}

func (r *Runner) record(handler string, value any) error {
	call := Call{
		Seq:     len(r.result.Calls) + 1,
		Step:    r.step,
		Event:   r.current,
		Handler: handler,
		Value:   value,
	}
	r.result.Calls = append(r.result.Calls, call)

	if r.out == nil {
		return nil
	}
	line, err := call.JSON()
	if err != nil {
		return err
	}
	_, err = r.out.Write(append(line, '\n'))
	return err
}
