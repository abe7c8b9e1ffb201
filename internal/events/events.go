// Package events carries search progress from the pipeline to whatever
// transport shows it (terminal, SSE stream, TUI).
package events

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type Kind string

const (
	KindLog      Kind = "log"
	KindInfo     Kind = "info"
	KindSuccess  Kind = "success"
	KindError    Kind = "error"
	KindProgress Kind = "progress"
	KindComplete Kind = "complete"
)

// Event is one emitted message. Data carries structured payload such as
// counters for progress and completion events.
type Event struct {
	Kind      Kind           `json:"type"`
	Message   string         `json:"message,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

type Emitter interface {
	Emit(ev Event)
}

// Func adapts a function to Emitter.
type Func func(Event)

func (f Func) Emit(ev Event) { f(ev) }

// Discard drops every event.
var Discard Emitter = Func(func(Event) {})

// Multi fans an event out to every non-nil emitter.
func Multi(emitters ...Emitter) Emitter {
	var out []Emitter
	for _, e := range emitters {
		if e != nil {
			out = append(out, e)
		}
	}
	return Func(func(ev Event) {
		for _, e := range out {
			e.Emit(ev)
		}
	})
}

// Emitf stamps and emits a formatted message.
func Emitf(e Emitter, kind Kind, format string, args ...any) {
	if e == nil {
		return
	}
	e.Emit(Event{Kind: kind, Message: fmt.Sprintf(format, args...), Timestamp: time.Now()})
}

// EmitData emits an event with a payload.
func EmitData(e Emitter, kind Kind, msg string, data map[string]any) {
	if e == nil {
		return
	}
	e.Emit(Event{Kind: kind, Message: msg, Data: data, Timestamp: time.Now()})
}

// Logger writes events to a logrus logger at a level matching their kind.
func Logger(l logrus.FieldLogger) Emitter {
	return Func(func(ev Event) {
		entry := l.WithField("event", string(ev.Kind))
		if len(ev.Data) > 0 {
			entry = entry.WithFields(logrus.Fields(ev.Data))
		}
		switch ev.Kind {
		case KindError:
			entry.Error(ev.Message)
		case KindProgress, KindLog:
			entry.Debug(ev.Message)
		default:
			entry.Info(ev.Message)
		}
	})
}

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Kinds lists the kinds of recorded events in order.
func (r *Recorder) Kinds() []Kind {
	evs := r.Events()
	out := make([]Kind, len(evs))
	for i, ev := range evs {
		out[i] = ev.Kind
	}
	return out
}
