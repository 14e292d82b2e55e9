// Package eventstest provides an in-memory events.Sink for tests.
package eventstest

import (
	"sync"
	"time"

	"github.com/italolelis/imgbb_downloader/internal/events"
)

// Recorder stores every published event in order.
type Recorder struct {
	mu     sync.Mutex
	events []events.Event
	notify chan struct{}
}

func NewRecorder() *Recorder {
	return &Recorder{notify: make(chan struct{}, 1)}
}

func (r *Recorder) Publish(e events.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()

	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]events.Event, len(r.events))
	copy(out, r.events)

	return out
}

// Statuses returns the recorded status events, optionally filtered by url.
func (r *Recorder) Statuses(url string) []events.Status {
	var out []events.Status

	for _, e := range r.Events() {
		if s, ok := e.(events.Status); ok && (url == "" || s.URL == url) {
			out = append(out, s)
		}
	}

	return out
}

// Progress returns the recorded percentages for url.
func (r *Recorder) Progress(url string) []int {
	var out []int

	for _, e := range r.Events() {
		if p, ok := e.(events.Progress); ok && p.URL == url {
			out = append(out, p.Percent)
		}
	}

	return out
}

// WaitFor blocks until cond holds for the recorded events or the timeout expires.
func (r *Recorder) WaitFor(timeout time.Duration, cond func([]events.Event) bool) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		if cond(r.Events()) {
			return true
		}

		select {
		case <-r.notify:
		case <-deadline.C:
			return cond(r.Events())
		}
	}
}

// HasStatus is a WaitFor condition matching a status of the given kind.
func HasStatus(kind events.Kind) func([]events.Event) bool {
	return func(evts []events.Event) bool {
		for _, e := range evts {
			if s, ok := e.(events.Status); ok && s.Kind == kind {
				return true
			}
		}

		return false
	}
}
