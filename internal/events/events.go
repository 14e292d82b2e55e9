// Package events holds the domain events a job emits while it runs and the
// sinks that carry them to a client. The wire encoding lives with the transport.
package events

// Kind classifies a status event.
type Kind string

const (
	KindInfo    Kind = "info"
	KindSuccess Kind = "success"
	KindError   Kind = "error"
	KindFinal   Kind = "final"
)

// Event names as seen on the channel.
const (
	NameStatus   = "status"
	NameProgress = "download_progress"
)

// Event is anything a job can publish.
type Event interface {
	Name() string
}

// Status is a human readable update. URL is set when the update belongs to a job.
type Status struct {
	Message  string `json:"message"`
	Kind     Kind   `json:"type"`
	URL      string `json:"url,omitempty"`
	FileName string `json:"fileName,omitempty"`
}

func (Status) Name() string { return NameStatus }

// Progress reports the rounded completion percentage of a job's transfer.
type Progress struct {
	URL     string `json:"url"`
	Percent int    `json:"progress"`
}

func (Progress) Name() string { return NameProgress }

// Sink receives events. Implementations must be safe for concurrent use and
// must not block for long: jobs publish from their own goroutines.
type Sink interface {
	Publish(e Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(e Event)

func (f SinkFunc) Publish(e Event) { f(e) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})

type multiSink []Sink

func (m multiSink) Publish(e Event) {
	for _, s := range m {
		s.Publish(e)
	}
}

// Multi fans an event out to every non-nil sink in order.
func Multi(sinks ...Sink) Sink {
	out := make(multiSink, 0, len(sinks))

	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}

	if len(out) == 1 {
		return out[0]
	}

	return out
}

// Info is a shorthand for a job-scoped info status.
func Info(url, message string) Status {
	return Status{Message: message, Kind: KindInfo, URL: url}
}

// Error is a shorthand for an error status. url may be empty for errors not tied to a job.
func Error(url, message string) Status {
	return Status{Message: message, Kind: KindError, URL: url}
}
