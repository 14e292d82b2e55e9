package notifier

import (
	"context"

	"github.com/italolelis/imgbb_downloader/internal/events"
	"github.com/italolelis/imgbb_downloader/internal/logctx"
)

const sinkBuffer = 64

// Sink forwards outcome statuses (success, error, final) to a Notifier from
// a single background goroutine. Other events are ignored, and statuses are
// dropped while the buffer is full.
type Sink struct {
	notifier Notifier
	queue    chan string
}

// NewSink starts the forwarding goroutine; it stops when ctx ends.
func NewSink(ctx context.Context, n Notifier) *Sink {
	s := &Sink{notifier: n, queue: make(chan string, sinkBuffer)}

	go s.run(ctx)

	return s
}

func (s *Sink) Publish(e events.Event) {
	st, ok := e.(events.Status)
	if !ok {
		return
	}

	var content string

	switch st.Kind {
	case events.KindSuccess:
		content = "✅ " + st.Message
	case events.KindError:
		if st.URL == "" {
			return
		}

		content = "❌ " + st.Message
	case events.KindFinal:
		content = "🎉 " + st.Message
	default:
		return
	}

	select {
	case s.queue <- content:
	default:
	}
}

func (s *Sink) run(ctx context.Context) {
	logger := logctx.LoggerFromContext(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case content := <-s.queue:
			if err := s.notifier.Notify(ctx, content); err != nil {
				logger.ErrorContext(ctx, "failed to send notification", "err", err)
			}
		}
	}
}
