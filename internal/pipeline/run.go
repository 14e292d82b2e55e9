package pipeline

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/italolelis/imgbb_downloader/internal/events"
)

var errAlreadyRunning = errors.New("already running")

// run is one admitted pipeline execution, tracked by page URL until it settles.
type run struct {
	key     string
	sink    events.Sink
	cancel  context.CancelFunc
	done    chan struct{}
	stopped atomic.Bool
}

func newRun(key string, sink events.Sink, cancel context.CancelFunc) *run {
	return &run{key: key, sink: sink, cancel: cancel, done: make(chan struct{})}
}

// stop cancels the run. A stopped run ends with job.ErrCanceled and publishes
// nothing further of its own.
func (r *run) stop(notify bool) {
	if !r.stopped.CompareAndSwap(false, true) {
		return
	}

	r.cancel()

	if notify {
		r.sink.Publish(events.Error(r.key, "Download canceled"))
	}
}

// Stop silently cancels the run for pageURL, whatever stage it is in, and
// waits for it to settle. It reports whether a run was found.
func (p *Pipeline) Stop(ctx context.Context, pageURL string) bool {
	return p.stop(ctx, pageURL, false)
}

// Cancel is Stop that also tells the run's client, like a canceled transfer does.
func (p *Pipeline) Cancel(ctx context.Context, pageURL string) bool {
	return p.stop(ctx, pageURL, true)
}

func (p *Pipeline) stop(ctx context.Context, pageURL string, notify bool) bool {
	r, ok := p.runs.LoadAndDelete(pageURL)
	if !ok {
		return false
	}

	r.stop(notify)

	select {
	case <-r.done:
	case <-ctx.Done():
	}

	return true
}
