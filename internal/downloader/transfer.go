package downloader

import (
	"context"
	"io"
	"path/filepath"
	"sync"

	"github.com/italolelis/imgbb_downloader/internal/downloader/progress"
	"github.com/italolelis/imgbb_downloader/internal/events"
	"github.com/italolelis/imgbb_downloader/internal/job"
)

// Transfer is the live handle of one download. Commands (pause, cancel) and
// the job's own chunk loop synchronize on mu, and every event the handle
// publishes is published while holding it.
type Transfer struct {
	key      string
	assetURL string
	sink     events.Sink
	cancel   context.CancelFunc

	mu      sync.Mutex
	state   job.State
	path    string
	tracker *progress.Tracker
	resume  chan struct{} // non-nil and open while paused
}

func newTransfer(key, assetURL string, sink events.Sink, cancel context.CancelFunc) *Transfer {
	return &Transfer{
		key:      key,
		assetURL: assetURL,
		sink:     sink,
		cancel:   cancel,
		state:    job.StatePending,
		tracker:  progress.NewTracker(-1, 0),
	}
}

func (t *Transfer) Key() string { return t.key }

// Snapshot returns the current view of the job.
func (t *Transfer) Snapshot() job.Job {
	t.mu.Lock()
	defer t.mu.Unlock()

	return job.Job{
		Key:      t.key,
		AssetURL: t.assetURL,
		Path:     t.path,
		State:    t.state,
		Written:  t.tracker.Written(),
		Total:    t.tracker.Total(),
	}
}

// TogglePause pauses an active transfer or resumes a paused one and reports
// the new paused state. ok is false when the transfer is neither.
func (t *Transfer) TogglePause() (paused, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case job.StateActive:
		t.state = job.StatePaused
		t.resume = make(chan struct{})
		t.sink.Publish(events.Info(t.key, "Paused"))

		return true, true
	case job.StatePaused:
		t.state = job.StateActive
		close(t.resume)
		t.resume = nil
		t.sink.Publish(events.Info(t.key, "Resumed"))

		return false, true
	default:
		return false, false
	}
}

// Cancel aborts the transfer and tells the client, which may then offer a
// restart. Only the first call has an effect.
func (t *Transfer) Cancel() bool {
	return t.abort(true)
}

// Abort cancels the transfer without publishing anything.
func (t *Transfer) Abort() bool {
	return t.abort(false)
}

func (t *Transfer) abort(notify bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state.IsFinished() {
		return false
	}

	if t.resume != nil {
		close(t.resume)
		t.resume = nil
	}

	t.state = job.StateCanceled
	t.cancel()

	if notify {
		t.sink.Publish(events.Error(t.key, "Download canceled"))
	}

	return true
}

// start moves a pending transfer to active once the destination is claimed
// and announces the file name that was claimed.
func (t *Transfer) start(path string, total int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == job.StateCanceled {
		return job.ErrCanceled
	}

	t.path = path
	t.state = job.StateActive
	t.tracker = progress.NewTracker(total, 0)
	t.sink.Publish(events.Info(t.key, "Downloading: "+filepath.Base(path)+"..."))

	return nil
}

// waitWhilePaused blocks until the transfer is not paused.
func (t *Transfer) waitWhilePaused(ctx context.Context) error {
	for {
		t.mu.Lock()
		state, resume := t.state, t.resume
		t.mu.Unlock()

		switch {
		case state == job.StateCanceled:
			return job.ErrCanceled
		case state != job.StatePaused:
			return nil
		}

		select {
		case <-resume:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// write stores one chunk and publishes progress when the rounded percent moves.
// logDue reports whether enough bytes passed to log a progress line.
func (t *Transfer) write(w io.Writer, chunk []byte) (n int, logDue bool, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == job.StateCanceled {
		return 0, false, job.ErrCanceled
	}

	n, err = w.Write(chunk)
	if n > 0 {
		if pct, changed := t.tracker.Add(int64(n)); changed {
			t.sink.Publish(events.Progress{URL: t.key, Percent: pct})
		}
	}

	return n, t.tracker.LogDue(), err
}

// finish marks the transfer terminal. A canceled transfer stays canceled and
// reports job.ErrCanceled.
func (t *Transfer) finish(err error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == job.StateCanceled {
		return job.ErrCanceled
	}

	if err != nil {
		t.state = job.StateFailed

		return err
	}

	t.state = job.StateCompleted
	t.sink.Publish(events.Status{
		Message:  "Image saved: " + t.path,
		Kind:     events.KindSuccess,
		URL:      t.key,
		FileName: filepath.Base(t.path),
	})

	return nil
}

// canceled reports whether the transfer was canceled by a command.
func (t *Transfer) canceled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.state == job.StateCanceled
}
