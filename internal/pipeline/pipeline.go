// Package pipeline runs the per-URL job (resolve, name, download, record) and
// exposes the commands a client can issue against running jobs.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime/debug"

	"github.com/italolelis/imgbb_downloader/internal/downloader"
	"github.com/italolelis/imgbb_downloader/internal/events"
	"github.com/italolelis/imgbb_downloader/internal/filename"
	"github.com/italolelis/imgbb_downloader/internal/job"
	"github.com/italolelis/imgbb_downloader/internal/logctx"
	"github.com/italolelis/imgbb_downloader/internal/registry"
	"github.com/italolelis/imgbb_downloader/internal/storage"
)

type Resolver interface {
	Resolve(ctx context.Context, pageURL string) (string, error)
}

type Downloader interface {
	Download(ctx context.Context, req downloader.Request) (string, error)
}

// Pipeline runs one job from page URL to saved file.
type Pipeline struct {
	resolver   Resolver
	downloader Downloader
	history    storage.HistoryWriteRepository
	dir        string
	runs       *registry.Registry[*run]
}

func New(res Resolver, dl Downloader, history storage.HistoryWriteRepository, dir string) *Pipeline {
	return &Pipeline{
		resolver:   res,
		downloader: dl,
		history:    history,
		dir:        dir,
		runs:       registry.New[*run](),
	}
}

// Run publishes the job's statuses on sink in the order they happen. Every
// failure is reported to sink before it is returned. A job canceled by a
// command or stopped with Stop returns job.ErrCanceled without further statuses.
// Only one run per page URL may be in flight.
func (p *Pipeline) Run(ctx context.Context, pageURL string, sink events.Sink) (err error) {
	logger := logctx.LoggerFromContext(ctx)

	ctx, cancel := context.WithCancel(ctx)
	r := newRun(pageURL, sink, cancel)

	if !p.runs.Store(pageURL, r) {
		cancel()

		err = &job.TransferError{AssetURL: pageURL, Op: "register", Err: errAlreadyRunning}
		sink.Publish(events.Error(pageURL, "Download failed: "+err.Error()))

		return err
	}

	defer func() {
		p.runs.CompareAndDelete(pageURL, r)
		cancel()
		close(r.done)
	}()

	defer func() {
		if rec := recover(); rec != nil {
			logger.ErrorContext(ctx, "job panicked", "panic", rec, "stack", string(debug.Stack()))

			err = fmt.Errorf("job panicked: %v", rec)
			sink.Publish(events.Error(pageURL, fmt.Sprintf("Error scraping %s: internal error", pageURL)))
		}
	}()

	sink.Publish(events.Info(pageURL, "Fetching page: "+pageURL))

	asset, err := p.resolver.Resolve(ctx, pageURL)

	switch {
	case r.stopped.Load():
		logger.InfoContext(ctx, "job stopped while resolving")

		return job.ErrCanceled
	case err != nil:
		logger.WarnContext(ctx, "failed to resolve download link", "err", err)
		sink.Publish(events.Error(pageURL, fmt.Sprintf("Error scraping %s: %v", pageURL, err)))

		return err
	}

	sink.Publish(events.Info(pageURL, "Found link: "+asset))

	p.record(ctx, asset, sink)

	// The downloader claims this name or its first free numbered sibling and
	// announces the one it got.
	path, err := p.downloader.Download(ctx, downloader.Request{
		Key:      pageURL,
		AssetURL: asset,
		Path:     filepath.Join(p.dir, filename.Name(pageURL, asset)),
		Sink:     sink,
	})

	switch {
	case errors.Is(err, job.ErrCanceled), err != nil && r.stopped.Load():
		logger.InfoContext(ctx, "download canceled", "path", path)

		return job.ErrCanceled
	case err != nil:
		logger.ErrorContext(ctx, "download failed", "err", err)
		sink.Publish(events.Error(pageURL, "Download failed: "+err.Error()))

		return err
	}

	return nil
}

// record appends the asset to the history. Failures are reported and never end the job.
func (p *Pipeline) record(ctx context.Context, asset string, sink events.Sink) {
	if p.history == nil {
		return
	}

	if err := p.history.Append(ctx, asset); err != nil {
		logErr := &job.LogError{AssetURL: asset, Err: err}

		logctx.LoggerFromContext(ctx).ErrorContext(ctx, "failed to record history", "err", logErr)
		sink.Publish(events.Error("", "Error saving URL: "+err.Error()))

		return
	}

	sink.Publish(events.Status{Message: "Saved URL to log: " + asset, Kind: events.KindInfo})
}
