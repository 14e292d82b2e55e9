package pipeline

import (
	"context"

	"github.com/italolelis/imgbb_downloader/internal/downloader"
	"github.com/italolelis/imgbb_downloader/internal/events"
	"github.com/italolelis/imgbb_downloader/internal/job"
	"github.com/italolelis/imgbb_downloader/internal/logctx"
	"github.com/italolelis/imgbb_downloader/internal/registry"
)

// Submitter admits a batch of page URLs. *scheduler.Scheduler implements it.
type Submitter interface {
	Submit(ctx context.Context, urls []string, sink events.Sink) error
}

// Runs stops admitted runs that have no live transfer yet. *Pipeline implements it.
type Runs interface {
	Stop(ctx context.Context, pageURL string) bool
	Cancel(ctx context.Context, pageURL string) bool
}

// Service is the command surface shared by every client.
type Service struct {
	submitter Submitter
	runs      Runs
	registry  *registry.Registry[*downloader.Transfer]
	tee       events.Sink
}

// NewService creates a service. tee, when non-nil, receives a copy of every
// event of every batch.
func NewService(sub Submitter, runs Runs, reg *registry.Registry[*downloader.Transfer], tee events.Sink) *Service {
	return &Service{submitter: sub, runs: runs, registry: reg, tee: tee}
}

// Start runs a batch and blocks until it settles.
func (s *Service) Start(ctx context.Context, urls []string, sink events.Sink) error {
	return s.submitter.Submit(ctx, urls, events.Multi(sink, s.tee))
}

// Pause toggles the pause state of the live transfer for url.
func (s *Service) Pause(ctx context.Context, url string, sink events.Sink) {
	if t, ok := s.registry.Load(url); ok {
		if paused, ok := t.TogglePause(); ok {
			logctx.LoggerFromContext(ctx).InfoContext(ctx, "toggled pause", "url", url, "paused", paused)

			return
		}
	}

	sink.Publish(events.Info(url, "No active download for "+url))
}

// Cancel stops the job for url, either its live transfer or the run still
// resolving its link. The job's client is told "Download canceled" either way.
func (s *Service) Cancel(ctx context.Context, url string, sink events.Sink) {
	logger := logctx.LoggerFromContext(ctx)

	if t, ok := s.registry.LoadAndDelete(url); ok && t.Cancel() {
		logger.InfoContext(ctx, "canceled download", "url", url)

		return
	}

	if s.runs != nil && s.runs.Cancel(ctx, url) {
		logger.InfoContext(ctx, "canceled job before download", "url", url)

		return
	}

	sink.Publish(events.Info(url, "No active download for "+url))
}

// Restart silently stops any job for url, waits for it to settle, and runs url
// again as a batch of one. It blocks until that batch settles.
func (s *Service) Restart(ctx context.Context, url string, sink events.Sink) error {
	if t, ok := s.registry.LoadAndDelete(url); ok {
		t.Abort()
	}

	if s.runs != nil {
		s.runs.Stop(ctx, url)
	}

	logctx.LoggerFromContext(ctx).InfoContext(ctx, "restarting download", "url", url)

	return s.Start(ctx, []string{url}, sink)
}

// Jobs returns a snapshot of every live transfer, ordered by url.
func (s *Service) Jobs() []job.Job {
	transfers := s.registry.Values()
	out := make([]job.Job, 0, len(transfers))

	for _, t := range transfers {
		out = append(out, t.Snapshot())
	}

	return out
}
