// Package scheduler admits batches of page URLs under a process-wide
// concurrency limit and reports when each batch has settled.
package scheduler

import (
	"context"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/italolelis/imgbb_downloader/internal/events"
	"github.com/italolelis/imgbb_downloader/internal/job"
	"github.com/italolelis/imgbb_downloader/internal/logctx"
	"github.com/italolelis/imgbb_downloader/internal/telemetry"
)

const (
	DefaultLimit  = 5
	MaxLimit      = 100
	DefaultPrefix = "https://ibb.co/"
)

// Runner executes the pipeline for one page URL. It publishes its own job
// statuses; the returned error is only logged.
type Runner interface {
	Run(ctx context.Context, pageURL string, sink events.Sink) error
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, pageURL string, sink events.Sink) error

func (f RunnerFunc) Run(ctx context.Context, pageURL string, sink events.Sink) error {
	return f(ctx, pageURL, sink)
}

type Scheduler struct {
	runner    Runner
	sem       *semaphore.Weighted
	limit     int64
	prefix    string
	active    atomic.Int64
	telemetry *telemetry.Telemetry
}

// New creates a scheduler admitting at most limit concurrent runs.
// limit is clamped to 1..MaxLimit; an empty prefix uses DefaultPrefix.
func New(runner Runner, limit int, prefix string, tel *telemetry.Telemetry) *Scheduler {
	limit = min(max(limit, 1), MaxLimit)

	if prefix == "" {
		prefix = DefaultPrefix
	}

	return &Scheduler{
		runner:    runner,
		sem:       semaphore.NewWeighted(int64(limit)),
		limit:     int64(limit),
		prefix:    prefix,
		telemetry: tel,
	}
}

// Limit returns the global concurrency limit.
func (s *Scheduler) Limit() int { return int(s.limit) }

// Active returns the number of runs currently holding a slot.
func (s *Scheduler) Active() int { return int(s.active.Load()) }

// Validate trims raw and checks it against the allowed prefix.
func (s *Scheduler) Validate(raw string) (string, error) {
	u := strings.TrimSpace(raw)
	if !strings.HasPrefix(u, s.prefix) {
		return u, &job.ValidationError{URL: u, Reason: "must start with " + s.prefix}
	}

	return u, nil
}

// Submit runs one pipeline per valid URL and blocks until all of them have
// settled, then publishes the final status. Slots are granted in submission
// order and shared with every other batch. A failing run never stops its
// siblings. Submit returns early with ctx's error when ctx ends while URLs
// are still waiting for a slot.
func (s *Scheduler) Submit(ctx context.Context, urls []string, sink events.Sink) error {
	logger := logctx.LoggerFromContext(ctx)

	if sink == nil {
		sink = events.Discard
	}

	if len(urls) == 0 {
		sink.Publish(events.Error("", "No URLs provided."))

		return nil
	}

	logger.InfoContext(ctx, "batch submitted", "urls", len(urls), "limit", s.limit)

	var g errgroup.Group

	var admitErr error

	for _, raw := range urls {
		u, err := s.Validate(raw)
		if err != nil {
			logger.WarnContext(ctx, "skipping url", "url", u, "err", err)
			sink.Publish(events.Error("", "Invalid URL skipped: "+u))

			continue
		}

		if err := s.sem.Acquire(ctx, 1); err != nil {
			admitErr = err

			break
		}

		s.active.Add(1)

		g.Go(func() error {
			defer func() {
				s.active.Add(-1)
				s.sem.Release(1)
			}()

			jobCtx := logctx.WithJob(ctx, u)

			err := s.telemetry.InstrumentJob(jobCtx, func(ctx context.Context) error {
				return s.runner.Run(ctx, u, sink)
			})
			if err != nil {
				logctx.LoggerFromContext(jobCtx).DebugContext(jobCtx, "job ended with error", "err", err)
			}

			return nil
		})
	}

	_ = g.Wait()

	if admitErr != nil {
		logger.WarnContext(ctx, "batch admission aborted", "err", admitErr)

		return admitErr
	}

	sink.Publish(events.Status{Message: "All tasks complete!", Kind: events.KindFinal})

	logger.InfoContext(ctx, "batch complete", "urls", len(urls))

	return nil
}
