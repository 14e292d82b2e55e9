package pipeline

import (
	"context"
	"net/http"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/italolelis/imgbb_downloader/internal/events"
	"github.com/italolelis/imgbb_downloader/internal/events/eventstest"
	"github.com/italolelis/imgbb_downloader/internal/job"
	"github.com/italolelis/imgbb_downloader/internal/scheduler"
)

// gatedAssets serves half the payload, then waits for the gate (or the client
// going away) before sending the rest. Requests after the first are served in full.
func gatedAssets(gate <-chan struct{}) http.Handler {
	first := make(chan struct{}, 1)
	first <- struct{}{}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))

		select {
		case <-first:
		default:
			_, _ = w.Write(payload)

			return
		}

		half := len(payload) / 2
		_, _ = w.Write(payload[:half])
		w.(http.Flusher).Flush()

		select {
		case <-gate:
			_, _ = w.Write(payload[half:])
		case <-r.Context().Done():
		}
	})
}

func newService(f *fixture, tee events.Sink) *Service {
	return NewService(scheduler.New(f.pipeline, 5, "", nil), f.pipeline, f.registry, tee)
}

func waitLive(t *testing.T, svc *Service) job.Job {
	t.Helper()

	var j job.Job

	require.Eventually(t, func() bool {
		jobs := svc.Jobs()
		if len(jobs) != 1 || jobs[0].Written == 0 {
			return false
		}

		j = jobs[0]

		return true
	}, 2*time.Second, 5*time.Millisecond)

	return j
}

func startAsync(svc *Service, rec events.Sink) <-chan error {
	done := make(chan error, 1)

	go func() { done <- svc.Start(context.Background(), []string{pageURL}, rec) }()

	return done
}

func wait(t *testing.T, done <-chan error) {
	t.Helper()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("batch did not settle")
	}
}

func TestService_Start(t *testing.T) {
	f := newFixture(t, servePayload())
	rec := eventstest.NewRecorder()
	tee := eventstest.NewRecorder()

	require.NoError(t, newService(f, tee).Start(context.Background(), []string{pageURL}, rec))

	statuses := rec.Statuses("")
	require.NotEmpty(t, statuses)
	assert.Equal(t, events.KindFinal, statuses[len(statuses)-1].Kind)
	assert.Equal(t, rec.Events(), tee.Events(), "tee sees the same stream")
}

func TestService_PauseResumeCancel(t *testing.T) {
	f := newFixture(t, gatedAssets(make(chan struct{})))
	svc := newService(f, nil)
	rec := eventstest.NewRecorder()

	done := startAsync(svc, rec)

	j := waitLive(t, svc)
	assert.Equal(t, pageURL, j.Key)
	assert.Equal(t, job.StateActive, j.State)
	assert.Equal(t, "/dl/foo_abc123.jpg", j.Path)

	ctx := context.Background()

	svc.Pause(ctx, pageURL, rec)
	assert.Equal(t, job.StatePaused, svc.Jobs()[0].State)

	svc.Pause(ctx, pageURL, rec)
	assert.Equal(t, job.StateActive, svc.Jobs()[0].State)

	svc.Cancel(ctx, pageURL, rec)
	wait(t, done)

	assert.Empty(t, svc.Jobs())

	got := messages(rec.Statuses(pageURL))
	assert.Contains(t, got, "Paused")
	assert.Contains(t, got, "Resumed")
	assert.Contains(t, got, "Download canceled")

	for _, m := range got {
		assert.NotContains(t, m, "Download failed", "cancellation ends the job silently")
	}

	assert.True(t, eventstest.HasStatus(events.KindFinal)(rec.Events()))
}

func TestService_CommandsWithoutLiveJob(t *testing.T) {
	f := newFixture(t, servePayload())
	svc := newService(f, nil)
	ctx := context.Background()
	rec := eventstest.NewRecorder()
	svc.Pause(ctx, pageURL, rec)
	svc.Cancel(ctx, pageURL, rec)

	statuses := rec.Statuses(pageURL)
	require.Len(t, statuses, 2)

	for _, s := range statuses {
		assert.Equal(t, events.KindInfo, s.Kind)
		assert.Equal(t, "No active download for "+pageURL, s.Message)
	}
}

func TestService_RestartAfterCancel(t *testing.T) {
	f := newFixture(t, gatedAssets(make(chan struct{})))
	svc := newService(f, nil)
	rec := eventstest.NewRecorder()
	ctx := context.Background()

	done := startAsync(svc, rec)
	waitLive(t, svc)

	svc.Cancel(ctx, pageURL, rec)
	wait(t, done)

	require.NoError(t, svc.Restart(ctx, pageURL, rec))

	// The canceled attempt keeps its partial file; the retry claims the next name.
	got, err := afero.ReadFile(f.fs, "/dl/foo_abc123_1.jpg")
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	assert.Equal(t, []string{f.assetURL, f.assetURL}, f.history.urls)
}

func TestService_RestartLiveJob(t *testing.T) {
	f := newFixture(t, gatedAssets(make(chan struct{})))
	svc := newService(f, nil)
	rec := eventstest.NewRecorder()
	ctx := context.Background()

	done := startAsync(svc, rec)
	waitLive(t, svc)

	require.NoError(t, svc.Restart(ctx, pageURL, rec))
	wait(t, done)

	for _, m := range messages(rec.Statuses(pageURL)) {
		assert.NotEqual(t, "Download canceled", m, "restart aborts silently")
	}

	assert.True(t, eventstest.HasStatus(events.KindSuccess)(rec.Events()))
	assert.Empty(t, svc.Jobs())
}

// blockFirstResolve makes the first resolution wait until its context ends.
// Later resolutions succeed at once.
func blockFirstResolve(f *fixture) (entered <-chan struct{}, resolves *atomic.Int32) {
	ch := make(chan struct{})
	resolves = &atomic.Int32{}

	f.pipeline.resolver = resolverFunc(func(ctx context.Context, page string) (string, error) {
		if resolves.Add(1) > 1 {
			return f.assetURL, nil
		}

		close(ch)
		<-ctx.Done()

		return "", &job.ResolutionError{PageURL: page, Stage: job.StageFetch, Err: ctx.Err()}
	})

	return ch, resolves
}

func waitEntered(t *testing.T, entered <-chan struct{}) {
	t.Helper()

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("resolution did not start")
	}
}

func TestService_RestartWhileResolving(t *testing.T) {
	f := newFixture(t, servePayload())
	entered, resolves := blockFirstResolve(f)
	svc := newService(f, nil)
	rec := eventstest.NewRecorder()
	ctx := context.Background()

	done := startAsync(svc, rec)
	waitEntered(t, entered)

	require.NoError(t, svc.Restart(ctx, pageURL, rec))
	wait(t, done)

	assert.EqualValues(t, 2, resolves.Load())
	assert.Equal(t, []string{f.assetURL}, f.history.urls, "the stopped run records nothing")

	successes := 0

	for _, s := range rec.Statuses(pageURL) {
		assert.NotEqual(t, events.KindError, s.Kind, "unexpected error status %q", s.Message)

		if s.Kind == events.KindSuccess {
			successes++
		}
	}

	assert.Equal(t, 1, successes)

	got, err := afero.ReadFile(f.fs, "/dl/foo_abc123.jpg")
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	exists, err := afero.Exists(f.fs, "/dl/foo_abc123_1.jpg")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestService_CancelWhileResolving(t *testing.T) {
	f := newFixture(t, servePayload())
	entered, _ := blockFirstResolve(f)
	svc := newService(f, nil)
	rec := eventstest.NewRecorder()

	done := startAsync(svc, rec)
	waitEntered(t, entered)

	svc.Cancel(context.Background(), pageURL, rec)
	wait(t, done)

	got := messages(rec.Statuses(pageURL))
	assert.Contains(t, got, "Download canceled")

	for _, m := range got {
		assert.NotContains(t, m, "Error scraping", "a stopped run reports nothing of its own")
	}

	assert.Empty(t, f.history.urls)
	assert.True(t, eventstest.HasStatus(events.KindFinal)(rec.Events()))
}
