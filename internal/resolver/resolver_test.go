package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/italolelis/imgbb_downloader/internal/job"
)

const page = `<html><body>
<a class="btn btn-download" href="https://example.com/wrong.jpg">nope</a>
<a class="btn btn-download default" href="%s">Download</a>
</body></html>`

func serve(t *testing.T, h http.HandlerFunc) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	return srv
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name string
		href string
		want func(srv *httptest.Server) string
	}{
		{
			name: "absolute href",
			href: "https://i.ibb.co/xyz/foo.jpg",
			want: func(*httptest.Server) string { return "https://i.ibb.co/xyz/foo.jpg" },
		},
		{
			name: "relative href resolved against page",
			href: "/files/foo.jpg",
			want: func(srv *httptest.Server) string { return srv.URL + "/files/foo.jpg" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/html")
				_, _ = w.Write([]byte(replaceHref(tt.href)))
			})

			r := New(srv.Client(), Config{}, nil)

			got, err := r.Resolve(context.Background(), srv.URL+"/abc123")
			require.NoError(t, err)
			assert.Equal(t, tt.want(srv), got)
		})
	}
}

func TestResolve_SendsBrowserHeaders(t *testing.T) {
	var gotUA, gotAccept string

	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.UserAgent()
		gotAccept = r.Header.Get("Accept")
		_, _ = w.Write([]byte(replaceHref("https://i.ibb.co/x/a.png")))
	})

	_, err := New(srv.Client(), Config{UserAgent: "test-agent"}, nil).Resolve(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Equal(t, "test-agent", gotUA)
	assert.Contains(t, gotAccept, "text/html")
}

func TestResolve_Failures(t *testing.T) {
	tests := []struct {
		name       string
		handler    http.HandlerFunc
		cfg        Config
		wantStage  string
		wantStatus int
	}{
		{
			name: "non 2xx status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.NotFound(w, r)
			},
			wantStage:  job.StageStatus,
			wantStatus: http.StatusNotFound,
		},
		{
			name: "no matching element",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`<html><body><a class="btn" href="/x.jpg">x</a></body></html>`))
			},
			wantStage: job.StageSelect,
		},
		{
			name: "empty href",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(replaceHref("  ")))
			},
			wantStage: job.StageSelect,
		},
		{
			name: "timeout",
			handler: func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-r.Context().Done():
				case <-time.After(2 * time.Second):
				}
			},
			cfg:       Config{Timeout: 50 * time.Millisecond},
			wantStage: job.StageFetch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := serve(t, tt.handler)

			_, err := New(srv.Client(), tt.cfg, nil).Resolve(context.Background(), srv.URL+"/abc")
			require.Error(t, err)

			var resErr *job.ResolutionError
			require.True(t, errors.As(err, &resErr), "expected *job.ResolutionError, got %T", err)
			assert.Equal(t, tt.wantStage, resErr.Stage)
			assert.Equal(t, tt.wantStatus, resErr.StatusCode)
			assert.Equal(t, srv.URL+"/abc", resErr.PageURL)
		})
	}
}

func TestResolve_FetchError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	_, err := New(nil, Config{}, nil).Resolve(context.Background(), addr)

	var resErr *job.ResolutionError
	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, job.StageFetch, resErr.Stage)
}

func TestResolve_RateLimited(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(replaceHref("https://i.ibb.co/x/a.png")))
	})

	r := New(srv.Client(), Config{RateLimit: 10, Burst: 1}, nil)

	start := time.Now()

	for range 3 {
		_, err := r.Resolve(context.Background(), srv.URL)
		require.NoError(t, err)
	}

	// Burst 1 at 10/s: the 2nd and 3rd fetch each wait ~100ms.
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
}

func replaceHref(href string) string {
	return fmt.Sprintf(page, href)
}
