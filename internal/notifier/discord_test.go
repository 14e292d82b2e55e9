package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/italolelis/imgbb_downloader/internal/events"
)

func TestDiscordNotifier_Notify(t *testing.T) {
	var got map[string]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := &DiscordNotifier{WebhookURL: srv.URL}
	require.NoError(t, n.Notify(context.Background(), "hello"))
	assert.Equal(t, "hello", got["content"])
}

func TestDiscordNotifier_Errors(t *testing.T) {
	assert.Error(t, (&DiscordNotifier{}).Notify(context.Background(), "x"))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := (&DiscordNotifier{WebhookURL: srv.URL}).Notify(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []string
}

func (r *recordingNotifier) Notify(_ context.Context, content string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sent = append(r.sent, content)

	return nil
}

func (r *recordingNotifier) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string(nil), r.sent...)
}

func TestSink_ForwardsOutcomesOnly(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rn := &recordingNotifier{}
	s := NewSink(ctx, rn)

	s.Publish(events.Info("https://ibb.co/a", "Fetching page: https://ibb.co/a"))
	s.Publish(events.Progress{URL: "https://ibb.co/a", Percent: 50})
	s.Publish(events.Error("", "Invalid URL skipped: x"))
	s.Publish(events.Status{Message: "Image saved: /dl/a.jpg", Kind: events.KindSuccess, URL: "https://ibb.co/a"})
	s.Publish(events.Error("https://ibb.co/b", "Download failed: boom"))
	s.Publish(events.Status{Message: "All tasks complete!", Kind: events.KindFinal})

	require.Eventually(t, func() bool { return len(rn.messages()) == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{
		"✅ Image saved: /dl/a.jpg",
		"❌ Download failed: boom",
		"🎉 All tasks complete!",
	}, rn.messages())
}
