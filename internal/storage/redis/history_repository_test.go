package redis

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/italolelis/imgbb_downloader/internal/storage"
)

func TestOpen_InvalidURL(t *testing.T) {
	_, err := Open(context.Background(), "http://not-redis", "")
	assert.Error(t, err)
}

func TestHistoryRepository_AppendList(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}

	ctx := context.Background()
	key := "history-test-" + uuid.NewString()

	repo, err := Open(ctx, url, key)
	require.NoError(t, err)

	t.Cleanup(func() {
		repo.client.Del(context.Background(), key)
		repo.Close()
	})

	require.NoError(t, repo.Append(ctx, "https://i.ibb.co/a.jpg"))
	require.NoError(t, repo.Append(ctx, "https://i.ibb.co/b.jpg"))

	recs, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://i.ibb.co/a.jpg", "https://i.ibb.co/b.jpg"}, storage.URLs(recs))
	assert.False(t, recs[0].RecordedAt.IsZero())
}
