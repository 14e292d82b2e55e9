package events_test

import (
	"encoding/json"
	"testing"

	"github.com/italolelis/imgbb_downloader/internal/events"
	"github.com/italolelis/imgbb_downloader/internal/events/eventstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMulti(t *testing.T) {
	a := eventstest.NewRecorder()
	b := eventstest.NewRecorder()

	sink := events.Multi(a, nil, b)
	sink.Publish(events.Info("https://ibb.co/abc", "hello"))

	assert.Len(t, a.Events(), 1)
	assert.Len(t, b.Events(), 1)
}

func TestMulti_SingleSinkIsReturnedAsIs(t *testing.T) {
	a := eventstest.NewRecorder()

	assert.Same(t, a, events.Multi(nil, a))
}

func TestStatus_JSONShape(t *testing.T) {
	b, err := json.Marshal(events.Status{Message: "saved", Kind: events.KindSuccess, URL: "u", FileName: "f.jpg"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"message":"saved","type":"success","url":"u","fileName":"f.jpg"}`, string(b))

	b, err = json.Marshal(events.Status{Message: "done", Kind: events.KindFinal})
	require.NoError(t, err)
	assert.JSONEq(t, `{"message":"done","type":"final"}`, string(b))

	b, err = json.Marshal(events.Progress{URL: "u", Percent: 42})
	require.NoError(t, err)
	assert.JSONEq(t, `{"url":"u","progress":42}`, string(b))
}

func TestNames(t *testing.T) {
	assert.Equal(t, "status", events.Status{}.Name())
	assert.Equal(t, "download_progress", events.Progress{}.Name())
}
