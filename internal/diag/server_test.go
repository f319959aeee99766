package diag

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olivier-w/csvtv/internal/media"
	"github.com/olivier-w/csvtv/internal/source"
)

func loaded() (source.Result, bool) {
	channels := []media.Channel{
		{Title: "News", URL: "https://example.com/news.m3u8?token=secret", Group: "Live"},
		{Title: "Guide", URL: "https://example.com/guide", Group: "Web"},
	}
	return source.Result{
		Locator:  "https://example.com/list.csv",
		Channels: channels,
		Rows:     source.RowsForGroups([]string{"Live", "Web", "Empty"}, channels),
		Level:    source.LevelPrimary,
	}, true
}

func notLoaded() (source.Result, bool) { return source.Result{}, false }

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	rec := get(t, New("", loaded).Handler(), "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Loaded)
	assert.Equal(t, "primary", resp.Level)
	assert.Equal(t, 2, resp.Channels)
}

func TestChannels(t *testing.T) {
	rec := get(t, New("", loaded).Handler(), "/channels")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp listResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Rows, 3)
	assert.Equal(t, "Empty", resp.Rows[0].Group)
	assert.Empty(t, resp.Rows[0].Channels)
	assert.Equal(t, "Live", resp.Rows[1].Group)
	assert.Equal(t, "https://example.com/news.m3u8?…", resp.Rows[1].Channels[0].URL)
	assert.NotContains(t, rec.Body.String(), "secret")
}

func TestChannelsNotLoaded(t *testing.T) {
	rec := get(t, New("", notLoaded).Handler(), "/channels")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGroup(t *testing.T) {
	h := New("", loaded).Handler()

	rec := get(t, h, "/channels/web")
	require.Equal(t, http.StatusOK, rec.Code)
	var row rowResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &row))
	assert.Equal(t, "Web", row.Group)
	require.Len(t, row.Channels, 1)
	assert.Equal(t, "Guide", row.Channels[0].Title)

	assert.Equal(t, http.StatusNotFound, get(t, h, "/channels/Settings").Code)
	assert.Equal(t, http.StatusNotFound, get(t, h, "/channels/missing").Code)
}

func TestMetrics(t *testing.T) {
	rec := get(t, New("", loaded).Handler(), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "go_goroutines"))
}

func TestRunStopsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- New(addr, loaded).Run(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}
