package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricefeed/internal/oracle"
	"pricefeed/internal/storage"
)

func newTestServer(t *testing.T) (*httptest.Server, *storage.FeedStore) {
	t.Helper()
	blobs, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)
	feed := storage.NewFeedStore(blobs, "", zerolog.Nop())

	srv := httptest.NewServer(NewServer(feed, []string{"solace", "wnear"}, zerolog.Nop()).Routes())
	t.Cleanup(srv.Close)
	return srv, feed
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestPriceEndpoints(t *testing.T) {
	srv, feed := newTestServer(t)
	require.NoError(t, feed.Save(context.Background(), storage.FeedSnapshot{
		Symbol: "solace",
		History: oracle.History{
			{Timestamp: 100, Price: 0.01},
			{Timestamp: 200, Price: 0.02},
			{Timestamp: 300, Price: 0.03},
		},
		Price: storage.PriceRecord{PriceFloat: 0.015, PriceNormalized: "15000000000000000"},
	}))

	status, body := get(t, srv.URL+"/prices/solace")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "0.015", body)

	status, body = get(t, srv.URL+"/prices/SOLACE/normalized")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "15000000000000000", body)

	status, body = get(t, srv.URL+"/prices/solace/record")
	assert.Equal(t, http.StatusOK, status)
	var rec storage.PriceRecord
	require.NoError(t, json.Unmarshal([]byte(body), &rec))
	assert.Equal(t, "15000000000000000", rec.PriceNormalized)

	status, body = get(t, srv.URL+"/prices/solace/history?limit=2")
	assert.Equal(t, http.StatusOK, status)
	var history oracle.History
	require.NoError(t, json.Unmarshal([]byte(body), &history))
	require.Len(t, history, 2)
	assert.Equal(t, int64(200), history[0].Timestamp)
}

func TestUnknownAndMissingTokens(t *testing.T) {
	srv, _ := newTestServer(t)

	status, _ := get(t, srv.URL+"/prices/doge")
	assert.Equal(t, http.StatusNotFound, status)

	status, body := get(t, srv.URL+"/prices/wnear")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, body, "no price recorded yet")

	status, body = get(t, srv.URL+"/prices/wnear/history")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, "[]", body)
}

func TestHealthAndMetrics(t *testing.T) {
	srv, _ := newTestServer(t)

	status, body := get(t, srv.URL+"/healthz")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"status":"ok"}`, body)

	status, body = get(t, srv.URL+"/metrics")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "pricefeed_http_requests_total")
}
