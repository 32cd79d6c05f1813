package transport_test

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seiken-dev/jiten/internal/config"
	"github.com/seiken-dev/jiten/internal/events"
	"github.com/seiken-dev/jiten/internal/models"
	"github.com/seiken-dev/jiten/internal/transport"
)

func newTestClient(t *testing.T, handler http.Handler) *transport.HTTPClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	logger := events.NewTestLogger(events.ErrorLevel, io.Discard)
	return transport.NewHTTPClient(&config.RemoteConfig{
		BaseURL:   srv.URL,
		UserAgent: "jiten-test",
	}, logger)
}

func TestFetchVersionManifest(t *testing.T) {
	var gotPath, gotUA string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUA = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte(`{
			"kanji":    {"major": 4, "minor": 0, "patch": 1, "databaseVersion": "175", "dateOfCreation": "2026-08-20"},
			"radicals": {"major": 4, "minor": 0, "patch": 1},
			"names":    {"major": 1, "minor": 2, "patch": 0},
			"words":    {"major": 2, "minor": 5, "patch": 3}
		}`))
	}))

	manifest, err := client.FetchVersionManifest(context.Background(), "en")
	require.NoError(t, err)

	assert.Equal(t, "/jiten-en-version.json", gotPath)
	assert.Equal(t, "jiten-test", gotUA)
	require.Len(t, manifest, 4)

	kanji, err := manifest.Version(models.DatasetKanji)
	require.NoError(t, err)
	assert.Equal(t, "4.0.1", kanji.String())
	assert.Equal(t, "175", kanji.DatabaseVersion)
	assert.Equal(t, "en", kanji.Lang, "manifest entries carry the requested language")
}

func TestFetchVersionManifestMalformed(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))

	_, err := client.FetchVersionManifest(context.Background(), "en")
	require.Error(t, err)

	var de *models.DownloadError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, models.KindUnknown, de.Kind())
}

func TestFetchDataFile(t *testing.T) {
	body := []byte(`{"id":1}` + "\n" + `{"id":2}` + "\n")
	var gotPath string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write(body)
	}))

	ver := models.VersionInfo{Major: 2, Minor: 5, Patch: 3, Lang: "en"}
	stream, size, err := client.FetchDataFile(context.Background(), models.DatasetWords, ver)
	require.NoError(t, err)
	defer stream.Close()

	assert.Equal(t, "/words-en-2.5.3.jsonl", gotPath)
	assert.Equal(t, int64(len(body)), size)

	got, err := io.ReadAll(stream)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(body, got))
}

func TestFetchStatusClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   models.ErrorKind
	}{
		{"not found", http.StatusNotFound, models.KindInvalid},
		{"server error", http.StatusInternalServerError, models.KindServer},
		{"throttled", http.StatusTooManyRequests, models.KindServer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))

			_, err := client.FetchVersionManifest(context.Background(), "en")
			require.Error(t, err)

			var de *models.DownloadError
			require.ErrorAs(t, err, &de)
			assert.Equal(t, tt.status, de.StatusCode)
			assert.Equal(t, tt.want, models.KindOf(err))
		})
	}
}

func TestFetchContextCancelled(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.FetchVersionManifest(ctx, "en")
	require.Error(t, err)
	assert.Equal(t, models.KindAborted, models.KindOf(err))
}
