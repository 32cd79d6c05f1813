package testutil

import (
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/seiken-dev/jiten/internal/config"
	"github.com/seiken-dev/jiten/internal/events"
	"github.com/seiken-dev/jiten/internal/models"
	"github.com/seiken-dev/jiten/internal/store"
	"github.com/seiken-dev/jiten/internal/transport"
)

// Logger returns a quiet logger for tests. Set JITEN_TEST_VERBOSE via
// a custom writer if a test needs output.
func Logger() *events.Logger {
	return events.NewTestLogger(events.ErrorLevel, io.Discard)
}

// FastRetry is a retry schedule suitable for tests.
func FastRetry() store.RetryConfig {
	return store.RetryConfig{
		MaxRetries:   3,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     50 * time.Millisecond,
	}
}

// SQLiteStore opens a DatasetStore over a throwaway SQLite file backed
// by the given transport.
func SQLiteStore(t *testing.T, remote transport.Client) *store.DatasetStore {
	t.Helper()

	path := filepath.Join(t.TempDir(), "jiten.db")
	backend, err := store.NewSQLiteBackend(path, Logger())
	require.NoError(t, err)

	s, err := store.New(backend, remote, FastRetry(), Logger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// RemoteClient builds an HTTP transport pointed at a fixture host.
func RemoteClient(host *DatasetHost) *transport.HTTPClient {
	return transport.NewHTTPClient(&config.RemoteConfig{
		BaseURL:   host.URL(),
		UserAgent: "jiten-test",
		Timeout:   10 * time.Second,
	}, Logger())
}

// StandardReleases publishes a consistent set of all four datasets for
// a language and returns the version used.
func StandardReleases(host *DatasetHost, lang string) models.VersionInfo {
	ver := models.VersionInfo{Major: 1, Minor: 0, Patch: 0, Lang: lang}

	host.Publish(lang, models.DatasetKanji, Release{
		Version: ver,
		Records: []string{
			`{"c":"日","r":{"on":["ニチ"]},"m":["day","sun"]}`,
			`{"c":"本","r":{"on":["ホン"]},"m":["book","origin"]}`,
		},
	})
	host.Publish(lang, models.DatasetRadicals, Release{
		Version: ver,
		Records: []string{`{"id":"072","r":72,"b":"⽇"}`},
	})
	host.Publish(lang, models.DatasetNames, Release{
		Version: ver,
		Records: []string{`{"id":1001,"k":["田中"],"r":["たなか"]}`},
	})
	host.Publish(lang, models.DatasetWords, Release{
		Version: ver,
		Records: []string{
			`{"id":2001,"k":["辞書"],"r":["じしょ"]}`,
			`{"id":2002,"k":["辞典"],"r":["じてん"]}`,
			`{"id":2003,"k":["事典"],"r":["じてん"]}`,
		},
	})
	return ver
}
