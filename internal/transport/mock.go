package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/seiken-dev/jiten/internal/models"
)

// MockClient provides a scripted transport for testing.
type MockClient struct {
	mu sync.Mutex

	// Response configuration
	Manifests map[string]VersionManifest // keyed by lang
	DataFiles map[string][]byte          // keyed by dataset/lang/version

	// Error injection
	ManifestErr error
	DataFileErr error

	// Per-URL error injection; consumed once per hit.
	failOnce map[string]error

	// Request tracking
	ManifestFetches []string
	DataFetches     []string
}

// NewMockClient creates a mock transport client.
func NewMockClient() *MockClient {
	return &MockClient{
		Manifests: make(map[string]VersionManifest),
		DataFiles: make(map[string][]byte),
		failOnce:  make(map[string]error),
	}
}

// DataKey builds the lookup key for a dataset file.
func DataKey(ds models.Dataset, ver models.VersionInfo) string {
	return fmt.Sprintf("%s/%s/%s", ds, ver.Lang, ver)
}

// SetManifest configures the manifest returned for a language.
func (m *MockClient) SetManifest(lang string, manifest VersionManifest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Manifests[lang] = manifest
}

// SetDataFile configures the body returned for a dataset release.
func (m *MockClient) SetDataFile(ds models.Dataset, ver models.VersionInfo, body []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DataFiles[DataKey(ds, ver)] = body
}

// FailDataFileOnce injects a single failure for one dataset release.
func (m *MockClient) FailDataFileOnce(ds models.Dataset, ver models.VersionInfo, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failOnce[DataKey(ds, ver)] = err
}

// ManifestFetchCount returns how many manifests were requested for a
// language.
func (m *MockClient) ManifestFetchCount(lang string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, l := range m.ManifestFetches {
		if l == lang {
			n++
		}
	}
	return n
}

// FetchVersionManifest mocks the manifest download.
func (m *MockClient) FetchVersionManifest(ctx context.Context, lang string) (VersionManifest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ManifestFetches = append(m.ManifestFetches, lang)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.ManifestErr != nil {
		return nil, m.ManifestErr
	}

	manifest, ok := m.Manifests[lang]
	if !ok {
		return nil, &models.DownloadError{
			URL:        fmt.Sprintf("mock://jiten-%s-version.json", lang),
			StatusCode: 404,
		}
	}
	return manifest, nil
}

// FetchDataFile mocks a dataset file download.
func (m *MockClient) FetchDataFile(ctx context.Context, ds models.Dataset, ver models.VersionInfo) (io.ReadCloser, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := DataKey(ds, ver)
	m.DataFetches = append(m.DataFetches, key)

	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	if err, ok := m.failOnce[key]; ok {
		delete(m.failOnce, key)
		return nil, 0, err
	}
	if m.DataFileErr != nil {
		return nil, 0, m.DataFileErr
	}

	body, ok := m.DataFiles[key]
	if !ok {
		return nil, 0, &models.DownloadError{
			URL:        "mock://" + key,
			StatusCode: 404,
		}
	}
	return io.NopCloser(bytes.NewReader(body)), int64(len(body)), nil
}
