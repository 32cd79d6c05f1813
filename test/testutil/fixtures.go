// Package testutil provides shared fixtures for integration tests: a
// fake dataset host serving version manifests and release files the
// way the real distribution endpoint does.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/seiken-dev/jiten/internal/models"
)

// Release is one published dataset version plus its record lines.
type Release struct {
	Version models.VersionInfo
	Records []string // one JSON object per line
}

// DatasetHost is an in-process stand-in for the download endpoint.
type DatasetHost struct {
	mu       sync.Mutex
	releases map[string]map[models.Dataset]Release // lang -> dataset -> release
	hits     map[string]int                        // by request path
	gates    map[string]*gate                      // by request path

	srv *httptest.Server
}

// gate holds requests for one path until released, so tests can act
// while a download is provably in flight.
type gate struct {
	entered chan struct{}
	release chan struct{}
}

// NewDatasetHost starts the fake endpoint. It is shut down with the
// test.
func NewDatasetHost(t *testing.T) *DatasetHost {
	t.Helper()

	h := &DatasetHost{
		releases: make(map[string]map[models.Dataset]Release),
		hits:     make(map[string]int),
		gates:    make(map[string]*gate),
	}
	h.srv = httptest.NewServer(http.HandlerFunc(h.serve))
	t.Cleanup(h.srv.Close)
	return h
}

// URL returns the endpoint base URL.
func (h *DatasetHost) URL() string { return h.srv.URL }

// Publish registers a release for one dataset and language.
func (h *DatasetHost) Publish(lang string, ds models.Dataset, rel Release) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.releases[lang] == nil {
		h.releases[lang] = make(map[models.Dataset]Release)
	}
	rel.Version.Lang = lang
	h.releases[lang][ds] = rel
}

// Gate makes requests for a path block until release is called. Every
// blocked arrival signals entered. A blocked request whose client
// gives up is let go without a response.
func (h *DatasetHost) Gate(path string) (entered <-chan struct{}, release func()) {
	g := &gate{
		entered: make(chan struct{}, 8),
		release: make(chan struct{}),
	}
	h.mu.Lock()
	h.gates[path] = g
	h.mu.Unlock()

	var once sync.Once
	return g.entered, func() { once.Do(func() { close(g.release) }) }
}

// Hits returns how often a path was requested.
func (h *DatasetHost) Hits(path string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hits[path]
}

func (h *DatasetHost) serve(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	h.hits[r.URL.Path]++
	g := h.gates[r.URL.Path]
	h.mu.Unlock()

	if g != nil {
		select {
		case g.entered <- struct{}{}:
		default:
		}
		select {
		case <-g.release:
		case <-r.Context().Done():
			return
		}
	}

	path := strings.TrimPrefix(r.URL.Path, "/")

	// jiten-<lang>-version.json
	if strings.HasPrefix(path, "jiten-") && strings.HasSuffix(path, "-version.json") {
		lang := strings.TrimSuffix(strings.TrimPrefix(path, "jiten-"), "-version.json")
		h.serveManifest(w, lang)
		return
	}

	// <dataset>-<lang>-<version>.jsonl
	if strings.HasSuffix(path, ".jsonl") {
		h.serveDataFile(w, strings.TrimSuffix(path, ".jsonl"))
		return
	}

	http.NotFound(w, nil)
}

func (h *DatasetHost) serveManifest(w http.ResponseWriter, lang string) {
	h.mu.Lock()
	releases := h.releases[lang]
	h.mu.Unlock()

	if releases == nil {
		http.Error(w, "unknown language", http.StatusNotFound)
		return
	}

	entries := make([]string, 0, len(releases))
	for ds, rel := range releases {
		entries = append(entries, fmt.Sprintf(
			`%q: {"major": %d, "minor": %d, "patch": %d}`,
			ds, rel.Version.Major, rel.Version.Minor, rel.Version.Patch))
	}

	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, "{%s}", strings.Join(entries, ","))
}

func (h *DatasetHost) serveDataFile(w http.ResponseWriter, name string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for lang, releases := range h.releases {
		for ds, rel := range releases {
			if name == fmt.Sprintf("%s-%s-%s", ds, lang, rel.Version) {
				w.Header().Set("Content-Type", "application/x-ndjson")
				for _, line := range rel.Records {
					fmt.Fprintln(w, line)
				}
				return
			}
		}
	}
	http.Error(w, "no such release", http.StatusNotFound)
}
