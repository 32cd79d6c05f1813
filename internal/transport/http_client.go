package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/net/http2"

	"github.com/seiken-dev/jiten/internal/config"
	"github.com/seiken-dev/jiten/internal/events"
	"github.com/seiken-dev/jiten/internal/models"
)

// HTTPClient downloads version manifests and dataset files.
type HTTPClient struct {
	client    *http.Client
	baseURL   string
	userAgent string
	logger    *events.Logger
}

// NewHTTPClient creates a download client.
func NewHTTPClient(cfg *config.RemoteConfig, logger *events.Logger) *HTTPClient {
	transport := &http.Transport{
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	if err := http2.ConfigureTransport(transport); err != nil {
		logger.WithError(err).Warn("Failed to configure HTTP/2")
	}

	return &HTTPClient{
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		baseURL:   cfg.BaseURL,
		userAgent: cfg.UserAgent,
		logger:    logger.WithField("component", "http_client"),
	}
}

// manifestFile is the on-the-wire shape of the version manifest.
type manifestFile map[string]struct {
	Major           int    `json:"major"`
	Minor           int    `json:"minor"`
	Patch           int    `json:"patch"`
	DatabaseVersion string `json:"databaseVersion"`
	DateOfCreation  string `json:"dateOfCreation"`
}

// FetchVersionManifest retrieves jiten-<lang>-version.json.
func (c *HTTPClient) FetchVersionManifest(ctx context.Context, lang string) (VersionManifest, error) {
	url := fmt.Sprintf("%s/jiten-%s-version.json", c.baseURL, lang)

	body, _, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var file manifestFile
	if err := json.NewDecoder(body).Decode(&file); err != nil {
		return nil, &models.DownloadError{URL: url, Err: fmt.Errorf("parse version manifest: %w", err)}
	}

	manifest := make(VersionManifest, len(file))
	for name, entry := range file {
		manifest[models.Dataset(name)] = models.VersionInfo{
			Major:           entry.Major,
			Minor:           entry.Minor,
			Patch:           entry.Patch,
			DatabaseVersion: entry.DatabaseVersion,
			DateOfCreation:  entry.DateOfCreation,
			Lang:            lang,
		}
	}

	c.logger.WithFields(map[string]interface{}{
		"lang":     lang,
		"datasets": len(manifest),
	}).Debug("Fetched version manifest")

	return manifest, nil
}

// FetchDataFile opens a stream over <dataset>-<lang>-<version>.jsonl.
func (c *HTTPClient) FetchDataFile(ctx context.Context, ds models.Dataset, ver models.VersionInfo) (io.ReadCloser, int64, error) {
	url := fmt.Sprintf("%s/%s-%s-%s.jsonl", c.baseURL, ds, ver.Lang, ver)

	body, size, err := c.get(ctx, url)
	if err != nil {
		return nil, 0, err
	}

	c.logger.WithFields(map[string]interface{}{
		"dataset": ds,
		"version": ver.String(),
		"size":    size,
	}).Debug("Opened data file stream")

	return body, size, nil
}

func (c *HTTPClient) get(ctx context.Context, url string) (io.ReadCloser, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, &models.DownloadError{URL: url, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, 0, &models.DownloadError{URL: url, StatusCode: resp.StatusCode}
	}

	return resp.Body, resp.ContentLength, nil
}
