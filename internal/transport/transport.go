package transport

import (
	"context"
	"fmt"
	"io"

	"github.com/seiken-dev/jiten/internal/models"
)

// Client fetches dataset release material from the remote source.
type Client interface {
	// FetchVersionManifest retrieves the published version of every
	// dataset for a language.
	FetchVersionManifest(ctx context.Context, lang string) (VersionManifest, error)

	// FetchDataFile opens a stream over one dataset release file. The
	// returned size is -1 when the server does not report one. The
	// caller owns the ReadCloser.
	FetchDataFile(ctx context.Context, ds models.Dataset, ver models.VersionInfo) (io.ReadCloser, int64, error)
}

// VersionManifest maps each dataset to its latest published release.
type VersionManifest map[models.Dataset]models.VersionInfo

// Version looks up a dataset's entry.
func (m VersionManifest) Version(ds models.Dataset) (models.VersionInfo, error) {
	ver, ok := m[ds]
	if !ok {
		return models.VersionInfo{}, fmt.Errorf("version manifest has no %s entry", ds)
	}
	return ver, nil
}
