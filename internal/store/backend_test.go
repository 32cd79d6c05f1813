package store_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seiken-dev/jiten/internal/events"
	"github.com/seiken-dev/jiten/internal/models"
	"github.com/seiken-dev/jiten/internal/store"
)

type backendFixture struct {
	name string
	open func(t *testing.T) (store.Backend, string)
}

func backendFixtures() []backendFixture {
	logger := events.NewTestLogger(events.ErrorLevel, io.Discard)

	return []backendFixture{
		{
			name: "sqlite",
			open: func(t *testing.T) (store.Backend, string) {
				path := filepath.Join(t.TempDir(), "jiten.db")
				b, err := store.NewSQLiteBackend(path, logger)
				require.NoError(t, err)
				return b, path
			},
		},
		{
			name: "bolt",
			open: func(t *testing.T) (store.Backend, string) {
				path := filepath.Join(t.TempDir(), "jiten.bolt")
				b, err := store.NewBoltBackend(path, logger)
				require.NoError(t, err)
				return b, path
			},
		},
	}
}

// sliceSource adapts a fixed record list to the streaming interface.
func sliceSource(records []store.Record) store.RecordSource {
	i := 0
	return func() (store.Record, error) {
		if i >= len(records) {
			return store.Record{}, io.EOF
		}
		rec := records[i]
		i++
		return rec, nil
	}
}

func TestBackendReplaceAndLoad(t *testing.T) {
	for _, fx := range backendFixtures() {
		t.Run(fx.name, func(t *testing.T) {
			b, _ := fx.open(t)
			defer b.Close()

			ver := models.VersionInfo{Major: 2, Minor: 5, Patch: 3, DatabaseVersion: "175", Lang: "en"}
			records := []store.Record{
				{ID: "1000", Data: []byte(`{"id":1000,"k":["辞書"]}`)},
				{ID: "1001", Data: []byte(`{"id":1001,"k":["辞典"]}`)},
			}

			require.NoError(t, b.ReplaceDataset(context.Background(), models.DatasetWords, ver, sliceSource(records)))

			count, err := b.Count(models.DatasetWords)
			require.NoError(t, err)
			assert.Equal(t, int64(2), count)

			meta, err := b.LoadMeta()
			require.NoError(t, err)
			words, ok := meta[models.DatasetWords]
			require.True(t, ok)
			require.NotNil(t, words.Version)
			assert.Equal(t, "2.5.3", words.Version.String())
			assert.Equal(t, "en", words.Version.Lang)
			assert.Equal(t, models.LoadStateReady, words.State)
		})
	}
}

func TestBackendReplaceSwapsRecords(t *testing.T) {
	for _, fx := range backendFixtures() {
		t.Run(fx.name, func(t *testing.T) {
			b, _ := fx.open(t)
			defer b.Close()

			v1 := models.VersionInfo{Major: 1, Lang: "en"}
			require.NoError(t, b.ReplaceDataset(context.Background(), models.DatasetNames, v1, sliceSource([]store.Record{
				{ID: "a", Data: []byte(`{"id":"a"}`)},
				{ID: "b", Data: []byte(`{"id":"b"}`)},
				{ID: "c", Data: []byte(`{"id":"c"}`)},
			})))

			v2 := models.VersionInfo{Major: 2, Lang: "en"}
			require.NoError(t, b.ReplaceDataset(context.Background(), models.DatasetNames, v2, sliceSource([]store.Record{
				{ID: "d", Data: []byte(`{"id":"d"}`)},
			})))

			count, err := b.Count(models.DatasetNames)
			require.NoError(t, err)
			assert.Equal(t, int64(1), count, "a new release fully replaces the old records")

			meta, err := b.LoadMeta()
			require.NoError(t, err)
			assert.Equal(t, "2.0.0", meta[models.DatasetNames].Version.String())
		})
	}
}

func TestBackendSetLastCheck(t *testing.T) {
	for _, fx := range backendFixtures() {
		t.Run(fx.name, func(t *testing.T) {
			b, _ := fx.open(t)
			defer b.Close()

			ver := models.VersionInfo{Major: 1, Lang: "en"}
			require.NoError(t, b.ReplaceDataset(context.Background(), models.DatasetKanji, ver, sliceSource(nil)))

			check := time.Date(2026, 8, 27, 10, 30, 0, 0, time.UTC)
			require.NoError(t, b.SetLastCheck(models.DatasetKanji, check))

			meta, err := b.LoadMeta()
			require.NoError(t, err)
			assert.WithinDuration(t, check, meta[models.DatasetKanji].LastCheck, time.Second)
			assert.Equal(t, "1.0.0", meta[models.DatasetKanji].Version.String(),
				"recording a check preserves the version")
		})
	}
}

func TestBackendReplacePreservesLastCheck(t *testing.T) {
	for _, fx := range backendFixtures() {
		t.Run(fx.name, func(t *testing.T) {
			b, _ := fx.open(t)
			defer b.Close()

			ver := models.VersionInfo{Major: 1, Lang: "en"}
			require.NoError(t, b.ReplaceDataset(context.Background(), models.DatasetWords, ver, sliceSource(nil)))

			check := time.Date(2026, 8, 27, 10, 30, 0, 0, time.UTC)
			require.NoError(t, b.SetLastCheck(models.DatasetWords, check))

			newer := models.VersionInfo{Major: 2, Lang: "en"}
			require.NoError(t, b.ReplaceDataset(context.Background(), models.DatasetWords, newer, sliceSource(nil)))

			meta, err := b.LoadMeta()
			require.NoError(t, err)
			assert.WithinDuration(t, check, meta[models.DatasetWords].LastCheck, time.Second)
		})
	}
}

func TestBackendReplaceCancelled(t *testing.T) {
	for _, fx := range backendFixtures() {
		t.Run(fx.name, func(t *testing.T) {
			b, _ := fx.open(t)
			defer b.Close()

			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			ver := models.VersionInfo{Major: 1, Lang: "en"}
			err := b.ReplaceDataset(ctx, models.DatasetWords, ver, sliceSource([]store.Record{
				{ID: "a", Data: []byte(`{}`)},
			}))
			require.Error(t, err)

			count, countErr := b.Count(models.DatasetWords)
			require.NoError(t, countErr)
			assert.Zero(t, count, "a cancelled replace leaves nothing behind")
		})
	}
}

func TestBackendEmptyLoad(t *testing.T) {
	for _, fx := range backendFixtures() {
		t.Run(fx.name, func(t *testing.T) {
			b, _ := fx.open(t)
			defer b.Close()

			meta, err := b.LoadMeta()
			require.NoError(t, err)
			assert.Empty(t, meta)
		})
	}
}

func TestBackendDestroy(t *testing.T) {
	for _, fx := range backendFixtures() {
		t.Run(fx.name, func(t *testing.T) {
			b, path := fx.open(t)

			ver := models.VersionInfo{Major: 1, Lang: "en"}
			require.NoError(t, b.ReplaceDataset(context.Background(), models.DatasetWords, ver, sliceSource(nil)))

			require.NoError(t, b.Destroy())
			_, err := os.Stat(path)
			assert.True(t, os.IsNotExist(err), "destroy removes the database file")
		})
	}
}
