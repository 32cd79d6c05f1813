package store

import (
	"context"
	"sync"
	"time"

	"github.com/seiken-dev/jiten/internal/events"
	"github.com/seiken-dev/jiten/internal/models"
	"github.com/seiken-dev/jiten/internal/transport"
)

// Store is the persistent dataset store as the orchestrator sees it:
// per-dataset records, an update-with-retry primitive, and a change
// subscription. Implementations must deliver callbacks from at most
// one goroutine per series.
type Store interface {
	// States returns every dataset's current record.
	States() map[models.Dataset]models.DatasetState

	// UpdateState returns the live progress report for one series.
	UpdateState(series models.Series) models.UpdateState

	// UpdateWithRetry starts one series update step. It returns
	// immediately; progress arrives via the callbacks in opts.
	UpdateWithRetry(opts UpdateOptions)

	// CancelUpdate aborts an in-flight step. Best-effort: the step may
	// still complete I/O already under way.
	CancelUpdate(series models.Series)

	// ClearCachedVersionInfo discards cached version-check results so
	// the next step checks the remote source again.
	ClearCachedVersionInfo()

	// Subscribe registers a change hook, returning an unsubscribe
	// function. Hooks may be invoked from worker goroutines.
	Subscribe(fn func()) func()

	// Destroy deletes all stored data and releases resources.
	Destroy() error

	// Close releases resources without deleting data.
	Close() error
}

// UpdateOptions configures one update step.
type UpdateOptions struct {
	Series models.Series
	Lang   string

	// OnComplete fires once when the step finishes successfully.
	OnComplete func()

	// OnError fires on every failure. A populated NextRetry means the
	// store will retry on its own; otherwise the step is over.
	OnError func(models.UpdateFailure)
}

// Record is one dataset entry: a stable key plus its raw JSON body.
type Record struct {
	ID   string
	Data []byte
}

// RecordSource yields records one at a time, returning io.EOF when
// exhausted.
type RecordSource func() (Record, error)

// Meta is the persisted bookkeeping for one dataset.
type Meta struct {
	Version   *models.VersionInfo
	State     models.LoadState
	LastCheck time.Time
}

// Backend persists dataset records and metadata. DatasetStore drives
// it; backends never talk to the network.
type Backend interface {
	// LoadMeta reads bookkeeping for all datasets present on disk.
	LoadMeta() (map[models.Dataset]Meta, error)

	// ReplaceDataset atomically swaps a dataset's records for a new
	// release and updates its version metadata.
	ReplaceDataset(ctx context.Context, ds models.Dataset, ver models.VersionInfo, records RecordSource) error

	// SetLastCheck records a completed version check.
	SetLastCheck(ds models.Dataset, t time.Time) error

	// Count returns the number of stored records for a dataset.
	Count(ds models.Dataset) (int64, error)

	// Destroy deletes the underlying files.
	Destroy() error

	// Close flushes and releases resources.
	Close() error
}

// RetryConfig bounds the store's own retry schedule.
type RetryConfig struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultRetryConfig matches the configuration defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   12,
		InitialDelay: 3 * time.Second,
		MaxDelay:     5 * time.Minute,
	}
}

// manifestEntry is one cached version-check result.
type manifestEntry struct {
	manifest  transport.VersionManifest
	fetchedAt time.Time
}

// manifestCacheTTL bounds how long a version check stays "fresh".
const manifestCacheTTL = 3 * time.Hour

// updateJob is one running series worker. The pointer doubles as an
// ownership token: a cancelled worker may still be winding down while
// a replacement for the same series already owns the table entry.
type updateJob struct {
	cancel context.CancelFunc
}

// DatasetStore implements Store over a Backend plus a download client.
type DatasetStore struct {
	backend Backend
	remote  transport.Client
	retry   RetryConfig
	logger  *events.Logger

	mu           sync.Mutex
	meta         map[models.Dataset]Meta
	updateStates map[models.Series]models.UpdateState
	manifests    map[string]manifestEntry
	jobs         map[models.Series]*updateJob
	subs         map[int]func()
	nextSub      int
	destroyed    bool
}

// New opens a dataset store over the given backend. The backend's
// metadata is loaded eagerly so States never reports Uninitialized
// once New returns.
func New(backend Backend, remote transport.Client, retry RetryConfig, logger *events.Logger) (*DatasetStore, error) {
	meta, err := backend.LoadMeta()
	if err != nil {
		backend.Close()
		return nil, err
	}

	// Datasets absent from disk start out empty.
	for _, ds := range models.AllDatasets() {
		if _, ok := meta[ds]; !ok {
			meta[ds] = Meta{State: models.LoadStateEmpty}
		}
	}

	return &DatasetStore{
		backend:      backend,
		remote:       remote,
		retry:        retry,
		logger:       logger.WithField("component", "dataset_store"),
		meta:         meta,
		updateStates: make(map[models.Series]models.UpdateState),
		manifests:    make(map[string]manifestEntry),
		jobs:         make(map[models.Series]*updateJob),
		subs:         make(map[int]func()),
	}, nil
}

// States implements Store.
func (s *DatasetStore) States() map[models.Dataset]models.DatasetState {
	s.mu.Lock()
	defer s.mu.Unlock()

	states := make(map[models.Dataset]models.DatasetState, len(s.meta))
	for ds, meta := range s.meta {
		series := seriesFor(ds)
		us := s.updateStates[series]
		us.LastCheck = meta.LastCheck

		state := meta.State
		if meta.Version != nil {
			state = models.LoadStateReady
		}

		var ver *models.VersionInfo
		if meta.Version != nil {
			v := *meta.Version
			ver = &v
		}

		states[ds] = models.DatasetState{
			State:       state,
			Version:     ver,
			UpdateState: us,
		}
	}
	return states
}

// UpdateState implements Store.
func (s *DatasetStore) UpdateState(series models.Series) models.UpdateState {
	s.mu.Lock()
	defer s.mu.Unlock()

	us := s.updateStates[series]
	var latest time.Time
	for _, ds := range series.Datasets() {
		if lc := s.meta[ds].LastCheck; lc.After(latest) {
			latest = lc
		}
	}
	us.LastCheck = latest
	return us
}

// CancelUpdate implements Store. The jobs entry is released here, not
// in the worker's cleanup: callers cancel and immediately restart the
// same series, and the replacement must not be turned away because the
// old worker has not finished winding down yet.
func (s *DatasetStore) CancelUpdate(series models.Series) {
	s.mu.Lock()
	job := s.jobs[series]
	delete(s.jobs, series)
	s.mu.Unlock()

	if job != nil {
		s.logger.WithField("series", series).Debug("Cancelling update")
		job.cancel()
	}
}

// ClearCachedVersionInfo implements Store.
func (s *DatasetStore) ClearCachedVersionInfo() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.manifests = make(map[string]manifestEntry)
}

// Subscribe implements Store.
func (s *DatasetStore) Subscribe(fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// Destroy implements Store. In-flight updates are cancelled but not
// awaited; destruction invalidates them.
func (s *DatasetStore) Destroy() error {
	s.mu.Lock()
	s.destroyed = true
	for _, job := range s.jobs {
		job.cancel()
	}
	s.mu.Unlock()

	s.logger.Info("Destroying dataset store")
	return s.backend.Destroy()
}

// Close implements Store.
func (s *DatasetStore) Close() error {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return nil
	}
	s.destroyed = true
	for _, job := range s.jobs {
		job.cancel()
	}
	s.mu.Unlock()

	return s.backend.Close()
}

// Count reports stored record counts, for status display.
func (s *DatasetStore) Count(ds models.Dataset) (int64, error) {
	return s.backend.Count(ds)
}

func (s *DatasetStore) notify() {
	s.mu.Lock()
	subs := make([]func(), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn()
	}
}

// seriesFor maps a dataset to the series step that refreshes it.
func seriesFor(ds models.Dataset) models.Series {
	if ds == models.DatasetRadicals {
		return models.SeriesKanji
	}
	return models.Series(ds)
}
