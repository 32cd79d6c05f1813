package store

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/seiken-dev/jiten/internal/models"
	"github.com/seiken-dev/jiten/internal/transport"
)

// UpdateWithRetry implements Store. The step runs on its own goroutine
// and retries transient failures with exponential backoff. Every
// scheduled retry is reported through OnError with NextRetry set; the
// final outcome arrives as OnComplete or an OnError without NextRetry.
func (s *DatasetStore) UpdateWithRetry(opts UpdateOptions) {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		if opts.OnError != nil {
			opts.OnError(models.UpdateFailure{Err: models.ErrStoreDestroyed})
		}
		return
	}
	if _, running := s.jobs[opts.Series]; running {
		// The orchestrator never double-starts a series; drop defensively.
		s.mu.Unlock()
		s.logger.WithField("series", opts.Series).Warn("Update already running, ignoring request")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	job := &updateJob{cancel: cancel}
	s.jobs[opts.Series] = job
	s.mu.Unlock()

	go s.runWithRetry(ctx, job, opts)
}

func (s *DatasetStore) runWithRetry(ctx context.Context, job *updateJob, opts UpdateOptions) {
	defer func() {
		job.cancel()
		s.mu.Lock()
		owner := s.jobs[opts.Series]
		if owner == job {
			delete(s.jobs, opts.Series)
		}
		// A cancelled worker whose series was already restarted must not
		// clobber the replacement's progress state.
		if owner == job || owner == nil {
			s.setUpdateStateLocked(opts.Series, models.UpdateState{Phase: models.StorePhaseIdle})
		}
		s.mu.Unlock()
		s.notify()
	}()

	delay := s.retry.InitialDelay

	for attempt := 0; ; attempt++ {
		err := s.runUpdate(ctx, opts.Series, opts.Lang)
		if err == nil {
			if opts.OnComplete != nil {
				opts.OnComplete()
			}
			return
		}

		if ctx.Err() != nil {
			err = &models.UpdateError{
				Kind:   models.KindAborted,
				Series: opts.Series,
				Op:     "update",
				Err:    models.ErrUpdateAborted,
			}
			s.fail(opts, models.UpdateFailure{Err: err})
			return
		}

		kind := models.KindOf(err)
		if kind.Retryable() && attempt < s.retry.MaxRetries {
			next := time.Now().Add(delay)
			s.logger.WithFields(map[string]interface{}{
				"series":  opts.Series,
				"attempt": attempt + 1,
				"delay":   delay,
				"error":   err.Error(),
			}).Debug("Scheduling update retry")

			s.fail(opts, models.UpdateFailure{
				Err:        err,
				NextRetry:  next,
				RetryCount: attempt + 1,
			})

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				s.fail(opts, models.UpdateFailure{Err: &models.UpdateError{
					Kind:   models.KindAborted,
					Series: opts.Series,
					Op:     "update",
					Err:    models.ErrUpdateAborted,
				}})
				return
			}

			delay *= 2
			if delay > s.retry.MaxDelay {
				delay = s.retry.MaxDelay
			}
			continue
		}

		s.fail(opts, models.UpdateFailure{Err: err})
		return
	}
}

func (s *DatasetStore) fail(opts UpdateOptions, failure models.UpdateFailure) {
	if opts.OnError != nil {
		opts.OnError(failure)
	}
}

// runUpdate performs one attempt of a series step: version check, then
// download and replace every dataset the series covers that is out of
// date.
func (s *DatasetStore) runUpdate(ctx context.Context, series models.Series, lang string) error {
	s.mu.Lock()
	s.setUpdateStateLocked(series, models.UpdateState{Phase: models.StorePhaseChecking})
	s.mu.Unlock()
	s.notify()

	manifest, err := s.manifest(ctx, lang)
	if err != nil {
		return &models.UpdateError{Kind: models.KindOf(err), Series: series, Op: "check version", Err: err}
	}

	datasets := series.Datasets()

	var stale []models.Dataset
	for _, ds := range datasets {
		remote, err := manifest.Version(ds)
		if err != nil {
			return &models.UpdateError{Kind: models.KindInvalid, Series: series, Op: "check version", Err: err}
		}

		s.mu.Lock()
		current := s.meta[ds].Version
		s.mu.Unlock()

		if current == nil || current.OlderThan(remote) {
			stale = append(stale, ds)
		}
	}

	for i, ds := range stale {
		remote, _ := manifest.Version(ds)
		if err := s.downloadDataset(ctx, series, ds, remote, i, len(stale)); err != nil {
			return err
		}
	}

	now := time.Now()
	s.mu.Lock()
	for _, ds := range datasets {
		meta := s.meta[ds]
		meta.LastCheck = now
		s.meta[ds] = meta
	}
	s.mu.Unlock()

	for _, ds := range datasets {
		if err := s.backend.SetLastCheck(ds, now); err != nil {
			return &models.UpdateError{Kind: models.KindOf(err), Series: series, Op: "record check", Err: err}
		}
	}
	s.notify()

	return nil
}

// downloadDataset streams one release file into the backend, updating
// the series progress as bytes arrive. fileIndex/fileCount weight the
// progress fraction when a series covers several files (kanji also
// refreshes radicals).
func (s *DatasetStore) downloadDataset(ctx context.Context, series models.Series, ds models.Dataset, ver models.VersionInfo, fileIndex, fileCount int) error {
	s.logger.WithFields(map[string]interface{}{
		"dataset": ds,
		"version": ver.String(),
	}).Info("Downloading dataset")

	body, size, err := s.remote.FetchDataFile(ctx, ds, ver)
	if err != nil {
		return &models.UpdateError{Kind: models.KindOf(err), Series: series, Op: "download", Err: err}
	}
	defer body.Close()

	reader := &progressReader{
		r:    body,
		size: size,
		onProgress: func(fraction float64) {
			total := (float64(fileIndex) + fraction) / float64(fileCount)
			s.mu.Lock()
			s.setUpdateStateLocked(series, models.UpdateState{
				Phase:    models.StorePhaseUpdating,
				Progress: total,
			})
			s.mu.Unlock()
			s.notify()
		},
	}

	source := newRecordParser(ds, reader)
	if err := s.backend.ReplaceDataset(ctx, ds, ver, source.Next); err != nil {
		kind := models.KindOf(err)
		if source.parseErr {
			kind = models.KindInvalid
		}
		return &models.UpdateError{Kind: kind, Series: series, Op: "write records", Err: err}
	}

	s.mu.Lock()
	s.meta[ds] = Meta{
		Version:   &ver,
		State:     models.LoadStateReady,
		LastCheck: s.meta[ds].LastCheck,
	}
	s.mu.Unlock()
	s.notify()

	return nil
}

func (s *DatasetStore) setUpdateStateLocked(series models.Series, us models.UpdateState) {
	s.updateStates[series] = us
}

// manifest returns the cached version manifest for a language, or
// fetches a fresh one.
func (s *DatasetStore) manifest(ctx context.Context, lang string) (transport.VersionManifest, error) {
	s.mu.Lock()
	entry, ok := s.manifests[lang]
	s.mu.Unlock()

	if ok && time.Since(entry.fetchedAt) < manifestCacheTTL {
		return entry.manifest, nil
	}

	manifest, err := s.remote.FetchVersionManifest(ctx, lang)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.manifests[lang] = manifestEntry{manifest: manifest, fetchedAt: time.Now()}
	s.mu.Unlock()

	return manifest, nil
}

// progressReader reports the consumed fraction of a sized stream. It
// throttles callbacks to whole-percent steps.
type progressReader struct {
	r          io.Reader
	size       int64
	read       int64
	lastPct    int
	onProgress func(float64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)

	if p.size > 0 && p.onProgress != nil {
		pct := int(p.read * 100 / p.size)
		if pct > p.lastPct {
			p.lastPct = pct
			p.onProgress(float64(p.read) / float64(p.size))
		}
	}
	return n, err
}

// recordParser turns a line-delimited JSON stream into Records keyed
// per dataset: kanji records key on their character, everything else
// on an explicit id field.
type recordParser struct {
	ds       models.Dataset
	scanner  *bufio.Scanner
	line     int
	parseErr bool
}

func newRecordParser(ds models.Dataset, r io.Reader) *recordParser {
	scanner := bufio.NewScanner(r)
	// Some word entries run long; the default token limit is too small.
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	return &recordParser{ds: ds, scanner: scanner}
}

// Next implements RecordSource.
func (p *recordParser) Next() (Record, error) {
	for p.scanner.Scan() {
		p.line++
		line := p.scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var key struct {
			ID json.RawMessage `json:"id"`
			C  string          `json:"c"`
		}
		if err := json.Unmarshal(line, &key); err != nil {
			p.parseErr = true
			return Record{}, fmt.Errorf("parse %s line %d: %w", p.ds, p.line, err)
		}

		id := p.recordID(key.ID, key.C)

		data := make([]byte, len(line))
		copy(data, line)
		return Record{ID: id, Data: data}, nil
	}

	if err := p.scanner.Err(); err != nil {
		return Record{}, fmt.Errorf("read %s data: %w", p.ds, err)
	}
	return Record{}, io.EOF
}

func (p *recordParser) recordID(rawID json.RawMessage, char string) string {
	if p.ds == models.DatasetKanji && char != "" {
		return char
	}
	if len(rawID) > 0 {
		id := string(rawID)
		// Strip quotes from string ids.
		if len(id) >= 2 && id[0] == '"' && id[len(id)-1] == '"' {
			id = id[1 : len(id)-1]
		}
		return id
	}
	return fmt.Sprintf("%s-%d", p.ds, p.line)
}
