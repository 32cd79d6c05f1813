package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/seiken-dev/jiten/internal/events"
	"github.com/seiken-dev/jiten/internal/models"
)

// Bucket names
var (
	bucketMeta    = []byte("meta")
	bucketRecords = []byte("records") // nested: one sub-bucket per dataset
)

// BoltBackend persists datasets in a BoltDB file. It is the lighter
// alternative to the SQLite backend for installs without cgo.
type BoltBackend struct {
	db     *bolt.DB
	path   string
	logger *events.Logger
}

// boltMeta is the stored form of a dataset's bookkeeping.
type boltMeta struct {
	Version   *models.VersionInfo `json:"version,omitempty"`
	LastCheck time.Time           `json:"lastCheck,omitzero"`
}

// NewBoltBackend opens (or creates) the database at path.
func NewBoltBackend(path string, logger *events.Logger) (*BoltBackend, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketMeta); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketRecords)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	return &BoltBackend{
		db:     db,
		path:   path,
		logger: logger.WithField("component", "bolt_backend"),
	}, nil
}

// LoadMeta implements Backend.
func (b *BoltBackend) LoadMeta() (map[models.Dataset]Meta, error) {
	meta := make(map[models.Dataset]Meta)

	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMeta).ForEach(func(k, v []byte) error {
			var stored boltMeta
			if err := json.Unmarshal(v, &stored); err != nil {
				return fmt.Errorf("decode %s metadata: %w", k, err)
			}
			m := Meta{
				Version:   stored.Version,
				State:     models.LoadStateEmpty,
				LastCheck: stored.LastCheck,
			}
			if stored.Version != nil {
				m.State = models.LoadStateReady
			}
			meta[models.Dataset(k)] = m
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return meta, nil
}

// ReplaceDataset implements Backend. Bolt allows one writer; the whole
// swap runs in a single Update transaction.
func (b *BoltBackend) ReplaceDataset(ctx context.Context, ds models.Dataset, ver models.VersionInfo, records RecordSource) error {
	count := 0
	err := b.db.Update(func(tx *bolt.Tx) error {
		recs := tx.Bucket(bucketRecords)
		if recs.Bucket([]byte(ds)) != nil {
			if err := recs.DeleteBucket([]byte(ds)); err != nil {
				return fmt.Errorf("clear %s records: %w", ds, err)
			}
		}
		bucket, err := recs.CreateBucket([]byte(ds))
		if err != nil {
			return fmt.Errorf("create %s bucket: %w", ds, err)
		}

		for {
			if err := ctx.Err(); err != nil {
				return err
			}

			rec, err := records()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return err
			}

			if err := bucket.Put([]byte(rec.ID), rec.Data); err != nil {
				return fmt.Errorf("put %s record %s: %w", ds, rec.ID, err)
			}
			count++
		}

		return b.putMeta(tx, ds, func(m *boltMeta) {
			v := ver
			m.Version = &v
		})
	})
	if err != nil {
		return err
	}

	b.logger.WithFields(map[string]interface{}{
		"dataset": ds,
		"version": ver.String(),
		"records": count,
	}).Info("Replaced dataset")

	return nil
}

// SetLastCheck implements Backend.
func (b *BoltBackend) SetLastCheck(ds models.Dataset, t time.Time) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return b.putMeta(tx, ds, func(m *boltMeta) {
			m.LastCheck = t
		})
	})
}

func (b *BoltBackend) putMeta(tx *bolt.Tx, ds models.Dataset, mutate func(*boltMeta)) error {
	bucket := tx.Bucket(bucketMeta)

	var stored boltMeta
	if raw := bucket.Get([]byte(ds)); raw != nil {
		if err := json.Unmarshal(raw, &stored); err != nil {
			return fmt.Errorf("decode %s metadata: %w", ds, err)
		}
	}
	mutate(&stored)

	raw, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("encode %s metadata: %w", ds, err)
	}
	return bucket.Put([]byte(ds), raw)
}

// Count implements Backend.
func (b *BoltBackend) Count(ds models.Dataset) (int64, error) {
	var n int64
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketRecords).Bucket([]byte(ds))
		if bucket == nil {
			return nil
		}
		n = int64(bucket.Stats().KeyN)
		return nil
	})
	return n, err
}

// Destroy implements Backend.
func (b *BoltBackend) Destroy() error {
	if err := b.db.Close(); err != nil {
		return fmt.Errorf("close bolt db: %w", err)
	}
	if err := os.Remove(b.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove bolt db: %w", err)
	}
	return nil
}

// Close implements Backend.
func (b *BoltBackend) Close() error {
	return b.db.Close()
}
