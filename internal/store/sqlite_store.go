package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/seiken-dev/jiten/internal/events"
	"github.com/seiken-dev/jiten/internal/models"
)

// SQLiteBackend persists datasets in a single SQLite database.
type SQLiteBackend struct {
	db     *sql.DB
	path   string
	logger *events.Logger
}

// NewSQLiteBackend opens (or creates) the database at path.
func NewSQLiteBackend(path string, logger *events.Logger) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite3", path+"?_journal=WAL&_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	b := &SQLiteBackend{
		db:     db,
		path:   path,
		logger: logger.WithField("component", "sqlite_backend"),
	}

	if err := b.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize database: %w", err)
	}

	return b, nil
}

func (b *SQLiteBackend) initialize() error {
	schema := `
    CREATE TABLE IF NOT EXISTS dataset_meta (
        dataset TEXT PRIMARY KEY,
        major INTEGER NOT NULL,
        minor INTEGER NOT NULL,
        patch INTEGER NOT NULL,
        db_version TEXT,
        date_of_creation TEXT,
        lang TEXT NOT NULL,
        last_check TIMESTAMP,
        updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
    );

    CREATE TABLE IF NOT EXISTS records (
        dataset TEXT NOT NULL,
        id TEXT NOT NULL,
        data BLOB NOT NULL,
        PRIMARY KEY (dataset, id)
    );
    `
	_, err := b.db.Exec(schema)
	return err
}

// LoadMeta implements Backend.
func (b *SQLiteBackend) LoadMeta() (map[models.Dataset]Meta, error) {
	rows, err := b.db.Query(`
        SELECT dataset, major, minor, patch, db_version, date_of_creation, lang, last_check
        FROM dataset_meta`)
	if err != nil {
		return nil, fmt.Errorf("load metadata: %w", err)
	}
	defer rows.Close()

	meta := make(map[models.Dataset]Meta)
	for rows.Next() {
		var (
			ds        string
			ver       models.VersionInfo
			dbVer     sql.NullString
			created   sql.NullString
			lastCheck sql.NullTime
		)
		if err := rows.Scan(&ds, &ver.Major, &ver.Minor, &ver.Patch, &dbVer, &created, &ver.Lang, &lastCheck); err != nil {
			return nil, fmt.Errorf("scan metadata: %w", err)
		}
		ver.DatabaseVersion = dbVer.String
		ver.DateOfCreation = created.String

		v := ver
		m := Meta{Version: &v, State: models.LoadStateReady}
		if lastCheck.Valid {
			m.LastCheck = lastCheck.Time
		}
		meta[models.Dataset(ds)] = m
	}
	return meta, rows.Err()
}

// ReplaceDataset implements Backend. The delete, the inserts, and the
// metadata update commit as one transaction.
func (b *SQLiteBackend) ReplaceDataset(ctx context.Context, ds models.Dataset, ver models.VersionInfo, records RecordSource) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE dataset = ?`, string(ds)); err != nil {
		return fmt.Errorf("clear %s records: %w", ds, err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO records (dataset, id, data) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	count := 0
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

		if _, err := stmt.ExecContext(ctx, string(ds), rec.ID, rec.Data); err != nil {
			return fmt.Errorf("insert %s record %s: %w", ds, rec.ID, err)
		}
		count++
	}

	if _, err := tx.ExecContext(ctx, `
        INSERT OR REPLACE INTO dataset_meta
            (dataset, major, minor, patch, db_version, date_of_creation, lang, last_check, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?,
            (SELECT last_check FROM dataset_meta WHERE dataset = ?), CURRENT_TIMESTAMP)`,
		string(ds), ver.Major, ver.Minor, ver.Patch, ver.DatabaseVersion, ver.DateOfCreation, ver.Lang,
		string(ds)); err != nil {
		return fmt.Errorf("update %s metadata: %w", ds, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace: %w", err)
	}

	b.logger.WithFields(map[string]interface{}{
		"dataset": ds,
		"version": ver.String(),
		"records": count,
	}).Info("Replaced dataset")

	return nil
}

// SetLastCheck implements Backend.
func (b *SQLiteBackend) SetLastCheck(ds models.Dataset, t time.Time) error {
	_, err := b.db.Exec(
		`UPDATE dataset_meta SET last_check = ? WHERE dataset = ?`,
		t, string(ds))
	if err != nil {
		return fmt.Errorf("set last check: %w", err)
	}
	return nil
}

// Count implements Backend.
func (b *SQLiteBackend) Count(ds models.Dataset) (int64, error) {
	var n int64
	err := b.db.QueryRow(`SELECT COUNT(*) FROM records WHERE dataset = ?`, string(ds)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s records: %w", ds, err)
	}
	return n, nil
}

// Destroy implements Backend.
func (b *SQLiteBackend) Destroy() error {
	if err := b.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	for _, suffix := range []string{"", "-wal", "-shm"} {
		if err := os.Remove(b.path + suffix); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove database file: %w", err)
		}
	}
	return nil
}

// Close implements Backend.
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}
