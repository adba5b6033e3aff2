// Package export writes scan reports to a SQLite database so duplicate sets
// can be queried with ordinary SQL after the scan finishes.
//
// Every export appends a row to scans; images, sets and members are keyed
// by that scan's ID, so one database can hold the history of many scans.
package export

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/jamesainslie/dupesweep/pkg/dupesweep/logging"
	"github.com/jamesainslie/dupesweep/pkg/dupesweep/types"
)

var logger = logging.Get("export")

// SchemaVersion is stored in PRAGMA user_version.
const SchemaVersion = 1

const schemaSQL = `
CREATE TABLE IF NOT EXISTS scans (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	started_at TEXT NOT NULL,
	elapsed_ms INTEGER NOT NULL,
	roots TEXT NOT NULL,
	algorithm TEXT NOT NULL,
	threshold INTEGER NOT NULL,
	files_seen INTEGER NOT NULL,
	hashed INTEGER NOT NULL,
	skipped INTEGER NOT NULL,
	reclaimable INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS sets (
	scan_id INTEGER NOT NULL REFERENCES scans(id) ON DELETE CASCADE,
	id TEXT NOT NULL,
	representative_hash TEXT NOT NULL,
	total_size INTEGER NOT NULL,
	PRIMARY KEY (scan_id, id)
);
CREATE TABLE IF NOT EXISTS images (
	scan_id INTEGER NOT NULL REFERENCES scans(id) ON DELETE CASCADE,
	path TEXT NOT NULL,
	set_id TEXT,
	size INTEGER NOT NULL,
	width INTEGER NOT NULL,
	height INTEGER NOT NULL,
	modified_at TEXT NOT NULL,
	hash TEXT NOT NULL,
	score REAL,
	action TEXT,
	quality REAL,
	size_signal REAL,
	filename_signal REAL,
	PRIMARY KEY (scan_id, path)
);
CREATE TABLE IF NOT EXISTS skipped (
	scan_id INTEGER NOT NULL REFERENCES scans(id) ON DELETE CASCADE,
	path TEXT NOT NULL,
	reason TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_images_set ON images(scan_id, set_id);
CREATE INDEX IF NOT EXISTS idx_images_hash ON images(hash);`

// DB is an export database.
type DB struct {
	conn *sql.DB
}

// Open opens or creates the database at path and applies the schema.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) migrate() error {
	var version int
	if err := db.conn.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if version > SchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, SchemaVersion)
	}
	if _, err := db.conn.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	if version < SchemaVersion {
		if _, err := db.conn.Exec(fmt.Sprintf("PRAGMA user_version = %d", SchemaVersion)); err != nil {
			return fmt.Errorf("failed to set schema version: %w", err)
		}
		logger.Debug("export schema initialized", "version", SchemaVersion)
	}
	return nil
}

// Close closes the database.
func (db *DB) Close() error {
	return db.conn.Close()
}

// WriteReport stores a report in a single transaction and returns the new
// scan ID. Images that were hashed but not clustered are not stored.
func (db *DB) WriteReport(ctx context.Context, r *types.Report) (scanID int64, err error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, tx.Rollback())
		}
	}()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO scans (started_at, elapsed_ms, roots, algorithm, threshold, files_seen, hashed, skipped, reclaimable)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.StartedAt.UTC().Format(time.RFC3339Nano),
		r.Elapsed.Milliseconds(),
		strings.Join(r.Roots, "\n"),
		string(r.Algorithm),
		r.Threshold,
		r.FilesSeen,
		r.Hashed,
		len(r.Skipped),
		int64(r.ReclaimableBytes()),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert scan: %w", err)
	}
	if scanID, err = res.LastInsertId(); err != nil {
		return 0, err
	}

	setStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO sets (scan_id, id, representative_hash, total_size) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare set insert: %w", err)
	}
	defer setStmt.Close()

	imageStmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO images (
			scan_id, path, set_id, size, width, height, modified_at, hash,
			score, action, quality, size_signal, filename_signal
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare image insert: %w", err)
	}
	defer imageStmt.Close()

	for _, set := range r.Sets {
		if _, err = setStmt.ExecContext(ctx, scanID, set.ID, set.RepresentativeHash.String(), int64(set.TotalSize())); err != nil {
			return 0, fmt.Errorf("cannot insert set %s: %w", set.ID, err)
		}
		scores := r.Scores[set.ID]
		for i, m := range set.Members {
			var score types.SelectionScore
			if i < len(scores) {
				score = scores[i]
			}
			_, err = imageStmt.ExecContext(ctx,
				scanID, m.Path, set.ID, int64(m.Size), m.Width, m.Height,
				m.ModTime.UTC().Format(time.RFC3339Nano), m.Hash.String(),
				score.Score, string(score.Action),
				score.Signals.Quality, score.Signals.Size, score.Signals.Filename,
			)
			if err != nil {
				return 0, fmt.Errorf("cannot insert data for %s: %w", m.Path, err)
			}
		}
	}

	for _, s := range r.Skipped {
		if _, err = tx.ExecContext(ctx, `INSERT INTO skipped (scan_id, path, reason) VALUES (?, ?, ?)`,
			scanID, s.Path, s.Reason); err != nil {
			return 0, fmt.Errorf("cannot insert skipped file %s: %w", s.Path, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit export: %w", err)
	}
	logger.Info("report exported", "scan_id", scanID, "sets", len(r.Sets), "skipped", len(r.Skipped))
	return scanID, nil
}

// ScanStats summarizes one exported scan.
type ScanStats struct {
	Sets        int
	Images      int
	Deletes     int
	Skipped     int
	Reclaimable uint64
}

// Stats returns statistics for an exported scan.
func (db *DB) Stats(ctx context.Context, scanID int64) (*ScanStats, error) {
	var stats ScanStats
	var reclaimable int64
	err := db.conn.QueryRowContext(ctx, "SELECT reclaimable FROM scans WHERE id = ?", scanID).Scan(&reclaimable)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("scan %d not found", scanID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scan: %w", err)
	}
	stats.Reclaimable = uint64(reclaimable)

	queries := []struct {
		dst   *int
		query string
	}{
		{&stats.Sets, "SELECT COUNT(*) FROM sets WHERE scan_id = ?"},
		{&stats.Images, "SELECT COUNT(*) FROM images WHERE scan_id = ?"},
		{&stats.Deletes, "SELECT COUNT(*) FROM images WHERE scan_id = ? AND action = 'delete'"},
		{&stats.Skipped, "SELECT COUNT(*) FROM skipped WHERE scan_id = ?"},
	}
	for _, q := range queries {
		if err := db.conn.QueryRowContext(ctx, q.query, scanID).Scan(q.dst); err != nil {
			return nil, fmt.Errorf("failed to query stats: %w", err)
		}
	}
	return &stats, nil
}

// DeleteCandidates returns paths recommended for deletion in a scan,
// ordered by set and path.
func (db *DB) DeleteCandidates(ctx context.Context, scanID int64) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT path FROM images WHERE scan_id = ? AND action = 'delete' ORDER BY set_id, path", scanID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// Export opens path, writes the report and closes the database.
func Export(ctx context.Context, path string, r *types.Report) (int64, error) {
	db, err := Open(path)
	if err != nil {
		return 0, err
	}
	id, err := db.WriteReport(ctx, r)
	return id, errors.Join(err, db.Close())
}
