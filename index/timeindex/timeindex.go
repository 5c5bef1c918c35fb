// Package timeindex implements a SQLite-backed B-tree index over block
// time boundaries, giving O(log n + k) time-range lookups without
// scanning every segment.
package timeindex

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"path/filepath"

	sq "github.com/Masterminds/squirrel"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/muddysheep/chronicle/chrnerr"
)

//go:embed migrations/sqlite3
var migrationFiles embed.FS

// Location identifies one block within one segment.
type Location struct {
	SegmentID uint32
	BlockIdx  uint32
}

// Index is a SQLite-backed B-tree keyed on (timestamp, segment_id, block_idx).
type Index struct {
	db   *sqlx.DB
	path string
}

// Open creates or opens the time index database under dataDir, applying
// any pending embedded migrations.
func Open(dataDir string) (*Index, error) {
	path := filepath.Join(dataDir, "time_index.db")

	db, err := sqlx.Open("sqlite3", fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_synchronous=NORMAL", path))
	if err != nil {
		return nil, chrnerr.New(chrnerr.KindIO, "timeindex.Open", err)
	}
	// SQLite has no meaningful connection concurrency; serialize through one.
	db.SetMaxOpenConns(1)

	if err := migrateUp(db.DB); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Index{db: db, path: path}, nil
}

func migrateUp(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return chrnerr.New(chrnerr.KindIO, "timeindex.migrateUp", err)
	}
	src, err := iofs.New(migrationFiles, "migrations/sqlite3")
	if err != nil {
		return chrnerr.New(chrnerr.KindIO, "timeindex.migrateUp", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return chrnerr.New(chrnerr.KindIO, "timeindex.migrateUp", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return chrnerr.New(chrnerr.KindIO, "timeindex.migrateUp", err)
	}
	return nil
}

// Path returns the database file path.
func (idx *Index) Path() string { return idx.path }

// BlockBoundary pairs a block index with the first timestamp in that
// block, as recorded by InsertRange.
type BlockBoundary struct {
	BlockIdx  uint32
	Timestamp int64
}

// InsertRange records the first timestamp of each block in boundaries for
// segmentID, in a single transaction.
func (idx *Index) InsertRange(segmentID uint32, boundaries []BlockBoundary) error {
	if len(boundaries) == 0 {
		return nil
	}

	tx, err := idx.db.Beginx()
	if err != nil {
		return chrnerr.New(chrnerr.KindIO, "timeindex.InsertRange", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Preparex(`INSERT OR REPLACE INTO time_index (timestamp, segment_id, block_idx) VALUES (?, ?, ?)`)
	if err != nil {
		return chrnerr.New(chrnerr.KindIO, "timeindex.InsertRange", err)
	}
	defer stmt.Close()

	for _, b := range boundaries {
		if _, err := stmt.Exec(b.Timestamp, segmentID, b.BlockIdx); err != nil {
			return chrnerr.New(chrnerr.KindIO, "timeindex.InsertRange", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return chrnerr.New(chrnerr.KindIO, "timeindex.InsertRange", err)
	}
	return nil
}

// Insert records a single block boundary.
func (idx *Index) Insert(timestamp int64, segmentID, blockIdx uint32) error {
	_, err := idx.db.Exec(
		`INSERT OR REPLACE INTO time_index (timestamp, segment_id, block_idx) VALUES (?, ?, ?)`,
		timestamp, segmentID, blockIdx,
	)
	if err != nil {
		return chrnerr.New(chrnerr.KindIO, "timeindex.Insert", err)
	}
	return nil
}

// FindRange returns every distinct block location whose boundary falls in
// [start, end), ordered by timestamp.
func (idx *Index) FindRange(start, end int64) ([]Location, error) {
	query, args, err := sq.Select("DISTINCT segment_id", "block_idx").
		From("time_index").
		Where(sq.And{sq.GtOrEq{"timestamp": start}, sq.Lt{"timestamp": end}}).
		OrderBy("timestamp", "segment_id", "block_idx").
		ToSql()
	if err != nil {
		return nil, chrnerr.New(chrnerr.KindIO, "timeindex.FindRange", err)
	}

	var locs []Location
	rows, err := idx.db.Query(query, args...)
	if err != nil {
		return nil, chrnerr.New(chrnerr.KindIO, "timeindex.FindRange", err)
	}
	defer rows.Close()
	for rows.Next() {
		var l Location
		if err := rows.Scan(&l.SegmentID, &l.BlockIdx); err != nil {
			return nil, chrnerr.New(chrnerr.KindIO, "timeindex.FindRange", err)
		}
		locs = append(locs, l)
	}
	return locs, nil
}

// FindFloor returns the block with the largest boundary <= timestamp.
func (idx *Index) FindFloor(timestamp int64) (Location, bool, error) {
	return idx.findOne(
		`SELECT segment_id, block_idx FROM time_index WHERE timestamp <= ? ORDER BY timestamp DESC LIMIT 1`,
		timestamp,
	)
}

// FindCeiling returns the block with the smallest boundary >= timestamp.
func (idx *Index) FindCeiling(timestamp int64) (Location, bool, error) {
	return idx.findOne(
		`SELECT segment_id, block_idx FROM time_index WHERE timestamp >= ? ORDER BY timestamp ASC LIMIT 1`,
		timestamp,
	)
}

func (idx *Index) findOne(query string, arg int64) (Location, bool, error) {
	var l Location
	err := idx.db.QueryRow(query, arg).Scan(&l.SegmentID, &l.BlockIdx)
	if errors.Is(err, sql.ErrNoRows) {
		return Location{}, false, nil
	}
	if err != nil {
		return Location{}, false, chrnerr.New(chrnerr.KindIO, "timeindex.findOne", err)
	}
	return l, true, nil
}

// FindBySegment returns every indexed block for segmentID, ordered by
// block index.
func (idx *Index) FindBySegment(segmentID uint32) ([]Location, error) {
	rows, err := idx.db.Query(
		`SELECT segment_id, block_idx FROM time_index WHERE segment_id = ? ORDER BY block_idx`,
		segmentID,
	)
	if err != nil {
		return nil, chrnerr.New(chrnerr.KindIO, "timeindex.FindBySegment", err)
	}
	defer rows.Close()

	var locs []Location
	for rows.Next() {
		var l Location
		if err := rows.Scan(&l.SegmentID, &l.BlockIdx); err != nil {
			return nil, chrnerr.New(chrnerr.KindIO, "timeindex.FindBySegment", err)
		}
		locs = append(locs, l)
	}
	return locs, nil
}

// RemoveSegment deletes every entry for segmentID, for when a segment is
// dropped.
func (idx *Index) RemoveSegment(segmentID uint32) error {
	if _, err := idx.db.Exec(`DELETE FROM time_index WHERE segment_id = ?`, segmentID); err != nil {
		return chrnerr.New(chrnerr.KindIO, "timeindex.RemoveSegment", err)
	}
	return nil
}

// Count returns the total number of indexed block boundaries.
func (idx *Index) Count() (int64, error) {
	var n int64
	if err := idx.db.Get(&n, `SELECT COUNT(*) FROM time_index`); err != nil {
		return 0, chrnerr.New(chrnerr.KindIO, "timeindex.Count", err)
	}
	return n, nil
}

// TimeBounds returns the min and max indexed timestamp, ok=false if empty.
func (idx *Index) TimeBounds() (min, max int64, ok bool, err error) {
	row := idx.db.QueryRow(`SELECT MIN(timestamp), MAX(timestamp) FROM time_index`)
	var minNull, maxNull sql.NullInt64
	if scanErr := row.Scan(&minNull, &maxNull); scanErr != nil {
		return 0, 0, false, chrnerr.New(chrnerr.KindIO, "timeindex.TimeBounds", scanErr)
	}
	if !minNull.Valid || !maxNull.Valid {
		return 0, 0, false, nil
	}
	return minNull.Int64, maxNull.Int64, true, nil
}

// Optimize runs VACUUM to reclaim space after heavy deletion.
func (idx *Index) Optimize() error {
	if _, err := idx.db.Exec(`VACUUM`); err != nil {
		return chrnerr.New(chrnerr.KindIO, "timeindex.Optimize", err)
	}
	return nil
}

// Checkpoint forces a WAL checkpoint.
func (idx *Index) Checkpoint() error {
	if _, err := idx.db.Exec(`PRAGMA wal_checkpoint(TRUNCATE);`); err != nil {
		return chrnerr.New(chrnerr.KindIO, "timeindex.Checkpoint", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (idx *Index) Close() error {
	if err := idx.db.Close(); err != nil {
		return chrnerr.New(chrnerr.KindIO, "timeindex.Close", err)
	}
	return nil
}
