// Package store is the embedded persistence layer (C10): schema init and
// migration, batched upserts within one transaction per engine tick, and
// the net-time backfill query. Grounded on original_source/core/database.py
// and webapp/services/records.py, using modernc.org/sqlite (pure Go,
// no cgo) via database/sql.
package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"go.chromium.org/luci/common/errors"
)

// Store wraps the single shared *sql.DB handle. SQLite serializes
// writers internally; WAL mode (set on the DSN in Open) lets readers
// proceed concurrently with the one writer, matching the source's
// single-process, single-writer assumption.
type Store struct {
	db *sql.DB
}

// Open opens (and, for a new file, creates) the SQLite database at path.
// foreign_keys is required for the schema's ON DELETE CASCADE constraints
// (§3); busy_timeout gives the engine and the image-worker pool 5s to
// wait out each other's writes (§5) instead of failing with SQLITE_BUSY.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Annotate(err, "store: open %s", path).Err()
	}
	db.SetMaxOpenConns(1) // one writer; avoids SQLITE_BUSY under WAL
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) DB() *sql.DB {
	return s.db
}
