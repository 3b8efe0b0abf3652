package store

import (
	"context"
	"database/sql"

	"go.chromium.org/luci/common/logging"
)

type columnDDL struct {
	table  string
	column string
	ddl    string
}

// migrations mirrors migrate_database()'s two add-column batches: the
// five participants columns and the six marathons columns (join-code
// fields included), applied only when the column is not already
// present — SQLite has no "ADD COLUMN IF NOT EXISTS".
var migrations = []columnDDL{
	{"participants", "race_label", "ALTER TABLE participants ADD COLUMN race_label TEXT"},
	{"participants", "race_total_km", "ALTER TABLE participants ADD COLUMN race_total_km REAL"},
	{"participants", "cert_key", "ALTER TABLE participants ADD COLUMN cert_key TEXT"},
	{"participants", "finish_image_url", "ALTER TABLE participants ADD COLUMN finish_image_url TEXT"},
	{"participants", "finish_image_path", "ALTER TABLE participants ADD COLUMN finish_image_path TEXT"},
	{"marathons", "cert_url_template", "ALTER TABLE marathons ADD COLUMN cert_url_template TEXT"},
	{"marathons", "event_date", "ALTER TABLE marathons ADD COLUMN event_date TEXT"},
	{"marathons", "join_code", "ALTER TABLE marathons ADD COLUMN join_code TEXT UNIQUE"},
	{"marathons", "join_code_expires_at", "ALTER TABLE marathons ADD COLUMN join_code_expires_at DATETIME"},
	{"marathons", "join_code_try_window_start", "ALTER TABLE marathons ADD COLUMN join_code_try_window_start DATETIME"},
	{"marathons", "join_code_try_count", "ALTER TABLE marathons ADD COLUMN join_code_try_count INTEGER DEFAULT 0"},
}

// Migrate applies every pending column-add migration, then creates the
// join_code index if that column exists. Idempotent: safe to run on
// every startup.
func (s *Store) Migrate(ctx context.Context) error {
	for _, m := range migrations {
		exists, err := columnExists(s.db, m.table, m.column)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		if _, err := s.db.ExecContext(ctx, m.ddl); err != nil {
			logging.Warningf(ctx, "store: migration %s.%s failed: %s", m.table, m.column, err)
		}
	}

	if exists, err := columnExists(s.db, "marathons", "join_code"); err == nil && exists {
		if _, err := s.db.ExecContext(ctx, "CREATE INDEX IF NOT EXISTS idx_marathons_join_code ON marathons(join_code)"); err != nil {
			logging.Warningf(ctx, "store: join_code index creation failed: %s", err)
		}
	}
	return nil
}

func columnExists(db *sql.DB, table, column string) (bool, error) {
	rows, err := db.Query("PRAGMA table_info('" + table + "')")
	if err != nil {
		return false, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return false, err
	}
	values := make([]interface{}, len(cols))
	scanDest := make([]interface{}, len(cols))
	for i := range values {
		scanDest[i] = &values[i]
	}
	nameIdx := indexOf(cols, "name")

	for rows.Next() {
		if err := rows.Scan(scanDest...); err != nil {
			return false, err
		}
		if nameIdx >= 0 {
			if name, ok := values[nameIdx].(string); ok && name == column {
				return true, nil
			}
			if b, ok := values[nameIdx].([]byte); ok && string(b) == column {
				return true, nil
			}
		}
	}
	return false, rows.Err()
}

func indexOf(ss []string, v string) int {
	for i, s := range ss {
		if s == v {
			return i
		}
	}
	return -1
}
