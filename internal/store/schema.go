package store

// schemaSQL is ported near-verbatim from
// original_source/core/database.py's SCHEMA_SQL — SQL is language
// neutral, only the driver call convention changes. The `groups` table
// uses the later, simpler of the two definitions the source carries
// (no creator_user_id, no user_groups/track_followers companion
// tables), per the resolved Open Question in SPEC_FULL.md.
// journal_mode/foreign_keys/busy_timeout are set on the connection DSN
// in Open, not here.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS marathons (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT NOT NULL,
  url_template TEXT NOT NULL,
  usedata TEXT,
  total_distance_km REAL NOT NULL DEFAULT 21.1,
  refresh_sec INTEGER NOT NULL DEFAULT 60,
  enabled INTEGER NOT NULL DEFAULT 1,
  cert_url_template TEXT,
  event_date TEXT,
  updated_at TEXT,
  join_code TEXT UNIQUE,
  join_code_expires_at DATETIME,
  join_code_try_window_start DATETIME,
  join_code_try_count INTEGER DEFAULT 0
);

CREATE TABLE IF NOT EXISTS participants (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  marathon_id INTEGER NOT NULL REFERENCES marathons(id) ON DELETE CASCADE,
  alias TEXT,
  nameorbibno TEXT NOT NULL,
  active INTEGER NOT NULL DEFAULT 1,
  race_label TEXT,
  race_total_km REAL,
  cert_key TEXT,
  finish_image_url TEXT,
  finish_image_path TEXT,
  UNIQUE(marathon_id, nameorbibno)
);

CREATE TABLE IF NOT EXISTS splits (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  participant_id INTEGER NOT NULL REFERENCES participants(id) ON DELETE CASCADE,
  point_label TEXT NOT NULL,
  point_km REAL,
  net_time TEXT,
  pass_clock TEXT,
  pace TEXT,
  seen_at TEXT,
  UNIQUE(participant_id, point_label)
);

CREATE TABLE IF NOT EXISTS assets (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  participant_id INTEGER NOT NULL REFERENCES participants(id) ON DELETE CASCADE,
  kind TEXT NOT NULL,
  host TEXT,
  url TEXT,
  local_path TEXT,
  seen_at TEXT,
  UNIQUE(participant_id, kind)
);

CREATE TABLE IF NOT EXISTS groups (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  marathon_id INTEGER NOT NULL,
  name TEXT NOT NULL,
  group_code TEXT UNIQUE NOT NULL,
  enabled INTEGER NOT NULL DEFAULT 1,
  created_at TEXT,
  updated_at TEXT,
  FOREIGN KEY (marathon_id) REFERENCES marathons(id) ON DELETE CASCADE
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_groups_code ON groups(group_code);
`

// InitSchema runs schemaSQL. Safe to call on an already-initialized
// database: every statement is IF NOT EXISTS.
func (s *Store) InitSchema() error {
	_, err := s.db.Exec(schemaSQL)
	return err
}
