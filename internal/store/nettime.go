package store

import (
	"context"
	"database/sql"
	"fmt"
)

// calcNetTimeSQL is ported verbatim from
// webapp/services/records.py's CALC_NET_TIME_SQL: dedup each point_km to
// its most-recently-seen pass_clock, sum the gaps between consecutive
// points (handling a single midnight wraparound per gap), and return
// the total elapsed seconds.
const calcNetTimeSQL = `
WITH base AS (
  SELECT
    point_km,
    pass_clock,
    seen_at
  FROM splits
  WHERE participant_id = ?
    AND pass_clock IS NOT NULL
    AND LENGTH(pass_clock) >= 8
),
dedup AS (
  SELECT
    point_km,
    pass_clock,
    ROW_NUMBER() OVER (
      PARTITION BY point_km
      ORDER BY datetime(seen_at) DESC
    ) AS rn
  FROM base
),
ordered AS (
  SELECT point_km, pass_clock
  FROM dedup
  WHERE rn = 1
  ORDER BY point_km
),
parsed AS (
  SELECT point_km,
         (substr(pass_clock,1,2)*3600 + substr(pass_clock,4,2)*60 + substr(pass_clock,7,2)) AS sec
  FROM ordered
),
gaps AS (
  SELECT
         LAG(sec) OVER (ORDER BY point_km) AS prev_sec,
         CASE
           WHEN sec < LAG(sec) OVER (ORDER BY point_km) THEN (sec + 86400) - LAG(sec) OVER (ORDER BY point_km)
           ELSE sec - LAG(sec) OVER (ORDER BY point_km)
         END AS gap_sec,
         sec
  FROM parsed
)
SELECT SUM(gap_sec) AS total_seconds
FROM gaps
WHERE prev_sec IS NOT NULL;
`

// CalcNetTimeFromClocks runs calcNetTimeSQL for participantID and
// formats the resulting total as HH:MM:SS, or returns ok=false when
// there are fewer than two distinct deduplicated checkpoints (no gap
// to sum).
func (s *Store) CalcNetTimeFromClocks(ctx context.Context, participantID int64) (string, bool, error) {
	var totalSeconds sql.NullInt64
	row := s.db.QueryRowContext(ctx, calcNetTimeSQL, participantID)
	if err := row.Scan(&totalSeconds); err != nil {
		return "", false, err
	}
	if !totalSeconds.Valid {
		return "", false, nil
	}
	total := totalSeconds.Int64
	h := total / 3600
	m := (total % 3600) / 60
	sec := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, sec), true, nil
}
