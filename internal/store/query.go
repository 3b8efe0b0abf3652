package store

import (
	"context"
	"database/sql"
	"time"

	"go.chromium.org/luci/common/errors"

	"github.com/marathon-track/split-crawler/internal/model"
)

// ListEnabledMarathons returns every marathon with enabled=1, the
// engine's outer loop iteration set (§5's "active marathons" query).
func (s *Store) ListEnabledMarathons(ctx context.Context) ([]model.Marathon, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, url_template, usedata, total_distance_km, refresh_sec,
		       enabled, cert_url_template, event_date, join_code
		FROM marathons WHERE enabled=1
	`)
	if err != nil {
		return nil, errors.Annotate(err, "store: list enabled marathons").Err()
	}
	defer rows.Close()

	var out []model.Marathon
	for rows.Next() {
		var m model.Marathon
		var usedata, certTpl, eventDate, joinCode *string
		var enabled int
		if err := rows.Scan(&m.ID, &m.Name, &m.URLTemplate, &usedata, &m.TotalDistanceKM,
			&m.RefreshSec, &enabled, &certTpl, &eventDate, &joinCode); err != nil {
			return nil, errors.Annotate(err, "store: scan marathon").Err()
		}
		m.Enabled = enabled != 0
		m.Usedata = derefStr(usedata)
		m.CertURLTemplate = derefStr(certTpl)
		m.JoinCode = derefStr(joinCode)
		m.EventDate = parseEventDate(derefStr(eventDate))
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListActiveParticipants returns every active=1 participant of a
// marathon.
func (s *Store) ListActiveParticipants(ctx context.Context, marathonID int64) ([]model.Participant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, marathon_id, alias, nameorbibno, active, race_label,
		       race_total_km, cert_key, finish_image_url, finish_image_path
		FROM participants WHERE marathon_id=? AND active=1
	`, marathonID)
	if err != nil {
		return nil, errors.Annotate(err, "store: list active participants").Err()
	}
	defer rows.Close()

	var out []model.Participant
	for rows.Next() {
		var p model.Participant
		var alias, raceLabel, certKey, finURL, finPath *string
		var raceTotalKM *float64
		var active int
		if err := rows.Scan(&p.ID, &p.MarathonID, &alias, &p.NameOrBibNo, &active,
			&raceLabel, &raceTotalKM, &certKey, &finURL, &finPath); err != nil {
			return nil, errors.Annotate(err, "store: scan participant").Err()
		}
		p.Active = active != 0
		p.Alias = derefStr(alias)
		p.RaceLabel = derefStr(raceLabel)
		p.RaceTotalKM = raceTotalKM
		p.CertKey = derefStr(certKey)
		p.FinishImageURL = derefStr(finURL)
		p.FinishImagePath = derefStr(finPath)
		out = append(out, p)
	}
	return out, rows.Err()
}

// ParticipantAssetLocalPath returns the recorded local_path for a
// participant's asset of the given kind, used by the image worker pool
// to skip a re-download when a file already exists on disk.
func (s *Store) ParticipantAssetLocalPath(ctx context.Context, participantID int64, kind model.AssetKind) (string, bool, error) {
	var path *string
	err := s.db.QueryRowContext(ctx, `
		SELECT local_path FROM assets WHERE participant_id=? AND kind=?
	`, participantID, string(kind)).Scan(&path)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, err
	}
	return derefStr(path), path != nil, nil
}

func derefStr(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// parseEventDate parses the stored "YYYY-MM-DD" event date, matching
// §4.6's "ignore the date gate on a malformed value" fallback.
func parseEventDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil
	}
	return &t
}
