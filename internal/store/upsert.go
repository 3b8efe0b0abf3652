package store

import (
	"context"
	"database/sql"
	"time"

	"go.chromium.org/luci/common/errors"

	"github.com/marathon-track/split-crawler/internal/model"
)

// SplitUpsert is one (participant_id, split) pair queued for the batch
// write at the end of an engine tick.
type SplitUpsert struct {
	ParticipantID int64
	Split         model.Split
}

// AssetUpsert is one (participant_id, asset) pair queued for the batch
// write.
type AssetUpsert struct {
	ParticipantID int64
	Asset         model.Asset
}

// MetaUpdate is one participant's COALESCE-style race_label/race_total_km
// update, queued for the batch write alongside its splits and assets.
type MetaUpdate struct {
	ParticipantID int64
	RaceLabel     string
	RaceTotalKM   *float64
}

// Batch collects everything one engine tick produced, to be committed
// as a single transaction (§5: "one transaction per tick, not per
// participant"; §4.7 step 6 orders this meta -> splits -> assets).
type Batch struct {
	Meta   []MetaUpdate
	Splits []SplitUpsert
	Assets []AssetUpsert
}

// ApplyBatch commits every meta update, split upsert, and asset upsert
// in b within a single transaction, rolling back entirely on the first
// error so a tick never leaves partially-written state (§7).
func (s *Store) ApplyBatch(ctx context.Context, b Batch) error {
	if len(b.Meta) == 0 && len(b.Splits) == 0 && len(b.Assets) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Annotate(err, "store: begin batch tx").Err()
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)

	for _, mu := range b.Meta {
		if err := updateParticipantMeta(ctx, tx, mu.ParticipantID, mu.RaceLabel, mu.RaceTotalKM); err != nil {
			return errors.Annotate(err, "store: update participant meta").Err()
		}
	}
	for _, su := range b.Splits {
		if err := upsertSplit(ctx, tx, su.ParticipantID, su.Split, now); err != nil {
			return errors.Annotate(err, "store: upsert split").Err()
		}
	}
	for _, au := range b.Assets {
		if err := upsertAsset(ctx, tx, au.ParticipantID, au.Asset, now); err != nil {
			return errors.Annotate(err, "store: upsert asset").Err()
		}
		if au.Asset.Kind == model.AssetCertificate {
			if _, err := tx.ExecContext(ctx, `UPDATE participants SET finish_image_url=? WHERE id=?`,
				au.Asset.URL, au.ParticipantID); err != nil {
				return errors.Annotate(err, "store: mirror certificate url").Err()
			}
		}
	}

	return tx.Commit()
}

// updateParticipantMeta applies COALESCE-style updates for race_label
// and race_total_km inside tx, mirroring the source's "only overwrite
// if the new value is non-null" batch update.
func updateParticipantMeta(ctx context.Context, tx *sql.Tx, participantID int64, raceLabel string, raceTotalKM *float64) error {
	var labelArg interface{}
	if raceLabel != "" {
		labelArg = raceLabel
	}
	_, err := tx.ExecContext(ctx, `
		UPDATE participants
		SET race_label = COALESCE(?, race_label),
		    race_total_km = COALESCE(?, race_total_km)
		WHERE id = ?
	`, labelArg, raceTotalKM, participantID)
	return err
}

// upsertSplit conflicts on (participant_id, point_label) — a rerun of
// the same checkpoint refreshes its value and seen_at rather than
// duplicating a row, matching §3's split uniqueness invariant.
func upsertSplit(ctx context.Context, tx *sql.Tx, participantID int64, sp model.Split, seenAt string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO splits (participant_id, point_label, point_km, net_time, pass_clock, pace, seen_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(participant_id, point_label) DO UPDATE SET
			point_km=excluded.point_km,
			net_time=excluded.net_time,
			pass_clock=excluded.pass_clock,
			pace=excluded.pace,
			seen_at=excluded.seen_at
	`, participantID, sp.PointLabel, sp.PointKM, sp.NetTime, sp.PassClock, sp.Pace, seenAt)
	return err
}

// upsertAsset conflicts on (participant_id, kind): a participant has at
// most one certificate and one live-photo row tracked at a time.
func upsertAsset(ctx context.Context, tx *sql.Tx, participantID int64, a model.Asset, seenAt string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO assets (participant_id, kind, host, url, local_path, seen_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(participant_id, kind) DO UPDATE SET
			host=excluded.host,
			url=excluded.url,
			seen_at=excluded.seen_at
	`, participantID, string(a.Kind), a.Host, a.URL, a.LocalPath, seenAt)
	return err
}

// SetAssetLocalPath records the on-disk path once a certificate/
// live-photo download completes (internal/assets writes here after
// each successful fetch).
func (s *Store) SetAssetLocalPath(ctx context.Context, participantID int64, kind model.AssetKind, localPath string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Annotate(err, "store: begin set local path tx").Err()
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		UPDATE assets SET local_path=? WHERE participant_id=? AND kind=?
	`, localPath, participantID, string(kind)); err != nil {
		return errors.Annotate(err, "store: set asset local path").Err()
	}
	if kind == model.AssetCertificate {
		if _, err := tx.ExecContext(ctx, `
			UPDATE participants SET finish_image_path=? WHERE id=?
		`, localPath, participantID); err != nil {
			return errors.Annotate(err, "store: mirror certificate local path").Err()
		}
	}
	return tx.Commit()
}
