package engine

import (
	"context"

	"github.com/marathon-track/split-crawler/internal/assets"
	"github.com/marathon-track/split-crawler/internal/clock"
	"github.com/marathon-track/split-crawler/internal/distance"
	"github.com/marathon-track/split-crawler/internal/model"
	"github.com/marathon-track/split-crawler/internal/predict"
	"github.com/marathon-track/split-crawler/internal/store"
)

// saveResults reduces one tick's crawlResults into a single batch
// write, backfilling any Finish split's net_time from already-persisted
// pass clocks, then enqueues certificate/live-photo downloads for
// participants who finished this tick — matching the source's
// "only download once finished" gate.
func (e *Engine) saveResults(ctx context.Context, m model.Marathon, participants []model.Participant, results []crawlResult) error {
	if len(results) == 0 {
		return nil
	}

	bibByID := make(map[int64]string, len(participants))
	totalKMByID := make(map[int64]*float64, len(participants))
	for _, p := range participants {
		bibByID[p.ID] = p.NameOrBibNo
		totalKMByID[p.ID] = p.RaceTotalKM
	}
	marathonTotal := m.TotalDistanceKM

	var batch store.Batch
	for _, r := range results {
		if r.RaceLabel != "" || r.RaceTotalKM != nil {
			batch.Meta = append(batch.Meta, store.MetaUpdate{
				ParticipantID: r.ParticipantID,
				RaceLabel:     r.RaceLabel,
				RaceTotalKM:   r.RaceTotalKM,
			})
		}

		totalKM := r.RaceTotalKM
		if totalKM == nil {
			totalKM = totalKMByID[r.ParticipantID]
		}
		if totalKM == nil && marathonTotal > 0 {
			totalKM = &marathonTotal
		}
		finished := predict.IsFinished(r.Splits, totalKM)

		for i, s := range r.Splits {
			if distance.IsFinishLabel(s.PointLabel) && s.PassClock != "" && !clock.LooksTime(s.NetTime) {
				if net, ok, err := e.store.CalcNetTimeFromClocks(ctx, r.ParticipantID); err == nil && ok {
					s.NetTime = net
					r.Splits[i] = s
				}
			}
			batch.Splits = append(batch.Splits, store.SplitUpsert{ParticipantID: r.ParticipantID, Split: s})
		}

		for _, a := range r.ImgAssets {
			if a.URL == "" {
				continue
			}
			batch.Assets = append(batch.Assets, store.AssetUpsert{ParticipantID: r.ParticipantID, Asset: a})

			if !finished {
				continue
			}
			bib := bibByID[r.ParticipantID]
			if bib == "" {
				continue
			}
			referer := buildURL(m.URLTemplate, bib, m.Usedata)
			e.pool.Enqueue(assets.Job{
				ParticipantID: r.ParticipantID,
				Kind:          a.Kind,
				Host:          a.Host,
				Usedata:       m.Usedata,
				Bib:           bib,
				ImageURL:      a.URL,
				Referer:       referer,
				Verify:        !e.cfg.InsecureHost(a.Host) && !e.cfg.InsecureSSL,
			})
		}
	}

	return e.store.ApplyBatch(ctx, batch)
}
