// Package predict implements finish detection, predicted-finish-time
// math, and the in-memory net-time clock-gap backfill (C11). Grounded
// on original_source/webapp/services/prediction.py's PredictionService.
package predict

import (
	"sort"

	"github.com/marathon-track/split-crawler/internal/clock"
	"github.com/marathon-track/split-crawler/internal/distance"
	"github.com/marathon-track/split-crawler/internal/model"
)

// hasAnyTime reports whether a split carries any time-shaped value at
// all — the loose "carries any time value" test of §4.8's cascade.
func hasAnyTime(s model.Split) bool {
	return clock.LooksTime(s.NetTime) || clock.LooksTime(s.PassClock) ||
		s.NetTime != "" || s.PassClock != ""
}

// CheckFinish runs the three-rule cascade of §4.8 in order, returning
// the index of the split that establishes finish, or -1 if not
// finished.
func CheckFinish(splits []model.Split, totalKM *float64) int {
	// Rule 1: any split whose label matches finish keywords.
	for i, s := range splits {
		if distance.IsFinishLabel(s.PointLabel) && hasAnyTime(s) {
			return i
		}
	}

	// Rule 2: scan in reverse; any split within tolerance of the
	// (snapped) total distance, carrying any time value.
	if totalKM != nil {
		snapped := *totalKM
		if s, ok := distance.SnapDistance(snapped); ok {
			snapped = s
		}
		tol := distance.ToleranceFor(snapped)
		for i := len(splits) - 1; i >= 0; i-- {
			sp := splits[i]
			if sp.PointKM == nil {
				continue
			}
			if absF(*sp.PointKM-*totalKM) <= tol && hasAnyTime(sp) {
				return i
			}
		}
	}

	// Rule 3: last split's progress ratio >= 0.9, with any time value.
	if totalKM != nil && *totalKM > 0 && len(splits) > 0 {
		last := splits[len(splits)-1]
		if last.PointKM != nil && *last.PointKM/(*totalKM) >= 0.9 && hasAnyTime(last) {
			return len(splits) - 1
		}
	}

	return -1
}

func absF(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// IsFinished is a convenience wrapper around CheckFinish.
func IsFinished(splits []model.Split, totalKM *float64) bool {
	return CheckFinish(splits, totalKM) >= 0
}

// Prediction is the not-finished-path forecast of §4.8: a predicted
// cumulative net time and wall-clock ETA, both best-effort.
type Prediction struct {
	FinishNet string
	FinishETA string
	HasNet    bool
	HasETA    bool
}

// Predict computes the pace-based forecast from the last split. Returns
// a zero-value Prediction (both Has* false) when there isn't enough
// data to extrapolate from (no splits, or no total distance).
func Predict(splits []model.Split, totalKM *float64) Prediction {
	if len(splits) == 0 || totalKM == nil {
		return Prediction{}
	}
	last := splits[len(splits)-1]
	if last.PointKM == nil {
		return Prediction{}
	}

	spk, ok := clock.SecPerKM(last.Pace)
	if !ok {
		spk, ok = meanSecPerKM(splits)
		if !ok {
			return Prediction{}
		}
	}

	remaining := *totalKM - *last.PointKM
	if remaining < 0 {
		remaining = 0
	}
	deltaSec := int(remaining * spk)

	var pred Prediction
	if lastNetSec, ok := clock.ParseDurationSeconds(last.NetTime); ok {
		pred.FinishNet = clock.FormatDuration(lastNetSec + deltaSec)
		pred.HasNet = true
	}
	if eta, ok := clock.ETAFromClock(last.PassClock, deltaSec); ok {
		pred.FinishETA = eta
		pred.HasETA = true
	}
	return pred
}

func meanSecPerKM(splits []model.Split) (float64, bool) {
	var sum float64
	var n int
	for _, s := range splits {
		if v, ok := clock.SecPerKM(s.Pace); ok {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// clockPoint is one deduplicated (point_km, pass_clock) pair used by
// BackfillNetTimeFromClocks — the in-memory twin of
// internal/store's CalcNetTimeFromClocks SQL query, for callers that
// already hold the split slice in memory within a single engine tick.
type clockPoint struct {
	km  float64
	sec int
}

// BackfillNetTimeFromClocks orders splits by point_km, deduplicates by
// keeping the most-recently-seen pass_clock per point_km, then sums
// adjacent clock deltas (adding 86400s on a backward jump) to produce
// a total duration formatted HH:MM:SS. Returns ok=false when fewer than
// two distinct points are available.
func BackfillNetTimeFromClocks(splits []model.Split) (string, bool) {
	byKM := map[float64]model.Split{}
	for _, s := range splits {
		if s.PointKM == nil || s.PassClock == "" {
			continue
		}
		existing, ok := byKM[*s.PointKM]
		if !ok || s.SeenAt.After(existing.SeenAt) {
			byKM[*s.PointKM] = s
		}
	}
	if len(byKM) < 2 {
		return "", false
	}

	points := make([]clockPoint, 0, len(byKM))
	for km, s := range byKM {
		sec, ok := clock.ClockToSecondsOfDay(s.PassClock)
		if !ok {
			continue
		}
		points = append(points, clockPoint{km: km, sec: sec})
	}
	if len(points) < 2 {
		return "", false
	}
	sort.Slice(points, func(i, j int) bool { return points[i].km < points[j].km })

	total := 0
	for i := 1; i < len(points); i++ {
		gap := points[i].sec - points[i-1].sec
		if gap < 0 {
			gap += 86400
		}
		total += gap
	}
	return clock.FormatHMS(total), true
}
