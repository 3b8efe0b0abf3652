// Package records is the read-only "best record per participant"
// aggregation (C12), grounded on
// original_source/webapp/services/records.py's RecordsService.
package records

import (
	"math"
	"sort"
	"strings"

	"github.com/marathon-track/split-crawler/internal/clock"
	"github.com/marathon-track/split-crawler/internal/distance"
	"github.com/marathon-track/split-crawler/internal/model"
	"github.com/marathon-track/split-crawler/internal/predict"
)

// Best is one participant's display-ready best record.
type Best struct {
	PointLabel string
	Record     string
	Clock      string
}

// PickBest selects the participant's "best" record per §4.9: the last
// split with a finish label, falling back to the absolute last split;
// its net_time is the displayed record unless it isn't time-shaped, in
// which case the absolute last split's net_time is tried instead.
func PickBest(splits []model.Split) (Best, bool) {
	if len(splits) == 0 {
		return Best{}, false
	}

	best := splits[len(splits)-1]
	for i := len(splits) - 1; i >= 0; i-- {
		if distance.IsFinishLabel(splits[i].PointLabel) {
			best = splits[i]
			break
		}
	}

	record := strings.TrimSpace(best.NetTime)
	if !clock.LooksTime(record) {
		record = strings.TrimSpace(splits[len(splits)-1].NetTime)
	}
	clk := strings.TrimSpace(best.PassClock)

	out := Best{PointLabel: best.PointLabel}
	if clock.LooksTime(record) {
		out.Record = record
	}
	if clock.LooksTime(clk) {
		out.Clock = clk
	}
	return out, true
}

// Item is one row of the records view, already joined with its
// marathon and certificate.
type Item struct {
	Name      string
	Category  string
	Distance  float64
	Marathon  string
	Record    string
	Clock     string
	CertWeb   string
	Finished  bool
}

// BuildItem assembles one display row from a participant, its splits,
// its marathon, and a resolved certificate URL (already chosen by the
// caller between the local static path and the upstream URL — a
// filesystem concern that belongs to internal/assets, not here).
func BuildItem(p model.Participant, marathonName string, defaultKM float64, splits []model.Split, certWeb string) Item {
	name := strings.TrimSpace(p.Alias)
	if name == "" {
		name = strings.TrimSpace(p.NameOrBibNo)
	}

	dist := defaultKM
	if p.RaceTotalKM != nil {
		dist = *p.RaceTotalKM
	}
	label := strings.TrimSpace(p.RaceLabel)
	if label == "" {
		label = distance.LabelForDistance(dist, true)
	}

	item := Item{
		Name:     name,
		Category: label,
		Distance: dist,
		Marathon: marathonName,
		CertWeb:  certWeb,
	}

	if best, ok := PickBest(splits); ok {
		item.Record = best.Record
		item.Clock = best.Clock
	}
	totalKM := p.RaceTotalKM
	if totalKM == nil {
		totalKM = &defaultKM
	}
	item.Finished = predict.IsFinished(splits, totalKM)
	return item
}

// Sort orders items by name ascending, distance descending, record (in
// seconds, missing/unparseable sorts as +Inf) ascending — §4.9's
// _sort_key.
func Sort(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		if a.Distance != b.Distance {
			return a.Distance > b.Distance
		}
		return recordSeconds(a.Record) < recordSeconds(b.Record)
	})
}

func recordSeconds(record string) float64 {
	sec, ok := clock.ParseDurationSeconds(record)
	if !ok {
		return math.Inf(1)
	}
	return float64(sec)
}
