package parsers

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/marathon-track/split-crawler/internal/clock"
	"github.com/marathon-track/split-crawler/internal/distance"
	"github.com/marathon-track/split-crawler/internal/model"
)

// Generic is the host-agnostic fallback used when no registered
// provider claims a host (§4.4's "unknown hosts fall back to a generic
// table scrape"): any HTML table row whose first cell is a non-time
// label and whose remaining cells carry at least one clock-shaped value
// becomes a split (first time -> net_time, second -> pass_clock).
type Generic struct{}

func (Generic) CanParse(string) bool { return true }

func (Generic) Parse(raw string, ctx Context) model.ParseResult {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return model.ParseResult{}
	}

	var splits []model.Split
	doc.Find("table tr").Each(func(_ int, tr *goquery.Selection) {
		cells := cellTexts(tr.Find("td,th"))
		if len(cells) < 2 {
			return
		}
		var times []string
		label := cells[0]
		for _, c := range cells[1:] {
			if t := clock.FirstTime(c); t != "" {
				times = append(times, t)
			}
		}
		if len(times) == 0 || !looksLikeLabel(label) {
			return
		}
		kmv, ok := distance.KMFromLabel(label)
		split := model.Split{PointLabel: label, PointKM: kmPtr(kmv, ok)}
		switch len(times) {
		case 1:
			split.NetTime = times[0]
		default:
			split.NetTime = times[0]
			split.PassClock = times[1]
		}
		splits = append(splits, split)
	})

	label, km := genericDistance(doc)
	return model.ParseResult{Splits: splits, RaceLabel: label, RaceTotalKM: km}
}

func looksLikeLabel(s string) bool {
	s = strings.TrimSpace(s)
	return s != "" && clock.FirstTime(s) == ""
}

func genericDistance(doc *goquery.Document) (string, *float64) {
	text := collapseWS(doc.Text())
	label, km, ok := distance.ExtractDistanceFromText(text)
	if !ok {
		return "", nil
	}
	return label, &km
}
