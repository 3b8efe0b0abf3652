package parsers

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/marathon-track/split-crawler/internal/clock"
	"github.com/marathon-track/split-crawler/internal/distance"
	"github.com/marathon-track/split-crawler/internal/model"
)

// SPCT parses spct.co.kr / time.spct.co.kr pages: a ".record" summary
// block (total net time, start/finish clock), a two-column section
// table ("Section N" / "clock (net)"), and a certificate image.
// Grounded on original_source/parsers/spct.py's SPCTParser.
type SPCT struct{}

func (SPCT) CanParse(host string) bool {
	h := strings.ToLower(host)
	return strings.Contains(h, "spct.co.kr")
}

var parenRx = regexp.MustCompile(`\(([^)]*)\)`)

func (p SPCT) Parse(raw string, ctx Context) model.ParseResult {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return model.ParseResult{}
	}

	summary := p.extractSummary(doc)
	splits := p.extractSplits(doc)
	splits = p.ensureFinishSplit(splits, summary)
	assets := p.extractCertificate(doc, ctx.Host)
	label, km := p.distanceFromDoc(doc)

	return model.ParseResult{
		Splits:      splits,
		Summary:     summary,
		Assets:      assets,
		RaceLabel:   label,
		RaceTotalKM: km,
	}
}

func (p SPCT) extractSummary(doc *goquery.Document) model.Summary {
	var summary model.Summary
	if t := doc.Find(".record .time").First(); t.Length() > 0 {
		summary.TotalNet = strings.TrimSpace(t.Text())
	}
	doc.Find(".record p").Each(func(_ int, el *goquery.Selection) {
		text := collapseWS(el.Text())
		switch {
		case strings.Contains(text, "Start Time"):
			if tt := clock.FirstTime(text); tt != "" {
				summary.StartTime = tt
			}
		case strings.Contains(text, "Finish Time"):
			if tt := clock.FirstTime(text); tt != "" {
				summary.FinishTime = tt
			}
		}
	})
	return summary
}

func (p SPCT) extractSplits(doc *goquery.Document) []model.Split {
	var splits []model.Split
	doc.Find("table tbody tr").Each(func(_ int, tr *goquery.Selection) {
		tds := tr.Find("td")
		if tds.Length() < 2 {
			return
		}
		cells := cellTexts(tds)
		label, value := cells[0], cells[1]

		netTime := ""
		if m := parenRx.FindStringSubmatch(value); m != nil {
			netTime = clock.FirstTime(m[1])
		}
		withoutParen := parenRx.ReplaceAllString(value, " ")
		passClock := clock.FirstTime(withoutParen)

		if netTime == "" && passClock == "" {
			return
		}
		kmv, ok := distance.KMFromLabel(label)
		splits = append(splits, model.Split{
			PointLabel: label,
			PointKM:    kmPtr(kmv, ok),
			NetTime:    netTime,
			PassClock:  passClock,
		})
	})
	return splits
}

// ensureFinishSplit backfills a synthetic Finish row from the summary
// block when no split row already names the finish, so downstream
// finish detection (internal/predict) always has something to look at.
func (p SPCT) ensureFinishSplit(splits []model.Split, summary model.Summary) []model.Split {
	hasFinish := false
	for _, s := range splits {
		if distance.IsFinishLabel(s.PointLabel) {
			hasFinish = true
			break
		}
	}
	if !hasFinish && (summary.TotalNet != "" || summary.FinishTime != "") {
		splits = append(splits, model.Split{
			PointLabel: "Finish",
			NetTime:    summary.TotalNet,
			PassClock:  summary.FinishTime,
		})
	}
	return splits
}

func (p SPCT) extractCertificate(doc *goquery.Document, host string) []model.Asset {
	img := doc.Find(".image-container img").First()
	if img.Length() == 0 {
		img = doc.Find(`img[src*="/PhotoResultsJPG/images/"]`).First()
	}
	src, ok := img.Attr("src")
	if !ok || src == "" {
		return nil
	}
	return []model.Asset{{Kind: model.AssetCertificate, Host: host, URL: src}}
}

func (p SPCT) distanceFromDoc(doc *goquery.Document) (string, *float64) {
	text := collapseWS(doc.Text())
	label, km, ok := distance.ExtractDistanceFromText(text)
	if !ok {
		return "", nil
	}
	if snapped, snapOK := distance.SnapDistance(km); snapOK {
		km = snapped
	}
	label = distance.CategoryFromKM(km)
	return label, &km
}
