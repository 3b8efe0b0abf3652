package parsers

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/marathon-track/split-crawler/internal/clock"
	"github.com/marathon-track/split-crawler/internal/distance"
	"github.com/marathon-track/split-crawler/internal/model"
)

// MyResult parses myresult.co.kr's Ant Design table markup, or — when
// the browser worker fell back to capturing an XHR response instead of
// a rendered table — the "JSON::" prefixed payload via a recursive
// tagged-key walk. Grounded on original_source/parsers/myresult.py's
// MyResultParser.
type MyResult struct{}

func (MyResult) CanParse(host string) bool {
	return strings.Contains(strings.ToLower(host), "myresult.co.kr")
}

const jsonPrefix = "JSON::"

func (p MyResult) Parse(raw string, ctx Context) model.ParseResult {
	if strings.HasPrefix(raw, jsonPrefix) {
		return p.parseJSON(raw[len(jsonPrefix):])
	}
	return p.parseHTML(raw, ctx.Host)
}

func (p MyResult) parseHTML(raw, host string) model.ParseResult {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return model.ParseResult{}
	}

	splits := p.extractSplitsFromHTML(doc)
	assets := p.extractCertificate(doc, host)
	label, km := p.distanceFromDoc(doc)

	return model.ParseResult{
		Splits:      splits,
		Assets:      assets,
		RaceLabel:   label,
		RaceTotalKM: km,
	}
}

func (p MyResult) extractSplitsFromHTML(doc *goquery.Document) []model.Split {
	var splits []model.Split
	doc.Find(".table-row.ant-row").Each(func(_ int, row *goquery.Selection) {
		cols := cellTexts(row.Find(".ant-col"))
		if len(cols) < 4 {
			return
		}
		label := cleanValue(cols[0])
		clockText := cleanValue(cols[1])
		accText := cleanValue(cols[2])

		clockTime := clock.FirstTime(clockText)
		accTime := clock.FirstTime(accText)
		if clockTime == "" && accTime == "" {
			return
		}

		kmv, ok := distance.KMFromLabel(label)
		splits = append(splits, model.Split{
			PointLabel: label,
			PointKM:    kmPtr(kmv, ok),
			NetTime:    accTime,
			PassClock:  clockTime,
		})
	})
	return splits
}

func (p MyResult) extractCertificate(doc *goquery.Document, host string) []model.Asset {
	var assets []model.Asset
	seen := map[string]bool{}
	base := "https://" + orDefault(host, "www.myresult.co.kr")

	add := func(ref string) {
		if ref == "" {
			return
		}
		u := resolveURL(base, ref)
		if seen[u] {
			return
		}
		seen[u] = true
		assets = append(assets, model.Asset{Kind: model.AssetCertificate, Host: host, URL: u})
	}

	doc.Find(`img[src*="/upload/certificate/"]`).Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		add(src)
	})
	doc.Find(`a[href*="/upload/certificate/"]`).Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		add(href)
	})
	return assets
}

func (p MyResult) distanceFromDoc(doc *goquery.Document) (string, *float64) {
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

// ExtractMyResultFinishFromHTML recovers a Finish split from a directly
// rendered (non-JSON) myresult.co.kr page, for callers that already
// have a JSON-only payload missing the finish row and need to re-fetch
// the rendered HTML to backfill it. net_time comes from the page's
// "대회기록" (.ant-statistic) total, a separate scrape target from the
// "도착" (arrival) row, which supplies only pass_clock — mirroring
// original_source/crawler/engine.py's _handle_myresult_json, which
// calls extract_total_net_time(soup) for the total and only reads the
// 도착 row's own clock column.
func ExtractMyResultFinishFromHTML(html string) (model.Split, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return model.Split{}, false
	}

	total := extractTotalNetTime(doc)
	if !clock.LooksTime(total) {
		return model.Split{}, false
	}

	var finishClock string
	doc.Find(".table-row.ant-row").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		cols := cellTexts(row.Find(".ant-col"))
		if len(cols) < 4 || !strings.Contains(cols[0], "도착") {
			return true
		}
		finishClock = clock.FirstTime(cleanValue(cols[1]))
		return false
	})

	return model.Split{
		PointLabel: "Finish",
		NetTime:    total,
		PassClock:  finishClock,
	}, true
}

// extractTotalNetTime scrapes the "대회기록" (total record) statistic,
// rendered by Ant Design's Statistic component as a ".ant-statistic"
// block pairing a title with a value — grounded on the "대회기록:
// .ant-statistic (총 기록)" note in original_source/parsers/myresult.py's
// MyResultParser docstring. Only a block whose title mentions 대회기록
// is read, since the same page also renders unrelated ant-statistic
// blocks (e.g. rank, bib).
func extractTotalNetTime(doc *goquery.Document) string {
	var total string
	doc.Find(".ant-statistic").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		title := collapseWS(s.Find(".ant-statistic-title").Text())
		if !strings.Contains(title, "대회기록") {
			return true
		}
		value := collapseWS(s.Find(".ant-statistic-content").Text())
		if t := clock.FirstTime(value); t != "" {
			total = t
			return false
		}
		return true
	})
	return total
}

// JSON-payload parsing (parseJSON and its helpers) lives in jsonwalk.go.
