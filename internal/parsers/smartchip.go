package parsers

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/marathon-track/split-crawler/internal/clock"
	"github.com/marathon-track/split-crawler/internal/distance"
	"github.com/marathon-track/split-crawler/internal/model"
)

// Smartchip parses smartchip.co.kr's three known split-table layouts
// (v1 table.result-table, v2 POINT/TIME/TIME OF DAY/PACE header, v3
// repeated td.userinfo cells), tried in that order, plus asset and
// distance extraction. Grounded on
// original_source/parsers/smartchip.py's SmartchipParser.
type Smartchip struct{}

func (Smartchip) CanParse(host string) bool {
	return strings.Contains(strings.ToLower(host), "smartchip.co.kr")
}

var kmLabelRx = regexp.MustCompile(`(?i)\d+(?:\.\d+)?\s*(?:km|k)\b`)

func (p Smartchip) Parse(raw string, ctx Context) model.ParseResult {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return model.ParseResult{}
	}

	splits := p.parseTable(doc)
	assets := p.extractAssets(doc, ctx.Host)
	label, km := p.distanceFromDoc(doc, splits)

	result := model.ParseResult{
		Splits:      splits,
		Assets:      assets,
		RaceLabel:   label,
		RaceTotalKM: km,
	}
	return result
}

// parseTable tries v1, then v2, then v3, keeping the first format that
// yields rows (original_source/parsers/smartchip.py's _parse_table).
func (p Smartchip) parseTable(doc *goquery.Document) []model.Split {
	if rows := p.parseTableV1(doc); len(rows) > 0 {
		return rows
	}
	if rows := p.parseTableV2(doc); len(rows) > 0 {
		return rows
	}
	return p.parseTableV3(doc)
}

func (p Smartchip) parseTableV1(doc *goquery.Document) []model.Split {
	table := doc.Find("table.result-table").First()
	if table.Length() == 0 {
		return nil
	}
	var rows []model.Split
	trs := table.Find("tr")
	trs.Each(func(i int, tr *goquery.Selection) {
		if i == 0 {
			return // header
		}
		tds := tr.Find("td")
		if tds.Length() < 4 {
			return
		}
		cells := cellTexts(tds)
		point, net, clk, pace := cells[0], cells[1], cells[2], cells[3]
		kmv, ok := distance.KMFromLabel(point)
		rows = append(rows, model.Split{
			PointLabel: point,
			PointKM:    kmPtr(kmv, ok),
			NetTime:    net,
			PassClock:  clk,
			Pace:       pace,
		})
	})
	return rows
}

var requiredV2Headers = []string{"POINT", "TIME", "TIME OF DAY", "PACE"}

func (p Smartchip) parseTableV2(doc *goquery.Document) []model.Split {
	table, headerIdx := findTableWithHeaders(doc, requiredV2Headers)
	if table == nil {
		return nil
	}
	colIdx := map[string]int{}
	for _, name := range requiredV2Headers {
		colIdx[name] = indexOfStr(headerIdx, name)
	}

	var rows []model.Split
	dataStarted := false
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		cols := cellTexts(tr.Find("td,th"))
		if !dataStarted {
			for _, c := range cols {
				if isHeaderToken(strings.ToUpper(c)) {
					dataStarted = true
					break
				}
			}
			return
		}
		if len(cols) == 0 {
			return
		}
		point := colValue(cols, colIdx["POINT"])
		net := colValue(cols, colIdx["TIME"])
		clk := colValue(cols, colIdx["TIME OF DAY"])
		pace := colValue(cols, colIdx["PACE"])
		if point == "" || (net == "" && clk == "" && pace == "") {
			return
		}
		kmv, ok := distance.KMFromLabel(point)
		rows = append(rows, model.Split{
			PointLabel: point,
			PointKM:    kmPtr(kmv, ok),
			NetTime:    net,
			PassClock:  clk,
			Pace:       pace,
		})
	})
	return rows
}

func isHeaderToken(s string) bool {
	for _, h := range requiredV2Headers {
		if s == h {
			return true
		}
	}
	return false
}

func (p Smartchip) parseTableV3(doc *goquery.Document) []model.Split {
	var rows []model.Split
	doc.Find("table tr").Each(func(_ int, tr *goquery.Selection) {
		tds := tr.Find("td.userinfo")
		if tds.Length() < 4 {
			return
		}
		cells := cellTexts(tds)
		point := cells[0]
		if !kmLabelRx.MatchString(point) {
			return
		}
		net, clk, pace := cells[1], cells[2], cells[3]
		netTime := clock.FirstTime(net)
		if netTime == "" {
			netTime = net
		}
		passClock := clock.FirstTime(clk)
		if passClock == "" {
			passClock = clk
		}
		kmv, ok := distance.KMFromLabel(point)
		rows = append(rows, model.Split{
			PointLabel: point,
			PointKM:    kmPtr(kmv, ok),
			NetTime:    netTime,
			PassClock:  passClock,
			Pace:       pace,
		})
	})
	return rows
}

func (p Smartchip) extractAssets(doc *goquery.Document, host string) []model.Asset {
	var assets []model.Asset
	seen := map[string]bool{}
	base := "https://" + orDefault(host, "smartchip.co.kr")

	doc.Find(`a[href*="certificate"]`).Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok || href == "" {
			return
		}
		u := resolveURL(base, href)
		if seen[u] {
			return
		}
		seen[u] = true
		assets = append(assets, model.Asset{Kind: model.AssetCertificate, Host: host, URL: u})
	})

	doc.Find(`img[src*="livephoto"]`).Each(func(_ int, img *goquery.Selection) {
		src, ok := img.Attr("src")
		if !ok || src == "" {
			return
		}
		u := resolveURL(base, src)
		if seen[u] {
			return
		}
		seen[u] = true
		assets = append(assets, model.Asset{Kind: model.AssetLivephoto, Host: host, URL: u})
	})

	return assets
}

// distanceFromDoc follows the header -> iframe -> max-table-km priority
// of original_source/parsers/smartchip.py's
// _extract_and_normalize_distance.
func (p Smartchip) distanceFromDoc(doc *goquery.Document, splits []model.Split) (string, *float64) {
	label, km, ok := distanceFromHeader(doc)
	if !ok {
		label, km, ok = distanceFromIframe(doc)
	}
	if !ok && len(splits) > 0 {
		var max float64
		found := false
		for _, s := range splits {
			if s.PointKM != nil && (!found || *s.PointKM > max) {
				max = *s.PointKM
				found = true
			}
		}
		if found {
			km = max
			ok = true
		}
	}
	if !ok || km < 1.0 {
		return "", nil
	}
	if snapped, snapOK := distance.SnapDistance(km); snapOK {
		km = snapped
	}
	label = distance.CategoryFromKM(km)
	return label, &km
}

func distanceFromHeader(doc *goquery.Document) (string, float64, bool) {
	sel := doc.Find("h6.green, .green, h6")
	var label string
	var km float64
	var ok bool
	sel.EachWithBreak(func(_ int, el *goquery.Selection) bool {
		txt := strings.ToLower(collapseWS(el.Text()))
		l, k, o := distance.ExtractDistanceFromText(txt)
		if o {
			label, km, ok = l, k, o
			return false
		}
		return true
	})
	return label, km, ok
}

func distanceFromIframe(doc *goquery.Document) (string, float64, bool) {
	iframe := doc.Find(`iframe#main_frame[src*="rallyname="], iframe[src*="rallyname="]`).First()
	src, exists := iframe.Attr("src")
	if !exists || src == "" {
		return "", 0, false
	}
	u, err := url.Parse(src)
	if err != nil {
		return "", 0, false
	}
	rallyname := u.Query().Get("rallyname")
	return distance.ExtractDistanceFromText(rallyname)
}

// --- shared goquery helpers used by smartchip.go, spct.go, myresult.go ---

func cellTexts(sel *goquery.Selection) []string {
	out := make([]string, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		out = append(out, collapseWS(s.Text()))
	})
	return out
}

func colValue(cols []string, idx int) string {
	if idx < 0 || idx >= len(cols) {
		return ""
	}
	return cols[idx]
}

func indexOfStr(ss []string, v string) int {
	for i, s := range ss {
		if s == v {
			return i
		}
	}
	return -1
}

func findTableWithHeaders(doc *goquery.Document, required []string) (*goquery.Selection, []string) {
	var found *goquery.Selection
	var headers []string
	doc.Find("table tr").EachWithBreak(func(_ int, tr *goquery.Selection) bool {
		cols := cellTexts(tr.Find("td,th"))
		upper := make([]string, len(cols))
		for i, c := range cols {
			upper[i] = strings.ToUpper(c)
		}
		if containsAll(upper, required) {
			found = tr.Closest("table")
			headers = upper
			return false
		}
		return true
	})
	if found == nil {
		return nil, nil
	}
	return found, headers
}

func containsAll(haystack, needles []string) bool {
	for _, n := range needles {
		if indexOfStr(haystack, n) < 0 {
			return false
		}
	}
	return true
}

func resolveURL(base, ref string) string {
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func kmPtr(v float64, ok bool) *float64 {
	if !ok {
		return nil
	}
	return &v
}
