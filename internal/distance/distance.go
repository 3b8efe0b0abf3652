// Package distance maps between km values, race labels ("Full", "Half",
// "10K", ...), snaps observed distances to a standard set, and detects
// finish-keyword labels. Grounded on utils/distance_utils.py and
// config/constants.py.
package distance

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/marathon-track/split-crawler/internal/model"
)

const (
	HalfKM = 21.0
	FullKM = 42.1
)

// StandardDistances is the canonical set race totals snap to when within
// SnapEpsilon.
var StandardDistances = []float64{5.0, 10.0, 21.1, 42.2, 50.0, 100.0, 109.0}

const SnapEpsilon = 0.6

// Tolerance is one band of the finish-distance tolerance table, keyed by
// a half-open [Min, Max) km range.
type Tolerance struct {
	Min, Max float64
	Km       float64
}

const mathInf = 1 << 60

// ToleranceTable gives the acceptable km distance between a split's point_km
// and the race's total distance for that split to count as a finish,
// indexed by the (snapped) total distance. Order matters: first match wins.
var ToleranceTable = []Tolerance{
	{0, 5, 0.4},
	{5, 10, 0.6},
	{10, 15, 1.0},
	{15, 20, 0.8},
	{20, 40, 0.8},
	{40, mathInf, 3.0},
}

// ToleranceFor returns the finish tolerance in km for a given snapped total
// distance, per §3's band table.
func ToleranceFor(snappedTotalKM float64) float64 {
	for _, band := range ToleranceTable {
		if snappedTotalKM >= band.Min && snappedTotalKM < band.Max {
			return band.Km
		}
	}
	return 0.5
}

var kmLabelRx = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*km`)
var numericOnlyRx = regexp.MustCompile(`^(\d+(?:\.\d+)?)$`)
var kmOrKRx = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(?:k|km)\b`)

// KMFromLabel extracts a km value from a point label such as "5km",
// "10.5 km" or a bare "42.195". Returns ok=false when no number is present
// (e.g. "Section 1" — distance genuinely unknown, not zero).
func KMFromLabel(label string) (float64, bool) {
	if label == "" {
		return 0, false
	}
	if m := kmLabelRx.FindStringSubmatch(label); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			return v, true
		}
	}
	if m := numericOnlyRx.FindStringSubmatch(strings.TrimSpace(label)); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			return v, true
		}
	}
	return 0, false
}

// SnapDistance rounds km to the nearest StandardDistances entry when within
// SnapEpsilon; otherwise returns km unchanged. Returns ok=false for km<=0.
func SnapDistance(km float64) (float64, bool) {
	if km <= 0 {
		return 0, false
	}
	best := StandardDistances[0]
	bestDiff := absF(best - km)
	for _, d := range StandardDistances[1:] {
		if diff := absF(d - km); diff < bestDiff {
			best, bestDiff = d, diff
		}
	}
	if bestDiff <= SnapEpsilon {
		return best, true
	}
	return km, true
}

func absF(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// ExtractDistanceFromText finds a distance keyword or number+unit pattern
// in free text, returning a label and km value. Used by Provider-S header
// extraction and Provider-P whole-page scraping.
func ExtractDistanceFromText(text string) (label string, km float64, ok bool) {
	t := strings.ToLower(strings.TrimSpace(text))
	if regexp.MustCompile(`\b(full|\x{D480}\x{CF54}\x{C2A4}|\x{D480})\b`).MatchString(t) {
		return "Full", FullKM, true
	}
	if regexp.MustCompile(`\b(half|\x{D558}\x{D504})\b`).MatchString(t) {
		return "Half", HalfKM, true
	}
	if m := kmOrKRx.FindStringSubmatch(t); m != nil {
		v, err := strconv.ParseFloat(m[1], 64)
		if err == nil {
			return fmt.Sprintf("%gK", v), v, true
		}
	}
	return "", 0, false
}

// CategoryFromKM infers a short race-category label purely from a km
// number, with generous matching bands.
func CategoryFromKM(km float64) string {
	switch {
	case km >= 39.0 && km <= 45.0:
		return "Full"
	case km >= 20.0 && km <= 22.8:
		return "Half"
	case km >= 9.0 && km <= 11.5:
		return "10km"
	case km >= 4.0 && km <= 6.5:
		return "5km"
	default:
		return fmt.Sprintf("%gkm", km)
	}
}

// LabelForDistance gives a display label for a race's total distance,
// used by the Records view when no explicit race_label is set.
func LabelForDistance(d float64, known bool) string {
	if !known {
		return "Unknown"
	}
	switch {
	case absF(d-42.195) <= 0.5:
		return "Full"
	case absF(d-32.0) <= 0.5:
		return "32K"
	case absF(d-21.1) <= 0.4:
		return "Half"
	case absF(d-10.0) <= 0.3:
		return "10K"
	case absF(d-5.0) <= 0.25:
		return "5K"
	case absF(d-3.0) <= 0.2:
		return "3K"
	default:
		return fmt.Sprintf("%gK", d)
	}
}

// Finish keywords, Korean and English (§4.5). Each Korean literal is
// followed by an English gloss.
var finishKeywordsKO = []string{
	"도착", // 도착 (arrival)
	"완주", // 완주 (finish the course)
	"골인", // 골인 (goal-in)
	"결승", // 결승 (finish line)
	"피니시", // 피니시 (finish, loanword)
}
var finishKeywordsEN = []string{"finish", "goal", "completed", "end"}

var zwspRx = regexp.MustCompile(`[\x{200B}\x{200C}\x{200D}\x{FEFF}]`)
var wsRx = regexp.MustCompile(`\s+`)

// CleanLabel normalizes a point label: strips zero-width characters,
// collapses NBSP and runs of whitespace to single spaces, trims ends.
func CleanLabel(s string) string {
	s = zwspRx.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, " ", " ")
	s = strings.TrimSpace(s)
	return wsRx.ReplaceAllString(s, " ")
}

// IsFinishLabel reports whether a (not necessarily cleaned) label matches
// any Korean or English finish keyword, substring-wise.
func IsFinishLabel(label string) bool {
	raw := CleanLabel(label)
	low := strings.ToLower(raw)
	for _, k := range finishKeywordsKO {
		if strings.Contains(raw, k) {
			return true
		}
	}
	for _, k := range finishKeywordsEN {
		if strings.Contains(low, k) {
			return true
		}
	}
	return false
}

// NormalizeBib zero-pads a numeric bib to 6 characters when host contains
// "spct"; non-numeric bibs and non-spct hosts pass through unchanged.
// Grounded on spec.md §3's BIB normalization invariant.
func NormalizeBib(host, bib string) string {
	if !strings.Contains(strings.ToLower(host), "spct") {
		return bib
	}
	if bib == "" || !isAllDigits(bib) {
		return bib
	}
	for len(bib) < 6 {
		bib = "0" + bib
	}
	return bib
}

// EnsureFinishLabel promotes the last split's label to "Finish" when it
// isn't already finish-keyword-matched but its point_km is close enough
// to the race's total distance (or, when the total is unknown, falls
// within the marathon-distance band), per §4.5.
func EnsureFinishLabel(splits []model.Split, raceTotalKM *float64) []model.Split {
	if len(splits) == 0 {
		return splits
	}
	last := &splits[len(splits)-1]
	if IsFinishLabel(last.PointLabel) {
		return splits
	}
	if last.PointKM == nil {
		return splits
	}
	km := *last.PointKM
	switch {
	case raceTotalKM != nil && km >= *raceTotalKM-1.0:
		last.PointLabel = "Finish"
	case raceTotalKM == nil && km >= 41.5 && km <= 43.0:
		last.PointLabel = "Finish"
	}
	return splits
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
