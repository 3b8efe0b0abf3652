package parsers

import (
	"encoding/json"
	"strings"

	"github.com/marathon-track/split-crawler/internal/clock"
	"github.com/marathon-track/split-crawler/internal/distance"
	"github.com/marathon-track/split-crawler/internal/model"
)

// Recursive tagged-node walk over the "JSON::" payload myresult.co.kr's
// browser worker captures when it falls back to an XHR response instead
// of a rendered table. Grounded on original_source/parsers/myresult.py's
// _extract_label_from_dict / JSON tree traversal.

var labelKeywords = []string{"구간명", "섹션", "지점", "label", "section"}
var clockKeywords = []string{"통과시간", "시각", "clock", "passtime", "pass_time"}
var accKeywords = []string{"누적기록", "누적", "acc", "acctime", "total", "cumulative"}

func (p MyResult) parseJSON(jsonStr string) model.ParseResult {
	var obj interface{}
	if err := json.Unmarshal([]byte(jsonStr), &obj); err != nil {
		return model.ParseResult{}
	}

	var splits []model.Split
	var assets []model.Asset

	var walk func(x interface{})
	walk = func(x interface{}) {
		switch v := x.(type) {
		case map[string]interface{}:
			label, hasLabel := extractLabelFromDict(v)
			clk := extractKeywordTime(v, clockKeywords)
			acc := extractKeywordTime(v, accKeywords)
			if hasLabel && (clk != "" || acc != "") {
				kmv, ok := distance.KMFromLabel(label)
				splits = append(splits, model.Split{
					PointLabel: label,
					PointKM:    kmPtr(kmv, ok),
					PassClock:  clk,
					NetTime:    acc,
				})
			}
			for _, vv := range v {
				walk(vv)
			}
		case []interface{}:
			for _, vv := range v {
				walk(vv)
			}
		}
	}
	walk(obj)

	var walkCert func(x interface{})
	walkCert = func(x interface{}) {
		switch v := x.(type) {
		case map[string]interface{}:
			for _, vv := range v {
				if s, ok := vv.(string); ok && strings.Contains(s, "/upload/certificate/") {
					assets = append(assets, model.Asset{
						Kind: model.AssetCertificate,
						Host: "myresult.co.kr",
						URL:  s,
					})
				}
			}
			for _, vv := range v {
				walkCert(vv)
			}
		case []interface{}:
			for _, vv := range v {
				walkCert(vv)
			}
		}
	}
	walkCert(obj)

	return model.ParseResult{Splits: splits, Assets: assets}
}

// extractLabelFromDict mirrors myresult.py's _extract_label_from_dict:
// any string-valued key containing a label keyword wins, except keys
// that mention "name" (kept separate from the participant's own name).
func extractLabelFromDict(d map[string]interface{}) (string, bool) {
	for k, v := range d {
		s, ok := v.(string)
		if !ok {
			continue
		}
		lower := strings.ToLower(k)
		if strings.Contains(lower, "name") {
			continue
		}
		for _, kw := range labelKeywords {
			if strings.Contains(k, kw) {
				return s, true
			}
		}
	}
	return "", false
}

func extractKeywordTime(d map[string]interface{}, keywords []string) string {
	for k, v := range d {
		lower := strings.ToLower(k)
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				if s, ok := v.(string); ok {
					return clock.FirstTime(s)
				}
				return clock.FirstTime(jsonScalarToString(v))
			}
		}
	}
	return ""
}

func jsonScalarToString(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
