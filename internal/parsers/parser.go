// Package parsers converts each provider's raw HTML/JSON payload into the
// canonical model.ParseResult (§4.4). A Parser is registered per host and
// selected by internal/parsers/router.go, the Go shape of the Rule
// interface + registry in
// _teacher_ref_cr-audit-commits/app/rules/rules.go, applied here to
// provider parsing instead of commit-audit rules.
package parsers

import (
	"github.com/marathon-track/split-crawler/internal/model"
)

// Context carries the per-fetch facts a parser may need beyond the raw
// body: the host that served it, and (Provider-S only) the usedata/bib
// pair used to pick the right detail-page variant upstream.
type Context struct {
	Host    string
	Usedata string
	Bib     string
}

// Parser converts one provider's raw payload into a model.ParseResult.
// The result struct always carries all five canonical fields (§8);
// Splits and Assets are nil when nothing was found.
type Parser interface {
	CanParse(host string) bool
	Parse(raw string, ctx Context) model.ParseResult
}

func cleanValue(v string) string {
	switch v {
	case "-", "—", "–", "":
		return ""
	default:
		return v
	}
}
