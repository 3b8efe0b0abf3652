package parsers

import "github.com/marathon-track/split-crawler/internal/model"

// Registry holds the ordered set of providers tried against a host,
// falling back to Generic when none claim it. The registry is built
// once at startup and is read-only thereafter, so it needs no locking
// (same lifecycle as
// _teacher_ref_cr-audit-commits/app/rules/rules.go's rule registry).
type Registry struct {
	providers []Parser
	fallback  Parser
}

// NewRegistry builds the registry with the three known providers, in a
// fixed order — order only matters if a host were ever claimed by more
// than one, which CanParse's host-substring checks prevent today.
func NewRegistry() *Registry {
	return &Registry{
		providers: []Parser{Smartchip{}, SPCT{}, MyResult{}},
		fallback:  Generic{},
	}
}

// For returns the Parser registered for host, or the generic fallback.
func (r *Registry) For(host string) Parser {
	for _, p := range r.providers {
		if p.CanParse(host) {
			return p
		}
	}
	return r.fallback
}

// Parse is a convenience wrapper: look up the parser for ctx.Host and
// run it against raw.
func (r *Registry) Parse(raw string, ctx Context) model.ParseResult {
	return r.For(ctx.Host).Parse(raw, ctx)
}
