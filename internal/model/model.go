// Package model holds the canonical data shapes shared across the crawler:
// the split/summary/asset schema every provider parser converges on (§3,
// §4.4), and the persisted entities (marathons, participants).
package model

import (
	"net/url"
	"strings"
	"time"
)

// Split is one timestamped checkpoint observation for a participant.
// (participant_id, point_label) is unique at the persistence layer; here
// it is the parser-facing, not-yet-persisted shape.
type Split struct {
	PointLabel string
	PointKM    *float64
	NetTime    string
	PassClock  string
	Pace       string
	SeenAt     time.Time
}

// AssetKind enumerates the two asset kinds the system tracks.
type AssetKind string

const (
	AssetCertificate AssetKind = "certificate"
	AssetLivephoto   AssetKind = "livephoto"
)

// Asset is an upstream image reference (certificate or live photo).
type Asset struct {
	Kind      AssetKind
	Host      string
	URL       string
	LocalPath string
	SeenAt    time.Time
}

// Summary carries the few scalar facts some providers expose directly
// (Provider-P's ".record" block) rather than only through split rows.
type Summary struct {
	TotalNet   string
	StartTime  string
	FinishTime string
}

// ParseResult is the canonical output of every provider parser (§4.4):
// splits, a summary, assets, and inferred race metadata. Every parser
// returns a ParseResult with all fields present (possibly empty; Splits
// and Assets are nil when nothing was found), satisfying the "all five
// canonical keys" testable property of §8.
type ParseResult struct {
	Splits      []Split
	Summary     Summary
	Assets      []Asset
	RaceLabel   string
	RaceTotalKM *float64
	// State is provider-specific metadata, e.g. Provider-S's
	// in_progress/finished/in_progress_no_table/unknown/fallback.
	State string
}

// Marathon is the admin-managed race entity (§3). Mutated only by admin;
// the crawler only reads it, except where noted (join code assignment is
// admin-side and out of scope here).
type Marathon struct {
	ID              int64
	Name            string
	URLTemplate     string
	Usedata         string
	TotalDistanceKM float64
	RefreshSec      int
	Enabled         bool
	CertURLTemplate string
	EventDate       *time.Time
	JoinCode        string
}

// Participant is a tracked entrant within a marathon (§3).
type Participant struct {
	ID              int64
	MarathonID      int64
	Alias           string
	NameOrBibNo     string
	Active          bool
	RaceLabel       string
	RaceTotalKM     *float64
	CertKey         string
	FinishImageURL  string
	FinishImagePath string
}

// Host returns the host portion of the marathon's URL template, used to
// route fetches and select a parser (§4.3, §4.5).
func (m Marathon) Host() string {
	tmpl := m.URLTemplate
	if !strings.Contains(tmpl, "://") {
		tmpl = "https://" + tmpl
	}
	u, err := url.Parse(tmpl)
	if err != nil {
		return ""
	}
	return u.Host
}
