// Package engine is the main crawl loop (C9): per-marathon admission,
// per-participant fetch/parse fan-out, batch persistence, and
// image-download enqueue. Grounded on
// original_source/crawler/engine.py's CrawlerEngine, with the
// bounded-concurrency fan-out shape adapted from
// _teacher_ref_cr-audit-commits's worker pool (submit, collect,
// recover-and-log per unit of work).
package engine

import (
	"context"
	"net/url"
	"strings"
	"time"

	"go.chromium.org/luci/common/logging"
	"golang.org/x/sync/semaphore"

	"github.com/marathon-track/split-crawler/internal/assets"
	"github.com/marathon-track/split-crawler/internal/browser"
	"github.com/marathon-track/split-crawler/internal/config"
	"github.com/marathon-track/split-crawler/internal/distance"
	"github.com/marathon-track/split-crawler/internal/fetcher"
	"github.com/marathon-track/split-crawler/internal/model"
	"github.com/marathon-track/split-crawler/internal/parsers"
	"github.com/marathon-track/split-crawler/internal/store"
)

// tickInterval is the main loop's poll period (§5: "~100ms, not a busy
// spin").
const tickInterval = 100 * time.Millisecond

// admitter is the subset of scheduler.Scheduler / scheduler.AdaptiveScheduler
// the engine needs; recorder is checked separately via a type assertion,
// matching the source's hasattr(scheduler, 'record_success') duck typing.
type admitter interface {
	ShouldRunMarathon(marathonID int64, refreshSec int) bool
	MarkMarathonRun(marathonID int64)
	CanFetchParticipant(participantID int64) bool
	MarkParticipantFetch(participantID int64)
}

type recorder interface {
	RecordSuccess(marathonID int64)
	RecordFailure(marathonID int64)
}

// Engine owns every long-lived collaborator the crawl loop needs.
type Engine struct {
	cfg   config.Config
	store *store.Store
	sched admitter
	fetch *fetcher.Fetcher
	br    *browser.Accessor
	reg   *parsers.Registry
	pool  *assets.Pool
}

// New builds an Engine. sched is typed as admitter so callers can pass
// either *scheduler.Scheduler or *scheduler.AdaptiveScheduler.
func New(cfg config.Config, st *store.Store, sched admitter, fetch *fetcher.Fetcher, br *browser.Accessor, reg *parsers.Registry, pool *assets.Pool) *Engine {
	return &Engine{cfg: cfg, store: st, sched: sched, fetch: fetch, br: br, reg: reg, pool: pool}
}

// Run drives the main loop until ctx is cancelled. A panic or fatal
// error from one tick is logged and the loop continues, matching
// §5/§7's "the outer loop survives a single marathon's failure".
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

func (e *Engine) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logging.Errorf(ctx, "engine: panic in tick: %v", r)
		}
	}()

	marathons, err := e.store.ListEnabledMarathons(ctx)
	if err != nil {
		logging.Errorf(ctx, "engine: listing enabled marathons: %s", err)
		return
	}
	for _, m := range marathons {
		e.processMarathon(ctx, m)
	}
}

func (e *Engine) processMarathon(ctx context.Context, m model.Marathon) {
	if m.EventDate != nil {
		today := time.Now().UTC()
		eventDay := time.Date(m.EventDate.Year(), m.EventDate.Month(), m.EventDate.Day(), 0, 0, 0, 0, time.UTC)
		if time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC).Before(eventDay) {
			return
		}
	}

	refreshSec := m.RefreshSec
	if refreshSec <= 0 {
		refreshSec = 60
	}
	if !e.sched.ShouldRunMarathon(m.ID, refreshSec) {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			logging.Errorf(ctx, "engine: panic processing marathon %d: %v", m.ID, r)
			e.recordFailure(m.ID)
		}
	}()

	participants, err := e.store.ListActiveParticipants(ctx, m.ID)
	if err != nil {
		logging.Errorf(ctx, "engine: listing participants for marathon %d: %s", m.ID, err)
		e.recordFailure(m.ID)
		return
	}
	if len(participants) == 0 {
		e.sched.MarkMarathonRun(m.ID)
		return
	}

	results := e.crawlParticipants(ctx, m, participants)
	if err := e.saveResults(ctx, m, participants, results); err != nil {
		logging.Errorf(ctx, "engine: saving results for marathon %d: %s", m.ID, err)
		e.recordFailure(m.ID)
		return
	}
	e.recordSuccess(m.ID)
}

func (e *Engine) recordSuccess(marathonID int64) {
	if r, ok := e.sched.(recorder); ok {
		r.RecordSuccess(marathonID)
	} else {
		e.sched.MarkMarathonRun(marathonID)
	}
}

func (e *Engine) recordFailure(marathonID int64) {
	if r, ok := e.sched.(recorder); ok {
		r.RecordFailure(marathonID)
	} else {
		e.sched.MarkMarathonRun(marathonID)
	}
}

// crawlResult is one participant's normalized crawl outcome, the Go
// shape of the source's (participant_id, splits, meta, assets) tuple.
type crawlResult struct {
	ParticipantID int64
	Splits        []model.Split
	RaceLabel     string
	RaceTotalKM   *float64
	ImgAssets     []model.Asset
}

// crawlParticipants fans out over participants bounded by
// cfg.MaxWorkers concurrent in-flight fetches. Providers routed to the
// browser worker (myresult.co.kr et al.) are naturally serialized by
// internal/fetcher -> internal/browser's single-actor worker, so no
// separate serial path is needed here the way the source's thread-pool
// split required.
func (e *Engine) crawlParticipants(ctx context.Context, m model.Marathon, participants []model.Participant) []crawlResult {
	maxWorkers := e.cfg.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	sem := semaphore.NewWeighted(int64(maxWorkers))

	type slot struct {
		result crawlResult
		ok     bool
	}
	slots := make([]slot, len(participants))

	done := make(chan struct{}, len(participants))
	for i, p := range participants {
		if !e.sched.CanFetchParticipant(p.ID) {
			done <- struct{}{}
			continue
		}
		e.sched.MarkParticipantFetch(p.ID)

		if err := sem.Acquire(ctx, 1); err != nil {
			done <- struct{}{}
			continue
		}
		go func(i int, p model.Participant) {
			defer sem.Release(1)
			defer func() {
				if r := recover(); r != nil {
					logging.Errorf(ctx, "engine: panic crawling participant %d: %v", p.ID, r)
				}
				done <- struct{}{}
			}()
			res, ok := e.crawlOne(ctx, m, p)
			if ok {
				slots[i] = slot{result: res, ok: true}
			}
		}(i, p)
	}
	for range participants {
		<-done
	}

	out := make([]crawlResult, 0, len(participants))
	for _, s := range slots {
		if s.ok {
			out = append(out, s.result)
		}
	}
	return out
}

func (e *Engine) crawlOne(ctx context.Context, m model.Marathon, p model.Participant) (crawlResult, bool) {
	rawURL := buildURL(m.URLTemplate, p.NameOrBibNo, m.Usedata)
	host := hostOf(rawURL)
	verify := !e.cfg.InsecureHost(host) && !e.cfg.InsecureSSL

	var pr model.ParseResult
	if strings.Contains(host, "smartchip.co.kr") && m.Usedata != "" && p.NameOrBibNo != "" {
		var ok bool
		pr, ok = e.probeSmartchip(ctx, host, m.Usedata, p.NameOrBibNo, verify)
		if !ok {
			logging.Warningf(ctx, "engine: smartchip probe failed pid=%d host=%s", p.ID, host)
			return crawlResult{}, false
		}
	} else {
		body, err := e.fetch.Fetch(ctx, rawURL, 20*time.Second, verify)
		if err != nil {
			logging.Warningf(ctx, "engine: fetch failed pid=%d url=%s: %s", p.ID, rawURL, err)
			return crawlResult{}, false
		}
		pr = e.reg.Parse(body, parsers.Context{Host: host, Usedata: m.Usedata, Bib: p.NameOrBibNo})

		if strings.Contains(host, "myresult.co.kr") && strings.HasPrefix(body, "JSON::") {
			pr.Splits = e.backfillMyResultFinish(ctx, rawURL, pr.Splits)
		}
	}

	pr.Splits = distance.EnsureFinishLabel(pr.Splits, pr.RaceTotalKM)

	assetsOut := pr.Assets
	if len(assetsOut) == 0 {
		assetsOut = inferAssets(host, m.Usedata, p.NameOrBibNo)
	}

	return crawlResult{
		ParticipantID: p.ID,
		Splits:        pr.Splits,
		RaceLabel:     pr.RaceLabel,
		RaceTotalKM:   pr.RaceTotalKM,
		ImgAssets:     assetsOut,
	}, true
}

// smartchipProbe is one (path, resulting state) pair tried by
// probeSmartchip, in priority order.
type smartchipProbe struct {
	path  string
	state string
}

var smartchipProbes = []smartchipProbe{
	{path: "/Expectedrecord_data.asp", state: "in_progress"},
	{path: "/return_data_livephoto.asp", state: "finished"},
}

var smartchipSchemes = []string{"https://", "http://"}

// probeSmartchip implements Provider-S's "in-progress path, then
// finished path, each on both https:// and http://" detail-page
// resolution (spec §4.4 point 1): the first scheme/path combination
// whose response yields a parseable split table wins; otherwise the
// first response obtained is returned with state in_progress_no_table.
// Grounded on original_source/parsers/smartchip.py's
// _resolve_detail_soup/_fetch_url_both_schemes.
func (e *Engine) probeSmartchip(ctx context.Context, host, usedata, bib string, verify bool) (model.ParseResult, bool) {
	var fallback model.ParseResult
	haveFallback := false

	for _, probe := range smartchipProbes {
		for _, scheme := range smartchipSchemes {
			rawURL := scheme + host + probe.path + "?usedata=" + url.QueryEscape(usedata) + "&nameorbibno=" + url.QueryEscape(bib)
			body, err := e.fetch.Fetch(ctx, rawURL, 10*time.Second, verify)
			if err != nil {
				continue
			}
			pr := e.reg.Parse(body, parsers.Context{Host: host, Usedata: usedata, Bib: bib})
			if len(pr.Splits) > 0 {
				pr.State = probe.state
				return pr, true
			}
			if !haveFallback {
				fallback = pr
				haveFallback = true
			}
		}
	}
	if !haveFallback {
		return model.ParseResult{}, false
	}
	fallback.State = "in_progress_no_table"
	return fallback, true
}

// backfillMyResultFinish re-fetches the JS-rendered HTML directly
// through the browser worker (bypassing the fetcher's cache, since the
// JSON response is already cached) to recover a Finish split missing
// from the JSON payload, per the source's _handle_myresult_json.
func (e *Engine) backfillMyResultFinish(ctx context.Context, rawURL string, splits []model.Split) []model.Split {
	for _, s := range splits {
		if distance.IsFinishLabel(s.PointLabel) {
			return splits
		}
	}
	html := e.br.Fetch(ctx, rawURL, 10*time.Second)
	if html == "" || strings.HasPrefix(html, "JSON::") {
		return splits
	}
	finish, ok := parsers.ExtractMyResultFinishFromHTML(html)
	if !ok {
		return splits
	}
	return append(splits, finish)
}

func inferAssets(host, usedata, bib string) []model.Asset {
	if usedata == "" || bib == "" {
		return nil
	}
	switch {
	case strings.Contains(host, "myresult.co.kr"):
		return []model.Asset{{
			Kind: model.AssetCertificate,
			Host: "myresult.co.kr",
			URL:  "https://myresult.co.kr/upload/certificate/" + usedata + "/" + bib,
		}}
	case strings.Contains(host, "smartchip.co.kr"):
		return []model.Asset{{
			Kind: model.AssetCertificate,
			Host: "image.smartchip.co.kr",
			URL:  "https://image.smartchip.co.kr/record_data/TriRun_Record.php?Rally_id=" + usedata + "&Bally_no=" + bib,
		}}
	case strings.Contains(host, "spct.kr"):
		bib6 := distance.NormalizeBib("spct", bib)
		return []model.Asset{{
			Kind: model.AssetCertificate,
			Host: "img.spct.kr",
			URL:  "https://img.spct.kr/PhotoResultsJPG/images/" + usedata + "/" + usedata + "-" + bib6 + ".jpg",
		}}
	}
	return nil
}

// buildURL fills in the three placeholders a marathon's URL template
// may carry (§6).
func buildURL(tmpl, nameOrBibNo, usedata string) string {
	url := strings.ReplaceAll(tmpl, "{nameorbibno}", nameOrBibNo)
	url = strings.ReplaceAll(url, "{usedata}", usedata)
	if strings.Contains(url, "{bib_spct6}") {
		url = strings.ReplaceAll(url, "{bib_spct6}", distance.NormalizeBib("spct", nameOrBibNo))
	}
	return url
}

func hostOf(rawURL string) string {
	tmpl := rawURL
	if !strings.Contains(tmpl, "://") {
		tmpl = "https://" + tmpl
	}
	u, err := url.Parse(tmpl)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Host)
}
