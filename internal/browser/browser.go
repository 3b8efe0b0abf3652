// Package browser models the single long-lived headless-Chrome worker
// (C4) that services the JS-heavy providers. One actor owns the browser
// tab; callers talk to it only through an inbox channel, never touching
// its internal chromedp context directly — matching §9's "browser worker
// as a singleton" design note.
//
// Grounded on original_source/crawler/worker.py's _MyResultWorker state
// machine (navigate -> network-idle -> poll selector -> XHR capture ->
// raw DOM fallback) and on the pack's chromedp usage in
// EdgeComet-engine's internal/render/chrome/renderer.go and
// 5u5urrus-PathFinder's render_headless.go.
package browser

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.chromium.org/luci/common/logging"
)

// TargetSelector is the CSS selector that marks the target split table as
// rendered, matching the source's ".table-row.ant-row .ant-col" poll.
const TargetSelector = ".table-row.ant-row .ant-col"

var blockedResourceTypes = map[string]bool{
	"Image": true, "Media": true, "Font": true, "Stylesheet": true,
}

var blockedHosts = []string{
	"google-analytics.com", "googletagmanager.com", "g.doubleclick.net",
	"facebook.com", "kakao", "naver", "daum", "hotjar", "mixpanel",
}

type request struct {
	url     string
	timeout time.Duration
	respCh  chan string
}

// Worker is one headless-Chrome actor. Requests are served strictly
// serially through in, matching the source's single-threaded event loop.
type Worker struct {
	chromePath string
	in         chan request

	mu      sync.Mutex
	alive   bool
	cancel  context.CancelFunc
	started chan struct{}
}

// New creates a Worker and starts its serving goroutine. chromePath may be
// empty to use chromedp's auto-detected binary.
func New(chromePath string) *Worker {
	w := &Worker{
		chromePath: chromePath,
		in:         make(chan request, 16),
		started:    make(chan struct{}),
	}
	go w.run()
	return w
}

// Fetch submits url to the worker and blocks until a result or timeout+8s,
// matching the source's out_q.get(timeout=timeout+8) accessor contract.
// Returns "" on timeout — callers fall back to the HTTP transport.
func (w *Worker) Fetch(ctx context.Context, url string, timeout time.Duration) string {
	respCh := make(chan string, 1)
	select {
	case w.in <- request{url: url, timeout: timeout, respCh: respCh}:
	case <-ctx.Done():
		return ""
	}
	select {
	case body := <-respCh:
		return body
	case <-time.After(timeout + 8*time.Second):
		return ""
	case <-ctx.Done():
		return ""
	}
}

// Alive reports whether the worker's underlying browser goroutine is
// still running. The accessor pool restarts a dead worker lazily.
func (w *Worker) Alive() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.alive
}

// Stop tears the browser down. Safe to call once.
func (w *Worker) Stop() {
	w.mu.Lock()
	cancel := w.cancel
	w.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (w *Worker) run() {
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), chromeOpts(w.chromePath)...)
	defer allocCancel()
	ctx, cancel := chromedp.NewContext(allocCtx)

	w.mu.Lock()
	w.cancel = cancel
	w.alive = true
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		w.alive = false
		w.mu.Unlock()
		cancel()
	}()

	if err := chromedp.Run(ctx, network.Enable(), fetch.Enable(), installBlockHandler(ctx)); err != nil {
		logging.Errorf(ctx, "browser: failed to start chrome: %s", err)
		return
	}

	for {
		select {
		case req, ok := <-w.in:
			if !ok {
				return
			}
			req.respCh <- w.serve(ctx, req.url, req.timeout)
		case <-ctx.Done():
			return
		}
	}
}

// serve implements the 6-step contract of §4.2.
func (w *Worker) serve(ctx context.Context, url string, timeout time.Duration) (result string) {
	defer func() {
		if r := recover(); r != nil {
			result = ""
		}
	}()

	navTimeout := timeout
	if navTimeout < 12*time.Second {
		navTimeout = 12 * time.Second
	}
	navCtx, navCancel := context.WithTimeout(ctx, navTimeout)
	defer navCancel()

	if err := chromedp.Run(navCtx, chromedp.Navigate(url)); err != nil {
		return ""
	}

	// Step 2: best-effort wait, bounded ~70% of timeout, for the body
	// element to be ready. This does not wait for network idle.
	idleCtx, idleCancel := context.WithTimeout(ctx, time.Duration(float64(timeout)*0.7))
	_ = chromedp.Run(idleCtx, chromedp.WaitReady("body", chromedp.ByQuery))
	idleCancel()

	// Step 3: poll up to 8 x 1s for the target selector.
	for i := 0; i < 8; i++ {
		pollCtx, pollCancel := context.WithTimeout(ctx, time.Second)
		err := chromedp.Run(pollCtx, chromedp.WaitVisible(TargetSelector, chromedp.ByQueryAll))
		pollCancel()
		if err == nil {
			var html string
			if err := chromedp.Run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err == nil {
				return html
			}
		}
	}

	// Step 5: await a JSON XHR/fetch response for up to 7s.
	if data, ok := captureBody(ctx, 7*time.Second); ok {
		return "JSON::" + data
	}

	// Step 6: return current DOM even if still a skeleton.
	var html string
	_ = chromedp.Run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html
}

func captureBody(ctx context.Context, bound time.Duration) (string, bool) {
	type capture struct {
		reqID network.RequestID
		body  string
	}
	resultCh := make(chan capture, 1)
	listenCtx, cancel := context.WithTimeout(ctx, bound)
	defer cancel()

	chromedp.ListenTarget(listenCtx, func(ev interface{}) {
		e, ok := ev.(*network.EventResponseReceived)
		if !ok {
			return
		}
		rt := e.Type.String()
		if rt != "XHR" && rt != "Fetch" {
			return
		}
		ct := ""
		if e.Response.Headers != nil {
			if v, ok := e.Response.Headers["content-type"]; ok {
				if s, ok := v.(string); ok {
					ct = s
				}
			}
		}
		if !containsFold(ct, "json") && !hasSuffixFold(e.Response.URL, ".json") && !containsFold(e.Response.URL, "/api/") {
			return
		}
		var body string
		_ = chromedp.Run(ctx, chromedp.ActionFunc(func(fctx context.Context) error {
			b, err := network.GetResponseBody(e.RequestID).Do(fctx)
			if err != nil {
				return err
			}
			body = string(b)
			return nil
		}))
		select {
		case resultCh <- capture{reqID: e.RequestID, body: body}:
		default:
		}
	})

	select {
	case c := <-resultCh:
		if c.body == "" {
			return "", false
		}
		var probe interface{}
		if json.Unmarshal([]byte(c.body), &probe) != nil {
			return "", false
		}
		return c.body, true
	case <-listenCtx.Done():
		return "", false
	}
}

// installBlockHandler aborts requests for heavy resource types and known
// analytics hosts, matching the source's page.route("**/*", _route)
// (§4.2's "Resource types ... and known-analytics hosts are aborted").
func installBlockHandler(parent context.Context) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		chromedp.ListenTarget(parent, func(ev interface{}) {
			e, ok := ev.(*fetch.EventRequestPaused)
			if !ok {
				return
			}
			blocked := blockedResourceTypes[string(e.ResourceType)] || hostBlocked(e.Request.URL)
			go func() {
				if blocked {
					_ = chromedp.Run(ctx, fetch.FailRequest(e.RequestID, network.ErrorReasonBlockedByClient))
				} else {
					_ = chromedp.Run(ctx, fetch.ContinueRequest(e.RequestID))
				}
			}()
		})
		return nil
	})
}

func chromeOpts(chromePath string) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("ignore-certificate-errors", true),
		chromedp.WindowSize(1200, 800),
		chromedp.UserAgent("Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"),
	)
	if chromePath != "" {
		opts = append(opts, chromedp.ExecPath(chromePath))
	}
	return opts
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func hasSuffixFold(s, suffix string) bool {
	return strings.HasSuffix(strings.ToLower(s), strings.ToLower(suffix))
}

// hostBlocked reports whether url targets a known-analytics host that the
// worker should refuse to render, per §4.2's resource/host blocklist.
func hostBlocked(url string) bool {
	low := strings.ToLower(url)
	for _, h := range blockedHosts {
		if strings.Contains(low, h) {
			return true
		}
	}
	return false
}
