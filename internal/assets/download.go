// Package assets is the certificate/live-photo image download
// background consumer (§4.7/§5's image worker pool): an unbounded FIFO
// drained by 3 workers, atomic rename on success, TLS-retry-once. Also
// carries the local-path -> web-path mapping used by the records view.
// Grounded on original_source/utils/file_utils.py.
package assets

import (
	"context"
	"crypto/tls"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"

	"github.com/marathon-track/split-crawler/internal/transport"
)

// minOKSize rejects a download that looks like an error page or
// placeholder rather than a real image.
const minOKSize = 512

// DefaultHeaders matches internal/transport.DefaultHeaders; duplicated
// here (rather than imported) to keep this package's own *http.Client
// independent of the transport package's pooling/retry machinery, which
// image downloads do not need. transport.CacheBust is reused as-is,
// since the livephoto endpoint's Submit.x/y synthesis must stay
// identical for both page fetches and image downloads.
var DefaultHeaders = map[string]string{
	"User-Agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Accept-Language": "ko,en;q=0.8",
}

// Downloader owns the two http.Client variants (verify / no-verify)
// used to fetch certificate and live-photo images.
type Downloader struct {
	verify   *http.Client
	noverify *http.Client
}

func NewDownloader() *Downloader {
	return &Downloader{
		verify:   &http.Client{Timeout: 30 * time.Second},
		noverify: &http.Client{Timeout: 30 * time.Second, Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}},
	}
}

// DownloadImageTo fetches url into destPath (extension auto-completed
// from Content-Type or the URL if destPath has none), writing to a
// `.part.<pid>.<unix-nanos>` temp file first and renaming atomically on
// success. A TLS error triggers exactly one retry with verification
// disabled, per §5's "TLS errors are retried once with verification
// disabled before being marked failed".
func (d *Downloader) DownloadImageTo(ctx context.Context, destPath, url, referer string, verify bool, timeout time.Duration) (string, error) {
	url = transport.CacheBust(url, time.Now())

	client := d.verify
	if !verify {
		client = d.noverify
	}

	resp, err := d.get(ctx, client, url, referer, timeout)
	if err != nil && isTLSError(err) && verify {
		logging.Warningf(ctx, "assets: SSL error on %s, retrying with verification disabled", url)
		resp, err = d.get(ctx, d.noverify, url, referer, timeout)
	}
	if err != nil {
		return "", errors.Annotate(err, "assets: fetching %s", url).Err()
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.Reason("assets: non-200 status %d for %s", resp.StatusCode, url).Err()
	}

	if filepath.Ext(destPath) == "" {
		destPath += guessExt(url, resp.Header.Get("Content-Type"))
	}

	if dir := filepath.Dir(destPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", errors.Annotate(err, "assets: mkdir %s", dir).Err()
		}
	}

	tmpPath := fmt.Sprintf("%s.part.%d.%d", destPath, os.Getpid(), time.Now().UnixNano())
	f, err := os.Create(tmpPath)
	if err != nil {
		return "", errors.Annotate(err, "assets: create temp file").Err()
	}
	n, copyErr := io.Copy(f, resp.Body)
	closeErr := f.Close()
	if copyErr != nil || closeErr != nil {
		os.Remove(tmpPath)
		if copyErr != nil {
			return "", errors.Annotate(copyErr, "assets: writing %s", tmpPath).Err()
		}
		return "", errors.Annotate(closeErr, "assets: closing %s", tmpPath).Err()
	}
	if n < minOKSize {
		os.Remove(tmpPath)
		return "", errors.Reason("assets: downloaded file too small (%d bytes) for %s", n, url).Err()
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return "", errors.Annotate(err, "assets: renaming into place").Err()
	}
	return filepath.ToSlash(destPath), nil
}

func (d *Downloader) get(ctx context.Context, client *http.Client, url, referer string, timeout time.Duration) (*http.Response, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range DefaultHeaders {
		req.Header.Set(k, v)
	}
	if referer != "" {
		req.Header.Set("Referer", referer)
	}
	return client.Do(req)
}

func isTLSError(err error) bool {
	if err == nil {
		return false
	}
	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "certificate") ||
		strings.Contains(strings.ToLower(err.Error()), "x509")
}

func guessExt(url, contentType string) string {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "image/jpeg"), strings.Contains(ct, "image/jpg"):
		return ".jpg"
	case strings.Contains(ct, "image/png"):
		return ".png"
	case strings.Contains(ct, "image/webp"):
		return ".webp"
	}
	pathExt := strings.ToLower(filepath.Ext(strings.SplitN(url, "?", 2)[0]))
	switch pathExt {
	case ".jpg", ".jpeg", ".png", ".webp":
		return pathExt
	}
	return ".jpg"
}

// CertificatePath builds the canonical on-disk destination for a
// certificate image, matching the source's
// CERT_DIR/{usedata}/{usedata}-{bib6} naming (extension attached later
// by DownloadImageTo).
func CertificatePath(certDir, usedata, bib string) string {
	bib6 := bib
	if isAllDigits(bib) {
		for len(bib6) < 6 {
			bib6 = "0" + bib6
		}
	}
	return filepath.Join(certDir, usedata, usedata+"-"+bib6)
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

// ToWebStaticURL rewrites a local filesystem path into the /static/...
// form the collaborating admin UI serves from, per
// original_source/utils/file_utils.py's to_web_static_url.
func ToWebStaticURL(localPath string) (string, bool) {
	if localPath == "" {
		return "", false
	}
	p := filepath.ToSlash(localPath)
	lower := strings.ToLower(p)
	if idx := strings.LastIndex(lower, "/static/"); idx != -1 {
		return p[idx:], true
	}
	return "", false
}
