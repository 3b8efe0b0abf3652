// Worker pool draining the download queue: 3 workers pulling from an
// unbounded FIFO (a slice-backed pump feeding an unbuffered channel),
// per §5's image-download consumer contract. Grounded on
// _teacher_ref_cr-audit-commits's worker fan-out/join shape (bounded
// goroutine pool reading off a channel, recover-and-log per unit of
// work), adapted from file-diff auditing to image fetches.
package assets

import (
	"context"
	"os"
	"sync"
	"time"

	"go.chromium.org/luci/common/logging"

	"github.com/marathon-track/split-crawler/internal/model"
	"github.com/marathon-track/split-crawler/internal/store"
)

const numWorkers = 3

// Job is one enqueued download: a participant's certificate or
// live-photo image that the parser found a URL for but no local copy
// exists yet.
type Job struct {
	ParticipantID int64
	Kind          model.AssetKind
	Host          string
	Usedata       string
	Bib           string
	ImageURL      string
	Referer       string
	Verify        bool
}

// Pool owns the job queue and the store handle used to record
// completed downloads. The queue itself is an unbounded in-memory FIFO
// (pump, below): Enqueue never blocks on a full buffer and never drops
// a job, matching §5's "unbounded FIFO" contract.
type Pool struct {
	dl      *Downloader
	st      *store.Store
	certDir string
	timeout time.Duration

	ctx     context.Context
	jobsIn  chan Job
	jobsOut chan Job
	wg      sync.WaitGroup

	seenMu sync.Mutex
	seen   map[int64]map[model.AssetKind]bool
}

// NewPool starts the pump goroutine and numWorkers worker goroutines
// draining it. ctx cancellation stops the pump and workers immediately;
// Close must be called once no more jobs will be enqueued so the pump
// can drain its backlog, close the output channel, and let the workers
// exit.
func NewPool(ctx context.Context, dl *Downloader, st *store.Store, certDir string, timeout time.Duration) *Pool {
	p := &Pool{
		dl:      dl,
		st:      st,
		certDir: certDir,
		timeout: timeout,
		ctx:     ctx,
		jobsIn:  make(chan Job),
		jobsOut: make(chan Job),
		seen:    make(map[int64]map[model.AssetKind]bool),
	}
	go p.pump(ctx)
	for i := 0; i < numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
	return p
}

// pump holds the queue backlog in a plain growable slice, handing jobs
// to jobsOut one at a time as workers become free. This is what makes
// the queue genuinely unbounded: unlike a buffered channel, the slice
// has no fixed capacity and Enqueue's send to jobsIn never needs a
// drop-on-full fallback.
func (p *Pool) pump(ctx context.Context) {
	defer close(p.jobsOut)
	in := p.jobsIn
	var queue []Job
	for {
		var out chan Job
		var next Job
		if len(queue) > 0 {
			out = p.jobsOut
			next = queue[0]
		} else if in == nil {
			return
		}
		select {
		case j, ok := <-in:
			if !ok {
				in = nil
				continue
			}
			queue = append(queue, j)
		case out <- next:
			queue = queue[1:]
		case <-ctx.Done():
			return
		}
	}
}

// Enqueue submits a download job, skipping it if this process has
// already started (or finished) a download of the same kind for this
// participant — §5's "skip if already downloaded" rule, applied at
// enqueue time so repeated parses of the same page don't requeue the
// same image every tick.
func (p *Pool) Enqueue(j Job) {
	p.seenMu.Lock()
	kinds, ok := p.seen[j.ParticipantID]
	if !ok {
		kinds = make(map[model.AssetKind]bool)
		p.seen[j.ParticipantID] = kinds
	}
	if kinds[j.Kind] {
		p.seenMu.Unlock()
		return
	}
	kinds[j.Kind] = true
	p.seenMu.Unlock()

	select {
	case p.jobsIn <- j:
	case <-p.ctx.Done():
		logging.Warningf(p.ctx, "assets: pool shutting down, dropping download for participant %d", j.ParticipantID)
	}
}

// Close stops accepting new jobs and waits for the pump to drain its
// backlog and the workers to finish it.
func (p *Pool) Close() {
	close(p.jobsIn)
	p.wg.Wait()
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-p.jobsOut:
			if !ok {
				return
			}
			p.run(ctx, j)
		}
	}
}

func (p *Pool) run(ctx context.Context, j Job) {
	defer func() {
		if r := recover(); r != nil {
			logging.Errorf(ctx, "assets: panic downloading participant %d kind %s: %v", j.ParticipantID, j.Kind, r)
		}
	}()

	if existing, ok, err := p.st.ParticipantAssetLocalPath(ctx, j.ParticipantID, j.Kind); err == nil && ok && existing != "" {
		if _, statErr := os.Stat(existing); statErr == nil {
			return
		}
	}

	dest := CertificatePath(p.certDir, j.Usedata, j.Bib)
	local, err := p.dl.DownloadImageTo(ctx, dest, j.ImageURL, j.Referer, j.Verify, p.timeout)
	if err != nil {
		logging.Warningf(ctx, "assets: download failed for participant %d (%s): %s", j.ParticipantID, j.Kind, err)
		return
	}
	if err := p.st.SetAssetLocalPath(ctx, j.ParticipantID, j.Kind, local); err != nil {
		logging.Errorf(ctx, "assets: recording local path for participant %d (%s): %s", j.ParticipantID, j.Kind, err)
	}
}
