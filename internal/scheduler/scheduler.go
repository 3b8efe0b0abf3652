// Package scheduler decides admit timing for marathon ticks and
// per-participant fetches (C8). Grounded on
// original_source/crawler/scheduler.py's CrawlerScheduler/ScheduleConfig,
// with the tick/admit loop shape borrowed from
// _teacher_ref_cr-audit-commits/app/scheduler.go.
package scheduler

import (
	"math/rand"
	"sync"
	"time"
)

// Config mirrors ScheduleConfig's three tunables.
type Config struct {
	MinMarathonInterval time.Duration
	MinParticipantGap   time.Duration
	ParticipantJitter   time.Duration
}

// DefaultConfig matches the source's defaults: 5s marathon floor, 3s
// participant gap, 2s jitter ceiling.
func DefaultConfig() Config {
	return Config{
		MinMarathonInterval: 5 * time.Second,
		MinParticipantGap:   3 * time.Second,
		ParticipantJitter:   2 * time.Second,
	}
}

// Scheduler tracks per-marathon and per-participant last-run timestamps
// and admits a tick only once the relevant interval has elapsed.
type Scheduler struct {
	cfg Config

	mu                   sync.Mutex
	lastMarathonRun      map[int64]time.Time
	lastParticipantFetch map[int64]time.Time
}

func New(cfg Config) *Scheduler {
	return &Scheduler{
		cfg:                  cfg,
		lastMarathonRun:      make(map[int64]time.Time),
		lastParticipantFetch: make(map[int64]time.Time),
	}
}

// ShouldRunMarathon admits iff now-last_run >= max(MinMarathonInterval,
// refreshSec).
func (s *Scheduler) ShouldRunMarathon(marathonID int64, refreshSec int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	last := s.lastMarathonRun[marathonID]
	return time.Since(last) >= s.marathonInterval(refreshSec)
}

func (s *Scheduler) marathonInterval(refreshSec int) time.Duration {
	refresh := time.Duration(refreshSec) * time.Second
	if refresh > s.cfg.MinMarathonInterval {
		return refresh
	}
	return s.cfg.MinMarathonInterval
}

// MarkMarathonRun records a run (success or failure — both update the
// timestamp, per §5).
func (s *Scheduler) MarkMarathonRun(marathonID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastMarathonRun[marathonID] = time.Now()
}

// CanFetchParticipant draws a fresh jitter sample every call (§9 design
// note: this is the source of admission non-determinism, intentional
// for thundering-herd spread).
func (s *Scheduler) CanFetchParticipant(participantID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	last := s.lastParticipantFetch[participantID]
	jitter := time.Duration(rand.Int63n(int64(s.cfg.ParticipantJitter) + 1))
	minGap := s.cfg.MinParticipantGap + jitter
	return time.Since(last) >= minGap
}

// MarkParticipantFetch records a completed fetch attempt.
func (s *Scheduler) MarkParticipantFetch(participantID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastParticipantFetch[participantID] = time.Now()
}

// Reset clears all tracked state (test-only, matching the source's
// reset()).
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastMarathonRun = make(map[int64]time.Time)
	s.lastParticipantFetch = make(map[int64]time.Time)
}
