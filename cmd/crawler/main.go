// Command crawler runs the marathon split-tracking crawler: one
// process, one embedded SQLite database, one headless-Chrome worker,
// and a bounded pool of HTTP fetches per tick. See SPEC_FULL.md for
// the full component breakdown.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.chromium.org/luci/common/logging"
	"go.chromium.org/luci/common/logging/gologger"

	"github.com/marathon-track/split-crawler/internal/assets"
	"github.com/marathon-track/split-crawler/internal/browser"
	"github.com/marathon-track/split-crawler/internal/config"
	"github.com/marathon-track/split-crawler/internal/engine"
	"github.com/marathon-track/split-crawler/internal/fetcher"
	"github.com/marathon-track/split-crawler/internal/parsers"
	"github.com/marathon-track/split-crawler/internal/scheduler"
	"github.com/marathon-track/split-crawler/internal/store"
	"github.com/marathon-track/split-crawler/internal/transport"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		adaptive bool
		skipInit bool
	)

	cmd := &cobra.Command{
		Use:     "crawler",
		Short:   "Marathon split-time crawler",
		Long:    "Polls enabled marathons for participant splits and finish images, persisting them to an embedded SQLite database.",
		Version: "1.0.0",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), adaptive, skipInit)
		},
	}

	cmd.Flags().BoolVar(&adaptive, "adaptive", false, "Use the adaptive (backoff-on-failure) scheduler instead of the fixed-interval one")
	cmd.Flags().BoolVar(&skipInit, "skip-init", false, "Skip schema initialization and migration on startup")

	return cmd
}

func run(ctx context.Context, adaptive, skipInit bool) error {
	ctx = gologger.StdConfig.Use(ctx)
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg := config.Load()

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer st.Close()

	if !skipInit {
		if err := st.InitSchema(); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
		if err := st.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	httpClient := transport.New(cfg, cfg.MaxWorkers)
	br := browser.NewAccessor(cfg.ChromePath)
	defer br.Stop()

	fetch := fetcher.New(httpClient, br, time.Duration(cfg.CacheTTLSec)*time.Second)
	reg := parsers.NewRegistry()

	dl := assets.NewDownloader()
	pool := assets.NewPool(ctx, dl, st, cfg.CertDir, 20*time.Second)
	defer pool.Close()

	var sched interface {
		ShouldRunMarathon(int64, int) bool
		MarkMarathonRun(int64)
		CanFetchParticipant(int64) bool
		MarkParticipantFetch(int64)
	}
	if adaptive {
		as := scheduler.NewAdaptive(scheduler.DefaultConfig())
		sched = as
		logging.Infof(ctx, "engine: using adaptive scheduler")
	} else {
		sched = scheduler.New(scheduler.DefaultConfig())
		logging.Infof(ctx, "engine: using fixed-interval scheduler")
	}

	eng := engine.New(cfg, st, sched, fetch, br, reg, pool)

	logging.Infof(ctx, "engine: starting main loop (max_workers=%d)", cfg.MaxWorkers)
	eng.Run(ctx)
	logging.Infof(ctx, "engine: shutdown complete")
	return nil
}
