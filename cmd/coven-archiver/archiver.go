// ABOUTME: Wiring of storage, transport, pipeline and supervisor for one process
// ABOUTME: Builds long-lived collaborators once and a fresh pipeline per supervised session

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/2389/coven-archiver/internal/archive"
	"github.com/2389/coven-archiver/internal/botconfig"
	"github.com/2389/coven-archiver/internal/clock"
	"github.com/2389/coven-archiver/internal/config"
	"github.com/2389/coven-archiver/internal/dedupe"
	"github.com/2389/coven-archiver/internal/ledger"
	"github.com/2389/coven-archiver/internal/media"
	"github.com/2389/coven-archiver/internal/metrics"
	"github.com/2389/coven-archiver/internal/pipeline"
	"github.com/2389/coven-archiver/internal/qr"
	"github.com/2389/coven-archiver/internal/supervisor"
	"github.com/2389/coven-archiver/internal/sysprobe"
	"github.com/2389/coven-archiver/internal/transport"
	"github.com/2389/coven-archiver/internal/transport/matrix"
	"github.com/2389/coven-archiver/internal/transport/whatsapp"
)

// newTransport builds the client selected by transport.kind.
func newTransport(cfg *config.Config, logger *slog.Logger) (transport.Client, error) {
	switch cfg.Transport.Kind {
	case config.TransportWhatsApp:
		return whatsapp.New(whatsapp.Options{
			SessionDB: cfg.SessionDBPath(),
			Logger:    logger,
		})
	case config.TransportMatrix:
		return matrix.New(matrix.Options{
			Homeserver:  cfg.Matrix.Homeserver,
			UserID:      cfg.Matrix.UserID,
			AccessToken: cfg.Matrix.AccessToken,
			Logger:      logger,
		})
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport.Kind)
	}
}

// serve runs the archiver until ctx is cancelled.
func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	clk := clock.Real{}
	started := clk.Now()

	store := archive.New(cfg.Archive.DataDir, clk, logger)
	if err := store.Bootstrap(); err != nil {
		return fmt.Errorf("preparing storage: %w", err)
	}

	led, err := ledger.Open(cfg.LedgerDSN(), logger)
	if err != nil {
		return fmt.Errorf("opening forward ledger: %w", err)
	}
	defer led.Close()

	client, err := newTransport(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating transport: %w", err)
	}

	rec := metrics.New()
	if cfg.Metrics.Enabled {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Addr, cfg.Metrics.Path, rec, logger); err != nil {
				logger.Error("metrics endpoint stopped", "error", err)
			}
		}()
	}

	botCfg := botconfig.NewStore(store.ConfigPath(), logger)
	fetcher := media.NewFetcher(client, media.Options{
		Attempts: cfg.Archive.FetchAttempts,
		Delay:    cfg.Archive.FetchDelay,
		Clock:    clk,
		Logger:   logger,
	})
	sender := transport.NewLimited(client, cfg.Transport.SendRate, cfg.Transport.SendBurst)
	seen := dedupe.New(cfg.Archive.DedupeTTL, dedupe.DefaultMaxSize, clk)
	probe := sysprobe.New(started, store.Root())
	renderer := qr.NewRenderer(store.QRDir(), os.Stdout, clk, logger)

	var current atomic.Pointer[pipeline.Pipeline]
	if err := botCfg.Watch(ctx, func() {
		if p := current.Load(); p != nil {
			p.RequestReload()
		}
	}); err != nil {
		logger.Warn("config hot reload disabled", "error", err)
	}

	session := func(ctx context.Context, runID string) error {
		p, err := pipeline.New(pipeline.Options{
			Config:             botCfg,
			Ledger:             led,
			Archive:            store,
			Fetcher:            fetcher,
			Sender:             sender,
			Account:            client,
			Clock:              clk,
			Metrics:            rec,
			Probe:              probe,
			Dedupe:             seen,
			Logger:             logger.With("run_id", runID),
			CommandPrefix:      cfg.Archive.CommandPrefix,
			AcceptSelfCommands: cfg.Archive.AcceptSelfCommands,
			OnPairing:          renderer.Show,
		})
		if err != nil {
			return fmt.Errorf("%w: %w", transport.ErrStartFailed, err)
		}
		current.Store(p)
		defer current.CompareAndSwap(p, nil)
		return client.Run(ctx, p)
	}

	err = supervisor.Run(ctx, session, supervisor.Options{
		ReconnectDelay: cfg.Archive.ReconnectDelay,
		RestartDelay:   cfg.Archive.RestartDelay,
		Clock:          clk,
		Metrics:        rec,
		Logger:         logger,
	})
	if errors.Is(err, context.Canceled) {
		logger.Info("archiver stopped")
		return nil
	}
	return err
}
