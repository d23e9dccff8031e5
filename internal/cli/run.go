package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/runnerr0/tabtidy/internal/browser"
	"github.com/runnerr0/tabtidy/internal/config"
	"github.com/runnerr0/tabtidy/internal/server"
	"github.com/runnerr0/tabtidy/internal/state"
	"github.com/runnerr0/tabtidy/internal/storage"
	"github.com/runnerr0/tabtidy/internal/suspender"
)

// Execute implements the go-flags Commander interface for RunCommand.
func (c *RunCommand) Execute(args []string) error {
	cfg, err := loadConfig(c.globals)
	if err != nil {
		return err
	}
	if err := c.applyOverrides(cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return c.run(ctx, cfg)
}

// applyOverrides folds command-line flags into cfg.
func (c *RunCommand) applyOverrides(cfg *config.Config) error {
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}
	if c.LogLevel != "" {
		cfg.Logging.Level = c.LogLevel
	}
	if c.Headless {
		cfg.Browser.Headless = true
	}
	if c.RemoteURL != "" {
		cfg.Browser.RemoteURL = c.RemoteURL
	}
	if c.globals != nil && c.globals.Verbose {
		cfg.Logging.Level = "debug"
	}
	return cfg.Validate()
}

func (c *RunCommand) run(ctx context.Context, cfg *config.Config) error {
	logger, level, logCloser, err := cfg.Logging.NewLogger(os.Stderr)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	dbPath, err := cfg.DBPath()
	if err != nil {
		return err
	}
	db, closeDB, err := storage.Open(dbPath, cfg.Storage.SQLiteJournalMode)
	if err != nil {
		return err
	}
	defer closeDB()

	// Bind before touching the browser so a second daemon fails fast.
	ln, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Addr(), err)
	}
	defer ln.Close()

	rb, cleanup, err := browser.Connect(cfg.Browser, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	bopts := browser.DefaultOptions()
	bopts.ActivePoll = config.Millis(cfg.Browser.ActivePollMS)
	tabsrc, err := browser.New(ctx, rb, db, bopts, logger)
	if err != nil {
		return err
	}

	opts := suspender.DefaultOptions(cfg.BaseURL(), cfg.Suspend.SystemPagePrefixes)
	opts.ActivityFlush = config.Millis(cfg.Suspend.ActivityFlushMS)
	opts.IndexFlush = config.Millis(cfg.Suspend.IndexFlushMS)
	opts.Settle = config.Millis(cfg.Suspend.SettleDelayMS)
	opts.DiscardTimeout = config.Millis(cfg.Suspend.DiscardTimeoutMS)
	opts.TidyThreshold = config.Seconds(cfg.Suspend.TidyThresholdSec)
	opts.ShortInterval = config.Seconds(cfg.Suspend.ShortIntervalSec)
	opts.LongInterval = config.Seconds(cfg.Suspend.LongIntervalSec)
	opts.CheckUnsavedForms = cfg.Suspend.CheckUnsavedForms
	opts.Level = level
	opts.BaseLevel = config.ParseLevel(cfg.Logging.Level)

	svc := suspender.New(tabsrc, state.New(db, logger), suspender.RealClock{}, opts, logger)
	if err := svc.Bootstrap(ctx); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}

	logger.Info("tabtidy: daemon started", "version", c.version, "addr", cfg.Addr(), "db", dbPath)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg     sync.WaitGroup
		srvErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		srvErr = server.New(svc, logger).Serve(runCtx, ln)
		cancel()
	}()

	runErr := svc.Run(runCtx)
	cancel()
	wg.Wait()

	logger.Info("tabtidy: daemon stopped")
	// The browser stream also ends when we are told to stop.
	if runErr != nil && ctx.Err() == nil {
		return runErr
	}
	if errors.Is(srvErr, net.ErrClosed) {
		return nil
	}
	return srvErr
}
