// Package browser drives a Chromium instance over the DevTools protocol and
// exposes its page targets as tabs.
package browser

import (
	"fmt"
	"log/slog"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"

	"github.com/runnerr0/tabtidy/internal/config"
)

// Connect attaches to the browser named by cfg.RemoteURL, or launches a
// local one. The returned cleanup closes the connection and, for a
// launched browser, kills it.
func Connect(cfg config.BrowserConfig, logger *slog.Logger) (*rod.Browser, func(), error) {
	var (
		wsURL string
		lnch  *launcher.Launcher
	)

	if cfg.RemoteURL != "" {
		wsURL = cfg.RemoteURL
		logger.Info("browser: connecting to remote", "url", wsURL)
	} else {
		l := launcher.New().Headless(cfg.Headless)
		if cfg.Bin != "" {
			l = l.Bin(cfg.Bin)
		}
		if cfg.UserData != "" {
			l = l.UserDataDir(cfg.UserData)
		}

		u, err := l.Launch()
		if err != nil {
			return nil, nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		lnch = l
		logger.Info("browser: launched local chrome", "url", wsURL, "headless", cfg.Headless)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		if lnch != nil {
			lnch.Cleanup()
		}
		return nil, nil, fmt.Errorf("browser: connect: %w", err)
	}

	cleanup := func() {
		if lnch != nil {
			// Only a browser we started is ours to close.
			if err := b.Close(); err != nil {
				logger.Debug("browser: close", "error", err)
			}
			lnch.Cleanup()
		}
	}
	return b, cleanup, nil
}
