package browser

import (
	"context"
	"log/slog"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"

	"github.com/use-agent/ratescout/config"
	"github.com/use-agent/ratescout/fingerprint"
	"github.com/use-agent/ratescout/models"
	"github.com/use-agent/ratescout/stealth"
)

// Browser owns the headless Chrome process for the lifetime of a run. Pages
// are opened one at a time: the whole engine is deliberately sequential, so
// there is no tab pool, and every attempt gets a fresh tab.
type Browser struct {
	browser *rod.Browser
	cfg     config.BrowserConfig
}

// New launches a headless browser with automation markers scrubbed from the
// command line and connects to it.
func New(cfg config.BrowserConfig) (*Browser, error) {
	l := launcher.New().
		Headless(cfg.Headless).
		NoSandbox(cfg.NoSandbox)

	if cfg.BrowserBin != "" {
		l = l.Bin(cfg.BrowserBin)
	}
	if cfg.Proxy != "" {
		l = l.Proxy(cfg.Proxy)
	}

	// ── Stealth flags ────────────────────────────────────────────────
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-ipc-flooding-protection"))
	l.Set(flags.Flag("disable-popup-blocking"))
	l.Set(flags.Flag("disable-prompt-on-repost"))
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewScrapeError(
			models.ErrCodeBrowser,
			"failed to launch browser",
			err,
		)
	}
	slog.Info("browser launched", "controlURL", controlURL)

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		return nil, models.NewScrapeError(
			models.ErrCodeBrowser,
			"failed to connect to browser",
			err,
		)
	}

	return &Browser{browser: b, cfg: cfg}, nil
}

// Warmup visits the hotel's landing page once before the dated navigation
// starts, so the first priced request arrives with cookies and a TLS session
// already established. Failures are reported but a run can proceed without.
func (b *Browser) Warmup(ctx context.Context, url string, fp fingerprint.Fingerprint, patches []stealth.Patch) error {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.NavigationTimeout)
	defer cancel()

	page, err := b.Open(ctx, PageRequest{
		URL:         url,
		Fingerprint: fp,
		Patches:     patches,
	})
	if err != nil {
		return err
	}
	defer func() { _ = page.Close() }()

	if err := page.WaitReady(); err != nil {
		return err
	}
	page.Dwell(ctx)

	slog.Info("warmup visit complete", "url", url)
	return nil
}

// Close kills the browser process. Call on shutdown to prevent zombie
// Chrome processes.
func (b *Browser) Close() {
	slog.Info("browser shutting down")
	b.browser.MustClose()
	slog.Info("browser shutdown complete")
}
