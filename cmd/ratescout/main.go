// Command ratescout scrapes nightly rates for a profiled hotel across a
// date window and writes the dated rate report. Run ratescout-discover
// first to build the hotel's room-type profile.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/use-agent/ratescout/aggregate"
	"github.com/use-agent/ratescout/api"
	"github.com/use-agent/ratescout/browser"
	"github.com/use-agent/ratescout/config"
	"github.com/use-agent/ratescout/content"
	"github.com/use-agent/ratescout/llm"
	"github.com/use-agent/ratescout/metrics"
	"github.com/use-agent/ratescout/models"
	"github.com/use-agent/ratescout/planner"
	"github.com/use-agent/ratescout/probe"
	"github.com/use-agent/ratescout/scrape"
	"github.com/use-agent/ratescout/session"
	"github.com/use-agent/ratescout/stealth"
	"github.com/use-agent/ratescout/store"
)

func main() {
	// ── 1. Flags and environment ────────────────────────────────────
	var (
		hotelName = flag.String("hotel", "", "hotel name; must have a discovery profile (required)")
		startStr  = flag.String("start", "", "first check-in date, YYYY-MM-DD (default: tomorrow)")
		days      = flag.Int("days", 30, "how many consecutive nights to scrape")
		urlFlag   = flag.String("url", "", "override the search URL stored in the profile")
	)
	flag.Parse()

	// A missing .env is fine; the environment may carry everything already.
	_ = godotenv.Load()
	cfg := config.Load()

	// ── 2. Structured logging ───────────────────────────────────────
	initLogger(cfg.Log)

	if *hotelName == "" {
		fmt.Fprintln(os.Stderr, "usage: ratescout -hotel <name> [-start YYYY-MM-DD] [-days N] [-url <search url>]")
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	start := time.Now().AddDate(0, 0, 1)
	if *startStr != "" {
		parsed, err := time.Parse(planner.DateFormat, *startStr)
		if err != nil {
			slog.Error("invalid -start date, want YYYY-MM-DD", "got", *startStr)
			os.Exit(2)
		}
		start = parsed
	}

	// ── 3. Load the discovery profile ───────────────────────────────
	st := store.New(cfg.Store)
	profile, err := st.LoadProfile(*hotelName)
	if errors.Is(err, store.ErrProfileNotFound) {
		slog.Error("no discovery profile for hotel; run ratescout-discover first", "hotel", *hotelName)
		os.Exit(1)
	}
	if err != nil {
		slog.Error("failed to load profile", "error", err)
		os.Exit(1)
	}
	targetURL := profile.HotelURL
	if *urlFlag != "" {
		targetURL = *urlFlag
	}

	slog.Info("ratescout starting",
		"hotel", profile.HotelName,
		"rooms", len(profile.RoomTypes),
		"start", start.Format(planner.DateFormat),
		"days", *days,
	)

	// ── 4. Collaborators ────────────────────────────────────────────
	br, err := browser.New(cfg.Browser)
	if err != nil {
		slog.Error("failed to launch browser", "error", err)
		os.Exit(1)
	}
	defer br.Close()

	sessions := session.NewManager(cfg.Session)

	pipeline, err := content.NewPipeline(cfg.Scrape.ReadySelector, cfg.Scrape.MaxDocChars)
	if err != nil {
		slog.Error("failed to build content pipeline", "error", err)
		os.Exit(1)
	}

	var (
		mx     *metrics.Metrics
		status *scrape.StatusTracker
	)
	if cfg.Monitor.Enabled {
		mx = metrics.New()
		status = &scrape.StatusTracker{}
		mon := api.NewMonitor(cfg.Monitor, status, mx.Registry)
		mon.Start()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			mon.Shutdown(ctx)
		}()
	}

	var preflight scrape.Prober
	if cfg.Probe.Enabled {
		preflight = probe.New(cfg.Probe, cfg.Browser.Proxy)
	}

	pager := &sessionPager{browser: br, sessions: sessions, cfg: cfg.Scrape}
	machine := scrape.NewPricingMachine(pager, pipeline, llm.New(cfg.LLM, nil, mx), cfg.Scrape, profile.HotelName, profile.RoomTypes)
	runner := scrape.NewRunner(scrape.RunnerParams{
		Machine: machine,
		Session: sessions,
		Delays:  scrape.NewDelayPolicy(cfg.Delay, scrape.PhasePricing),
		Sink:    st,
		Metrics: mx,
		Status:  status,
		Probe:   preflight,
		Hotel:   profile.HotelName,
		BaseURL: targetURL,
		Warmup:  cfg.Scrape.Warmup,
	})

	// ── 5. Plan and run ─────────────────────────────────────────────
	steps, err := planner.Build(targetURL, planner.PricingWindow(start, *days))
	if err != nil {
		slog.Error("failed to plan pricing dates", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runStart := time.Now()
	results, err := runner.Run(ctx, steps)
	if err != nil {
		slog.Error("pricing run failed", "error", err)
		os.Exit(1)
	}

	// ── 6. Collect rates and persist the report ─────────────────────
	rates := scrape.CollectRates(profile.RoomTypes, results)
	if len(rates) == 0 {
		slog.Error("no dates produced rates; nothing to save")
		os.Exit(1)
	}
	report := models.RateReport{HotelName: profile.HotelName, DailyRates: rates}
	path, err := st.SaveReport(report, time.Now())
	if err != nil {
		slog.Error("failed to save report", "error", err)
		os.Exit(1)
	}

	// ── 7. Summary ──────────────────────────────────────────────────
	sum := scrape.Summarize(results, time.Since(runStart))
	fmt.Printf("\nScraped %s: %d/%d dates in %s (%d partial, %d aborted)\n",
		profile.HotelName, sum.DatesAccepted, sum.DatesPlanned,
		sum.Elapsed.Round(time.Second), sum.Partials, sum.DatesAborted)

	fmt.Println("\nRoom availability over the window:")
	for _, a := range aggregate.Availability(profile.RoomTypes, rates) {
		fmt.Printf("  %-45s %2d/%2d dates priced (%3.0f%%)\n", a.Room, a.Priced, a.Total, a.Ratio*100)
	}
	fmt.Printf("\nReport saved to %s\n", path)
}

// sessionPager binds the current session identity to every page it opens.
type sessionPager struct {
	browser  *browser.Browser
	sessions *session.Manager
	cfg      config.ScrapeConfig
}

func (p *sessionPager) Open(ctx context.Context, url string) (scrape.PageHandle, error) {
	return p.browser.Open(ctx, browser.PageRequest{
		URL:               url,
		Fingerprint:       p.sessions.Current().Fingerprint,
		Patches:           stealth.Catalog(),
		ReadySelector:     p.cfg.ReadySelector,
		ChallengeKeywords: p.cfg.CaptchaKeywords,
	})
}

func (p *sessionPager) Warmup(ctx context.Context, url string) error {
	return p.browser.Warmup(ctx, url, p.sessions.Current().Fingerprint, stealth.Catalog())
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
