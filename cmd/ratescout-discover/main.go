// Command ratescout-discover builds a hotel's room-type catalog by sampling
// search pages across several dates and persisting the union as a profile.
// The pricing phase (ratescout) refuses to run without one.
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
		hotelName = flag.String("hotel", "", "hotel name for the profile (required)")
		hotelURL  = flag.String("url", "", "hotel search-results URL (required)")
		startStr  = flag.String("start", "", "first sampled check-in date, YYYY-MM-DD (default: 30 days out)")
		samples   = flag.Int("samples", 3, "how many dates to sample")
		interval  = flag.Int("interval", 30, "days between sampled dates")
		force     = flag.Bool("force", false, "re-run discovery when a profile exists and merge catalogs")
	)
	flag.Parse()

	// A missing .env is fine; the environment may carry everything already.
	_ = godotenv.Load()
	cfg := config.Load()

	// ── 2. Structured logging ───────────────────────────────────────
	initLogger(cfg.Log)

	if *hotelName == "" || *hotelURL == "" {
		fmt.Fprintln(os.Stderr, "usage: ratescout-discover -hotel <name> -url <search url> [-start YYYY-MM-DD] [-samples N] [-interval DAYS] [-force]")
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	start := time.Now().AddDate(0, 0, 30)
	if *startStr != "" {
		parsed, err := time.Parse(planner.DateFormat, *startStr)
		if err != nil {
			slog.Error("invalid -start date, want YYYY-MM-DD", "got", *startStr)
			os.Exit(2)
		}
		start = parsed
	}

	slog.Info("ratescout-discover starting",
		"hotel", *hotelName,
		"start", start.Format(planner.DateFormat),
		"samples", *samples,
		"interval_days", *interval,
	)

	// ── 3. Existing profile check ───────────────────────────────────
	st := store.New(cfg.Store)
	existing, err := st.LoadProfile(*hotelName)
	haveProfile := err == nil
	if err != nil && !errors.Is(err, store.ErrProfileNotFound) {
		slog.Error("failed to read existing profile", "error", err)
		os.Exit(1)
	}
	if haveProfile && !*force {
		slog.Error("profile already exists; pass -force to re-run discovery and merge",
			"hotel", *hotelName,
			"path", st.ProfilePath(*hotelName),
			"rooms", len(existing.RoomTypes),
		)
		os.Exit(1)
	}

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
	machine := scrape.NewDiscoveryMachine(pager, pipeline, llm.New(cfg.LLM, nil, mx), cfg.Scrape)
	runner := scrape.NewRunner(scrape.RunnerParams{
		Machine: machine,
		Session: sessions,
		Delays:  scrape.NewDelayPolicy(cfg.Delay, scrape.PhaseDiscovery),
		Sink:    st,
		Metrics: mx,
		Status:  status,
		Probe:   preflight,
		Hotel:   *hotelName,
		BaseURL: *hotelURL,
		Warmup:  cfg.Scrape.Warmup,
	})

	// ── 5. Plan and run ─────────────────────────────────────────────
	window := planner.DiscoveryWindow(start, *samples, *interval)
	steps, err := planner.Build(*hotelURL, window)
	if err != nil {
		slog.Error("failed to plan discovery dates", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runStart := time.Now()
	results, err := runner.Run(ctx, steps)
	if err != nil {
		slog.Error("discovery run failed", "error", err)
		os.Exit(1)
	}

	// ── 6. Fold the catalog and persist the profile ─────────────────
	catalog := scrape.BuildCatalog(results)
	runs := 1
	if haveProfile {
		merged := aggregate.NewCatalogBuilder()
		merged.Add(existing.RoomTypes)
		if fresh := merged.Add(catalog); len(fresh) > 0 {
			slog.Info("merged new room types into existing profile", "new", fresh)
		}
		catalog = merged.Sorted()
		runs = existing.Metadata.DiscoveryRuns + 1
	}
	if len(catalog) == 0 {
		slog.Error("no room types discovered; profile left untouched")
		os.Exit(1)
	}

	sampleDates := make([]string, 0, len(steps))
	for _, s := range steps {
		sampleDates = append(sampleDates, s.Date())
	}
	profile := models.HotelProfile{
		HotelName:   *hotelName,
		HotelURL:    *hotelURL,
		RoomTypes:   catalog,
		LastUpdated: time.Now().Format(planner.DateFormat),
		Metadata: models.ProfileMetadata{
			DatesChecked:   len(steps),
			SampleDates:    sampleDates,
			IntervalDays:   *interval,
			TotalRooms:     len(catalog),
			DiscoveryRuns:  runs,
			LastRunSeconds: time.Since(runStart).Seconds(),
		},
	}
	path, err := st.SaveProfile(profile)
	if err != nil {
		slog.Error("failed to save profile", "error", err)
		os.Exit(1)
	}

	// ── 7. Summary ──────────────────────────────────────────────────
	sum := scrape.Summarize(results, time.Since(runStart))
	fmt.Printf("\nDiscovered %d room types for %s (%d/%d dates sampled, %s):\n",
		len(catalog), *hotelName, sum.DatesAccepted, sum.DatesPlanned, sum.Elapsed.Round(time.Second))
	for i, name := range catalog {
		fmt.Printf("%3d. %s\n", i+1, name)
	}
	fmt.Printf("\nProfile saved to %s\n", path)
	if sum.DatesAborted > 0 {
		fmt.Printf("Warning: %d sampled date(s) failed; the catalog may be incomplete.\n", sum.DatesAborted)
	}
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
