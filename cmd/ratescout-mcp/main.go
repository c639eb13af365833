// Command ratescout-mcp exposes the scraping engine over MCP stdio so an
// agent can run discovery and pricing phases as tools. Each tool call runs a
// full engine pass with a fresh browser; state between calls lives in the
// profile and report files, same as the CLIs.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/use-agent/ratescout/aggregate"
	"github.com/use-agent/ratescout/browser"
	"github.com/use-agent/ratescout/config"
	"github.com/use-agent/ratescout/content"
	"github.com/use-agent/ratescout/llm"
	"github.com/use-agent/ratescout/models"
	"github.com/use-agent/ratescout/planner"
	"github.com/use-agent/ratescout/probe"
	"github.com/use-agent/ratescout/scrape"
	"github.com/use-agent/ratescout/session"
	"github.com/use-agent/ratescout/stealth"
	"github.com/use-agent/ratescout/store"
)

func main() {
	// A missing .env is fine; the environment may carry everything already.
	_ = godotenv.Load()
	cfg := config.Load()

	// stdout carries the MCP protocol, so logs must go to stderr.
	initLogger(cfg.Log)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	st := store.New(cfg.Store)

	s := server.NewMCPServer(
		"ratescout",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	discoverTool := mcp.NewTool("discover_rooms",
		mcp.WithDescription("Build (or refresh) a hotel's room-type catalog by sampling its search page across several dates. Must be run before scrape_rates for a new hotel."),
		mcp.WithString("hotel_name",
			mcp.Required(),
			mcp.Description("Hotel name used for the profile"),
		),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("Hotel search-results URL"),
		),
		mcp.WithString("start_date",
			mcp.Description("First sampled check-in date, YYYY-MM-DD (default: 30 days out)"),
		),
		mcp.WithNumber("samples",
			mcp.Description("How many dates to sample (default: 3)"),
		),
		mcp.WithNumber("interval_days",
			mcp.Description("Days between sampled dates (default: 30)"),
		),
		mcp.WithBoolean("force",
			mcp.Description("Re-run discovery when a profile already exists and merge catalogs"),
		),
	)
	s.AddTool(discoverTool, handleDiscoverRooms(cfg, st))

	scrapeRatesTool := mcp.NewTool("scrape_rates",
		mcp.WithDescription("Scrape nightly rates for a profiled hotel across a window of consecutive dates and save the rate report. Long-running: roughly 10-30 seconds per date."),
		mcp.WithString("hotel_name",
			mcp.Required(),
			mcp.Description("Hotel name; discover_rooms must have been run for it"),
		),
		mcp.WithString("start_date",
			mcp.Description("First check-in date, YYYY-MM-DD (default: tomorrow)"),
		),
		mcp.WithNumber("days",
			mcp.Description("How many consecutive nights to scrape (default: 7)"),
		),
	)
	s.AddTool(scrapeRatesTool, handleScrapeRates(cfg, st))

	getProfileTool := mcp.NewTool("get_profile",
		mcp.WithDescription("Return a hotel's stored room-type profile as JSON."),
		mcp.WithString("hotel_name",
			mcp.Required(),
			mcp.Description("Hotel name"),
		),
	)
	s.AddTool(getProfileTool, handleGetProfile(st))

	checkTargetTool := mcp.NewTool("check_target",
		mcp.WithDescription("Lightweight reachability probe of a target URL without launching a browser. Reports HTTP status, page title, and whether the edge answered with a block status."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("URL to probe"),
		),
	)
	s.AddTool(checkTargetTool, handleCheckTarget(cfg))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

// runEngine performs one full scrape pass: fresh browser, fresh sessions,
// shared profile/report store.
func runEngine(ctx context.Context, cfg *config.Config, st *store.Store, phase scrape.Phase, hotel, targetURL string, steps []planner.Step, catalog []string) ([]scrape.DateResult, error) {
	br, err := browser.New(cfg.Browser)
	if err != nil {
		return nil, err
	}
	defer br.Close()

	sessions := session.NewManager(cfg.Session)
	pipeline, err := content.NewPipeline(cfg.Scrape.ReadySelector, cfg.Scrape.MaxDocChars)
	if err != nil {
		return nil, err
	}

	var preflight scrape.Prober
	if cfg.Probe.Enabled {
		preflight = probe.New(cfg.Probe, cfg.Browser.Proxy)
	}

	pager := &sessionPager{browser: br, sessions: sessions, cfg: cfg.Scrape}
	extractor := llm.New(cfg.LLM, nil, nil)

	var machine *scrape.Machine
	if phase == scrape.PhasePricing {
		machine = scrape.NewPricingMachine(pager, pipeline, extractor, cfg.Scrape, hotel, catalog)
	} else {
		machine = scrape.NewDiscoveryMachine(pager, pipeline, extractor, cfg.Scrape)
	}

	runner := scrape.NewRunner(scrape.RunnerParams{
		Machine: machine,
		Session: sessions,
		Delays:  scrape.NewDelayPolicy(cfg.Delay, phase),
		Sink:    st,
		Probe:   preflight,
		Hotel:   hotel,
		BaseURL: targetURL,
		Warmup:  cfg.Scrape.Warmup,
	})
	return runner.Run(ctx, steps)
}

func handleDiscoverRooms(cfg *config.Config, st *store.Store) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		hotel, err := request.RequireString("hotel_name")
		if err != nil {
			return mcp.NewToolResultError("hotel_name is required"), nil
		}
		targetURL, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}

		start := time.Now().AddDate(0, 0, 30)
		if s := request.GetString("start_date", ""); s != "" {
			parsed, perr := time.Parse(planner.DateFormat, s)
			if perr != nil {
				return mcp.NewToolResultError("start_date must be YYYY-MM-DD"), nil
			}
			start = parsed
		}
		samples := intArg(request, "samples", 3)
		interval := intArg(request, "interval_days", 30)
		force := boolArg(request, "force")

		existing, err := st.LoadProfile(hotel)
		haveProfile := err == nil
		if err != nil && !errors.Is(err, store.ErrProfileNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("failed to read existing profile: %v", err)), nil
		}
		if haveProfile && !force {
			return mcp.NewToolResultError(fmt.Sprintf("profile for %q already exists with %d rooms; pass force=true to re-run and merge", hotel, len(existing.RoomTypes))), nil
		}

		steps, err := planner.Build(targetURL, planner.DiscoveryWindow(start, samples, interval))
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to plan dates: %v", err)), nil
		}

		runStart := time.Now()
		results, err := runEngine(ctx, cfg, st, scrape.PhaseDiscovery, hotel, targetURL, steps, nil)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("discovery run failed: %v", err)), nil
		}

		catalog := scrape.BuildCatalog(results)
		runs := 1
		if haveProfile {
			merged := aggregate.NewCatalogBuilder()
			merged.Add(existing.RoomTypes)
			merged.Add(catalog)
			catalog = merged.Sorted()
			runs = existing.Metadata.DiscoveryRuns + 1
		}
		if len(catalog) == 0 {
			return mcp.NewToolResultError("no room types discovered; profile left untouched"), nil
		}

		sampleDates := make([]string, 0, len(steps))
		for _, s := range steps {
			sampleDates = append(sampleDates, s.Date())
		}
		path, err := st.SaveProfile(models.HotelProfile{
			HotelName:   hotel,
			HotelURL:    targetURL,
			RoomTypes:   catalog,
			LastUpdated: time.Now().Format(planner.DateFormat),
			Metadata: models.ProfileMetadata{
				DatesChecked:   len(steps),
				SampleDates:    sampleDates,
				IntervalDays:   interval,
				TotalRooms:     len(catalog),
				DiscoveryRuns:  runs,
				LastRunSeconds: time.Since(runStart).Seconds(),
			},
		})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to save profile: %v", err)), nil
		}

		sum := scrape.Summarize(results, time.Since(runStart))
		var sb strings.Builder
		fmt.Fprintf(&sb, "Discovered %d room types for %s (%d/%d dates sampled):\n",
			len(catalog), hotel, sum.DatesAccepted, sum.DatesPlanned)
		for i, name := range catalog {
			fmt.Fprintf(&sb, "%3d. %s\n", i+1, name)
		}
		fmt.Fprintf(&sb, "\nProfile saved to %s\n", path)
		if sum.DatesAborted > 0 {
			fmt.Fprintf(&sb, "Warning: %d sampled date(s) failed; the catalog may be incomplete.\n", sum.DatesAborted)
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

func handleScrapeRates(cfg *config.Config, st *store.Store) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		hotel, err := request.RequireString("hotel_name")
		if err != nil {
			return mcp.NewToolResultError("hotel_name is required"), nil
		}

		profile, err := st.LoadProfile(hotel)
		if errors.Is(err, store.ErrProfileNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("no profile for %q; run discover_rooms first", hotel)), nil
		}
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to load profile: %v", err)), nil
		}

		start := time.Now().AddDate(0, 0, 1)
		if s := request.GetString("start_date", ""); s != "" {
			parsed, perr := time.Parse(planner.DateFormat, s)
			if perr != nil {
				return mcp.NewToolResultError("start_date must be YYYY-MM-DD"), nil
			}
			start = parsed
		}
		days := intArg(request, "days", 7)

		steps, err := planner.Build(profile.HotelURL, planner.PricingWindow(start, days))
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to plan dates: %v", err)), nil
		}

		runStart := time.Now()
		results, err := runEngine(ctx, cfg, st, scrape.PhasePricing, profile.HotelName, profile.HotelURL, steps, profile.RoomTypes)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("pricing run failed: %v", err)), nil
		}

		rates := scrape.CollectRates(profile.RoomTypes, results)
		if len(rates) == 0 {
			return mcp.NewToolResultError("no dates produced rates; nothing saved"), nil
		}
		path, err := st.SaveReport(models.RateReport{HotelName: profile.HotelName, DailyRates: rates}, time.Now())
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to save report: %v", err)), nil
		}

		sum := scrape.Summarize(results, time.Since(runStart))
		var sb strings.Builder
		fmt.Fprintf(&sb, "Scraped %s: %d/%d dates (%d partial, %d aborted)\n\n",
			profile.HotelName, sum.DatesAccepted, sum.DatesPlanned, sum.Partials, sum.DatesAborted)
		for _, rate := range rates {
			parts := make([]string, 0, len(rate.Listings))
			for _, l := range rate.Listings {
				parts = append(parts, l.Name+" "+l.Price)
			}
			fmt.Fprintf(&sb, "%s: %s\n", rate.Date, strings.Join(parts, " | "))
		}
		fmt.Fprintf(&sb, "\nAvailability:\n")
		for _, a := range aggregate.Availability(profile.RoomTypes, rates) {
			fmt.Fprintf(&sb, "  %s: %d/%d dates priced\n", a.Room, a.Priced, a.Total)
		}
		fmt.Fprintf(&sb, "\nReport saved to %s\n", path)
		return mcp.NewToolResultText(sb.String()), nil
	}
}

func handleGetProfile(st *store.Store) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		hotel, err := request.RequireString("hotel_name")
		if err != nil {
			return mcp.NewToolResultError("hotel_name is required"), nil
		}

		profile, err := st.LoadProfile(hotel)
		if errors.Is(err, store.ErrProfileNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("no profile for %q; run discover_rooms first", hotel)), nil
		}
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to load profile: %v", err)), nil
		}

		pretty, err := json.MarshalIndent(profile, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to encode profile: %v", err)), nil
		}
		return mcp.NewToolResultText(string(pretty)), nil
	}
}

func handleCheckTarget(cfg *config.Config) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		targetURL, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}

		res, err := probe.New(cfg.Probe, cfg.Browser.Proxy).Check(ctx, targetURL)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("probe failed: %v", err)), nil
		}

		verdict := "reachable"
		if res.Blocked {
			verdict = "blocked at the edge; the browser may still get through"
		}
		return mcp.NewToolResultText(fmt.Sprintf("status=%d title=%q verdict=%s", res.StatusCode, res.Title, verdict)), nil
	}
}

// intArg reads a numeric tool argument, which arrives as a JSON float64.
func intArg(request mcp.CallToolRequest, key string, def int) int {
	args := request.GetArguments()
	if v, ok := args[key].(float64); ok && v > 0 {
		return int(v)
	}
	return def
}

func boolArg(request mcp.CallToolRequest, key string) bool {
	args := request.GetArguments()
	v, ok := args[key].(bool)
	return ok && v
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

// initLogger configures slog on stderr, keeping stdout clean for MCP frames.
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
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}
