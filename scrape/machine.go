// Package scrape drives stealth page scrapes end to end: a state machine
// for single attempts, a retry controller that classifies outcomes, a
// humanized delay engine, and a runner that walks a planned date window.
package scrape

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/use-agent/ratescout/aggregate"
	"github.com/use-agent/ratescout/config"
	"github.com/use-agent/ratescout/extract"
	"github.com/use-agent/ratescout/models"
	"github.com/use-agent/ratescout/planner"
)

// Pager opens fingerprinted browser pages.
type Pager interface {
	// Open navigates a fresh page to url and returns its handle.
	Open(ctx context.Context, url string) (PageHandle, error)

	// Warmup visits url with a short dwell and discards the page, priming
	// cookies and TLS state before the first real scrape.
	Warmup(ctx context.Context, url string) error
}

// PageHandle is one open page. Callers must Close it on every path.
type PageHandle interface {
	// WaitReady blocks until the page is capturable: the content container
	// is populated, or a bot wall has rendered its challenge text.
	WaitReady() error

	// Dwell performs humanized on-page behavior between readiness and capture.
	Dwell(ctx context.Context)

	// Content returns the current full HTML.
	Content() (string, error)

	Close() error
}

// DocumentPreparer reduces raw page HTML for the extraction step.
type DocumentPreparer interface {
	// Prepare returns the model-ready document for the page.
	Prepare(rawHTML string, sourceURL string) (string, error)

	// Text returns the page's visible text, scripts and styles stripped.
	Text(rawHTML string) string
}

// Extractor turns a prepared document into raw structured output. The
// machine salvages and validates whatever comes back, so implementations
// may return prose-wrapped JSON.
type Extractor interface {
	ExtractRooms(ctx context.Context, doc string) (string, error)
	ExtractRates(ctx context.Context, doc string, hotel string, date string, rooms []string) (string, error)
}

// State names a checkpoint in one page-scrape attempt.
type State int

const (
	StateIdle State = iota
	StateNavigating
	StateWaitingForContent
	StateCaptchaCheck
	StateExtracting
	StateValidating
	StateDone
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateNavigating:
		return "navigating"
	case StateWaitingForContent:
		return "waiting_for_content"
	case StateCaptchaCheck:
		return "captcha_check"
	case StateExtracting:
		return "extracting"
	case StateValidating:
		return "validating"
	case StateDone:
		return "done"
	case StateAborted:
		return "aborted"
	}
	return "unknown"
}

// Phase selects what a machine extracts from each page.
type Phase int

const (
	// PhaseDiscovery extracts the room-name list from a search page.
	PhaseDiscovery Phase = iota

	// PhasePricing extracts nightly rates against a fixed room catalog.
	PhasePricing
)

func (p Phase) String() string {
	if p == PhasePricing {
		return "pricing"
	}
	return "discovery"
}

// Machine runs one page-scrape attempt through its states and reports a
// tagged outcome. It is stateless between runs; the retry controller and
// runner own everything that spans attempts.
type Machine struct {
	pager   Pager
	prep    DocumentPreparer
	extract Extractor
	cfg     config.ScrapeConfig
	phase   Phase

	// pricing only
	hotel   string
	catalog []string
}

// NewDiscoveryMachine returns a machine that extracts room-name lists.
func NewDiscoveryMachine(pager Pager, prep DocumentPreparer, ext Extractor, cfg config.ScrapeConfig) *Machine {
	return &Machine{pager: pager, prep: prep, extract: ext, cfg: cfg, phase: PhaseDiscovery}
}

// NewPricingMachine returns a machine that extracts nightly rates for hotel
// against the fixed room catalog.
func NewPricingMachine(pager Pager, prep DocumentPreparer, ext Extractor, cfg config.ScrapeConfig, hotel string, catalog []string) *Machine {
	return &Machine{pager: pager, prep: prep, extract: ext, cfg: cfg, phase: PhasePricing, hotel: hotel, catalog: catalog}
}

// Phase reports what the machine extracts.
func (m *Machine) Phase() Phase {
	return m.phase
}

func (m *Machine) timeout() time.Duration {
	if m.phase == PhasePricing {
		return m.cfg.PricingTimeout
	}
	return m.cfg.DiscoveryTimeout
}

// Run executes one attempt against step. Every return is a terminal
// outcome; errors never escape as errors because the retry controller
// classifies them by kind instead.
func (m *Machine) Run(ctx context.Context, step planner.Step) models.Outcome {
	ctx, cancel := context.WithTimeout(ctx, m.timeout())
	defer cancel()

	// ── 1. Navigating ──
	m.transition(StateNavigating, step)
	page, err := m.pager.Open(ctx, step.URL)
	if err != nil {
		return m.finish(models.NetworkFailureOutcome(err), step)
	}
	closed := false
	closePage := func() {
		if closed {
			return
		}
		closed = true
		if cerr := page.Close(); cerr != nil {
			slog.Debug("page close failed", "error", cerr)
		}
	}
	defer closePage()

	// ── 2. Waiting for content ──
	m.transition(StateWaitingForContent, step)
	if err := page.WaitReady(); err != nil {
		return m.finish(models.NetworkFailureOutcome(err), step)
	}
	page.Dwell(ctx)

	rawHTML, err := page.Content()
	if err != nil {
		return m.finish(models.NetworkFailureOutcome(err), step)
	}
	// The tab is no longer needed; free it before the extraction roundtrip.
	closePage()

	// ── 3. Captcha check ──
	m.transition(StateCaptchaCheck, step)
	pageText := m.prep.Text(rawHTML)
	if kw, hit := scanForChallenge(pageText, m.cfg.CaptchaKeywords); hit {
		slog.Warn("bot wall detected", "date", step.Date(), "keyword", kw)
		return m.finish(models.CaptchaOutcome(pageText), step)
	}

	// ── 4. Extracting ──
	m.transition(StateExtracting, step)
	doc, err := m.prep.Prepare(rawHTML, step.URL)
	if err != nil {
		return m.finish(models.ParseFailureOutcome("", err), step)
	}

	var raw string
	if m.phase == PhasePricing {
		raw, err = m.extract.ExtractRates(ctx, doc, m.hotel, step.Date(), m.catalog)
	} else {
		raw, err = m.extract.ExtractRooms(ctx, doc)
	}
	if err != nil {
		return m.finish(models.NetworkFailureOutcome(err), step)
	}

	// ── 5. Validating ──
	m.transition(StateValidating, step)
	return m.finish(m.validate(raw, step), step)
}

// validate salvages the model output and checks it against the schema for
// the machine's phase.
func (m *Machine) validate(raw string, step planner.Step) models.Outcome {
	payload, found := extract.SalvageObject(raw)
	if !found {
		return models.ParseFailureOutcome(raw, errors.New("no JSON object in extraction output"))
	}

	if m.phase == PhaseDiscovery {
		rooms, err := extract.ValidateRoomList(payload)
		if err != nil {
			return models.ParseFailureOutcome(raw, err)
		}
		return models.DiscoveryOutcome(rooms)
	}

	rate, err := extract.ValidateDailyRate(payload)
	if err != nil {
		return models.ParseFailureOutcome(raw, err)
	}
	if rate.Date != step.Date() {
		// The model sometimes echoes a date from page copy; the planned
		// check-in date is authoritative.
		slog.Warn("extraction echoed a different date, correcting",
			"got", rate.Date, "want", step.Date())
		rate.Date = step.Date()
	}
	if missing := aggregate.MissingRooms(m.catalog, rate); len(missing) > 0 {
		return models.PartialOutcome(&rate, missing)
	}
	return models.SuccessOutcome(&rate)
}

func (m *Machine) finish(o models.Outcome, step planner.Step) models.Outcome {
	final := StateDone
	if o.Kind != models.OutcomeSuccess && o.Kind != models.OutcomePartial {
		final = StateAborted
	}
	m.transition(final, step)
	return o
}

func (m *Machine) transition(s State, step planner.Step) {
	slog.Debug("scrape state", "state", s.String(), "phase", m.phase.String(), "date", step.Date())
}

// scanForChallenge reports the first challenge keyword present in the
// page's visible text, matched case-insensitively.
func scanForChallenge(pageText string, keywords []string) (string, bool) {
	lower := strings.ToLower(pageText)
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(kw)) {
			return kw, true
		}
	}
	return "", false
}
