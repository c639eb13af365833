package scrape

import (
	"context"
	"testing"
	"time"

	"github.com/use-agent/ratescout/config"
	"github.com/use-agent/ratescout/models"
	"github.com/use-agent/ratescout/planner"
	"github.com/use-agent/ratescout/probe"
	"github.com/use-agent/ratescout/session"
)

type stubProbe struct {
	res   probe.Result
	err   error
	calls int
}

func (p *stubProbe) Check(ctx context.Context, url string) (probe.Result, error) {
	p.calls++
	return p.res, p.err
}

type stubSink struct {
	captchaDates []string
	rawDates     []string
}

func (s *stubSink) SaveCaptchaPage(date, pageText string) (string, error) {
	s.captchaDates = append(s.captchaDates, date)
	return "debug/captcha_page_" + date + ".html", nil
}

func (s *stubSink) SaveRawExtraction(date, raw string) (string, error) {
	s.rawDates = append(s.rawDates, date)
	return "debug/extract_raw_" + date + ".txt", nil
}

const botWallText = "Before we continue, prove you are human."

func testSession(t *testing.T, limit int) *session.Manager {
	t.Helper()
	return session.NewManager(config.SessionConfig{RequestLimit: limit, MaxAge: time.Hour})
}

// newTestRunner wires a runner with instant delays and the given machine.
func newTestRunner(t *testing.T, m *Machine, sess *session.Manager, opts RunnerParams) *Runner {
	t.Helper()
	opts.Machine = m
	opts.Session = sess
	opts.Delays = NewDelayPolicy(config.DelayConfig{}, m.Phase())
	return NewRunner(opts)
}

func mkSteps(t *testing.T, dates ...string) []planner.Step {
	t.Helper()
	steps := make([]planner.Step, 0, len(dates))
	for _, d := range dates {
		steps = append(steps, mkStep(t, d))
	}
	return steps
}

func TestRunnerPricingHappyPath(t *testing.T) {
	pager := &stubPager{pages: []*stubPage{
		{html: "<html>rates sep 1</html>"},
		{html: "<html>rates sep 2</html>"},
	}}
	ext := &stubExtractor{outputs: []string{
		`{"date": "2025-09-01", "listings": [{"name": "Standard Twin", "price": "¥12,500"}]}`,
		`{"date": "2025-09-02", "listings": [{"name": "Standard Twin", "price": "¥13,000"}]}`,
	}}
	catalog := []string{"Standard Twin"}
	m := NewPricingMachine(pager, passthroughPrep{}, ext, testScrapeConfig(), "Grand Pine Hotel", catalog)

	sess := testSession(t, 100)
	pr := &stubProbe{res: probe.Result{StatusCode: 200}}
	status := &StatusTracker{}
	r := newTestRunner(t, m, sess, RunnerParams{
		Probe:   pr,
		Status:  status,
		Hotel:   "Grand Pine Hotel",
		BaseURL: "https://hotels.test",
		Warmup:  true,
	})

	results, err := r.Run(context.Background(), mkSteps(t, "2025-09-01", "2025-09-02"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	for i, res := range results {
		if res.Aborted {
			t.Errorf("result %d aborted: %+v", i, res.Outcome)
		}
		if res.Attempts != 1 {
			t.Errorf("result %d attempts = %d, want 1", i, res.Attempts)
		}
	}
	if pr.calls != 1 {
		t.Errorf("probe calls = %d, want 1", pr.calls)
	}
	if pager.warmups != 1 {
		t.Errorf("warmups = %d, want 1", pager.warmups)
	}

	rates := CollectRates(catalog, results)
	if len(rates) != 2 || rates[0].Date != "2025-09-01" || rates[1].Date != "2025-09-02" {
		t.Errorf("collected rates = %+v", rates)
	}

	snap := status.Snapshot()
	if snap.Running {
		t.Error("status still marked running after Run returned")
	}
	if snap.DatesDone != 2 || snap.DatesAborted != 0 || snap.Attempts != 2 {
		t.Errorf("status = %+v", snap)
	}
}

func TestRunnerRecoversFromBotWall(t *testing.T) {
	pager := &stubPager{pages: []*stubPage{
		{html: botWallText},
		{html: "<html>rates</html>"},
	}}
	ext := &stubExtractor{outputs: []string{
		`{"date": "2025-09-01", "listings": [{"name": "Standard Twin", "price": "¥12,500"}]}`,
	}}
	m := NewPricingMachine(pager, passthroughPrep{}, ext, testScrapeConfig(), "Grand Pine Hotel", []string{"Standard Twin"})

	sess := testSession(t, 100)
	sink := &stubSink{}
	r := newTestRunner(t, m, sess, RunnerParams{Sink: sink})

	results, err := r.Run(context.Background(), mkSteps(t, "2025-09-01"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(results) != 1 || results[0].Aborted {
		t.Fatalf("results = %+v", results)
	}
	if results[0].Attempts != 2 {
		t.Errorf("attempts = %d, want 2", results[0].Attempts)
	}
	if results[0].Outcome.Kind != models.OutcomeSuccess {
		t.Errorf("final outcome = %v, want success", results[0].Outcome.Kind)
	}
	if len(sink.captchaDates) != 1 || sink.captchaDates[0] != "2025-09-01" {
		t.Errorf("captcha artifacts = %v, want one for 2025-09-01", sink.captchaDates)
	}
	if sess.Rotations() == 0 {
		t.Error("bot wall should have burned the session")
	}
}

func TestRunnerAbortsDateAndMovesOn(t *testing.T) {
	pager := &stubPager{pages: []*stubPage{
		{html: botWallText},
		{html: botWallText},
		{html: "<html>rates</html>"},
	}}
	ext := &stubExtractor{outputs: []string{
		`{"date": "2025-09-02", "listings": [{"name": "Standard Twin", "price": "¥13,000"}]}`,
	}}
	m := NewPricingMachine(pager, passthroughPrep{}, ext, testScrapeConfig(), "Grand Pine Hotel", []string{"Standard Twin"})

	sess := testSession(t, 100)
	sink := &stubSink{}
	r := newTestRunner(t, m, sess, RunnerParams{Sink: sink})

	results, err := r.Run(context.Background(), mkSteps(t, "2025-09-01", "2025-09-02"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(results) != 2 {
		t.Fatalf("got %d results, want 2; the run must survive an aborted date", len(results))
	}
	if !results[0].Aborted || results[0].Outcome.Kind != models.OutcomeCaptcha {
		t.Errorf("first date = %+v, want captcha abort", results[0])
	}
	if results[0].Attempts != 2 {
		t.Errorf("first date attempts = %d, want 2 (one retry)", results[0].Attempts)
	}
	if results[1].Aborted {
		t.Errorf("second date aborted: %+v", results[1].Outcome)
	}
	if len(sink.captchaDates) != 2 {
		t.Errorf("captcha artifacts = %v, want one per wall hit", sink.captchaDates)
	}
}

func TestRunnerSavesRawExtractionOnParseFailure(t *testing.T) {
	pager := &stubPager{pages: []*stubPage{
		{html: "<html>rates</html>"},
		{html: "<html>rates</html>"},
	}}
	ext := &stubExtractor{outputs: []string{
		"no structured data here",
		`{"date": "2025-09-01", "listings": [{"name": "Standard Twin", "price": "¥12,500"}]}`,
	}}
	m := NewPricingMachine(pager, passthroughPrep{}, ext, testScrapeConfig(), "Grand Pine Hotel", []string{"Standard Twin"})

	sink := &stubSink{}
	r := newTestRunner(t, m, testSession(t, 100), RunnerParams{Sink: sink})

	results, err := r.Run(context.Background(), mkSteps(t, "2025-09-01"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if results[0].Aborted || results[0].Attempts != 2 {
		t.Fatalf("result = %+v, want recovery on the second attempt", results[0])
	}
	if len(sink.rawDates) != 1 {
		t.Errorf("raw extraction artifacts = %v, want 1", sink.rawDates)
	}
}

func TestRunnerAuthFailureAbortsRun(t *testing.T) {
	pager := &stubPager{pages: []*stubPage{{html: "<html>rates</html>"}}}
	ext := &stubExtractor{err: models.NewScrapeError(models.ErrCodeLLMAuthFailure, "provider rejected credentials", nil)}
	m := NewDiscoveryMachine(pager, passthroughPrep{}, ext, testScrapeConfig())

	r := newTestRunner(t, m, testSession(t, 100), RunnerParams{})

	results, err := r.Run(context.Background(), mkSteps(t, "2025-09-01", "2025-09-02"))
	if err == nil {
		t.Fatal("Run should fail on rejected credentials")
	}
	if models.ErrorCode(err) != models.ErrCodeLLMAuthFailure {
		t.Errorf("ErrorCode = %q, want %q", models.ErrorCode(err), models.ErrCodeLLMAuthFailure)
	}
	if len(results) != 0 {
		t.Errorf("got %d results before abort, want 0", len(results))
	}
}

func TestRunnerProbeFailureAbortsRun(t *testing.T) {
	pager := &stubPager{pages: []*stubPage{{html: "<html>ok</html>"}}}
	m := NewDiscoveryMachine(pager, passthroughPrep{}, &stubExtractor{outputs: []string{`{"rooms": ["Twin"]}`}}, testScrapeConfig())

	pr := &stubProbe{err: models.NewScrapeError(models.ErrCodeProbe, "target unreachable", nil)}
	r := newTestRunner(t, m, testSession(t, 100), RunnerParams{Probe: pr, BaseURL: "https://hotels.test"})

	_, err := r.Run(context.Background(), mkSteps(t, "2025-09-01"))
	if models.ErrorCode(err) != models.ErrCodeProbe {
		t.Fatalf("ErrorCode = %q, want %q", models.ErrorCode(err), models.ErrCodeProbe)
	}
	if pager.opens != 0 {
		t.Errorf("browser opened %d pages after a failed preflight, want 0", pager.opens)
	}
}

func TestRunnerBlockedProbeContinues(t *testing.T) {
	pager := &stubPager{pages: []*stubPage{{html: "<html>ok</html>"}}}
	m := NewDiscoveryMachine(pager, passthroughPrep{}, &stubExtractor{outputs: []string{`{"rooms": ["Twin"]}`}}, testScrapeConfig())

	pr := &stubProbe{res: probe.Result{StatusCode: 403, Blocked: true}}
	r := newTestRunner(t, m, testSession(t, 100), RunnerParams{Probe: pr, BaseURL: "https://hotels.test"})

	results, err := r.Run(context.Background(), mkSteps(t, "2025-09-01"))
	if err != nil {
		t.Fatalf("Run: %v; a blocked preflight should not stop the browser", err)
	}
	if len(results) != 1 || results[0].Aborted {
		t.Errorf("results = %+v", results)
	}
}

func TestRunnerScheduledRotation(t *testing.T) {
	pager := &stubPager{pages: []*stubPage{
		{html: "<html>1</html>"},
		{html: "<html>2</html>"},
		{html: "<html>3</html>"},
	}}
	ext := &stubExtractor{outputs: []string{
		`{"rooms": ["Twin"]}`,
		`{"rooms": ["Twin"]}`,
		`{"rooms": ["Twin"]}`,
	}}
	m := NewDiscoveryMachine(pager, passthroughPrep{}, ext, testScrapeConfig())

	sess := testSession(t, 1) // rotate after every page
	r := newTestRunner(t, m, sess, RunnerParams{})

	results, err := r.Run(context.Background(), mkSteps(t, "2025-09-01", "2025-09-08", "2025-09-15"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if got := sess.Rotations(); got != 2 {
		t.Errorf("rotations = %d, want 2 (before the second and third dates)", got)
	}
}

func TestRunnerCancelledContextStopsRun(t *testing.T) {
	pager := &stubPager{pages: []*stubPage{{html: "<html>1</html>"}}}
	ext := &stubExtractor{outputs: []string{`{"rooms": ["Twin"]}`}}
	m := NewDiscoveryMachine(pager, passthroughPrep{}, ext, testScrapeConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := newTestRunner(t, m, testSession(t, 100), RunnerParams{})
	results, err := r.Run(ctx, mkSteps(t, "2025-09-01", "2025-09-02"))
	if err == nil {
		t.Fatal("Run ignored a cancelled context")
	}
	if len(results) != 0 {
		t.Errorf("got %d results under a cancelled context", len(results))
	}
}

func TestBuildCatalogFromDiscoveryRun(t *testing.T) {
	pager := &stubPager{pages: []*stubPage{
		{html: "<html>aug</html>"},
		{html: "<html>sep</html>"},
	}}
	ext := &stubExtractor{outputs: []string{
		`{"rooms": ["Standard Twin", "Deluxe King"]}`,
		`{"rooms": ["Standard Twin", "Suite with Terrace"]}`,
	}}
	m := NewDiscoveryMachine(pager, passthroughPrep{}, ext, testScrapeConfig())

	r := newTestRunner(t, m, testSession(t, 100), RunnerParams{})
	results, err := r.Run(context.Background(), mkSteps(t, "2025-09-01", "2025-09-08"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	catalog := BuildCatalog(results)
	want := []string{"Deluxe King", "Standard Twin", "Suite with Terrace"}
	if len(catalog) != len(want) {
		t.Fatalf("catalog = %v, want %v", catalog, want)
	}
	for i := range want {
		if catalog[i] != want[i] {
			t.Fatalf("catalog = %v, want %v", catalog, want)
		}
	}
}

func TestCollectRatesKeepsUnexpectedRooms(t *testing.T) {
	rate := models.DailyRate{
		Date: "2025-09-01",
		Listings: []models.Listing{
			{Name: "Standard Twin", Price: "¥12,500"},
			{Name: "Pop-up Glamping Tent", Price: "¥30,000"},
		},
	}
	results := []DateResult{{Outcome: models.SuccessOutcome(&rate)}}

	rates := CollectRates([]string{"Standard Twin"}, results)
	if len(rates) != 1 || len(rates[0].Listings) != 2 {
		t.Fatalf("rates = %+v; listings outside the catalog must be kept", rates)
	}
}

func TestSummarize(t *testing.T) {
	results := []DateResult{
		{Outcome: models.SuccessOutcome(&models.DailyRate{Date: "2025-09-01"})},
		{Outcome: models.PartialOutcome(&models.DailyRate{Date: "2025-09-02"}, []string{"Suite"})},
		{Outcome: models.CaptchaOutcome("wall"), Aborted: true},
	}

	s := Summarize(results, 90*time.Second)
	if s.DatesPlanned != 3 || s.DatesAccepted != 2 || s.DatesAborted != 1 {
		t.Errorf("summary = %+v", s)
	}
	if s.Partials != 1 || s.CaptchaAborts != 1 {
		t.Errorf("summary = %+v", s)
	}
	if s.Elapsed != 90*time.Second {
		t.Errorf("Elapsed = %v", s.Elapsed)
	}
}
