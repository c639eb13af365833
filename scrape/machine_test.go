package scrape

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/use-agent/ratescout/config"
	"github.com/use-agent/ratescout/models"
	"github.com/use-agent/ratescout/planner"
)

// ── stub collaborators ──

type stubPage struct {
	html       string
	readyErr   error
	contentErr error
	closes     int
}

func (p *stubPage) WaitReady() error          { return p.readyErr }
func (p *stubPage) Dwell(ctx context.Context) {}
func (p *stubPage) Close() error              { p.closes++; return nil }

func (p *stubPage) Content() (string, error) {
	if p.contentErr != nil {
		return "", p.contentErr
	}
	return p.html, nil
}

type stubPager struct {
	pages   []*stubPage
	openErr error
	opens   int
	warmups int
}

func (p *stubPager) Open(ctx context.Context, url string) (PageHandle, error) {
	p.opens++
	if p.openErr != nil {
		return nil, p.openErr
	}
	page := p.pages[0]
	if len(p.pages) > 1 {
		p.pages = p.pages[1:]
	}
	return page, nil
}

func (p *stubPager) Warmup(ctx context.Context, url string) error {
	p.warmups++
	return nil
}

// passthroughPrep hands the page HTML straight to the extractor, so tests
// script behavior at the page and extractor level.
type passthroughPrep struct {
	prepareErr error
}

func (p passthroughPrep) Prepare(rawHTML, sourceURL string) (string, error) {
	if p.prepareErr != nil {
		return "", p.prepareErr
	}
	return rawHTML, nil
}

func (p passthroughPrep) Text(rawHTML string) string { return rawHTML }

type stubExtractor struct {
	outputs []string
	err     error
	calls   int

	gotDoc   string
	gotHotel string
	gotDate  string
	gotRooms []string
}

func (e *stubExtractor) next() (string, error) {
	e.calls++
	if e.err != nil {
		return "", e.err
	}
	out := e.outputs[0]
	if len(e.outputs) > 1 {
		e.outputs = e.outputs[1:]
	}
	return out, nil
}

func (e *stubExtractor) ExtractRooms(ctx context.Context, doc string) (string, error) {
	e.gotDoc = doc
	return e.next()
}

func (e *stubExtractor) ExtractRates(ctx context.Context, doc, hotel, date string, rooms []string) (string, error) {
	e.gotDoc, e.gotHotel, e.gotDate, e.gotRooms = doc, hotel, date, rooms
	return e.next()
}

// ── helpers ──

func testScrapeConfig() config.ScrapeConfig {
	return config.ScrapeConfig{
		DiscoveryTimeout: 5 * time.Second,
		PricingTimeout:   5 * time.Second,
		CaptchaKeywords:  []string{"prove you are human", "captcha"},
	}
}

func mkStep(t *testing.T, date string) planner.Step {
	t.Helper()
	checkIn, err := time.Parse(planner.DateFormat, date)
	if err != nil {
		t.Fatalf("bad test date %q: %v", date, err)
	}
	return planner.Step{
		CheckIn:  checkIn,
		CheckOut: checkIn.AddDate(0, 0, 1),
		URL:      "https://hotels.test/h123?chkin=" + date,
	}
}

// ── tests ──

func TestRunDiscoverySuccess(t *testing.T) {
	pager := &stubPager{pages: []*stubPage{{html: "<html>room list</html>"}}}
	ext := &stubExtractor{outputs: []string{
		`Sure, here are the rooms: {"rooms": ["Standard Twin", "Deluxe King"]}`,
	}}
	m := NewDiscoveryMachine(pager, passthroughPrep{}, ext, testScrapeConfig())

	out := m.Run(context.Background(), mkStep(t, "2025-09-01"))

	if out.Kind != models.OutcomeSuccess {
		t.Fatalf("Kind = %v, want success (err: %v)", out.Kind, out.Err)
	}
	if len(out.Rooms) != 2 || out.Rooms[0] != "Standard Twin" || out.Rooms[1] != "Deluxe King" {
		t.Errorf("Rooms = %v", out.Rooms)
	}
	if ext.calls != 1 {
		t.Errorf("extractor calls = %d, want 1", ext.calls)
	}
}

func TestRunPricingSuccess(t *testing.T) {
	pager := &stubPager{pages: []*stubPage{{html: "<html>rates</html>"}}}
	ext := &stubExtractor{outputs: []string{
		`{"date": "2025-09-01", "listings": [
			{"name": "Standard Twin", "price": "¥12,500"},
			{"name": "Deluxe King", "price": "Sold Out"}
		]}`,
	}}
	catalog := []string{"Deluxe King", "Standard Twin"}
	m := NewPricingMachine(pager, passthroughPrep{}, ext, testScrapeConfig(), "Grand Pine Hotel", catalog)

	out := m.Run(context.Background(), mkStep(t, "2025-09-01"))

	if out.Kind != models.OutcomeSuccess {
		t.Fatalf("Kind = %v, want success (err: %v)", out.Kind, out.Err)
	}
	if out.Rate == nil || len(out.Rate.Listings) != 2 {
		t.Fatalf("Rate = %+v", out.Rate)
	}
	if ext.gotHotel != "Grand Pine Hotel" || ext.gotDate != "2025-09-01" {
		t.Errorf("extractor got hotel %q date %q", ext.gotHotel, ext.gotDate)
	}
	if len(ext.gotRooms) != 2 {
		t.Errorf("extractor got catalog %v", ext.gotRooms)
	}
}

func TestRunPricingCorrectsEchoedDate(t *testing.T) {
	pager := &stubPager{pages: []*stubPage{{html: "<html>rates</html>"}}}
	ext := &stubExtractor{outputs: []string{
		`{"date": "2025-01-01", "listings": [{"name": "Standard Twin", "price": "¥9,800"}]}`,
	}}
	m := NewPricingMachine(pager, passthroughPrep{}, ext, testScrapeConfig(), "Grand Pine Hotel", []string{"Standard Twin"})

	out := m.Run(context.Background(), mkStep(t, "2025-09-01"))

	if out.Kind != models.OutcomeSuccess {
		t.Fatalf("Kind = %v, want success (err: %v)", out.Kind, out.Err)
	}
	if out.Rate.Date != "2025-09-01" {
		t.Errorf("Rate.Date = %q, want the planned check-in date", out.Rate.Date)
	}
}

func TestRunPricingPartialResult(t *testing.T) {
	pager := &stubPager{pages: []*stubPage{{html: "<html>rates</html>"}}}
	ext := &stubExtractor{outputs: []string{
		`{"date": "2025-09-01", "listings": [{"name": "Standard Twin", "price": "¥12,500"}]}`,
	}}
	catalog := []string{"Deluxe King", "Standard Twin", "Suite"}
	m := NewPricingMachine(pager, passthroughPrep{}, ext, testScrapeConfig(), "Grand Pine Hotel", catalog)

	out := m.Run(context.Background(), mkStep(t, "2025-09-01"))

	if out.Kind != models.OutcomePartial {
		t.Fatalf("Kind = %v, want partial (err: %v)", out.Kind, out.Err)
	}
	if len(out.MissingRooms) != 2 || out.MissingRooms[0] != "Deluxe King" || out.MissingRooms[1] != "Suite" {
		t.Errorf("MissingRooms = %v", out.MissingRooms)
	}
	if out.Rate == nil || len(out.Rate.Listings) != 1 {
		t.Errorf("partial outcome should still carry the rate, got %+v", out.Rate)
	}
}

func TestRunDetectsBotWall(t *testing.T) {
	page := &stubPage{html: "Before we continue, please prove you are human by solving this puzzle."}
	pager := &stubPager{pages: []*stubPage{page}}
	ext := &stubExtractor{outputs: []string{"{}"}}
	m := NewDiscoveryMachine(pager, passthroughPrep{}, ext, testScrapeConfig())

	out := m.Run(context.Background(), mkStep(t, "2025-09-01"))

	if out.Kind != models.OutcomeCaptcha {
		t.Fatalf("Kind = %v, want captcha", out.Kind)
	}
	if out.RawText == "" {
		t.Error("captcha outcome should carry the page text for diagnostics")
	}
	if ext.calls != 0 {
		t.Errorf("extractor called %d times on a challenge page, want 0", ext.calls)
	}
	if page.closes != 1 {
		t.Errorf("page closed %d times, want exactly 1", page.closes)
	}
}

func TestRunOpenFailureIsNetworkFailure(t *testing.T) {
	pager := &stubPager{openErr: models.NewScrapeError(models.ErrCodeTimeout, "page load timed out", context.DeadlineExceeded)}
	ext := &stubExtractor{outputs: []string{"{}"}}
	m := NewDiscoveryMachine(pager, passthroughPrep{}, ext, testScrapeConfig())

	out := m.Run(context.Background(), mkStep(t, "2025-09-01"))

	if out.Kind != models.OutcomeNetworkFailure {
		t.Fatalf("Kind = %v, want network_failure", out.Kind)
	}
	if models.ErrorCode(out.Err) != models.ErrCodeTimeout {
		t.Errorf("ErrorCode = %q, want %q", models.ErrorCode(out.Err), models.ErrCodeTimeout)
	}
}

func TestRunWaitReadyFailureClosesPage(t *testing.T) {
	page := &stubPage{readyErr: models.NewScrapeError(models.ErrCodeTimeout, "content never settled", context.DeadlineExceeded)}
	pager := &stubPager{pages: []*stubPage{page}}
	m := NewDiscoveryMachine(pager, passthroughPrep{}, &stubExtractor{outputs: []string{"{}"}}, testScrapeConfig())

	out := m.Run(context.Background(), mkStep(t, "2025-09-01"))

	if out.Kind != models.OutcomeNetworkFailure {
		t.Fatalf("Kind = %v, want network_failure", out.Kind)
	}
	if page.closes != 1 {
		t.Errorf("page closed %d times, want exactly 1", page.closes)
	}
}

func TestRunExtractorErrorIsNetworkFailure(t *testing.T) {
	pager := &stubPager{pages: []*stubPage{{html: "<html>fine</html>"}}}
	ext := &stubExtractor{err: models.NewScrapeError(models.ErrCodeLLMFailure, "provider returned status 502", nil)}
	m := NewDiscoveryMachine(pager, passthroughPrep{}, ext, testScrapeConfig())

	out := m.Run(context.Background(), mkStep(t, "2025-09-01"))

	if out.Kind != models.OutcomeNetworkFailure {
		t.Fatalf("Kind = %v, want network_failure", out.Kind)
	}
	if models.ErrorCode(out.Err) != models.ErrCodeLLMFailure {
		t.Errorf("ErrorCode = %q", models.ErrorCode(out.Err))
	}
}

func TestRunUnsalvageableOutputIsParseFailure(t *testing.T) {
	pager := &stubPager{pages: []*stubPage{{html: "<html>fine</html>"}}}
	raw := "I could not find any structured data on this page."
	ext := &stubExtractor{outputs: []string{raw}}
	m := NewDiscoveryMachine(pager, passthroughPrep{}, ext, testScrapeConfig())

	out := m.Run(context.Background(), mkStep(t, "2025-09-01"))

	if out.Kind != models.OutcomeParseFailure {
		t.Fatalf("Kind = %v, want parse_failure", out.Kind)
	}
	if out.RawText != raw {
		t.Errorf("RawText = %q, want the verbatim extractor output", out.RawText)
	}
}

func TestRunInvalidShapeIsParseFailure(t *testing.T) {
	pager := &stubPager{pages: []*stubPage{{html: "<html>fine</html>"}}}
	ext := &stubExtractor{outputs: []string{`{"listings": [{"name": "Standard Twin", "price": "¥12,500"}]}`}}
	m := NewPricingMachine(pager, passthroughPrep{}, ext, testScrapeConfig(), "Grand Pine Hotel", []string{"Standard Twin"})

	out := m.Run(context.Background(), mkStep(t, "2025-09-01"))

	if out.Kind != models.OutcomeParseFailure {
		t.Fatalf("Kind = %v, want parse_failure for a rate without a date", out.Kind)
	}
	if models.ErrorCode(out.Err) != models.ErrCodeValidation {
		t.Errorf("ErrorCode = %q, want %q", models.ErrorCode(out.Err), models.ErrCodeValidation)
	}
}

func TestRunPrepareFailureIsParseFailure(t *testing.T) {
	pager := &stubPager{pages: []*stubPage{{html: "<html>fine</html>"}}}
	prep := passthroughPrep{prepareErr: models.NewScrapeError(models.ErrCodeContent, "document empty after reduction", nil)}
	ext := &stubExtractor{outputs: []string{"{}"}}
	m := NewDiscoveryMachine(pager, prep, ext, testScrapeConfig())

	out := m.Run(context.Background(), mkStep(t, "2025-09-01"))

	if out.Kind != models.OutcomeParseFailure {
		t.Fatalf("Kind = %v, want parse_failure", out.Kind)
	}
	if ext.calls != 0 {
		t.Errorf("extractor called %d times after a pipeline failure, want 0", ext.calls)
	}
}

func TestScanForChallenge(t *testing.T) {
	keywords := []string{"prove you are human", "captcha", "start puzzle"}

	tests := []struct {
		name string
		text string
		want bool
	}{
		{"clean page", "Standard Twin ¥12,500 per night", false},
		{"exact keyword", "Please complete the CAPTCHA to continue", true},
		{"mixed case phrase", "Show us you can Prove You Are Human", true},
		{"keyword mid-word is still a hit", "precaptchalike text", true},
		{"empty text", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, got := scanForChallenge(tt.text, keywords)
			if got != tt.want {
				t.Errorf("scanForChallenge(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestScanForChallengeSkipsEmptyKeyword(t *testing.T) {
	if _, hit := scanForChallenge("any page text", []string{""}); hit {
		t.Error("empty keyword must never match")
	}
}

var errBoom = errors.New("boom")

func TestRunContentFailureIsNetworkFailure(t *testing.T) {
	page := &stubPage{contentErr: models.NewScrapeError(models.ErrCodeNavigation, "page gone", errBoom)}
	pager := &stubPager{pages: []*stubPage{page}}
	m := NewDiscoveryMachine(pager, passthroughPrep{}, &stubExtractor{outputs: []string{"{}"}}, testScrapeConfig())

	out := m.Run(context.Background(), mkStep(t, "2025-09-01"))

	if out.Kind != models.OutcomeNetworkFailure {
		t.Fatalf("Kind = %v, want network_failure", out.Kind)
	}
	if !errors.Is(out.Err, errBoom) {
		t.Error("outcome should wrap the original cause")
	}
	if page.closes != 1 {
		t.Errorf("page closed %d times, want exactly 1", page.closes)
	}
}
