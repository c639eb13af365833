package browser

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"net/url"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	rodstealth "github.com/go-rod/stealth"
	"github.com/ysmood/gson"

	"github.com/use-agent/ratescout/fingerprint"
	"github.com/use-agent/ratescout/models"
	"github.com/use-agent/ratescout/stealth"
)

// PageRequest describes one stealth page visit.
type PageRequest struct {
	URL         string
	Fingerprint fingerprint.Fingerprint

	// Patches is the full patch set for this visit; identity patches are
	// installed before navigation, behavior patches run during Dwell.
	Patches []stealth.Patch

	// ReadySelector is the container that must be present and populated
	// before the page counts as ready. Empty means wait for DOM stability
	// only (used for warmup visits).
	ReadySelector string

	// ChallengeKeywords release the ready wait early when they show up in
	// the page text, so a challenge interstitial is classified instead of
	// timing out.
	ChallengeKeywords []string
}

// Page is one open tab bound to the attempt's context.
//
// The unbound reference is kept alongside the bound one: cleanup navigates
// to about:blank with the unbound page so it still works after the attempt
// deadline has fired.
type Page struct {
	page   *rod.Page // unbound, for cleanup
	p      *rod.Page // context-bound, for all page operations
	req    PageRequest
	router *rod.HijackRouter
}

// settle bounds for the initial pause after a page becomes ready.
const (
	settleMin = 500 * time.Millisecond
	settleMax = 1500 * time.Millisecond
)

// Open creates a fresh tab, installs the session's disguise, and navigates.
//
// Lifecycle (numbered steps match the inline comments):
//
//	1. Fresh tab             - clean rendering state for every attempt
//	2. Identity scrubbing    - stealth library + identity patches (before navigation!)
//	3. Fingerprint overrides - user agent, viewport, locale
//	4. Headers               - fingerprint headers + search-engine referer
//	5. Resource blocking     - optional hijack router (before navigation!)
//	6. Context binding       - propagate the attempt deadline to all page ops
//	7. Navigate              - triggers the page load
//
// Steps 2-5 must happen before step 7: identity patches and request
// interception only take effect for navigations installed ahead of them.
func (b *Browser) Open(ctx context.Context, req PageRequest) (*Page, error) {
	// ── 1. Fresh tab ──────────────────────────────────────────────────
	page, err := b.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, models.NewScrapeError(
			models.ErrCodeBrowser,
			"failed to create page",
			err,
		)
	}

	opened := false
	defer func() {
		if !opened {
			_ = page.Close()
		}
	}()

	// ── 2. Identity scrubbing (before navigation) ─────────────────────
	if _, evalErr := page.EvalOnNewDocument(rodstealth.JS); evalErr != nil {
		slog.Warn("stealth library injection failed, proceeding without it",
			"error", evalErr,
		)
	}
	for _, patch := range req.Patches {
		if patch.Stage != stealth.StagePreNavigation {
			continue
		}
		if _, evalErr := page.EvalOnNewDocument(patch.JS); evalErr != nil {
			slog.Warn("identity patch injection failed",
				"patch", patch.Name, "error", evalErr,
			)
		}
	}

	// ── 3. Fingerprint overrides ──────────────────────────────────────
	fp := req.Fingerprint
	if uaErr := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent:      fp.UserAgent,
		AcceptLanguage: fp.AcceptLanguage(),
	}); uaErr != nil {
		slog.Warn("user agent override failed", "error", uaErr)
	}
	if vpErr := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             fp.Viewport.Width,
		Height:            fp.Viewport.Height,
		DeviceScaleFactor: 1,
		Mobile:            false,
	}); vpErr != nil {
		slog.Warn("viewport override failed", "error", vpErr)
	}
	_ = proto.EmulationSetLocaleOverride{Locale: fp.LocaleTag}.Call(page)

	// ── 4. Headers (fingerprint set + search-engine referer) ─────────
	extraHeaders := make(map[string]string, len(fp.Headers)+1)
	if _, hasReferer := fp.Headers["Referer"]; !hasReferer {
		if u, parseErr := url.Parse(req.URL); parseErr == nil {
			extraHeaders["Referer"] = "https://www.google.com/search?q=" + url.QueryEscape(u.Hostname())
		}
	}
	for k, v := range fp.Headers {
		extraHeaders[k] = v
	}
	if len(extraHeaders) > 0 {
		_ = proto.NetworkSetExtraHTTPHeaders{
			Headers: toHeadersMap(extraHeaders),
		}.Call(page)
	}

	// ── 5. Resource blocking (optional, off by default) ──────────────
	router := mountHijack(page, b.cfg.BlockedResourceTypes)

	// ── 6. Bind the attempt context ───────────────────────────────────
	p := page.Context(ctx)

	// ── 7. Navigate ───────────────────────────────────────────────────
	if navErr := p.Navigate(req.URL); navErr != nil {
		if router != nil {
			_ = router.Stop()
		}
		return nil, categorizeError(navErr, "navigation to target URL failed")
	}

	opened = true
	return &Page{page: page, p: p, req: req, router: router}, nil
}

// readyJS polls until the room-list container is present and populated, or
// until challenge text surfaces (the machine then classifies the page rather
// than waiting out the clock on an interstitial).
const readyJS = `(sel, kws) => {
	const text = (document.body ? document.body.innerText : '').toLowerCase();
	if (kws.some(k => text.includes(k))) return true;
	const c = document.querySelector(sel);
	return c !== null && c.children.length > 0;
}`

// WaitReady suspends until the readiness predicate holds. With no selector
// configured it settles for DOM stability (warmup visits).
func (pg *Page) WaitReady() error {
	if pg.req.ReadySelector == "" {
		if err := pg.p.WaitDOMStable(300*time.Millisecond, 0.1); err != nil {
			slog.Debug("DOM did not stabilize, proceeding with current state",
				"error", err,
			)
		}
		return nil
	}

	kws := make([]string, len(pg.req.ChallengeKeywords))
	for i, kw := range pg.req.ChallengeKeywords {
		kws[i] = strings.ToLower(kw)
	}

	if err := pg.p.Wait(rod.Eval(readyJS, pg.req.ReadySelector, kws)); err != nil {
		return categorizeError(err, "room list never became ready")
	}
	return nil
}

// Dwell plays the post-load behavior patches and a short humanized scroll so
// the page sees organic-looking activity between readiness and capture. All
// of it is best-effort: a failed gesture never fails the scrape, and lazy
// loaded cards get their chance to render either way.
func (pg *Page) Dwell(ctx context.Context) {
	pg.pause(ctx, settleMin, settleMax)

	for _, patch := range pg.req.Patches {
		if patch.Stage != stealth.StagePostLoad {
			continue
		}
		// Eval needs a function form; the patch sources are statement lists.
		if _, err := pg.p.Eval("() => {\n" + patch.JS + "\n}"); err != nil {
			slog.Debug("behavior patch failed",
				"patch", patch.Name, "error", err,
			)
		}
		pg.pause(ctx, 200*time.Millisecond, 600*time.Millisecond)
	}

	pg.scrollThrough(ctx)
}

// scrollThrough pages down through the listing roughly one viewport at a
// time. Mouse.Scroll emits real CDP input events, which reads as organic
// wheel activity and triggers lazy-loaded room cards.
func (pg *Page) scrollThrough(ctx context.Context) {
	res, err := pg.p.Eval(`() => window.innerHeight`)
	if err != nil {
		return
	}
	viewportHeight := res.Value.Int()

	for i := 0; i < 3; i++ {
		if err := pg.p.Mouse.Scroll(0, float64(viewportHeight), rand.Intn(3)+2); err != nil {
			slog.Debug("scroll step failed", "step", i, "error", err)
			return
		}
		pg.pause(ctx, 300*time.Millisecond, 900*time.Millisecond)
	}
}

// Content captures the rendered page HTML.
func (pg *Page) Content() (string, error) {
	rawHTML, err := pg.p.HTML()
	if err != nil {
		return "", categorizeError(err, "failed to capture page HTML")
	}
	return rawHTML, nil
}

// Close stops the hijack router, parks the tab on about:blank and closes it.
// It uses the unbound page reference so cleanup still succeeds after the
// attempt deadline has expired.
func (pg *Page) Close() error {
	if pg.router != nil {
		_ = pg.router.Stop()
	}
	if navErr := pg.page.Navigate("about:blank"); navErr != nil {
		slog.Warn("cleanup: failed to navigate to about:blank",
			"error", navErr,
		)
	}
	return pg.page.Close()
}

// pause sleeps a uniform-random duration within [min,max), aborting early
// when the attempt context ends.
func (pg *Page) pause(ctx context.Context, min, max time.Duration) {
	d := min + time.Duration(rand.Int63n(int64(max-min)))
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}

// categorizeError wraps raw page errors into typed ScrapeErrors so the
// retry controller can tell timeouts from hard navigation failures.
func categorizeError(err error, msg string) *models.ScrapeError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewScrapeError(models.ErrCodeTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewScrapeError(models.ErrCodeTimeout, "attempt canceled", err)
	default:
		return models.NewScrapeError(models.ErrCodeNavigation, msg, err)
	}
}
