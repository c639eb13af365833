package content

import (
	"bytes"
	"log/slog"
	nurl "net/url"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"

	"github.com/use-agent/ratescout/models"
)

// minContentLength is the minimum readability TextContent length (in
// characters) for the fallback extraction to be considered valid. Below this
// we assume readability failed to locate the listings and keep the raw page.
const minContentLength = 50

// Pipeline narrows a rendered hotel page down to the compact document the
// extraction model reads:
//
//	Stage 1 (select):   keep only the room-list container(s) matched by the
//	                    configured CSS selector.
//	Stage 2 (fallback): if the selector matches nothing, recover the main
//	                    content with readability; failing that, use the raw page.
//	Stage 3 (markdown): convert the surviving HTML to Markdown and cap its size.
//
// The selector and converter are compiled once and reused across all pages
// (goroutine-safe).
type Pipeline struct {
	sel         cascadia.Sel
	mdConverter *markdownConverter
	maxChars    int
}

// NewPipeline compiles the room-container selector and builds the reusable
// Markdown converter. An unparseable selector is a configuration error and is
// rejected up front rather than on the first page.
func NewPipeline(containerSelector string, maxChars int) (*Pipeline, error) {
	sel, err := cascadia.Parse(containerSelector)
	if err != nil {
		return nil, models.NewScrapeError(
			models.ErrCodeInvalidInput,
			"invalid room container selector",
			err,
		)
	}
	return &Pipeline{
		sel:         sel,
		mdConverter: newMarkdownConverter(),
		maxChars:    maxChars,
	}, nil
}

// Prepare reduces raw page HTML to the Markdown document handed to the
// extraction model.
//
// Flow:
//  1. Select the room-list container(s); concatenate their outer HTML.
//  2. If nothing matched, fall back to readability main-content extraction,
//     and to the raw page when that also comes up short.
//  3. Convert to Markdown (tables preserved: room grids are tabular).
//  4. Truncate to the configured character budget.
func (p *Pipeline) Prepare(rawHTML string, sourceURL string) (string, error) {
	// ── 1. Narrow to the room-list container ────────────────────────
	fragment, matched := p.selectContainer(rawHTML)

	// ── 2. Fallback: readability main content, then raw page ───────
	if !matched {
		slog.Warn("content: room container not found, falling back to main-content extraction",
			"url", sourceURL,
		)
		fragment = mainContent(rawHTML, sourceURL)
	}

	// ── 3. Markdown conversion ──────────────────────────────────────
	doc, err := p.mdConverter.toMarkdown(fragment, sourceURL)
	if err != nil {
		return "", models.NewScrapeError(
			models.ErrCodeContent,
			"markdown conversion failed",
			err,
		)
	}

	// ── 4. Cap the document size ────────────────────────────────────
	doc = strings.TrimSpace(doc)
	if n := utf8.RuneCountInString(doc); n > p.maxChars {
		slog.Debug("content: document truncated",
			"url", sourceURL, "runes", n, "max", p.maxChars,
		)
		doc = truncate(doc, p.maxChars)
	}

	if doc == "" {
		return "", models.NewScrapeError(
			models.ErrCodeContent,
			"page produced an empty document",
			nil,
		)
	}
	return doc, nil
}

// Text extracts the page's visible text. It works on the whole document
// rather than the container: challenge pages replace the results markup
// entirely, so the text worth scanning lives outside the selector.
func (p *Pipeline) Text(rawHTML string) string {
	return Text(rawHTML)
}

// selectContainer parses rawHTML, matches elements against the compiled
// container selector, and returns the concatenated outer HTML of all matches.
// The boolean reports whether anything matched.
func (p *Pipeline) selectContainer(rawHTML string) (string, bool) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return "", false
	}

	matches := cascadia.QueryAll(doc, p.sel)
	if len(matches) == 0 {
		return "", false
	}

	var buf bytes.Buffer
	for _, node := range matches {
		if err := html.Render(&buf, node); err != nil {
			return "", false
		}
	}
	return buf.String(), true
}

// mainContent runs the readability algorithm over the full page and returns
// its content HTML. When extraction fails or yields almost nothing, the raw
// page is returned so the converter still has the whole document to work with.
func mainContent(rawHTML string, sourceURL string) string {
	parsedURL, err := nurl.Parse(sourceURL)
	if err != nil {
		return rawHTML
	}

	article, err := readability.FromReader(strings.NewReader(rawHTML), parsedURL)
	if err != nil {
		slog.Warn("content: readability failed, using raw page",
			"url", sourceURL, "error", err,
		)
		return rawHTML
	}

	if len(strings.TrimSpace(article.TextContent)) < minContentLength {
		slog.Warn("content: readability output too short, using raw page",
			"url", sourceURL, "length", len(article.TextContent),
		)
		return rawHTML
	}
	return article.Content
}

// Text extracts the visible text of a page for the CAPTCHA keyword scan.
// Script, style and noscript bodies are dropped first: challenge-widget
// loader scripts mention "captcha" on pages that show no challenge at all,
// and those must not trip the scan.
func Text(rawHTML string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return rawHTML
	}
	doc.Find("script, style, noscript").Remove()
	return strings.TrimSpace(doc.Text())
}

// truncate cuts s to at most max runes, never splitting a multi-byte rune.
func truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}
