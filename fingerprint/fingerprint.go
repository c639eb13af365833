// Package fingerprint produces randomized but internally consistent browser
// identities. Each Fingerprint is drawn from fixed catalogs of real-world
// user agents and desktop viewports plus a realistic header template, so any
// single identity is indistinguishable from an ordinary visitor while
// successive identities differ from each other.
package fingerprint

import "math/rand"

// Viewport is a browser window size in CSS pixels.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Fingerprint is one coherent browser identity. Immutable once created and
// owned by exactly one session; rotation builds a new one rather than
// mutating in place.
type Fingerprint struct {
	UserAgent string
	Viewport  Viewport
	Headers   map[string]string
	LocaleTag string
}

// userAgents mixes current Chrome, Firefox, Safari and Edge builds across
// Windows and macOS. Dated entries are worse than none: an obsolete UA is a
// strong bot signal, so this list tracks stable-channel releases.
var userAgents = []string{
	// Chrome on Windows
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	// Chrome on macOS
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	// Firefox on Windows
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:120.0) Gecko/20100101 Firefox/120.0",
	// Firefox on macOS
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:120.0) Gecko/20100101 Firefox/120.0",
	// Safari on macOS
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Safari/605.1.15",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
	// Edge on Windows
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0",
}

// viewports are common desktop resolutions, most-popular first.
var viewports = []Viewport{
	{Width: 1920, Height: 1080}, // Full HD
	{Width: 1366, Height: 768},  // popular laptop
	{Width: 1440, Height: 900},  // MacBook Air
	{Width: 1536, Height: 864},  // Windows laptop
	{Width: 1280, Height: 720},  // HD
	{Width: 1600, Height: 900},  // 16:9 widescreen
	{Width: 2560, Height: 1440}, // 2K
}

// headerTemplate is the request-header set a real navigation carries. The
// Accept-Language deliberately includes Japanese as a secondary language:
// the target properties are JP-hosted and an en-only visitor profile is
// rarer there than a bilingual one.
var headerTemplate = map[string]string{
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,image/apng,*/*;q=0.8",
	"Accept-Encoding":           "gzip, deflate, br",
	"Accept-Language":           "en-US,en;q=0.9,ja;q=0.8",
	"Cache-Control":             "no-cache",
	"DNT":                       "1",
	"Pragma":                    "no-cache",
	"Sec-Fetch-Dest":            "document",
	"Sec-Fetch-Mode":            "navigate",
	"Sec-Fetch-Site":            "none",
	"Sec-Fetch-User":            "?1",
	"Upgrade-Insecure-Requests": "1",
}

const localeTag = "en-US"

// Generate draws a fresh identity. Uniform over the catalogs; no I/O, no
// error conditions.
func Generate() Fingerprint {
	headers := make(map[string]string, len(headerTemplate))
	for k, v := range headerTemplate {
		headers[k] = v
	}
	return Fingerprint{
		UserAgent: userAgents[rand.Intn(len(userAgents))],
		Viewport:  viewports[rand.Intn(len(viewports))],
		Headers:   headers,
		LocaleTag: localeTag,
	}
}

// AcceptLanguage returns the Accept-Language header value for this identity.
func (f Fingerprint) AcceptLanguage() string {
	return f.Headers["Accept-Language"]
}
