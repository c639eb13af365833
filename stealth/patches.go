// Package stealth holds the fixed, versioned catalog of page-level
// anti-detection patches. Identity patches rewrite the JS surface a bot
// detector inspects (navigator.webdriver, plugins, window.chrome) and must
// run before any page script; behavior patches feed the page a plausible
// event stream (pointer movement, scrolling, key presses) and run against
// the live DOM after load. Patches are correctness-neutral: skipping any or
// all of them changes detection odds, never extraction results.
package stealth

// Version identifies the patch catalog revision. Bump when a patch is
// added, removed, or its JS changes observable behavior.
const Version = "2024.1"

// Kind tags a patch's effect class.
type Kind int

const (
	// KindIdentity masks automation markers on the JS API surface.
	KindIdentity Kind = iota
	// KindEvents synthesizes human-like input events.
	KindEvents
	// KindTiming adds jitter to timing surfaces detectors fingerprint.
	KindTiming
)

func (k Kind) String() string {
	switch k {
	case KindIdentity:
		return "identity"
	case KindEvents:
		return "events"
	case KindTiming:
		return "timing"
	}
	return "unknown"
}

// Stage says when a patch must be injected relative to navigation.
type Stage int

const (
	// StagePreNavigation patches install via Page.addScriptToEvaluateOnNewDocument
	// so they take effect before the first page script runs.
	StagePreNavigation Stage = iota
	// StagePostLoad patches evaluate against the rendered document.
	StagePostLoad
)

// Patch is one named behavioral modification.
type Patch struct {
	Name  string
	Kind  Kind
	Stage Stage
	JS    string
}

// catalog is ordered: earlier identity patches are depended on by detectors'
// earliest checks (webdriver is always probed first).
var catalog = []Patch{
	{
		Name:  "mask-webdriver",
		Kind:  KindIdentity,
		Stage: StagePreNavigation,
		JS: `
Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
try { delete navigator.__proto__.webdriver; } catch (e) {}
try { delete navigator.webdriver; } catch (e) {}
`,
	},
	{
		Name:  "populate-plugins",
		Kind:  KindIdentity,
		Stage: StagePreNavigation,
		JS: `
Object.defineProperty(navigator, 'plugins', {
	get: () => ({
		0: { name: 'Chrome PDF Plugin', filename: 'internal-pdf-viewer' },
		1: { name: 'Chrome PDF Viewer', filename: 'mhjfbmdgcfjbbpaeojofohoefgiehjai' },
		2: { name: 'Native Client', filename: 'internal-nacl-plugin' },
		length: 3
	}),
});
`,
	},
	{
		Name:  "chrome-runtime",
		Kind:  KindIdentity,
		Stage: StagePreNavigation,
		JS: `
window.chrome = {
	runtime: { onConnect: undefined, onMessage: undefined },
	loadTimes: function() {
		return {
			commitLoadTime: Date.now() - Math.random() * 1000,
			finishDocumentLoadTime: Date.now() - Math.random() * 500,
			finishLoadTime: Date.now() - Math.random() * 200,
			firstPaintAfterLoadTime: Date.now() - Math.random() * 100,
			firstPaintTime: Date.now() - Math.random() * 50,
			navigationType: 'Other',
			npnNegotiatedProtocol: 'h2',
			requestTime: Date.now() - Math.random() * 2000,
			startLoadTime: Date.now() - Math.random() * 1500,
			wasAlternateProtocolAvailable: false,
			wasFetchedViaSpdy: true,
			wasNpnNegotiated: true
		};
	},
	csi: function() {
		return {
			pageT: Date.now() - Math.random() * 1000,
			startE: Date.now() - Math.random() * 2000,
			tran: 15
		};
	},
	app: { isInstalled: false }
};
`,
	},
	{
		Name:  "permissions-query",
		Kind:  KindIdentity,
		Stage: StagePreNavigation,
		JS: `
const originalQuery = window.navigator.permissions.query;
window.navigator.permissions.query = (parameters) => (
	parameters.name === 'notifications'
		? Promise.resolve({ state: Notification.permission })
		: originalQuery(parameters)
);
`,
	},
	{
		Name:  "languages",
		Kind:  KindIdentity,
		Stage: StagePreNavigation,
		JS: `
Object.defineProperty(navigator, 'languages', { get: () => ['en-US', 'en'] });
Object.defineProperty(navigator, 'language', { get: () => 'en-US' });
`,
	},
	{
		Name:  "screen-depth",
		Kind:  KindIdentity,
		Stage: StagePreNavigation,
		JS: `
Object.defineProperty(screen, 'colorDepth', { get: () => 24 });
Object.defineProperty(screen, 'pixelDepth', { get: () => 24 });
`,
	},
	{
		Name:  "drop-cdc-globals",
		Kind:  KindIdentity,
		Stage: StagePreNavigation,
		JS: `
delete window.cdc_adoQpoasnfa76pfcZLmcfl_Array;
delete window.cdc_adoQpoasnfa76pfcZLmcfl_Promise;
delete window.cdc_adoQpoasnfa76pfcZLmcfl_Symbol;
if (window.top !== window.self) {
	Object.defineProperty(window, 'top', { get: () => window });
}
`,
	},
	{
		Name:  "perf-entry-jitter",
		Kind:  KindTiming,
		Stage: StagePreNavigation,
		JS: `
const originalGetEntries = performance.getEntries;
performance.getEntries = function() {
	const entries = originalGetEntries.call(this);
	entries.forEach(entry => {
		if (entry.connectEnd) entry.connectEnd += Math.random() * 10;
		if (entry.domainLookupEnd) entry.domainLookupEnd += Math.random() * 5;
	});
	return entries;
};
`,
	},
	{
		Name:  "mouse-drift",
		Kind:  KindEvents,
		Stage: StagePostLoad,
		JS: `
let mouseDrift;
if (mouseDrift) clearInterval(mouseDrift);
mouseDrift = setInterval(() => {
	const event = new MouseEvent('mousemove', {
		clientX: Math.random() * window.innerWidth,
		clientY: Math.random() * window.innerHeight,
		bubbles: true
	});
	document.dispatchEvent(event);
}, Math.random() * 3000 + 1000);
`,
	},
	{
		Name:  "human-scroll",
		Kind:  KindEvents,
		Stage: StagePostLoad,
		JS: `
function humanScroll() {
	const scrollAmount = Math.random() * 200 - 100;
	const currentScroll = window.pageYOffset;
	const maxScroll = document.body.scrollHeight - window.innerHeight;
	if ((scrollAmount > 0 && currentScroll < maxScroll) ||
		(scrollAmount < 0 && currentScroll > 0)) {
		window.scrollBy(0, scrollAmount);
		if (Math.random() < 0.3) {
			setTimeout(() => { window.scrollBy(0, -scrollAmount * 0.3); }, 100 + Math.random() * 200);
		}
	}
}
setInterval(humanScroll, Math.random() * 8000 + 2000);
`,
	},
	{
		Name:  "idle-keys",
		Kind:  KindEvents,
		Stage: StagePostLoad,
		JS: `
function idleKeyPress() {
	const keys = ['ArrowDown', 'ArrowUp', 'PageDown', 'PageUp', 'Tab'];
	const key = keys[Math.floor(Math.random() * keys.length)];
	document.dispatchEvent(new KeyboardEvent('keydown', { key: key, bubbles: true }));
}
setInterval(idleKeyPress, Math.random() * 30000 + 10000);
`,
	},
}

// Catalog returns the full ordered patch set. The returned slice is a copy;
// callers may reorder or filter it freely.
func Catalog() []Patch {
	out := make([]Patch, len(catalog))
	copy(out, catalog)
	return out
}

// ForStage filters the catalog to patches injected at the given stage,
// preserving order.
func ForStage(stage Stage) []Patch {
	var out []Patch
	for _, p := range catalog {
		if p.Stage == stage {
			out = append(out, p)
		}
	}
	return out
}
