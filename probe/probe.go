package probe

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"

	tls2 "github.com/refraction-networking/utls"
	"golang.org/x/net/html"
	xproxy "golang.org/x/net/proxy"

	"github.com/use-agent/ratescout/config"
	"github.com/use-agent/ratescout/models"
)

const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// bodyCap bounds how much of the probe response is read for the title sniff.
const bodyCap = 1 << 20

// Result is what the preflight learned about the target.
type Result struct {
	StatusCode int
	Title      string

	// Blocked means the server answered but with a status that says the
	// edge is hostile to this client (403/429). The browser still gets its
	// chance; the run just starts forewarned.
	Blocked bool
}

// Probe checks that the hotel page is reachable before a run spends browser
// attempts on it. The request carries a Chrome TLS fingerprint (utls), since
// a probe with Go's native TLS stack would be fingerprinted as a bot and
// tell us nothing about what the browser will see.
type Probe struct {
	client *http.Client
	cfg    config.ProbeConfig
}

// New builds a Probe. The proxy, when set, matches the one the browser uses
// so both see the same network path.
func New(cfg config.ProbeConfig, proxy string) *Probe {
	transport := &http.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialTLSChrome(ctx, network, addr, proxy)
		},
	}
	if proxy != "" {
		if proxyURL, err := url.Parse(proxy); err == nil && (proxyURL.Scheme == "http" || proxyURL.Scheme == "https") {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}

	return &Probe{
		client: &http.Client{Transport: transport, Timeout: cfg.Timeout},
		cfg:    cfg,
	}
}

// Check performs one GET against the target. Transport-level failures (DNS,
// TCP, TLS) come back as errors; block-ish HTTP statuses come back as a
// Result with Blocked set.
func (p *Probe) Check(ctx context.Context, targetURL string) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return Result{}, models.NewScrapeError(models.ErrCodeProbe, "failed to build probe request", err)
	}
	req.Header.Set("User-Agent", chromeUA)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := p.client.Do(req)
	if err != nil {
		return Result{}, models.NewScrapeError(models.ErrCodeProbe, "target unreachable", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, bodyCap))
	if err != nil {
		return Result{}, models.NewScrapeError(models.ErrCodeProbe, "failed to read probe response", err)
	}

	res := Result{
		StatusCode: resp.StatusCode,
		Title:      extractTitle(body),
		Blocked:    resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests,
	}

	slog.Info("probe complete",
		"url", targetURL, "status", res.StatusCode, "title", res.Title, "blocked", res.Blocked,
	)
	return res, nil
}

// dialTLSChrome establishes a TLS connection using a Chrome fingerprint via
// utls. SOCKS5 proxies are negotiated first, so the fingerprinted handshake
// reaches the target itself rather than the proxy.
func dialTLSChrome(ctx context.Context, network, addr, proxy string) (net.Conn, error) {
	var rawConn net.Conn
	var err error

	dialer := &net.Dialer{}

	if proxy != "" {
		proxyURL, parseErr := url.Parse(proxy)
		if parseErr == nil && (proxyURL.Scheme == "socks5" || proxyURL.Scheme == "socks5h") {
			rawConn, err = dialSOCKS5(ctx, proxyURL, dialer, network, addr)
			if err != nil {
				return nil, models.NewScrapeError(models.ErrCodeProbe, "socks5 dial failed", err)
			}
		}
	}

	if rawConn == nil {
		rawConn, err = dialer.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}
	}

	host, _, _ := net.SplitHostPort(addr)
	tlsConn := tls2.UClient(rawConn, &tls2.Config{
		ServerName:         host,
		InsecureSkipVerify: false,
	}, tls2.HelloChrome_Auto)

	if err := tlsConn.HandshakeContext(ctx); err != nil {
		rawConn.Close()
		return nil, err
	}
	return tlsConn, nil
}

// dialSOCKS5 connects to addr through the proxy, credentials included when
// the URL carries them.
func dialSOCKS5(ctx context.Context, proxyURL *url.URL, forward *net.Dialer, network, addr string) (net.Conn, error) {
	var auth *xproxy.Auth
	if proxyURL.User != nil {
		password, _ := proxyURL.User.Password()
		auth = &xproxy.Auth{User: proxyURL.User.Username(), Password: password}
	}

	d, err := xproxy.SOCKS5("tcp", proxyURL.Host, auth, forward)
	if err != nil {
		return nil, err
	}
	if cd, ok := d.(xproxy.ContextDialer); ok {
		return cd.DialContext(ctx, network, addr)
	}
	return d.Dial(network, addr)
}

// extractTitle pulls the <title> content out of raw HTML bytes. Block pages
// usually say what they are there ("Access Denied", "Just a moment...").
func extractTitle(body []byte) string {
	tokenizer := html.NewTokenizer(bytes.NewReader(body))
	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return ""
		case html.StartTagToken:
			tn, _ := tokenizer.TagName()
			if string(tn) == "title" {
				if tokenizer.Next() == html.TextToken {
					return strings.TrimSpace(string(tokenizer.Text()))
				}
				return ""
			}
		}
	}
}
