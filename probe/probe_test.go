package probe

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"

	"github.com/use-agent/ratescout/config"
)

func mockProbe(responder httpmock.Responder) *Probe {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "https://example.com/ho123", responder)
	p := New(config.ProbeConfig{Enabled: true, Timeout: 5 * time.Second}, "")
	p.client = &http.Client{Transport: transport}
	return p
}

func TestCheckReachable(t *testing.T) {
	p := mockProbe(httpmock.NewStringResponder(200,
		`<html><head><title>Grand Pine Hotel - Book now</title></head><body>rooms</body></html>`))

	res, err := p.Check(context.Background(), "https://example.com/ho123")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if res.StatusCode != 200 || res.Blocked {
		t.Errorf("result = %+v, want 200 unblocked", res)
	}
	if res.Title != "Grand Pine Hotel - Book now" {
		t.Errorf("title = %q", res.Title)
	}
}

func TestCheckBlockedStatuses(t *testing.T) {
	for _, status := range []int{http.StatusForbidden, http.StatusTooManyRequests} {
		p := mockProbe(httpmock.NewStringResponder(status,
			`<html><head><title>Access Denied</title></head></html>`))

		res, err := p.Check(context.Background(), "https://example.com/ho123")
		if err != nil {
			t.Fatalf("status %d: blocked statuses are results, not errors: %v", status, err)
		}
		if !res.Blocked {
			t.Errorf("status %d should report Blocked", status)
		}
		if res.Title != "Access Denied" {
			t.Errorf("title = %q", res.Title)
		}
	}
}

func TestExtractTitle(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"plain", `<html><head><title>Hello</title></head></html>`, "Hello"},
		{"whitespace", "<title>\n  Just a moment...  \n</title>", "Just a moment..."},
		{"missing", `<html><body>no title here</body></html>`, ""},
		{"empty tag", `<title></title>`, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := extractTitle([]byte(tc.body)); got != tc.want {
				t.Errorf("extractTitle = %q, want %q", got, tc.want)
			}
		})
	}
}
