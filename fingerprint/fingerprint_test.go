package fingerprint

import "testing"

func TestGenerateDrawsFromCatalogs(t *testing.T) {
	for i := 0; i < 50; i++ {
		fp := Generate()

		uaOK := false
		for _, ua := range userAgents {
			if fp.UserAgent == ua {
				uaOK = true
				break
			}
		}
		if !uaOK {
			t.Fatalf("user agent not from catalog: %q", fp.UserAgent)
		}

		vpOK := false
		for _, vp := range viewports {
			if fp.Viewport == vp {
				vpOK = true
				break
			}
		}
		if !vpOK {
			t.Fatalf("viewport not from catalog: %+v", fp.Viewport)
		}

		if fp.LocaleTag != "en-US" {
			t.Fatalf("locale = %q, want en-US", fp.LocaleTag)
		}
	}
}

func TestGenerateHeadersMatchTemplate(t *testing.T) {
	fp := Generate()
	if len(fp.Headers) != len(headerTemplate) {
		t.Fatalf("got %d headers, want %d", len(fp.Headers), len(headerTemplate))
	}
	for k, want := range headerTemplate {
		if got := fp.Headers[k]; got != want {
			t.Errorf("header %s = %q, want %q", k, got, want)
		}
	}
}

func TestGenerateHeadersAreIndependent(t *testing.T) {
	a := Generate()
	b := Generate()
	a.Headers["Accept-Language"] = "mutated"
	if b.Headers["Accept-Language"] == "mutated" {
		t.Fatal("header maps shared between fingerprints")
	}
	if headerTemplate["Accept-Language"] == "mutated" {
		t.Fatal("template mutated through a generated fingerprint")
	}
}

func TestAcceptLanguage(t *testing.T) {
	fp := Generate()
	if got := fp.AcceptLanguage(); got != "en-US,en;q=0.9,ja;q=0.8" {
		t.Fatalf("AcceptLanguage = %q", got)
	}
}
