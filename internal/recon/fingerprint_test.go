package recon

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vulnverified/posture/internal/engine"
)

func TestFingerprint_DetectsTechnologies(t *testing.T) {
	tests := []struct {
		name      string
		headers   map[string]string
		body      string
		generator string
		wantCMS   string
		wantCDN   string
		wantHost  string
		wantTech  []string
	}{
		{
			name:     "nginx from Server header",
			headers:  map[string]string{"Server": "nginx/1.24.0"},
			wantTech: []string{"nginx"},
		},
		{
			name:     "WordPress from body",
			body:     `<link rel="stylesheet" href="/wp-content/themes/theme/style.css">`,
			wantCMS:  "WordPress",
			wantTech: []string{},
		},
		{
			name:      "Ghost from generator",
			generator: "Ghost 5.2",
			wantCMS:   "Ghost",
			wantTech:  []string{},
		},
		{
			name:     "Cloudflare header beats markup mention",
			headers:  map[string]string{"CF-Ray": "abc123-AMS"},
			body:     `<script src="https://d111.cloudfront.net/app.js"></script>`,
			wantCDN:  "Cloudflare",
			wantTech: []string{},
		},
		{
			name:     "CloudFront from markup only",
			body:     `<script src="https://d111.cloudfront.net/app.js"></script>`,
			wantCDN:  "Amazon CloudFront",
			wantTech: []string{},
		},
		{
			name:     "Vercel hosting and Next.js",
			headers:  map[string]string{"X-Vercel-Id": "fra1::abc"},
			body:     `<script id="__NEXT_DATA__" type="application/json">{"props":{}}</script>`,
			wantHost: "Vercel",
			wantTech: []string{"React", "Next.js"},
		},
		{
			name:     "PHP from X-Powered-By",
			headers:  map[string]string{"X-Powered-By": "PHP/8.2.0"},
			wantTech: []string{"PHP"},
		},
		{
			name:     "no match",
			headers:  map[string]string{"Server": "CustomServer/1.0"},
			body:     "<html><body>Hello</body></html>",
			wantTech: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			for k, v := range tt.headers {
				h.Set(k, v)
			}
			sig := Fingerprint(h, tt.body, tt.generator)

			if sig.CMS != tt.wantCMS {
				t.Errorf("cms = %q, want %q", sig.CMS, tt.wantCMS)
			}
			if sig.CDN != tt.wantCDN {
				t.Errorf("cdn = %q, want %q", sig.CDN, tt.wantCDN)
			}
			if sig.Hosting != tt.wantHost {
				t.Errorf("hosting = %q, want %q", sig.Hosting, tt.wantHost)
			}
			var got []string
			for _, tech := range sig.Technologies {
				got = append(got, tech.Name)
			}
			if strings.Join(got, ",") != strings.Join(tt.wantTech, ",") {
				t.Errorf("technologies = %v, want %v", got, tt.wantTech)
			}
		})
	}
}

func TestFingerprint_HeaderAllowList(t *testing.T) {
	h := http.Header{}
	h.Set("Server", "Apache/2.4.57")
	h.Set("X-Powered-By", "PHP/8.1")
	h.Set("X-Secret-Token", "do-not-report")

	sig := Fingerprint(h, "", "")
	if sig.Headers["server"] != "Apache/2.4.57" || sig.Headers["x-powered-by"] != "PHP/8.1" {
		t.Errorf("headers = %v", sig.Headers)
	}
	if _, ok := sig.Headers["x-secret-token"]; ok {
		t.Error("headers outside the allow-list must not be reported")
	}
}

func TestTechnologyCollector_Collect(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); ua != "test-agent" {
			t.Errorf("user agent = %q", ua)
		}
		w.Header().Set("Server", "cloudflare")
		w.Header().Set("CF-Ray", "8a1b2c3d4e5f-AMS")
		w.Header().Set("X-Kinsta-Cache", "HIT")
		w.Write([]byte(`<html><head><title> Acme Blog </title>
<meta name="Generator" content="WordPress 6.4.2">
<script src="/wp-includes/js/jquery/jquery.min.js"></script></head><body></body></html>`))
	}))
	defer srv.Close()

	c := &TechnologyCollector{
		UserAgent: "test-agent",
		Timeout:   5 * time.Second,
		HTTPSPort: serverPort(t, srv.URL),
	}
	obs, err := c.Collect(context.Background(), "127.0.0.1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sig := obs.Signals
	if sig.StatusCode != http.StatusOK || sig.Title != "Acme Blog" {
		t.Errorf("status = %d, title = %q", sig.StatusCode, sig.Title)
	}
	if sig.Generator != "WordPress 6.4.2" {
		t.Errorf("generator = %q", sig.Generator)
	}
	if sig.CMS != "WordPress" || sig.CDN != "Cloudflare" || sig.Hosting != "Kinsta" {
		t.Errorf("cms = %q, cdn = %q, hosting = %q", sig.CMS, sig.CDN, sig.Hosting)
	}
	want := engine.TechnologyFlags{CMSCommonTarget: true, CDNPresent: true, HostingIdentified: true}
	if obs.Flags != want {
		t.Errorf("flags = %+v, want %+v", obs.Flags, want)
	}
	if obs.Confidence != engine.ConfidenceHigh || sig.ScorePercent != 100 {
		t.Errorf("confidence = %q (%v%%), want high (100%%)", obs.Confidence, sig.ScorePercent)
	}
}

func TestTechnologyCollector_BodyCap(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("a", homepageMaxBody*2)))
	}))
	defer srv.Close()

	c := &TechnologyCollector{Timeout: 5 * time.Second, HTTPSPort: serverPort(t, srv.URL)}
	obs, err := c.Collect(context.Background(), "127.0.0.1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !obs.Signals.BodyTruncated {
		t.Error("oversized body should be marked truncated")
	}
	if obs.Confidence != engine.ConfidenceLow {
		t.Errorf("confidence = %q, want low with no evidence", obs.Confidence)
	}
}

func TestTechnologyCollector_FetchFailure(t *testing.T) {
	c := &TechnologyCollector{Timeout: 2 * time.Second, HTTPSPort: closedPort(t)}
	if _, err := c.Collect(context.Background(), "127.0.0.1"); err == nil {
		t.Fatal("expected error for unreachable homepage")
	}
}

func TestTechnologyCollector_SharedClientReusesConnections(t *testing.T) {
	var newConns atomic.Int32
	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><head><title>ok</title></head></html>`))
	}))
	srv.Config.ConnState = func(_ net.Conn, state http.ConnState) {
		if state == http.StateNew {
			newConns.Add(1)
		}
	}
	srv.StartTLS()
	defer srv.Close()

	c := &TechnologyCollector{
		Client:    newHomepageClient(5 * time.Second),
		Timeout:   5 * time.Second,
		HTTPSPort: serverPort(t, srv.URL),
	}
	defer c.Client.CloseIdleConnections()

	for i := 0; i < 5; i++ {
		if _, err := c.Collect(context.Background(), "127.0.0.1"); err != nil {
			t.Fatalf("collect %d: %v", i, err)
		}
	}
	if n := newConns.Load(); n != 1 {
		t.Errorf("connections opened = %d, want 1", n)
	}
}
