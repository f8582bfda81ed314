package recon

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func testCTClient(url string) *CTClient {
	return &CTClient{
		BaseURL:    url,
		HTTPClient: &http.Client{},
		UserAgent:  "test-agent",
		Timeout:    5 * time.Second,
		RetryDelay: time.Millisecond,
		Limiter:    rate.NewLimiter(rate.Inf, 1),
	}
}

func TestCTClient_ParsesJSON(t *testing.T) {
	entries := []crtshEntry{
		{NameValue: "www.example.com"},
		{NameValue: "api.example.com\nmail.example.com"},
		{NameValue: "*.example.com"},
		{NameValue: "www.example.com"}, // duplicate
		{NameValue: "other.notexample.com"},
	}
	body, _ := json.Marshal(entries)

	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		if ua := r.Header.Get("User-Agent"); ua != "test-agent" {
			t.Errorf("user agent = %q", ua)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
	}))
	defer srv.Close()

	hosts, err := testCTClient(srv.URL).Subdomains(context.Background(), "example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotQuery != "%.example.com" {
		t.Errorf("q = %q, want %%.example.com", gotQuery)
	}

	want := []string{"api.example.com", "example.com", "mail.example.com", "www.example.com"}
	if len(hosts) != len(want) {
		t.Fatalf("got %d hosts, want %d: %v", len(hosts), len(want), hosts)
	}
	for i := range want {
		if hosts[i] != want[i] {
			t.Errorf("hosts[%d] = %q, want %q", i, hosts[i], want[i])
		}
	}
}

func TestCTClient_RetryOn5xx(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`[{"name_value": "www.example.com"}]`))
	}))
	defer srv.Close()

	hosts, err := testCTClient(srv.URL).Subdomains(context.Background(), "example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts.Load() != 2 {
		t.Errorf("attempts = %d, want 2", attempts.Load())
	}
	if len(hosts) != 1 {
		t.Errorf("hosts = %v", hosts)
	}
}

func TestCTClient_SkipRetryOn429(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := testCTClient(srv.URL).Subdomains(context.Background(), "example.com")
	if !errors.Is(err, errCrtshRateLimited) {
		t.Fatalf("err = %v, want rate limited", err)
	}
	if attempts.Load() != 1 {
		t.Errorf("attempts = %d, want 1", attempts.Load())
	}
}

func TestCTClient_NoRetryOnTimeoutOrClientError(t *testing.T) {
	tests := []struct {
		name    string
		handler func(w http.ResponseWriter, r *http.Request)
		timeout time.Duration
	}{
		{
			name: "timeout",
			handler: func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-r.Context().Done():
				case <-time.After(500 * time.Millisecond):
				}
			},
			timeout: 50 * time.Millisecond,
		},
		{
			name:    "404",
			handler: func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNotFound) },
			timeout: 5 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var attempts atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				attempts.Add(1)
				tt.handler(w, r)
			}))
			defer srv.Close()

			c := testCTClient(srv.URL)
			c.Timeout = tt.timeout
			if _, err := c.Subdomains(context.Background(), "example.com"); err == nil {
				t.Fatal("expected error")
			}
			if attempts.Load() != 1 {
				t.Errorf("attempts = %d, want 1", attempts.Load())
			}
		})
	}
}

func TestCTClient_BadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>busy</html>`))
	}))
	defer srv.Close()

	if _, err := testCTClient(srv.URL).Subdomains(context.Background(), "example.com"); err == nil {
		t.Fatal("expected parse error")
	}
}
