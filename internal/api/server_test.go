package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/vulnverified/posture/internal/engine"
	"github.com/vulnverified/posture/internal/store"
)

type recorder struct {
	mu      sync.Mutex
	domains []string
}

func (r *recorder) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.domains...)
}

func (r *recorder) run(_ context.Context, domain string) (*engine.Snapshot, error) {
	r.mu.Lock()
	r.domains = append(r.domains, domain)
	r.mu.Unlock()
	return &engine.Snapshot{
		Domain:      domain,
		CompletedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Flags:       engine.CrossBlockFlags{ProfessionalSetup: true},
	}, nil
}

func newTestServer(t *testing.T, run RunFunc, archive Archive) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(New(run, archive, zaptest.NewLogger(t)).Routes())
	t.Cleanup(srv.Close)
	return srv
}

func TestHealthz(t *testing.T) {
	var rec recorder
	srv := newTestServer(t, rec.run, store.NewMemory())

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body["status"] != "ok" {
		t.Errorf("body = %v, err = %v", body, err)
	}
}

func TestCreateSnapshot_ArchivesAndReturnsBundle(t *testing.T) {
	var rec recorder
	archive := store.NewMemory()
	srv := newTestServer(t, rec.run, archive)

	resp, err := http.Post(srv.URL+"/v1/snapshots", "application/json",
		strings.NewReader(`{"domain": "https://WWW.Example.com/about"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var snap engine.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.Domain != "example.com" || !snap.Flags.ProfessionalSetup {
		t.Errorf("snapshot = %+v", snap)
	}
	if calls := rec.calls(); len(calls) != 1 || calls[0] != "example.com" {
		t.Errorf("runner called with %v, want normalized domain", calls)
	}
	if _, err := archive.LatestSnapshot(context.Background(), "example.com"); err != nil {
		t.Errorf("snapshot not archived: %v", err)
	}
}

func TestCreateSnapshot_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "domain=example.com"},
		{"empty domain", `{"domain": "   "}`},
		{"missing domain", `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rec recorder
			srv := newTestServer(t, rec.run, nil)
			resp, err := http.Post(srv.URL+"/v1/snapshots", "application/json", strings.NewReader(tt.body))
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
			if len(rec.calls()) != 0 {
				t.Error("runner must not be called for a bad request")
			}
		})
	}
}

func TestCreateSnapshot_RunnerErrorAndPanic(t *testing.T) {
	failing := func(context.Context, string) (*engine.Snapshot, error) { return nil, errors.New("boom") }
	panicking := func(context.Context, string) (*engine.Snapshot, error) { panic("collector bug") }

	for name, run := range map[string]RunFunc{"error": failing, "panic": panicking} {
		t.Run(name, func(t *testing.T) {
			srv := newTestServer(t, run, nil)
			resp, err := http.Post(srv.URL+"/v1/snapshots", "application/json", bytes.NewBufferString(`{"domain":"example.com"}`))
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusInternalServerError {
				t.Errorf("status = %d, want 500", resp.StatusCode)
			}
		})
	}
}

func TestLatestSnapshot(t *testing.T) {
	var rec recorder
	archive := store.NewMemory()
	if err := archive.SaveSnapshot(context.Background(), &engine.Snapshot{Domain: "example.com"}); err != nil {
		t.Fatal(err)
	}
	srv := newTestServer(t, rec.run, archive)

	tests := []struct {
		path       string
		wantStatus int
	}{
		{"/v1/snapshots/example.com", http.StatusOK},
		{"/v1/snapshots/EXAMPLE.com", http.StatusOK},
		{"/v1/snapshots/unknown.example", http.StatusNotFound},
	}
	for _, tt := range tests {
		resp, err := http.Get(srv.URL + tt.path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != tt.wantStatus {
			t.Errorf("GET %s = %d, want %d", tt.path, resp.StatusCode, tt.wantStatus)
		}
	}
	if len(rec.calls()) != 0 {
		t.Error("GET must not trigger a collection")
	}
}

func TestLatestSnapshot_NoArchive(t *testing.T) {
	var rec recorder
	srv := newTestServer(t, rec.run, nil)
	resp, err := http.Get(srv.URL + "/v1/snapshots/example.com")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}
