package recon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"github.com/vulnverified/posture/internal/breachcache"
	"github.com/vulnverified/posture/internal/engine"
	"github.com/vulnverified/posture/internal/hostname"
)

const (
	registryBaseURL   = "https://haveibeenpwned.com/api/v3/"
	registryTimeout   = 15 * time.Second
	registryMaxBody   = 5 * 1024 * 1024 // 5MB
	registryPerMinute = 10
	breachDateLayout  = "2006-01-02"
)

var (
	// ErrNotConfigured means no registry API key is set.
	ErrNotConfigured = errors.New("not configured: breach registry API key is not set")
	// ErrRateLimited means the registry answered 429.
	ErrRateLimited = errors.New("rate limited: breach registry returned 429")
)

type registryBreach struct {
	Name        string   `json:"Name"`
	Title       string   `json:"Title"`
	BreachDate  string   `json:"BreachDate"`
	PwnCount    int      `json:"PwnCount"`
	DataClasses []string `json:"DataClasses"`
}

// BreachRegistry queries a HIBP-compatible breach registry.
type BreachRegistry struct {
	BaseURL    string
	APIKey     string
	UserAgent  string
	HTTPClient *http.Client
	Timeout    time.Duration
	Limiter    *rate.Limiter
}

// NewBreachRegistry returns a client paced to perMinute requests.
func NewBreachRegistry(baseURL, apiKey, userAgent string, timeout time.Duration, perMinute int) *BreachRegistry {
	if baseURL == "" {
		baseURL = registryBaseURL
	}
	if timeout <= 0 {
		timeout = registryTimeout
	}
	if perMinute <= 0 {
		perMinute = registryPerMinute
	}
	return &BreachRegistry{
		BaseURL:    baseURL,
		APIKey:     apiKey,
		UserAgent:  userAgent,
		HTTPClient: &http.Client{},
		Timeout:    timeout,
		Limiter:    rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1),
	}
}

// Configured reports whether an API key is set.
func (r *BreachRegistry) Configured() bool {
	return r != nil && r.APIKey != ""
}

// Breaches returns the registry's breaches for domain. A 404 is zero breaches.
func (r *BreachRegistry) Breaches(ctx context.Context, domain string) ([]engine.Breach, error) {
	if !r.Configured() {
		return nil, ErrNotConfigured
	}
	u, err := url.Parse(r.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("breach registry base url: %w", err)
	}
	u = u.JoinPath("breaches")
	q := u.Query()
	q.Set("domain", domain)
	u.RawQuery = q.Encode()

	if r.Limiter != nil {
		if err := r.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("hibp-api-key", r.APIKey)
	req.Header.Set("Accept", "application/json")
	if r.UserAgent != "" {
		req.Header.Set("User-Agent", r.UserAgent)
	}

	resp, err := r.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("network: breach registry: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return []engine.Breach{}, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ErrRateLimited
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, fmt.Errorf("not configured: breach registry rejected the API key (401)")
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("breach registry returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, registryMaxBody))
	if err != nil {
		return nil, fmt.Errorf("network: breach registry read body: %w", err)
	}
	var entries []registryBreach
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("parse: breach registry JSON: %w", err)
	}

	breaches := make([]engine.Breach, 0, len(entries))
	for _, e := range entries {
		breaches = append(breaches, engine.Breach{
			Name:        e.Name,
			Title:       e.Title,
			Date:        e.BreachDate,
			PwnCount:    e.PwnCount,
			DataClasses: e.DataClasses,
		})
	}
	return breaches, nil
}

// BreachCollector reports the domain's breach history through the TTL cache.
type BreachCollector struct {
	Registry *BreachRegistry
	Cache    *breachcache.Cache // nil disables caching
	Clock    clockwork.Clock
}

// Collect implements engine.Collector. Confidence is high on any answer,
// cached or fresh.
func (c *BreachCollector) Collect(ctx context.Context, domain string) (engine.Observation[engine.BreachSignals, engine.BreachFlags], error) {
	var obs engine.Observation[engine.BreachSignals, engine.BreachFlags]
	if !hostname.Valid(domain) {
		return obs, fmt.Errorf("%w: %q", ErrInvalidHostname, domain)
	}
	if !c.Registry.Configured() {
		return obs, ErrNotConfigured
	}
	clock := c.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	fetch := func(ctx context.Context) ([]byte, error) {
		breaches, err := c.Registry.Breaches(ctx, domain)
		if err != nil {
			return nil, err
		}
		return json.Marshal(breaches)
	}

	var res breachcache.Result
	if c.Cache != nil {
		r, err := c.Cache.Lookup(ctx, domain, fetch)
		if err != nil {
			return obs, err
		}
		res = r
	} else {
		payload, err := fetch(ctx)
		if err != nil {
			return obs, err
		}
		res = breachcache.Result{Payload: payload}
	}

	var breaches []engine.Breach
	if err := json.Unmarshal(res.Payload, &breaches); err != nil {
		return obs, fmt.Errorf("parse: cached breach payload: %w", err)
	}

	sig := summarizeBreaches(breaches)
	sig.FromCache = res.FromCache
	if res.FromCache {
		cachedAt := res.CachedAt
		sig.CachedAt = &cachedAt
	}

	obs.Signals = sig
	obs.Flags = breachFlags(sig, clock.Now())
	obs.Confidence = engine.ConfidenceHigh
	return obs, nil
}

func summarizeBreaches(breaches []engine.Breach) engine.BreachSignals {
	if breaches == nil {
		breaches = []engine.Breach{}
	}
	sig := engine.BreachSignals{BreachCount: len(breaches), Breaches: breaches}
	for _, b := range breaches {
		d, err := time.Parse(breachDateLayout, b.Date)
		if err != nil {
			continue
		}
		if sig.MostRecentBreach == nil || d.After(*sig.MostRecentBreach) {
			sig.MostRecentBreach = &d
		}
	}
	return sig
}

func breachFlags(sig engine.BreachSignals, now time.Time) engine.BreachFlags {
	flags := engine.BreachFlags{MultipleBreaches: sig.BreachCount >= 2}
	if sig.MostRecentBreach != nil {
		flags.RecentBreach = !sig.MostRecentBreach.Before(now.AddDate(-1, 0, 0))
	}
	for _, b := range sig.Breaches {
		for _, class := range b.DataClasses {
			lc := strings.ToLower(class)
			if strings.Contains(lc, "password") || strings.Contains(lc, "email") {
				flags.CredentialBreach = true
			}
		}
	}
	return flags
}
