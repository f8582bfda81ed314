package recon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	crtshBaseURL        = "https://crt.sh/"
	crtshTimeout        = 20 * time.Second
	crtshMaxBody        = 20 * 1024 * 1024 // 20MB
	crtshRetryDelay     = 3 * time.Second
	subdomainSampleSize = 25
)

var errCrtshRateLimited = errors.New("crt.sh rate limited (429)")

// ctStatusError is a non-200, non-429 answer from crt.sh.
type ctStatusError struct {
	Code int
}

func (e *ctStatusError) Error() string {
	return fmt.Sprintf("crt.sh returned status %d", e.Code)
}

type crtshEntry struct {
	NameValue string `json:"name_value"`
}

// CTClient queries the crt.sh certificate transparency search.
type CTClient struct {
	BaseURL    string
	HTTPClient *http.Client
	UserAgent  string
	Timeout    time.Duration
	RetryDelay time.Duration
	Limiter    *rate.Limiter
}

// NewCTClient returns a client paced to one request every two seconds.
func NewCTClient(baseURL, userAgent string, timeout time.Duration) *CTClient {
	if baseURL == "" {
		baseURL = crtshBaseURL
	}
	if timeout <= 0 {
		timeout = crtshTimeout
	}
	return &CTClient{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{},
		UserAgent:  userAgent,
		Timeout:    timeout,
		RetryDelay: crtshRetryDelay,
		Limiter:    rate.NewLimiter(rate.Every(2*time.Second), 1),
	}
}

// Subdomains returns the hostnames under domain seen in CT logs, lowercase,
// deduplicated, wildcards folded into their parent, sorted.
func (c *CTClient) Subdomains(ctx context.Context, domain string) ([]string, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("crt.sh base url: %w", err)
	}
	q := u.Query()
	q.Set("q", "%."+domain)
	q.Set("output", "json")
	u.RawQuery = q.Encode()

	body, err := c.fetch(ctx, u.String())
	if err != nil {
		return nil, fmt.Errorf("crt.sh fetch for %s: %w", domain, err)
	}

	hosts, err := parseCrtshResponse(body, domain)
	if err != nil {
		return nil, fmt.Errorf("parse: crt.sh JSON for %s: %w", domain, err)
	}
	return hosts, nil
}

func parseCrtshResponse(body []byte, domain string) ([]string, error) {
	var entries []crtshEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var hosts []string
	for _, entry := range entries {
		// name_value can contain multiple names separated by newlines.
		for _, name := range strings.Split(entry.NameValue, "\n") {
			name = strings.TrimSpace(strings.ToLower(name))
			name = strings.TrimPrefix(name, "*.")
			if name == "" {
				continue
			}
			if !strings.HasSuffix(name, "."+domain) && name != domain {
				continue
			}
			if !seen[name] {
				seen[name] = true
				hosts = append(hosts, name)
			}
		}
	}
	sort.Strings(hosts)
	return hosts, nil
}

func (c *CTClient) fetch(ctx context.Context, url string) ([]byte, error) {
	body, err := c.doRequest(ctx, url)
	if err == nil {
		return body, nil
	}

	// Only server errors are retried, once. Timeouts, 429 and other statuses are final.
	var se *ctStatusError
	if !errors.As(err, &se) || se.Code < http.StatusInternalServerError {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(c.RetryDelay):
	}

	return c.doRequest(ctx, url)
}

func (c *CTClient) doRequest(ctx context.Context, url string) ([]byte, error) {
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, errCrtshRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &ctStatusError{Code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, crtshMaxBody))
	if err != nil {
		return nil, fmt.Errorf("crt.sh read body: %w", err)
	}
	return body, nil
}
