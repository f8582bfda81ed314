package recon

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/vulnverified/posture/internal/engine"
	"github.com/vulnverified/posture/internal/hostname"
	"github.com/vulnverified/posture/internal/signature"
)

// TechnologyCollector fingerprints the HTTPS homepage.
type TechnologyCollector struct {
	Client    *http.Client // shared across runs; nil builds a throwaway client per run
	UserAgent string
	Timeout   time.Duration
	HTTPSPort string // defaults to 443
}

// Collect implements engine.Collector.
func (c *TechnologyCollector) Collect(ctx context.Context, domain string) (engine.Observation[engine.TechnologySignals, engine.TechnologyFlags], error) {
	var obs engine.Observation[engine.TechnologySignals, engine.TechnologyFlags]
	if !hostname.Valid(domain) {
		return obs, fmt.Errorf("%w: %q", ErrInvalidHostname, domain)
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultHomepageTimeout
	}
	client := c.Client
	if client == nil {
		client = newHomepageClient(timeout)
		defer client.CloseIdleConnections()
	}
	fctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	page, err := fetchHomepage(fctx, client, homepageURL(domain, c.HTTPSPort), c.UserAgent)
	if err != nil {
		return obs, fmt.Errorf("network: homepage fetch for %s: %w", domain, err)
	}

	obs.Signals = Fingerprint(page.headers, page.body, page.generator)
	obs.Signals.URL = page.url
	obs.Signals.StatusCode = page.status
	obs.Signals.Title = page.title
	obs.Signals.BodyTruncated = page.truncated

	sig := obs.Signals
	obs.Flags = engine.TechnologyFlags{
		CMSCommonTarget:   signature.CommonlyTargetedCMS[sig.CMS],
		CDNPresent:        sig.CDN != "",
		HostingIdentified: sig.Hosting != "",
	}
	obs.Confidence, obs.Signals.ScorePercent = engine.Score(engine.TechnologyThresholds,
		engine.Evidence{Name: "cms", Weight: 30, Present: sig.CMS != ""},
		engine.Evidence{Name: "cdn", Weight: 25, Present: sig.CDN != ""},
		engine.Evidence{Name: "hosting", Weight: 25, Present: sig.Hosting != ""},
		engine.Evidence{Name: "technologies", Weight: 20, Present: len(sig.Technologies) > 0},
	)
	return obs, nil
}

// Fingerprint runs the signature tables over a captured response. Header-based
// CDN signatures take priority over markup mentions.
func Fingerprint(headers http.Header, body, generator string) engine.TechnologySignals {
	ev := signature.ForResponse(headers, body)
	ev.Generator = generator

	sig := engine.TechnologySignals{
		Generator:    generator,
		Headers:      map[string]string{},
		Technologies: []engine.Technology{},
	}
	sig.CMS, _ = signature.CMS.First(ev)
	if cdn, ok := signature.CDNHeaders.First(ev); ok {
		sig.CDN = cdn
	} else {
		sig.CDN, _ = signature.CDNMarkup.First(ev)
	}
	sig.Hosting, _ = signature.Hosting.First(ev)

	for _, name := range signature.HeaderAllowList {
		if vals := ev.Headers.Values(name); len(vals) > 0 {
			sig.Headers[strings.ToLower(name)] = strings.Join(vals, ", ")
		}
	}
	for _, rule := range signature.Technologies.All(ev) {
		sig.Technologies = append(sig.Technologies, engine.Technology{Name: rule.Label, Category: rule.Category})
	}
	return sig
}
