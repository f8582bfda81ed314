package recon

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/likexian/whois"
	whoisparser "github.com/likexian/whois-parser"
)

const defaultWhoisTimeout = 15 * time.Second

// WhoisRecord is the governance subset of a WHOIS answer. Contact details other
// than the registrant organization and name are dropped at parse time.
type WhoisRecord struct {
	Registrar      string
	Organization   string
	RegistrantName string
	CreatedAt      *time.Time
	ExpiresAt      *time.Time
	Status         []string
	Nameservers    []string
}

// WhoisLookup fetches and parses WHOIS data for a domain.
type WhoisLookup interface {
	Lookup(ctx context.Context, domain string) (*WhoisRecord, error)
}

// WhoisClient queries WHOIS servers over the text protocol.
type WhoisClient struct {
	client  *whois.Client
	timeout time.Duration
}

// NewWhoisClient returns a client whose queries give up after timeout.
func NewWhoisClient(timeout time.Duration) *WhoisClient {
	if timeout <= 0 {
		timeout = defaultWhoisTimeout
	}
	return &WhoisClient{
		client:  whois.NewClient().SetTimeout(timeout),
		timeout: timeout,
	}
}

// Lookup queries WHOIS for domain. The underlying client has no context support,
// so the query is raced against ctx and the client's own timeout.
func (w *WhoisClient) Lookup(ctx context.Context, domain string) (*WhoisRecord, error) {
	type answer struct {
		text string
		err  error
	}
	ch := make(chan answer, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				ch <- answer{err: fmt.Errorf("panic: %v", p)}
			}
		}()
		text, err := w.client.Whois(domain)
		ch <- answer{text: text, err: err}
	}()

	timer := time.NewTimer(w.timeout + time.Second)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("timeout: whois %s: %w", domain, ctx.Err())
	case <-timer.C:
		return nil, fmt.Errorf("timeout: whois %s after %s", domain, w.timeout)
	case a := <-ch:
		if a.err != nil {
			return nil, fmt.Errorf("network: whois %s: %w", domain, a.err)
		}
		return ParseWhois(a.text)
	}
}

// ParseWhois extracts governance fields from raw WHOIS text. A parser panic on
// malformed text is returned as a parse error.
func ParseWhois(text string) (rec *WhoisRecord, err error) {
	defer func() {
		if p := recover(); p != nil {
			rec, err = nil, fmt.Errorf("parse: whois: %v", p)
		}
	}()
	info, err := whoisparser.Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse: whois: %w", err)
	}

	rec = &WhoisRecord{}
	if info.Domain != nil {
		rec.CreatedAt = parseWhoisDate(info.Domain.CreatedDate)
		rec.ExpiresAt = parseWhoisDate(info.Domain.ExpirationDate)
		for _, s := range info.Domain.Status {
			if s = strings.TrimSpace(s); s != "" {
				rec.Status = append(rec.Status, s)
			}
		}
		for _, ns := range info.Domain.NameServers {
			if ns = canonicalName(strings.TrimSpace(ns)); ns != "" {
				rec.Nameservers = append(rec.Nameservers, ns)
			}
		}
	}
	if info.Registrar != nil {
		rec.Registrar = strings.TrimSpace(info.Registrar.Name)
	}
	if info.Registrant != nil {
		rec.Organization = strings.TrimSpace(info.Registrant.Organization)
		rec.RegistrantName = strings.TrimSpace(info.Registrant.Name)
	}
	return rec, nil
}

var whoisDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05.0Z",
	"2006-01-02T15:04:05.000Z",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05 MST",
	"2006-01-02",
	"02-Jan-2006",
	"2006.01.02",
	"02.01.2006",
	"2006/01/02",
	"January 2 2006",
}

func parseWhoisDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range whoisDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
