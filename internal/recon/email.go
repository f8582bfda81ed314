package recon

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/vulnverified/posture/internal/engine"
	"github.com/vulnverified/posture/internal/hostname"
	"github.com/vulnverified/posture/internal/signature"
	"github.com/vulnverified/posture/internal/wordlist"
)

// DKIMSelectors are the selector names probed for a DKIM key. Custom selectors
// cannot be enumerated, so a miss here is "not detected", never "absent".
var DKIMSelectors = wordlist.DKIMSelectors()

// EmailCollector inspects MX, SPF, DMARC and DKIM records.
type EmailCollector struct {
	Resolver *Resolver
}

// Collect implements engine.Collector.
func (c *EmailCollector) Collect(ctx context.Context, domain string) (engine.Observation[engine.EmailSignals, engine.EmailFlags], error) {
	var obs engine.Observation[engine.EmailSignals, engine.EmailFlags]
	if !hostname.Valid(domain) {
		return obs, fmt.Errorf("%w: %q", ErrInvalidHostname, domain)
	}

	var (
		wg                sync.WaitGroup
		mx, txt, dmarcTXT []string
		mxErr, txtErr     error
		selectors         []string
		mu                sync.Mutex
	)
	goSafe(&wg, func() {
		mx, mxErr = c.Resolver.LookupMX(ctx, domain)
	}, func(err error) { mxErr = err })
	goSafe(&wg, func() {
		txt, txtErr = c.Resolver.LookupTXT(ctx, domain)
	}, func(err error) { txtErr = err })
	// A failed DMARC lookup degrades to "missing".
	goSafe(&wg, func() {
		dmarcTXT, _ = c.Resolver.LookupTXT(ctx, "_dmarc."+domain)
	}, func(error) { dmarcTXT = nil })
	for _, sel := range DKIMSelectors {
		goSafe(&wg, func() {
			records, err := c.Resolver.LookupTXT(ctx, sel+"._domainkey."+domain)
			if err != nil || !hasDKIMKey(records) {
				return
			}
			mu.Lock()
			selectors = append(selectors, sel)
			mu.Unlock()
		}, func(error) {})
	}
	wg.Wait()

	if txtErr != nil {
		return obs, fmt.Errorf("TXT lookup: %w", txtErr)
	}
	if mxErr != nil {
		return obs, fmt.Errorf("MX lookup: %w", mxErr)
	}

	sig := engine.EmailSignals{
		MXRecords:     mx,
		SPFStrictness: engine.SPFMissing,
		DMARCPolicy:   engine.DMARCMissing,
		DKIM:          engine.DKIMNotDetected,
		DKIMSelectors: orderSelectors(selectors),
	}
	for _, host := range mx {
		if label, ok := signature.MailProviders.First(signature.ForHost(host)); ok {
			sig.MailProvider = label
			break
		}
	}
	if spf, ok := findRecord(txt, "v=spf1"); ok {
		sig.SPFRecord = spf
		sig.SPFStrictness = ClassifySPF(spf)
	}
	if dmarc, ok := findRecord(dmarcTXT, "v=dmarc1"); ok {
		sig.DMARCRecord = dmarc
		sig.DMARCPolicy = DMARCPolicy(dmarc)
	}
	if len(sig.DKIMSelectors) > 0 {
		sig.DKIM = engine.DKIMDetected
	}

	obs.Signals = sig
	obs.Flags = EmailFlags(sig.SPFStrictness, sig.DMARCPolicy)
	obs.Confidence = engine.ConfidenceHigh
	return obs, nil
}

// ClassifySPF grades an SPF record by its "all" mechanism.
func ClassifySPF(record string) engine.SPFStrictness {
	if strings.TrimSpace(record) == "" {
		return engine.SPFMissing
	}
	if strings.Contains(strings.ToLower(record), "-all") {
		return engine.SPFStrict
	}
	return engine.SPFPermissive
}

// DMARCPolicy returns the p= tag of a DMARC record, or "none" when it is
// absent or unrecognized.
func DMARCPolicy(record string) string {
	for _, tag := range strings.Split(record, ";") {
		key, value, ok := strings.Cut(strings.TrimSpace(tag), "=")
		if !ok || !strings.EqualFold(strings.TrimSpace(key), "p") {
			continue
		}
		switch v := strings.ToLower(strings.TrimSpace(value)); v {
		case engine.DMARCReject, engine.DMARCQuarantine, engine.DMARCNone:
			return v
		}
		return engine.DMARCNone
	}
	return engine.DMARCNone
}

// EmailFlags derives the email flags from SPF strictness and DMARC policy.
func EmailFlags(spf engine.SPFStrictness, dmarc string) engine.EmailFlags {
	weakSPF := spf == engine.SPFMissing || spf == engine.SPFPermissive
	weakDMARC := dmarc == engine.DMARCMissing || dmarc == engine.DMARCNone
	spoofable := weakSPF && weakDMARC
	return engine.EmailFlags{
		EmailSpoofingPossible:  spoofable,
		EmailProtectionPartial: !spoofable && (spf == engine.SPFPermissive || dmarc == engine.DMARCNone),
		EmailProtectionStrong:  spf == engine.SPFStrict && (dmarc == engine.DMARCReject || dmarc == engine.DMARCQuarantine),
	}
}

func findRecord(records []string, prefix string) (string, bool) {
	for _, r := range records {
		r = strings.TrimSpace(r)
		if strings.HasPrefix(strings.ToLower(r), prefix) {
			return r, true
		}
	}
	return "", false
}

func hasDKIMKey(records []string) bool {
	for _, r := range records {
		l := strings.ToLower(r)
		if strings.Contains(l, "v=dkim1") || strings.Contains(l, "k=rsa") {
			return true
		}
	}
	return false
}

// orderSelectors returns found selectors in probe order.
func orderSelectors(found []string) []string {
	set := make(map[string]bool, len(found))
	for _, s := range found {
		set[s] = true
	}
	out := []string{}
	for _, s := range DKIMSelectors {
		if set[s] {
			out = append(out, s)
		}
	}
	return out
}
