package recon

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/vulnverified/posture/internal/engine"
	"github.com/vulnverified/posture/internal/hostname"
	"github.com/vulnverified/posture/internal/signature"
)

var proxyKeywords = []string{"privacy", "protected", "redacted", "proxy"}

var trivialOrganizations = map[string]bool{
	"n/a": true, "na": true, "none": true, "null": true, "-": true,
	"not applicable": true, "individual": true, "personal": true,
}

// GovernanceCollector gathers WHOIS governance data and the NS/A/AAAA/MX records.
type GovernanceCollector struct {
	Resolver *Resolver
	Whois    WhoisLookup
	CT       *CTClient // optional
	Clock    clockwork.Clock
	Logger   *zap.Logger
}

type governanceInputs struct {
	whois      *WhoisRecord
	ns         []string
	a          []string
	aaaa       []string
	mx         []string
	subdomains []string
	ctErr      error
	errs       []error
}

// Collect implements engine.Collector. Each sub-lookup that fails only removes
// its own signal; the collector fails when nothing at all could be learned.
func (g *GovernanceCollector) Collect(ctx context.Context, domain string) (engine.Observation[engine.GovernanceSignals, engine.GovernanceFlags], error) {
	var obs engine.Observation[engine.GovernanceSignals, engine.GovernanceFlags]
	if !hostname.Valid(domain) {
		return obs, fmt.Errorf("%w: %q", ErrInvalidHostname, domain)
	}
	log := g.Logger
	if log == nil {
		log = zap.NewNop()
	}

	in := g.gather(ctx, domain)
	for _, err := range in.errs {
		log.Debug("governance lookup degraded", zap.String("domain", domain), zap.Error(err))
	}
	if in.whois == nil && len(in.ns) == 0 && len(in.a) == 0 && len(in.aaaa) == 0 && len(in.mx) == 0 {
		for _, err := range in.errs {
			if errors.Is(err, ErrNXDomain) {
				return obs, fmt.Errorf("%s: %w", domain, ErrNXDomain)
			}
		}
		if len(in.errs) > 0 {
			return obs, in.errs[0]
		}
		return obs, fmt.Errorf("no DNS or WHOIS data for %s", domain)
	}

	obs.Signals, obs.Flags = g.derive(in)
	var pct float64
	obs.Confidence, pct = engine.Score(engine.GovernanceThresholds,
		engine.Evidence{Name: "domain_age", Weight: 20, Present: obs.Signals.DomainAgeYears != nil},
		engine.Evidence{Name: "registrar", Weight: 15, Present: obs.Signals.Registrar != ""},
		engine.Evidence{Name: "nameservers", Weight: 25, Present: len(obs.Signals.Nameservers) > 0},
		engine.Evidence{Name: "a_records", Weight: 20, Present: len(obs.Signals.ARecords) > 0},
		engine.Evidence{Name: "mx_records", Weight: 20, Present: len(obs.Signals.MXRecords) > 0},
	)
	obs.Signals.ScorePercent = pct
	return obs, nil
}

func (g *GovernanceCollector) gather(ctx context.Context, domain string) governanceInputs {
	var (
		in governanceInputs
		mu sync.Mutex
		wg sync.WaitGroup
	)
	record := func(err error) {
		mu.Lock()
		in.errs = append(in.errs, err)
		mu.Unlock()
	}
	lookup := func(dst *[]string, fn func(context.Context, string) ([]string, error)) {
		goSafe(&wg, func() {
			vals, err := fn(ctx, domain)
			if err != nil {
				record(err)
				return
			}
			*dst = vals
		}, record)
	}

	lookup(&in.ns, g.Resolver.LookupNS)
	lookup(&in.a, g.Resolver.LookupA)
	lookup(&in.aaaa, g.Resolver.LookupAAAA)
	lookup(&in.mx, g.Resolver.LookupMX)

	if g.Whois != nil {
		goSafe(&wg, func() {
			rec, err := g.Whois.Lookup(ctx, domain)
			if err != nil {
				record(err)
				return
			}
			in.whois = rec
		}, record)
	}
	if g.CT != nil {
		goSafe(&wg, func() {
			in.subdomains, in.ctErr = g.CT.Subdomains(ctx, domain)
		}, func(err error) { in.ctErr = err })
	}
	wg.Wait()
	return in
}

func (g *GovernanceCollector) derive(in governanceInputs) (engine.GovernanceSignals, engine.GovernanceFlags) {
	now := time.Now()
	if g.Clock != nil {
		now = g.Clock.Now()
	}

	sig := engine.GovernanceSignals{
		ExpiryBucket:   engine.ExpiryUnknown,
		RegistrantType: engine.RegistrantUnknown,
		Nameservers:    in.ns,
		ARecords:       in.a,
		AAAARecords:    in.aaaa,
		MXRecords:      in.mx,
		Subdomains:     summarizeSubdomains(in.subdomains, in.ctErr),
	}

	if w := in.whois; w != nil {
		sig.Registrar = w.Registrar
		sig.StatusCodes = w.Status
		if w.CreatedAt != nil {
			created := *w.CreatedAt
			age := math.Round(now.Sub(created).Hours()/24/365.25*100) / 100
			sig.CreatedAt = &created
			sig.DomainAgeYears = &age
		}
		if w.ExpiresAt != nil {
			expires := *w.ExpiresAt
			days := int(math.Floor(expires.Sub(now).Hours() / 24))
			sig.ExpiresAt = &expires
			sig.DaysUntilExpiry = &days
			sig.ExpiryBucket = expiryBucket(days)
		}
		sig.RegistrantType = classifyRegistrant(w.Organization, w.RegistrantName)
		locked := transferLocked(w.Status)
		sig.TransferLock = &locked
		if len(sig.Nameservers) == 0 {
			sig.Nameservers = w.Nameservers
		}
	}
	sig.DNSProvider = dnsProvider(sig.Nameservers)

	flags := engine.GovernanceFlags{
		DomainAgeLow:            sig.DomainAgeYears != nil && *sig.DomainAgeYears < 1,
		SinglePointOfDependency: singlePointOfDependency(sig.Nameservers),
		ExpiryUnderSixMonths:    sig.ExpiryBucket == engine.ExpiryUnderSixMonths,
		RegistrantIndividual:    sig.RegistrantType == engine.RegistrantIndividual,
		RegistrantProxy:         sig.RegistrantType == engine.RegistrantProxy,
		TransferLockConfirmed:   sig.TransferLock != nil && *sig.TransferLock,
	}
	same := sameOrganization(sig.Registrar, sig.DNSProvider)
	flags.DNSProviderThirdParty = sig.DNSProvider != "" && (sig.Registrar == "" || !same)
	flags.SeparatedGovernance = sig.DNSProvider != "" && sig.Registrar != "" && !same
	return sig, flags
}

func summarizeSubdomains(hosts []string, err error) engine.SubdomainSignals {
	s := engine.SubdomainSignals{Count: len(hosts), Sample: []string{}}
	if err != nil {
		s.Error = err.Error()
	}
	if len(hosts) > subdomainSampleSize {
		hosts = hosts[:subdomainSampleSize]
	}
	s.Sample = append(s.Sample, hosts...)
	return s
}

func expiryBucket(days int) engine.ExpiryBucket {
	switch {
	case days < 180:
		return engine.ExpiryUnderSixMonths
	case days <= 365:
		return engine.ExpirySixToTwelve
	default:
		return engine.ExpiryMoreThanYear
	}
}

func classifyRegistrant(org, name string) engine.RegistrantType {
	combined := strings.ToLower(org + " " + name)
	if strings.TrimSpace(combined) == "" {
		return engine.RegistrantUnknown
	}
	for _, kw := range proxyKeywords {
		if strings.Contains(combined, kw) {
			return engine.RegistrantProxy
		}
	}
	if o := strings.ToLower(strings.TrimSpace(org)); len(o) >= 2 && !trivialOrganizations[o] {
		return engine.RegistrantBusiness
	}
	if strings.TrimSpace(name) != "" {
		return engine.RegistrantIndividual
	}
	return engine.RegistrantUnknown
}

func transferLocked(status []string) bool {
	for _, s := range status {
		if strings.Contains(strings.ToLower(s), "transferprohibited") {
			return true
		}
	}
	return false
}

// dnsProvider returns the first signature match across the nameservers, else the
// registrable domain of the first nameserver.
func dnsProvider(nameservers []string) string {
	for _, ns := range nameservers {
		if label, ok := signature.DNSProviders.First(signature.ForHost(ns)); ok {
			return label
		}
	}
	if len(nameservers) == 0 {
		return ""
	}
	return hostname.BaseDomain(nameservers[0])
}

func singlePointOfDependency(nameservers []string) bool {
	if len(nameservers) == 0 {
		return false
	}
	base := hostname.BaseDomain(nameservers[0])
	for _, ns := range nameservers[1:] {
		if hostname.BaseDomain(ns) != base {
			return false
		}
	}
	return true
}

// sameOrganization reports whether a registrar and a DNS provider name look like
// the same company, e.g. "GoDaddy.com, LLC" and "GoDaddy".
func sameOrganization(a, b string) bool {
	ta, tb := orgTokens(a), orgTokens(b)
	if len(ta) == 0 || len(tb) == 0 {
		return false
	}
	if ta[0] == tb[0] {
		return true
	}
	ja, jb := strings.Join(ta, ""), strings.Join(tb, "")
	return strings.Contains(ja, jb) || strings.Contains(jb, ja)
}

func orgTokens(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	})
}
