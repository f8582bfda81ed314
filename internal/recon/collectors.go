package recon

import (
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/vulnverified/posture/internal/breachcache"
	"github.com/vulnverified/posture/internal/engine"
)

// Options configures the collectors built by NewCollectors. Zero durations
// fall back to each client's default.
type Options struct {
	UserAgent string

	DNSServers []string // nil reads /etc/resolv.conf
	DNSTimeout time.Duration

	WhoisTimeout time.Duration
	TLSTimeout   time.Duration
	HTTPTimeout  time.Duration
	PTRTimeout   time.Duration

	CTBaseURL string
	CTTimeout time.Duration

	BreachBaseURL       string
	BreachAPIKey        string
	BreachRatePerMinute int
	BreachTimeout       time.Duration
	BreachCache         *breachcache.Cache

	Clock  clockwork.Clock
	Logger *zap.Logger
}

// NewCollectors builds the six collectors over one shared resolver and one
// instance of each external client, so rate limiters apply process-wide.
func NewCollectors(o Options) engine.Collectors {
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	resolver := NewResolver(o.DNSServers, o.DNSTimeout)
	homepageTimeout := o.HTTPTimeout
	if homepageTimeout <= 0 {
		homepageTimeout = defaultHomepageTimeout
	}

	return engine.Collectors{
		Governance: &GovernanceCollector{
			Resolver: resolver,
			Whois:    NewWhoisClient(o.WhoisTimeout),
			CT:       NewCTClient(o.CTBaseURL, o.UserAgent, o.CTTimeout),
			Clock:    o.Clock,
			Logger:   o.Logger.Named("governance"),
		},
		Email: &EmailCollector{Resolver: resolver},
		TLS: &TLSCollector{
			Timeout:   o.TLSTimeout,
			UserAgent: o.UserAgent,
			Clock:     o.Clock,
		},
		Technology: &TechnologyCollector{
			Client:    newHomepageClient(homepageTimeout),
			UserAgent: o.UserAgent,
			Timeout:   homepageTimeout,
		},
		Exposure: &ExposureCollector{
			Resolver:   resolver,
			PTRTimeout: o.PTRTimeout,
		},
		Breach: &BreachCollector{
			Registry: NewBreachRegistry(o.BreachBaseURL, o.BreachAPIKey, o.UserAgent, o.BreachTimeout, o.BreachRatePerMinute),
			Cache:    o.BreachCache,
			Clock:    o.Clock,
		},
	}
}
