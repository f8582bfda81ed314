package recon

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/vulnverified/posture/internal/engine"
	"github.com/vulnverified/posture/internal/hostname"
	"github.com/vulnverified/posture/internal/signature"
)

const (
	defaultPTRTimeout = 5 * time.Second
	regionUnknown     = "unknown"
)

// ExposureCollector infers hosting from the apex address. It only resolves
// names; it never connects to the host.
type ExposureCollector struct {
	Resolver   *Resolver
	PTRTimeout time.Duration
}

// Collect implements engine.Collector. Confidence is always low.
func (c *ExposureCollector) Collect(ctx context.Context, domain string) (engine.Observation[engine.ExposureSignals, engine.ExposureFlags], error) {
	var obs engine.Observation[engine.ExposureSignals, engine.ExposureFlags]
	if !hostname.Valid(domain) {
		return obs, fmt.Errorf("%w: %q", ErrInvalidHostname, domain)
	}

	ips, err := c.Resolver.LookupA(ctx, domain)
	if err != nil {
		return obs, fmt.Errorf("A lookup: %w", err)
	}
	if len(ips) == 0 {
		return obs, fmt.Errorf("no A records for %s", domain)
	}

	sig := engine.ExposureSignals{
		IPs:                ips,
		PTR:                c.reverse(ctx, ips[0]),
		InfrastructureType: engine.InfrastructureUnknown,
		HostingRegion:      regionUnknown,
		Method:             engine.ExposureMethodNone,
	}

	if sig.PTR != nil {
		sig.Method = engine.ExposureMethodPTR
		ev := signature.ForHost(*sig.PTR)
		if provider, ok := signature.CloudProviders.First(ev); ok {
			sig.InfrastructureType = engine.InfrastructureCloud
			sig.Provider = provider
		} else if provider, ok := signature.Datacenters.First(ev); ok {
			sig.InfrastructureType = engine.InfrastructureDatacenter
			sig.Provider = provider
		}
		if region, ok := signature.Regions.First(ev); ok {
			sig.HostingRegion = region
		}
	} else if infra, region, ok := ipRangeHeuristic(ips[0]); ok {
		sig.Method = engine.ExposureMethodHeuristic
		sig.InfrastructureType = infra
		sig.HostingRegion = region
	}

	obs.Signals = sig
	obs.Flags = engine.ExposureFlags{
		CloudHosted: sig.InfrastructureType == engine.InfrastructureCloud,
		InfrastructureIdentifiable: sig.PTR != nil ||
			sig.InfrastructureType != engine.InfrastructureUnknown ||
			sig.HostingRegion != regionUnknown,
	}
	obs.Confidence = engine.ConfidenceLow
	return obs, nil
}

// reverse bounds the PTR lookup by PTRTimeout. A timeout or error yields nil.
func (c *ExposureCollector) reverse(ctx context.Context, ip string) *string {
	timeout := c.PTRTimeout
	if timeout <= 0 {
		timeout = defaultPTRTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ch := make(chan string, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				ch <- ""
			}
		}()
		names, err := c.Resolver.LookupPTR(ctx, ip)
		if err != nil || len(names) == 0 {
			ch <- ""
			return
		}
		ch <- names[0]
	}()

	select {
	case name := <-ch:
		if name == "" {
			return nil
		}
		return &name
	case <-ctx.Done():
		return nil
	}
}

// Coarse first-octet allocation table. This is not geolocation: it reflects which
// regional registry originally received the /8, and a handful of /8s held mostly
// by large cloud providers.
var (
	cloudOctets = map[byte]bool{3: true, 13: true, 18: true, 34: true, 35: true, 52: true, 54: true}

	octetRegions = map[byte]string{
		3: "north_america", 13: "north_america", 18: "north_america", 23: "north_america",
		34: "north_america", 35: "north_america", 44: "north_america", 50: "north_america",
		52: "north_america", 54: "north_america", 63: "north_america", 64: "north_america",
		65: "north_america", 66: "north_america", 67: "north_america", 68: "north_america",
		69: "north_america", 70: "north_america", 71: "north_america", 72: "north_america",
		73: "north_america", 74: "north_america", 75: "north_america", 76: "north_america",
		96: "north_america", 97: "north_america", 98: "north_america", 99: "north_america",
		104: "north_america", 107: "north_america", 108: "north_america", 184: "north_america",
		198: "north_america", 199: "north_america", 204: "north_america", 205: "north_america",
		206: "north_america", 207: "north_america", 208: "north_america", 209: "north_america",
		216: "north_america",

		2: "europe", 5: "europe", 31: "europe", 37: "europe", 46: "europe", 62: "europe",
		77: "europe", 78: "europe", 79: "europe", 80: "europe", 81: "europe", 82: "europe",
		83: "europe", 84: "europe", 85: "europe", 86: "europe", 87: "europe", 88: "europe",
		89: "europe", 90: "europe", 91: "europe", 92: "europe", 93: "europe", 94: "europe",
		95: "europe", 109: "europe", 176: "europe", 178: "europe", 185: "europe", 188: "europe",
		193: "europe", 194: "europe", 195: "europe", 212: "europe", 213: "europe", 217: "europe",

		1: "asia_pacific", 14: "asia_pacific", 27: "asia_pacific", 36: "asia_pacific",
		39: "asia_pacific", 42: "asia_pacific", 43: "asia_pacific", 49: "asia_pacific",
		58: "asia_pacific", 59: "asia_pacific", 60: "asia_pacific", 61: "asia_pacific",
		101: "asia_pacific", 103: "asia_pacific", 106: "asia_pacific", 110: "asia_pacific",
		111: "asia_pacific", 112: "asia_pacific", 113: "asia_pacific", 114: "asia_pacific",
		115: "asia_pacific", 116: "asia_pacific", 117: "asia_pacific", 118: "asia_pacific",
		119: "asia_pacific", 120: "asia_pacific", 121: "asia_pacific", 122: "asia_pacific",
		123: "asia_pacific", 124: "asia_pacific", 125: "asia_pacific", 126: "asia_pacific",
		175: "asia_pacific", 180: "asia_pacific", 182: "asia_pacific", 183: "asia_pacific",
		202: "asia_pacific", 203: "asia_pacific", 210: "asia_pacific", 211: "asia_pacific",
		218: "asia_pacific", 219: "asia_pacific", 220: "asia_pacific", 221: "asia_pacific",
		222: "asia_pacific", 223: "asia_pacific",

		177: "south_america", 179: "south_america", 181: "south_america", 186: "south_america",
		187: "south_america", 189: "south_america", 190: "south_america", 191: "south_america",
		200: "south_america", 201: "south_america",

		41: "africa", 102: "africa", 105: "africa", 154: "africa", 196: "africa", 197: "africa",
	}
)

// ipRangeHeuristic guesses infrastructure type and region from the first octet
// of a public IPv4 address.
func ipRangeHeuristic(ip string) (engine.InfrastructureType, string, bool) {
	parsed := net.ParseIP(ip).To4()
	if parsed == nil || parsed.IsPrivate() || parsed.IsLoopback() || parsed.IsLinkLocalUnicast() || parsed.IsUnspecified() {
		return engine.InfrastructureUnknown, regionUnknown, false
	}
	infra := engine.InfrastructureUnknown
	if cloudOctets[parsed[0]] {
		infra = engine.InfrastructureCloud
	}
	region, ok := octetRegions[parsed[0]]
	if !ok {
		region = regionUnknown
	}
	if infra == engine.InfrastructureUnknown && !ok {
		return infra, region, false
	}
	return infra, region, true
}
