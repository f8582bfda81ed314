package recon

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/miekg/dns"

	"github.com/vulnverified/posture/internal/engine"
)

func TestExposureCollector_PTR(t *testing.T) {
	tests := []struct {
		name         string
		ptr          string
		wantType     engine.InfrastructureType
		wantProvider string
		wantRegion   string
	}{
		{"aws", "ec2-3-120-1-2.eu-central-1.compute.amazonaws.com.", engine.InfrastructureCloud, "Amazon Web Services", "europe"},
		{"hetzner", "static.88-198-1-2.clients.your-server.de.", engine.InfrastructureDatacenter, "Hetzner", "europe"},
		{"isp", "host-1-2.isp.example.", engine.InfrastructureUnknown, "", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			z := newFakeZone(t,
				"example.com. 300 IN A 3.120.1.2",
				"2.1.120.3.in-addr.arpa. 300 IN PTR "+tt.ptr,
			)
			obs, err := (&ExposureCollector{Resolver: z.resolver()}).Collect(context.Background(), "example.com")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			sig := obs.Signals
			if sig.PTR == nil || *sig.PTR+"." != tt.ptr {
				t.Errorf("ptr = %v, want %q", sig.PTR, tt.ptr)
			}
			if sig.Method != engine.ExposureMethodPTR {
				t.Errorf("method = %q, want ptr", sig.Method)
			}
			if sig.InfrastructureType != tt.wantType || sig.Provider != tt.wantProvider || sig.HostingRegion != tt.wantRegion {
				t.Errorf("got %q/%q/%q, want %q/%q/%q", sig.InfrastructureType, sig.Provider, sig.HostingRegion,
					tt.wantType, tt.wantProvider, tt.wantRegion)
			}
			if !obs.Flags.InfrastructureIdentifiable {
				t.Error("a resolved PTR makes infrastructure identifiable")
			}
			if obs.Flags.CloudHosted != (tt.wantType == engine.InfrastructureCloud) {
				t.Errorf("cloud_hosted = %v", obs.Flags.CloudHosted)
			}
			if obs.Confidence != engine.ConfidenceLow {
				t.Errorf("confidence = %q, exposure is always low", obs.Confidence)
			}
		})
	}
}

func TestExposureCollector_HeuristicWithoutPTR(t *testing.T) {
	z := newFakeZone(t, "example.com. 300 IN A 52.1.2.3")
	obs, err := (&ExposureCollector{Resolver: z.resolver()}).Collect(context.Background(), "example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sig := obs.Signals
	if sig.PTR != nil {
		t.Errorf("ptr = %q, want nil", *sig.PTR)
	}
	if sig.Method != engine.ExposureMethodHeuristic {
		t.Errorf("method = %q", sig.Method)
	}
	if sig.InfrastructureType != engine.InfrastructureCloud || sig.HostingRegion != "north_america" {
		t.Errorf("got %q/%q", sig.InfrastructureType, sig.HostingRegion)
	}
	if obs.Confidence != engine.ConfidenceLow {
		t.Errorf("confidence = %q", obs.Confidence)
	}
}

// slowPTR answers A queries immediately and never answers PTR queries before ctx ends.
type slowPTR struct{ *fakeZone }

func (s slowPTR) ExchangeContext(ctx context.Context, m *dns.Msg, address string) (*dns.Msg, time.Duration, error) {
	if m.Question[0].Qtype == dns.TypePTR {
		<-ctx.Done()
		return nil, 0, ctx.Err()
	}
	return s.fakeZone.ExchangeContext(ctx, m, address)
}

func TestExposureCollector_PTRTimeoutReturnsNull(t *testing.T) {
	z := newFakeZone(t, "example.com. 300 IN A 10.0.0.1")
	r := &Resolver{Client: slowPTR{z}, Servers: []string{"192.0.2.53:53"}, Timeout: time.Minute}

	c := &ExposureCollector{Resolver: r, PTRTimeout: 50 * time.Millisecond}
	start := time.Now()
	obs, err := c.Collect(context.Background(), "example.com")
	if err != nil {
		t.Fatalf("a ptr timeout must not fail the collector: %v", err)
	}
	if time.Since(start) > 10*time.Second {
		t.Error("ptr race did not time out")
	}
	if obs.Signals.PTR != nil {
		t.Error("ptr should be null after timeout")
	}
	if obs.Signals.Method != engine.ExposureMethodNone || obs.Flags.InfrastructureIdentifiable {
		t.Errorf("private address should leave infrastructure unidentified: %+v", obs.Signals)
	}
}

func TestExposureCollector_Failures(t *testing.T) {
	t.Run("no a records", func(t *testing.T) {
		z := newFakeZone(t, "example.com. 300 IN MX 10 mx.example.com.")
		if _, err := (&ExposureCollector{Resolver: z.resolver()}).Collect(context.Background(), "example.com"); err == nil {
			t.Fatal("expected error")
		}
	})
	t.Run("nxdomain", func(t *testing.T) {
		z := newFakeZone(t)
		z.nx["gone.example."] = true
		_, err := (&ExposureCollector{Resolver: z.resolver()}).Collect(context.Background(), "gone.example")
		if !errors.Is(err, ErrNXDomain) {
			t.Errorf("err = %v, want ErrNXDomain", err)
		}
	})
}

func TestIPRangeHeuristic(t *testing.T) {
	tests := []struct {
		ip         string
		wantType   engine.InfrastructureType
		wantRegion string
		wantOK     bool
	}{
		{"35.190.1.1", engine.InfrastructureCloud, "north_america", true},
		{"88.198.1.2", engine.InfrastructureUnknown, "europe", true},
		{"200.1.1.1", engine.InfrastructureUnknown, "south_america", true},
		{"192.168.1.1", engine.InfrastructureUnknown, "unknown", false},
		{"127.0.0.1", engine.InfrastructureUnknown, "unknown", false},
		{"2001:db8::1", engine.InfrastructureUnknown, "unknown", false},
		{"garbage", engine.InfrastructureUnknown, "unknown", false},
	}
	for _, tt := range tests {
		infra, region, ok := ipRangeHeuristic(tt.ip)
		if infra != tt.wantType || region != tt.wantRegion || ok != tt.wantOK {
			t.Errorf("ipRangeHeuristic(%q) = %q, %q, %v; want %q, %q, %v", tt.ip, infra, region, ok, tt.wantType, tt.wantRegion, tt.wantOK)
		}
	}
}
