package recon

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/miekg/dns"

	"github.com/vulnverified/posture/internal/engine"
)

func TestClassifySPF(t *testing.T) {
	tests := []struct {
		record string
		want   engine.SPFStrictness
	}{
		{"v=spf1 include:_spf.google.com -all", engine.SPFStrict},
		{"v=spf1 ~all", engine.SPFPermissive},
		{"v=spf1 ?all", engine.SPFPermissive},
		{"v=spf1 include:mailgun.org", engine.SPFPermissive},
		{"", engine.SPFMissing},
	}
	for _, tt := range tests {
		if got := ClassifySPF(tt.record); got != tt.want {
			t.Errorf("ClassifySPF(%q) = %q, want %q", tt.record, got, tt.want)
		}
	}
}

func TestDMARCPolicy(t *testing.T) {
	tests := []struct {
		record string
		want   string
	}{
		{"v=DMARC1; p=reject; rua=mailto:dmarc@example.com", engine.DMARCReject},
		{"v=DMARC1;p=quarantine;pct=100", engine.DMARCQuarantine},
		{"v=DMARC1; p=none", engine.DMARCNone},
		{"v=DMARC1; rua=mailto:dmarc@example.com", engine.DMARCNone},
		{"v=DMARC1; sp=reject", engine.DMARCNone},
		{"v=DMARC1; P=Reject", engine.DMARCReject},
		{"v=DMARC1; p=bogus", engine.DMARCNone},
	}
	for _, tt := range tests {
		if got := DMARCPolicy(tt.record); got != tt.want {
			t.Errorf("DMARCPolicy(%q) = %q, want %q", tt.record, got, tt.want)
		}
	}
}

func TestEmailFlags(t *testing.T) {
	spfs := []engine.SPFStrictness{engine.SPFStrict, engine.SPFPermissive, engine.SPFMissing}
	dmarcs := []string{engine.DMARCReject, engine.DMARCQuarantine, engine.DMARCNone, engine.DMARCMissing}

	for _, spf := range spfs {
		for _, dmarc := range dmarcs {
			f := EmailFlags(spf, dmarc)
			wantSpoof := (spf == engine.SPFMissing || spf == engine.SPFPermissive) &&
				(dmarc == engine.DMARCMissing || dmarc == engine.DMARCNone)
			if f.EmailSpoofingPossible != wantSpoof {
				t.Errorf("spf=%s dmarc=%s: spoofing = %v, want %v", spf, dmarc, f.EmailSpoofingPossible, wantSpoof)
			}
			wantStrong := spf == engine.SPFStrict && (dmarc == engine.DMARCReject || dmarc == engine.DMARCQuarantine)
			if f.EmailProtectionStrong != wantStrong {
				t.Errorf("spf=%s dmarc=%s: strong = %v, want %v", spf, dmarc, f.EmailProtectionStrong, wantStrong)
			}
			if f.EmailSpoofingPossible && f.EmailProtectionPartial {
				t.Errorf("spf=%s dmarc=%s: partial and spoofable are exclusive", spf, dmarc)
			}
		}
	}

	if f := EmailFlags(engine.SPFStrict, engine.DMARCReject); f.EmailSpoofingPossible {
		t.Error("strict spf with reject dmarc must not be spoofable")
	}
	if f := EmailFlags(engine.SPFPermissive, engine.DMARCReject); !f.EmailProtectionPartial {
		t.Error("permissive spf with reject dmarc should be partial")
	}
	if f := EmailFlags(engine.SPFStrict, engine.DMARCNone); !f.EmailProtectionPartial {
		t.Error("strict spf with dmarc none should be partial")
	}
}

func TestEmailCollector_Strong(t *testing.T) {
	z := newFakeZone(t,
		"example.com. 300 IN MX 1 aspmx.l.google.com.",
		`example.com. 300 IN TXT "google-site-verification=abc"`,
		`example.com. 300 IN TXT "v=spf1 include:_spf.google.com -all"`,
		`_dmarc.example.com. 300 IN TXT "v=DMARC1; p=reject; rua=mailto:d@example.com"`,
		`google._domainkey.example.com. 300 IN TXT "v=DKIM1; k=rsa; p=MIIBIjAN"`,
		`selector1._domainkey.example.com. 300 IN TXT "k=rsa; p=MIGfMA0"`,
	)
	c := &EmailCollector{Resolver: z.resolver()}

	obs, err := c.Collect(context.Background(), "example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sig := obs.Signals
	if sig.MailProvider != "Google Workspace" {
		t.Errorf("mail provider = %q", sig.MailProvider)
	}
	if sig.SPFStrictness != engine.SPFStrict || sig.DMARCPolicy != engine.DMARCReject {
		t.Errorf("spf = %q, dmarc = %q", sig.SPFStrictness, sig.DMARCPolicy)
	}
	if sig.DKIM != engine.DKIMDetected {
		t.Errorf("dkim = %q", sig.DKIM)
	}
	if len(sig.DKIMSelectors) != 2 || sig.DKIMSelectors[0] != "google" || sig.DKIMSelectors[1] != "selector1" {
		t.Errorf("selectors = %v", sig.DKIMSelectors)
	}
	if !obs.Flags.EmailProtectionStrong || obs.Flags.EmailSpoofingPossible {
		t.Errorf("flags = %+v", obs.Flags)
	}
	if obs.Confidence != engine.ConfidenceHigh {
		t.Errorf("confidence = %q, want high", obs.Confidence)
	}
}

func TestEmailCollector_NothingPublished(t *testing.T) {
	z := newFakeZone(t, "example.com. 300 IN A 192.0.2.1")
	z.nx["_dmarc.example.com."] = true
	c := &EmailCollector{Resolver: z.resolver()}

	obs, err := c.Collect(context.Background(), "example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sig := obs.Signals
	if sig.SPFStrictness != engine.SPFMissing || sig.DMARCPolicy != engine.DMARCMissing {
		t.Errorf("spf = %q, dmarc = %q", sig.SPFStrictness, sig.DMARCPolicy)
	}
	if sig.DKIM != engine.DKIMNotDetected {
		t.Errorf("dkim = %q, want not_detected", sig.DKIM)
	}
	if !obs.Flags.EmailSpoofingPossible {
		t.Error("expected email_spoofing_possible")
	}
	if obs.Confidence != engine.ConfidenceHigh {
		t.Errorf("confidence = %q, want high", obs.Confidence)
	}
}

func TestEmailCollector_Failures(t *testing.T) {
	t.Run("nxdomain", func(t *testing.T) {
		z := newFakeZone(t)
		z.nx["nope.example."] = true
		_, err := (&EmailCollector{Resolver: z.resolver()}).Collect(context.Background(), "nope.example")
		if !errors.Is(err, ErrNXDomain) {
			t.Errorf("err = %v, want ErrNXDomain", err)
		}
	})
	t.Run("unreachable", func(t *testing.T) {
		z := newFakeZone(t)
		z.failAll = true
		if _, err := (&EmailCollector{Resolver: z.resolver()}).Collect(context.Background(), "example.com"); err == nil {
			t.Fatal("expected error")
		}
	})
	t.Run("garbage", func(t *testing.T) {
		_, err := (&EmailCollector{Resolver: newFakeZone(t).resolver()}).Collect(context.Background(), "%%%")
		if !errors.Is(err, ErrInvalidHostname) {
			t.Errorf("err = %v, want ErrInvalidHostname", err)
		}
	})
}

// panickyZone panics on queries for one name and defers everything else to zone.
type panickyZone struct {
	zone *fakeZone
	name string
}

func (p panickyZone) ExchangeContext(ctx context.Context, m *dns.Msg, address string) (*dns.Msg, time.Duration, error) {
	if strings.EqualFold(m.Question[0].Name, p.name) {
		panic("resolver bug")
	}
	return p.zone.ExchangeContext(ctx, m, address)
}

func TestEmailCollector_LookupPanic(t *testing.T) {
	zone := newFakeZone(t,
		"example.com. 300 IN MX 1 aspmx.l.google.com.",
		`example.com. 300 IN TXT "v=spf1 -all"`,
		`_dmarc.example.com. 300 IN TXT "v=DMARC1; p=reject"`,
	)

	t.Run("dmarc degrades to missing", func(t *testing.T) {
		r := zone.resolver()
		r.Client = panickyZone{zone: zone, name: "_dmarc.example.com."}
		obs, err := (&EmailCollector{Resolver: r}).Collect(context.Background(), "example.com")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if obs.Signals.DMARCPolicy != engine.DMARCMissing {
			t.Errorf("dmarc = %q, want missing", obs.Signals.DMARCPolicy)
		}
	})

	t.Run("apex txt fails the block", func(t *testing.T) {
		r := zone.resolver()
		r.Client = panickyZone{zone: zone, name: "example.com."}
		_, err := (&EmailCollector{Resolver: r}).Collect(context.Background(), "example.com")
		if err == nil || !strings.Contains(err.Error(), "resolver bug") {
			t.Errorf("err = %v, want recovered panic", err)
		}
	})
}
