package recon

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/vulnverified/posture/internal/engine"
)

func serverPort(t *testing.T, rawURL string) string {
	t.Helper()
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse %q: %v", rawURL, err)
	}
	return u.Port()
}

// closedPort returns a localhost port with nothing listening on it.
func closedPort(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	_, port, _ := net.SplitHostPort(ln.Addr().String())
	ln.Close()
	return port
}

func TestTLSCollector_ValidCertificateAndRedirect(t *testing.T) {
	tlsSrv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer tlsSrv.Close()
	httpSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "https://example.com/", http.StatusMovedPermanently)
	}))
	defer httpSrv.Close()

	roots := x509.NewCertPool()
	roots.AddCert(tlsSrv.Certificate())

	c := &TLSCollector{
		Timeout:   5 * time.Second,
		HTTPSPort: serverPort(t, tlsSrv.URL),
		HTTPPort:  serverPort(t, httpSrv.URL),
		RootCAs:   roots,
	}
	obs, err := c.Collect(context.Background(), "127.0.0.1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sig := obs.Signals

	if !sig.CertificateValid {
		t.Errorf("certificate should be valid, authorization error: %q", sig.AuthorizationError)
	}
	if sig.Issuer == "" || sig.ValidTo == nil {
		t.Errorf("issuer = %q, valid_to = %v", sig.Issuer, sig.ValidTo)
	}
	if sig.Protocol != "TLS 1.3" {
		t.Errorf("protocol = %q, want TLS 1.3", sig.Protocol)
	}
	if !sig.HTTPSEnforced || sig.HTTPStatus != http.StatusMovedPermanently {
		t.Errorf("https enforced = %v, status = %d", sig.HTTPSEnforced, sig.HTTPStatus)
	}
	if obs.Flags.NoHTTPSRedirect || obs.Flags.LegacyTLSSupported || obs.Flags.SSLExpiringSoon {
		t.Errorf("flags = %+v", obs.Flags)
	}
	if obs.Confidence != engine.ConfidenceHigh {
		t.Errorf("confidence = %q, want high", obs.Confidence)
	}
}

func TestTLSCollector_UntrustedCertificateIsPartial(t *testing.T) {
	tlsSrv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer tlsSrv.Close()
	httpSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("plain"))
	}))
	defer httpSrv.Close()

	c := &TLSCollector{
		Timeout:   5 * time.Second,
		HTTPSPort: serverPort(t, tlsSrv.URL),
		HTTPPort:  serverPort(t, httpSrv.URL),
		RootCAs:   x509.NewCertPool(), // trusts nothing
	}
	obs, err := c.Collect(context.Background(), "127.0.0.1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if obs.Signals.CertificateValid {
		t.Error("certificate should not be valid against an empty root pool")
	}
	if obs.Signals.AuthorizationError == "" {
		t.Error("authorization error should be recorded")
	}
	if obs.Confidence != engine.ConfidenceMedium {
		t.Errorf("confidence = %q, want medium", obs.Confidence)
	}
	if obs.Signals.HTTPSEnforced || !obs.Flags.NoHTTPSRedirect {
		t.Errorf("plain 200 on port 80 is not enforcement: %+v", obs.Signals)
	}
}

func TestTLSCollector_ClosedPort80IsEnforced(t *testing.T) {
	tlsSrv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer tlsSrv.Close()

	c := &TLSCollector{
		Timeout:   5 * time.Second,
		HTTPSPort: serverPort(t, tlsSrv.URL),
		HTTPPort:  closedPort(t),
	}
	obs, err := c.Collect(context.Background(), "127.0.0.1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !obs.Signals.HTTPSEnforced || obs.Flags.NoHTTPSRedirect {
		t.Error("refused port 80 should count as enforced")
	}
	if obs.Signals.HTTPProbeError == "" {
		t.Error("probe error should be recorded")
	}
}

func TestTLSCollector_HandshakeFailure(t *testing.T) {
	c := &TLSCollector{Timeout: 2 * time.Second, HTTPSPort: closedPort(t), HTTPPort: closedPort(t)}
	if _, err := c.Collect(context.Background(), "127.0.0.1"); err == nil {
		t.Fatal("expected handshake failure")
	}

	_, err := c.Collect(context.Background(), "bad..domain")
	if !errors.Is(err, ErrInvalidHostname) {
		t.Errorf("err = %v, want ErrInvalidHostname", err)
	}
}

func TestTLSFlags(t *testing.T) {
	days := func(d int) *int { return &d }
	tests := []struct {
		name    string
		sig     engine.TLSSignals
		version uint16
		want    engine.TLSFlags
	}{
		{"healthy", engine.TLSSignals{DaysUntilExpiry: days(200), HTTPSEnforced: true}, tls.VersionTLS13, engine.TLSFlags{}},
		{"expiring", engine.TLSSignals{DaysUntilExpiry: days(12), HTTPSEnforced: true}, tls.VersionTLS12, engine.TLSFlags{SSLExpiringSoon: true}},
		{"expired is not expiring soon", engine.TLSSignals{DaysUntilExpiry: days(-2), HTTPSEnforced: true}, tls.VersionTLS12, engine.TLSFlags{}},
		{"boundary 30 days", engine.TLSSignals{DaysUntilExpiry: days(30), HTTPSEnforced: true}, tls.VersionTLS12, engine.TLSFlags{}},
		{"tls 1.0", engine.TLSSignals{DaysUntilExpiry: days(200), HTTPSEnforced: true}, tls.VersionTLS10, engine.TLSFlags{LegacyTLSSupported: true}},
		{"tls 1.1 no redirect", engine.TLSSignals{DaysUntilExpiry: days(200)}, tls.VersionTLS11, engine.TLSFlags{LegacyTLSSupported: true, NoHTTPSRedirect: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tlsFlags(tt.sig, tt.version); got != tt.want {
				t.Errorf("tlsFlags() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestIsHTTPSRedirect(t *testing.T) {
	tests := []struct {
		status   int
		location string
		want     bool
	}{
		{301, "https://example.com/", true},
		{308, "HTTPS://example.com/", true},
		{302, "http://example.com/login", false},
		{200, "https://example.com/", false},
	}
	for _, tt := range tests {
		if got := isHTTPSRedirect(tt.status, tt.location); got != tt.want {
			t.Errorf("isHTTPSRedirect(%d, %q) = %v, want %v", tt.status, tt.location, got, tt.want)
		}
	}
}
