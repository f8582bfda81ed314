package recon

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"math"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/vulnverified/posture/internal/engine"
	"github.com/vulnverified/posture/internal/hostname"
)

const (
	defaultTLSTimeout = 10 * time.Second
	sslExpiryWindow   = 30 // days
)

// TLSCollector performs one TLS handshake on port 443 and one plain HTTP
// request on port 80.
type TLSCollector struct {
	Timeout   time.Duration
	UserAgent string
	HTTPSPort string         // defaults to 443
	HTTPPort  string         // defaults to 80
	RootCAs   *x509.CertPool // nil uses the system roots
	Clock     clockwork.Clock
}

type handshakeResult struct {
	state tls.ConnectionState
	err   error
}

type redirectResult struct {
	status   int
	location string
	err      error
}

// Collect implements engine.Collector.
func (c *TLSCollector) Collect(ctx context.Context, domain string) (engine.Observation[engine.TLSSignals, engine.TLSFlags], error) {
	var obs engine.Observation[engine.TLSSignals, engine.TLSFlags]
	if !hostname.Valid(domain) {
		return obs, fmt.Errorf("%w: %q", ErrInvalidHostname, domain)
	}

	var (
		wg sync.WaitGroup
		hs handshakeResult
		rd redirectResult
	)
	goSafe(&wg, func() {
		hs = c.handshake(ctx, domain)
	}, func(err error) { hs = handshakeResult{err: err} })
	goSafe(&wg, func() {
		rd = c.probeRedirect(ctx, domain)
	}, func(err error) { rd = redirectResult{err: err} })
	wg.Wait()

	if hs.err != nil {
		return obs, fmt.Errorf("network: TLS handshake with %s: %w", domain, hs.err)
	}

	now := time.Now()
	if c.Clock != nil {
		now = c.Clock.Now()
	}

	sig := engine.TLSSignals{
		DNSNames:    []string{},
		Protocol:    tls.VersionName(hs.state.Version),
		CipherSuite: tls.CipherSuiteName(hs.state.CipherSuite),
		HTTPStatus:  rd.status,
	}

	// Port 80 refusing connections is read as firewalled, not as missing enforcement.
	if rd.err != nil {
		sig.HTTPSEnforced = true
		sig.HTTPProbeError = rd.err.Error()
	} else {
		sig.HTTPRedirectLocation = rd.location
		sig.HTTPSEnforced = isHTTPSRedirect(rd.status, rd.location)
	}

	complete := false
	if certs := hs.state.PeerCertificates; len(certs) > 0 {
		leaf := certs[0]
		validFrom, validTo := leaf.NotBefore.UTC(), leaf.NotAfter.UTC()
		days := int(math.Floor(validTo.Sub(now).Hours() / 24))
		sig.Issuer = issuerName(leaf)
		sig.Subject = leaf.Subject.CommonName
		sig.DNSNames = append(sig.DNSNames, leaf.DNSNames...)
		sig.ValidFrom = &validFrom
		sig.ValidTo = &validTo
		sig.DaysUntilExpiry = &days

		if err := c.verify(domain, certs, now); err != nil {
			sig.AuthorizationError = err.Error()
		}
		sig.CertificateValid = sig.AuthorizationError == "" && !now.Before(validFrom) && !now.After(validTo)
		complete = sig.CertificateValid && sig.Issuer != ""
	}

	obs.Signals = sig
	obs.Flags = tlsFlags(sig, hs.state.Version)
	obs.Confidence = engine.ConfidenceMedium
	if complete {
		obs.Confidence = engine.ConfidenceHigh
	}
	return obs, nil
}

// handshake connects without chain verification so certificates that fail
// verification can still be inspected; verify records why they failed.
func (c *TLSCollector) handshake(ctx context.Context, domain string) handshakeResult {
	d := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: c.timeout()},
		Config: &tls.Config{
			ServerName:         domain,
			InsecureSkipVerify: true,
			MinVersion:         tls.VersionTLS10,
		},
	}
	dctx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()

	conn, err := d.DialContext(dctx, "tcp", net.JoinHostPort(domain, portOr(c.HTTPSPort, "443")))
	if err != nil {
		return handshakeResult{err: err}
	}
	defer conn.Close()
	return handshakeResult{state: conn.(*tls.Conn).ConnectionState()}
}

func (c *TLSCollector) verify(domain string, certs []*x509.Certificate, now time.Time) error {
	intermediates := x509.NewCertPool()
	for _, cert := range certs[1:] {
		intermediates.AddCert(cert)
	}
	_, err := certs[0].Verify(x509.VerifyOptions{
		DNSName:       domain,
		Roots:         c.RootCAs,
		Intermediates: intermediates,
		CurrentTime:   now,
	})
	return err
}

func (c *TLSCollector) probeRedirect(ctx context.Context, domain string) redirectResult {
	client := &http.Client{
		Timeout: c.timeout(),
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	url := "http://" + domain + "/"
	if port := portOr(c.HTTPPort, "80"); port != "80" {
		url = "http://" + net.JoinHostPort(domain, port) + "/"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return redirectResult{err: err}
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	resp, err := client.Do(req)
	if err != nil {
		return redirectResult{err: err}
	}
	defer resp.Body.Close()
	return redirectResult{status: resp.StatusCode, location: resp.Header.Get("Location")}
}

func (c *TLSCollector) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return defaultTLSTimeout
}

func tlsFlags(sig engine.TLSSignals, version uint16) engine.TLSFlags {
	f := engine.TLSFlags{
		LegacyTLSSupported: legacyProtocol(version),
		NoHTTPSRedirect:    !sig.HTTPSEnforced,
	}
	if d := sig.DaysUntilExpiry; d != nil {
		f.SSLExpiringSoon = *d > 0 && *d < sslExpiryWindow
	}
	return f
}

// legacyProtocol reports TLS 1.0, TLS 1.1 and every SSL version.
func legacyProtocol(version uint16) bool {
	return version != 0 && version < tls.VersionTLS12
}

func isHTTPSRedirect(status int, location string) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return strings.HasPrefix(strings.ToLower(location), "https://")
	}
	return false
}

func issuerName(cert *x509.Certificate) string {
	if cert.Issuer.CommonName != "" {
		return cert.Issuer.CommonName
	}
	if len(cert.Issuer.Organization) > 0 {
		return cert.Issuer.Organization[0]
	}
	return cert.Issuer.String()
}

func portOr(port, def string) string {
	if port == "" {
		return def
	}
	return port
}
