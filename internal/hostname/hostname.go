// Package hostname reduces user input to the canonical hostname every collector works on.
package hostname

import (
	"strings"

	"golang.org/x/net/publicsuffix"
)

const maxHostnameLen = 253

var schemes = []string{"http://", "https://"}

// Normalize reduces arbitrary input to a lowercase hostname with no scheme, leading "www.",
// path, query, fragment or port. It performs no DNS validation; garbage passes through and
// surfaces later as collector failures. The rules are reapplied until the result is stable,
// so Normalize(Normalize(x)) == Normalize(x).
func Normalize(raw string) string {
	s := raw
	for {
		next := normalizeOnce(s)
		if next == s {
			return s
		}
		s = next
	}
}

func normalizeOnce(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))

	for stripped := true; stripped; {
		stripped = false
		for _, scheme := range schemes {
			if strings.HasPrefix(s, scheme) {
				s = strings.TrimPrefix(s, scheme)
				stripped = true
			}
		}
	}
	for strings.HasPrefix(s, "www.") {
		s = strings.TrimPrefix(s, "www.")
	}

	if i := strings.IndexAny(s, "/?#:"); i >= 0 {
		s = s[:i]
	}

	return strings.TrimRight(strings.TrimSpace(s), ".")
}

// Valid reports whether host is a syntactically plausible DNS name: at least two labels,
// each 1-63 characters of [a-z0-9-] not starting or ending with a hyphen.
func Valid(host string) bool {
	if host == "" || len(host) > maxHostnameLen {
		return false
	}
	labels := strings.Split(host, ".")
	if len(labels) < 2 {
		return false
	}
	for _, label := range labels {
		if len(label) == 0 || len(label) > 63 {
			return false
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
		for i := 0; i < len(label); i++ {
			c := label[i]
			if !(c >= 'a' && c <= 'z') && !(c >= '0' && c <= '9') && c != '-' {
				return false
			}
		}
	}
	return true
}

// BaseDomain returns the registrable domain (eTLD+1) of host, e.g. "ns1.cloudflare.com" ->
// "cloudflare.com". Falls back to the last two labels when the public suffix list has no answer.
func BaseDomain(host string) string {
	host = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(host)), ".")
	if host == "" {
		return ""
	}
	if base, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return base
	}
	labels := strings.Split(host, ".")
	if len(labels) <= 2 {
		return host
	}
	return strings.Join(labels[len(labels)-2:], ".")
}
