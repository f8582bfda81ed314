// Package signature is the shared registry of heuristic matching rules. Collectors that infer
// a provider or technology from a hostname, a response header or page markup evaluate an
// ordered Ruleset instead of keeping private string tables.
package signature

import (
	"net/http"
	"strings"
)

// Version identifies the rule tables. Bump it whenever any table in this package changes so
// stored snapshots can be traced back to the rules that produced them.
const Version = "2026.10.1"

// Evidence is what a rule is evaluated against. Every field is optional. Generator holds the
// content of a page's <meta name="generator"> tag when one was found.
type Evidence struct {
	Host      string
	Headers   http.Header
	Body      string
	Generator string
}

// ForHost builds evidence for hostname-only tables (nameservers, MX hosts, PTR names).
func ForHost(host string) Evidence {
	return Evidence{Host: strings.TrimSuffix(strings.ToLower(host), ".")}
}

// ForResponse builds evidence from an HTTP response. Body is lowercased once here so
// predicates can compare without allocating.
func ForResponse(headers http.Header, body string) Evidence {
	if headers == nil {
		headers = http.Header{}
	}
	return Evidence{Headers: headers, Body: strings.ToLower(body)}
}

// Predicate decides whether a rule applies to the evidence.
type Predicate func(Evidence) bool

// Rule maps a predicate to a label. Category is optional and only used by tables that mix
// kinds (e.g. technologies).
type Rule struct {
	Label    string
	Category string
	Match    Predicate
}

// Ruleset is an ordered rule list. Earlier rules win in First.
type Ruleset struct {
	Name  string
	Rules []Rule
}

// First returns the label of the first matching rule.
func (rs Ruleset) First(ev Evidence) (string, bool) {
	for _, r := range rs.Rules {
		if r.Match(ev) {
			return r.Label, true
		}
	}
	return "", false
}

// All returns every matching rule in table order, one per label.
func (rs Ruleset) All(ev Evidence) []Rule {
	var out []Rule
	seen := make(map[string]bool)
	for _, r := range rs.Rules {
		if seen[r.Label] || !r.Match(ev) {
			continue
		}
		seen[r.Label] = true
		out = append(out, r)
	}
	return out
}

// HostContains matches when the evidence host contains any of the substrings.
func HostContains(subs ...string) Predicate {
	return func(ev Evidence) bool {
		for _, s := range subs {
			if strings.Contains(ev.Host, s) {
				return true
			}
		}
		return false
	}
}

// HostSuffix matches when the evidence host equals or ends in "."+suffix.
func HostSuffix(suffixes ...string) Predicate {
	return func(ev Evidence) bool {
		for _, s := range suffixes {
			if ev.Host == s || strings.HasSuffix(ev.Host, "."+s) {
				return true
			}
		}
		return false
	}
}

// HeaderPresent matches when the header is set to a non-empty value.
func HeaderPresent(name string) Predicate {
	return func(ev Evidence) bool {
		return ev.Headers != nil && ev.Headers.Get(name) != ""
	}
}

// HeaderContains matches a case-insensitive substring in any value of the header.
func HeaderContains(name, sub string) Predicate {
	sub = strings.ToLower(sub)
	return func(ev Evidence) bool {
		if ev.Headers == nil {
			return false
		}
		for _, v := range ev.Headers.Values(name) {
			if strings.Contains(strings.ToLower(v), sub) {
				return true
			}
		}
		return false
	}
}

// GeneratorContains matches a case-insensitive substring of the generator meta tag.
func GeneratorContains(sub string) Predicate {
	sub = strings.ToLower(sub)
	return func(ev Evidence) bool {
		return ev.Generator != "" && strings.Contains(strings.ToLower(ev.Generator), sub)
	}
}

// BodyContains matches when the markup contains any of the substrings.
func BodyContains(subs ...string) Predicate {
	lowered := make([]string, len(subs))
	for i, s := range subs {
		lowered[i] = strings.ToLower(s)
	}
	return func(ev Evidence) bool {
		for _, s := range lowered {
			if strings.Contains(ev.Body, s) {
				return true
			}
		}
		return false
	}
}

// Any matches when at least one predicate matches.
func Any(preds ...Predicate) Predicate {
	return func(ev Evidence) bool {
		for _, p := range preds {
			if p(ev) {
				return true
			}
		}
		return false
	}
}
