package output

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/vulnverified/posture/internal/engine"
)

var tableHeaders = []string{"Block", "Status", "Confidence", "Signals", "Flags"}

type flag struct {
	name string
	set  bool
}

func raised(flags ...flag) []string {
	var names []string
	for _, f := range flags {
		if f.set {
			names = append(names, f.name)
		}
	}
	return names
}

// WriteTable renders one row per block as a styled terminal table.
func WriteTable(w io.Writer, snap *engine.Snapshot, noColor bool) {
	rows := blockRows(snap)

	fmt.Fprintln(w)

	if noColor {
		writeSimpleTable(w, rows)
		return
	}

	t := table.New().
		Headers(tableHeaders...).
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252"))
			}
			style := lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
			if col == 1 && row < len(rows) && rows[row][1] == "failed" {
				style = style.Foreground(lipgloss.Color("203"))
			}
			return style
		})

	for _, row := range rows {
		t.Row(row...)
	}

	fmt.Fprintln(w, t.Render())
}

func blockRows(snap *engine.Snapshot) [][]string {
	headlines := map[engine.Block]string{
		engine.BlockGovernance: governanceHeadline(snap.Governance.RawSignals),
		engine.BlockEmail:      emailHeadline(snap.Email.RawSignals),
		engine.BlockTLS:        tlsHeadline(snap.TLS.RawSignals),
		engine.BlockTechnology: technologyHeadline(snap.Technology.RawSignals),
		engine.BlockExposure:   exposureHeadline(snap.Exposure.RawSignals),
		engine.BlockBreach:     breachHeadline(snap.Breach.RawSignals),
	}
	flags := blockFlags(snap)

	var rows [][]string
	for _, st := range snap.Statuses() {
		status, signals := "ok", headlines[st.Block]
		if !st.Success {
			status, signals = "failed", st.Error
		}
		rows = append(rows, []string{
			string(st.Block),
			status,
			string(st.Confidence),
			truncate(signals, 60),
			truncate(strings.Join(flags[st.Block], ", "), 50),
		})
	}
	return rows
}

func blockFlags(snap *engine.Snapshot) map[engine.Block][]string {
	g := snap.Governance.DerivedFlags
	e := snap.Email.DerivedFlags
	t := snap.TLS.DerivedFlags
	tech := snap.Technology.DerivedFlags
	x := snap.Exposure.DerivedFlags
	b := snap.Breach.DerivedFlags
	return map[engine.Block][]string{
		engine.BlockGovernance: raised(
			flag{"domain_age_low", g.DomainAgeLow},
			flag{"dns_provider_third_party", g.DNSProviderThirdParty},
			flag{"single_point_of_dependency", g.SinglePointOfDependency},
			flag{"separated_governance", g.SeparatedGovernance},
			flag{"expiry_under_6_months", g.ExpiryUnderSixMonths},
			flag{"registrant_individual", g.RegistrantIndividual},
			flag{"registrant_proxy", g.RegistrantProxy},
			flag{"transfer_lock_confirmed", g.TransferLockConfirmed},
		),
		engine.BlockEmail: raised(
			flag{"email_spoofing_possible", e.EmailSpoofingPossible},
			flag{"email_protection_partial", e.EmailProtectionPartial},
			flag{"email_protection_strong", e.EmailProtectionStrong},
		),
		engine.BlockTLS: raised(
			flag{"ssl_expiring_soon", t.SSLExpiringSoon},
			flag{"legacy_tls_supported", t.LegacyTLSSupported},
			flag{"no_https_redirect", t.NoHTTPSRedirect},
		),
		engine.BlockTechnology: raised(
			flag{"cms_common_target", tech.CMSCommonTarget},
			flag{"cdn_present", tech.CDNPresent},
			flag{"hosting_identified", tech.HostingIdentified},
		),
		engine.BlockExposure: raised(
			flag{"cloud_hosted", x.CloudHosted},
			flag{"infrastructure_identifiable", x.InfrastructureIdentifiable},
		),
		engine.BlockBreach: raised(
			flag{"recent_breach", b.RecentBreach},
			flag{"multiple_breaches", b.MultipleBreaches},
			flag{"credential_breach", b.CredentialBreach},
		),
	}
}

func governanceHeadline(s engine.GovernanceSignals) string {
	var parts []string
	if s.Registrar != "" {
		parts = append(parts, "registrar "+s.Registrar)
	}
	if s.DomainAgeYears != nil {
		parts = append(parts, fmt.Sprintf("age %.1fy", *s.DomainAgeYears))
	}
	if s.DNSProvider != "" {
		parts = append(parts, "dns "+s.DNSProvider)
	}
	if s.Subdomains.Count > 0 {
		parts = append(parts, fmt.Sprintf("%d subdomains", s.Subdomains.Count))
	}
	return strings.Join(parts, ", ")
}

func emailHeadline(s engine.EmailSignals) string {
	parts := []string{
		"spf " + string(s.SPFStrictness),
		"dmarc " + s.DMARCPolicy,
		"dkim " + string(s.DKIM),
	}
	if s.MailProvider != "" {
		parts = append(parts, s.MailProvider)
	}
	return strings.Join(parts, ", ")
}

func tlsHeadline(s engine.TLSSignals) string {
	var parts []string
	if s.Issuer != "" {
		parts = append(parts, s.Issuer)
	}
	if s.Protocol != "" {
		parts = append(parts, s.Protocol)
	}
	if s.DaysUntilExpiry != nil {
		parts = append(parts, fmt.Sprintf("%dd left", *s.DaysUntilExpiry))
	}
	if !s.CertificateValid {
		parts = append(parts, "untrusted")
	}
	return strings.Join(parts, ", ")
}

func technologyHeadline(s engine.TechnologySignals) string {
	var parts []string
	for _, v := range []string{s.CMS, s.CDN, s.Hosting} {
		if v != "" {
			parts = append(parts, v)
		}
	}
	if len(parts) == 0 && len(s.Technologies) > 0 {
		parts = append(parts, s.Technologies[0].Name)
	}
	return strings.Join(parts, ", ")
}

func exposureHeadline(s engine.ExposureSignals) string {
	parts := []string{string(s.InfrastructureType)}
	if s.Provider != "" {
		parts = append(parts, s.Provider)
	}
	parts = append(parts, s.HostingRegion, "via "+s.Method)
	return strings.Join(parts, ", ")
}

func breachHeadline(s engine.BreachSignals) string {
	if s.BreachCount == 0 {
		return "no breaches"
	}
	head := fmt.Sprintf("%d breach(es)", s.BreachCount)
	if s.MostRecentBreach != nil {
		head += ", latest " + s.MostRecentBreach.Format("2006-01-02")
	}
	if s.FromCache {
		head += " (cached)"
	}
	return head
}

func writeSimpleTable(w io.Writer, rows [][]string) {
	// Calculate column widths.
	widths := make([]int, len(tableHeaders))
	for i, h := range tableHeaders {
		widths[i] = utf8.RuneCountInString(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if n := utf8.RuneCountInString(cell); n > widths[i] {
				widths[i] = n
			}
		}
	}

	for i, h := range tableHeaders {
		if i > 0 {
			fmt.Fprint(w, " | ")
		}
		fmt.Fprintf(w, "%-*s", widths[i], h)
	}
	fmt.Fprintln(w)

	for i, width := range widths {
		if i > 0 {
			fmt.Fprint(w, "-+-")
		}
		fmt.Fprint(w, strings.Repeat("-", width))
	}
	fmt.Fprintln(w)

	for _, row := range rows {
		for i, cell := range row {
			if i > 0 {
				fmt.Fprint(w, " | ")
			}
			fmt.Fprintf(w, "%-*s", widths[i], cell)
		}
		fmt.Fprintln(w)
	}
}

// truncate shortens s to at most max runes.
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max-3]) + "..."
}
