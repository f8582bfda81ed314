package engine

// Synthesize derives the cross-block flags from the six collector results.
// Failed blocks contribute their zero-valued flags.
func Synthesize(s *Snapshot) CrossBlockFlags {
	gov := s.Governance.DerivedFlags
	email := s.Email.DerivedFlags
	tls := s.TLS.DerivedFlags
	tlsSig := s.TLS.RawSignals
	tech := s.Technology.DerivedFlags
	breach := s.Breach.DerivedFlags

	return CrossBlockFlags{
		HighRiskOverall: email.EmailSpoofingPossible ||
			tls.SSLExpiringSoon ||
			breach.RecentBreach ||
			(tech.CMSCommonTarget && !tlsSig.HTTPSEnforced),
		InsuranceRelevant: email.EmailSpoofingPossible ||
			gov.DomainAgeLow ||
			breach.MultipleBreaches ||
			!tlsSig.CertificateValid,
		QuickWinsAvailable: email.EmailProtectionPartial ||
			tls.NoHTTPSRedirect ||
			s.Email.RawSignals.SPFStrictness == SPFPermissive,
		ProfessionalSetup: email.EmailProtectionStrong &&
			tlsSig.HTTPSEnforced &&
			tlsSig.CertificateValid &&
			gov.DNSProviderThirdParty &&
			!gov.DomainAgeLow,
	}
}
