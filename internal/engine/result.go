// Package engine runs the six posture collectors and synthesizes their results.
package engine

import (
	"context"
	"time"
)

// Confidence expresses how much of a collector's expected evidence was observed.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Block identifies one collector's slot in a snapshot.
type Block string

const (
	BlockGovernance Block = "dns_governance"
	BlockEmail      Block = "email_auth"
	BlockTLS        Block = "tls_certificate"
	BlockTechnology Block = "technology"
	BlockExposure   Block = "exposure"
	BlockBreach     Block = "breach_history"
)

// Blocks lists every block in presentation order.
var Blocks = []Block{BlockGovernance, BlockEmail, BlockTLS, BlockTechnology, BlockExposure, BlockBreach}

// CollectorResult is one collector's output. It is always fully populated: on failure the
// signal and flag structs are zero values, Confidence is low and ErrorMessage is set.
type CollectorResult[S, F any] struct {
	Block        Block      `json:"block" yaml:"block"`
	Success      bool       `json:"success" yaml:"success"`
	Confidence   Confidence `json:"confidence" yaml:"confidence"`
	RawSignals   S          `json:"raw_signals" yaml:"raw_signals"`
	DerivedFlags F          `json:"derived_flags" yaml:"derived_flags"`
	ErrorMessage *string    `json:"error_message" yaml:"error_message"`
	CollectedAt  time.Time  `json:"collected_at" yaml:"collected_at"`
}

// Observation is the success arm of a collector's outcome; a returned error is the failure arm.
type Observation[S, F any] struct {
	Signals    S
	Flags      F
	Confidence Confidence
}

// Collector gathers one block of signals for a normalized domain.
type Collector[S, F any] interface {
	Collect(ctx context.Context, domain string) (Observation[S, F], error)
}

// Succeeded wraps an observation into a successful result.
func Succeeded[S, F any](block Block, obs Observation[S, F], at time.Time) CollectorResult[S, F] {
	return CollectorResult[S, F]{
		Block:        block,
		Success:      true,
		Confidence:   obs.Confidence,
		RawSignals:   obs.Signals,
		DerivedFlags: obs.Flags,
		CollectedAt:  at,
	}
}

// Failed builds the stub result for a collector that could not produce an observation.
func Failed[S, F any](block Block, msg string, at time.Time) CollectorResult[S, F] {
	return CollectorResult[S, F]{
		Block:        block,
		Success:      false,
		Confidence:   ConfidenceLow,
		ErrorMessage: &msg,
		CollectedAt:  at,
	}
}

// Status is the type-erased summary of a result, used for rendering.
type Status struct {
	Block      Block
	Success    bool
	Confidence Confidence
	Error      string
}

// Status returns the result's summary.
func (r CollectorResult[S, F]) Status() Status {
	st := Status{Block: r.Block, Success: r.Success, Confidence: r.Confidence}
	if r.ErrorMessage != nil {
		st.Error = *r.ErrorMessage
	}
	return st
}

// ExpiryBucket groups days-until-registration-expiry.
type ExpiryBucket string

const (
	ExpiryMoreThanYear   ExpiryBucket = "more_than_1_year"
	ExpirySixToTwelve    ExpiryBucket = "6_to_12_months"
	ExpiryUnderSixMonths ExpiryBucket = "under_6_months"
	ExpiryUnknown        ExpiryBucket = "unknown"
)

// RegistrantType classifies who appears to hold the registration.
type RegistrantType string

const (
	RegistrantBusiness   RegistrantType = "business"
	RegistrantIndividual RegistrantType = "individual"
	RegistrantProxy      RegistrantType = "proxy"
	RegistrantUnknown    RegistrantType = "unknown"
)

// SubdomainSignals summarizes hostnames seen in certificate transparency logs.
type SubdomainSignals struct {
	Count  int      `json:"count" yaml:"count"`
	Sample []string `json:"sample" yaml:"sample"`
	// Abandoned is never inferred: telling an abandoned host from a quiet one takes
	// active probing, which this system does not do.
	Abandoned bool   `json:"abandoned" yaml:"abandoned"`
	Error     string `json:"error,omitempty" yaml:"error,omitempty"`
}

// GovernanceSignals holds DNS and WHOIS governance data. No registrant identity is kept.
type GovernanceSignals struct {
	DomainAgeYears  *float64         `json:"domain_age_years" yaml:"domain_age_years"`
	Registrar       string           `json:"registrar" yaml:"registrar"`
	CreatedAt       *time.Time       `json:"created_at" yaml:"created_at"`
	ExpiresAt       *time.Time       `json:"expires_at" yaml:"expires_at"`
	DaysUntilExpiry *int             `json:"days_until_expiry" yaml:"days_until_expiry"`
	ExpiryBucket    ExpiryBucket     `json:"expiry_bucket" yaml:"expiry_bucket"`
	RegistrantType  RegistrantType   `json:"registrant_type" yaml:"registrant_type"`
	TransferLock    *bool            `json:"transfer_lock" yaml:"transfer_lock"`
	StatusCodes     []string         `json:"status_codes" yaml:"status_codes"`
	Nameservers     []string         `json:"nameservers" yaml:"nameservers"`
	DNSProvider     string           `json:"dns_provider" yaml:"dns_provider"`
	ARecords        []string         `json:"a_records" yaml:"a_records"`
	AAAARecords     []string         `json:"aaaa_records" yaml:"aaaa_records"`
	MXRecords       []string         `json:"mx_records" yaml:"mx_records"`
	Subdomains      SubdomainSignals `json:"subdomains" yaml:"subdomains"`
	ScorePercent    float64          `json:"score_percent" yaml:"score_percent"`
}

// GovernanceFlags are the booleans derived from GovernanceSignals.
type GovernanceFlags struct {
	DomainAgeLow            bool `json:"domain_age_low" yaml:"domain_age_low"`
	DNSProviderThirdParty   bool `json:"dns_provider_third_party" yaml:"dns_provider_third_party"`
	SinglePointOfDependency bool `json:"single_point_of_dependency" yaml:"single_point_of_dependency"`
	SeparatedGovernance     bool `json:"separated_governance" yaml:"separated_governance"`
	ExpiryUnderSixMonths    bool `json:"expiry_under_6_months" yaml:"expiry_under_6_months"`
	RegistrantIndividual    bool `json:"registrant_individual" yaml:"registrant_individual"`
	RegistrantProxy         bool `json:"registrant_proxy" yaml:"registrant_proxy"`
	TransferLockConfirmed   bool `json:"transfer_lock_confirmed" yaml:"transfer_lock_confirmed"`
}

// SPFStrictness classifies the SPF "all" mechanism.
type SPFStrictness string

const (
	SPFStrict     SPFStrictness = "strict"
	SPFPermissive SPFStrictness = "permissive"
	SPFMissing    SPFStrictness = "missing"
)

// DMARC policy values. DMARCMissing means no record was published.
const (
	DMARCReject     = "reject"
	DMARCQuarantine = "quarantine"
	DMARCNone       = "none"
	DMARCMissing    = "missing"
)

// DKIMStatus is "detected" or "not_detected". There is no "absent": custom selectors
// cannot be enumerated.
type DKIMStatus string

const (
	DKIMDetected    DKIMStatus = "detected"
	DKIMNotDetected DKIMStatus = "not_detected"
)

// EmailSignals holds mail routing and authentication records.
type EmailSignals struct {
	MXRecords     []string      `json:"mx_records" yaml:"mx_records"`
	MailProvider  string        `json:"mail_provider" yaml:"mail_provider"`
	SPFRecord     string        `json:"spf_record" yaml:"spf_record"`
	SPFStrictness SPFStrictness `json:"spf_strictness" yaml:"spf_strictness"`
	DMARCRecord   string        `json:"dmarc_record" yaml:"dmarc_record"`
	DMARCPolicy   string        `json:"dmarc_policy" yaml:"dmarc_policy"`
	DKIM          DKIMStatus    `json:"dkim" yaml:"dkim"`
	DKIMSelectors []string      `json:"dkim_selectors" yaml:"dkim_selectors"`
}

// EmailFlags are the booleans derived from EmailSignals.
type EmailFlags struct {
	EmailSpoofingPossible  bool `json:"email_spoofing_possible" yaml:"email_spoofing_possible"`
	EmailProtectionPartial bool `json:"email_protection_partial" yaml:"email_protection_partial"`
	EmailProtectionStrong  bool `json:"email_protection_strong" yaml:"email_protection_strong"`
}

// TLSSignals holds the port-443 handshake and port-80 redirect observations.
type TLSSignals struct {
	Issuer               string     `json:"issuer" yaml:"issuer"`
	Subject              string     `json:"subject" yaml:"subject"`
	DNSNames             []string   `json:"dns_names" yaml:"dns_names"`
	ValidFrom            *time.Time `json:"valid_from" yaml:"valid_from"`
	ValidTo              *time.Time `json:"valid_to" yaml:"valid_to"`
	DaysUntilExpiry      *int       `json:"days_until_expiry" yaml:"days_until_expiry"`
	Protocol             string     `json:"protocol" yaml:"protocol"`
	CipherSuite          string     `json:"cipher_suite" yaml:"cipher_suite"`
	CertificateValid     bool       `json:"certificate_valid" yaml:"certificate_valid"`
	AuthorizationError   string     `json:"authorization_error" yaml:"authorization_error"`
	HTTPSEnforced        bool       `json:"https_enforced" yaml:"https_enforced"`
	HTTPStatus           int        `json:"http_status" yaml:"http_status"`
	HTTPRedirectLocation string     `json:"http_redirect_location" yaml:"http_redirect_location"`
	HTTPProbeError       string     `json:"http_probe_error" yaml:"http_probe_error"`
}

// TLSFlags are the booleans derived from TLSSignals.
type TLSFlags struct {
	SSLExpiringSoon    bool `json:"ssl_expiring_soon" yaml:"ssl_expiring_soon"`
	LegacyTLSSupported bool `json:"legacy_tls_supported" yaml:"legacy_tls_supported"`
	NoHTTPSRedirect    bool `json:"no_https_redirect" yaml:"no_https_redirect"`
}

// Technology is one detected technology.
type Technology struct {
	Name     string `json:"name" yaml:"name"`
	Category string `json:"category" yaml:"category"`
}

// TechnologySignals holds the homepage fingerprint.
type TechnologySignals struct {
	URL           string            `json:"url" yaml:"url"`
	StatusCode    int               `json:"status_code" yaml:"status_code"`
	Title         string            `json:"title" yaml:"title"`
	CMS           string            `json:"cms" yaml:"cms"`
	CDN           string            `json:"cdn" yaml:"cdn"`
	Hosting       string            `json:"hosting" yaml:"hosting"`
	Generator     string            `json:"generator" yaml:"generator"`
	Headers       map[string]string `json:"headers" yaml:"headers"`
	Technologies  []Technology      `json:"technologies" yaml:"technologies"`
	BodyTruncated bool              `json:"body_truncated" yaml:"body_truncated"`
	ScorePercent  float64           `json:"score_percent" yaml:"score_percent"`
}

// TechnologyFlags are the booleans derived from TechnologySignals.
type TechnologyFlags struct {
	CMSCommonTarget   bool `json:"cms_common_target" yaml:"cms_common_target"`
	CDNPresent        bool `json:"cdn_present" yaml:"cdn_present"`
	HostingIdentified bool `json:"hosting_identified" yaml:"hosting_identified"`
}

// InfrastructureType is the coarse hosting class inferred for the apex address.
type InfrastructureType string

const (
	InfrastructureCloud      InfrastructureType = "cloud"
	InfrastructureDatacenter InfrastructureType = "datacenter"
	InfrastructureUnknown    InfrastructureType = "unknown"
)

// Inference methods recorded in ExposureSignals.Method.
const (
	ExposureMethodPTR       = "ptr"
	ExposureMethodHeuristic = "ip_range_heuristic"
	ExposureMethodNone      = "none"
)

// ExposureSignals holds inference-only infrastructure hints. Nothing here comes from probing.
type ExposureSignals struct {
	IPs                []string           `json:"ips" yaml:"ips"`
	PTR                *string            `json:"ptr" yaml:"ptr"`
	InfrastructureType InfrastructureType `json:"infrastructure_type" yaml:"infrastructure_type"`
	Provider           string             `json:"provider" yaml:"provider"`
	HostingRegion      string             `json:"hosting_region" yaml:"hosting_region"`
	Method             string             `json:"method" yaml:"method"`
}

// ExposureFlags are the booleans derived from ExposureSignals.
type ExposureFlags struct {
	CloudHosted                bool `json:"cloud_hosted" yaml:"cloud_hosted"`
	InfrastructureIdentifiable bool `json:"infrastructure_identifiable" yaml:"infrastructure_identifiable"`
}

// Breach is one registry entry for the domain.
type Breach struct {
	Name        string   `json:"name" yaml:"name"`
	Title       string   `json:"title" yaml:"title"`
	Date        string   `json:"date" yaml:"date"`
	PwnCount    int      `json:"pwn_count" yaml:"pwn_count"`
	DataClasses []string `json:"data_classes" yaml:"data_classes"`
}

// BreachSignals holds the breach-registry answer for the domain.
type BreachSignals struct {
	BreachCount      int        `json:"breach_count" yaml:"breach_count"`
	MostRecentBreach *time.Time `json:"most_recent_breach" yaml:"most_recent_breach"`
	Breaches         []Breach   `json:"breaches" yaml:"breaches"`
	FromCache        bool       `json:"from_cache" yaml:"from_cache"`
	CachedAt         *time.Time `json:"cached_at" yaml:"cached_at"`
}

// BreachFlags are the booleans derived from BreachSignals.
type BreachFlags struct {
	RecentBreach     bool `json:"recent_breach" yaml:"recent_breach"`
	MultipleBreaches bool `json:"multiple_breaches" yaml:"multiple_breaches"`
	CredentialBreach bool `json:"credential_breach" yaml:"credential_breach"`
}

// CrossBlockFlags are synthesized once from all six results.
type CrossBlockFlags struct {
	HighRiskOverall    bool `json:"high_risk_overall" yaml:"high_risk_overall"`
	InsuranceRelevant  bool `json:"insurance_relevant" yaml:"insurance_relevant"`
	QuickWinsAvailable bool `json:"quick_wins_available" yaml:"quick_wins_available"`
	ProfessionalSetup  bool `json:"professional_setup" yaml:"professional_setup"`
}

type (
	GovernanceResult = CollectorResult[GovernanceSignals, GovernanceFlags]
	EmailResult      = CollectorResult[EmailSignals, EmailFlags]
	TLSResult        = CollectorResult[TLSSignals, TLSFlags]
	TechnologyResult = CollectorResult[TechnologySignals, TechnologyFlags]
	ExposureResult   = CollectorResult[ExposureSignals, ExposureFlags]
	BreachResult     = CollectorResult[BreachSignals, BreachFlags]
)

// Snapshot is the complete signal bundle for one domain.
type Snapshot struct {
	Domain           string           `json:"domain" yaml:"domain"`
	SignatureVersion string           `json:"signature_version" yaml:"signature_version"`
	StartedAt        time.Time        `json:"started_at" yaml:"started_at"`
	CompletedAt      time.Time        `json:"completed_at" yaml:"completed_at"`
	DurationSecs     float64          `json:"duration_secs" yaml:"duration_secs"`
	Governance       GovernanceResult `json:"dns_governance" yaml:"dns_governance"`
	Email            EmailResult      `json:"email_auth" yaml:"email_auth"`
	TLS              TLSResult        `json:"tls_certificate" yaml:"tls_certificate"`
	Technology       TechnologyResult `json:"technology" yaml:"technology"`
	Exposure         ExposureResult   `json:"exposure" yaml:"exposure"`
	Breach           BreachResult     `json:"breach_history" yaml:"breach_history"`
	Flags            CrossBlockFlags  `json:"cross_block_flags" yaml:"cross_block_flags"`
}

// Statuses returns the per-block summaries in presentation order.
func (s *Snapshot) Statuses() []Status {
	return []Status{
		s.Governance.Status(),
		s.Email.Status(),
		s.TLS.Status(),
		s.Technology.Status(),
		s.Exposure.Status(),
		s.Breach.Status(),
	}
}
