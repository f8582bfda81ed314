package engine

// Evidence is one weighted piece of expected evidence.
type Evidence struct {
	Name    string
	Weight  int
	Present bool
}

// Thresholds are the percentage cut-offs for high and medium confidence.
type Thresholds struct {
	High   float64
	Medium float64
}

var (
	// GovernanceThresholds apply to the DNS/Governance collector.
	GovernanceThresholds = Thresholds{High: 80, Medium: 50}
	// TechnologyThresholds apply to the Technology collector.
	TechnologyThresholds = Thresholds{High: 70, Medium: 40}
)

// Score returns the confidence level and the percentage of weight present.
// Bands are inclusive at their lower bound.
func Score(th Thresholds, evidence ...Evidence) (Confidence, float64) {
	var total, present int
	for _, e := range evidence {
		total += e.Weight
		if e.Present {
			present += e.Weight
		}
	}
	if total == 0 {
		return ConfidenceLow, 0
	}
	pct := float64(present) * 100 / float64(total)
	switch {
	case pct >= th.High:
		return ConfidenceHigh, pct
	case pct >= th.Medium:
		return ConfidenceMedium, pct
	default:
		return ConfidenceLow, pct
	}
}
