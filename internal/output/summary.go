package output

import (
	"fmt"
	"io"

	"github.com/vulnverified/posture/internal/engine"
)

// Version is set via ldflags at build time.
var Version = "dev"

// WriteHeader prints the posture banner.
func WriteHeader(w io.Writer, noColor bool) {
	if noColor {
		fmt.Fprintf(w, "posture %s (passive domain posture snapshot)\n\n", Version)
	} else {
		fmt.Fprintf(w, "\033[1mposture %s\033[0m (passive domain posture snapshot)\n\n", Version)
	}
}

// WriteSummary prints the post-collection summary: block count and the
// cross-block flags.
func WriteSummary(w io.Writer, snap *engine.Snapshot, noColor bool) {
	succeeded := 0
	for _, st := range snap.Statuses() {
		if st.Success {
			succeeded++
		}
	}

	fmt.Fprintln(w)
	if noColor {
		fmt.Fprintf(w, "Target: %s\n", snap.Domain)
		fmt.Fprintf(w, "Blocks: %d of %d collected\n", succeeded, len(engine.Blocks))
		fmt.Fprintf(w, "Signatures: %s\n", snap.SignatureVersion)
	} else {
		fmt.Fprintf(w, "\033[1mTarget:\033[0m %s\n", snap.Domain)
		fmt.Fprintf(w, "\033[1mBlocks:\033[0m %d of %d collected\n", succeeded, len(engine.Blocks))
		fmt.Fprintf(w, "\033[1mSignatures:\033[0m %s\n", snap.SignatureVersion)
	}

	f := snap.Flags
	warnings := []flag{
		{"High risk overall", f.HighRiskOverall},
		{"Insurance relevant", f.InsuranceRelevant},
	}
	notes := []flag{
		{"Quick wins available", f.QuickWinsAvailable},
		{"Professional setup", f.ProfessionalSetup},
	}

	if len(raised(warnings...))+len(raised(notes...)) == 0 {
		fmt.Fprintln(w, "\nNo cross-block flags raised.")
		return
	}
	fmt.Fprintln(w)
	for _, name := range raised(warnings...) {
		if noColor {
			fmt.Fprintf(w, "! %s\n", name)
		} else {
			fmt.Fprintf(w, "\033[33m!\033[0m %s\n", name)
		}
	}
	for _, name := range raised(notes...) {
		if noColor {
			fmt.Fprintf(w, "+ %s\n", name)
		} else {
			fmt.Fprintf(w, "\033[32m+\033[0m %s\n", name)
		}
	}
}
