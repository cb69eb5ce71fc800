// Package report renders the change-request texts that accompany a promotion.
// It only assembles strings; every number comes from the evidence package.
package report

import (
	"fmt"
	"strings"

	"github.com/yourorg/patch-tracker/internal/model"
)

const (
	dateLayout = "2006-01-02"

	stageNarrative = "This change promotes a synthetic AMI patch from DEV to STAGE. " +
		"The DEV run demonstrated remediation of the vulnerabilities listed above."
	prodNarrative = "This change promotes a synthetic AMI patch from STAGE to PROD, " +
		"based on DEV evidence that the vulnerabilities above were remediated."

	Disclaimer = "Note: This summary is generated from synthetic, non-production data " +
		"and does not reflect any real systems, scans, or vulnerabilities."
)

// FormatSeverityCounts renders "Critical: n, High: n, Medium: n, Low: n".
// Missing keys print as zero.
func FormatSeverityCounts(counts model.SeverityCounts) string {
	parts := make([]string, 0, len(model.Severities))
	for _, sev := range model.Severities {
		parts = append(parts, fmt.Sprintf("%s: %d", sev.Title(), counts[sev]))
	}
	return strings.Join(parts, ", ")
}

// StageCR renders the DEV -> STAGE change request.
func StageCR(event model.PatchEvent, fixed []model.Vulnerability, counts model.SeverityCounts) string {
	return render(
		event,
		"DEV -> STAGE",
		"DEV patch date: "+event.PatchDate.Format(dateLayout),
		fmt.Sprintf("Total fixed vulnerabilities in DEV: %d", len(fixed)),
		counts,
		stageNarrative,
	)
}

// ProdCR renders the STAGE -> PROD change request.
func ProdCR(event model.PatchEvent, fixed []model.Vulnerability, counts model.SeverityCounts) string {
	return render(
		event,
		"STAGE -> PROD",
		"Current lifecycle state: "+string(event.CurrentStateCode),
		fmt.Sprintf("Total fixed vulnerabilities validated in DEV: %d", len(fixed)),
		counts,
		prodNarrative,
	)
}

func render(event model.PatchEvent, direction, detail, total string, counts model.SeverityCounts, narrative string) string {
	lines := []string{
		"Service: " + event.ServiceName,
		"Environment promotion: " + direction,
		"AMI ID: " + event.AMIID,
		detail,
		"",
		total,
		"Breakdown by severity: " + FormatSeverityCounts(counts),
		"",
		"Summary:",
		narrative,
		"",
		Disclaimer,
	}
	return strings.Join(lines, "\n")
}
