package report

import (
	"fmt"
	"strings"

	"github.com/bartblaze/community/internal/ai"
	"github.com/bartblaze/community/pkg/models"
)

func renderText(results *models.EvaluationResults, triage *ai.TriageReport) []byte {
	var sb strings.Builder
	line := strings.Repeat("-", 79) + "\n"
	double := strings.Repeat("=", 79) + "\n"

	sb.WriteString(double)
	fmt.Fprintf(&sb, "  SANDSIG SIGNATURE EVALUATION REPORT v%s\n", results.Version)
	sb.WriteString(double + "\n")

	sb.WriteString("SUMMARY\n")
	sb.WriteString(line)
	fmt.Fprintf(&sb, "Report:           %s\n", results.Source)
	fmt.Fprintf(&sb, "Run ID:           %s\n", results.RunID)
	fmt.Fprintf(&sb, "Start Time:       %s\n", results.StartTime.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&sb, "Duration:         %s\n", FormatDuration(results.Duration))
	if results.Stats != nil {
		fmt.Fprintf(&sb, "Signatures:       %d (%d batch, %d evented)\n", results.Stats.Signatures, results.Stats.BatchSignatures, results.Stats.EventedSigs)
		fmt.Fprintf(&sb, "Calls Delivered:  %d\n", results.Stats.CallsDelivered)
	}
	fmt.Fprintf(&sb, "MATCHED:          %d\n", len(results.Findings))
	fmt.Fprintf(&sb, "FAILED:           %d\n\n", len(results.Failures))

	if len(results.Findings) == 0 {
		sb.WriteString("No signatures matched.\n\n")
	} else {
		sb.WriteString("MATCHES BY SEVERITY\n")
		sb.WriteString(line)
		for _, severity := range severityOrder {
			if n := len(results.FindingsBySeverity[severity]); n > 0 {
				fmt.Fprintf(&sb, "  %-10s: %d\n", strings.ToUpper(severity.String()), n)
			}
		}
		sb.WriteString("\n")

		sb.WriteString("DETAILED FINDINGS\n")
		sb.WriteString(double + "\n")
		for i, finding := range results.Findings {
			fmt.Fprintf(&sb, "[%d] %s\n", i+1, finding.Name)
			sb.WriteString(line)
			fmt.Fprintf(&sb, "Severity:    %s\n", strings.ToUpper(finding.Severity.String()))
			fmt.Fprintf(&sb, "Description: %s\n", finding.Description)
			if len(finding.Categories) > 0 {
				fmt.Fprintf(&sb, "Categories:  %s\n", strings.Join(finding.Categories, ", "))
			}
			if len(finding.Families) > 0 {
				fmt.Fprintf(&sb, "Families:    %s\n", strings.Join(finding.Families, ", "))
			}
			if len(finding.TTPs) > 0 {
				fmt.Fprintf(&sb, "ATT&CK:      %s\n", strings.Join(finding.TTPs, ", "))
			}
			if len(finding.Data) > 0 {
				sb.WriteString("\nData:\n")
				for _, record := range finding.Data {
					fmt.Fprintf(&sb, "  %s\n", record)
				}
			}
			sb.WriteString("\n")
		}
	}

	if len(results.Failures) > 0 {
		sb.WriteString("FAILED SIGNATURES\n")
		sb.WriteString(line)
		for _, f := range results.Failures {
			fmt.Fprintf(&sb, "  %-40s %-8s %s\n", f.Signature, f.Kind, f.Error)
		}
		sb.WriteString("\n")
	}

	if triage != nil && len(triage.Results) > 0 {
		sb.WriteString("AI TRIAGE\n")
		sb.WriteString(double + "\n")
		fmt.Fprintf(&sb, "Model:            %s\n", triage.Model)
		fmt.Fprintf(&sb, "Findings Analyzed:%d\n", triage.AnalyzedCount)
		fmt.Fprintf(&sb, "Malicious:        %d\n", triage.MaliciousCount)
		fmt.Fprintf(&sb, "Suspicious:       %d\n", triage.SuspiciousCount)
		fmt.Fprintf(&sb, "False Positives:  %d\n", triage.FalsePositiveCount)
		fmt.Fprintf(&sb, "Benign:           %d\n", triage.BenignCount)
		fmt.Fprintf(&sb, "Tokens Used:      %d\n\n", triage.TotalTokensUsed)

		for i, result := range triage.Results {
			fmt.Fprintf(&sb, "[%d] %s (Confidence: %d%%)\n", i+1, strings.ToUpper(string(result.Verdict)), result.Confidence)
			sb.WriteString(line)
			fmt.Fprintf(&sb, "Finding ID:   %s\n", result.FindingID)
			fmt.Fprintf(&sb, "Risk Level:   %s\n", result.RiskLevel)
			fmt.Fprintf(&sb, "Explanation:  %s\n", result.Explanation)
			if result.Remediation != "" {
				fmt.Fprintf(&sb, "Remediation:  %s\n", result.Remediation)
			}
			sb.WriteString("\n")
		}
	}

	sb.WriteString(double)
	sb.WriteString("End of Report\n")
	sb.WriteString(double)
	return []byte(sb.String())
}
