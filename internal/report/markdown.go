package report

import (
	"fmt"
	"strings"

	"github.com/bartblaze/community/internal/ai"
	"github.com/bartblaze/community/pkg/models"
)

func renderMarkdown(results *models.EvaluationResults, triage *ai.TriageReport) []byte {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# Sandsig Evaluation Report v%s\n\n", results.Version)

	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Parameter | Value |\n")
	sb.WriteString("|-----------|-------|\n")
	fmt.Fprintf(&sb, "| Report | `%s` |\n", results.Source)
	fmt.Fprintf(&sb, "| Run ID | `%s` |\n", results.RunID)
	fmt.Fprintf(&sb, "| Start Time | %s |\n", results.StartTime.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&sb, "| Duration | %s |\n", FormatDuration(results.Duration))
	if results.Stats != nil {
		fmt.Fprintf(&sb, "| Signatures | %d |\n", results.Stats.Signatures)
	}
	fmt.Fprintf(&sb, "| **Matched** | **%d** |\n", len(results.Findings))
	fmt.Fprintf(&sb, "| Failed | %d |\n\n", len(results.Failures))

	if len(results.Findings) == 0 {
		sb.WriteString("> ✅ **No signatures matched**\n\n")
	} else {
		sb.WriteString("## Matches by Severity\n\n")
		sb.WriteString("| Severity | Count |\n")
		sb.WriteString("|----------|-------|\n")
		for _, severity := range severityOrder {
			if n := len(results.FindingsBySeverity[severity]); n > 0 {
				fmt.Fprintf(&sb, "| %s %s | %d |\n", getSeverityEmoji(severity), strings.ToUpper(severity.String()), n)
			}
		}
		sb.WriteString("\n")

		sb.WriteString("## Detailed Findings\n\n")
		for i, finding := range results.Findings {
			fmt.Fprintf(&sb, "### %d. %s %s\n\n", i+1, getSeverityEmoji(finding.Severity), finding.Name)
			fmt.Fprintf(&sb, "**Description:** %s\n\n", finding.Description)

			sb.WriteString("| Field | Value |\n")
			sb.WriteString("|-------|-------|\n")
			fmt.Fprintf(&sb, "| Severity | %s |\n", strings.ToUpper(finding.Severity.String()))
			if len(finding.Categories) > 0 {
				fmt.Fprintf(&sb, "| Categories | %s |\n", strings.Join(finding.Categories, ", "))
			}
			if len(finding.Families) > 0 {
				fmt.Fprintf(&sb, "| Families | %s |\n", strings.Join(finding.Families, ", "))
			}
			if len(finding.TTPs) > 0 {
				fmt.Fprintf(&sb, "| ATT&CK | %s |\n", strings.Join(finding.TTPs, ", "))
			}
			sb.WriteString("\n")

			if len(finding.Data) > 0 {
				sb.WriteString("**Data:**\n")
				for _, record := range finding.Data {
					fmt.Fprintf(&sb, "- %s: `%v`\n", record.Label, record.Value)
				}
				sb.WriteString("\n")
			}
			sb.WriteString("---\n\n")
		}
	}

	if len(results.Failures) > 0 {
		sb.WriteString("## Failed Signatures\n\n")
		sb.WriteString("| Signature | Kind | Error |\n")
		sb.WriteString("|-----------|------|-------|\n")
		for _, f := range results.Failures {
			fmt.Fprintf(&sb, "| %s | %s | %s |\n", f.Signature, f.Kind, strings.ReplaceAll(f.Error, "|", `\|`))
		}
		sb.WriteString("\n")
	}

	if triage != nil && len(triage.Results) > 0 {
		sb.WriteString("## AI Triage\n\n")
		sb.WriteString("| Metric | Value |\n")
		sb.WriteString("|--------|-------|\n")
		fmt.Fprintf(&sb, "| Model | %s |\n", triage.Model)
		fmt.Fprintf(&sb, "| Findings Analyzed | %d |\n", triage.AnalyzedCount)
		fmt.Fprintf(&sb, "| 🔴 Malicious | %d |\n", triage.MaliciousCount)
		fmt.Fprintf(&sb, "| 🟠 Suspicious | %d |\n", triage.SuspiciousCount)
		fmt.Fprintf(&sb, "| 🟢 False Positives | %d |\n", triage.FalsePositiveCount)
		fmt.Fprintf(&sb, "| Tokens Used | %d |\n\n", triage.TotalTokensUsed)

		for i, result := range triage.Results {
			fmt.Fprintf(&sb, "#### %d. %s (Confidence: %d%%)\n\n", i+1, strings.ToUpper(string(result.Verdict)), result.Confidence)
			fmt.Fprintf(&sb, "**Explanation:** %s\n\n", result.Explanation)
			if result.Remediation != "" {
				fmt.Fprintf(&sb, "**Remediation:** %s\n\n", result.Remediation)
			}
		}
	}

	sb.WriteString("---\n\n")
	sb.WriteString("*Generated by sandsig*\n")
	return []byte(sb.String())
}

// getSeverityEmoji returns emoji for severity level
func getSeverityEmoji(severity models.Severity) string {
	switch severity {
	case models.SeverityCritical:
		return "🔴"
	case models.SeverityHigh:
		return "🟠"
	case models.SeverityMedium:
		return "🟡"
	case models.SeverityLow:
		return "🟢"
	case models.SeverityInfo:
		return "🔵"
	default:
		return "⚪"
	}
}
