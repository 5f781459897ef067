package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bartblaze/community/internal/ai"
	"github.com/bartblaze/community/internal/config"
	"github.com/bartblaze/community/pkg/models"
	"go.uber.org/zap"
)

// ANSI color codes
const (
	colorReset   = "\033[0m"
	colorBold    = "\033[1m"
	colorDim     = "\033[2m"
	colorRed     = "\033[31m"
	colorGreen   = "\033[32m"
	colorYellow  = "\033[33m"
	colorBlue    = "\033[34m"
	colorMagenta = "\033[35m"
	colorWhite   = "\033[37m"
	colorOrange  = "\033[38;5;208m"
	colorGray    = "\033[38;5;245m"
)

const rule = "───────────────────────────────────────────────────────────────"

// FormatDuration formats duration to a human-readable string with max 2 decimal places
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%.2fms", float64(d.Nanoseconds())/1e6)
	} else if d < time.Minute {
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
	mins := int(d.Minutes())
	secs := d.Seconds() - float64(mins*60)
	return fmt.Sprintf("%dm%.2fs", mins, secs)
}

// Generator renders evaluation results in various formats
type Generator struct {
	config  *config.Config
	logger  *zap.Logger
	console io.Writer

	perReport bool
	written   map[string]bool
}

// NewGenerator creates a new report generator writing console output to stdout
func NewGenerator(cfg *config.Config, logger *zap.Logger) *Generator {
	return &Generator{
		config:  cfg,
		logger:  logger,
		console: os.Stdout,
		written: make(map[string]bool),
	}
}

// SetConsole redirects console output
func (g *Generator) SetConsole(w io.Writer) {
	g.console = w
}

// SetPerReport makes every Generate call derive its own file from the
// configured output path, e.g. out.json becomes out-<report>.json
func (g *Generator) SetPerReport(enabled bool) {
	g.perReport = enabled
}

// Render returns the results in the given format
func Render(format string, results *models.EvaluationResults, triage *ai.TriageReport) ([]byte, error) {
	switch strings.ToLower(format) {
	case "json":
		return renderJSON(results, triage)
	case "txt", "text":
		return renderText(results, triage), nil
	case "md", "markdown":
		return renderMarkdown(results, triage), nil
	}
	return nil, fmt.Errorf("unknown report format: %s", format)
}

// Generate writes a report for the results. With no format configured the
// results are printed to the console and the returned path is empty.
func (g *Generator) Generate(results *models.EvaluationResults, triage *ai.TriageReport) (string, error) {
	format := g.config.ReportFormat
	if format == "" || format == "console" {
		g.printConsole(results, triage)
		return "", nil
	}

	data, err := Render(format, results, triage)
	if err != nil {
		return "", err
	}

	outputFile := g.outputPath(format, results)

	g.logger.Info("Generating report",
		zap.String("format", format),
		zap.String("output", outputFile))

	if err := os.WriteFile(outputFile, data, 0644); err != nil {
		return "", fmt.Errorf("failed to generate %s report: %w", format, err)
	}
	g.written[outputFile] = true

	absPath, _ := filepath.Abs(outputFile)
	return absPath, nil
}

// outputPath picks the file for one report. Per-report paths that would
// overwrite an earlier report of this generator get the run ID appended.
func (g *Generator) outputPath(format string, results *models.EvaluationResults) string {
	out := g.config.OutputFile
	if out == "" {
		return defaultFileName(format, results)
	}
	if !g.perReport {
		return out
	}

	ext := filepath.Ext(out)
	stem := strings.TrimSuffix(out, ext)
	name := filepath.Base(results.Source)
	name = strings.TrimSuffix(name, filepath.Ext(name))

	path := fmt.Sprintf("%s-%s%s", stem, name, ext)
	if g.written[path] {
		path = fmt.Sprintf("%s-%s-%s%s", stem, name, shortID(results.RunID), ext)
	}
	return path
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func defaultFileName(format string, results *models.EvaluationResults) string {
	ext := "txt"
	switch strings.ToLower(format) {
	case "json":
		ext = "json"
	case "md", "markdown":
		ext = "md"
	}
	return fmt.Sprintf("SANDSIG-REPORT-%s-%s.%s", results.StartTime.Format("20060102-150405"), shortID(results.RunID), ext)
}

// printConsole prints results with colors
func (g *Generator) printConsole(results *models.EvaluationResults, triage *ai.TriageReport) {
	w := g.console
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s%sEVALUATION COMPLETE%s\n\n", colorBold, colorOrange, colorReset)

	fmt.Fprintf(w, "  %sReport:%s      %s\n", colorGray, colorReset, results.Source)
	fmt.Fprintf(w, "  %sRun:%s         %s\n", colorGray, colorReset, results.RunID)
	if results.Stats != nil {
		fmt.Fprintf(w, "  %sSignatures:%s  %d (%d evented)\n", colorGray, colorReset, results.Stats.Signatures, results.Stats.EventedSigs)
	}
	fmt.Fprintf(w, "  %sDuration:%s    %s\n\n", colorGray, colorReset, FormatDuration(results.Duration))

	if len(results.Findings) == 0 {
		fmt.Fprintf(w, "  %s%s✓ No signatures matched%s\n", colorBold, colorGreen, colorReset)
	} else {
		fmt.Fprintf(w, "  %s%s⚠ SIGNATURES MATCHED: %d%s\n\n", colorBold, colorRed, len(results.Findings), colorReset)
		fmt.Fprintf(w, "%s%s%s\n", colorGray, rule, colorReset)

		for i, finding := range results.Findings {
			fmt.Fprintf(w, "\n  %s%s[%d]%s %s%s%s\n", colorBold, colorWhite, i+1, colorReset, colorBold, finding.Name, colorReset)
			fmt.Fprintf(w, "      %sSeverity:%s  %s%s%s\n", colorGray, colorReset, getSeverityColor(finding.Severity), strings.ToUpper(finding.Severity.String()), colorReset)
			fmt.Fprintf(w, "      %sDetail:%s    %s\n", colorGray, colorReset, finding.Description)
			if len(finding.TTPs) > 0 {
				fmt.Fprintf(w, "      %sATT&CK:%s    %s\n", colorGray, colorReset, strings.Join(finding.TTPs, ", "))
			}
			for _, record := range finding.Data {
				fmt.Fprintf(w, "      %s•%s %s%s%s\n", colorGray, colorReset, colorDim, truncate(record.String(), 120), colorReset)
			}

			if triage != nil {
				if result := triage.GetResultByFindingID(ai.FindingID(i)); result != nil {
					fmt.Fprintf(w, "      %sAI:%s        %s%s%s (%d%% confidence)\n",
						colorGray, colorReset, getVerdictColor(result.Verdict), strings.ToUpper(string(result.Verdict)), colorReset, result.Confidence)
				}
			}
		}
		fmt.Fprintln(w)
		fmt.Fprintf(w, "%s%s%s\n", colorGray, rule, colorReset)
	}

	if len(results.Failures) > 0 {
		fmt.Fprintf(w, "\n  %s%sFAILED SIGNATURES: %d%s\n", colorBold, colorYellow, len(results.Failures), colorReset)
		for _, f := range results.Failures {
			fmt.Fprintf(w, "      %s%s%s [%s] %s\n", colorYellow, f.Signature, colorReset, f.Kind, truncate(f.Error, 100))
		}
	}

	if triage != nil && len(triage.Results) > 0 {
		fmt.Fprintf(w, "\n%s%sAI TRIAGE SUMMARY%s\n\n", colorBold, colorMagenta, colorReset)
		fmt.Fprintf(w, "  %sModel:%s       %s\n", colorGray, colorReset, triage.Model)
		fmt.Fprintf(w, "  %sAnalyzed:%s    %d findings\n", colorGray, colorReset, triage.AnalyzedCount)
		fmt.Fprintf(w, "  %sMalicious:%s   %s%d%s\n", colorGray, colorReset, colorRed, triage.MaliciousCount, colorReset)
		fmt.Fprintf(w, "  %sFalse Pos:%s   %s%d%s\n", colorGray, colorReset, colorGreen, triage.FalsePositiveCount, colorReset)
		fmt.Fprintf(w, "  %sTokens:%s      %d\n", colorGray, colorReset, triage.TotalTokensUsed)
	}

	fmt.Fprintln(w)
}

// getVerdictColor returns ANSI color for AI verdict
func getVerdictColor(verdict ai.Verdict) string {
	switch verdict {
	case ai.VerdictMalicious:
		return colorRed + colorBold
	case ai.VerdictSuspicious:
		return colorOrange
	case ai.VerdictFalsePositive, ai.VerdictBenign:
		return colorGreen
	default:
		return colorYellow
	}
}

// getSeverityColor returns ANSI color for severity level
func getSeverityColor(severity models.Severity) string {
	switch severity {
	case models.SeverityCritical:
		return colorRed + colorBold
	case models.SeverityHigh:
		return colorOrange
	case models.SeverityMedium:
		return colorYellow
	case models.SeverityLow:
		return colorGreen
	case models.SeverityInfo:
		return colorBlue
	default:
		return colorWhite
	}
}

// truncate collapses whitespace and cuts s to maxLen runes
func truncate(s string, maxLen int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > maxLen {
		return string(r[:maxLen]) + "..."
	}
	return s
}

// severityOrder lists severities from most to least severe
var severityOrder = []models.Severity{
	models.SeverityCritical,
	models.SeverityHigh,
	models.SeverityMedium,
	models.SeverityLow,
	models.SeverityInfo,
}
