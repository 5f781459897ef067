package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/bartblaze/community/internal/config"
	"github.com/bartblaze/community/pkg/models"
	"go.uber.org/zap"
)

// findings above this count go through the quick filter first
const quickFilterThreshold = 5

// ProgressCallback is called to report triage progress
type ProgressCallback func(current, total int, message string)

// Triager is the subset of Client the analyzer needs
type Triager interface {
	Triage(ctx context.Context, req *TriageRequest, lang string) (*TriageResponse, error)
	QuickFilter(ctx context.Context, req *TriageRequest) (*QuickFilterResult, error)
	Model() string
}

// Analyzer performs AI triage of evaluation findings
type Analyzer struct {
	client           Triager
	config           *config.AIConfig
	logger           *zap.Logger
	progressCallback ProgressCallback
}

// NewAnalyzer creates a new AI analyzer
func NewAnalyzer(cfg *config.AIConfig, logger *zap.Logger) (*Analyzer, error) {
	client, err := NewClient(cfg.Model, cfg.APIToken, cfg.Timeout)
	if err != nil {
		return nil, err
	}
	return NewAnalyzerWithClient(client, cfg, logger), nil
}

// NewAnalyzerWithClient creates an analyzer backed by an existing client
func NewAnalyzerWithClient(client Triager, cfg *config.AIConfig, logger *zap.Logger) *Analyzer {
	return &Analyzer{
		client: client,
		config: cfg,
		logger: logger,
	}
}

// SetProgressCallback sets the progress callback function
func (a *Analyzer) SetProgressCallback(cb ProgressCallback) {
	a.progressCallback = cb
}

func (a *Analyzer) reportProgress(current, total int, message string) {
	if a.progressCallback != nil {
		a.progressCallback(current, total, message)
	}
}

// AnalyzeFindings triages the findings of one evaluation. Per-finding API
// errors are collected in the report, never returned.
func (a *Analyzer) AnalyzeFindings(ctx context.Context, results *models.EvaluationResults, report *models.AnalysisReport) (*TriageReport, error) {
	out := &TriageReport{
		Model:     a.client.Model(),
		Language:  a.config.Language,
		Results:   make([]*TriageResponse, 0),
		StartTime: time.Now(),
	}

	findings := results.Findings
	if a.config.MaxFindings > 0 && len(findings) > a.config.MaxFindings {
		a.logger.Info("Limiting findings for AI triage",
			zap.Int("total", len(findings)),
			zap.Int("limit", a.config.MaxFindings))
		findings = findings[:a.config.MaxFindings]
	}

	requests := make([]*TriageRequest, len(findings))
	for i, finding := range findings {
		requests[i] = BuildTriageRequest(finding, report, i)
	}

	toAnalyze := requests
	if a.config.QuickFilter && len(requests) > quickFilterThreshold {
		a.logger.Info("Running quick filter with Haiku", zap.Int("findings", len(requests)))
		a.reportProgress(0, len(requests), "Quick filtering with Haiku...")
		toAnalyze = a.quickFilter(ctx, requests, out)
		out.FilteredCount = len(requests) - len(toAnalyze)
		a.reportProgress(len(requests), len(requests), fmt.Sprintf("Filtered: %d passed, %d skipped", len(toAnalyze), out.FilteredCount))
	}

	for i, req := range toAnalyze {
		if ctx.Err() != nil {
			a.logger.Warn("Triage cancelled", zap.Int("analyzed", i))
			break
		}

		a.reportProgress(i+1, len(toAnalyze), fmt.Sprintf("Analyzing: %s", req.SignatureName))
		result, err := a.client.Triage(ctx, req, a.config.Language)
		if err != nil {
			a.logger.Warn("Triage failed for finding",
				zap.String("finding_id", req.FindingID),
				zap.Error(err))
			out.Errors = append(out.Errors, fmt.Sprintf("Finding %s: %v", req.FindingID, err))
			continue
		}

		out.Results = append(out.Results, result)
		out.TotalTokensUsed += result.TokensUsed
		out.count(result.Verdict)
		out.AnalyzedCount++
	}

	out.EndTime = time.Now()
	out.Duration = out.EndTime.Sub(out.StartTime)

	a.logger.Info("AI triage complete",
		zap.Int("analyzed", out.AnalyzedCount),
		zap.Int("malicious", out.MaliciousCount),
		zap.Int("false_positives", out.FalsePositiveCount),
		zap.Int("tokens_used", out.TotalTokensUsed),
		zap.Duration("duration", out.Duration))

	return out, nil
}

// quickFilter keeps the requests Haiku flags for analysis. A request whose
// filter call fails is kept.
func (a *Analyzer) quickFilter(ctx context.Context, requests []*TriageRequest, out *TriageReport) []*TriageRequest {
	var keep []*TriageRequest
	for _, req := range requests {
		if ctx.Err() != nil {
			keep = append(keep, req)
			continue
		}

		result, err := a.client.QuickFilter(ctx, req)
		if err != nil {
			a.logger.Debug("Quick filter failed, including in triage",
				zap.String("finding_id", req.FindingID),
				zap.Error(err))
			keep = append(keep, req)
			continue
		}

		out.FilterResults = append(out.FilterResults, result)
		out.TotalTokensUsed += result.TokensUsed
		if result.NeedsAnalysis {
			keep = append(keep, req)
		}
	}
	return keep
}

func (r *TriageReport) count(verdict Verdict) {
	switch verdict {
	case VerdictMalicious:
		r.MaliciousCount++
	case VerdictSuspicious:
		r.SuspiciousCount++
	case VerdictFalsePositive:
		r.FalsePositiveCount++
	case VerdictBenign:
		r.BenignCount++
	default:
		r.UnknownCount++
	}
}

// FindingID returns the identifier triage uses for the finding at index
func FindingID(index int) string {
	return fmt.Sprintf("finding-%d", index)
}

// BuildTriageRequest creates a TriageRequest from a Finding
func BuildTriageRequest(finding *models.Finding, report *models.AnalysisReport, index int) *TriageRequest {
	req := &TriageRequest{
		FindingID:     FindingID(index),
		SignatureName: finding.Name,
		Description:   finding.Description,
		Severity:      finding.Severity.String(),
		Categories:    finding.Categories,
		Families:      finding.Families,
		TTPs:          finding.TTPs,
		TargetType:    report.FileType(),
		Package:       report.Package(),
	}
	if f := report.TargetFile(); f != nil {
		req.TargetName = f.Name
	}
	for _, record := range finding.Data {
		req.Evidence = append(req.Evidence, record.String())
	}
	return req
}

// Enrich copies triage verdicts into the findings' metadata
func Enrich(results *models.EvaluationResults, triage *TriageReport) {
	if triage == nil {
		return
	}
	for i, finding := range results.Findings {
		result := triage.GetResultByFindingID(FindingID(i))
		if result == nil {
			continue
		}
		if finding.Metadata == nil {
			finding.Metadata = make(map[string]any)
		}
		finding.Metadata["ai_verdict"] = string(result.Verdict)
		finding.Metadata["ai_confidence"] = result.Confidence
		finding.Metadata["ai_explanation"] = result.Explanation
		finding.Metadata["ai_remediation"] = result.Remediation
		finding.Metadata["ai_risk"] = result.RiskLevel
		finding.Metadata["ai_indicators"] = result.Indicators
	}
}
