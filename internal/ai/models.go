package ai

import "time"

// Verdict represents the AI's classification of a finding
type Verdict string

const (
	VerdictMalicious     Verdict = "malicious"
	VerdictSuspicious    Verdict = "suspicious"
	VerdictFalsePositive Verdict = "false_positive"
	VerdictBenign        Verdict = "benign"
	VerdictUnknown       Verdict = "unknown"
)

// TriageRequest contains the finding data sent to the AI for triage
type TriageRequest struct {
	FindingID     string   `json:"finding_id"`
	SignatureName string   `json:"signature_name"`
	Description   string   `json:"description"`
	Severity      string   `json:"severity"`
	Categories    []string `json:"categories,omitempty"`
	Families      []string `json:"families,omitempty"`
	TTPs          []string `json:"ttps,omitempty"`
	Evidence      []string `json:"evidence,omitempty"` // rendered data records
	TargetName    string   `json:"target_name,omitempty"`
	TargetType    string   `json:"target_type,omitempty"`
	Package       string   `json:"package,omitempty"`
}

// TriageResponse contains the AI's verdict for one finding
type TriageResponse struct {
	FindingID   string   `json:"finding_id"`
	Verdict     Verdict  `json:"verdict"`
	Confidence  int      `json:"confidence"` // 0-100
	Explanation string   `json:"explanation"`
	Remediation string   `json:"remediation,omitempty"`
	Indicators  []string `json:"indicators,omitempty"`
	RiskLevel   string   `json:"risk_level"` // critical, high, medium, low
	TokensUsed  int      `json:"tokens_used"`
}

// QuickFilterResult contains the result of Haiku pre-filtering
type QuickFilterResult struct {
	FindingID     string `json:"finding_id"`
	NeedsAnalysis bool   `json:"needs_analysis"`
	Reason        string `json:"reason"`
	Confidence    int    `json:"confidence"`
	TokensUsed    int    `json:"tokens_used"`
}

// TriageReport contains aggregated triage results for one evaluation
type TriageReport struct {
	Model           string               `json:"model"`
	Language        string               `json:"language"`
	AnalyzedCount   int                  `json:"analyzed_count"`
	FilteredCount   int                  `json:"filtered_count"`
	StartTime       time.Time            `json:"start_time"`
	EndTime         time.Time            `json:"end_time"`
	Duration        time.Duration        `json:"duration"`
	TotalTokensUsed int                  `json:"total_tokens_used"`
	Results         []*TriageResponse    `json:"results"`
	FilterResults   []*QuickFilterResult `json:"filter_results,omitempty"`

	// Verdict statistics
	MaliciousCount     int `json:"malicious_count"`
	SuspiciousCount    int `json:"suspicious_count"`
	FalsePositiveCount int `json:"false_positive_count"`
	BenignCount        int `json:"benign_count"`
	UnknownCount       int `json:"unknown_count"`

	Errors []string `json:"errors,omitempty"`
}

// GetResultByFindingID returns the triage result for a specific finding
func (r *TriageReport) GetResultByFindingID(findingID string) *TriageResponse {
	for _, result := range r.Results {
		if result.FindingID == findingID {
			return result
		}
	}
	return nil
}

// CostEstimate represents estimated API costs for triage
type CostEstimate struct {
	Model            string
	FindingsCount    int
	QuickFilter      bool
	EstimatedTokens  int
	EstimatedCostUSD float64
	AnalyzedCount    int // findings expected to reach deep analysis
}

// TokenPricing contains pricing per million tokens for each model
type TokenPricing struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

// ModelPricing returns pricing for a model
func ModelPricing(model string) TokenPricing {
	switch model {
	case "haiku", "claude-3-haiku", "claude-3-5-haiku-latest":
		return TokenPricing{InputPerMillion: 0.25, OutputPerMillion: 1.25}
	case "opus", "claude-3-opus":
		return TokenPricing{InputPerMillion: 15.0, OutputPerMillion: 75.0}
	default: // sonnet
		return TokenPricing{InputPerMillion: 3.0, OutputPerMillion: 15.0}
	}
}

// EstimateCost calculates the estimated cost of triaging findingsCount findings
func EstimateCost(model string, findingsCount int, quickFilter bool) *CostEstimate {
	const (
		deepInputTokens   = 1400
		deepOutputTokens  = 350
		haikuInputTokens  = 700
		haikuOutputTokens = 75
		filterRate        = 0.5 // share dropped by the quick filter
	)

	estimate := &CostEstimate{
		Model:         model,
		FindingsCount: findingsCount,
		QuickFilter:   quickFilter,
		AnalyzedCount: findingsCount,
	}

	var tokens, cost float64
	if quickFilter && findingsCount > quickFilterThreshold {
		haiku := ModelPricing("haiku")
		in := float64(findingsCount * haikuInputTokens)
		out := float64(findingsCount * haikuOutputTokens)
		tokens += in + out
		cost += price(haiku, in, out)

		remaining := int(float64(findingsCount) * (1 - filterRate))
		if remaining < 1 {
			remaining = 1
		}
		estimate.AnalyzedCount = remaining
	}

	in := float64(estimate.AnalyzedCount * deepInputTokens)
	out := float64(estimate.AnalyzedCount * deepOutputTokens)
	tokens += in + out
	cost += price(ModelPricing(model), in, out)

	estimate.EstimatedTokens = int(tokens)
	estimate.EstimatedCostUSD = cost
	return estimate
}

func price(p TokenPricing, in, out float64) float64 {
	return (in/1_000_000)*p.InputPerMillion + (out/1_000_000)*p.OutputPerMillion
}
