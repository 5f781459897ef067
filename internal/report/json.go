package report

import (
	"encoding/json"

	"github.com/bartblaze/community/internal/ai"
	"github.com/bartblaze/community/pkg/models"
)

// JSONReport combines evaluation results with AI triage for JSON output
type JSONReport struct {
	*models.EvaluationResults
	AITriage *ai.TriageReport `json:"ai_triage,omitempty"`
}

func renderJSON(results *models.EvaluationResults, triage *ai.TriageReport) ([]byte, error) {
	return json.MarshalIndent(&JSONReport{
		EvaluationResults: results,
		AITriage:          triage,
	}, "", "  ")
}
