package models

import "time"

// EvaluationResults contains the outcome of evaluating all signatures against
// one report
type EvaluationResults struct {
	RunID     string        `json:"run_id"`
	Source    string        `json:"source,omitempty"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	Version   string        `json:"version"`

	Findings           []*Finding              `json:"findings"`
	FindingsBySeverity map[Severity][]*Finding `json:"-"`
	Failures           []*Failure              `json:"failures,omitempty"`

	Stats *EvaluationStatistics `json:"statistics"`
}

// EvaluationStatistics contains evaluation counters
type EvaluationStatistics struct {
	Signatures      int `json:"signatures"`
	BatchSignatures int `json:"batch_signatures"`
	EventedSigs     int `json:"evented_signatures"`
	Matched         int `json:"matched"`
	Failed          int `json:"failed"`
	TimedOut        int `json:"timed_out"`
	CallsDelivered  int `json:"calls_delivered"`
	WorkersUsed     int `json:"workers_used"`
}

// NewEvaluationResults creates empty results
func NewEvaluationResults() *EvaluationResults {
	return &EvaluationResults{
		FindingsBySeverity: make(map[Severity][]*Finding),
		Stats:              &EvaluationStatistics{},
	}
}

// AddFinding adds a finding to the results
func (r *EvaluationResults) AddFinding(f *Finding) {
	r.Findings = append(r.Findings, f)

	if r.FindingsBySeverity == nil {
		r.FindingsBySeverity = make(map[Severity][]*Finding)
	}
	r.FindingsBySeverity[f.Severity] = append(r.FindingsBySeverity[f.Severity], f)

	if r.Stats == nil {
		r.Stats = &EvaluationStatistics{}
	}
	r.Stats.Matched++
}

// AddFailure records a failed signature
func (r *EvaluationResults) AddFailure(f *Failure) {
	r.Failures = append(r.Failures, f)

	if r.Stats == nil {
		r.Stats = &EvaluationStatistics{}
	}
	r.Stats.Failed++
	if f.Kind == FailureTimeout {
		r.Stats.TimedOut++
	}
}

// MaxSeverity returns the highest severity among findings, or 0
func (r *EvaluationResults) MaxSeverity() Severity {
	var max Severity
	for _, f := range r.Findings {
		if f.Severity > max {
			max = f.Severity
		}
	}
	return max
}
