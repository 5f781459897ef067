package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Record is one matched-data entry: a label and the offending value.
// It serializes as a single-key object, e.g. {"regkey": "HKEY_..."}.
type Record struct {
	Label string
	Value any
}

// MarshalJSON encodes the record as {"<label>": value}
func (r Record) MarshalJSON() ([]byte, error) {
	key, err := json.Marshal(r.Label)
	if err != nil {
		return nil, err
	}
	val, err := json.Marshal(r.Value)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	buf.Write(key)
	buf.WriteByte(':')
	buf.Write(val)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// String renders the record as "label: value"
func (r Record) String() string {
	return fmt.Sprintf("%s: %v", r.Label, r.Value)
}

// MarkedCall references a call a signature flagged as significant
type MarkedCall struct {
	ProcessID int    `json:"process_id"`
	Index     int    `json:"index"` // position in the process call log
	API       string `json:"api"`
}

// Finding is the detection result of one signature for one report
type Finding struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Severity    Severity      `json:"severity"`
	Categories  []string      `json:"categories"`
	Families    []string      `json:"families,omitempty"`
	TTPs        []string      `json:"ttps,omitempty"`
	MBCs        []string      `json:"mbcs,omitempty"`
	References  []string      `json:"references,omitempty"`
	Data        []Record      `json:"data"`
	MarkedCalls []MarkedCall  `json:"marked_calls,omitempty"`
	Duration    time.Duration `json:"duration"`

	// Metadata carries enrichment added after evaluation (AI triage)
	Metadata map[string]any `json:"metadata,omitempty"`
}

// FailureKind classifies why a signature evaluation failed
type FailureKind string

const (
	FailureError   FailureKind = "error"
	FailurePanic   FailureKind = "panic"
	FailureTimeout FailureKind = "timeout"
)

// Failure records a signature whose evaluation was discarded
type Failure struct {
	Signature string      `json:"signature"`
	Kind      FailureKind `json:"kind"`
	Error     string      `json:"error"`
}
