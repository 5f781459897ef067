package signatures

import (
	"time"

	"github.com/bartblaze/community/internal/matcher"
	"github.com/bartblaze/community/pkg/models"
)

// Context is the evaluation-scoped state of one signature instance against
// one report. It is created fresh for every evaluation and never shared.
type Context struct {
	report  *models.AnalysisReport
	meta    *models.SignatureMeta
	matcher *matcher.Matcher
	scope   matcher.Scope

	data        []models.Record
	description string
	severity    models.Severity
	refined     bool

	marked  []models.MarkedCall
	current *models.MarkedCall
}

// NewContext creates an evaluation context. A nil matcher selects one
// backed by the default pattern cache.
func NewContext(report *models.AnalysisReport, meta *models.SignatureMeta, m *matcher.Matcher) *Context {
	if m == nil {
		m = matcher.New(nil)
	}
	return &Context{
		report:      report,
		meta:        meta,
		matcher:     m,
		scope:       matcher.ReportScope(report),
		description: meta.Description,
		severity:    meta.Severity,
	}
}

// Report returns the read-only analysis report
func (c *Context) Report() *models.AnalysisReport {
	return c.report
}

// Meta returns the static signature metadata
func (c *Context) Meta() *models.SignatureMeta {
	return c.meta
}

// AddData appends a matched-data record
func (c *Context) AddData(label string, value any) {
	c.data = append(c.data, models.Record{Label: label, Value: value})
}

// Data returns a copy of the accumulated records in detection order
func (c *Context) Data() []models.Record {
	out := make([]models.Record, len(c.data))
	copy(out, c.data)
	return out
}

// HasData reports whether any record was accumulated
func (c *Context) HasData() bool {
	return len(c.data) > 0
}

// Refine replaces the generic description and severity with a more specific
// one. Only the first refinement of an evaluation takes effect; an empty
// description or zero severity keeps the current value.
func (c *Context) Refine(description string, severity models.Severity) bool {
	if c.refined {
		return false
	}
	c.refined = true
	if description != "" {
		c.description = description
	}
	if severity > 0 {
		c.severity = severity
	}
	return true
}

// Description returns the effective description
func (c *Context) Description() string {
	return c.description
}

// Severity returns the effective severity
func (c *Context) Severity() models.Severity {
	return c.severity
}

// EnterCall sets the call currently being delivered to an evented handler
func (c *Context) EnterCall(proc *models.Process, index int, call *models.Call) {
	c.current = &models.MarkedCall{
		ProcessID: proc.ProcessID,
		Index:     index,
		API:       call.API,
	}
}

// LeaveCall clears the current call
func (c *Context) LeaveCall() {
	c.current = nil
}

// MarkCall flags the call being handled as significant. It is a no-op
// outside evented delivery.
func (c *Context) MarkCall() bool {
	if c.current == nil {
		return false
	}
	c.marked = append(c.marked, *c.current)
	return true
}

// Marked returns the calls marked so far
func (c *Context) Marked() []models.MarkedCall {
	out := make([]models.MarkedCall, len(c.marked))
	copy(out, c.marked)
	return out
}

// Argument returns a call argument or "" when absent
func (c *Context) Argument(call *models.Call, name string) string {
	v, _ := call.Argument(name)
	return v
}

// First returns the first whole-report value of domain matching p
func (c *Context) First(d matcher.Domain, p matcher.Pattern) (string, bool, error) {
	return c.matcher.First(c.scope, d, p)
}

// All returns every whole-report value of domain matching p
func (c *Context) All(d matcher.Domain, p matcher.Pattern) ([]string, error) {
	return c.matcher.All(c.scope, d, p)
}

// FirstInProcess is First restricted to pid and its descendants
func (c *Context) FirstInProcess(pid int, d matcher.Domain, p matcher.Pattern) (string, bool, error) {
	return c.matcher.First(matcher.ProcessScope(c.report, pid), d, p)
}

// AllInProcess is All restricted to pid and its descendants
func (c *Context) AllInProcess(pid int, d matcher.Domain, p matcher.Pattern) ([]string, error) {
	return c.matcher.All(matcher.ProcessScope(c.report, pid), d, p)
}

// Matcher returns the matcher used by this context
func (c *Context) Matcher() *matcher.Matcher {
	return c.matcher
}

// Finding snapshots the context into a Finding
func (c *Context) Finding(duration time.Duration) *models.Finding {
	return &models.Finding{
		Name:        c.meta.Name,
		Description: c.description,
		Severity:    c.severity,
		Categories:  c.meta.Categories,
		Families:    c.meta.Families,
		TTPs:        c.meta.TTPs,
		MBCs:        c.meta.MBCs,
		References:  c.meta.References,
		Data:        c.Data(),
		MarkedCalls: c.Marked(),
		Duration:    duration,
	}
}
