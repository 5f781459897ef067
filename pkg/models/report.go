package models

import (
	"encoding/json"
	"strings"
)

// Summary collection names found under behavior.summary
const (
	SummaryFiles            = "files"
	SummaryReadFiles        = "read_files"
	SummaryWriteFiles       = "write_files"
	SummaryDeleteFiles      = "delete_files"
	SummaryKeys             = "keys"
	SummaryReadKeys         = "read_keys"
	SummaryWriteKeys        = "write_keys"
	SummaryDeleteKeys       = "delete_keys"
	SummaryMutexes          = "mutexes"
	SummaryExecutedCommands = "executed_commands"
	SummaryCreatedServices  = "created_services"
	SummaryStartedServices  = "started_services"
)

// Target categories
const (
	CategoryFile   = "file"
	CategoryStatic = "static"
	CategoryURL    = "url"
)

// AnalysisReport is the read-only result of one sandboxed execution.
// Every sub-structure is optional; use the accessor methods, which treat
// absence as empty.
type AnalysisReport struct {
	Info     *Info     `json:"info,omitempty"`
	Target   *Target   `json:"target,omitempty"`
	Behavior *Behavior `json:"behavior,omitempty"`

	// Source is the path the report was read from (not part of the JSON)
	Source string `json:"-"`
}

// Info holds analysis task information
type Info struct {
	ID      int    `json:"id,omitempty"`
	Package string `json:"package,omitempty"`
}

// Target describes what was submitted for analysis
type Target struct {
	Category string      `json:"category,omitempty"`
	File     *TargetFile `json:"file,omitempty"`
	URL      string      `json:"url,omitempty"`
}

// TargetFile holds static metadata of a submitted file
type TargetFile struct {
	Name   string  `json:"name,omitempty"`
	Type   string  `json:"type,omitempty"`
	Size   int64   `json:"size,omitempty"`
	SHA256 string  `json:"sha256,omitempty"`
	PE     *PEInfo `json:"pe,omitempty"`
}

// PEInfo holds the PE header data extracted statically
type PEInfo struct {
	Sections []*PESection `json:"sections,omitempty"`
}

// PESection is one PE section. SizeOfData is a hex string as emitted by the
// static analyzer; Entropy accepts both a JSON number and a numeric string.
type PESection struct {
	Name           string      `json:"name"`
	VirtualAddress string      `json:"virtual_address,omitempty"`
	VirtualSize    string      `json:"virtual_size,omitempty"`
	SizeOfData     string      `json:"size_of_data"`
	Entropy        json.Number `json:"entropy"`
}

// Behavior holds the dynamic part of the report
type Behavior struct {
	Summary     map[string][]string `json:"summary,omitempty"`
	ProcessTree []*ProcessNode      `json:"processtree,omitempty"`
	APIStream   []*Process          `json:"apistream,omitempty"`
}

// ProcessNode is a node of the process ancestry forest. Children are in
// execution order as captured.
type ProcessNode struct {
	PID        int            `json:"pid"`
	Name       string         `json:"name,omitempty"`
	ModulePath string         `json:"module_path"`
	Children   []*ProcessNode `json:"children,omitempty"`
}

// Process is one monitored process with its ordered call log
type Process struct {
	ProcessID   int                 `json:"process_id"`
	ProcessName string              `json:"process_name"`
	ParentID    int                 `json:"parent_id,omitempty"`
	ModulePath  string              `json:"module_path,omitempty"`
	Calls       []*Call             `json:"calls,omitempty"`
	Summary     map[string][]string `json:"summary,omitempty"`
}

// Call is a single captured API call
type Call struct {
	API       string      `json:"api"`
	Category  string      `json:"category,omitempty"`
	Arguments []*Argument `json:"arguments,omitempty"`
	Return    string      `json:"return,omitempty"`
}

// Argument is one named call argument; the slice order is the capture order
type Argument struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Argument returns the value of the named argument and whether it was present
func (c *Call) Argument(name string) (string, bool) {
	if c == nil {
		return "", false
	}
	for _, arg := range c.Arguments {
		if arg.Name == name {
			return arg.Value, true
		}
	}
	return "", false
}

// TargetCategory returns target.category or "" when absent
func (r *AnalysisReport) TargetCategory() string {
	if r == nil || r.Target == nil {
		return ""
	}
	return r.Target.Category
}

// TargetFile returns target.file or nil when absent
func (r *AnalysisReport) TargetFile() *TargetFile {
	if r == nil || r.Target == nil {
		return nil
	}
	return r.Target.File
}

// FileType returns target.file.type or "" when absent
func (r *AnalysisReport) FileType() string {
	if f := r.TargetFile(); f != nil {
		return f.Type
	}
	return ""
}

// Package returns info.package or "" when absent
func (r *AnalysisReport) Package() string {
	if r == nil || r.Info == nil {
		return ""
	}
	return r.Info.Package
}

// IsFileTarget reports whether the submission is a file (static or dynamic)
func (r *AnalysisReport) IsFileTarget() bool {
	cat := r.TargetCategory()
	return cat == CategoryFile || cat == CategoryStatic
}

// PESections returns the PE sections of the target file, or nil when the
// report carries no PE structure
func (r *AnalysisReport) PESections() []*PESection {
	f := r.TargetFile()
	if f == nil || f.PE == nil {
		return nil
	}
	return f.PE.Sections
}

// Summary returns the named behavior.summary collection, or nil when absent
func (r *AnalysisReport) Summary(name string) []string {
	if r == nil || r.Behavior == nil || r.Behavior.Summary == nil {
		return nil
	}
	return r.Behavior.Summary[name]
}

// ProcessTree returns the process forest, or nil when absent
func (r *AnalysisReport) ProcessTree() []*ProcessNode {
	if r == nil || r.Behavior == nil {
		return nil
	}
	return r.Behavior.ProcessTree
}

// Processes returns the per-process call streams, or nil when absent
func (r *AnalysisReport) Processes() []*Process {
	if r == nil || r.Behavior == nil {
		return nil
	}
	return r.Behavior.APIStream
}

// Process returns the apistream entry for pid, or nil
func (r *AnalysisReport) Process(pid int) *Process {
	for _, p := range r.Processes() {
		if p != nil && p.ProcessID == pid {
			return p
		}
	}
	return nil
}

// FindNode returns the process tree node for pid, searching every root
func (r *AnalysisReport) FindNode(pid int) *ProcessNode {
	for _, root := range r.ProcessTree() {
		if n := root.Find(pid); n != nil {
			return n
		}
	}
	return nil
}

// Find searches the subtree rooted at n for pid
func (n *ProcessNode) Find(pid int) *ProcessNode {
	if n == nil {
		return nil
	}
	if n.PID == pid {
		return n
	}
	for _, child := range n.Children {
		if found := child.Find(pid); found != nil {
			return found
		}
	}
	return nil
}

// LowerName returns the process name in lower case
func (p *Process) LowerName() string {
	return strings.ToLower(p.ProcessName)
}
