package matcher

import "github.com/bartblaze/community/pkg/models"

// Scope restricts matching to a set of summary collections
type Scope interface {
	Collection(name string) []string
}

// reportScope exposes the whole-report summary
type reportScope struct {
	report *models.AnalysisReport
}

// ReportScope returns a scope covering the whole report
func ReportScope(r *models.AnalysisReport) Scope {
	return reportScope{report: r}
}

func (s reportScope) Collection(name string) []string {
	return s.report.Summary(name)
}

// processScope is the union of per-process summaries of a process subtree
type processScope struct {
	collections map[string][]string
}

// ProcessScope returns a scope covering pid and all of its descendants.
// A pid absent from the process tree yields only its own summary, if any.
func ProcessScope(r *models.AnalysisReport, pid int) Scope {
	pids := []int{pid}
	if node := r.FindNode(pid); node != nil {
		pids = subtreePIDs(node)
	}

	collections := make(map[string][]string)
	seen := make(map[string]map[string]bool)
	for _, p := range pids {
		proc := r.Process(p)
		if proc == nil {
			continue
		}
		for name, values := range proc.Summary {
			if seen[name] == nil {
				seen[name] = make(map[string]bool)
			}
			for _, v := range values {
				if !seen[name][v] {
					seen[name][v] = true
					collections[name] = append(collections[name], v)
				}
			}
		}
	}
	return processScope{collections: collections}
}

func (s processScope) Collection(name string) []string {
	return s.collections[name]
}

func subtreePIDs(n *models.ProcessNode) []int {
	pids := []int{n.PID}
	for _, child := range n.Children {
		if child == nil {
			continue
		}
		pids = append(pids, subtreePIDs(child)...)
	}
	return pids
}
