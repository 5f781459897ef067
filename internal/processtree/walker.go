// Package processtree flattens process ancestry forests and finds unexpected
// descendants of trusted launcher processes.
package processtree

import (
	"regexp"
	"strings"

	"github.com/bartblaze/community/pkg/models"
)

// Flatten returns the lower-cased module paths of the subtree rooted at node
// in pre-order. Each call builds a new slice.
func Flatten(node *models.ProcessNode) []string {
	if node == nil {
		return nil
	}
	var paths []string
	walk(node, func(n *models.ProcessNode) {
		paths = append(paths, strings.ToLower(n.ModulePath))
	})
	return paths
}

func walk(n *models.ProcessNode, visit func(*models.ProcessNode)) {
	visit(n)
	for _, child := range n.Children {
		if child != nil {
			walk(child, visit)
		}
	}
}

// Martian is a descendant of a trusted root that matched no whitelist entry
type Martian struct {
	RootPID    int
	ModulePath string // lower case
}

// Walker detects martian processes beneath trusted roots
type Walker struct {
	recognizer *regexp.Regexp
	whitelist  []*regexp.Regexp
}

// NewWalker creates a walker. The recognizer is always part of the whitelist
// so trusted roots may relaunch themselves.
func NewWalker(recognizer *regexp.Regexp, whitelist []*regexp.Regexp) *Walker {
	wl := make([]*regexp.Regexp, 0, len(whitelist)+1)
	wl = append(wl, whitelist...)
	wl = append(wl, recognizer)
	return &Walker{
		recognizer: recognizer,
		whitelist:  wl,
	}
}

// IsTrustedRoot reports whether the node's module path matches the recognizer
func (w *Walker) IsTrustedRoot(node *models.ProcessNode) bool {
	path := strings.ToLower(node.ModulePath)
	return path != "" && w.recognizer.MatchString(path)
}

// FindMartians inspects every trusted root of the forest independently and
// returns all non-whitelisted paths in detection order
func (w *Walker) FindMartians(forest []*models.ProcessNode) []Martian {
	var result []Martian
	for _, root := range forest {
		if root == nil || !w.IsTrustedRoot(root) || len(root.Children) == 0 {
			continue
		}
		for _, path := range Flatten(root) {
			if !w.whitelisted(path) {
				result = append(result, Martian{RootPID: root.PID, ModulePath: path})
			}
		}
	}
	return result
}

func (w *Walker) whitelisted(path string) bool {
	for _, re := range w.whitelist {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}
