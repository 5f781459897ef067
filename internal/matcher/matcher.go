package matcher

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/bartblaze/community/pkg/models"
)

// Domain is the indicator domain a pattern is matched against
type Domain int

const (
	DomainMutex Domain = iota
	DomainKey
	DomainFile
	DomainCommand
	DomainWriteKey
	DomainWriteFile
)

var domainNames = map[Domain]string{
	DomainMutex:     "mutex",
	DomainKey:       "key",
	DomainFile:      "file",
	DomainCommand:   "command",
	DomainWriteKey:  "write_key",
	DomainWriteFile: "write_file",
}

// String returns the domain name
func (d Domain) String() string {
	if name, ok := domainNames[d]; ok {
		return name
	}
	return fmt.Sprintf("domain(%d)", int(d))
}

// ParseDomain converts a domain name to a Domain
func ParseDomain(name string) (Domain, error) {
	switch strings.ToLower(name) {
	case "mutex":
		return DomainMutex, nil
	case "key", "regkey", "registry":
		return DomainKey, nil
	case "file":
		return DomainFile, nil
	case "command", "cmdline":
		return DomainCommand, nil
	case "write_key":
		return DomainWriteKey, nil
	case "write_file":
		return DomainWriteFile, nil
	}
	return 0, fmt.Errorf("unknown indicator domain: %q", name)
}

// collection returns the summary collection backing the domain
func (d Domain) collection() string {
	switch d {
	case DomainMutex:
		return models.SummaryMutexes
	case DomainKey:
		return models.SummaryKeys
	case DomainFile:
		return models.SummaryFiles
	case DomainCommand:
		return models.SummaryExecutedCommands
	case DomainWriteKey:
		return models.SummaryWriteKeys
	case DomainWriteFile:
		return models.SummaryWriteFiles
	}
	return ""
}

// Pattern is an indicator pattern
type Pattern struct {
	Value         string
	Regex         bool
	CaseSensitive bool
}

// Exact returns a case-insensitive equality pattern
func Exact(value string) Pattern {
	return Pattern{Value: value}
}

// Regex returns a case-insensitive regular expression pattern
func Regex(expr string) Pattern {
	return Pattern{Value: expr, Regex: true}
}

// Cache compiles each distinct pattern once and is safe for concurrent use
type Cache struct {
	compiled sync.Map // expression -> *regexp.Regexp
}

// NewCache creates an empty pattern cache
func NewCache() *Cache {
	return &Cache{}
}

var defaultCache = NewCache()

// DefaultCache returns the process-wide pattern cache
func DefaultCache() *Cache {
	return defaultCache
}

// Compile returns the compiled form of a regex pattern. Regex patterns are
// anchored at the start of the value; a trailing $ anchors the end.
func (c *Cache) Compile(p Pattern) (*regexp.Regexp, error) {
	expr := "^(?:" + p.Value + ")"
	if !p.CaseSensitive {
		expr = "(?i)" + expr
	}

	if re, ok := c.compiled.Load(expr); ok {
		return re.(*regexp.Regexp), nil
	}

	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", p.Value, err)
	}
	actual, _ := c.compiled.LoadOrStore(expr, re)
	return actual.(*regexp.Regexp), nil
}

// Len returns the number of compiled patterns held
func (c *Cache) Len() int {
	n := 0
	c.compiled.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Matcher matches indicator patterns against report collections
type Matcher struct {
	cache *Cache
}

// New creates a matcher backed by cache; nil selects the default cache
func New(cache *Cache) *Matcher {
	if cache == nil {
		cache = defaultCache
	}
	return &Matcher{cache: cache}
}

// First returns the first value in scope matching the pattern
func (m *Matcher) First(scope Scope, d Domain, p Pattern) (string, bool, error) {
	test, err := m.predicate(p)
	if err != nil {
		return "", false, err
	}

	for _, value := range scope.Collection(d.collection()) {
		if test(value) {
			return value, true, nil
		}
	}
	return "", false, nil
}

// All returns every distinct value in scope matching the pattern, in
// collection order
func (m *Matcher) All(scope Scope, d Domain, p Pattern) ([]string, error) {
	test, err := m.predicate(p)
	if err != nil {
		return nil, err
	}

	var results []string
	seen := make(map[string]bool)
	for _, value := range scope.Collection(d.collection()) {
		if seen[value] || !test(value) {
			continue
		}
		seen[value] = true
		results = append(results, value)
	}
	return results, nil
}

// MatchString tests a single value against the pattern
func (m *Matcher) MatchString(p Pattern, value string) (bool, error) {
	test, err := m.predicate(p)
	if err != nil {
		return false, err
	}
	return test(value), nil
}

// predicate builds the test function for a pattern
func (m *Matcher) predicate(p Pattern) (func(string) bool, error) {
	if p.Regex {
		re, err := m.cache.Compile(p)
		if err != nil {
			return nil, err
		}
		return re.MatchString, nil
	}

	if p.CaseSensitive {
		return func(v string) bool { return v == p.Value }, nil
	}
	return func(v string) bool { return strings.EqualFold(v, p.Value) }, nil
}
