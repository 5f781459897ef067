package rules

import (
	"errors"
	"fmt"

	"github.com/bartblaze/community/internal/matcher"
	"github.com/bartblaze/community/internal/signatures"
	"github.com/bartblaze/community/pkg/models"
)

// Rule is one indicator list matched against a single domain
type Rule struct {
	models.SignatureMeta `yaml:",inline"`

	Domain        string   `yaml:"domain"`
	WriteOnly     bool     `yaml:"write_only"`
	Regex         bool     `yaml:"regex"`
	CaseSensitive bool     `yaml:"case_sensitive"`
	All           bool     `yaml:"all"`
	Label         string   `yaml:"label"`
	Indicators    []string `yaml:"indicators"`

	domain matcher.Domain
}

// compile validates the rule and pre-compiles its patterns
func (r *Rule) compile(cache *matcher.Cache) error {
	if r.Name == "" {
		return errors.New("rule without a name")
	}
	if len(r.Indicators) == 0 {
		return errors.New("no indicators")
	}
	if r.Severity == 0 {
		r.Severity = models.SeverityMedium
	}

	d, err := matcher.ParseDomain(r.Domain)
	if err != nil {
		return err
	}
	if r.WriteOnly {
		switch d {
		case matcher.DomainKey:
			d = matcher.DomainWriteKey
		case matcher.DomainFile:
			d = matcher.DomainWriteFile
		case matcher.DomainWriteKey, matcher.DomainWriteFile:
		default:
			return fmt.Errorf("domain %s has no write-only variant", d)
		}
	}
	r.domain = d

	if r.Regex {
		for _, indicator := range r.Indicators {
			if _, err := cache.Compile(r.pattern(indicator)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Rule) pattern(indicator string) matcher.Pattern {
	return matcher.Pattern{
		Value:         indicator,
		Regex:         r.Regex,
		CaseSensitive: r.CaseSensitive,
	}
}

// Definition returns the batch signature definition backed by the rule
func (r *Rule) Definition() *signatures.Definition {
	meta := r.SignatureMeta
	return signatures.NewBatchDefinition(&meta, func() signatures.Batch {
		return signatures.BatchFunc(r.run)
	})
}

// run checks indicators in order. Without All it stops at the first
// indicator that matches.
func (r *Rule) run(ec *signatures.Context) (bool, error) {
	matched := false
	for _, indicator := range r.Indicators {
		if r.All {
			values, err := ec.All(r.domain, r.pattern(indicator))
			if err != nil {
				return false, err
			}
			for _, v := range values {
				matched = true
				r.record(ec, v)
			}
			continue
		}

		v, ok, err := ec.First(r.domain, r.pattern(indicator))
		if err != nil {
			return false, err
		}
		if ok {
			r.record(ec, v)
			return true, nil
		}
	}
	return matched, nil
}

func (r *Rule) record(ec *signatures.Context, value string) {
	if r.Label != "" {
		ec.AddData(r.Label, value)
	}
}
