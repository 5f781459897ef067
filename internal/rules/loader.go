// Package rules loads indicator rule packs written in YAML and turns every
// rule into a batch signature definition.
package rules

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/bartblaze/community/internal/matcher"
	"github.com/bartblaze/community/internal/signatures"
	"gopkg.in/yaml.v3"
)

//go:embed builtin/*.yaml
var builtinPacks embed.FS

// Loader loads rule packs from the embedded defaults and an optional directory
type Loader struct {
	rulesPath string
	builtin   bool
	cache     *matcher.Cache
}

// NewLoader creates a new rule loader. An empty rulesPath loads only the
// built-in packs.
func NewLoader(rulesPath string) *Loader {
	return &Loader{
		rulesPath: rulesPath,
		builtin:   true,
		cache:     matcher.DefaultCache(),
	}
}

// WithoutBuiltin disables the embedded packs
func (l *Loader) WithoutBuiltin() *Loader {
	l.builtin = false
	return l
}

// PackFile represents a YAML rule pack
type PackFile struct {
	Rules []*Rule `yaml:"rules"`
}

// Load parses every pack and returns the resulting definitions in load
// order: built-in packs by file name, then the rules directory
func (l *Loader) Load() ([]*signatures.Definition, error) {
	var defs []*signatures.Definition

	if l.builtin {
		entries, err := fs.ReadDir(builtinPacks, "builtin")
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			path := "builtin/" + entry.Name()
			data, err := builtinPacks.ReadFile(path)
			if err != nil {
				return nil, err
			}
			loaded, err := l.parse(data)
			if err != nil {
				return nil, fmt.Errorf("failed to load %s: %w", path, err)
			}
			defs = append(defs, loaded...)
		}
	}

	if l.rulesPath == "" {
		return defs, nil
	}

	// Missing directory is not an error
	if _, err := os.Stat(l.rulesPath); os.IsNotExist(err) {
		return defs, nil
	}

	err := filepath.Walk(l.rulesPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		// Skip directories and non-YAML files
		if info.IsDir() || (filepath.Ext(path) != ".yaml" && filepath.Ext(path) != ".yml") {
			return nil
		}

		loaded, err := l.loadFile(path)
		if err != nil {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
		defs = append(defs, loaded...)
		return nil
	})

	return defs, err
}

// LoadInto loads every pack and registers the definitions
func (l *Loader) LoadInto(reg *signatures.Registry) (int, error) {
	defs, err := l.Load()
	if err != nil {
		return 0, err
	}
	for _, d := range defs {
		if err := reg.Register(d); err != nil {
			return 0, err
		}
	}
	return len(defs), nil
}

// loadFile loads rules from a single YAML file
func (l *Loader) loadFile(path string) ([]*signatures.Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return l.parse(data)
}

// parse decodes and validates one pack
func (l *Loader) parse(data []byte) ([]*signatures.Definition, error) {
	var pack PackFile
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return nil, err
	}

	defs := make([]*signatures.Definition, 0, len(pack.Rules))
	for _, rule := range pack.Rules {
		if err := rule.compile(l.cache); err != nil {
			return nil, fmt.Errorf("rule %s: %w", rule.Name, err)
		}
		defs = append(defs, rule.Definition())
	}
	return defs, nil
}
