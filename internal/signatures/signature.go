// Package signatures defines the contract every detection signature
// implements and the registry the engine evaluates.
package signatures

import (
	"errors"
	"fmt"
	"sort"

	"github.com/bartblaze/community/pkg/models"
)

// Mode selects the evaluation protocol of a signature
type Mode int

const (
	// ModeBatch signatures evaluate once over the complete report
	ModeBatch Mode = iota
	// ModeEvented signatures receive filtered calls, then a completion step
	ModeEvented
)

// String returns the mode name
func (m Mode) String() string {
	if m == ModeEvented {
		return "evented"
	}
	return "batch"
}

// Batch is a signature evaluated with one call over the whole report
type Batch interface {
	Run(ec *Context) (bool, error)
}

// BatchFunc adapts a function to the Batch interface
type BatchFunc func(ec *Context) (bool, error)

// Run calls f
func (f BatchFunc) Run(ec *Context) (bool, error) {
	return f(ec)
}

// Evented is a signature fed call by call. Calls of one process arrive in
// captured order; no ordering holds across processes.
type Evented interface {
	OnCall(ec *Context, call *models.Call, proc *models.Process) error
	OnComplete(ec *Context) (bool, error)
}

// Completion provides the default completion step: match when anything was
// recorded
type Completion struct{}

// OnComplete returns whether the accumulator is non-empty
func (Completion) OnComplete(ec *Context) (bool, error) {
	return ec.HasData(), nil
}

// Definition is a registered signature: static metadata plus a constructor
// for fresh per-evaluation instances
type Definition struct {
	Meta       *models.SignatureMeta
	Mode       Mode
	NewBatch   func() Batch
	NewEvented func() Evented

	filter map[string]bool
}

// NewBatchDefinition creates a batch signature definition
func NewBatchDefinition(meta *models.SignatureMeta, factory func() Batch) *Definition {
	meta.Evented = false
	return &Definition{
		Meta:     meta,
		Mode:     ModeBatch,
		NewBatch: factory,
	}
}

// NewEventedDefinition creates an evented signature definition. The filter
// set is taken from meta.FilterAPINames; an empty filter receives every call.
func NewEventedDefinition(meta *models.SignatureMeta, factory func() Evented) *Definition {
	meta.Evented = true
	d := &Definition{
		Meta:       meta,
		Mode:       ModeEvented,
		NewEvented: factory,
	}
	if len(meta.FilterAPINames) > 0 {
		d.filter = make(map[string]bool, len(meta.FilterAPINames))
		for _, api := range meta.FilterAPINames {
			d.filter[api] = true
		}
	}
	return d
}

// Name returns the signature name
func (d *Definition) Name() string {
	return d.Meta.Name
}

// Wants reports whether an evented signature should receive calls to api
func (d *Definition) Wants(api string) bool {
	if d.filter == nil {
		return true
	}
	return d.filter[api]
}

// Validate checks the definition is usable
func (d *Definition) Validate() error {
	if d.Meta == nil || d.Meta.Name == "" {
		return errors.New("signature without a name")
	}
	switch d.Mode {
	case ModeBatch:
		if d.NewBatch == nil {
			return fmt.Errorf("batch signature %s has no constructor", d.Meta.Name)
		}
	case ModeEvented:
		if d.NewEvented == nil {
			return fmt.Errorf("evented signature %s has no constructor", d.Meta.Name)
		}
	default:
		return fmt.Errorf("signature %s has unknown mode %d", d.Meta.Name, d.Mode)
	}
	return nil
}

// Registry holds signature definitions in registration order
type Registry struct {
	defs   []*Definition
	byName map[string]*Definition
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]*Definition),
	}
}

// Register adds a definition; names must be unique
func (r *Registry) Register(d *Definition) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if _, exists := r.byName[d.Name()]; exists {
		return fmt.Errorf("signature %s already registered", d.Name())
	}
	r.defs = append(r.defs, d)
	r.byName[d.Name()] = d
	return nil
}

// MustRegister registers definitions and panics on error. Intended for
// package-level built-in tables.
func (r *Registry) MustRegister(defs ...*Definition) {
	for _, d := range defs {
		if err := r.Register(d); err != nil {
			panic(err)
		}
	}
}

// Get returns the definition with the given name
func (r *Registry) Get(name string) (*Definition, bool) {
	d, ok := r.byName[name]
	return d, ok
}

// All returns definitions in registration order
func (r *Registry) All() []*Definition {
	out := make([]*Definition, len(r.defs))
	copy(out, r.defs)
	return out
}

// Len returns the number of registered definitions
func (r *Registry) Len() int {
	return len(r.defs)
}

// Names returns all signature names sorted alphabetically
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.defs))
	for _, d := range r.defs {
		names = append(names, d.Name())
	}
	sort.Strings(names)
	return names
}

// Filter returns a registry holding only the definitions keep accepts
func (r *Registry) Filter(keep func(*Definition) bool) *Registry {
	out := NewRegistry()
	for _, d := range r.defs {
		if keep(d) {
			out.defs = append(out.defs, d)
			out.byName[d.Name()] = d
		}
	}
	return out
}
