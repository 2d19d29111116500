// Package biophys holds the mechanism registry: the names of membrane
// mechanisms that can be inserted into sections, the range parameters each
// one owns, and whether those parameters migrate when a subtree is reduced.
//
// Channel kinetics are not modelled here. A mechanism is only the set of
// per-segment parameter names it contributes and their default values.
package biophys

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrUnknownMechanism is returned for a mechanism name that was never registered
	ErrUnknownMechanism = errors.New("unknown mechanism")
	// ErrDuplicateMechanism is returned when registering a name twice
	ErrDuplicateMechanism = errors.New("mechanism already registered")
	// ErrParameterConflict is returned when two mechanisms declare the same parameter
	ErrParameterConflict = errors.New("parameter declared by another mechanism")
)

// LeakMechanism is the passive leak every section carries
const LeakMechanism = "Leak"

// Leak parameter names
const (
	ParamGLeak = "gbar_Leak"
	ParamELeak = "e_Leak"
)

// DefaultExcluded lists mechanisms whose parameters are never migrated by
// reduction: the passive leak is rebuilt from the cable parameters and ion
// mechanisms only hold bookkeeping values.
var DefaultExcluded = []string{LeakMechanism, "na_ion", "k_ion", "ca_ion", "h_ion"}

// Mechanism describes one insertable membrane mechanism
type Mechanism struct {
	Name      string             `yaml:"name" json:"name" validate:"required"`
	Params    map[string]float64 `yaml:"params" json:"params"` // full parameter name -> default
	Reducible bool               `yaml:"reducible" json:"reducible"`
}

// ParamNames returns the mechanism's parameter names in sorted order
func (m *Mechanism) ParamNames() []string {
	names := make([]string, 0, len(m.Params))
	for name := range m.Params {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Registry is the set of mechanisms known to a model
type Registry struct {
	mechanisms map[string]*Mechanism
	owners     map[string]string // parameter -> mechanism
	order      []string
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		mechanisms: make(map[string]*Mechanism),
		owners:     make(map[string]string),
	}
}

// DefaultRegistry returns a registry holding the passive leak and the ion
// bookkeeping mechanisms, all marked non-reducible.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	builtins := []Mechanism{
		{Name: LeakMechanism, Params: map[string]float64{ParamGLeak: 1e-4, ParamELeak: -70}},
		{Name: "na_ion", Params: map[string]float64{"ena": 50}},
		{Name: "k_ion", Params: map[string]float64{"ek": -77}},
		{Name: "ca_ion", Params: map[string]float64{"eca": 140, "cai": 5e-5}},
		{Name: "h_ion", Params: map[string]float64{"eh": -45}},
	}
	for _, m := range builtins {
		// builtins never collide
		_ = r.Register(m)
	}
	return r
}

// Register adds a mechanism. Parameter names must be unique across mechanisms.
func (r *Registry) Register(m Mechanism) error {
	if m.Name == "" {
		return fmt.Errorf("register mechanism: empty name")
	}
	if _, exists := r.mechanisms[m.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateMechanism, m.Name)
	}
	for param := range m.Params {
		if owner, taken := r.owners[param]; taken {
			return fmt.Errorf("%w: %s (owned by %s)", ErrParameterConflict, param, owner)
		}
	}

	params := make(map[string]float64, len(m.Params))
	for param, def := range m.Params {
		params[param] = def
		r.owners[param] = m.Name
	}
	m.Params = params
	r.mechanisms[m.Name] = &m
	r.order = append(r.order, m.Name)
	return nil
}

// Get returns a registered mechanism
func (r *Registry) Get(name string) (*Mechanism, bool) {
	m, ok := r.mechanisms[name]
	return m, ok
}

// Names returns mechanism names in registration order
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Owner returns the mechanism that declares a parameter
func (r *Registry) Owner(param string) (string, bool) {
	owner, ok := r.owners[param]
	return owner, ok
}

// Exclude marks mechanisms as non-reducible. Unknown names are ignored so a
// configured exclusion list may mention mechanisms a model never uses.
func (r *Registry) Exclude(names ...string) {
	for _, name := range names {
		if m, ok := r.mechanisms[name]; ok {
			m.Reducible = false
		}
	}
}

// IsReducible reports whether a mechanism's parameters migrate on reduction
func (r *Registry) IsReducible(name string) bool {
	m, ok := r.mechanisms[name]
	return ok && m.Reducible
}

// ReducibleParams returns the migrating parameter names contributed by the
// given mechanisms, sorted.
func (r *Registry) ReducibleParams(mechanisms []string) []string {
	var names []string
	for _, name := range mechanisms {
		m, ok := r.mechanisms[name]
		if !ok || !m.Reducible {
			continue
		}
		names = append(names, m.ParamNames()...)
	}
	sort.Strings(names)
	return names
}

// Clone returns an independent copy of the registry
func (r *Registry) Clone() *Registry {
	c := NewRegistry()
	for _, name := range r.order {
		m := r.mechanisms[name]
		cp := Mechanism{Name: m.Name, Reducible: m.Reducible, Params: make(map[string]float64, len(m.Params))}
		for k, v := range m.Params {
			cp.Params[k] = v
		}
		_ = c.Register(cp)
	}
	return c
}
