// Package impedance adapts a simulation engine's impedance solver into
// complex-valued queries for the reduction algorithm.
package impedance

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"
	"sync"

	"dendroreduce/internal/cable"
	"dendroreduce/internal/morphology"
)

var (
	// ErrImpedanceUndefined is returned when the engine cannot produce a
	// finite, non-zero impedance, e.g. for zero-conductance sections.
	ErrImpedanceUndefined = cable.ErrImpedanceUndefined

	ErrStaleMeasurement = errors.New("measurement superseded by a later one")
)

// Engine is the host-engine surface the oracle needs. Magnitudes are in MΩ
// and phases in radians; Compute, Input and Transfer act on the section at
// the top of the engine's section stack.
type Engine interface {
	PushSection(id morphology.SectionID) error
	PopSection() error
	Compute(x, f float64) error
	Input(x float64) (mag, phase float64, err error)
	Transfer(x float64) (mag, phase float64, err error)
}

// Oracle serializes impedance queries against one engine. Every query
// pushes its section and pops it again on all exit paths.
type Oracle struct {
	mu         sync.Mutex
	engine     Engine
	generation uint64
}

// NewOracle wraps an engine
func NewOracle(engine Engine) *Oracle {
	return &Oracle{engine: engine}
}

// ForMorphology returns an oracle over the passive cable engine of m
func ForMorphology(m *morphology.Morphology) *Oracle {
	return NewOracle(cable.New(m))
}

// Measurement is the engine state after computing impedances for one
// subtree root and frequency. It is valid until the next Measure call on
// the same oracle.
type Measurement struct {
	Root      morphology.SectionID
	Frequency float64

	oracle     *Oracle
	generation uint64
	input      complex128
}

// Measure computes impedances with current injected at the proximal end
// (x=0) of root.
func (o *Oracle) Measure(root morphology.SectionID, f float64) (*Measurement, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	z, err := o.scoped(root, func() (float64, float64, error) {
		if err := o.engine.Compute(0, f); err != nil {
			return 0, 0, err
		}
		return o.engine.Input(0)
	})
	if err != nil {
		return nil, fmt.Errorf("measure section %d at %g Hz: %w", root, f, err)
	}
	if z == 0 {
		return nil, fmt.Errorf("measure section %d at %g Hz: %w: zero input impedance", root, f, ErrImpedanceUndefined)
	}

	o.generation++
	return &Measurement{
		Root:       root,
		Frequency:  f,
		oracle:     o,
		generation: o.generation,
		input:      z,
	}, nil
}

// Input returns the input impedance (Ω) at the proximal end of the root
func (m *Measurement) Input() complex128 {
	return m.input
}

// Transfer returns the transfer impedance (Ω) between the proximal end of
// the root and position x of sec.
func (m *Measurement) Transfer(sec morphology.SectionID, x float64) (complex128, error) {
	o := m.oracle
	o.mu.Lock()
	defer o.mu.Unlock()

	if m.generation != o.generation {
		return 0, ErrStaleMeasurement
	}
	z, err := o.scoped(sec, func() (float64, float64, error) {
		return o.engine.Transfer(x)
	})
	if err != nil {
		return 0, fmt.Errorf("transfer to section %d x=%g: %w", sec, x, err)
	}
	return z, nil
}

// scoped runs query with sec pushed and converts the polar result. The
// section is popped even when query fails.
func (o *Oracle) scoped(sec morphology.SectionID, query func() (float64, float64, error)) (z complex128, err error) {
	if err := o.engine.PushSection(sec); err != nil {
		return 0, err
	}
	defer func() {
		if perr := o.engine.PopSection(); perr != nil && err == nil {
			err = perr
		}
	}()

	mag, phase, err := query()
	if err != nil {
		return 0, err
	}
	return toComplex(mag, phase)
}

// toComplex converts an engine result in MΩ and radians to Ω
func toComplex(mag, phase float64) (complex128, error) {
	if math.IsNaN(mag) || math.IsInf(mag, 0) || math.IsNaN(phase) {
		return 0, ErrImpedanceUndefined
	}
	return cmplx.Rect(mag*1e6, phase), nil
}

// InputImpedance returns the input impedance (Ω) at the proximal end of root
func (o *Oracle) InputImpedance(root morphology.SectionID, f float64) (complex128, error) {
	m, err := o.Measure(root, f)
	if err != nil {
		return 0, err
	}
	return m.Input(), nil
}

// TransferImpedance returns the transfer impedance (Ω) between the proximal
// end of root and position x of sec.
func (o *Oracle) TransferImpedance(root morphology.SectionID, f float64, sec morphology.SectionID, x float64) (complex128, error) {
	m, err := o.Measure(root, f)
	if err != nil {
		return 0, err
	}
	return m.Transfer(sec, x)
}
