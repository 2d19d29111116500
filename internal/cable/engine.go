package cable

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"

	"dendroreduce/internal/biophys"
	"dendroreduce/internal/morphology"
)

var (
	ErrEmptyStack         = errors.New("section stack is empty")
	ErrNotComputed        = errors.New("impedance not computed")
	ErrImpedanceUndefined = errors.New("impedance undefined")
	ErrOutsideNetwork     = errors.New("section outside computed network")
)

// Engine is a passive frequency-domain cable solver over a morphology. Like
// a simulator's section stack, the current section is set by PushSection and
// restored by PopSection; Compute, Input and Transfer act on it.
//
// Engine is not safe for concurrent use.
type Engine struct {
	morph *morphology.Morphology
	stack []morphology.SectionID
	net   *network
}

// New creates an engine reading geometry and leak parameters from m
func New(m *morphology.Morphology) *Engine {
	return &Engine{morph: m}
}

// Morphology returns the model the engine reads from
func (e *Engine) Morphology() *morphology.Morphology {
	return e.morph
}

// PushSection makes a section current
func (e *Engine) PushSection(id morphology.SectionID) error {
	if e.morph.Section(id) == nil {
		return fmt.Errorf("push: %w: %d", morphology.ErrSectionNotFound, id)
	}
	e.stack = append(e.stack, id)
	return nil
}

// PopSection restores the previously current section
func (e *Engine) PopSection() error {
	if len(e.stack) == 0 {
		return ErrEmptyStack
	}
	e.stack = e.stack[:len(e.stack)-1]
	return nil
}

// Depth returns the number of pushed sections
func (e *Engine) Depth() int {
	return len(e.stack)
}

func (e *Engine) current() (*morphology.Section, error) {
	if len(e.stack) == 0 {
		return nil, ErrEmptyStack
	}
	id := e.stack[len(e.stack)-1]
	sec := e.morph.Section(id)
	if sec == nil {
		return nil, fmt.Errorf("%w: %d", morphology.ErrSectionNotFound, id)
	}
	return sec, nil
}

// Compute solves the network formed by the subtree rooted at the current
// section for a unit current injected at position x of that section, at
// frequency f (Hz). The subtree is treated as detached from its parent.
// Sealed ends are assumed at every terminal.
func (e *Engine) Compute(x, f float64) error {
	sec, err := e.current()
	if err != nil {
		return err
	}
	if x < 0 || x > 1 {
		return fmt.Errorf("compute: position %g outside [0, 1]", x)
	}
	if f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("compute: invalid frequency %g", f)
	}

	net, err := buildNetwork(e.morph, sec.ID, f)
	if err != nil {
		e.net = nil
		return err
	}
	if err := net.solve(sec.ID, x); err != nil {
		e.net = nil
		return err
	}
	e.net = net
	return nil
}

// Input returns the input impedance at position x of the current section
// as magnitude (MΩ) and phase (rad).
func (e *Engine) Input(x float64) (float64, float64, error) {
	z, err := e.query(x, (*network).input)
	if err != nil {
		return 0, 0, err
	}
	return polar(z)
}

// Transfer returns the transfer impedance between the computed injection
// site and position x of the current section, as magnitude (MΩ) and phase
// (rad).
func (e *Engine) Transfer(x float64) (float64, float64, error) {
	z, err := e.query(x, (*network).transfer)
	if err != nil {
		return 0, 0, err
	}
	return polar(z)
}

func (e *Engine) query(x float64, fn func(*network, morphology.SectionID, float64) (complex128, error)) (complex128, error) {
	sec, err := e.current()
	if err != nil {
		return 0, err
	}
	if e.net == nil {
		return 0, ErrNotComputed
	}
	if x < 0 || x > 1 {
		return 0, fmt.Errorf("position %g outside [0, 1]", x)
	}
	return fn(e.net, sec.ID, x)
}

func polar(z complex128) (float64, float64, error) {
	if cmplx.IsNaN(z) || cmplx.IsInf(z) {
		return 0, 0, ErrImpedanceUndefined
	}
	return cmplx.Abs(z) * 1e-6, cmplx.Phase(z), nil
}

// Piece returns the characteristic impedance (Ω) and propagation constant
// (1/cm) of a uniform cylinder with diameter diam (µm), axial resistivity ra
// (Ω·cm), specific capacitance cm (µF/cm²) and leak conductance g (S/cm²) at
// frequency f (Hz).
func Piece(diam, ra, cm, g, f float64) (zc, gamma complex128, err error) {
	d := diam * 1e-4
	ri := complex(4*ra/(math.Pi*d*d), 0)
	ym := complex(math.Pi*d, 0) * complex(g, 2*math.Pi*f*cm*1e-6)
	if ym == 0 || ri == 0 || cmplx.IsNaN(ym) || cmplx.IsNaN(ri) {
		return 0, 0, fmt.Errorf("%w: diam=%g ra=%g g=%g f=%g", ErrImpedanceUndefined, diam, ra, g, f)
	}
	return cmplx.Sqrt(ri / ym), cmplx.Sqrt(ri * ym), nil
}

// SealedInput returns the input impedance (Ω) of a uniform sealed-end
// cylinder of the given length (µm), Zc·coth(γl).
func SealedInput(length, diam, ra, cm, g, f float64) (complex128, error) {
	zc, gamma, err := Piece(diam, ra, cm, g, f)
	if err != nil {
		return 0, err
	}
	return zc / cmplx.Tanh(gamma*complex(length*1e-4, 0)), nil
}

func leakOf(m *morphology.Morphology, seg *morphology.Segment) float64 {
	g, err := m.Param(seg.ID, biophys.ParamGLeak)
	if err != nil {
		return 0
	}
	return g
}
