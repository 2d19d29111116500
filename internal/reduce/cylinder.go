package reduce

import (
	"errors"
	"fmt"
	"log"
	"math"
	"math/cmplx"

	"dendroreduce/internal/impedance"
	"dendroreduce/internal/morphology"
)

var ErrDegenerateInput = errors.New("degenerate electrical input")

// CableParams describes the equivalent cylinder of a subtree. Lengths are
// in µm, Rm in Ω·cm², Ra in Ω·cm and Cm in µF/cm².
type CableParams struct {
	Length             float64 `json:"length" yaml:"length"`
	Diam               float64 `json:"diam" yaml:"diam"`
	SpaceConst         float64 `json:"space_const" yaml:"space_const"`
	Cm                 float64 `json:"cm" yaml:"cm"`
	Rm                 float64 `json:"rm" yaml:"rm"`
	Ra                 float64 `json:"ra" yaml:"ra"`
	ELeak              float64 `json:"e_leak" yaml:"e_leak"`
	ElectrotonicLength float64 `json:"electrotonic_length" yaml:"electrotonic_length"`
}

// Passive holds the biophysical constants of a subtree, read from its root
type Passive struct {
	Rm    float64
	Ra    float64
	Cm    float64
	ELeak float64
}

// PassiveOf reads the passive constants of a subtree root. A zero or
// negative leak conductance leaves rm undefined.
func PassiveOf(m *morphology.Morphology, root morphology.SectionID) (Passive, error) {
	sec := m.Section(root)
	if sec == nil {
		return Passive{}, fmt.Errorf("%w: %d", morphology.ErrSectionNotFound, root)
	}
	g, e, err := m.Leak(root)
	if err != nil {
		return Passive{}, err
	}
	if g <= 0 || math.IsNaN(g) {
		return Passive{}, fmt.Errorf("%w: section %d has leak conductance %g", ErrDegenerateInput, root, g)
	}
	return Passive{Rm: 1 / g, Ra: sec.Ra, Cm: sec.Cm, ELeak: e}, nil
}

// Q returns the complex cable factor sqrt(1 + iωRC) with RC = rm·cm in s
func (p Passive) Q(f float64) complex128 {
	rc := p.Rm * p.Cm * 1e-6
	return cmplx.Sqrt(complex(1, 2*math.Pi*f*rc))
}

// attenuation is the modelled impedance at electrotonic distance x from the
// proximal end of a sealed cylinder of electrotonic length l.
func attenuation(z0, q complex128, l, x float64) complex128 {
	return z0 * cmplx.Cosh(q*complex(l-x, 0)) / cmplx.Cosh(q*complex(l, 0))
}

// ElectrotonicLength solves |z0/cosh(q·L)| = |zLow| for real L in
// [0, MaxElectrotonic].
func ElectrotonicLength(z0, zLow, q complex128, maxIter int, tol float64, logger *log.Logger) Search {
	model := func(l float64) complex128 {
		return z0 / cmplx.Cosh(q*complex(l, 0))
	}
	return Bisect(zLow, 0, MaxElectrotonic, model, maxIter, tol, logger)
}

// EquivalentDiameter returns the diameter (µm) of a sealed cylinder of
// electrotonic length l whose input impedance is z0:
// d = |(2/π · sqrt(rm·ra)/(q·z0) · coth(q·l))^(2/3)|.
func EquivalentDiameter(p Passive, q, z0 complex128, l float64) float64 {
	ql := q * complex(l, 0)
	inner := complex(2/math.Pi*math.Sqrt(p.Rm*p.Ra), 0) / (q * z0) * (1 / cmplx.Tanh(ql))
	d := cmplx.Abs(cmplx.Pow(inner, complex(2.0/3.0, 0)))
	return d * 1e4
}

// SpaceConstant returns λ (µm) of a cylinder of the given diameter (µm)
func SpaceConstant(p Passive, diam float64) float64 {
	d := diam * 1e-4
	rm := p.Rm / (math.Pi * d)
	ri := 4 * p.Ra / (math.Pi * d * d)
	return math.Sqrt(rm/ri) * 1e4
}

// Cylinder is the equivalent cylinder of one subtree together with the
// impedances it was derived from.
type Cylinder struct {
	Params  CableParams
	Passive Passive
	Q       complex128
	Z0      complex128
	ZLow    complex128
	Search  Search
}

// Model returns the modelled transfer impedance at electrotonic distance x
func (c *Cylinder) Model(x float64) complex128 {
	return attenuation(c.Z0, c.Q, c.Params.ElectrotonicLength, x)
}

// EquivalentCylinder derives the cable parameters of the subtree measured
// by meas. Z_low is the lowest-magnitude transfer impedance over every
// segment of the subtree and every section's distal end.
func EquivalentCylinder(m *morphology.Morphology, meas *impedance.Measurement, maxIter int, tol float64, logger *log.Logger) (*Cylinder, error) {
	p, err := PassiveOf(m, meas.Root)
	if err != nil {
		return nil, err
	}
	z0 := meas.Input()
	if a := cmplx.Abs(z0); a == 0 || math.IsNaN(a) || math.IsInf(a, 0) {
		return nil, fmt.Errorf("%w: input impedance %v at section %d", ErrDegenerateInput, z0, meas.Root)
	}

	zLow, err := lowestTransfer(m, meas)
	if err != nil {
		return nil, err
	}

	q := p.Q(meas.Frequency)
	search := ElectrotonicLength(z0, zLow, q, maxIter, tol, logger)
	l := search.X
	if l <= 0 {
		return nil, fmt.Errorf("%w: electrotonic length %g for section %d", ErrDegenerateInput, l, meas.Root)
	}

	diam := EquivalentDiameter(p, q, z0, l)
	if diam <= 0 || math.IsNaN(diam) || math.IsInf(diam, 0) {
		return nil, fmt.Errorf("%w: diameter %g for section %d", ErrDegenerateInput, diam, meas.Root)
	}
	lambda := SpaceConstant(p, diam)

	return &Cylinder{
		Params: CableParams{
			Length:             lambda * l,
			Diam:               diam,
			SpaceConst:         lambda,
			Cm:                 p.Cm,
			Rm:                 p.Rm,
			Ra:                 p.Ra,
			ELeak:              p.ELeak,
			ElectrotonicLength: l,
		},
		Passive: p,
		Q:       q,
		Z0:      z0,
		ZLow:    zLow,
		Search:  search,
	}, nil
}

func lowestTransfer(m *morphology.Morphology, meas *impedance.Measurement) (complex128, error) {
	sections, err := m.Subtree(meas.Root)
	if err != nil {
		return 0, err
	}
	low := meas.Input()
	for _, sec := range sections {
		positions := make([]float64, 0, sec.Nseg()+1)
		for _, seg := range m.Segments(sec.ID) {
			positions = append(positions, seg.X)
		}
		positions = append(positions, 1)
		for _, x := range positions {
			z, err := meas.Transfer(sec.ID, x)
			if err != nil {
				return 0, err
			}
			if cmplx.Abs(z) < cmplx.Abs(low) {
				low = z
			}
		}
	}
	return low, nil
}
