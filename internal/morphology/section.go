package morphology

import (
	"math"
	"sort"
)

// SectionID is the arena handle of a section
type SectionID int

// SegmentID is the arena handle of a segment
type SegmentID int

// NoSection is the parent of the root section
const NoSection SectionID = -1

// Point is a 3-D sample along a section. The domain fields mirror the
// owning section's domain and are rewritten whenever it changes domain.
type Point struct {
	X float64 `yaml:"x" json:"x"`
	Y float64 `yaml:"y" json:"y"`
	Z float64 `yaml:"z" json:"z"`
	R float64 `yaml:"r" json:"r"`

	Domain  string `yaml:"-" json:"-"`
	TypeIdx int    `yaml:"-" json:"-"`
	Color   string `yaml:"-" json:"-"`
}

// DistanceTo returns the euclidean distance between two points
func (p Point) DistanceTo(o Point) float64 {
	dx, dy, dz := o.X-p.X, o.Y-p.Y, o.Z-p.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Section is a cable compartment. Length and diameter are in µm, Ra in
// Ω·cm and Cm in µF/cm². Leak conductance and reversal are per-segment
// parameters of the Leak mechanism, see Morphology.Leak.
type Section struct {
	ID         SectionID
	Parent     SectionID
	Children   []SectionID
	Points     []Point
	Length     float64
	Diam       float64
	Ra         float64
	Cm         float64
	Mechanisms []string
	Segments   []SegmentID
	Domain     string // empty while the section belongs to no domain
}

// Nseg returns the number of segments
func (s *Section) Nseg() int {
	return len(s.Segments)
}

// IsRoot reports whether the section has no parent
func (s *Section) IsRoot() bool {
	return s.Parent == NoSection
}

// HasMechanism reports whether a mechanism is inserted
func (s *Section) HasMechanism(name string) bool {
	for _, m := range s.Mechanisms {
		if m == name {
			return true
		}
	}
	return false
}

func (s *Section) clone() *Section {
	c := *s
	c.Children = append([]SectionID(nil), s.Children...)
	c.Points = append([]Point(nil), s.Points...)
	c.Mechanisms = append([]string(nil), s.Mechanisms...)
	c.Segments = append([]SegmentID(nil), s.Segments...)
	return &c
}

// Segment is a discretization point at normalized position X on a section
type Segment struct {
	ID      SegmentID
	Section SectionID
	X       float64
	params  map[string]float64
}

// Params returns a copy of the segment's parameter values
func (s *Segment) Params() map[string]float64 {
	out := make(map[string]float64, len(s.params))
	for k, v := range s.params {
		out[k] = v
	}
	return out
}

// ParamNames returns the names of parameters set on the segment, sorted
func (s *Segment) ParamNames() []string {
	names := make([]string, 0, len(s.params))
	for k := range s.params {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func (s *Segment) clone() *Segment {
	c := *s
	c.params = s.Params()
	return &c
}

// segmentCenters returns the midpoints (i+0.5)/n of n equal segments
func segmentCenters(n int) []float64 {
	xs := make([]float64, n)
	for i := range xs {
		xs[i] = (float64(i) + 0.5) / float64(n)
	}
	return xs
}

// segmentIndex returns the index of the segment covering x
func segmentIndex(x float64, n int) int {
	idx := int(x * float64(n))
	if idx < 0 {
		return 0
	}
	if idx > n-1 {
		return n - 1
	}
	return idx
}

// pointsLength returns the path length through a point chain
func pointsLength(points []Point) float64 {
	total := 0.0
	for i := 1; i < len(points); i++ {
		total += points[i-1].DistanceTo(points[i])
	}
	return total
}

// pointsDiameter returns the length-weighted mean diameter of a frustum chain
func pointsDiameter(points []Point) float64 {
	if len(points) == 0 {
		return 0
	}
	if len(points) == 1 {
		return 2 * points[0].R
	}
	total, weighted := 0.0, 0.0
	for i := 1; i < len(points); i++ {
		l := points[i-1].DistanceTo(points[i])
		total += l
		weighted += l * (points[i-1].R + points[i].R)
	}
	if total == 0 {
		return 2 * points[0].R
	}
	return weighted / total
}
