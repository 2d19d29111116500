package morphology

import (
	"fmt"
	"math"
)

// Location is a normalized position on a section
type Location struct {
	Section SectionID
	X       float64
}

// Location returns the (section, x) identity of a segment
func (s *Segment) Location() Location {
	return Location{Section: s.Section, X: s.X}
}

// PathDistance returns the distance in µm along the tree from the proximal
// end of the root section to a segment.
func (m *Morphology) PathDistance(seg SegmentID) (float64, error) {
	s, err := m.segment(seg)
	if err != nil {
		return 0, err
	}
	return m.distanceFromRoot(s.Location()), nil
}

// PathDistanceFrom returns the distance in µm along the tree between two
// segments. Children attach to the distal end (x=1) of their parent.
func (m *Morphology) PathDistanceFrom(seg, from SegmentID) (float64, error) {
	a, err := m.segment(seg)
	if err != nil {
		return 0, err
	}
	b, err := m.segment(from)
	if err != nil {
		return 0, err
	}
	return m.LocationDistance(a.Location(), b.Location())
}

// LocationDistance returns the path distance in µm between two locations
func (m *Morphology) LocationDistance(a, b Location) (float64, error) {
	sa, err := m.section(a.Section)
	if err != nil {
		return 0, err
	}
	if _, err := m.section(b.Section); err != nil {
		return 0, err
	}
	if a.Section == b.Section {
		return math.Abs(a.X-b.X) * sa.Length, nil
	}

	lca, err := m.commonAncestor(a.Section, b.Section)
	if err != nil {
		return 0, err
	}
	da, db := m.distanceFromRoot(a), m.distanceFromRoot(b)
	switch lca {
	case a.Section, b.Section:
		return math.Abs(da - db), nil
	default:
		return da + db - 2*m.distanceFromRoot(Location{Section: lca, X: 1}), nil
	}
}

func (m *Morphology) distanceFromRoot(loc Location) float64 {
	sec := m.sections[loc.Section]
	d := loc.X * sec.Length
	for p := sec.Parent; p != NoSection; p = m.sections[p].Parent {
		d += m.sections[p].Length
	}
	return d
}

func (m *Morphology) ancestors(id SectionID) []SectionID {
	var out []SectionID
	for p := id; p != NoSection; p = m.sections[p].Parent {
		out = append(out, p)
	}
	return out
}

func (m *Morphology) commonAncestor(a, b SectionID) (SectionID, error) {
	seen := make(map[SectionID]bool)
	for _, id := range m.ancestors(a) {
		seen[id] = true
	}
	for _, id := range m.ancestors(b) {
		if seen[id] {
			return id, nil
		}
	}
	return NoSection, fmt.Errorf("sections %d and %d share no ancestor", a, b)
}
