package reduce

import (
	"fmt"
	"log"

	"dendroreduce/internal/impedance"
	"dendroreduce/internal/morphology"
)

// maxLocation is used for relocated positions that land past the distal
// end through rounding.
const maxLocation = 0.999999

// Relocate finds, for every segment of the measured subtree, the normalized
// position on the equivalent cylinder whose modelled transfer impedance
// matches the segment's measured one. Segments are visited in subtree
// pre-order; the returned order slice preserves it.
func Relocate(m *morphology.Morphology, meas *impedance.Measurement, cyl *Cylinder, maxIter int, tol float64, logger *log.Logger) (map[morphology.SegmentID]float64, []morphology.SegmentID, error) {
	sections, err := m.Subtree(meas.Root)
	if err != nil {
		return nil, nil, err
	}
	l := cyl.Params.ElectrotonicLength

	locs := make(map[morphology.SegmentID]float64)
	var order []morphology.SegmentID
	for _, sec := range sections {
		for _, seg := range m.Segments(sec.ID) {
			zx, err := meas.Transfer(sec.ID, seg.X)
			if err != nil {
				return nil, nil, fmt.Errorf("relocate segment %d: %w", seg.ID, err)
			}
			search := Bisect(zx, 0, l, cyl.Model, maxIter, tol, logger)
			locs[seg.ID] = normalize(search.X, l)
			order = append(order, seg.ID)
		}
	}
	return locs, order, nil
}

func normalize(x, l float64) float64 {
	loc := x / l
	switch {
	case loc > 1:
		return maxLocation
	case loc < 0:
		return 0
	}
	return loc
}

// MapToSegments maps each original segment to the segment of the new
// section covering its relocated position.
func MapToSegments(m *morphology.Morphology, target morphology.SectionID, locs map[morphology.SegmentID]float64, order []morphology.SegmentID) (map[morphology.SegmentID]morphology.SegmentID, error) {
	out := make(map[morphology.SegmentID]morphology.SegmentID, len(locs))
	for _, id := range order {
		seg, err := m.SegmentAt(target, locs[id])
		if err != nil {
			return nil, err
		}
		out[id] = seg.ID
	}
	return out, nil
}
