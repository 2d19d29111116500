package reduce

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"

	"dendroreduce/internal/morphology"
)

// MissingPolicy decides which new segments interpolation fills
type MissingPolicy string

const (
	// MissingUnset fills only segments no original segment mapped to
	MissingUnset MissingPolicy = "unset"
	// MissingZero also treats zero values as missing when some sibling
	// segment carries a non-zero value
	MissingZero MissingPolicy = "zero"
)

// ParamTable holds reducible parameter values per segment
type ParamTable map[morphology.SegmentID]map[string]float64

// Collect reads every reducible parameter of every segment in sections.
// It also returns the union of the sections' mechanisms in first-seen
// order.
func Collect(m *morphology.Morphology, sections []*morphology.Section) (ParamTable, []string, error) {
	table := make(ParamTable)
	seen := make(map[string]bool)
	var mechanisms []string

	for _, sec := range sections {
		for _, name := range sec.Mechanisms {
			if !seen[name] {
				seen[name] = true
				mechanisms = append(mechanisms, name)
			}
		}
		params := m.Registry().ReducibleParams(sec.Mechanisms)
		for _, seg := range m.Segments(sec.ID) {
			values := make(map[string]float64, len(params))
			for _, p := range params {
				v, err := m.Param(seg.ID, p)
				if err != nil {
					return nil, nil, fmt.Errorf("collect %s on segment %d: %w", p, seg.ID, err)
				}
				values[p] = v
			}
			table[seg.ID] = values
		}
	}
	return table, mechanisms, nil
}

// Group gathers original values by destination segment. Contributors are
// appended in the given segment order so averaging is reproducible.
func Group(table ParamTable, mapping map[morphology.SegmentID]morphology.SegmentID, order []morphology.SegmentID) map[morphology.SegmentID]map[string][]float64 {
	groups := make(map[morphology.SegmentID]map[string][]float64)
	for _, id := range order {
		dst, ok := mapping[id]
		if !ok {
			continue
		}
		g, ok := groups[dst]
		if !ok {
			g = make(map[string][]float64)
			groups[dst] = g
		}
		names := make([]string, 0, len(table[id]))
		for name := range table[id] {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			g[name] = append(g[name], table[id][name])
		}
	}
	return groups
}

// Average reduces each contributor list to its arithmetic mean
func Average(groups map[morphology.SegmentID]map[string][]float64) ParamTable {
	out := make(ParamTable, len(groups))
	for seg, params := range groups {
		means := make(map[string]float64, len(params))
		for name, values := range params {
			means[name] = stat.Mean(values, nil)
		}
		out[seg] = means
	}
	return out
}

// Interpolate fills missing entries of values by linear interpolation on
// positions xs (ascending) using the remaining entries as anchors. Entries
// before the first anchor or after the last take that anchor's value. set
// marks entries that received a value. It reports whether any anchor
// existed; without anchors values are returned unchanged.
func Interpolate(xs, values []float64, set []bool, policy MissingPolicy) ([]float64, bool) {
	out := append([]float64(nil), values...)

	nonZero := false
	for i, v := range values {
		if set[i] && v != 0 {
			nonZero = true
			break
		}
	}
	missing := func(i int) bool {
		if !set[i] {
			return true
		}
		return policy == MissingZero && nonZero && values[i] == 0
	}

	var ax, ay []float64
	for i := range values {
		if !missing(i) {
			ax = append(ax, xs[i])
			ay = append(ay, values[i])
		}
	}
	if len(ax) == 0 {
		return out, false
	}

	for i := range out {
		if missing(i) {
			out[i] = interp(xs[i], ax, ay)
		}
	}
	return out, true
}

// interp evaluates the piecewise-linear function through (ax, ay) at x,
// holding the boundary values outside [ax[0], ax[n-1]].
func interp(x float64, ax, ay []float64) float64 {
	n := len(ax)
	if x <= ax[0] {
		return ay[0]
	}
	if x >= ax[n-1] {
		return ay[n-1]
	}
	j := sort.SearchFloat64s(ax, x)
	if ax[j] == x {
		return ay[j]
	}
	x0, x1 := ax[j-1], ax[j]
	t := (x - x0) / (x1 - x0)
	return ay[j-1] + t*(ay[j]-ay[j-1])
}
