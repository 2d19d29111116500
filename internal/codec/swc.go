package codec

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"dendroreduce/internal/biophys"
	"dendroreduce/internal/morphology"
)

// SWCCodec reads and writes SWC point files. SWC carries geometry only:
// imported sections get the codec's passive defaults and no mechanisms
// beyond the leak.
type SWCCodec struct {
	Nseg  int
	Ra    float64
	Cm    float64
	GLeak *float64 // nil keeps the Leak default
	ELeak *float64
}

// NewSWCCodec creates a new SWC codec with one segment per section
func NewSWCCodec() *SWCCodec {
	return &SWCCodec{Nseg: 1}
}

// Format returns the codec format identifier
func (c *SWCCodec) Format() string {
	return "swc"
}

type swcSample struct {
	Type  int
	Point morphology.Point
}

// Parse reads SWC samples and groups unbranched runs of equal type into
// sections. Duplicate ids, missing parents and cycles are rejected.
func (c *SWCCodec) Parse(r io.Reader, registry *biophys.Registry, opts ...morphology.Option) (*morphology.Morphology, error) {
	records, err := readSWC(r)
	if err != nil {
		return nil, err
	}
	tree, err := morphology.BuildTree(records)
	if err != nil {
		return nil, fmt.Errorf("failed to parse SWC: %w", err)
	}

	var specs []morphology.SectionSpec
	current := make(map[int]int) // sample id -> index into specs
	for _, node := range tree.PreOrder() {
		sample := node.Value
		parent := node.Parent
		continues := parent != nil && len(parent.Children) == 1 && parent.Value.Type == sample.Type
		if continues {
			idx := current[parent.ID]
			specs[idx].Points = append(specs[idx].Points, sample.Point)
			current[node.ID] = idx
			continue
		}

		spec := morphology.SectionSpec{
			Key:    node.ID,
			Parent: morphology.NoParent,
			Domain: morphology.DomainForType(sample.Type),
			Ra:     c.Ra,
			Cm:     c.Cm,
			GLeak:  c.GLeak,
			ELeak:  c.ELeak,
			Nseg:   c.Nseg,
		}
		if parent != nil {
			// children start where the parent section ends, except on the soma
			parentSpec := specs[current[parent.ID]]
			spec.Parent = parentSpec.Key
			if parent.Value.Type != 1 {
				spec.Points = append(spec.Points, parent.Value.Point)
			}
		}
		spec.Points = append(spec.Points, sample.Point)
		current[node.ID] = len(specs)
		specs = append(specs, spec)
	}

	for i := range specs {
		// a single sample describes a sphere; use the cylinder of equal area
		if len(specs[i].Points) == 1 {
			d := 2 * specs[i].Points[0].R
			specs[i].Length, specs[i].Diam = d, d
		}
	}

	return morphology.Build(specs, registry, opts...)
}

func readSWC(r io.Reader) ([]morphology.Record[swcSample], error) {
	var records []morphology.Record[swcSample]
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 7 {
			return nil, fmt.Errorf("swc line %d: want 7 fields, got %d", lineNo, len(fields))
		}
		var nums [7]float64
		for i := 0; i < 7; i++ {
			v, err := strconv.ParseFloat(fields[i], 64)
			if err != nil {
				return nil, fmt.Errorf("swc line %d field %d: %w", lineNo, i+1, err)
			}
			nums[i] = v
		}
		parent := int(nums[6])
		if parent < 0 {
			parent = morphology.NoParent
		}
		records = append(records, morphology.Record[swcSample]{
			ID:     int(nums[0]),
			Parent: parent,
			Value: swcSample{
				Type:  int(nums[1]),
				Point: morphology.Point{X: nums[2], Y: nums[3], Z: nums[4], R: nums[5]},
			},
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read swc: %w", err)
	}
	return records, nil
}

// Export writes one sample per section point. Sections without points are
// drawn as straight cylinders along x from their parent's end.
func (c *SWCCodec) Export(m *morphology.Morphology, w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "# id type x y z radius parent")

	next := 1
	last := make(map[morphology.SectionID]int) // section -> id of its final sample
	ends := make(map[morphology.SectionID]morphology.Point)
	for _, sec := range m.Sections() {
		parentID := -1
		var start morphology.Point
		if !sec.IsRoot() {
			parentID = last[sec.Parent]
			start = ends[sec.Parent]
		}

		points := sec.Points
		if len(points) == 0 {
			r := sec.Diam / 2
			points = []morphology.Point{
				{X: start.X, Y: start.Y, Z: start.Z, R: r},
				{X: start.X + sec.Length, Y: start.Y, Z: start.Z, R: r},
			}
		}
		typeIdx := morphology.DomainTypeIdx(sec.Domain)
		for i, p := range points {
			if i == 0 && !sec.IsRoot() && p.DistanceTo(start) == 0 {
				continue
			}
			fmt.Fprintf(bw, "%d %d %s %s %s %s %d\n", next, typeIdx,
				formatFloat(p.X), formatFloat(p.Y), formatFloat(p.Z), formatFloat(p.R), parentID)
			parentID = next
			next++
		}
		last[sec.ID] = parentID
		ends[sec.ID] = points[len(points)-1]
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to write SWC: %w", err)
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
