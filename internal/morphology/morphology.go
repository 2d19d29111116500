package morphology

import (
	"errors"
	"fmt"
	"log"

	"dendroreduce/internal/biophys"
)

var (
	ErrSectionNotFound  = errors.New("section not found")
	ErrSegmentNotFound  = errors.New("segment not found")
	ErrUnknownParameter = errors.New("unknown parameter")
	ErrInvalidGeometry  = errors.New("invalid section geometry")
)

// SectionSpec describes a section to be created. Key and Parent are the
// caller's identifiers (for example SWC ids); the arena assigns its own
// handles. Ra and Cm must be positive; zero selects the default. A nil
// GLeak or ELeak keeps the Leak mechanism's default, so 0 mV is a valid
// reversal.
type SectionSpec struct {
	Key        int
	Parent     int
	Domain     string
	Points     []Point
	Length     float64
	Diam       float64
	Ra         float64
	Cm         float64
	GLeak      *float64
	ELeak      *float64
	Nseg       int
	Mechanisms []string
	Params     map[string]float64 // uniform initial values
}

// Morphology is the arena owning every section, segment and domain of one
// neuron model. It is not safe for concurrent use.
type Morphology struct {
	sections []*Section // indexed by SectionID, nil once removed
	segments []*Segment // indexed by SegmentID, nil once removed
	domains  map[string]*Domain
	order    []string // domain creation order
	root     SectionID
	registry *biophys.Registry
	logger   *log.Logger
}

// Option configures a Morphology
type Option func(*Morphology)

// WithLogger routes structural warnings to the given logger
func WithLogger(l *log.Logger) Option {
	return func(m *Morphology) {
		m.logger = l
	}
}

// New creates an empty morphology using the given mechanism registry.
// A nil registry means biophys.DefaultRegistry().
func New(registry *biophys.Registry, opts ...Option) *Morphology {
	if registry == nil {
		registry = biophys.DefaultRegistry()
	}
	m := &Morphology{
		domains:  make(map[string]*Domain),
		root:     NoSection,
		registry: registry,
		logger:   log.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Build creates a morphology from section specs. The specs form a tree
// through Key/Parent (NoParent marks the root); it is validated before any
// section is created.
func Build(specs []SectionSpec, registry *biophys.Registry, opts ...Option) (*Morphology, error) {
	records := make([]Record[SectionSpec], len(specs))
	for i, spec := range specs {
		records[i] = Record[SectionSpec]{ID: spec.Key, Parent: spec.Parent, Value: spec}
	}
	tree, err := BuildTree(records)
	if err != nil {
		return nil, fmt.Errorf("build section tree: %w", err)
	}

	m := New(registry, opts...)
	handles := make(map[int]SectionID, tree.Len())
	for _, node := range tree.PreOrder() {
		parent := NoSection
		if node.Parent != nil {
			parent = handles[node.Parent.ID]
		}
		id, err := m.NewSection(parent, node.Value)
		if err != nil {
			return nil, fmt.Errorf("section %d: %w", node.ID, err)
		}
		handles[node.ID] = id
	}
	return m, nil
}

// Registry returns the mechanism registry
func (m *Morphology) Registry() *biophys.Registry {
	return m.registry
}

// Logger returns the logger used for diagnostics
func (m *Morphology) Logger() *log.Logger {
	return m.logger
}

// Root returns the root section handle, NoSection when empty
func (m *Morphology) Root() SectionID {
	return m.root
}

// Section returns a live section or nil
func (m *Morphology) Section(id SectionID) *Section {
	if id < 0 || int(id) >= len(m.sections) {
		return nil
	}
	return m.sections[id]
}

// Segment returns a live segment or nil
func (m *Morphology) Segment(id SegmentID) *Segment {
	if id < 0 || int(id) >= len(m.segments) {
		return nil
	}
	return m.segments[id]
}

func (m *Morphology) section(id SectionID) (*Section, error) {
	sec := m.Section(id)
	if sec == nil {
		return nil, fmt.Errorf("%w: %d", ErrSectionNotFound, id)
	}
	return sec, nil
}

func (m *Morphology) segment(id SegmentID) (*Segment, error) {
	seg := m.Segment(id)
	if seg == nil {
		return nil, fmt.Errorf("%w: %d", ErrSegmentNotFound, id)
	}
	return seg, nil
}

// NewSection creates a section under parent (NoSection for the root), puts
// it in spec.Domain, inserts the Leak mechanism plus spec.Mechanisms and
// discretizes it into spec.Nseg segments (1 if unset).
func (m *Morphology) NewSection(parent SectionID, spec SectionSpec) (SectionID, error) {
	if parent == NoSection {
		if m.root != NoSection {
			return NoSection, fmt.Errorf("%w: root %d already set", ErrMultipleRoots, m.root)
		}
	} else if _, err := m.section(parent); err != nil {
		return NoSection, err
	}

	length, diam := spec.Length, spec.Diam
	if length == 0 {
		length = pointsLength(spec.Points)
	}
	if diam == 0 {
		diam = pointsDiameter(spec.Points)
	}
	if length <= 0 || diam <= 0 {
		return NoSection, fmt.Errorf("%w: length=%g diam=%g", ErrInvalidGeometry, length, diam)
	}
	if spec.Ra < 0 || spec.Cm < 0 {
		return NoSection, fmt.Errorf("%w: ra=%g cm=%g", ErrInvalidGeometry, spec.Ra, spec.Cm)
	}
	for _, name := range spec.Mechanisms {
		if _, ok := m.registry.Get(name); !ok {
			return NoSection, fmt.Errorf("%w: %s", biophys.ErrUnknownMechanism, name)
		}
	}

	sec := &Section{
		ID:     SectionID(len(m.sections)),
		Parent: parent,
		Points: append([]Point(nil), spec.Points...),
		Length: length,
		Diam:   diam,
		Ra:     orDefault(spec.Ra, 35.4),
		Cm:     orDefault(spec.Cm, 1),
	}
	m.sections = append(m.sections, sec)
	if parent == NoSection {
		m.root = sec.ID
	} else {
		p := m.sections[parent]
		p.Children = append(p.Children, sec.ID)
	}

	nseg := spec.Nseg
	if nseg < 1 {
		nseg = 1
	}
	m.discretize(sec, nseg, nil)

	mechanisms := append([]string{biophys.LeakMechanism}, spec.Mechanisms...)
	for _, name := range mechanisms {
		if err := m.InsertMechanism(sec.ID, name); err != nil {
			return NoSection, err
		}
	}
	if spec.GLeak != nil {
		m.setUniform(sec, biophys.ParamGLeak, *spec.GLeak)
	}
	if spec.ELeak != nil {
		m.setUniform(sec, biophys.ParamELeak, *spec.ELeak)
	}
	for name, value := range spec.Params {
		if err := m.checkParam(sec, name); err != nil {
			return NoSection, err
		}
		m.setUniform(sec, name, value)
	}

	domain := spec.Domain
	if domain == "" {
		domain = "undefined"
	}
	m.AddSection(domain, sec.ID)

	return sec.ID, nil
}

// Float returns a pointer to v, for the optional SectionSpec fields
func Float(v float64) *float64 {
	return &v
}

func orDefault(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}

// Sections returns every section in pre-order from the root
func (m *Morphology) Sections() []*Section {
	if m.root == NoSection {
		return nil
	}
	subtree, _ := m.Subtree(m.root)
	return subtree
}

// Subtree returns the sections rooted at root, inclusive, in pre-order
func (m *Morphology) Subtree(root SectionID) ([]*Section, error) {
	sec, err := m.section(root)
	if err != nil {
		return nil, err
	}
	var out []*Section
	stack := []*Section{sec}
	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out = append(out, s)
		for i := len(s.Children) - 1; i >= 0; i-- {
			stack = append(stack, m.sections[s.Children[i]])
		}
	}
	return out, nil
}

// Segments returns the segments of a section ordered by position
func (m *Morphology) Segments(id SectionID) []*Segment {
	sec := m.Section(id)
	if sec == nil {
		return nil
	}
	out := make([]*Segment, len(sec.Segments))
	for i, sid := range sec.Segments {
		out[i] = m.segments[sid]
	}
	return out
}

// SegmentAt returns the segment of a section covering normalized position x
func (m *Morphology) SegmentAt(id SectionID, x float64) (*Segment, error) {
	sec, err := m.section(id)
	if err != nil {
		return nil, err
	}
	if x < 0 || x > 1 {
		return nil, fmt.Errorf("position %g outside [0, 1]", x)
	}
	return m.segments[sec.Segments[segmentIndex(x, len(sec.Segments))]], nil
}

// SegmentCount returns the total number of segments in the given sections
func (m *Morphology) SegmentCount(sections []*Section) int {
	n := 0
	for _, sec := range sections {
		n += len(sec.Segments)
	}
	return n
}

// Leak returns the leak conductance (S/cm²) and reversal (mV) of a section,
// read from its middle segment.
func (m *Morphology) Leak(id SectionID) (g, e float64, err error) {
	seg, err := m.SegmentAt(id, 0.5)
	if err != nil {
		return 0, 0, err
	}
	return seg.params[biophys.ParamGLeak], seg.params[biophys.ParamELeak], nil
}

// Clone returns a deep copy sharing only the registry and logger
func (m *Morphology) Clone() *Morphology {
	c := &Morphology{
		sections: make([]*Section, len(m.sections)),
		segments: make([]*Segment, len(m.segments)),
		domains:  make(map[string]*Domain, len(m.domains)),
		order:    append([]string(nil), m.order...),
		root:     m.root,
		registry: m.registry,
		logger:   m.logger,
	}
	for i, sec := range m.sections {
		if sec != nil {
			c.sections[i] = sec.clone()
		}
	}
	for i, seg := range m.segments {
		if seg != nil {
			c.segments[i] = seg.clone()
		}
	}
	for name, d := range m.domains {
		c.domains[name] = d.clone()
	}
	return c
}
