package morphology

import (
	"fmt"

	"dendroreduce/internal/biophys"
)

// Domain returns a domain by name or nil
func (m *Morphology) Domain(name string) *Domain {
	return m.domains[name]
}

// Domains returns every domain in creation order
func (m *Morphology) Domains() []*Domain {
	out := make([]*Domain, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.domains[name])
	}
	return out
}

// EnsureDomain returns the named domain, creating it with its default
// colour and type index when missing.
func (m *Morphology) EnsureDomain(name string) *Domain {
	if d, ok := m.domains[name]; ok {
		return d
	}
	d := &Domain{Name: name, TypeIdx: DomainTypeIdx(name), Color: DomainColor(name)}
	m.domains[name] = d
	m.order = append(m.order, name)
	return d
}

// SetDomainColor recolours a domain and every point of its sections
func (m *Morphology) SetDomainColor(name, color string) error {
	d, ok := m.domains[name]
	if !ok {
		return fmt.Errorf("domain %s not found", name)
	}
	d.Color = color
	for _, id := range d.sections {
		sec := m.sections[id]
		for i := range sec.Points {
			sec.Points[i].Color = color
		}
	}
	return nil
}

// AddSection puts a section into a domain, creating the domain if needed.
// A section that already belongs to a domain is left untouched and a warning
// is logged; it must be removed from its domain first.
func (m *Morphology) AddSection(domain string, id SectionID) {
	sec := m.Section(id)
	if sec == nil {
		m.logger.Printf("WARNING: cannot add section %d to domain %s: section not found", id, domain)
		return
	}
	if sec.Domain != "" {
		m.logger.Printf("WARNING: section %d already in domain %s, not adding to %s", id, sec.Domain, domain)
		return
	}

	d := m.EnsureDomain(domain)
	sec.Domain = d.Name
	for i := range sec.Points {
		sec.Points[i].Domain = d.Name
		sec.Points[i].TypeIdx = d.TypeIdx
		sec.Points[i].Color = d.Color
	}
	d.sections = append(d.sections, id)
}

// RemoveSection takes a section out of a domain and clears its domain tag.
// Removing a section that is not a member logs a warning and does nothing.
func (m *Morphology) RemoveSection(domain string, id SectionID) {
	d, ok := m.domains[domain]
	if !ok {
		m.logger.Printf("WARNING: section %d not in domain %s: no such domain", id, domain)
		return
	}
	idx := d.indexOf(id)
	if idx < 0 {
		m.logger.Printf("WARNING: section %d not in domain %s", id, domain)
		return
	}

	d.sections = append(d.sections[:idx], d.sections[idx+1:]...)
	if sec := m.Section(id); sec != nil {
		sec.Domain = ""
		for i := range sec.Points {
			sec.Points[i].Domain = ""
			sec.Points[i].TypeIdx = 0
			sec.Points[i].Color = ""
		}
	}
}

// PruneDomains drops domains left without sections
func (m *Morphology) PruneDomains() {
	kept := m.order[:0]
	for _, name := range m.order {
		if m.domains[name].IsEmpty() {
			delete(m.domains, name)
			continue
		}
		kept = append(kept, name)
	}
	m.order = kept
}

// InsertMechanism inserts a registered mechanism into a section, setting
// its parameters to their defaults on every segment. Inserting twice is a
// no-op.
func (m *Morphology) InsertMechanism(id SectionID, name string) error {
	sec, err := m.section(id)
	if err != nil {
		return err
	}
	mech, ok := m.registry.Get(name)
	if !ok {
		return fmt.Errorf("insert into section %d: %w: %s", id, biophys.ErrUnknownMechanism, name)
	}
	if sec.HasMechanism(name) {
		return nil
	}
	sec.Mechanisms = append(sec.Mechanisms, name)
	for param, def := range mech.Params {
		m.setUniform(sec, param, def)
	}
	return nil
}

// Param returns a parameter value of a segment
func (m *Morphology) Param(id SegmentID, name string) (float64, error) {
	seg, err := m.segment(id)
	if err != nil {
		return 0, err
	}
	if err := m.checkParam(m.sections[seg.Section], name); err != nil {
		return 0, err
	}
	return seg.params[name], nil
}

// SetParam sets a parameter value on a segment. The parameter must belong
// to a mechanism inserted in the segment's section.
func (m *Morphology) SetParam(id SegmentID, name string, value float64) error {
	seg, err := m.segment(id)
	if err != nil {
		return err
	}
	if err := m.checkParam(m.sections[seg.Section], name); err != nil {
		return err
	}
	seg.params[name] = value
	return nil
}

// SetSectionParam sets a parameter to the same value on every segment
func (m *Morphology) SetSectionParam(id SectionID, name string, value float64) error {
	sec, err := m.section(id)
	if err != nil {
		return err
	}
	if err := m.checkParam(sec, name); err != nil {
		return err
	}
	m.setUniform(sec, name, value)
	return nil
}

func (m *Morphology) checkParam(sec *Section, name string) error {
	owner, ok := m.registry.Owner(name)
	if !ok || !sec.HasMechanism(owner) {
		return fmt.Errorf("%w: %s on section %d", ErrUnknownParameter, name, sec.ID)
	}
	return nil
}

func (m *Morphology) setUniform(sec *Section, name string, value float64) {
	for _, sid := range sec.Segments {
		m.segments[sid].params[name] = value
	}
}

// SetNseg re-discretizes a section into n segments. Each new segment takes
// the parameters of the old segment covering its midpoint.
func (m *Morphology) SetNseg(id SectionID, n int) error {
	sec, err := m.section(id)
	if err != nil {
		return err
	}
	if n < 1 {
		return fmt.Errorf("section %d: nseg must be positive, got %d", id, n)
	}
	if n == len(sec.Segments) {
		return nil
	}
	old := m.Segments(id)
	for _, seg := range old {
		m.segments[seg.ID] = nil
	}
	m.discretize(sec, n, old)
	return nil
}

// discretize replaces a section's segments with n fresh ones. Parameters
// are copied from the old segment covering each new midpoint, if any.
func (m *Morphology) discretize(sec *Section, n int, old []*Segment) {
	sec.Segments = make([]SegmentID, n)
	for i, x := range segmentCenters(n) {
		seg := &Segment{
			ID:      SegmentID(len(m.segments)),
			Section: sec.ID,
			X:       x,
			params:  make(map[string]float64),
		}
		if len(old) > 0 {
			for k, v := range old[segmentIndex(x, len(old))].params {
				seg.params[k] = v
			}
		}
		m.segments = append(m.segments, seg)
		sec.Segments[i] = seg.ID
	}
}

// RemoveSubtree deletes a section and all its descendants from the arena,
// their domains and their parent's child list. The root section cannot be
// removed this way.
func (m *Morphology) RemoveSubtree(root SectionID) error {
	sec, err := m.section(root)
	if err != nil {
		return err
	}
	if sec.IsRoot() {
		return fmt.Errorf("cannot remove the root section %d", root)
	}

	subtree, _ := m.Subtree(root)
	parent := m.sections[sec.Parent]
	parent.Children = removeID(parent.Children, root)

	for _, s := range subtree {
		if s.Domain != "" {
			m.RemoveSection(s.Domain, s.ID)
		}
		for _, sid := range s.Segments {
			m.segments[sid] = nil
		}
		m.sections[s.ID] = nil
	}
	return nil
}

// ReplaceSubtree swaps the subtree rooted at root for one new section that
// takes root's place among its parent's children.
func (m *Morphology) ReplaceSubtree(root SectionID, spec SectionSpec) (SectionID, error) {
	sec, err := m.section(root)
	if err != nil {
		return NoSection, err
	}
	if sec.IsRoot() {
		return NoSection, fmt.Errorf("cannot replace the root section %d", root)
	}
	parent := m.sections[sec.Parent]
	slot := indexOfID(parent.Children, root)

	id, err := m.NewSection(sec.Parent, spec)
	if err != nil {
		return NoSection, err
	}
	if err := m.RemoveSubtree(root); err != nil {
		return NoSection, err
	}

	// NewSection appended the new child; move it into the old slot.
	children := removeID(parent.Children, id)
	children = append(children[:slot], append([]SectionID{id}, children[slot:]...)...)
	parent.Children = children
	return id, nil
}

func indexOfID(ids []SectionID, id SectionID) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}

func removeID(ids []SectionID, id SectionID) []SectionID {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
