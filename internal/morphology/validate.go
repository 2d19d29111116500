package morphology

import (
	"errors"
	"fmt"
)

// Validate checks the arena invariants: a single root, acyclic parent
// links consistent with child lists, every live section in exactly one
// domain whose member list agrees with the section's tag, and every segment
// owned by its section.
func (m *Morphology) Validate() error {
	var errs []error

	if m.root == NoSection {
		return ErrNoRoot
	}

	live := 0
	for id, sec := range m.sections {
		if sec == nil {
			continue
		}
		live++
		if sec.ID != SectionID(id) {
			errs = append(errs, fmt.Errorf("section at slot %d has id %d", id, sec.ID))
		}
		if sec.Parent == NoSection && sec.ID != m.root {
			errs = append(errs, fmt.Errorf("%w: section %d has no parent", ErrMultipleRoots, sec.ID))
		}
		if sec.Parent != NoSection {
			parent := m.Section(sec.Parent)
			if parent == nil {
				errs = append(errs, fmt.Errorf("%w: section %d references %d", ErrMissingParent, sec.ID, sec.Parent))
			} else if indexOfID(parent.Children, sec.ID) < 0 {
				errs = append(errs, fmt.Errorf("section %d missing from children of %d", sec.ID, sec.Parent))
			}
		}
		for _, segID := range sec.Segments {
			seg := m.Segment(segID)
			if seg == nil || seg.Section != sec.ID {
				errs = append(errs, fmt.Errorf("%w: %d on section %d", ErrSegmentNotFound, segID, sec.ID))
			}
		}
		if sec.Domain == "" {
			errs = append(errs, fmt.Errorf("section %d belongs to no domain", sec.ID))
		}
	}

	if reached := len(m.Sections()); reached != live {
		errs = append(errs, fmt.Errorf("%w: %d of %d sections unreachable from root", ErrCycle, live-reached, live))
	}

	membership := make(map[SectionID]string)
	for _, d := range m.Domains() {
		for _, id := range d.sections {
			sec := m.Section(id)
			if sec == nil {
				errs = append(errs, fmt.Errorf("domain %s lists removed section %d", d.Name, id))
				continue
			}
			if other, dup := membership[id]; dup {
				errs = append(errs, fmt.Errorf("section %d in domains %s and %s", id, other, d.Name))
			}
			membership[id] = d.Name
			if sec.Domain != d.Name {
				errs = append(errs, fmt.Errorf("section %d tagged %q but listed in domain %s", id, sec.Domain, d.Name))
			}
		}
	}

	return errors.Join(errs...)
}
