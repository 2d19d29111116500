package codec

import (
	"fmt"

	"dendroreduce/internal/biophys"
	"dendroreduce/internal/morphology"
)

// ModelVersion is the current model file version
const ModelVersion = 1

// Model is the file representation of a complete morphology: geometry,
// passive properties, inserted mechanisms and per-segment values.
type Model struct {
	Version    int                 `yaml:"version" json:"version"`
	Mechanisms []biophys.Mechanism `yaml:"mechanisms,omitempty" json:"mechanisms,omitempty"`
	Domains    []ModelDomain       `yaml:"domains,omitempty" json:"domains,omitempty"`
	Sections   []ModelSection      `yaml:"sections" json:"sections"`
}

type ModelDomain struct {
	Name  string `yaml:"name" json:"name"`
	Color string `yaml:"color,omitempty" json:"color,omitempty"`
}

type ModelSection struct {
	ID         int                `yaml:"id" json:"id"`
	Parent     int                `yaml:"parent" json:"parent"`
	Domain     string             `yaml:"domain" json:"domain"`
	Length     float64            `yaml:"length" json:"length"`
	Diam       float64            `yaml:"diam" json:"diam"`
	Ra         float64            `yaml:"ra" json:"ra"`
	Cm         float64            `yaml:"cm" json:"cm"`
	Nseg       int                `yaml:"nseg" json:"nseg"`
	Mechanisms []string           `yaml:"mechanisms,omitempty" json:"mechanisms,omitempty"`
	Params     map[string]float64 `yaml:"params,omitempty" json:"params,omitempty"`
	Segments   []ModelSegment     `yaml:"segments,omitempty" json:"segments,omitempty"`
	Points     []morphology.Point `yaml:"points,omitempty" json:"points,omitempty"`
}

// ModelSegment holds the values of one segment. They override the section's
// uniform params.
type ModelSegment struct {
	X      float64            `yaml:"x" json:"x"`
	Params map[string]float64 `yaml:"params" json:"params"`
}

// FromMorphology captures m as a model. Sections are renumbered in
// pre-order; mechanisms missing from the default registry are embedded.
func FromMorphology(m *morphology.Morphology) *Model {
	model := &Model{Version: ModelVersion}
	builtins := biophys.DefaultRegistry()
	reg := m.Registry()

	keys := make(map[morphology.SectionID]int)
	embedded := make(map[string]bool)
	for i, sec := range m.Sections() {
		keys[sec.ID] = i
		parent := morphology.NoParent
		if !sec.IsRoot() {
			parent = keys[sec.Parent]
		}

		ms := ModelSection{
			ID:     i,
			Parent: parent,
			Domain: sec.Domain,
			Length: sec.Length,
			Diam:   sec.Diam,
			Ra:     sec.Ra,
			Cm:     sec.Cm,
			Nseg:   sec.Nseg(),
			Points: append([]morphology.Point(nil), sec.Points...),
		}
		for _, name := range sec.Mechanisms {
			if name == biophys.LeakMechanism {
				continue
			}
			ms.Mechanisms = append(ms.Mechanisms, name)
			if _, builtin := builtins.Get(name); builtin || embedded[name] {
				continue
			}
			if mech, ok := reg.Get(name); ok {
				model.Mechanisms = append(model.Mechanisms, *mech)
				embedded[name] = true
			}
		}
		for _, seg := range m.Segments(sec.ID) {
			ms.Segments = append(ms.Segments, ModelSegment{X: seg.X, Params: seg.Params()})
		}
		model.Sections = append(model.Sections, ms)
	}

	for _, d := range m.Domains() {
		if d.Color != morphology.DomainColor(d.Name) {
			model.Domains = append(model.Domains, ModelDomain{Name: d.Name, Color: d.Color})
		}
	}
	return model
}

// Build creates the morphology described by the model. Embedded mechanisms
// are registered on a copy of registry unless already known.
func (model *Model) Build(registry *biophys.Registry, opts ...morphology.Option) (*morphology.Morphology, error) {
	if model.Version > ModelVersion {
		return nil, fmt.Errorf("model version %d not supported (max %d)", model.Version, ModelVersion)
	}
	if registry == nil {
		registry = biophys.DefaultRegistry()
	}
	reg := registry.Clone()
	for _, mech := range model.Mechanisms {
		if _, known := reg.Get(mech.Name); known {
			continue
		}
		if err := reg.Register(mech); err != nil {
			return nil, fmt.Errorf("model mechanism %s: %w", mech.Name, err)
		}
	}

	specs := make([]morphology.SectionSpec, len(model.Sections))
	for i, ms := range model.Sections {
		specs[i] = morphology.SectionSpec{
			Key:        ms.ID,
			Parent:     ms.Parent,
			Domain:     ms.Domain,
			Points:     ms.Points,
			Length:     ms.Length,
			Diam:       ms.Diam,
			Ra:         ms.Ra,
			Cm:         ms.Cm,
			Nseg:       ms.Nseg,
			Mechanisms: ms.Mechanisms,
			Params:     ms.Params,
		}
	}
	m, err := morphology.Build(specs, reg, opts...)
	if err != nil {
		return nil, err
	}

	// Build creates sections in pre-order, which is also the order of
	// m.Sections(); match them back to their keys through the same walk.
	index := make(map[int]ModelSection, len(model.Sections))
	for _, ms := range model.Sections {
		index[ms.ID] = ms
	}
	order, err := modelPreOrder(model.Sections)
	if err != nil {
		return nil, err
	}
	for i, sec := range m.Sections() {
		ms := index[order[i]]
		if len(ms.Segments) == 0 {
			continue
		}
		segs := m.Segments(sec.ID)
		if len(ms.Segments) != len(segs) {
			return nil, fmt.Errorf("section %d: %d segment entries for nseg %d", ms.ID, len(ms.Segments), len(segs))
		}
		for j, entry := range ms.Segments {
			for name, value := range entry.Params {
				if err := m.SetParam(segs[j].ID, name, value); err != nil {
					return nil, fmt.Errorf("section %d segment %d: %w", ms.ID, j, err)
				}
			}
		}
	}

	for _, d := range model.Domains {
		if d.Color == "" || m.Domain(d.Name) == nil {
			continue
		}
		if err := m.SetDomainColor(d.Name, d.Color); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func modelPreOrder(sections []ModelSection) ([]int, error) {
	records := make([]morphology.Record[struct{}], len(sections))
	for i, ms := range sections {
		records[i] = morphology.Record[struct{}]{ID: ms.ID, Parent: ms.Parent}
	}
	tree, err := morphology.BuildTree(records)
	if err != nil {
		return nil, err
	}
	nodes := tree.PreOrder()
	out := make([]int, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID
	}
	return out, nil
}
