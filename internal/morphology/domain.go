package morphology

import "strings"

// Domain is a named, coloured group of sections. It holds section handles
// only; the morphology owns the sections themselves.
type Domain struct {
	Name     string
	TypeIdx  int
	Color    string
	sections []SectionID
}

// Sections returns the member section handles in insertion order
func (d *Domain) Sections() []SectionID {
	out := make([]SectionID, len(d.sections))
	copy(out, d.sections)
	return out
}

// Len returns the number of member sections
func (d *Domain) Len() int {
	return len(d.sections)
}

// Contains reports whether a section is a member
func (d *Domain) Contains(id SectionID) bool {
	return d.indexOf(id) >= 0
}

// IsEmpty reports whether the domain has no sections
func (d *Domain) IsEmpty() bool {
	return len(d.sections) == 0
}

func (d *Domain) indexOf(id SectionID) int {
	for i, s := range d.sections {
		if s == id {
			return i
		}
	}
	return -1
}

func (d *Domain) clone() *Domain {
	c := *d
	c.sections = d.Sections()
	return &c
}

// DomainColors maps base domain names to display colours
var DomainColors = map[string]string{
	"soma":        "#E69F00",
	"apic":        "#0072B2",
	"dend":        "#019E73",
	"basal":       "#31A354",
	"axon":        "#F0E442",
	"trunk":       "#56B4E9",
	"tuft":        "#A55194",
	"oblique":     "#8C564B",
	"perisomatic": "#D55E00",
	"custom":      "#D62728",
	"reduced":     "#E377C2",
	"undefined":   "#7F7F7F",
}

// DomainTypes maps base domain names to SWC structure type indices
var DomainTypes = map[string]int{
	"soma":  1,
	"axon":  2,
	"dend":  3,
	"basal": 3,
	"apic":  4,
	"trunk": 4,
	"tuft":  4,
}

// DomainColor returns the colour for a domain name. Suffixed names such as
// "reduced_3" use the colour of their base name.
func DomainColor(name string) string {
	if c, ok := DomainColors[baseDomain(name)]; ok {
		return c
	}
	return DomainColors["undefined"]
}

// DomainTypeIdx returns the SWC type index for a domain name, 0 if unknown
func DomainTypeIdx(name string) int {
	return DomainTypes[baseDomain(name)]
}

// DomainForType returns the conventional domain name for an SWC type index
func DomainForType(typeIdx int) string {
	switch typeIdx {
	case 1:
		return "soma"
	case 2:
		return "axon"
	case 3:
		return "dend"
	case 4:
		return "apic"
	default:
		return "custom"
	}
}

func baseDomain(name string) string {
	base, _, _ := strings.Cut(name, "_")
	return base
}
