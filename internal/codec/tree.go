package codec

import (
	"fmt"
	"io"

	"github.com/ddddddO/gtree"

	"dendroreduce/internal/morphology"
)

// TreeExporter prints the section hierarchy as an indented tree. It is
// export only.
type TreeExporter struct {
	// Segments adds each section's segment count
	Segments bool
}

// NewTreeExporter creates a new tree printer
func NewTreeExporter() *TreeExporter {
	return &TreeExporter{Segments: true}
}

// Format returns the codec format identifier
func (c *TreeExporter) Format() string {
	return "tree"
}

// Export writes the section tree of m
func (c *TreeExporter) Export(m *morphology.Morphology, w io.Writer) error {
	rootID := m.Root()
	if rootID == morphology.NoSection {
		return fmt.Errorf("export tree: morphology is empty")
	}

	root := gtree.NewRoot(c.label(m.Section(rootID)))
	nodes := map[morphology.SectionID]*gtree.Node{rootID: root}
	for _, sec := range m.Sections() {
		if sec.IsRoot() {
			continue
		}
		nodes[sec.ID] = nodes[sec.Parent].Add(c.label(sec))
	}

	if err := gtree.OutputFromRoot(w, root); err != nil {
		return fmt.Errorf("export tree: %w", err)
	}
	return nil
}

// label includes the section id so siblings never share a name
func (c *TreeExporter) label(sec *morphology.Section) string {
	label := fmt.Sprintf("%s[%d] %.4g x %.4g um", sec.Domain, sec.ID, sec.Length, sec.Diam)
	if c.Segments {
		label += fmt.Sprintf(" (nseg %d)", sec.Nseg())
	}
	return label
}
