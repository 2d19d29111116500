package morphology

import (
	"errors"
	"strings"
	"testing"

	"dendroreduce/internal/biophys"
)

func TestAddSection(t *testing.T) {
	t.Run("already in a domain", func(t *testing.T) {
		m, buf := newTestMorphology(t)
		m.AddSection("basal", 2)

		if m.Section(2).Domain != "apic" {
			t.Errorf("section moved to %s", m.Section(2).Domain)
		}
		if m.Domain("basal") != nil {
			t.Error("domain created by rejected add")
		}
		if !strings.Contains(buf.String(), "already in domain apic") {
			t.Errorf("warning = %q", buf.String())
		}
	})

	t.Run("move between domains", func(t *testing.T) {
		m, buf := newTestMorphology(t)
		m.RemoveSection("apic", 2)
		m.AddSection("tuft_1", 2)

		sec := m.Section(2)
		if sec.Domain != "tuft_1" {
			t.Fatalf("Domain = %s, want tuft_1", sec.Domain)
		}
		d := m.Domain("tuft_1")
		if d.Color != DomainColors["tuft"] || d.TypeIdx != 4 {
			t.Errorf("tuft_1 colour=%s type=%d", d.Color, d.TypeIdx)
		}
		if m.Domain("apic").Contains(2) {
			t.Error("apic still lists section 2")
		}
		if buf.Len() != 0 {
			t.Errorf("unexpected warnings: %s", buf.String())
		}
		if err := m.Validate(); err != nil {
			t.Errorf("Validate() error = %v", err)
		}
	})
}

func TestRemoveSectionAbsent(t *testing.T) {
	m, buf := newTestMorphology(t)
	before := m.Domain("apic").Sections()

	m.RemoveSection("apic", 0)

	after := m.Domain("apic").Sections()
	if len(after) != len(before) {
		t.Fatalf("member list changed: %v -> %v", before, after)
	}
	for i := range before {
		if before[i] != after[i] {
			t.Fatalf("member list changed: %v -> %v", before, after)
		}
	}
	if !strings.Contains(buf.String(), "section 0 not in domain apic") {
		t.Errorf("warning = %q", buf.String())
	}
	if m.Section(0).Domain != "soma" {
		t.Error("soma lost its domain")
	}
}

func TestPruneDomains(t *testing.T) {
	m, _ := newTestMorphology(t)
	m.RemoveSection("soma", 0)
	m.AddSection("custom", 0)
	m.PruneDomains()

	if m.Domain("soma") != nil {
		t.Error("empty domain kept")
	}
	var names []string
	for _, d := range m.Domains() {
		names = append(names, d.Name)
	}
	if strings.Join(names, ",") != "apic,custom" {
		t.Errorf("Domains() = %v", names)
	}
}

func TestParams(t *testing.T) {
	m, _ := newTestMorphology(t)
	seg := m.Segments(1)[2]

	if err := m.SetParam(seg.ID, biophys.ParamGLeak, 3e-4); err != nil {
		t.Fatalf("SetParam() error = %v", err)
	}
	got, err := m.Param(seg.ID, biophys.ParamGLeak)
	if err != nil || got != 3e-4 {
		t.Errorf("Param() = %g, %v", got, err)
	}

	if err := m.SetParam(seg.ID, "ek", -90); !errors.Is(err, ErrUnknownParameter) {
		t.Errorf("SetParam(ek) error = %v, want ErrUnknownParameter", err)
	}
	if err := m.InsertMechanism(1, "k_ion"); err != nil {
		t.Fatalf("InsertMechanism() error = %v", err)
	}
	if v, err := m.Param(seg.ID, "ek"); err != nil || v != -77 {
		t.Errorf("Param(ek) = %g, %v, want default -77", v, err)
	}
	if err := m.InsertMechanism(1, "nope"); !errors.Is(err, biophys.ErrUnknownMechanism) {
		t.Errorf("InsertMechanism(nope) error = %v", err)
	}

	if err := m.SetSectionParam(1, biophys.ParamELeak, -80); err != nil {
		t.Fatalf("SetSectionParam() error = %v", err)
	}
	for _, s := range m.Segments(1) {
		if v, _ := m.Param(s.ID, biophys.ParamELeak); v != -80 {
			t.Errorf("segment %d e_Leak = %g", s.ID, v)
		}
	}
}

func TestSetNseg(t *testing.T) {
	m, _ := newTestMorphology(t)
	segs := m.Segments(1)
	for i, s := range segs {
		if err := m.SetParam(s.ID, biophys.ParamGLeak, float64(i+1)); err != nil {
			t.Fatal(err)
		}
	}

	if err := m.SetNseg(1, 6); err != nil {
		t.Fatalf("SetNseg() error = %v", err)
	}
	if m.Section(1).Nseg() != 6 {
		t.Fatalf("Nseg() = %d, want 6", m.Section(1).Nseg())
	}
	if m.Segment(segs[0].ID) != nil {
		t.Error("old segment still live")
	}
	want := []float64{1, 1, 2, 2, 3, 3}
	for i, s := range m.Segments(1) {
		if v, _ := m.Param(s.ID, biophys.ParamGLeak); v != want[i] {
			t.Errorf("segment %d g = %g, want %g", i, v, want[i])
		}
	}
	if err := m.SetNseg(1, 0); err == nil {
		t.Error("SetNseg(0) expected error")
	}
	if err := m.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestReplaceSubtree(t *testing.T) {
	m, buf := newTestMorphology(t)
	basal, err := m.NewSection(0, SectionSpec{Domain: "basal", Length: 40, Diam: 1})
	if err != nil {
		t.Fatalf("NewSection() error = %v", err)
	}

	id, err := m.ReplaceSubtree(1, SectionSpec{Domain: "reduced_1", Length: 300, Diam: 1.5, Nseg: 5})
	if err != nil {
		t.Fatalf("ReplaceSubtree() error = %v", err)
	}

	soma := m.Section(0)
	if len(soma.Children) != 2 || soma.Children[0] != id || soma.Children[1] != basal {
		t.Errorf("soma children = %v, want [%d %d]", soma.Children, id, basal)
	}
	for _, old := range []SectionID{1, 2, 3} {
		if m.Section(old) != nil {
			t.Errorf("section %d still live", old)
		}
	}
	if m.Domain("apic").Len() != 0 {
		t.Errorf("apic still has %v", m.Domain("apic").Sections())
	}
	if got := m.Domain("reduced_1").Sections(); len(got) != 1 || got[0] != id {
		t.Errorf("reduced_1 = %v", got)
	}
	if got := len(m.Sections()); got != 3 {
		t.Errorf("len(Sections()) = %d, want 3", got)
	}
	if buf.Len() != 0 {
		t.Errorf("unexpected warnings: %s", buf.String())
	}
	if err := m.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}

	if _, err := m.ReplaceSubtree(0, SectionSpec{Length: 1, Diam: 1}); err == nil {
		t.Error("replacing the root expected error")
	}
}
