package domain

import (
	"fmt"
	"time"
)

// RunStatus represents the state of a reduction run
type RunStatus string

const (
	RunStatusApplied RunStatus = "applied" // Result written, may be undone
	RunStatusUndone  RunStatus = "undone"  // Original content restored
)

// RunConfig records the settings a run was made with
type RunConfig struct {
	Frequency     float64 `json:"frequency"`
	Strategy      string  `json:"strategy"`
	TotalSegments int     `json:"total_segments,omitempty"`
	MinFraction   float64 `json:"min_fraction,omitempty"`
	Missing       string  `json:"missing"`
	MaxIter       int     `json:"max_iter"`
	Tolerance     float64 `json:"tolerance"`
}

// ReducedSubtree summarizes one equivalent cylinder
type ReducedSubtree struct {
	Root               int      `json:"root"`
	Section            int      `json:"section"`
	Domain             string   `json:"domain"`
	Length             float64  `json:"length"`
	Diam               float64  `json:"diam"`
	ElectrotonicLength float64  `json:"electrotonic_length"`
	Nseg               int      `json:"nseg"`
	InputImpedance     float64  `json:"input_impedance"` // |Z0| in MΩ
	Converged          bool     `json:"converged"`
	Diagnostics        []string `json:"diagnostics,omitempty"`
}

// Run is one reduction of a model file
type Run struct {
	ID                string           `json:"id"`
	Model             string           `json:"model"`
	Output            string           `json:"output"`
	Fingerprint       string           `json:"fingerprint"`
	ResultFingerprint string           `json:"result_fingerprint"`
	Roots             []int            `json:"roots"`
	Config            RunConfig        `json:"config"`
	Subtrees          []ReducedSubtree `json:"subtrees,omitempty"`
	SegmentsBefore    int              `json:"segments_before"`
	SegmentsAfter     int              `json:"segments_after"`
	Status            RunStatus        `json:"status"`
	CreatedAt         time.Time        `json:"created_at"`
	UndoneAt          *time.Time       `json:"undone_at,omitempty"`
}

// NewRun creates an applied run for a model file
func NewRun(id, model string) *Run {
	return &Run{
		ID:        id,
		Model:     model,
		Output:    model,
		Status:    RunStatusApplied,
		CreatedAt: time.Now(),
	}
}

// IsUndoable returns true if the run's result is still in place
func (r *Run) IsUndoable() bool {
	return r.Status == RunStatusApplied
}

// MarkUndone records that the original content was restored
func (r *Run) MarkUndone(at time.Time) {
	r.Status = RunStatusUndone
	r.UndoneAt = &at
}

// Converged returns true if every subtree's searches converged
func (r *Run) Converged() bool {
	for _, s := range r.Subtrees {
		if !s.Converged {
			return false
		}
	}
	return true
}

// Summary returns a one-line description
func (r *Run) Summary() string {
	return fmt.Sprintf("%s %s: %d subtree(s), %d -> %d segments (%s)",
		r.ID, r.Model, len(r.Subtrees), r.SegmentsBefore, r.SegmentsAfter, r.Status)
}
