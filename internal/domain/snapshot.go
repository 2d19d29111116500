package domain

import "time"

// SnapshotKind distinguishes the two snapshots of a run
type SnapshotKind string

const (
	SnapshotBefore SnapshotKind = "before"
	SnapshotAfter  SnapshotKind = "after"
)

// Snapshot is the full content of a model file at one point of a run
type Snapshot struct {
	RunID       string       `json:"run_id"`
	Kind        SnapshotKind `json:"kind"`
	Format      string       `json:"format"`
	Data        []byte       `json:"-"`
	Fingerprint string       `json:"fingerprint"`
	CreatedAt   time.Time    `json:"created_at"`
}

// NewSnapshot creates a snapshot of data in the given format
func NewSnapshot(runID string, kind SnapshotKind, format string, data []byte) *Snapshot {
	return &Snapshot{
		RunID:     runID,
		Kind:      kind,
		Format:    format,
		Data:      data,
		CreatedAt: time.Now(),
	}
}
