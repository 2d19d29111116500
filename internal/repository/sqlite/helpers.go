package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"dendroreduce/internal/domain"
)

// ============================================================================
// Null Type Conversion Helpers
// ============================================================================

// nullToTimePtr safely converts sql.NullTime to *time.Time
func nullToTimePtr(nt sql.NullTime) *time.Time {
	if nt.Valid {
		return &nt.Time
	}
	return nil
}

// timePtrToNull safely converts *time.Time to sql.NullTime
func timePtrToNull(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// ============================================================================
// JSON Marshaling Helpers
// ============================================================================

// unmarshalJSONField safely unmarshals JSON from nullable string into target
func unmarshalJSONField(ns sql.NullString, target interface{}) error {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(ns.String), target)
}

// marshalToNull marshals interface to nullable JSON string
// Returns empty NullString for nil values and empty slices
func marshalToNull(v interface{}) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}

	switch s := v.(type) {
	case []int:
		if len(s) == 0 {
			return sql.NullString{}, nil
		}
	case []domain.ReducedSubtree:
		if len(s) == 0 {
			return sql.NullString{}, nil
		}
	}

	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// ============================================================================
// Schema Evolution Guide
// ============================================================================
//
// To add a new column to runs table:
// 1. Add field to runRow struct (below)
// 2. Update scanArgs() - APPEND to end to match column order
// 3. Update runColumns constant - APPEND to end
// 4. Update toDomain() to map new field to domain.Run
// 5. Update runInsertArgs() and the INSERT in CreateRun
// 6. Add the column to migrate() in sqlite.go
// 7. Update relevant tests
//
// CRITICAL: Column order must match between:
// - runColumns constant
// - scanArgs() return slice
// - All SELECT queries using runColumns

// ============================================================================
// Run Row Scanner
// ============================================================================

// runRow holds all columns from a run query for scanning
type runRow struct {
	ID                string
	Model             string
	Output            string
	Fingerprint       string
	ResultFingerprint string
	RootsJSON         sql.NullString
	ConfigJSON        sql.NullString
	SubtreesJSON      sql.NullString
	SegmentsBefore    int
	SegmentsAfter     int
	Status            string
	CreatedAt         time.Time
	UndoneAt          sql.NullTime
}

// scanArgs returns pointers to all fields for sql.Scan()
// MUST match runColumns order exactly:
// id, model, output, fingerprint, result_fingerprint, roots, config,
// subtrees, segments_before, segments_after, status, created_at, undone_at
func (r *runRow) scanArgs() []interface{} {
	return []interface{}{
		&r.ID,                // 1
		&r.Model,             // 2
		&r.Output,            // 3
		&r.Fingerprint,       // 4
		&r.ResultFingerprint, // 5
		&r.RootsJSON,         // 6
		&r.ConfigJSON,        // 7
		&r.SubtreesJSON,      // 8
		&r.SegmentsBefore,    // 9
		&r.SegmentsAfter,     // 10
		&r.Status,            // 11
		&r.CreatedAt,         // 12
		&r.UndoneAt,          // 13
	}
}

// toDomain converts the scanned row to a domain.Run
func (r *runRow) toDomain() (*domain.Run, error) {
	run := &domain.Run{
		ID:                r.ID,
		Model:             r.Model,
		Output:            r.Output,
		Fingerprint:       r.Fingerprint,
		ResultFingerprint: r.ResultFingerprint,
		SegmentsBefore:    r.SegmentsBefore,
		SegmentsAfter:     r.SegmentsAfter,
		Status:            domain.RunStatus(r.Status),
		CreatedAt:         r.CreatedAt,
		UndoneAt:          nullToTimePtr(r.UndoneAt),
	}

	if err := unmarshalJSONField(r.RootsJSON, &run.Roots); err != nil {
		return nil, fmt.Errorf("unmarshal roots: %w", err)
	}
	if err := unmarshalJSONField(r.ConfigJSON, &run.Config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := unmarshalJSONField(r.SubtreesJSON, &run.Subtrees); err != nil {
		return nil, fmt.Errorf("unmarshal subtrees: %w", err)
	}

	return run, nil
}

// runColumns returns the SELECT column list for run queries
const runColumns = `id, model, output, fingerprint, result_fingerprint, roots, config,
	subtrees, segments_before, segments_after, status, created_at, undone_at`

// ============================================================================
// Run Write Helpers
// ============================================================================

// runInsertArgs prepares arguments for run INSERT
// Returns values in runColumns order
func runInsertArgs(run *domain.Run) ([]interface{}, error) {
	rootsJSON, err := marshalToNull(run.Roots)
	if err != nil {
		return nil, fmt.Errorf("marshal roots: %w", err)
	}

	configJSON, err := marshalToNull(run.Config)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}

	subtreesJSON, err := marshalToNull(run.Subtrees)
	if err != nil {
		return nil, fmt.Errorf("marshal subtrees: %w", err)
	}

	return []interface{}{
		run.ID,
		run.Model,
		run.Output,
		run.Fingerprint,
		run.ResultFingerprint,
		rootsJSON,
		configJSON,
		subtreesJSON,
		run.SegmentsBefore,
		run.SegmentsAfter,
		string(run.Status),
		run.CreatedAt,
		timePtrToNull(run.UndoneAt),
	}, nil
}
