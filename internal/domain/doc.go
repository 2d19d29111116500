// Package domain defines the records dendroreduce keeps about reductions.
//
// A Run describes one reduction request: which model file was reduced, the
// subtree roots, the settings used and a summary of every equivalent
// cylinder it produced. Each run owns two snapshots of the model file, the
// content before reduction and the content written back, so a run can be
// undone later.
//
// Files are identified by content fingerprints. Undo refuses to restore a
// file whose current content no longer matches the run's result.
//
// # Design Principles
//
// - No database or external dependencies
// - Morphologies themselves are not stored as objects, only as file content
package domain
