// Package service implements the reduction workflow of dendroreduce.
//
// This package coordinates the command line, the morphology codecs, the
// reducer and the run repository, implementing request validation, run
// bookkeeping and event publishing.
//
// # Services
//
// ReductionService parses a model file, resolves the subtree roots of a
// request, reduces them and records the run together with snapshots of the
// file before and after. It can later undo a run by handing back the
// original content, provided the file still holds the run's result.
//
// # Event System
//
// The service publishes events via EventBus when a run completes, fails or
// is undone. The command line subscribes to them for verbose output.
//
// # Design Principles
//
// - Services own business logic and validation
// - Repository pattern for data access
// - File content in, file content out: the caller owns the filesystem
// - Context-aware for tracing and database calls
package service
