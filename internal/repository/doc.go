// Package repository defines the data access interfaces for dendroreduce.
//
// This package provides the repository abstraction layer for persisting
// reduction runs and the model snapshots that make them undoable. The
// actual implementation is in the sqlite subpackage.
//
// # Repository Interface
//
// The Repository interface defines all data access methods for runs and
// snapshots.
//
// # SQLite Implementation
//
// The sqlite implementation stores runs in a pure Go SQLite database with
// WAL mode. It handles:
//
// - JSON serialization of run settings and subtree summaries
// - Snapshot content with BLAKE2b fingerprints
// - Foreign key constraints and cascade deletes
//
// # Schema Migration
//
// The sqlite repository creates its schema on startup if it is missing.
//
// # Testing
//
// The sqlite repository is tested with in-memory databases.
package repository
