// Package morphology defines the neuron model data types used by the
// reduction engine.
//
// # Core Types
//
// Morphology is an arena: it owns every Section, Segment and Domain and
// hands out integer handles (SectionID, SegmentID). Sections link to their
// parent and children by handle and domains list member handles, so the
// Section/Domain/Segment graph has no pointer cycles.
//
// Section is a cable compartment with geometry (length, diameter, 3-D
// points) and passive cable parameters. Segment is a discretization point
// at a normalized position x on a section and carries named parameter values
// for the mechanisms inserted in its section.
//
// Domain groups sections under a name such as "soma", "dend" or "reduced_4".
// Every section belongs to exactly one domain; adding a section that already
// has one, or removing one that is absent, logs a warning and does nothing.
//
// # Tree
//
// Tree is a generic ordered rooted tree built from (id, parent, value)
// records. It rejects duplicate ids, dangling parents, several roots and
// cycles, and is used to validate raw morphology input before sections are
// created.
//
// # Parameters
//
// Parameter access is checked: a name must be declared by a mechanism of the
// biophys registry that is inserted in the segment's section, otherwise
// ErrUnknownParameter is returned.
package morphology
