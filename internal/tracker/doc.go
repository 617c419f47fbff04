// Package tracker implements hierarchical task-state tracking: a tree of
// named task nodes, each carrying its own state, attempt counters, timing
// and result/error, used to track partial progress of a batch composed of
// ordered or independent sub-units.
//
// The package is pure in-memory bookkeeping. It performs no I/O and drives
// no execution: external callers invoke the state transitions, persist
// Snapshot output between attempts, and merge it back in through the
// Registry's Revive at the start of the next one. Definitions are the
// immutable blueprint layer; Tasks are the mutable runtime layer holding a
// non-owning reference back to their definition.
//
// All mutation is synchronous and unsynchronized: callers own a
// single-writer-per-instance contract. Freeze is the finality primitive;
// after it, every mutating call on the subtree is a silent no-op.
package tracker
