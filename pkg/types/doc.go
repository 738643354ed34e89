// Package types defines the record, predicate and session contracts shared by
// every sectional store, the Section/Item/Setting entities, configuration,
// and the standard error values.
//
// A store hands out Sessions. A Session is a serialized unit of work: records
// fetched or inserted through it are resident in its identity map, mutated in
// place by the caller, and written back all at once by Save or discarded by
// Rollback.
package types
