package types

import "context"

// ChangeType classifies a committed change.
type ChangeType int

// Change types. Move is only produced by views that track positions.
const (
	ChangeInsert ChangeType = iota + 1
	ChangeDelete
	ChangeUpdate
	ChangeMove
)

func (c ChangeType) String() string {
	switch c {
	case ChangeInsert:
		return "insert"
	case ChangeDelete:
		return "delete"
	case ChangeUpdate:
		return "update"
	case ChangeMove:
		return "move"
	}
	return "unknown"
}

// Change records one committed insert, update or delete.
type Change struct {
	Type   ChangeType
	Entity string
	ID     string
	Fields []string // changed columns, for updates
}

// ObserverFunc receives the changes of one commit, in the order they were
// written. It runs after the store lock is released.
type ObserverFunc func(changes []Change)

// Session is a serialized unit of work over a store. Records fetched or
// inserted through a Session belong to it and must only be mutated by code
// running on its behalf.
type Session interface {
	// Insert registers a new, empty record of the named entity. The record
	// is written on the next Save.
	Insert(entity string) (Entity, error)

	// Delete marks a record for deletion. Deleting a record inserted in this
	// session simply forgets it.
	Delete(record Entity) error

	// Execute runs a fetch, merging this session's pending changes into the
	// stored results.
	Execute(req FetchRequest) ([]Entity, error)

	// Count returns how many records Execute would return.
	Count(req FetchRequest) (int, error)

	// Object returns the resident instance for id, registering a fault
	// placeholder when the record has not been loaded.
	Object(entity, id string) (Entity, error)

	// Fulfill loads the fields of a fault. It is a no-op for loaded records.
	Fulfill(record Entity) error

	// Registered lists resident records in registration order.
	Registered() []Resident

	// Committed returns the last committed column values of record. It
	// reports false for records inserted since the last Save.
	Committed(record Entity) (map[string]any, bool)

	// HasChanges reports whether Save has anything to write.
	HasChanges() bool

	// Save writes all pending changes atomically.
	Save() error

	// Rollback discards every uncommitted change in the session.
	Rollback()

	// Perform queues fn on the session's serial queue and returns at once.
	Perform(fn func())

	// PerformAndWait queues fn and blocks until it has run. It must not be
	// called from a block already running on the same session.
	PerformAndWait(fn func())

	// Observe registers fn for every successful Save of this session and
	// for changes merged in from sibling sessions.
	Observe(fn ObserverFunc) (cancel func())

	// Close drains the queue and releases the session.
	Close() error
}

// Store opens sessions over one backing storage.
type Store interface {
	// Attach opens the storage described by config, bounded by ctx and
	// config.OpenTimeout.
	Attach(ctx context.Context, config Config) error

	// Detach closes every session and releases the storage. Idempotent.
	Detach() error

	// NewSession returns an independent unit of work.
	NewSession() (Session, error)
}
