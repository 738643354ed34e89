package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/mesh-intelligence/sectional/pkg/types"
)

var _ types.Session = (*Session)(nil)

type entryState int

const (
	stateClean entryState = iota
	stateInserted
	stateDeleted
)

type recordKey struct {
	entity string
	id     string
}

func keyOf(r types.Entity) recordKey {
	return recordKey{entity: r.EntityName(), id: r.RecordID()}
}

// entry is one identity-map slot. committed holds the column values as last
// read from or written to storage; it is nil for inserted records and faults.
type entry struct {
	record    types.Entity
	committed map[string]any
	fault     bool
	state     entryState
	seq       uint64
}

func (e *entry) changedFields() []string {
	if e.fault || e.state == stateInserted {
		return nil
	}
	return types.ChangedFields(e.record.Fields(), e.committed)
}

func (e *entry) dirty() bool { return len(e.changedFields()) > 0 }

func (e *entry) pending() bool { return e.state != stateClean || e.dirty() }

// Session is a SQLite-backed unit of work. All record state lives in an
// identity map so a given row is represented by one instance per session.
type Session struct {
	backend *Backend
	queue   *serialQueue

	mu        sync.Mutex
	closed    bool
	entries   map[recordKey]*entry
	seq       uint64
	observers map[uint64]types.ObserverFunc
	nextObs   uint64
}

func newSession(b *Backend) *Session {
	return &Session{
		backend:   b,
		queue:     newSerialQueue(),
		entries:   make(map[recordKey]*entry),
		observers: make(map[uint64]types.ObserverFunc),
	}
}

func (s *Session) prototype(name string) (types.Entity, error) {
	proto, ok := s.backend.model.Entity(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrUnknownEntity, name)
	}
	return proto, nil
}

func (s *Session) register(e *entry) {
	s.seq++
	e.seq = s.seq
	s.entries[keyOf(e.record)] = e
}

// entryFor returns the slot holding exactly this instance.
func (s *Session) entryFor(record types.Entity) (*entry, error) {
	if record == nil {
		return nil, types.ErrNotRegistered
	}
	e, ok := s.entries[keyOf(record)]
	if !ok || e.record != record {
		return nil, fmt.Errorf("%w: %s %s", types.ErrNotRegistered, record.EntityName(), record.RecordID())
	}
	return e, nil
}

// sortedEntries returns every slot in registration order.
func (s *Session) sortedEntries() []*entry {
	out := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// Insert registers a new record with a fresh UUID v7.
func (s *Session) Insert(entity string) (types.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, types.ErrSessionClosed
	}
	proto, err := s.prototype(entity)
	if err != nil {
		return nil, err
	}
	rec := proto.New(generateUUID())
	s.register(&entry{record: rec, state: stateInserted})
	return rec, nil
}

// Delete marks record for deletion at the next Save.
func (s *Session) Delete(record types.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return types.ErrSessionClosed
	}
	e, err := s.entryFor(record)
	if err != nil {
		return err
	}
	if e.state == stateInserted {
		delete(s.entries, keyOf(record))
		return nil
	}
	e.state = stateDeleted
	return nil
}

// Object returns the resident instance for id or registers a fault for it.
func (s *Session) Object(entity, id string) (types.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, types.ErrSessionClosed
	}
	return s.objectLocked(entity, id)
}

func (s *Session) objectLocked(entity, id string) (types.Entity, error) {
	proto, err := s.prototype(entity)
	if err != nil {
		return nil, err
	}
	if e, ok := s.entries[recordKey{entity: entity, id: id}]; ok {
		return e.record, nil
	}
	rec := proto.New(id)
	s.register(&entry{record: rec, fault: true})
	return rec, nil
}

// Fulfill loads a fault's fields from storage.
func (s *Session) Fulfill(record types.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return types.ErrSessionClosed
	}
	e, err := s.entryFor(record)
	if err != nil {
		return err
	}
	if !e.fault {
		return nil
	}
	return s.loadLocked(e)
}

func (s *Session) loadLocked(e *entry) error {
	proto, err := s.prototype(e.record.EntityName())
	if err != nil {
		return err
	}
	values, err := s.readRow(proto, e.record.RecordID())
	if err != nil {
		return err
	}
	if err := types.ApplyFields(e.record, values, s.objectLocked); err != nil {
		return fmt.Errorf("hydrating %s %s: %w", proto.EntityName(), e.record.RecordID(), err)
	}
	e.committed = values
	e.fault = false
	return nil
}

// readRow loads the stored column values of one record.
func (s *Session) readRow(proto types.Entity, id string) (map[string]any, error) {
	var values map[string]any
	err := s.backend.withDB(func(db *sql.DB) error {
		query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?",
			selectColumns(proto), types.QuoteIdent(proto.EntityName()), types.QuoteIdent(types.FieldID))
		_, v, err := scanRecord(db.QueryRow(query, id), proto)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s %s", types.ErrNotFound, proto.EntityName(), id)
		}
		values = v
		return err
	})
	return values, err
}

// Registered lists resident records that are not marked for deletion.
func (s *Session) Registered() []types.Resident {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []types.Resident
	for _, e := range s.sortedEntries() {
		if e.state == stateDeleted {
			continue
		}
		out = append(out, types.Resident{Record: e.record, Fault: e.fault})
	}
	return out
}

// Committed returns a copy of the last committed values of record.
func (s *Session) Committed(record types.Entity) (map[string]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.entryFor(record)
	if err != nil || e.fault || e.state == stateInserted {
		return nil, false
	}
	return copyValues(e.committed), true
}

// HasChanges reports whether any record is inserted, deleted or modified.
func (s *Session) HasChanges() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.entries {
		if e.pending() {
			return true
		}
	}
	return false
}

// Rollback forgets inserted records, unmarks deletions and restores every
// modified field to its committed value.
func (s *Session) Rollback() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, e := range s.entries {
		if e.state == stateInserted {
			delete(s.entries, k)
			continue
		}
		e.state = stateClean
		if changed := e.changedFields(); len(changed) > 0 {
			s.restoreLocked(e, changed)
		}
	}
}

func (s *Session) restoreLocked(e *entry, fields []string) {
	values := make(map[string]any, len(fields))
	for _, f := range fields {
		values[f] = e.committed[f]
	}
	if err := types.ApplyFields(e.record, values, s.objectLocked); err != nil {
		s.backend.logger.Printf("restoring %s %s: %v", e.record.EntityName(), e.record.RecordID(), err)
	}
}

// Perform queues fn and returns immediately.
func (s *Session) Perform(fn func()) {
	if !s.queue.push(fn) {
		s.backend.logger.Printf("perform on closed session ignored")
	}
}

// PerformAndWait queues fn and waits for it. A panic in fn is re-raised on
// the calling goroutine.
func (s *Session) PerformAndWait(fn func()) {
	done := make(chan any, 1)
	ok := s.queue.push(func() {
		defer func() { done <- recover() }()
		fn()
	})
	if !ok {
		s.backend.logger.Printf("perform on closed session ignored")
		return
	}
	if p := <-done; p != nil {
		panic(p)
	}
}

// Observe registers fn for committed changes.
func (s *Session) Observe(fn types.ObserverFunc) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextObs++
	id := s.nextObs
	s.observers[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.observers, id)
	}
}

func (s *Session) notify(changes []types.Change) {
	s.mu.Lock()
	ids := make([]uint64, 0, len(s.observers))
	for id := range s.observers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]types.ObserverFunc, 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.observers[id])
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(changes)
	}
}

// Close drains queued work and releases the session. It must not be called
// from a block running on the session's own queue.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	s.backend.forgetSession(s)
	s.queue.close()

	s.mu.Lock()
	s.closed = true
	s.entries = make(map[recordKey]*entry)
	s.observers = make(map[uint64]types.ObserverFunc)
	s.mu.Unlock()
	return nil
}
