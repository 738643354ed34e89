package sqlite

import (
	"errors"

	"github.com/mesh-intelligence/sectional/pkg/types"
)

// mergeChanges folds changes committed by a sibling session into this one
// and then notifies this session's observers. Deleted rows leave the
// identity map; updated resident records are reloaded, keeping any field
// this session has modified but not yet saved.
func (s *Session) mergeChanges(changes []types.Change) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	for _, c := range changes {
		k := recordKey{entity: c.Entity, id: c.ID}
		e, ok := s.entries[k]
		if !ok || e.fault {
			continue
		}
		switch c.Type {
		case types.ChangeDelete:
			delete(s.entries, k)
		case types.ChangeUpdate, types.ChangeInsert:
			s.refreshLocked(k, e)
		}
	}
	s.mu.Unlock()

	s.notify(changes)
}

func (s *Session) refreshLocked(k recordKey, e *entry) {
	proto, err := s.prototype(k.entity)
	if err != nil {
		return
	}
	values, err := s.readRow(proto, k.id)
	if errors.Is(err, types.ErrNotFound) {
		delete(s.entries, k)
		return
	}
	if err != nil {
		s.backend.logger.Printf("refreshing %s %s: %v", k.entity, k.id, err)
		return
	}

	incoming := copyValues(values)
	for _, f := range e.changedFields() {
		delete(incoming, f)
	}
	if err := types.ApplyFields(e.record, incoming, s.objectLocked); err != nil {
		s.backend.logger.Printf("refreshing %s %s: %v", k.entity, k.id, err)
		return
	}
	if e.state != stateInserted {
		e.committed = values
	}
}
