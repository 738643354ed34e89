package repo

import (
	"fmt"

	"github.com/mesh-intelligence/sectional/pkg/types"
)

// SaveOrRollback saves the session's pending changes. When the save fails
// every uncommitted change is discarded and false is returned; the failure
// is logged, never returned.
func SaveOrRollback(s types.Session) bool {
	if !s.HasChanges() {
		return true
	}
	if err := s.Save(); err != nil {
		logf("save failed, rolling back: %v", err)
		s.Rollback()
		return false
	}
	return true
}

// ApplyAndSave runs mutation followed by SaveOrRollback on the session's
// queue and waits for the result.
func ApplyAndSave(s types.Session, mutation func()) bool {
	var ok bool
	s.PerformAndWait(func() {
		mutation()
		ok = SaveOrRollback(s)
	})
	return ok
}

// PerformChanges is the asynchronous form of ApplyAndSave. done, if not
// nil, runs on the session's queue with the outcome.
func PerformChanges(s types.Session, mutation func(), done func(bool)) {
	s.Perform(func() {
		mutation()
		ok := SaveOrRollback(s)
		if done != nil {
			done(ok)
		}
	})
}

// Apply is ApplyAndSave for callers that need the reason for a failure.
// mutation may abort the batch by returning an error. Either way the
// session is rolled back and the error returned. A closed session runs
// nothing and returns types.ErrSessionClosed.
func Apply(s types.Session, mutation func() error) error {
	err := types.ErrSessionClosed
	s.PerformAndWait(func() {
		if err = mutation(); err != nil {
			s.Rollback()
			return
		}
		err = Commit(s)
	})
	return err
}

// Commit saves the session's pending changes, rolling every one of them
// back when the save fails. It must run on the session's queue.
func Commit(s types.Session) error {
	if !s.HasChanges() {
		return nil
	}
	if err := s.Save(); err != nil {
		s.Rollback()
		return err
	}
	return nil
}

// RevertChanges restores every modified field of record to its last
// committed value. Other records and unmodified fields are untouched. It is
// a no-op for records inserted since the last save.
func RevertChanges(s types.Session, record types.Entity) error {
	committed, ok := s.Committed(record)
	if !ok {
		return nil
	}
	changed := types.ChangedFields(record.Fields(), committed)
	if len(changed) == 0 {
		return nil
	}
	values := make(map[string]any, len(changed))
	for _, f := range changed {
		values[f] = committed[f]
	}
	if err := types.ApplyFields(record, values, s.Object); err != nil {
		return fmt.Errorf("reverting %s %s: %w", record.EntityName(), record.RecordID(), err)
	}
	return nil
}
