// Package repo provides generic query and mutation helpers over a
// types.Session: sorted fetches seeded with a kind's default predicate and
// ordering, find-or-create, and save-or-rollback wrappers that run on the
// session's serial queue.
//
// Helpers are generic over the concrete entity pointer type, e.g.
//
//	sections, err := repo.Fetch[*types.Section](s, nil)
//
// A store that hands back a record of a different kind than requested, or
// a single-result fetch that matches more than one record, panics with a
// types.InvariantViolation.
package repo

import (
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/mesh-intelligence/sectional/pkg/types"
)

var (
	logMu  sync.RWMutex
	logger = log.New(io.Discard, "", 0)
)

// SetLogger sets where SaveOrRollback reports swallowed failures.
func SetLogger(l *log.Logger) {
	if l == nil {
		l = log.New(io.Discard, "", 0)
	}
	logMu.Lock()
	logger = l
	logMu.Unlock()
}

func logf(format string, args ...any) {
	logMu.RLock()
	l := logger
	logMu.RUnlock()
	l.Printf(format, args...)
}

// prototype returns T's typed nil, usable for entity metadata.
func prototype[T types.Entity]() types.Entity {
	var zero T
	return zero
}

func cast[T types.Entity](r types.Entity) T {
	t, ok := r.(T)
	if !ok {
		var zero T
		panic(types.InvariantViolation{Reason: fmt.Sprintf("store returned %T, want %T", r, zero)})
	}
	return t
}

// NewRequest returns a fetch request for T carrying T's default predicate
// and sort descriptors.
func NewRequest[T types.Entity]() *types.FetchRequest {
	proto := prototype[T]()
	req := types.NewFetchRequest(proto.EntityName())
	req.Predicate = proto.DefaultPredicate()
	req.SortDescriptors = proto.DefaultSort()
	return req
}

// Predicate returns the conjunction of T's default predicate and extra.
func Predicate[T types.Entity](extra types.Predicate) types.Predicate {
	return types.And(prototype[T]().DefaultPredicate(), extra)
}

// Fetch runs a request for T. configure may narrow, re-sort or limit the
// request; it may be nil. Store errors wrap types.ErrQuery.
func Fetch[T types.Entity](s types.Session, configure func(*types.FetchRequest)) ([]T, error) {
	req := NewRequest[T]()
	if configure != nil {
		configure(req)
	}
	records, err := s.Execute(*req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrQuery, err)
	}
	out := make([]T, len(records))
	for i, r := range records {
		out[i] = cast[T](r)
	}
	return out, nil
}

// Count returns how many records Fetch would return for the same request.
func Count[T types.Entity](s types.Session, configure func(*types.FetchRequest)) (int, error) {
	req := NewRequest[T]()
	if configure != nil {
		configure(req)
	}
	n, err := s.Count(*req)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", types.ErrQuery, err)
	}
	return n, nil
}

// FetchSingle returns the one record the request matches, or the zero T
// when nothing matches. More than one match panics.
func FetchSingle[T types.Entity](s types.Session, configure func(*types.FetchRequest)) (T, error) {
	var zero T
	results, err := Fetch[T](s, func(req *types.FetchRequest) {
		if configure != nil {
			configure(req)
		}
		req.FetchLimit = 2
	})
	if err != nil {
		return zero, err
	}
	switch len(results) {
	case 0:
		return zero, nil
	case 1:
		return results[0], nil
	}
	panic(types.InvariantViolation{
		Reason: fmt.Sprintf("expected at most one %s, found %d", prototype[T]().EntityName(), len(results)),
	})
}

// FindOrFetch returns a record of kind T matching the predicate. Loaded
// records resident in the session, including uncommitted ones, are checked
// first; then storage is queried for at most one match. The zero T means
// nothing matched.
func FindOrFetch[T types.Entity](s types.Session, matching types.Predicate) (T, error) {
	t, _, err := findOrFetch[T](s, matching)
	return t, err
}

func findOrFetch[T types.Entity](s types.Session, matching types.Predicate) (T, bool, error) {
	var zero T
	name := prototype[T]().EntityName()
	pred := Predicate[T](matching)

	for _, r := range s.Registered() {
		if r.Fault || r.Record.EntityName() != name {
			continue
		}
		if pred.Evaluate(r.Record) {
			return cast[T](r.Record), true, nil
		}
	}

	results, err := Fetch[T](s, func(req *types.FetchRequest) {
		req.Predicate = pred
		req.FetchLimit = 1
	})
	if err != nil {
		return zero, false, err
	}
	if len(results) == 0 {
		return zero, false, nil
	}
	return results[0], true, nil
}

// FindOrCreate returns the record matching the predicate, inserting a new
// one and passing it to configure when none exists. Repeated calls in one
// session return the same instance and do not call configure again.
func FindOrCreate[T types.Entity](s types.Session, matching types.Predicate, configure func(T)) (T, error) {
	found, ok, err := findOrFetch[T](s, matching)
	if err != nil || ok {
		return found, err
	}

	rec, err := s.Insert(prototype[T]().EntityName())
	if err != nil {
		var zero T
		return zero, fmt.Errorf("inserting %s: %w", prototype[T]().EntityName(), err)
	}
	t := cast[T](rec)
	if configure != nil {
		configure(t)
	}
	return t, nil
}

// DeleteAll marks every record for deletion.
func DeleteAll[T types.Entity](s types.Session, records []T) error {
	for _, r := range records {
		if err := s.Delete(r); err != nil {
			return fmt.Errorf("deleting %s %s: %w", r.EntityName(), r.RecordID(), err)
		}
	}
	return nil
}
