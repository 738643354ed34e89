package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mesh-intelligence/sectional/pkg/types"
)

// Execute runs req against storage and merges the session's pending
// changes: deleted records drop out, inserted and modified records are
// re-evaluated against the predicate, and the result is re-sorted before
// the limit and offset apply.
func (s *Session) Execute(req types.FetchRequest) ([]types.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, types.ErrSessionClosed
	}
	return s.executeLocked(req)
}

func (s *Session) executeLocked(req types.FetchRequest) ([]types.Entity, error) {
	proto, err := s.prototype(req.Entity)
	if err != nil {
		return nil, err
	}
	if err := validateRequest(proto, req); err != nil {
		return nil, err
	}

	ctx, span := s.backend.tracer.Start(context.Background(), "sqlite.Execute",
		trace.WithAttributes(attribute.String("sectional.entity", req.Entity)))
	defer span.End()

	pending := s.pendingFor(req.Entity)
	where, args := req.Predicate.SQL()
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY %s",
		selectColumns(proto), types.QuoteIdent(req.Entity), where, req.OrderBySQL())
	if !pending {
		query, args = withWindow(query, args, req.FetchLimit, req.FetchOffset)
	}

	type storedRow struct {
		id     string
		values map[string]any
	}
	var stored []storedRow
	err = s.backend.withDB(func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			id, values, err := scanRecord(rows, proto)
			if err != nil {
				return err
			}
			stored = append(stored, storedRow{id: id, values: values})
		}
		return rows.Err()
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return nil, fmt.Errorf("fetching %s: %w", req.Entity, err)
	}

	results := make([]types.Entity, 0, len(stored))
	seen := make(map[string]bool, len(stored))
	for _, row := range stored {
		e, err := s.materialize(proto, row.id, row.values, req.ReturnsObjectsAsFaults)
		if err != nil {
			return nil, err
		}
		seen[row.id] = true
		if pending && e.pending() {
			if e.state == stateDeleted || !req.Predicate.Evaluate(e.record) {
				continue
			}
		}
		results = append(results, e.record)
	}
	span.SetAttributes(attribute.Int("sectional.rows", len(stored)))

	if !pending {
		return results, nil
	}

	for _, e := range s.sortedEntries() {
		if e.record.EntityName() != req.Entity || seen[e.record.RecordID()] {
			continue
		}
		if e.fault || e.state == stateDeleted {
			continue
		}
		if e.state != stateInserted && !e.dirty() {
			continue
		}
		if req.Predicate.Evaluate(e.record) {
			results = append(results, e.record)
		}
	}
	sort.SliceStable(results, func(i, j int) bool { return req.Less(results[i], results[j]) })
	return window(results, req.FetchLimit, req.FetchOffset), nil
}

// materialize returns the slot for a fetched row, registering it when it is
// not resident. Resident loaded records keep their in-memory values.
func (s *Session) materialize(proto types.Entity, id string, values map[string]any, asFault bool) (*entry, error) {
	if e, ok := s.entries[recordKey{entity: proto.EntityName(), id: id}]; ok {
		if e.fault && !asFault {
			if err := types.ApplyFields(e.record, values, s.objectLocked); err != nil {
				return nil, fmt.Errorf("hydrating %s %s: %w", proto.EntityName(), id, err)
			}
			e.committed = values
			e.fault = false
		}
		return e, nil
	}

	e := &entry{record: proto.New(id)}
	if asFault {
		e.fault = true
	} else {
		if err := types.ApplyFields(e.record, values, s.objectLocked); err != nil {
			return nil, fmt.Errorf("hydrating %s %s: %w", proto.EntityName(), id, err)
		}
		e.committed = values
	}
	s.register(e)
	return e, nil
}

// Count returns the number of records Execute would return without
// registering any of them. Storage is counted in SQL; records with pending
// changes are then counted by their in-memory state instead.
func (s *Session) Count(req types.FetchRequest) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, types.ErrSessionClosed
	}
	proto, err := s.prototype(req.Entity)
	if err != nil {
		return 0, err
	}
	if err := validateRequest(proto, req); err != nil {
		return 0, err
	}

	where, args := req.Predicate.SQL()
	n, err := s.countRows(proto, where, args)
	if err != nil {
		return 0, err
	}

	if pending := s.pendingEntries(req.Entity); len(pending) > 0 {
		marks := make([]string, len(pending))
		scoped := append([]any(nil), args...)
		for i, e := range pending {
			marks[i] = "?"
			scoped = append(scoped, e.record.RecordID())
		}
		stored, err := s.countRows(proto, fmt.Sprintf("(%s) AND %s IN (%s)",
			where, types.QuoteIdent(types.FieldID), strings.Join(marks, ", ")), scoped)
		if err != nil {
			return 0, err
		}
		n -= stored
		for _, e := range pending {
			if e.state != stateDeleted && req.Predicate.Evaluate(e.record) {
				n++
			}
		}
	}

	n -= req.FetchOffset
	if n < 0 {
		n = 0
	}
	if req.FetchLimit > 0 && n > req.FetchLimit {
		n = req.FetchLimit
	}
	return n, nil
}

func (s *Session) countRows(proto types.Entity, where string, args []any) (int, error) {
	var n int
	err := s.backend.withDB(func(db *sql.DB) error {
		query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", types.QuoteIdent(proto.EntityName()), where)
		return db.QueryRow(query, args...).Scan(&n)
	})
	if err != nil {
		return 0, fmt.Errorf("counting %s: %w", proto.EntityName(), err)
	}
	return n, nil
}

// pendingEntries returns the slots of entity that are inserted,
// deleted or modified.
func (s *Session) pendingEntries(entity string) []*entry {
	var out []*entry
	for k, e := range s.entries {
		if k.entity == entity && e.pending() {
			out = append(out, e)
		}
	}
	return out
}

func (s *Session) pendingFor(entity string) bool {
	for k, e := range s.entries {
		if k.entity == entity && e.pending() {
			return true
		}
	}
	return false
}

func validateRequest(proto types.Entity, req types.FetchRequest) error {
	for _, f := range req.Fields() {
		if !types.HasField(proto, f) {
			return fmt.Errorf("%w: %s.%s", types.ErrUnknownField, req.Entity, f)
		}
	}
	if req.FetchLimit < 0 || req.FetchOffset < 0 {
		return fmt.Errorf("%w: negative fetch limit or offset", types.ErrInvalidData)
	}
	return nil
}

func withWindow(query string, args []any, limit, offset int) (string, []any) {
	switch {
	case limit > 0:
		return query + " LIMIT ? OFFSET ?", append(args, limit, offset)
	case offset > 0:
		return query + " LIMIT -1 OFFSET ?", append(args, offset)
	}
	return query, args
}

func window(records []types.Entity, limit, offset int) []types.Entity {
	if offset >= len(records) {
		return records[:0]
	}
	records = records[offset:]
	if limit > 0 && limit < len(records) {
		records = records[:limit]
	}
	return records
}
