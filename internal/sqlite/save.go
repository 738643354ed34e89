package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/mesh-intelligence/sectional/pkg/types"
)

// write is one statement of a save plan.
type write struct {
	op     types.ChangeType
	proto  types.Entity
	entry  *entry
	fields []string
}

// Save writes every pending insert, update and delete in one transaction.
// On failure the transaction is rolled back, in-memory state is left as it
// was and the error wraps types.ErrPersistence.
func (s *Session) Save() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return types.ErrSessionClosed
	}
	changes, err := s.saveLocked()
	s.mu.Unlock()
	if err != nil || len(changes) == 0 {
		return err
	}

	s.notify(changes)
	s.backend.broadcast(s, changes)
	return nil
}

func (s *Session) saveLocked() ([]types.Change, error) {
	plan, err := s.planLocked()
	if err != nil {
		return nil, err
	}
	if len(plan) == 0 {
		return nil, nil
	}

	for _, w := range plan {
		if w.op == types.ChangeDelete {
			continue
		}
		if v, ok := w.entry.record.(types.Validator); ok {
			if err := v.Validate(); err != nil {
				return nil, fmt.Errorf("%w: validating %s %s: %w",
					types.ErrPersistence, w.proto.EntityName(), w.entry.record.RecordID(), err)
			}
		}
	}

	ctx, span := s.backend.tracer.Start(context.Background(), "sqlite.Save",
		trace.WithAttributes(attribute.Int("sectional.writes", len(plan))))
	defer span.End()

	err = s.backend.withDB(func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("beginning save: %w", err)
		}
		defer tx.Rollback()

		if _, err := tx.ExecContext(ctx, "PRAGMA defer_foreign_keys = ON"); err != nil {
			return fmt.Errorf("deferring foreign keys: %w", err)
		}
		for _, w := range plan {
			if err := w.exec(ctx, tx); err != nil {
				return err
			}
		}
		if err := checkForeignKeys(ctx, tx, plan); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing save: %w", err)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "save failed")
		return nil, fmt.Errorf("%w: %w", types.ErrPersistence, err)
	}

	changes := make([]types.Change, 0, len(plan))
	for _, w := range plan {
		rec := w.entry.record
		switch w.op {
		case types.ChangeDelete:
			delete(s.entries, keyOf(rec))
		default:
			w.entry.state = stateClean
			w.entry.committed = rec.Fields()
		}
		changes = append(changes, types.Change{
			Type:   w.op,
			Entity: rec.EntityName(),
			ID:     rec.RecordID(),
			Fields: w.fields,
		})
	}
	return changes, nil
}

// planLocked orders pending work: deletes in reverse model order, then
// updates, then inserts in model order. Deletes go first so a name freed in
// the batch can be taken again by an update or insert in the same batch.
// Foreign keys are checked once all writes are done.
func (s *Session) planLocked() ([]write, error) {
	rank := make(map[string]int)
	for i, name := range s.backend.model.Names() {
		rank[name] = i
	}

	var inserts, updates, deletes []write
	for _, e := range s.sortedEntries() {
		proto, err := s.prototype(e.record.EntityName())
		if err != nil {
			return nil, err
		}
		switch {
		case e.state == stateInserted:
			inserts = append(inserts, write{op: types.ChangeInsert, proto: proto, entry: e})
		case e.state == stateDeleted:
			deletes = append(deletes, write{op: types.ChangeDelete, proto: proto, entry: e})
		default:
			if changed := e.changedFields(); len(changed) > 0 {
				sort.Strings(changed)
				updates = append(updates, write{op: types.ChangeUpdate, proto: proto, entry: e, fields: changed})
			}
		}
	}

	sort.SliceStable(deletes, func(i, j int) bool {
		return rank[deletes[i].proto.EntityName()] > rank[deletes[j].proto.EntityName()]
	})
	sort.SliceStable(inserts, func(i, j int) bool {
		return rank[inserts[i].proto.EntityName()] < rank[inserts[j].proto.EntityName()]
	})

	plan := make([]write, 0, len(inserts)+len(updates)+len(deletes))
	plan = append(plan, deletes...)
	plan = append(plan, updates...)
	return append(plan, inserts...), nil
}

// checkForeignKeys reports the first dangling reference left by the plan.
// A row still pointing at a section deleted in this batch is
// ErrSectionNotEmpty; any other dangling reference is ErrConstraint.
func checkForeignKeys(ctx context.Context, tx *sql.Tx, plan []write) error {
	rows, err := tx.QueryContext(ctx, "PRAGMA foreign_key_check")
	if err != nil {
		return fmt.Errorf("checking foreign keys: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return rows.Err()
	}
	var (
		table, parent string
		rowid         sql.NullInt64
		fkid          int
	)
	if err := rows.Scan(&table, &rowid, &parent, &fkid); err != nil {
		return fmt.Errorf("checking foreign keys: %w", err)
	}

	for _, w := range plan {
		if w.op == types.ChangeDelete && w.proto.EntityName() == parent && parent == types.SectionsEntity {
			return fmt.Errorf("%w: %s still reference deleted %s", types.ErrSectionNotEmpty, table, parent)
		}
	}
	return fmt.Errorf("%w: %s reference missing %s", types.ErrConstraint, table, parent)
}

func (w write) exec(ctx context.Context, tx *sql.Tx) error {
	entity := w.proto.EntityName()
	id := w.entry.record.RecordID()
	fields := w.entry.record.Fields()
	table := types.QuoteIdent(entity)

	var err error
	switch w.op {
	case types.ChangeInsert:
		cols := w.proto.Columns()
		names := []string{types.QuoteIdent(types.FieldID)}
		marks := []string{"?"}
		args := []any{id}
		for _, c := range cols {
			names = append(names, types.QuoteIdent(c.Name))
			marks = append(marks, "?")
			args = append(args, toStorage(c, fields[c.Name]))
		}
		_, err = tx.ExecContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			table, strings.Join(names, ", "), strings.Join(marks, ", ")), args...)

	case types.ChangeUpdate:
		sets := make([]string, 0, len(w.fields))
		args := make([]any, 0, len(w.fields)+1)
		for _, f := range w.fields {
			c, _ := types.ColumnOf(w.proto, f)
			sets = append(sets, types.QuoteIdent(f)+" = ?")
			args = append(args, toStorage(c, fields[f]))
		}
		args = append(args, id)
		var res sql.Result
		res, err = tx.ExecContext(ctx, fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?",
			table, strings.Join(sets, ", "), types.QuoteIdent(types.FieldID)), args...)
		if err == nil {
			if n, _ := res.RowsAffected(); n == 0 {
				return fmt.Errorf("%w: updating %s %s", types.ErrNotFound, entity, id)
			}
		}

	case types.ChangeDelete:
		_, err = tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s = ?",
			table, types.QuoteIdent(types.FieldID)), id)
	}

	if err == nil {
		return nil
	}
	verb := strings.TrimSuffix(w.op.String(), "e") + "ing"
	if kind := classifyConstraint(err, w.op, entity); kind != nil {
		return fmt.Errorf("%w: %s %s %s: %w", kind, verb, entity, id, err)
	}
	return fmt.Errorf("%s %s %s: %w", verb, entity, id, err)
}

// classifyConstraint maps SQLite constraint failures to entity errors. It
// returns nil for errors that are not constraint violations.
func classifyConstraint(err error, op types.ChangeType, entity string) error {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return nil
	}

	foreignKey := func() error {
		if op == types.ChangeDelete && entity == types.SectionsEntity {
			return types.ErrSectionNotEmpty
		}
		return types.ErrConstraint
	}

	switch sqliteErr.Code() {
	case sqlite3lib.SQLITE_CONSTRAINT_UNIQUE, sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY:
		return types.ErrDuplicateName
	case sqlite3lib.SQLITE_CONSTRAINT_FOREIGNKEY:
		return foreignKey()
	}
	if sqliteErr.Code()&0xff != sqlite3lib.SQLITE_CONSTRAINT {
		return nil
	}

	message := strings.ToLower(err.Error())
	switch {
	case strings.Contains(message, "unique constraint failed"):
		return types.ErrDuplicateName
	case strings.Contains(message, "foreign key constraint failed"):
		return foreignKey()
	}
	return types.ErrConstraint
}
