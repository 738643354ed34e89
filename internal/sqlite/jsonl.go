package sqlite

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mesh-intelligence/sectional/pkg/types"
)

// ImportStats reports what Import read per entity.
type ImportStats struct {
	Loaded  map[string]int
	Skipped map[string]int
}

// Export writes one <entity>.jsonl file per entity into dir, each line a
// JSON object with the record ID and column values, ordered by ID.
func (b *Backend) Export(ctx context.Context, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating export dir: %w", err)
	}
	return b.withDB(func(db *sql.DB) error {
		for _, name := range b.model.Names() {
			proto, _ := b.model.Entity(name)
			records, err := exportEntity(ctx, db, proto)
			if err != nil {
				return err
			}
			if err := writeJSONL(filepath.Join(dir, name+".jsonl"), records); err != nil {
				return fmt.Errorf("writing %s: %w", name, err)
			}
			b.logger.Printf("exported %d %s", len(records), name)
		}
		return nil
	})
}

func exportEntity(ctx context.Context, db *sql.DB, proto types.Entity) ([]json.RawMessage, error) {
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s",
		selectColumns(proto), types.QuoteIdent(proto.EntityName()), types.QuoteIdent(types.FieldID))
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", proto.EntityName(), err)
	}
	defer rows.Close()

	var records []json.RawMessage
	for rows.Next() {
		id, values, err := scanRecord(rows, proto)
		if err != nil {
			return nil, fmt.Errorf("scanning %s: %w", proto.EntityName(), err)
		}
		values[types.FieldID] = id
		line, err := json.Marshal(values)
		if err != nil {
			return nil, fmt.Errorf("encoding %s %s: %w", proto.EntityName(), id, err)
		}
		records = append(records, line)
	}
	return records, rows.Err()
}

// Import upserts the records of every <entity>.jsonl file found in dir in
// one transaction. Missing files are skipped. Lines that are malformed or
// violate a constraint are counted in Skipped and do not abort the import.
// Open sessions are told about every upserted record.
func (b *Backend) Import(ctx context.Context, dir string) (ImportStats, error) {
	stats := ImportStats{Loaded: map[string]int{}, Skipped: map[string]int{}}
	var changes []types.Change

	err := b.withDB(func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("beginning import: %w", err)
		}
		defer tx.Rollback()

		for _, name := range b.model.Names() {
			path := filepath.Join(dir, name+".jsonl")
			if _, err := os.Stat(path); os.IsNotExist(err) {
				continue
			}
			records, err := readJSONL(path)
			if err != nil {
				return err
			}
			proto, _ := b.model.Entity(name)
			ids, skipped, err := importEntity(ctx, tx, b.model, proto, records)
			if err != nil {
				return err
			}
			stats.Loaded[name] = len(ids)
			stats.Skipped[name] = skipped
			for _, id := range ids {
				changes = append(changes, types.Change{Type: types.ChangeUpdate, Entity: name, ID: id})
			}
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing import: %w", err)
		}
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("%w: %w", types.ErrPersistence, err)
	}

	b.broadcast(nil, changes)
	return stats, nil
}

// importEntity upserts records into proto's table. Unknown JSON keys are
// ignored; records that fail validation are skipped.
func importEntity(ctx context.Context, tx *sql.Tx, model *types.Model, proto types.Entity, records []json.RawMessage) ([]string, int, error) {
	stub := func(entity, id string) (types.Entity, error) {
		target, ok := model.Entity(entity)
		if !ok {
			return nil, fmt.Errorf("%w: %s", types.ErrUnknownEntity, entity)
		}
		return target.New(id), nil
	}

	cols := proto.Columns()
	names := []string{types.QuoteIdent(types.FieldID)}
	marks := []string{"?"}
	updates := make([]string, 0, len(cols))
	for _, c := range cols {
		q := types.QuoteIdent(c.Name)
		names = append(names, q)
		marks = append(marks, "?")
		updates = append(updates, q+" = excluded."+q)
	}
	upsert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(%s) DO UPDATE SET %s",
		types.QuoteIdent(proto.EntityName()),
		strings.Join(names, ", "),
		strings.Join(marks, ", "),
		types.QuoteIdent(types.FieldID),
		strings.Join(updates, ", "))

	stmt, err := tx.PrepareContext(ctx, upsert)
	if err != nil {
		return nil, 0, fmt.Errorf("preparing import for %s: %w", proto.EntityName(), err)
	}
	defer stmt.Close()

	var ids []string
	skipped := 0
	for _, rec := range records {
		var obj map[string]any
		if err := json.Unmarshal(rec, &obj); err != nil {
			skipped++
			continue
		}
		id, _ := obj[types.FieldID].(string)
		if id == "" {
			skipped++
			continue
		}
		values := make(map[string]any, len(cols))
		for _, c := range cols {
			values[c.Name] = fromStorage(c, obj[c.Name])
		}
		rec := proto.New(id)
		if err := types.ApplyFields(rec, values, stub); err != nil {
			skipped++
			continue
		}
		if v, ok := rec.(types.Validator); ok && v.Validate() != nil {
			skipped++
			continue
		}

		fields := rec.Fields()
		args := []any{id}
		for _, c := range cols {
			args = append(args, toStorage(c, fields[c.Name]))
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			if classifyConstraint(err, types.ChangeInsert, proto.EntityName()) != nil {
				skipped++
				continue
			}
			return nil, 0, fmt.Errorf("importing %s %s: %w", proto.EntityName(), id, err)
		}
		ids = append(ids, id)
	}
	return ids, skipped, nil
}

// readJSONL reads a JSONL file and returns each non-empty, parseable line as
// a json.RawMessage. Malformed lines are skipped.
func readJSONL(path string) ([]json.RawMessage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var records []json.RawMessage
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if !json.Valid(line) {
			continue
		}
		cp := make([]byte, len(line))
		copy(cp, line)
		records = append(records, json.RawMessage(cp))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning %s: %w", path, err)
	}
	return records, nil
}

// writeJSONL atomically writes records to a JSONL file using the temp-file,
// fsync, rename pattern.
func writeJSONL(path string, records []json.RawMessage) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".jsonl-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	fail := func(step string, err error) error {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%s: %w", step, err)
	}

	w := bufio.NewWriter(tmp)
	for _, rec := range records {
		if _, err := w.Write(rec); err != nil {
			return fail("writing record", err)
		}
		if err := w.WriteByte('\n'); err != nil {
			return fail("writing newline", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fail("flushing buffer", err)
	}
	if err := tmp.Sync(); err != nil {
		return fail("syncing temp file", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
