package types

import "fmt"

// ColumnKind describes how a persisted column is stored and hydrated.
type ColumnKind int

// Column kinds.
const (
	ColumnText ColumnKind = iota
	ColumnBool
	ColumnInt
	ColumnRef // reference to another entity, stored as its ID
)

// FieldID is the name of the identifier field every entity exposes to
// predicates and sort descriptors.
const FieldID = "id"

// Column describes one persisted field of an entity.
type Column struct {
	Name string
	Kind ColumnKind
	Ref  string // target entity name when Kind is ColumnRef
}

// Record is a persisted entity instance.
type Record interface {
	// RecordID returns the store-assigned identifier.
	RecordID() string

	// Fields returns the current value of every persisted column keyed by
	// column name. Reference columns hold the target's ID ("" when unset).
	Fields() map[string]any

	// SetField assigns one column. Reference columns receive the target
	// Entity, never a bare ID.
	SetField(name string, value any) error
}

// Entity is a Record kind. The metadata methods (EntityName, Columns,
// DefaultSort, DefaultPredicate, New) must not dereference the receiver so
// they can be called on a typed nil, e.g. (*Section)(nil).EntityName().
type Entity interface {
	Record

	EntityName() string
	Columns() []Column
	DefaultSort() []SortDescriptor
	DefaultPredicate() Predicate

	// New returns an empty instance carrying the given ID.
	New(id string) Entity
}

// Validator is implemented by entities that check their own invariants
// before a store writes them.
type Validator interface {
	Validate() error
}

// Resident pairs a record registered in a session with its fault state. A
// fault is a placeholder whose fields have not been loaded from storage.
type Resident struct {
	Record Entity
	Fault  bool
}

// ColumnOf returns the named column of e, or false if e has no such column.
func ColumnOf(e Entity, name string) (Column, bool) {
	for _, c := range e.Columns() {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// HasField reports whether name is queryable on e (its ID or one of its
// columns).
func HasField(e Entity, name string) bool {
	if name == FieldID {
		return true
	}
	_, ok := ColumnOf(e, name)
	return ok
}

// ApplyFields assigns values to e column by column. Reference columns carry
// target IDs in values; resolve turns each ID into the target Entity. Keys
// that are not columns of e return ErrUnknownField.
func ApplyFields(e Entity, values map[string]any, resolve func(entity, id string) (Entity, error)) error {
	for k := range values {
		if k == FieldID || !HasField(e, k) {
			return fmt.Errorf("%w: %s.%s", ErrUnknownField, e.EntityName(), k)
		}
	}
	for _, col := range e.Columns() {
		v, ok := values[col.Name]
		if !ok {
			continue
		}
		if col.Kind == ColumnRef {
			id, _ := v.(string)
			if id == "" {
				v = nil
			} else {
				target, err := resolve(col.Ref, id)
				if err != nil {
					return fmt.Errorf("resolving %s %s: %w", col.Ref, id, err)
				}
				v = target
			}
		}
		if err := e.SetField(col.Name, coerce(col.Kind, v)); err != nil {
			return fmt.Errorf("setting %s.%s: %w", e.EntityName(), col.Name, err)
		}
	}
	return nil
}

// coerce converts storage representations into the Go type SetField expects.
func coerce(kind ColumnKind, v any) any {
	switch kind {
	case ColumnBool:
		switch b := v.(type) {
		case int64:
			return b != 0
		case int:
			return b != 0
		}
	case ColumnInt:
		switch n := v.(type) {
		case int:
			return int64(n)
		case float64:
			return int64(n)
		}
	case ColumnText:
		if b, ok := v.([]byte); ok {
			return string(b)
		}
	}
	return v
}

// ChangedFields returns the names of columns whose current value differs
// from committed.
func ChangedFields(current, committed map[string]any) []string {
	var changed []string
	for k, v := range current {
		if !ValuesEqual(v, committed[k]) {
			changed = append(changed, k)
		}
	}
	return changed
}

// Model is the set of entity kinds a store knows about. Order matters:
// entities referenced by others come first, so inserts follow Names() and
// deletes run in reverse.
type Model struct {
	entities map[string]Entity
	names    []string
}

// NewModel builds a Model from typed-nil prototypes.
func NewModel(prototypes ...Entity) *Model {
	m := &Model{entities: make(map[string]Entity, len(prototypes))}
	for _, p := range prototypes {
		name := p.EntityName()
		if _, dup := m.entities[name]; dup {
			panic(InvariantViolation{Reason: "duplicate entity " + name})
		}
		m.entities[name] = p
		m.names = append(m.names, name)
	}
	return m
}

// Entity returns the prototype for name.
func (m *Model) Entity(name string) (Entity, bool) {
	e, ok := m.entities[name]
	return e, ok
}

// Names lists entity names in dependency order.
func (m *Model) Names() []string {
	out := make([]string, len(m.names))
	copy(out, m.names)
	return out
}

// DefaultModel holds the sectional entities.
var DefaultModel = NewModel((*Section)(nil), (*Item)(nil), (*Setting)(nil))
