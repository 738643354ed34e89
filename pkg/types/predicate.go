package types

import (
	"fmt"
	"sort"
	"strings"
)

type predicateOp int

const (
	opTrue predicateOp = iota
	opFalse
	opEq
	opNe
	opIn
	opAnd
	opOr
	opNot
)

// Predicate is a boolean filter over record fields. The zero value matches
// every record. Predicates evaluate both in memory (Evaluate, used for
// resident records) and in storage (SQL), and the two agree for the value
// types the entities use: string, bool, int64 and entity references.
type Predicate struct {
	op     predicateOp
	field  string
	values []any
	subs   []Predicate
}

// True matches every record.
func True() Predicate { return Predicate{} }

// False matches no record.
func False() Predicate { return Predicate{op: opFalse} }

// Eq matches records whose field equals value. A nil value matches unset
// fields. Entities compare by ID.
func Eq(field string, value any) Predicate {
	return Predicate{op: opEq, field: field, values: []any{normalize(value)}}
}

// Ne matches records whose field differs from value.
func Ne(field string, value any) Predicate {
	return Predicate{op: opNe, field: field, values: []any{normalize(value)}}
}

// In matches records whose field equals one of values. An empty list
// matches nothing.
func In(field string, values ...any) Predicate {
	if len(values) == 0 {
		return False()
	}
	norm := make([]any, len(values))
	for i, v := range values {
		norm[i] = normalize(v)
	}
	return Predicate{op: opIn, field: field, values: norm}
}

// And returns the conjunction of ps. True operands are dropped and nested
// conjunctions flattened; And() is True.
func And(ps ...Predicate) Predicate {
	var subs []Predicate
	for _, p := range ps {
		switch p.op {
		case opTrue:
			continue
		case opFalse:
			return False()
		case opAnd:
			subs = append(subs, p.subs...)
		default:
			subs = append(subs, p)
		}
	}
	switch len(subs) {
	case 0:
		return True()
	case 1:
		return subs[0]
	}
	return Predicate{op: opAnd, subs: subs}
}

// Or returns the disjunction of ps; Or() is False.
func Or(ps ...Predicate) Predicate {
	var subs []Predicate
	for _, p := range ps {
		switch p.op {
		case opTrue:
			return True()
		case opFalse:
			continue
		case opOr:
			subs = append(subs, p.subs...)
		default:
			subs = append(subs, p)
		}
	}
	switch len(subs) {
	case 0:
		return False()
	case 1:
		return subs[0]
	}
	return Predicate{op: opOr, subs: subs}
}

// Not negates p.
func Not(p Predicate) Predicate {
	switch p.op {
	case opTrue:
		return False()
	case opFalse:
		return True()
	case opNot:
		return p.subs[0]
	}
	return Predicate{op: opNot, subs: []Predicate{p}}
}

// IsTrue reports whether p matches everything without inspecting fields.
func (p Predicate) IsTrue() bool { return p.op == opTrue }

// Fields lists the distinct field names p refers to, sorted.
func (p Predicate) Fields() []string {
	seen := make(map[string]bool)
	p.collectFields(seen)
	out := make([]string, 0, len(seen))
	for f := range seen {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

func (p Predicate) collectFields(seen map[string]bool) {
	if p.field != "" {
		seen[p.field] = true
	}
	for _, s := range p.subs {
		s.collectFields(seen)
	}
}

// Evaluate reports whether r satisfies p.
func (p Predicate) Evaluate(r Record) bool {
	switch p.op {
	case opTrue:
		return true
	case opFalse:
		return false
	case opEq:
		return ValuesEqual(fieldValue(r, p.field), p.values[0])
	case opNe:
		return !ValuesEqual(fieldValue(r, p.field), p.values[0])
	case opIn:
		v := fieldValue(r, p.field)
		for _, want := range p.values {
			if ValuesEqual(v, want) {
				return true
			}
		}
		return false
	case opAnd:
		for _, s := range p.subs {
			if !s.Evaluate(r) {
				return false
			}
		}
		return true
	case opOr:
		for _, s := range p.subs {
			if s.Evaluate(r) {
				return true
			}
		}
		return false
	case opNot:
		return !p.subs[0].Evaluate(r)
	}
	panic(InvariantViolation{Reason: fmt.Sprintf("unknown predicate op %d", p.op)})
}

func fieldValue(r Record, field string) any {
	if field == FieldID {
		return r.RecordID()
	}
	return normalize(r.Fields()[field])
}

// SQL renders p as a WHERE-clause fragment with positional arguments. Field
// names are emitted as quoted identifiers; callers must check them against
// the entity's columns first (see Fields).
func (p Predicate) SQL() (string, []any) {
	var b strings.Builder
	var args []any
	p.writeSQL(&b, &args)
	return b.String(), args
}

func (p Predicate) writeSQL(b *strings.Builder, args *[]any) {
	switch p.op {
	case opTrue:
		b.WriteString("1 = 1")
	case opFalse:
		b.WriteString("1 = 0")
	case opEq:
		if p.values[0] == nil {
			fmt.Fprintf(b, "%s IS NULL", QuoteIdent(p.field))
			return
		}
		fmt.Fprintf(b, "%s = ?", QuoteIdent(p.field))
		*args = append(*args, SQLArg(p.values[0]))
	case opNe:
		if p.values[0] == nil {
			fmt.Fprintf(b, "%s IS NOT NULL", QuoteIdent(p.field))
			return
		}
		fmt.Fprintf(b, "(%s IS NULL OR %s <> ?)", QuoteIdent(p.field), QuoteIdent(p.field))
		*args = append(*args, SQLArg(p.values[0]))
	case opIn:
		marks := make([]string, len(p.values))
		for i, v := range p.values {
			marks[i] = "?"
			*args = append(*args, SQLArg(v))
		}
		fmt.Fprintf(b, "%s IN (%s)", QuoteIdent(p.field), strings.Join(marks, ", "))
	case opAnd, opOr:
		sep := " AND "
		if p.op == opOr {
			sep = " OR "
		}
		b.WriteString("(")
		for i, s := range p.subs {
			if i > 0 {
				b.WriteString(sep)
			}
			s.writeSQL(b, args)
		}
		b.WriteString(")")
	case opNot:
		b.WriteString("NOT (")
		p.subs[0].writeSQL(b, args)
		b.WriteString(")")
	}
}

// String renders p for logs and error messages.
func (p Predicate) String() string {
	switch p.op {
	case opTrue:
		return "TRUEPREDICATE"
	case opFalse:
		return "FALSEPREDICATE"
	case opEq:
		return fmt.Sprintf("%s == %v", p.field, p.values[0])
	case opNe:
		return fmt.Sprintf("%s != %v", p.field, p.values[0])
	case opIn:
		return fmt.Sprintf("%s IN %v", p.field, p.values)
	case opNot:
		return "NOT (" + p.subs[0].String() + ")"
	}
	parts := make([]string, len(p.subs))
	for i, s := range p.subs {
		parts[i] = s.String()
	}
	sep := " AND "
	if p.op == opOr {
		sep = " OR "
	}
	return "(" + strings.Join(parts, sep) + ")"
}

// QuoteIdent quotes a column or table name for SQLite.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// SQLArg converts a normalized value to its storage representation.
func SQLArg(v any) any {
	if b, ok := v.(bool); ok {
		if b {
			return int64(1)
		}
		return int64(0)
	}
	return v
}

// normalize maps values onto the small set Evaluate compares: entities
// become their ID, integers become int64.
func normalize(v any) any {
	switch x := v.(type) {
	case Record:
		if id := x.RecordID(); id != "" {
			return id
		}
		return nil
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case []byte:
		return string(x)
	}
	return v
}

// ValuesEqual compares two field values after normalization. An empty
// reference ID equals nil.
func ValuesEqual(a, b any) bool {
	a, b = normalize(a), normalize(b)
	if s, ok := a.(string); ok && s == "" && b == nil {
		return true
	}
	if s, ok := b.(string); ok && s == "" && a == nil {
		return true
	}
	return a == b
}
