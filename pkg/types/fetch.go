package types

import "strings"

// SortDescriptor orders fetch results by one field.
type SortDescriptor struct {
	Field     string
	Ascending bool
}

// Asc sorts by field ascending.
func Asc(field string) SortDescriptor { return SortDescriptor{Field: field, Ascending: true} }

// Desc sorts by field descending.
func Desc(field string) SortDescriptor { return SortDescriptor{Field: field} }

// FetchRequest describes a query against one entity kind.
type FetchRequest struct {
	Entity          string
	Predicate       Predicate
	SortDescriptors []SortDescriptor

	// FetchLimit caps the number of results; zero means no limit.
	FetchLimit int

	// FetchOffset skips the first results after sorting.
	FetchOffset int

	// ReturnsObjectsAsFaults registers records that are not yet resident as
	// faults instead of loading their fields.
	ReturnsObjectsAsFaults bool
}

// NewFetchRequest returns a request for entity with no filter or ordering.
func NewFetchRequest(entity string) *FetchRequest {
	return &FetchRequest{Entity: entity}
}

// Fields lists every field the request's predicate and sort descriptors
// refer to.
func (r FetchRequest) Fields() []string {
	fields := r.Predicate.Fields()
	for _, sd := range r.SortDescriptors {
		fields = append(fields, sd.Field)
	}
	return fields
}

// OrderBySQL renders the sort descriptors as an ORDER BY list, always ending
// with the ID so ties are stable.
func (r FetchRequest) OrderBySQL() string {
	parts := make([]string, 0, len(r.SortDescriptors)+1)
	for _, sd := range r.SortDescriptors {
		dir := "DESC"
		if sd.Ascending {
			dir = "ASC"
		}
		parts = append(parts, QuoteIdent(sd.Field)+" "+dir)
	}
	parts = append(parts, QuoteIdent(FieldID)+" ASC")
	return strings.Join(parts, ", ")
}

// Less orders a before b according to the sort descriptors, falling back to
// the ID. It agrees with OrderBySQL for text, bool and integer columns.
func (r FetchRequest) Less(a, b Record) bool {
	fa, fb := a.Fields(), b.Fields()
	for _, sd := range r.SortDescriptors {
		var va, vb any
		if sd.Field == FieldID {
			va, vb = a.RecordID(), b.RecordID()
		} else {
			va, vb = fa[sd.Field], fb[sd.Field]
		}
		c := compareValues(va, vb)
		if c == 0 {
			continue
		}
		if sd.Ascending {
			return c < 0
		}
		return c > 0
	}
	return a.RecordID() < b.RecordID()
}

// compareValues orders nil first, then by the natural order of the value
// type; mismatched types compare equal.
func compareValues(a, b any) int {
	a, b = normalize(a), normalize(b)
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}
	switch x := a.(type) {
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y)
		}
	case bool:
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0
			case !x:
				return -1
			default:
				return 1
			}
		}
	case int64:
		if y, ok := b.(int64); ok {
			switch {
			case x < y:
				return -1
			case x > y:
				return 1
			}
			return 0
		}
	}
	return 0
}
