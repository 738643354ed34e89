package types

var _ Entity = (*Setting)(nil)

// Setting is a persisted key/value pair. Keys are unique per store.
type Setting struct {
	ID    string `json:"id"`
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (s *Setting) RecordID() string {
	if s == nil {
		return ""
	}
	return s.ID
}

func (*Setting) EntityName() string { return SettingsEntity }

func (*Setting) Columns() []Column {
	return []Column{
		{Name: FieldKey, Kind: ColumnText},
		{Name: FieldValue, Kind: ColumnText},
	}
}

func (*Setting) DefaultSort() []SortDescriptor { return []SortDescriptor{Asc(FieldKey)} }

func (*Setting) DefaultPredicate() Predicate { return True() }

func (*Setting) New(id string) Entity { return &Setting{ID: id} }

func (s *Setting) Fields() map[string]any {
	return map[string]any{FieldKey: s.Key, FieldValue: s.Value}
}

func (s *Setting) SetField(name string, value any) error {
	v, ok := value.(string)
	if !ok {
		return ErrTypeMismatch
	}
	switch name {
	case FieldKey:
		s.Key = v
	case FieldValue:
		s.Value = v
	default:
		return ErrUnknownField
	}
	return nil
}

// Bool interprets the value as a flag.
func (s *Setting) Bool() bool {
	return s.Value == "true"
}
