package types

import "strings"

// Entity names double as table names.
const (
	SectionsEntity = "sections"
	ItemsEntity    = "items"
	SettingsEntity = "settings"
)

// Field names shared by the entities.
const (
	FieldName     = "name"
	FieldSelected = "selected"
	FieldSection  = "section_id"
	FieldKey      = "key"
	FieldValue    = "value"
)

// Compile-time interface checks.
var (
	_ Entity    = (*Section)(nil)
	_ Validator = (*Section)(nil)
)

// Section groups Items. Its Items are derived by querying items whose
// section_id is the section's ID; they are not stored on the section.
type Section struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// RecordID returns the section ID; "" for a nil section.
func (s *Section) RecordID() string {
	if s == nil {
		return ""
	}
	return s.ID
}

func (*Section) EntityName() string { return SectionsEntity }

func (*Section) Columns() []Column {
	return []Column{{Name: FieldName, Kind: ColumnText}}
}

// DefaultSort orders sections by name.
func (*Section) DefaultSort() []SortDescriptor {
	return []SortDescriptor{Asc(FieldName)}
}

func (*Section) DefaultPredicate() Predicate { return True() }

func (*Section) New(id string) Entity { return &Section{ID: id} }

func (s *Section) Fields() map[string]any {
	return map[string]any{FieldName: s.Name}
}

func (s *Section) SetField(name string, value any) error {
	switch name {
	case FieldName:
		v, ok := value.(string)
		if !ok {
			return ErrTypeMismatch
		}
		s.Name = v
		return nil
	}
	return ErrUnknownField
}

// Validate rejects blank names.
func (s *Section) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return ErrInvalidName
	}
	return nil
}
