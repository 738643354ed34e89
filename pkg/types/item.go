package types

import (
	"encoding/json"
	"strings"
)

var (
	_ Entity    = (*Item)(nil)
	_ Validator = (*Item)(nil)
)

// Item is a named, checkable entry owned by exactly one Section. Section is
// always set on a persisted item; it may be a fault until the session loads
// it.
type Item struct {
	ID       string
	Name     string
	Selected bool
	Section  *Section
}

// RecordID returns the item ID; "" for a nil item.
func (i *Item) RecordID() string {
	if i == nil {
		return ""
	}
	return i.ID
}

func (*Item) EntityName() string { return ItemsEntity }

func (*Item) Columns() []Column {
	return []Column{
		{Name: FieldName, Kind: ColumnText},
		{Name: FieldSelected, Kind: ColumnBool},
		{Name: FieldSection, Kind: ColumnRef, Ref: SectionsEntity},
	}
}

// DefaultSort puts unselected items first, then orders by name, so toggling
// an item moves it below the unselected group.
func (*Item) DefaultSort() []SortDescriptor {
	return []SortDescriptor{Asc(FieldSelected), Asc(FieldName)}
}

func (*Item) DefaultPredicate() Predicate { return True() }

func (*Item) New(id string) Entity { return &Item{ID: id} }

func (i *Item) Fields() map[string]any {
	return map[string]any{
		FieldName:     i.Name,
		FieldSelected: i.Selected,
		FieldSection:  i.Section.RecordID(),
	}
}

func (i *Item) SetField(name string, value any) error {
	switch name {
	case FieldName:
		v, ok := value.(string)
		if !ok {
			return ErrTypeMismatch
		}
		i.Name = v
	case FieldSelected:
		v, ok := value.(bool)
		if !ok {
			return ErrTypeMismatch
		}
		i.Selected = v
	case FieldSection:
		if value == nil {
			i.Section = nil
			return nil
		}
		v, ok := value.(*Section)
		if !ok {
			return ErrTypeMismatch
		}
		i.Section = v
	default:
		return ErrUnknownField
	}
	return nil
}

// Toggle flips the selection checkmark.
func (i *Item) Toggle() {
	i.Selected = !i.Selected
}

// Validate requires a name and an owning section.
func (i *Item) Validate() error {
	if strings.TrimSpace(i.Name) == "" {
		return ErrInvalidName
	}
	if i.Section.RecordID() == "" {
		return ErrInvalidData
	}
	return nil
}

// itemJSON is the wire form of an Item: the section travels as its ID.
type itemJSON struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Selected  bool   `json:"selected"`
	SectionID string `json:"section_id"`
}

func (i *Item) MarshalJSON() ([]byte, error) {
	return json.Marshal(itemJSON{
		ID:        i.ID,
		Name:      i.Name,
		Selected:  i.Selected,
		SectionID: i.Section.RecordID(),
	})
}
