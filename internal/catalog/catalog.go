// Package catalog implements the sectional use-cases over a session:
// seeding, listing sections with their items, and the add, rename, toggle,
// move and delete operations on sections and items. Every mutation is
// applied and saved as one batch on the session's queue; a failed save
// leaves the session rolled back.
package catalog

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mesh-intelligence/sectional/pkg/repo"
	"github.com/mesh-intelligence/sectional/pkg/types"
)

// Catalog wraps a session with the sectional operations.
type Catalog struct {
	s types.Session
}

// New returns a Catalog over s.
func New(s types.Session) *Catalog {
	return &Catalog{s: s}
}

// Session returns the underlying session.
func (c *Catalog) Session() types.Session { return c.s }

// SectionSummary is a section with its item counts.
type SectionSummary struct {
	Section  *types.Section `json:"section"`
	Items    int            `json:"items"`
	Selected int            `json:"selected"`
}

// Sections returns every section in default order.
func (c *Catalog) Sections() ([]*types.Section, error) {
	return repo.Fetch[*types.Section](c.s, nil)
}

// Overview returns every section with its item and selected counts.
func (c *Catalog) Overview() ([]SectionSummary, error) {
	sections, err := c.Sections()
	if err != nil {
		return nil, err
	}
	out := make([]SectionSummary, 0, len(sections))
	for _, sec := range sections {
		items, err := c.SectionItems(sec)
		if err != nil {
			return nil, err
		}
		sum := SectionSummary{Section: sec, Items: len(items)}
		for _, it := range items {
			if it.Selected {
				sum.Selected++
			}
		}
		out = append(out, sum)
	}
	return out, nil
}

// SectionItems returns the items owned by sec in default order.
func (c *Catalog) SectionItems(sec *types.Section) ([]*types.Item, error) {
	return repo.Fetch[*types.Item](c.s, func(req *types.FetchRequest) {
		req.Predicate = repo.Predicate[*types.Item](types.Eq(types.FieldSection, sec))
	})
}

// FindSection looks a section up by ID, then by name.
func (c *Catalog) FindSection(ref string) (*types.Section, error) {
	ref = strings.TrimSpace(ref)
	for _, p := range []types.Predicate{types.Eq(types.FieldID, ref), types.Eq(types.FieldName, ref)} {
		sec, err := repo.FindOrFetch[*types.Section](c.s, p)
		if err != nil {
			return nil, err
		}
		if sec != nil {
			return sec, nil
		}
	}
	return nil, fmt.Errorf("%w: section %q", types.ErrNotFound, ref)
}

// FindItem looks an item up by ID.
func (c *Catalog) FindItem(id string) (*types.Item, error) {
	item, err := repo.FindOrFetch[*types.Item](c.s, types.Eq(types.FieldID, strings.TrimSpace(id)))
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, fmt.Errorf("%w: item %q", types.ErrNotFound, id)
	}
	return item, nil
}

// FindItemByName returns the first item in sec, in default order, with the
// given name.
func (c *Catalog) FindItemByName(sec *types.Section, name string) (*types.Item, error) {
	items, err := repo.Fetch[*types.Item](c.s, func(req *types.FetchRequest) {
		req.Predicate = types.And(
			types.Eq(types.FieldSection, sec),
			types.Eq(types.FieldName, strings.TrimSpace(name)),
		)
		req.FetchLimit = 1
	})
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: item %q in section %q", types.ErrNotFound, name, sec.Name)
	}
	return items[0], nil
}

// AddSection creates a section. Names are trimmed and must be unique.
func (c *Catalog) AddSection(name string) (*types.Section, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, types.ErrInvalidName
	}

	var sec *types.Section
	err := repo.Apply(c.s, func() error {
		created := false
		found, err := repo.FindOrCreate(c.s, types.Eq(types.FieldName, name), func(x *types.Section) {
			x.Name = name
			created = true
		})
		if err != nil {
			return err
		}
		if !created {
			return fmt.Errorf("%w: section %q", types.ErrDuplicateName, name)
		}
		sec = found
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("adding section: %w", err)
	}
	return sec, nil
}

// RenameSection changes a section's name.
func (c *Catalog) RenameSection(sec *types.Section, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return types.ErrInvalidName
	}
	err := repo.Apply(c.s, func() error {
		sec.Name = name
		return nil
	})
	if err != nil {
		return fmt.Errorf("renaming section: %w", err)
	}
	return nil
}

// DeleteSection deletes an empty section. A section that still owns items
// is refused with ErrSectionNotEmpty; items are never orphaned or
// cascaded.
func (c *Catalog) DeleteSection(sec *types.Section) error {
	err := repo.Apply(c.s, func() error {
		n, err := repo.Count[*types.Item](c.s, func(req *types.FetchRequest) {
			req.Predicate = types.Eq(types.FieldSection, sec)
		})
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: %q has %d items", types.ErrSectionNotEmpty, sec.Name, n)
		}
		return c.s.Delete(sec)
	})
	if err != nil {
		return fmt.Errorf("deleting section: %w", err)
	}
	return nil
}

// AddItem creates an unselected item in sec.
func (c *Catalog) AddItem(sec *types.Section, name string) (*types.Item, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, types.ErrInvalidName
	}

	var item *types.Item
	err := repo.Apply(c.s, func() error {
		rec, err := c.s.Insert(types.ItemsEntity)
		if err != nil {
			return err
		}
		item = rec.(*types.Item)
		item.Name = name
		item.Section = sec
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("adding item: %w", err)
	}
	return item, nil
}

// ToggleItem flips an item's selection.
func (c *Catalog) ToggleItem(item *types.Item) error {
	err := repo.Apply(c.s, func() error {
		item.Toggle()
		return nil
	})
	if err != nil {
		return fmt.Errorf("toggling item: %w", err)
	}
	return nil
}

// MoveItem reassigns item to another section.
func (c *Catalog) MoveItem(item *types.Item, to *types.Section) error {
	if to == nil {
		return fmt.Errorf("moving item: %w", types.ErrInvalidData)
	}
	err := repo.Apply(c.s, func() error {
		item.Section = to
		return nil
	})
	if err != nil {
		return fmt.Errorf("moving item: %w", err)
	}
	return nil
}

// RenameItem changes an item's name.
func (c *Catalog) RenameItem(item *types.Item, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return types.ErrInvalidName
	}
	err := repo.Apply(c.s, func() error {
		item.Name = name
		return nil
	})
	if err != nil {
		return fmt.Errorf("renaming item: %w", err)
	}
	return nil
}

// DeleteItem deletes an item. Its section is left in place.
func (c *Catalog) DeleteItem(item *types.Item) error {
	err := repo.Apply(c.s, func() error {
		return c.s.Delete(item)
	})
	if err != nil {
		return fmt.Errorf("deleting item: %w", err)
	}
	return nil
}

// IsConflict reports whether err is a uniqueness or ownership conflict.
func IsConflict(err error) bool {
	return errors.Is(err, types.ErrDuplicateName) || errors.Is(err, types.ErrSectionNotEmpty)
}

// IsInvalid reports whether err rejects caller input.
func IsInvalid(err error) bool {
	return errors.Is(err, types.ErrInvalidName) ||
		errors.Is(err, types.ErrInvalidData) ||
		errors.Is(err, types.ErrTypeMismatch) ||
		errors.Is(err, types.ErrUnknownField)
}
