package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/sectional/pkg/types"
)

func TestSections(t *testing.T) {
	tests := []struct {
		name  string
		check func(t *testing.T, c *Catalog)
	}{
		{
			name: "add trims and orders by name",
			check: func(t *testing.T, c *Catalog) {
				_, err := c.AddSection("  Beta ")
				require.NoError(t, err)
				_, err = c.AddSection("Alpha")
				require.NoError(t, err)

				sections, err := c.Sections()
				require.NoError(t, err)
				require.Len(t, sections, 2)
				assert.Equal(t, "Alpha", sections[0].Name)
				assert.Equal(t, "Beta", sections[1].Name)
			},
		},
		{
			name: "duplicate name is a conflict",
			check: func(t *testing.T, c *Catalog) {
				_, err := c.AddSection("Dairy")
				require.NoError(t, err)
				_, err = c.AddSection("Dairy")
				assert.ErrorIs(t, err, types.ErrDuplicateName)
				assert.True(t, IsConflict(err))
			},
		},
		{
			name: "blank name is invalid",
			check: func(t *testing.T, c *Catalog) {
				_, err := c.AddSection("   ")
				assert.ErrorIs(t, err, types.ErrInvalidName)
				assert.True(t, IsInvalid(err))
			},
		},
		{
			name: "rename onto an existing name fails and is rolled back",
			check: func(t *testing.T, c *Catalog) {
				a, err := c.AddSection("A")
				require.NoError(t, err)
				_, err = c.AddSection("B")
				require.NoError(t, err)

				err = c.RenameSection(a, "B")
				assert.ErrorIs(t, err, types.ErrDuplicateName)
				assert.Equal(t, "A", a.Name)

				require.NoError(t, c.RenameSection(a, "C"))
				assert.Equal(t, "C", a.Name)
			},
		},
		{
			name: "find by id or name",
			check: func(t *testing.T, c *Catalog) {
				sec, err := c.AddSection("Frozen")
				require.NoError(t, err)

				byID, err := c.FindSection(sec.ID)
				require.NoError(t, err)
				assert.Same(t, sec, byID)

				byName, err := c.FindSection("Frozen")
				require.NoError(t, err)
				assert.Same(t, sec, byName)

				_, err = c.FindSection("Nope")
				assert.ErrorIs(t, err, types.ErrNotFound)
			},
		},
		{
			name: "deleting a non-empty section is refused",
			check: func(t *testing.T, c *Catalog) {
				sec, err := c.AddSection("Dairy")
				require.NoError(t, err)
				milk, err := c.AddItem(sec, "Milk")
				require.NoError(t, err)

				err = c.DeleteSection(sec)
				assert.ErrorIs(t, err, types.ErrSectionNotEmpty)
				assert.True(t, IsConflict(err))

				require.NoError(t, c.DeleteItem(milk))
				require.NoError(t, c.DeleteSection(sec))
				sections, err := c.Sections()
				require.NoError(t, err)
				assert.Empty(t, sections)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, c := setupCatalog(t)
			tt.check(t, c)
		})
	}
}

func TestItems(t *testing.T) {
	tests := []struct {
		name  string
		check func(t *testing.T, c *Catalog, dairy, bakery *types.Section)
	}{
		{
			name: "toggle moves an item below unselected ones",
			check: func(t *testing.T, c *Catalog, dairy, bakery *types.Section) {
				for _, n := range []string{"Butter", "Cheese", "Milk"} {
					_, err := c.AddItem(dairy, n)
					require.NoError(t, err)
				}
				butter, err := c.FindItemByName(dairy, "Butter")
				require.NoError(t, err)
				require.NoError(t, c.ToggleItem(butter))

				items, err := c.SectionItems(dairy)
				require.NoError(t, err)
				assert.Equal(t, []string{"Cheese", "Milk", "Butter"}, itemNames(items))
				assert.True(t, items[2].Selected)
			},
		},
		{
			name: "move reassigns without duplication",
			check: func(t *testing.T, c *Catalog, dairy, bakery *types.Section) {
				bread, err := c.AddItem(dairy, "Bread")
				require.NoError(t, err)
				require.NoError(t, c.MoveItem(bread, bakery))

				items, err := c.SectionItems(dairy)
				require.NoError(t, err)
				assert.Empty(t, items)
				items, err = c.SectionItems(bakery)
				require.NoError(t, err)
				assert.Equal(t, []string{"Bread"}, itemNames(items))

				assert.ErrorIs(t, c.MoveItem(bread, nil), types.ErrInvalidData)
			},
		},
		{
			name: "delete keeps the section with a reduced count",
			check: func(t *testing.T, c *Catalog, dairy, bakery *types.Section) {
				milk, err := c.AddItem(dairy, "Milk")
				require.NoError(t, err)
				_, err = c.AddItem(dairy, "Cream")
				require.NoError(t, err)

				require.NoError(t, c.DeleteItem(milk))
				overview, err := c.Overview()
				require.NoError(t, err)
				require.Len(t, overview, 2)
				assert.Equal(t, "Bakery", overview[0].Section.Name)
				assert.Equal(t, "Dairy", overview[1].Section.Name)
				assert.Equal(t, 1, overview[1].Items)

				_, err = c.FindItem(milk.ID)
				assert.ErrorIs(t, err, types.ErrNotFound)
			},
		},
		{
			name: "rename and find by id",
			check: func(t *testing.T, c *Catalog, dairy, bakery *types.Section) {
				milk, err := c.AddItem(dairy, "Milk")
				require.NoError(t, err)
				require.NoError(t, c.RenameItem(milk, "Whole milk"))

				found, err := c.FindItem(milk.ID)
				require.NoError(t, err)
				assert.Same(t, milk, found)
				assert.Equal(t, "Whole milk", found.Name)

				assert.ErrorIs(t, c.RenameItem(milk, ""), types.ErrInvalidName)
				_, err = c.AddItem(dairy, "")
				assert.ErrorIs(t, err, types.ErrInvalidName)
			},
		},
		{
			name: "overview counts selected items",
			check: func(t *testing.T, c *Catalog, dairy, bakery *types.Section) {
				a, err := c.AddItem(bakery, "Bagels")
				require.NoError(t, err)
				_, err = c.AddItem(bakery, "Rolls")
				require.NoError(t, err)
				require.NoError(t, c.ToggleItem(a))

				overview, err := c.Overview()
				require.NoError(t, err)
				assert.Equal(t, 2, overview[0].Items)
				assert.Equal(t, 1, overview[0].Selected)
				assert.Equal(t, 0, overview[1].Items)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, c := setupCatalog(t)
			dairy, err := c.AddSection("Dairy")
			require.NoError(t, err)
			bakery, err := c.AddSection("Bakery")
			require.NoError(t, err)
			tt.check(t, c, dairy, bakery)
		})
	}
}
