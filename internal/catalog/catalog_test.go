package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/sectional/internal/sqlite"
	"github.com/mesh-intelligence/sectional/pkg/repo"
	"github.com/mesh-intelligence/sectional/pkg/types"
)

// setupCatalog attaches a store in a temp dir and returns a catalog over a
// fresh session.
func setupCatalog(t *testing.T) (*sqlite.Backend, *Catalog) {
	t.Helper()

	b := sqlite.NewBackend()
	require.NoError(t, b.Attach(context.Background(), types.Config{
		Backend: types.BackendSQLite,
		DataDir: t.TempDir(),
	}))
	t.Cleanup(func() { b.Detach() })

	s, err := b.NewSession()
	require.NoError(t, err)
	return b, New(s)
}

func itemNames(items []*types.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Name
	}
	return out
}

func TestDemoSeed(t *testing.T) {
	seed := DemoSeed()
	require.Len(t, seed.Sections, 29)
	require.NoError(t, seed.Validate())

	counts := map[string]int{}
	for _, sec := range seed.Sections {
		counts[sec.Name] = len(sec.Items)
	}
	assert.Equal(t, 5, counts["Section 1"])
	assert.Equal(t, 2, counts["Section 2"])
	assert.Equal(t, 3, counts["Section 3"])
	assert.Equal(t, 0, counts["Section 4"])
	assert.Equal(t, 5, counts["Section 25"])
	assert.Equal(t, 0, counts["Section 28"])
	assert.Equal(t, 0, counts["Section 29"])
	assert.Equal(t, []string{"Item 1", "Item 2", "Item 3"}, seed.Sections[2].Items)
}

func TestLoadSeed(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr error
		check   func(t *testing.T, seed Seed)
	}{
		{
			name:    "valid file",
			content: "sections:\n  - name: Produce\n    items: [Apples, Pears]\n  - name: Empty\n",
			check: func(t *testing.T, seed Seed) {
				require.Len(t, seed.Sections, 2)
				assert.Equal(t, "Produce", seed.Sections[0].Name)
				assert.Equal(t, []string{"Apples", "Pears"}, seed.Sections[0].Items)
				assert.Empty(t, seed.Sections[1].Items)
			},
		},
		{
			name:    "duplicate section",
			content: "sections:\n  - name: A\n  - name: A\n",
			wantErr: types.ErrDuplicateName,
		},
		{
			name:    "blank item",
			content: "sections:\n  - name: A\n    items: [\"\"]\n",
			wantErr: types.ErrInvalidName,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "seed.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))

			seed, err := LoadSeed(path)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, seed)
		})
	}

	t.Run("malformed yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "seed.yaml")
		require.NoError(t, os.WriteFile(path, []byte("sections: [:"), 0o644))
		_, err := LoadSeed(path)
		assert.Error(t, err)
	})
}

func TestEnsureSeeded(t *testing.T) {
	b, c := setupCatalog(t)

	result, err := EnsureSeeded(c.Session(), DemoSeed())
	require.NoError(t, err)
	assert.Equal(t, Seeded, result)

	overview, err := c.Overview()
	require.NoError(t, err)
	require.Len(t, overview, 29)
	assert.Equal(t, "Section 1", overview[0].Section.Name)
	assert.Equal(t, "Section 10", overview[1].Section.Name, "sections sort by name")

	total := 0
	for _, sum := range overview {
		total += sum.Items
	}
	assert.Equal(t, 7*5+7*2+7*3, total)

	t.Run("second run is a no-op", func(t *testing.T) {
		result, err := EnsureSeeded(c.Session(), DemoSeed())
		require.NoError(t, err)
		assert.Equal(t, AlreadySeeded, result)
	})

	t.Run("flag is visible to a new session", func(t *testing.T) {
		s, err := b.NewSession()
		require.NoError(t, err)
		result, err := EnsureSeeded(s, DemoSeed())
		require.NoError(t, err)
		assert.Equal(t, AlreadySeeded, result)

		flag, err := repo.FindOrFetch[*types.Setting](s, types.Eq(types.FieldKey, DemoFlagKey))
		require.NoError(t, err)
		require.NotNil(t, flag)
		assert.True(t, flag.Bool())
	})
}

func TestEnsureSeeded_FailedSaveCanBeRetried(t *testing.T) {
	b, c := setupCatalog(t)
	s := c.Session()

	// A pending section with a blank name fails validation in the seeding commit.
	_, err := s.Insert(types.SectionsEntity)
	require.NoError(t, err)

	_, err = EnsureSeeded(s, DemoSeed())
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrPersistence)
	assert.False(t, s.HasChanges())

	other, err := b.NewSession()
	require.NoError(t, err)
	n, err := repo.Count[*types.Section](other, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	flag, err := repo.FindOrFetch[*types.Setting](other, types.Eq(types.FieldKey, DemoFlagKey))
	require.NoError(t, err)
	assert.Nil(t, flag)

	result, err := EnsureSeeded(s, DemoSeed())
	require.NoError(t, err)
	assert.Equal(t, Seeded, result)
}

func TestEnsureSeeded_ReusesExistingRecords(t *testing.T) {
	_, c := setupCatalog(t)
	s := c.Session()

	_, err := c.AddSection("Produce")
	require.NoError(t, err)
	require.NoError(t, repo.Apply(s, func() error {
		rec, err := s.Insert(types.SettingsEntity)
		if err != nil {
			return err
		}
		rec.(*types.Setting).Key = DemoFlagKey
		rec.(*types.Setting).Value = "false"
		return nil
	}))

	seed := Seed{Sections: []SeedSection{{Name: "Produce", Items: []string{"Apples"}}, {Name: "Bakery"}}}
	result, err := EnsureSeeded(s, seed)
	require.NoError(t, err)
	assert.Equal(t, Seeded, result, "a false flag does not count as seeded")

	sections, err := c.Sections()
	require.NoError(t, err)
	assert.Len(t, sections, 2)

	n, err := repo.Count[*types.Setting](s, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = EnsureSeeded(s, Seed{Sections: []SeedSection{{Name: " "}}})
	assert.ErrorIs(t, err, types.ErrInvalidName)
}
