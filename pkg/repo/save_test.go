package repo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/sectional/pkg/types"
)

func TestApplyAndSave(t *testing.T) {
	tests := []struct {
		name     string
		mutation func(t *testing.T, s types.Session, milk *types.Item, dairy *types.Section)
		wantOK   bool
		check    func(t *testing.T, s types.Session, milk *types.Item, dairy *types.Section)
	}{
		{
			name: "successful batch is committed",
			mutation: func(t *testing.T, s types.Session, milk *types.Item, dairy *types.Section) {
				milk.Toggle()
				dairy.Name = "Dairy & Eggs"
			},
			wantOK: true,
			check: func(t *testing.T, s types.Session, milk *types.Item, dairy *types.Section) {
				committed, ok := s.Committed(milk)
				require.True(t, ok)
				assert.Equal(t, true, committed[types.FieldSelected])
				assert.False(t, s.HasChanges())
			},
		},
		{
			name: "failed batch restores every touched field",
			mutation: func(t *testing.T, s types.Session, milk *types.Item, dairy *types.Section) {
				milk.Toggle()
				milk.Name = "Oat milk"
				dairy.Name = "Bakery"
			},
			wantOK: false,
			check: func(t *testing.T, s types.Session, milk *types.Item, dairy *types.Section) {
				assert.Equal(t, "Milk", milk.Name)
				assert.False(t, milk.Selected)
				assert.Equal(t, "Dairy", dairy.Name)
				assert.False(t, s.HasChanges())
			},
		},
		{
			name: "failed batch forgets inserted records",
			mutation: func(t *testing.T, s types.Session, milk *types.Item, dairy *types.Section) {
				rec, err := s.Insert(types.ItemsEntity)
				if assert.NoError(t, err) {
					rec.(*types.Item).Name = "No section"
				}
			},
			wantOK: false,
			check: func(t *testing.T, s types.Session, milk *types.Item, dairy *types.Section) {
				n, err := Count[*types.Item](s, nil)
				require.NoError(t, err)
				assert.Equal(t, 1, n)
			},
		},
		{
			name:     "empty batch succeeds",
			mutation: func(t *testing.T, s types.Session, milk *types.Item, dairy *types.Section) {},
			wantOK:   true,
			check: func(t *testing.T, s types.Session, milk *types.Item, dairy *types.Section) {
				assert.False(t, s.HasChanges())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, s := setupSession(t)
			dairy := section(t, s, "Dairy")
			section(t, s, "Bakery")
			milk := item(t, s, dairy, "Milk", false)
			require.True(t, SaveOrRollback(s))

			ok := ApplyAndSave(s, func() { tt.mutation(t, s, milk, dairy) })
			assert.Equal(t, tt.wantOK, ok)
			tt.check(t, s, milk, dairy)
		})
	}
}

func TestApplyAndSave_NameFreedInBatch(t *testing.T) {
	tests := []struct {
		name     string
		mutation func(t *testing.T, s types.Session, dairy, bakery *types.Section, milk *types.Item)
		want     []string
	}{
		{
			name: "delete and recreate",
			mutation: func(t *testing.T, s types.Session, dairy, bakery *types.Section, milk *types.Item) {
				milk.Section = bakery
				assert.NoError(t, s.Delete(dairy))
				fresh, err := FindOrCreate(s, types.Eq(types.FieldName, "Dairy"), func(sec *types.Section) { sec.Name = "Dairy" })
				if assert.NoError(t, err) {
					assert.NotEqual(t, dairy.ID, fresh.ID)
				}
			},
			want: []string{"Bakery", "Dairy"},
		},
		{
			name: "delete and rename another",
			mutation: func(t *testing.T, s types.Session, dairy, bakery *types.Section, milk *types.Item) {
				milk.Section = bakery
				assert.NoError(t, s.Delete(dairy))
				bakery.Name = "Dairy"
			},
			want: []string{"Dairy"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, s := setupSession(t)
			dairy := section(t, s, "Dairy")
			bakery := section(t, s, "Bakery")
			milk := item(t, s, dairy, "Milk", false)
			require.True(t, SaveOrRollback(s))

			ok := ApplyAndSave(s, func() { tt.mutation(t, s, dairy, bakery, milk) })
			require.True(t, ok)

			sections, err := Fetch[*types.Section](s, nil)
			require.NoError(t, err)
			got := make([]string, len(sections))
			for i, sec := range sections {
				got[i] = sec.Name
			}
			assert.Equal(t, tt.want, got)
			assert.Same(t, bakery, milk.Section)
		})
	}
}

func TestApply_ClosedSession(t *testing.T) {
	_, s := setupSession(t)
	require.NoError(t, s.Close())

	ran := false
	err := Apply(s, func() error { ran = true; return nil })
	assert.ErrorIs(t, err, types.ErrSessionClosed)
	assert.False(t, ran)
	assert.False(t, ApplyAndSave(s, func() { ran = true }))
	assert.False(t, ran)
}

func TestPerformChanges(t *testing.T) {
	_, s := setupSession(t)
	dairy := section(t, s, "Dairy")
	require.True(t, SaveOrRollback(s))

	result := make(chan bool, 1)
	PerformChanges(s, func() { dairy.Name = "Fridge" }, func(ok bool) { result <- ok })
	assert.True(t, <-result)

	PerformChanges(s, func() { dairy.Name = "" }, func(ok bool) { result <- ok })
	assert.False(t, <-result)
	assert.Equal(t, "Fridge", dairy.Name)
}

func TestApply(t *testing.T) {
	_, s := setupSession(t)
	dairy := section(t, s, "Dairy")
	milk := item(t, s, dairy, "Milk", false)
	require.True(t, SaveOrRollback(s))

	err := Apply(s, func() error { return s.Delete(dairy) })
	assert.ErrorIs(t, err, types.ErrPersistence)
	assert.ErrorIs(t, err, types.ErrSectionNotEmpty)
	assert.False(t, s.HasChanges())

	err = Apply(s, func() error {
		milk.Name = "changed"
		return types.ErrInvalidData
	})
	assert.ErrorIs(t, err, types.ErrInvalidData)
	assert.Equal(t, "Milk", milk.Name)

	require.NoError(t, Apply(s, func() error { milk.Toggle(); return nil }))
	assert.True(t, milk.Selected)
	assert.False(t, s.HasChanges())
}

func TestRevertChanges(t *testing.T) {
	_, s := setupSession(t)
	dairy := section(t, s, "Dairy")
	bakery := section(t, s, "Bakery")
	milk := item(t, s, dairy, "Milk", false)
	butter := item(t, s, dairy, "Butter", false)
	require.True(t, SaveOrRollback(s))

	t.Run("restores only modified fields of one record", func(t *testing.T) {
		milk.Name = "Oat milk"
		butter.Name = "Margarine"

		require.NoError(t, RevertChanges(s, milk))
		assert.Equal(t, "Milk", milk.Name)
		assert.Equal(t, "Margarine", butter.Name, "other records untouched")
		butter.Name = "Butter"
	})

	t.Run("restores all uncommitted fields including references", func(t *testing.T) {
		milk.Name = "Oat milk"
		milk.Selected = true
		milk.Section = bakery

		require.NoError(t, RevertChanges(s, milk))
		assert.Equal(t, "Milk", milk.Name)
		assert.False(t, milk.Selected)
		assert.Same(t, dairy, milk.Section)
		assert.False(t, s.HasChanges())
	})

	t.Run("no-op without changes", func(t *testing.T) {
		require.NoError(t, RevertChanges(s, milk))
		assert.Equal(t, "Milk", milk.Name)
	})

	t.Run("no-op for inserted records", func(t *testing.T) {
		fresh := item(t, s, dairy, "Cream", false)
		require.NoError(t, RevertChanges(s, fresh))
		assert.Equal(t, "Cream", fresh.Name)
		s.Rollback()
	})
}
