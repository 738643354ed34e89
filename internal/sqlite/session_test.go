package sqlite

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/sectional/pkg/repo"
	"github.com/mesh-intelligence/sectional/pkg/types"
)

func insertSection(t *testing.T, s *Session, name string) *types.Section {
	t.Helper()
	rec, err := s.Insert(types.SectionsEntity)
	require.NoError(t, err)
	sec := rec.(*types.Section)
	sec.Name = name
	return sec
}

func insertItem(t *testing.T, s *Session, sec *types.Section, name string, selected bool) *types.Item {
	t.Helper()
	rec, err := s.Insert(types.ItemsEntity)
	require.NoError(t, err)
	item := rec.(*types.Item)
	item.Name = name
	item.Selected = selected
	item.Section = sec
	return item
}

func names(records []types.Entity) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Fields()[types.FieldName].(string)
	}
	return out
}

func itemsRequest(pred types.Predicate) types.FetchRequest {
	return types.FetchRequest{
		Entity:          types.ItemsEntity,
		Predicate:       pred,
		SortDescriptors: (*types.Item)(nil).DefaultSort(),
	}
}

func TestSession_InsertAssignsIDs(t *testing.T) {
	_, s := setupBackend(t)

	a := insertSection(t, s, "A")
	b := insertSection(t, s, "B")
	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.True(t, s.HasChanges())

	_, ok := s.Committed(a)
	assert.False(t, ok, "inserted record has no committed values")

	_, err := s.Insert("widgets")
	assert.ErrorIs(t, err, types.ErrUnknownEntity)
}

func TestSession_SaveAndFetch(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, s *Session)
		check func(t *testing.T, s *Session)
	}{
		{
			name: "items sort unselected first then by name",
			setup: func(t *testing.T, s *Session) {
				sec := insertSection(t, s, "Dairy")
				insertItem(t, s, sec, "A", true)
				insertItem(t, s, sec, "C", false)
				insertItem(t, s, sec, "B", false)
			},
			check: func(t *testing.T, s *Session) {
				got, err := s.Execute(itemsRequest(types.True()))
				require.NoError(t, err)
				assert.Equal(t, []string{"B", "C", "A"}, names(got))
			},
		},
		{
			name: "sections sort by name",
			setup: func(t *testing.T, s *Session) {
				insertSection(t, s, "Beta")
				insertSection(t, s, "Alpha")
			},
			check: func(t *testing.T, s *Session) {
				got, err := s.Execute(types.FetchRequest{
					Entity:          types.SectionsEntity,
					SortDescriptors: []types.SortDescriptor{types.Asc(types.FieldName)},
				})
				require.NoError(t, err)
				assert.Equal(t, []string{"Alpha", "Beta"}, names(got))
			},
		},
		{
			name: "predicate filters by owning section",
			setup: func(t *testing.T, s *Session) {
				a := insertSection(t, s, "A")
				b := insertSection(t, s, "B")
				insertItem(t, s, a, "in-a", false)
				insertItem(t, s, b, "in-b", false)
			},
			check: func(t *testing.T, s *Session) {
				secs, err := s.Execute(types.FetchRequest{Entity: types.SectionsEntity, Predicate: types.Eq(types.FieldName, "B")})
				require.NoError(t, err)
				require.Len(t, secs, 1)

				got, err := s.Execute(itemsRequest(types.Eq(types.FieldSection, secs[0])))
				require.NoError(t, err)
				assert.Equal(t, []string{"in-b"}, names(got))
			},
		},
		{
			name: "limit and offset",
			setup: func(t *testing.T, s *Session) {
				sec := insertSection(t, s, "S")
				for _, n := range []string{"a", "b", "c", "d"} {
					insertItem(t, s, sec, n, false)
				}
			},
			check: func(t *testing.T, s *Session) {
				req := itemsRequest(types.True())
				req.FetchLimit = 2
				req.FetchOffset = 1
				got, err := s.Execute(req)
				require.NoError(t, err)
				assert.Equal(t, []string{"b", "c"}, names(got))

				n, err := s.Count(req)
				require.NoError(t, err)
				assert.Equal(t, 2, n)

				n, err = s.Count(itemsRequest(types.True()))
				require.NoError(t, err)
				assert.Equal(t, 4, n)
			},
		},
		{
			name: "same row fetched twice is the same instance",
			setup: func(t *testing.T, s *Session) {
				insertSection(t, s, "Only")
			},
			check: func(t *testing.T, s *Session) {
				req := types.FetchRequest{Entity: types.SectionsEntity}
				first, err := s.Execute(req)
				require.NoError(t, err)
				second, err := s.Execute(req)
				require.NoError(t, err)
				assert.Same(t, first[0], second[0])
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, s := setupBackend(t)
			tt.setup(t, s)
			require.NoError(t, s.Save())
			assert.False(t, s.HasChanges())
			tt.check(t, s)
		})
	}
}

func TestSession_FreshSessionHydratesReferences(t *testing.T) {
	b, s := setupBackend(t)
	sec := insertSection(t, s, "Bakery")
	insertItem(t, s, sec, "Bread", false)
	require.NoError(t, s.Save())

	fresh, err := b.newSession()
	require.NoError(t, err)

	got, err := fresh.Execute(itemsRequest(types.True()))
	require.NoError(t, err)
	require.Len(t, got, 1)
	item := got[0].(*types.Item)
	require.NotNil(t, item.Section)
	assert.Equal(t, sec.ID, item.Section.ID)
	assert.Empty(t, item.Section.Name, "reference starts as a fault")

	residents := fresh.Registered()
	var fault bool
	for _, r := range residents {
		if r.Record == types.Entity(item.Section) {
			fault = r.Fault
		}
	}
	assert.True(t, fault)

	require.NoError(t, fresh.Fulfill(item.Section))
	assert.Equal(t, "Bakery", item.Section.Name)
}

func TestSession_FetchMergesPendingChanges(t *testing.T) {
	_, s := setupBackend(t)
	sec := insertSection(t, s, "S")
	milk := insertItem(t, s, sec, "Milk", false)
	eggs := insertItem(t, s, sec, "Eggs", false)
	require.NoError(t, s.Save())

	insertItem(t, s, sec, "Apples", false)
	require.NoError(t, s.Delete(eggs))
	milk.Selected = true

	got, err := s.Execute(itemsRequest(types.True()))
	require.NoError(t, err)
	assert.Equal(t, []string{"Apples", "Milk"}, names(got))

	got, err = s.Execute(itemsRequest(types.Eq(types.FieldSelected, false)))
	require.NoError(t, err)
	assert.Equal(t, []string{"Apples"}, names(got))

	req := itemsRequest(types.True())
	req.FetchLimit = 1
	got, err = s.Execute(req)
	require.NoError(t, err)
	assert.Equal(t, []string{"Apples"}, names(got))

	n, err := s.Count(itemsRequest(types.True()))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSession_CountLeavesIdentityMapAlone(t *testing.T) {
	b, s1 := setupBackend(t)
	sec := insertSection(t, s1, "S")
	for _, name := range []string{"Milk", "Eggs", "Butter"} {
		insertItem(t, s1, sec, name, false)
	}
	require.NoError(t, s1.Save())

	s, err := b.newSession()
	require.NoError(t, err)
	got, err := s.Execute(itemsRequest(types.In(types.FieldName, "Milk", "Eggs")))
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, r := range got {
		it := r.(*types.Item)
		if it.Name == "Milk" {
			it.Selected = true
		} else {
			require.NoError(t, s.Delete(it))
		}
	}
	insertItem(t, s, sec, "Cream", false)

	residentItems := func() int {
		n := 0
		for _, r := range s.Registered() {
			if r.Record.EntityName() == types.ItemsEntity {
				n++
			}
		}
		return n
	}
	before := residentItems()

	unselected := itemsRequest(types.Eq(types.FieldSelected, false))
	n, err := s.Count(unselected)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "Butter from storage plus the inserted Cream")
	assert.Equal(t, before, residentItems(), "count registers nothing")

	n, err = s.Count(itemsRequest(types.True()))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	fetched, err := s.Execute(unselected)
	require.NoError(t, err)
	assert.Equal(t, []string{"Butter", "Cream"}, names(fetched))
}

func TestSession_UnknownFieldIsRejected(t *testing.T) {
	_, s := setupBackend(t)

	_, err := s.Execute(types.FetchRequest{Entity: types.SectionsEntity, Predicate: types.Eq("colour", "red")})
	assert.ErrorIs(t, err, types.ErrUnknownField)

	_, err = s.Execute(types.FetchRequest{
		Entity:          types.SectionsEntity,
		SortDescriptors: []types.SortDescriptor{types.Asc("colour")},
	})
	assert.ErrorIs(t, err, types.ErrUnknownField)
}

func TestSession_SaveFailures(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(t *testing.T, s *Session)
		mutate  func(t *testing.T, s *Session)
		wantErr error
	}{
		{
			name:  "duplicate section name",
			setup: func(t *testing.T, s *Session) { insertSection(t, s, "Dairy") },
			mutate: func(t *testing.T, s *Session) {
				insertSection(t, s, "Dairy")
			},
			wantErr: types.ErrDuplicateName,
		},
		{
			name: "deleting a section that owns items",
			setup: func(t *testing.T, s *Session) {
				sec := insertSection(t, s, "Dairy")
				insertItem(t, s, sec, "Milk", false)
			},
			mutate: func(t *testing.T, s *Session) {
				got, err := s.Execute(types.FetchRequest{Entity: types.SectionsEntity})
				require.NoError(t, err)
				require.NoError(t, s.Delete(got[0]))
			},
			wantErr: types.ErrSectionNotEmpty,
		},
		{
			name:  "blank name fails validation",
			setup: func(t *testing.T, s *Session) {},
			mutate: func(t *testing.T, s *Session) {
				insertSection(t, s, "  ")
			},
			wantErr: types.ErrInvalidName,
		},
		{
			name:  "item without section fails validation",
			setup: func(t *testing.T, s *Session) {},
			mutate: func(t *testing.T, s *Session) {
				insertItem(t, s, nil, "Loose", false)
			},
			wantErr: types.ErrInvalidData,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, s := setupBackend(t)
			tt.setup(t, s)
			require.NoError(t, s.Save())

			tt.mutate(t, s)
			err := s.Save()
			require.Error(t, err)
			assert.ErrorIs(t, err, types.ErrPersistence)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, s.HasChanges(), "failed save leaves changes pending")

			s.Rollback()
			assert.False(t, s.HasChanges())
		})
	}
}

func TestSession_ConcurrentFindOrCreate(t *testing.T) {
	b, s1 := setupBackend(t)
	s2, err := b.newSession()
	require.NoError(t, err)

	configure := func(sec *types.Section) { sec.Name = "Dairy" }
	first, err := repo.FindOrCreate(s1, types.Eq(types.FieldName, "Dairy"), configure)
	require.NoError(t, err)
	second, err := repo.FindOrCreate(s2, types.Eq(types.FieldName, "Dairy"), configure)
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID, "neither session sees the other's insert")

	assert.True(t, repo.SaveOrRollback(s1))
	assert.False(t, repo.SaveOrRollback(s2), "unique name rejects the later save")
	assert.False(t, s2.HasChanges())

	reader, err := b.newSession()
	require.NoError(t, err)
	got, err := reader.Execute(types.FetchRequest{
		Entity:    types.SectionsEntity,
		Predicate: types.Eq(types.FieldName, "Dairy"),
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, first.ID, got[0].RecordID())

	again, err := repo.FindOrCreate(s2, types.Eq(types.FieldName, "Dairy"), configure)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID, "retry finds the committed section")
}

func TestSession_DeletesRunFirst(t *testing.T) {
	_, s := setupBackend(t)
	dairy := insertSection(t, s, "Dairy")
	bakery := insertSection(t, s, "Bakery")
	milk := insertItem(t, s, dairy, "Milk", false)
	require.NoError(t, s.Save())

	milk.Section = bakery
	require.NoError(t, s.Delete(dairy))
	bakery.Name = "Dairy"
	require.NoError(t, s.Save(), "item leaves the deleted section and its name is reused")

	got, err := s.Execute(types.FetchRequest{Entity: types.SectionsEntity})
	require.NoError(t, err)
	assert.Equal(t, []string{"Dairy"}, names(got))

	committed, ok := s.Committed(milk)
	require.True(t, ok)
	assert.Equal(t, bakery.ID, committed[types.FieldSection])
}

func TestSession_FailedSaveWritesNothing(t *testing.T) {
	b, s := setupBackend(t)
	insertSection(t, s, "Dairy")
	require.NoError(t, s.Save())

	insertSection(t, s, "Produce")
	insertSection(t, s, "Dairy")
	require.Error(t, s.Save())
	s.Rollback()

	other, err := b.newSession()
	require.NoError(t, err)
	got, err := other.Execute(types.FetchRequest{Entity: types.SectionsEntity})
	require.NoError(t, err)
	assert.Equal(t, []string{"Dairy"}, names(got))
}

func TestSession_Rollback(t *testing.T) {
	_, s := setupBackend(t)
	a := insertSection(t, s, "A")
	b := insertSection(t, s, "B")
	item := insertItem(t, s, a, "Milk", false)
	require.NoError(t, s.Save())

	item.Name = "Oat milk"
	item.Selected = true
	item.Section = b
	require.NoError(t, s.Delete(b))
	extra := insertSection(t, s, "C")

	s.Rollback()

	assert.Equal(t, "Milk", item.Name)
	assert.False(t, item.Selected)
	assert.Same(t, a, item.Section)
	assert.False(t, s.HasChanges())

	for _, r := range s.Registered() {
		assert.NotEqual(t, extra.ID, r.Record.RecordID(), "inserted record forgotten")
	}
	got, err := s.Execute(types.FetchRequest{Entity: types.SectionsEntity})
	require.NoError(t, err)
	assert.Len(t, got, 2, "deletion undone")
}

func TestSession_DeleteInsertedRecordForgetsIt(t *testing.T) {
	_, s := setupBackend(t)
	sec := insertSection(t, s, "Temp")
	require.NoError(t, s.Delete(sec))
	assert.False(t, s.HasChanges())

	err := s.Delete(&types.Section{ID: "nope"})
	assert.ErrorIs(t, err, types.ErrNotRegistered)
}

func TestSession_ObserversReceiveCommittedChanges(t *testing.T) {
	_, s := setupBackend(t)

	var got [][]types.Change
	cancel := s.Observe(func(changes []types.Change) { got = append(got, changes) })

	sec := insertSection(t, s, "S")
	item := insertItem(t, s, sec, "Milk", false)
	require.NoError(t, s.Save())

	item.Toggle()
	require.NoError(t, s.Save())

	require.NoError(t, s.Save(), "empty save")

	require.Len(t, got, 2)
	assert.Equal(t, []types.Change{
		{Type: types.ChangeInsert, Entity: types.SectionsEntity, ID: sec.ID},
		{Type: types.ChangeInsert, Entity: types.ItemsEntity, ID: item.ID},
	}, got[0])
	assert.Equal(t, []types.Change{
		{Type: types.ChangeUpdate, Entity: types.ItemsEntity, ID: item.ID, Fields: []string{types.FieldSelected}},
	}, got[1])

	cancel()
	item.Toggle()
	require.NoError(t, s.Save())
	assert.Len(t, got, 2)
}

func TestSession_SiblingSessionsMerge(t *testing.T) {
	b, s1 := setupBackend(t)
	sec := insertSection(t, s1, "Dairy")
	milk := insertItem(t, s1, sec, "Milk", false)
	eggs := insertItem(t, s1, sec, "Eggs", false)
	require.NoError(t, s1.Save())

	s2, err := b.newSession()
	require.NoError(t, err)
	got, err := s2.Execute(itemsRequest(types.True()))
	require.NoError(t, err)
	require.Len(t, got, 2)
	var milk2, eggs2 *types.Item
	for _, r := range got {
		switch r.RecordID() {
		case milk.ID:
			milk2 = r.(*types.Item)
		case eggs.ID:
			eggs2 = r.(*types.Item)
		}
	}
	require.NotNil(t, milk2)
	require.NotNil(t, eggs2)

	var notified []types.Change
	s2.Observe(func(changes []types.Change) { notified = append(notified, changes...) })

	eggs2.Name = "Free range eggs"

	milk.Selected = true
	eggs.Selected = true
	require.NoError(t, s1.Delete(milk))
	require.NoError(t, s1.Save())

	s2.PerformAndWait(func() {})

	assert.Len(t, notified, 2)
	assert.True(t, eggs2.Selected, "remote field merged")
	assert.Equal(t, "Free range eggs", eggs2.Name, "local edit kept")
	for _, r := range s2.Registered() {
		assert.NotEqual(t, milk.ID, r.Record.RecordID(), "deleted record evicted")
	}

	require.NoError(t, s2.Save())
	committed, ok := s2.Committed(eggs2)
	require.True(t, ok)
	assert.Equal(t, true, committed[types.FieldSelected])
	assert.Equal(t, "Free range eggs", committed[types.FieldName])
}

func TestSession_PerformRunsInOrder(t *testing.T) {
	_, s := setupBackend(t)

	var mu sync.Mutex
	var order []int
	for i := 0; i < 50; i++ {
		n := i
		s.Perform(func() {
			mu.Lock()
			order = append(order, n)
			mu.Unlock()
		})
	}
	s.PerformAndWait(func() {})

	require.Len(t, order, 50)
	for i, n := range order {
		assert.Equal(t, i, n)
	}
}

func TestSession_PerformAndWaitPropagatesPanic(t *testing.T) {
	_, s := setupBackend(t)

	assert.PanicsWithValue(t, types.InvariantViolation{Reason: "boom"}, func() {
		s.PerformAndWait(func() { panic(types.InvariantViolation{Reason: "boom"}) })
	})

	ran := false
	s.PerformAndWait(func() { ran = true })
	assert.True(t, ran, "queue survives a panicking block")
}

func TestSession_ClosedSession(t *testing.T) {
	_, s := setupBackend(t)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	ran := false
	s.PerformAndWait(func() { ran = true })
	assert.False(t, ran)

	_, err := s.Execute(types.FetchRequest{Entity: types.SectionsEntity})
	assert.ErrorIs(t, err, types.ErrSessionClosed)
	assert.ErrorIs(t, s.Save(), types.ErrSessionClosed)
}
