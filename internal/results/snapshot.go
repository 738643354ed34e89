package results

import (
	"fmt"

	"github.com/mesh-intelligence/sectional/pkg/repo"
	"github.com/mesh-intelligence/sectional/pkg/types"
)

type sectionSnap struct {
	id   string
	name string
	rec  *types.Section
}

type itemSnap struct {
	id       string
	name     string
	selected bool
	rec      *types.Item
}

// snapshot captures values as well as records; records are mutated in
// place, so diffs compare against the copied values.
type snapshot struct {
	sections []sectionSnap
	items    [][]itemSnap
}

func load(s types.Session) (snapshot, error) {
	sections, err := repo.Fetch[*types.Section](s, nil)
	if err != nil {
		return snapshot{}, fmt.Errorf("loading sections: %w", err)
	}
	items, err := repo.Fetch[*types.Item](s, nil)
	if err != nil {
		return snapshot{}, fmt.Errorf("loading items: %w", err)
	}

	snap := snapshot{
		sections: make([]sectionSnap, len(sections)),
		items:    make([][]itemSnap, len(sections)),
	}
	index := make(map[string]int, len(sections))
	for i, sec := range sections {
		snap.sections[i] = sectionSnap{id: sec.ID, name: sec.Name, rec: sec}
		index[sec.ID] = i
	}
	for _, it := range items {
		i, ok := index[it.Section.RecordID()]
		if !ok {
			continue
		}
		snap.items[i] = append(snap.items[i], itemSnap{id: it.ID, name: it.Name, selected: it.Selected, rec: it})
	}
	return snap, nil
}

func (s snapshot) item(p Path) (*types.Item, error) {
	if p.Section < 0 || p.Section >= len(s.items) || p.Row < 0 || p.Row >= len(s.items[p.Section]) {
		return nil, fmt.Errorf("%w: no item at %s", types.ErrNotFound, p)
	}
	return s.items[p.Section][p.Row].rec, nil
}

func (s snapshot) paths() map[string]Path {
	out := make(map[string]Path)
	for si, rows := range s.items {
		for ri, it := range rows {
			out[it.id] = Path{Section: si, Row: ri}
		}
	}
	return out
}

// diff reports the section and item changes that turn prev into next.
func diff(prev, next snapshot) (sections, items []Change) {
	sections = diffSections(prev, next)
	items = diffItems(prev, next)
	return sections, items
}

func diffSections(prev, next snapshot) []Change {
	oldIdx := make(map[string]int, len(prev.sections))
	for i, s := range prev.sections {
		oldIdx[s.id] = i
	}
	newIdx := make(map[string]int, len(next.sections))
	for i, s := range next.sections {
		newIdx[s.id] = i
	}

	var deletes, inserts, moves, updates []Change
	for i, s := range prev.sections {
		if _, ok := newIdx[s.id]; !ok {
			deletes = append(deletes, Change{Type: types.ChangeDelete, ID: s.id, Path: sectionPath(i)})
		}
	}
	for i, s := range next.sections {
		if _, ok := oldIdx[s.id]; !ok {
			inserts = append(inserts, Change{Type: types.ChangeInsert, ID: s.id, NewPath: sectionPath(i)})
		}
	}

	still := stayedInOrder(sectionIDs(next.sections), survivorRanks(sectionIDs(prev.sections), newIdx))
	for i, s := range next.sections {
		j, ok := oldIdx[s.id]
		if !ok {
			continue
		}
		ch := Change{ID: s.id, Path: sectionPath(j), NewPath: sectionPath(i)}
		switch {
		case !still[s.id]:
			ch.Type = types.ChangeMove
			moves = append(moves, ch)
		case prev.sections[j].name != s.name:
			ch.Type = types.ChangeUpdate
			updates = append(updates, ch)
		}
	}
	return concat(deletes, inserts, moves, updates)
}

func diffItems(prev, next snapshot) []Change {
	oldPaths := prev.paths()
	newPaths := next.paths()
	oldByID := make(map[string]itemSnap, len(oldPaths))
	for _, rows := range prev.items {
		for _, it := range rows {
			oldByID[it.id] = it
		}
	}

	var deletes, inserts, moves, updates []Change
	for si, rows := range prev.items {
		for ri, it := range rows {
			if _, ok := newPaths[it.id]; !ok {
				deletes = append(deletes, Change{Type: types.ChangeDelete, ID: it.id, Path: Path{Section: si, Row: ri}})
			}
		}
	}

	oldSection := make(map[string]string, len(oldPaths))
	for si, rows := range prev.items {
		for _, it := range rows {
			oldSection[it.id] = prev.sections[si].id
		}
	}

	for si, rows := range next.items {
		sectionID := next.sections[si].id
		var oldRows []string
		if oi, ok := sectionIndex(prev, sectionID); ok {
			for _, it := range prev.items[oi] {
				oldRows = append(oldRows, it.id)
			}
		}
		newRows := make([]string, len(rows))
		for ri, it := range rows {
			newRows[ri] = it.id
		}
		stayed := make(map[string]int)
		for _, id := range newRows {
			if oldSection[id] == sectionID {
				stayed[id] = 0
			}
		}
		still := stayedInOrder(newRows, survivorRanks(oldRows, stayed))

		for ri, it := range rows {
			np := Path{Section: si, Row: ri}
			op, existed := oldPaths[it.id]
			if !existed {
				inserts = append(inserts, Change{Type: types.ChangeInsert, ID: it.id, NewPath: np})
				continue
			}
			ch := Change{ID: it.id, Path: op, NewPath: np}
			old := oldByID[it.id]
			switch {
			case oldSection[it.id] != sectionID || !still[it.id]:
				ch.Type = types.ChangeMove
				moves = append(moves, ch)
			case old.name != it.name || old.selected != it.selected:
				ch.Type = types.ChangeUpdate
				updates = append(updates, ch)
			}
		}
	}
	return concat(deletes, inserts, moves, updates)
}

func sectionPath(i int) Path { return Path{Section: i, Row: SectionRow} }

func sectionIDs(sections []sectionSnap) []string {
	out := make([]string, len(sections))
	for i, s := range sections {
		out[i] = s.id
	}
	return out
}

func sectionIndex(s snapshot, id string) (int, bool) {
	for i, sec := range s.sections {
		if sec.id == id {
			return i, true
		}
	}
	return 0, false
}

// survivorRanks numbers the ids that are also keys of keep, in order.
func survivorRanks(ids []string, keep map[string]int) map[string]int {
	ranks := make(map[string]int, len(ids))
	n := 0
	for _, id := range ids {
		if _, ok := keep[id]; ok {
			ranks[id] = n
			n++
		}
	}
	return ranks
}

// stayedInOrder picks the ids of order that keep their relative position:
// the longest run of ids whose old ranks increase. Ids outside it are moves.
// Ids without a rank are ignored.
func stayedInOrder(order []string, rank map[string]int) map[string]bool {
	var seq []string
	for _, id := range order {
		if _, ok := rank[id]; ok {
			seq = append(seq, id)
		}
	}

	// tails[k] is the index in seq of the smallest tail of an increasing
	// run of length k+1.
	tails := make([]int, 0, len(seq))
	prevIdx := make([]int, len(seq))
	for i, id := range seq {
		r := rank[id]
		lo, hi := 0, len(tails)
		for lo < hi {
			mid := (lo + hi) / 2
			if rank[seq[tails[mid]]] < r {
				lo = mid + 1
			} else {
				hi = mid
			}
		}
		if lo > 0 {
			prevIdx[i] = tails[lo-1]
		} else {
			prevIdx[i] = -1
		}
		if lo == len(tails) {
			tails = append(tails, i)
		} else {
			tails[lo] = i
		}
	}

	out := make(map[string]bool, len(tails))
	if len(tails) == 0 {
		return out
	}
	for i := tails[len(tails)-1]; i >= 0; i = prevIdx[i] {
		out[seq[i]] = true
	}
	return out
}

func concat(groups ...[]Change) []Change {
	var out []Change
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}
