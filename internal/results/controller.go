// Package results keeps an ordered, sectioned view of a session's Sections
// and Items and reports how it changes. After every commit that touches
// sections or items the controller re-reads both, diffs against its last
// snapshot and hands the differences to a Delegate inside one
// WillChange/DidChange bracket.
package results

import (
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/mesh-intelligence/sectional/pkg/repo"
	"github.com/mesh-intelligence/sectional/pkg/types"
)

// SectionRow is the Row of a Path that addresses a whole section.
const SectionRow = -1

// Path addresses a row: the section index and the item's row within it.
type Path struct {
	Section int `json:"section"`
	Row     int `json:"row"`
}

func (p Path) String() string { return fmt.Sprintf("[%d,%d]", p.Section, p.Row) }

// Change is one positional change. Path is the position before the commit
// (delete, update, move) and NewPath the position after it (insert,
// update, move).
type Change struct {
	Type    types.ChangeType
	ID      string
	Path    Path
	NewPath Path
}

// Delegate receives positional changes. Calls for one commit are bracketed
// by WillChange and DidChange. Section changes come before item changes;
// within each group deletes come first, then inserts, moves and updates.
type Delegate interface {
	WillChange()
	DidChangeSection(c Change)
	DidChangeItem(c Change)
	DidChange()
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets where refresh failures are reported.
func WithLogger(l *log.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// Controller is a sectioned results controller over one session.
type Controller struct {
	s        types.Session
	delegate Delegate
	logger   *log.Logger

	emitMu sync.Mutex

	mu         sync.Mutex
	snap       snapshot
	userDriven bool
	cancel     func()
}

// NewController returns a controller over s. delegate may be nil. Call
// PerformFetch to load the initial snapshot and start observing.
func NewController(s types.Session, delegate Delegate, opts ...Option) *Controller {
	c := &Controller{
		s:        s,
		delegate: delegate,
		logger:   log.New(io.Discard, "", 0),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PerformFetch loads the current sections and items and subscribes to the
// session's commits. It emits no changes.
func (c *Controller) PerformFetch() error {
	snap, err := load(c.s)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap = snap
	if c.cancel == nil {
		c.cancel = c.s.Observe(c.handle)
	}
	return nil
}

// Close stops observing the session.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// NumSections returns the number of sections.
func (c *Controller) NumSections() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.snap.sections)
}

// Section returns the section at index i, or nil when out of range.
func (c *Controller) Section(i int) *types.Section {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i < 0 || i >= len(c.snap.sections) {
		return nil
	}
	return c.snap.sections[i].rec
}

// NumRows returns the number of items in section i.
func (c *Controller) NumRows(i int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i < 0 || i >= len(c.snap.items) {
		return 0
	}
	return len(c.snap.items[i])
}

// Item returns the item at p.
func (c *Controller) Item(p Path) (*types.Item, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap.item(p)
}

// PathOf returns the current position of item.
func (c *Controller) PathOf(item *types.Item) (Path, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.snap.paths()[item.RecordID()]
	return p, ok
}

// ToggleItem flips the selection of the item at p and returns its new
// position.
func (c *Controller) ToggleItem(p Path) (Path, error) {
	item, err := c.Item(p)
	if err != nil {
		return Path{}, err
	}
	if err := repo.Apply(c.s, func() error {
		item.Toggle()
		return nil
	}); err != nil {
		return p, fmt.Errorf("toggling item: %w", err)
	}
	np, _ := c.PathOf(item)
	return np, nil
}

// DeleteItem deletes the item at p.
func (c *Controller) DeleteItem(p Path) error {
	item, err := c.Item(p)
	if err != nil {
		return err
	}
	if err := repo.Apply(c.s, func() error { return c.s.Delete(item) }); err != nil {
		return fmt.Errorf("deleting item: %w", err)
	}
	return nil
}

// MoveItem handles a row the user has already dragged from one position
// to another: the item is reassigned to the destination section and the
// echoed move is not reported. Items are ordered by the store, so when the
// item's sorted position differs from to, a single Move from to to the
// sorted position is reported. When the save fails, a Move from to back to
// from is reported and the error returned.
//
// Suppression covers only the commit made here. Commits queued ahead of
// the move are reported as usual.
func (c *Controller) MoveItem(from, to Path) error {
	item, err := c.Item(from)
	if err != nil {
		return err
	}
	dest := c.Section(to.Section)
	if dest == nil {
		return fmt.Errorf("%w: section %d", types.ErrNotFound, to.Section)
	}

	err = types.ErrSessionClosed
	c.s.PerformAndWait(func() {
		c.setUserDriven(true)
		item.Section = dest
		err = repo.Commit(c.s)
		c.setUserDriven(false)

		if err != nil {
			c.emit(nil, []Change{{Type: types.ChangeMove, ID: item.RecordID(), Path: to, NewPath: from}})
			return
		}
		if actual, ok := c.PathOf(item); ok && actual != to {
			c.emit(nil, []Change{{Type: types.ChangeMove, ID: item.RecordID(), Path: to, NewPath: actual}})
		}
	})
	if err != nil {
		return fmt.Errorf("moving item: %w", err)
	}
	return nil
}

func (c *Controller) setUserDriven(on bool) {
	c.mu.Lock()
	c.userDriven = on
	c.mu.Unlock()
}

// handle is the session observer.
func (c *Controller) handle(changes []types.Change) {
	relevant := false
	for _, ch := range changes {
		if ch.Entity == types.SectionsEntity || ch.Entity == types.ItemsEntity {
			relevant = true
			break
		}
	}
	if !relevant {
		return
	}

	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	next, err := load(c.s)
	if err != nil {
		c.logger.Printf("refreshing results: %v", err)
		return
	}

	c.mu.Lock()
	prev := c.snap
	c.snap = next
	suppress := c.userDriven
	c.mu.Unlock()

	if suppress {
		return
	}
	sections, items := diff(prev, next)
	c.deliver(sections, items)
}

func (c *Controller) emit(sections, items []Change) {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()
	c.deliver(sections, items)
}

func (c *Controller) deliver(sections, items []Change) {
	if c.delegate == nil || len(sections)+len(items) == 0 {
		return
	}
	c.delegate.WillChange()
	for _, ch := range sections {
		c.delegate.DidChangeSection(ch)
	}
	for _, ch := range items {
		c.delegate.DidChangeItem(ch)
	}
	c.delegate.DidChange()
}
