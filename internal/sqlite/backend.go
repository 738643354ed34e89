// Package sqlite implements the sectional store on an embedded SQLite
// database. A Backend owns the database handle; each Session is an
// independent unit of work with its own identity map and serial queue.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/sectional/internal/sqlite/migrations"
	"github.com/mesh-intelligence/sectional/pkg/types"
)

// DatabaseFile is the name of the SQLite file inside the data directory.
const DatabaseFile = "sectional.db"

const tracerName = "github.com/mesh-intelligence/sectional/internal/sqlite"

var _ types.Store = (*Backend)(nil)

// Backend implements types.Store over SQLite.
type Backend struct {
	mu       sync.RWMutex
	attached bool
	config   types.Config
	db       *sql.DB

	model  *types.Model
	logger *log.Logger
	tracer trace.Tracer

	sessMu   sync.Mutex
	sessions map[*Session]struct{}
}

// Option configures a Backend.
type Option func(*Backend)

// WithLogger sets the logger used for diagnostics. The default discards.
func WithLogger(l *log.Logger) Option {
	return func(b *Backend) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithModel replaces the entity model. The database schema must have a
// table for every entity in it.
func WithModel(m *types.Model) Option {
	return func(b *Backend) {
		if m != nil {
			b.model = m
		}
	}
}

// NewBackend creates a detached backend; call Attach before use.
func NewBackend(opts ...Option) *Backend {
	b := &Backend{
		model:    types.DefaultModel,
		logger:   log.New(io.Discard, "", 0),
		tracer:   otel.Tracer(tracerName),
		sessions: make(map[*Session]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Attach opens <DataDir>/sectional.db, creating the directory when needed,
// and applies pending migrations. Opening is bounded by ctx and
// config.OpenTimeout; any failure wraps types.ErrStartupFailure.
func (b *Backend) Attach(ctx context.Context, config types.Config) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.attached {
		return types.ErrAlreadyAttached
	}
	if err := config.Validate(); err != nil {
		return fmt.Errorf("%w: %w", types.ErrStartupFailure, err)
	}

	ctx, cancel := context.WithTimeout(ctx, config.GetOpenTimeout())
	defer cancel()

	type opened struct {
		db  *sql.DB
		err error
	}
	done := make(chan opened, 1)
	go func() {
		db, err := openDatabase(ctx, config.DataDir)
		done <- opened{db: db, err: err}
	}()

	var db *sql.DB
	select {
	case res := <-done:
		if res.err != nil {
			return fmt.Errorf("%w: %w", types.ErrStartupFailure, res.err)
		}
		db = res.db
	case <-ctx.Done():
		go func() {
			if res := <-done; res.db != nil {
				res.db.Close()
			}
		}()
		return fmt.Errorf("%w: opening store: %w", types.ErrStartupFailure, ctx.Err())
	}

	b.db = db
	b.config = config
	b.attached = true
	b.logger.Printf("attached store at %s", filepath.Join(dataDirOrCwd(config.DataDir), DatabaseFile))
	return nil
}

func openDatabase(ctx context.Context, dataDir string) (*sql.DB, error) {
	dataDir = dataDirOrCwd(dataDir)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}

	dsn := filepath.Join(dataDir, DatabaseFile) +
		"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, db, migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return db, nil
}

func dataDirOrCwd(dir string) string {
	if dir == "" {
		return "."
	}
	return dir
}

// Detach closes every open session, then the database. After Detach,
// NewSession returns ErrStoreDetached. Detach is idempotent.
func (b *Backend) Detach() error {
	b.sessMu.Lock()
	open := make([]*Session, 0, len(b.sessions))
	for s := range b.sessions {
		open = append(open, s)
	}
	b.sessMu.Unlock()

	for _, s := range open {
		s.Close()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return nil
	}
	b.attached = false
	if b.db != nil {
		if err := b.db.Close(); err != nil {
			return fmt.Errorf("closing sqlite db: %w", err)
		}
		b.db = nil
	}
	return nil
}

// NewSession returns a new unit of work over the attached database.
func (b *Backend) NewSession() (types.Session, error) {
	return b.newSession()
}

func (b *Backend) newSession() (*Session, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.attached {
		return nil, types.ErrStoreDetached
	}
	s := newSession(b)

	b.sessMu.Lock()
	b.sessions[s] = struct{}{}
	b.sessMu.Unlock()
	return s, nil
}

func (b *Backend) forgetSession(s *Session) {
	b.sessMu.Lock()
	delete(b.sessions, s)
	b.sessMu.Unlock()
}

// withDB runs fn with the open database under the read lock.
func (b *Backend) withDB(fn func(db *sql.DB) error) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.attached {
		return types.ErrStoreDetached
	}
	return fn(b.db)
}

// broadcast hands committed changes to every session except origin. Each
// sibling merges them on its own queue.
func (b *Backend) broadcast(origin *Session, changes []types.Change) {
	if len(changes) == 0 {
		return
	}
	b.sessMu.Lock()
	targets := make([]*Session, 0, len(b.sessions))
	for s := range b.sessions {
		if s != origin {
			targets = append(targets, s)
		}
	}
	b.sessMu.Unlock()

	for _, s := range targets {
		sib := s
		sib.Perform(func() { sib.mergeChanges(changes) })
	}
}

// generateUUID generates a new UUID v7 for record IDs.
func generateUUID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}
