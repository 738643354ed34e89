package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/mesh-intelligence/sectional/internal/catalog"
	"github.com/mesh-intelligence/sectional/internal/paths"
	"github.com/mesh-intelligence/sectional/internal/sqlite"
	"github.com/mesh-intelligence/sectional/pkg/types"
)

// store is an attached backend with one session and its catalog.
type store struct {
	dataDir string
	backend *sqlite.Backend
	session types.Session
	catalog *catalog.Catalog
}

func (s *store) Close() error { return s.backend.Detach() }

// openStore resolves the data directory, attaches a SQLite backend and
// opens a session on it. The caller must Close the store.
func (a *app) openStore(ctx context.Context) (*store, error) {
	dataDir, err := paths.ResolveDataDir(a.dataDirFlag, a.cfg.dataDir)
	if err != nil {
		return nil, sysError(fmt.Errorf("resolve data dir: %w", err))
	}

	backend := sqlite.NewBackend(sqlite.WithLogger(a.log))
	cfg := types.Config{
		Backend:     a.cfg.backend,
		DataDir:     dataDir,
		OpenTimeout: a.cfg.openTimeout,
	}
	if err := backend.Attach(ctx, cfg); err != nil {
		return nil, sysError(fmt.Errorf("attach backend: %w", err))
	}

	session, err := backend.NewSession()
	if err != nil {
		backend.Detach()
		return nil, sysError(fmt.Errorf("open session: %w", err))
	}
	return &store{
		dataDir: dataDir,
		backend: backend,
		session: session,
		catalog: catalog.New(session),
	}, nil
}

// findItem resolves an item reference: an ID, or "section/item" naming the
// item within a section.
func findItem(cat *catalog.Catalog, ref string) (*types.Item, error) {
	item, err := cat.FindItem(ref)
	if err == nil {
		return item, nil
	}
	secRef, name, ok := strings.Cut(ref, "/")
	if !ok {
		return nil, err
	}
	sec, err := cat.FindSection(secRef)
	if err != nil {
		return nil, err
	}
	return cat.FindItemByName(sec, name)
}

func printJSON(w io.Writer, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	fmt.Fprintln(w, string(out))
	return nil
}

func checkmark(selected bool) string {
	if selected {
		return "[x]"
	}
	return "[ ]"
}

func printItem(w io.Writer, item *types.Item) {
	fmt.Fprintf(w, "%s %-30s %s\n", checkmark(item.Selected), item.Name, item.ID)
}
