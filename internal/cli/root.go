// Package cli implements the sectional command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/sectional/internal/catalog"
	"github.com/mesh-intelligence/sectional/internal/paths"
	"github.com/mesh-intelligence/sectional/internal/telemetry"
	"github.com/mesh-intelligence/sectional/pkg/repo"
	"github.com/mesh-intelligence/sectional/pkg/types"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// app holds global flag values and the loaded configuration for one run.
type app struct {
	configDirFlag string
	dataDirFlag   string
	jsonMode      bool
	verbose       bool

	cfg settings
	log *log.Logger
}

// NewRootCmd creates the top-level "sectional" command with global flags
// and all subcommands registered.
func NewRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{log: log.New(io.Discard, "", 0)}

	root := &cobra.Command{
		Use:   "sectional",
		Short: "Manage sections of checkable items",
		Long: `sectional keeps named sections, each owning a list of checkable items,
in a local SQLite store. Items sort unchecked first, then by name.`,
		Version: Version,
		// Errors are printed once by Run.
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if a.verbose {
				a.log = log.New(stderr, "sectional: ", log.LstdFlags)
			}
			repo.SetLogger(a.log)

			if cmd.Name() == "version" {
				return nil
			}
			configDir, err := paths.ResolveConfigDir(a.configDirFlag)
			if err != nil {
				return sysError(fmt.Errorf("resolve config dir: %w", err))
			}
			cfg, err := loadConfig(configDir)
			if err != nil {
				return sysError(err)
			}
			a.cfg = cfg
			return nil
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.PersistentFlags().StringVar(&a.configDirFlag, "config-dir", "", "configuration directory (default: platform config dir)")
	root.PersistentFlags().StringVar(&a.dataDirFlag, "data-dir", "", "data directory (default: $(CWD)/"+paths.DefaultDataDirName+")")
	root.PersistentFlags().BoolVar(&a.jsonMode, "json", false, "output in JSON format")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log diagnostics to stderr")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newInitCmd(a))
	root.AddCommand(newSectionsCmd(a))
	root.AddCommand(newSectionCmd(a))
	root.AddCommand(newItemsCmd(a))
	root.AddCommand(newItemCmd(a))
	root.AddCommand(newExportCmd(a))
	root.AddCommand(newImportCmd(a))
	root.AddCommand(newServeCmd(a))

	return root
}

// Run executes the command line in args and returns the exit code.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := NewRootCmd(stdout, stderr)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, "sectional:", err)
		return exitCode(err)
	}
	return exitSuccess
}

// Execute runs the CLI against the process arguments and exits.
func Execute() {
	ctx := context.Background()
	shutdown, err := telemetry.Setup(ctx, "sectional", Version)
	if err != nil {
		fmt.Fprintln(os.Stderr, "sectional: telemetry:", err)
	}

	code := Run(ctx, os.Args[1:], os.Stdout, os.Stderr)

	flushCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	_ = shutdown(flushCtx)
	cancel()
	os.Exit(code)
}

// exitError carries an explicit exit code.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func sysError(err error) error { return &exitError{code: exitSysError, err: err} }

// exitCode classifies err: caller mistakes exit 1, store and environment
// failures exit 2.
func exitCode(err error) int {
	if err == nil {
		return exitSuccess
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	switch {
	case errors.Is(err, types.ErrNotFound), catalog.IsConflict(err), catalog.IsInvalid(err):
		return exitUserError
	case errors.Is(err, types.ErrPersistence),
		errors.Is(err, types.ErrQuery),
		errors.Is(err, types.ErrStartupFailure):
		return exitSysError
	}
	return exitUserError
}
