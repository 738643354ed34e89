package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/sectional/internal/catalog"
)

type initResult struct {
	ConfigDir string `json:"config_dir"`
	DataDir   string `json:"data_dir"`
	Seed      string `json:"seed"`
}

func newInitCmd(a *app) *cobra.Command {
	var (
		noSeed   bool
		seedFile string
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize sectional storage",
		Long: `Create the configuration and data directories, open the store and seed it.

The seed is the demo sections unless seed_file in config.yaml or --seed-file
names a YAML file of the form:

  sections:
    - name: Dairy
      items: [Milk, Butter]

Seeding happens once per store; later runs report "already seeded".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			res := initResult{ConfigDir: a.cfg.configDir, DataDir: st.dataDir, Seed: "skipped"}
			if !noSeed {
				seed, err := a.seed(seedFile)
				if err != nil {
					return err
				}
				r, err := catalog.EnsureSeeded(st.session, seed)
				if err != nil {
					return err
				}
				res.Seed = r.String()
			}

			out := cmd.OutOrStdout()
			if a.jsonMode {
				return printJSON(out, res)
			}
			fmt.Fprintln(out, "sectional initialized")
			fmt.Fprintln(out, "  config:", res.ConfigDir)
			fmt.Fprintln(out, "  data:  ", res.DataDir)
			fmt.Fprintln(out, "  seed:  ", res.Seed)
			return nil
		},
	}
	cmd.Flags().BoolVar(&noSeed, "no-seed", false, "do not seed the store")
	cmd.Flags().StringVar(&seedFile, "seed-file", "", "YAML seed file (overrides seed_file in config.yaml)")
	return cmd
}

// seed returns the seed named by flag, then config, then the demo seed.
func (a *app) seed(flag string) (catalog.Seed, error) {
	path := flag
	if path == "" {
		path = a.cfg.seedFile
	}
	if path == "" {
		return catalog.DemoSeed(), nil
	}
	return catalog.LoadSeed(path)
}
