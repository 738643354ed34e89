package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func newExportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export <dir>",
		Short: "Write the store to JSONL files",
		Long:  "Write sections.jsonl, items.jsonl and settings.jsonl into dir.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.backend.Export(cmd.Context(), args[0]); err != nil {
				return sysError(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Exported to", args[0])
			return nil
		},
	}
}

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <dir>",
		Short: "Load JSONL files into the store",
		Long: `Upsert the records of sections.jsonl, items.jsonl and settings.jsonl from dir
by ID. Malformed or invalid records are skipped and counted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			stats, err := st.backend.Import(cmd.Context(), args[0])
			if err != nil {
				return sysError(err)
			}

			out := cmd.OutOrStdout()
			if a.jsonMode {
				return printJSON(out, map[string]any{"loaded": stats.Loaded, "skipped": stats.Skipped})
			}
			entities := make([]string, 0, len(stats.Loaded))
			for e := range stats.Loaded {
				entities = append(entities, e)
			}
			sort.Strings(entities)
			for _, e := range entities {
				fmt.Fprintf(out, "%-10s loaded %d, skipped %d\n", e, stats.Loaded[e], stats.Skipped[e])
			}
			return nil
		},
	}
}
