package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSectionsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sections",
		Short: "List sections with their item counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			overview, err := st.catalog.Overview()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if a.jsonMode {
				return printJSON(out, overview)
			}
			if len(overview) == 0 {
				fmt.Fprintln(out, "no sections")
				return nil
			}
			for _, sum := range overview {
				fmt.Fprintf(out, "%-30s %3d items, %3d selected  %s\n",
					sum.Section.Name, sum.Items, sum.Selected, sum.Section.ID)
			}
			return nil
		},
	}
}

func newSectionCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "section",
		Short: "Add, rename or delete a section",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "add <name>",
			Short: "Add a section",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				st, err := a.openStore(cmd.Context())
				if err != nil {
					return err
				}
				defer st.Close()

				sec, err := st.catalog.AddSection(args[0])
				if err != nil {
					return err
				}
				if a.jsonMode {
					return printJSON(cmd.OutOrStdout(), sec)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added section %q: %s\n", sec.Name, sec.ID)
				return nil
			},
		},
		&cobra.Command{
			Use:   "rename <section> <name>",
			Short: "Rename a section",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				st, err := a.openStore(cmd.Context())
				if err != nil {
					return err
				}
				defer st.Close()

				sec, err := st.catalog.FindSection(args[0])
				if err != nil {
					return err
				}
				if err := st.catalog.RenameSection(sec, args[1]); err != nil {
					return err
				}
				if a.jsonMode {
					return printJSON(cmd.OutOrStdout(), sec)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Renamed section to %q\n", sec.Name)
				return nil
			},
		},
		&cobra.Command{
			Use:   "delete <section>",
			Short: "Delete an empty section",
			Long:  "Delete a section by ID or name. Sections that still own items are refused.",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				st, err := a.openStore(cmd.Context())
				if err != nil {
					return err
				}
				defer st.Close()

				sec, err := st.catalog.FindSection(args[0])
				if err != nil {
					return err
				}
				if err := st.catalog.DeleteSection(sec); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted section %q\n", sec.Name)
				return nil
			},
		},
	)
	return cmd
}
