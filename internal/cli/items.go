package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/sectional/pkg/types"
)

func newItemsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "items <section>",
		Short: "List a section's items, unchecked first",
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
			items, err := st.catalog.SectionItems(sec)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if a.jsonMode {
				if items == nil {
					items = []*types.Item{}
				}
				return printJSON(out, items)
			}
			if len(items) == 0 {
				fmt.Fprintf(out, "no items in %q\n", sec.Name)
				return nil
			}
			for _, it := range items {
				printItem(out, it)
			}
			return nil
		},
	}
}

// itemCmd builds an item subcommand that resolves args[0] to an item and
// hands it to fn.
func (a *app) itemCmd(use, short string, nargs int, fn func(st *store, item *types.Item, args []string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(nargs),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			item, err := findItem(st.catalog, args[0])
			if err != nil {
				return err
			}
			if err := fn(st, item, args[1:]); err != nil {
				return err
			}
			if a.jsonMode {
				return printJSON(cmd.OutOrStdout(), item)
			}
			printItem(cmd.OutOrStdout(), item)
			return nil
		},
	}
}

func newItemCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "item",
		Short: "Add, toggle, move, rename or delete an item",
		Long: `Items are referenced by ID or as <section>/<name>, where section is a
section ID or name.`,
	}

	add := &cobra.Command{
		Use:   "add <section> <name>",
		Short: "Add an unchecked item to a section",
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
			item, err := st.catalog.AddItem(sec, args[1])
			if err != nil {
				return err
			}
			if a.jsonMode {
				return printJSON(cmd.OutOrStdout(), item)
			}
			printItem(cmd.OutOrStdout(), item)
			return nil
		},
	}

	toggle := a.itemCmd("toggle <item>", "Check or uncheck an item", 1,
		func(st *store, item *types.Item, _ []string) error {
			return st.catalog.ToggleItem(item)
		})

	move := a.itemCmd("move <item> <section>", "Move an item to another section", 2,
		func(st *store, item *types.Item, args []string) error {
			sec, err := st.catalog.FindSection(args[0])
			if err != nil {
				return err
			}
			return st.catalog.MoveItem(item, sec)
		})

	rename := a.itemCmd("rename <item> <name>", "Rename an item", 2,
		func(st *store, item *types.Item, args []string) error {
			return st.catalog.RenameItem(item, args[0])
		})

	del := &cobra.Command{
		Use:   "delete <item>",
		Short: "Delete an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			item, err := findItem(st.catalog, args[0])
			if err != nil {
				return err
			}
			if err := st.catalog.DeleteItem(item); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted item %q\n", item.Name)
			return nil
		},
	}

	cmd.AddCommand(add, toggle, move, rename, del)
	return cmd
}
