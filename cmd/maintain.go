package cmd

import (
	"github.com/spf13/cobra"
)

var (
	reconcileLineage bool

	reconcileCmd = &cobra.Command{
		Use:   "reconcile",
		Short: "Repair drift between the vector index and the graph",
		Long:  longReconcile,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := newStore(cmd.Context())
			if err != nil {
				return err
			}

			report, err := store.Reconcile(cmd.Context())
			if err != nil {
				return err
			}

			out := map[string]any{"stores": report}

			if reconcileLineage {
				lineage, err := store.RepairLineage(cmd.Context())
				if err != nil {
					return err
				}
				out["lineage"] = lineage
			}

			return printJSON(out)
		},
	}

	exportList    bool
	exportRestore string

	exportCmd = &cobra.Command{
		Use:   "export",
		Short: "Save, list, or restore snapshots in object storage",
		Long:  longExport,
		RunE: func(cmd *cobra.Command, args []string) error {
			snapshots, err := newSnapshots()
			if err != nil {
				return err
			}

			if exportList {
				keys, err := snapshots.Available(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(keys)
			}

			store, err := newStore(cmd.Context())
			if err != nil {
				return err
			}

			if exportRestore != "" {
				if err := snapshots.Restore(cmd.Context(), store, exportRestore); err != nil {
					return err
				}
				return printJSON(map[string]string{"restored": exportRestore})
			}

			key, err := snapshots.Save(cmd.Context(), store)
			if err != nil {
				return err
			}
			return printJSON(map[string]string{"saved": key})
		},
	}
)

func init() {
	reconcileCmd.Flags().BoolVar(&reconcileLineage, "lineage", false, "also repair version chains with zero or multiple heads")

	exportCmd.Flags().BoolVar(&exportList, "list", false, "list available snapshots instead of saving")
	exportCmd.Flags().StringVar(&exportRestore, "restore", "", "restore the snapshot with this key instead of saving")

	rootCmd.AddCommand(reconcileCmd, exportCmd)
}

var longReconcile = `
Diffs the id sets of the graph store and the vector index and repairs the
drift in the direction of the graph: orphaned vectors are deleted, and
memories missing their vector are re-embedded and re-indexed. With
--lineage, version chains left without a single latest head are also
repaired.
`

var longExport = `
Without flags, exports every memory and relationship as a timestamped
JSON snapshot in the configured bucket. --list shows the stored
snapshots; --restore imports one back into the store, re-embedding any
memory whose snapshot lacks a vector.
`
