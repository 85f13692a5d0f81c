package cmd

import (
	"github.com/spf13/cobra"

	"github.com/theapemachine/recall/pkg/memory"
)

var (
	relateConfidence float64
	relateMeta       string

	relateCmd = &cobra.Command{
		Use:   "relate <source-id> <target-id> <type>",
		Short: "Create a typed relationship between two memories",
		Long:  longRelate,
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := newStore(cmd.Context())
			if err != nil {
				return err
			}

			metadata, err := parseMetadata(relateMeta)
			if err != nil {
				return err
			}

			rel, err := store.Relate(
				cmd.Context(), args[0], args[1], args[2], relateConfidence, metadata,
			)
			if err != nil {
				return err
			}

			return printJSON(rel)
		},
	}

	relatedType string

	relatedCmd = &cobra.Command{
		Use:   "related <id>",
		Short: "List the memories a memory points at",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := newStore(cmd.Context())
			if err != nil {
				return err
			}

			var filter *memory.RelationshipType
			if relatedType != "" {
				parsed, err := memory.ParseRelationshipType(relatedType)
				if err != nil {
					return err
				}
				filter = &parsed
			}

			related, err := store.Related(cmd.Context(), args[0], filter)
			if err != nil {
				return err
			}

			for i := range related {
				related[i].Embedding = nil
			}
			return printJSON(related)
		},
	}
)

func init() {
	relateCmd.Flags().Float64Var(&relateConfidence, "confidence", 1.0, "relationship confidence in [0,1]")
	relateCmd.Flags().StringVar(&relateMeta, "meta", "", "metadata as a JSON object")

	relatedCmd.Flags().StringVar(&relatedType, "type", "", "only follow edges of this type")

	rootCmd.AddCommand(relateCmd, relatedCmd)
}

var longRelate = `
Creates a directed relationship between two existing memories. The type
must be one of UPDATE, EXTEND, or DERIVE. An UPDATE edge out of a memory
that already has one is rejected, since version chains cannot branch.
`
