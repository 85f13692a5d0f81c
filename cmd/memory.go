package cmd

import (
	"github.com/spf13/cobra"
)

var (
	addSourceType string
	addSourceID   string
	addMeta       string

	addCmd = &cobra.Command{
		Use:   "add <content>",
		Short: "Store a new memory",
		Long:  longAdd,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := newStore(cmd.Context())
			if err != nil {
				return err
			}

			metadata, err := parseMetadata(addMeta)
			if err != nil {
				return err
			}

			mem, err := store.Create(cmd.Context(), args[0], metadata, addSourceType, addSourceID)
			if err != nil {
				return err
			}

			mem.Embedding = nil
			return printJSON(mem)
		},
	}

	getCmd = &cobra.Command{
		Use:   "get <id>",
		Short: "Retrieve a memory by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := newStore(cmd.Context())
			if err != nil {
				return err
			}

			mem, err := store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			mem.Embedding = nil
			return printJSON(mem)
		},
	}

	updateContent string
	updateMeta    string

	updateCmd = &cobra.Command{
		Use:   "update <id>",
		Short: "Update a memory, versioning it when the content changes",
		Long:  longUpdate,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := newStore(cmd.Context())
			if err != nil {
				return err
			}

			metadata, err := parseMetadata(updateMeta)
			if err != nil {
				return err
			}

			var content *string
			if cmd.Flags().Changed("content") {
				content = &updateContent
			}

			mem, err := store.Update(cmd.Context(), args[0], content, metadata)
			if err != nil {
				return err
			}

			mem.Embedding = nil
			return printJSON(mem)
		},
	}

	deleteCmd = &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a memory and its relationships",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := newStore(cmd.Context())
			if err != nil {
				return err
			}

			deleted, err := store.Delete(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			return printJSON(map[string]bool{"deleted": deleted})
		},
	}

	listLimit  int
	listOffset int

	listCmd = &cobra.Command{
		Use:   "list",
		Short: "List memories, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := newStore(cmd.Context())
			if err != nil {
				return err
			}

			memories, err := store.List(cmd.Context(), listLimit, listOffset)
			if err != nil {
				return err
			}

			for i := range memories {
				memories[i].Embedding = nil
			}
			return printJSON(memories)
		},
	}

	statsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Summarize the memory graph",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := newStore(cmd.Context())
			if err != nil {
				return err
			}

			stats, err := store.Stats(cmd.Context())
			if err != nil {
				return err
			}

			return printJSON(stats)
		},
	}
)

func init() {
	addCmd.Flags().StringVar(&addSourceType, "source-type", "text", "origin of the content")
	addCmd.Flags().StringVar(&addSourceID, "source-id", "", "identifier within the source")
	addCmd.Flags().StringVar(&addMeta, "meta", "", "metadata as a JSON object")

	updateCmd.Flags().StringVar(&updateContent, "content", "", "replacement content, creating a new version")
	updateCmd.Flags().StringVar(&updateMeta, "meta", "", "metadata patch as a JSON object")

	listCmd.Flags().IntVar(&listLimit, "limit", 20, "maximum number of memories")
	listCmd.Flags().IntVar(&listOffset, "offset", 0, "number of memories to skip")

	rootCmd.AddCommand(addCmd, getCmd, updateCmd, deleteCmd, listCmd, statsCmd)
}

var longAdd = `
Stores a piece of content as a new memory. The content is embedded and
written to both the vector index and the graph; the command prints the
stored memory including its generated id.
`

var longUpdate = `
Updates a memory. A metadata-only update patches the memory in place.
Passing --content with different text creates a new version linked to the
old one with an UPDATE relationship; the old version stops being latest.
`
