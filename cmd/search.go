package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/theapemachine/recall/pkg/rag"
)

var (
	searchLimit     int
	searchThreshold float64

	searchCmd = &cobra.Command{
		Use:   "search <query>",
		Short: "Search memories by semantic similarity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := newStore(cmd.Context())
			if err != nil {
				return err
			}

			engine, err := newEngine(store)
			if err != nil {
				return err
			}

			results, err := engine.Retrieve(cmd.Context(), args[0], retrieveOptions(cmd, searchLimit, searchThreshold))
			if err != nil {
				return err
			}

			for i := range results {
				results[i].Memory.Embedding = nil
			}
			return printJSON(results)
		},
	}

	askLimit     int
	askThreshold float64

	askCmd = &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question grounded in stored memories",
		Long:  longAsk,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := newStore(cmd.Context())
			if err != nil {
				return err
			}

			engine, err := newEngine(store)
			if err != nil {
				return err
			}

			answer, err := engine.Query(cmd.Context(), args[0], retrieveOptions(cmd, askLimit, askThreshold))
			if err != nil {
				return err
			}

			return printJSON(answer)
		},
	}
)

/*
retrieveOptions resolves a command's limit and threshold flags against the
configured defaults.
*/
func retrieveOptions(cmd *cobra.Command, limit int, threshold float64) rag.RetrieveOptions {
	opts := rag.RetrieveOptions{
		Limit:     viper.GetInt("retrieval.limit"),
		Threshold: viper.GetFloat64("retrieval.threshold"),
	}

	if cmd.Flags().Changed("limit") {
		opts.Limit = limit
	}
	if cmd.Flags().Changed("threshold") {
		opts.Threshold = threshold
	}

	return opts
}

func init() {
	searchCmd.Flags().IntVar(&searchLimit, "limit", 0, "maximum results (default from config)")
	searchCmd.Flags().Float64Var(&searchThreshold, "threshold", 0, "minimum similarity (default from config)")

	askCmd.Flags().IntVar(&askLimit, "limit", 0, "memories to place in context (default from config)")
	askCmd.Flags().Float64Var(&askThreshold, "threshold", 0, "minimum similarity (default from config)")

	rootCmd.AddCommand(searchCmd, askCmd)
}

var longAsk = `
Retrieves the memories most relevant to the question and asks the
configured generation backend to answer using only that context. The
answer carries citations pointing back at the memories it drew from; when
nothing relevant is stored, a fixed no-information answer is returned
without calling the backend at all.
`
