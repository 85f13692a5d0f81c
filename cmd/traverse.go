package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/theapemachine/recall/pkg/memory"
)

var (
	lineageCmd = &cobra.Command{
		Use:   "lineage <id>",
		Short: "Show a memory's version chain forward to the latest version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := newStore(cmd.Context())
			if err != nil {
				return err
			}

			chain, err := store.Lineage(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			for i := range chain {
				chain[i].Embedding = nil
			}
			return printJSON(chain)
		},
	}

	pathTypes         []string
	pathMinConfidence float64
	pathMaxHops       int

	pathCmd = &cobra.Command{
		Use:   "path <from-id> <to-id>",
		Short: "Find the shortest relationship path between two memories",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := newStore(cmd.Context())
			if err != nil {
				return err
			}

			var types []memory.RelationshipType
			for _, raw := range pathTypes {
				parsed, err := memory.ParseRelationshipType(raw)
				if err != nil {
					return err
				}
				types = append(types, parsed)
			}

			path, err := store.ShortestPath(cmd.Context(), args[0], args[1], memory.PathOptions{
				Types:         types,
				MinConfidence: pathMinConfidence,
				MaxHops:       pathMaxHops,
			})
			if err != nil {
				return err
			}

			if path == nil {
				fmt.Println("no path found")
				return nil
			}

			for i := range path.Nodes {
				path.Nodes[i].Embedding = nil
			}
			return printJSON(path)
		},
	}

	hopsStart         string
	hopsSeeds         int
	hopsMaxHops       int
	hopsLimit         int
	hopsMinConfidence float64

	hopsCmd = &cobra.Command{
		Use:   "hops [query]",
		Short: "Explore the graph neighborhood around a memory or a query",
		Long:  longHops,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := ""
			if len(args) == 1 {
				query = args[0]
			}
			if hopsStart == "" && query == "" {
				return fmt.Errorf("provide either a query argument or --start")
			}

			store, err := newStore(cmd.Context())
			if err != nil {
				return err
			}

			results, err := store.MultiHop(cmd.Context(), memory.MultiHopOptions{
				StartID:       hopsStart,
				Query:         query,
				SeedCount:     hopsSeeds,
				MaxHops:       hopsMaxHops,
				Limit:         hopsLimit,
				MinConfidence: hopsMinConfidence,
			})
			if err != nil {
				return err
			}

			for i := range results {
				results[i].Memory.Embedding = nil
			}
			return printJSON(results)
		},
	}

	insightsThreshold float64

	insightsCmd = &cobra.Command{
		Use:   "insights",
		Short: "Derive DERIVE relationships between similar memories",
		Long:  longInsights,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := newStore(cmd.Context())
			if err != nil {
				return err
			}

			report, err := store.DeriveInsights(cmd.Context(), insightsThreshold)
			if err != nil {
				return err
			}

			return printJSON(report)
		},
	}
)

func init() {
	pathCmd.Flags().StringSliceVar(&pathTypes, "types", nil, "edge types the path may cross (default all)")
	pathCmd.Flags().Float64Var(&pathMinConfidence, "min-confidence", 0, "minimum edge confidence")
	pathCmd.Flags().IntVar(&pathMaxHops, "max-hops", 0, "maximum path length (default 5)")

	hopsCmd.Flags().StringVar(&hopsStart, "start", "", "seed memory id instead of a query")
	hopsCmd.Flags().IntVar(&hopsSeeds, "seeds", 0, "vector hits seeding a query-driven walk (default 3)")
	hopsCmd.Flags().IntVar(&hopsMaxHops, "max-hops", 0, "walk depth (default 2)")
	hopsCmd.Flags().IntVar(&hopsLimit, "limit", 0, "maximum results (default 20)")
	hopsCmd.Flags().Float64Var(&hopsMinConfidence, "min-confidence", 0, "minimum edge confidence")

	insightsCmd.Flags().Float64Var(&insightsThreshold, "threshold", 0.85, "similarity threshold in (0,1]")

	rootCmd.AddCommand(lineageCmd, pathCmd, hopsCmd, insightsCmd)
}

var longHops = `
Walks the relationship graph outward from a seed set, returning the
memories reached within the hop limit ordered by distance. The seed set
is either a single memory (--start) or the top vector-search hits for a
query.
`

var longInsights = `
Compares every pair of latest memories by embedding similarity and links
pairs above the threshold with a DERIVE relationship whose confidence is
the similarity itself. Pairs that are already connected are skipped, so
the command is safe to run repeatedly.
`
