package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vectordb-io/vectordb/pkg/vectordb"
)

type createCollectionOptions struct {
	dimension      int
	metric         string
	m              int
	efConstruction int
	efSearch       int
	maxLayer       int
}

func newCreateCollectionCmd() *cobra.Command {
	var opts createCollectionOptions

	cmd := &cobra.Command{
		Use:   "create-collection <name>",
		Short: "Create a new collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cleanup := setupLogging()
			defer cleanup()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := vectordb.Open(cfg, nil)
			if err != nil {
				return err
			}
			defer db.Close()

			col, err := db.CreateCollection(vectordb.CreateCollectionConfig{
				Name:            args[0],
				Dimension:       opts.dimension,
				Metric:          opts.metric,
				M:               opts.m,
				EfConstruction:  opts.efConstruction,
				EfSearchDefault: opts.efSearch,
				MaxLayer:        opts.maxLayer,
			}, cfg)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "created collection %q (dimension=%d)\n", col.Name(), col.Dimension())
			return nil
		},
	}

	cmd.Flags().IntVar(&opts.dimension, "dimension", 0, "Vector dimension (required)")
	cmd.Flags().StringVar(&opts.metric, "metric", "cosine", "Distance metric: cosine, euclidean, dot, manhattan")
	cmd.Flags().IntVar(&opts.m, "m", 0, "HNSW M (defaults to config)")
	cmd.Flags().IntVar(&opts.efConstruction, "ef-construction", 0, "HNSW ef_construction (defaults to config)")
	cmd.Flags().IntVar(&opts.efSearch, "ef-search-default", 0, "HNSW ef_search_default (defaults to config)")
	cmd.Flags().IntVar(&opts.maxLayer, "max-layer", 0, "HNSW max_layer (defaults to config)")
	_ = cmd.MarkFlagRequired("dimension")

	return cmd
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <collection>",
		Short: "Print a collection's live/tombstone counts and layer histogram",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cleanup := setupLogging()
			defer cleanup()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := vectordb.Open(cfg, nil)
			if err != nil {
				return err
			}
			defer db.Close()

			col, err := db.OpenCollection(args[0])
			if err != nil {
				return err
			}

			stats := col.Stats()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "live:       %d\n", stats.LiveCount)
			fmt.Fprintf(out, "tombstones: %d\n", stats.TombstoneCount)
			fmt.Fprintf(out, "resident:   %d bytes\n", stats.BytesResident)
			for layer, count := range stats.LayerHistogram {
				fmt.Fprintf(out, "layer %d:    %d nodes\n", layer, count)
			}
			return nil
		},
	}
}
