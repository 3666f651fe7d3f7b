package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	vdberrors "github.com/vectordb-io/vectordb/internal/errors"
	"github.com/vectordb-io/vectordb/pkg/vectordb"
)

type searchOptions struct {
	vector string
	k      int
	ef     int
	filter string
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <collection>",
		Short: "Run an ANN search over a collection",
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

			vec, err := parseVectorJSON(opts.vector)
			if err != nil {
				return err
			}
			filter, err := parseAttributesJSON(opts.filter)
			if err != nil {
				return err
			}

			hits, err := col.Search(cmd.Context(), vec, opts.k, opts.ef, filter)
			if err != nil {
				return err
			}
			out, err := json.Marshal(hits)
			if err != nil {
				return vdberrors.InternalError("failed to encode results", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.vector, "vector", "", "Query vector as a JSON array")
	cmd.Flags().IntVar(&opts.k, "k", 10, "Number of results to return")
	cmd.Flags().IntVar(&opts.ef, "ef", 0, "Search beam width (defaults to collection's ef_search_default)")
	cmd.Flags().StringVar(&opts.filter, "filter", "", "Equality filter as a JSON object")
	_ = cmd.MarkFlagRequired("vector")

	return cmd
}
