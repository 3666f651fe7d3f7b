package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	vdberrors "github.com/vectordb-io/vectordb/internal/errors"
	"github.com/vectordb-io/vectordb/pkg/vectordb"
)

func parseVectorJSON(s string) ([]float32, error) {
	var raw []float64
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, vdberrors.ValidationError("vector must be a JSON array of numbers", err)
	}
	out := make([]float32, len(raw))
	for i, v := range raw {
		out[i] = float32(v)
	}
	return out, nil
}

func parseAttributesJSON(s string) (map[string]any, error) {
	if s == "" {
		return nil, nil
	}
	var attrs map[string]any
	if err := json.Unmarshal([]byte(s), &attrs); err != nil {
		return nil, vdberrors.ValidationError("attributes must be a JSON object", err)
	}
	return attrs, nil
}

type insertOptions struct {
	id         string
	vector     string
	attributes string
}

func newInsertCmd() *cobra.Command {
	var opts insertOptions

	cmd := &cobra.Command{
		Use:   "insert <collection>",
		Short: "Insert a vector into a collection",
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
			attrs, err := parseAttributesJSON(opts.attributes)
			if err != nil {
				return err
			}

			id := uuid.New()
			if opts.id != "" {
				id, err = uuid.Parse(opts.id)
				if err != nil {
					return vdberrors.ValidationError("id must be a valid uuid", err)
				}
			}

			if err := col.Insert(id, vec, attrs); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.id, "id", "", "External id (UUID); generated if omitted")
	cmd.Flags().StringVar(&opts.vector, "vector", "", "Vector as a JSON array, e.g. [0.1,0.2,0.3]")
	cmd.Flags().StringVar(&opts.attributes, "attributes", "", "Attributes as a JSON object")
	_ = cmd.MarkFlagRequired("vector")

	return cmd
}

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <collection> <id>",
		Short: "Fetch a vector and its attributes by id",
		Args:  cobra.ExactArgs(2),
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
			id, err := uuid.Parse(args[1])
			if err != nil {
				return vdberrors.ValidationError("id must be a valid uuid", err)
			}

			vec, attrs, err := col.Get(id)
			if err != nil {
				return err
			}
			out, err := json.Marshal(map[string]any{"id": id, "vector": vec, "attributes": attrs})
			if err != nil {
				return vdberrors.InternalError("failed to encode result", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <collection> <id>",
		Short: "Tombstone a vector by id",
		Args:  cobra.ExactArgs(2),
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
			id, err := uuid.Parse(args[1])
			if err != nil {
				return vdberrors.ValidationError("id must be a valid uuid", err)
			}

			if err := col.Delete(id); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "deleted", id)
			return nil
		},
	}
}
