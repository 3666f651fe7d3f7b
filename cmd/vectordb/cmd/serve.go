package cmd

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vectordb-io/vectordb/internal/api/rest"
	vdberrors "github.com/vectordb-io/vectordb/internal/errors"
	"github.com/vectordb-io/vectordb/pkg/vectordb"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the REST API over the configured data directory",
		Args:  cobra.NoArgs,
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

			zapCfg := zap.NewProductionConfig()
			if debugMode {
				zapCfg = zap.NewDevelopmentConfig()
			}
			log, err := zapCfg.Build()
			if err != nil {
				return vdberrors.InternalError("failed to build access logger", err)
			}
			defer log.Sync() //nolint:errcheck

			srv := rest.NewServer(db, cfg, log)
			addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
			log.Info("listening", zap.String("addr", addr))

			if err := http.ListenAndServe(addr, srv.Handler()); err != nil {
				return vdberrors.StoreIOError("http server failed", err)
			}
			return nil
		},
	}
}
