// Package cmd provides the CLI commands for the vectordb CLI.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	vdbconfig "github.com/vectordb-io/vectordb/internal/config"
	vdberrors "github.com/vectordb-io/vectordb/internal/errors"
	"github.com/vectordb-io/vectordb/internal/logging"
)

// Exit codes per spec.md §6.
const (
	exitOK            = 0
	exitInvalidConfig = 2
	exitIOFailure     = 3
	exitUnrecoverable = 4
)

var (
	dataDirFlag string
	debugMode   bool
)

// NewRootCmd creates the root command for the vectordb CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "vectordb",
		Short:         "Single-node vector database with an HNSW index",
		Long:          `vectordb stores, indexes, and searches vectors in a WAL-backed, mmap-durable collection store.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&dataDirFlag, "data-dir", "", "Data directory (defaults to the configured data_dir, ~/.vectordb/data)")
	root.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	root.AddCommand(newCreateCollectionCmd())
	root.AddCommand(newInsertCmd())
	root.AddCommand(newGetCmd())
	root.AddCommand(newDeleteCmd())
	root.AddCommand(newSearchCmd())
	root.AddCommand(newStatsCmd())
	root.AddCommand(newServeCmd())
	root.AddCommand(newConfigCmd())

	return root
}

// Execute runs the root command and returns a process exit code per
// spec.md §6: 0 on success, 2 for invalid configuration, 3 for I/O
// failure, 4 for unrecoverable corruption.
func Execute() int {
	cmd := NewRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return exitCodeFor(err)
	}
	return exitOK
}

func exitCodeFor(err error) int {
	switch vdberrors.GetCode(err) {
	case vdberrors.ErrCodeConfigInvalid, vdberrors.ErrCodeInvalidArgument, vdberrors.ErrCodeDimensionMismatch,
		vdberrors.ErrCodeNotFound, vdberrors.ErrCodeAlreadyExists:
		return exitInvalidConfig
	case vdberrors.ErrCodeCorruptionFatal, vdberrors.ErrCodeInvariantViolation:
		return exitUnrecoverable
	case vdberrors.ErrCodeWalIO, vdberrors.ErrCodeStoreIO, vdberrors.ErrCodeCorruptRecord,
		vdberrors.ErrCodeCollectionBusy, vdberrors.ErrCodeCatalogLocked:
		return exitIOFailure
	default:
		return exitIOFailure
	}
}

// loadConfig resolves --data-dir and loads the layered YAML+env config the
// same way the core library does, failing with an invalid-config error if
// the directory or file are malformed.
func loadConfig() (*vdbconfig.Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, vdberrors.ConfigError("failed to resolve working directory", err)
	}
	cfg, err := vdbconfig.Load(wd)
	if err != nil {
		return nil, vdberrors.ConfigError("failed to load configuration", err)
	}
	if dataDirFlag != "" {
		cfg.DataDir = dataDirFlag
	}
	return cfg, nil
}

// setupLogging mirrors the teacher's debug-flag-gated logging setup.
func setupLogging() func() {
	logCfg := logging.DefaultConfig()
	if debugMode {
		logCfg = logging.DebugConfig()
	}
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return func() {}
	}
	slog.SetDefault(logger)
	return cleanup
}
