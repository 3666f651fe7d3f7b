package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	vdbconfig "github.com/vectordb-io/vectordb/internal/config"
	vdberrors "github.com/vectordb-io/vectordb/internal/errors"
)

// newConfigCmd groups the user-config maintenance subcommands: backing up
// the YAML config before an edit, listing prior backups, and restoring one.
func newConfigCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "config",
		Short: "Back up, list, or restore the user configuration file",
	}
	root.AddCommand(newConfigBackupCmd())
	root.AddCommand(newConfigListBackupsCmd())
	root.AddCommand(newConfigRestoreCmd())
	return root
}

func newConfigBackupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Create a timestamped backup of the user config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := vdbconfig.BackupUserConfig()
			if err != nil {
				return vdberrors.ConfigError("failed to back up user config", err)
			}
			if path == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "no user config file to back up")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "backed up user config to %s\n", path)
			return nil
		},
	}
}

func newConfigListBackupsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-backups",
		Short: "List user config backups, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			backups, err := vdbconfig.ListUserConfigBackups()
			if err != nil {
				return vdberrors.ConfigError("failed to list user config backups", err)
			}
			out := cmd.OutOrStdout()
			if len(backups) == 0 {
				fmt.Fprintln(out, "no backups found")
				return nil
			}
			for _, b := range backups {
				fmt.Fprintln(out, b)
			}
			return nil
		},
	}
}

func newConfigRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <backup-path>",
		Short: "Restore the user config file from a backup, backing up the current one first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := vdbconfig.RestoreUserConfig(args[0]); err != nil {
				return vdberrors.ConfigError("failed to restore user config", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "restored user config from %s\n", args[0])
			return nil
		},
	}
}
