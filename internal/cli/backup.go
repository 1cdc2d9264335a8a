package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/HerbHall/storefront/internal/backup"
	"github.com/HerbHall/storefront/internal/version"
)

// NewBackupCommand creates the backup command.
func NewBackupCommand(rootOpts *RootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Archive the dataset, probe cache and config into a tar.gz",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.loadConfig()
			if err != nil {
				return WrapExitError(ExitCommandError, "load config", err)
			}
			if output == "" {
				output = fmt.Sprintf("storefront-backup-%s.tar.gz", time.Now().Format("20060102-150405"))
			}
			src := backup.Sources{
				Dataset: cfg.GetString("plugins.catalog.source"),
				DBPath:  cfg.GetString("database.path"),
				Config:  cfg.Viper().ConfigFileUsed(),
			}
			if err := backup.Backup(cmd.Context(), src, output); err != nil {
				return WrapExitError(ExitFailure, "backup failed", err)
			}

			f := newFormatter(rootOpts, cmd)
			if f.JSON() {
				return f.Encode(map[string]string{"archive": output})
			}
			return f.Line("Backup created: %s", output)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "archive path (default storefront-backup-{timestamp}.tar.gz)")
	return cmd
}

// NewRestoreCommand creates the restore command.
func NewRestoreCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		input string
		dir   string
		force bool
	)

	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Extract a backup archive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := backup.Restore(cmd.Context(), input, dir, force)
			if err != nil {
				return WrapExitError(ExitFailure, "restore failed", err)
			}

			f := newFormatter(rootOpts, cmd)
			if f.JSON() {
				return f.Encode(map[string]any{"dir": dir, "files": files})
			}
			for _, name := range files {
				if err := f.Line("restored %s", name); err != nil {
					return err
				}
			}
			return f.Line("Restore complete: %d files restored to %s", len(files), dir)
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "backup archive to restore (required)")
	cmd.Flags().StringVar(&dir, "dir", ".", "target directory for restored files")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing files")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

// NewVersionCommand creates the version command.
func NewVersionCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			if f.JSON() {
				return f.Encode(version.Map())
			}
			return f.Line("%s", version.Info())
		},
	}
}
