package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/davidleathers/clinic-security-monitor/internal/infrastructure/config"
	"github.com/davidleathers/clinic-security-monitor/internal/infrastructure/database"
	"github.com/davidleathers/clinic-security-monitor/internal/infrastructure/telemetry"
)

type options struct {
	configPath  string
	databaseURL string
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		slog.Error("migration failed", "error", err)
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Manage the security monitoring schema",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to configuration file")
	root.PersistentFlags().StringVar(&opts.databaseURL, "database-url", "", "Override database.url from the configuration")

	root.AddCommand(upCmd(opts), downCmd(opts), versionCmd(opts))
	return root
}

func upCmd(opts *options) *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if steps < 0 {
				return fmt.Errorf("--steps must not be negative")
			}
			return withMigrator(opts, func(m *database.Migrator) error {
				return m.Up(steps)
			})
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 0, "Number of migrations to apply (0 = all)")
	return cmd
}

func downCmd(opts *options) *cobra.Command {
	var (
		steps int
		all   bool
	)
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if steps <= 0 && !all {
				return fmt.Errorf("pass --steps N or --all")
			}
			if all {
				steps = 0
			}
			return withMigrator(opts, func(m *database.Migrator) error {
				return m.Down(steps)
			})
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 1, "Number of migrations to roll back")
	cmd.Flags().BoolVar(&all, "all", false, "Roll back every migration, dropping all monitoring data")
	cmd.MarkFlagsMutuallyExclusive("steps", "all")
	return cmd
}

func versionCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(opts, func(m *database.Migrator) error {
				version, dirty, err := m.Version()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version=%d dirty=%t\n", version, dirty)
				return nil
			})
		},
	}
}

func withMigrator(opts *options, fn func(*database.Migrator) error) error {
	databaseURL, logLevel, environment, err := resolve(opts)
	if err != nil {
		return err
	}

	logger, err := telemetry.NewZapLogger(logLevel, environment)
	if err != nil {
		return fmt.Errorf("zap logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	m, err := database.NewMigrator(databaseURL, logger.With(zap.String("component", "migrate")))
	if err != nil {
		return err
	}
	defer m.Close()
	return fn(m)
}

// resolve picks the database URL from the flag first, then the configuration
func resolve(opts *options) (string, string, string, error) {
	if opts.databaseURL != "" && opts.configPath == "" {
		d := config.Defaults()
		return opts.databaseURL, d.LogLevel, d.Environment, nil
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to load config: %w", err)
	}
	url := cfg.Database.URL
	if opts.databaseURL != "" {
		url = opts.databaseURL
	}
	return url, cfg.LogLevel, cfg.Environment, nil
}
