package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/orm/internal/cli/ui"
	"github.com/conduit-lang/orm/internal/orm/config"
)

// NewConfigCommand creates the config command
func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the ORM configuration",
		Long: `Load orm.yml (or the file given with --config), apply ORM_* environment
overrides and print or validate the result.`,
		Example: `  # Show the effective configuration
  ormctl config show

  # Validate a specific file
  ormctl config check --config deploy/orm.yml`,
	}

	cmd.PersistentFlags().String("config", "", "Path to the configuration file")
	cmd.AddCommand(newConfigShowCommand())
	cmd.AddCommand(newConfigCheckCommand())
	return cmd
}

func newConfigShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			table := ui.NewKeyValueTable(cmd.OutOrStdout(), noColor(cmd))
			for _, row := range configRows(cfg) {
				table.AddRow(row[0], row[1])
			}
			table.Render()
			return nil
		},
	}
}

func newConfigCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := loadConfig(cmd); err != nil {
				ui.Failure(cmd.ErrOrStderr(), noColor(cmd), "%v", err)
				return err
			}
			ui.Success(cmd.OutOrStdout(), noColor(cmd), "configuration is valid")
			return nil
		},
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// configRows flattens cfg into option-key order
func configRows(cfg *config.Config) [][2]string {
	b := strconv.FormatBool
	timezone := cfg.Dates.Timezone
	if timezone == "" {
		timezone = "UTC"
	}
	return [][2]string{
		{"environment", cfg.Environment},
		{"timestamps.enabled", b(cfg.Timestamps.Enabled)},
		{"timestamps.created_at_column", cfg.Timestamps.CreatedAtColumn},
		{"timestamps.updated_at_column", cfg.Timestamps.UpdatedAtColumn},
		{"soft_deletes.enabled", b(cfg.SoftDeletes.Enabled)},
		{"soft_deletes.deleted_at_column", cfg.SoftDeletes.DeletedAtColumn},
		{"enforce_fillable", b(cfg.EnforceFillable)},
		{"mass_assignment.throw_on_violation", b(cfg.MassAssignment.ThrowOnViolation)},
		{"lazy_loading.prevent", b(cfg.LazyLoading.Prevent)},
		{"lazy_loading.allow_testing", b(cfg.LazyLoading.AllowTesting)},
		{"lazy_loading.allowed_relations", strings.Join(cfg.LazyLoading.AllowedRelations, ", ")},
		{"dates.timezone", timezone},
		{"dates.format", cfg.Dates.Format},
		{"validation.enabled", b(cfg.Validation.Enabled)},
		{"naming.hydrate", cfg.Naming.Hydrate},
		{"cache.enabled", b(cfg.Cache.Enabled)},
		{"cache.ttl", cfg.Cache.TTL.String()},
	}
}
