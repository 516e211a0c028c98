package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/orm/internal/cli/ui"
	"github.com/conduit-lang/orm/internal/orm/cache"
)

// NewCacheCommand creates the cache command
func NewCacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the shared row cache",
	}

	flags := cmd.PersistentFlags()
	flags.String("redis-addr", "localhost:6379", "Redis address")
	flags.String("redis-password", "", "Redis password")
	flags.Int("redis-db", 0, "Redis database number")
	flags.String("prefix", cache.DefaultOptions().Prefix, "Key prefix of the row cache")

	cmd.AddCommand(newCacheClearCommand())
	return cmd
}

func newCacheClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached row under the prefix",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := redisConfig(cmd)
			if err != nil {
				return err
			}

			store, err := cache.NewRedisStore(cmd.Context(), cfg)
			if err != nil {
				ui.Failure(cmd.ErrOrStderr(), noColor(cmd), "%v", err)
				return err
			}
			defer store.Close()

			if err := store.Clear(cmd.Context()); err != nil {
				return fmt.Errorf("failed to clear cache: %w", err)
			}
			ui.Success(cmd.OutOrStdout(), noColor(cmd), "cleared %s* on %s", cfg.Options.Prefix, cfg.Addr)
			return nil
		},
	}
}

func redisConfig(cmd *cobra.Command) (cache.RedisConfig, error) {
	flags := cmd.Flags()
	addr, err := flags.GetString("redis-addr")
	if err != nil {
		return cache.RedisConfig{}, err
	}
	password, _ := flags.GetString("redis-password")
	db, _ := flags.GetInt("redis-db")
	prefix, _ := flags.GetString("prefix")

	options := cache.DefaultOptions()
	options.Prefix = prefix
	return cache.RedisConfig{Addr: addr, Password: password, DB: db, Options: options}, nil
}
