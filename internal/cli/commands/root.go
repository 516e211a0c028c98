// Package commands implements the ormctl maintenance commands
package commands

import (
	"fmt"
	"runtime"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// Version information - set at build time
	Version   = "dev"
	GitCommit = "unknown"
)

// NewRootCommand creates the ormctl root command
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ormctl",
		Short: "Maintenance tooling for the ORM runtime",
		Long: color.CyanString(`ormctl inspects the ORM configuration, checks database
connectivity and manages the shared row cache.`),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().Bool("no-color", false, "Disable colored output")

	rootCmd.AddCommand(NewVersionCommand())
	rootCmd.AddCommand(NewConfigCommand())
	rootCmd.AddCommand(NewDBCommand())
	rootCmd.AddCommand(NewCacheCommand())

	return rootCmd
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			title := color.New(color.FgCyan, color.Bold)
			if noColor(cmd) {
				title.DisableColor()
			}
			out := cmd.OutOrStdout()

			title.Fprint(out, "ormctl version: ")
			fmt.Fprintln(out, Version)
			title.Fprint(out, "Git commit: ")
			fmt.Fprintln(out, GitCommit)
			title.Fprint(out, "Go version: ")
			fmt.Fprintln(out, runtime.Version())
		},
	}
}

func noColor(cmd *cobra.Command) bool {
	v, err := cmd.Flags().GetBool("no-color")
	return err == nil && v
}
