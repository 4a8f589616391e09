package main

import (
	"github.com/spf13/cobra"

	"github.com/grove-run/grove/internal/garden"
	"github.com/grove-run/grove/internal/logging"
)

// rootFlags are the global flags shared across every subcommand: active
// environment, project root, force flags, watch mode, and the logger's
// output format.
type rootFlags struct {
	environment string
	root        string
	force       bool
	forceBuild  bool
	watch       bool
	loggerType  string
}

func newRootCmd(g *garden.Garden, logger *logging.Logger) *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:           "grovectl",
		Short:         "grovectl drives a grove project through the garden core library",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&flags.environment, "env", "", "active environment")
	cmd.PersistentFlags().StringVar(&flags.root, "root", ".", "project root")
	cmd.PersistentFlags().BoolVar(&flags.force, "force", false, "ignore cached state")
	cmd.PersistentFlags().BoolVar(&flags.forceBuild, "force-build", false, "ignore build-version caching")
	cmd.PersistentFlags().BoolVar(&flags.watch, "watch", false, "re-run on source changes (accepted; no command acts on it)")
	cmd.PersistentFlags().StringVar(&flags.loggerType, "logger-type", "pretty", "log output format: pretty or json (accepted; no command acts on it)")

	cmd.AddCommand(newBuildCmd(g, flags))
	cmd.AddCommand(newDeployCmd(g, flags))
	cmd.AddCommand(newTestCmd(g, flags))
	cmd.AddCommand(newRunCmd(g, flags))
	cmd.AddCommand(newPublishCmd(g, flags))
	cmd.AddCommand(newDeleteCmd(g, flags))
	cmd.AddCommand(newPluginsCmd(g, flags))
	cmd.AddCommand(newGetCmd(g, flags))
	cmd.AddCommand(newInitCmd(g, flags))

	return cmd
}
