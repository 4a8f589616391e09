package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/grove-run/grove/internal/garden"
	"github.com/grove-run/grove/internal/model"
	"github.com/grove-run/grove/internal/provider"
)

// notImplemented is the RunE of the subcommands still left as stubs
// (deploy, run, publish, delete, plugins, get, init): a real driver
// wires each into garden.Bootstrap plus garden.Execute the same way
// runGoal does for build and test.
func notImplemented(cmd *cobra.Command, _ []string) error {
	fmt.Fprintln(cmd.OutOrStdout(), "not implemented: core library only")
	return nil
}

// runGoal drives one goal end to end: resolve the registered plugins,
// bootstrap the project at --root, execute the derived task graph, and
// report per-node results. Returns the first node failure so the
// process exits nonzero on any failed or skipped node.
func runGoal(cmd *cobra.Command, g *garden.Garden, flags *rootFlags, goal garden.Goal, names []string) error {
	ctx := cmd.Context()
	if err := g.Resolve(); err != nil {
		return err
	}
	if _, err := g.Bootstrap(ctx, flags.root, flags.environment, provider.Config{ForceInit: flags.force}); err != nil {
		return err
	}

	results, err := g.Execute(ctx, goal, garden.ExecuteOptions{
		Force:      flags.force,
		ForceBuild: flags.forceBuild,
		Names:      names,
	})
	if err != nil {
		return err
	}

	var failed error
	for _, key := range sortedResultKeys(results) {
		res := results[key]
		if res.Err != nil {
			if failed == nil {
				failed = res.Err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s.%s: %v\n", key.Type, key.Name, res.Err)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s.%s: ok\n", key.Type, key.Name)
	}
	return failed
}

func sortedResultKeys(results map[model.TaskKey]model.TaskResult) []model.TaskKey {
	keys := make([]model.TaskKey, 0, len(results))
	for k := range results {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Type != keys[j].Type {
			return keys[i].Type < keys[j].Type
		}
		return keys[i].Name < keys[j].Name
	})
	return keys
}

func newBuildCmd(g *garden.Garden, flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "build [module...]",
		Short: "Build one or all modules",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGoal(cmd, g, flags, garden.GoalBuild, args)
		},
	}
}

func newDeployCmd(g *garden.Garden, flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "deploy [module]",
		Short: "Deploy one or all modules' services",
		RunE:  notImplemented,
	}
}

func newTestCmd(g *garden.Garden, flags *rootFlags) *cobra.Command {
	var names []string
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Run one or all modules' tests",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGoal(cmd, g, flags, garden.GoalTest, names)
		},
	}
	cmd.Flags().StringArrayVar(&names, "name", nil, "only run tests whose name matches this glob (repeatable)")
	return cmd
}

func newRunCmd(g *garden.Garden, flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a single task or module action",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "task <module> <task>",
		Short: "Run a single task",
		Args:  cobra.ExactArgs(2),
		RunE:  notImplemented,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "module <module> <action>",
		Short: "Run a single module action",
		Args:  cobra.ExactArgs(2),
		RunE:  notImplemented,
	})
	return cmd
}

func newPublishCmd(g *garden.Garden, flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "publish <module>",
		Short: "Publish a module's build outputs",
		Args:  cobra.ExactArgs(1),
		RunE:  notImplemented,
	}
}

func newDeleteCmd(g *garden.Garden, flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <module>",
		Short: "Tear down a module's deployed services",
		Args:  cobra.ExactArgs(1),
		RunE:  notImplemented,
	}
}

func newPluginsCmd(g *garden.Garden, flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugins <plugin> <command>",
		Short: "Invoke a plugin-defined CLI command",
		Args:  cobra.MinimumNArgs(2),
		RunE:  notImplemented,
	}
	return cmd
}

func newGetCmd(g *garden.Garden, flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "get <module>",
		Short: "Print a module's resolved configuration",
		Args:  cobra.ExactArgs(1),
		RunE:  notImplemented,
	}
}

func newInitCmd(g *garden.Garden, flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Scaffold a new project's garden.yml",
		RunE:  notImplemented,
	}
}
