package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/getpup/pupdeploy"
	"github.com/getpup/pupdeploy/config"
	"github.com/getpup/pupdeploy/internal/version"
	"github.com/spf13/cobra"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configPath     string
	yes            bool
	nonInteractive bool
	logLevel       string
	logFormat      string
}

func newRootCmd(stdin *os.File, stdout, stderr io.Writer) *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "deployer",
		Short: "Zero-downtime releases with schema patching",
		Long: `deployer syncs a project to every application server, applies pending
schema patches once, and switches all servers to the new release together.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetIn(stdin)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", config.DefaultPath,
		"Path to the deployment configuration")
	rootCmd.PersistentFlags().BoolVarP(&opts.yes, "yes", "y", false,
		"Answer yes to every confirmation")
	rootCmd.PersistentFlags().BoolVar(&opts.nonInteractive, "non-interactive", false,
		"Never prompt; fail when an answer is needed")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "",
		"Log level: debug, info, warn, or error (default: from config)")
	rootCmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "",
		"Log format: text or json (default: from config)")

	deployCmd := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy a new release to every host",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, stdin, func(ctx context.Context, a *app) error {
				return a.orch.Deploy(ctx)
			})
		},
	}

	rollbackCmd := &cobra.Command{
		Use:   "rollback",
		Short: "Reactivate the previous release and revert the patches of the last one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, stdin, func(ctx context.Context, a *app) error {
				return a.orch.Rollback(ctx)
			})
		},
	}

	cleanupCmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete old releases from every host",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, stdin, func(ctx context.Context, a *app) error {
				return a.orch.Cleanup(ctx)
			})
		},
	}

	planCmd := &cobra.Command{
		Use:       "plan [update|rollback]",
		Short:     "Show the releases and schema patches a run would touch",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{string(pupdeploy.ActionUpdate), string(pupdeploy.ActionRollback)},
		RunE: func(cmd *cobra.Command, args []string) error {
			action := pupdeploy.ActionUpdate
			if len(args) == 1 {
				action = pupdeploy.Action(args[0])
			}
			return withApp(cmd, opts, stdin, func(ctx context.Context, a *app) error {
				return runPlan(ctx, a, action, cmd.OutOrStdout())
			})
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "deployer", version.String())
		},
	}

	rootCmd.AddCommand(deployCmd, rollbackCmd, cleanupCmd, planCmd, versionCmd)
	return rootCmd
}

// withApp builds the application from the configuration, runs fn and
// publishes the metrics of the run.
func withApp(cmd *cobra.Command, opts *globalOptions, stdin *os.File, fn func(context.Context, *app) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := newApp(opts, stdin, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	return fn(ctx, a)
}

func runPlan(ctx context.Context, a *app, action pupdeploy.Action, out io.Writer) error {
	if err := a.orch.Init(ctx); err != nil {
		return err
	}
	tl := a.orch.Timeline()

	plan, err := a.orch.Plan(ctx, action)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Action:   %s\n", action)
	fmt.Fprintf(out, "Previous: %s\n", orNone(tl.Previous.Name))
	fmt.Fprintf(out, "Last:     %s\n", orNone(tl.Last.Name))
	fmt.Fprintf(out, "Current:  %s\n", tl.Current.Name)

	if plan.Mode == "" {
		fmt.Fprintln(out, "Database patching is disabled")
		return nil
	}
	for _, line := range plan.Summary() {
		fmt.Fprintln(out, line)
	}

	return nil
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(none)"
	}
	return s
}
