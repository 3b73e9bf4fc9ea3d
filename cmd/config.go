package cmd

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/zjrosen/svcreg/internal/config"
	"github.com/zjrosen/svcreg/internal/flags"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create and edit the svcreg config file",
		// Subcommands manage the file themselves; a missing or broken file
		// must not stop them.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	}
	cmd.AddCommand(
		newConfigInitCmd(a),
		newConfigFlagCmd(a),
		newConfigShowCmd(a),
	)
	return cmd
}

// targetPath is where config subcommands write: --config if given, else
// the user config.
func (a *app) targetPath() string {
	if a.cfgFile != "" {
		return a.cfgFile
	}
	return config.DefaultConfigPath()
}

func newConfigInitCmd(a *app) *cobra.Command {
	var (
		path  string
		force bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a commented default config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				path = a.targetPath()
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := config.WriteDefaultConfig(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "file to write (default: --config or the user config)")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func newConfigFlagCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "flag <name> <on|off>",
		Short: "Turn a feature flag on or off in the config file",
		Example: `  svcreg config flag snapshot-diff off
  svcreg -c ./svcreg.yaml config flag filter-cache on`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			known := slices.Sorted(maps.Keys(flags.Defaults()))
			if !slices.Contains(known, name) {
				return fmt.Errorf("unknown flag %q (known: %s)", name, strings.Join(known, ", "))
			}
			on, err := parseSwitch(args[1])
			if err != nil {
				return err
			}
			path := a.targetPath()
			if err := config.SetFlag(path, name, on); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s=%t\n", path, name, on)
			return nil
		},
	}
}

func newConfigShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, used, err := config.Load(a.cfgFile)
			if err != nil {
				return err
			}
			cfg.Flags = cfg.FeatureFlags().All()

			out := cmd.OutOrStdout()
			if used == "" {
				used = "(defaults)"
			}
			fmt.Fprintf(out, "# source: %s\n", used)
			enc := yaml.NewEncoder(out)
			enc.SetIndent(2)
			if err := enc.Encode(cfg); err != nil {
				return fmt.Errorf("encoding config: %w", err)
			}
			return enc.Close()
		},
	}
}

var errBadSwitch = errors.New("expected on or off")

func parseSwitch(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "true", "yes", "1":
		return true, nil
	case "off", "false", "no", "0":
		return false, nil
	default:
		return false, fmt.Errorf("%q: %w", s, errBadSwitch)
	}
}
