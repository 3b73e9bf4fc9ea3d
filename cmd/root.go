package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/zjrosen/svcreg/internal/config"
	"github.com/zjrosen/svcreg/internal/flags"
	"github.com/zjrosen/svcreg/internal/log"
	"github.com/zjrosen/svcreg/internal/tracing"
)

var version = "dev"

// app carries what the root command loads for its subcommands.
type app struct {
	cfgFile    string
	verbose    bool
	logLevel   string
	cfg        config.Config
	configUsed string
	flags      *flags.Registry
	tracing    *tracing.Provider
	cleanup    []func()
}

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "svcreg",
		Short: "In-process service registry with LDAP-style filters",
		Long: `svcreg is a concurrent service registry: services are registered under
type names with a property dictionary, consumers find them with LDAP-style
filters, and listeners are told when registrations start or stop matching.

This command line checks filters and replays scenario files against a
fresh registry.`,
		Version:           version,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) { a.teardown(cmd.Context()) },
	}

	root.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "",
		"config file (default: .svcreg/config.yaml, then ~/.config/svcreg/config.yaml)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false,
		"echo log lines to stderr")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "",
		"minimum log level: debug, info, warn or error (overrides config)")

	root.AddCommand(
		newFilterCmd(),
		newReplayCmd(a),
		newConfigCmd(a),
		newHistoryCmd(a),
	)
	return root
}

// setup loads configuration, logging and tracing before any subcommand.
func (a *app) setup(cmd *cobra.Command, args []string) error {
	cfg, used, err := config.Load(a.cfgFile)
	if err != nil {
		return err
	}
	a.cfg, a.configUsed = cfg, used
	a.flags = cfg.FeatureFlags()

	if err := a.initLogging(cmd.Context(), cmd.ErrOrStderr()); err != nil {
		return err
	}

	provider, err := tracing.NewProvider(cfg.Tracing)
	if err != nil {
		return fmt.Errorf("starting tracing: %w", err)
	}
	a.tracing = provider
	return nil
}

func (a *app) initLogging(ctx context.Context, stderr io.Writer) error {
	level := a.cfg.Log.Level
	if a.logLevel != "" {
		level = a.logLevel
	}

	switch {
	case a.cfg.Log.Path != "":
		closeLog, err := log.Init(a.cfg.Log.Path)
		if err != nil {
			return err
		}
		a.cleanup = append(a.cleanup, closeLog)
	case a.verbose:
		log.InitWriter(nil)
	default:
		return nil
	}
	a.cleanup = append(a.cleanup, log.Reset)

	if level != "" {
		min, err := log.ParseLevel(level)
		if err != nil {
			return fmt.Errorf("log level: %w", err)
		}
		log.SetMinLevel(min)
	}

	if a.verbose {
		if ctx == nil {
			ctx = context.Background()
		}
		ctx, cancel := context.WithCancel(ctx)
		a.cleanup = append(a.cleanup, cancel)
		if listener := log.NewListener(ctx); listener != nil {
			go listener.Forward(func(e log.Entry) {
				_, _ = io.WriteString(stderr, e.Payload)
			})
		}
	}
	return nil
}

func (a *app) teardown(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	if a.tracing != nil {
		if err := a.tracing.Shutdown(ctx); err != nil {
			log.ErrorErr(log.CatTrace, "tracing shutdown failed", err)
		}
	}
	for i := len(a.cleanup) - 1; i >= 0; i-- {
		a.cleanup[i]()
	}
	a.cleanup = nil
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
