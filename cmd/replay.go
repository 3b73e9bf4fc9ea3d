package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/zjrosen/svcreg/internal/config"
	"github.com/zjrosen/svcreg/internal/flags"
	"github.com/zjrosen/svcreg/internal/history"
	"github.com/zjrosen/svcreg/internal/log"
	"github.com/zjrosen/svcreg/internal/scenario"
	"github.com/zjrosen/svcreg/internal/watcher"
)

// errScenarioFailed is returned when a replay finished with unmet expectations.
var errScenarioFailed = errors.New("scenario failed")

type replayOptions struct {
	watch   bool
	diff    bool
	color   bool
	history string
}

func newReplayCmd(a *app) *cobra.Command {
	var opts replayOptions

	cmd := &cobra.Command{
		Use:   "replay <scenario.yaml>",
		Short: "Replay a scenario file against a fresh registry",
		Long: `Replay registers, updates and unregisters services as a scenario file
describes, then prints the events every listener received and checks them
against the expectations in the file.

With --watch the scenario is replayed again every time the file changes,
until interrupted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("diff") {
				opts.diff = a.flags.Enabled(flags.FlagSnapshotDiff)
			}
			if !cmd.Flags().Changed("history") {
				opts.history = a.cfg.History.Path
			}
			if opts.watch {
				return a.watchReplay(cmd, args[0], opts)
			}
			return a.replay(cmd.Context(), cmd.OutOrStdout(), args[0], opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.watch, "watch", "w", false, "replay again whenever the file changes")
	cmd.Flags().BoolVar(&opts.diff, "diff", false, "show property diffs under MODIFIED events")
	cmd.Flags().BoolVar(&opts.color, "color", false, "colorize the report")
	cmd.Flags().StringVar(&opts.history, "history", "", "record the run in this history database (default: history.path)")
	return cmd
}

func (a *app) replay(ctx context.Context, out io.Writer, path string, opts replayOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}

	sc, err := scenario.Load(path)
	if err != nil {
		return err
	}

	started := time.Now()
	res, err := scenario.Run(ctx, sc,
		scenario.WithRegistryOptions(config.RegistryOptions(a.cfg, a.flags, a.tracing)...),
		scenario.WithDiff(opts.diff),
	)
	if err != nil {
		return err
	}
	if opts.history != "" {
		if err := a.record(ctx, opts.history, history.FromResult(path, res, started, time.Since(started))); err != nil {
			return err
		}
	}

	if err := scenario.Render(out, res, scenario.RenderOptions{Color: opts.color, Diff: opts.diff}); err != nil {
		return fmt.Errorf("rendering report: %w", err)
	}
	if !res.Passed() {
		return fmt.Errorf("%s: %w (%d mismatches)", path, errScenarioFailed, len(res.Mismatches))
	}
	return nil
}

func (a *app) record(ctx context.Context, dbPath string, run history.Run) error {
	store, err := history.Open(dbPath)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if _, err := store.Record(ctx, run); err != nil {
		return fmt.Errorf("recording run: %w", err)
	}
	_, err = store.Prune(ctx, a.cfg.History.Keep)
	return err
}

func (a *app) watchReplay(cmd *cobra.Command, path string, opts replayOptions) error {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	paths := []string{path}
	if a.configUsed != "" {
		paths = append(paths, a.configUsed)
	}
	w, err := watcher.New(watcher.DefaultConfig(paths...))
	if err != nil {
		return err
	}
	changes, err := w.Start()
	if err != nil {
		return err
	}
	defer func() { _ = w.Stop() }()

	out := cmd.OutOrStdout()
	runOnce := func() {
		if err := a.replay(ctx, out, path, opts); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "%v\n", err)
		}
		fmt.Fprintf(out, "\nwatching %s (ctrl-c to stop)\n", path)
	}

	runOnce()
	for {
		select {
		case <-ctx.Done():
			return nil
		case change := <-changes:
			if a.configUsed != "" && change.Has(a.configUsed) {
				a.reloadConfig(cmd, &opts)
			}
			log.Info(log.CatScenario, "inputs changed, replaying", "paths", change.Paths)
			fmt.Fprintln(out)
			runOnce()
		}
	}
}

// reloadConfig re-reads the config file after it changed. A broken file
// keeps the previous configuration.
func (a *app) reloadConfig(cmd *cobra.Command, opts *replayOptions) {
	cfg, _, err := config.Load(a.configUsed)
	if err != nil {
		log.ErrorErr(log.CatConfig, "config reload failed", err, "path", a.configUsed)
		fmt.Fprintf(cmd.ErrOrStderr(), "keeping previous config: %v\n", err)
		return
	}
	a.cfg = cfg
	a.flags = cfg.FeatureFlags()
	if !cmd.Flags().Changed("diff") {
		opts.diff = a.flags.Enabled(flags.FlagSnapshotDiff)
	}
	if !cmd.Flags().Changed("history") {
		opts.history = a.cfg.History.Path
	}
	log.Info(log.CatConfig, "config reloaded", "path", a.configUsed)
}
