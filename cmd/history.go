package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/zjrosen/svcreg/internal/history"
)

var errNoHistory = errors.New("no history database: set history.path or pass --db")

func newHistoryCmd(a *app) *cobra.Command {
	var (
		dbPath   string
		name     string
		limit    int
		failures bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded scenario replays",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dbPath == "" {
				dbPath = a.cfg.History.Path
			}
			if dbPath == "" {
				return errNoHistory
			}

			store, err := history.Open(dbPath)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			runs, err := store.Recent(cmd.Context(), name, limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "no runs recorded")
				return nil
			}
			for _, line := range historyTable(runs) {
				fmt.Fprintln(out, line)
			}
			if failures {
				for _, r := range runs {
					for _, m := range r.Mismatches {
						fmt.Fprintf(out, "#%d %s\n", r.ID, m)
					}
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "history database (default: history.path)")
	cmd.Flags().StringVarP(&name, "scenario", "s", "", "only runs of this scenario")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "newest runs to show, 0 for all")
	cmd.Flags().BoolVar(&failures, "failures", false, "print the mismatches of failed runs")
	return cmd
}

func historyTable(runs []history.Run) []string {
	header := []string{"id", "scenario", "result", "events", "faults", "started", "took"}
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		result := "pass"
		if !r.Passed {
			result = "fail"
		}
		rows = append(rows, []string{
			strconv.FormatInt(r.ID, 10),
			r.Scenario,
			result,
			strconv.Itoa(r.Events),
			strconv.Itoa(r.Faults),
			r.StartedAt.Local().Format(time.DateTime),
			r.Duration.Round(time.Microsecond).String(),
		})
	}

	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], runewidth.StringWidth(cell))
		}
	}

	format := func(cells []string) string {
		padded := make([]string, len(cells))
		for i, cell := range cells {
			padded[i] = runewidth.FillRight(cell, widths[i])
		}
		return strings.TrimRight(strings.Join(padded, "  "), " ")
	}

	lines := []string{format(header)}
	for _, row := range rows {
		lines = append(lines, format(row))
	}
	return lines
}
