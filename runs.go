package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/chazu/gstep/pkg/manifest"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newRunsCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "runs --manifest <file> [run-id]",
		Short: "List recorded export runs",
		Long: `List the export runs recorded in a manifest, newest first, with the number
of objects per status. With a run id, show that run's objects instead.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(path); err != nil {
				if errors.Is(err, os.ErrNotExist) {
					return fmt.Errorf("manifest %s does not exist", path)
				}
				return fmt.Errorf("check manifest: %w", err)
			}
			store, err := manifest.Open(path)
			if err != nil {
				return err
			}
			defer store.Close()
			if len(args) == 0 {
				return listRuns(cmd.OutOrStdout(), store)
			}
			return showRun(cmd.OutOrStdout(), store, args[0])
		},
	}
	cmd.Flags().StringVar(&path, "manifest", "", "SQLite manifest to read")
	_ = cmd.MarkFlagRequired("manifest")
	return cmd
}

func listRuns(w io.Writer, store *manifest.Store) error {
	runs, err := store.Runs()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "no runs recorded")
		return nil
	}
	for _, r := range runs {
		counts, err := store.CountByStatus(r.ID)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s  ", r.ID)
		statusColor(r.Status).Fprint(w, r.Status)
		fmt.Fprintf(w, "  %s  %s -> %s  %d entities", r.StartedAt.Format(time.RFC3339), r.Input, r.Output, r.Entities)
		if s := formatCounts(counts); s != "" {
			fmt.Fprintf(w, "  [%s]", s)
		}
		fmt.Fprintln(w)
	}
	return nil
}

func showRun(w io.Writer, store *manifest.Store, id string) error {
	r, err := store.GetRun(id)
	if err != nil {
		return err
	}
	if r == nil {
		return fmt.Errorf("run %s not found", id)
	}
	entries, err := store.Entries(id)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Run %s: %s -> %s (%s), ", r.ID, r.Input, r.Output, r.Dialect)
	statusColor(r.Status).Fprintln(w, r.Status)
	if !r.FinishedAt.IsZero() {
		fmt.Fprintf(w, "  took %s, %d entities\n", r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond), r.Entities)
	}
	for _, e := range entries {
		fmt.Fprintf(w, "  %-9s %-8s %s", e.Status, e.Role, e.Object)
		if e.Faces > 0 {
			fmt.Fprintf(w, " (%d faces)", e.Faces)
		}
		if e.Message != "" {
			fmt.Fprintf(w, ": %s", e.Message)
		}
		fmt.Fprintln(w)
	}
	return nil
}

func statusColor(status string) *color.Color {
	switch status {
	case runSucceeded:
		return color.New(color.FgGreen)
	case runFailed:
		return color.New(color.FgRed)
	default:
		return color.New(color.FgYellow)
	}
}

// formatCounts renders status counts as "converted=4 empty=1", sorted by
// status.
func formatCounts(counts map[string]int) string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%d", k, counts[k])
	}
	return strings.Join(parts, " ")
}
