package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/chazu/gstep/pkg/config"
	"github.com/chazu/gstep/pkg/engine"
	"github.com/chazu/gstep/pkg/export"
	"github.com/chazu/gstep/pkg/kernel/sdfx"
	"github.com/chazu/gstep/pkg/logger"
	"github.com/chazu/gstep/pkg/manifest"
	"github.com/chazu/gstep/pkg/metrics"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Run statuses stored in the manifest.
const (
	runSucceeded = "succeeded"
	runFailed    = "failed"
)

type cliFlags struct {
	output   string
	flip     bool
	config   string
	dialect  string
	logLevel string
	metrics  string
	manifest string
}

func newRootCmd() *cobra.Command {
	var f cliFlags
	cmd := &cobra.Command{
		Use:   "gstep -o <outfile> <input> [objects...]",
		Short: "Export a CAD database to STEP",
		Long: `gstep converts the solids, regions and assemblies of a CAD database into an
ISO 10303-21 exchange file. Without object names every top-level object is
exported; otherwise the named objects and everything below them.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, f)
			if err != nil {
				return err
			}
			return runExport(cfg, f.output, args[0], args[1:], cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&f.output, "output", "o", "", "STEP file to write (must not exist)")
	flags.BoolVarP(&f.flip, "flip", "f", false, "negate assembly placement origins")
	flags.StringVar(&f.config, "config", "", "configuration file (.yaml or .toml)")
	flags.StringVar(&f.dialect, "dialect", "", "application protocol: ap203 or ap214")
	flags.StringVar(&f.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.StringVar(&f.metrics, "metrics", "", "write prometheus metrics to this textfile")
	flags.StringVar(&f.manifest, "manifest", "", "record the run in this SQLite manifest")
	_ = cmd.MarkFlagRequired("output")
	cmd.AddCommand(newRunsCmd())
	return cmd
}

// resolveConfig loads the configuration file and applies flag overrides.
func resolveConfig(cmd *cobra.Command, f cliFlags) (*config.Config, error) {
	cfg, err := config.Load(f.config)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("flip") {
		cfg.Export.FlipTransforms = f.flip
	}
	if flags.Changed("dialect") {
		cfg.Export.Dialect = f.dialect
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = f.logLevel
	}
	if flags.Changed("metrics") {
		cfg.Output.MetricsFile = f.metrics
	}
	if flags.Changed("manifest") {
		cfg.Output.ManifestFile = f.manifest
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runExport(cfg *config.Config, output, input string, objects []string, stdout, stderr io.Writer) (err error) {
	if _, err := os.Stat(output); err == nil {
		return fmt.Errorf("output file %s already exists", output)
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("check output: %w", err)
	}

	runID := uuid.NewString()
	log := logger.NewCLI(cfg.Logging.Level, cfg.Logging.File, stderr).With(zap.String("run", runID))
	defer func() { _ = log.Sync() }()

	var store *manifest.Store
	if cfg.Output.ManifestFile != "" {
		if store, err = manifest.Open(cfg.Output.ManifestFile); err != nil {
			return err
		}
		defer store.Close()
		run := manifest.Run{
			ID:        runID,
			Input:     input,
			Output:    output,
			Dialect:   cfg.Export.Dialect,
			StartedAt: time.Now(),
		}
		if err := store.BeginRun(run); err != nil {
			return err
		}
		defer func() {
			if err == nil {
				return
			}
			if ferr := store.FinishRun(runID, runFailed, 0, time.Now()); ferr != nil {
				log.Error("finish manifest run", zap.Error(ferr))
			}
		}()
	}

	k := sdfx.New()
	d, err := engine.NewEngine(k).LoadFile(input)
	if err != nil {
		return err
	}
	log.Info("database loaded", zap.String("input", input), zap.Int("objects", d.Len()))

	var rec *metrics.Recorder
	if cfg.Output.MetricsFile != "" {
		rec = metrics.NewRecorder()
	}
	opts := export.OptionsFromConfig(cfg.Export)
	opts.Logger = log
	opts.Metrics = rec

	s := export.NewSession(d, k, opts)
	if err := s.Export(objects...); err != nil {
		return err
	}
	if err := writeStep(s, output); err != nil {
		return err
	}
	report := s.Report()
	log.Info("export finished",
		zap.String("output", output),
		zap.Int("entities", report.Entities),
		zap.Duration("duration", report.Duration))

	if store != nil {
		if err := recordManifest(store, runID, report); err != nil {
			return err
		}
	}
	if rec != nil {
		if err := rec.WriteTextfile(cfg.Output.MetricsFile); err != nil {
			return err
		}
	}
	printSummary(stdout, output, report)
	return nil
}

// writeStep creates output exclusively and writes the session to it. A
// partially written file is removed.
func writeStep(s *export.Session, output string) error {
	f, err := os.OpenFile(output, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	w := bufio.NewWriter(f)
	err = s.Write(w, s.Header(filepath.Base(output)))
	if err == nil {
		err = w.Flush()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(output)
		return err
	}
	return nil
}

func recordManifest(store *manifest.Store, runID string, r export.Report) error {
	entries := make([]manifest.Entry, 0, len(r.Entries))
	for _, e := range r.Entries {
		entries = append(entries, manifest.Entry{
			RunID:   runID,
			Object:  e.Object,
			Role:    e.Role,
			Status:  e.Status.String(),
			Product: e.Product,
			Shape:   e.Shape,
			Faces:   e.Faces,
			SizeX:   e.Size.X,
			SizeY:   e.Size.Y,
			SizeZ:   e.Size.Z,
			Message: e.Message,
		})
	}
	if err := store.RecordEntries(entries); err != nil {
		return err
	}
	return store.FinishRun(runID, runSucceeded, r.Entities, time.Now())
}

func printSummary(w io.Writer, output string, r export.Report) {
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	red := color.New(color.FgRed)

	fmt.Fprintf(w, "Wrote %s: %d entities, %d assembly edges", output, r.Entities, r.EdgesEmitted)
	if r.EdgesDropped > 0 {
		yellow.Fprintf(w, " (%d dropped)", r.EdgesDropped)
	}
	fmt.Fprintln(w)

	green.Fprintf(w, "  %d converted\n", r.Count(export.StatusConverted))
	for _, st := range []export.Status{export.StatusEmpty, export.StatusPartial, export.StatusSkipped} {
		if n := r.Count(st); n > 0 {
			yellow.Fprintf(w, "  %d %s\n", n, st)
		}
	}
	if n := r.Count(export.StatusFailed); n > 0 {
		red.Fprintf(w, "  %d failed\n", n)
	}

	for _, e := range r.Entries {
		switch e.Status {
		case export.StatusFailed:
			red.Fprintf(w, "    %s %s: %s\n", e.Status, e.Object, e.Message)
		case export.StatusEmpty, export.StatusPartial:
			yellow.Fprintf(w, "    %s %s: %s", e.Status, e.Object, e.Message)
			if e.Size != (v3.Vec{}) {
				yellow.Fprintf(w, " (extent %gx%gx%g)", e.Size.X, e.Size.Y, e.Size.Z)
			}
			fmt.Fprintln(w)
		}
	}
	if r.Warnings > 0 {
		yellow.Fprintf(w, "%d warnings\n", r.Warnings)
	}
}
