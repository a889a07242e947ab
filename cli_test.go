package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/gstep/pkg/export"
	"github.com/chazu/gstep/pkg/manifest"
	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bracket = `
(title "bracket")
(rpp "plate.s" :min (vec3 0 0 0) :max (vec3 40 20 5))
(rcc "hole.s" :base (vec3 10 10 -1) :height (vec3 0 0 7) :radius 3)
(region "plate" (subtract "plate.s" "hole.s"))
(comb "pair" "plate" (ref "plate" :matrix (translate 0 0 10)))
`

func writeInput(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bracket.g.lisp")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func runCLI(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	color.NoColor = true
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err = cmd.Execute()
	return out.String(), errOut.String(), err
}

// ---------------------------------------------------------------------------
// Export
// ---------------------------------------------------------------------------

func TestExportWritesStepFile(t *testing.T) {
	in := writeInput(t, bracket)
	out := filepath.Join(t.TempDir(), "bracket.stp")

	stdout, _, err := runCLI(t, "-o", out, in)
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, "ISO-10303-21;")
	assert.Contains(t, text, "FILE_NAME('bracket.stp'")
	assert.Contains(t, text, "FILE_DESCRIPTION(('bracket')")
	assert.Contains(t, text, "CSG_SOLID('plate'")
	assert.Contains(t, stdout, "Wrote "+out)
	assert.Contains(t, stdout, "2 assembly edges")
	assert.Contains(t, stdout, "4 converted")
}

func TestSummaryShowsExtentOfEmptySolid(t *testing.T) {
	in := writeInput(t, `(sph "ball" :center (vec3 5 5 5) :radius 2)`)
	out := filepath.Join(t.TempDir(), "ball.stp")

	stdout, _, err := runCLI(t, "-o", out, in)
	require.NoError(t, err)
	assert.Contains(t, stdout, "1 empty")
	assert.Contains(t, stdout, "empty ball:")
	assert.Contains(t, stdout, "(extent 4x4x4)")
}

func TestRefusesExistingOutput(t *testing.T) {
	in := writeInput(t, bracket)
	out := filepath.Join(t.TempDir(), "bracket.stp")
	require.NoError(t, os.WriteFile(out, []byte("keep"), 0o644))

	_, _, err := runCLI(t, "-o", out, in)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "keep", string(data))
}

func TestOutputRequired(t *testing.T) {
	_, _, err := runCLI(t, writeInput(t, bracket))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "output")
}

func TestUnknownObjectWritesNothing(t *testing.T) {
	in := writeInput(t, bracket)
	out := filepath.Join(t.TempDir(), "bracket.stp")

	_, _, err := runCLI(t, "-o", out, in, "plate", "nope")
	require.ErrorIs(t, err, export.ErrNotFound)
	assert.NoFileExists(t, out)
}

func TestInvalidHierarchyWritesNothing(t *testing.T) {
	in := writeInput(t, `
(rpp "a.s" :min (vec3 0 0 0) :max (vec3 1 1 1))
(region "inner" "a.s")
(region "outer" "inner")
`)
	out := filepath.Join(t.TempDir(), "bad.stp")

	_, stderr, err := runCLI(t, "-o", out, in)
	require.ErrorIs(t, err, export.ErrInvalidHierarchy)
	assert.NoFileExists(t, out)
	assert.Contains(t, stderr, "nested inside region")
}

func TestSelectedObjects(t *testing.T) {
	in := writeInput(t, bracket)
	out := filepath.Join(t.TempDir(), "plate.stp")

	stdout, _, err := runCLI(t, "-o", out, in, "plate")
	require.NoError(t, err)
	assert.Contains(t, stdout, "0 assembly edges")
	assert.Contains(t, stdout, "3 converted")
}

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

func TestConfigFileAndFlagOverrides(t *testing.T) {
	in := writeInput(t, bracket)
	dir := t.TempDir()
	cfg := filepath.Join(dir, "gstep.toml")
	require.NoError(t, os.WriteFile(cfg, []byte(`
[export]
dialect = "ap203"
author = "Shop Floor"
`), 0o644))

	out := filepath.Join(dir, "ap203.stp")
	_, _, err := runCLI(t, "--config", cfg, "-o", out, in)
	require.NoError(t, err)
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "CONFIG_CONTROL_DESIGN")
	assert.Contains(t, string(data), "('Shop Floor')")

	out = filepath.Join(dir, "ap214.stp")
	_, _, err = runCLI(t, "--config", cfg, "--dialect", "ap214", "-o", out, in)
	require.NoError(t, err)
	data, err = os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "AUTOMOTIVE_DESIGN")
}

func TestInvalidDialectFlag(t *testing.T) {
	out := filepath.Join(t.TempDir(), "x.stp")
	_, _, err := runCLI(t, "--dialect", "ap242", "-o", out, writeInput(t, bracket))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "export.dialect")
	assert.NoFileExists(t, out)
}

// ---------------------------------------------------------------------------
// Side outputs
// ---------------------------------------------------------------------------

func TestManifestAndMetrics(t *testing.T) {
	in := writeInput(t, bracket)
	dir := t.TempDir()
	out := filepath.Join(dir, "bracket.stp")
	db := filepath.Join(dir, "manifest.db")
	prom := filepath.Join(dir, "gstep.prom")

	_, _, err := runCLI(t, "-o", out, "--manifest", db, "--metrics", prom, "--log-level", "debug", in)
	require.NoError(t, err)

	store, err := manifest.Open(db)
	require.NoError(t, err)
	defer store.Close()

	runs, err := store.Runs()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	run := runs[0]
	assert.Equal(t, runSucceeded, run.Status)
	assert.Equal(t, "ap214", run.Dialect)
	assert.Positive(t, run.Entities)

	entries, err := store.Entries(run.ID)
	require.NoError(t, err)
	require.Len(t, entries, 4)
	for _, e := range entries {
		if e.Object == "plate.s" {
			assert.InDelta(t, 40, e.SizeX, 1e-6)
			assert.InDelta(t, 20, e.SizeY, 1e-6)
			assert.InDelta(t, 5, e.SizeZ, 1e-6)
		}
	}
	counts, err := store.CountByStatus(run.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"converted": 4}, counts)

	metrics, err := os.ReadFile(prom)
	require.NoError(t, err)
	assert.Contains(t, string(metrics), `gstep_assembly_edges_total{status="emitted"} 2`)
	assert.Contains(t, string(metrics), "gstep_entities_total")
}

func TestManifestRecordsFailedRun(t *testing.T) {
	in := writeInput(t, bracket)
	dir := t.TempDir()
	db := filepath.Join(dir, "manifest.db")

	_, _, err := runCLI(t, "-o", filepath.Join(dir, "x.stp"), "--manifest", db, in, "nope")
	require.Error(t, err)

	store, err := manifest.Open(db)
	require.NoError(t, err)
	defer store.Close()
	runs, err := store.Runs()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, runFailed, runs[0].Status)
}

// ---------------------------------------------------------------------------
// Runs
// ---------------------------------------------------------------------------

func TestRunsListsAndShowsManifest(t *testing.T) {
	in := writeInput(t, bracket)
	dir := t.TempDir()
	db := filepath.Join(dir, "manifest.db")

	_, _, err := runCLI(t, "-o", filepath.Join(dir, "a.stp"), "--manifest", db, in)
	require.NoError(t, err)
	_, _, err = runCLI(t, "-o", filepath.Join(dir, "b.stp"), "--manifest", db, in, "nope")
	require.Error(t, err)

	store, err := manifest.Open(db)
	require.NoError(t, err)
	runs, err := store.Runs()
	require.NoError(t, err)
	require.NoError(t, store.Close())
	require.Len(t, runs, 2)

	stdout, _, err := runCLI(t, "runs", "--manifest", db)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 2)
	for _, r := range runs {
		assert.Contains(t, stdout, r.ID)
	}
	assert.Contains(t, stdout, "succeeded")
	assert.Contains(t, stdout, "failed")
	assert.Contains(t, stdout, "[converted=4]")

	var ok manifest.Run
	for _, r := range runs {
		if r.Status == runSucceeded {
			ok = r
		}
	}
	stdout, _, err = runCLI(t, "runs", "--manifest", db, ok.ID)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Run "+ok.ID+": "+in+" -> "+filepath.Join(dir, "a.stp")+" (ap214), succeeded")
	assert.Contains(t, stdout, "plate.s (6 faces)")
	assert.Contains(t, stdout, "pair")
}

func TestRunsErrors(t *testing.T) {
	dir := t.TempDir()
	_, _, err := runCLI(t, "runs", "--manifest", filepath.Join(dir, "missing.db"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")

	db := filepath.Join(dir, "m.db")
	store, err := manifest.Open(db)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	stdout, _, err := runCLI(t, "runs", "--manifest", db)
	require.NoError(t, err)
	assert.Contains(t, stdout, "no runs recorded")

	_, _, err = runCLI(t, "runs", "--manifest", db, "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run nope not found")
}

func TestFormatCounts(t *testing.T) {
	assert.Equal(t, "", formatCounts(nil))
	assert.Equal(t, "converted=4 empty=1 failed=2", formatCounts(map[string]int{"failed": 2, "converted": 4, "empty": 1}))
}
