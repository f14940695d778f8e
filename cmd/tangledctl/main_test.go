package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const smallParamsYAML = `nbGenerations: 2
nbThreads: 2
nbRegisters: 4
nbIterationsPerPolicyEvaluation: 2
maxNbActionsPerEval: 20
maxNbEvaluationPerPolicy: 4
mutation:
  tpg:
    nbRoots: 8
  prog:
    maxProgramSize: 6
`

type cli struct {
	t    *testing.T
	base []string
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	dir := t.TempDir()
	return &cli{t: t, base: []string{
		"--store", "badger",
		"--store-path", filepath.Join(dir, "store"),
		"--artifacts-dir", filepath.Join(dir, "runs"),
		"--exports-dir", filepath.Join(dir, "exports"),
		"--log-level", "error",
	}}
}

func (c *cli) run(args ...string) (string, error) {
	c.t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), append(append([]string(nil), c.base...), args...), &stdout, &stderr)
	return stdout.String(), err
}

func writeParams(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "params.yaml")
	require.NoError(t, os.WriteFile(path, []byte(smallParamsYAML), 0o644))
	return path
}

func TestRunThenInspect(t *testing.T) {
	c := newCLI(t)
	params := writeParams(t)

	out, err := c.run("run", "--scape", "stick-game", "--params", params, "--seed", "4", "--json")
	require.NoError(t, err)
	var summary struct {
		RunID            string
		Agent            string
		Generations      uint64
		BestByGeneration []float64
	}
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	require.NotEmpty(t, summary.RunID)
	assert.Equal(t, "parallel", summary.Agent)
	assert.Equal(t, uint64(2), summary.Generations)
	assert.Len(t, summary.BestByGeneration, 2)

	out, err = c.run("runs")
	require.NoError(t, err)
	assert.Contains(t, out, "run_id="+summary.RunID)
	assert.Contains(t, out, "scape=stick-game")

	out, err = c.run("diagnostics", "--latest")
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(out, "generation="))

	out, err = c.run("export", "--run-id", summary.RunID)
	require.NoError(t, err)
	assert.Contains(t, out, "exported run_id="+summary.RunID)

	out, err = c.run("replay", "--latest", "--iterations", "3")
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(out, "iteration="))
	assert.Contains(t, out, "mode=testing")

	out, err = c.run("compare", summary.RunID)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(out, "runs=1"))
}

func TestRunPrintsGenerationTable(t *testing.T) {
	c := newCLI(t)
	out, err := c.run("run", "--scape", "cart-pole-lite", "--params", writeParams(t), "--agent", "sequential")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "T_total")
	assert.True(t, strings.HasPrefix(lines[3], "run completed"))
}

func TestScapesListsBuiltins(t *testing.T) {
	out, err := newCLI(t).run("scapes")
	require.NoError(t, err)
	assert.Contains(t, out, "stick-game-versus kind=adversarial actions=3")
	assert.Contains(t, out, "pendulum kind=continuous")
}

func TestCommandErrors(t *testing.T) {
	c := newCLI(t)
	_, err := c.run("diagnostics")
	require.Error(t, err)
	_, err = c.run("diagnostics", "--latest", "--run-id", "x")
	require.Error(t, err)
	_, err = c.run("runs", "--limit", "0")
	require.Error(t, err)
	_, err = c.run("replay", "--latest", "--mode", "sideways")
	require.Error(t, err)
	_, err = c.run("run", "--scape", "no-such-scape", "--params", writeParams(t))
	require.Error(t, err)
	_, err = c.run("bogus")
	require.Error(t, err)
	err = run(context.Background(), []string{"scapes", "--log-level", "loud"}, &bytes.Buffer{}, &bytes.Buffer{})
	require.Error(t, err)
}

func TestLoggerFansOutToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tangled.log")
	var level slog.LevelVar
	var text bytes.Buffer
	log, closer, err := newLogger(&text, &level, path)
	require.NoError(t, err)
	log.Info("hello", slog.Int("n", 1))
	log.Debug("hidden")
	require.NoError(t, closer.Close())

	assert.Contains(t, text.String(), "msg=hello")
	assert.NotContains(t, text.String(), "hidden")
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var record map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(raw), &record))
	assert.Equal(t, "hello", record["msg"])
	assert.EqualValues(t, 1, record["n"])
}
