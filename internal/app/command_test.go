package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"asmocha/internal/adapter"
	"asmocha/internal/cli"
	"asmocha/internal/engine"
	"asmocha/internal/mocha"
	"asmocha/internal/runner"
	"asmocha/internal/store"
)

const stream = `{"Action":"start","Package":"example.com/app/calc"}
{"Action":"run","Package":"example.com/app/calc","Test":"TestAdd"}
{"Action":"pass","Package":"example.com/app/calc","Test":"TestAdd","Elapsed":0.01}
{"Action":"run","Package":"example.com/app/calc","Test":"TestSub"}
{"Action":"output","Package":"example.com/app/calc","Test":"TestSub","Output":"    calc_test.go:9: wrong sign\n"}
{"Action":"fail","Package":"example.com/app/calc","Test":"TestSub","Elapsed":0.01}
{"Action":"fail","Package":"example.com/app/calc","Elapsed":0.2}
`

type fakeExec struct {
	stdout   string
	exitCode int
	got      runner.Command
}

func (f *fakeExec) Run(ctx context.Context, cmd runner.Command) (runner.ExecResult, error) {
	f.got = cmd
	_, _ = io.WriteString(cmd.Stdout, f.stdout)
	return runner.ExecResult{ExitCode: f.exitCode}, nil
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func workspace(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "calc"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "calc", "calc_test.go"),
		[]byte("package calc\n\nfunc TestAdd(t *testing.T) {}\n\nfunc TestSub(t *testing.T) {}\n"), 0o644))
	chdirForTest(t, dir)
	return dir
}

func TestHelpExitsWithUsage(t *testing.T) {
	var stdout bytes.Buffer
	_, err := Command{Args: []string{"--reporter", "spec", "-h"}, Stdout: &stdout, Stderr: io.Discard}.Run(context.Background())
	require.Equal(t, 1, ExitCode(err))
	require.Equal(t, cli.Usage, stdout.String())
}

func TestMissingReporterIsUsageError(t *testing.T) {
	var stdout bytes.Buffer
	_, err := Command{Args: []string{"--grep", "x"}, Stdout: &stdout, Stderr: io.Discard}.Run(context.Background())
	require.Equal(t, 1, ExitCode(err))
	require.Equal(t, "--reporter|-R (path/to/js) is required\n", stdout.String())
}

func TestShowConfigResolvesAdapterAsOnlyReporter(t *testing.T) {
	workspace(t)
	var stdout, stderr bytes.Buffer
	_, err := Command{
		Args:   []string{"--reporter", "./r.mjs", "--grep", "^X$", "a/b.test.ts", "--showConfig"},
		Stdout: &stdout,
		Stderr: &stderr,
	}.Run(context.Background())
	require.Equal(t, 1, ExitCode(err))

	var cfg engine.ResolvedConfig
	require.NoError(t, yaml.Unmarshal(stdout.Bytes(), &cfg))
	assert.Equal(t, "X", cfg.Only)
	assert.Equal(t, []string{filepath.FromSlash("a/b.test.ts")}, cfg.PathMatch)
	assert.Equal(t, []string{adapter.Specifier}, cfg.Reporters)
	assert.Equal(t, []string{"*_test.go"}, cfg.TestFileMatch)

	assert.Contains(t, stderr.String(), `Provided with --grep="^X$"`)
	assert.Contains(t, stderr.String(), `Converted to go test: --only "X"`)
}

func TestShowConfigReportsWriteFailure(t *testing.T) {
	workspace(t)
	var stderr bytes.Buffer
	_, err := Command{
		Args:   []string{"--reporter", "spec", "--showConfig"},
		Stdout: failingWriter{},
		Stderr: &stderr,
	}.Run(context.Background())
	require.Equal(t, 1, ExitCode(err))
	require.ErrorContains(t, err, "disk full")
	assert.Contains(t, stderr.String(), "disk full")
}

func TestPackageFailureAfterPassingTestsExitsNonZero(t *testing.T) {
	workspace(t)
	var fails int
	mocha.Register("test/package-failure", func(r *mocha.Runner) {
		r.On(mocha.EventTestFail, func(mocha.Event) { fails++ })
	})
	stream := `{"Action":"start","Package":"example.com/app/calc"}
{"Action":"run","Package":"example.com/app/calc","Test":"TestAdd"}
{"Action":"pass","Package":"example.com/app/calc","Test":"TestAdd","Elapsed":0.01}
{"Action":"output","Package":"example.com/app/calc","Output":"FAIL\texample.com/app/calc\t0.01s\n"}
{"Action":"fail","Package":"example.com/app/calc","Elapsed":0.2}
`
	result, err := Command{
		Args:   []string{"-R", "test/package-failure"},
		Stdout: io.Discard,
		Stderr: io.Discard,
		Exec:   &fakeExec{stdout: stream, exitCode: 1},
	}.Run(context.Background())
	require.Equal(t, 1, ExitCode(err))
	assert.Equal(t, 1, fails)
	assert.Equal(t, "failed", result.Status)
}

func TestRunBridgesToMochaReporter(t *testing.T) {
	dir := workspace(t)
	var lines []string
	mocha.Register("test/app", func(r *mocha.Runner) {
		for _, name := range mocha.AllEvents {
			r.On(name, func(event mocha.Event) { lines = append(lines, event.Name) })
		}
	})

	exec := &fakeExec{stdout: stream, exitCode: 1}
	history := filepath.Join(dir, "out", "history.db")
	trace := filepath.Join(dir, "out", "events.jsonl")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "out"), 0o755))

	result, err := Command{
		Args:   []string{"-R", "test/app", "--history", history, "--eventLog", trace, "--noGrepWarning", "--grep", "Sub"},
		Stdout: io.Discard,
		Stderr: io.Discard,
		Exec:   exec,
	}.Run(context.Background())
	require.Equal(t, 1, ExitCode(err))
	assert.Equal(t, "failed", result.Status)
	assert.Equal(t, 1, result.Passed)
	assert.Equal(t, 1, result.Failed)

	assert.Equal(t, []string{"go", "test", "-json", "-run", "Sub", "./calc"}, exec.got.Args)
	assert.Equal(t, []string{
		"start", "suite", "suite",
		"test", "pass", "test end",
		"test", "fail", "test end",
		"suite end", "suite end", "end",
	}, lines)

	data, err := os.ReadFile(trace)
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(string(data)), "\n"), 8)

	db, err := store.NewSQLite(history)
	require.NoError(t, err)
	defer db.Close()
	summary, err := db.GetRunSummary(context.Background(), result.RunID)
	require.NoError(t, err)
	assert.Equal(t, "failed", summary.Status)
	assert.Equal(t, 2, summary.Results)
	assert.Equal(t, 1, summary.Failures)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 3, ExitCode(&ExitError{Code: 3}))
	assert.Equal(t, 1, ExitCode(assert.AnError))
}
