package app

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"asmocha/internal/adapter"
	"asmocha/internal/engine"
	"asmocha/internal/locate"
	"asmocha/internal/mocha"
	"asmocha/internal/runner"
)

// pluginToolchain returns the go binary, skipping when plugins built next to
// this test binary could not be opened by it.
func pluginToolchain(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("builds Go plugins")
	}
	switch runtime.GOOS {
	case "linux", "darwin", "freebsd":
	default:
		t.Skipf("plugins are not supported on %s", runtime.GOOS)
	}
	if raceEnabled || testing.CoverMode() != "" {
		t.Skip("plugins are built without race or coverage instrumentation")
	}
	goBin, err := exec.LookPath("go")
	if err != nil {
		t.Skip("go toolchain not found")
	}
	var out bytes.Buffer
	_, err = runner.NewGenericRunner().Run(context.Background(), runner.Command{
		Args:   []string{goBin, "env", "CGO_ENABLED"},
		Stdout: &out,
	})
	if err != nil || strings.TrimSpace(out.String()) != "1" {
		t.Skip("plugins need cgo")
	}
	return goBin
}

func buildPlugin(t *testing.T, goBin, root, output, pkg string) {
	t.Helper()
	var stderr bytes.Buffer
	_, err := runner.NewGenericRunner().Run(context.Background(), runner.Command{
		Args:           []string{goBin, "build", "-buildmode=plugin", "-o", output, pkg},
		Cwd:            root,
		TimeoutSeconds: 300,
		Stderr:         &stderr,
	})
	require.NoError(t, err, stderr.String())
}

func TestPluginsBehaveLikeRegisteredReporters(t *testing.T) {
	goBin := pluginToolchain(t)
	root, err := filepath.Abs(filepath.Join("..", ".."))
	require.NoError(t, err)

	dir := t.TempDir()
	recorderPath := filepath.Join(dir, "recorder.so")
	adapterPath := filepath.Join(dir, locate.CompiledName)
	buildPlugin(t, goBin, root, recorderPath, "./internal/app/testdata/recorder")
	buildPlugin(t, goBin, root, adapterPath, "./cmd/asmocha-reporter")

	recorder, err := mocha.LoadReporter(mocha.LoadReporterOptions{Reporter: recorderPath})
	require.NoError(t, err)
	mocha.Register("test/recorder", recorder)
	engine.RegisterReporter(adapter.Specifier, adapter.Factory(adapter.Options{}))

	located, err := locate.NewLocator("test/unregistered", adapterPath, nil).Locate(context.Background())
	require.NoError(t, err)
	require.Equal(t, adapterPath, located)

	ws := workspace(t)
	argv := os.Args
	t.Cleanup(func() { os.Args = argv })

	run := func(adapterSpecifier, reporter string) []string {
		trace := filepath.Join(t.TempDir(), "trace.txt")
		t.Setenv("ASMOCHA_TRACE", trace)
		os.Args = []string{"asmocha", "-R", reporter}

		cfg := engine.Resolve(engine.ResolveOptions{
			ConfigFile:         engine.FileConfig{RootPath: ws},
			CommandLineOptions: engine.CommandLineOptions{Reporters: []string{adapterSpecifier}},
		})
		files, err := engine.SelectFiles(context.Background(), cfg)
		require.NoError(t, err)
		testRunner, err := engine.NewRunner(context.Background(), cfg)
		require.NoError(t, err)
		_, err = testRunner.WithExec(&fakeExec{stdout: stream, exitCode: 1}).Run(context.Background(), files)
		require.NoError(t, err)

		data, err := os.ReadFile(trace)
		require.NoError(t, err)
		return strings.Split(strings.TrimSpace(string(data)), "\n")
	}

	want := run(adapter.Specifier, "test/recorder")
	require.Equal(t, "start", want[0])
	require.Equal(t, "end", want[len(want)-1])
	require.Contains(t, want, "pass example.com/app/calc TestAdd")

	assert.Equal(t, want, run(adapter.Specifier, recorderPath), "mocha reporter by path")
	assert.Equal(t, want, run(located, "test/recorder"), "adapter by path")
	assert.Equal(t, want, run(engine.FileURI(located), engine.FileURI(recorderPath)), "both by file URI")
}
