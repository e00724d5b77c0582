package engine

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegisterAndLoadReporter(t *testing.T) {
	reporter := &recordingReporter{}
	RegisterReporter("test/recording", func(cfg ResolvedConfig) (Reporter, error) {
		return reporter, nil
	})

	require.True(t, HasReporter("test/recording"))
	require.Contains(t, RegisteredReporters(), "test/recording")
	require.Contains(t, RegisteredReporters(), "list")

	loaded, err := LoadReporter(context.Background(), "test/recording", ResolvedConfig{})
	require.NoError(t, err)
	require.Same(t, reporter, loaded)
}

func TestNilFactoryIsNotRegistered(t *testing.T) {
	RegisterReporter("test/nil", nil)
	require.False(t, HasReporter("test/nil"))
	require.NotContains(t, RegisteredReporters(), "test/nil")

	_, err := LoadReporter(context.Background(), "test/nil", ResolvedConfig{})
	require.Error(t, err)
}

func TestLoadReporterMissingPlugin(t *testing.T) {
	_, err := LoadReporter(context.Background(), filepath.Join(t.TempDir(), "missing.so"), ResolvedConfig{})
	require.Error(t, err)
	require.False(t, HasReporter("missing"))
}

func TestFileURIRoundTrip(t *testing.T) {
	require.Equal(t, "file:///C:/Users/dev/asmocha-reporter.so", FileURI(`C:/Users/dev/asmocha-reporter.so`))
	require.Equal(t, "file:///opt/asmocha/asmocha-reporter.so", FileURI("/opt/asmocha/asmocha-reporter.so"))

	path, err := PathFromSpecifier("file:///C:/Users/dev/asmocha-reporter.so")
	require.NoError(t, err)
	require.Equal(t, filepath.FromSlash("C:/Users/dev/asmocha-reporter.so"), path)

	path, err = PathFromSpecifier("/plain/path.so")
	require.NoError(t, err)
	require.Equal(t, "/plain/path.so", path)
}

func TestHasDriveLetter(t *testing.T) {
	require.True(t, HasDriveLetter(`C:\tools`))
	require.True(t, HasDriveLetter("d:/tools"))
	require.False(t, HasDriveLetter("/tools"))
	require.False(t, HasDriveLetter("asmocha/reporter"))
}

func TestListReporterPrintsSummary(t *testing.T) {
	var out bytes.Buffer
	reporter := NewListReporter(&out)
	reporter.On(Event{Kind: EventTestFail, Payload: Payload{Test: &TestCase{
		Package: "example.com/a", Name: "TestX", Status: StatusFail, Output: []string{"boom"},
	}}})
	reporter.On(Event{Kind: EventRunEnd, Payload: Payload{Result: &Result{Tests: 1, Failed: 1}}})

	require.Contains(t, out.String(), "fail example.com/a TestX")
	require.Contains(t, out.String(), "     boom")
	require.Contains(t, out.String(), "1 tests: 0 passed, 1 failed, 0 skipped")
}
