package logging

import (
	"bytes"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/require"
)

func TestConsoleDebugRequiresVerbose(t *testing.T) {
	var quiet bytes.Buffer
	New(&quiet, false).Debug("hidden %d", 1)
	require.Empty(t, quiet.String())

	var loud bytes.Buffer
	New(&loud, true).Debug("shown %d", 2)
	require.Equal(t, "shown 2\n", loud.String())
}

func TestConsoleWarnPrefixesEveryLine(t *testing.T) {
	previous := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = previous })

	var buf bytes.Buffer
	New(&buf, false).Warn("first\nsecond")
	require.Equal(t, "[WARN] first\n[WARN] second\n", buf.String())
}

func TestOrNopHandlesNilPointers(t *testing.T) {
	var console *Console
	require.True(t, IsNil(console))
	require.NotPanics(t, func() { OrNop(console).Info("x") })
	require.False(t, IsNil(New(&bytes.Buffer{}, false)))
}
