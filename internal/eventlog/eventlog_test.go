package eventlog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"asmocha/internal/core"
)

func TestEmitAppendsLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "events.jsonl")
	log, err := New(path)
	require.NoError(t, err)
	log.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	require.NoError(t, log.Emit(core.Event{RunID: "run-1", Level: "info", EventType: "run:start", Mocha: []string{"start", "suite"}}))
	require.NoError(t, log.Emit(core.Event{RunID: "run-1", Level: "error", EventType: "test:fail", Package: "example.com/a", Test: "TestX"}))
	require.NoError(t, log.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.Equal(t, "2026-03-01T12:00:00Z", first["ts"])
	require.Equal(t, "run:start", first["event_type"])
	require.Equal(t, []any{"start", "suite"}, first["mocha"])

	var second map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	require.Equal(t, "TestX", second["test"])
	require.Equal(t, "error", second["level"])
}

func TestCloseNil(t *testing.T) {
	var log *EventLog
	require.NoError(t, log.Close())
}
