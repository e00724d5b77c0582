package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"asmocha/internal/core"
	"asmocha/internal/engine"
)

func openStore(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := NewSQLite(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Init(context.Background()))
	return db
}

func TestRunLifecycle(t *testing.T) {
	ctx := context.Background()
	db := openStore(t)

	started := time.Now().Add(-time.Minute)
	require.NoError(t, db.CreateRun(ctx, core.RunRecord{
		RunID: "run-1", RootPath: "/src", StartedAt: started, Status: core.RunStatusRunning, Config: "{}",
	}))
	require.NoError(t, db.InsertResults(ctx, []core.ResultRecord{
		{RunID: "run-1", Package: "example.com/a", Name: "TestA", Status: "pass", CreatedAt: time.Now()},
		{RunID: "run-1", Package: "example.com/a", Name: "TestB", Status: "fail", Message: "Not equal",
			FilePath: "/src/a/b_test.go", Line: 12, Column: 2, CreatedAt: time.Now()},
	}))
	require.NoError(t, db.InsertResults(ctx, nil))
	require.NoError(t, db.UpdateRunStatus(ctx, "run-1", core.RunStatusFailed, `{"tests":2}`))

	summary, err := db.GetRunSummary(ctx, "run-1")
	require.NoError(t, err)
	require.Equal(t, core.RunStatusFailed, summary.Status)
	require.Equal(t, 2, summary.Results)
	require.Equal(t, 1, summary.Failures)
	require.WithinDuration(t, started, summary.Started, time.Second)
	require.False(t, summary.Finished.IsZero())

	results, err := db.Results(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "TestB", results[1].Name)
	require.Equal(t, 12, results[1].Line)
	require.Equal(t, "/src/a/b_test.go", results[1].FilePath)
}

func TestGetRunSummaryMissing(t *testing.T) {
	_, err := openStore(t).GetRunSummary(context.Background(), "run-missing")
	require.Error(t, err)
}

func TestRecorderStoresBridgedEvents(t *testing.T) {
	ctx := context.Background()
	db := openStore(t)
	recorder := NewRecorder(ctx, db, core.RunRecord{RunID: "run-2", RootPath: "/src", Config: "{}"})

	emit := func(kind engine.EventKind, payload engine.Payload) {
		require.NoError(t, recorder.Emit(core.Event{RunID: "run-2", EventType: string(kind), Payload: payload}))
	}
	emit(engine.EventRunStart, engine.Payload{})
	emit(engine.EventTestPass, engine.Payload{Test: &engine.TestCase{Package: "example.com/a", Name: "TestA", Status: engine.StatusPass, Elapsed: 3 * time.Millisecond}})
	emit(engine.EventTestFail, engine.Payload{
		Test:        &engine.TestCase{Package: "example.com/a", Name: "TestB", Status: engine.StatusFail},
		Diagnostics: []engine.Diagnostic{{File: "/src/a/b_test.go", Line: 7, Column: 3, Text: "Error: boom"}},
	})
	emit(engine.EventTaskError, engine.Payload{Task: &engine.Task{Package: "example.com/broken", Output: []string{"undefined: x"}}})

	summary, err := db.GetRunSummary(ctx, "run-2")
	require.NoError(t, err)
	require.Equal(t, core.RunStatusRunning, summary.Status)
	require.Zero(t, summary.Results)

	emit(engine.EventRunEnd, engine.Payload{Result: &engine.Result{}})

	summary, err = db.GetRunSummary(ctx, "run-2")
	require.NoError(t, err)
	require.Equal(t, core.RunStatusFailed, summary.Status)
	require.Equal(t, 3, summary.Results)
	require.Equal(t, 2, summary.Failures)

	results, err := db.Results(ctx, "run-2")
	require.NoError(t, err)
	require.Equal(t, "Error: boom", results[1].Message)
	require.Equal(t, "undefined: x", results[2].Message)
	require.Empty(t, results[2].Name)
}
