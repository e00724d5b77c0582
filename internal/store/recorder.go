package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"asmocha/internal/core"
	"asmocha/internal/engine"
)

// Recorder writes a run and its results to the store as bridged events arrive.
// Results are buffered and inserted in one transaction at run:end.
type Recorder struct {
	ctx     context.Context
	store   *SQLiteStore
	run     core.RunRecord
	results []core.ResultRecord
}

func NewRecorder(ctx context.Context, store *SQLiteStore, run core.RunRecord) *Recorder {
	return &Recorder{ctx: ctx, store: store, run: run}
}

func (r *Recorder) Emit(event core.Event) error {
	payload, _ := event.Payload.(engine.Payload)
	switch engine.EventKind(event.EventType) {
	case engine.EventRunStart:
		if r.run.Status == "" {
			r.run.Status = core.RunStatusRunning
		}
		if r.run.StartedAt.IsZero() {
			r.run.StartedAt = time.Now()
		}
		if err := r.store.CreateRun(r.ctx, r.run); err != nil {
			return fmt.Errorf("record run %s: %w", r.run.RunID, err)
		}
	case engine.EventTestPass, engine.EventTestFail, engine.EventTestSkip:
		if payload.Test != nil {
			r.results = append(r.results, r.testResult(payload.Test, payload.Diagnostics))
		}
	case engine.EventTaskError:
		if payload.Task != nil {
			r.results = append(r.results, r.taskResult(payload.Task, payload.Diagnostics))
		}
	case engine.EventRunEnd:
		return r.finish()
	}
	return nil
}

func (r *Recorder) finish() error {
	if err := r.store.InsertResults(r.ctx, r.results); err != nil {
		return fmt.Errorf("record results of %s: %w", r.run.RunID, err)
	}
	var summary core.Summary
	summary.Add(r.results)
	status := core.RunStatusSucceeded
	if summary.Failed > 0 {
		status = core.RunStatusFailed
	}
	if err := r.store.UpdateRunStatus(r.ctx, r.run.RunID, status, summary.String()); err != nil {
		return fmt.Errorf("finish run %s: %w", r.run.RunID, err)
	}
	r.results = nil
	return nil
}

func (r *Recorder) testResult(test *engine.TestCase, diagnostics []engine.Diagnostic) core.ResultRecord {
	result := core.ResultRecord{
		RunID:      r.run.RunID,
		Package:    test.Package,
		Name:       test.Name,
		Status:     string(test.Status),
		DurationMs: test.Elapsed.Milliseconds(),
		CreatedAt:  time.Now(),
	}
	if len(diagnostics) > 0 {
		first := diagnostics[0]
		result.Message = first.Text
		result.FilePath = first.File
		result.Line = first.Line
		result.Column = first.Column
	}
	return result
}

func (r *Recorder) taskResult(task *engine.Task, diagnostics []engine.Diagnostic) core.ResultRecord {
	result := core.ResultRecord{
		RunID:      r.run.RunID,
		Package:    task.Package,
		Status:     string(engine.StatusFail),
		DurationMs: task.Elapsed.Milliseconds(),
		Message:    strings.Join(task.Output, "\n"),
		CreatedAt:  time.Now(),
	}
	if len(diagnostics) > 0 {
		result.FilePath = diagnostics[0].File
		result.Line = diagnostics[0].Line
		result.Column = diagnostics[0].Column
	}
	return result
}
