package engine

import "time"

// EventKind names a lifecycle event emitted by the Runner.
type EventKind string

const (
	EventRunStart  EventKind = "run:start"
	EventRunEnd    EventKind = "run:end"
	EventTaskStart EventKind = "task:start"
	EventTaskError EventKind = "task:error"
	EventTaskEnd   EventKind = "task:end"
	EventTestStart EventKind = "test:start"
	EventTestPass  EventKind = "test:pass"
	EventTestFail  EventKind = "test:fail"
	EventTestSkip  EventKind = "test:skip"
)

// Event is the (kind, payload) pair handed to every reporter.
type Event struct {
	Kind    EventKind
	Payload Payload
}

// Payload carries whichever of its fields are relevant for the event kind.
type Payload struct {
	Result      *Result      `json:"result,omitempty"`
	Task        *Task        `json:"task,omitempty"`
	Test        *TestCase    `json:"test,omitempty"`
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`
}

// Task is one Go package under test.
type Task struct {
	Package string        `json:"package"`
	Dir     string        `json:"dir,omitempty"`
	Status  Status        `json:"status,omitempty"`
	Elapsed time.Duration `json:"elapsed,omitempty"`
	Output  []string      `json:"output,omitempty"`
}

// TestCase is a single test or subtest. Name is the full slash separated
// go test name, e.g. "TestParse/empty_input".
type TestCase struct {
	Package string        `json:"package"`
	Dir     string        `json:"dir,omitempty"`
	Name    string        `json:"name"`
	Status  Status        `json:"status,omitempty"`
	Elapsed time.Duration `json:"elapsed,omitempty"`
	Output  []string      `json:"output,omitempty"`
}

type Status string

const (
	StatusPass Status = "pass"
	StatusFail Status = "fail"
	StatusSkip Status = "skip"
)

// Diagnostic is a file-anchored message pulled from test output.
type Diagnostic struct {
	File   string `json:"file,omitempty"`
	Line   int    `json:"line,omitempty"`
	Column int    `json:"column,omitempty"`
	Text   string `json:"text"`
}

// Result summarizes a whole run.
type Result struct {
	Files    []string  `json:"files,omitempty"`
	Tasks    int       `json:"tasks"`
	Tests    int       `json:"tests"`
	Passed   int       `json:"passed"`
	Failed   int       `json:"failed"`
	Skipped  int       `json:"skipped"`
	ExitCode int       `json:"exitCode"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished,omitempty"`
}

// HasFailures reports whether any test or package failed, or go test
// itself exited non-zero.
func (r Result) HasFailures() bool {
	return r.Failed > 0 || r.ExitCode != 0
}
