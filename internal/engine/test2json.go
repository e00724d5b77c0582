package engine

import (
	"encoding/json"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// testEvent is one line of `go test -json` output.
type testEvent struct {
	Time        time.Time `json:"Time"`
	Action      string    `json:"Action"`
	Package     string    `json:"Package"`
	ImportPath  string    `json:"ImportPath"`
	Test        string    `json:"Test"`
	Elapsed     float64   `json:"Elapsed"`
	Output      string    `json:"Output"`
	FailedBuild string    `json:"FailedBuild"`
}

type taskState struct {
	task  Task
	tests  map[string]*TestCase
	ran    int
	failed int
}

// streamDecoder turns test2json lines into engine events. It is fed from a
// single goroutine and emits synchronously, so event order follows line order.
type streamDecoder struct {
	emit        func(Event)
	dirs        []packageDir
	tasks       map[string]*taskState
	order       []string
	buildOutput map[string][]string
	result      *Result
	decoded     int
}

type packageDir struct {
	rel string
	abs string
}

func newStreamDecoder(root string, dirs []string, result *Result, emit func(Event)) *streamDecoder {
	known := make([]packageDir, 0, len(dirs))
	for _, dir := range dirs {
		rel, err := filepath.Rel(root, dir)
		if err != nil {
			continue
		}
		known = append(known, packageDir{rel: filepath.ToSlash(rel), abs: dir})
	}
	sort.SliceStable(known, func(i, j int) bool { return len(known[i].rel) > len(known[j].rel) })
	return &streamDecoder{
		emit:        emit,
		dirs:        known,
		tasks:       make(map[string]*taskState),
		buildOutput: make(map[string][]string),
		result:      result,
	}
}

func (d *streamDecoder) handleLine(line []byte) {
	var ev testEvent
	if err := json.Unmarshal(line, &ev); err != nil {
		return
	}
	d.decoded++

	if ev.Package == "" {
		if ev.ImportPath != "" && ev.Action == "build-output" {
			key := buildKey(ev.ImportPath)
			d.buildOutput[key] = append(d.buildOutput[key], trimOutput(ev.Output))
		}
		return
	}

	state := d.task(ev.Package)
	switch ev.Action {
	case "run":
		test := &TestCase{Package: ev.Package, Dir: state.task.Dir, Name: ev.Test}
		state.tests[ev.Test] = test
		state.ran++
		d.emit(Event{Kind: EventTestStart, Payload: Payload{Task: &state.task, Test: test}})
	case "output":
		text := trimOutput(ev.Output)
		if ev.Test == "" {
			state.task.Output = append(state.task.Output, text)
			return
		}
		if test, ok := state.tests[ev.Test]; ok && !isFramingLine(text) {
			test.Output = append(test.Output, text)
		}
	case "pass", "fail", "skip":
		elapsed := time.Duration(ev.Elapsed * float64(time.Second))
		if ev.Test != "" {
			d.finishTest(state, ev.Test, Status(ev.Action), elapsed)
			return
		}
		d.finishTask(state, Status(ev.Action), elapsed, ev.FailedBuild)
	}
}

func (d *streamDecoder) task(pkg string) *taskState {
	if state, ok := d.tasks[pkg]; ok {
		return state
	}
	state := &taskState{
		task:  Task{Package: pkg, Dir: d.dirFor(pkg)},
		tests: make(map[string]*TestCase),
	}
	d.tasks[pkg] = state
	d.order = append(d.order, pkg)
	d.result.Tasks++
	d.emit(Event{Kind: EventTaskStart, Payload: Payload{Task: &state.task}})
	return state
}

func (d *streamDecoder) finishTest(state *taskState, name string, status Status, elapsed time.Duration) {
	test, ok := state.tests[name]
	if !ok {
		test = &TestCase{Package: state.task.Package, Dir: state.task.Dir, Name: name}
	}
	delete(state.tests, name)
	test.Status = status
	test.Elapsed = elapsed

	d.result.Tests++
	payload := Payload{Task: &state.task, Test: test}
	switch status {
	case StatusPass:
		d.result.Passed++
		d.emit(Event{Kind: EventTestPass, Payload: payload})
	case StatusFail:
		d.result.Failed++
		state.failed++
		payload.Diagnostics = ParseDiagnostics(test.Output, test.Dir)
		d.emit(Event{Kind: EventTestFail, Payload: payload})
	case StatusSkip:
		d.result.Skipped++
		d.emit(Event{Kind: EventTestSkip, Payload: payload})
	}
}

func (d *streamDecoder) finishTask(state *taskState, status Status, elapsed time.Duration, failedBuild string) {
	state.task.Status = status
	state.task.Elapsed = elapsed
	if status == StatusFail && (failedBuild != "" || state.ran == 0) {
		output := append([]string(nil), d.buildOutput[buildKey(failedBuild)]...)
		output = append(output, state.task.Output...)
		state.task.Output = output
		d.result.Failed++
		d.emit(Event{Kind: EventTaskError, Payload: Payload{
			Task:        &state.task,
			Diagnostics: ParseDiagnostics(output, state.task.Dir),
		}})
	} else if status == StatusFail && state.failed == 0 {
		// Failed outside any test: TestMain, a panic or a test that never ended.
		d.result.Failed++
	}
	d.emit(Event{Kind: EventTaskEnd, Payload: Payload{Task: &state.task}})
}

func (d *streamDecoder) dirFor(pkg string) string {
	for _, dir := range d.dirs {
		if dir.rel == "." {
			continue
		}
		if pkg == dir.rel || strings.HasSuffix(pkg, "/"+dir.rel) {
			return dir.abs
		}
	}
	for _, dir := range d.dirs {
		if dir.rel == "." {
			return dir.abs
		}
	}
	return ""
}

// buildKey strips the " [pkg.test]" suffix go test adds to build import paths.
func buildKey(importPath string) string {
	if idx := strings.Index(importPath, " ["); idx >= 0 {
		return importPath[:idx]
	}
	return importPath
}

func trimOutput(output string) string {
	return strings.TrimRight(output, "\r\n")
}

func isFramingLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	for _, prefix := range []string{"=== RUN", "=== PAUSE", "=== CONT", "=== NAME", "--- PASS", "--- FAIL", "--- SKIP"} {
		if strings.HasPrefix(trimmed, prefix) {
			return true
		}
	}
	return false
}

var diagnosticLine = regexp.MustCompile(`^\s*((?:[A-Za-z]:)?[^\s:]+\.go):(\d+):(?:(\d+):)?\s?(.*)$`)

// ParseDiagnostics extracts "file.go:line[:col]: text" entries from test or
// build output. Indented lines that follow an entry are folded into its text.
// Relative file names are joined with dir.
func ParseDiagnostics(lines []string, dir string) []Diagnostic {
	var diagnostics []Diagnostic
	var current *Diagnostic
	currentIndent := 0
	for _, line := range lines {
		if match := diagnosticLine.FindStringSubmatch(line); match != nil {
			lineNo, _ := strconv.Atoi(match[2])
			column, _ := strconv.Atoi(match[3])
			file := match[1]
			if dir != "" && !filepath.IsAbs(file) {
				file = filepath.Join(dir, file)
			}
			diagnostics = append(diagnostics, Diagnostic{
				File:   file,
				Line:   lineNo,
				Column: column,
				Text:   strings.TrimSpace(match[4]),
			})
			current = &diagnostics[len(diagnostics)-1]
			currentIndent = indentOf(line)
			continue
		}
		if current != nil && strings.TrimSpace(line) != "" && indentOf(line) > currentIndent {
			current.Text = strings.TrimLeft(current.Text+"\n"+strings.TrimSpace(line), "\n")
			continue
		}
		current = nil
	}
	return diagnostics
}

func indentOf(line string) int {
	return len(line) - len(strings.TrimLeft(line, " \t"))
}
