package adapter

import (
	"fmt"
	"path/filepath"
	"strings"

	"asmocha/internal/engine"
	"asmocha/internal/mocha"
)

const (
	beforeAllHook = `"before all" hook`
	afterAllHook  = `"after all" hook`
)

// node is a go test that has started. It stays a plain test until one of its
// subtests starts, then it becomes a suite.
type node struct {
	name        string
	title       string
	parent      *mocha.Suite
	suite       *mocha.Suite
	failedChild bool
}

type packageState struct {
	suite       *mocha.Suite
	dir         string
	files       map[string]string
	nodes       map[string]*node
	open        []string
	failedChild bool
	errored     bool
}

// bridge holds the translation state of one run. It is driven from a single
// goroutine.
type bridge struct {
	runner   *mocha.Runner
	files    []string
	packages map[string]*packageState
	emitted  []string
}

func newBridge(runner *mocha.Runner) *bridge {
	return &bridge{runner: runner, packages: make(map[string]*packageState)}
}

func (b *bridge) emit(event mocha.Event) {
	b.emitted = append(b.emitted, event.Name)
	b.runner.Emit(event)
}

// translate emits the mocha events for event and returns their names.
func (b *bridge) translate(event engine.Event) []string {
	b.emitted = nil
	payload := event.Payload
	switch event.Kind {
	case engine.EventRunStart:
		if payload.Result != nil {
			b.files = payload.Result.Files
		}
		b.runner.Total = countTests(b.files)
		b.emit(mocha.Event{Name: mocha.EventRunBegin})
		b.emit(mocha.Event{Name: mocha.EventSuiteBegin, Suite: b.runner.Suite})
	case engine.EventTaskStart:
		if payload.Task != nil {
			b.pkg(payload.Task.Package, payload.Task.Dir)
		}
	case engine.EventTestStart:
		b.startTest(payload.Test)
	case engine.EventTestPass, engine.EventTestFail, engine.EventTestSkip:
		b.endTest(payload.Test, payload.Diagnostics)
	case engine.EventTaskError:
		b.packageError(payload.Task, payload.Diagnostics)
	case engine.EventTaskEnd:
		b.endPackage(payload.Task)
	case engine.EventRunEnd:
		b.emit(mocha.Event{Name: mocha.EventSuiteEnd, Suite: b.runner.Suite})
		b.emit(mocha.Event{Name: mocha.EventRunEnd})
	}
	return b.emitted
}

func (b *bridge) pkg(name string, dir string) *packageState {
	if state, ok := b.packages[name]; ok {
		return state
	}
	state := &packageState{
		dir:   dir,
		files: testFiles(b.files, dir),
		nodes: make(map[string]*node),
	}
	state.suite = b.runner.Suite.AddSuite(name, dir)
	b.packages[name] = state
	b.emit(mocha.Event{Name: mocha.EventSuiteBegin, Suite: state.suite})
	return state
}

func (b *bridge) startTest(test *engine.TestCase) {
	if test == nil {
		return
	}
	state := b.pkg(test.Package, test.Dir)
	parent, title := b.container(state, test.Name)
	state.nodes[test.Name] = &node{name: test.Name, title: title, parent: parent}
	state.open = append(state.open, test.Name)
}

// container returns the suite a test belongs to and its title there. A
// started parent test is turned into a suite on first use.
func (b *bridge) container(state *packageState, name string) (*mocha.Suite, string) {
	idx := strings.LastIndexByte(name, '/')
	if idx < 0 {
		return state.suite, name
	}
	parentName := name[:idx]
	parent, ok := state.nodes[parentName]
	if !ok {
		return state.suite, name
	}
	if parent.suite == nil {
		parent.suite = parent.parent.AddSuite(parent.title, state.fileOf(parent.name))
		b.emit(mocha.Event{Name: mocha.EventSuiteBegin, Suite: parent.suite})
	}
	return parent.suite, name[idx+1:]
}

func (b *bridge) endTest(test *engine.TestCase, diagnostics []engine.Diagnostic) {
	if test == nil {
		return
	}
	state := b.pkg(test.Package, test.Dir)
	current, ok := state.nodes[test.Name]
	if !ok {
		parent, title := b.container(state, test.Name)
		current = &node{name: test.Name, title: title, parent: parent}
	}
	delete(state.nodes, test.Name)
	state.close(test.Name)

	if test.Status == engine.StatusFail {
		b.markFailed(state, test.Name)
	}

	if current.suite != nil {
		if test.Status == engine.StatusFail && !current.failedChild {
			b.hook(current.suite, afterAllHook, test.Name, test.Output, diagnostics, state.fileOf(test.Name))
		}
		b.emit(mocha.Event{Name: mocha.EventSuiteEnd, Suite: current.suite})
		return
	}

	mochaTest := &mocha.Test{
		Title:    current.title,
		File:     state.fileOf(test.Name),
		Duration: test.Elapsed,
	}
	current.parent.AddTest(mochaTest)
	b.emit(mocha.Event{Name: mocha.EventTestBegin, Test: mochaTest})
	switch test.Status {
	case engine.StatusPass:
		mochaTest.State = mocha.StatePassed
		b.emit(mocha.Event{Name: mocha.EventTestPass, Test: mochaTest})
	case engine.StatusSkip:
		mochaTest.State = mocha.StatePending
		b.emit(mocha.Event{Name: mocha.EventTestPending, Test: mochaTest})
	default:
		mochaTest.State = mocha.StateFailed
		mochaTest.Err = assertionFor(test.Name, test.Output, diagnostics, mochaTest.File)
		b.emit(mocha.Event{Name: mocha.EventTestFail, Test: mochaTest, Err: mochaTest.Err})
	}
	b.emit(mocha.Event{Name: mocha.EventTestEnd, Test: mochaTest})
}

// markFailed records a failure on every started ancestor of name and on the package.
func (b *bridge) markFailed(state *packageState, name string) {
	state.failedChild = true
	for idx := strings.LastIndexByte(name, '/'); idx >= 0; idx = strings.LastIndexByte(name, '/') {
		name = name[:idx]
		if parent, ok := state.nodes[name]; ok {
			parent.failedChild = true
		}
	}
}

func (b *bridge) hook(suite *mocha.Suite, kind string, matcher string, output []string, diagnostics []engine.Diagnostic, file string) {
	test := &mocha.Test{Title: kind, File: file, State: mocha.StateFailed}
	test.Err = assertionFor(matcher, output, diagnostics, file)
	suite.AddTest(test)
	b.emit(mocha.Event{Name: mocha.EventTestBegin, Test: test})
	b.emit(mocha.Event{Name: mocha.EventTestFail, Test: test, Err: test.Err})
	b.emit(mocha.Event{Name: mocha.EventTestEnd, Test: test})
}

func (b *bridge) packageError(task *engine.Task, diagnostics []engine.Diagnostic) {
	if task == nil {
		return
	}
	state := b.pkg(task.Package, task.Dir)
	state.errored = true
	b.hook(state.suite, beforeAllHook, task.Package, task.Output, diagnostics, state.dir)
}

func (b *bridge) endPackage(task *engine.Task) {
	if task == nil {
		return
	}
	state := b.pkg(task.Package, task.Dir)
	// Tests still open when the package ends did not report a result, e.g.
	// after a panic or a timeout.
	for i := len(state.open) - 1; i >= 0; i-- {
		name := state.open[i]
		b.endTest(&engine.TestCase{
			Package: task.Package,
			Dir:     task.Dir,
			Name:    name,
			Status:  engine.StatusFail,
			Output:  append([]string{fmt.Sprintf("%s did not complete", name)}, task.Output...),
		}, nil)
	}
	if task.Status == engine.StatusFail && !state.errored && !state.failedChild {
		b.hook(state.suite, afterAllHook, task.Package, task.Output, engine.ParseDiagnostics(task.Output, state.dir), state.dir)
	}
	b.emit(mocha.Event{Name: mocha.EventSuiteEnd, Suite: state.suite})
	delete(b.packages, task.Package)
}

func (s *packageState) close(name string) {
	for i, open := range s.open {
		if open == name {
			s.open = append(s.open[:i], s.open[i+1:]...)
			return
		}
	}
}

// fileOf returns the file declaring the top-level test of name, or the
// package directory.
func (s *packageState) fileOf(name string) string {
	top := name
	if idx := strings.IndexByte(name, '/'); idx >= 0 {
		top = name[:idx]
	}
	if file, ok := s.files[top]; ok {
		return file
	}
	return s.dir
}

// testFiles maps the top-level test functions declared by files in dir to
// their file.
func testFiles(files []string, dir string) map[string]string {
	out := make(map[string]string)
	for _, file := range files {
		if filepath.Dir(file) != dir {
			continue
		}
		for _, name := range engine.DeclaredTests(file) {
			out[name] = file
		}
	}
	return out
}

func countTests(files []string) int {
	total := 0
	for _, file := range files {
		total += len(engine.DeclaredTests(file))
	}
	return total
}

func formatLocation(file string, line, column int) string {
	return fmt.Sprintf("%s:%d:%d", file, line, column)
}
