// Package mocha models the mocha reporter protocol: a Runner that reporters
// subscribe to, the suite/test tree it describes, and loaders that resolve a
// reporter by name, plugin path, or executable.
package mocha

import (
	"strings"
	"time"
)

// Runner event names, as emitted by mocha's Runner.
const (
	EventRunBegin    = "start"
	EventRunEnd      = "end"
	EventSuiteBegin  = "suite"
	EventSuiteEnd    = "suite end"
	EventTestBegin   = "test"
	EventTestEnd     = "test end"
	EventTestPass    = "pass"
	EventTestFail    = "fail"
	EventTestPending = "pending"
)

// AllEvents lists every event name a Runner emits.
var AllEvents = []string{
	EventRunBegin,
	EventSuiteBegin,
	EventTestBegin,
	EventTestPass,
	EventTestFail,
	EventTestPending,
	EventTestEnd,
	EventSuiteEnd,
	EventRunEnd,
}

const (
	StatePassed  = "passed"
	StateFailed  = "failed"
	StatePending = "pending"
)

// Event is delivered to listeners. Suite is set for suite events, Test for
// test events, Err for fail.
type Event struct {
	Name  string
	Suite *Suite
	Test  *Test
	Err   error
}

type Listener func(event Event)

// Stats mirrors mocha's runner.stats.
type Stats struct {
	Suites   int           `json:"suites"`
	Tests    int           `json:"tests"`
	Passes   int           `json:"passes"`
	Pending  int           `json:"pending"`
	Failures int           `json:"failures"`
	Start    time.Time     `json:"start"`
	End      time.Time     `json:"end"`
	Duration time.Duration `json:"duration"`
}

// Runner is the object handed to a reporter. Reporters register listeners
// with On and read Stats, Suite and Total.
type Runner struct {
	Suite     *Suite
	Stats     Stats
	Total     int
	listeners map[string][]Listener
}

func NewRunner() *Runner {
	return &Runner{
		Suite:     &Suite{Root: true},
		listeners: make(map[string][]Listener),
	}
}

// On subscribes fn to the named event.
func (r *Runner) On(name string, fn Listener) {
	r.listeners[name] = append(r.listeners[name], fn)
}

// Emit updates Stats and calls the listeners of event.Name in registration order.
func (r *Runner) Emit(event Event) {
	r.collect(event)
	for _, fn := range r.listeners[event.Name] {
		fn(event)
	}
}

func (r *Runner) collect(event Event) {
	switch event.Name {
	case EventRunBegin:
		r.Stats.Start = time.Now()
	case EventSuiteBegin:
		if event.Suite != nil && !event.Suite.Root {
			r.Stats.Suites++
		}
	case EventTestEnd:
		r.Stats.Tests++
	case EventTestPass:
		r.Stats.Passes++
	case EventTestFail:
		r.Stats.Failures++
	case EventTestPending:
		r.Stats.Pending++
	case EventRunEnd:
		r.Stats.End = time.Now()
		r.Stats.Duration = r.Stats.End.Sub(r.Stats.Start)
	}
}

type Suite struct {
	Title  string
	File   string
	Root   bool
	Parent *Suite
	Suites []*Suite
	Tests  []*Test
}

// AddSuite creates a child suite.
func (s *Suite) AddSuite(title string, file string) *Suite {
	child := &Suite{Title: title, File: file, Parent: s}
	s.Suites = append(s.Suites, child)
	return child
}

// AddTest attaches test to s.
func (s *Suite) AddTest(test *Test) {
	test.Parent = s
	s.Tests = append(s.Tests, test)
}

// TitlePath returns the titles from the outermost non-root suite down to s.
func (s *Suite) TitlePath() []string {
	if s == nil || s.Root {
		return nil
	}
	return append(s.Parent.TitlePath(), s.Title)
}

func (s *Suite) FullTitle() string {
	return strings.Join(s.TitlePath(), " ")
}

type Test struct {
	Title    string
	File     string
	Parent   *Suite
	Duration time.Duration
	State    string
	Err      error
}

func (t *Test) TitlePath() []string {
	return append(t.Parent.TitlePath(), t.Title)
}

func (t *Test) FullTitle() string {
	return strings.Join(t.TitlePath(), " ")
}

func (t *Test) IsPending() bool {
	return t.State == StatePending
}
