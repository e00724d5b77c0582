package mocha

// Wire shapes shared by the json reporter and executable reporters. Field
// names follow mocha's own json reporter.

type WireError struct {
	Message  string `json:"message"`
	Stack    string `json:"stack,omitempty"`
	Actual   string `json:"actual,omitempty"`
	Expected string `json:"expected,omitempty"`
	ShowDiff bool   `json:"showDiff,omitempty"`
	Diff     string `json:"diff,omitempty"`
}

type WireTest struct {
	Title     string     `json:"title"`
	FullTitle string     `json:"fullTitle"`
	File      string     `json:"file,omitempty"`
	Duration  int64      `json:"duration"`
	State     string     `json:"state,omitempty"`
	Err       *WireError `json:"err,omitempty"`
}

type WireSuite struct {
	Title     string `json:"title"`
	FullTitle string `json:"fullTitle"`
	File      string `json:"file,omitempty"`
	Root      bool   `json:"root,omitempty"`
}

// WireEvent is one line written to an executable reporter.
type WireEvent struct {
	Event string     `json:"event"`
	Suite *WireSuite `json:"suite,omitempty"`
	Test  *WireTest  `json:"test,omitempty"`
	Stats *Stats     `json:"stats,omitempty"`
}

func NewWireEvent(event Event, runner *Runner) WireEvent {
	wire := WireEvent{Event: event.Name}
	if event.Suite != nil {
		wire.Suite = &WireSuite{
			Title:     event.Suite.Title,
			FullTitle: event.Suite.FullTitle(),
			File:      event.Suite.File,
			Root:      event.Suite.Root,
		}
	}
	if event.Test != nil {
		test := NewWireTest(event.Test)
		wire.Test = &test
	}
	if event.Name == EventRunEnd && runner != nil {
		stats := runner.Stats
		wire.Stats = &stats
	}
	return wire
}

func NewWireTest(test *Test) WireTest {
	wire := WireTest{
		Title:     test.Title,
		FullTitle: test.FullTitle(),
		File:      test.File,
		Duration:  test.Duration.Milliseconds(),
		State:     test.State,
	}
	if test.Err != nil {
		wire.Err = newWireError(test.Err)
	}
	return wire
}

func newWireError(err error) *WireError {
	if assertion, ok := err.(*AssertionError); ok {
		diff := assertion.Diff()
		return &WireError{
			Message:  assertion.Message,
			Stack:    assertion.Stack(),
			Actual:   assertion.ActualType,
			Expected: assertion.ExpectedType,
			ShowDiff: diff != "",
			Diff:     diff,
		}
	}
	return &WireError{Message: err.Error(), Stack: err.Error()}
}
