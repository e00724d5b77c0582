package mocha

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	faint  = color.New(color.Faint).SprintFunc()
	bright = color.New(color.Bold).SprintFunc()
)

// NewSpecReporter prints a nested tree of suites and tests followed by the
// numbered failures, like mocha's spec reporter.
func NewSpecReporter(w io.Writer) Handler {
	return func(r *Runner) {
		depth := 0
		var failures []*Test
		indent := func() string {
			if depth < 1 {
				return ""
			}
			return strings.Repeat("  ", depth-1)
		}

		r.On(EventRunBegin, func(Event) {
			depth = 0
			failures = nil
		})
		r.On(EventSuiteBegin, func(event Event) {
			depth++
			if event.Suite == nil || event.Suite.Root {
				return
			}
			fmt.Fprintf(w, "%s%s\n", indent(), event.Suite.Title)
		})
		r.On(EventSuiteEnd, func(Event) {
			depth--
			if depth == 1 {
				fmt.Fprintln(w)
			}
		})
		r.On(EventTestPass, func(event Event) {
			fmt.Fprintf(w, "%s  %s %s%s\n", indent(), green("✓"), faint(event.Test.Title), duration(event.Test))
		})
		r.On(EventTestPending, func(event Event) {
			fmt.Fprintf(w, "%s  %s\n", indent(), cyan("- "+event.Test.Title))
		})
		r.On(EventTestFail, func(event Event) {
			failures = append(failures, event.Test)
			fmt.Fprintf(w, "%s  %s\n", indent(), red(fmt.Sprintf("%d) %s", len(failures), event.Test.Title)))
		})
		r.On(EventRunEnd, func(Event) {
			writeEpilogue(w, r.Stats, failures)
		})
	}
}

func duration(test *Test) string {
	if ms := test.Duration.Milliseconds(); ms > 75 {
		return red(fmt.Sprintf(" (%dms)", ms))
	}
	return ""
}

func writeEpilogue(w io.Writer, stats Stats, failures []*Test) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %s %s\n", green(fmt.Sprintf("%d passing", stats.Passes)), faint(fmt.Sprintf("(%dms)", stats.Duration.Milliseconds())))
	if stats.Pending > 0 {
		fmt.Fprintf(w, "  %s\n", cyan(fmt.Sprintf("%d pending", stats.Pending)))
	}
	if stats.Failures > 0 {
		fmt.Fprintf(w, "  %s\n", red(fmt.Sprintf("%d failing", stats.Failures)))
	}
	fmt.Fprintln(w)

	for i, test := range failures {
		fmt.Fprintf(w, "  %d) %s\n", i+1, bright(test.FullTitle()))
		if test.Err == nil {
			continue
		}
		if assertion, ok := test.Err.(*AssertionError); ok {
			fmt.Fprint(w, indentLines(red(assertion.Stack()), "     "))
			if diff := assertion.Diff(); diff != "" {
				fmt.Fprint(w, indentLines(diff, "     "))
			}
		} else {
			fmt.Fprint(w, indentLines(red(test.Err.Error()), "     "))
		}
		fmt.Fprintln(w)
	}
}

func indentLines(text string, prefix string) string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n") + "\n"
}

type jsonReport struct {
	Stats    Stats      `json:"stats"`
	Tests    []WireTest `json:"tests"`
	Pending  []WireTest `json:"pending"`
	Failures []WireTest `json:"failures"`
	Passes   []WireTest `json:"passes"`
}

// NewJSONReporter writes one JSON document when the run ends, in the shape of
// mocha's json reporter.
func NewJSONReporter(w io.Writer) Handler {
	return func(r *Runner) {
		var report jsonReport
		r.On(EventRunBegin, func(Event) {
			report = jsonReport{}
		})
		r.On(EventTestEnd, func(event Event) {
			report.Tests = append(report.Tests, NewWireTest(event.Test))
		})
		r.On(EventTestPass, func(event Event) {
			report.Passes = append(report.Passes, NewWireTest(event.Test))
		})
		r.On(EventTestFail, func(event Event) {
			report.Failures = append(report.Failures, NewWireTest(event.Test))
		})
		r.On(EventTestPending, func(event Event) {
			report.Pending = append(report.Pending, NewWireTest(event.Test))
		})
		r.On(EventRunEnd, func(Event) {
			report.Stats = r.Stats
			for _, list := range []*[]WireTest{&report.Tests, &report.Pending, &report.Failures, &report.Passes} {
				if *list == nil {
					*list = []WireTest{}
				}
			}
			encoder := json.NewEncoder(w)
			encoder.SetIndent("", "  ")
			_ = encoder.Encode(report)
		})
	}
}
