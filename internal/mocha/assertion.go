package mocha

import (
	"fmt"

	"github.com/pmezard/go-difflib/difflib"

	"asmocha/internal/engine"
)

// AssertionError carries what an IDE mocha reporter looks for on a failed
// test: the actual and expected values and a stack whose first
// "(file:line:col)" token becomes a clickable source reference.
type AssertionError struct {
	Message        string
	ActualType     string
	Matcher        string
	ExpectedType   string
	Diagnostics    []engine.Diagnostic
	SourceLocation string
}

func NewAssertionError(message, actualType, matcher, expectedType string, diagnostics []engine.Diagnostic, sourceLocation string) *AssertionError {
	return &AssertionError{
		Message:        message,
		ActualType:     actualType,
		Matcher:        matcher,
		ExpectedType:   expectedType,
		Diagnostics:    diagnostics,
		SourceLocation: sourceLocation,
	}
}

func (e *AssertionError) Name() string {
	return "AssertionError"
}

func (e *AssertionError) Error() string {
	return e.Message
}

// Stack is the two-line form IDE stack parsers expect. Do not change its shape.
func (e *AssertionError) Stack() string {
	return fmt.Sprintf("%s: %s\n    at %s (%s)\n", e.Name(), e.Message, e.Matcher, e.SourceLocation)
}

func (e *AssertionError) String() string {
	return e.Stack()
}

// Diff renders a unified diff from expected to actual, or "" when either is
// unknown.
func (e *AssertionError) Diff() string {
	if e.ActualType == "" || e.ExpectedType == "" {
		return ""
	}
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(e.ExpectedType + "\n"),
		B:        difflib.SplitLines(e.ActualType + "\n"),
		FromFile: "expected",
		ToFile:   "actual",
		Context:  3,
	})
	if err != nil {
		return ""
	}
	return diff
}
