package mocha

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"

	"asmocha/internal/engine"
)

var stackLocation = regexp.MustCompile(`\((.+):(\d+):(\d+)\)`)

func TestAssertionErrorStack(t *testing.T) {
	err := NewAssertionError("Not equal", "int(2)", "TestAdd", "int(3)",
		[]engine.Diagnostic{{File: "/src/add_test.go", Line: 12, Column: 3, Text: "Not equal"}},
		"/src/add_test.go:12:3")

	require.Equal(t, "AssertionError", err.Name())
	require.Equal(t, "Not equal", err.Error())
	require.Equal(t, "AssertionError: Not equal\n    at TestAdd (/src/add_test.go:12:3)\n", err.Stack())
	require.Equal(t, err.Stack(), err.String())

	match := stackLocation.FindStringSubmatch(err.Stack())
	require.Equal(t, []string{"(/src/add_test.go:12:3)", "/src/add_test.go", "12", "3"}, match)
}

func TestAssertionErrorDiff(t *testing.T) {
	err := NewAssertionError("Not equal", "int(2)", "TestAdd", "int(3)", nil, "a_test.go:1:1")
	diff := err.Diff()
	require.Contains(t, diff, "--- expected")
	require.Contains(t, diff, "+++ actual")
	require.Contains(t, diff, "-int(3)")
	require.Contains(t, diff, "+int(2)")

	require.Empty(t, NewAssertionError("boom", "", "TestX", "", nil, "a_test.go:1:1").Diff())
}
