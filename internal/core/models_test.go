package core

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRunID(t *testing.T) {
	first, err := NewRunID()
	require.NoError(t, err)
	second, err := NewRunID()
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(first, "run-"))
	require.Len(t, first, len("run-")+16)
	require.NotEqual(t, first, second)
}

func TestSummaryAdd(t *testing.T) {
	var summary Summary
	summary.Add([]ResultRecord{
		{Name: "TestA", Status: "pass"},
		{Name: "TestB", Status: "fail"},
		{Name: "TestC", Status: "skip"},
		{Package: "example.com/broken", Status: "fail"},
	})
	require.Equal(t, Summary{Tests: 3, Passed: 1, Failed: 2, Skipped: 1}, summary)
	require.JSONEq(t, `{"tests":3,"passed":1,"failed":2,"skipped":1}`, summary.String())
}
