package core

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

const (
	RunStatusRunning   = "running"
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
)

type RunRecord struct {
	RunID     string
	RootPath  string
	StartedAt time.Time
	Status    string
	Config    string
}

// ResultRecord is one finished test, or one package that failed before its
// tests ran (Name is empty then).
type ResultRecord struct {
	RunID      string
	Package    string
	Name       string
	Status     string
	DurationMs int64
	Message    string
	FilePath   string
	Line       int
	Column     int
	CreatedAt  time.Time
}

type Summary struct {
	Tests   int `json:"tests"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

type RunSummary struct {
	RunID    string
	Status   string
	Results  int
	Failures int
	Started  time.Time
	Finished time.Time
}

func (s *Summary) Add(results []ResultRecord) {
	for _, result := range results {
		if result.Name == "" {
			s.Failed++
			continue
		}
		s.Tests++
		switch result.Status {
		case "pass":
			s.Passed++
		case "fail":
			s.Failed++
		case "skip":
			s.Skipped++
		}
	}
}

func (s Summary) String() string {
	out, _ := json.Marshal(s)
	return string(out)
}

func NewRunID() (string, error) {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("generate run id: %w", err)
	}
	return fmt.Sprintf("run-%s", hex.EncodeToString(bytes)), nil
}
