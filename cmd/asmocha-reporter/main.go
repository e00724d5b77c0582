// Command asmocha-reporter is the adapter built as a Go plugin:
//
//	go build -buildmode=plugin -o asmocha-reporter.so ./cmd/asmocha-reporter
//
// The engine loads it by path when the adapter is not registered in the
// running binary. The mocha reporter is read from the process arguments.
package main

import (
	"os"

	"asmocha/internal/adapter"
	"asmocha/internal/engine"
	"asmocha/internal/logging"
)

// NewReporter is looked up by the engine plugin loader.
func NewReporter(cfg engine.ResolvedConfig) (engine.Reporter, error) {
	return adapter.New(cfg, adapter.Options{Logger: logging.New(os.Stderr, false)}), nil
}

func main() {}
