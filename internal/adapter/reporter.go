// Package adapter is the engine reporter that bridges engine events to a
// mocha reporter. The engine loads it as its only reporter; it loads the
// mocha reporter itself.
package adapter

import (
	"context"
	"errors"
	"io"
	"os"
	"regexp"
	"strings"
	"sync"

	"asmocha/internal/core"
	"asmocha/internal/engine"
	"asmocha/internal/logging"
	"asmocha/internal/mocha"
)

// Specifier is the registry name the engine loads the adapter by.
const Specifier = "asmocha/reporter"

func init() {
	engine.RegisterReporter(Specifier, Factory(Options{}))
}

type Options struct {
	// Reporter names the mocha reporter. When empty it is read from Argv.
	Reporter string
	// Argv defaults to os.Args[1:].
	Argv    []string
	RunID   string
	Verbose bool
	Logger  logging.Logger
	// Observers see every bridged event.
	Observers []core.EventLogger
	Stdout    io.Writer
	Stderr    io.Writer
}

// Factory returns an engine.ReporterFactory building adapters with opts.
func Factory(opts Options) engine.ReporterFactory {
	return func(cfg engine.ResolvedConfig) (engine.Reporter, error) {
		return New(cfg, opts), nil
	}
}

// Reporter forwards engine events to a mocha.Handler. It is not ready until
// Ready returns nil.
type Reporter struct {
	config engine.ResolvedConfig
	opts   Options
	logger logging.Logger

	once    sync.Once
	loadErr error
	handler mocha.Handler
	runner  *mocha.Runner

	bridge *bridge
}

// New returns an adapter that has not loaded its mocha reporter yet.
func New(cfg engine.ResolvedConfig, opts Options) *Reporter {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	runner := mocha.NewRunner()
	return &Reporter{
		config: cfg,
		opts:   opts,
		logger: logging.OrNop(opts.Logger),
		runner: runner,
		bridge: newBridge(runner),
	}
}

// Ready loads the mocha reporter and hands it the runner. Repeated calls
// return the first result.
func (r *Reporter) Ready(ctx context.Context) error {
	r.once.Do(func() {
		if err := ctx.Err(); err != nil {
			r.loadErr = err
			return
		}
		r.logger.Debug("Loading mocha reporter for %s", r.config.RootPath)
		handler, err := mocha.LoadReporter(mocha.LoadReporterOptions{
			Reporter: r.opts.Reporter,
			Argv:     r.opts.Argv,
			Verbose:  r.opts.Verbose,
			Logger:   r.logger,
			Stdout:   r.opts.Stdout,
			Stderr:   r.opts.Stderr,
		})
		if err != nil {
			r.loadErr = err
			return
		}
		r.handler = handler
		handler(r.runner)
	})
	return r.loadErr
}

// Runner is the object the mocha reporter was given.
func (r *Reporter) Runner() *mocha.Runner {
	return r.runner
}

var errNotReady = errors.New("mocha reporter is not loaded")

// On translates event into mocha events. Events that arrive before Ready
// succeeded are dropped.
func (r *Reporter) On(event engine.Event) {
	r.logger.Debug("Event: %s", event.Kind)
	if r.handler == nil {
		r.logger.Error("Dropped %s: %v", event.Kind, errNotReady)
		return
	}
	emitted := r.bridge.translate(event)
	r.observe(event, emitted)
}

func (r *Reporter) observe(event engine.Event, emitted []string) {
	if len(r.opts.Observers) == 0 {
		return
	}
	record := core.Event{
		RunID:     r.opts.RunID,
		Level:     "info",
		EventType: string(event.Kind),
		Mocha:     emitted,
		Payload:   event.Payload,
	}
	if event.Kind == engine.EventTestFail || event.Kind == engine.EventTaskError {
		record.Level = "error"
	}
	if task := event.Payload.Task; task != nil {
		record.Package = task.Package
	}
	if test := event.Payload.Test; test != nil {
		record.Package = test.Package
		record.Test = test.Name
	}
	for _, observer := range r.opts.Observers {
		if err := observer.Emit(record); err != nil {
			r.logger.Error("Observer failed on %s: %v", event.Kind, err)
		}
	}
}

var (
	errorLabel    = regexp.MustCompile(`^Error:\s*(.*)$`)
	expectedLabel = regexp.MustCompile(`^expected\s*:\s?(.*)$`)
	actualLabel   = regexp.MustCompile(`^actual\s*:\s?(.*)$`)
)

// assertionFor builds the error a mocha reporter sees for a failed test or
// package. testify's "Error:", "expected:" and "actual  :" lines fill the
// message and the diff sides when present.
func assertionFor(matcher string, output []string, diagnostics []engine.Diagnostic, fallbackFile string) *mocha.AssertionError {
	message := ""
	actual := ""
	expected := ""
	for _, line := range output {
		trimmed := strings.TrimSpace(line)
		if match := errorLabel.FindStringSubmatch(trimmed); match != nil && message == "" {
			message = strings.TrimSuffix(strings.TrimSpace(match[1]), ":")
		} else if match := expectedLabel.FindStringSubmatch(trimmed); match != nil && expected == "" {
			expected = match[1]
		} else if match := actualLabel.FindStringSubmatch(trimmed); match != nil && actual == "" {
			actual = match[1]
		}
	}
	if message == "" && len(diagnostics) > 0 {
		message = firstLine(diagnostics[0].Text)
	}
	if message == "" {
		message = firstNonEmpty(output)
	}
	if message == "" {
		message = "failed"
	}
	return mocha.NewAssertionError(message, actual, matcher, expected, diagnostics, location(diagnostics, fallbackFile))
}

func location(diagnostics []engine.Diagnostic, fallbackFile string) string {
	for _, diagnostic := range diagnostics {
		if diagnostic.File == "" {
			continue
		}
		line, column := diagnostic.Line, diagnostic.Column
		if line == 0 {
			line = 1
		}
		if column == 0 {
			column = 1
		}
		return formatLocation(diagnostic.File, line, column)
	}
	return formatLocation(fallbackFile, 1, 1)
}

func firstLine(text string) string {
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}

func firstNonEmpty(lines []string) string {
	for _, line := range lines {
		if text := strings.TrimSpace(line); text != "" {
			return text
		}
	}
	return ""
}
