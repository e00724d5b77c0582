package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"asmocha/internal/adapter"
	"asmocha/internal/cli"
	"asmocha/internal/core"
	"asmocha/internal/engine"
	"asmocha/internal/eventlog"
	"asmocha/internal/locate"
	"asmocha/internal/logging"
	"asmocha/internal/runner"
	"asmocha/internal/store"
)

// ExitError carries the process exit status. Err, when set, has already been
// logged.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("exit status %d: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

type Command struct {
	Args   []string
	Stdout io.Writer
	Stderr io.Writer
	// Exec runs go test; nil uses a real process.
	Exec runner.Runner
	// Providers replaces the adapter directory probes.
	Providers []locate.Provider
}

type Result struct {
	RunID  string
	Status string
	engine.Result
}

// Run translates the mocha command line, resolves the engine configuration
// with the adapter as its only reporter, and runs the selected tests.
func (c Command) Run(ctx context.Context) (Result, error) {
	stdout, stderr := c.Stdout, c.Stderr
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}

	opts, err := cli.Parse(c.Args)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return Result{}, &ExitError{Code: 1, Err: err}
	}
	if opts.Help {
		fmt.Fprint(stdout, cli.Usage)
		return Result{}, &ExitError{Code: 1}
	}
	if opts.Reporter == "" {
		fmt.Fprintln(stdout, cli.ErrReporterRequired)
		return Result{}, &ExitError{Code: 1, Err: cli.ErrReporterRequired}
	}

	logger := logging.New(stderr, opts.Verbose)
	fail := func(err error) (Result, error) {
		logger.Error("%v", err)
		return Result{}, &ExitError{Code: 1, Err: err}
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fail(fmt.Errorf("resolve working directory: %w", err))
	}
	translation, err := opts.Translate(cwd)
	if err != nil {
		return fail(err)
	}
	for _, warning := range translation.Warnings {
		logger.Warn("%s", warning)
	}

	locator := locate.NewLocator(adapter.Specifier, opts.AsMochaReporterPath, logger)
	if c.Providers != nil {
		locator.Providers = c.Providers
	}
	specifier, err := locator.Locate(ctx)
	if err != nil {
		logger.Error("Could not find a path to the AsMochaReporter.")
		return Result{}, &ExitError{Code: 1, Err: err}
	}
	logger.Debug("Adapter: %s", specifier)

	fileConfig, err := engine.ParseConfigFile(opts.Config)
	if err != nil {
		return fail(err)
	}
	overrides := translation.Overrides
	overrides.Reporters = []string{specifier}
	cfg := engine.Resolve(engine.ResolveOptions{
		ConfigFile:         fileConfig,
		CommandLineOptions: overrides,
		PathMatch:          translation.PathMatch,
	})

	if opts.ShowConfig {
		encoder := yaml.NewEncoder(stdout)
		encoder.SetIndent(2)
		if err := encoder.Encode(cfg); err != nil {
			return fail(fmt.Errorf("encode config: %w", err))
		}
		if err := encoder.Close(); err != nil {
			return fail(fmt.Errorf("write config: %w", err))
		}
		return Result{}, &ExitError{Code: 1}
	}

	runID, err := core.NewRunID()
	if err != nil {
		return fail(err)
	}
	observers, closeObservers, err := c.observers(ctx, opts, cfg, runID)
	if err != nil {
		return fail(err)
	}
	defer closeObservers()

	engine.RegisterReporter(adapter.Specifier, adapter.Factory(adapter.Options{
		Reporter:  opts.Reporter,
		RunID:     runID,
		Verbose:   opts.Verbose,
		Logger:    logger,
		Observers: observers,
		Stdout:    stdout,
		Stderr:    stderr,
	}))

	files, err := engine.SelectFiles(ctx, cfg)
	if err != nil {
		return fail(err)
	}
	logger.Debug("Selected %d test files", len(files))

	testRunner, err := engine.NewRunner(ctx, cfg)
	if err != nil {
		return fail(err)
	}
	if c.Exec != nil {
		testRunner.WithExec(c.Exec)
	}
	result, err := testRunner.Run(ctx, files)
	if err != nil {
		return fail(err)
	}

	out := Result{RunID: runID, Status: core.RunStatusSucceeded, Result: result}
	if result.HasFailures() {
		out.Status = core.RunStatusFailed
		return out, &ExitError{Code: 1}
	}
	return out, nil
}

// observers opens the event trace and run history requested on the command line.
func (c Command) observers(ctx context.Context, opts cli.Options, cfg engine.ResolvedConfig, runID string) ([]core.EventLogger, func(), error) {
	var observers []core.EventLogger
	var closers []func() error
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
	}

	if opts.EventLog != "" {
		log, err := eventlog.New(opts.EventLog)
		if err != nil {
			return nil, closeAll, err
		}
		closers = append(closers, log.Close)
		observers = append(observers, log)
	}

	if opts.History != "" {
		db, err := store.NewSQLite(opts.History)
		if err != nil {
			closeAll()
			return nil, func() {}, err
		}
		closers = append(closers, db.Close)
		if err := db.Init(ctx); err != nil {
			closeAll()
			return nil, func() {}, fmt.Errorf("init history: %w", err)
		}
		configJSON, err := json.Marshal(cfg)
		if err != nil {
			closeAll()
			return nil, func() {}, fmt.Errorf("marshal config: %w", err)
		}
		observers = append(observers, store.NewRecorder(ctx, db, core.RunRecord{
			RunID:     runID,
			RootPath:  cfg.RootPath,
			StartedAt: time.Now(),
			Status:    core.RunStatusRunning,
			Config:    string(configJSON),
		}))
	}
	return observers, closeAll, nil
}

// ExitCode maps an error returned by Run to a process exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return 1
}
