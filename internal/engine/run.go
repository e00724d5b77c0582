package engine

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"asmocha/internal/runner"
)

// Runner executes selected test files with `go test -json` and fans the
// resulting events out to the configured reporters.
type Runner struct {
	config    ResolvedConfig
	reporters []Reporter
	exec      runner.Runner
}

// NewRunner loads every reporter named in cfg.Reporters.
func NewRunner(ctx context.Context, cfg ResolvedConfig) (*Runner, error) {
	reporters := make([]Reporter, 0, len(cfg.Reporters))
	for _, specifier := range cfg.Reporters {
		reporter, err := LoadReporter(ctx, specifier, cfg)
		if err != nil {
			return nil, err
		}
		reporters = append(reporters, reporter)
	}
	return NewRunnerWithReporters(cfg, reporters, runner.NewGenericRunner()), nil
}

// NewRunnerWithReporters builds a Runner from already constructed parts.
func NewRunnerWithReporters(cfg ResolvedConfig, reporters []Reporter, exec runner.Runner) *Runner {
	return &Runner{config: cfg, reporters: reporters, exec: exec}
}

// WithExec replaces the process runner used for go test.
func (r *Runner) WithExec(exec runner.Runner) *Runner {
	r.exec = exec
	return r
}

// Run awaits reporter readiness, then runs go test for the packages that
// contain files and emits events in the order go test reports them.
func (r *Runner) Run(ctx context.Context, files []string) (Result, error) {
	for _, reporter := range r.reporters {
		if preparer, ok := reporter.(Preparer); ok {
			if err := preparer.Ready(ctx); err != nil {
				return Result{}, err
			}
		}
	}

	root, err := filepath.Abs(r.config.RootPath)
	if err != nil {
		return Result{}, fmt.Errorf("resolve root path: %w", err)
	}

	dirs, pattern := r.scope(packageDirs(files))
	files = filesIn(files, dirs)
	skip := SkipPattern(unselectedTests(files, dirs))

	result := Result{Files: files, Started: time.Now()}
	r.emit(Event{Kind: EventRunStart, Payload: Payload{Result: &result}})
	decoder := newStreamDecoder(root, dirs, &result, r.emit)
	stdout := &lineWriter{onLine: decoder.handleLine}
	var stderr bytes.Buffer

	execResult, err := r.exec.Run(ctx, runner.Command{
		Args:         r.goTestArgs(root, dirs, pattern, skip),
		Cwd:          root,
		AllowNonZero: true,
		Stdout:       stdout,
		Stderr:       &stderr,
	})
	stdout.Flush()
	if err != nil {
		return result, err
	}
	result.ExitCode = execResult.ExitCode
	if execResult.ExitCode != 0 && decoder.decoded == 0 {
		return result, fmt.Errorf("go test exited with status %d: %s", execResult.ExitCode, strings.TrimSpace(stderr.String()))
	}

	result.Finished = time.Now()
	r.emit(Event{Kind: EventRunEnd, Payload: Payload{Result: &result}})
	return result, nil
}

func (r *Runner) emit(event Event) {
	for _, reporter := range r.reporters {
		reporter.On(event)
	}
}

// scope applies Only to the selected package dirs. A title that starts with
// the import path of one of them narrows the run to that package; the rest of
// the title becomes the -run pattern.
func (r *Runner) scope(dirs []string) ([]string, string) {
	if strings.TrimSpace(r.config.Only) == "" {
		return dirs, ""
	}
	paths := make([]string, 0, len(dirs))
	byPath := make(map[string]string, len(dirs))
	for _, dir := range dirs {
		if path, ok := ImportPath(dir); ok {
			paths = append(paths, path)
			byPath[path] = dir
		}
	}
	if pkg, _ := splitPackage(r.config.Only, paths); pkg != "" {
		dirs = []string{byPath[pkg]}
	}
	return dirs, RunPattern(r.config.Only, paths)
}

func filesIn(files []string, dirs []string) []string {
	keep := make(map[string]bool, len(dirs))
	for _, dir := range dirs {
		keep[dir] = true
	}
	out := make([]string, 0, len(files))
	for _, file := range files {
		if keep[filepath.Dir(file)] {
			out = append(out, file)
		}
	}
	return out
}

func (r *Runner) goTestArgs(root string, dirs []string, pattern, skip string) []string {
	args := []string{r.config.GoBinary, "test", "-json"}
	args = append(args, r.config.GoFlags...)
	if r.config.FailFast {
		args = append(args, "-failfast")
	}
	if pattern != "" {
		args = append(args, "-run", pattern)
	}
	if skip != "" {
		args = append(args, "-skip", skip)
	}
	for _, dir := range dirs {
		rel, err := filepath.Rel(root, dir)
		if err != nil {
			rel = dir
		}
		args = append(args, packageArg(rel))
	}
	return args
}

// RunPattern turns a mocha title fragment into a -run pattern. Mocha titles
// join the package import path, the test and its subtests with spaces, and go
// test has already replaced spaces inside names with underscores. A leading
// import path from packages is dropped and the remaining levels are quoted
// and joined with "/".
func RunPattern(only string, packages []string) string {
	_, rest := splitPackage(only, packages)
	levels := strings.Fields(rest)
	for i, level := range levels {
		levels[i] = regexp.QuoteMeta(level)
	}
	return strings.Join(levels, "/")
}

func splitPackage(only string, packages []string) (string, string) {
	only = strings.TrimSpace(only)
	for _, pkg := range packages {
		if only == pkg {
			return pkg, ""
		}
		if rest, ok := strings.CutPrefix(only, pkg+" "); ok {
			return pkg, rest
		}
	}
	return "", only
}

func packageArg(rel string) string {
	rel = filepath.ToSlash(rel)
	if rel == "." {
		return "."
	}
	if strings.HasPrefix(rel, "../") || filepath.IsAbs(rel) {
		return rel
	}
	return "./" + rel
}

// lineWriter calls onLine for every complete line written to it.
type lineWriter struct {
	buf    []byte
	onLine func([]byte)
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	for {
		idx := bytes.IndexByte(w.buf, '\n')
		if idx < 0 {
			break
		}
		line := bytes.TrimRight(w.buf[:idx], "\r")
		if len(line) > 0 {
			w.onLine(line)
		}
		w.buf = w.buf[idx+1:]
	}
	return len(p), nil
}

func (w *lineWriter) Flush() {
	if len(bytes.TrimSpace(w.buf)) > 0 {
		w.onLine(w.buf)
	}
	w.buf = nil
}
