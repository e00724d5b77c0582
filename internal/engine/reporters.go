package engine

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"plugin"
	"regexp"
	"sort"
	"strings"
	"sync"

	"asmocha/internal/runner"
)

// Reporter receives every event of a run, in emission order.
type Reporter interface {
	On(event Event)
}

// Preparer is implemented by reporters that must finish asynchronous setup
// before the first event is delivered. The Runner awaits Ready for each of
// them before emitting run:start.
type Preparer interface {
	Ready(ctx context.Context) error
}

// ReporterFactory builds a reporter for a resolved configuration.
type ReporterFactory func(cfg ResolvedConfig) (Reporter, error)

// PluginSymbol is the symbol a reporter plugin must export. Its type must be
// func(engine.ResolvedConfig) (engine.Reporter, error).
const PluginSymbol = "NewReporter"

var registry = struct {
	mu        sync.RWMutex
	factories map[string]ReporterFactory
}{factories: make(map[string]ReporterFactory)}

func init() {
	RegisterReporter("list", func(ResolvedConfig) (Reporter, error) {
		return NewListReporter(os.Stdout), nil
	})
}

// RegisterReporter makes a reporter loadable by name. Registering an existing
// name replaces the previous factory.
func RegisterReporter(name string, factory ReporterFactory) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.factories[name] = factory
}

// HasReporter reports whether name is registered with a usable factory.
func HasReporter(name string) bool {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	return registry.factories[name] != nil
}

// RegisteredReporters lists registered names in sorted order.
func RegisteredReporters() []string {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	names := make([]string, 0, len(registry.factories))
	for name, factory := range registry.factories {
		if factory != nil {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// LoadReporter resolves a reporter specifier: a registered name, or the path
// (or file URI) of a Go plugin. A .go source file is first built with
// -buildmode=plugin.
func LoadReporter(ctx context.Context, specifier string, cfg ResolvedConfig) (Reporter, error) {
	registry.mu.RLock()
	factory := registry.factories[specifier]
	registry.mu.RUnlock()
	if factory != nil {
		return factory(cfg)
	}

	path, err := PathFromSpecifier(specifier)
	if err != nil {
		return nil, err
	}
	if filepath.Ext(path) == ".go" {
		path, err = buildPlugin(ctx, cfg.GoBinary, path)
		if err != nil {
			return nil, err
		}
	}

	p, err := plugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open reporter plugin %s: %w", specifier, err)
	}
	symbol, err := p.Lookup(PluginSymbol)
	if err != nil {
		return nil, fmt.Errorf("reporter plugin %s: %w", specifier, err)
	}
	switch fn := symbol.(type) {
	case func(ResolvedConfig) (Reporter, error):
		return fn(cfg)
	case *func(ResolvedConfig) (Reporter, error):
		return (*fn)(cfg)
	case *ReporterFactory:
		return (*fn)(cfg)
	default:
		return nil, fmt.Errorf("reporter plugin %s: %s has unexpected type %T", specifier, PluginSymbol, symbol)
	}
}

func buildPlugin(ctx context.Context, goBinary string, source string) (string, error) {
	if goBinary == "" {
		goBinary = "go"
	}
	outDir, err := os.MkdirTemp("", "asmocha-plugin-")
	if err != nil {
		return "", err
	}
	output := filepath.Join(outDir, strings.TrimSuffix(filepath.Base(source), ".go")+".so")
	var stderr strings.Builder
	_, err = runner.NewGenericRunner().Run(ctx, runner.Command{
		Args:   []string{goBinary, "build", "-buildmode=plugin", "-o", output, filepath.Base(source)},
		Cwd:    filepath.Dir(source),
		Stderr: &stderr,
	})
	if err != nil {
		return "", fmt.Errorf("build reporter plugin %s: %w\n%s", source, err, stderr.String())
	}
	return output, nil
}

var driveLetter = regexp.MustCompile(`^[A-Za-z]:`)

// HasDriveLetter reports whether path starts with a Windows drive prefix.
func HasDriveLetter(path string) bool {
	return driveLetter.MatchString(path)
}

// FileURI converts an absolute filesystem path to its file:// form.
func FileURI(path string) string {
	slashed := filepath.ToSlash(path)
	if !strings.HasPrefix(slashed, "/") {
		slashed = "/" + slashed
	}
	return (&url.URL{Scheme: "file", Path: slashed}).String()
}

// PathFromSpecifier returns the filesystem path for a path or file:// URI.
func PathFromSpecifier(specifier string) (string, error) {
	if !strings.HasPrefix(specifier, "file://") {
		return specifier, nil
	}
	u, err := url.Parse(specifier)
	if err != nil {
		return "", fmt.Errorf("parse reporter uri %s: %w", specifier, err)
	}
	path := u.Path
	if driveLetter.MatchString(strings.TrimPrefix(path, "/")) {
		path = strings.TrimPrefix(path, "/")
	}
	return filepath.FromSlash(path), nil
}

// ListReporter prints one line per finished test and a closing summary.
type ListReporter struct {
	out io.Writer
}

func NewListReporter(out io.Writer) *ListReporter {
	return &ListReporter{out: out}
}

func (r *ListReporter) On(event Event) {
	switch event.Kind {
	case EventTestPass, EventTestFail, EventTestSkip:
		test := event.Payload.Test
		fmt.Fprintf(r.out, "%-4s %s %s (%.2fs)\n", test.Status, test.Package, test.Name, test.Elapsed.Seconds())
		if event.Kind == EventTestFail {
			for _, line := range test.Output {
				fmt.Fprintf(r.out, "     %s\n", line)
			}
		}
	case EventTaskError:
		task := event.Payload.Task
		fmt.Fprintf(r.out, "FAIL %s [build failed]\n", task.Package)
		for _, line := range task.Output {
			fmt.Fprintf(r.out, "     %s\n", line)
		}
	case EventRunEnd:
		result := event.Payload.Result
		fmt.Fprintf(r.out, "\n%d tests: %d passed, %d failed, %d skipped\n", result.Tests, result.Passed, result.Failed, result.Skipped)
	}
}
