package mocha

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"plugin"
	"reflect"
	"runtime"
	"sort"
	"strings"
	"sync"

	"asmocha/internal/engine"
	"asmocha/internal/logging"
)

// Handler is a mocha reporter: a function that receives the Runner once and
// subscribes to its events.
type Handler func(runner *Runner)

// CannotFindError is the message of ErrCannotFind. Callers may match on it.
const CannotFindError = "Cannot find: --reporter or -R"

// PluginSymbol is the symbol a reporter plugin exports. It must be a function
// taking exactly one *mocha.Runner.
const PluginSymbol = "Reporter"

var (
	// ErrCannotFind means the argument vector holds zero or several reporter flags.
	ErrCannotFind = errors.New(CannotFindError)
	// ErrNotCallable means a reporter resolved to something other than a
	// one-argument function.
	ErrNotCallable = errors.New("reporter is not a function of one *mocha.Runner")
)

// LoadError reports a reporter that could not be imported or is unusable.
type LoadError struct {
	Specifier string
	Err       error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load reporter %s: %v", e.Specifier, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

var registry = struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}{handlers: make(map[string]Handler)}

// builtins are bound to LoadReporterOptions.Stdout when loaded.
var builtins = map[string]func(io.Writer) Handler{
	"spec": NewSpecReporter,
	"json": NewJSONReporter,
}

// Register makes handler loadable by name.
func Register(name string, handler Handler) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.handlers[name] = handler
}

// Registered lists the registered reporter names.
func Registered() []string {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	names := make([]string, 0, len(registry.handlers)+len(builtins))
	for name := range registry.handlers {
		names = append(names, name)
	}
	for name := range builtins {
		if _, ok := registry.handlers[name]; !ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// GetReporterScriptPath extracts the reporter from argv. It accepts
// "-R value", "--reporter value" and "--reporter=value", and requires exactly
// one non-empty occurrence; anything else is ErrCannotFind.
func GetReporterScriptPath(argv []string) (string, error) {
	var found []string
	for i, arg := range argv {
		value := ""
		if i > 0 && (argv[i-1] == "--reporter" || argv[i-1] == "-R") {
			value = strings.TrimSpace(arg)
		} else if strings.HasPrefix(arg, "--reporter=") {
			value = strings.TrimSpace(strings.TrimPrefix(arg, "--reporter="))
		}
		if value != "" {
			found = append(found, value)
		}
	}
	if len(found) != 1 {
		return "", ErrCannotFind
	}
	return found[0], nil
}

type LoadReporterOptions struct {
	// Reporter names the reporter. When empty it is read from Argv.
	Reporter string
	// Argv defaults to os.Args[1:].
	Argv    []string
	Verbose bool
	Logger  logging.Logger
	// Stdout and Stderr receive the output of executable reporters.
	Stdout io.Writer
	Stderr io.Writer
}

// LoadReporter resolves a reporter in order: registered name, built-in name, Go plugin
// (.so exporting Reporter), executable fed JSON lines on stdin. File URIs are
// accepted wherever a path is.
func LoadReporter(opts LoadReporterOptions) (Handler, error) {
	logger := logging.OrNop(opts.Logger)
	name := opts.Reporter
	if name == "" {
		argv := opts.Argv
		if argv == nil {
			argv = os.Args[1:]
		}
		var err error
		if name, err = GetReporterScriptPath(argv); err != nil {
			return nil, err
		}
	}

	handler, err := load(name, opts, logger)
	if err != nil {
		return nil, err
	}
	if opts.Verbose {
		logger.Info("Reporter loaded: %s", name)
	}
	return handler, nil
}

func load(name string, opts LoadReporterOptions, logger logging.Logger) (Handler, error) {
	registry.mu.RLock()
	handler, ok := registry.handlers[name]
	registry.mu.RUnlock()
	if ok {
		return handler, nil
	}
	if builtin, ok := builtins[name]; ok {
		stdout := opts.Stdout
		if stdout == nil {
			stdout = os.Stdout
		}
		return builtin(stdout), nil
	}

	path, err := engine.PathFromSpecifier(name)
	if err != nil {
		return nil, &LoadError{Specifier: name, Err: err}
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, &LoadError{Specifier: name, Err: err}
	}
	if info.IsDir() {
		return nil, &LoadError{Specifier: name, Err: fmt.Errorf("%s is a directory: %w", path, ErrNotCallable)}
	}

	if filepath.Ext(path) == ".so" {
		p, err := plugin.Open(path)
		if err != nil {
			return nil, &LoadError{Specifier: name, Err: err}
		}
		symbol, err := p.Lookup(PluginSymbol)
		if err != nil {
			return nil, &LoadError{Specifier: name, Err: err}
		}
		handler, err := HandlerFrom(symbol)
		if err != nil {
			return nil, &LoadError{Specifier: name, Err: err}
		}
		return handler, nil
	}

	if isExecutable(path, info) {
		logger.Debug("Reporter %s runs as a subprocess", path)
		return NewCommandReporter([]string{path}, opts.Stdout, opts.Stderr, logger), nil
	}
	return nil, &LoadError{Specifier: name, Err: ErrNotCallable}
}

var runnerType = reflect.TypeOf((*Runner)(nil))

// HandlerFrom accepts a func(*Runner), a pointer to one, or any function
// value whose only parameter is *Runner. Everything else is ErrNotCallable.
func HandlerFrom(value any) (Handler, error) {
	switch fn := value.(type) {
	case Handler:
		if fn != nil {
			return fn, nil
		}
	case func(*Runner):
		if fn != nil {
			return fn, nil
		}
	case *Handler:
		if fn != nil && *fn != nil {
			return *fn, nil
		}
	case *func(*Runner):
		if fn != nil && *fn != nil {
			return *fn, nil
		}
	}

	v := reflect.ValueOf(value)
	if v.Kind() == reflect.Ptr && !v.IsNil() {
		v = v.Elem()
	}
	if v.Kind() != reflect.Func || v.IsNil() {
		return nil, ErrNotCallable
	}
	fnType := v.Type()
	if fnType.NumIn() != 1 || fnType.IsVariadic() || fnType.In(0) != runnerType {
		return nil, ErrNotCallable
	}
	return func(runner *Runner) {
		v.Call([]reflect.Value{reflect.ValueOf(runner)})
	}, nil
}

func isExecutable(path string, info os.FileInfo) bool {
	if runtime.GOOS == "windows" {
		ext := strings.ToLower(filepath.Ext(path))
		return ext == ".exe" || ext == ".bat" || ext == ".cmd"
	}
	return info.Mode().IsRegular() && info.Mode().Perm()&0o111 != 0
}
