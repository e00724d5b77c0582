// Package locate finds the directory the adapter runs from and, from there,
// the adapter reporter the engine should load.
package locate

import (
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"runtime/debug"
	"strings"

	"asmocha/internal/engine"
	"asmocha/internal/logging"
)

// DirEnv names the directory injected by a launcher.
const DirEnv = "ASMOCHA_DIR"

// Provider is one signal for the directory of the running adapter.
type Provider struct {
	Name            string
	TryGetDirectory func() (string, bool)
}

// Resolution is the directory Resolve settled on and the provider that gave it.
type Resolution struct {
	Dir    string
	Source string
}

// DefaultProviders returns the probe chain in priority order. The last
// provider is the working directory.
func DefaultProviders() []Provider {
	return []Provider{
		{Name: "env", TryGetDirectory: envDirectory},
		{Name: "executable", TryGetDirectory: executableDirectory},
		{Name: "caller", TryGetDirectory: callerDirectory},
		{Name: "args", TryGetDirectory: argsDirectory},
		{Name: "stack", TryGetDirectory: stackDirectory},
		{Name: "cwd", TryGetDirectory: cwdDirectory},
	}
}

// Resolve returns the first non-empty directory of providers. A provider that
// panics counts as empty. Resolve never fails; when every provider is empty
// it falls back to the working directory.
func Resolve(providers []Provider, logger logging.Logger) Resolution {
	logger = logging.OrNop(logger)
	for _, provider := range providers {
		dir, ok := try(provider)
		if !ok || dir == "" {
			continue
		}
		logger.Debug("Adapter directory from %s: %s", provider.Name, dir)
		if provider.Name == "cwd" {
			warnCwd(logger, dir)
		}
		return Resolution{Dir: dir, Source: provider.Name}
	}
	dir, _ := cwdDirectory()
	warnCwd(logger, dir)
	return Resolution{Dir: dir, Source: "cwd"}
}

func warnCwd(logger logging.Logger, dir string) {
	logger.Warn("Using the working directory %q to find the adapter; this is unlikely to work.", dir)
}

func try(provider Provider) (dir string, ok bool) {
	if provider.TryGetDirectory == nil {
		return "", false
	}
	defer func() {
		if recover() != nil {
			dir, ok = "", false
		}
	}()
	return provider.TryGetDirectory()
}

func envDirectory() (string, bool) {
	dir := strings.TrimSpace(os.Getenv(DirEnv))
	return dir, dir != ""
}

func executableDirectory() (string, bool) {
	exe, err := os.Executable()
	if err != nil {
		return "", false
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	if isScratchBuild(exe) {
		return "", false
	}
	return filepath.Dir(exe), true
}

// isScratchBuild reports binaries produced by go run or go test.
func isScratchBuild(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if strings.HasPrefix(part, "go-build") {
			return true
		}
	}
	return false
}

func callerDirectory() (string, bool) {
	_, file, _, ok := runtime.Caller(0)
	if !ok || file == "" {
		return "", false
	}
	if _, err := os.Stat(file); err != nil {
		return "", false
	}
	return filepath.Dir(file), true
}

func argsDirectory() (string, bool) {
	if len(os.Args) == 0 {
		return "", false
	}
	arg := os.Args[0]
	if strings.HasPrefix(arg, "file://") {
		path, err := engine.PathFromSpecifier(arg)
		if err != nil {
			return "", false
		}
		arg = path
	}
	if !filepath.IsAbs(arg) && !strings.ContainsAny(arg, `/\`) {
		return "", false
	}
	abs, err := filepath.Abs(arg)
	if err != nil {
		return "", false
	}
	if isScratchBuild(abs) {
		return "", false
	}
	return filepath.Dir(abs), true
}

func cwdDirectory() (string, bool) {
	dir, err := os.Getwd()
	if err != nil {
		return "", false
	}
	return dir, true
}

func stackDirectory() (string, bool) {
	return parseStackDirectory(probeStackDirectory())
}

// probeStackDirectory must keep its own frame so the trace names it.
//
//go:noinline
func probeStackDirectory() string {
	return string(debug.Stack())
}

var stackFrame = regexp.MustCompile(`(?m)^\S*\.probeStackDirectory\(.*\)\n\t(.+?):\d+(?: \+0x[0-9a-f]+)?$`)

// parseStackDirectory extracts the directory of the probeStackDirectory frame
// from a goroutine trace.
func parseStackDirectory(trace string) (string, bool) {
	match := stackFrame.FindStringSubmatch(trace)
	if match == nil {
		return "", false
	}
	file := strings.TrimSpace(match[1])
	if file == "" {
		return "", false
	}
	return filepath.Dir(filepath.FromSlash(file)), true
}
