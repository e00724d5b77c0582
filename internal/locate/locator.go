package locate

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"asmocha/internal/engine"
	"asmocha/internal/logging"
)

const (
	// CompiledName is the adapter built with -buildmode=plugin.
	CompiledName = "asmocha-reporter.so"
	// SourceName is the adapter source, built by the engine on load.
	SourceName = "asmocha-reporter/main.go"
)

// ErrScriptNotFound means no adapter candidate exists.
var ErrScriptNotFound = errors.New("could not find a path to the AsMochaReporter")

// Locator finds the reporter specifier the engine loads as the adapter.
type Locator struct {
	// Probe is the registry name tried first.
	Probe string
	// Override is an explicit adapter path; its directory replaces the
	// resolved one.
	Override  string
	Providers []Provider
	Logger    logging.Logger

	registered func(name string) bool
	stat       func(path string) (os.FileInfo, error)
}

func NewLocator(probe, override string, logger logging.Logger) *Locator {
	return &Locator{
		Probe:     probe,
		Override:  override,
		Providers: DefaultProviders(),
		Logger:    logger,
	}
}

// Locate returns the registry name when it is registered, otherwise the first
// adapter file found under the base directory. Drive-letter paths are returned
// as file URIs.
func (l *Locator) Locate(ctx context.Context) (string, error) {
	logger := logging.OrNop(l.Logger)
	registered := l.registered
	if registered == nil {
		registered = engine.HasReporter
	}
	if l.Probe != "" && registered(l.Probe) {
		logger.Debug("Adapter registered as %s", l.Probe)
		return l.Probe, nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	base := ""
	if l.Override != "" {
		abs, err := filepath.Abs(l.Override)
		if err != nil {
			return "", err
		}
		base = filepath.Dir(abs)
	} else {
		base = Resolve(l.Providers, logger).Dir
	}

	stat := l.stat
	if stat == nil {
		stat = os.Stat
	}
	for _, candidate := range []string{
		filepath.Join(base, CompiledName),
		filepath.Join(base, filepath.FromSlash(SourceName)),
	} {
		info, err := stat(candidate)
		if err != nil || !info.Mode().IsRegular() {
			logger.Debug("Adapter candidate %s not found", candidate)
			continue
		}
		if engine.HasDriveLetter(candidate) {
			return engine.FileURI(candidate), nil
		}
		return candidate, nil
	}
	return "", ErrScriptNotFound
}
