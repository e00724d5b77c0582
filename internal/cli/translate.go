// Package cli parses the mocha command line and translates it into engine
// configuration.
package cli

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"

	"asmocha/internal/engine"
)

// ErrReporterRequired is returned when --reporter is missing.
var ErrReporterRequired = errors.New("--reporter|-R (path/to/js) is required")

// Usage lists the mocha flags that have an effect.
const Usage = `Usage: asmocha --reporter <path> [options] [paths...]

Runs go test and reports through a mocha reporter.

Options:
  -R, --reporter <path>          mocha reporter: a registered name, plugin or executable (required)
      --config <path>            engine config file (asmocha.config.{json,yaml,toml})
      --grep <text>              run only tests whose name contains <text>; ^ and $ anchors are removed
      --noGrepWarning            do not warn that --grep is reduced to a substring match
      --showConfig               print the resolved config and exit
      --verbose                  log debug output
      --asMochaReporterPath <p>  look for the adapter next to <p>
      --history <db>             record the run in a sqlite database
      --eventLog <path>          append every bridged event to a JSONL file
  -h, --help                     show this help

Accepted and ignored: --recursive, --timeout|-t, --ui
`

// Options holds one field per recognized flag. Repeated flags keep the last value.
type Options struct {
	Reporter            string
	Config              string
	Grep                string
	NoGrepWarning       bool
	Help                bool
	ShowConfig          bool
	Verbose             bool
	AsMochaReporterPath string
	History             string
	EventLog            string
	Recursive           bool
	Timeout             string
	UI                  string
	Positionals         []string
}

// Translation is what the engine receives.
type Translation struct {
	Overrides engine.CommandLineOptions
	PathMatch []string
	Warnings  []string
}

// mochaSwitches are mocha flags that take no value. They are accepted and
// ignored; left unknown, pflag would read the next positional as their value.
var mochaSwitches = []struct{ name, short string }{
	{"bail", "b"},
	{"exit", ""},
	{"no-exit", ""},
	{"colors", "c"},
	{"no-colors", "C"},
	{"diff", ""},
	{"no-diff", ""},
	{"check-leaks", ""},
	{"full-trace", ""},
	{"inline-diffs", ""},
	{"invert", "i"},
	{"allow-uncaught", ""},
	{"async-only", "A"},
	{"forbid-only", ""},
	{"forbid-pending", ""},
	{"fail-zero", ""},
	{"sort", "S"},
	{"watch", "w"},
	{"parallel", "p"},
	{"dry-run", ""},
	{"delay", ""},
	{"growl", "G"},
	{"list-reporters", ""},
	{"list-interfaces", ""},
}

// Parse reads argv. Unknown flags are ignored. Parse does not validate that
// a reporter was given; see Options.Translate.
func Parse(argv []string) (Options, error) {
	var opts Options
	flags := pflag.NewFlagSet("asmocha", pflag.ContinueOnError)
	flags.SetOutput(io.Discard)
	flags.ParseErrorsWhitelist.UnknownFlags = true
	flags.Usage = func() {}

	flags.StringVarP(&opts.Reporter, "reporter", "R", "", "")
	flags.StringVar(&opts.Config, "config", "", "")
	flags.StringVar(&opts.Grep, "grep", "", "")
	flags.BoolVar(&opts.NoGrepWarning, "noGrepWarning", false, "")
	flags.BoolVarP(&opts.Help, "help", "h", false, "")
	flags.BoolVar(&opts.ShowConfig, "showConfig", false, "")
	flags.BoolVar(&opts.Verbose, "verbose", false, "")
	flags.StringVar(&opts.AsMochaReporterPath, "asMochaReporterPath", "", "")
	flags.StringVar(&opts.History, "history", "", "")
	flags.StringVar(&opts.EventLog, "eventLog", "", "")
	flags.BoolVar(&opts.Recursive, "recursive", false, "")
	flags.StringVarP(&opts.Timeout, "timeout", "t", "", "")
	flags.StringVar(&opts.UI, "ui", "bdd", "")
	for _, sw := range mochaSwitches {
		flags.BoolP(sw.name, sw.short, false, "")
		_ = flags.MarkHidden(sw.name)
	}

	if err := flags.Parse(argv); err != nil {
		return Options{}, fmt.Errorf("parse arguments: %w", err)
	}
	opts.Reporter = strings.TrimSpace(opts.Reporter)
	opts.Positionals = flags.Args()
	return opts, nil
}

// Translate maps the options onto engine overrides. Positionals become paths
// relative to cwd, in input order.
func (o Options) Translate(cwd string) (Translation, error) {
	if o.Reporter == "" {
		return Translation{}, ErrReporterRequired
	}
	var out Translation

	if o.Grep != "" {
		only := StripAnchors(o.Grep)
		if only != "" {
			out.Overrides.Only = only
		}
		if !o.NoGrepWarning {
			out.Warnings = append(out.Warnings,
				fmt.Sprintf("Provided with --grep=%q", o.Grep),
				"go test does not support grep-style matchers.",
				fmt.Sprintf("Converted to go test: --only %q", only),
			)
		}
	}

	for _, positional := range o.Positionals {
		rel, err := relative(cwd, positional)
		if err != nil {
			return Translation{}, err
		}
		out.PathMatch = append(out.PathMatch, rel)
	}
	return out, nil
}

// StripAnchors removes one leading ^ and one trailing $.
func StripAnchors(pattern string) string {
	pattern = strings.TrimPrefix(pattern, "^")
	return strings.TrimSuffix(pattern, "$")
}

func relative(cwd, path string) (string, error) {
	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(cwd, abs)
	}
	rel, err := filepath.Rel(cwd, abs)
	if err != nil {
		return "", fmt.Errorf("path %s: %w", path, err)
	}
	return rel, nil
}

// Translate parses argv and translates it against cwd.
func Translate(argv []string, cwd string) (Options, Translation, error) {
	opts, err := Parse(argv)
	if err != nil {
		return Options{}, Translation{}, err
	}
	translation, err := opts.Translate(cwd)
	return opts, translation, err
}
