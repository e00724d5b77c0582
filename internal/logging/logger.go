package logging

import (
	"fmt"
	"io"
	"reflect"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// Logger defines a minimal, printf-style logging contract.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Nop returns a logger that discards all output.
func Nop() Logger {
	return nopLogger{}
}

// IsNil reports whether logger is nil or wraps a nil pointer receiver.
func IsNil(logger Logger) bool {
	if logger == nil {
		return true
	}
	val := reflect.ValueOf(logger)
	switch val.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Slice, reflect.Map, reflect.Func:
		return val.IsNil()
	default:
		return false
	}
}

// OrNop returns logger when non-nil, otherwise a no-op logger.
func OrNop(logger Logger) Logger {
	if IsNil(logger) {
		return Nop()
	}
	return logger
}

var (
	warnPrefix  = color.New(color.FgYellow).SprintFunc()
	errorPrefix = color.New(color.FgRed).SprintFunc()
)

// Console writes log lines to a single writer. Debug output is only
// emitted when verbose is set.
type Console struct {
	mu      sync.Mutex
	out     io.Writer
	verbose bool
}

// New returns a console logger writing to out.
func New(out io.Writer, verbose bool) *Console {
	return &Console{out: out, verbose: verbose}
}

// Verbose reports whether debug output is enabled.
func (c *Console) Verbose() bool {
	return c != nil && c.verbose
}

func (c *Console) Debug(format string, args ...any) {
	if !c.Verbose() {
		return
	}
	c.write("", format, args...)
}

func (c *Console) Info(format string, args ...any) {
	c.write("", format, args...)
}

// Warn prefixes every line of the message so multi-line warnings stay greppable.
func (c *Console) Warn(format string, args ...any) {
	c.write(warnPrefix("[WARN]")+" ", format, args...)
}

func (c *Console) Error(format string, args ...any) {
	c.write(errorPrefix("[ERROR]")+" ", format, args...)
}

func (c *Console) write(prefix string, format string, args ...any) {
	if c == nil || c.out == nil {
		return
	}
	message := fmt.Sprintf(format, args...)

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, line := range strings.Split(strings.TrimRight(message, "\n"), "\n") {
		fmt.Fprintf(c.out, "%s%s\n", prefix, line)
	}
}
