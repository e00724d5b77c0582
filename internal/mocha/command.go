package mocha

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"asmocha/internal/logging"
	"asmocha/internal/runner"
)

var errReporterExited = errors.New("reporter process exited")

// NewCommandReporter returns a Handler that starts args as a child process
// and writes every runner event to its stdin as one JSON line (WireEvent).
// Stdin is closed after "end" and the process is awaited.
func NewCommandReporter(args []string, stdout io.Writer, stderr io.Writer, logger logging.Logger) Handler {
	logger = logging.OrNop(logger)
	return func(r *Runner) {
		stdinReader, stdinWriter := io.Pipe()
		done := make(chan error, 1)
		go func() {
			_, err := runner.NewGenericRunner().Run(context.Background(), runner.Command{
				Args:   args,
				Stdin:  stdinReader,
				Stdout: stdout,
				Stderr: stderr,
			})
			stdinReader.CloseWithError(errReporterExited)
			done <- err
		}()

		encoder := json.NewEncoder(stdinWriter)
		failed := false
		for _, name := range AllEvents {
			r.On(name, func(event Event) {
				if !failed {
					if err := encoder.Encode(NewWireEvent(event, r)); err != nil {
						failed = true
						logger.Error("Reporter %s stopped accepting events: %v", args[0], err)
					}
				}
				if event.Name != EventRunEnd {
					return
				}
				_ = stdinWriter.Close()
				if err := <-done; err != nil {
					logger.Error("Reporter %s: %v", args[0], err)
				}
			})
		}
	}
}
