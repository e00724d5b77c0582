// Command recorder is a mocha reporter plugin that appends every event it
// sees to the file named by ASMOCHA_TRACE.
package main

import (
	"fmt"
	"os"

	"asmocha/internal/mocha"
)

func Reporter(runner *mocha.Runner) {
	for _, name := range mocha.AllEvents {
		runner.On(name, record)
	}
}

func record(event mocha.Event) {
	f, err := os.OpenFile(os.Getenv("ASMOCHA_TRACE"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()
	switch {
	case event.Test != nil:
		fmt.Fprintf(f, "%s %s\n", event.Name, event.Test.FullTitle())
	case event.Suite != nil:
		fmt.Fprintf(f, "%s %s\n", event.Name, event.Suite.FullTitle())
	default:
		fmt.Fprintln(f, event.Name)
	}
}

func main() {}
