package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"asmocha/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	code := 0
	root := &cobra.Command{
		Use:   "asmocha --reporter <path> [options] [paths...]",
		Short: "Run go test through a mocha reporter",
		// mocha flags are parsed by the translator, not cobra.
		DisableFlagParsing: true,
		SilenceUsage:       true,
		SilenceErrors:      true,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := app.Command{
				Args:   args,
				Stdout: cmd.OutOrStdout(),
				Stderr: cmd.ErrOrStderr(),
			}.Run(cmd.Context())
			return err
		},
	}

	if err := root.ExecuteContext(ctx); err != nil {
		var exitErr *app.ExitError
		if !errors.As(err, &exitErr) {
			root.PrintErrln(err)
		}
		code = app.ExitCode(err)
	}
	stop()
	os.Exit(code)
}
