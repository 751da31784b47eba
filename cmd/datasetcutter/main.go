package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/datasetcutter/datasetcutter/internal/config"
)

// exitError carries a process exit code out of a command.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

func main() {
	_ = godotenv.Load() // best-effort: load .env if present

	root := newRootCmd()
	if err := root.Execute(); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			fmt.Fprintln(os.Stderr, ee.msg)
			os.Exit(ee.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	serve := newServeCmd()

	root := &cobra.Command{
		Use:           "datasetcutter",
		Short:         "Cut labeled training clips from local videos",
		Version:       fmt.Sprintf("%s (%s, %s)", config.Version, config.GitCommit, config.BuildTime),
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		// Running without a subcommand starts the server.
		RunE: serve.RunE,
	}
	root.Flags().AddFlagSet(serve.Flags())

	root.AddCommand(serve, newFocusCmd(), newRepairCmd())
	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)
	return root
}

// legacyPortArg picks up the launcher-style "PORT=8001" positional argument.
func legacyPortArg(args []string) (int, bool, error) {
	for _, a := range args {
		v, ok := strings.CutPrefix(a, "PORT=")
		if !ok {
			continue
		}
		port, err := config.ParsePort(v)
		if err != nil {
			return 0, false, fmt.Errorf("invalid %s: %w", a, err)
		}
		return port, true, nil
	}
	return 0, false, nil
}
