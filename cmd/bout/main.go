package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/forayproject/bout/internal/cli"
	"github.com/forayproject/bout/internal/interrupt"
)

// Injected at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

// Exit codes per specification.
const (
	ExitOK        = 0
	ExitGeneral   = 1
	ExitInterrupt = 130
)

func main() {
	// Load .env file if present (ignore error if missing).
	_ = godotenv.Load()

	handler, ctx := interrupt.NewHandler(context.Background())
	defer handler.Stop()

	env := cli.DefaultEnv()

	rootCmd := &cobra.Command{
		Use:     "bout",
		Short:   "Transcribe long-form video into a speaker-labeled Markdown document",
		Version: fmt.Sprintf("%s (commit: %s)", version, commit),
		// Silence Cobra's default error/usage printing; we handle it ourselves.
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	rootCmd.AddCommand(cli.RunCmd(env))
	rootCmd.AddCommand(cli.JobsCmd(env))
	rootCmd.AddCommand(cli.ConfigCmd(env))

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(exitCode(err, handler.WasInterrupted()))
}

// exitCode maps a command's error and whether a signal was observed to
// the exit codes documented for the CLI.
func exitCode(err error, interrupted bool) int {
	if interrupted {
		return ExitInterrupt
	}
	if err != nil {
		return ExitGeneral
	}
	return ExitOK
}
