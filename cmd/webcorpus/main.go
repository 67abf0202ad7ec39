// Command webcorpus scrapes a website into a semantic-search store and
// writes a query guide for the resulting corpus.
package main

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Exit codes. Runs that fail or index nothing exit with exitRunFailed; bad
// flags or configuration exit with exitUsage.
const (
	exitOK        = 0
	exitUsage     = 1
	exitRunFailed = 2
)

// exitError carries an exit code through cobra's error return.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

func (e *exitError) Unwrap() error { return e.err }

func main() {
	os.Exit(execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	setupLogging(stderr, false, false)

	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		log.Error().Err(ee.err).Msg("run failed")
		return ee.code
	}
	log.Error().Err(err).Msg("invalid invocation")
	return exitUsage
}

func setupLogging(w io.Writer, jsonOutput, verbose bool) {
	zerolog.TimeFieldFormat = time.RFC3339
	if jsonOutput {
		log.Logger = zerolog.New(w).With().Timestamp().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339})
	}
	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
