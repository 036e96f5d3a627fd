// recurctl inspects schedule rule files without a running daemon.
//
//	recurctl next --file rule.yaml [--now 2025-01-01T00:00:00Z] [--count 5]
//	recurctl validate --file rule.yaml
//	recurctl json --file rule.yaml
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/doughall/recurd/internal/logging"
	"github.com/doughall/recurd/internal/recurrence"
	"github.com/doughall/recurd/internal/schedfile"
	"github.com/doughall/recurd/internal/version"
)

var errUsage = errors.New("usage: recurctl <next|validate|json> --file rule.yaml")

func main() {
	logger := logging.NewTextLogger(os.Stderr, os.Getenv("RECURCTL_LOG_LEVEL"))
	if err := run(os.Args[1:], os.Stdout, time.Now); err != nil {
		logger.Error("recurctl failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(args []string, out io.Writer, clock func() time.Time) error {
	if len(args) == 0 {
		return errUsage
	}
	switch args[0] {
	case "next":
		return runNext(args[1:], out, clock)
	case "validate":
		return runValidate(args[1:], out)
	case "json":
		return runJSON(args[1:], out)
	case "version", "--version":
		fmt.Fprintln(out, version.Info("recurctl"))
		return nil
	default:
		return fmt.Errorf("unknown command %q: %w", args[0], errUsage)
	}
}

func runNext(args []string, out io.Writer, clock func() time.Time) error {
	fs := flag.NewFlagSet("next", flag.ContinueOnError)
	file := fs.StringP("file", "f", "", "rule file (YAML)")
	nowFlag := fs.String("now", "", "evaluate from this RFC 3339 instant instead of the current time")
	count := fs.IntP("count", "n", 5, "number of occurrences to print")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return errUsage
	}

	now := clock()
	if *nowFlag != "" {
		t, err := time.Parse(time.RFC3339Nano, *nowFlag)
		if err != nil {
			return fmt.Errorf("--now: %w", err)
		}
		now = t
	}

	sched, err := schedfile.LoadRule(*file)
	if err != nil {
		return err
	}
	times, err := recurrence.NextN(sched, now, *count)
	if err != nil {
		return err
	}

	loc := sched.Anchor.Location()
	for _, t := range times {
		fmt.Fprintln(out, t.In(loc).Format(time.RFC3339Nano))
	}
	if len(times) < *count {
		fmt.Fprintln(out, "(no further occurrences)")
	}
	return nil
}

func runValidate(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	file := fs.StringP("file", "f", "", "rule file (YAML)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return errUsage
	}

	sched, err := schedfile.LoadRule(*file)
	if err != nil {
		return err
	}

	if custom, ok := sched.Frequency.(recurrence.CustomFrequency); ok {
		if ignored := len(custom.Expressions) - len(custom.Honored()); ignored > 0 {
			fmt.Fprintf(out, "warning: %d expression(s) beyond the first %d are ignored\n", ignored, recurrence.MaxCustomExpressions)
		}
		if err := custom.Validate(); err != nil {
			return err
		}
	}
	fmt.Fprintln(out, "ok")
	return nil
}

func runJSON(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("json", flag.ContinueOnError)
	file := fs.StringP("file", "f", "", "rule file (YAML)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return errUsage
	}

	sched, err := schedfile.LoadRule(*file)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(sched)
}
