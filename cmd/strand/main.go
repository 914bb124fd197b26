// Command strand runs one or more TOML plan files concurrently and prints a
// report line per plan.
//
//	strand [-log-level info] [-timeout 30s] plan.toml [plan.toml ...]
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bpradana/strand/internal/plan"
	"github.com/bpradana/strand/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes the command and returns its exit code: 0 when every plan
// succeeds, 1 when a plan fails or cannot run, 2 on usage errors.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("strand", flag.ContinueOnError)
	flags.SetOutput(stderr)
	levelName := flags.String("log-level", "info", "minimum log level (debug, info, warn, error)")
	timeout := flags.Duration("timeout", 0, "give up waiting after this long (0 waits forever)")
	flags.Usage = func() {
		fmt.Fprintln(flags.Output(), "usage: strand [flags] plan.toml [plan.toml ...]")
		flags.PrintDefaults()
	}
	if err := flags.Parse(args); err != nil {
		return 2
	}
	if flags.NArg() == 0 {
		flags.Usage()
		return 2
	}

	level, err := logging.ParseLevel(*levelName)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	logger := logging.New().WithComponent("strand")
	logger.SetOutput(stderr)
	logger.SetLevel(level)

	if *timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}

	paths := flags.Args()
	reports := make([]plan.Report, len(paths))
	started := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			p, err := plan.Load(path)
			if err != nil {
				return err
			}
			report, err := plan.Run(gctx, p, logger)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			reports[i] = report
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error("plan_failed", logging.Fields{"error": err})
		return 1
	}

	failed := 0
	for _, report := range reports {
		fmt.Fprintln(stdout, report.String())
		if report.Err != nil {
			failed++
		}
	}
	logger.Info("plans_complete", logging.Fields{
		"plans":    len(reports),
		"failed":   failed,
		"duration": time.Since(started).String(),
	})
	if failed > 0 {
		return 1
	}
	return 0
}
