// Command dmw-runner supervises the engine process: it restarts after the
// max-runtime window (planned recycle), backs off on crashes, and gives up
// when the engine keeps dying right after boot.
//
// Exit codes: 0 when the child exits cleanly, otherwise the child's last
// non-zero exit code once the quick-failure threshold is exceeded.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dmw-rewrite/dmw/internal/config"
)

type runnerFlags struct {
	maxRuntimeSeconds   int
	restartDelaySeconds int
	maxBackoffSeconds   int
	minUptimeSeconds    int
	maxQuickFailures    int
	logLevel            string
}

func main() {
	var flags runnerFlags

	root := &cobra.Command{
		Use:           "dmw-runner [engine-binary [args...]]",
		Short:         "Restart supervisor for the DMW engine",
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return supervise(cmd.Context(), flags, args)
		},
	}
	root.Flags().IntVar(&flags.maxRuntimeSeconds, "max-runtime-seconds", 6*3600, "recycle the engine after this runtime (0 = never)")
	root.Flags().IntVar(&flags.restartDelaySeconds, "restart-delay-seconds", 5, "delay before a restart")
	root.Flags().IntVar(&flags.maxBackoffSeconds, "max-backoff-seconds", 300, "cap for the crash backoff")
	root.Flags().IntVar(&flags.minUptimeSeconds, "min-uptime-seconds", 60, "uptime below this counts as a quick failure")
	root.Flags().IntVar(&flags.maxQuickFailures, "max-quick-failures", 5, "give up after this many quick failures in a row")
	root.Flags().StringVar(&flags.logLevel, "log-level", "INFO", "runner log level (DEBUG, INFO, WARNING, ERROR, CRITICAL)")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		fmt.Fprintln(os.Stderr, "dmw-runner:", err)
		os.Exit(1)
	}
}

// exitError carries the child's exit code out of supervise.
type exitError struct{ code int }

func (e *exitError) Error() string { return fmt.Sprintf("engine gave up with exit code %d", e.code) }

func supervise(ctx context.Context, flags runnerFlags, args []string) error {
	level, err := config.ParseLogLevel(flags.logLevel)
	if err != nil {
		return err
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	binary := "dmw"
	var childArgs []string
	if len(args) > 0 {
		binary = args[0]
		childArgs = args[1:]
	}

	maxRuntime := time.Duration(flags.maxRuntimeSeconds) * time.Second
	restartDelay := time.Duration(flags.restartDelaySeconds) * time.Second
	maxBackoff := time.Duration(flags.maxBackoffSeconds) * time.Second
	minUptime := time.Duration(flags.minUptimeSeconds) * time.Second

	backoff := restartDelay
	quickFailures := 0
	lastCode := 1

	for {
		if ctx.Err() != nil {
			return nil
		}

		runCtx := ctx
		var cancel context.CancelFunc
		if maxRuntime > 0 {
			runCtx, cancel = context.WithTimeout(ctx, maxRuntime)
		}

		start := time.Now()
		log.Info("starting engine", "binary", binary)
		cmd := exec.CommandContext(runCtx, binary, childArgs...)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		runErr := cmd.Run()
		uptime := time.Since(start)
		recycled := runCtx.Err() == context.DeadlineExceeded
		if cancel != nil {
			cancel()
		}

		switch {
		case ctx.Err() != nil:
			// The runner itself was asked to stop.
			return nil

		case runErr == nil && !recycled:
			log.Info("engine exited cleanly", "uptime", uptime)
			return nil

		case recycled:
			log.Info("planned recycle", "uptime", uptime)
			quickFailures = 0
			backoff = restartDelay

		default:
			lastCode = 1
			var ee *exec.ExitError
			if errors.As(runErr, &ee) && ee.ExitCode() > 0 {
				lastCode = ee.ExitCode()
			}
			if uptime < minUptime {
				quickFailures++
			} else {
				quickFailures = 0
				backoff = restartDelay
			}
			log.Error("engine crashed", "uptime", uptime, "exit_code", lastCode,
				"quick_failures", quickFailures, "backoff", backoff)
			if quickFailures > flags.maxQuickFailures {
				return &exitError{code: lastCode}
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		if backoff *= 2; backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
