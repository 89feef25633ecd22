// Command dmw runs the raid-coordination engine: it connects to the
// database, aligns the schema, loads state, and starts the maintenance
// workers. The chat gateway binding is linked by the hosting deployment;
// without one the engine runs with the offline client and publishes nothing.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dmw-rewrite/dmw/internal/app"
	"github.com/dmw-rewrite/dmw/internal/config"
	"github.com/dmw-rewrite/dmw/internal/platform"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:           "dmw",
		Short:         "DMW raid coordination engine",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context())
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "dmw:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(log)

	// The gateway client is an external collaborator; deployments link it in
	// their own main and call app.Run directly. Standalone, the engine keeps
	// state, schema, and backups healthy while publishing nothing.
	var client platform.Client = platform.Offline{}
	log.Warn("no gateway client linked, running offline")

	return app.Run(ctx, cfg, client, log)
}
