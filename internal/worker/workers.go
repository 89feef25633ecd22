package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/dmw-rewrite/dmw/internal/backup"
	"github.com/dmw-rewrite/dmw/internal/config"
	"github.com/dmw-rewrite/dmw/internal/engine"
)

// Production cadences of the maintenance loops.
const (
	staleRaidInterval    = 15 * time.Minute
	staleRaidMaxAge      = 7 * 24 * time.Hour
	reminderInterval     = 30 * time.Second
	reminderWindow       = 10 * time.Minute
	autoReminderLead     = 2 * time.Hour
	integrityInterval    = 15 * time.Minute
	usernameSyncInterval = 10 * time.Minute
	logForwardInterval   = 5 * time.Second
)

// Options wires the worker set.
type Options struct {
	Engine  *engine.Engine
	Config  *config.Config
	Backup  *backup.Writer
	Forward *LogForwarder
	Logger  *slog.Logger

	// ExpectedCommands and ListCommands feed the self-test: the registered
	// command set is compared against the expected one. Nil ListCommands
	// reduces the self-test to a state-export probe.
	ExpectedCommands []string
	ListCommands     func(ctx context.Context) ([]string, error)

	Now func() time.Time
}

// Start registers every maintenance loop on the registry and returns it.
// Calling Start twice on the same registry is harmless: running names are
// skipped.
func Start(ctx context.Context, reg *Registry, opts Options) *Registry {
	if reg == nil {
		reg = NewRegistry(ctx, opts.Logger)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	eng := opts.Engine

	reg.Start("stale-raids", staleRaidInterval, func(ctx context.Context) error {
		_, err := eng.CleanupStaleRaids(ctx, staleRaidMaxAge)
		return err
	})
	reg.Start("reminders", reminderInterval, func(ctx context.Context) error {
		if _, err := eng.ReminderPass(ctx, reminderWindow); err != nil {
			return err
		}
		_, err := eng.AutoReminderPass(ctx, autoReminderLead)
		return err
	})
	reg.Start("integrity-sweep", integrityInterval, func(ctx context.Context) error {
		_, err := eng.IntegritySweep(ctx)
		return err
	})
	reg.Start("level-persist", opts.Config.LevelPersistInterval, func(ctx context.Context) error {
		return eng.PersistLevels(ctx)
	})
	reg.Start("username-sync", usernameSyncInterval, func(ctx context.Context) error {
		_, err := eng.SyncUsernames(ctx)
		return err
	})
	if opts.Backup != nil {
		reg.Start("backup", opts.Config.BackupInterval, func(ctx context.Context) error {
			return opts.Backup.Write(eng.ExportSnapshot(), opts.Now())
		})
	}
	reg.Start("self-test", opts.Config.SelfTestInterval, func(ctx context.Context) error {
		return runSelfTest(ctx, eng, opts)
	})
	if opts.Forward != nil {
		reg.Start("log-forward", logForwardInterval, func(ctx context.Context) error {
			return opts.Forward.Flush(ctx)
		})
	}
	return reg
}

// runSelfTest verifies the engine can export its state and, when a command
// lister is wired, that the registered command set matches the expected one.
// The outcome lands in the engine's status view.
func runSelfTest(ctx context.Context, eng *engine.Engine, opts Options) error {
	// The export walks every table; a wedged state mutex would hang here and
	// the supervisor's max-runtime restart covers that failure mode.
	_ = eng.ExportSnapshot()

	if opts.ListCommands != nil {
		actual, err := opts.ListCommands(ctx)
		if err != nil {
			eng.RecordSelfTest(false, fmt.Sprintf("Kommandoliste nicht abrufbar: %v", err))
			return err
		}
		if missing := missingCommands(opts.ExpectedCommands, actual); len(missing) > 0 {
			msg := fmt.Sprintf("Fehlende Kommandos: %v", missing)
			eng.RecordSelfTest(false, msg)
			return fmt.Errorf("self-test: %s", msg)
		}
	}
	eng.RecordSelfTest(true, "")
	return nil
}

func missingCommands(expected, actual []string) []string {
	have := make(map[string]struct{}, len(actual))
	for _, c := range actual {
		have[c] = struct{}{}
	}
	var missing []string
	for _, c := range expected {
		if _, ok := have[c]; !ok {
			missing = append(missing, c)
		}
	}
	sort.Strings(missing)
	return missing
}
