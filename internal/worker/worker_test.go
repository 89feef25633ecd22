package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmw-rewrite/dmw/internal/backup"
	"github.com/dmw-rewrite/dmw/internal/config"
	"github.com/dmw-rewrite/dmw/internal/engine"
	"github.com/dmw-rewrite/dmw/internal/platform"
	"github.com/dmw-rewrite/dmw/internal/store"
)

func TestRegistrySingleton(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reg := NewRegistry(ctx, slog.Default())

	var ticks atomic.Int32
	require.True(t, reg.Start("demo", 5*time.Millisecond, func(context.Context) error {
		ticks.Add(1)
		return nil
	}))
	assert.False(t, reg.Start("demo", 5*time.Millisecond, func(context.Context) error {
		t.Error("duplicate task must not run")
		return nil
	}), "second start of a running task is a no-op")

	assert.Eventually(t, func() bool { return ticks.Load() >= 2 }, time.Second, 5*time.Millisecond)
	assert.True(t, reg.Running("demo"))

	cancel()
	require.NoError(t, reg.Wait())
	assert.False(t, reg.Running("demo"))
}

func TestRegistryKeepsTickingAfterError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reg := NewRegistry(ctx, slog.Default())

	var ticks atomic.Int32
	reg.Start("flaky", 5*time.Millisecond, func(context.Context) error {
		if ticks.Add(1) == 1 {
			return fmt.Errorf("transient")
		}
		return nil
	})
	assert.Eventually(t, func() bool { return ticks.Load() >= 3 }, time.Second, 5*time.Millisecond)
}

func TestLogForwarderDropOldest(t *testing.T) {
	fake := platform.NewFake()
	f := NewLogForwarder(fake, 42, slog.Default())

	for i := 0; i < forwardQueueMax+10; i++ {
		f.Enqueue(fmt.Sprintf("line %d", i))
	}
	require.NoError(t, f.Flush(context.Background()))

	require.Equal(t, 1, fake.MessageCount(42))
	_, msg, _ := fake.LastMessage(42)
	assert.Contains(t, msg.Content, "10 Zeilen verworfen")
	assert.Contains(t, msg.Content, fmt.Sprintf("line %d", forwardQueueMax+9), "newest line survives")
	assert.NotContains(t, msg.Content, "line 0\n", "oldest lines dropped")
}

func TestLogForwarderEditsSingleMessage(t *testing.T) {
	fake := platform.NewFake()
	f := NewLogForwarder(fake, 42, slog.Default())
	ctx := context.Background()

	f.Enqueue("first")
	require.NoError(t, f.Flush(ctx))
	f.Enqueue("second")
	require.NoError(t, f.Flush(ctx))

	require.Equal(t, 1, fake.MessageCount(42), "forwarder edits one terminal message")
	_, msg, _ := fake.LastMessage(42)
	assert.Contains(t, msg.Content, "second")
}

func TestLogForwarderDisabledWithoutChannel(t *testing.T) {
	fake := platform.NewFake()
	f := NewLogForwarder(fake, 0, slog.Default())
	f.Enqueue("ignored")
	require.NoError(t, f.Flush(context.Background()))
	assert.Equal(t, 0, fake.MessageCount(0))
}

func TestHandlerMirrorsAboveThreshold(t *testing.T) {
	fake := platform.NewFake()
	f := NewLogForwarder(fake, 42, slog.Default())
	var sink strings.Builder
	log := slog.New(NewHandler(slog.NewTextHandler(&sink, nil), f, slog.LevelWarn))

	log.Info("quiet")
	log.Warn("loud", "guild", 1)
	require.NoError(t, f.Flush(context.Background()))

	_, msg, ok := fake.LastMessage(42)
	require.True(t, ok)
	assert.Contains(t, msg.Content, "loud")
	assert.Contains(t, msg.Content, "guild=1")
	assert.NotContains(t, msg.Content, "quiet")
	assert.Contains(t, sink.String(), "quiet", "inner handler still sees everything")
}

func testConfig() *config.Config {
	return &config.Config{
		LevelPersistInterval: 10 * time.Millisecond,
		BackupInterval:       10 * time.Millisecond,
		SelfTestInterval:     10 * time.Millisecond,
	}
}

func TestWorkersBackupAndSelfTest(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fake := platform.NewFake()
	eng := engine.New(engine.Options{Store: store.New(), Client: fake})
	path := filepath.Join(t.TempDir(), "backup.sql")

	reg := Start(ctx, nil, Options{
		Engine:           eng,
		Config:           testConfig(),
		Backup:           backup.NewWriter(path),
		ExpectedCommands: []string{"raid", "status"},
		ListCommands: func(context.Context) ([]string, error) {
			return []string{"raid", "status", "extra"}, nil
		},
	})

	assert.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, time.Second, 10*time.Millisecond, "backup worker writes the file")

	assert.Eventually(t, func() bool {
		okAt, _ := eng.SelfTestStatus()
		return !okAt.IsZero()
	}, time.Second, 10*time.Millisecond, "self-test records success")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "-- DMW Rewrite SQL Backup"))

	cancel()
	require.NoError(t, reg.Wait())
}

func TestSelfTestReportsMissingCommands(t *testing.T) {
	fake := platform.NewFake()
	eng := engine.New(engine.Options{Store: store.New(), Client: fake})

	err := runSelfTest(context.Background(), eng, Options{
		ExpectedCommands: []string{"raid", "status"},
		ListCommands: func(context.Context) ([]string, error) {
			return []string{"raid"}, nil
		},
	})
	require.Error(t, err)
	_, msg := eng.SelfTestStatus()
	assert.Contains(t, msg, "status")
}
