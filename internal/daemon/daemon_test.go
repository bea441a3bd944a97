package daemon

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/harun/webpilot/internal/config"
	"github.com/harun/webpilot/internal/logger"
	"github.com/harun/webpilot/pkg/commandqueue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createTestDaemon creates a daemon with the gateway disabled and
// history stored in a temp directory
func createTestDaemon(t *testing.T) (*Daemon, *logger.Logger) {
	tmpDir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.DataDir = tmpDir
	cfg.History.Path = filepath.Join(tmpDir, "history.db")
	cfg.Providers = []config.ProviderProfile{
		{ID: "default", Provider: "anthropic", APIKey: "sk-test-key"},
	}

	logCfg := logger.Config{
		Level:   "info",
		Console: false,
	}
	log, err := logger.New(logCfg)
	require.NoError(t, err)

	daemon, err := New(cfg, log)
	require.NoError(t, err)

	return daemon, log
}

func TestNew(t *testing.T) {
	daemon, log := createTestDaemon(t)
	defer log.Close()

	assert.NotNil(t, daemon)
	assert.NotNil(t, daemon.queue)
	assert.NotNil(t, daemon.sessions)
	assert.NotNil(t, daemon.provider)
	assert.NotNil(t, daemon.navigator)
	assert.NotNil(t, daemon.history)
	assert.NotNil(t, daemon.lifecycle)
	assert.Nil(t, daemon.gatewayServer)
	assert.Nil(t, daemon.scheduler)
}

func TestNewNoProviders(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.History.Enabled = false

	log, err := logger.New(logger.Config{Level: "info"})
	require.NoError(t, err)
	defer log.Close()

	_, err = New(cfg, log)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider")
}

func TestNewWithSchedules(t *testing.T) {
	tmpDir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.DataDir = tmpDir
	cfg.History.Enabled = false
	cfg.Providers = []config.ProviderProfile{
		{ID: "default", Provider: "anthropic", APIKey: "sk-test-key"},
	}
	cfg.Schedules = []config.ScheduleConfig{
		{Name: "nightly", Cron: "0 3 * * *", Instruction: "check the dashboard", StartURL: "https://example.com"},
	}

	log, err := logger.New(logger.Config{Level: "info"})
	require.NoError(t, err)
	defer log.Close()

	daemon, err := New(cfg, log)
	require.NoError(t, err)
	assert.NotNil(t, daemon.scheduler)
}

func TestDaemonStatusBeforeStart(t *testing.T) {
	daemon, log := createTestDaemon(t)
	defer log.Close()

	status := daemon.Status()
	assert.False(t, status.Running)
	assert.Equal(t, time.Duration(0), status.Uptime)
}

func TestDaemonStopWithoutStart(t *testing.T) {
	daemon, log := createTestDaemon(t)
	defer log.Close()

	err := daemon.Stop()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not running")
}

func TestHandleConfigReload(t *testing.T) {
	daemon, log := createTestDaemon(t)
	defer log.Close()

	reloaded := config.DefaultConfig()
	reloaded.Defaults.Model = "claude-opus-4"
	reloaded.Defaults.MaxTurns = 25
	reloaded.Defaults.TimeoutMs = 240000

	daemon.handleConfigReload(reloaded)

	cfg := daemon.GetConfig()
	assert.Equal(t, "claude-opus-4", cfg.Defaults.Model)
	assert.Equal(t, 25, cfg.Defaults.MaxTurns)
	assert.Equal(t, 240000, cfg.Defaults.TimeoutMs)

	// The navigator's live defaults follow the reload, so subsequent
	// runs pick up the new values.
	navDefaults := daemon.navigator.Defaults()
	assert.Equal(t, "claude-opus-4", navDefaults.Model)
	assert.Equal(t, 25, navDefaults.MaxTurns)
	assert.Equal(t, 240000, navDefaults.TimeoutMs)
}

func TestStatusQueueStats(t *testing.T) {
	daemon, log := createTestDaemon(t)
	defer log.Close()

	stats := daemon.Status().Queue
	require.Contains(t, stats, commandqueue.LaneMain)
	require.Contains(t, stats, commandqueue.LaneCron)
	assert.Equal(t, 1, stats[commandqueue.LaneMain]["concurrency"])
	assert.Equal(t, 2, stats[commandqueue.LaneCron]["concurrency"])
}

func TestCloseSessionClearsQueuedInstructions(t *testing.T) {
	daemon, log := createTestDaemon(t)
	defer log.Close()

	lane := commandqueue.SessionLane("sess-1")
	started := make(chan struct{})
	release := make(chan struct{})

	go func() {
		_, _ = daemon.queue.EnqueueWithContext(context.Background(), lane, func(ctx context.Context) (interface{}, error) {
			close(started)
			<-release
			return nil, nil
		}, nil)
	}()
	<-started
	defer close(release)

	errCh := make(chan error, 1)
	go func() {
		_, err := daemon.queue.EnqueueWithContext(context.Background(), lane, func(ctx context.Context) (interface{}, error) {
			return nil, nil
		}, nil)
		errCh <- err
	}()

	require.Eventually(t, func() bool {
		stats := daemon.queue.GetStats()[lane]
		return stats != nil && stats["queued"] == 1
	}, time.Second, 10*time.Millisecond)

	reg := &laneClearingRegistry{Registry: daemon.sessions, queue: daemon.queue}
	_ = reg.Close("sess-1")

	err := <-errCh
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lane cleared")
}

func TestDaemonGetters(t *testing.T) {
	daemon, log := createTestDaemon(t)
	defer log.Close()

	assert.NotNil(t, daemon.GetConfig())
	assert.NotNil(t, daemon.GetQueue())
	assert.NotNil(t, daemon.GetSessions())
	assert.Nil(t, daemon.GetGatewayServer())
}
