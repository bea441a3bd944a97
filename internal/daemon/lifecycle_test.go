package daemon

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLifecycleManager(t *testing.T) {
	daemon, log := createTestDaemon(t)
	defer log.Close()

	lm := NewLifecycleManager(daemon)
	assert.NotNil(t, lm)
	assert.Equal(t, daemon, lm.daemon)
	assert.Equal(t, filepath.Join(daemon.config.DataDir, "webpilot.pid"), lm.pidFile)
}

func TestLifecycleManagerStartStop(t *testing.T) {
	daemon, log := createTestDaemon(t)
	defer log.Close()

	lm := NewLifecycleManager(daemon)

	err := lm.Start()
	require.NoError(t, err)

	_, err = os.Stat(lm.pidFile)
	assert.NoError(t, err)

	err = lm.Stop()
	require.NoError(t, err)

	_, err = os.Stat(lm.pidFile)
	assert.True(t, os.IsNotExist(err))
}

func TestLifecycleManagerStopWithoutPIDFile(t *testing.T) {
	daemon, log := createTestDaemon(t)
	defer log.Close()

	lm := NewLifecycleManager(daemon)

	// Stop is a no-op when no PID file was ever written
	err := lm.Stop()
	require.NoError(t, err)
}

func TestLifecycleManagerGetPID(t *testing.T) {
	daemon, log := createTestDaemon(t)
	defer log.Close()

	lm := NewLifecycleManager(daemon)

	err := lm.Start()
	require.NoError(t, err)
	defer lm.Stop()

	pid, err := lm.GetPID()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestLifecycleManagerIsRunning(t *testing.T) {
	daemon, log := createTestDaemon(t)
	defer log.Close()

	lm := NewLifecycleManager(daemon)

	// No PID file yet
	assert.False(t, lm.IsRunning())

	err := lm.Start()
	require.NoError(t, err)
	defer lm.Stop()

	// PID file points at this process
	assert.True(t, lm.IsRunning())
}
