package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolateEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		LogLevel, ConsoleLog, DefaultChannel, ChannelGrants, SweepInterval,
		LoopQueueSize, NotifyQueueSize, FrameQueueSize, OffloadAudio, OffloadVideo,
		ResetTimeout, IPCSocketPath, IPCWriteTimeout, HTTPAddress, EventTimeout,
	} {
		t.Setenv(name, "")
	}
	t.Setenv(EnvFile, filepath.Join(t.TempDir(), "missing.env"))
}

func TestLoadDefaults(t *testing.T) {
	isolateEnv(t)
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Same(t, cfg, Get())
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	isolateEnv(t)
	t.Setenv(DefaultChannel, "Content")
	t.Setenv(ChannelGrants, "app://clock=alarm")
	t.Setenv(LoopQueueSize, "64")
	t.Setenv(OffloadVideo, "false")
	t.Setenv(ResetTimeout, "750ms")
	t.Setenv(HTTPAddress, "127.0.0.1:9000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "content", cfg.DefaultChannel)
	assert.Equal(t, "app://clock=alarm", cfg.ChannelGrants)
	assert.Equal(t, 64, cfg.LoopQueueSize)
	assert.False(t, cfg.OffloadVideo)
	assert.True(t, cfg.OffloadAudio)
	assert.Equal(t, 750*time.Millisecond, cfg.ResetTimeout)
	assert.Equal(t, "127.0.0.1:9000", cfg.HTTPAddress)
}

func TestLoadEnvFile(t *testing.T) {
	isolateEnv(t)
	envFile := filepath.Join(t.TempDir(), "policy.env")
	require.NoError(t, os.WriteFile(envFile, []byte("IPC_SOCKET_PATH=/run/policy.sock\nFRAME_QUEUE_SIZE=3\n"), 0o600))
	t.Setenv(EnvFile, envFile)
	// godotenv never overrides variables that are already set.
	os.Unsetenv(IPCSocketPath)
	os.Unsetenv(FrameQueueSize)
	t.Cleanup(func() {
		os.Unsetenv(IPCSocketPath)
		os.Unsetenv(FrameQueueSize)
	})

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/run/policy.sock", cfg.IPCSocketPath)
	assert.Equal(t, 3, cfg.FrameQueueSize)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		env   string
		value string
	}{
		{"BadInt", LoopQueueSize, "lots"},
		{"ZeroQueue", NotifyQueueSize, "0"},
		{"BadBool", OffloadAudio, "maybe"},
		{"BadDuration", SweepInterval, "soon"},
		{"NegativeReset", ResetTimeout, "-1s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolateEnv(t)
			t.Setenv(tt.env, tt.value)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.env)
		})
	}
}

func TestUpdate(t *testing.T) {
	prev := Get()
	t.Cleanup(func() { Update(prev) })

	cfg := Default()
	cfg.LoopQueueSize = 1
	Update(cfg)
	assert.Equal(t, 1, Get().LoopQueueSize)
}
