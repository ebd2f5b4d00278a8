// Package config centralizes the tunables of the audio policy daemon and
// loads overrides from the environment or an .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"

	"github.com/bmndc/nokia-leo-sub000/internal/logging"
)

const defaultEnvFile = ".env"

// Config holds every runtime tunable. The zero value is not useful; start
// from Default.
type Config struct {
	// LogLevel is a zerolog level name.
	LogLevel string
	// ConsoleLog switches the root logger to a human readable writer.
	ConsoleLog bool

	// DefaultChannel names the process-configured default channel kind.
	// Agents on this kind are never muted by default.
	DefaultChannel string
	// ChannelGrants lists static permission grants in the form
	// "principal=kind,kind;principal=kind".
	ChannelGrants string
	// SweepInterval is how often empty windows are garbage collected.
	SweepInterval time.Duration

	// LoopQueueSize bounds the coordinating loop's task queue.
	LoopQueueSize int
	// NotifyQueueSize bounds pending status broadcasts.
	NotifyQueueSize int
	// FrameQueueSize bounds the video frame analysis queue.
	FrameQueueSize int

	// OffloadAudio and OffloadVideo report platform offload capability.
	OffloadAudio bool
	OffloadVideo bool
	// ResetTimeout caps how long a session reset waits for the hardware.
	ResetTimeout time.Duration

	// IPCSocketPath is the unix socket children report status on.
	IPCSocketPath string
	// IPCWriteTimeout is the per-message write deadline towards children.
	IPCWriteTimeout time.Duration

	// HTTPAddress is the listen address of the status server. Empty disables it.
	HTTPAddress string
	// EventTimeout is the per-event websocket write timeout.
	EventTimeout time.Duration
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel:        "info",
		DefaultChannel:  "normal",
		SweepInterval:   30 * time.Second,
		LoopQueueSize:   256,
		NotifyQueueSize: 16,
		FrameQueueSize:  8,
		OffloadAudio:    true,
		OffloadVideo:    true,
		ResetTimeout:    2 * time.Second,
		IPCSocketPath:   "/tmp/audiopolicy.sock",
		IPCWriteTimeout: 50 * time.Millisecond,
		HTTPAddress:     ":8089",
		EventTimeout:    5 * time.Second,
	}
}

var (
	current   = Default()
	currentMu sync.RWMutex
)

// Get returns the active configuration.
func Get() *Config {
	currentMu.RLock()
	defer currentMu.RUnlock()
	return current
}

// Update replaces the active configuration.
func Update(cfg *Config) {
	currentMu.Lock()
	current = cfg
	currentMu.Unlock()
}

// Load reads the optional env file and applies environment overrides on top
// of Default. The result is also installed with Update.
func Load() (*Config, error) {
	logger := logging.GetSubsystemLogger("config")

	envFile := os.Getenv(EnvFile)
	if envFile == "" {
		envFile = defaultEnvFile
	}
	if err := godotenv.Load(envFile); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
		logger.Debug().Str("file", envFile).Msg("no env file, using process environment")
	} else {
		logger.Info().Str("file", envFile).Msg("loaded env file")
	}

	cfg := Default()
	var errs []error
	cfg.LogLevel = stringVar(LogLevel, cfg.LogLevel)
	cfg.ConsoleLog = boolVar(ConsoleLog, cfg.ConsoleLog, &errs)
	cfg.DefaultChannel = strings.ToLower(stringVar(DefaultChannel, cfg.DefaultChannel))
	cfg.ChannelGrants = stringVar(ChannelGrants, cfg.ChannelGrants)
	cfg.SweepInterval = durationVar(SweepInterval, cfg.SweepInterval, &errs)
	cfg.LoopQueueSize = intVar(LoopQueueSize, cfg.LoopQueueSize, &errs)
	cfg.NotifyQueueSize = intVar(NotifyQueueSize, cfg.NotifyQueueSize, &errs)
	cfg.FrameQueueSize = intVar(FrameQueueSize, cfg.FrameQueueSize, &errs)
	cfg.OffloadAudio = boolVar(OffloadAudio, cfg.OffloadAudio, &errs)
	cfg.OffloadVideo = boolVar(OffloadVideo, cfg.OffloadVideo, &errs)
	cfg.ResetTimeout = durationVar(ResetTimeout, cfg.ResetTimeout, &errs)
	cfg.IPCSocketPath = stringVar(IPCSocketPath, cfg.IPCSocketPath)
	cfg.IPCWriteTimeout = durationVar(IPCWriteTimeout, cfg.IPCWriteTimeout, &errs)
	cfg.HTTPAddress = stringVar(HTTPAddress, cfg.HTTPAddress)
	cfg.EventTimeout = durationVar(EventTimeout, cfg.EventTimeout, &errs)

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	Update(cfg)
	return cfg, nil
}

// Validate rejects configurations the daemon cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.LoopQueueSize <= 0:
		return fmt.Errorf("%s must be positive, got %d", LoopQueueSize, c.LoopQueueSize)
	case c.NotifyQueueSize <= 0:
		return fmt.Errorf("%s must be positive, got %d", NotifyQueueSize, c.NotifyQueueSize)
	case c.FrameQueueSize <= 0:
		return fmt.Errorf("%s must be positive, got %d", FrameQueueSize, c.FrameQueueSize)
	case c.ResetTimeout <= 0:
		return fmt.Errorf("%s must be positive", ResetTimeout)
	}
	return nil
}

func stringVar(name, def string) string {
	if v, ok := os.LookupEnv(name); ok && v != "" {
		return v
	}
	return def
}

func intVar(name string, def int, errs *[]error) int {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", name, err))
		return def
	}
	return n
}

func boolVar(name string, def bool, errs *[]error) bool {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", name, err))
		return def
	}
	return b
}

func durationVar(name string, def time.Duration, errs *[]error) time.Duration {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", name, err))
		return def
	}
	return d
}
