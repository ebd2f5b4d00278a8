package audiopolicy

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/bmndc/nokia-leo-sub000/internal/config"
	"github.com/bmndc/nokia-leo-sub000/internal/logging"
)

func Main() {
	cfg, err := config.Load()
	if err != nil {
		logging.GetDefaultLogger().Error().Err(err).Msg("failed to load config")
		os.Exit(1)
	}
	logging.SetLevel(cfg.LogLevel)
	if cfg.ConsoleLog {
		logging.SetOutput(logging.NewConsoleWriter())
	}
	logger := logging.GetDefaultLogger()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// No offload hardware is linked into the daemon binary; platforms
	// embed the package and pass their own factory to NewDaemon.
	daemon, err := NewDaemon(cfg, nil)
	if err != nil {
		logger.Error().Err(err).Msg("failed to initialize audio policy daemon")
		os.Exit(1)
	}

	if err := daemon.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("audio policy daemon failed")
		cancel()
		os.Exit(1)
	}
	logger.Info().Msg("audio policy daemon stopped")
}
