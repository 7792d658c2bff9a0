package main

import (
	"context"
	"flag"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/yigit/academydesk/internal/bootstrap"
	"github.com/yigit/academydesk/internal/pkg/logger"
	"github.com/yigit/academydesk/internal/server"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, lgr, err := bootstrap.LoadConfigAndSetupLogger(bootstrap.ConfigPath(*configPath))
	if err != nil {
		os.Exit(1)
	}

	api, err := bootstrap.BuildMockAPI(cfg, lgr)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize mock API")
		os.Exit(1)
	}

	srv := server.New("mockapi", net.JoinHostPort("", cfg.MockAPI.Port), api.Router, lgr)
	if err := srv.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("Mock API stopped with error")
		stop()
		os.Exit(1)
	}
	logger.Info().Msg("Mock API finished gracefully.")
}
