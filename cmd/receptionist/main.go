// Command receptionist runs the TCP front-end described by spec.md: it
// answers status/ping queries and login handshakes directly, then
// transfers joining clients to whatever backend instance
// internal/transfer.FleetHandler reports as reachable.
//
// It takes no flags (spec.md §6): configuration lives entirely in the
// YAML document at RECEPTIONIST_CONFIG, falling back to
// /etc/receptionist/config.yaml when that env var is unset, the way
// gosuda-portal's relay-server reads its own env-first settings ahead
// of flag.Parse.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/coregx/receptionist/internal/config"
	"github.com/coregx/receptionist/internal/listener"
	"github.com/coregx/receptionist/internal/rlog"
	"github.com/coregx/receptionist/internal/transfer"
)

const defaultConfigPath = "/etc/receptionist/config.yaml"

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("receptionist exited")
	}
}

func run() error {
	configPath := os.Getenv("RECEPTIONIST_CONFIG")
	if configPath == "" {
		configPath = defaultConfigPath
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	rlog.Init(cfg.LogLevel)

	controller := transfer.NewStaticController("", false)
	handler := transfer.NewFleetHandler(controller, cfg.TargetInstanceName, cfg.MCTargetPort, log.Logger)

	l := listener.New(cfg, handler, log.Logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return l.Run(ctx)
}
