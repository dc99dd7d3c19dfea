// Command server runs the matching engine's TCP front end: loads
// config and a startup snapshot, serves submit/cancel/query/subscribe
// traffic, writes every trade to a rotating log, and stores a fresh
// snapshot on graceful shutdown.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"fenrir/internal/config"
	"fenrir/internal/engine"
	"fenrir/internal/eventbus"
	fenrirnet "fenrir/internal/net"
	"fenrir/internal/persistence"
	"fenrir/internal/tradelog"
)

func main() {
	address := flag.String("address", "0.0.0.0", "listen address")
	port := flag.Int("port", 9001, "listen port")
	configPath := flag.String("config", "config.yaml", "symbol configuration file")
	snapshotPath := flag.String("snapshot", "snapshot.json", "snapshot file to load at startup and store at shutdown")
	tradeLogPath := flag.String("trade-log", "trades.jsonl", "rotating trade log path")
	flag.Parse()

	log.Logger = zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("loading config")
	}

	bus := eventbus.New()
	eng := engine.New(cfg, bus)

	if err := persistence.Load(eng, *snapshotPath); err != nil {
		log.Fatal().Err(err).Msg("loading snapshot")
	}

	writer := tradelog.New(bus, tradelog.Config{Path: *tradeLogPath})
	go writer.Run()

	server := fenrirnet.New(*address, *port, eng)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := make(chan error, 1)
	go func() {
		runErr <- server.Run(ctx)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-runErr:
		if err != nil {
			log.Error().Err(err).Msg("server exited with error")
		}
	}

	server.Shutdown()
	eng.Shutdown()

	if err := writer.Close(); err != nil {
		log.Error().Err(err).Msg("closing trade log")
	}

	if err := persistence.Store(eng, cfg, *snapshotPath); err != nil {
		log.Error().Err(err).Msg("storing snapshot")
	}

	log.Info().Msg("shutdown complete")
}
