package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"arkchain/config"
	"arkchain/core"
	"arkchain/observability/logging"
	"arkchain/p2p"
	"arkchain/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("ARK_ENV"))
	logger := logging.Setup("arkd", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	chain, err := core.NewBlockchain(db)
	if err != nil {
		logger.Error("Failed to open blockchain", slog.Any("error", err))
		os.Exit(1)
	}

	network, err := p2p.NewNetwork(logger, chain, db, p2p.Config{
		ListenAddress: cfg.ListenAddress,
		Port:          cfg.P2PPort,
		PublicAddress: cfg.PublicAddress,
		Version:       cfg.ClientVersion,
		SeedsFile:     cfg.SeedsFile,
	})
	if err != nil {
		logger.Error("Failed to construct network", slog.Any("error", err))
		os.Exit(1)
	}

	network.Start()
	logger.Info("Node started",
		slog.String("network", cfg.NetworkName),
		slog.Uint64("port", uint64(cfg.P2PPort)),
		slog.Uint64("height", chain.TipHeight()))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("Shutting down")
	network.Close()
}
