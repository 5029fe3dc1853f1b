package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"gorealm/internal/relay"
	"gorealm/internal/shared/config"
	"gorealm/internal/shared/logger"
	"gorealm/internal/shared/types"
)

func main() {
	configDir := flag.String("configdir", "configs", "Path to config directory")
	flag.Parse()

	iniPath := filepath.Join(*configDir, "gorealm.ini")

	cfg := new(types.Config)
	if err := config.LoadIni(cfg, iniPath); err != nil {
		// Use standard fmt before the logger is initialized.
		fmt.Fprintf(os.Stderr, "Fatal: Failed to load config file '%s': %v\n", iniPath, err)
		os.Exit(1)
	}
	if err := logger.Init(cfg.LogConf); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal: Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	if len(cfg.Relays) == 0 {
		logger.Fatal().Str("config", iniPath).Msg("No relay sections found in config")
	}

	reg := relay.NewRegistry()
	keys := make([]relay.Key, 0, len(cfg.Relays))
	for _, rc := range cfg.Relays {
		opts := relay.Options{
			Listen:    rc.Listen,
			Remote:    rc.Remote,
			Host:      rc.Host,
			Path:      rc.Path,
			TLS:       rc.TLS,
			Insecure:  rc.Insecure,
			SendProxy: rc.SendProxy,
			Transport: rc.Transport,
			UDP:       rc.UseUDP,
		}
		addr, err := reg.Start(opts)
		if err != nil {
			logger.Fatal().Err(err).Str("remote", rc.Remote).Msg("Failed to start relay")
		}
		logger.Info().Str("remote", rc.Remote).Str("listen_addr", addr).Msg("Relay running")
		keys = append(keys, opts.Key())
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	logger.Info().Msg("Shutting down...")
	for _, k := range keys {
		reg.Stop(k)
	}
}
