package main

import (
	"flag"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/getsentry/hotspot/internal/document"
	"github.com/getsentry/hotspot/internal/logutil"
	"github.com/getsentry/hotspot/internal/resolver"
	"github.com/getsentry/hotspot/internal/rpc"
)

var release = "dev"

func main() {
	logLevel := flag.String("log-level", "warn", "minimum level logged to stderr")
	workers := flag.Int("workers", 0, "processes analyzed in parallel, one per CPU by default")
	flag.Parse()

	// stdout carries the protocol, logs go to stderr only.
	logutil.ConfigureLogger("debug")
	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.WarnLevel
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Sample(logutil.LevelSampler{Level: level})

	store, err := document.NewStore(document.Config{
		ResolverCacheSize: resolver.DefaultCacheSize,
		NumWorkers:        *workers,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("can't create document store")
	}
	registry := rpc.NewRegistry()
	if err := rpc.NewService(store).Register(registry); err != nil {
		log.Fatal().Err(err).Msg("can't register methods")
	}

	if err := server.ServeStdio(newServer(registry)); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}
