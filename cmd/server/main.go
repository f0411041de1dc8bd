package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/woozymasta/mapcomp/internal/config"
	"github.com/woozymasta/mapcomp/internal/fetch"
	"github.com/woozymasta/mapcomp/internal/logger"
	"github.com/woozymasta/mapcomp/internal/metrics"
	"github.com/woozymasta/mapcomp/internal/server"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Options struct {
	Logger logger.Logger `group:"Logger options"`

	ConfigFile  string `short:"c" long:"config"      env:"CONFIG_FILE"    description:"Path to configuration file" default:"config.yaml"`
	Addr        string `short:"a" long:"addr"        env:"LISTEN_ADDRESS" description:"Address to listen on"       default:"0.0.0.0"`
	Port        int    `short:"p" long:"port"        env:"LISTEN_PORT"    description:"Port to listen on"          default:"8080"`
	Concurrency int    `short:"j" long:"concurrency" env:"CONCURRENCY"    description:"Parallel basemap tile downloads" default:"8"`
	Redis       string `short:"r" long:"redis"       env:"REDIS_ADDR"     description:"Cache basemap tiles in this Redis server"`
	NoMetrics   bool   `long:"no-metrics"            env:"NO_METRICS"     description:"Do not expose /metrics"`
}

func main() {
	_ = godotenv.Load(".env")

	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	// Setup Logging
	opts.Logger.Setup()

	// Load Config
	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if opts.Redis != "" {
		cfg.TileCache.Redis = opts.Redis
	}

	fetcher := fetch.New(&http.Client{Timeout: 60 * time.Second}, false)
	providers, err := cfg.Registry(fetcher, opts.Concurrency)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up basemap providers")
	}

	srvCtx, err := server.NewServerContext(cfg, fetcher, providers)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize server")
	}

	var metricsHandler http.Handler
	if !opts.NoMetrics {
		metricsHandler = metrics.Handler()
	}
	handler := srvCtx.Handler(metricsHandler)

	listenAddr := fmt.Sprintf("%s:%d", opts.Addr, opts.Port)
	log.Info().
		Str("addr", listenAddr).
		Int("figures_loaded", len(cfg.Figures)).
		Strs("providers", providers.Names()).
		Msg("Web server started")

	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}
}
