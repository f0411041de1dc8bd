package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/woozymasta/mapcomp/internal/basemap"
	"github.com/woozymasta/mapcomp/internal/config"
	"github.com/woozymasta/mapcomp/internal/fetch"
	"github.com/woozymasta/mapcomp/internal/logger"
	"github.com/woozymasta/mapcomp/internal/metrics"
	"github.com/woozymasta/mapcomp/internal/pipeline"
	"github.com/woozymasta/mapcomp/internal/store"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Options struct {
	Logger logger.Logger `group:"Logger options"`

	ConfigFile  string   `short:"c" long:"config"       env:"CONFIG_FILE"  description:"Path to configuration file" default:"config.yaml"`
	Limit       []string `short:"l" long:"limit"        env:"LIMIT_NAMES"  description:"Limit processing to specific figure names or aliases"`
	Concurrency int      `short:"p" long:"concurrency"  env:"CONCURRENCY"  description:"Parallel basemap tile downloads" default:"8"`
	Force       bool     `short:"f" long:"force"        description:"Re-download datasets and overwrite existing figures"`
	FastCheck   bool     `short:"F" long:"fast-check"   description:"Skip figures whose output files already exist"`
	MetricsFile string   `short:"m" long:"metrics-file" env:"METRICS_FILE" description:"Write Prometheus metrics to this file when done"`
	SQL         string   `short:"s" long:"sql"          env:"DATABASE_URL" description:"Export vertex tables to this database (postgres:// URL or sqlite path)"`
	Redis       string   `short:"r" long:"redis"        env:"REDIS_ADDR"   description:"Cache basemap tiles in this Redis server"`
	Inspect     bool     `short:"i" long:"inspect"      description:"Print a summary table of the processed figures"`
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

	opts.Logger.Setup()

	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if opts.Redis != "" {
		cfg.TileCache.Redis = opts.Redis
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}

	client := &http.Client{
		Transport: &http.Transport{
			TLSNextProto:        make(map[string]func(string, *tls.Conn) http.RoundTripper),
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
		},
		Timeout: 60 * time.Second,
	}
	fetcher := fetch.New(client, opts.Force)

	providers, err := cfg.Registry(fetcher, opts.Concurrency)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up basemap providers")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	total, failed, err := run(ctx, cfg, opts, fetcher, providers)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}

	if failed > 0 {
		log.Error().Int("failed", failed).Int("total", total).Msg("mapcomp finished with failures")
		stop()
		os.Exit(1)
	}
	log.Info().Msg("mapcomp finished successfully")
}

var openStore = store.Open

// run builds the selected figures and returns how many were queued and how many failed.
// The database, when configured, is closed before run returns.
func run(ctx context.Context, cfg *config.Config, opts Options, fetcher *fetch.Fetcher, providers *basemap.Registry) (int, int, error) {
	var db *store.Store
	if opts.SQL != "" {
		var err error
		if db, err = openStore(opts.SQL); err != nil {
			return 0, 0, err
		}
		defer func() { _ = db.Close() }()
	}

	// Filter figures if limit is set
	figures := cfg.Figures
	if len(opts.Limit) > 0 {
		figures = make([]config.Figure, 0, len(opts.Limit))
		seen := make(map[string]bool)

		for _, limitName := range opts.Limit {
			f, ok := cfg.Find(limitName)
			if !ok {
				log.Error().
					Str("name", limitName).
					Msg("Figure specified in --limit not found in configuration")
				continue
			}
			if seen[f.Name] {
				continue
			}
			seen[f.Name] = true
			figures = append(figures, *f)
		}
	}

	log.Info().
		Int("figures_total", len(cfg.Figures)).
		Int("figures_queued", len(figures)).
		Bool("fast_check", opts.FastCheck).
		Msg("Starting mapcomp")

	results := make([]result, 0, len(figures))
	failed := 0
	for _, f := range figures {
		if opts.FastCheck && !opts.Force && outputsExist(cfg.OutputDir, f) {
			log.Info().Str("figure", f.Name).Msg("Outputs exist, skipping")
			results = append(results, result{Figure: f.Name, Skipped: true})
			continue
		}

		p := pipeline.New(cfg, f, fetcher, providers)
		p.Store = db

		start := time.Now()
		err := p.Run(ctx)
		results = append(results, summarize(p, err, time.Since(start)))
		if err != nil {
			failed++
			log.Error().Err(err).Str("figure", f.Name).Msg("Failed to build figure")
		}
		if ctx.Err() != nil {
			break
		}
	}

	if opts.Inspect {
		printSummary(os.Stdout, results)
	}

	if opts.MetricsFile != "" {
		if err := metrics.WriteFile(opts.MetricsFile); err != nil {
			log.Error().Err(err).Str("path", opts.MetricsFile).Msg("Failed to write metrics")
		}
	}

	return len(figures), failed, nil
}

// outputsExist reports whether every configured output file of f is present.
func outputsExist(dir string, f config.Figure) bool {
	for _, format := range f.Formats {
		if _, err := os.Stat(filepath.Join(dir, f.Name+"."+format)); err != nil {
			return false
		}
	}
	return len(f.Formats) > 0
}
