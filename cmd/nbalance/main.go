package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"nbalance/internal/cfg"
	"nbalance/internal/dataset"
	"nbalance/internal/metrics"
	"nbalance/internal/pipeline"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to YAML config file")
		dataPath   = flag.String("data", "", "Path to dataset CSV (overrides config)")
		dataURL    = flag.String("url", "", "URL of dataset CSV (overrides config)")
		outputPath = flag.String("output", "", "Output directory for reports (overrides config)")
		logLevel   = flag.String("log-level", "info", "Log level: debug, info, warn, error")
		resamples  = flag.Int("resamples", 0, "Bootstrap resample count (overrides config)")
		seed       = flag.Int64("seed", 0, "Random seed for bootstrap and MCMC (overrides config)")
	)
	flag.Parse()

	// .env is optional; ignore a missing file.
	_ = godotenv.Load()

	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if *configPath != "" {
		os.Setenv("CONFIG_FILE", *configPath)
	}
	settings, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	if *dataPath != "" {
		settings.DataPath = *dataPath
	}
	if *dataURL != "" {
		settings.DataURL = *dataURL
	}
	if *outputPath != "" {
		settings.OutputPath = *outputPath
	}
	if *resamples > 0 {
		settings.BootstrapResamples = *resamples
	}
	if *seed != 0 {
		settings.BootstrapSeed = *seed
		settings.MCMCSeed = *seed
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	if settings.MetricsPort > 0 {
		go func() {
			addr := fmt.Sprintf(":%d", settings.MetricsPort)
			log.Info().Str("addr", addr).Msg("Serving metrics")
			if err := http.ListenAndServe(addr, promhttp.Handler()); err != nil {
				log.Error().Err(err).Msg("Metrics server stopped")
			}
		}()
	}

	table, err := loadTable(ctx, &settings)
	if err != nil {
		m.ErrorsTotal.Inc()
		log.Fatal().Err(err).Msg("Failed to load dataset")
	}

	// The two balance analyses share only the read-only table; run them
	// concurrently.
	kinds := []dataset.BalanceKind{dataset.PartialBalance, dataset.TotalBalance}
	results := make([]*pipeline.Result, len(kinds))
	errs := make([]error, len(kinds))

	var wg sync.WaitGroup
	wg.Add(len(kinds))
	for i, kind := range kinds {
		go func(i int, kind dataset.BalanceKind) {
			defer wg.Done()
			results[i], errs[i] = runOne(ctx, kind, table, &settings, m)
		}(i, kind)
	}
	wg.Wait()

	failed := false
	for i, kind := range kinds {
		if errs[i] != nil {
			m.ErrorsTotal.Inc()
			log.Error().Err(errs[i]).Str("balance", string(kind)).Msg("Analysis failed")
			failed = true
			continue
		}
		reporter := pipeline.NewReporter(results[i], settings.OutputPath)
		if err := reporter.GenerateReport(); err != nil {
			m.ErrorsTotal.Inc()
			log.Error().Err(err).Str("balance", string(kind)).Msg("Report generation failed")
			failed = true
			continue
		}
		printConsoleSummary(results[i])
	}
	if failed {
		os.Exit(1)
	}
}

func loadTable(ctx context.Context, settings *cfg.Settings) (*dataset.Table, error) {
	switch {
	case settings.DataURL != "":
		return dataset.Fetch(ctx, settings.DataURL, settings.RESTTimeout)
	case settings.DataPath != "":
		return dataset.LoadCSV(settings.DataPath)
	default:
		return nil, fmt.Errorf("no dataset configured: set -data, -url, DATA_PATH or DATA_URL")
	}
}

func runOne(ctx context.Context, kind dataset.BalanceKind, table *dataset.Table, settings *cfg.Settings, m *metrics.Metrics) (*pipeline.Result, error) {
	obs, err := table.Column(kind)
	if err != nil {
		return nil, err
	}
	p, err := pipeline.New(kind, settings, m)
	if err != nil {
		return nil, err
	}
	result, err := p.Run(ctx, obs)
	if err != nil {
		return nil, err
	}
	m.PipelineRuns.Inc()
	return result, nil
}

func printConsoleSummary(res *pipeline.Result) {
	fmt.Printf("\n=== %s nitrogen balance (n=%d) ===\n", res.Kind, res.N)
	fmt.Printf("Break-even Ndfa (delta):     %.2f [%.2f, %.2f]\n",
		res.Delta.Theta, res.Delta.Interval.Lower, res.Delta.Interval.Upper)
	fmt.Printf("Break-even Ndfa (bootstrap): %.2f [%.2f, %.2f]\n",
		res.Bootstrap.Median, res.Bootstrap.Lower, res.Bootstrap.Upper)
	fmt.Printf("Break-even Ndfa (Bayesian):  %.2f [%.2f, %.2f]\n",
		res.Bayes.Median, res.Bayes.Interval.Lower, res.Bayes.Interval.Upper)
	if !res.Bayes.Diag.Converged() {
		fmt.Printf("WARNING: MCMC diagnostics outside thresholds\n")
	}
}
