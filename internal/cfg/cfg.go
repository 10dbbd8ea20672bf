// Package cfg loads analysis settings from a YAML file with environment
// variable overrides, and carries the named prior records for each balance
// type.
package cfg

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"nbalance/internal/dataset"
	"nbalance/internal/estimate"
)

// Settings is the flattened runtime configuration.
type Settings struct {
	DataPath    string
	DataURL     string
	RESTTimeout time.Duration
	OutputPath  string

	Alpha float64

	BootstrapResamples int
	BootstrapSeed      int64
	OnDegenerate       estimate.DegeneratePolicy

	MCMCChains           int
	MCMCIterations       int
	MCMCWarmup           int
	MCMCThinning         int
	MCMCTargetAcceptance float64
	MCMCSeed             int64

	MetricsPort int

	Priors map[dataset.BalanceKind]estimate.PriorSpec
}

// ConfigFile mirrors the YAML layout.
type ConfigFile struct {
	Data struct {
		Path        string `yaml:"path"`
		URL         string `yaml:"url"`
		RESTTimeout string `yaml:"restTimeout"`
	} `yaml:"data"`

	Output struct {
		Path string `yaml:"path"`
	} `yaml:"output"`

	Analysis struct {
		Alpha float64 `yaml:"alpha"`
	} `yaml:"analysis"`

	Bootstrap struct {
		Resamples    int    `yaml:"resamples"`
		Seed         int64  `yaml:"seed"`
		OnDegenerate string `yaml:"onDegenerate"`
	} `yaml:"bootstrap"`

	MCMC struct {
		Chains           int     `yaml:"chains"`
		Iterations       int     `yaml:"iterations"`
		Warmup           int     `yaml:"warmup"`
		Thinning         int     `yaml:"thinning"`
		TargetAcceptance float64 `yaml:"targetAcceptance"`
		Seed             int64   `yaml:"seed"`
	} `yaml:"mcmc"`

	System struct {
		MetricsPort int `yaml:"metricsPort"`
	} `yaml:"system"`

	Priors map[string]estimate.PriorSpec `yaml:"priors"`
}

// Default priors for the faba bean dataset this analysis was built around.
// The Beta shapes center the partial-balance break-even near 60% Ndfa and
// the total-balance break-even near 80%; slope and residual priors are
// shared across balance types.
func defaultPriors() map[dataset.BalanceKind]estimate.PriorSpec {
	return map[dataset.BalanceKind]estimate.PriorSpec{
		dataset.PartialBalance: {
			Name:   "partial",
			ThetaA: 6, ThetaB: 4,
			SlopeShape: 1.6, SlopeRate: 0.8,
			SigmaShape: 2.5, SigmaRate: 0.05,
		},
		dataset.TotalBalance: {
			Name:   "total",
			ThetaA: 8, ThetaB: 2,
			SlopeShape: 1.6, SlopeRate: 0.8,
			SigmaShape: 2.5, SigmaRate: 0.05,
		},
	}
}

func defaults() Settings {
	return Settings{
		RESTTimeout:          10 * time.Second,
		OutputPath:           "results",
		Alpha:                0.05,
		BootstrapResamples:   10000,
		BootstrapSeed:        79,
		OnDegenerate:         estimate.AbortOnDegenerate,
		MCMCChains:           4,
		MCMCIterations:       20000,
		MCMCWarmup:           10000,
		MCMCThinning:         5,
		MCMCTargetAcceptance: 0.8,
		MCMCSeed:             79,
		Priors:               defaultPriors(),
	}
}

// Load reads settings from the file named by CONFIG_FILE when set, falling
// back to environment variables over built-in defaults.
func Load() (Settings, error) {
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return LoadFile(configPath)
	}
	return loadFromEnv()
}

// LoadFile parses a YAML config file and applies environment overrides.
func LoadFile(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var file ConfigFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	s := defaults()
	if file.Data.Path != "" {
		s.DataPath = file.Data.Path
	}
	if file.Data.URL != "" {
		s.DataURL = file.Data.URL
	}
	if file.Data.RESTTimeout != "" {
		if d, err := time.ParseDuration(file.Data.RESTTimeout); err == nil {
			s.RESTTimeout = d
		}
	}
	if file.Output.Path != "" {
		s.OutputPath = file.Output.Path
	}
	if file.Analysis.Alpha != 0 {
		s.Alpha = file.Analysis.Alpha
	}
	if file.Bootstrap.Resamples != 0 {
		s.BootstrapResamples = file.Bootstrap.Resamples
	}
	if file.Bootstrap.Seed != 0 {
		s.BootstrapSeed = file.Bootstrap.Seed
	}
	if file.Bootstrap.OnDegenerate != "" {
		s.OnDegenerate = estimate.DegeneratePolicy(file.Bootstrap.OnDegenerate)
	}
	if file.MCMC.Chains != 0 {
		s.MCMCChains = file.MCMC.Chains
	}
	if file.MCMC.Iterations != 0 {
		s.MCMCIterations = file.MCMC.Iterations
	}
	if file.MCMC.Warmup != 0 {
		s.MCMCWarmup = file.MCMC.Warmup
	}
	if file.MCMC.Thinning != 0 {
		s.MCMCThinning = file.MCMC.Thinning
	}
	if file.MCMC.TargetAcceptance != 0 {
		s.MCMCTargetAcceptance = file.MCMC.TargetAcceptance
	}
	if file.MCMC.Seed != 0 {
		s.MCMCSeed = file.MCMC.Seed
	}
	if file.System.MetricsPort != 0 {
		s.MetricsPort = file.System.MetricsPort
	}

	for name, p := range file.Priors {
		kind := dataset.BalanceKind(name)
		if _, ok := s.Priors[kind]; !ok {
			return Settings{}, fmt.Errorf("unknown prior block %q (want partial or total)", name)
		}
		if p.Name == "" {
			p.Name = name
		}
		s.Priors[kind] = mergePrior(s.Priors[kind], p)
	}

	applyEnvOverrides(&s)

	if err := validateSettings(&s); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return s, nil
}

func loadFromEnv() (Settings, error) {
	s := defaults()
	applyEnvOverrides(&s)
	if err := validateSettings(&s); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return s, nil
}

// mergePrior overlays the non-zero fields of override onto base, so a YAML
// block can adjust just the Beta shapes and inherit the shared Gamma priors.
func mergePrior(base, override estimate.PriorSpec) estimate.PriorSpec {
	out := base
	if override.Name != "" {
		out.Name = override.Name
	}
	if override.ThetaA != 0 {
		out.ThetaA = override.ThetaA
	}
	if override.ThetaB != 0 {
		out.ThetaB = override.ThetaB
	}
	if override.SlopeShape != 0 {
		out.SlopeShape = override.SlopeShape
	}
	if override.SlopeRate != 0 {
		out.SlopeRate = override.SlopeRate
	}
	if override.SigmaShape != 0 {
		out.SigmaShape = override.SigmaShape
	}
	if override.SigmaRate != 0 {
		out.SigmaRate = override.SigmaRate
	}
	return out
}

func applyEnvOverrides(s *Settings) {
	s.DataPath = getEnvOrDefault("DATA_PATH", s.DataPath)
	s.DataURL = getEnvOrDefault("DATA_URL", s.DataURL)
	s.OutputPath = getEnvOrDefault("OUTPUT_PATH", s.OutputPath)
	s.RESTTimeout = getDurationOrDefault("REST_TIMEOUT", s.RESTTimeout)
	s.Alpha = getFloatOrDefault("ALPHA", s.Alpha)
	s.BootstrapResamples = getIntOrDefault("BOOTSTRAP_RESAMPLES", s.BootstrapResamples)
	s.BootstrapSeed = getInt64OrDefault("BOOTSTRAP_SEED", s.BootstrapSeed)
	if v := os.Getenv("ON_DEGENERATE"); v != "" {
		s.OnDegenerate = estimate.DegeneratePolicy(v)
	}
	s.MCMCChains = getIntOrDefault("MCMC_CHAINS", s.MCMCChains)
	s.MCMCIterations = getIntOrDefault("MCMC_ITERATIONS", s.MCMCIterations)
	s.MCMCWarmup = getIntOrDefault("MCMC_WARMUP", s.MCMCWarmup)
	s.MCMCThinning = getIntOrDefault("MCMC_THINNING", s.MCMCThinning)
	s.MCMCTargetAcceptance = getFloatOrDefault("MCMC_TARGET_ACCEPTANCE", s.MCMCTargetAcceptance)
	s.MCMCSeed = getInt64OrDefault("MCMC_SEED", s.MCMCSeed)
	s.MetricsPort = getIntOrDefault("METRICS_PORT", s.MetricsPort)
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getInt64OrDefault(key string, defaultValue int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
