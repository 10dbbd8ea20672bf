// Package pipeline runs the full break-even analysis for one balance
// column: OLS fit, ratio point estimate, then the delta-method, bootstrap
// and Bayesian interval estimators.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"nbalance/internal/cfg"
	"nbalance/internal/dataset"
	"nbalance/internal/estimate"
	"nbalance/internal/regress"
)

// Result bundles everything one pipeline invocation produces. The three
// estimates are independent views of the same fit; none of them feeds into
// another.
type Result struct {
	Kind      dataset.BalanceKind         `json:"kind"`
	N         int                         `json:"n"`
	Fit       *regress.LinearFit          `json:"-"`
	Theta     float64                     `json:"theta"`
	Delta     *estimate.DeltaEstimate     `json:"delta"`
	Bootstrap *estimate.BootstrapEstimate `json:"bootstrap"`
	Bayes     *estimate.BayesEstimate     `json:"bayes"`
	Elapsed   time.Duration               `json:"-"`
}

// Pipeline analyzes a single balance kind with its prior. Two instances
// share no mutable state and may run concurrently.
type Pipeline struct {
	kind     dataset.BalanceKind
	settings *cfg.Settings
	prior    estimate.PriorSpec
	tracker  estimate.MetricsTracker
}

// New builds a pipeline for one balance kind. tracker may be nil.
func New(kind dataset.BalanceKind, settings *cfg.Settings, tracker estimate.MetricsTracker) (*Pipeline, error) {
	prior, ok := settings.Priors[kind]
	if !ok {
		return nil, fmt.Errorf("no prior configured for %s balance", kind)
	}
	return &Pipeline{
		kind:     kind,
		settings: settings,
		prior:    prior,
		tracker:  tracker,
	}, nil
}

// Run executes the three estimators against one observation set. Errors
// from any stage abort the run; nothing substitutes defaults for an
// undefined break-even value.
func (p *Pipeline) Run(ctx context.Context, obs dataset.ObservationSet) (*Result, error) {
	start := time.Now()
	logger := log.With().Str("balance", string(p.kind)).Logger()

	logger.Info().Int("n", len(obs)).Msg("Starting break-even analysis")

	fit, err := regress.Fit(obs)
	if err != nil {
		return nil, fmt.Errorf("%s balance fit: %w", p.kind, err)
	}
	se0, se1 := fit.StdErr()
	logger.Info().
		Float64("beta0", fit.Beta0).
		Float64("beta1", fit.Beta1).
		Float64("se_beta0", se0).
		Float64("se_beta1", se1).
		Float64("sigma2", fit.Sigma2).
		Msg("OLS fit")

	if fit.Beta1 < 0 {
		// The posterior model constrains the slope positive, so a negative
		// fitted slope means prior and data disagree about the direction of
		// the balance response.
		logger.Warn().Float64("beta1", fit.Beta1).Msg("Fitted slope is negative; Bayesian estimate will pile near zero slope")
	}

	theta, err := fit.BreakEven()
	if err != nil {
		return nil, fmt.Errorf("%s balance break-even: %w", p.kind, err)
	}

	delta, err := estimate.DeltaMethod(fit, p.settings.Alpha, p.tracker)
	if err != nil {
		return nil, fmt.Errorf("%s balance delta method: %w", p.kind, err)
	}
	logger.Info().
		Float64("theta", delta.Theta).
		Float64("se", delta.SE).
		Float64("lower", delta.Interval.Lower).
		Float64("upper", delta.Interval.Upper).
		Msg("Delta-method estimate")

	boot, err := estimate.Bootstrap(ctx, obs, estimate.BootstrapOptions{
		Resamples: p.settings.BootstrapResamples,
		Seed:      p.settings.BootstrapSeed,
		Policy:    p.settings.OnDegenerate,
	}, p.tracker)
	if err != nil {
		return nil, fmt.Errorf("%s balance bootstrap: %w", p.kind, err)
	}
	logger.Info().
		Int("resamples", boot.Resamples).
		Float64("lower", boot.Lower).
		Float64("median", boot.Median).
		Float64("upper", boot.Upper).
		Msg("Bootstrap estimate")

	bayes, err := estimate.Bayes(ctx, obs, p.prior, estimate.MCMCOptions{
		Chains:           p.settings.MCMCChains,
		Iterations:       p.settings.MCMCIterations,
		Warmup:           p.settings.MCMCWarmup,
		Thinning:         p.settings.MCMCThinning,
		TargetAcceptance: p.settings.MCMCTargetAcceptance,
		Seed:             p.settings.MCMCSeed,
	}, p.tracker)
	if err != nil {
		return nil, fmt.Errorf("%s balance posterior sampling: %w", p.kind, err)
	}
	logger.Info().
		Float64("mean", bayes.Mean).
		Float64("median", bayes.Median).
		Float64("lower", bayes.Interval.Lower).
		Float64("upper", bayes.Interval.Upper).
		Bool("converged", bayes.Diag.Converged()).
		Msg("Bayesian estimate")

	elapsed := time.Since(start)
	logger.Info().Dur("elapsed", elapsed).Msg("Analysis complete")

	return &Result{
		Kind:      p.kind,
		N:         len(obs),
		Fit:       fit,
		Theta:     theta,
		Delta:     delta,
		Bootstrap: boot,
		Bayes:     bayes,
		Elapsed:   elapsed,
	}, nil
}
