package cfg

import (
	"fmt"

	"nbalance/internal/dataset"
	"nbalance/internal/estimate"
)

// validateSettings performs range checks on all analysis knobs.
func validateSettings(s *Settings) error {
	if s.Alpha <= 0 || s.Alpha >= 1 {
		return fmt.Errorf("alpha must be in (0,1), got %g", s.Alpha)
	}

	if s.BootstrapResamples < 1 || s.BootstrapResamples > 1_000_000 {
		return fmt.Errorf("bootstrap resamples must be between 1 and 1000000, got %d", s.BootstrapResamples)
	}
	if s.OnDegenerate != estimate.AbortOnDegenerate && s.OnDegenerate != estimate.RetryOnDegenerate {
		return fmt.Errorf("onDegenerate must be %q or %q, got %q",
			estimate.AbortOnDegenerate, estimate.RetryOnDegenerate, s.OnDegenerate)
	}

	if s.MCMCChains < 1 || s.MCMCChains > 64 {
		return fmt.Errorf("MCMC chains must be between 1 and 64, got %d", s.MCMCChains)
	}
	if s.MCMCIterations < 100 {
		return fmt.Errorf("MCMC iterations must be at least 100, got %d", s.MCMCIterations)
	}
	if s.MCMCWarmup < 0 || s.MCMCWarmup >= s.MCMCIterations {
		return fmt.Errorf("MCMC warmup must be below iterations, got warmup=%d iterations=%d",
			s.MCMCWarmup, s.MCMCIterations)
	}
	if s.MCMCThinning < 1 {
		return fmt.Errorf("MCMC thinning must be at least 1, got %d", s.MCMCThinning)
	}
	if s.MCMCTargetAcceptance <= 0 || s.MCMCTargetAcceptance >= 1 {
		return fmt.Errorf("MCMC target acceptance must be in (0,1), got %g", s.MCMCTargetAcceptance)
	}

	if s.MetricsPort != 0 && (s.MetricsPort < 1024 || s.MetricsPort > 65535) {
		return fmt.Errorf("metrics port must be 0 (disabled) or between 1024 and 65535, got %d", s.MetricsPort)
	}

	for _, kind := range []dataset.BalanceKind{dataset.PartialBalance, dataset.TotalBalance} {
		p, ok := s.Priors[kind]
		if !ok {
			return fmt.Errorf("missing prior block for %s balance", kind)
		}
		if err := validatePrior(p); err != nil {
			return fmt.Errorf("prior %q: %w", kind, err)
		}
	}
	return nil
}

func validatePrior(p estimate.PriorSpec) error {
	if p.ThetaA <= 0 || p.ThetaB <= 0 {
		return fmt.Errorf("beta shapes must be positive, got (%g, %g)", p.ThetaA, p.ThetaB)
	}
	if p.SlopeShape <= 0 || p.SlopeRate <= 0 {
		return fmt.Errorf("slope gamma parameters must be positive, got (%g, %g)", p.SlopeShape, p.SlopeRate)
	}
	if p.SigmaShape <= 0 || p.SigmaRate <= 0 {
		return fmt.Errorf("sigma gamma parameters must be positive, got (%g, %g)", p.SigmaShape, p.SigmaRate)
	}
	return nil
}
