// Package estimate implements the three interval estimators for the
// break-even Ndfa value: the analytic delta method, nonparametric case
// bootstrap, and Bayesian posterior sampling of a reparameterized model.
package estimate

import "time"

// Interval is a two-sided interval for theta.
type Interval struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// DeltaEstimate is the first-order variance approximation of theta with a
// normal-theory interval.
type DeltaEstimate struct {
	Theta    float64  `json:"theta"`
	SE       float64  `json:"se"`
	Alpha    float64  `json:"alpha"`
	Interval Interval `json:"interval"`
}

// BootstrapEstimate summarizes the empirical distribution of theta over
// case resamples. Thetas is kept in resample-index order so reruns with the
// same seed compare byte for byte.
type BootstrapEstimate struct {
	Thetas    []float64 `json:"-"`
	Resamples int       `json:"resamples"`
	Discarded int       `json:"discarded"`
	Seed      int64     `json:"seed"`
	Lower     float64   `json:"lower"`  // 2.5th percentile
	Median    float64   `json:"median"` // 50th percentile
	Upper     float64   `json:"upper"`  // 97.5th percentile
}

// PosteriorSample is one retained MCMC draw in the model's natural
// parameterization. Beta0 is derived as -Beta1*Theta.
type PosteriorSample struct {
	Theta float64
	Beta1 float64
	Sigma float64
	Beta0 float64
}

// Chain is the thinned post-warmup sample sequence of a single MCMC chain.
type Chain []PosteriorSample

// BayesEstimate is the posterior summary of theta together with the raw
// per-chain samples needed for trace plots and diagnostics.
type BayesEstimate struct {
	Chains   []Chain     `json:"-"`
	Mean     float64     `json:"mean"`
	Median   float64     `json:"median"`
	Interval Interval    `json:"interval"` // 2.5-97.5 credible interval
	Diag     Diagnostics `json:"diagnostics"`
}

// Thetas returns the theta draws of every chain concatenated in chain order.
func (e *BayesEstimate) Thetas() []float64 {
	var out []float64
	for _, c := range e.Chains {
		for _, s := range c {
			out = append(out, s.Theta)
		}
	}
	return out
}

// PriorSpec carries the species- and response-specific hyperparameters of
// the Bayesian model. ThetaA/ThetaB shape the Beta prior of the rescaled
// break-even value in (0,1); the Gamma priors constrain slope and residual
// standard deviation positive.
type PriorSpec struct {
	Name       string  `yaml:"name"`
	ThetaA     float64 `yaml:"thetaA"`
	ThetaB     float64 `yaml:"thetaB"`
	SlopeShape float64 `yaml:"slopeShape"`
	SlopeRate  float64 `yaml:"slopeRate"`
	SigmaShape float64 `yaml:"sigmaShape"`
	SigmaRate  float64 `yaml:"sigmaRate"`
}

// MetricsTracker receives instrumentation events from the estimators.
// Implementations must be safe for concurrent use.
type MetricsTracker interface {
	BootstrapResamplesAdd(n int)
	DegenerateResamplesInc()
	MCMCIterationsAdd(n int)
	MCMCAcceptanceObserve(rate float64)
	StageDurationObserve(stage string, d time.Duration)
}

// NopTracker discards all instrumentation events.
type NopTracker struct{}

func (NopTracker) BootstrapResamplesAdd(int)                  {}
func (NopTracker) DegenerateResamplesInc()                    {}
func (NopTracker) MCMCIterationsAdd(int)                      {}
func (NopTracker) MCMCAcceptanceObserve(float64)              {}
func (NopTracker) StageDurationObserve(string, time.Duration) {}

func orNop(t MetricsTracker) MetricsTracker {
	if t == nil {
		return NopTracker{}
	}
	return t
}
