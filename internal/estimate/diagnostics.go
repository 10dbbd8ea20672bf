package estimate

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// Diagnostic thresholds. R-hat above rHatThreshold or an effective sample
// size below essThreshold marks the corresponding parameter as suspect.
const (
	rHatThreshold = 1.01
	essThreshold  = 400
)

// Diagnostics summarizes MCMC convergence checks. Warnings is empty when
// every parameter passes; a populated Warnings list is advisory, not fatal.
type Diagnostics struct {
	RHatTheta  float64  `json:"rhatTheta"`
	RHatBeta1  float64  `json:"rhatBeta1"`
	RHatSigma  float64  `json:"rhatSigma"`
	ESSTheta   float64  `json:"essTheta"`
	ESSBeta1   float64  `json:"essBeta1"`
	ESSSigma   float64  `json:"essSigma"`
	Acceptance float64  `json:"acceptance"`
	Warnings   []string `json:"warnings,omitempty"`
}

// Converged reports whether all diagnostics passed their thresholds.
func (d Diagnostics) Converged() bool { return len(d.Warnings) == 0 }

func diagnose(chains []Chain, acceptance float64) Diagnostics {
	theta := extract(chains, func(s PosteriorSample) float64 { return s.Theta })
	beta1 := extract(chains, func(s PosteriorSample) float64 { return s.Beta1 })
	sigma := extract(chains, func(s PosteriorSample) float64 { return s.Sigma })

	d := Diagnostics{
		RHatTheta:  splitRHat(theta),
		RHatBeta1:  splitRHat(beta1),
		RHatSigma:  splitRHat(sigma),
		ESSTheta:   effectiveSampleSize(theta),
		ESSBeta1:   effectiveSampleSize(beta1),
		ESSSigma:   effectiveSampleSize(sigma),
		Acceptance: acceptance,
	}

	check := func(name string, rhat, ess float64) {
		if rhat > rHatThreshold {
			d.Warnings = append(d.Warnings, fmt.Sprintf("%s: split R-hat %.4f above %.2f", name, rhat, rHatThreshold))
		}
		if ess < essThreshold {
			d.Warnings = append(d.Warnings, fmt.Sprintf("%s: effective sample size %.0f below %d", name, ess, essThreshold))
		}
	}
	check("theta", d.RHatTheta, d.ESSTheta)
	check("beta1", d.RHatBeta1, d.ESSBeta1)
	check("sigma", d.RHatSigma, d.ESSSigma)
	return d
}

func extract(chains []Chain, f func(PosteriorSample) float64) [][]float64 {
	out := make([][]float64, len(chains))
	for i, c := range chains {
		vals := make([]float64, len(c))
		for j, s := range c {
			vals[j] = f(s)
		}
		out[i] = vals
	}
	return out
}

// splitHalves doubles the chain count by splitting every chain in half,
// which lets R-hat catch within-chain drift as well as between-chain
// disagreement.
func splitHalves(chains [][]float64) [][]float64 {
	var out [][]float64
	for _, c := range chains {
		n := len(c) / 2
		if n < 2 {
			continue
		}
		out = append(out, c[:n], c[len(c)-n:])
	}
	return out
}

// splitRHat is the potential scale reduction factor computed over
// split-in-half chains. Values near 1 indicate the chains agree; 1 is
// returned for degenerate inputs with no variance.
func splitRHat(chains [][]float64) float64 {
	seqs := splitHalves(chains)
	if len(seqs) < 2 {
		return math.NaN()
	}
	n := float64(len(seqs[0]))

	means := make([]float64, len(seqs))
	vars := make([]float64, len(seqs))
	for i, s := range seqs {
		means[i] = stat.Mean(s, nil)
		vars[i] = stat.Variance(s, nil)
	}

	w := stat.Mean(vars, nil)
	b := n * stat.Variance(means, nil)
	if w == 0 {
		return 1
	}
	varPlus := (n-1)/n*w + b/n
	return math.Sqrt(varPlus / w)
}

// effectiveSampleSize estimates the number of independent draws the
// autocorrelated chains are worth, using the variogram estimator with
// Geyer's initial-positive-sequence truncation.
func effectiveSampleSize(chains [][]float64) float64 {
	seqs := splitHalves(chains)
	if len(seqs) < 2 {
		return math.NaN()
	}
	m := len(seqs)
	n := len(seqs[0])

	means := make([]float64, m)
	vars := make([]float64, m)
	for i, s := range seqs {
		means[i] = stat.Mean(s, nil)
		vars[i] = stat.Variance(s, nil)
	}
	w := stat.Mean(vars, nil)
	b := float64(n) * stat.Variance(means, nil)
	varPlus := (float64(n)-1)/float64(n)*w + b/float64(n)
	if varPlus == 0 {
		return float64(m * n)
	}

	rho := make([]float64, n)
	rho[0] = 1
	maxLag := 1
	for t := 1; t < n; t++ {
		vg := 0.0
		for _, s := range seqs {
			for i := t; i < n; i++ {
				d := s[i] - s[i-t]
				vg += d * d
			}
		}
		vg /= float64(m * (n - t))
		rho[t] = 1 - vg/(2*varPlus)
		maxLag = t

		// Stop at the first non-positive pair of consecutive lags.
		if t >= 2 && t%2 == 0 && rho[t-1]+rho[t] <= 0 {
			maxLag = t - 2
			break
		}
	}

	sum := 0.0
	for t := 1; t <= maxLag; t++ {
		sum += rho[t]
	}
	ess := float64(m*n) / (1 + 2*sum)
	if ess > float64(m*n) {
		ess = float64(m * n)
	}
	if ess < 0 {
		ess = 0
	}
	return ess
}
