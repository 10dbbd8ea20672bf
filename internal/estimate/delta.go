package estimate

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"nbalance/internal/regress"
)

// DefaultAlpha is the default two-sided miscoverage level (95% intervals).
const DefaultAlpha = 0.05

// DeltaMethod propagates the coefficient covariance through the ratio
// theta = -b0/b1 via a first-order Taylor expansion: with gradient
// g = (-1/b1, b0/b1^2), Var(theta) ~ g' Cov g, and a normal interval
// theta +/- z_{1-alpha/2} * SE.
//
// The approximation is a local linearization, exact only asymptotically.
// For small samples or a slope near zero the reported interval can be badly
// calibrated; compare against the bootstrap and posterior intervals before
// trusting it.
func DeltaMethod(fit *regress.LinearFit, alpha float64, tracker MetricsTracker) (*DeltaEstimate, error) {
	tracker = orNop(tracker)
	start := time.Now()
	defer func() { tracker.StageDurationObserve("delta", time.Since(start)) }()

	if alpha <= 0 || alpha >= 1 {
		if alpha == 0 {
			alpha = DefaultAlpha
		} else {
			return nil, fmt.Errorf("alpha must be in (0,1), got %g", alpha)
		}
	}

	theta, err := fit.BreakEven()
	if err != nil {
		return nil, err
	}

	g := mat.NewVecDense(2, []float64{
		-1 / fit.Beta1,
		fit.Beta0 / (fit.Beta1 * fit.Beta1),
	})

	var covG mat.VecDense
	covG.MulVec(fit.Cov, g)
	variance := mat.Dot(g, &covG)
	if variance < 0 {
		// Roundoff can push a PSD quadratic form epsilon-negative.
		variance = 0
	}
	se := math.Sqrt(variance)

	z := distuv.Normal{Mu: 0, Sigma: 1}.Quantile(1 - alpha/2)

	return &DeltaEstimate{
		Theta: theta,
		SE:    se,
		Alpha: alpha,
		Interval: Interval{
			Lower: theta - z*se,
			Upper: theta + z*se,
		},
	}, nil
}
