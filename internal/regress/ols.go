// Package regress fits the simple linear model balance = b0 + b1*ndfa by
// ordinary least squares and derives the break-even Ndfa value from the
// fitted coefficients.
package regress

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"nbalance/internal/dataset"
)

// Minimum spread of the predictor before the design matrix is treated as
// singular.
const minPredictorSpread = 1e-10

// LinearFit holds the OLS coefficient estimates for one balance column,
// their covariance under homoscedastic Gaussian errors, and the residual
// variance.
type LinearFit struct {
	Beta0  float64      // intercept
	Beta1  float64      // slope per Ndfa percentage point
	Cov    *mat.SymDense // 2x2 covariance of (Beta0, Beta1)
	Sigma2 float64      // residual variance, RSS/(N-2)
	N      int
}

// DegenerateInputError reports input that cannot support the two-parameter
// fit: too few observations or a predictor column without spread.
type DegenerateInputError struct {
	Reason string
	N      int
}

func (e *DegenerateInputError) Error() string {
	return fmt.Sprintf("degenerate input for regression (n=%d): %s", e.N, e.Reason)
}

// Fit computes the OLS estimate b = (X'X)^-1 X'y with an intercept column
// and the coefficient covariance sigma2*(X'X)^-1.
func Fit(obs dataset.ObservationSet) (*LinearFit, error) {
	n := len(obs)
	if n < 3 {
		return nil, &DegenerateInputError{Reason: "need at least 3 observations", N: n}
	}

	x, y := obs.Split()

	// All-identical predictors make X'X exactly singular; catch them before
	// handing gonum a matrix it may invert to garbage under roundoff.
	if predictorSpread(x) < minPredictorSpread {
		return nil, &DegenerateInputError{Reason: "predictor column has no spread", N: n}
	}

	X := mat.NewDense(n, 2, nil)
	yv := mat.NewVecDense(n, y)
	for i := 0; i < n; i++ {
		X.Set(i, 0, 1)
		X.Set(i, 1, x[i])
	}

	var xtx mat.Dense
	xtx.Mul(X.T(), X)

	var xtxInv mat.Dense
	if err := xtxInv.Inverse(&xtx); err != nil {
		return nil, &DegenerateInputError{Reason: fmt.Sprintf("singular design matrix: %v", err), N: n}
	}

	var xty mat.VecDense
	xty.MulVec(X.T(), yv)

	var beta mat.VecDense
	beta.MulVec(&xtxInv, &xty)

	var fitted mat.VecDense
	fitted.MulVec(X, &beta)

	rss := 0.0
	for i := 0; i < n; i++ {
		r := y[i] - fitted.AtVec(i)
		rss += r * r
	}
	sigma2 := rss / float64(n-2)

	cov := mat.NewSymDense(2, []float64{
		sigma2 * xtxInv.At(0, 0), sigma2 * xtxInv.At(0, 1),
		sigma2 * xtxInv.At(1, 0), sigma2 * xtxInv.At(1, 1),
	})

	return &LinearFit{
		Beta0:  beta.AtVec(0),
		Beta1:  beta.AtVec(1),
		Cov:    cov,
		Sigma2: sigma2,
		N:      n,
	}, nil
}

// StdErr returns the standard errors of the intercept and slope.
func (f *LinearFit) StdErr() (se0, se1 float64) {
	return math.Sqrt(f.Cov.At(0, 0)), math.Sqrt(f.Cov.At(1, 1))
}

func predictorSpread(x []float64) float64 {
	lo, hi := x[0], x[0]
	for _, v := range x[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return hi - lo
}
