package estimate

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"nbalance/internal/regress"
)

func TestDeltaMethod_KnownFit(t *testing.T) {
	t.Parallel()

	// theta = 60, g = (-1, -60), Var = 1*4 + 3600*0.01 = 40.
	fit := &regress.LinearFit{
		Beta0: -60,
		Beta1: 1,
		Cov:   mat.NewSymDense(2, []float64{4, 0, 0, 0.01}),
		N:     30,
	}

	est, err := DeltaMethod(fit, 0.05, nil)
	if err != nil {
		t.Fatalf("DeltaMethod returned error: %v", err)
	}

	if est.Theta != 60 {
		t.Errorf("theta = %g, want 60", est.Theta)
	}
	wantSE := math.Sqrt(40)
	if math.Abs(est.SE-wantSE) > 1e-12 {
		t.Errorf("SE = %g, want %g", est.SE, wantSE)
	}

	// z for 95% two-sided.
	const z = 1.9599639845400545
	if math.Abs(est.Interval.Lower-(60-z*wantSE)) > 1e-9 {
		t.Errorf("lower = %g, want %g", est.Interval.Lower, 60-z*wantSE)
	}
	if math.Abs(est.Interval.Upper-(60+z*wantSE)) > 1e-9 {
		t.Errorf("upper = %g, want %g", est.Interval.Upper, 60+z*wantSE)
	}
}

func TestDeltaMethod_OffDiagonalCovariance(t *testing.T) {
	t.Parallel()

	fit := &regress.LinearFit{
		Beta0: -100,
		Beta1: 2,
		Cov:   mat.NewSymDense(2, []float64{9, -0.6, -0.6, 0.04}),
		N:     25,
	}

	est, err := DeltaMethod(fit, 0.05, nil)
	if err != nil {
		t.Fatalf("DeltaMethod returned error: %v", err)
	}

	// g = (-1/2, 25); Var = 0.25*9 + 2*(-0.5)(25)(-0.6) + 625*0.04 = 42.25.
	wantSE := math.Sqrt(0.25*9 + 2*(-0.5)*25*(-0.6) + 625*0.04)
	if math.Abs(est.SE-wantSE) > 1e-12 {
		t.Errorf("SE = %g, want %g", est.SE, wantSE)
	}
}

func TestDeltaMethod_IntervalShrinksWithN(t *testing.T) {
	t.Parallel()

	width := func(n int) float64 {
		obs := synthObs(n, 60, 2, 10, 7)
		fit, err := regress.Fit(obs)
		if err != nil {
			t.Fatalf("Fit(n=%d) returned error: %v", n, err)
		}
		est, err := DeltaMethod(fit, 0.05, nil)
		if err != nil {
			t.Fatalf("DeltaMethod(n=%d) returned error: %v", n, err)
		}
		return est.Interval.Upper - est.Interval.Lower
	}

	w1 := width(200)
	w2 := width(3200)

	// 16x the data should shrink the interval by about 4x.
	ratio := w1 / w2
	if ratio < 2.5 || ratio > 6.5 {
		t.Errorf("width ratio %g outside the 1/sqrt(N) regime (w1=%g, w2=%g)", ratio, w1, w2)
	}
}

func TestDeltaMethod_AlphaHandling(t *testing.T) {
	t.Parallel()

	fit := &regress.LinearFit{
		Beta0: -60,
		Beta1: 1,
		Cov:   mat.NewSymDense(2, []float64{1, 0, 0, 0.01}),
		N:     20,
	}

	// Zero alpha falls back to the default.
	est, err := DeltaMethod(fit, 0, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if est.Alpha != DefaultAlpha {
		t.Errorf("alpha = %g, want default %g", est.Alpha, DefaultAlpha)
	}

	// A wider alpha gives a narrower interval.
	wide, err := DeltaMethod(fit, 0.05, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	narrow, err := DeltaMethod(fit, 0.2, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if narrow.Interval.Upper-narrow.Interval.Lower >= wide.Interval.Upper-wide.Interval.Lower {
		t.Error("alpha=0.2 interval should be narrower than alpha=0.05")
	}

	if _, err := DeltaMethod(fit, 1.5, nil); err == nil {
		t.Error("expected error for alpha outside (0,1)")
	}
}

func TestDeltaMethod_ZeroSlope(t *testing.T) {
	t.Parallel()

	fit := &regress.LinearFit{
		Beta0: 5,
		Beta1: 0,
		Cov:   mat.NewSymDense(2, []float64{1, 0, 0, 1}),
		N:     10,
	}
	if _, err := DeltaMethod(fit, 0.05, nil); err == nil {
		t.Error("expected error for zero slope")
	}
}
