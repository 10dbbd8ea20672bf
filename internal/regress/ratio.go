package regress

import (
	"fmt"
	"math"
)

// SlopeTolerance is the magnitude below which a slope is treated as zero.
// A horizontal balance line never crosses zero, so the break-even value is
// undefined there rather than infinite.
const SlopeTolerance = 1e-12

// ZeroSlopeError reports an undefined break-even value caused by a
// numerically zero slope. Callers must distinguish this from a merely large
// result.
type ZeroSlopeError struct {
	Slope float64
}

func (e *ZeroSlopeError) Error() string {
	return fmt.Sprintf("break-even Ndfa undefined: slope %g is numerically zero", e.Slope)
}

// Theta returns the x-intercept -b0/b1 of the fitted balance line, the Ndfa
// value at which the expected balance crosses zero.
func Theta(b0, b1 float64) (float64, error) {
	if math.Abs(b1) < SlopeTolerance {
		return 0, &ZeroSlopeError{Slope: b1}
	}
	return -b0 / b1, nil
}

// BreakEven is Theta applied to a fit's coefficients.
func (f *LinearFit) BreakEven() (float64, error) {
	return Theta(f.Beta0, f.Beta1)
}
