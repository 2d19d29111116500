package reduce

import (
	"log"
	"math"
	"math/cmplx"
)

// Bisection defaults
const (
	DefaultMaxIter   = 50
	DefaultTolerance = 1e-3 // Ω
	MaxElectrotonic  = 10.0
)

// Search is the outcome of a bisection
type Search struct {
	X          float64
	Residual   float64 // ||goal| - |model(X)|| in Ω
	Iterations int
	Converged  bool
}

// Bisect finds x in [lo, hi] where |model(x)| matches |goal|, assuming
// |model| decreases monotonically in x. It never fails: when the budget of
// maxIter halvings runs out before the residual drops to tol, the last
// estimate is returned and a message is logged.
func Bisect(goal complex128, lo, hi float64, model func(float64) complex128, maxIter int, tol float64, logger *log.Logger) Search {
	target := cmplx.Abs(goal)
	cur := (lo + hi) / 2
	var residual float64

	for i := 0; i < maxIter; i++ {
		z := cmplx.Abs(model(cur))
		residual = math.Abs(target - z)
		if residual <= tol {
			return Search{X: cur, Residual: residual, Iterations: i + 1, Converged: true}
		}
		if target > z {
			cur, hi = (lo+cur)/2, cur
		} else {
			cur, lo = (hi+cur)/2, cur
		}
	}

	if logger != nil {
		logger.Printf("bisection did not converge after %d iterations: x=%g residual=%g", maxIter, cur, residual)
	}
	return Search{X: cur, Residual: residual, Iterations: maxIter}
}
