// Package optimization solves the constrained mean-variance
// allocation problem.
package optimization

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// penaltyWeight enforces the full-investment constraint. The sum
// residual it leaves behind is removed by normalizeWithBounds.
const penaltyWeight = 1000.0

// DivergenceError reports a solve that ran but did not converge.
type DivergenceError struct {
	Status optimize.Status
}

func (e *DivergenceError) Error() string {
	return fmt.Sprintf("optimization did not converge: status=%v", e.Status)
}

// MVOptimizer maximizes μ'w - λ/2·w'Σw subject to Σw = 1 and per-asset
// box bounds, via a quadratic penalty on the sum constraint and
// projection onto the bounds.
type MVOptimizer struct {
	log zerolog.Logger
}

// NewMVOptimizer creates a new mean-variance optimizer.
func NewMVOptimizer(log zerolog.Logger) *MVOptimizer {
	return &MVOptimizer{
		log: log.With().Str("module", "optimization").Logger(),
	}
}

// Optimize solves for portfolio weights. expectedReturns must contain
// every ticker; covMatrix rows and columns follow the tickers order.
// The returned map contains every input ticker, including those driven
// to their floor.
func (mvo *MVOptimizer) Optimize(
	expectedReturns map[string]float64,
	covMatrix [][]float64,
	tickers []string,
	cons Constraints,
) (map[string]float64, error) {
	n := len(tickers)
	if err := cons.Validate(n); err != nil {
		return nil, err
	}

	if len(covMatrix) != n {
		return nil, fmt.Errorf("covariance matrix size %d doesn't match ticker count %d", len(covMatrix), n)
	}
	for i := range covMatrix {
		if len(covMatrix[i]) != n {
			return nil, fmt.Errorf("covariance matrix row %d has size %d, expected %d", i, len(covMatrix[i]), n)
		}
	}

	mu := make([]float64, n)
	for i, ticker := range tickers {
		ret, ok := expectedReturns[ticker]
		if !ok {
			return nil, fmt.Errorf("missing expected return for %s", ticker)
		}
		mu[i] = ret
	}

	sigma := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			sigma.Set(i, j, covMatrix[i][j])
		}
	}

	lambda := cons.RiskAversion

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			xProj := projectToBounds(x, cons.MinAllocation, cons.MaxAllocation)

			var portfolioReturn float64
			for i := 0; i < n; i++ {
				portfolioReturn += mu[i] * xProj[i]
			}

			var portfolioVariance float64
			for i := 0; i < n; i++ {
				for j := 0; j < n; j++ {
					portfolioVariance += xProj[i] * xProj[j] * sigma.At(i, j)
				}
			}

			obj := -(portfolioReturn - 0.5*lambda*portfolioVariance)

			sum := 0.0
			for i := 0; i < n; i++ {
				sum += xProj[i]
			}
			obj += penaltyWeight * (sum - 1.0) * (sum - 1.0)

			return obj
		},
		Grad: func(grad, x []float64) {
			xProj := projectToBounds(x, cons.MinAllocation, cons.MaxAllocation)

			for i := 0; i < n; i++ {
				grad[i] = -mu[i]
				for j := 0; j < n; j++ {
					grad[i] += lambda * sigma.At(i, j) * xProj[j]
				}
			}

			sum := 0.0
			for i := 0; i < n; i++ {
				sum += xProj[i]
			}
			for i := 0; i < n; i++ {
				grad[i] += 2 * penaltyWeight * (sum - 1.0)
			}
		},
	}

	// Equal weights are always feasible given Validate passed.
	initial := make([]float64, n)
	for i := range initial {
		initial[i] = 1.0 / float64(n)
	}

	successStatuses := map[optimize.Status]bool{
		optimize.Success:             true,
		optimize.GradientThreshold:   true,
		optimize.FunctionConvergence: true,
	}

	result, err := optimize.Minimize(problem, initial, &optimize.Settings{}, &optimize.BFGS{})
	if err != nil || !successStatuses[result.Status] {
		mvo.log.Debug().Err(err).Msg("BFGS solve did not converge, retrying with Nelder-Mead")
		result, err = optimize.Minimize(problem, initial, &optimize.Settings{}, &optimize.NelderMead{})
		if err != nil {
			return nil, fmt.Errorf("optimization failed: %w", err)
		}
		if !successStatuses[result.Status] {
			return nil, &DivergenceError{Status: result.Status}
		}
	}

	xFinal := normalizeWithBounds(
		projectToBounds(result.X, cons.MinAllocation, cons.MaxAllocation),
		cons.MinAllocation, cons.MaxAllocation,
	)

	weights := make(map[string]float64, n)
	for i, ticker := range tickers {
		weights[ticker] = xFinal[i]
	}

	mvo.log.Info().
		Int("assets", n).
		Float64("risk_aversion", lambda).
		Msg("Solved portfolio allocation")

	return weights, nil
}

// projectToBounds clamps each weight into [min, max].
func projectToBounds(x []float64, min, max float64) []float64 {
	proj := make([]float64, len(x))
	for i := range x {
		proj[i] = math.Max(min, math.Min(max, x[i]))
	}
	return proj
}

// normalizeWithBounds redistributes the sum residual so the weights
// total exactly 1 while staying inside [min, max]. The residual goes to
// assets with headroom in the needed direction, proportionally to that
// headroom. Feasibility is guaranteed by Constraints.Validate.
func normalizeWithBounds(x []float64, min, max float64) []float64 {
	out := make([]float64, len(x))
	copy(out, x)

	for iter := 0; iter < len(out)+1; iter++ {
		sum := 0.0
		for _, w := range out {
			sum += w
		}
		residual := 1.0 - sum
		if math.Abs(residual) < 1e-12 {
			break
		}

		headroom := 0.0
		for _, w := range out {
			if residual > 0 {
				headroom += max - w
			} else {
				headroom += w - min
			}
		}
		if headroom <= 0 {
			break
		}

		for i, w := range out {
			var room float64
			if residual > 0 {
				room = max - w
			} else {
				room = w - min
			}
			out[i] = math.Max(min, math.Min(max, w+residual*room/headroom))
		}
	}

	return out
}
