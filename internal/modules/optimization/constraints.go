package optimization

import "fmt"

// Constraints holds the box bounds and risk aversion for a solve. The
// same bounds apply to every asset.
type Constraints struct {
	MinAllocation float64 `json:"min_allocation"`
	MaxAllocation float64 `json:"max_allocation"`
	RiskAversion  float64 `json:"risk_aversion"`
}

// Validate checks that a fully invested portfolio of n assets can
// exist inside the bounds.
func (c Constraints) Validate(n int) error {
	if n == 0 {
		return fmt.Errorf("no assets to allocate")
	}
	if c.MinAllocation > c.MaxAllocation {
		return fmt.Errorf("minimum allocation %.4f exceeds maximum %.4f", c.MinAllocation, c.MaxAllocation)
	}
	if c.MinAllocation < 0 {
		return fmt.Errorf("minimum allocation must be non-negative, got %.4f", c.MinAllocation)
	}
	if c.RiskAversion < 0 {
		return fmt.Errorf("risk aversion must be non-negative, got %.4f", c.RiskAversion)
	}
	if c.MinAllocation*float64(n) > 1.0 {
		return fmt.Errorf("minimum allocation %.4f infeasible for %d assets: floor exceeds full investment", c.MinAllocation, n)
	}
	if c.MaxAllocation*float64(n) < 1.0 {
		return fmt.Errorf("maximum allocation %.4f infeasible for %d assets: caps cannot reach full investment", c.MaxAllocation, n)
	}
	return nil
}
