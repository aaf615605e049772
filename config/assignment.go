package config

import (
	"fmt"

	"github.com/fleetops/dispatchd/core/assign"
)

// AssignmentConfig defines the clustering weight set and solver behavior.
type AssignmentConfig struct {
	Weights assign.Weights `json:"weights"`
	// Policy decides how a weight set that does not sum to 1.0 is handled:
	// "strict" rejects it, "normalize" rescales it with a warning.
	Policy string `json:"policy"`
	// DisableSolver forces the greedy path regardless of problem shape.
	DisableSolver bool `json:"disable_solver"`
}

// SetDefaults applies the production weight set.
func (c *AssignmentConfig) SetDefaults() {
	if c.Weights == (assign.Weights{}) {
		c.Weights = assign.DefaultWeights()
	}
	if c.Policy == "" {
		c.Policy = string(assign.PolicyNormalize)
	}
}

// Validate checks the policy name; the weight values themselves are
// validated by the assigner under that policy.
func (c AssignmentConfig) Validate() error {
	switch assign.WeightPolicy(c.Policy) {
	case assign.PolicyStrict, assign.PolicyNormalize:
		return nil
	default:
		return fmt.Errorf("unknown weight policy %q", c.Policy)
	}
}
