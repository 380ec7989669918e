package director

import (
	"fmt"

	"github.com/kosmos-research/kosmos/pkg/relstore"
)

// Decision is the convergence detector's verdict for the iteration just
// completed (§4.7 "the detector ... emits a should_converge decision with a
// reason string").
type Decision struct {
	ShouldConverge bool
	Reason         string
}

// ConvergencePolicy inspects the hypotheses produced so far and the current
// iteration count and decides whether the research loop should stop.
type ConvergencePolicy interface {
	Evaluate(hypotheses []relstore.Hypothesis, iteration int) Decision
}

// DefaultConvergencePolicy converges when the proportion of supported
// hypotheses reaches SupportRatio, or when MaxIterations is reached,
// whichever comes first.
type DefaultConvergencePolicy struct {
	// SupportRatio is the minimum fraction (0.0-1.0) of hypotheses in
	// HypothesisSupported status that triggers convergence. A zero value
	// disables this check.
	SupportRatio float64

	// MaxIterations is the hard iteration cap. A zero value disables this
	// check (not recommended outside tests).
	MaxIterations int
}

// Evaluate implements [ConvergencePolicy].
func (p DefaultConvergencePolicy) Evaluate(hypotheses []relstore.Hypothesis, iteration int) Decision {
	if p.MaxIterations > 0 && iteration >= p.MaxIterations {
		return Decision{ShouldConverge: true, Reason: "max_iterations_reached"}
	}

	if p.SupportRatio > 0 && len(hypotheses) > 0 {
		supported := 0
		for _, h := range hypotheses {
			if h.Status == relstore.HypothesisSupported {
				supported++
			}
		}
		ratio := float64(supported) / float64(len(hypotheses))
		if ratio >= p.SupportRatio {
			return Decision{
				ShouldConverge: true,
				Reason:         fmt.Sprintf("support_ratio_reached:%.2f", ratio),
			}
		}
	}

	return Decision{ShouldConverge: false}
}
