package director

import (
	"context"

	"github.com/kosmos-research/kosmos/pkg/relstore"
	"github.com/kosmos-research/kosmos/pkg/sandbox"
)

// Agent name constants, used as the graph entity's created_by and the
// provenance "agent" property of the edges the director writes (§4.1, §8's
// scenario 3). The relstore rows carry no creator field.
const (
	AgentHypothesisGenerator = "HypothesisGeneratorAgent"
	AgentExperimentDesigner  = "ExperimentDesignerAgent"
	AgentSandboxExecutor     = "SandboxExecutorAgent"
	AgentDataAnalyst         = "DataAnalystAgent"
	AgentHypothesisRefiner   = "HypothesisRefinerAgent"
)

// HypothesisGenerator proposes new hypotheses for the current research
// question. Returned hypotheses carry Generation == 1 and no parent id.
type HypothesisGenerator interface {
	Generate(ctx context.Context, questionText string, iteration int) ([]relstore.Hypothesis, error)
}

// ExperimentDesigner turns one hypothesis into a runnable protocol.
type ExperimentDesigner interface {
	Design(ctx context.Context, h relstore.Hypothesis) (relstore.ExperimentProtocol, sandbox.Plan, error)
}

// DataAnalyst interprets a sandbox result against its hypothesis and
// produces the verdict fields the director folds into the SUPPORTS/REFUTES
// edge (§4.7's table, §8's scenario 5).
type DataAnalyst interface {
	Analyze(ctx context.Context, h relstore.Hypothesis, result relstore.ExperimentResult) (relstore.ExperimentResult, error)
}

// HypothesisRefiner produces a next-generation hypothesis from a parent that
// was refuted or left inconclusive.
type HypothesisRefiner interface {
	Refine(ctx context.Context, parent relstore.Hypothesis) (relstore.Hypothesis, error)
}
