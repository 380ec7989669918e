package relstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlResearchPlans = `
CREATE TABLE IF NOT EXISTS research_plan (
    id                   TEXT         PRIMARY KEY,
    research_question_id TEXT        NOT NULL,
    question_text        TEXT        NOT NULL,
    iteration_count      INT         NOT NULL DEFAULT 0,
    has_converged        BOOLEAN     NOT NULL DEFAULT false,
    convergence_reason   TEXT        NOT NULL DEFAULT '',
    created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

const ddlHypotheses = `
CREATE TABLE IF NOT EXISTS hypotheses (
    id                    TEXT         PRIMARY KEY,
    research_plan_id      TEXT         NOT NULL REFERENCES research_plan (id),
    statement             TEXT         NOT NULL,
    rationale             TEXT         NOT NULL DEFAULT '',
    status                TEXT         NOT NULL DEFAULT 'proposed',
    confidence_score      DOUBLE PRECISION NOT NULL DEFAULT 0,
    generation            INT          NOT NULL DEFAULT 1,
    parent_hypothesis_id  TEXT         NOT NULL DEFAULT '',
    refinement_count      INT          NOT NULL DEFAULT 0,
    created_at            TIMESTAMPTZ  NOT NULL DEFAULT now(),
    updated_at            TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_hypotheses_plan ON hypotheses (research_plan_id);
`

const ddlProtocols = `
CREATE TABLE IF NOT EXISTS experiment_protocols (
    id             TEXT         PRIMARY KEY,
    hypothesis_id  TEXT         NOT NULL REFERENCES hypotheses (id),
    title          TEXT         NOT NULL DEFAULT '',
    steps          JSONB        NOT NULL DEFAULT '[]',
    metadata       JSONB        NOT NULL DEFAULT '{}',
    status         TEXT         NOT NULL DEFAULT 'designed',
    created_at     TIMESTAMPTZ  NOT NULL DEFAULT now(),
    updated_at     TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_protocols_hypothesis ON experiment_protocols (hypothesis_id);
`

const ddlResults = `
CREATE TABLE IF NOT EXISTS experiment_results (
    id                    TEXT         PRIMARY KEY,
    protocol_id           TEXT         NOT NULL REFERENCES experiment_protocols (id),
    hypothesis_id         TEXT         NOT NULL DEFAULT '',
    status                TEXT         NOT NULL,
    metrics               JSONB        NOT NULL DEFAULT '{}',
    figures               JSONB        NOT NULL DEFAULT '[]',
    stdout                TEXT         NOT NULL DEFAULT '',
    stderr                TEXT         NOT NULL DEFAULT '',
    supports_hypothesis   BOOLEAN,
    verdict_confidence    DOUBLE PRECISION,
    p_value               DOUBLE PRECISION,
    effect_size           DOUBLE PRECISION,
    created_at            TIMESTAMPTZ  NOT NULL DEFAULT now(),
    updated_at            TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_results_protocol ON experiment_results (protocol_id);
`

// Migrate creates every relstore table if it does not already exist. It is
// idempotent and safe to call on every process start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	statements := []string{ddlResearchPlans, ddlHypotheses, ddlProtocols, ddlResults}
	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("relstore migrate: %w", err)
		}
	}
	return nil
}
