// Package bus implements the agent message bus (§4.6): the sole channel
// through which the research director and its five specialist agents
// communicate. Every message carries a type, sender, recipient, correlation
// id, and a structured content payload; the director registers one handler
// per (from_agent, response_type) pair and the bus dispatches incoming
// messages to it, preserving FIFO order per sender.
//
// Grounded on the concurrent, channel-owning style of
// internal/engine/cascade.Engine (per-instance mutex plus owned channels and
// a done channel for shutdown) and internal/mcp.Host's registration/dispatch
// interface shape, generalized from a single engine's transcript stream to a
// many-sender, many-handler message bus.
package bus

import (
	"context"
	"time"
)

// Message is the unit of communication between agents and the director.
// Content is a structured mapping rather than a concrete type because each
// agent kind carries a different payload shape (§4.1's agents are not named
// further by spec.md beyond their message traffic).
type Message struct {
	// Type names the message kind, e.g. "hypotheses_generated",
	// "experiment_designed", "execution_result", "analysis_complete",
	// "refinement_complete".
	Type string

	// Sender is the agent identifier that produced this message, e.g.
	// "HypothesisGeneratorAgent".
	Sender string

	// Recipient is the agent identifier the message is addressed to.
	// Currently always the director, but kept explicit so a future
	// multi-recipient topology does not require a wire-format change.
	Recipient string

	// CorrelationID ties a message to the research cycle (or sub-step) it
	// belongs to. Cancellation (see [Bus.Cancel]) and failure deduplication
	// key off this field.
	CorrelationID string

	// Content is the structured payload. Handlers type-assert the values
	// they expect by convention with the sender for a given Type.
	Content map[string]any

	// SentAt records when the message was enqueued, for FIFO diagnostics and
	// ordering assertions in tests.
	SentAt time.Time
}

// Handler processes one [Message]. A non-nil error causes the bus to log the
// failure and, per §4.7's failure semantics, the caller (the director) is
// responsible for deciding whether the error is fatal to the current cycle.
type Handler func(ctx context.Context, msg Message) error

// handlerKey is the (from_agent, response_type) pair a [Handler] is
// registered against (§4.6).
type handlerKey struct {
	fromAgent    string
	responseType string
}
