// Package nodes implements the per-state handlers of the workflow graph.
//
// Every node is a function of session state: it records itself as the
// current node, mutates typed state, sets next_action for the routing layer
// and may direct the streaming layer through the response metadata fields.
// Nodes never see transport concerns; tools return typed results or tagged
// errors.
package nodes

import (
	"context"

	"github.com/sasya-arogya/engine/pkg/intent"
	"github.com/sasya-arogya/engine/pkg/models"
	"github.com/sasya-arogya/engine/pkg/tools"
)

// Node is the contract every workflow state handler implements.
//
// Execute returns an error only for unrecoverable internal failures; the
// executor translates those into the error path. Expected tool failures are
// handled inside the node (retry, fallback or set_error + next_action).
type Node interface {
	Name() string
	Execute(ctx context.Context, state *models.SessionState) error
}

// Classifier is the classification tool surface consumed by nodes.
type Classifier interface {
	Call(ctx context.Context, req tools.ClassificationRequest) (*models.Classification, *tools.Error)
}

// Prescriber is the prescription tool surface consumed by nodes.
type Prescriber interface {
	Call(ctx context.Context, req tools.PrescriptionRequest) (*models.Prescription, *tools.Error)
	Fallback(req tools.PrescriptionRequest) *models.Prescription
}

// Insurer is the insurance tool surface consumed by nodes.
type Insurer interface {
	Call(ctx context.Context, action models.InsuranceAction, ic *models.InsuranceContext, sessionID string) (*models.InsuranceResult, *tools.Error)
}

// ContextExtractor is the context-extraction tool surface consumed by nodes.
type ContextExtractor interface {
	Call(ctx context.Context, userMessage string) *tools.ExtractedContext
}

// OverlayProvider is the attention-overlay tool surface consumed by nodes.
type OverlayProvider interface {
	Call(state *models.SessionState, req tools.AttentionOverlayRequest) (*tools.AttentionOverlayResult, *tools.Error)
}

// Deps carries the shared collaborators injected into every node.
type Deps struct {
	Classifier       Classifier
	Prescriber       Prescriber
	Insurer          Insurer
	ContextExtractor ContextExtractor
	Overlay          OverlayProvider
	Intent           *intent.Analyzer
	MaxRetries       int
}

// Registry returns the full node set keyed by node name.
func Registry(deps Deps) map[string]Node {
	all := []Node{
		NewInitialNode(deps),
		NewClassifyingNode(deps),
		NewPrescribingNode(deps),
		NewInsuranceNode(deps),
		NewFollowupNode(deps),
		NewVendorQueryNode(),
		NewShowVendorsNode(),
		NewOrderBookingNode(),
		NewCompletedNode(deps),
		NewSessionEndNode(),
		NewErrorNode(),
	}
	registry := make(map[string]Node, len(all))
	for _, n := range all {
		registry[n.Name()] = n
	}
	return registry
}
