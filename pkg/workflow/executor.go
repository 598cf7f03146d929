package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/sasya-arogya/engine/pkg/models"
	"github.com/sasya-arogya/engine/pkg/observability"
	"github.com/sasya-arogya/engine/pkg/workflow/nodes"
)

// Executor wraps node execution with tracing spans, metrics and error
// translation. A node failure, panic included, never propagates: it becomes
// set_error plus next_action="error" on the state.
type Executor struct {
	registry    map[string]nodes.Node
	tracer      trace.Tracer
	instruments *observability.Instruments
}

// NewExecutor creates the traced executor over a node registry.
func NewExecutor(registry map[string]nodes.Node, instruments *observability.Instruments) *Executor {
	return &Executor{
		registry:    registry,
		tracer:      observability.Tracer(),
		instruments: instruments,
	}
}

// Execute runs the named node against the state.
func (e *Executor) Execute(ctx context.Context, nodeName string, state *models.SessionState) {
	node, ok := e.registry[nodeName]
	if !ok {
		state.SetError(fmt.Sprintf("no handler registered for node %s", nodeName))
		state.NextAction = "error"
		return
	}

	previousNode := state.CurrentNode
	messagesBefore := len(state.Messages)
	hadClassification := state.ClassificationResults != nil
	hadPrescription := state.PrescriptionData != nil
	hasImage := state.Transient != nil && state.Transient.UserImage != ""

	spanCtx, span := e.tracer.Start(ctx, "workflow.node."+nodeName,
		trace.WithAttributes(
			attribute.String("node.name", nodeName),
			attribute.String("session.id", shortID(state.SessionID)),
			attribute.String("node.previous", previousNode),
			attribute.Bool("node.state.has_image", hasImage),
			attribute.Int("node.input.message_length", len(state.UserMessage)),
			attribute.Int("node.state.context_keys", len(state.UserContext)),
		))
	defer span.End()

	start := time.Now()
	status := "success"

	func() {
		defer func() {
			if r := recover(); r != nil {
				status = "error"
				slog.Error("Panic in node execution",
					"node", nodeName, "session_id", state.SessionID, "panic", r)
				state.SetError(fmt.Sprintf("Error in %s node: %v", nodeName, r))
				state.NextAction = "error"
			}
		}()
		if err := node.Execute(spanCtx, state); err != nil {
			status = "error"
			slog.Error("Node execution failed",
				"node", nodeName, "session_id", state.SessionID, "error", err)
			state.SetError(fmt.Sprintf("Error in %s node: %v", nodeName, err))
			state.NextAction = "error"
		}
	}()

	duration := time.Since(start)

	classificationChanged := (state.ClassificationResults != nil) != hadClassification
	prescriptionChanged := (state.PrescriptionData != nil) != hadPrescription
	toolsUsed := 0
	if classificationChanged {
		toolsUsed++
	}
	if prescriptionChanged {
		toolsUsed++
	}
	if state.InsuranceOperationCompleted && nodeName == models.NodeInsurance {
		toolsUsed++
	}

	span.SetAttributes(
		attribute.Int("node.output.message_count", len(state.Messages)-messagesBefore),
		attribute.Bool("node.output.has_classification", state.ClassificationResults != nil),
		attribute.Bool("node.output.has_prescription", state.PrescriptionData != nil),
		attribute.Int("node.tools.estimated_used", toolsUsed),
		attribute.String("node.next_action", state.NextAction),
	)
	if status == "error" {
		span.SetStatus(codes.Error, state.ErrorMessage)
	}

	attrs := metric.WithAttributes(
		attribute.String("node", nodeName),
		attribute.String("status", status),
	)
	if e.instruments != nil {
		if e.instruments.NodeExecutions != nil {
			e.instruments.NodeExecutions.Add(ctx, 1, attrs)
		}
		if e.instruments.NodeDuration != nil {
			e.instruments.NodeDuration.Record(ctx, duration.Seconds(), attrs)
		}
		if status == "error" && e.instruments.NodeErrors != nil {
			e.instruments.NodeErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("node", nodeName)))
		}
	}
}

// shortID truncates a session id for span attributes.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
