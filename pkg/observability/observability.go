// Package observability holds the engine's OpenTelemetry handles. The engine
// uses the process-global tracer and meter providers; unless the embedding
// process installs an SDK, every instrument here is a no-op.
package observability

import (
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const scopeName = "github.com/sasya-arogya/engine"

// Tracer returns the engine's tracer.
func Tracer() trace.Tracer {
	return otel.Tracer(scopeName)
}

// Instruments bundles the counters and histograms recorded around node
// execution and tool calls.
type Instruments struct {
	NodeExecutions  metric.Int64Counter
	NodeDuration    metric.Float64Histogram
	NodeErrors      metric.Int64Counter
	NodeTransitions metric.Int64Counter
	ToolCalls       metric.Int64Counter
	ToolDuration    metric.Float64Histogram
	TurnsTotal      metric.Int64Counter
}

// NewInstruments creates the instrument set from the global meter provider.
// Creation failures are logged and leave the corresponding instrument nil;
// record sites must tolerate that.
func NewInstruments() *Instruments {
	meter := otel.Meter(scopeName)
	inst := &Instruments{}
	var err error

	if inst.NodeExecutions, err = meter.Int64Counter("workflow.node.executions",
		metric.WithDescription("Node executions by node name and status")); err != nil {
		slog.Warn("Failed to create node execution counter", "error", err)
	}
	if inst.NodeDuration, err = meter.Float64Histogram("workflow.node.duration",
		metric.WithDescription("Node execution duration"), metric.WithUnit("s")); err != nil {
		slog.Warn("Failed to create node duration histogram", "error", err)
	}
	if inst.NodeErrors, err = meter.Int64Counter("workflow.node.errors",
		metric.WithDescription("Node executions that ended in the error path")); err != nil {
		slog.Warn("Failed to create node error counter", "error", err)
	}
	if inst.NodeTransitions, err = meter.Int64Counter("workflow.node.transitions",
		metric.WithDescription("Edges taken between workflow nodes")); err != nil {
		slog.Warn("Failed to create node transition counter", "error", err)
	}
	if inst.ToolCalls, err = meter.Int64Counter("workflow.tool.calls",
		metric.WithDescription("Tool invocations by tool name and outcome")); err != nil {
		slog.Warn("Failed to create tool call counter", "error", err)
	}
	if inst.ToolDuration, err = meter.Float64Histogram("workflow.tool.duration",
		metric.WithDescription("Tool call duration"), metric.WithUnit("s")); err != nil {
		slog.Warn("Failed to create tool duration histogram", "error", err)
	}
	if inst.TurnsTotal, err = meter.Int64Counter("workflow.turns",
		metric.WithDescription("User turns processed")); err != nil {
		slog.Warn("Failed to create turn counter", "error", err)
	}
	return inst
}
