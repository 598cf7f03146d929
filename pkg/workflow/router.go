// Package workflow holds the state graph, the routing layer, the traced node
// executor and the engine that drives one user turn through the graph.
package workflow

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/sasya-arogya/engine/pkg/models"
)

// rule is one outbound edge: an expr condition over the routing environment
// and the target node when it holds. Rules evaluate in order; the first
// match wins.
type rule struct {
	when    string
	target  string
	program *vm.Program
}

// nodeRoutes is a node's ordered rule list plus its fallback target.
type nodeRoutes struct {
	rules    []rule
	fallback string
}

// Router selects the next node from the post-node state. The routing table
// is data-driven: conditions read next_action, selected_vendor and
// free-text confirmations in user_message.
type Router struct {
	routes map[string]nodeRoutes
}

// routingTable is the authoritative edge list of the graph.
var routingTable = map[string]struct {
	rules    [][2]string // condition, target
	fallback string
}{
	models.NodeInitial: {
		rules: [][2]string{
			{`next_action == "classify"`, models.NodeClassifying},
			{`next_action == "insurance"`, models.NodeInsurance},
			{`next_action == "completed"`, models.NodeCompleted},
			{`next_action == "error"`, models.NodeError},
		},
		fallback: models.NodeFollowup,
	},
	models.NodeClassifying: {
		rules: [][2]string{
			{`next_action == "prescribe"`, models.NodePrescribing},
			{`next_action == "completed"`, models.NodeCompleted},
			{`next_action == "retry"`, models.NodeClassifying},
			{`next_action == "error"`, models.NodeError},
		},
		fallback: models.NodeFollowup,
	},
	models.NodePrescribing: {
		rules: [][2]string{
			{`next_action == "vendor_query"`, models.NodeVendorQuery},
			{`next_action == "complete"`, models.NodeCompleted},
			{`next_action == "retry"`, models.NodePrescribing},
			{`next_action == "classify"`, models.NodeClassifying},
			{`next_action == "error"`, models.NodeError},
		},
		fallback: models.NodeFollowup,
	},
	models.NodeVendorQuery: {
		rules: [][2]string{
			{`containsAny(user_message, ["yes", "sure", "okay", "show", "vendors"])`, models.NodeShowVendors},
			{`containsAny(user_message, ["no", "skip", "later", "not now"])`, models.NodeCompleted},
			{`next_action == "error"`, models.NodeError},
		},
		fallback: models.NodeFollowup,
	},
	models.NodeShowVendors: {
		rules: [][2]string{
			{`next_action == "await_vendor_selection"`, models.NodeFollowup},
			{`next_action == "order" && selected_vendor != ""`, models.NodeOrderBooking},
			{`next_action == "error"`, models.NodeError},
		},
		fallback: models.NodeCompleted,
	},
	models.NodeOrderBooking: {
		rules: [][2]string{
			{`next_action == "await_final_input"`, models.NodeFollowup},
			{`next_action == "error"`, models.NodeError},
		},
		fallback: models.NodeCompleted,
	},
	models.NodeInsurance: {
		rules: [][2]string{
			{`next_action == "prescribing"`, models.NodePrescribing},
			{`next_action == "vendor_query"`, models.NodeVendorQuery},
			{`next_action == "completed"`, models.NodeCompleted},
			{`next_action == "error"`, models.NodeError},
		},
		fallback: models.NodeFollowup,
	},
	models.NodeFollowup: {
		rules: [][2]string{
			{`next_action == "restart"`, models.NodeInitial},
			{`next_action == "classify"`, models.NodeClassifying},
			{`next_action == "prescribe"`, models.NodePrescribing},
			{`next_action == "show_vendors"`, models.NodeShowVendors},
			{`next_action == "insurance"`, models.NodeInsurance},
			{`next_action == "session_end"`, models.NodeSessionEnd},
			{`next_action == "error"`, models.NodeError},
		},
		fallback: models.NodeCompleted,
	},
}

// NewRouter compiles the routing table.
func NewRouter() (*Router, error) {
	router := &Router{routes: make(map[string]nodeRoutes, len(routingTable))}
	for node, entry := range routingTable {
		routes := nodeRoutes{fallback: entry.fallback}
		for _, pair := range entry.rules {
			program, err := expr.Compile(pair[0], expr.AsBool())
			if err != nil {
				return nil, fmt.Errorf("failed to compile routing condition %q for node %s: %w", pair[0], node, err)
			}
			routes.rules = append(routes.rules, rule{when: pair[0], target: pair[1], program: program})
		}
		router.routes[node] = routes
	}
	return router, nil
}

// Route evaluates the source node's rules against the state and returns the
// target node.
func (r *Router) Route(node string, state *models.SessionState) (string, error) {
	routes, ok := r.routes[node]
	if !ok {
		return "", fmt.Errorf("no routes defined for node %q", node)
	}

	env := routingEnv(state)
	for _, rl := range routes.rules {
		matched, err := expr.Run(rl.program, env)
		if err != nil {
			return "", fmt.Errorf("failed to evaluate routing condition %q for node %s: %w", rl.when, node, err)
		}
		if matched.(bool) {
			return rl.target, nil
		}
	}
	return routes.fallback, nil
}

// IsTerminal reports whether the node ends the turn. The completed node ends
// the workflow execution while the session stays active; session_end and
// error are the graph's terminals proper.
func IsTerminal(node string) bool {
	switch node {
	case models.NodeCompleted, models.NodeSessionEnd, models.NodeError:
		return true
	}
	return false
}

// routingEnv builds the expr evaluation environment from the state.
func routingEnv(state *models.SessionState) map[string]any {
	return map[string]any{
		"next_action":     state.NextAction,
		"user_message":    strings.ToLower(state.UserMessage),
		"selected_vendor": state.SelectedVendor,
		"previous_node":   state.PreviousNode,
		"containsAny": func(s string, words []any) bool {
			for _, w := range words {
				if strings.Contains(s, fmt.Sprint(w)) {
					return true
				}
			}
			return false
		},
	}
}
