package nodes

import (
	"context"

	"github.com/sasya-arogya/engine/pkg/models"
)

// The vendor nodes are optional extensions wired into the routing table
// without a canonical vendor schema. No vendor tool backs them: the query
// node asks whether to show vendors, and the show-vendors and order-booking
// nodes tell the user the feature is not available and complete.

// VendorQueryNode asks whether the user wants to see local suppliers for the
// prescribed treatments.
type VendorQueryNode struct{}

// NewVendorQueryNode creates the vendor-query node.
func NewVendorQueryNode() *VendorQueryNode {
	return &VendorQueryNode{}
}

func (n *VendorQueryNode) Name() string { return models.NodeVendorQuery }

func (n *VendorQueryNode) Execute(_ context.Context, state *models.SessionState) error {
	state.UpdateNode(n.Name())
	state.AddMessage(models.RoleAssistant,
		"🛒 Would you like me to show local vendors for these treatments? (yes/no)")
	state.RequiresUserInput = true
	state.NextAction = "await_user_input"
	return nil
}

// ShowVendorsNode would list vendor options for the prescribed treatments.
type ShowVendorsNode struct{}

// NewShowVendorsNode creates the show-vendors node.
func NewShowVendorsNode() *ShowVendorsNode {
	return &ShowVendorsNode{}
}

func (n *ShowVendorsNode) Name() string { return models.NodeShowVendors }

func (n *ShowVendorsNode) Execute(_ context.Context, state *models.SessionState) error {
	state.UpdateNode(n.Name())
	state.AddMessage(models.RoleAssistant,
		"🛒 Vendor lookup is not available yet. You can find the recommended "+
			"treatments at your local agricultural supply store.")
	state.NextAction = "complete"
	return nil
}

// OrderBookingNode would place an order with the selected vendor.
type OrderBookingNode struct{}

// NewOrderBookingNode creates the order-booking node.
func NewOrderBookingNode() *OrderBookingNode {
	return &OrderBookingNode{}
}

func (n *OrderBookingNode) Name() string { return models.NodeOrderBooking }

func (n *OrderBookingNode) Execute(_ context.Context, state *models.SessionState) error {
	state.UpdateNode(n.Name())
	state.AddMessage(models.RoleAssistant,
		"🛒 Order booking is not available yet. Please contact the vendor directly.")
	state.NextAction = "complete"
	return nil
}
