package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/lotuscatalog/curator/internal/orders"
	"github.com/lotuscatalog/curator/pkg/logging"
)

type orderStore interface {
	GetOrder(ctx context.Context, id string) (*orders.Order, error)
	UpdateOrder(ctx context.Context, id string, params orders.UpdateParams) (*orders.Order, error)
	SearchOrders(ctx context.Context, status, q string, limit int) ([]orders.Order, error)
}

type orderTools struct {
	orders orderStore
	logger logging.Logger
}

// RegisterOrderTools registers the donation-order tools.
func RegisterOrderTools(reg *Registry, store orderStore, logger logging.Logger) {
	ot := &orderTools{orders: store, logger: logger}

	reg.Register(&Tool{
		Name:        "get_order",
		Description: "Fetch one donation order by id.",
		Cacheable:   true,
		Schema: objectSchema(map[string]*jsonschema.Schema{
			"order_id": stringProp("Order id"),
		}, "order_id"),
		Execute: ot.getOrder,
	})
	reg.Register(&Tool{
		Name:        "update_order",
		Description: "Update a donation order's status, tracking number or notes. Requires explicit user confirmation.",
		Mutating:    true,
		Schema: objectSchema(map[string]*jsonschema.Schema{
			"order_id":         stringProp("Order id"),
			"status":           enumProp("New order status", []string{orders.StatusPending, orders.StatusProcessing, orders.StatusShipped, orders.StatusCompleted, orders.StatusCancelled}),
			"tracking_number":  stringProp("Shipping tracking number"),
			"admin_notes":      stringProp("Internal notes on the order"),
			"override_monthly": boolProp("Allow this order past the monthly request limit"),
			"confirmed":        confirmedProp(),
		}, "order_id"),
		Execute: ot.updateOrder,
	})
	reg.Register(&Tool{
		Name:        "search_orders",
		Description: "Search donation orders by status and free text over id, recipient and tracking number.",
		Cacheable:   true,
		Schema: objectSchema(map[string]*jsonschema.Schema{
			"status": enumProp("Restrict to one status", []string{orders.StatusPending, orders.StatusProcessing, orders.StatusShipped, orders.StatusCompleted, orders.StatusCancelled}),
			"q":      stringProp("Substring matched against id, recipient name and tracking number"),
			"limit":  intProp("Maximum results; defaults to 50"),
		}),
		Execute: ot.searchOrders,
	})
}

func (t *orderTools) getOrder(ctx context.Context, args map[string]interface{}) Result {
	orderID := stringArg(args, "order_id")

	order, err := t.orders.GetOrder(ctx, orderID)
	if errors.Is(err, orders.ErrNotFound) {
		return Failure(CodeNotFound, fmt.Sprintf("No order with id %s.", orderID), orderID)
	}
	if err != nil {
		return Failure(CodeDatabaseError, "Could not load the order.", err.Error())
	}
	return Success(fmt.Sprintf("Order %s is %s.", order.ID, order.Status), map[string]interface{}{"order": order})
}

func (t *orderTools) updateOrder(ctx context.Context, args map[string]interface{}) Result {
	orderID := stringArg(args, "order_id")

	params := orders.UpdateParams{
		Status:          stringPtrArg(args, "status"),
		TrackingNumber:  stringPtrArg(args, "tracking_number"),
		AdminNotes:      stringPtrArg(args, "admin_notes"),
		OverrideMonthly: boolPtrArg(args, "override_monthly"),
	}

	order, err := t.orders.UpdateOrder(ctx, orderID, params)
	if errors.Is(err, orders.ErrNotFound) {
		return Failure(CodeNotFound, fmt.Sprintf("No order with id %s.", orderID), orderID)
	}
	if err != nil {
		return Failure(CodeDatabaseError, "Could not update the order.", err.Error())
	}
	return Success(fmt.Sprintf("Order %s updated; status is %s.", order.ID, order.Status),
		map[string]interface{}{"order": order})
}

func (t *orderTools) searchOrders(ctx context.Context, args map[string]interface{}) Result {
	limit := 0
	if n, ok := intArg(args, "limit"); ok {
		limit = n
	}

	found, err := t.orders.SearchOrders(ctx, stringArg(args, "status"), stringArg(args, "q"), limit)
	if err != nil {
		return Failure(CodeDatabaseError, "Order search failed.", err.Error())
	}
	if found == nil {
		found = []orders.Order{}
	}
	return Success(fmt.Sprintf("Found %d matching orders.", len(found)), map[string]interface{}{
		"found":  len(found) > 0,
		"count":  len(found),
		"orders": found,
	})
}
