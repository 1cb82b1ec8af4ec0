// Package allocation plans how a requested stock quantity is split across
// warehouses in priority order.
//
// Planning is a pure computation over a balance snapshot: it never writes
// movements itself. The posting engine runs the planner inside the posting
// transaction and records the resulting movements atomically.
package allocation

import (
	"tally/internal/core/apperror"
	"tally/internal/core/id"
	"tally/internal/core/types"
)

// Line is one planned allocation: take Quantity from WarehouseID.
type Line struct {
	WarehouseID id.ID          `json:"warehouseId"`
	Quantity    types.Quantity `json:"quantity"`
}

// Plan is a complete split of a requested quantity across warehouses.
type Plan struct {
	Requested types.Quantity `json:"requested"`
	Lines     []Line         `json:"lines"`
}

// BalanceFunc reports the current balance of a warehouse from the snapshot
// the planner runs against.
type BalanceFunc func(warehouseID id.ID) types.Quantity

// Split plans how to take requested units from warehouses visited in the
// given priority order.
//
// Each warehouse except the last contributes min(remaining, max(balance, 0)).
// Whatever remains after all earlier warehouses is assigned to the LAST
// warehouse in the order regardless of its balance, which may drive that
// warehouse negative. Stock is never refused for insufficient balance; a
// negative balance is a signal for operators, not an error.
//
// Fails with PLANNING_FAILURE when the order is empty and with a validation
// error when requested is not positive.
func Split(requested types.Quantity, order []id.ID, balanceOf BalanceFunc) (Plan, error) {
	if !requested.IsPositive() {
		return Plan{}, apperror.NewValidation("requested quantity must be positive").
			WithDetail("requested", requested.String())
	}
	if len(order) == 0 {
		return Plan{}, apperror.NewPlanningFailure("no warehouses available for allocation")
	}

	plan := Plan{Requested: requested}
	remaining := requested

	for i, wh := range order {
		last := i == len(order)-1

		if last {
			// The last warehouse absorbs everything left, balance or not.
			if remaining.IsPositive() {
				plan.Lines = append(plan.Lines, Line{WarehouseID: wh, Quantity: remaining})
				remaining = 0
			}
			break
		}

		available := balanceOf(wh)
		if !available.IsPositive() {
			continue
		}

		take := remaining.Min(available)
		plan.Lines = append(plan.Lines, Line{WarehouseID: wh, Quantity: take})
		remaining -= take
		if remaining.IsZero() {
			break
		}
	}

	return plan, nil
}

// Total sums the planned lines. Always equals Requested for a plan returned
// by Split.
func (p Plan) Total() types.Quantity {
	var total types.Quantity
	for _, l := range p.Lines {
		total += l.Quantity
	}
	return total
}
