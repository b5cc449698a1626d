package reconcile

import (
	"github.com/alanyoungcy/tradedesk/internal/domain"
	"github.com/alanyoungcy/tradedesk/internal/view"
)

// Orders publishes the tracker's snapshot keyed by order handle. An order is
// updated when its status, engine id or fill counts move.
func (r *Reconciler) Orders(prev *view.OrdersView, orders []domain.Order, c Cycle) *view.OrdersView {
	var prevMeta *view.Meta
	before := make(map[string]domain.Order)
	var order []string
	if prev != nil {
		prevMeta = &prev.Meta
		for _, o := range prev.Orders {
			before[o.Handle] = o
			order = append(order, o.Handle)
		}
	}

	var cs view.ChangeSet[string, domain.Order]
	after := make(map[string]struct{}, len(orders))
	for _, o := range orders {
		after[o.Handle] = struct{}{}
		old, ok := before[o.Handle]
		switch {
		case !ok:
			cs.Added = append(cs.Added, o)
		case old.Status != o.Status || old.ID != o.ID ||
			old.FilledQuantity != o.FilledQuantity || old.RemainingQuantity != o.RemainingQuantity:
			cs.Updated = append(cs.Updated, o)
		}
	}
	for _, h := range order {
		if _, ok := after[h]; !ok {
			cs.Removed = append(cs.Removed, h)
		}
	}
	cs.ExpiresAt = r.expiry(c)

	return &view.OrdersView{
		Meta:    nextMeta(prevMeta, view.FeedOrders, c.Now),
		Orders:  append([]domain.Order(nil), orders...),
		Changes: cs,
	}
}
