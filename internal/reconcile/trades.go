package reconcile

import (
	"sort"

	"github.com/alanyoungcy/tradedesk/internal/domain"
	"github.com/alanyoungcy/tradedesk/internal/view"
)

// Trades merges the snapshot into the retained trade set, keyed by trade id.
// The set never holds more than the configured retention; the lowest ids are
// evicted first. Once the set is full, trades older than its oldest member
// are ignored so an evicted trade is never reported as added again.
func (r *Reconciler) Trades(prev *view.TradeView, snapshot []domain.Trade, c Cycle) *view.TradeView {
	limit := r.cfg.TradeRetention

	var prevMeta *view.Meta
	var retained []domain.Trade
	if prev != nil {
		prevMeta = &prev.Meta
		retained = prev.Trades
	}

	have := make(map[int64]struct{}, len(retained))
	for _, t := range retained {
		have[t.ID] = struct{}{}
	}
	full := len(retained) >= limit
	var floor int64
	if full && len(retained) > 0 {
		floor = retained[0].ID
	}

	var fresh []domain.Trade
	for _, t := range snapshot {
		if _, ok := have[t.ID]; ok {
			continue
		}
		if full && t.ID < floor {
			continue
		}
		have[t.ID] = struct{}{}
		fresh = append(fresh, t)
	}

	merged := make([]domain.Trade, 0, len(retained)+len(fresh))
	merged = append(merged, retained...)
	merged = append(merged, fresh...)
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].ID < merged[j].ID })
	if len(merged) > limit {
		merged = merged[len(merged)-limit:]
	}

	kept := make(map[int64]struct{}, len(merged))
	for _, t := range merged {
		kept[t.ID] = struct{}{}
	}

	var cs view.ChangeSet[int64, domain.Trade]
	sort.SliceStable(fresh, func(i, j int) bool { return fresh[i].ID < fresh[j].ID })
	for _, t := range fresh {
		if _, ok := kept[t.ID]; ok {
			cs.Added = append(cs.Added, t)
		}
	}
	for _, t := range retained {
		if _, ok := kept[t.ID]; !ok {
			cs.Removed = append(cs.Removed, t.ID)
		}
	}
	cs.ExpiresAt = r.expiry(c)

	return &view.TradeView{
		Meta:      nextMeta(prevMeta, view.FeedTrades, c.Now),
		Retention: limit,
		Trades:    merged,
		Changes:   cs,
	}
}
