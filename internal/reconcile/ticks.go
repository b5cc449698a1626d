package reconcile

import (
	"sort"

	"github.com/alanyoungcy/tradedesk/internal/domain"
	"github.com/alanyoungcy/tradedesk/internal/view"
)

// Ticks keeps the most recent K ticks of the window, oldest first. Ticks are
// identified by (symbol, timestamp, kind); repeats within the window and
// ticks already shown are not reported as added.
func (r *Reconciler) Ticks(prev *view.TickView, window []domain.Tick, c Cycle) *view.TickView {
	seen := make(map[domain.TickKey]struct{}, len(window))
	kept := make([]domain.Tick, 0, len(window))
	for _, t := range window {
		k := t.Key()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		kept = append(kept, t)
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Timestamp.Before(kept[j].Timestamp)
	})
	if len(kept) > r.cfg.TickWindow {
		kept = kept[len(kept)-r.cfg.TickWindow:]
	}

	var prevMeta *view.Meta
	before := make(map[domain.TickKey]struct{})
	var order []domain.TickKey
	if prev != nil {
		prevMeta = &prev.Meta
		for _, t := range prev.Ticks {
			k := t.Key()
			before[k] = struct{}{}
			order = append(order, k)
		}
	}

	var cs view.ChangeSet[domain.TickKey, domain.Tick]
	after := make(map[domain.TickKey]struct{}, len(kept))
	for _, t := range kept {
		k := t.Key()
		after[k] = struct{}{}
		if _, ok := before[k]; !ok {
			cs.Added = append(cs.Added, t)
		}
	}
	for _, k := range order {
		if _, ok := after[k]; !ok {
			cs.Removed = append(cs.Removed, k)
		}
	}
	cs.ExpiresAt = r.expiry(c)

	return &view.TickView{
		Meta:    nextMeta(prevMeta, view.FeedTicks, c.Now),
		Window:  r.cfg.TickWindow,
		Ticks:   kept,
		Changes: cs,
	}
}
