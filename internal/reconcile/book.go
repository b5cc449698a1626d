package reconcile

import (
	"sort"

	"github.com/alanyoungcy/tradedesk/internal/domain"
	"github.com/alanyoungcy/tradedesk/internal/market"
	"github.com/alanyoungcy/tradedesk/internal/view"
)

// Integrity issues reported on a book view.
const (
	IssueCrossed        = "crossed_book"
	IssueUnorderedBids  = "unordered_bids"
	IssueUnorderedAsks  = "unordered_asks"
	IssueDuplicateBid   = "duplicate_bid_price"
	IssueDuplicateAsk   = "duplicate_ask_price"
	IssueNegativeVolume = "negative_quantity"
)

// Book replaces both sides wholesale and diffs levels by (side, price).
// A crossed book is flagged and kept as reported.
func (r *Reconciler) Book(prev *view.BookView, snap domain.BookSnapshot, c Cycle) *view.BookView {
	var issues []string
	bids := normalizeSide(snap.Bids, domain.BookSideBid, &issues)
	asks := normalizeSide(snap.Asks, domain.BookSideAsk, &issues)

	sum := market.Summarize(domain.BookSnapshot{Bids: bids, Asks: asks})
	norm := market.DepthNormalization(bids, asks)
	crossed := market.Crossed(sum.BestBid, sum.BestAsk)
	if crossed {
		issues = append(issues, IssueCrossed)
	}

	var prevMeta *view.Meta
	if prev != nil {
		prevMeta = &prev.Meta
	}

	v := &view.BookView{
		Meta:          nextMeta(prevMeta, view.FeedBook, c.Now),
		Levels:        c.BookLevels,
		Bids:          rows(bids, norm),
		Asks:          rows(asks, norm),
		BestBid:       sum.BestBid,
		BestAsk:       sum.BestAsk,
		Spread:        sum.Spread,
		SpreadBps:     market.SpreadBps(sum.BestBid, sum.BestAsk),
		MidPrice:      market.MidPrice(sum.BestBid, sum.BestAsk),
		Normalization: norm,
		Crossed:       crossed,
		Integrity:     issues,
	}
	v.Changes = diffBook(prev, bids, asks)
	v.Changes.ExpiresAt = r.expiry(c)
	return v
}

// normalizeSide returns the side in book order with one level per price.
// Out-of-order input is sorted and duplicate prices keep their first level;
// both are reported as issues.
func normalizeSide(levels []domain.BookLevel, side domain.BookSide, issues *[]string) []domain.BookLevel {
	better := func(a, b domain.BookLevel) bool {
		if side == domain.BookSideBid {
			return a.Price.GreaterThan(b.Price)
		}
		return a.Price.LessThan(b.Price)
	}

	out := make([]domain.BookLevel, 0, len(levels))
	seen := make(map[string]struct{}, len(levels))
	dup, negative := false, false
	for _, l := range levels {
		k := l.Price.String()
		if _, ok := seen[k]; ok {
			dup = true
			continue
		}
		seen[k] = struct{}{}
		if l.Quantity < 0 || l.OrderCount < 0 {
			negative = true
		}
		out = append(out, l)
	}

	if !sort.SliceIsSorted(out, func(i, j int) bool { return better(out[i], out[j]) }) {
		sort.SliceStable(out, func(i, j int) bool { return better(out[i], out[j]) })
		if side == domain.BookSideBid {
			*issues = append(*issues, IssueUnorderedBids)
		} else {
			*issues = append(*issues, IssueUnorderedAsks)
		}
	}
	if dup {
		if side == domain.BookSideBid {
			*issues = append(*issues, IssueDuplicateBid)
		} else {
			*issues = append(*issues, IssueDuplicateAsk)
		}
	}
	if negative {
		*issues = append(*issues, IssueNegativeVolume)
	}
	return out
}

func rows(levels []domain.BookLevel, norm int64) []view.LevelRow {
	out := make([]view.LevelRow, len(levels))
	for i, l := range levels {
		out[i] = view.LevelRow{BookLevel: l, Width: market.BarWidth(l.Quantity, norm)}
	}
	return out
}

func diffBook(prev *view.BookView, bids, asks []domain.BookLevel) view.ChangeSet[view.LevelKey, view.LevelChange] {
	var cs view.ChangeSet[view.LevelKey, view.LevelChange]

	before := make(map[view.LevelKey]domain.BookLevel)
	var order []view.LevelKey
	if prev != nil {
		for _, r := range prev.Bids {
			k := view.KeyOf(domain.BookSideBid, r.Price)
			before[k] = r.BookLevel
			order = append(order, k)
		}
		for _, r := range prev.Asks {
			k := view.KeyOf(domain.BookSideAsk, r.Price)
			before[k] = r.BookLevel
			order = append(order, k)
		}
	}

	after := make(map[view.LevelKey]struct{}, len(bids)+len(asks))
	visit := func(side domain.BookSide, levels []domain.BookLevel) {
		for _, l := range levels {
			k := view.KeyOf(side, l.Price)
			after[k] = struct{}{}
			old, ok := before[k]
			switch {
			case !ok:
				cs.Added = append(cs.Added, view.LevelChange{
					Side: side, Price: l.Price, Quantity: l.Quantity, OrderCount: l.OrderCount,
				})
			case old.Quantity != l.Quantity:
				cs.Updated = append(cs.Updated, view.LevelChange{
					Side: side, Price: l.Price, Quantity: l.Quantity,
					PreviousQuantity: old.Quantity, OrderCount: l.OrderCount,
				})
			}
		}
	}
	visit(domain.BookSideBid, bids)
	visit(domain.BookSideAsk, asks)

	for _, k := range order {
		if _, ok := after[k]; !ok {
			cs.Removed = append(cs.Removed, k)
		}
	}
	return cs
}
