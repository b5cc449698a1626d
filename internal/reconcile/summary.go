package reconcile

import (
	"sort"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/tradedesk/internal/domain"
	"github.com/alanyoungcy/tradedesk/internal/market"
	"github.com/alanyoungcy/tradedesk/internal/view"
)

type field struct {
	name  string
	value string
}

func nullStr(d decimal.NullDecimal) string {
	if !d.Valid {
		return "-"
	}
	return d.Decimal.String()
}

func intStr(n int64) string { return strconv.FormatInt(n, 10) }

// diffFields reports field names as added on first load and as updated when
// their rendered value moved.
func diffFields(prev, next []field) view.ChangeSet[string, string] {
	var cs view.ChangeSet[string, string]
	if prev == nil {
		for _, f := range next {
			cs.Added = append(cs.Added, f.name)
		}
		return cs
	}
	old := make(map[string]string, len(prev))
	for _, f := range prev {
		old[f.name] = f.value
	}
	for _, f := range next {
		if v, ok := old[f.name]; !ok || v != f.value {
			cs.Updated = append(cs.Updated, f.name)
		}
	}
	return cs
}

func marketFields(s domain.MarketSummary) []field {
	return []field{
		{"best_bid", nullStr(s.BestBid)},
		{"best_ask", nullStr(s.BestAsk)},
		{"spread", nullStr(s.Spread)},
		{"total_active_orders", intStr(s.TotalActiveOrders)},
		{"total_trades", intStr(s.TotalTrades)},
		{"total_volume", intStr(s.LastTradeStats.TotalVolume)},
		{"avg_price", s.LastTradeStats.AvgPrice.String()},
	}
}

func statisticsFields(s domain.Statistics) []field {
	return []field{
		{"bid_levels", intStr(s.Orderbook.BidLevels)},
		{"ask_levels", intStr(s.Orderbook.AskLevels)},
		{"bid_orders", intStr(s.Orderbook.BidOrders)},
		{"ask_orders", intStr(s.Orderbook.AskOrders)},
		{"total_orders", intStr(s.Orderbook.TotalOrders)},
		{"best_bid", nullStr(s.MarketData.BestBid)},
		{"best_ask", nullStr(s.MarketData.BestAsk)},
		{"spread", nullStr(s.MarketData.Spread)},
		{"total_trades", intStr(s.Trades.TotalTrades)},
		{"total_volume", intStr(s.Trades.TotalVolume)},
		{"total_value", s.Trades.TotalValue.String()},
		{"avg_price", s.Trades.AvgPrice.String()},
		{"min_price", s.Trades.MinPrice.String()},
		{"max_price", s.Trades.MaxPrice.String()},
	}
}

// Market publishes the aggregate market summary with a field-level
// change-set.
func (r *Reconciler) Market(prev *view.MarketView, summary domain.MarketSummary, c Cycle) *view.MarketView {
	var prevMeta *view.Meta
	var before []field
	if prev != nil && prev.Loaded {
		prevMeta = &prev.Meta
		before = marketFields(prev.Summary)
	}
	cs := diffFields(before, marketFields(summary))
	cs.ExpiresAt = r.expiry(c)
	return &view.MarketView{
		Meta:     nextMeta(prevMeta, view.FeedMarket, c.Now),
		Summary:  summary,
		MidPrice: market.MidPrice(summary.BestBid, summary.BestAsk),
		Changes:  cs,
	}
}

// Statistics publishes the nested engine statistics with a field-level
// change-set.
func (r *Reconciler) Statistics(prev *view.StatisticsView, stats domain.Statistics, c Cycle) *view.StatisticsView {
	var prevMeta *view.Meta
	var before []field
	if prev != nil && prev.Loaded {
		prevMeta = &prev.Meta
		before = statisticsFields(prev.Statistics)
	}
	cs := diffFields(before, statisticsFields(stats))
	cs.ExpiresAt = r.expiry(c)
	return &view.StatisticsView{
		Meta:       nextMeta(prevMeta, view.FeedStatistics, c.Now),
		Statistics: stats,
		Changes:    cs,
	}
}

// Status publishes the subscription state. Added and Removed carry symbols
// entering and leaving the active set.
func (r *Reconciler) Status(prev *view.StatusView, state domain.SubscriptionState, c Cycle) *view.StatusView {
	var prevMeta *view.Meta
	before := map[string]struct{}{}
	var order []string
	if prev != nil {
		prevMeta = &prev.Meta
		for _, s := range prev.ActiveSymbols {
			before[s] = struct{}{}
			order = append(order, s)
		}
	}

	active := append([]string(nil), state.ActiveSymbols...)
	sort.Strings(active)
	state.ActiveSymbols = active

	var cs view.ChangeSet[string, string]
	after := make(map[string]struct{}, len(active))
	for _, s := range active {
		after[s] = struct{}{}
		if _, ok := before[s]; !ok {
			cs.Added = append(cs.Added, s)
		}
	}
	for _, s := range order {
		if _, ok := after[s]; !ok {
			cs.Removed = append(cs.Removed, s)
		}
	}
	if prev != nil && prev.Connected != state.Connected {
		cs.Updated = append(cs.Updated, "connected")
	}
	cs.ExpiresAt = r.expiry(c)

	return &view.StatusView{
		Meta:              nextMeta(prevMeta, view.FeedStatus, c.Now),
		SubscriptionState: state,
		Changes:           cs,
	}
}
