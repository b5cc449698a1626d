// Package subscription tracks which symbols the engine streams for this
// client and reconciles local intent with the engine's reported list.
package subscription

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/alanyoungcy/tradedesk/internal/domain"
)

// DefaultFailureThreshold is the number of consecutive status failures after
// which the connection is considered lost.
const DefaultFailureThreshold = 3

// Subscriber issues the engine subscribe call.
type Subscriber interface {
	Subscribe(ctx context.Context, req domain.SubscribeRequest) error
}

// Transition records one phase change made during reconciliation.
type Transition struct {
	Symbol string
	From   domain.SubscriptionPhase
	To     domain.SubscriptionPhase
}

type entry struct {
	sub    domain.SymbolSubscription
	missed int
}

// Manager owns the per-symbol state machine. The mutex is held only for
// synchronous transitions, never across the engine call.
type Manager struct {
	client    Subscriber
	threshold int
	logger    *slog.Logger

	mu         sync.Mutex
	symbols    map[string]*entry
	suppressed map[string]struct{}
	connected  bool
	failures   int
}

// NewManager creates a Manager. A non-positive threshold uses
// DefaultFailureThreshold.
func NewManager(client Subscriber, threshold int, logger *slog.Logger) *Manager {
	if threshold <= 0 {
		threshold = DefaultFailureThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		client:     client,
		threshold:  threshold,
		logger:     logger.With(slog.String("component", "subscriptions")),
		symbols:    make(map[string]*entry),
		suppressed: make(map[string]struct{}),
	}
}

func normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// Subscribe asks the engine to stream symbol. The symbol is PendingSubscribe
// while the request is in flight, Subscribed on success and Unsubscribed on
// failure with the engine's reason kept on the entry.
func (m *Manager) Subscribe(ctx context.Context, symbol string, streams domain.Streams) (domain.SymbolSubscription, error) {
	symbol = normalize(symbol)
	if symbol == "" {
		return domain.SymbolSubscription{}, domain.InvalidRequestf("symbol is required")
	}
	if !streams.Any() {
		return domain.SymbolSubscription{}, domain.InvalidRequestf("at least one of trades, quotes or bars must be selected")
	}

	m.mu.Lock()
	e, ok := m.symbols[symbol]
	if !ok {
		e = &entry{sub: domain.SymbolSubscription{Symbol: symbol, Phase: domain.PhaseUnsubscribed}}
		m.symbols[symbol] = e
	}
	switch e.sub.Phase {
	case domain.PhasePendingSubscribe:
		m.mu.Unlock()
		return domain.SymbolSubscription{}, domain.InvalidRequestf("subscription to %s already in flight", symbol)
	case domain.PhaseSubscribed:
		if e.sub.Streams == streams {
			sub := e.sub
			m.mu.Unlock()
			return sub, nil
		}
	}
	e.sub.Phase = domain.PhasePendingSubscribe
	e.sub.Reason = ""
	delete(m.suppressed, symbol)
	m.mu.Unlock()

	err := m.client.Subscribe(ctx, domain.SubscribeRequest{
		Symbol: symbol,
		Trades: streams.Trades,
		Quotes: streams.Quotes,
		Bars:   streams.Bars,
	})

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		e.sub.Phase = domain.PhaseUnsubscribed
		e.sub.Reason = domain.BackendReason(err)
		e.missed = 0
		m.logger.WarnContext(ctx, "subscriptions: subscribe failed",
			slog.String("symbol", symbol),
			slog.String("reason", e.sub.Reason),
		)
		return e.sub, fmt.Errorf("subscription: subscribe %s: %w", symbol, err)
	}
	e.sub.Phase = domain.PhaseSubscribed
	e.sub.Streams = streams
	e.sub.Adopted = false
	e.missed = 0
	m.logger.InfoContext(ctx, "subscriptions: subscribed", slog.String("symbol", symbol))
	return e.sub, nil
}

// Unsubscribe marks a Subscribed symbol PendingUnsubscribe. The engine has no
// unsubscribe call, so the symbol settles to Unsubscribed at the next
// reconciliation and is not re-adopted while the engine still reports it.
func (m *Manager) Unsubscribe(symbol string) (domain.SymbolSubscription, error) {
	symbol = normalize(symbol)
	if symbol == "" {
		return domain.SymbolSubscription{}, domain.InvalidRequestf("symbol is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.symbols[symbol]
	if !ok {
		return domain.SymbolSubscription{}, fmt.Errorf("subscription: unsubscribe %s: %w", symbol, domain.ErrNotFound)
	}
	switch e.sub.Phase {
	case domain.PhasePendingSubscribe:
		return e.sub, domain.InvalidRequestf("subscription to %s still in flight", symbol)
	case domain.PhaseSubscribed:
		e.sub.Phase = domain.PhasePendingUnsubscribe
		m.suppressed[symbol] = struct{}{}
	}
	return e.sub, nil
}

// Reconcile applies a successful status report and returns the resulting
// state together with every phase change it made.
func (m *Manager) Reconcile(report domain.ConnectionStatus) (domain.SubscriptionState, []Transition) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.failures = 0
	m.connected = report.Connected

	reported := make(map[string]struct{}, len(report.SubscribedSymbols))
	for _, s := range report.SubscribedSymbols {
		if s = normalize(s); s != "" {
			reported[s] = struct{}{}
		}
	}
	for s := range m.suppressed {
		if _, ok := reported[s]; !ok {
			delete(m.suppressed, s)
		}
	}

	var changes []Transition
	move := func(e *entry, to domain.SubscriptionPhase) {
		changes = append(changes, Transition{Symbol: e.sub.Symbol, From: e.sub.Phase, To: to})
		e.sub.Phase = to
	}

	for sym, e := range m.symbols {
		_, active := reported[sym]
		_, suppressed := m.suppressed[sym]
		switch e.sub.Phase {
		case domain.PhasePendingUnsubscribe:
			move(e, domain.PhaseUnsubscribed)
			e.missed = 0
		case domain.PhaseSubscribed:
			if active {
				e.missed = 0
				continue
			}
			e.missed++
			if e.missed > 1 {
				move(e, domain.PhaseUnsubscribed)
				e.sub.Reason = "no longer reported by engine"
				e.missed = 0
			}
		case domain.PhaseUnsubscribed:
			if active && !suppressed {
				move(e, domain.PhaseSubscribed)
				e.sub.Adopted = true
				e.sub.Reason = ""
			}
		}
	}

	for sym := range reported {
		if _, tracked := m.symbols[sym]; tracked {
			continue
		}
		if _, suppressed := m.suppressed[sym]; suppressed {
			continue
		}
		m.symbols[sym] = &entry{sub: domain.SymbolSubscription{
			Symbol:  sym,
			Phase:   domain.PhaseSubscribed,
			Adopted: true,
		}}
		changes = append(changes, Transition{Symbol: sym, From: domain.PhaseUnsubscribed, To: domain.PhaseSubscribed})
	}

	sort.Slice(changes, func(i, j int) bool { return changes[i].Symbol < changes[j].Symbol })
	for _, c := range changes {
		m.logger.Info("subscriptions: phase changed",
			slog.String("symbol", c.Symbol),
			slog.String("from", string(c.From)),
			slog.String("to", string(c.To)),
		)
	}
	return m.snapshotLocked(), changes
}

// RecordFailure counts a failed status poll. Once the threshold of
// consecutive failures is reached the connection is reported lost.
func (m *Manager) RecordFailure(err error) domain.SubscriptionState {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.failures++
	if m.failures >= m.threshold && m.connected {
		m.connected = false
		m.logger.Warn("subscriptions: connection considered lost",
			slog.Int("consecutive_failures", m.failures),
			slog.Any("error", err),
		)
	}
	return m.snapshotLocked()
}

// Connected reports the current connection flag.
func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// State returns the local state of one symbol.
func (m *Manager) State(symbol string) (domain.SymbolSubscription, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.symbols[normalize(symbol)]
	if !ok {
		return domain.SymbolSubscription{}, false
	}
	return e.sub, true
}

// Snapshot returns a copy of the whole subscription state.
func (m *Manager) Snapshot() domain.SubscriptionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() domain.SubscriptionState {
	st := domain.SubscriptionState{
		Connected:     m.connected,
		ActiveSymbols: []string{},
		Symbols:       make([]domain.SymbolSubscription, 0, len(m.symbols)),
	}
	for sym, e := range m.symbols {
		st.Symbols = append(st.Symbols, e.sub)
		if e.sub.Phase == domain.PhaseSubscribed {
			st.ActiveSymbols = append(st.ActiveSymbols, sym)
		}
	}
	sort.Strings(st.ActiveSymbols)
	sort.Slice(st.Symbols, func(i, j int) bool { return st.Symbols[i].Symbol < st.Symbols[j].Symbol })
	return st
}
