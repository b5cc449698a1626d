package subscription

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradedesk/internal/domain"
)

type fakeSubscriber struct {
	mu     sync.Mutex
	calls  []domain.SubscribeRequest
	err    error
	during func()
}

func (f *fakeSubscriber) Subscribe(_ context.Context, req domain.SubscribeRequest) error {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	during, err := f.during, f.err
	f.mu.Unlock()
	if during != nil {
		during()
	}
	return err
}

func newManager(sub Subscriber) *Manager {
	return NewManager(sub, 0, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestSubscribeScenario(t *testing.T) {
	fake := &fakeSubscriber{}
	m := newManager(fake)

	var mid domain.SubscriptionPhase
	fake.during = func() {
		s, ok := m.State("AAPL")
		require.True(t, ok)
		mid = s.Phase
	}

	sub, err := m.Subscribe(context.Background(), "AAPL", domain.Streams{Trades: true})
	require.NoError(t, err)
	assert.Equal(t, domain.PhasePendingSubscribe, mid)
	assert.Equal(t, domain.PhaseSubscribed, sub.Phase)
	require.Len(t, fake.calls, 1)
	assert.Equal(t, domain.SubscribeRequest{Symbol: "AAPL", Trades: true}, fake.calls[0])

	st, changes := m.Reconcile(domain.ConnectionStatus{Connected: true, SubscribedSymbols: []string{"AAPL"}})
	assert.Empty(t, changes)
	assert.Equal(t, []string{"AAPL"}, st.ActiveSymbols)

	st, changes = m.Reconcile(domain.ConnectionStatus{Connected: true, SubscribedSymbols: []string{}})
	assert.Empty(t, changes, "one missing cycle is tolerated")
	assert.Equal(t, []string{"AAPL"}, st.ActiveSymbols)

	st, changes = m.Reconcile(domain.ConnectionStatus{Connected: true, SubscribedSymbols: []string{}})
	require.Len(t, changes, 1)
	assert.Equal(t, Transition{Symbol: "AAPL", From: domain.PhaseSubscribed, To: domain.PhaseUnsubscribed}, changes[0])
	assert.Empty(t, st.ActiveSymbols)

	s, _ := m.State("AAPL")
	assert.Equal(t, domain.PhaseUnsubscribed, s.Phase)
}

func TestMissCounterResetsWhenReportedAgain(t *testing.T) {
	m := newManager(&fakeSubscriber{})
	_, err := m.Subscribe(context.Background(), "MSFT", domain.Streams{Quotes: true})
	require.NoError(t, err)

	m.Reconcile(domain.ConnectionStatus{Connected: true})
	m.Reconcile(domain.ConnectionStatus{Connected: true, SubscribedSymbols: []string{"MSFT"}})
	st, _ := m.Reconcile(domain.ConnectionStatus{Connected: true})
	assert.Equal(t, []string{"MSFT"}, st.ActiveSymbols)
}

func TestSubscribeValidation(t *testing.T) {
	fake := &fakeSubscriber{}
	m := newManager(fake)

	_, err := m.Subscribe(context.Background(), "  ", domain.Streams{Trades: true})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	_, err = m.Subscribe(context.Background(), "AAPL", domain.Streams{})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	assert.Empty(t, fake.calls)
	_, ok := m.State("AAPL")
	assert.False(t, ok)
}

func TestSubscribeFailureKeepsBackendReason(t *testing.T) {
	fake := &fakeSubscriber{err: fmt.Errorf("engine: subscribe XYZ: %w",
		domain.NewHTTPError(http.StatusBadRequest, "Unknown symbol: XYZ"))}
	m := newManager(fake)

	sub, err := m.Subscribe(context.Background(), "xyz", domain.Streams{Bars: true})
	require.Error(t, err)
	assert.Equal(t, "Unknown symbol: XYZ", domain.BackendReason(err))
	assert.Equal(t, domain.PhaseUnsubscribed, sub.Phase)
	assert.Equal(t, "Unknown symbol: XYZ", sub.Reason)
	assert.Equal(t, "XYZ", sub.Symbol)
}

func TestAdoptsServerReportedSymbols(t *testing.T) {
	m := newManager(&fakeSubscriber{})

	st, changes := m.Reconcile(domain.ConnectionStatus{Connected: true, SubscribedSymbols: []string{"TSLA", "AAPL"}})
	assert.True(t, st.Connected)
	assert.Equal(t, []string{"AAPL", "TSLA"}, st.ActiveSymbols)
	require.Len(t, changes, 2)
	assert.Equal(t, "AAPL", changes[0].Symbol)

	s, ok := m.State("TSLA")
	require.True(t, ok)
	assert.True(t, s.Adopted)
	assert.Equal(t, domain.PhaseSubscribed, s.Phase)
}

func TestUnsubscribeIsNotReadopted(t *testing.T) {
	m := newManager(&fakeSubscriber{})
	m.Reconcile(domain.ConnectionStatus{Connected: true, SubscribedSymbols: []string{"AAPL"}})

	sub, err := m.Unsubscribe("aapl")
	require.NoError(t, err)
	assert.Equal(t, domain.PhasePendingUnsubscribe, sub.Phase)

	report := domain.ConnectionStatus{Connected: true, SubscribedSymbols: []string{"AAPL"}}
	st, changes := m.Reconcile(report)
	require.Len(t, changes, 1)
	assert.Equal(t, domain.PhaseUnsubscribed, changes[0].To)
	assert.Empty(t, st.ActiveSymbols)

	st, changes = m.Reconcile(report)
	assert.Empty(t, changes)
	assert.Empty(t, st.ActiveSymbols)

	// Once the engine stops reporting it, a later report adopts it again.
	m.Reconcile(domain.ConnectionStatus{Connected: true})
	st, _ = m.Reconcile(report)
	assert.Equal(t, []string{"AAPL"}, st.ActiveSymbols)
}

func TestUnsubscribeUnknownSymbol(t *testing.T) {
	m := newManager(&fakeSubscriber{})
	_, err := m.Unsubscribe("NOPE")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPendingSubscribeUntouchedByReconcile(t *testing.T) {
	fake := &fakeSubscriber{}
	m := newManager(fake)

	var changes []Transition
	fake.during = func() {
		_, changes = m.Reconcile(domain.ConnectionStatus{Connected: true, SubscribedSymbols: []string{"AAPL"}})
		s, _ := m.State("AAPL")
		assert.Equal(t, domain.PhasePendingSubscribe, s.Phase)
	}

	_, err := m.Subscribe(context.Background(), "AAPL", domain.Streams{Trades: true})
	require.NoError(t, err)
	assert.Empty(t, changes)
}

func TestConnectionLostAfterThreshold(t *testing.T) {
	m := newManager(&fakeSubscriber{})
	m.Reconcile(domain.ConnectionStatus{Connected: true})

	boom := errors.New("boom")
	assert.True(t, m.RecordFailure(boom).Connected)
	assert.True(t, m.RecordFailure(boom).Connected)
	assert.False(t, m.RecordFailure(boom).Connected)
	assert.False(t, m.Connected())

	st, _ := m.Reconcile(domain.ConnectionStatus{Connected: true})
	assert.True(t, st.Connected)

	assert.True(t, m.RecordFailure(boom).Connected, "counter resets on success")
}
