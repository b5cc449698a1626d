package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradedesk/internal/domain"
)

func newTestClient(t *testing.T, h http.HandlerFunc) (*Client, *atomic.Int64) {
	t.Helper()
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, WithTimeout(2*time.Second)), &hits
}

func fetchErr(t *testing.T, err error) *domain.FetchError {
	t.Helper()
	fe, ok := domain.AsFetchError(err)
	require.True(t, ok, "expected FetchError, got %v", err)
	return fe
}

func TestOrderbook(t *testing.T) {
	c, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/orderbook", r.URL.Path)
		assert.Equal(t, "10", r.URL.Query().Get("levels"))
		w.Write([]byte(`{"orderbook":{
			"bids":[{"price":100.0,"quantity":50,"orders":2},{"price":99.5,"quantity":30,"orders":1}],
			"asks":[{"price":100.5,"quantity":20,"orders":1}],
			"spread":0.5,"best_bid":100.0,"best_ask":100.5}}`))
	})

	snap, err := c.Orderbook(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), hits.Load())
	require.Len(t, snap.Bids, 2)
	assert.True(t, snap.Bids[1].Price.Equal(decimal.RequireFromString("99.5")))
	assert.Equal(t, int64(2), snap.Bids[0].OrderCount)
	assert.True(t, snap.Spread.Valid)
	assert.False(t, snap.Timestamp.IsZero())
}

func TestOrderbookEmptySides(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"orderbook":{"bids":[],"asks":[],"spread":0,"best_bid":0,"best_ask":0}}`))
	})

	snap, err := c.Orderbook(context.Background(), 5)
	require.NoError(t, err)
	assert.False(t, snap.BestBid.Valid)
	assert.False(t, snap.BestAsk.Valid)
	assert.False(t, snap.Spread.Valid)
}

func TestOrderbookMissingFieldIsDecodeError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"something":"else"}`))
	})

	_, err := c.Orderbook(context.Background(), 5)
	assert.Equal(t, domain.FetchDecode, fetchErr(t, err).Kind)
}

func TestMarketDataVariants(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ticks":[
			{"symbol":"AAPL","type":"Trade","timestamp":1000,"trade_price":150.25,"trade_size":10},
			{"symbol":"AAPL","type":"QUOTE","timestamp":1001,"bid_price":150.2,"ask_price":150.3,"bid_size":5,"ask_size":7},
			{"symbol":"AAPL","type":"bar","timestamp":1002,"open":1,"high":2,"low":0.5,"close":1.5,"volume":900},
			{"symbol":"AAPL","type":"Halt","timestamp":1003},
			{"symbol":"AAPL","type":"TRADE","timestamp":1004}
		]}`))
	})

	ticks, err := c.MarketData(context.Background())
	require.NoError(t, err)
	require.Len(t, ticks, 3)

	assert.Equal(t, domain.TickTrade, ticks[0].Kind)
	require.NotNil(t, ticks[0].Trade)
	assert.Equal(t, int64(10), ticks[0].Trade.Size)
	assert.Equal(t, int64(1000), ticks[0].Timestamp.UnixMilli())

	assert.Equal(t, domain.TickQuote, ticks[1].Kind)
	require.NotNil(t, ticks[1].Quote)
	assert.Equal(t, int64(7), ticks[1].Quote.AskSize)

	assert.Equal(t, domain.TickBar, ticks[2].Kind)
	require.NotNil(t, ticks[2].Bar)
	assert.Equal(t, int64(900), ticks[2].Bar.Volume)
}

func TestHTTPErrorJSONMessageVerbatim(t *testing.T) {
	c, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"Order not found or already filled"}`))
	})

	err := c.CancelOrder(context.Background(), 42)
	fe := fetchErr(t, err)
	assert.Equal(t, domain.FetchHTTPStatus, fe.Kind)
	assert.Equal(t, http.StatusBadRequest, fe.StatusCode)
	assert.Equal(t, "Order not found or already filled", fe.Message)
	assert.Equal(t, "Order not found or already filled", domain.BackendReason(err))
	assert.Equal(t, int64(1), hits.Load(), "no retries")
}

func TestHTTPErrorPlainTextVerbatim(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Symbol XYZ is not tradable", http.StatusUnprocessableEntity)
	})

	err := c.Subscribe(context.Background(), domain.SubscribeRequest{Symbol: "XYZ", Trades: true})
	assert.Equal(t, "Symbol XYZ is not tradable", domain.BackendReason(err))
}

func TestServerErrorIsNotRetried(t *testing.T) {
	c, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := c.Trades(context.Background())
	fe := fetchErr(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, fe.StatusCode)
	assert.Equal(t, int64(1), hits.Load())
}

func TestNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(url).Status(context.Background())
	assert.Equal(t, domain.FetchNetwork, fetchErr(t, err).Kind)
}

func TestCancelledContextIsNetworkError(t *testing.T) {
	release := make(chan struct{})
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Statistics(ctx)
	assert.Equal(t, domain.FetchNetwork, fetchErr(t, err).Kind)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDecodeError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"trades":[{"trade_id":"not-a-number"}]}`))
	})

	_, err := c.Trades(context.Background())
	assert.Equal(t, domain.FetchDecode, fetchErr(t, err).Kind)
}

func TestSubscribeBody(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/market/subscribe", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]any{"symbol": "AAPL", "trades": true, "quotes": false, "bars": false}, body)
		w.Write([]byte(`{"message":"Subscribed to AAPL"}`))
	})

	require.NoError(t, c.Subscribe(context.Background(), domain.SubscribeRequest{Symbol: "AAPL", Trades: true}))
}

func TestPlaceOrder(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/orders", r.URL.Path)
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, float64(7), body["client_id"])
		assert.Equal(t, "LIMIT", body["type"])
		assert.Equal(t, "BUY", body["side"])
		assert.Equal(t, "150", body["price"])

		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"order":{"id":11,"client_id":7,"symbol":"AAPL","side":"BUY","type":"LIMIT",
			"price":150.0,"quantity":100,"remaining_quantity":60,"filled_quantity":40,
			"fill_percentage":40.0,"status":"PARTIALLY_FILLED","timestamp":1700000000000},
			"immediate_executions":2}`))
	})

	ack, err := c.PlaceOrder(context.Background(), 7, domain.OrderRequest{
		Symbol: "AAPL", Side: domain.OrderSideBuy, Kind: domain.OrderKindLimit,
		Price: decimal.NewNullDecimal(decimal.RequireFromString("150.00")), Quantity: 100,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(11), ack.Order.ID)
	assert.Equal(t, int64(7), ack.Order.ClientID)
	assert.Equal(t, int64(40), ack.Order.FilledQuantity)
	assert.Equal(t, domain.OrderStatusPartiallyFilled, ack.Order.Status)
	assert.Equal(t, 2, ack.ImmediateExecutions)
}

func TestPlaceMarketOrderOmitsPrice(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, has := body["price"]
		assert.False(t, has)
		w.Write([]byte(`{"order":{"id":1,"client_id":3,"type":"MARKET","quantity":5,"remaining_quantity":0,"filled_quantity":5,"status":"FILLED"}}`))
	})

	ack, err := c.PlaceOrder(context.Background(), 3, domain.OrderRequest{
		Symbol: "AAPL", Side: domain.OrderSideSell, Kind: domain.OrderKindMarket, Quantity: 5,
	})
	require.NoError(t, err)
	assert.False(t, ack.Order.Price.Valid)
	assert.Equal(t, domain.OrderStatusFilled, ack.Order.Status)
}

func TestMarketAndStatistics(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/market":
			w.Write([]byte(`{"best_bid":0,"best_ask":101.5,"spread":0,"total_active_orders":3,"total_trades":9,
				"last_trade_stats":{"total_trades":9,"total_volume":120,"total_value":12000,"avg_price":100,"min_price":99,"max_price":101,"last_trade_time":5000}}`))
		case "/statistics":
			w.Write([]byte(`{"orderbook":{"bid_levels":2,"ask_levels":1,"bid_orders":3,"ask_orders":1,"total_orders":4,"total_trades":9},
				"market_data":{"best_bid":100,"best_ask":101,"spread":1},
				"trades":{"total_trades":9,"total_volume":120}}`))
		}
	})

	m, err := c.Market(context.Background())
	require.NoError(t, err)
	assert.False(t, m.BestBid.Valid)
	assert.True(t, m.BestAsk.Valid)
	assert.False(t, m.Spread.Valid)
	assert.Equal(t, int64(120), m.LastTradeStats.TotalVolume)
	assert.Equal(t, int64(5000), m.LastTradeStats.LastTradeTime.UnixMilli())

	s, err := c.Statistics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), s.Orderbook.TotalOrders)
	assert.True(t, s.MarketData.Spread.Valid)
	assert.True(t, s.MarketData.Spread.Decimal.Equal(decimal.NewFromInt(1)))
}

func TestStatusDefaultsSymbols(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"connected":true}`))
	})

	st, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, st.Connected)
	assert.NotNil(t, st.SubscribedSymbols)
}
