// Package engine is the REST client for the simulated trading engine. Each
// method issues exactly one request and never retries; every failure is a
// *domain.FetchError.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/tradedesk/internal/domain"
)

// DefaultBaseURL is where the engine listens unless configured otherwise.
const DefaultBaseURL = "http://localhost:18080"

const maxBodyBytes = 8 << 20

// Client is the REST client for the trading engine.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the transport timeout applied to every request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a client for the engine at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(slog.String("component", "engine_client"))
	return c
}

// BaseURL returns the engine root the client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// Orderbook fetches the book at the given depth per side.
func (c *Client) Orderbook(ctx context.Context, levels int) (domain.BookSnapshot, error) {
	path := "/orderbook"
	if levels > 0 {
		path += "?" + url.Values{"levels": {strconv.Itoa(levels)}}.Encode()
	}

	var resp struct {
		Orderbook *wireBook `json:"orderbook"`
	}
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return domain.BookSnapshot{}, fmt.Errorf("engine: get orderbook: %w", err)
	}
	if resp.Orderbook == nil {
		return domain.BookSnapshot{}, fmt.Errorf("engine: get orderbook: %w",
			domain.NewDecodeError(errors.New("response has no orderbook field")))
	}
	return resp.Orderbook.toDomain(c.now().UTC()), nil
}

// MarketData fetches the engine's trailing tick window. Ticks with an unknown
// variant or missing variant fields are dropped.
func (c *Client) MarketData(ctx context.Context) ([]domain.Tick, error) {
	var resp struct {
		Ticks []wireTick `json:"ticks"`
	}
	if err := c.getJSON(ctx, "/market/data", &resp); err != nil {
		return nil, fmt.Errorf("engine: get market data: %w", err)
	}

	ticks := make([]domain.Tick, 0, len(resp.Ticks))
	dropped := 0
	for _, w := range resp.Ticks {
		t, ok := w.toDomain()
		if !ok {
			dropped++
			continue
		}
		ticks = append(ticks, t)
	}
	if dropped > 0 {
		c.logger.DebugContext(ctx, "engine_client: dropped malformed ticks",
			slog.Int("dropped", dropped),
			slog.Int("kept", len(ticks)),
		)
	}
	return ticks, nil
}

// Status fetches the engine's market-data connection status.
func (c *Client) Status(ctx context.Context) (domain.ConnectionStatus, error) {
	var resp domain.ConnectionStatus
	if err := c.getJSON(ctx, "/market/status", &resp); err != nil {
		return domain.ConnectionStatus{}, fmt.Errorf("engine: get status: %w", err)
	}
	if resp.SubscribedSymbols == nil {
		resp.SubscribedSymbols = []string{}
	}
	return resp, nil
}

// Market fetches the aggregate market summary.
func (c *Client) Market(ctx context.Context) (domain.MarketSummary, error) {
	var resp wireMarket
	if err := c.getJSON(ctx, "/market", &resp); err != nil {
		return domain.MarketSummary{}, fmt.Errorf("engine: get market: %w", err)
	}
	return resp.toDomain(), nil
}

// Trades fetches the engine's trade log.
func (c *Client) Trades(ctx context.Context) ([]domain.Trade, error) {
	var resp struct {
		Trades []wireTrade `json:"trades"`
	}
	if err := c.getJSON(ctx, "/trades", &resp); err != nil {
		return nil, fmt.Errorf("engine: get trades: %w", err)
	}
	trades := make([]domain.Trade, len(resp.Trades))
	for i, w := range resp.Trades {
		trades[i] = w.toDomain()
	}
	return trades, nil
}

// Statistics fetches the nested book/trade statistics.
func (c *Client) Statistics(ctx context.Context) (domain.Statistics, error) {
	var resp wireStatistics
	if err := c.getJSON(ctx, "/statistics", &resp); err != nil {
		return domain.Statistics{}, fmt.Errorf("engine: get statistics: %w", err)
	}
	return resp.toDomain(), nil
}

// Subscribe asks the engine to stream a symbol. A rejection carries the
// engine's message unchanged in the FetchError.
func (c *Client) Subscribe(ctx context.Context, req domain.SubscribeRequest) error {
	if _, err := c.do(ctx, http.MethodPost, "/market/subscribe", req); err != nil {
		return fmt.Errorf("engine: subscribe %s: %w", req.Symbol, err)
	}
	return nil
}

// PlaceOrder submits an order. clientID is echoed back by the engine and is
// how the acknowledgement is matched to the local submission.
func (c *Client) PlaceOrder(ctx context.Context, clientID int64, req domain.OrderRequest) (domain.OrderAck, error) {
	body := wireOrderRequest{
		ClientID: clientID,
		Symbol:   req.Symbol,
		Side:     string(req.Side),
		Type:     string(req.Kind),
		Quantity: req.Quantity,
	}
	if req.Kind == domain.OrderKindLimit {
		body.Price = priceOrNil(req.Price)
	}

	data, err := c.do(ctx, http.MethodPost, "/orders", body)
	if err != nil {
		return domain.OrderAck{}, fmt.Errorf("engine: place order: %w", err)
	}

	var resp struct {
		Order               *wireOrder `json:"order"`
		ImmediateExecutions int        `json:"immediate_executions"`
	}
	if err := decode(data, &resp); err != nil {
		return domain.OrderAck{}, fmt.Errorf("engine: place order: %w", err)
	}
	if resp.Order == nil {
		return domain.OrderAck{}, fmt.Errorf("engine: place order: %w",
			domain.NewDecodeError(errors.New("response has no order field")))
	}
	return domain.OrderAck{Order: resp.Order.toDomain(), ImmediateExecutions: resp.ImmediateExecutions}, nil
}

// CancelOrder cancels an order by engine id.
func (c *Client) CancelOrder(ctx context.Context, id int64) error {
	path := "/orders/" + strconv.FormatInt(id, 10) + "/cancel"
	if _, err := c.do(ctx, http.MethodPost, path, nil); err != nil {
		return fmt.Errorf("engine: cancel order %d: %w", id, err)
	}
	return nil
}

// Health pings the engine's health endpoint.
func (c *Client) Health(ctx context.Context) error {
	if _, err := c.do(ctx, http.MethodGet, "/health", nil); err != nil {
		return fmt.Errorf("engine: health: %w", err)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	data, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return decode(data, out)
}

// do performs one request. The response body is always drained up to the
// size limit and closed before returning.
func (c *Client) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, domain.NewDecodeError(fmt.Errorf("encode request: %w", err))
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, domain.NewNetworkError(err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.NewNetworkError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, domain.NewNetworkError(fmt.Errorf("read body: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, domain.NewHTTPError(resp.StatusCode, errorMessage(data))
	}
	return data, nil
}

func decode(data []byte, out any) error {
	if err := json.Unmarshal(data, out); err != nil {
		return domain.NewDecodeError(err)
	}
	return nil
}

// errorMessage extracts the engine's failure text: the "error" (or
// "message") field of a JSON body, otherwise the body itself.
func errorMessage(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var e struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if json.Unmarshal(trimmed, &e) == nil {
			if e.Error != "" {
				return e.Error
			}
			if e.Message != "" {
				return e.Message
			}
		}
	}
	return string(trimmed)
}

func priceOrNil(p decimal.NullDecimal) *decimal.Decimal {
	if !p.Valid {
		return nil
	}
	d := p.Decimal
	return &d
}
