package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alanyoungcy/tradedesk/internal/domain"
)

// OrderService is what the order endpoints need from the service layer.
type OrderService interface {
	Submit(ctx context.Context, req domain.OrderRequest) (domain.Order, error)
	Cancel(ctx context.Context, ref string) (domain.Order, error)
	Orders() []domain.Order
	Order(ref string) (domain.Order, error)
	History(ctx context.Context, limit int) ([]domain.Order, error)
}

// OrderHandler serves order endpoints.
type OrderHandler struct {
	orders OrderService
	logger *slog.Logger
}

// NewOrderHandler creates an OrderHandler.
func NewOrderHandler(orders OrderService, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{orders: orders, logger: logger}
}

type ordersResponse struct {
	Orders []domain.Order `json:"orders"`
}

// commandResponse carries the order a command left behind, with the
// failure reason when it failed.
type commandResponse struct {
	Order *domain.Order `json:"order,omitempty"`
	Error string        `json:"error,omitempty"`
}

// ListOrders returns the tracked orders, newest first.
// GET /api/orders
func (h *OrderHandler) ListOrders(w http.ResponseWriter, _ *http.Request) {
	orders := h.orders.Orders()
	if orders == nil {
		orders = []domain.Order{}
	}
	writeJSON(w, http.StatusOK, ordersResponse{Orders: orders})
}

// GetOrder returns one order by handle or engine id.
// GET /api/orders/{ref}
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Order(r.PathValue("ref"))
	if err != nil {
		writeServiceError(w, r, h.logger, "get order", err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// History returns journaled orders.
// GET /api/orders/history?limit=100
func (h *OrderHandler) History(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.History(r.Context(), parseLimit(r, 100, 1000))
	if err != nil {
		writeServiceError(w, r, h.logger, "order history", err)
		return
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	writeJSON(w, http.StatusOK, ordersResponse{Orders: orders})
}

// PlaceOrder submits an order.
// POST /api/orders {"symbol":"AAPL","side":"BUY","type":"LIMIT","price":"150.00","quantity":100}
//
// An order the engine rejected answers 422 with the order and the engine's
// reason. An order the engine never answered stays Pending and comes back
// with the gateway status.
func (h *OrderHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req domain.OrderRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.Side = domain.OrderSide(strings.ToUpper(strings.TrimSpace(string(req.Side))))
	req.Kind = domain.OrderKind(strings.ToUpper(strings.TrimSpace(string(req.Kind))))

	o, err := h.orders.Submit(r.Context(), req)
	if err != nil {
		if o.Status == domain.OrderStatusRejected {
			writeJSON(w, http.StatusUnprocessableEntity, commandResponse{Order: &o, Error: o.Reason})
			return
		}
		if _, ok := domain.AsFetchError(err); ok && o.Handle != "" {
			writeJSON(w, statusFor(err), commandResponse{Order: &o, Error: domain.BackendReason(err)})
			return
		}
		writeServiceError(w, r, h.logger, "place order", err)
		return
	}
	writeJSON(w, http.StatusCreated, commandResponse{Order: &o})
}

// CancelOrder cancels by handle or engine id. Cancelling a terminal order
// answers 409 with the order unchanged.
// DELETE /api/orders/{ref}
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Cancel(r.Context(), r.PathValue("ref"))
	if err != nil {
		status := statusFor(err)
		if o.Handle != "" && status < http.StatusInternalServerError {
			writeJSON(w, status, commandResponse{Order: &o, Error: domain.BackendReason(err)})
			return
		}
		writeServiceError(w, r, h.logger, "cancel order", err)
		return
	}
	writeJSON(w, http.StatusOK, commandResponse{Order: &o})
}
