package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/fedotovn/placeorder/internal/apperror"
	"github.com/fedotovn/placeorder/internal/order/domain"
	"github.com/fedotovn/placeorder/internal/order/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// OrderAPI is the slice of the order service the handler consumes.
type OrderAPI interface {
	PlaceOrder(ctx context.Context, in service.PlaceOrderInput) (*domain.Order, bool, error)
	GetOrder(ctx context.Context, userID string, orderID uuid.UUID) (*domain.Order, error)
	ListOrders(ctx context.Context, userID string) ([]*domain.Order, error)
	TransitionStatus(ctx context.Context, userID string, orderID uuid.UUID, next domain.Status) (*domain.Order, error)
}

type OrdersHandler struct {
	orders  OrderAPI
	timeout time.Duration
}

func NewOrdersHandler(orders OrderAPI, timeout time.Duration) *OrdersHandler {
	return &OrdersHandler{orders: orders, timeout: timeout}
}

type PlaceOrderRequestDTO struct {
	ShippingAddress domain.Address `json:"shipping_address"`
	PaymentMethod   string         `json:"payment_method"`
}

type PlaceOrderResponseDTO struct {
	Order      *domain.Order `json:"order"`
	Idempotent bool          `json:"idempotent"`
}

type TransitionRequestDTO struct {
	Status string `json:"status"`
}

// POST /api/v1/orders
func (h *OrdersHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := userIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	var req PlaceOrderRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.PaymentMethod == "" {
		respondError(w, http.StatusBadRequest, "invalid_payment_method", "payment_method is required")
		return
	}

	// Address validation runs here, before the engine; the engine assumes a
	// pre-validated address.
	if violations := req.ShippingAddress.Validate(); len(violations) > 0 {
		respondJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:      "shipping address failed validation",
			Code:       string(apperror.KindValidation),
			Violations: violations,
		})
		return
	}

	order, idempotent, err := h.orders.PlaceOrder(ctx, service.PlaceOrderInput{
		UserID:          userID,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		IdempotencyKey:  r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	status := http.StatusCreated
	if idempotent {
		status = http.StatusOK
	}
	respondJSON(w, status, PlaceOrderResponseDTO{Order: order, Idempotent: idempotent})
}

// GET /api/v1/orders
func (h *OrdersHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := userIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	orders, err := h.orders.ListOrders(ctx, userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if orders == nil {
		orders = []*domain.Order{}
	}
	respondJSON(w, http.StatusOK, orders)
}

// GET /api/v1/orders/{order_id}
func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := userIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "order_id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_order_id", "order_id must be a valid UUID")
		return
	}

	order, err := h.orders.GetOrder(ctx, userID, orderID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

// POST /api/v1/orders/{order_id}/status
func (h *OrdersHandler) TransitionStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := userIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "order_id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_order_id", "order_id must be a valid UUID")
		return
	}

	var req TransitionRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	next := domain.Status(req.Status)

	// Authorization is caller-side policy, layered on top of the state
	// machine: a non-privileged actor may only cancel, and only while the
	// order is still pending.
	if !isAdmin(r.Context()) {
		if next != domain.StatusCancelled {
			respondError(w, http.StatusForbidden, "forbidden", "only cancellation can be requested")
			return
		}
		order, err := h.orders.GetOrder(ctx, userID, orderID)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		if order.Status != domain.StatusPending {
			respondError(w, http.StatusForbidden, "forbidden", "order can no longer be cancelled")
			return
		}
	}

	order, err := h.orders.TransitionStatus(ctx, userID, orderID, next)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}
