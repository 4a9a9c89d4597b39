package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/vasiliy-maslov/restaurant-orders/internal/order"
)

type PlaceOrderItemRequest struct {
	ProductID int64            `json:"product_id" validate:"required,gt=0"`
	Quantity  int              `json:"quantity" validate:"required,gt=0"`
	// UnitPrice is the menu price snapshotted on the order. Omitting it is an error, not a free item.
	UnitPrice *decimal.Decimal `json:"price_at_time" validate:"required"`
}

type PlaceOrderRequest struct {
	CustomerID    int64                   `json:"customer_id" validate:"required,gt=0"`
	OrderType     string                  `json:"order_type" validate:"required,oneof=dine_in takeout delivery"`
	PaymentMethod string                  `json:"payment_method" validate:"omitempty,max=30"`
	Items         []PlaceOrderItemRequest `json:"items" validate:"required,min=1,dive"`
	EmployeeIDs   []int64                 `json:"employee_ids" validate:"required,min=1,unique,dive,gt=0"`
}

type PlaceOrderResponse struct {
	OrderID int64 `json:"order_id"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending in_progress completed cancelled"`
}

type UpdatePaymentStatusRequest struct {
	PaymentStatus string `json:"payment_status" validate:"required,oneof=unpaid paid refunded"`
}

type OrderTotalResponse struct {
	OrderID int64           `json:"order_id"`
	Total   decimal.Decimal `json:"total"`
}

type OrderHandler struct {
	service  order.Service
	validate *validator.Validate
}

func NewOrderHandler(service order.Service) *OrderHandler {
	return &OrderHandler{
		service:  service,
		validate: validator.New(),
	}
}

func (h *OrderHandler) RegisterRoutes(router chi.Router) {
	router.Post("/orders", h.handlePlaceOrder)
	router.Get("/orders", h.handleListOrders)
	router.Get("/orders/{id}", h.handleGetOrderByID)
	router.Get("/orders/{id}/total", h.handleGetOrderTotal)
	router.Patch("/orders/{id}/status", h.handleUpdateStatus)
	router.Patch("/orders/{id}/payment-status", h.handleUpdatePaymentStatus)
}

func (h *OrderHandler) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req PlaceOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		log.Error().Err(err).Msg("Failed to decode request body")
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondWithValidationError(w, err)
		return
	}

	o := order.Order{
		CustomerID:    req.CustomerID,
		Type:          order.Type(req.OrderType),
		PaymentMethod: req.PaymentMethod,
		EmployeeIDs:   req.EmployeeIDs,
		Items:         make([]order.OrderItem, len(req.Items)),
	}
	for i, it := range req.Items {
		o.Items[i] = order.OrderItem{ProductID: it.ProductID, Quantity: it.Quantity, UnitPrice: *it.UnitPrice}
	}

	placed, err := h.service.PlaceOrder(r.Context(), &o)
	if err != nil {
		code := mapErrorToStatusCode(err)
		log.Error().Err(err).Int("status", code).Msg("Failed to place order via service")
		respondWithError(w, code, clientMessage(code, err, "Failed to place order"))
		return
	}

	respondWithJSON(w, http.StatusCreated, PlaceOrderResponse{OrderID: placed.ID})
}

func (h *OrderHandler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	var (
		filter order.ListFilter
		err    error
	)
	q := r.URL.Query()

	if raw := q.Get("customer_id"); raw != "" {
		filter.CustomerID, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid customer_id parameter")
			return
		}
	}
	if raw := q.Get("from"); raw != "" {
		filter.From, err = time.Parse(time.DateOnly, raw)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid from parameter, expected YYYY-MM-DD")
			return
		}
	}
	if raw := q.Get("to"); raw != "" {
		filter.To, err = time.Parse(time.DateOnly, raw)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid to parameter, expected YYYY-MM-DD")
			return
		}
	}

	orders, err := h.service.ListOrders(r.Context(), filter)
	if err != nil {
		code := mapErrorToStatusCode(err)
		log.Error().Err(err).Msg("Failed to list orders via service")
		respondWithError(w, code, clientMessage(code, err, "Failed to list orders"))
		return
	}

	respondWithJSON(w, http.StatusOK, orders)
}

func (h *OrderHandler) handleGetOrderByID(w http.ResponseWriter, r *http.Request) {
	orderID, err := parseIDParam(r)
	if err != nil {
		log.Warn().Err(err).Str("order_id", chi.URLParam(r, "id")).Msg("Failed to parse id parameter from URL")
		respondWithError(w, http.StatusBadRequest, "Invalid id parameter")
		return
	}

	found, err := h.service.GetOrderByID(r.Context(), orderID)
	if err != nil {
		code := mapErrorToStatusCode(err)
		log.Error().Err(err).Int64("order_id", orderID).Msg("Failed to get order by id via service")
		respondWithError(w, code, clientMessage(code, err, "Failed to get order"))
		return
	}

	respondWithJSON(w, http.StatusOK, found)
}

func (h *OrderHandler) handleGetOrderTotal(w http.ResponseWriter, r *http.Request) {
	orderID, err := parseIDParam(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid id parameter")
		return
	}

	total, err := h.service.CalculateOrderTotal(r.Context(), orderID)
	if err != nil {
		code := mapErrorToStatusCode(err)
		log.Error().Err(err).Int64("order_id", orderID).Msg("Failed to calculate order total via service")
		respondWithError(w, code, clientMessage(code, err, "Failed to calculate order total"))
		return
	}

	respondWithJSON(w, http.StatusOK, OrderTotalResponse{OrderID: orderID, Total: total})
}

func (h *OrderHandler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	orderID, err := parseIDParam(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid id parameter")
		return
	}

	var req UpdateStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondWithValidationError(w, err)
		return
	}

	if err := h.service.UpdateOrderStatus(r.Context(), orderID, order.Status(req.Status)); err != nil {
		code := mapErrorToStatusCode(err)
		log.Error().Err(err).Int64("order_id", orderID).Str("status", req.Status).Msg("Failed to update order status via service")
		respondWithError(w, code, clientMessage(code, err, "Failed to update order status"))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *OrderHandler) handleUpdatePaymentStatus(w http.ResponseWriter, r *http.Request) {
	orderID, err := parseIDParam(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid id parameter")
		return
	}

	var req UpdatePaymentStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondWithValidationError(w, err)
		return
	}

	if err := h.service.UpdatePaymentStatus(r.Context(), orderID, order.PaymentStatus(req.PaymentStatus)); err != nil {
		code := mapErrorToStatusCode(err)
		log.Error().Err(err).Int64("order_id", orderID).Str("payment_status", req.PaymentStatus).Msg("Failed to update payment status via service")
		respondWithError(w, code, clientMessage(code, err, "Failed to update payment status"))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
