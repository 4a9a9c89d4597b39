package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/vasiliy-maslov/restaurant-orders/internal/inventory"
)

// StockLedger is the part of inventory.Ledger exposed over HTTP.
type StockLedger interface {
	Get(ctx context.Context, ingredientID int64) (*inventory.Ingredient, error)
	AdjustStock(ctx context.Context, adj inventory.Adjustment) (decimal.Decimal, error)
	Transactions(ctx context.Context, ingredientID int64, limit int) ([]inventory.Transaction, error)
}

const (
	defaultTransactionsLimit = 50
	maxTransactionsLimit     = 500
)

// AdjustmentRequest records a manual stock change. Usage is reserved for order placement.
type AdjustmentRequest struct {
	Delta      decimal.Decimal `json:"delta"`
	EmployeeID int64           `json:"employee_id" validate:"required,gt=0"`
	Reason     string          `json:"reason" validate:"required,oneof=Restock Waste Correction"`
	Note       string          `json:"note" validate:"max=500"`
}

type AdjustmentResponse struct {
	IngredientID    int64           `json:"ingredient_id"`
	QuantityInStock decimal.Decimal `json:"quantity_in_stock"`
}

type InventoryHandler struct {
	ledger   StockLedger
	validate *validator.Validate
}

func NewInventoryHandler(ledger StockLedger) *InventoryHandler {
	return &InventoryHandler{
		ledger:   ledger,
		validate: validator.New(),
	}
}

func (h *InventoryHandler) RegisterRoutes(router chi.Router) {
	router.Get("/ingredients/{id}", h.handleGetIngredient)
	router.Post("/ingredients/{id}/adjustments", h.handleAdjustStock)
	router.Get("/ingredients/{id}/transactions", h.handleListTransactions)
}

func (h *InventoryHandler) handleGetIngredient(w http.ResponseWriter, r *http.Request) {
	ingredientID, err := parseIDParam(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid id parameter")
		return
	}

	ing, err := h.ledger.Get(r.Context(), ingredientID)
	if err != nil {
		code := mapErrorToStatusCode(err)
		log.Error().Err(err).Int64("ingredient_id", ingredientID).Msg("Failed to get ingredient")
		respondWithError(w, code, clientMessage(code, err, "Failed to get ingredient"))
		return
	}

	respondWithJSON(w, http.StatusOK, ing)
}

func (h *InventoryHandler) handleAdjustStock(w http.ResponseWriter, r *http.Request) {
	ingredientID, err := parseIDParam(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid id parameter")
		return
	}

	var req AdjustmentRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondWithValidationError(w, err)
		return
	}

	adj := inventory.Adjustment{
		IngredientID: ingredientID,
		Delta:        req.Delta,
		EmployeeID:   req.EmployeeID,
		Reason:       inventory.Reason(req.Reason),
		Note:         req.Note,
	}
	if err := adj.Validate(); err != nil {
		log.Warn().Err(err).Int64("ingredient_id", ingredientID).Str("reason", req.Reason).Msg("Rejected stock adjustment")
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	remaining, err := h.ledger.AdjustStock(r.Context(), adj)
	if err != nil {
		code := mapErrorToStatusCode(err)
		log.Error().Err(err).Int64("ingredient_id", ingredientID).Str("reason", req.Reason).Msg("Failed to adjust stock")
		respondWithError(w, code, clientMessage(code, err, "Failed to adjust stock"))
		return
	}

	respondWithJSON(w, http.StatusCreated, AdjustmentResponse{IngredientID: ingredientID, QuantityInStock: remaining})
}

func (h *InventoryHandler) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	ingredientID, err := parseIDParam(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid id parameter")
		return
	}

	limit := defaultTransactionsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit <= 0 || limit > maxTransactionsLimit {
			respondWithError(w, http.StatusBadRequest, "Invalid limit parameter")
			return
		}
	}

	transactions, err := h.ledger.Transactions(r.Context(), ingredientID, limit)
	if err != nil {
		code := mapErrorToStatusCode(err)
		log.Error().Err(err).Int64("ingredient_id", ingredientID).Msg("Failed to list stock transactions")
		respondWithError(w, code, clientMessage(code, err, "Failed to list stock transactions"))
		return
	}

	respondWithJSON(w, http.StatusOK, transactions)
}
