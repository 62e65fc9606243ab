package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/eaglebank/transaction-service/internal/dispatch"
	"github.com/eaglebank/transaction-service/shared/apperrors"
	"github.com/eaglebank/transaction-service/shared/cqrs"
	"github.com/eaglebank/transaction-service/shared/logger"
	"github.com/eaglebank/transaction-service/shared/middleware"
	"github.com/eaglebank/transaction-service/shared/models"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type TransactionHandler struct {
	bus dispatch.Dispatcher
	log zerolog.Logger
}

// CreateTransactionRequest is the POST body. Amount accepts a JSON number or a
// numeric string and is decoded without passing through float64.
type CreateTransactionRequest struct {
	Amount *decimal.Decimal `json:"amount"`
	Status models.Status    `json:"status"`
}

type UpdateTransactionRequest struct {
	Amount *decimal.Decimal `json:"amount"`
	Status *models.Status   `json:"status"`
}

func NewTransactionHandler(bus dispatch.Dispatcher, log zerolog.Logger) *TransactionHandler {
	return &TransactionHandler{bus: bus, log: log}
}

// RegisterRoutes mounts the transaction routes on r.
func (h *TransactionHandler) RegisterRoutes(r gin.IRouter) {
	v1 := r.Group("/v1/transactions")
	v1.POST("", h.CreateTransaction)
	v1.GET("/:transactionId", h.GetTransaction)
	v1.PATCH("/:transactionId", h.UpdateTransaction)
}

func (h *TransactionHandler) CreateTransaction(c *gin.Context) {
	var req CreateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	transaction, err := dispatch.Execute[*models.Transaction](c.Request.Context(), h.bus, cqrs.CreateTransactionCommand{
		Amount: req.Amount,
		Status: req.Status,
	})
	if err != nil {
		h.respondWithError(c, err, "Failed to create transaction")
		return
	}

	respondWithTransaction(c, http.StatusCreated, transaction)
}

func (h *TransactionHandler) UpdateTransaction(c *gin.Context) {
	var req UpdateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	expectedVersion, err := parseIfMatch(c.GetHeader("If-Match"))
	if err != nil {
		middleware.RespondWithValidationError(c, []apperrors.FieldError{{
			Field:   "If-Match",
			Message: "Must be a transaction version",
			Type:    "version",
		}})
		return
	}

	transaction, err := dispatch.Execute[*models.Transaction](c.Request.Context(), h.bus, cqrs.UpdateTransactionCommand{
		TransactionID: c.Param("transactionId"),
		Patch: models.TransactionPatch{
			Amount:          req.Amount,
			Status:          req.Status,
			ExpectedVersion: expectedVersion,
		},
	})
	if err != nil {
		h.respondWithError(c, err, "Failed to update transaction")
		return
	}

	respondWithTransaction(c, http.StatusOK, transaction)
}

func (h *TransactionHandler) GetTransaction(c *gin.Context) {
	transaction, err := dispatch.Execute[*models.Transaction](c.Request.Context(), h.bus, cqrs.GetTransactionQuery{
		TransactionID: c.Param("transactionId"),
	})
	if err != nil {
		h.respondWithError(c, err, "Failed to get transaction")
		return
	}

	respondWithTransaction(c, http.StatusOK, transaction)
}

func (h *TransactionHandler) respondWithError(c *gin.Context, err error, fallback string) {
	var validationErr *apperrors.ValidationError
	switch {
	case errors.As(err, &validationErr):
		middleware.RespondWithValidationError(c, validationErr.Fields)
	case errors.Is(err, apperrors.ErrNotFound):
		middleware.RespondWithError(c, http.StatusNotFound, "Transaction not found")
	case errors.Is(err, apperrors.ErrConflict):
		middleware.RespondWithError(c, http.StatusConflict, "Transaction was modified concurrently, retry with the current version")
	case errors.Is(err, apperrors.ErrStoreUnavailable):
		logger.FromContext(c.Request.Context(), h.log).Error().Err(err).Msg("transaction store unavailable")
		middleware.RespondWithError(c, http.StatusServiceUnavailable, "Transaction store unavailable")
	default:
		logger.FromContext(c.Request.Context(), h.log).Error().Err(err).Msg(fallback)
		middleware.RespondWithError(c, http.StatusInternalServerError, fallback)
	}
}

func respondWithTransaction(c *gin.Context, code int, t *models.Transaction) {
	c.Header("ETag", strconv.Quote(strconv.FormatInt(t.Version, 10)))
	c.JSON(code, models.ToView(t))
}

// parseIfMatch reads a version from an If-Match header. It accepts bare and
// quoted values, as well as weak validators. An empty header means no guard.
func parseIfMatch(header string) (*int64, error) {
	header = strings.TrimSpace(header)
	if header == "" || header == "*" {
		return nil, nil
	}
	header = strings.TrimPrefix(header, "W/")
	version, err := strconv.ParseInt(strings.Trim(header, `"`), 10, 64)
	if err != nil {
		return nil, err
	}
	return &version, nil
}
