package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/giovaniif/e-commerce/inventory/domain/stock"
	"github.com/giovaniif/e-commerce/inventory/infra/requestid"
	"github.com/giovaniif/e-commerce/inventory/use_cases/bulk"
	"go.uber.org/zap"
)

type QuantityRequest struct {
	Quantity *int32 `json:"quantity" binding:"required"`
}

type ThresholdsRequest struct {
	MinimumThreshold *int32 `json:"minimumThreshold" binding:"required"`
	MaximumCapacity  *int32 `json:"maximumCapacity" binding:"required"`
}

type LocationRequest struct {
	WarehouseLocation string `json:"warehouseLocation"`
}

type BulkReserveRequest struct {
	Lines  []bulk.Line `json:"lines"`
	Policy bulk.Policy `json:"policy"`
}

type StockResponse struct {
	stock.Record
	AvailableQuantity     int32   `json:"availableQuantity"`
	LowStock              bool    `json:"lowStock"`
	OutOfStock            bool    `json:"outOfStock"`
	UtilizationPercentage float64 `json:"utilizationPercentage"`
}

type BulkLineResponse struct {
	ProductID string         `json:"productId"`
	Quantity  int32          `json:"quantity"`
	Reserved  bool           `json:"reserved"`
	Held      bool           `json:"held"`
	Stock     *StockResponse `json:"stock,omitempty"`
	Error     string         `json:"error,omitempty"`
}

type BulkReserveResponse struct {
	Succeeded bool               `json:"succeeded"`
	Replayed  bool               `json:"replayed"`
	Lines     []BulkLineResponse `json:"lines"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type handlers struct {
	stock  StockService
	bulk   BulkService
	logger *zap.Logger
}

func newStockResponse(record stock.Record) StockResponse {
	return StockResponse{
		Record:                record,
		AvailableQuantity:     record.AvailableQuantity(),
		LowStock:              record.IsLowStock(),
		OutOfStock:            record.IsOutOfStock(),
		UtilizationPercentage: record.UtilizationPercentage(),
	}
}

func (h *handlers) register(c *gin.Context) {
	var input stock.NewRecordInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}
	record, err := h.stock.Register(c.Request.Context(), input)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, newStockResponse(record))
}

func (h *handlers) get(c *gin.Context) {
	record, err := h.stock.Get(c.Request.Context(), c.Param("productId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newStockResponse(record))
}

type quantityOperation func(ctx context.Context, productId string, quantity int32) (stock.Record, error)

func (h *handlers) quantity(op quantityOperation) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req QuantityRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		record, err := op(c.Request.Context(), c.Param("productId"), *req.Quantity)
		if err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, newStockResponse(record))
	}
}

func (h *handlers) thresholds(c *gin.Context) {
	var req ThresholdsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	record, err := h.stock.UpdateThresholds(c.Request.Context(), c.Param("productId"), *req.MinimumThreshold, *req.MaximumCapacity)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newStockResponse(record))
}

func (h *handlers) location(c *gin.Context) {
	var req LocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	record, err := h.stock.Relocate(c.Request.Context(), c.Param("productId"), req.WarehouseLocation)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newStockResponse(record))
}

func (h *handlers) reserveBulk(c *gin.Context) {
	var req BulkReserveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	result, err := h.bulk.ReserveAll(c.Request.Context(), bulk.Input{
		IdempotencyKey: c.GetHeader("Idempotency-Key"),
		Lines:          req.Lines,
		Policy:         req.Policy,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	resp := BulkReserveResponse{Succeeded: result.Succeeded(), Replayed: result.Replayed}
	for _, o := range result.Outcomes {
		line := BulkLineResponse{ProductID: o.ProductID, Quantity: o.Quantity, Reserved: o.Reserved(), Held: o.Holding()}
		if o.Reserved() {
			s := newStockResponse(o.Record)
			line.Stock = &s
		} else {
			line.Error = o.Err.Error()
		}
		resp.Lines = append(resp.Lines, line)
	}
	c.JSON(http.StatusOK, resp)
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_request", Message: err.Error()})
}

func (h *handlers) fail(c *gin.Context, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		requestid.Logger(c.Request.Context(), h.logger).Error("request failed",
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		)
	}
	c.JSON(status, ErrorResponse{Error: code, Message: err.Error()})
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, stock.ErrValidation):
		return http.StatusBadRequest, "validation_failed"
	case errors.Is(err, stock.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, stock.ErrAlreadyExists):
		return http.StatusConflict, "already_exists"
	case errors.Is(err, bulk.ErrRequestInProgress):
		return http.StatusConflict, "request_in_progress"
	case errors.Is(err, stock.ErrInsufficientStock):
		return http.StatusUnprocessableEntity, "insufficient_stock"
	case errors.Is(err, stock.ErrReservationExceeded):
		return http.StatusUnprocessableEntity, "reservation_exceeded"
	case errors.Is(err, stock.ErrCapacityExceeded):
		return http.StatusUnprocessableEntity, "capacity_exceeded"
	case errors.Is(err, stock.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "store_unavailable"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
