package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	stockapp "github.com/ordersync/backend/internal/application/stock"
	"github.com/ordersync/backend/internal/domain/stock"
)

// LevelReader is the stock query surface the handler needs
type LevelReader interface {
	Levels(ctx context.Context, warehouseID *uuid.UUID) ([]stock.Level, error)
	OrderMovements(ctx context.Context, orderID uuid.UUID) ([]stock.Movement, error)
}

var _ LevelReader = (*stockapp.LevelService)(nil)

// StockHandler handles read-only stock aggregation endpoints
type StockHandler struct {
	BaseHandler
	levels LevelReader
}

// NewStockHandler creates a new StockHandler
func NewStockHandler(levels LevelReader) *StockHandler {
	return &StockHandler{levels: levels}
}

// RegisterRoutes registers stock routes
func (h *StockHandler) RegisterRoutes(rg *gin.RouterGroup) {
	stockGroup := rg.Group("/stock")
	{
		stockGroup.GET("/levels", h.Levels)
		stockGroup.GET("/orders/:id/movements", h.OrderMovements)
	}
}

// Levels godoc
//
//	@ID			getStockLevels
//	@Summary	Get on-hand, reserved and available stock per SKU and warehouse
//	@Tags		stock
//	@Produce	json
//	@Param		warehouse_id	query	string	false	"Scope to one warehouse"
//	@Success	200	{object}	dto.Response{data=[]stock.Level}
//	@Failure	400	{object}	dto.Response
//	@Router		/stock/levels [get]
func (h *StockHandler) Levels(c *gin.Context) {
	var warehouseID *uuid.UUID
	if raw := c.Query("warehouse_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			h.BadRequest(c, "Invalid warehouse ID")
			return
		}
		warehouseID = &id
	}

	levels, err := h.levels.Levels(c.Request.Context(), warehouseID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, levels)
}

// OrderMovements godoc
//
//	@ID			getOrderMovements
//	@Summary	List every stock movement an order has booked
//	@Tags		stock
//	@Produce	json
//	@Param		id	path	string	true	"Order ID"
//	@Success	200	{object}	dto.Response{data=[]stock.Movement}
//	@Failure	400	{object}	dto.Response
//	@Router		/stock/orders/{id}/movements [get]
func (h *StockHandler) OrderMovements(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid order ID")
		return
	}

	movements, err := h.levels.OrderMovements(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, movements)
}
