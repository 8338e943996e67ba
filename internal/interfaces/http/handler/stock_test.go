package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ordersync/backend/internal/domain/stock"
	"github.com/ordersync/backend/internal/interfaces/http/dto"
)

type fakeLevelReader struct {
	lastWarehouseID *uuid.UUID
	lastOrderID     uuid.UUID
	levels          []stock.Level
	movements       []stock.Movement
	err             error
}

func (f *fakeLevelReader) Levels(_ context.Context, warehouseID *uuid.UUID) ([]stock.Level, error) {
	f.lastWarehouseID = warehouseID
	return f.levels, f.err
}

func (f *fakeLevelReader) OrderMovements(_ context.Context, orderID uuid.UUID) ([]stock.Movement, error) {
	f.lastOrderID = orderID
	return f.movements, f.err
}

func newStockRouter(reader *fakeLevelReader) *gin.Engine {
	engine := gin.New()
	h := NewStockHandler(reader)
	h.RegisterRoutes(engine.Group("/api/v1"))
	return engine
}

func TestStockLevels(t *testing.T) {
	warehouseID := uuid.New()
	reader := &fakeLevelReader{
		levels: []stock.Level{{
			WarehouseID: warehouseID,
			SKU:         "SKU-1",
			OnHand:      decimal.NewFromInt(10),
			Reserved:    decimal.NewFromInt(3),
			Available:   decimal.NewFromInt(7),
		}},
	}
	engine := newStockRouter(reader)

	t.Run("all warehouses", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/v1/stock/levels", nil)
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Nil(t, reader.lastWarehouseID)

		var resp dto.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp.Success)
	})

	t.Run("scoped to one warehouse", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/v1/stock/levels?warehouse_id="+warehouseID.String(), nil)
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		require.NotNil(t, reader.lastWarehouseID)
		assert.Equal(t, warehouseID, *reader.lastWarehouseID)
	})

	t.Run("bad warehouse id", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/v1/stock/levels?warehouse_id=not-a-uuid", nil)
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestStockOrderMovements(t *testing.T) {
	reader := &fakeLevelReader{}
	engine := newStockRouter(reader)

	t.Run("by order id", func(t *testing.T) {
		orderID := uuid.New()
		req := httptest.NewRequest("GET", "/api/v1/stock/orders/"+orderID.String()+"/movements", nil)
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, orderID, reader.lastOrderID)
	})

	t.Run("bad order id", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/v1/stock/orders/nope/movements", nil)
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
