package handler

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	syncapp "github.com/ordersync/backend/internal/application/sync"
	"github.com/ordersync/backend/internal/domain/order"
	syncdomain "github.com/ordersync/backend/internal/domain/sync"
	"github.com/ordersync/backend/internal/infrastructure/config"
	"github.com/ordersync/backend/internal/infrastructure/logger"
	"github.com/ordersync/backend/internal/infrastructure/marketplace"
	"github.com/ordersync/backend/internal/interfaces/http/dto"
)

// WebhookIngestor is the reconciler surface the handler needs
type WebhookIngestor interface {
	IngestAndProcess(ctx context.Context, platform order.Platform, platformOrderID, eventType string, payload []byte, eventAt *time.Time, signatureValid bool) (*syncdomain.WebhookEvent, error)
	Replay(ctx context.Context, id uuid.UUID) (*syncdomain.WebhookEvent, error)
}

var _ WebhookIngestor = (*syncapp.Reconciler)(nil)

// WebhookHandler handles marketplace push notification endpoints. The ingress
// endpoints are called by the platforms and are not authenticated; requests
// carry a platform signature instead. The event endpoints are operator-facing.
type WebhookHandler struct {
	BaseHandler
	reconciler  WebhookIngestor
	events      syncdomain.WebhookEventRepository
	shopee      config.ShopeeConfig
	lazada      config.LazadaConfig
	maxBodySize int64
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(
	reconciler WebhookIngestor,
	events syncdomain.WebhookEventRepository,
	cfg *config.Config,
) *WebhookHandler {
	return &WebhookHandler{
		reconciler:  reconciler,
		events:      events,
		shopee:      cfg.Shopee,
		lazada:      cfg.Lazada,
		maxBodySize: cfg.Webhook.MaxBodySize,
	}
}

// RegisterRoutes registers webhook routes
func (h *WebhookHandler) RegisterRoutes(rg *gin.RouterGroup) {
	webhooks := rg.Group("/webhooks")
	{
		webhooks.POST("/:platform", h.Receive)
		webhooks.GET("/events", h.ListEvents)
		webhooks.GET("/events/:id", h.GetEvent)
		webhooks.POST("/events/:id/replay", h.ReplayEvent)
	}
}

// ReceiveResponse acknowledges a push to the platform
type ReceiveResponse struct {
	EventID string `json:"event_id"`
	Status  string `json:"status"`
}

// Receive godoc
//
//	@ID			receiveWebhook
//	@Summary	Receive a marketplace push notification
//	@Description	Persists the raw event and responds 200 as soon as it is
//	@Description	durable; processing runs in the background and records its
//	@Description	outcome on the event.
//	@Tags		webhooks
//	@Accept		json
//	@Produce	json
//	@Param		platform		path	string	true	"Platform (shopee, lazada)"
//	@Param		Authorization	header	string	false	"Platform push signature"
//	@Success	200	{object}	dto.Response{data=ReceiveResponse}
//	@Failure	400	{object}	dto.Response
//	@Failure	404	{object}	dto.Response
//	@Router		/webhooks/{platform} [post]
func (h *WebhookHandler) Receive(c *gin.Context) {
	platform := order.Platform(strings.ToUpper(c.Param("platform")))
	if !platform.IsValid() {
		h.NotFound(c, "Unknown platform")
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, h.maxBodySize+1))
	if err != nil {
		h.BadRequest(c, "Failed to read request body")
		return
	}
	if int64(len(body)) > h.maxBodySize {
		h.Error(c, http.StatusRequestEntityTooLarge, dto.ErrCodeBadRequest, "Payload too large")
		return
	}

	authorization := c.GetHeader("Authorization")
	log := logger.GetGinLogger(c)

	var (
		push           *marketplace.PushEvent
		signatureValid bool
	)
	switch platform {
	case order.PlatformShopee:
		push, err = marketplace.ParseShopeePush(body)
		signatureValid = marketplace.VerifyShopeePush(
			h.shopeePushKey(), requestURL(c), body, authorization)
	case order.PlatformLazada:
		push, err = marketplace.ParseLazadaPush(body)
		signatureValid = marketplace.VerifyLazadaPush(
			h.lazada.AppSecret, h.lazada.AppKey, body, authorization)
	}
	if err != nil {
		log.Warn("webhook body rejected",
			zap.String("platform", platform.String()),
			zap.Error(err))
		h.BadRequest(c, "Unrecognized webhook payload")
		return
	}

	event, err := h.reconciler.IngestAndProcess(
		c.Request.Context(),
		platform,
		push.PlatformOrderID,
		push.EventType,
		body,
		push.EventAt,
		signatureValid,
	)
	if err != nil {
		// Not durable; the platform must redeliver
		h.HandleError(c, err)
		return
	}

	h.Success(c, ReceiveResponse{
		EventID: event.ID.String(),
		Status:  event.Status.String(),
	})
}

// ListEventsRequest filters the webhook event list
type ListEventsRequest struct {
	Platform        string `form:"platform"`
	Status          string `form:"status"`
	PlatformOrderID string `form:"platform_order_id"`
	Page            int    `form:"page"`
	PageSize        int    `form:"page_size"`
}

// ListEvents godoc
//
//	@ID			listWebhookEvents
//	@Summary	List received webhook events
//	@Tags		webhooks
//	@Produce	json
//	@Param		platform			query	string	false	"Filter by platform"
//	@Param		status				query	string	false	"Filter by processing status"
//	@Param		platform_order_id	query	string	false	"Filter by platform order ID"
//	@Param		page				query	int		false	"Page number"
//	@Param		page_size			query	int		false	"Page size"
//	@Success	200	{object}	dto.Response{data=[]sync.WebhookEvent}
//	@Router		/webhooks/events [get]
func (h *WebhookHandler) ListEvents(c *gin.Context) {
	var req ListEventsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.BadRequest(c, "Invalid query parameters")
		return
	}
	if req.Page < 1 {
		req.Page = 1
	}
	if req.PageSize < 1 || req.PageSize > 100 {
		req.PageSize = 20
	}

	filter := syncdomain.WebhookEventFilter{
		PlatformOrderID: req.PlatformOrderID,
		Limit:           req.PageSize,
		Offset:          (req.Page - 1) * req.PageSize,
	}
	if req.Platform != "" {
		platform := order.Platform(strings.ToUpper(req.Platform))
		if !platform.IsValid() {
			h.BadRequest(c, "Unknown platform")
			return
		}
		filter.Platform = &platform
	}
	if req.Status != "" {
		status := syncdomain.WebhookStatus(strings.ToUpper(req.Status))
		if !status.IsValid() {
			h.BadRequest(c, "Unknown event status")
			return
		}
		filter.Status = &status
	}

	events, total, err := h.events.List(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, events, total, req.Page, req.PageSize)
}

// GetEvent godoc
//
//	@ID			getWebhookEvent
//	@Summary	Get one webhook event
//	@Tags		webhooks
//	@Produce	json
//	@Param		id	path	string	true	"Event ID"
//	@Success	200	{object}	dto.Response{data=sync.WebhookEvent}
//	@Failure	404	{object}	dto.Response
//	@Router		/webhooks/events/{id} [get]
func (h *WebhookHandler) GetEvent(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid event ID")
		return
	}

	event, err := h.events.FindByID(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, event)
}

// ReplayEvent godoc
//
//	@ID			replayWebhookEvent
//	@Summary	Reprocess a finished webhook event
//	@Description	Replay is idempotent; an already applied observation changes nothing.
//	@Tags		webhooks
//	@Produce	json
//	@Param		id	path	string	true	"Event ID"
//	@Success	200	{object}	dto.Response{data=sync.WebhookEvent}
//	@Failure	404	{object}	dto.Response
//	@Failure	422	{object}	dto.Response
//	@Router		/webhooks/events/{id}/replay [post]
func (h *WebhookHandler) ReplayEvent(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid event ID")
		return
	}

	event, err := h.reconciler.Replay(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, event)
}

// shopeePushKey returns the key Shopee pushes are signed with. Shopee reuses
// the partner key unless a dedicated push key was issued.
func (h *WebhookHandler) shopeePushKey() string {
	if h.shopee.PushPartnerKey != "" {
		return h.shopee.PushPartnerKey
	}
	return h.shopee.PartnerKey
}

// requestURL rebuilds the callback URL the platform signed against
func requestURL(c *gin.Context) string {
	scheme := "https"
	if proto := c.GetHeader("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	} else if c.Request.TLS == nil {
		scheme = "http"
	}
	return scheme + "://" + c.Request.Host + c.Request.URL.Path
}
