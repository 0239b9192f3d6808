package server

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kritsadaskt/ananta-custom-diamond/internal/diamonds"
	"github.com/kritsadaskt/ananta-custom-diamond/internal/events"
	"go.uber.org/zap"
)

type apiErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    []any  `json:"data"`
}

func (h *httpHandler) handleListDiamonds(c *gin.Context) {
	query := diamonds.NewListQuery(
		c.Query("orderby"),
		c.Query("order"),
		c.Query("limit"),
		diamonds.DefaultCatalogOrder,
	)
	records, err := h.catalog.ListDiamonds(c.Request.Context(), query)
	if h.requests != nil {
		h.requests.ObserveCatalogRequest(err)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, apiErrorPayload{
			Code:    "db_error",
			Message: "Database error occurred",
			Data:    []any{},
		})
		return
	}
	c.JSON(http.StatusOK, records)
}

// handleCatalogEvents streams catalog events until the client disconnects.
// A heartbeat is written on connect so clients see headers immediately.
func (h *httpHandler) handleCatalogEvents(c *gin.Context) {
	ctx := c.Request.Context()
	stream, cleanup := h.events.Subscribe(ctx)
	defer cleanup()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	h.writeHeartbeat(c)
	c.Writer.Flush()

	ticker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()

	c.Stream(func(io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case event, ok := <-stream:
			if !ok {
				return false
			}
			c.SSEvent(event.EventType, event)
			return true
		case <-ticker.C:
			h.writeHeartbeat(c)
			return true
		}
	})
	h.logger.Debug("catalog event stream closed", zap.String("remote", c.ClientIP()))
}

func (h *httpHandler) writeHeartbeat(c *gin.Context) {
	c.SSEvent(events.EventHeartbeat, gin.H{"timestamp": time.Now().UTC().Unix()})
}
