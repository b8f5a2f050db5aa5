// Package common provides shared HTTP handler utilities.
package common

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/orris-inc/quickpay/internal/infrastructure/services"
	"github.com/orris-inc/quickpay/internal/shared/errors"
	"github.com/orris-inc/quickpay/internal/shared/logger"
	"github.com/orris-inc/quickpay/internal/shared/utils"
)

const (
	// SSEKeepaliveInterval is the interval for sending keepalive messages.
	SSEKeepaliveInterval = 30 * time.Second

	// SSEContentType is the content type for SSE responses.
	SSEContentType = "text/event-stream"
)

// SSEHandlerBase provides common SSE plumbing on top of the payment hub.
type SSEHandlerBase struct {
	hub               *services.PaymentHub
	logger            logger.Interface
	keepaliveInterval time.Duration
}

func NewSSEHandlerBase(hub *services.PaymentHub, log logger.Interface) *SSEHandlerBase {
	return &SSEHandlerBase{
		hub:               hub,
		logger:            log,
		keepaliveInterval: SSEKeepaliveInterval,
	}
}

func (h *SSEHandlerBase) Hub() *services.PaymentHub {
	return h.hub
}

// SetupSSEResponse sets common SSE response headers.
func (h *SSEHandlerBase) SetupSSEResponse(c *gin.Context) {
	c.Header("Content-Type", SSEContentType)
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no") // Disable Nginx buffering
}

func (h *SSEHandlerBase) GenerateConnID() string {
	return uuid.New().String()
}

// HandleTooManyRequests sends a too many requests error response.
func (h *SSEHandlerBase) HandleTooManyRequests(c *gin.Context) {
	utils.ErrorResponseWithError(c, errors.NewTooManyRequestsError("too many event stream connections").
		WithReason(errors.ReasonRateLimited))
}

// SendInitialConnection sends the initial SSE connection comment.
func (h *SSEHandlerBase) SendInitialConnection(c *gin.Context) bool {
	if _, err := c.Writer.WriteString(": connected\n\n"); err != nil {
		return false
	}
	c.Writer.Flush()
	return true
}

// RunEventLoop blocks until the client disconnects, a write fails or the hub
// closes the connection.
func (h *SSEHandlerBase) RunEventLoop(c *gin.Context, conn *services.SSEConn) {
	keepAliveTicker := time.NewTicker(h.keepaliveInterval)
	defer keepAliveTicker.Stop()

	ctx := c.Request.Context()

	for {
		select {
		case <-ctx.Done():
			h.hub.UnregisterConn(conn.ID)
			h.logger.Infow("event stream closed by client",
				"conn_id", conn.ID,
				"session_id", conn.SessionID,
			)
			return

		case data, ok := <-conn.Send:
			if !ok {
				return
			}
			if _, err := c.Writer.Write(data); err != nil {
				h.hub.UnregisterConn(conn.ID)
				h.logger.Warnw("event stream write error", "conn_id", conn.ID, "error", err)
				return
			}
			c.Writer.Flush()

		case <-keepAliveTicker.C:
			if _, err := c.Writer.WriteString(": keepalive\n\n"); err != nil {
				h.hub.UnregisterConn(conn.ID)
				h.logger.Warnw("event stream keepalive error", "conn_id", conn.ID, "error", err)
				return
			}
			c.Writer.Flush()
		}
	}
}

// HandleInitialWriteError handles the case when initial SSE write fails.
func (h *SSEHandlerBase) HandleInitialWriteError(connID string) {
	h.hub.UnregisterConn(connID)
	h.logger.Warnw("SSE initial write error", "conn_id", connID)
}
