package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/orris-inc/quickpay/internal/application/quickpay/usecases"
	"github.com/orris-inc/quickpay/internal/interfaces/http/handlers/common"
	"github.com/orris-inc/quickpay/internal/shared/utils"
)

// EventStreamHandler streams terminal payment outcomes of one session over SSE.
type EventStreamHandler struct {
	*common.SSEHandlerBase
	getSessionUC getSessionUseCase
}

func NewEventStreamHandler(base *common.SSEHandlerBase, getSessionUC getSessionUseCase) *EventStreamHandler {
	return &EventStreamHandler{
		SSEHandlerBase: base,
		getSessionUC:   getSessionUC,
	}
}

// StreamSessionEvents streams payment outcome events for a session
// @Summary Stream session payment events
// @Description Server-sent events. Each terminal payment outcome of the session is sent as "event: payment.<status>" with the payment event as JSON data.
// @Tags Sessions
// @Produce text/event-stream
// @Param id path string true "Session ID (0x-prefixed bytes32)"
// @Success 200 {string} string "event stream"
// @Failure 404 {object} utils.APIResponse
// @Failure 429 {object} utils.APIResponse
// @Router /sessions/{id}/events [get]
func (h *EventStreamHandler) StreamSessionEvents(c *gin.Context) {
	sessionID, err := parseSessionIDParam(c)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	if _, err := h.getSessionUC.Execute(c.Request.Context(), usecases.GetSessionQuery{SessionID: sessionID}); err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	connID := h.GenerateConnID()
	conn := h.Hub().RegisterConn(connID, sessionID.Hex())
	if conn == nil {
		h.HandleTooManyRequests(c)
		return
	}

	h.SetupSSEResponse(c)
	if !h.SendInitialConnection(c) {
		h.HandleInitialWriteError(connID)
		return
	}

	h.RunEventLoop(c, conn)
}
