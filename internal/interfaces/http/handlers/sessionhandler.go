package handlers

import (
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/orris-inc/quickpay/internal/application/quickpay/dto"
	"github.com/orris-inc/quickpay/internal/application/quickpay/usecases"
	"github.com/orris-inc/quickpay/internal/shared/biztime"
	"github.com/orris-inc/quickpay/internal/shared/errors"
	"github.com/orris-inc/quickpay/internal/shared/logger"
	"github.com/orris-inc/quickpay/internal/shared/utils"
)

type SessionHandler struct {
	createSessionUC createSessionUseCase
	getSessionUC    getSessionUseCase
	revokeSessionUC revokeSessionUseCase
	listPaymentsUC  listSessionPaymentsUseCase
	logger          logger.Interface
}

func NewSessionHandler(
	createSessionUC createSessionUseCase,
	getSessionUC getSessionUseCase,
	revokeSessionUC revokeSessionUseCase,
	listPaymentsUC listSessionPaymentsUseCase,
	log logger.Interface,
) *SessionHandler {
	return &SessionHandler{
		createSessionUC: createSessionUC,
		getSessionUC:    getSessionUC,
		revokeSessionUC: revokeSessionUC,
		listPaymentsUC:  listPaymentsUC,
		logger:          log,
	}
}

// CreateSession registers an owner-signed spending session
// @Summary Create session
// @Description Verify the owner's signature over the session terms, register the session on chain and persist it. Resubmitting the same signed message returns the existing session.
// @Tags Sessions
// @Accept json
// @Produce json
// @Param request body CreateSessionRequest true "Signed session terms"
// @Success 201 {object} utils.APIResponse{data=dto.SessionDTO}
// @Success 200 {object} utils.APIResponse{data=dto.SessionDTO}
// @Failure 400 {object} utils.APIResponse
// @Failure 500 {object} utils.APIResponse
// @Router /sessions [post]
func (h *SessionHandler) CreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if err := bindJSON(c, &req); err != nil {
		h.logger.Warnw("invalid request body for create session", "error", err)
		utils.ErrorResponseWithError(c, err)
		return
	}

	result, err := h.createSessionUC.Execute(c.Request.Context(), usecases.CreateSessionCommand{
		Owner:          common.HexToAddress(req.Owner),
		Signer:         common.HexToAddress(req.Signer),
		SingleLimit:    uint64(req.SingleLimit),
		DailyLimit:     uint64(req.DailyLimit),
		ExpiryDays:     req.ExpiryDays,
		OwnerSignature: decodeHex(req.Signature),
	})
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	data := dto.ToSessionDTO(result.Session, biztime.NowUTC())
	if !result.Created {
		utils.SuccessResponse(c, http.StatusOK, "Session already exists", data)
		return
	}
	utils.CreatedResponse(c, data, "Session created successfully")
}

// GetSession returns a session and its usage for the current settlement day
// @Summary Get session
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID (0x-prefixed bytes32)"
// @Param include_on_chain query bool false "Also read the contract's view"
// @Success 200 {object} utils.APIResponse{data=dto.SessionDTO}
// @Failure 400 {object} utils.APIResponse
// @Failure 404 {object} utils.APIResponse
// @Router /sessions/{id} [get]
func (h *SessionHandler) GetSession(c *gin.Context) {
	sessionID, err := parseSessionIDParam(c)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}
	includeOnChain, _ := strconv.ParseBool(c.Query("include_on_chain"))

	result, err := h.getSessionUC.Execute(c.Request.Context(), usecases.GetSessionQuery{
		SessionID:      sessionID,
		IncludeOnChain: includeOnChain,
	})
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	data := dto.ToSessionDTO(result.Session, biztime.NowUTC())
	if result.OnChain != nil {
		active := result.OnChain.Active
		data.OnChainActive = &active
	}
	utils.SuccessResponse(c, http.StatusOK, "", data)
}

// RevokeSession deactivates a session
// @Summary Revoke session
// @Description Idempotent. Queued payments of the session fail with session_inactive when the relayer reaches them.
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID (0x-prefixed bytes32)"
// @Success 200 {object} utils.APIResponse{data=dto.SessionDTO}
// @Failure 404 {object} utils.APIResponse
// @Router /sessions/{id}/revoke [post]
func (h *SessionHandler) RevokeSession(c *gin.Context) {
	sessionID, err := parseSessionIDParam(c)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	result, err := h.revokeSessionUC.Execute(c.Request.Context(), usecases.RevokeSessionCommand{SessionID: sessionID})
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	data := dto.ToSessionDTO(result.Session, biztime.NowUTC())
	data.OnChainActive = result.OnChainActive
	utils.SuccessResponse(c, http.StatusOK, "Session revoked", data)
}

// ListSessionPayments returns the newest payments of a session
// @Summary List session payments
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID (0x-prefixed bytes32)"
// @Param limit query int false "Max results (default 50, max 200)"
// @Success 200 {object} utils.APIResponse{data=[]dto.PaymentDTO}
// @Router /sessions/{id}/payments [get]
func (h *SessionHandler) ListSessionPayments(c *gin.Context) {
	sessionID, err := parseSessionIDParam(c)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			utils.ErrorResponseWithError(c, errors.NewValidationError("limit must be a non-negative integer").
				WithReason(errors.ReasonInvalidRequest))
			return
		}
	}

	payments, err := h.listPaymentsUC.ListSessionPayments(c.Request.Context(), sessionID, limit)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "", payments)
}
