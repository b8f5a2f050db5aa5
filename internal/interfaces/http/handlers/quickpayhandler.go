package handlers

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/orris-inc/quickpay/internal/application/quickpay/usecases"
	"github.com/orris-inc/quickpay/internal/domain/quickpay"
	"github.com/orris-inc/quickpay/internal/shared/logger"
	"github.com/orris-inc/quickpay/internal/shared/utils"
)

type QuickPayHandler struct {
	submitUC        submitQuickPayUseCase
	getStatusUC     getPaymentStatusUseCase
	cancelUC        cancelPaymentUseCase
	relayerStatusUC getRelayerStatusUseCase
	logger          logger.Interface
}

func NewQuickPayHandler(
	submitUC submitQuickPayUseCase,
	getStatusUC getPaymentStatusUseCase,
	cancelUC cancelPaymentUseCase,
	relayerStatusUC getRelayerStatusUseCase,
	log logger.Interface,
) *QuickPayHandler {
	return &QuickPayHandler{
		submitUC:        submitUC,
		getStatusUC:     getStatusUC,
		cancelUC:        cancelUC,
		relayerStatusUC: relayerStatusUC,
		logger:          log,
	}
}

// SubmitQuickPay accepts a session-key signed payment for asynchronous settlement
// @Summary Submit quick payment
// @Description Verifies the signature and reserves quota synchronously. Settlement happens in the background; poll the payment status.
// @Tags QuickPay
// @Accept json
// @Produce json
// @Param request body SubmitQuickPayRequest true "Signed payment"
// @Success 202 {object} utils.APIResponse{data=dto.SubmitResult}
// @Failure 400 {object} utils.APIResponse
// @Failure 404 {object} utils.APIResponse
// @Failure 409 {object} utils.APIResponse
// @Failure 422 {object} utils.APIResponse
// @Failure 429 {object} utils.APIResponse
// @Router /quickpay [post]
func (h *QuickPayHandler) SubmitQuickPay(c *gin.Context) {
	var req SubmitQuickPayRequest
	if err := bindJSON(c, &req); err != nil {
		h.logger.Warnw("invalid request body for quickpay", "error", err)
		utils.ErrorResponseWithError(c, err)
		return
	}

	result, err := h.submitUC.Execute(c.Request.Context(), usecases.SubmitQuickPayCommand{
		Request: quickpay.Request{
			SessionID: common.HexToHash(req.SessionID),
			PaymentID: req.PaymentID,
			To:        common.HexToAddress(req.To),
			Amount:    uint64(req.Amount),
			Signature: decodeHex(req.Signature),
			Nonce:     req.Nonce,
		},
	})
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusAccepted, "Payment accepted", result)
}

// GetPaymentStatus returns the ledger record of a payment
// @Summary Get payment status
// @Tags QuickPay
// @Produce json
// @Param payment_id path string true "Caller-supplied payment id"
// @Success 200 {object} utils.APIResponse{data=dto.PaymentDTO}
// @Failure 404 {object} utils.APIResponse
// @Router /quickpay/{payment_id} [get]
func (h *QuickPayHandler) GetPaymentStatus(c *gin.Context) {
	paymentID, err := parsePaymentIDParam(c)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	result, err := h.getStatusUC.Execute(c.Request.Context(), paymentID)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "", result)
}

// CancelPayment cancels a queued payment and releases its quota
// @Summary Cancel payment
// @Tags QuickPay
// @Produce json
// @Param payment_id path string true "Caller-supplied payment id"
// @Success 200 {object} utils.APIResponse{data=dto.PaymentDTO}
// @Failure 404 {object} utils.APIResponse
// @Failure 409 {object} utils.APIResponse
// @Router /quickpay/{payment_id}/cancel [post]
func (h *QuickPayHandler) CancelPayment(c *gin.Context) {
	paymentID, err := parsePaymentIDParam(c)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	result, err := h.cancelUC.Execute(c.Request.Context(), paymentID)
	if err != nil {
		h.logger.Warnw("cancel payment rejected", "payment_id", paymentID, "error", err)
		utils.ErrorResponseWithError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Payment cancelled", result)
}

// GetRelayerStatus reports queue depth and the last relayer run
// @Summary Relayer status
// @Tags Relayer
// @Produce json
// @Success 200 {object} utils.APIResponse{data=relay.Status}
// @Router /relayer/status [get]
func (h *QuickPayHandler) GetRelayerStatus(c *gin.Context) {
	status, err := h.relayerStatusUC.Execute(c.Request.Context())
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "", status)
}
