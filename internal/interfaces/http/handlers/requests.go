package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/orris-inc/quickpay/internal/shared/errors"
)

var (
	hex32Pattern    = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)
	hexBytesPattern = regexp.MustCompile(`^0x([0-9a-fA-F]{2})+$`)
	registerOnce    sync.Once
)

// RegisterValidators adds the hex32 and hexbytes tags to gin's validator.
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("hex32", func(fl validator.FieldLevel) bool {
			return hex32Pattern.MatchString(fl.Field().String())
		})
		_ = v.RegisterValidation("hexbytes", func(fl validator.FieldLevel) bool {
			return hexBytesPattern.MatchString(fl.Field().String())
		})
	})
}

// TokenAmount is an amount in the token's smallest unit. It accepts a JSON
// number or a decimal string, since large amounts lose precision as numbers in JS.
type TokenAmount uint64

func (a *TokenAmount) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	v, err := strconv.ParseUint(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("amount must be a non-negative integer: %w", err)
	}
	*a = TokenAmount(v)
	return nil
}

func (a TokenAmount) MarshalJSON() ([]byte, error) {
	return json.Marshal(strconv.FormatUint(uint64(a), 10))
}

// CreateSessionRequest is the owner-signed session creation message.
type CreateSessionRequest struct {
	Owner       string      `json:"owner" binding:"required,eth_addr"`
	Signer      string      `json:"signer" binding:"required,eth_addr"`
	SingleLimit TokenAmount `json:"single_limit" binding:"required"`
	DailyLimit  TokenAmount `json:"daily_limit" binding:"required"`
	ExpiryDays  uint32      `json:"expiry_days" binding:"required,gt=0"`
	Signature   string      `json:"signature" binding:"required,hexbytes"`
}

// SubmitQuickPayRequest is a session-key signed payment.
type SubmitQuickPayRequest struct {
	SessionID string      `json:"session_id" binding:"required,hex32"`
	PaymentID string      `json:"payment_id" binding:"required,max=128"`
	To        string      `json:"to" binding:"required,eth_addr"`
	Amount    TokenAmount `json:"amount" binding:"required"`
	Signature string      `json:"signature" binding:"required,hexbytes"`
	Nonce     uint64      `json:"nonce"`
}

// bindJSON binds and validates the body, mapping failures to a validation error.
func bindJSON(c *gin.Context, req any) error {
	if err := c.ShouldBindJSON(req); err != nil {
		return errors.NewValidationError("invalid request body", err.Error()).
			WithReason(errors.ReasonInvalidRequest)
	}
	return nil
}

func parseSessionIDParam(c *gin.Context) (common.Hash, error) {
	raw := c.Param("id")
	if !hex32Pattern.MatchString(raw) {
		return common.Hash{}, errors.NewValidationError("invalid session id", "expected 0x-prefixed 32-byte hex").
			WithReason(errors.ReasonInvalidRequest)
	}
	return common.HexToHash(raw), nil
}

func parsePaymentIDParam(c *gin.Context) (string, error) {
	id := c.Param("payment_id")
	if id == "" || len(id) > 128 {
		return "", errors.NewValidationError("invalid payment id").
			WithReason(errors.ReasonInvalidRequest)
	}
	return id, nil
}

func decodeHex(s string) []byte {
	b, err := hexutil.Decode(s)
	if err != nil {
		return nil
	}
	return b
}
