// Package signature verifies EIP-712 signatures over session-creation and
// quick-pay messages.
package signature

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/orris-inc/quickpay/internal/domain/quickpay"
	"github.com/orris-inc/quickpay/internal/domain/session"
	"github.com/orris-inc/quickpay/internal/shared/version"
)

const (
	// DomainName is the EIP-712 domain name shared with the settlement contract.
	DomainName = "QuickPaySession"

	// ProtocolVersion is the message layout version advertised with new sessions.
	// Changing the QuickPay or CreateSession type requires a major bump.
	ProtocolVersion = "1.0.0"

	primaryQuickPay      = "QuickPay"
	primaryCreateSession = "CreateSession"
)

var eip712Types = apitypes.Types{
	"EIP712Domain": []apitypes.Type{
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	primaryQuickPay: []apitypes.Type{
		{Name: "sessionId", Type: "bytes32"},
		{Name: "to", Type: "address"},
		{Name: "amount", Type: "uint256"},
		{Name: "paymentId", Type: "bytes32"},
		{Name: "chainId", Type: "uint256"},
	},
	primaryCreateSession: []apitypes.Type{
		{Name: "signer", Type: "address"},
		{Name: "singleLimit", Type: "uint256"},
		{Name: "dailyLimit", Type: "uint256"},
		{Name: "expiryDays", Type: "uint256"},
	},
}

// CreateSessionMessage is the owner-signed session creation payload.
type CreateSessionMessage struct {
	Signer      common.Address
	SingleLimit uint64
	DailyLimit  uint64
	ExpiryDays  uint32
}

// Verifier is stateless after construction and safe for concurrent use.
type Verifier struct {
	chainID           *big.Int
	verifyingContract common.Address
	supported         string
}

func NewVerifier(chainID int64, verifyingContract common.Address) *Verifier {
	return &Verifier{
		chainID:           big.NewInt(chainID),
		verifyingContract: verifyingContract,
		supported:         ProtocolVersion,
	}
}

// ProtocolVersion returns the version stamped on sessions created by this verifier.
func (v *Verifier) ProtocolVersion() string {
	return v.supported
}

// QuickPayDigest returns the EIP-712 digest a session signer signs for req.
func (v *Verifier) QuickPayDigest(req quickpay.Request, protocolVersion string) ([]byte, error) {
	return v.digest(primaryQuickPay, protocolVersion, apitypes.TypedDataMessage{
		"sessionId": [32]byte(req.SessionID),
		"to":        req.To.Hex(),
		"amount":    new(big.Int).SetUint64(req.Amount),
		"paymentId": [32]byte(quickpay.OnChainPaymentID(req.PaymentID)),
		"chainId":   new(big.Int).Set(v.chainID),
	})
}

// CreateSessionDigest returns the EIP-712 digest an owner signs to open a session.
func (v *Verifier) CreateSessionDigest(msg CreateSessionMessage) ([]byte, error) {
	return v.digest(primaryCreateSession, v.supported, apitypes.TypedDataMessage{
		"signer":      msg.Signer.Hex(),
		"singleLimit": new(big.Int).SetUint64(msg.SingleLimit),
		"dailyLimit":  new(big.Int).SetUint64(msg.DailyLimit),
		"expiryDays":  big.NewInt(int64(msg.ExpiryDays)),
	})
}

// VerifyQuickPay checks that req was signed by the session's registered signer
// under the session's protocol version.
func (v *Verifier) VerifyQuickPay(req quickpay.Request, s *session.Session) error {
	if !version.Compatible(v.supported, s.ProtocolVersion()) {
		return fmt.Errorf("%w: unsupported protocol version %q", quickpay.ErrInvalidSignature, s.ProtocolVersion())
	}
	digest, err := v.QuickPayDigest(req, s.ProtocolVersion())
	if err != nil {
		return fmt.Errorf("%w: %v", quickpay.ErrInvalidSignature, err)
	}
	signer, err := recoverAddress(digest, req.Signature)
	if err != nil {
		return err
	}
	if signer != s.Signer() {
		return fmt.Errorf("%w: recovered %s, session signer %s", quickpay.ErrInvalidSignature, signer.Hex(), s.Signer().Hex())
	}
	return nil
}

// RecoverSessionOwner returns the address that signed msg.
func (v *Verifier) RecoverSessionOwner(msg CreateSessionMessage, sig []byte) (common.Address, error) {
	digest, err := v.CreateSessionDigest(msg)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", quickpay.ErrInvalidSignature, err)
	}
	return recoverAddress(digest, sig)
}

func (v *Verifier) digest(primaryType, protocolVersion string, message apitypes.TypedDataMessage) ([]byte, error) {
	major := version.Major(protocolVersion)
	if major == "" {
		return nil, fmt.Errorf("invalid protocol version %q", protocolVersion)
	}

	chainID := math.HexOrDecimal256(*v.chainID)
	typedData := apitypes.TypedData{
		Types:       eip712Types,
		PrimaryType: primaryType,
		Domain: apitypes.TypedDataDomain{
			Name:              DomainName,
			Version:           major,
			ChainId:           &chainID,
			VerifyingContract: v.verifyingContract.Hex(),
		},
		Message: message,
	}

	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("failed to hash typed data domain: %w", err)
	}
	messageHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to hash typed data message: %w", err)
	}

	rawData := append(append([]byte("\x19\x01"), domainSeparator...), messageHash...)
	return crypto.Keccak256(rawData), nil
}

func recoverAddress(digest, sig []byte) (common.Address, error) {
	if len(sig) != quickpay.SignatureLength {
		return common.Address{}, fmt.Errorf("%w: expected %d bytes, got %d", quickpay.ErrInvalidSignature, quickpay.SignatureLength, len(sig))
	}

	// Copy so the caller's signature keeps its original v.
	normalized := make([]byte, len(sig))
	copy(normalized, sig)
	if normalized[64] == 27 || normalized[64] == 28 {
		normalized[64] -= 27
	}

	pubkey, err := crypto.SigToPub(digest, normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", quickpay.ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pubkey), nil
}

// SignDigest signs digest with key and returns a 65-byte signature with v in {27, 28},
// the form wallets produce.
func SignDigest(digest []byte, key *ecdsa.PrivateKey) ([]byte, error) {
	sig, err := crypto.Sign(digest, key)
	if err != nil {
		return nil, err
	}
	sig[64] += 27
	return sig, nil
}
