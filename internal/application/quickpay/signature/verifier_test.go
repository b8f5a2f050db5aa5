package signature

import (
	"crypto/ecdsa"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orris-inc/quickpay/internal/domain/quickpay"
	"github.com/orris-inc/quickpay/internal/domain/session"
)

var contract = common.HexToAddress("0x0000000000000000000000000000000000005e77")

type fixture struct {
	verifier  *Verifier
	signerKey *ecdsa.PrivateKey
	session   *session.Session
	request   quickpay.Request
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	signerKey, err := crypto.GenerateKey()
	require.NoError(t, err)

	s, err := session.NewSession(session.CreateParams{
		Owner:           common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Signer:          crypto.PubkeyToAddress(signerKey.PublicKey),
		SingleLimit:     100,
		DailyLimit:      150,
		ExpiryDays:      7,
		OwnerSignature:  []byte{0x01},
		ProtocolVersion: ProtocolVersion,
	}, time.Now())
	require.NoError(t, err)

	f := &fixture{
		verifier:  NewVerifier(84532, contract),
		signerKey: signerKey,
		session:   s,
		request: quickpay.Request{
			SessionID: s.ID(),
			PaymentID: "pay-123",
			To:        common.HexToAddress("0x3333333333333333333333333333333333333333"),
			Amount:    80,
			Nonce:     7,
		},
	}
	f.request.Signature = f.sign(t, f.request)
	return f
}

func (f *fixture) sign(t *testing.T, req quickpay.Request) []byte {
	t.Helper()
	digest, err := f.verifier.QuickPayDigest(req, ProtocolVersion)
	require.NoError(t, err)
	sig, err := SignDigest(digest, f.signerKey)
	require.NoError(t, err)
	return sig
}

func TestVerifyQuickPay_Valid(t *testing.T) {
	f := newFixture(t)
	assert.NoError(t, f.verifier.VerifyQuickPay(f.request, f.session))

	// v in {0, 1} is accepted as well
	raw := append([]byte(nil), f.request.Signature...)
	raw[64] -= 27
	req := f.request
	req.Signature = raw
	assert.NoError(t, f.verifier.VerifyQuickPay(req, f.session))
	assert.Equal(t, raw, req.Signature, "caller signature must not be mutated")
}

func TestVerifyQuickPay_TamperedFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *quickpay.Request)
	}{
		{"amount", func(r *quickpay.Request) { r.Amount++ }},
		{"payee", func(r *quickpay.Request) { r.To = common.HexToAddress("0x4444444444444444444444444444444444444444") }},
		{"payment id", func(r *quickpay.Request) { r.PaymentID = "pay-124" }},
		{"session id", func(r *quickpay.Request) { r.SessionID[0] ^= 0xff }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			req := f.request
			tt.mutate(&req)
			assert.ErrorIs(t, f.verifier.VerifyQuickPay(req, f.session), quickpay.ErrInvalidSignature)
		})
	}
}

func TestVerifyQuickPay_EveryFlippedSignatureByteRejected(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < quickpay.SignatureLength; i++ {
		req := f.request
		req.Signature = append([]byte(nil), f.request.Signature...)
		req.Signature[i] ^= 0x01
		err := f.verifier.VerifyQuickPay(req, f.session)
		assert.ErrorIsf(t, err, quickpay.ErrInvalidSignature, "byte %d", i)
	}
}

func TestVerifyQuickPay_DomainBinding(t *testing.T) {
	f := newFixture(t)

	otherChain := NewVerifier(1, contract)
	assert.ErrorIs(t, otherChain.VerifyQuickPay(f.request, f.session), quickpay.ErrInvalidSignature)

	otherContract := NewVerifier(84532, common.HexToAddress("0x00000000000000000000000000000000000000ff"))
	assert.ErrorIs(t, otherContract.VerifyQuickPay(f.request, f.session), quickpay.ErrInvalidSignature)
}

func TestVerifyQuickPay_MalformedSignature(t *testing.T) {
	f := newFixture(t)
	req := f.request
	req.Signature = req.Signature[:64]
	assert.ErrorIs(t, f.verifier.VerifyQuickPay(req, f.session), quickpay.ErrInvalidSignature)
}

func TestVerifyQuickPay_UnsupportedProtocolVersion(t *testing.T) {
	f := newFixture(t)
	s := session.ReconstructSession(session.ReconstructParams{
		ID:              f.session.ID(),
		Signer:          f.session.Signer(),
		ProtocolVersion: "2.0.0",
		Active:          true,
		Expiry:          f.session.Expiry(),
	})
	assert.ErrorIs(t, f.verifier.VerifyQuickPay(f.request, s), quickpay.ErrInvalidSignature)
}

func TestRecoverSessionOwner(t *testing.T) {
	ownerKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	v := NewVerifier(84532, contract)

	msg := CreateSessionMessage{
		Signer:      common.HexToAddress("0x2222222222222222222222222222222222222222"),
		SingleLimit: 100,
		DailyLimit:  150,
		ExpiryDays:  30,
	}
	digest, err := v.CreateSessionDigest(msg)
	require.NoError(t, err)
	sig, err := SignDigest(digest, ownerKey)
	require.NoError(t, err)

	owner, err := v.RecoverSessionOwner(msg, sig)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(ownerKey.PublicKey), owner)

	msg.DailyLimit = 1000
	tampered, err := v.RecoverSessionOwner(msg, sig)
	if err == nil {
		assert.NotEqual(t, crypto.PubkeyToAddress(ownerKey.PublicKey), tampered)
	}
}
