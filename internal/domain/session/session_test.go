package session

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testOwner  = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testSigner = common.HexToAddress("0x2222222222222222222222222222222222222222")
	day0       = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
)

func newTestSession(t *testing.T, single, daily uint64) *Session {
	t.Helper()
	s, err := NewSession(CreateParams{
		Owner:           testOwner,
		Signer:          testSigner,
		SingleLimit:     single,
		DailyLimit:      daily,
		ExpiryDays:      30,
		OwnerSignature:  []byte{0x01, 0x02},
		ProtocolVersion: "1.0.0",
	}, day0)
	require.NoError(t, err)
	return s
}

func TestNewSession_Validation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(p *CreateParams)
		wantErr error
	}{
		{"zero single limit", func(p *CreateParams) { p.SingleLimit = 0 }, ErrInvalidLimits},
		{"single above daily", func(p *CreateParams) { p.SingleLimit = 200 }, ErrInvalidLimits},
		{"missing signer", func(p *CreateParams) { p.Signer = common.Address{} }, nil},
		{"expiry too long", func(p *CreateParams) { p.ExpiryDays = MaxExpiryDays + 1 }, nil},
		{"no signature", func(p *CreateParams) { p.OwnerSignature = nil }, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := CreateParams{
				Owner: testOwner, Signer: testSigner,
				SingleLimit: 100, DailyLimit: 150, ExpiryDays: 7,
				OwnerSignature: []byte{0xaa},
			}
			tt.mutate(&p)
			_, err := NewSession(p, day0)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestDeriveSessionID_Deterministic(t *testing.T) {
	a := DeriveSessionID(testOwner, []byte{1, 2, 3})
	b := DeriveSessionID(testOwner, []byte{1, 2, 3})
	c := DeriveSessionID(testOwner, []byte{1, 2, 4})

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestReserve_DailyLimitSequence(t *testing.T) {
	s := newTestSession(t, 100, 150)

	require.NoError(t, s.Reserve(80, day0))
	assert.Equal(t, uint64(80), s.UsedToday())

	assert.ErrorIs(t, s.Reserve(80, day0), ErrInsufficientDailyLimit)
	assert.Equal(t, uint64(80), s.UsedToday())

	require.NoError(t, s.Reserve(60, day0))
	assert.Equal(t, uint64(140), s.UsedToday())
}

func TestReserve_ExactRemainingAllowed(t *testing.T) {
	s := newTestSession(t, 100, 150)
	require.NoError(t, s.Reserve(100, day0))
	require.NoError(t, s.Reserve(50, day0))
	assert.Equal(t, uint64(150), s.UsedToday())
	assert.ErrorIs(t, s.Reserve(1, day0), ErrInsufficientDailyLimit)
}

func TestReserve_SingleLimitCheckedFirst(t *testing.T) {
	s := newTestSession(t, 100, 150)
	require.NoError(t, s.Reserve(100, day0))

	// 120 violates both limits; the single limit is reported.
	assert.ErrorIs(t, s.Reserve(120, day0), ErrInsufficientSingleLimit)
}

func TestReserve_DayRollover(t *testing.T) {
	s := newTestSession(t, 100, 150)
	require.NoError(t, s.Reserve(100, day0))
	require.NoError(t, s.Reserve(50, day0))

	nextDay := day0.Add(24 * time.Hour)
	require.NoError(t, s.Reserve(30, nextDay))
	assert.Equal(t, uint64(30), s.UsedToday())
	assert.Equal(t, time.Date(2026, 5, 5, 0, 0, 0, 0, time.UTC), s.LastResetDate())
}

func TestReserve_RejectsUnusableSession(t *testing.T) {
	s := newTestSession(t, 100, 150)

	assert.ErrorIs(t, s.Reserve(10, s.Expiry()), ErrSessionExpired)
	assert.ErrorIs(t, s.Reserve(0, day0), ErrInvalidAmount)

	s.Revoke(day0)
	assert.ErrorIs(t, s.Reserve(10, day0), ErrSessionInactive)
	assert.Equal(t, uint64(0), s.UsedToday())
}

func TestRelease(t *testing.T) {
	t.Run("same day decrements", func(t *testing.T) {
		s := newTestSession(t, 100, 150)
		require.NoError(t, s.Reserve(80, day0))
		assert.True(t, s.Release(80, day0))
		assert.Equal(t, uint64(0), s.UsedToday())
	})

	t.Run("clamped at zero", func(t *testing.T) {
		s := newTestSession(t, 100, 150)
		require.NoError(t, s.Reserve(30, day0))
		assert.True(t, s.Release(80, day0))
		assert.Equal(t, uint64(0), s.UsedToday())
	})

	t.Run("reservation from previous day ignored", func(t *testing.T) {
		s := newTestSession(t, 100, 150)
		require.NoError(t, s.Reserve(80, day0))
		nextDay := day0.Add(24 * time.Hour)
		require.NoError(t, s.Reserve(40, nextDay))

		assert.False(t, s.Release(80, day0))
		assert.Equal(t, uint64(40), s.UsedToday())
	})
}

func TestRevoke_Idempotent(t *testing.T) {
	s := newTestSession(t, 100, 150)
	assert.True(t, s.Revoke(day0))
	first := *s.RevokedAt()
	assert.False(t, s.Revoke(day0.Add(time.Hour)))
	assert.Equal(t, first, *s.RevokedAt())
	assert.False(t, s.IsActive())
}

func TestRemainingToday(t *testing.T) {
	s := newTestSession(t, 100, 150)
	require.NoError(t, s.Reserve(90, day0))
	assert.Equal(t, uint64(60), s.RemainingToday(day0))
	assert.Equal(t, uint64(150), s.RemainingToday(day0.Add(24*time.Hour)))
}
