package mfa

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"akademi.org/internal/identity"
	"akademi.org/internal/kvstore"
)

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time { return c.now }

func newTestService(t *testing.T) (*Service, *kvstore.MemoryStore, *clock) {
	t.Helper()
	store := kvstore.NewMemoryStore()
	c := &clock{now: time.Now().UTC()}
	store.SetClock(c.Now)
	svc, err := NewService(store, WithClock(c.Now))
	require.NoError(t, err)
	return svc, store, c
}

func TestSetupTOTPGeneratesBackupCodes(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	result, err := svc.SetupTOTP(ctx, identity.Identity{ID: "u1", Email: "student@campus.edu"})
	require.NoError(t, err)
	require.NotEmpty(t, result.Secret)
	assert.Contains(t, result.QRPayload, "otpauth://totp/")
	require.Len(t, result.BackupCodes, 10)
	for _, code := range result.BackupCodes {
		assert.Len(t, code, 10)
	}
}

func TestConfirmTOTPWrongCodeKeepsSetupRetryable(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	setup, err := svc.SetupTOTP(ctx, identity.Identity{ID: "u1", Email: "student@campus.edu"})
	require.NoError(t, err)

	_, err = svc.ConfirmTOTP(ctx, "u1", "000000")
	require.ErrorIs(t, err, identity.ErrInvalidMFACode)

	// The setup record survives a wrong code; a correct one still confirms.
	code, err := totp.GenerateCode(setup.Secret, time.Now().UTC())
	require.NoError(t, err)
	confirmed, err := svc.ConfirmTOTP(ctx, "u1", code)
	require.NoError(t, err)
	assert.Equal(t, setup.Secret, confirmed.Secret)
	assert.Len(t, confirmed.BackupHashes, 10)

	// Single confirmation only.
	_, err = svc.ConfirmTOTP(ctx, "u1", code)
	require.ErrorIs(t, err, identity.ErrSetupNotFound)
}

func TestConfirmTOTPExpiredSetup(t *testing.T) {
	svc, _, c := newTestService(t)
	ctx := context.Background()

	_, err := svc.SetupTOTP(ctx, identity.Identity{ID: "u1", Email: "student@campus.edu"})
	require.NoError(t, err)

	c.now = c.now.Add(time.Hour)
	_, err = svc.ConfirmTOTP(ctx, "u1", "123456")
	require.True(t, errors.Is(err, identity.ErrSetupNotFound))
}

func TestVerifyTOTPSkewWindow(t *testing.T) {
	svc, _, c := newTestService(t)
	ctx := context.Background()

	setup, err := svc.SetupTOTP(ctx, identity.Identity{ID: "u1", Email: "student@campus.edu"})
	require.NoError(t, err)

	// A code from the previous step stays inside the one-step window.
	code, err := totp.GenerateCode(setup.Secret, c.now.Add(-30*time.Second))
	require.NoError(t, err)
	assert.True(t, svc.VerifyTOTP(setup.Secret, code))

	// Far outside the window the code is rejected.
	stale, err := totp.GenerateCode(setup.Secret, c.now.Add(-10*time.Minute))
	require.NoError(t, err)
	assert.False(t, svc.VerifyTOTP(setup.Secret, stale))

	assert.False(t, svc.VerifyTOTP(setup.Secret, ""))
	assert.False(t, svc.VerifyTOTP("", code))
}

func TestVerifyBackupCode(t *testing.T) {
	hashes := HashBackupCodes([]string{"AAAA2222BB", "CCCC3333DD"})
	assert.True(t, VerifyBackupCode(hashes, "AAAA2222BB"))
	assert.True(t, VerifyBackupCode(hashes, " aaaa2222bb "))
	assert.False(t, VerifyBackupCode(hashes, "EEEE4444FF"))
	assert.False(t, VerifyBackupCode(hashes, ""))
	assert.False(t, VerifyBackupCode(nil, "AAAA2222BB"))
}

func TestChallengeSingleUse(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	id := identity.Identity{ID: "u1", MFASecret: "device-secret"}

	challenge, err := svc.GenerateChallenge(ctx, id.ID)
	require.NoError(t, err)
	require.NotEmpty(t, challenge.Challenge)
	assert.Positive(t, challenge.TimeoutMs)

	mac := hmac.New(sha256.New, []byte(id.MFASecret))
	mac.Write([]byte(challenge.Challenge))
	response := hex.EncodeToString(mac.Sum(nil))

	ok, err := svc.VerifyChallengeResponse(ctx, id, response)
	require.NoError(t, err)
	assert.True(t, ok)

	// Consumed on first attempt; replay fails.
	ok, err = svc.VerifyChallengeResponse(ctx, id, response)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestChallengeConsumedOnFailureToo(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	id := identity.Identity{ID: "u1", MFASecret: "device-secret"}

	challenge, err := svc.GenerateChallenge(ctx, id.ID)
	require.NoError(t, err)

	ok, err := svc.VerifyChallengeResponse(ctx, id, "wrong-response")
	require.NoError(t, err)
	assert.False(t, ok)

	mac := hmac.New(sha256.New, []byte(id.MFASecret))
	mac.Write([]byte(challenge.Challenge))
	ok, err = svc.VerifyChallengeResponse(ctx, id, hex.EncodeToString(mac.Sum(nil)))
	require.NoError(t, err)
	assert.False(t, ok, "challenge must be deleted even after a failed attempt")
}

func TestRecoveryCodesBurnDownToDeletion(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	codes, err := svc.GenerateRecoveryCodes(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, codes, 8)

	// Each code works exactly once.
	ok, err := svc.VerifyRecoveryCode(ctx, "u1", codes[0])
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = svc.VerifyRecoveryCode(ctx, "u1", codes[0])
	require.NoError(t, err)
	assert.False(t, ok)

	for _, code := range codes[1:] {
		ok, err = svc.VerifyRecoveryCode(ctx, "u1", code)
		require.NoError(t, err)
		assert.True(t, ok)
	}

	// Empty set is removed entirely.
	exists, err := store.Exists(ctx, kvstore.Key("mfa", "recovery", "u1"))
	require.NoError(t, err)
	assert.False(t, exists)
}
