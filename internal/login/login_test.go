package login

import (
	"context"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"akademi.org/internal/authz"
	"akademi.org/internal/identity"
	"akademi.org/internal/kvstore"
	"akademi.org/internal/mfa"
	"akademi.org/internal/password"
	"akademi.org/internal/token"
)

// stubDirectory is the pluggable user-lookup collaborator for tests.
type stubDirectory struct {
	byEmail map[string]*identity.Identity
	byID    map[string]*identity.Identity
}

func (d *stubDirectory) FindByEmail(_ context.Context, email string) (*identity.Identity, error) {
	if id, ok := d.byEmail[email]; ok {
		return id, nil
	}
	return nil, identity.ErrNotFound
}

func (d *stubDirectory) FindByID(_ context.Context, userID string) (*identity.Identity, error) {
	if id, ok := d.byID[userID]; ok {
		return id, nil
	}
	return nil, identity.ErrNotFound
}

type fixture struct {
	orch  *Orchestrator
	store *kvstore.MemoryStore
	dir   *stubDirectory
	now   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{now: time.Now().UTC()}
	clock := func() time.Time { return f.now }

	f.store = kvstore.NewMemoryStore()
	f.store.SetClock(clock)

	hash, err := password.Hash("S3cure!pass")
	require.NoError(t, err)
	student := &identity.Identity{
		ID:           "u1",
		Email:        "student@campus.edu",
		PasswordHash: hash,
		Status:       "active",
		Roles: []identity.Role{{
			ID:   "role-student",
			Name: "student",
			Permissions: []identity.Permission{
				{ID: "p-content-read", Resource: "content", Action: "read"},
			},
		}},
	}
	f.dir = &stubDirectory{
		byEmail: map[string]*identity.Identity{student.Email: student},
		byID:    map[string]*identity.Identity{student.ID: student},
	}

	tokens, err := token.NewManager(f.store, "access-secret", "refresh-secret", token.WithClock(clock))
	require.NoError(t, err)
	mfaSvc, err := mfa.NewService(f.store, mfa.WithClock(clock))
	require.NoError(t, err)

	f.orch, err = New(f.dir, f.store, tokens, mfaSvc, authz.NewEngine(),
		WithMaxAttempts(5), WithLockoutDuration(15*time.Minute))
	require.NoError(t, err)
	return f
}

func (f *fixture) student() *identity.Identity {
	return f.dir.byEmail["student@campus.edu"]
}

func TestLoginSuccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.orch.Login(ctx, "Student@Campus.EDU", "S3cure!pass", "")
	require.NoError(t, err)
	assert.False(t, result.RequiresMFA)
	assert.NotEmpty(t, result.Tokens.AccessToken)
	assert.Equal(t, "u1", result.Identity.ID)
	assert.Equal(t, []string{"student"}, result.Identity.Roles)

	claims, err := f.orch.ValidateAccessToken(ctx, result.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.Subject)
}

func TestFiveFailuresLockTheAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := f.orch.Login(ctx, "student@campus.edu", "wrong-password", "")
		require.ErrorIs(t, err, identity.ErrInvalidCredentials)
	}

	// Sixth attempt is rejected up front, even with correct credentials.
	_, err := f.orch.Login(ctx, "student@campus.edu", "S3cure!pass", "")
	require.ErrorIs(t, err, identity.ErrAccountLocked)

	// Lockout self-expires with the store TTL.
	f.now = f.now.Add(16 * time.Minute)
	result, err := f.orch.Login(ctx, "student@campus.edu", "S3cure!pass", "")
	require.NoError(t, err)
	assert.NotEmpty(t, result.Tokens.AccessToken)
}

func TestIsolatedFailuresSelfClear(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := f.orch.Login(ctx, "student@campus.edu", "wrong-password", "")
		require.ErrorIs(t, err, identity.ErrInvalidCredentials)
	}

	// The counter TTL elapses before the threshold is reached; the burst
	// clears without ever locking.
	f.now = f.now.Add(16 * time.Minute)
	for i := 0; i < 4; i++ {
		_, err := f.orch.Login(ctx, "student@campus.edu", "wrong-password", "")
		require.ErrorIs(t, err, identity.ErrInvalidCredentials)
	}
	result, err := f.orch.Login(ctx, "student@campus.edu", "S3cure!pass", "")
	require.NoError(t, err)
	assert.NotEmpty(t, result.Tokens.AccessToken)
}

func TestSuccessResetsCounters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := f.orch.Login(ctx, "student@campus.edu", "wrong-password", "")
		require.ErrorIs(t, err, identity.ErrInvalidCredentials)
	}
	_, err := f.orch.Login(ctx, "student@campus.edu", "S3cure!pass", "")
	require.NoError(t, err)

	// Counters were reset; four more failures stay below the threshold.
	for i := 0; i < 4; i++ {
		_, err := f.orch.Login(ctx, "student@campus.edu", "wrong-password", "")
		require.ErrorIs(t, err, identity.ErrInvalidCredentials)
	}
	_, err = f.orch.Login(ctx, "student@campus.edu", "S3cure!pass", "")
	require.NoError(t, err)
}

func TestUnknownIdentifierCountsTowardLockout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := f.orch.Login(ctx, "ghost@campus.edu", "whatever123", "")
		require.ErrorIs(t, err, identity.ErrInvalidCredentials)
	}
	_, err := f.orch.Login(ctx, "ghost@campus.edu", "whatever123", "")
	require.ErrorIs(t, err, identity.ErrAccountLocked)
}

func TestMFAGate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	secret := enableMFA(t, f)

	// No code supplied: distinct MFA-required result, not a failure.
	result, err := f.orch.Login(ctx, "student@campus.edu", "S3cure!pass", "")
	require.NoError(t, err)
	assert.True(t, result.RequiresMFA)
	assert.Empty(t, result.Tokens.AccessToken)

	// The gate does not count as a failed attempt: repeat it well past the
	// lockout threshold and the account never locks.
	for i := 0; i < 6; i++ {
		result, err = f.orch.Login(ctx, "student@campus.edu", "S3cure!pass", "")
		require.NoError(t, err)
		assert.True(t, result.RequiresMFA)
	}

	code, err := totp.GenerateCode(secret, f.now)
	require.NoError(t, err)
	result, err = f.orch.Login(ctx, "student@campus.edu", "S3cure!pass", code)
	require.NoError(t, err)
	assert.False(t, result.RequiresMFA)
	assert.NotEmpty(t, result.Tokens.AccessToken)
}

func TestMFAFailureCounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	enableMFA(t, f)

	for i := 0; i < 5; i++ {
		_, err := f.orch.Login(ctx, "student@campus.edu", "S3cure!pass", "000000")
		require.ErrorIs(t, err, identity.ErrInvalidMFACode)
	}
	_, err := f.orch.Login(ctx, "student@campus.edu", "S3cure!pass", "000000")
	require.ErrorIs(t, err, identity.ErrAccountLocked)
}

func TestBackupCodeSatisfiesMFA(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	enableMFA(t, f)
	codes := []string{"AAAA2222BB"}
	f.student().BackupHashes = mfa.HashBackupCodes(codes)

	result, err := f.orch.Login(ctx, "student@campus.edu", "S3cure!pass", "AAAA2222BB")
	require.NoError(t, err)
	assert.NotEmpty(t, result.Tokens.AccessToken)
}

func TestRefreshAndLogout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.orch.Login(ctx, "student@campus.edu", "S3cure!pass", "")
	require.NoError(t, err)

	rotated, err := f.orch.Refresh(ctx, result.Tokens.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, result.Tokens.RefreshToken, rotated.RefreshToken)

	// The original refresh token was rotated away.
	_, err = f.orch.Refresh(ctx, result.Tokens.RefreshToken)
	require.ErrorIs(t, err, identity.ErrInvalidToken)

	require.NoError(t, f.orch.Logout(ctx, rotated.AccessToken, rotated.RefreshToken))
	_, err = f.orch.ValidateAccessToken(ctx, rotated.AccessToken)
	require.ErrorIs(t, err, identity.ErrTokenRevoked)
	_, err = f.orch.Refresh(ctx, rotated.RefreshToken)
	require.ErrorIs(t, err, identity.ErrInvalidToken)
}

func TestDisabledAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.student().Status = "disabled"
	_, err := f.orch.Login(ctx, "student@campus.edu", "S3cure!pass", "")
	require.ErrorIs(t, err, identity.ErrAccountDisabled)
}

func TestCheckPermission(t *testing.T) {
	f := newFixture(t)

	id := *f.student()
	assert.True(t, f.orch.CheckPermission(id, "content", "read", "", nil))
	assert.False(t, f.orch.CheckPermission(id, "content", "write", "", nil))
}

// enableMFA enrolls and confirms TOTP for the fixture student, returning the
// shared secret.
func enableMFA(t *testing.T, f *fixture) string {
	t.Helper()
	ctx := context.Background()

	setup, err := f.orch.MFA().SetupTOTP(ctx, *f.student())
	require.NoError(t, err)
	code, err := totp.GenerateCode(setup.Secret, f.now)
	require.NoError(t, err)
	confirmed, err := f.orch.MFA().ConfirmTOTP(ctx, f.student().ID, code)
	require.NoError(t, err)

	f.student().MFAEnabled = true
	f.student().MFASecret = confirmed.Secret
	return confirmed.Secret
}
