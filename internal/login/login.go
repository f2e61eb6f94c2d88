// Package login ties credential verification, MFA and abuse counters into
// the login state machine, and fronts the operations a façade layer calls.
//
// Lockout state lives entirely in the ephemeral keyed store: the attempt
// counter and lock flag share the lockout TTL, so lockouts are time-boxed
// passively with no background sweeper.
package login

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"akademi.org/internal/authz"
	"akademi.org/internal/identity"
	"akademi.org/internal/kvstore"
	"akademi.org/internal/mfa"
	"akademi.org/internal/obs"
	"akademi.org/internal/password"
	"akademi.org/internal/token"
)

const (
	defaultMaxAttempts     = 5
	defaultLockoutDuration = 15 * time.Minute
)

// Orchestrator coordinates the login flow across the core subsystems.
type Orchestrator struct {
	directory   identity.Directory
	store       kvstore.Store
	tokens      *token.Manager
	mfa         *mfa.Service
	engine      *authz.Engine
	maxAttempts int64
	lockout     time.Duration
}

// Option configures Orchestrator behavior.
type Option func(*Orchestrator)

// WithMaxAttempts sets how many failures lock an identifier.
func WithMaxAttempts(n int64) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

// WithLockoutDuration sets both the lock TTL and the attempt-counter TTL.
func WithLockoutDuration(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.lockout = d
		}
	}
}

// New wires the orchestrator. All collaborators are required.
func New(directory identity.Directory, store kvstore.Store, tokens *token.Manager, mfaSvc *mfa.Service, engine *authz.Engine, opts ...Option) (*Orchestrator, error) {
	if directory == nil || store == nil || tokens == nil || mfaSvc == nil || engine == nil {
		return nil, errors.New("login: all collaborators are required")
	}
	o := &Orchestrator{
		directory:   directory,
		store:       store,
		tokens:      tokens,
		mfa:         mfaSvc,
		engine:      engine,
		maxAttempts: defaultMaxAttempts,
		lockout:     defaultLockoutDuration,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Summary is the identity digest returned alongside fresh tokens.
type Summary struct {
	ID    string   `json:"id"`
	Email string   `json:"email"`
	Roles []string `json:"roles"`
	Orgs  []string `json:"organizations,omitempty"`
}

// Result is the discriminated login outcome: either MFA is still required,
// or tokens were issued.
type Result struct {
	RequiresMFA bool       `json:"requires_mfa"`
	Tokens      token.Pair `json:"tokens,omitempty"`
	Identity    Summary    `json:"identity,omitempty"`
}

// Login runs the full state machine for one attempt. A present lock flag
// rejects before any credential work, so a locked account leaks nothing
// about credential validity.
func (o *Orchestrator) Login(ctx context.Context, email, pass, mfaCode string) (Result, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || pass == "" {
		return Result{}, fmt.Errorf("%w: email and password are required", identity.ErrInvalidInput)
	}

	locked, err := o.store.Exists(ctx, lockKey(email))
	if err != nil {
		return Result{}, err
	}
	if locked {
		return Result{}, identity.ErrAccountLocked
	}

	id, err := o.directory.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			// Unknown identifiers count like bad passwords so probing
			// cannot distinguish them.
			if ferr := o.recordFailure(ctx, email); ferr != nil {
				return Result{}, ferr
			}
			return Result{}, identity.ErrInvalidCredentials
		}
		return Result{}, err
	}
	if id.Status != "" && id.Status != identity.StatusActive {
		return Result{}, identity.ErrAccountDisabled
	}

	if !password.Verify(pass, id.PasswordHash) {
		if ferr := o.recordFailure(ctx, email); ferr != nil {
			return Result{}, ferr
		}
		return Result{}, identity.ErrInvalidCredentials
	}

	if id.MFAEnabled {
		if strings.TrimSpace(mfaCode) == "" {
			// Not a failure and not counted; the caller retries with a code.
			return Result{RequiresMFA: true}, nil
		}
		if !o.verifyMFACode(*id, mfaCode) {
			if ferr := o.recordFailure(ctx, email); ferr != nil {
				return Result{}, ferr
			}
			return Result{}, identity.ErrInvalidMFACode
		}
	}

	// Full success: the abuse counters reset to absent.
	if err := o.clearFailures(ctx, email); err != nil {
		return Result{}, err
	}

	pair, err := o.tokens.IssueTokens(ctx, *id)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Tokens: pair,
		Identity: Summary{
			ID:    id.ID,
			Email: id.Email,
			Roles: id.RoleNames(),
			Orgs:  id.OrgIDs(),
		},
	}, nil
}

// verifyMFACode accepts a live TOTP code or an unused backup code.
func (o *Orchestrator) verifyMFACode(id identity.Identity, code string) bool {
	if o.mfa.VerifyTOTP(id.MFASecret, code) {
		return true
	}
	return mfa.VerifyBackupCode(id.BackupHashes, code)
}

// Refresh exchanges a live refresh token for a new pair, rotating the old id.
func (o *Orchestrator) Refresh(ctx context.Context, refreshToken string) (token.Pair, error) {
	claims, err := o.tokens.ValidateRefresh(ctx, refreshToken)
	if err != nil {
		return token.Pair{}, err
	}
	id, err := o.directory.FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return token.Pair{}, identity.ErrInvalidToken
		}
		return token.Pair{}, err
	}
	return o.tokens.Refresh(ctx, refreshToken, *id)
}

// Logout revokes the access token and, when supplied, the refresh token.
func (o *Orchestrator) Logout(ctx context.Context, accessToken, refreshToken string) error {
	if err := o.tokens.RevokeAccess(ctx, accessToken); err != nil {
		if !errors.Is(err, identity.ErrInvalidToken) {
			return err
		}
	}
	if refreshToken != "" {
		if err := o.tokens.RevokeRefresh(ctx, refreshToken); err != nil {
			if !errors.Is(err, identity.ErrInvalidToken) {
				return err
			}
		}
	}
	return nil
}

// ValidateAccessToken verifies a bearer token and returns its claims.
func (o *Orchestrator) ValidateAccessToken(ctx context.Context, tok string) (*token.AccessClaims, error) {
	return o.tokens.ValidateAccess(ctx, tok)
}

// CheckPermission is the façade surface over the authorization engine.
func (o *Orchestrator) CheckPermission(id identity.Identity, resource, action, orgID string, attrs map[string]any) bool {
	return o.engine.HasPermission(id, resource, action, orgID, attrs)
}

// MFA exposes the MFA subsystem for setup/confirm/disable/regenerate flows.
func (o *Orchestrator) MFA() *mfa.Service { return o.mfa }

// Directory exposes the identity lookup used by callers that resolve
// principals from validated token claims.
func (o *Orchestrator) Directory() identity.Directory { return o.directory }

func (o *Orchestrator) recordFailure(ctx context.Context, email string) error {
	n, err := o.store.Increment(ctx, attemptKey(email), o.lockout)
	if err != nil {
		return err
	}
	if n >= o.maxAttempts {
		if err := o.store.Set(ctx, lockKey(email), "1", o.lockout); err != nil {
			return err
		}
		obs.ObserveLockout()
	}
	return nil
}

func (o *Orchestrator) clearFailures(ctx context.Context, email string) error {
	if err := o.store.Delete(ctx, attemptKey(email)); err != nil {
		return err
	}
	return o.store.Delete(ctx, lockKey(email))
}

func attemptKey(email string) string { return kvstore.Key("login", "attempts", email) }
func lockKey(email string) string    { return kvstore.Key("login", "lock", email) }
