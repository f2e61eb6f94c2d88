// Package token issues, validates, rotates and revokes the signed session
// tokens of the identity core. Access tokens are self-expiring and revocable
// through a store-backed blacklist; refresh tokens are single-use and rotated
// on every refresh.
package token

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"akademi.org/internal/identity"
	"akademi.org/internal/ids"
	"akademi.org/internal/kvstore"
)

const (
	defaultIssuer     = "akademi"
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 14 * 24 * time.Hour

	typeAccess  = "access"
	typeRefresh = "refresh"

	bearerScheme = "Bearer"
)

// AccessClaims carries the authenticated identity summary inside the access
// token. Once signed the claims are never mutated; revocation happens by jti.
type AccessClaims struct {
	Email     string   `json:"email,omitempty"`
	Roles     []string `json:"roles,omitempty"`
	Orgs      []string `json:"orgs,omitempty"`
	TokenType string   `json:"token_type"`
	jwt.RegisteredClaims
}

// RefreshClaims carries only the subject and token id; everything else about
// a refresh token lives in the keyed store entry that makes it single-use.
type RefreshClaims struct {
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// Pair is a freshly issued access/refresh token pair.
type Pair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Manager drives the token state machine: issued -> valid -> expired or
// revoked, with no way back to valid.
type Manager struct {
	store         kvstore.Store
	accessSecret  []byte
	refreshSecret []byte
	issuer        string
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

// Option configures Manager behavior.
type Option func(*Manager)

// WithIssuer overrides the token issuer claim.
func WithIssuer(issuer string) Option {
	return func(m *Manager) {
		if iss := strings.TrimSpace(issuer); iss != "" {
			m.issuer = iss
		}
	}
}

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.accessTTL = ttl
		}
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.refreshTTL = ttl
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(m *Manager) {
		if fn != nil {
			m.now = fn
		}
	}
}

// NewManager constructs a Manager. Access and refresh tokens are signed with
// distinct secrets so one class of token can never stand in for the other.
func NewManager(store kvstore.Store, accessSecret, refreshSecret string, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, errors.New("token: store is required")
	}
	accessSecret = strings.TrimSpace(accessSecret)
	refreshSecret = strings.TrimSpace(refreshSecret)
	if accessSecret == "" || refreshSecret == "" {
		return nil, errors.New("token: both signing secrets are required")
	}
	if accessSecret == refreshSecret {
		return nil, errors.New("token: access and refresh secrets must differ")
	}
	m := &Manager{
		store:         store,
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		issuer:        defaultIssuer,
		accessTTL:     defaultAccessTTL,
		refreshTTL:    defaultRefreshTTL,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// AccessTTL returns the configured access token lifetime.
func (m *Manager) AccessTTL() time.Duration { return m.accessTTL }

// IssueTokens signs a fresh access/refresh pair for the identity and records
// the refresh token id in the keyed store with TTL equal to its lifetime.
// Each call draws fresh random token ids.
func (m *Manager) IssueTokens(ctx context.Context, id identity.Identity) (Pair, error) {
	if strings.TrimSpace(id.ID) == "" {
		return Pair{}, fmt.Errorf("%w: identity id is required", identity.ErrInvalidInput)
	}
	now := m.now().UTC()

	accessClaims := AccessClaims{
		Email:     id.Email,
		Roles:     id.RoleNames(),
		Orgs:      id.OrgIDs(),
		TokenType: typeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   id.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.accessTTL)),
			ID:        ids.New(),
		},
	}
	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims).SignedString(m.accessSecret)
	if err != nil {
		return Pair{}, fmt.Errorf("sign access token: %w", err)
	}

	refreshID := ids.New()
	refreshClaims := RefreshClaims{
		TokenType: typeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   id.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.refreshTTL)),
			ID:        refreshID,
		},
	}
	refreshToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, refreshClaims).SignedString(m.refreshSecret)
	if err != nil {
		return Pair{}, fmt.Errorf("sign refresh token: %w", err)
	}

	if err := m.store.Set(ctx, refreshKey(refreshID), id.ID, m.refreshTTL); err != nil {
		return Pair{}, err
	}

	return Pair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(m.accessTTL.Seconds()),
	}, nil
}

// ValidateAccess verifies signature, issuer and expiry, then consults the
// blacklist. Signature/expiry failures and revocation are both invalid but
// carry distinguishable errors for observability; callers deny identically.
func (m *Manager) ValidateAccess(ctx context.Context, token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := m.parseVerified(token, claims, m.accessSecret); err != nil {
		return nil, err
	}
	if claims.TokenType != typeAccess {
		return nil, fmt.Errorf("%w: unexpected token type %q", identity.ErrInvalidToken, claims.TokenType)
	}
	revoked, err := m.store.Exists(ctx, blacklistKey(claims.ID))
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, identity.ErrTokenRevoked
	}
	return claims, nil
}

// ValidateRefresh verifies the refresh token and confirms its id is still
// live in the store and mapped to the subject encoded in the claims.
func (m *Manager) ValidateRefresh(ctx context.Context, token string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := m.parseVerified(token, claims, m.refreshSecret); err != nil {
		return nil, err
	}
	if claims.TokenType != typeRefresh {
		return nil, fmt.Errorf("%w: unexpected token type %q", identity.ErrInvalidToken, claims.TokenType)
	}
	subject, ok, err := m.store.Get(ctx, refreshKey(claims.ID))
	if err != nil {
		return nil, err
	}
	if !ok || subject != claims.Subject {
		return nil, fmt.Errorf("%w: refresh token no longer live", identity.ErrInvalidToken)
	}
	return claims, nil
}

// Refresh rotates the pair: the old refresh token id is deleted before new
// tokens are issued, so a replay of the old token always fails.
func (m *Manager) Refresh(ctx context.Context, refreshToken string, id identity.Identity) (Pair, error) {
	claims, err := m.ValidateRefresh(ctx, refreshToken)
	if err != nil {
		return Pair{}, err
	}
	if claims.Subject != id.ID {
		return Pair{}, fmt.Errorf("%w: subject mismatch", identity.ErrInvalidToken)
	}
	if err := m.store.Delete(ctx, refreshKey(claims.ID)); err != nil {
		return Pair{}, err
	}
	return m.IssueTokens(ctx, id)
}

// RevokeAccess blacklists the token id for the remainder of its natural
// lifetime. Claims are read via the unverified decode path: a forged token
// has nothing meaningful to revoke, and a token already past expiry is a
// no-op, so signature trust is not needed for this bookkeeping.
func (m *Manager) RevokeAccess(ctx context.Context, token string) error {
	claims := &AccessClaims{}
	if err := decodeUnverified(token, claims); err != nil {
		return fmt.Errorf("%w: %v", identity.ErrInvalidToken, err)
	}
	if claims.ExpiresAt == nil || claims.ID == "" {
		return nil
	}
	remaining := claims.ExpiresAt.Time.Sub(m.now())
	if remaining <= 0 {
		return nil
	}
	return m.store.Set(ctx, blacklistKey(claims.ID), "1", remaining)
}

// RevokeRefresh removes the refresh token id from the store. Re-deleting an
// already rotated id is a no-op.
func (m *Manager) RevokeRefresh(ctx context.Context, token string) error {
	claims := &RefreshClaims{}
	if err := decodeUnverified(token, claims); err != nil {
		return fmt.Errorf("%w: %v", identity.ErrInvalidToken, err)
	}
	if claims.ID == "" {
		return nil
	}
	return m.store.Delete(ctx, refreshKey(claims.ID))
}

// IsExpired is a decode-only check against the current time. Malformed
// tokens are treated as expired.
func (m *Manager) IsExpired(token string) bool {
	claims := &jwt.RegisteredClaims{}
	if err := decodeUnverified(token, claims); err != nil {
		return true
	}
	if claims.ExpiresAt == nil {
		return true
	}
	return !m.now().Before(claims.ExpiresAt.Time)
}

// ExtractFromHeader accepts only the exact two-part "Bearer <token>" form.
// Missing header, empty value, wrong scheme or extra parts yield "".
func ExtractFromHeader(header string) string {
	parts := strings.Split(header, " ")
	if len(parts) != 2 {
		return ""
	}
	if parts[0] != bearerScheme || parts[1] == "" {
		return ""
	}
	return parts[1]
}

func (m *Manager) parseVerified(token string, claims jwt.Claims, secret []byte) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("%w: empty token", identity.ErrInvalidToken)
	}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method %v", t.Method.Alg())
		}
		return secret, nil
	}, jwt.WithIssuer(m.issuer), jwt.WithTimeFunc(m.now))
	if err != nil {
		return fmt.Errorf("%w: %v", identity.ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return identity.ErrInvalidToken
	}
	return nil
}

// decodeUnverified reads claims without checking the signature. Unsafe for
// trust decisions; only revocation bookkeeping and expiry probes use it.
func decodeUnverified(token string, claims jwt.Claims) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("empty token")
	}
	parser := jwt.NewParser()
	_, _, err := parser.ParseUnverified(token, claims)
	return err
}

func blacklistKey(jti string) string { return kvstore.Key("token", "blacklist", jti) }
func refreshKey(jti string) string   { return kvstore.Key("token", "refresh", jti) }
