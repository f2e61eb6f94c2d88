package mfa

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"akademi.org/internal/identity"
	"akademi.org/internal/kvstore"
)

const defaultChallengeTTL = 5 * time.Minute

// ChallengeVerifier decides whether a response answers a challenge for the
// identity. Production deployments plug in a WebAuthn verifier; the built-in
// default proves possession of the enrolled MFA secret via HMAC.
type ChallengeVerifier interface {
	Verify(ctx context.Context, id identity.Identity, challenge, response string) bool
}

// hmacVerifier accepts hex(HMAC-SHA256(challenge)) keyed by the identity's
// MFA secret.
type hmacVerifier struct{}

func (hmacVerifier) Verify(_ context.Context, id identity.Identity, challenge, response string) bool {
	if id.MFASecret == "" || challenge == "" || response == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(id.MFASecret))
	mac.Write([]byte(challenge))
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(response))))
}

// Challenge is a single-use random value with a short lifetime.
type Challenge struct {
	Challenge string `json:"challenge"`
	TimeoutMs int64  `json:"timeout_ms"`
}

// GenerateChallenge creates and stores a fresh challenge for the identity,
// replacing any pending one.
func (s *Service) GenerateChallenge(ctx context.Context, identityID string) (Challenge, error) {
	if strings.TrimSpace(identityID) == "" {
		return Challenge{}, fmt.Errorf("%w: identity id is required", identity.ErrInvalidInput)
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return Challenge{}, fmt.Errorf("generate challenge: %w", err)
	}
	value := base64.RawURLEncoding.EncodeToString(buf)
	if err := s.store.Set(ctx, challengeKey(identityID), value, defaultChallengeTTL); err != nil {
		return Challenge{}, err
	}
	return Challenge{Challenge: value, TimeoutMs: defaultChallengeTTL.Milliseconds()}, nil
}

// VerifyChallengeResponse consumes the pending challenge regardless of
// outcome, then asks the configured verifier. No pending challenge means
// false, never an error.
func (s *Service) VerifyChallengeResponse(ctx context.Context, id identity.Identity, response string) (bool, error) {
	challenge, ok, err := s.store.Get(ctx, challengeKey(id.ID))
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if err := s.store.Delete(ctx, challengeKey(id.ID)); err != nil {
		return false, err
	}
	return s.verifier.Verify(ctx, id, challenge, response), nil
}

func challengeKey(identityID string) string { return kvstore.Key("mfa", "challenge", identityID) }
