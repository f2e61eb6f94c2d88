// Package mfa runs multi-factor verification for the identity core: TOTP
// enrollment and verification, hashed backup codes, recovery code sets, and
// a challenge-response flow with a pluggable verifier.
//
// Verification failures always come back as false values, never panics, so
// callers fail closed without special-casing. Only keyed-store failures
// propagate as errors.
package mfa

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"akademi.org/internal/identity"
	"akademi.org/internal/kvstore"
)

const (
	defaultIssuer = "Akademi"

	backupCodeCount  = 10
	backupCodeLength = 10

	totpPeriod = 30
	totpDigits = otp.DigitsSix

	defaultSetupTTL    = 10 * time.Minute
	defaultRecoveryTTL = 4 * 7 * 24 * time.Hour

	recoveryCodeCount  = 8
	recoveryCodeLength = 12
)

const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// Service coordinates MFA state through the ephemeral keyed store.
type Service struct {
	store       kvstore.Store
	issuer      string
	skew        uint
	setupTTL    time.Duration
	recoveryTTL time.Duration
	verifier    ChallengeVerifier
	now         func() time.Time
}

// Option configures Service behavior.
type Option func(*Service)

// WithIssuer sets the issuer embedded in otpauth enrollment URLs.
func WithIssuer(issuer string) Option {
	return func(s *Service) {
		if iss := strings.TrimSpace(issuer); iss != "" {
			s.issuer = iss
		}
	}
}

// WithSkew sets how many 30s steps of clock drift are tolerated either side
// of the current step when validating TOTP codes.
func WithSkew(steps uint) Option {
	return func(s *Service) { s.skew = steps }
}

// WithSetupTTL overrides how long an unconfirmed enrollment stays retryable.
func WithSetupTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.setupTTL = ttl
		}
	}
}

// WithRecoveryTTL overrides the lifetime of a recovery code set.
func WithRecoveryTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.recoveryTTL = ttl
		}
	}
}

// WithChallengeVerifier plugs in the challenge-response verifier, e.g. a
// WebAuthn adapter.
func WithChallengeVerifier(v ChallengeVerifier) Option {
	return func(s *Service) {
		if v != nil {
			s.verifier = v
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the MFA service.
func NewService(store kvstore.Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("mfa: store is required")
	}
	s := &Service{
		store:       store,
		issuer:      defaultIssuer,
		skew:        1,
		setupTTL:    defaultSetupTTL,
		recoveryTTL: defaultRecoveryTTL,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.verifier == nil {
		s.verifier = hmacVerifier{}
	}
	return s, nil
}

// SetupResult is returned once at enrollment. The plaintext backup codes are
// never retrievable again; only their hashes persist.
type SetupResult struct {
	Secret      string   `json:"secret"`
	QRPayload   string   `json:"qr_payload"`
	BackupCodes []string `json:"backup_codes"`
}

// ConfirmResult hands the confirmed secret and backup-code hashes back to
// the caller, which persists them in the external user store.
type ConfirmResult struct {
	Secret       string   `json:"secret"`
	BackupHashes []string `json:"backup_hashes"`
}

type setupRecord struct {
	Secret       string    `json:"secret"`
	BackupHashes []string  `json:"backup_hashes"`
	SetupAt      time.Time `json:"setup_at"`
}

// SetupTOTP starts enrollment: generates a shared secret and backup codes,
// parks them in the keyed store until confirmed or the TTL lapses.
func (s *Service) SetupTOTP(ctx context.Context, id identity.Identity) (SetupResult, error) {
	if strings.TrimSpace(id.ID) == "" {
		return SetupResult{}, fmt.Errorf("%w: identity id is required", identity.ErrInvalidInput)
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.issuer,
		AccountName: id.Email,
		Period:      totpPeriod,
		Digits:      totpDigits,
	})
	if err != nil {
		return SetupResult{}, fmt.Errorf("generate totp key: %w", err)
	}

	codes, err := randomCodes(backupCodeCount, backupCodeLength)
	if err != nil {
		return SetupResult{}, err
	}
	record := setupRecord{
		Secret:       key.Secret(),
		BackupHashes: hashCodes(codes),
		SetupAt:      s.now().UTC(),
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return SetupResult{}, fmt.Errorf("encode setup record: %w", err)
	}
	if err := s.store.Set(ctx, setupKey(id.ID), string(raw), s.setupTTL); err != nil {
		return SetupResult{}, err
	}

	return SetupResult{
		Secret:      key.Secret(),
		QRPayload:   key.URL(),
		BackupCodes: codes,
	}, nil
}

// ConfirmTOTP completes enrollment. A wrong code leaves the setup record in
// place so the user can retry until the TTL expires; a correct code consumes
// the record, single confirmation only.
func (s *Service) ConfirmTOTP(ctx context.Context, identityID, code string) (ConfirmResult, error) {
	raw, ok, err := s.store.Get(ctx, setupKey(identityID))
	if err != nil {
		return ConfirmResult{}, err
	}
	if !ok {
		return ConfirmResult{}, identity.ErrSetupNotFound
	}
	var record setupRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return ConfirmResult{}, fmt.Errorf("decode setup record: %w", err)
	}
	if !s.VerifyTOTP(record.Secret, code) {
		return ConfirmResult{}, identity.ErrInvalidMFACode
	}
	if err := s.store.Delete(ctx, setupKey(identityID)); err != nil {
		return ConfirmResult{}, err
	}
	return ConfirmResult{Secret: record.Secret, BackupHashes: record.BackupHashes}, nil
}

// DisableTOTP drops any pending enrollment state for the identity. Clearing
// the confirmed secret from the user record is the caller's job.
func (s *Service) DisableTOTP(ctx context.Context, identityID string) error {
	return s.store.Delete(ctx, setupKey(identityID))
}

// VerifyTOTP is a stateless check of code against secret within the
// configured drift window.
func (s *Service) VerifyTOTP(secret, code string) bool {
	code = strings.TrimSpace(code)
	if secret == "" || code == "" {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, s.now().UTC(), totp.ValidateOpts{
		Period: totpPeriod,
		Skew:   s.skew,
		Digits: totpDigits,
	})
	if err != nil {
		return false
	}
	return ok
}

// VerifyBackupCode checks candidate membership in the stored hash set. The
// caller removes a consumed code from its persistent copy; this core only
// reports match or no match.
func VerifyBackupCode(storedHashes []string, code string) bool {
	code = strings.TrimSpace(code)
	if code == "" {
		return false
	}
	candidate := hashCode(code)
	for _, h := range storedHashes {
		if h == candidate {
			return true
		}
	}
	return false
}

// HashBackupCodes hashes plaintext codes with the generation-time function,
// for callers that persist regenerated sets.
func HashBackupCodes(codes []string) []string {
	return hashCodes(codes)
}

func hashCodes(codes []string) []string {
	out := make([]string, len(codes))
	for i, c := range codes {
		out[i] = hashCode(c)
	}
	return out
}

func hashCode(code string) string {
	sum := sha256.Sum256([]byte(strings.ToUpper(strings.TrimSpace(code))))
	return hex.EncodeToString(sum[:])
}

func randomCodes(count, length int) ([]string, error) {
	codes := make([]string, count)
	for i := range codes {
		c, err := randomCode(length)
		if err != nil {
			return nil, err
		}
		codes[i] = c
	}
	return codes, nil
}

func randomCode(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	out := make([]byte, length)
	for i, b := range buf {
		out[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(out), nil
}

func setupKey(identityID string) string { return kvstore.Key("mfa", "setup", identityID) }
