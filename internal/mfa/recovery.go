package mfa

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"akademi.org/internal/identity"
	"akademi.org/internal/kvstore"
)

type recoverySet struct {
	Hashes      []string  `json:"hashes"`
	GeneratedAt time.Time `json:"generated_at"`
}

// GenerateRecoveryCodes mints a fresh recovery set for the identity,
// replacing any existing one. Plaintext codes are returned exactly once.
func (s *Service) GenerateRecoveryCodes(ctx context.Context, identityID string) ([]string, error) {
	if strings.TrimSpace(identityID) == "" {
		return nil, fmt.Errorf("%w: identity id is required", identity.ErrInvalidInput)
	}
	codes, err := randomCodes(recoveryCodeCount, recoveryCodeLength)
	if err != nil {
		return nil, err
	}
	set := recoverySet{Hashes: hashCodes(codes), GeneratedAt: s.now().UTC()}
	raw, err := json.Marshal(set)
	if err != nil {
		return nil, fmt.Errorf("encode recovery set: %w", err)
	}
	if err := s.store.Set(ctx, recoveryKey(identityID), string(raw), s.recoveryTTL); err != nil {
		return nil, err
	}
	return codes, nil
}

// VerifyRecoveryCode burns exactly one code on success. The set keeps its
// original expiry window; once the last code is used the set is deleted.
func (s *Service) VerifyRecoveryCode(ctx context.Context, identityID, code string) (bool, error) {
	raw, ok, err := s.store.Get(ctx, recoveryKey(identityID))
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	var set recoverySet
	if err := json.Unmarshal([]byte(raw), &set); err != nil {
		return false, fmt.Errorf("decode recovery set: %w", err)
	}

	candidate := hashCode(code)
	idx := -1
	for i, h := range set.Hashes {
		if h == candidate {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false, nil
	}

	set.Hashes = append(set.Hashes[:idx], set.Hashes[idx+1:]...)
	if len(set.Hashes) == 0 {
		if err := s.store.Delete(ctx, recoveryKey(identityID)); err != nil {
			return false, err
		}
		return true, nil
	}

	remaining := s.recoveryTTL - s.now().Sub(set.GeneratedAt)
	if remaining <= 0 {
		// The set is effectively expired; drop it rather than extend it.
		if err := s.store.Delete(ctx, recoveryKey(identityID)); err != nil {
			return false, err
		}
		return true, nil
	}
	updated, err := json.Marshal(set)
	if err != nil {
		return false, fmt.Errorf("encode recovery set: %w", err)
	}
	if err := s.store.Set(ctx, recoveryKey(identityID), string(updated), remaining); err != nil {
		return false, err
	}
	return true, nil
}

func recoveryKey(identityID string) string { return kvstore.Key("mfa", "recovery", identityID) }
