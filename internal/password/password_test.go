package password

import (
	"strings"
	"testing"
)

func TestHashProducesDistinctHashes(t *testing.T) {
	first, err := Hash("S3cure!pass")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	second, err := Hash("S3cure!pass")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if first == second {
		t.Fatalf("expected distinct hashes for the same input")
	}
	if !Verify("S3cure!pass", first) || !Verify("S3cure!pass", second) {
		t.Fatalf("both hashes must verify")
	}
}

func TestVerifyRejectsWrongPassword(t *testing.T) {
	hash, err := Hash("S3cure!pass")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if Verify("wrong-password", hash) {
		t.Fatalf("wrong password verified")
	}
}

func TestVerifyMalformedHashNeverPanics(t *testing.T) {
	for _, malformed := range []string{"", "not-a-hash", "$argon2id$v=19$m=abc$x$y", "$bcrypt$whatever"} {
		if Verify("anything", malformed) {
			t.Fatalf("malformed hash %q verified", malformed)
		}
	}
}

func TestNeedsRehash(t *testing.T) {
	weak := Params{Memory: 16 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
	hash, err := HashWithParams("S3cure!pass", weak)
	if err != nil {
		t.Fatalf("HashWithParams: %v", err)
	}
	if !NeedsRehash(hash) {
		t.Fatalf("low work-factor hash should need rehash")
	}

	strong, err := Hash("S3cure!pass")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if NeedsRehash(strong) {
		t.Fatalf("current hash should not need rehash")
	}
	if !NeedsRehash("garbage") {
		t.Fatalf("unparseable hash should need rehash")
	}
}

func TestValidateStrengthReportsAllFailures(t *testing.T) {
	result := ValidateStrength("short")
	if result.Valid {
		t.Fatalf("expected invalid result")
	}
	// Too short, no upper, no digit, no symbol.
	if len(result.Errors) < 4 {
		t.Fatalf("expected every failing rule reported, got %v", result.Errors)
	}

	result = ValidateStrength("MyPassword1!")
	if result.Valid {
		t.Fatalf("denylisted substring accepted")
	}
	found := false
	for _, e := range result.Errors {
		if strings.Contains(e, "password") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected denylist violation, got %v", result.Errors)
	}

	result = ValidateStrength("Tr1cky!horse")
	if !result.Valid {
		t.Fatalf("expected valid password, got %v", result.Errors)
	}
}
