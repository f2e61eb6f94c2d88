package httpapi

import (
	"net/http"
	"testing"
)

func TestAuthHeaderVariantsRejected(t *testing.T) {
	c := newTestAPI(t)

	cases := map[string]string{
		"empty":        "",
		"no scheme":    "sometoken",
		"wrong scheme": "Basic dXNlcjpwYXNz",
		"extra parts":  "Bearer a b",
		"bare bearer":  "Bearer",
	}
	for name, header := range cases {
		headers := map[string]string{}
		if header != "" {
			headers["Authorization"] = header
		}
		resp := c.get("/v1/auth/validate", nil, headers)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", name, resp.StatusCode)
		}
		resp.Body.Close()
	}
}

func TestTamperedTokenRejected(t *testing.T) {
	c := newTestAPI(t)
	access, _ := c.loginTokens()
	tampered := access + "x"

	resp := c.get("/v1/auth/validate", nil, map[string]string{
		"Authorization": "Bearer " + tampered,
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for tampered token, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestPublicPathsSkipAuth(t *testing.T) {
	c := newTestAPI(t)

	for _, path := range []string{"/healthz", "/readyz", "/v1/info", "/metrics"} {
		resp := c.get(path, nil, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s: expected 200 without token, got %d", path, resp.StatusCode)
		}
		resp.Body.Close()
	}
}
