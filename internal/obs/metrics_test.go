package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                          "/",
		"/metrics":                  "/metrics",
		"/healthz":                  "/healthz",
		"/v1/info":                  "/v1/info",
		"/v1/auth/login":            "/v1/auth/login",
		"/v1/auth/mfa/totp/confirm": "/v1/auth/mfa/totp/confirm",
		"/v1/auth/login?next=/home": "/v1/auth/login",
		"/v1/anything/else":         "/other",
		"/assets/logo.png":          "/other",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
