package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"akademi.org/internal/audit"
	"akademi.org/internal/identity"
	"akademi.org/internal/kvstore"
	"akademi.org/internal/login"
	"akademi.org/internal/obs"
)

// Pinger is the readiness dependency, usually the Redis-backed store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadyProbe checks the backing store. A nil Store means "always ready",
// which keeps in-memory deployments and tests simple.
type ReadyProbe struct {
	Store Pinger
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.Store == nil {
		return nil
	}
	return rp.Store.Ping(ctx)
}

// API is the HTTP layer over the login orchestrator.
type API struct {
	mux        *http.ServeMux
	login      *login.Orchestrator
	readyProbe ReadyProbe
	version    string
	rateBurst  int
	ratePerSec int
}

func New(orch *login.Orchestrator, rp ReadyProbe, version string) *API {
	a := &API{
		mux:        http.NewServeMux(),
		login:      orch,
		readyProbe: rp,
		version:    version,
		rateBurst:  20,
		ratePerSec: 10,
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// auth flows
	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/refresh", a.handleRefresh)
	a.mux.HandleFunc("/v1/auth/logout", a.handleLogout)
	a.mux.HandleFunc("/v1/auth/validate", a.handleValidate)
	a.mux.HandleFunc("/v1/auth/permissions", a.handlePermissions)

	// MFA lifecycle (authenticated)
	a.mux.HandleFunc("/v1/auth/mfa/totp/setup", a.handleTOTPSetup)
	a.mux.HandleFunc("/v1/auth/mfa/totp/confirm", a.handleTOTPConfirm)
	a.mux.HandleFunc("/v1/auth/mfa/totp/disable", a.handleTOTPDisable)
	a.mux.HandleFunc("/v1/auth/mfa/challenge", a.handleChallenge)
	a.mux.HandleFunc("/v1/auth/mfa/challenge/verify", a.handleChallengeVerify)
	a.mux.HandleFunc("/v1/auth/mfa/recovery", a.handleRecoveryGenerate)
	a.mux.HandleFunc("/v1/auth/mfa/recovery/verify", a.handleRecoveryVerify)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler assembles the middleware chain around the mux.
func (a *API) Handler() http.Handler {
	h := a.withAuth(a.mux)
	h = MaxBodyBytes(h, 1<<20)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = Logging(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "akademi-identity",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "akademi-identity",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := audit.RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

// handleIdentityError translates core error codes into HTTP statuses. The
// response body carries only the stable code, never wrapped diagnostics.
func handleIdentityError(w http.ResponseWriter, r *http.Request, err error) {
	code := identity.CodeOf(err)
	status := http.StatusInternalServerError
	switch code {
	case identity.CodeValidation:
		status = http.StatusBadRequest
	case identity.CodeAuthentication:
		status = http.StatusUnauthorized
	case identity.CodeAuthorization:
		status = http.StatusForbidden
	case identity.CodeAccountLocked:
		status = http.StatusLocked
	case identity.CodeNotFound:
		status = http.StatusNotFound
	case identity.CodeService:
		if errors.Is(err, kvstore.ErrUnavailable) {
			status = http.StatusServiceUnavailable
		}
	}
	writeError(w, r, status, code)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}
