package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"akademi.org/internal/audit"
	"akademi.org/internal/identity"
	"akademi.org/internal/obs"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	MFACode  string `json:"mfa_code"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type codeRequest struct {
	Code string `json:"code"`
}

type challengeResponseRequest struct {
	Response string `json:"response"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "email and password are required")
		return
	}

	result, err := a.login.Login(r.Context(), req.Email, req.Password, req.MFACode)
	if err != nil {
		outcome := "failure"
		if errors.Is(err, identity.ErrAccountLocked) {
			outcome = "locked"
		}
		obs.ObserveLogin(outcome)
		_ = audit.LogEvent(r.Context(), "auth.login.failure", map[string]any{
			"email": strings.ToLower(strings.TrimSpace(req.Email)),
			"code":  identity.CodeOf(err),
		})
		handleIdentityError(w, r, err)
		return
	}

	if result.RequiresMFA {
		obs.ObserveLogin("mfa_required")
		writeJSON(w, http.StatusOK, map[string]any{
			"requires_mfa": true,
		})
		return
	}

	obs.ObserveLogin("success")
	obs.ObserveTokensIssued("login")
	_ = audit.LogEvent(r.Context(), "auth.login.success", map[string]any{
		"identity_id": result.Identity.ID,
	})
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.RefreshToken) == "" {
		writeError(w, r, http.StatusBadRequest, "refresh_token is required")
		return
	}

	pair, err := a.login.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		handleIdentityError(w, r, err)
		return
	}

	obs.ObserveTokensIssued("refresh")
	_ = audit.LogEvent(r.Context(), "auth.token.refresh", nil)
	writeJSON(w, http.StatusOK, pair)
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req logoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	access, _ := identity.TokenFromContext(r.Context())
	if err := a.login.Logout(r.Context(), access, req.RefreshToken); err != nil {
		handleIdentityError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.logout", nil)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "logged_out",
	})
}

func (a *API) handleValidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	id, ok := identity.FromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, identity.CodeAuthentication)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"valid": true,
		"identity": map[string]any{
			"id":            id.ID,
			"email":         id.Email,
			"roles":         id.RoleNames(),
			"organizations": id.OrgIDs(),
		},
	})
}

func (a *API) handlePermissions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	id, ok := identity.FromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, identity.CodeAuthentication)
		return
	}

	q := r.URL.Query()
	resource := strings.TrimSpace(q.Get("resource"))
	action := strings.TrimSpace(q.Get("action"))
	orgID := strings.TrimSpace(q.Get("organization"))
	if resource == "" || action == "" {
		writeError(w, r, http.StatusBadRequest, "resource and action query parameters are required")
		return
	}

	allowed := a.login.CheckPermission(id, resource, action, orgID, nil)
	writeJSON(w, http.StatusOK, map[string]any{
		"resource": resource,
		"action":   action,
		"allowed":  allowed,
	})
}

// --- MFA endpoints. All require an authenticated principal. ---

func (a *API) handleTOTPSetup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	id, ok := identity.FromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, identity.CodeAuthentication)
		return
	}

	setup, err := a.login.MFA().SetupTOTP(r.Context(), id)
	if err != nil {
		handleIdentityError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.mfa.totp.setup", nil)
	writeJSON(w, http.StatusOK, setup)
}

func (a *API) handleTOTPConfirm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	id, ok := identity.FromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, identity.CodeAuthentication)
		return
	}

	var req codeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	confirmed, err := a.login.MFA().ConfirmTOTP(r.Context(), id.ID, req.Code)
	if err != nil {
		obs.ObserveMFA("totp", "failure")
		handleIdentityError(w, r, err)
		return
	}

	obs.ObserveMFA("totp", "success")
	_ = audit.LogEvent(r.Context(), "auth.mfa.totp.confirm", nil)
	writeJSON(w, http.StatusOK, confirmed)
}

func (a *API) handleTOTPDisable(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	id, ok := identity.FromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, identity.CodeAuthentication)
		return
	}

	if err := a.login.MFA().DisableTOTP(r.Context(), id.ID); err != nil {
		handleIdentityError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.mfa.totp.disable", nil)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "disabled",
	})
}

func (a *API) handleChallenge(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	id, ok := identity.FromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, identity.CodeAuthentication)
		return
	}

	ch, err := a.login.MFA().GenerateChallenge(r.Context(), id.ID)
	if err != nil {
		handleIdentityError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

func (a *API) handleChallengeVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	id, ok := identity.FromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, identity.CodeAuthentication)
		return
	}

	var req challengeResponseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	okResp, err := a.login.MFA().VerifyChallengeResponse(r.Context(), id, req.Response)
	if err != nil {
		handleIdentityError(w, r, err)
		return
	}
	if !okResp {
		obs.ObserveMFA("challenge", "failure")
		writeError(w, r, http.StatusUnauthorized, identity.CodeAuthentication)
		return
	}

	obs.ObserveMFA("challenge", "success")
	writeJSON(w, http.StatusOK, map[string]any{
		"verified": true,
	})
}

func (a *API) handleRecoveryGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	id, ok := identity.FromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, identity.CodeAuthentication)
		return
	}

	codes, err := a.login.MFA().GenerateRecoveryCodes(r.Context(), id.ID)
	if err != nil {
		handleIdentityError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.mfa.recovery.generate", map[string]any{
		"count": len(codes),
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"recovery_codes": codes,
	})
}

func (a *API) handleRecoveryVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	id, ok := identity.FromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, identity.CodeAuthentication)
		return
	}

	var req codeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	okCode, err := a.login.MFA().VerifyRecoveryCode(r.Context(), id.ID, req.Code)
	if err != nil {
		handleIdentityError(w, r, err)
		return
	}
	if !okCode {
		obs.ObserveMFA("recovery", "failure")
		writeError(w, r, http.StatusUnauthorized, identity.CodeAuthentication)
		return
	}

	obs.ObserveMFA("recovery", "success")
	_ = audit.LogEvent(r.Context(), "auth.mfa.recovery.consume", nil)
	writeJSON(w, http.StatusOK, map[string]any{
		"verified": true,
	})
}
