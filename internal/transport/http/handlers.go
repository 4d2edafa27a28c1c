package http

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"accounts/internal/domain"
	"accounts/internal/dto"
	"accounts/internal/netutil"
	"accounts/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const forgotPasswordMessage = "If the email is registered, a password reset link has been sent."

type handler struct {
	auth       service.AuthService
	tokens     service.TokenService
	resets     service.ResetService
	accounts   service.AccountService
	trustProxy bool
}

func (h *handler) clientMeta(r *http.Request) (ip, ua string) {
	return netutil.ClientIP(r, h.trustProxy), netutil.TruncateUserAgent(r.UserAgent())
}

// ----- /auth -----

func (h *handler) register(w http.ResponseWriter, r *http.Request) {
	var req dto.RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ip, ua := h.clientMeta(r)
	res, err := h.auth.Register(r.Context(), req, ip, ua)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ip, ua := h.clientMeta(r)
	res, err := h.auth.Login(r.Context(), req, ip, ua)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) refresh(w http.ResponseWriter, r *http.Request) {
	var req dto.RefreshRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.tokens.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req dto.ForgotPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.resets.RequestReset(r.Context(), req.Email); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, dto.MessageResponse{Message: forgotPasswordMessage})
}

func (h *handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req dto.ResetPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.resets.CompleteReset(r.Context(), req.Token, req.NewPassword); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.MessageResponse{Message: "Password has been reset."})
}

// logout accepts an optional body; tokens stay valid until they expire.
func (h *handler) logout(w http.ResponseWriter, r *http.Request) {
	var req dto.RefreshRequest
	if r.ContentLength > 0 && !decodeJSON(w, r, &req) {
		return
	}
	if err := h.auth.Logout(r.Context(), req.RefreshToken); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) me(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	res, err := h.accounts.Get(r.Context(), p.AccountID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ----- /users -----

func (h *handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	q, err := parseListQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	page, err := h.accounts.List(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *handler) getAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := h.target(w, r, domain.RoleAdmin, domain.RoleModerator)
	if !ok {
		return
	}
	res, err := h.accounts.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) updateAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := h.target(w, r, domain.RoleAdmin)
	if !ok {
		return
	}
	var req dto.UpdateAccountRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.accounts.UpdateProfile(r.Context(), id, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) changePassword(w http.ResponseWriter, r *http.Request) {
	id, ok := h.target(w, r)
	if !ok {
		return
	}
	var req dto.ChangePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.accounts.ChangePassword(r.Context(), id, req); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) activate(w http.ResponseWriter, r *http.Request)   { h.setActive(w, r, true) }
func (h *handler) deactivate(w http.ResponseWriter, r *http.Request) { h.setActive(w, r, false) }

func (h *handler) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.accounts.SetActive(r.Context(), id, active); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) unlock(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.accounts.Unlock(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) setRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req dto.SetRoleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	role, err := domain.ParseRole(req.Role)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.accounts.SetRole(r.Context(), id, role); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) deleteAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.accounts.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// target resolves the {id} path parameter and admits the caller when it is
// the account itself or holds one of roles.
func (h *handler) target(w http.ResponseWriter, r *http.Request, roles ...domain.Role) (uuid.UUID, bool) {
	id, ok := pathID(w, r)
	if !ok {
		return uuid.Nil, false
	}
	p, ok := PrincipalFrom(r.Context())
	if !ok {
		writeError(w, r, domain.ErrInvalidToken)
		return uuid.Nil, false
	}
	if p.AccountID != id && (len(roles) == 0 || !domain.HasRole(roles, domain.Role(p.Role))) {
		writeError(w, r, domain.ErrForbidden)
		return uuid.Nil, false
	}
	return id, true
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, "id")))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_input", Message: "invalid account id"})
		return uuid.Nil, false
	}
	return id, true
}

func parseListQuery(r *http.Request) (dto.ListAccountsQuery, error) {
	v := r.URL.Query()
	q := dto.ListAccountsQuery{
		Search:    v.Get("search"),
		Role:      v.Get("role"),
		SortBy:    v.Get("sortBy"),
		SortOrder: v.Get("sortOrder"),
	}
	var err error
	if s := v.Get("page"); s != "" {
		if q.Page, err = strconv.Atoi(s); err != nil {
			return q, invalidParam("page")
		}
	}
	if s := v.Get("limit"); s != "" {
		if q.Limit, err = strconv.Atoi(s); err != nil {
			return q, invalidParam("limit")
		}
	}
	if s := v.Get("isActive"); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return q, invalidParam("isActive")
		}
		q.IsActive = &b
	}
	return q, nil
}

func invalidParam(name string) error {
	return fmt.Errorf("%w: bad query parameter %q", domain.ErrInvalidInput, name)
}
