package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/pkg/httputil"
	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/pkg/pagination"
	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/pkg/validator"
	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/services/identity/internal/service"
)

// AdminHandler exposes principal administration.
type AdminHandler struct {
	service *service.IdentityService
	logger  *slog.Logger
}

// NewAdminHandler creates a new admin HTTP handler.
func NewAdminHandler(svc *service.IdentityService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{service: svc, logger: logger}
}

// SetActiveRequest toggles a principal's active flag.
type SetActiveRequest struct {
	Active *bool `json:"active" validate:"required"`
}

// SetVerifiedRequest toggles a principal's email-verified flag.
type SetVerifiedRequest struct {
	Verified *bool `json:"verified" validate:"required"`
}

// RoleRequest names a role to assign.
type RoleRequest struct {
	Role string `json:"role" validate:"required,min=1,max=64"`
}

func (h *AdminHandler) principalID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := httputil.ParseUUID(w, r, chi.URLParam(r, "id"))
	if !ok {
		return "", false
	}
	return id.String(), true
}

// GetPrincipal handles GET /api/v1/admin/principals/{id}
func (h *AdminHandler) GetPrincipal(w http.ResponseWriter, r *http.Request) {
	id, ok := h.principalID(w, r)
	if !ok {
		return
	}

	p, err := h.service.GetPrincipal(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteSuccess(w, r, http.StatusOK, p)
}

// SetActive handles PATCH /api/v1/admin/principals/{id}/active
func (h *AdminHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	id, ok := h.principalID(w, r)
	if !ok {
		return
	}

	var req SetActiveRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	p, err := h.service.SetActive(r.Context(), id, *req.Active)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteSuccess(w, r, http.StatusOK, p)
}

// SetVerified handles PATCH /api/v1/admin/principals/{id}/verified
func (h *AdminHandler) SetVerified(w http.ResponseWriter, r *http.Request) {
	id, ok := h.principalID(w, r)
	if !ok {
		return
	}

	var req SetVerifiedRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	p, err := h.service.SetVerified(r.Context(), id, *req.Verified)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteSuccess(w, r, http.StatusOK, p)
}

// AssignRole handles POST /api/v1/admin/principals/{id}/roles
func (h *AdminHandler) AssignRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.principalID(w, r)
	if !ok {
		return
	}

	var req RoleRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	p, err := h.service.AssignRole(r.Context(), id, req.Role)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteSuccess(w, r, http.StatusOK, p)
}

// RemoveRole handles DELETE /api/v1/admin/principals/{id}/roles/{role}
func (h *AdminHandler) RemoveRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.principalID(w, r)
	if !ok {
		return
	}

	p, err := h.service.RemoveRole(r.Context(), id, chi.URLParam(r, "role"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteSuccess(w, r, http.StatusOK, p)
}

// SignOut handles POST /api/v1/admin/principals/{id}/sign-out
func (h *AdminHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	id, ok := h.principalID(w, r)
	if !ok {
		return
	}

	n, err := h.service.SignOutPrincipal(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteSuccess(w, r, http.StatusOK, RevokedResponse{Revoked: n})
}

// ListSessions handles GET /api/v1/admin/principals/{id}/sessions
func (h *AdminHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	id, ok := h.principalID(w, r)
	if !ok {
		return
	}

	page, err := h.service.ListSessions(r.Context(), id, pagination.FromRequest(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WritePage(w, r, page)
}

// ListRoles handles GET /api/v1/admin/roles
func (h *AdminHandler) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteSuccess(w, r, http.StatusOK, roles)
}
