package user

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"

	"github.com/frahmantamala/leave-portal/internal"
	"github.com/frahmantamala/leave-portal/internal/auth"
	coreUser "github.com/frahmantamala/leave-portal/internal/core/user"
	"github.com/frahmantamala/leave-portal/internal/transport"
	"github.com/frahmantamala/leave-portal/pkg/logger"
)

type ServiceAPI interface {
	Register(ctx context.Context, dto RegisterDTO) (*coreUser.User, error)
	AddStaff(ctx context.Context, actorID string, dto AddStaffDTO) (*coreUser.User, error)
	Get(ctx context.Context, id string) (*coreUser.User, error)
	List(ctx context.Context, filter ListFilter) ([]*coreUser.User, error)
	ListApprovers(ctx context.Context) ([]ApproverView, error)
	Delete(ctx context.Context, actorID, id string) error
	UpdateQuotas(ctx context.Context, actorID, id string, dto UpdateQuotasDTO) (*coreUser.User, error)
	AdjustQuota(ctx context.Context, actorID, id string, dto AdjustQuotaDTO) (*coreUser.User, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(svc ServiceAPI) *Handler {
	lg := logger.LoggerWrapper()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Service:     svc,
	}
}

// Signup handles POST /auth/signup
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var dto RegisterDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.WriteAppError(w, err)
		return
	}

	u, err := h.Service.Register(r.Context(), dto)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, u)
}

// GetCurrentUser handles GET /users/me
func (h *Handler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	current, ok := auth.UserFromContext(r.Context())
	if !ok {
		h.WriteAppError(w, internal.ErrInvalidToken)
		return
	}

	u, err := h.Service.Get(r.Context(), current.ID)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, u)
}

// ListApprovers handles GET /directory/approvers
func (h *Handler) ListApprovers(w http.ResponseWriter, r *http.Request) {
	approvers, err := h.Service.ListApprovers(r.Context())
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"approvers": approvers})
}

// ListUsers handles GET /admin/users?role=&department=&q=
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	users, err := h.Service.List(r.Context(), ListFilter{
		Role:       q.Get("role"),
		Department: q.Get("department"),
		Query:      q.Get("q"),
	})
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"users": users, "total": len(users)})
}

// AddStaff handles POST /admin/users
func (h *Handler) AddStaff(w http.ResponseWriter, r *http.Request) {
	var dto AddStaffDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.WriteAppError(w, err)
		return
	}

	u, err := h.Service.AddStaff(r.Context(), internal.UserIDFromContext(r.Context()), dto)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, u)
}

// DeleteUser handles DELETE /admin/users/{id}
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.Service.Delete(r.Context(), internal.UserIDFromContext(r.Context()), id); err != nil {
		h.WriteAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdateQuotas handles PUT /admin/users/{id}/quotas
func (h *Handler) UpdateQuotas(w http.ResponseWriter, r *http.Request) {
	var dto UpdateQuotasDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.WriteAppError(w, err)
		return
	}

	u, err := h.Service.UpdateQuotas(r.Context(), internal.UserIDFromContext(r.Context()), chi.URLParam(r, "id"), dto)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, u)
}

// AdjustQuota handles POST /admin/users/{id}/quotas/adjust
func (h *Handler) AdjustQuota(w http.ResponseWriter, r *http.Request) {
	var dto AdjustQuotaDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.WriteAppError(w, err)
		return
	}

	u, err := h.Service.AdjustQuota(r.Context(), internal.UserIDFromContext(r.Context()), chi.URLParam(r, "id"), dto)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, u)
}
