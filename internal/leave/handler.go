package leave

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"

	"github.com/frahmantamala/leave-portal/internal"
	"github.com/frahmantamala/leave-portal/internal/auth"
	coreLeave "github.com/frahmantamala/leave-portal/internal/core/leave"
	coreUser "github.com/frahmantamala/leave-portal/internal/core/user"
	"github.com/frahmantamala/leave-portal/internal/transport"
	"github.com/frahmantamala/leave-portal/pkg/logger"
)

type ServiceAPI interface {
	Submit(ctx context.Context, userID string, dto SubmitDTO) (*coreLeave.Request, error)
	Get(ctx context.Context, viewer *coreUser.User, id string) (*coreLeave.Request, error)
	ListMine(ctx context.Context, userID string) ([]*coreLeave.Request, error)
	Queue(ctx context.Context, approverID string, filter QueueFilter) ([]*coreLeave.Request, error)
	QueueStats(ctx context.Context, approverID string) (Stats, error)
	Approve(ctx context.Context, decider *coreUser.User, id string) (*coreLeave.Request, error)
	Reject(ctx context.Context, decider *coreUser.User, id string) (*coreLeave.Request, error)
	ApproveAll(ctx context.Context, decider *coreUser.User) (BulkResult, error)
	Dashboard(ctx context.Context, userID string) (*Dashboard, error)
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

// currentUser writes a 401 and returns false when the request carries no
// authenticated user.
func (h *Handler) currentUser(w http.ResponseWriter, r *http.Request) (*coreUser.User, bool) {
	u, ok := auth.UserFromContext(r.Context())
	if !ok {
		h.WriteAppError(w, internal.ErrInvalidToken)
		return nil, false
	}
	return u, true
}

// Submit handles POST /leaves
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	u, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	var dto SubmitDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.WriteAppError(w, err)
		return
	}

	req, err := h.Service.Submit(r.Context(), u.ID, dto)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, req)
}

// ListMine handles GET /leaves
func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request) {
	u, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	requests, err := h.Service.ListMine(r.Context(), u.ID)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"leaves": requests, "total": len(requests)})
}

// Get handles GET /leaves/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	u, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	req, err := h.Service.Get(r.Context(), u, chi.URLParam(r, "id"))
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, req)
}

// Queue handles GET /approvals?status=&q=
func (h *Handler) Queue(w http.ResponseWriter, r *http.Request) {
	u, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	requests, err := h.Service.Queue(r.Context(), u.ID, QueueFilter{
		Status: coreLeave.Status(q.Get("status")),
		Query:  q.Get("q"),
	})
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"leaves": requests, "total": len(requests)})
}

// QueueStats handles GET /approvals/stats
func (h *Handler) QueueStats(w http.ResponseWriter, r *http.Request) {
	u, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	stats, err := h.Service.QueueStats(r.Context(), u.ID)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, stats)
}

// Approve handles POST /approvals/{id}/approve
func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	u, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	req, err := h.Service.Approve(r.Context(), u, chi.URLParam(r, "id"))
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, req)
}

// Reject handles POST /approvals/{id}/reject
func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	u, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	req, err := h.Service.Reject(r.Context(), u, chi.URLParam(r, "id"))
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, req)
}

// ApproveAll handles POST /approvals/approve-all
func (h *Handler) ApproveAll(w http.ResponseWriter, r *http.Request) {
	u, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	result, err := h.Service.ApproveAll(r.Context(), u)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, result)
}

// Dashboard handles GET /dashboard
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	u, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	dash, err := h.Service.Dashboard(r.Context(), u.ID)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, dash)
}
