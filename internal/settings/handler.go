package settings

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/frahmantamala/leave-portal/internal"
	"github.com/frahmantamala/leave-portal/internal/transport"
	"github.com/frahmantamala/leave-portal/pkg/logger"
)

type ServiceAPI interface {
	AccessCode(ctx context.Context) (string, error)
	UpdateAccessCode(ctx context.Context, actorID string, dto UpdateAccessCodeDTO) error
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

func (h *Handler) GetAccessCode(w http.ResponseWriter, r *http.Request) {
	code, err := h.Service.AccessCode(r.Context())
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, AccessCodeView{AccessCode: code})
}

func (h *Handler) UpdateAccessCode(w http.ResponseWriter, r *http.Request) {
	var dto UpdateAccessCodeDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.WriteAppError(w, err)
		return
	}

	actorID := internal.UserIDFromContext(r.Context())
	if err := h.Service.UpdateAccessCode(r.Context(), actorID, dto); err != nil {
		h.WriteAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
