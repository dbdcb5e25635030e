package settings

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/patrimon/patrimon/internal/auth"
	"github.com/patrimon/patrimon/internal/platform/httpx"
	"github.com/patrimon/patrimon/internal/shared"
)

// Handler wires HTTP endpoints for system settings.
type Handler struct {
	logger *slog.Logger
	store  *Store
	guard  auth.Middleware
}

// NewHandler constructs a settings handler.
func NewHandler(logger *slog.Logger, store *Store, guard auth.Middleware) *Handler {
	return &Handler{logger: logger, store: store, guard: guard}
}

// MountRoutes registers settings routes. Reads are open to any authenticated
// actor; writes are admin only.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleRead)
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireRoles(shared.RoleAdmin))
		r.Put("/", h.handleUpdate)
	})
}

func (h *Handler) handleRead(w http.ResponseWriter, r *http.Request) {
	all, err := h.store.All(r.Context())
	if err != nil {
		h.logger.Error("read settings", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, all)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var updates map[string]string
	if err := httpx.DecodeJSON(r, &updates); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	for key, value := range updates {
		if err := h.store.Set(r.Context(), key, value); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	all, err := h.store.All(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, all)
}
