package requests

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/patrimon/patrimon/internal/auth"
	"github.com/patrimon/patrimon/internal/platform/httpx"
	"github.com/patrimon/patrimon/internal/shared"
)

// Handler wires HTTP endpoints for batch requests.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	guard     auth.Middleware
	validator *validator.Validate
}

// NewHandler constructs a request handler.
func NewHandler(logger *slog.Logger, service *Service, guard auth.Middleware) *Handler {
	return &Handler{logger: logger, service: service, guard: guard, validator: validator.New()}
}

// MountRoutes registers batch request routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/{requestID}", h.handleGet)

	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireRoles(shared.RoleAdmin, shared.RoleApprover))
		r.Get("/pending", h.handlePending)
		r.Post("/{requestID}/approve", h.handleApprove)
		r.Post("/{requestID}/reject", h.handleReject)
	})
}

type createForm struct {
	Type           string  `json:"request_type" validate:"required,oneof=TRANSFER WRITE_OFF"`
	AssetIDs       []int64 `json:"asset_ids" validate:"required,min=1"`
	TargetBranchID int64   `json:"target_branch_id"`
	Reason         string  `json:"reason"`
}

type requestResponse struct {
	ID               int64              `json:"id"`
	Type             string             `json:"request_type"`
	Status           string             `json:"status"`
	RequesterID      int64              `json:"requester_id"`
	CategoryID       int64              `json:"category_id"`
	TargetBranchID   int64              `json:"target_branch_id,omitempty"`
	Reason           string             `json:"reason,omitempty"`
	CurrentStep      int                `json:"current_step"`
	AssetIDs         []int64            `json:"asset_ids"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
	CurrentApprovers []approverResponse `json:"current_approvers"`
}

type approverResponse struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func toRequestResponse(view View) requestResponse {
	resp := requestResponse{
		ID:               view.ID,
		Type:             string(view.Type),
		Status:           string(view.Status),
		RequesterID:      view.RequesterID,
		CategoryID:       view.CategoryID,
		TargetBranchID:   view.TargetBranchID,
		Reason:           view.Reason,
		CurrentStep:      view.CurrentStep,
		AssetIDs:         view.AssetIDs,
		CreatedAt:        view.CreatedAt,
		UpdatedAt:        view.UpdatedAt,
		CurrentApprovers: make([]approverResponse, 0, len(view.CurrentApprovers)),
	}
	if resp.AssetIDs == nil {
		resp.AssetIDs = []int64{}
	}
	for _, a := range view.CurrentApprovers {
		resp.CurrentApprovers = append(resp.CurrentApprovers, approverResponse{ID: a.ID, Name: a.Name, Email: a.Email})
	}
	return resp
}

func requestID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "requestID"), 10, 64)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	q := r.URL.Query()
	filter := ListFilter{
		Status: Status(q.Get("status")),
		Type:   Type(q.Get("request_type")),
	}
	if raw := q.Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			filter.Limit = n
		}
	}
	if raw := q.Get("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			filter.Offset = n
		}
	}
	out, err := h.service.List(r.Context(), actor, filter)
	if err != nil {
		h.logger.Error("list requests", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	items := make([]requestResponse, 0, len(out))
	for _, req := range out {
		items = append(items, toRequestResponse(View{Request: req}))
	}
	httpx.JSON(w, http.StatusOK, items)
}

func (h *Handler) handlePending(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	out, err := h.service.PendingForActor(r.Context(), actor)
	if err != nil {
		h.logger.Error("list pending requests", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	items := make([]requestResponse, 0, len(out))
	for _, req := range out {
		items = append(items, toRequestResponse(View{Request: req}))
	}
	httpx.JSON(w, http.StatusOK, items)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	var form createForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	view, err := h.service.Create(r.Context(), actor, CreateInput{
		Type:           Type(form.Type),
		AssetIDs:       form.AssetIDs,
		TargetBranchID: form.TargetBranchID,
		Reason:         form.Reason,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toRequestResponse(view))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	id, err := requestID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "request id must be numeric")
		return
	}
	view, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRequestResponse(view))
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	id, err := requestID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "request id must be numeric")
		return
	}
	view, err := h.service.Approve(r.Context(), actor, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRequestResponse(view))
}

type rejectForm struct {
	Reason string `json:"reason"`
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	id, err := requestID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "request id must be numeric")
		return
	}
	var form rejectForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	view, err := h.service.Reject(r.Context(), actor, id, form.Reason)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRequestResponse(view))
}
