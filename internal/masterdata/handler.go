package masterdata

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/patrimon/patrimon/internal/auth"
	"github.com/patrimon/patrimon/internal/platform/httpx"
	"github.com/patrimon/patrimon/internal/shared"
)

// Handler wires HTTP endpoints for branches and categories.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	guard     auth.Middleware
	validator *validator.Validate
}

// NewHandler constructs a masterdata handler.
func NewHandler(logger *slog.Logger, service *Service, guard auth.Middleware) *Handler {
	return &Handler{logger: logger, service: service, guard: guard, validator: validator.New()}
}

// MountRoutes registers masterdata routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/branches", h.handleListBranches)
	r.Get("/categories", h.handleListCategories)
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireRoles(shared.RoleAdmin))
		r.Post("/branches", h.handleCreateBranch)
		r.Post("/categories", h.handleCreateCategory)
		r.Put("/categories/{categoryID}", h.handleUpdateCategory)
	})
}

type branchResponse struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
}

func (h *Handler) handleListBranches(w http.ResponseWriter, r *http.Request) {
	branches, err := h.service.ListBranches(r.Context())
	if err != nil {
		h.logger.Error("list branches", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]branchResponse, 0, len(branches))
	for _, b := range branches {
		out = append(out, branchResponse{ID: b.ID, Name: b.Name, Address: b.Address})
	}
	httpx.JSON(w, http.StatusOK, out)
}

type branchForm struct {
	Name    string `json:"name" validate:"required"`
	Address string `json:"address"`
}

func (h *Handler) handleCreateBranch(w http.ResponseWriter, r *http.Request) {
	var form branchForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	branch, err := h.service.CreateBranch(r.Context(), form.Name, form.Address)
	if err != nil {
		if errors.Is(err, ErrNameTaken) {
			httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
			return
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, branchResponse{ID: branch.ID, Name: branch.Name, Address: branch.Address})
}

type categoryResponse struct {
	ID                 int64  `json:"id"`
	Name               string `json:"name"`
	DepreciationMonths int    `json:"depreciation_months,omitempty"`
}

func (h *Handler) handleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.service.ListCategories(r.Context())
	if err != nil {
		h.logger.Error("list categories", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]categoryResponse, 0, len(categories))
	for _, c := range categories {
		out = append(out, categoryResponse{ID: c.ID, Name: c.Name, DepreciationMonths: c.DepreciationMonths})
	}
	httpx.JSON(w, http.StatusOK, out)
}

type categoryForm struct {
	Name               string `json:"name" validate:"required"`
	DepreciationMonths int    `json:"depreciation_months" validate:"gte=0"`
}

func (h *Handler) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var form categoryForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	category, err := h.service.CreateCategory(r.Context(), form.Name, form.DepreciationMonths)
	if err != nil {
		if errors.Is(err, ErrNameTaken) {
			httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
			return
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, categoryResponse{ID: category.ID, Name: category.Name, DepreciationMonths: category.DepreciationMonths})
}

func (h *Handler) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "categoryID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "category id must be numeric")
		return
	}
	var form categoryForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	category, err := h.service.UpdateCategory(r.Context(), id, form.Name, form.DepreciationMonths)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, categoryResponse{ID: category.ID, Name: category.Name, DepreciationMonths: category.DepreciationMonths})
}
