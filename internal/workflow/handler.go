package workflow

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

// Handler wires HTTP endpoints for workflow rule administration.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	guard     auth.Middleware
	validator *validator.Validate
}

// NewHandler constructs a workflow handler.
func NewHandler(logger *slog.Logger, service *Service, guard auth.Middleware) *Handler {
	return &Handler{logger: logger, service: service, guard: guard, validator: validator.New()}
}

// MountRoutes registers workflow administration routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireRoles(shared.RoleAdmin, shared.RoleApprover))
		r.Get("/", h.handleList)
		r.Post("/", h.handleCreate)
		r.Put("/reorder", h.handleReorder)
		r.Put("/{ruleID}", h.handleUpdate)
		r.Delete("/{ruleID}", h.handleDelete)
	})
}

type ruleForm struct {
	CategoryID int64  `json:"category_id" validate:"required"`
	Action     string `json:"action_type" validate:"required,oneof=CREATE TRANSFER WRITE_OFF"`
	StepOrder  int    `json:"step_order"`
	UserID     int64  `json:"required_user_id"`
	GroupID    int64  `json:"required_group_id"`
	Role       string `json:"required_role" validate:"omitempty,oneof=ADMIN APPROVER OPERATOR AUDITOR"`
}

type ruleResponse struct {
	ID         int64  `json:"id"`
	CategoryID int64  `json:"category_id"`
	Action     string `json:"action_type"`
	StepOrder  int    `json:"step_order"`
	TargetKind string `json:"target_kind"`
	UserID     int64  `json:"required_user_id,omitempty"`
	GroupID    int64  `json:"required_group_id,omitempty"`
	Role       string `json:"required_role,omitempty"`
}

func toRuleResponse(rule Rule) ruleResponse {
	resp := ruleResponse{
		ID:         rule.ID,
		CategoryID: rule.CategoryID,
		Action:     string(rule.Action),
		StepOrder:  rule.StepOrder,
		TargetKind: string(rule.Target.Kind()),
	}
	switch rule.Target.Kind() {
	case TargetKindUser:
		resp.UserID = rule.Target.UserID()
	case TargetKindGroup:
		resp.GroupID = rule.Target.GroupID()
	case TargetKindRole:
		resp.Role = string(rule.Target.Role())
	}
	return resp
}

func respondRuleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidTarget):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrRuleNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrStepOrderTaken):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrIncompleteReorder):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Incomplete Reorder", err.Error())
	default:
		httpx.RespondError(w, err)
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	var categoryID int64
	if raw := r.URL.Query().Get("category_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "category_id must be numeric")
			return
		}
		categoryID = id
	}
	rules, err := h.service.ListRules(r.Context(), categoryID)
	if err != nil {
		h.logger.Error("list workflow rules", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]ruleResponse, 0, len(rules))
	for _, rule := range rules {
		out = append(out, toRuleResponse(rule))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) decodeRuleForm(w http.ResponseWriter, r *http.Request) (RuleInput, bool) {
	var form ruleForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return RuleInput{}, false
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return RuleInput{}, false
	}
	return RuleInput{
		CategoryID: form.CategoryID,
		Action:     ActionType(form.Action),
		StepOrder:  form.StepOrder,
		UserID:     form.UserID,
		GroupID:    form.GroupID,
		Role:       shared.Role(form.Role),
	}, true
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	input, ok := h.decodeRuleForm(w, r)
	if !ok {
		return
	}
	rule, err := h.service.CreateRule(r.Context(), actor, input)
	if err != nil {
		respondRuleError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toRuleResponse(rule))
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "ruleID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "rule id must be numeric")
		return
	}
	input, ok := h.decodeRuleForm(w, r)
	if !ok {
		return
	}
	rule, err := h.service.UpdateRule(r.Context(), actor, id, input)
	if err != nil {
		respondRuleError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRuleResponse(rule))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "ruleID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "rule id must be numeric")
		return
	}
	if err := h.service.DeleteRule(r.Context(), actor, id); err != nil {
		respondRuleError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "deleted"})
}

type reorderForm struct {
	CategoryID int64   `json:"category_id" validate:"required"`
	Action     string  `json:"action_type" validate:"required,oneof=CREATE TRANSFER WRITE_OFF"`
	RuleIDs    []int64 `json:"rule_ids" validate:"required,min=1"`
}

func (h *Handler) handleReorder(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	var form reorderForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.Reorder(r.Context(), actor, form.CategoryID, ActionType(form.Action), form.RuleIDs); err != nil {
		respondRuleError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "reordered"})
}
