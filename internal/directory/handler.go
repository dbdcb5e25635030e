package directory

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

// Handler wires HTTP endpoints for user and group administration.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	guard     auth.Middleware
	validator *validator.Validate
}

// NewHandler constructs a directory handler.
func NewHandler(logger *slog.Logger, service *Service, guard auth.Middleware) *Handler {
	return &Handler{logger: logger, service: service, guard: guard, validator: validator.New()}
}

// MountRoutes registers directory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireRoles(shared.RoleAdmin))
		r.Post("/users", h.handleCreateUser)
		r.Put("/users/{userID}", h.handleUpdateUser)
		r.Post("/groups", h.handleCreateGroup)
		r.Delete("/groups/{groupID}", h.handleDeleteGroup)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireRoles(shared.RoleAdmin, shared.RoleApprover, shared.RoleAuditor))
		r.Get("/users", h.handleListUsers)
		r.Get("/groups", h.handleListGroups)
		r.Get("/groups/{groupID}/members", h.handleGroupMembers)
	})
}

type userResponse struct {
	ID        int64   `json:"id"`
	Email     string  `json:"email"`
	Name      string  `json:"name"`
	Role      string  `json:"role"`
	GroupID   int64   `json:"group_id,omitempty"`
	BranchIDs []int64 `json:"branch_ids,omitempty"`
	IsActive  bool    `json:"is_active"`
}

func toUserResponse(user User) userResponse {
	return userResponse{
		ID:        user.ID,
		Email:     user.Email,
		Name:      user.Name,
		Role:      string(user.Role),
		GroupID:   user.GroupID,
		BranchIDs: user.BranchIDs,
		IsActive:  user.IsActive,
	}
}

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		h.logger.Error("list users", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]userResponse, 0, len(users))
	for _, user := range users {
		out = append(out, toUserResponse(user))
	}
	httpx.JSON(w, http.StatusOK, out)
}

type createUserForm struct {
	Email     string  `json:"email" validate:"required,email"`
	Name      string  `json:"name" validate:"required"`
	Password  string  `json:"password" validate:"required,min=8"`
	Role      string  `json:"role" validate:"required,oneof=ADMIN APPROVER OPERATOR AUDITOR"`
	GroupID   int64   `json:"group_id"`
	BranchIDs []int64 `json:"branch_ids"`
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	var form createUserForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	user, err := h.service.CreateUser(r.Context(), actor, CreateUserInput{
		Email:     form.Email,
		Name:      form.Name,
		Password:  form.Password,
		Role:      shared.Role(form.Role),
		GroupID:   form.GroupID,
		BranchIDs: form.BranchIDs,
	})
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
			return
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toUserResponse(user))
}

type updateUserForm struct {
	Name      string  `json:"name" validate:"required"`
	Role      string  `json:"role" validate:"required,oneof=ADMIN APPROVER OPERATOR AUDITOR"`
	GroupID   int64   `json:"group_id"`
	BranchIDs []int64 `json:"branch_ids"`
	IsActive  bool    `json:"is_active"`
}

func (h *Handler) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "user id must be numeric")
		return
	}
	var form updateUserForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	user, err := h.service.UpdateUser(r.Context(), actor, id, UpdateUserInput{
		Name:      form.Name,
		Role:      shared.Role(form.Role),
		GroupID:   form.GroupID,
		BranchIDs: form.BranchIDs,
		IsActive:  form.IsActive,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toUserResponse(user))
}

type groupResponse struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MemberCount int    `json:"member_count"`
}

func (h *Handler) handleListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.service.ListGroups(r.Context())
	if err != nil {
		h.logger.Error("list groups", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]groupResponse, 0, len(groups))
	for _, group := range groups {
		out = append(out, groupResponse{ID: group.ID, Name: group.Name, Description: group.Description, MemberCount: group.MemberCount})
	}
	httpx.JSON(w, http.StatusOK, out)
}

type createGroupForm struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
}

func (h *Handler) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	var form createGroupForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	group, err := h.service.CreateGroup(r.Context(), actor, form.Name, form.Description)
	if err != nil {
		if errors.Is(err, ErrGroupNameTaken) {
			httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
			return
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, groupResponse{ID: group.ID, Name: group.Name, Description: group.Description})
}

func (h *Handler) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "groupID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "group id must be numeric")
		return
	}
	if err := h.service.DeleteGroup(r.Context(), actor, id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "deleted"})
}

func (h *Handler) handleGroupMembers(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "groupID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "group id must be numeric")
		return
	}
	members, err := h.service.GroupMembers(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]userResponse, 0, len(members))
	for _, member := range members {
		out = append(out, toUserResponse(member))
	}
	httpx.JSON(w, http.StatusOK, out)
}
