package assets

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/patrimon/patrimon/internal/auth"
	"github.com/patrimon/patrimon/internal/platform/httpx"
	"github.com/patrimon/patrimon/internal/shared"
	"github.com/patrimon/patrimon/internal/workflow"
)

// Handler wires HTTP endpoints for the asset lifecycle.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	guard     auth.Middleware
	validator *validator.Validate
}

// NewHandler constructs an asset handler.
func NewHandler(logger *slog.Logger, service *Service, guard auth.Middleware) *Handler {
	return &Handler{logger: logger, service: service, guard: guard, validator: validator.New()}
}

// MountRoutes registers asset routes. Listing and reads are open to every
// authenticated role; branch scoping happens in the service.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/check-fixed-asset", h.handleCheckFixedAsset)
	r.Get("/{assetID}", h.handleGet)
	r.Put("/{assetID}", h.handleUpdate)
	r.Post("/{assetID}/transfer", h.handleRequestTransfer)
	r.Post("/{assetID}/receive", h.handleConfirmReceipt)
	r.Post("/{assetID}/write-off", h.handleRequestWriteOff)
	r.Post("/{assetID}/status", h.handleSetStatus)

	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireRoles(shared.RoleAdmin, shared.RoleApprover))
		r.Post("/{assetID}/approve", h.handleApprove)
		r.Post("/{assetID}/reject", h.handleReject)
	})
}

type assetForm struct {
	Description      string  `json:"description" validate:"required"`
	CategoryID       int64   `json:"category_id" validate:"required"`
	BranchID         int64   `json:"branch_id" validate:"required"`
	Value            float64 `json:"value" validate:"gte=0"`
	InvoiceNumber    string  `json:"invoice_number"`
	SerialNumber     string  `json:"serial_number"`
	FixedAssetNumber string  `json:"fixed_asset_number"`
	Observations     string  `json:"observations"`
	PurchaseDate     string  `json:"purchase_date" validate:"omitempty,datetime=2006-01-02"`
}

type approverResponse struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type assetResponse struct {
	ID               int64              `json:"id"`
	Description      string             `json:"description"`
	CategoryID       int64              `json:"category_id"`
	BranchID         int64              `json:"branch_id"`
	TransferBranchID int64              `json:"transfer_branch_id,omitempty"`
	ResponsibleID    int64              `json:"responsible_id"`
	RequestID        int64              `json:"request_id,omitempty"`
	Status           string             `json:"status"`
	ApprovalStep     int                `json:"approval_step"`
	Value            float64            `json:"value"`
	InvoiceNumber    string             `json:"invoice_number,omitempty"`
	SerialNumber     string             `json:"serial_number,omitempty"`
	FixedAssetNumber string             `json:"fixed_asset_number,omitempty"`
	WriteOffReason   string             `json:"write_off_reason,omitempty"`
	Observations     string             `json:"observations,omitempty"`
	PurchaseDate     string             `json:"purchase_date,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
	CurrentApprovers []approverResponse `json:"current_approvers"`
}

func toAssetResponse(view View) assetResponse {
	resp := assetResponse{
		ID:               view.ID,
		Description:      view.Description,
		CategoryID:       view.CategoryID,
		BranchID:         view.BranchID,
		TransferBranchID: view.TransferBranchID,
		ResponsibleID:    view.ResponsibleID,
		RequestID:        view.RequestID,
		Status:           string(view.Status),
		ApprovalStep:     view.ApprovalStep,
		Value:            view.Value,
		InvoiceNumber:    view.InvoiceNumber,
		SerialNumber:     view.SerialNumber,
		FixedAssetNumber: view.FixedAssetNumber,
		WriteOffReason:   view.WriteOffReason,
		Observations:     view.Observations,
		CreatedAt:        view.CreatedAt,
		UpdatedAt:        view.UpdatedAt,
		CurrentApprovers: make([]approverResponse, 0, len(view.CurrentApprovers)),
	}
	if !view.PurchaseDate.IsZero() {
		resp.PurchaseDate = view.PurchaseDate.Format("2006-01-02")
	}
	for _, a := range view.CurrentApprovers {
		resp.CurrentApprovers = append(resp.CurrentApprovers, approverResponse{ID: a.ID, Name: a.Name, Email: a.Email})
	}
	return resp
}

func assetID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "assetID"), 10, 64)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	q := r.URL.Query()
	filter := ListFilter{
		Status: Status(q.Get("status")),
		Search: q.Get("search"),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unknown status filter")
		return
	}
	for key, dst := range map[string]*int64{"category_id": &filter.CategoryID, "branch_id": &filter.BranchID} {
		if raw := q.Get(key); raw != "" {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				httpx.Problem(w, http.StatusBadRequest, "Validation Failed", key+" must be numeric")
				return
			}
			*dst = id
		}
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
		h.logger.Error("list assets", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	items := make([]assetResponse, 0, len(out))
	for _, asset := range out {
		items = append(items, toAssetResponse(View{Asset: asset}))
	}
	httpx.JSON(w, http.StatusOK, items)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	var form assetForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := CreateInput{
		Description:      form.Description,
		CategoryID:       form.CategoryID,
		BranchID:         form.BranchID,
		Value:            form.Value,
		InvoiceNumber:    form.InvoiceNumber,
		SerialNumber:     form.SerialNumber,
		FixedAssetNumber: form.FixedAssetNumber,
		Observations:     form.Observations,
	}
	if form.PurchaseDate != "" {
		input.PurchaseDate, _ = time.Parse("2006-01-02", form.PurchaseDate)
	}
	view, err := h.service.Create(r.Context(), actor, input)
	if err != nil {
		respondAssetError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toAssetResponse(view))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	id, err := assetID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "asset id must be numeric")
		return
	}
	view, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toAssetResponse(view))
}

type updateForm struct {
	Description  string  `json:"description"`
	Value        float64 `json:"value" validate:"gte=0"`
	Observations string  `json:"observations"`
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	id, err := assetID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "asset id must be numeric")
		return
	}
	var form updateForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	view, err := h.service.Update(r.Context(), actor, id, UpdateInput{
		Description:  form.Description,
		Value:        form.Value,
		Observations: form.Observations,
	})
	if err != nil {
		respondAssetError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toAssetResponse(view))
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	id, err := assetID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "asset id must be numeric")
		return
	}
	view, err := h.service.Approve(r.Context(), actor, id)
	if err != nil {
		respondAssetError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toAssetResponse(view))
}

type rejectForm struct {
	Reason string `json:"reason"`
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	id, err := assetID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "asset id must be numeric")
		return
	}
	var form rejectForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	view, err := h.service.Reject(r.Context(), actor, id, form.Reason)
	if err != nil {
		respondAssetError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toAssetResponse(view))
}

type transferForm struct {
	TargetBranchID int64 `json:"target_branch_id" validate:"required"`
}

func (h *Handler) handleRequestTransfer(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	id, err := assetID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "asset id must be numeric")
		return
	}
	var form transferForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	view, err := h.service.RequestTransfer(r.Context(), actor, id, form.TargetBranchID)
	if err != nil {
		respondAssetError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toAssetResponse(view))
}

func (h *Handler) handleConfirmReceipt(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	id, err := assetID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "asset id must be numeric")
		return
	}
	view, err := h.service.ConfirmReceipt(r.Context(), actor, id)
	if err != nil {
		respondAssetError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toAssetResponse(view))
}

type writeOffForm struct {
	Reason string `json:"reason" validate:"required"`
}

func (h *Handler) handleRequestWriteOff(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	id, err := assetID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "asset id must be numeric")
		return
	}
	var form writeOffForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	view, err := h.service.RequestWriteOff(r.Context(), actor, id, form.Reason)
	if err != nil {
		respondAssetError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toAssetResponse(view))
}

type statusForm struct {
	Status string `json:"status" validate:"required,oneof=APPROVED MAINTENANCE IN_STOCK"`
}

func (h *Handler) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	id, err := assetID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "asset id must be numeric")
		return
	}
	var form statusForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	view, err := h.service.SetOperationalStatus(r.Context(), actor, id, Status(form.Status))
	if err != nil {
		respondAssetError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toAssetResponse(view))
}

type fixedAssetResponse struct {
	Exists      bool   `json:"exists"`
	AssetID     int64  `json:"asset_id,omitempty"`
	Description string `json:"description,omitempty"`
}

func (h *Handler) handleCheckFixedAsset(w http.ResponseWriter, r *http.Request) {
	number := r.URL.Query().Get("number")
	if number == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "number is required")
		return
	}
	asset, err := h.service.FindByFixedAssetNumber(r.Context(), number)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.JSON(w, http.StatusOK, fixedAssetResponse{Exists: false})
			return
		}
		h.logger.Error("check fixed asset number", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, fixedAssetResponse{Exists: true, AssetID: asset.ID, Description: asset.Description})
}

func respondAssetError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, workflow.ErrRuleNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrFixedAssetTaken):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	default:
		httpx.RespondError(w, err)
	}
}
