package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/jacobsladder/internal/application"
	"github.com/hitoshi/jacobsladder/internal/middleware"
	"github.com/hitoshi/jacobsladder/internal/model"
)

// ApplicationServiceInterface は応募ハンドラーが必要とするサービスインターフェース。
type ApplicationServiceInterface interface {
	Create(ctx context.Context, userID string, in application.CreateInput) (*model.Application, error)
	List(ctx context.Context, userID string) ([]model.Application, error)
	Get(ctx context.Context, userID, applicationID string) (*model.Application, error)
	Update(ctx context.Context, userID, applicationID string, in application.UpdateInput) (*model.Application, error)
	Delete(ctx context.Context, userID, applicationID string) error
}

// ApplicationHandler は応募管理のHTTPハンドラー。
type ApplicationHandler struct {
	service ApplicationServiceInterface
}

// NewApplicationHandler はApplicationHandlerを生成する。
func NewApplicationHandler(service ApplicationServiceInterface) *ApplicationHandler {
	return &ApplicationHandler{
		service: service,
	}
}

// createApplicationRequest は応募作成リクエストのボディ。
type createApplicationRequest struct {
	Company   string     `json:"company"`
	Position  string     `json:"position"`
	Status    string     `json:"status"`
	URL       string     `json:"url"`
	Notes     string     `json:"notes"`
	AppliedAt *time.Time `json:"appliedAt"`
}

// updateApplicationRequest は応募更新リクエストのボディ。nilフィールドは変更しない。
type updateApplicationRequest struct {
	Company  *string `json:"company"`
	Position *string `json:"position"`
	Status   *string `json:"status"`
	URL      *string `json:"url"`
	Notes    *string `json:"notes"`
}

// Create は新しい応募レコードを作成する。
// POST /api/applications
func (h *ApplicationHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req createApplicationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}

	in := application.CreateInput{
		Company:  req.Company,
		Position: req.Position,
		Status:   model.ApplicationStatus(req.Status),
		URL:      req.URL,
		Notes:    req.Notes,
	}
	if req.AppliedAt != nil {
		in.AppliedAt = *req.AppliedAt
	}

	app, err := h.service.Create(r.Context(), userID, in)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, app)
}

// List はユーザーの応募一覧を取得する。
// GET /api/applications
func (h *ApplicationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	apps, err := h.service.List(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, apps)
}

// Get は応募レコードを1件取得する。
// GET /api/applications/{id}
func (h *ApplicationHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	applicationID := chi.URLParam(r, "id")

	app, err := h.service.Get(r.Context(), userID, applicationID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, app)
}

// Update は応募レコードを部分更新する。
// PATCH /api/applications/{id}
func (h *ApplicationHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	applicationID := chi.URLParam(r, "id")

	var req updateApplicationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}

	in := application.UpdateInput{
		Company:  req.Company,
		Position: req.Position,
		URL:      req.URL,
		Notes:    req.Notes,
	}
	if req.Status != nil {
		status := model.ApplicationStatus(*req.Status)
		in.Status = &status
	}

	app, err := h.service.Update(r.Context(), userID, applicationID, in)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, app)
}

// Delete は応募レコードを削除する。
// DELETE /api/applications/{id}
func (h *ApplicationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	applicationID := chi.URLParam(r, "id")

	if err := h.service.Delete(r.Context(), userID, applicationID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
