package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hitoshi/jacobsladder/internal/identity"
	"github.com/hitoshi/jacobsladder/internal/middleware"
	"github.com/hitoshi/jacobsladder/internal/model"
)

// AccountServiceInterface はアカウントハンドラーが必要とするサービスインターフェース。
type AccountServiceInterface interface {
	// ScheduleDeletion はアカウントの削除予約を実行し、パージ予定時刻を返す。
	ScheduleDeletion(ctx context.Context, bearer string) (time.Time, error)
	// ExportData はアカウントの全データをエクスポート成果物として返す。
	ExportData(ctx context.Context, bearer string) (*model.ExportBundle, error)
}

// LifecycleLatencyRecorder はライフサイクル操作のレイテンシメトリクスを記録する。
type LifecycleLatencyRecorder interface {
	RecordLifecycleLatency(duration time.Duration)
}

// AccountHandler はアカウントライフサイクル操作のHTTPハンドラー。
type AccountHandler struct {
	service AccountServiceInterface
	metrics LifecycleLatencyRecorder
	now     func() time.Time
}

// NewAccountHandler はAccountHandlerを生成する。metricsはnil可。
func NewAccountHandler(service AccountServiceInterface, metrics LifecycleLatencyRecorder) *AccountHandler {
	return &AccountHandler{
		service: service,
		metrics: metrics,
		now:     time.Now,
	}
}

// deletionResponse は削除予約成功レスポンス。
type deletionResponse struct {
	Success           bool      `json:"success"`
	ScheduledDeletion time.Time `json:"scheduledDeletion"`
}

// ScheduleDeletion はアカウントとその関連データの削除予約を実行する。
// DELETE /api/account
func (h *AccountHandler) ScheduleDeletion(w http.ResponseWriter, r *http.Request) {
	token, err := middleware.TokenFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	start := h.now()
	purgeAt, err := h.service.ScheduleDeletion(r.Context(), token)
	h.recordLatency(start)

	if err != nil {
		if errors.Is(err, identity.ErrInvalidToken) {
			writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewInvalidTokenError())
			return
		}
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			handleServiceError(w, err)
			return
		}
		handleServiceError(w, model.NewLifecycleFailedError())
		return
	}

	writeJSON(w, http.StatusOK, deletionResponse{
		Success:           true,
		ScheduledDeletion: purgeAt,
	})
}

// ExportData はアカウントの全データをJSONファイルとしてダウンロードさせる。
// GET /api/account/export
func (h *AccountHandler) ExportData(w http.ResponseWriter, r *http.Request) {
	token, err := middleware.TokenFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	start := h.now()
	bundle, err := h.service.ExportData(r.Context(), token)
	h.recordLatency(start)

	if err != nil {
		if errors.Is(err, identity.ErrInvalidToken) {
			writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewInvalidTokenError())
			return
		}
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			handleServiceError(w, err)
			return
		}
		handleServiceError(w, model.NewExportFailedError())
		return
	}

	body, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		handleServiceError(w, model.NewExportFailedError())
		return
	}

	filename := fmt.Sprintf("jacobs-ladder-export-%s.json", bundle.ExportDate.UTC().Format("2006-01-02"))
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func (h *AccountHandler) recordLatency(start time.Time) {
	if h.metrics != nil {
		h.metrics.RecordLifecycleLatency(h.now().Sub(start))
	}
}
