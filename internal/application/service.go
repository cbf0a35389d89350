// Package application は求人応募管理のドメインロジックを提供する。
package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/jacobsladder/internal/docstore"
	"github.com/hitoshi/jacobsladder/internal/model"
	"github.com/hitoshi/jacobsladder/internal/security"
)

// Service は求人応募のサービス層。
// レコードはすべて認証済みアイデンティティにスコープされ、
// 他ユーザーのレコードは存在しないものとして扱う。
type Service struct {
	store     docstore.Store
	sanitizer security.InputSanitizerService
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(store docstore.Store, sanitizer security.InputSanitizerService) *Service {
	return &Service{
		store:     store,
		sanitizer: sanitizer,
		now:       time.Now,
	}
}

// CreateInput は応募作成の入力。
type CreateInput struct {
	Company   string
	Position  string
	Status    model.ApplicationStatus
	URL       string
	Notes     string
	AppliedAt time.Time
}

// UpdateInput は応募更新の入力。nilフィールドは変更しない部分更新。
type UpdateInput struct {
	Company  *string
	Position *string
	Status   *model.ApplicationStatus
	URL      *string
	Notes    *string
}

// Create は新しい応募レコードを作成する。
// 自由記述フィールドはサニタイズされてから保存される。
func (s *Service) Create(ctx context.Context, userID string, in CreateInput) (*model.Application, error) {
	if in.Status == "" {
		in.Status = model.StatusApplied
	}
	if !model.IsValidApplicationStatus(in.Status) {
		return nil, model.NewInvalidStatusError(string(in.Status))
	}

	company := s.sanitizer.Sanitize(in.Company)
	if company == "" {
		return nil, model.NewInvalidRequestError()
	}

	now := s.now().UTC()
	appliedAt := in.AppliedAt
	if appliedAt.IsZero() {
		appliedAt = now
	}

	app := &model.Application{
		ID:        uuid.NewString(),
		UserID:    userID,
		Company:   company,
		Position:  s.sanitizer.Sanitize(in.Position),
		Status:    in.Status,
		URL:       s.sanitizer.Sanitize(in.URL),
		Notes:     s.sanitizer.Sanitize(in.Notes),
		AppliedAt: appliedAt,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.store.Create(ctx, docstore.CollectionApplications, app.ID, app); err != nil {
		return nil, fmt.Errorf("failed to create application: %w", err)
	}

	return app, nil
}

// List はユーザーの応募一覧を返す。
func (s *Service) List(ctx context.Context, userID string) ([]model.Application, error) {
	var apps []model.Application
	if err := s.store.QueryByEquals(ctx, docstore.CollectionApplications, "userId", userID, &apps); err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	if apps == nil {
		apps = []model.Application{}
	}
	return apps, nil
}

// Get は指定IDの応募を取得する。
// 存在しない、または他ユーザーの所有である場合はAPPLICATION_NOT_FOUND。
func (s *Service) Get(ctx context.Context, userID, applicationID string) (*model.Application, error) {
	var app model.Application
	err := s.store.GetByKey(ctx, docstore.CollectionApplications, applicationID, &app)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, model.NewApplicationNotFoundError(applicationID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get application: %w", err)
	}
	if app.UserID != userID {
		return nil, model.NewApplicationNotFoundError(applicationID)
	}
	return &app, nil
}

// Update は応募レコードを部分更新して、更新後のレコードを返す。
func (s *Service) Update(ctx context.Context, userID, applicationID string, in UpdateInput) (*model.Application, error) {
	// 所有確認を兼ねた取得
	if _, err := s.Get(ctx, userID, applicationID); err != nil {
		return nil, err
	}

	fields := map[string]any{
		"updatedAt": s.now().UTC(),
	}
	if in.Company != nil {
		company := s.sanitizer.Sanitize(*in.Company)
		if company == "" {
			return nil, model.NewInvalidRequestError()
		}
		fields["company"] = company
	}
	if in.Position != nil {
		fields["position"] = s.sanitizer.Sanitize(*in.Position)
	}
	if in.Status != nil {
		if !model.IsValidApplicationStatus(*in.Status) {
			return nil, model.NewInvalidStatusError(string(*in.Status))
		}
		fields["status"] = *in.Status
	}
	if in.URL != nil {
		fields["url"] = s.sanitizer.Sanitize(*in.URL)
	}
	if in.Notes != nil {
		fields["notes"] = s.sanitizer.Sanitize(*in.Notes)
	}

	if err := s.store.UpdatePartial(ctx, docstore.CollectionApplications, applicationID, fields); err != nil {
		return nil, fmt.Errorf("failed to update application: %w", err)
	}

	return s.Get(ctx, userID, applicationID)
}

// Delete は応募レコードを削除する。
func (s *Service) Delete(ctx context.Context, userID, applicationID string) error {
	if _, err := s.Get(ctx, userID, applicationID); err != nil {
		return err
	}

	if err := s.store.Delete(ctx, docstore.CollectionApplications, applicationID); err != nil {
		return fmt.Errorf("failed to delete application: %w", err)
	}

	return nil
}
