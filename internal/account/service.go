// Package account はアカウントライフサイクルのドメインロジックを提供する。
//
// 削除予約（論理削除のカスケード）と全データエクスポートを実装する。
// どちらもbearerトークンの検証を入口とし、検証に失敗したリクエストは
// ドキュメントストアに一切触れない。
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/jacobsladder/internal/docstore"
	"github.com/hitoshi/jacobsladder/internal/identity"
	"github.com/hitoshi/jacobsladder/internal/model"
)

// DefaultGracePeriod は削除予約からパージまでの猶予期間。
const DefaultGracePeriod = 30 * 24 * time.Hour

// Recorder はライフサイクル操作のメトリクス記録インターフェース。
type Recorder interface {
	RecordDeletionScheduled()
	RecordCascadeOutcome(collection string, ok bool)
	RecordExport()
	RecordExportDegraded(section string)
}

// noopRecorder はメトリクス未設定時のデフォルト実装。
type noopRecorder struct{}

func (noopRecorder) RecordDeletionScheduled()          {}
func (noopRecorder) RecordCascadeOutcome(string, bool) {}
func (noopRecorder) RecordExport()                     {}
func (noopRecorder) RecordExportDegraded(string)       {}

// Config はServiceの設定を保持する。
type Config struct {
	// GracePeriod は削除予約からパージまでの猶予期間。ゼロの場合は30日。
	GracePeriod time.Duration
	// Now は現在時刻の供給源。テストで差し替える。
	Now func() time.Time
}

// Service はアカウントライフサイクルのサービス層。
type Service struct {
	store       docstore.Store
	gateway     identity.Gateway
	gracePeriod time.Duration
	now         func() time.Time
	metrics     Recorder
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(store docstore.Store, gateway identity.Gateway, cfg Config) *Service {
	if cfg.GracePeriod == 0 {
		cfg.GracePeriod = DefaultGracePeriod
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		store:       store,
		gateway:     gateway,
		gracePeriod: cfg.GracePeriod,
		now:         cfg.Now,
		metrics:     noopRecorder{},
	}
}

// WithMetrics はメトリクス記録先を設定する。
func (s *Service) WithMetrics(m Recorder) *Service {
	if m != nil {
		s.metrics = m
	}
	return s
}

// ScheduleDeletion はアカウントと全依存データに削除マークを付け、
// パージ予定時刻を返す。
//
// 処理順序:
//  1. bearerトークンを検証してアイデンティティを解決する。
//     失敗した場合は状態を一切変更しない。
//  2. アカウントレコードにマークを適用し、完了を待つ。
//  3. applications、emailEventsをuserIdで走査し、各ドキュメントへの
//     マーク適用を並行に発行して全件の確定を待つ。
//  4. すべて成功した場合のみIdentity Gatewayでアカウントを無効化する。
//
// 途中で失敗しても適用済みのマークは取り消さない。マークは冪等であり、
// ユーザーのリトライで残りが自己修復される。アカウントが無効化される前は
// 再認証できるため、無効化は必ず最後に行う。
func (s *Service) ScheduleDeletion(ctx context.Context, bearer string) (time.Time, error) {
	uid, err := s.gateway.VerifyToken(ctx, bearer)
	if err != nil {
		return time.Time{}, fmt.Errorf("token verification failed: %w", err)
	}

	now := s.now().UTC()
	purgeAt := now.Add(s.gracePeriod)
	mark := map[string]any{
		"markedForDeletionAt": now,
		"ttl":                 purgeAt,
	}

	slog.Info("scheduling account deletion",
		slog.String("user_id", uid),
		slog.Time("purge_at", purgeAt),
	)

	// 1. アカウント本体にマークを適用（依存データの走査より先に完了させる）
	if err := s.store.UpdatePartial(ctx, docstore.CollectionUsers, uid, mark); err != nil {
		return time.Time{}, fmt.Errorf("failed to mark account %s: %w", uid, err)
	}

	// 2. 依存コレクションへのカスケード
	var results []model.CascadeResult
	for _, collection := range []string{docstore.CollectionApplications, docstore.CollectionEmailEvents} {
		cascaded, err := s.cascadeCollection(ctx, collection, uid, mark)
		if err != nil {
			return time.Time{}, fmt.Errorf("failed to cascade %s for %s: %w", collection, uid, err)
		}
		results = append(results, cascaded...)
	}

	for _, r := range results {
		s.metrics.RecordCascadeOutcome(r.Collection, r.Err == nil)
		if r.Err != nil {
			slog.Error("cascade mark failed",
				slog.String("user_id", uid),
				slog.String("collection", r.Collection),
				slog.String("key", r.Key),
				slog.String("error", r.Err.Error()),
			)
		}
	}

	if failed := model.FailedCount(results); failed > 0 {
		// アカウントは有効なまま残す。リトライで再マークできる
		return time.Time{}, fmt.Errorf("cascade left %d of %d documents unmarked for %s", failed, len(results), uid)
	}

	// 3. 全マーク完了後にのみ認証を無効化する
	if err := s.gateway.DisableUser(ctx, uid); err != nil {
		return time.Time{}, fmt.Errorf("failed to disable identity %s: %w", uid, err)
	}

	s.metrics.RecordDeletionScheduled()
	slog.Info("account deletion scheduled",
		slog.String("user_id", uid),
		slog.Int("cascaded_documents", len(results)),
	)

	return purgeAt, nil
}

// keyOnly はカスケード対象のキーだけを取り出すための射影。
type keyOnly struct {
	ID string `bson:"_id"`
}

// cascadeCollection は指定コレクション内のユーザー所有ドキュメント全件に
// マークを適用する。個々の更新は並行に発行され、順序は保証しない。
// 全件の確定（成功・失敗を問わず）を待ってから結果を返す。
// 走査自体の失敗はカスケード続行不能としてエラーを返す。
func (s *Service) cascadeCollection(ctx context.Context, collection, uid string, mark map[string]any) ([]model.CascadeResult, error) {
	var keys []keyOnly
	if err := s.store.QueryByEquals(ctx, collection, "userId", uid, &keys); err != nil {
		return nil, err
	}

	results := make([]model.CascadeResult, len(keys))

	var wg sync.WaitGroup
	for i, k := range keys {
		wg.Add(1)
		go func(i int, key string) {
			defer wg.Done()
			err := s.store.UpdatePartial(ctx, collection, key, mark)
			results[i] = model.CascadeResult{
				Collection: collection,
				Key:        key,
				Err:        err,
			}
		}(i, k.ID)
	}
	wg.Wait()

	return results, nil
}

// ExportData はアカウントの全データを1つのバンドルに集約して返す。
//
// プロフィール（usersレコード）は必須であり、読み取り失敗は
// エクスポート全体の失敗となる。依存コレクションの走査失敗は
// そのセクションを空配列に縮退させるだけで、エクスポートは成功する。
// バンドルはリクエストごとに生成され、キャッシュされない。
func (s *Service) ExportData(ctx context.Context, bearer string) (*model.ExportBundle, error) {
	uid, err := s.gateway.VerifyToken(ctx, bearer)
	if err != nil {
		return nil, fmt.Errorf("token verification failed: %w", err)
	}

	bundle := &model.ExportBundle{
		ExportDate: s.now().UTC(),
	}

	// プロフィールは必須。レコード未作成のアカウントはIDのみで合成する
	// （読み取り自体の失敗とは区別する）
	var user model.Account
	err = s.store.GetByKey(ctx, docstore.CollectionUsers, uid, &user)
	switch {
	case errors.Is(err, docstore.ErrNotFound):
		user = model.Account{ID: uid}
	case err != nil:
		return nil, fmt.Errorf("failed to read profile for %s: %w", uid, err)
	}
	bundle.User = user

	// 依存セクションはベストエフォート
	var apps []model.Application
	if err := s.store.QueryByEquals(ctx, docstore.CollectionApplications, "userId", uid, &apps); err != nil {
		slog.Error("export applications section degraded",
			slog.String("user_id", uid),
			slog.String("error", err.Error()),
		)
		s.metrics.RecordExportDegraded(docstore.CollectionApplications)
		bundle.Sections.Applications = model.SectionResult{Degraded: true, Reason: err.Error()}
		apps = []model.Application{}
	}
	if apps == nil {
		apps = []model.Application{}
	}
	bundle.Applications = apps

	var events []model.EmailEvent
	if err := s.store.QueryByEquals(ctx, docstore.CollectionEmailEvents, "userId", uid, &events); err != nil {
		slog.Error("export email events section degraded",
			slog.String("user_id", uid),
			slog.String("error", err.Error()),
		)
		s.metrics.RecordExportDegraded(docstore.CollectionEmailEvents)
		bundle.Sections.EmailEvents = model.SectionResult{Degraded: true, Reason: err.Error()}
		events = []model.EmailEvent{}
	}
	if events == nil {
		events = []model.EmailEvent{}
	}
	bundle.EmailEvents = events

	s.metrics.RecordExport()

	return bundle, nil
}
