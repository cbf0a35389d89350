package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/jacobsladder/internal/model"
)

const (
	// DefaultTTL はセッションの有効期間。最終アクティビティから7日。
	DefaultTTL = 7 * 24 * time.Hour
	// DefaultRefreshInterval は自動リフレッシュの間隔。
	DefaultRefreshInterval = 30 * time.Minute
)

// Config はManagerの設定を保持する。ゼロ値のフィールドにはデフォルトが適用される。
type Config struct {
	TTL             time.Duration
	RefreshInterval time.Duration

	// AutoRefresh を有効にすると、Initialize時にバックグラウンドの
	// リフレッシュ処理を開始する。レコードが消えると自動的に停止する。
	// リクエストスコープで使う場合は無効にする。
	AutoRefresh bool

	// Now は現在時刻の供給源。テストで差し替える。
	Now func() time.Time
}

// Manager はセッションレコードの状態機械。
// プロセス内で唯一の正となるセッションビューを提供し、
// すべての呼び出しを直列化する。レコードへの読み書きは
// Managerのメソッド以外から行ってはならない。
//
// 状態はAbsent（有効なレコードなし）とActive（有効なレコードあり）の2つ。
// InitializeでActiveへ、TTL超過・Clear・破損検出でAbsentへ遷移する。
type Manager struct {
	store           Store
	ttl             time.Duration
	refreshInterval time.Duration
	autoRefresh     bool
	now             func() time.Time

	mu          sync.Mutex
	stopRefresh chan struct{}
}

// NewManager は注入されたStoreの上にManagerを生成する。
func NewManager(store Store, cfg Config) *Manager {
	if cfg.TTL == 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.RefreshInterval == 0 {
		cfg.RefreshInterval = DefaultRefreshInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{
		store:           store,
		ttl:             cfg.TTL,
		refreshInterval: cfg.RefreshInterval,
		autoRefresh:     cfg.AutoRefresh,
		now:             cfg.Now,
	}
}

// Initialize は新しいセッションレコードを作成して永続化する。
// セッションIDは作成ごとに新規生成される。
// AutoRefresh有効時はリフレッシュ処理を開始する。
func (m *Manager) Initialize(ctx context.Context, identity string) error {
	sessionID, err := newSessionID()
	if err != nil {
		return err
	}

	rec := model.SessionRecord{
		Identity:     identity,
		LastActivity: m.now(),
		SessionID:    sessionID,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode session record: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.Save(ctx, data); err != nil {
		return fmt.Errorf("failed to persist session record: %w", err)
	}

	if m.autoRefresh {
		m.stopRefreshLocked()
		stop := make(chan struct{})
		m.stopRefresh = stop
		go m.refreshLoop(stop)
	}

	return nil
}

// Get は現在のセッションレコードを返す。
// 有効なレコードが存在しない場合は(nil, nil)。
// 期限切れ・破損したレコードは副作用としてパージされる（遅延失効）。
// 有効なレコードのLastActivityは現在時刻に更新される。
func (m *Manager) Get(ctx context.Context) (*model.SessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getLocked(ctx)
}

// User はセッションに束縛されたアイデンティティを返す。
// 有効なセッションがない場合は空文字列。
func (m *Manager) User(ctx context.Context) (string, error) {
	rec, err := m.Get(ctx)
	if err != nil || rec == nil {
		return "", err
	}
	return rec.Identity, nil
}

// IsValid は有効なセッションが存在するかどうかを返す。
func (m *Manager) IsValid(ctx context.Context) bool {
	rec, err := m.Get(ctx)
	return err == nil && rec != nil
}

// Clear はレコードを無条件にパージし、リフレッシュ処理を停止する。冪等。
func (m *Manager) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopRefreshLocked()
	if err := m.store.Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete session record: %w", err)
	}
	return nil
}

func (m *Manager) getLocked(ctx context.Context) (*model.SessionRecord, error) {
	data, err := m.store.Load(ctx)
	switch {
	case errors.Is(err, ErrNotFound):
		return nil, nil
	case errors.Is(err, ErrCorrupt):
		// 破損レコードは致命傷にしない。パージして不存在として扱う
		slog.Warn("corrupt session record purged", slog.String("error", err.Error()))
		m.purgeLocked(ctx)
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("failed to load session record: %w", err)
	}

	var rec model.SessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		slog.Warn("unparseable session record purged", slog.String("error", err.Error()))
		m.purgeLocked(ctx)
		return nil, nil
	}

	now := m.now()
	if rec.IsExpired(now, m.ttl) {
		m.purgeLocked(ctx)
		return nil, nil
	}

	// 生存確認に成功したのでLastActivityを進める
	rec.LastActivity = now
	touched, err := json.Marshal(rec)
	if err == nil {
		err = m.store.Save(ctx, touched)
	}
	if err != nil {
		// 更新の失敗は次回のGetで再試行されるため、今回の結果は返す
		slog.Warn("failed to touch session record", slog.String("error", err.Error()))
	}

	return &rec, nil
}

// purgeLocked はレコードを破棄してリフレッシュ処理を止める。
func (m *Manager) purgeLocked(ctx context.Context) {
	if err := m.store.Delete(ctx); err != nil {
		slog.Warn("failed to purge session record", slog.String("error", err.Error()))
	}
	m.stopRefreshLocked()
}

func (m *Manager) stopRefreshLocked() {
	if m.stopRefresh != nil {
		close(m.stopRefresh)
		m.stopRefresh = nil
	}
}

// refreshLoop はレコードが存在する間、定期的にLastActivityを更新する。
// レコードが消えた時点で自身を停止する。
func (m *Manager) refreshLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(m.refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			rec, err := m.Get(context.Background())
			if err != nil || rec == nil {
				return
			}
		}
	}
}

// newSessionID は256ビットのランダムなセッションIDを生成する。
// 識別・デバッグ用であり、秘密の資格情報としては扱わない。
func newSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate session id: %w", err)
	}
	return hex.EncodeToString(b), nil
}
