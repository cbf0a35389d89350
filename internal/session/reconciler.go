package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/jacobsladder/internal/model"
)

// DefaultSweepInterval はセッション有効性スイープの間隔。
const DefaultSweepInterval = 5 * time.Minute

// Reconciler はIdentity Gatewayのサインイン状態とManagerを同期させる
// 束縛レイヤー。Managerの契約の外側に位置する消費者であり、
// サインイン通知でセッションを初期化し、サインアウト通知でクリアし、
// 定期スイープで失効セッションの強制サインアウトを行う。
type Reconciler struct {
	manager *Manager
	sweep   time.Duration

	// signOut は失効検出時に呼ばれる強制サインアウトのコールバック。
	signOut func(ctx context.Context)
}

// NewReconciler はReconcilerを生成する。
// sweepがゼロの場合はDefaultSweepIntervalが適用される。
func NewReconciler(manager *Manager, sweep time.Duration, signOut func(ctx context.Context)) *Reconciler {
	if sweep == 0 {
		sweep = DefaultSweepInterval
	}
	return &Reconciler{
		manager: manager,
		sweep:   sweep,
		signOut: signOut,
	}
}

// OnSignedIn はIdentity Gatewayがサインイン済みアイデンティティを
// 報告したときに呼ぶ。新しいセッションを初期化する。
func (r *Reconciler) OnSignedIn(ctx context.Context, identity string) error {
	return r.manager.Initialize(ctx, identity)
}

// OnSignedOut はサインアウトの報告時に呼ぶ。セッションをクリアする。
func (r *Reconciler) OnSignedOut(ctx context.Context) error {
	return r.manager.Clear(ctx)
}

// Current は現在のセッションレコードを返す。
// レコードが存在しない・失効している場合は(nil, nil)を返す。
func (r *Reconciler) Current(ctx context.Context) (*model.SessionRecord, error) {
	return r.manager.Get(ctx)
}

// Run は定期スイープを実行する（ブロッキング）。
// セッションが無効になっていたら強制サインアウトを発火する。
// ctxのキャンセルで停止する。
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.sweep)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !r.manager.IsValid(ctx) {
				slog.Info("session no longer valid, forcing sign-out")
				if r.signOut != nil {
					r.signOut(ctx)
				}
			}
		}
	}
}
