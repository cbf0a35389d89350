// Package identity は外部Identity Gatewayへの狭いインターフェースを提供する。
//
// トークンの発行・リフレッシュはプロバイダのクライアントSDK側の責務であり、
// 本システムは提示されたbearerトークンの検証とアカウントの無効化のみを行う。
package identity

import (
	"context"
	"errors"
)

// ErrInvalidToken はbearerトークンの検証失敗を示す。
// 期限切れ・署名不正・発行者不一致などをまとめて表す。
var ErrInvalidToken = errors.New("identity: invalid token")

// Gateway はIdentity Gatewayの操作インターフェース。
type Gateway interface {
	// VerifyToken はbearerトークンを検証し、安定したユーザー識別子を返す。
	// 検証に失敗した場合はErrInvalidTokenをラップしたエラーを返す。
	VerifyToken(ctx context.Context, token string) (string, error)

	// DisableUser はアカウントを無効化する（削除はしない）。
	// 以後の認証は失敗するが、監査・履歴データは破壊されない。
	DisableUser(ctx context.Context, identity string) error
}
