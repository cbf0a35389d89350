package model

import "time"

// SessionRecord は検証済みアイデンティティとローカルな生存期間を結び付ける
// クライアント保持のセッションレコードを表す。
// SessionIDは識別・デバッグ用のランダム値であり、資格情報ではない。
type SessionRecord struct {
	Identity     string    `json:"identity"`
	LastActivity time.Time `json:"lastActivity"`
	SessionID    string    `json:"sessionId"`
}

// IsExpired は基準時刻nowにおいてレコードが失効しているかどうかを返す。
// now - LastActivity > ttl のとき失効とみなす。
func (r *SessionRecord) IsExpired(now time.Time, ttl time.Duration) bool {
	return now.Sub(r.LastActivity) > ttl
}
