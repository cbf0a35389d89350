// Package model はドメインモデルを定義する。
package model

import "time"

// Account はドキュメントストアのusersコレクションに格納されるアカウントを表す。
// IDはIdentity Gatewayが発行する安定した識別子と一致する。
type Account struct {
	ID          string    `bson:"_id" json:"id"`
	Email       string    `bson:"email,omitempty" json:"email,omitempty"`
	DisplayName string    `bson:"displayName,omitempty" json:"displayName,omitempty"`
	CreatedAt   time.Time `bson:"createdAt,omitempty" json:"createdAt,omitempty"`

	// ライフサイクルフィールド。
	// MarkedForDeletionAtが設定されたアカウントは削除予約済みであり、
	// 実際のパージはストア側のTTLスイープに委ねる。
	MarkedForDeletionAt *time.Time `bson:"markedForDeletionAt,omitempty" json:"markedForDeletionAt,omitempty"`
	TTL                 *time.Time `bson:"ttl,omitempty" json:"ttl,omitempty"`

	// Extra はスキーマ化していないプロフィール項目を失わずに保持する受け皿。
	Extra map[string]any `bson:"extra,omitempty" json:"extra,omitempty"`
}

// IsMarkedForDeletion は削除予約済みかどうかを返す。
func (a *Account) IsMarkedForDeletion() bool {
	return a.MarkedForDeletionAt != nil
}
